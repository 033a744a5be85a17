package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/curator/internal/config"
	"github.com/fyrsmithlabs/curator/internal/logging"
	"github.com/fyrsmithlabs/curator/internal/retrieval"
	"github.com/fyrsmithlabs/curator/internal/store"
	"github.com/fyrsmithlabs/curator/internal/strategy"
)

// app holds the wired components every command needs. Judge and engine
// are built per command since only scoring runs need API credentials.
type app struct {
	config    *config.Config
	registry  *strategy.Registry
	logger    *zap.Logger
	store     *store.Store
	retrieval *retrieval.Service
}

func newApp() (*app, error) {
	if err := config.EnsureConfigDir(); err != nil {
		return nil, err
	}

	registry := strategy.Builtin()
	cfg, err := config.Load(configPath, registry)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	st, err := store.Open(cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	// No embedder credential means retrieval degrades to a no-op; every
	// caller behaves identically either way.
	embedder, err := retrieval.NewOpenAIEmbedder(cfg.Embedder)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	var index retrieval.Index = retrieval.NewDisabledIndex()
	if embedder != nil {
		chromem, err := retrieval.NewChromemIndex(cfg.Index, logger)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		index = chromem
	}
	rsvc := retrieval.NewService(embedder, index, cfg.Retrieval, logger)

	return &app{
		config:    cfg,
		registry:  registry,
		logger:    logger,
		store:     st,
		retrieval: rsvc,
	}, nil
}

func (a *app) Close() {
	_ = a.store.Close()
	_ = a.logger.Sync()
}
