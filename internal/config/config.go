// Package config provides configuration loading for curator.
package config

import (
	"fmt"

	"github.com/fyrsmithlabs/curator/internal/experiment"
	"github.com/fyrsmithlabs/curator/internal/feedback"
	"github.com/fyrsmithlabs/curator/internal/judge"
	"github.com/fyrsmithlabs/curator/internal/logging"
	"github.com/fyrsmithlabs/curator/internal/retrieval"
	"github.com/fyrsmithlabs/curator/internal/scoring"
	"github.com/fyrsmithlabs/curator/internal/store"
	"github.com/fyrsmithlabs/curator/internal/strategy"
)

// ExperimentConfig selects the active experiment, if any. The experiment
// identity is read once at startup and held constant for the process
// lifetime.
type ExperimentConfig struct {
	Enabled       bool   `koanf:"enabled"`
	ID            string `koanf:"id"`
	ChallengerKey string `koanf:"challenger_key"`
}

// Validate validates the experiment configuration against the registry.
func (c *ExperimentConfig) Validate(registry *strategy.Registry) error {
	if !c.Enabled {
		return nil
	}
	if c.ID == "" {
		return fmt.Errorf("experiment enabled but no id set")
	}
	if _, err := registry.Get(c.ChallengerKey); err != nil {
		return fmt.Errorf("experiment challenger: %w", err)
	}
	return nil
}

// Config is the root configuration for curator.
type Config struct {
	Logging    logging.Config             `koanf:"logging"`
	Store      store.Config               `koanf:"store"`
	Judge      judge.AnthropicConfig      `koanf:"judge"`
	Embedder   retrieval.EmbedderConfig   `koanf:"embedder"`
	Index      retrieval.IndexConfig      `koanf:"index"`
	Retrieval  retrieval.ServiceConfig    `koanf:"retrieval"`
	Scoring    scoring.Config             `koanf:"scoring"`
	Experiment ExperimentConfig           `koanf:"experiment"`
	Analyzer   experiment.AnalyzerConfig  `koanf:"analyzer"`
	Feedback   feedback.Config            `koanf:"feedback"`
}

// ApplyDefaults sets defaults on every section.
func (c *Config) ApplyDefaults() {
	c.Logging.ApplyDefaults()
	c.Judge.ApplyDefaults()
	c.Embedder.ApplyDefaults()
	c.Index.ApplyDefaults()
	c.Retrieval.ApplyDefaults()
	c.Scoring.ApplyDefaults()
	c.Analyzer.ApplyDefaults()
	c.Feedback.ApplyDefaults()
}

// Validate checks the whole configuration, including that every
// configured strategy key resolves in the registry. A bad key must abort
// startup, never surface mid-run.
func (c *Config) Validate(registry *strategy.Registry) error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.Index.Validate(); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	if _, err := registry.Get(c.Scoring.ControlKey); err != nil {
		return fmt.Errorf("scoring control: %w", err)
	}
	if err := c.Experiment.Validate(registry); err != nil {
		return err
	}
	return nil
}

// ActiveExperiment translates the config section into the engine's
// experiment handle, or nil when disabled.
func (c *Config) ActiveExperiment() *scoring.Experiment {
	if !c.Experiment.Enabled {
		return nil
	}
	return &scoring.Experiment{ID: c.Experiment.ID, ChallengerKey: c.Experiment.ChallengerKey}
}
