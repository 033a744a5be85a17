package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/curator/internal/feed"
)

// snippetMaxChars bounds each context-block line so a handful of matches
// cannot blow up the judge prompt.
const snippetMaxChars = 240

// ServiceConfig holds retrieval behavior configuration.
type ServiceConfig struct {
	// K is the number of similar voted items fetched per query.
	K int `koanf:"k"`
}

// ApplyDefaults sets default values for unset fields.
func (c *ServiceConfig) ApplyDefaults() {
	if c.K == 0 {
		c.K = 5
	}
}

// Service combines the embedding provider and the index behind one
// uniform API. When either is absent the service degrades to a no-op:
// queries return nothing, upserts succeed silently, and callers stay
// identical in both modes.
type Service struct {
	embedder Embedder
	index    Index
	k        int
	logger   *zap.Logger
}

// NewService wires the embedder and index. A nil embedder (no credential
// configured) yields a degraded service regardless of the index.
func NewService(embedder Embedder, index Index, cfg ServiceConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if embedder == nil || index == nil {
		logger.Info("retrieval disabled: no embedding provider configured")
		return &Service{k: cfg.K, logger: logger}
	}
	return &Service{embedder: embedder, index: index, k: cfg.K, logger: logger}
}

func (s *Service) enabled() bool {
	return s.embedder != nil && s.index != nil
}

// SimilarVoted embeds the text and returns the k most similar previously
// voted items. Degraded mode and an empty corpus both yield an empty
// slice with no error.
func (s *Service) SimilarVoted(ctx context.Context, text string) ([]Result, error) {
	if !s.enabled() {
		return []Result{}, nil
	}

	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query text: %w", err)
	}

	return s.index.Query(ctx, vector, s.k)
}

// ContextBlock formats similar voted items into the bounded prompt block
// consumed by retrieval-aware strategies. Returns "" when nothing was
// found, which strategies render as "no prior feedback".
func (s *Service) ContextBlock(ctx context.Context, text string) (string, error) {
	results, err := s.SimilarVoted(ctx, text)
	if err != nil {
		return "", err
	}
	return FormatContext(results), nil
}

// IndexVoted embeds the item text and upserts it with its vote label.
// A later vote on the same item supersedes the prior entry.
func (s *Service) IndexVoted(ctx context.Context, itemID, text string, label feed.Vote) error {
	if !s.enabled() {
		return nil
	}

	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return fmt.Errorf("embedding voted item %s: %w", itemID, err)
	}

	return s.index.Upsert(ctx, Entry{ItemID: itemID, Vector: vector, Label: label, Text: text})
}

// FormatContext renders query results as the prompt context block.
func FormatContext(results []Result) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "- [%s] (similarity %.2f) %s\n", r.Label, r.Similarity, truncate(r.Text, snippetMaxChars))
	}
	return strings.TrimRight(b.String(), "\n")
}
