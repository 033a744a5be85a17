// Package retrieval stores embeddings of voted items and serves nearest-
// neighbor context for scoring. Absence of an embedding provider degrades
// the whole feature to a silent no-op at this package's boundary; callers
// never branch on an enabled flag.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/curator/internal/feed"
)

var tracer = otel.Tracer("curator.retrieval")

// Errors for index operations.
var (
	// ErrDimensionMismatch means a vector's length does not match the
	// configured size. A data-integrity error: the vector is rejected,
	// never truncated or padded, and the index stays usable.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	ErrEmptyItemID = errors.New("entry item ID cannot be empty")
)

// Entry is one indexed embedding: an item's vector plus the vote label
// it carried when indexed. Only voted items enter the corpus.
type Entry struct {
	ItemID string
	Vector []float32
	Label  feed.Vote
	Text   string
}

// Result is one nearest-neighbor match.
type Result struct {
	ItemID     string
	Similarity float32
	Label      feed.Vote
	Text       string
}

// Index is a nearest-neighbor store over voted-item embeddings.
type Index interface {
	// Upsert stores or replaces the entry for its item ID.
	Upsert(ctx context.Context, e Entry) error

	// Query returns up to k entries ranked by descending cosine
	// similarity. An empty index yields an empty result, never an error.
	Query(ctx context.Context, vector []float32, k int) ([]Result, error)
}

// IndexConfig holds configuration for the chromem-backed index.
type IndexConfig struct {
	// Path is the directory for persistent storage.
	Path string `koanf:"path"`

	// Collection is the chromem collection name.
	Collection string `koanf:"collection"`

	// VectorSize is the fixed embedding dimension all vectors must match.
	VectorSize int `koanf:"vector_size"`
}

// ApplyDefaults sets default values for unset fields.
func (c *IndexConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "curator_feedback"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 1536 // text-embedding-3-small
	}
}

// Validate validates the configuration.
func (c *IndexConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("vector size must be positive, got %d", c.VectorSize)
	}
	if c.Path == "" {
		return fmt.Errorf("index path is required")
	}
	return nil
}

// ChromemIndex implements Index on an embedded chromem-go database.
// Upserts are atomic per item: concurrent readers observe either the old
// or the new entry for an ID, never a partial write.
type ChromemIndex struct {
	collection *chromem.Collection
	config     IndexConfig
	logger     *zap.Logger
}

// NewChromemIndex opens (or creates) the persistent index.
func NewChromemIndex(cfg IndexConfig, logger *zap.Logger) (*ChromemIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating index config: %w", err)
	}

	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory %s: %w", cfg.Path, err)
	}

	db, err := chromem.NewPersistentDB(cfg.Path, false)
	if err != nil {
		return nil, fmt.Errorf("opening chromem DB: %w", err)
	}

	// All vectors arrive precomputed; chromem must never fall back to its
	// default remote embedder.
	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, rejectImplicitEmbedding)
	if err != nil {
		return nil, fmt.Errorf("opening collection %s: %w", cfg.Collection, err)
	}

	logger.Info("retrieval index opened",
		zap.String("path", cfg.Path),
		zap.String("collection", cfg.Collection),
		zap.Int("vector_size", cfg.VectorSize),
	)

	return &ChromemIndex{collection: collection, config: cfg, logger: logger}, nil
}

func rejectImplicitEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("retrieval index requires precomputed vectors")
}

// Upsert stores or replaces the entry for e.ItemID.
func (x *ChromemIndex) Upsert(ctx context.Context, e Entry) error {
	ctx, span := tracer.Start(ctx, "ChromemIndex.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("item_id", e.ItemID))

	if e.ItemID == "" {
		return ErrEmptyItemID
	}
	if !e.Label.Valid() {
		return fmt.Errorf("%w: %q", feed.ErrInvalidVote, e.Label)
	}
	if len(e.Vector) != x.config.VectorSize {
		err := fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(e.Vector), x.config.VectorSize)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	doc := chromem.Document{
		ID:        e.ItemID,
		Content:   e.Text,
		Metadata:  map[string]string{"label": string(e.Label)},
		Embedding: e.Vector,
	}
	if err := x.collection.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting entry %s: %w", e.ItemID, err)
	}

	upsertsTotal.Inc()
	x.logger.Debug("indexed voted item",
		zap.String("item_id", e.ItemID),
		zap.String("label", string(e.Label)),
	)
	return nil
}

// Query returns the k nearest entries by cosine similarity. Read-only;
// safe for use concurrently with Upsert.
func (x *ChromemIndex) Query(ctx context.Context, vector []float32, k int) ([]Result, error) {
	ctx, span := tracer.Start(ctx, "ChromemIndex.Query")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	if len(vector) != x.config.VectorSize {
		err := fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), x.config.VectorSize)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	// chromem requires nResults <= document count.
	count := x.collection.Count()
	if count == 0 {
		return []Result{}, nil
	}
	if k > count {
		k = count
	}

	matches, err := x.collection.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying index: %w", err)
	}

	results := make([]Result, len(matches))
	for i, m := range matches {
		results[i] = Result{
			ItemID:     m.ID,
			Similarity: m.Similarity,
			Label:      feed.Vote(m.Metadata["label"]),
			Text:       m.Content,
		}
	}

	queriesTotal.Inc()
	span.SetAttributes(attribute.Int("results", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// disabledIndex is the no-op index used when no embedding provider is
// configured. Query always returns empty so strategies see the same
// "no retrieved context" input they would see from an empty corpus.
type disabledIndex struct{}

// NewDisabledIndex returns the no-op index.
func NewDisabledIndex() Index { return disabledIndex{} }

func (disabledIndex) Upsert(ctx context.Context, e Entry) error { return nil }

func (disabledIndex) Query(ctx context.Context, vector []float32, k int) ([]Result, error) {
	return []Result{}, nil
}

// truncate bounds a snippet to max runes for the context block, cutting
// on a rune boundary so multi-byte text never yields invalid UTF-8.
func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}

// Ensure interface implementations at compile time.
var (
	_ Index = (*ChromemIndex)(nil)
	_ Index = disabledIndex{}
)
