package retrieval

import (
	"context"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/curator/internal/feed"
)

// stubEmbedder produces deterministic unit vectors keyed on text length.
type stubEmbedder struct{ dim int }

func (s *stubEmbedder) embed(text string) []float32 {
	vec := make([]float32, s.dim)
	vec[len(text)%s.dim] = 1
	return vec
}

func (s *stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = s.embed(t)
	}
	return out, nil
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.embed(text), nil
}

func TestServiceDisabledIsSilent(t *testing.T) {
	// No embedder configured: the service degrades at its own boundary.
	svc := NewService(nil, NewDisabledIndex(), ServiceConfig{}, nil)
	ctx := context.Background()

	results, err := svc.SimilarVoted(ctx, "anything")
	if err != nil {
		t.Fatalf("SimilarVoted in degraded mode failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("degraded mode returned %d results", len(results))
	}

	block, err := svc.ContextBlock(ctx, "anything")
	if err != nil || block != "" {
		t.Errorf("degraded ContextBlock = (%q, %v), want empty and nil", block, err)
	}

	if err := svc.IndexVoted(ctx, "1", "text", feed.VoteUp); err != nil {
		t.Errorf("degraded IndexVoted failed: %v", err)
	}
}

func TestServiceIndexAndRetrieve(t *testing.T) {
	embedder := &stubEmbedder{dim: testDim}
	idx, err := NewChromemIndex(IndexConfig{Path: t.TempDir(), VectorSize: testDim}, nil)
	if err != nil {
		t.Fatalf("NewChromemIndex failed: %v", err)
	}
	svc := NewService(embedder, idx, ServiceConfig{K: 3}, nil)
	ctx := context.Background()

	if err := svc.IndexVoted(ctx, "a", "zk proofs", feed.VoteUp); err != nil {
		t.Fatalf("IndexVoted failed: %v", err)
	}

	// Same length bucket → same stub vector → top match.
	block, err := svc.ContextBlock(ctx, "zk proofs")
	if err != nil {
		t.Fatalf("ContextBlock failed: %v", err)
	}
	if !strings.Contains(block, "[up]") || !strings.Contains(block, "zk proofs") {
		t.Errorf("unexpected context block: %q", block)
	}
}
