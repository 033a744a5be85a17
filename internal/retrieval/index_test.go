package retrieval

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/fyrsmithlabs/curator/internal/feed"
)

const testDim = 4

func newTestIndex(t *testing.T) *ChromemIndex {
	t.Helper()
	idx, err := NewChromemIndex(IndexConfig{Path: t.TempDir(), VectorSize: testDim}, nil)
	if err != nil {
		t.Fatalf("NewChromemIndex failed: %v", err)
	}
	return idx
}

func unitVector(values ...float32) []float32 {
	var norm float64
	for _, v := range values {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

func TestQueryEmptyIndex(t *testing.T) {
	idx := newTestIndex(t)

	results, err := idx.Query(context.Background(), unitVector(1, 0, 0, 0), 5)
	if err != nil {
		t.Fatalf("Query on empty index failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty results, got %d", len(results))
	}
}

func TestUpsertQueryRoundTrip(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	vec := unitVector(1, 2, 3, 4)
	err := idx.Upsert(ctx, Entry{ItemID: "a", Vector: vec, Label: feed.VoteUp, Text: "preconf design"})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	err = idx.Upsert(ctx, Entry{ItemID: "b", Vector: unitVector(4, 3, 2, 1), Label: feed.VoteDown, Text: "price talk"})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	results, err := idx.Query(ctx, vec, 2)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ItemID != "a" {
		t.Errorf("nearest = %q, want %q", results[0].ItemID, "a")
	}
	if math.Abs(float64(results[0].Similarity)-1.0) > 1e-5 {
		t.Errorf("self-similarity = %f, want ~1.0", results[0].Similarity)
	}
	if results[0].Label != feed.VoteUp {
		t.Errorf("label = %q, want up", results[0].Label)
	}
}

func TestUpsertReplacesLabel(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	vec := unitVector(1, 1, 1, 1)

	if err := idx.Upsert(ctx, Entry{ItemID: "a", Vector: vec, Label: feed.VoteDown, Text: "t"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	// Re-vote after undo supersedes the stale entry.
	if err := idx.Upsert(ctx, Entry{ItemID: "a", Vector: vec, Label: feed.VoteUp, Text: "t"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	results, err := idx.Query(ctx, vec, 5)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 entry after replace, got %d", len(results))
	}
	if results[0].Label != feed.VoteUp {
		t.Errorf("label = %q, want up after supersede", results[0].Label)
	}
}

func TestDimensionMismatch(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	err := idx.Upsert(ctx, Entry{ItemID: "bad", Vector: []float32{1, 2}, Label: feed.VoteUp})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}

	if _, err := idx.Query(ctx, []float32{1, 2, 3}, 5); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch on query, got %v", err)
	}

	// Index must stay usable after a rejected vector.
	good := unitVector(1, 0, 0, 1)
	if err := idx.Upsert(ctx, Entry{ItemID: "good", Vector: good, Label: feed.VoteUp, Text: "ok"}); err != nil {
		t.Fatalf("Upsert after rejection failed: %v", err)
	}
	results, err := idx.Query(ctx, good, 1)
	if err != nil {
		t.Fatalf("Query after rejection failed: %v", err)
	}
	if len(results) != 1 || results[0].ItemID != "good" {
		t.Errorf("index corrupted after rejected upsert: %+v", results)
	}
}

func TestUpsertRejectsInvalidLabel(t *testing.T) {
	idx := newTestIndex(t)
	err := idx.Upsert(context.Background(), Entry{ItemID: "x", Vector: unitVector(1, 0, 0, 0), Label: "maybe"})
	if !errors.Is(err, feed.ErrInvalidVote) {
		t.Errorf("expected ErrInvalidVote, got %v", err)
	}
}

func TestFormatContext(t *testing.T) {
	block := FormatContext([]Result{
		{ItemID: "1", Similarity: 0.91, Label: feed.VoteUp, Text: "based rollup sequencing"},
		{ItemID: "2", Similarity: 0.80, Label: feed.VoteDown, Text: "new memecoin launch"},
	})
	if !strings.Contains(block, "[up]") || !strings.Contains(block, "[down]") {
		t.Errorf("context block missing labels:\n%s", block)
	}
	if FormatContext(nil) != "" {
		t.Error("empty results must format to empty block")
	}
}

func TestFormatContextBoundsSnippets(t *testing.T) {
	long := strings.Repeat("x", 2000)
	block := FormatContext([]Result{{ItemID: "1", Similarity: 0.5, Label: feed.VoteUp, Text: long}})
	if len(block) > snippetMaxChars+64 {
		t.Errorf("context line not bounded: %d chars", len(block))
	}
}

func TestFormatContextTruncatesOnRuneBoundary(t *testing.T) {
	// The leading ASCII rune misaligns every following 3-byte rune
	// against the snippet bound, so a byte-oriented cut would land
	// mid-rune.
	long := "x" + strings.Repeat("预确认", snippetMaxChars)
	block := FormatContext([]Result{{ItemID: "1", Similarity: 0.5, Label: feed.VoteUp, Text: long}})
	if !utf8.ValidString(block) {
		t.Fatalf("context block contains invalid UTF-8: %q", block)
	}
	if !strings.Contains(block, "确...") {
		t.Errorf("snippet not truncated at a whole rune:\n%s", block)
	}
	if got := utf8.RuneCountInString(block); got > snippetMaxChars+64 {
		t.Errorf("context line not bounded: %d runes", got)
	}
}
