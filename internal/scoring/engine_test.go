package scoring

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/curator/internal/feed"
	"github.com/fyrsmithlabs/curator/internal/judge"
	"github.com/fyrsmithlabs/curator/internal/retrieval"
	"github.com/fyrsmithlabs/curator/internal/store"
	"github.com/fyrsmithlabs/curator/internal/strategy"
)

// fakeJudge scores prompts via a caller-supplied function and records
// every prompt it saw.
type fakeJudge struct {
	mu      sync.Mutex
	prompts []string
	score   func(prompt string) (float64, error)
}

func (f *fakeJudge) ScoreBatch(ctx context.Context, prompt string) (judge.Result, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	score, err := f.score(prompt)
	if err != nil {
		return judge.Result{}, err
	}
	return judge.Result{
		Scores: []judge.ItemScore{{Score: score, Reason: "test"}},
		Raw:    fmt.Sprintf(`[{"score": %g, "reason": "test"}]`, score),
	}, nil
}

func (f *fakeJudge) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

func constantScore(score float64) func(string) (float64, error) {
	return func(string) (float64, error) { return score, nil }
}

// storeRecorder adapts the store for tests that need a pair recorder.
type storeRecorder struct{ st *store.Store }

func (r storeRecorder) RecordPair(ctx context.Context, pair store.ExperimentPair) error {
	return r.st.UpsertExperimentPair(ctx, &pair)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "curator.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestEngine(t *testing.T, st *store.Store, exp *Experiment, j judge.Judge, rsvc *retrieval.Service) *Engine {
	t.Helper()
	if rsvc == nil {
		rsvc = retrieval.NewService(nil, nil, retrieval.ServiceConfig{}, nil)
	}
	var recorder PairRecorder
	if exp != nil {
		recorder = storeRecorder{st: st}
	}
	e, err := NewEngine(Config{}, exp, strategy.Builtin(), j, rsvc, st, recorder, nil)
	require.NoError(t, err)
	return e
}

func decisionFor(t *testing.T, decisions []Decision, itemID string) Decision {
	t.Helper()
	for _, d := range decisions {
		if d.Item.ID == itemID {
			return d
		}
	}
	t.Fatalf("no decision for item %s", itemID)
	return Decision{}
}

func TestNewEngineRejectsUnknownStrategies(t *testing.T) {
	st := newTestStore(t)
	j := &fakeJudge{score: constantScore(50)}
	rsvc := retrieval.NewService(nil, nil, retrieval.ServiceConfig{}, nil)

	_, err := NewEngine(Config{ControlKey: "nope"}, nil, strategy.Builtin(), j, rsvc, st, nil, nil)
	assert.ErrorIs(t, err, strategy.ErrUnknownStrategy)

	exp := &Experiment{ID: "exp-1", ChallengerKey: "also-nope"}
	_, err = NewEngine(Config{}, exp, strategy.Builtin(), j, rsvc, st, storeRecorder{st}, nil)
	assert.ErrorIs(t, err, strategy.ErrUnknownStrategy)
}

func TestScoreBatchEmpty(t *testing.T) {
	e := newTestEngine(t, newTestStore(t), nil, &fakeJudge{score: constantScore(80)}, nil)
	decisions, err := e.ScoreBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, decisions)
}

func TestScoreBatchTierAdjustsThreshold(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.SetTier(ctx, "fav", feed.TierFavorite))
	require.NoError(t, st.SetTier(ctx, "mut", feed.TierMuted))

	// Base 70, favorite -20, muted +15. A flat 75 clears the favorite and
	// normal bars but not the muted one.
	e := newTestEngine(t, st, nil, &fakeJudge{score: constantScore(75)}, nil)

	decisions, err := e.ScoreBatch(ctx, []feed.Item{
		{ID: "1", Author: "fav", Text: "based rollup sequencing update"},
		{ID: "2", Author: "norm", Text: "preconf latency analysis"},
		{ID: "3", Author: "mut", Text: "another thread about blobs"},
	})
	require.NoError(t, err)
	require.Len(t, decisions, 3)

	fav := decisionFor(t, decisions, "1")
	assert.Equal(t, 50.0, fav.EffectiveThreshold)
	assert.True(t, fav.Send)

	norm := decisionFor(t, decisions, "2")
	assert.Equal(t, 70.0, norm.EffectiveThreshold)
	assert.True(t, norm.Send)

	mut := decisionFor(t, decisions, "3")
	assert.Equal(t, 85.0, mut.EffectiveThreshold)
	assert.False(t, mut.Send, "muted authors need a higher score")

	saved, err := st.ItemByID(ctx, "3")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.False(t, saved.Delivered)
	require.NotNil(t, saved.Score)
	assert.Equal(t, 75.0, *saved.Score)
}

func TestScoreBatchTierAppliesToMixedCaseAuthors(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Toggled through the feedback surface with an @-prefixed handle; the
	// source feed spells the same author with different casing.
	require.NoError(t, st.SetTier(ctx, "@Vitalik", feed.TierFavorite))

	e := newTestEngine(t, st, nil, &fakeJudge{score: constantScore(60)}, nil)

	decisions, err := e.ScoreBatch(ctx, []feed.Item{
		{ID: "1", Author: "Vitalik", Text: "EOF rollout timeline"},
	})
	require.NoError(t, err)

	d := decisionFor(t, decisions, "1")
	require.NoError(t, d.Err)
	assert.Equal(t, feed.TierFavorite, d.Tier)
	assert.Equal(t, 50.0, d.EffectiveThreshold)
	assert.True(t, d.Send, "favorite tier must apply regardless of handle casing")
}

func TestScoreBatchPersistsVerbatimJudgeOutput(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	e := newTestEngine(t, st, nil, &fakeJudge{score: constantScore(80)}, nil)

	_, err := e.ScoreBatch(ctx, []feed.Item{{ID: "1", Author: "a", Text: "inclusion list mechanics"}})
	require.NoError(t, err)

	recs, err := st.ScoreRecordsForItem(ctx, "1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, `[{"score": 80, "reason": "test"}]`, recs[0].RawOutput,
		"stored raw output must be the judge's response text, not a re-encoding")
}

func TestScoreBatchWithoutExperimentRecordsControlOnly(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	e := newTestEngine(t, st, nil, &fakeJudge{score: constantScore(80)}, nil)

	_, err := e.ScoreBatch(ctx, []feed.Item{{ID: "1", Author: "a", Text: "forced inclusion deep dive"}})
	require.NoError(t, err)

	recs, err := st.ScoreRecordsForItem(ctx, "1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, strategy.KeyBioRubric, recs[0].StrategyKey)
}

func TestScoreBatchExperimentRecordsPairButNeverChangesDelivery(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Control under threshold, challenger far above it.
	j := &fakeJudge{score: func(prompt string) (float64, error) {
		if strings.Contains(prompt, "aggressively filtering") {
			return 95, nil
		}
		return 60, nil
	}}
	exp := &Experiment{ID: "exp-1", ChallengerKey: strategy.KeyNegativeFirst}
	e := newTestEngine(t, st, exp, j, nil)

	decisions, err := e.ScoreBatch(ctx, []feed.Item{{ID: "1", Author: "a", Text: "OFA design tradeoffs"}})
	require.NoError(t, err)

	d := decisions[0]
	require.NoError(t, d.Err)
	assert.Equal(t, 60.0, d.ControlScore)
	require.NotNil(t, d.ChallengerScore)
	assert.Equal(t, 95.0, *d.ChallengerScore)
	assert.False(t, d.Send, "delivery follows the control path only")

	pairs, err := st.PairsForExperiment(ctx, "exp-1")
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, 60.0, pairs[0].ControlScore)
	assert.Equal(t, 95.0, pairs[0].ChallengerScore)
	assert.Equal(t, strategy.KeyBioRubric, pairs[0].ControlKey)
	assert.Equal(t, strategy.KeyNegativeFirst, pairs[0].ChallengerKey)

	recs, err := st.ScoreRecordsForItem(ctx, "1")
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestScoreBatchChallengerFailureIsShadowOnly(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	j := &fakeJudge{score: func(prompt string) (float64, error) {
		if strings.Contains(prompt, "aggressively filtering") {
			return 0, errors.New("judge overloaded")
		}
		return 90, nil
	}}
	exp := &Experiment{ID: "exp-1", ChallengerKey: strategy.KeyNegativeFirst}
	e := newTestEngine(t, st, exp, j, nil)

	decisions, err := e.ScoreBatch(ctx, []feed.Item{{ID: "1", Author: "a", Text: "ERC-4337 bundler internals"}})
	require.NoError(t, err)

	d := decisions[0]
	require.NoError(t, d.Err, "challenger failure must not fail the item")
	assert.True(t, d.Send)
	assert.Nil(t, d.ChallengerScore)

	pairs, err := st.PairsForExperiment(ctx, "exp-1")
	require.NoError(t, err)
	assert.Empty(t, pairs, "no pair without both scores")

	recs, err := st.ScoreRecordsForItem(ctx, "1")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestScoreBatchFailureIsolatedToItem(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	j := &fakeJudge{score: func(prompt string) (float64, error) {
		if strings.Contains(prompt, "poison marker") {
			return 0, errors.New("judge unavailable")
		}
		return 80, nil
	}}
	e := newTestEngine(t, st, nil, j, nil)

	decisions, err := e.ScoreBatch(ctx, []feed.Item{
		{ID: "bad", Author: "a", Text: "poison marker"},
		{ID: "good", Author: "b", Text: "DAS sampling proofs"},
		{ID: "", Author: "c", Text: "no identity"},
	})
	require.NoError(t, err)

	bad := decisionFor(t, decisions, "bad")
	require.Error(t, bad.Err)
	saved, err := st.ItemByID(ctx, "bad")
	require.NoError(t, err)
	assert.Nil(t, saved, "failed items leave no rows behind")

	good := decisionFor(t, decisions, "good")
	require.NoError(t, good.Err)
	assert.True(t, good.Send)

	invalid := decisionFor(t, decisions, "")
	assert.ErrorIs(t, invalid.Err, feed.ErrEmptyItemID)
}

func TestScoreBatchSuppressesReshares(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	prior := 90.0
	require.NoError(t, st.SaveItem(ctx, &store.Item{
		ID: "old", Author: "a", Text: "based rollups solve fragmentation", Score: &prior,
	}))

	e := newTestEngine(t, st, nil, &fakeJudge{score: constantScore(88)}, nil)

	decisions, err := e.ScoreBatch(ctx, []feed.Item{
		{ID: "reshare", Author: "b", Text: "Based  rollups solve fragmentation"},
		{ID: "twin-1", Author: "c", Text: "shared preconf auction writeup"},
		{ID: "twin-2", Author: "d", Text: "shared  preconf auction writeup"},
	})
	require.NoError(t, err)

	reshare := decisionFor(t, decisions, "reshare")
	require.NoError(t, reshare.Err)
	assert.True(t, reshare.Duplicate)
	assert.False(t, reshare.Send, "already-delivered content must not be resent")

	// Two copies inside one batch: exactly one wins the claim.
	sent := 0
	for _, id := range []string{"twin-1", "twin-2"} {
		d := decisionFor(t, decisions, id)
		require.NoError(t, d.Err)
		if d.Send {
			sent++
		} else {
			assert.True(t, d.Duplicate)
		}
	}
	assert.Equal(t, 1, sent)
}

// stubEmbedder returns a fixed vector and counts calls.
type stubEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return []float32{1, 0, 0}, nil
}

func (s *stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type stubIndex struct{}

func (stubIndex) Upsert(ctx context.Context, e retrieval.Entry) error { return nil }

func (stubIndex) Query(ctx context.Context, vector []float32, k int) ([]retrieval.Result, error) {
	return []retrieval.Result{
		{ItemID: "prior", Similarity: 0.91, Label: feed.VoteUp, Text: "loved this preconf explainer"},
	}, nil
}

func TestScoreBatchBuildsContextOnceAndSharesIt(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	embedder := &stubEmbedder{}
	rsvc := retrieval.NewService(embedder, stubIndex{}, retrieval.ServiceConfig{}, nil)

	j := &fakeJudge{score: constantScore(75)}
	exp := &Experiment{ID: "exp-rag", ChallengerKey: strategy.KeyBioRubricRAG}
	e, err := NewEngine(Config{}, exp, strategy.Builtin(), j, rsvc, st, storeRecorder{st}, nil)
	require.NoError(t, err)

	_, err = e.ScoreBatch(ctx, []feed.Item{{ID: "1", Author: "a", Text: "L1-L2 composability via preconfs"}})
	require.NoError(t, err)

	assert.Equal(t, 1, embedder.calls, "one context build per item, shared by both paths")

	prompts := j.seen()
	require.Len(t, prompts, 2)
	var ragPrompt string
	for _, p := range prompts {
		assert.Contains(t, p, "L1-L2 composability via preconfs")
		if strings.Contains(p, "User Feedback Context") {
			ragPrompt = p
		}
	}
	require.NotEmpty(t, ragPrompt, "challenger prompt must carry the context section")
	assert.Contains(t, ragPrompt, "loved this preconf explainer")
	assert.Contains(t, ragPrompt, "[up]")
}

func TestScoreBatchDegradedRetrievalStillScores(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	j := &fakeJudge{score: constantScore(80)}
	exp := &Experiment{ID: "exp-rag", ChallengerKey: strategy.KeyBioRubricRAG}
	e, err := NewEngine(Config{}, exp, strategy.Builtin(), j,
		retrieval.NewService(nil, nil, retrieval.ServiceConfig{}, nil), st, storeRecorder{st}, nil)
	require.NoError(t, err)

	decisions, err := e.ScoreBatch(ctx, []feed.Item{{ID: "1", Author: "a", Text: "blob market equilibrium"}})
	require.NoError(t, err)
	require.NoError(t, decisions[0].Err)

	for _, p := range j.seen() {
		if strings.Contains(p, "User Feedback Context") {
			assert.Contains(t, p, "(no prior feedback available)")
		}
	}
}
