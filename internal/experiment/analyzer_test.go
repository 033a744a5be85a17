package experiment

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/curator/internal/feed"
	"github.com/fyrsmithlabs/curator/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "curator.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func recordPair(t *testing.T, st *store.Store, itemID string, control, challenger float64) {
	t.Helper()
	err := NewRecorder(st, nil).RecordPair(context.Background(), store.ExperimentPair{
		ExperimentID: "exp-1", ItemID: itemID,
		ControlScore: control, ChallengerScore: challenger,
		ControlKey: "bio-rubric", ChallengerKey: "negative-first",
	})
	require.NoError(t, err)
}

func TestAnalyzeEmptyExperiment(t *testing.T) {
	st := newTestStore(t)
	report, err := NewAnalyzer(st, AnalyzerConfig{}, nil).Analyze(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalPairs)
	assert.Contains(t, report.Recommendation, "No data")
	assert.NotEmpty(t, report.String())
}

func TestAnalyzeChallengerWins(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Challenger separates up/down cleanly; control sends everything.
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("up-%d", i)
		recordPair(t, st, id, 72, 90)
		_, err := st.SaveFeedback(ctx, id, feed.VoteUp, "")
		require.NoError(t, err)
	}
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("down-%d", i)
		recordPair(t, st, id, 71, 30)
		_, err := st.SaveFeedback(ctx, id, feed.VoteDown, "")
		require.NoError(t, err)
	}
	// Unlabeled pairs count toward totals only.
	recordPair(t, st, "silent", 50, 50)

	report, err := NewAnalyzer(st, AnalyzerConfig{}, nil).Analyze(ctx, "exp-1")
	require.NoError(t, err)

	assert.Equal(t, 13, report.TotalPairs)
	assert.Equal(t, 12, report.LabeledPairs)
	assert.Equal(t, 6, report.Upvoted)
	assert.Equal(t, 6, report.Downvoted)

	assert.Equal(t, "bio-rubric", report.Control.Key)
	assert.Equal(t, 6, report.Control.TP)
	assert.Equal(t, 6, report.Control.FP)
	assert.InDelta(t, 0.6667, report.Control.F1, 0.001)
	require.NotNil(t, report.Control.ScoreGap)
	assert.InDelta(t, 1.0, *report.Control.ScoreGap, 0.001)

	assert.Equal(t, "negative-first", report.Challenger.Key)
	assert.Equal(t, 6, report.Challenger.TP)
	assert.Equal(t, 6, report.Challenger.TN)
	assert.InDelta(t, 1.0, report.Challenger.F1, 0.001)
	require.NotNil(t, report.Challenger.ScoreGap)
	assert.InDelta(t, 60.0, *report.Challenger.ScoreGap, 0.001)

	require.True(t, report.Wilcoxon.Tested)
	assert.Equal(t, 12, report.Wilcoxon.SampleSize)
	assert.InDelta(t, 0.147, report.Wilcoxon.PValue, 0.005)
	assert.False(t, report.Wilcoxon.Significant)

	assert.Contains(t, report.Recommendation, "Challenger (negative-first) outperforms")
	assert.Contains(t, report.String(), "negative-first")
}

func TestAnalyzeInsufficientFeedback(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	recordPair(t, st, "1", 80, 85)
	_, err := st.SaveFeedback(ctx, "1", feed.VoteUp, "")
	require.NoError(t, err)

	report, err := NewAnalyzer(st, AnalyzerConfig{}, nil).Analyze(ctx, "exp-1")
	require.NoError(t, err)

	assert.Equal(t, 1, report.LabeledPairs)
	assert.Nil(t, report.Control.ScoreGap, "one-sided feedback has no gap")
	assert.False(t, report.Wilcoxon.Tested)
	assert.Contains(t, report.Recommendation, "Insufficient feedback")
}

func TestAnalyzeIgnoresUndoneVotes(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	recordPair(t, st, "1", 80, 85)
	fb, err := st.SaveFeedback(ctx, "1", feed.VoteUp, "")
	require.NoError(t, err)
	ok, err := st.MarkUndone(ctx, fb.ID, 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	report, err := NewAnalyzer(st, AnalyzerConfig{}, nil).Analyze(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalPairs)
	assert.Equal(t, 0, report.LabeledPairs, "undone votes must not label pairs")
}

func TestWilcoxonAllPositive(t *testing.T) {
	sig := wilcoxonSignedRank([]float64{1, 2, 3, 4, 5})
	require.True(t, sig.Tested)
	assert.Equal(t, 0.0, sig.Statistic)
	assert.InDelta(t, 0.043, sig.PValue, 0.002)
	assert.True(t, sig.Significant)
}

func TestWilcoxonDropsZeroDifferences(t *testing.T) {
	sig := wilcoxonSignedRank([]float64{0, 0, 1, -1, 2, 3, 4})
	require.True(t, sig.Tested)
	assert.Equal(t, 5, sig.SampleSize)
}

func TestWilcoxonInsufficientSample(t *testing.T) {
	sig := wilcoxonSignedRank([]float64{3, -2, 5, 1})
	assert.False(t, sig.Tested)
	assert.Contains(t, sig.Note, "insufficient data")

	empty := wilcoxonSignedRank(nil)
	assert.False(t, empty.Tested)
}
