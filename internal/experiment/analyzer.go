package experiment

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/curator/internal/feed"
	"github.com/fyrsmithlabs/curator/internal/store"
)

// AnalyzerConfig holds report thresholds.
type AnalyzerConfig struct {
	// Threshold is the score cutoff for precision/recall classification.
	Threshold float64 `koanf:"threshold"`

	// WinMargin is the F1 lead a strategy needs before the report names
	// it the winner. Within the margin the result is a tie.
	WinMargin float64 `koanf:"win_margin"`

	// MinFeedback is the labeled-pair count below which no recommendation
	// is made.
	MinFeedback int `koanf:"min_feedback"`
}

// ApplyDefaults sets default values for unset fields.
func (c *AnalyzerConfig) ApplyDefaults() {
	if c.Threshold == 0 {
		c.Threshold = 70
	}
	if c.WinMargin == 0 {
		c.WinMargin = 0.05
	}
	if c.MinFeedback == 0 {
		c.MinFeedback = 10
	}
}

// StrategyMetrics is one strategy's side of the comparison.
type StrategyMetrics struct {
	Key       string
	MeanScore float64
	MinScore  float64
	MaxScore  float64

	// Labeled-subset stats. ScoreGap is mean score on upvoted minus mean
	// on downvoted; nil when either class is empty.
	UpMean   float64
	DownMean float64
	ScoreGap *float64

	TP, FP, FN, TN int
	Precision      float64
	Recall         float64
	F1             float64
}

// Report is the full comparison for one experiment.
type Report struct {
	ExperimentID string
	Threshold    float64

	TotalPairs   int
	LabeledPairs int
	Upvoted      int
	Downvoted    int

	Control    StrategyMetrics
	Challenger StrategyMetrics

	Wilcoxon Significance

	Recommendation string
}

// Analyzer joins recorded pairs with active feedback and produces reports.
type Analyzer struct {
	store  *store.Store
	config AnalyzerConfig
	logger *zap.Logger
}

// NewAnalyzer creates an analyzer backed by the store.
func NewAnalyzer(st *store.Store, cfg AnalyzerConfig, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	return &Analyzer{store: st, config: cfg, logger: logger}
}

// Analyze builds the report for an experiment. An experiment with no
// recorded pairs yields an empty report, not an error: asking about an
// experiment that has not run is an ordinary question.
func (a *Analyzer) Analyze(ctx context.Context, experimentID string) (*Report, error) {
	pairs, err := a.store.PairsForExperiment(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("analyzing experiment %s: %w", experimentID, err)
	}

	report := &Report{
		ExperimentID: experimentID,
		Threshold:    a.config.Threshold,
		TotalPairs:   len(pairs),
	}
	if len(pairs) == 0 {
		report.Recommendation = "No data recorded for this experiment."
		return report, nil
	}

	votes, err := a.store.ActiveVotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading feedback for %s: %w", experimentID, err)
	}

	// Only the active (latest, non-undone) vote labels a pair. Undone
	// votes leave the pair unlabeled, which keeps it out of every
	// metric except the raw pair count.
	type labeled struct {
		pair store.ExperimentPair
		vote feed.Vote
	}
	var voted []labeled
	for _, p := range pairs {
		if v, ok := votes[p.ItemID]; ok {
			voted = append(voted, labeled{pair: p, vote: v})
		}
	}

	report.LabeledPairs = len(voted)
	for _, l := range voted {
		if l.vote == feed.VoteUp {
			report.Upvoted++
		} else {
			report.Downvoted++
		}
	}

	controlOf := func(p store.ExperimentPair) float64 { return p.ControlScore }
	challengerOf := func(p store.ExperimentPair) float64 { return p.ChallengerScore }

	sides := []struct {
		metrics *StrategyMetrics
		key     string
		score   func(store.ExperimentPair) float64
	}{
		{&report.Control, pairs[0].ControlKey, controlOf},
		{&report.Challenger, pairs[0].ChallengerKey, challengerOf},
	}

	for _, side := range sides {
		m := side.metrics
		m.Key = side.key

		m.MinScore = side.score(pairs[0])
		m.MaxScore = m.MinScore
		var sum float64
		for _, p := range pairs {
			s := side.score(p)
			sum += s
			if s < m.MinScore {
				m.MinScore = s
			}
			if s > m.MaxScore {
				m.MaxScore = s
			}
		}
		m.MeanScore = sum / float64(len(pairs))

		var upSum, downSum float64
		for _, l := range voted {
			s := side.score(l.pair)
			up := l.vote == feed.VoteUp
			switch {
			case up && s >= a.config.Threshold:
				m.TP++
			case !up && s >= a.config.Threshold:
				m.FP++
			case up:
				m.FN++
			default:
				m.TN++
			}
			if up {
				upSum += s
			} else {
				downSum += s
			}
		}

		if report.Upvoted > 0 && report.Downvoted > 0 {
			m.UpMean = upSum / float64(report.Upvoted)
			m.DownMean = downSum / float64(report.Downvoted)
			gap := m.UpMean - m.DownMean
			m.ScoreGap = &gap
		}

		if m.TP+m.FP > 0 {
			m.Precision = float64(m.TP) / float64(m.TP+m.FP)
		}
		if m.TP+m.FN > 0 {
			m.Recall = float64(m.TP) / float64(m.TP+m.FN)
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
	}

	// Significance over paired (challenger - control) differences on
	// labeled pairs only.
	diffs := make([]float64, 0, len(voted))
	for _, l := range voted {
		diffs = append(diffs, l.pair.ChallengerScore-l.pair.ControlScore)
	}
	report.Wilcoxon = wilcoxonSignedRank(diffs)

	report.Recommendation = a.recommend(report)

	a.logger.Info("experiment analyzed",
		zap.String("experiment_id", experimentID),
		zap.Int("pairs", report.TotalPairs),
		zap.Int("labeled", report.LabeledPairs),
	)
	return report, nil
}

func (a *Analyzer) recommend(r *Report) string {
	if r.LabeledPairs < a.config.MinFeedback {
		return fmt.Sprintf(
			"Insufficient feedback (%d labeled pairs, need %d). Keep the experiment running and keep voting.",
			r.LabeledPairs, a.config.MinFeedback)
	}
	switch {
	case r.Challenger.F1 > r.Control.F1+a.config.WinMargin:
		return fmt.Sprintf(
			"Challenger (%s) outperforms control (%s): F1 %.2f vs %.2f. Consider promoting it.",
			r.Challenger.Key, r.Control.Key, r.Challenger.F1, r.Control.F1)
	case r.Control.F1 > r.Challenger.F1+a.config.WinMargin:
		return fmt.Sprintf(
			"Control (%s) outperforms challenger (%s): F1 %.2f vs %.2f. Keep the current strategy.",
			r.Control.Key, r.Challenger.Key, r.Control.F1, r.Challenger.F1)
	default:
		return fmt.Sprintf(
			"No clear winner: F1 control=%.2f, challenger=%.2f. Gather more data or try a different challenger.",
			r.Control.F1, r.Challenger.F1)
	}
}
