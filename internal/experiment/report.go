package experiment

import (
	"fmt"
	"strings"
)

const reportRule = "============================================================"

// String renders the report for terminal output.
func (r *Report) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\nExperiment Report: %s\n%s\n\n", reportRule, r.ExperimentID, reportRule)
	fmt.Fprintf(&b, "Total paired scores: %d\n", r.TotalPairs)
	if r.TotalPairs == 0 {
		fmt.Fprintf(&b, "\n%s\n", r.Recommendation)
		return b.String()
	}
	fmt.Fprintf(&b, "Pairs with feedback: %d (%d up, %d down)\n\n",
		r.LabeledPairs, r.Upvoted, r.Downvoted)

	for _, side := range []struct {
		label   string
		metrics StrategyMetrics
	}{
		{"Control", r.Control},
		{"Challenger", r.Challenger},
	} {
		m := side.metrics
		fmt.Fprintf(&b, "%s strategy: %s\n", side.label, m.Key)
		fmt.Fprintf(&b, "  Avg score:   %.1f\n", m.MeanScore)
		fmt.Fprintf(&b, "  Score range: %.0f - %.0f\n", m.MinScore, m.MaxScore)
		if m.ScoreGap != nil {
			fmt.Fprintf(&b, "  Avg on upvoted:   %.1f\n", m.UpMean)
			fmt.Fprintf(&b, "  Avg on downvoted: %.1f\n", m.DownMean)
			fmt.Fprintf(&b, "  Score gap (up - down): %+.1f\n", *m.ScoreGap)
		} else {
			fmt.Fprintf(&b, "  Score gap: n/a (need both up and down votes)\n")
		}
		if r.LabeledPairs > 0 {
			fmt.Fprintf(&b, "  TP=%d FP=%d FN=%d TN=%d (threshold %.0f)\n",
				m.TP, m.FP, m.FN, m.TN, r.Threshold)
			fmt.Fprintf(&b, "  Precision: %.1f%%  Recall: %.1f%%  F1: %.1f%%\n",
				m.Precision*100, m.Recall*100, m.F1*100)
		}
		b.WriteString("\n")
	}

	b.WriteString("Wilcoxon signed-rank (challenger - control):\n")
	if r.Wilcoxon.Tested {
		fmt.Fprintf(&b, "  Mean difference: %+.1f over %d non-zero pairs\n",
			r.Wilcoxon.MeanDiff, r.Wilcoxon.SampleSize)
		fmt.Fprintf(&b, "  Statistic: %.1f  p-value: %.4f (%s)\n",
			r.Wilcoxon.Statistic, r.Wilcoxon.PValue, r.Wilcoxon.Note)
		if r.Wilcoxon.Significant {
			direction := "higher"
			if r.Wilcoxon.MeanDiff < 0 {
				direction = "lower"
			}
			fmt.Fprintf(&b, "  Result: significant (p<0.05), challenger scores %s\n", direction)
		} else {
			b.WriteString("  Result: not significant\n")
		}
	} else {
		fmt.Fprintf(&b, "  Skipped: %s\n", r.Wilcoxon.Note)
	}

	fmt.Fprintf(&b, "\nRecommendation:\n  %s\n", r.Recommendation)
	return b.String()
}
