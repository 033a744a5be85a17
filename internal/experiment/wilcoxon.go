package experiment

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// minNonZeroDiffs is the smallest sample the signed-rank test accepts.
const minNonZeroDiffs = 5

// Significance is the Wilcoxon signed-rank result over paired
// (challenger - control) score differences.
type Significance struct {
	// Tested is false when the sample was too small or degenerate; Note
	// then explains why.
	Tested bool

	// SampleSize is the count of non-zero differences actually ranked.
	SampleSize int

	// MeanDiff is the mean difference over all labeled pairs, zeros
	// included, for directional reading of the result.
	MeanDiff float64

	Statistic   float64
	PValue      float64
	Significant bool
	Note        string
}

// wilcoxonSignedRank runs the two-sided test on paired differences using
// the normal approximation with tie correction. Zero differences are
// dropped before ranking, matching the standard formulation.
func wilcoxonSignedRank(diffs []float64) Significance {
	var sig Significance
	if len(diffs) == 0 {
		sig.Note = "no labeled pairs"
		return sig
	}

	var sum float64
	nonzero := make([]float64, 0, len(diffs))
	for _, d := range diffs {
		sum += d
		if d != 0 {
			nonzero = append(nonzero, d)
		}
	}
	sig.MeanDiff = sum / float64(len(diffs))
	sig.SampleSize = len(nonzero)

	if len(nonzero) < minNonZeroDiffs {
		sig.Note = fmt.Sprintf("insufficient data: %d non-zero differences, need %d",
			len(nonzero), minNonZeroDiffs)
		return sig
	}

	ranks := averageRanks(nonzero)

	var wPlus, total float64
	for i, d := range nonzero {
		total += ranks[i]
		if d > 0 {
			wPlus += ranks[i]
		}
	}
	wMinus := total - wPlus
	sig.Statistic = math.Min(wPlus, wMinus)

	n := float64(len(nonzero))
	mu := n * (n + 1) / 4
	variance := n*(n+1)*(2*n+1)/24 - tieCorrection(nonzero)/48
	if variance <= 0 {
		sig.Note = "degenerate sample: all differences identical"
		return sig
	}

	z := (sig.Statistic - mu) / math.Sqrt(variance)
	p := 2 * distuv.UnitNormal.CDF(-math.Abs(z))
	if p > 1 {
		p = 1
	}

	sig.Tested = true
	sig.PValue = p
	sig.Significant = p < 0.05
	sig.Note = "normal approximation"
	return sig
}

// averageRanks ranks |diffs| ascending, assigning tied values the mean of
// the ranks they span.
func averageRanks(diffs []float64) []float64 {
	type indexed struct {
		abs float64
		pos int
	}
	order := make([]indexed, len(diffs))
	for i, d := range diffs {
		order[i] = indexed{abs: math.Abs(d), pos: i}
	}
	sort.Slice(order, func(i, j int) bool { return order[i].abs < order[j].abs })

	ranks := make([]float64, len(diffs))
	for i := 0; i < len(order); {
		j := i
		for j < len(order) && order[j].abs == order[i].abs {
			j++
		}
		// Ranks are 1-based; ties share the average of positions i+1..j.
		avg := float64(i+1+j) / 2
		for k := i; k < j; k++ {
			ranks[order[k].pos] = avg
		}
		i = j
	}
	return ranks
}

// tieCorrection returns sum(t^3 - t) over groups of tied |differences|.
func tieCorrection(diffs []float64) float64 {
	counts := make(map[float64]int, len(diffs))
	for _, d := range diffs {
		counts[math.Abs(d)]++
	}
	var c float64
	for _, t := range counts {
		if t > 1 {
			tf := float64(t)
			c += tf*tf*tf - tf
		}
	}
	return c
}
