package ranker

import (
	"math"
	"sort"
)

// Trim configures outlier trimming of a group's reference distribution.
type Trim struct {
	Fraction float64 // share cut from each tail
	MinGroup int     // groups smaller than this are not trimmed
}

// DefaultTrim drops the top and bottom 5% of groups with at least 10 members.
var DefaultTrim = Trim{Fraction: 0.05, MinGroup: 10}

// count returns how many values to drop from each tail of an n-value group.
func (t Trim) count(n int) int {
	if t.Fraction <= 0 || n < t.MinGroup {
		return 0
	}
	k := int(math.Floor(float64(n) * t.Fraction))
	if k < 1 {
		k = 1
	}
	if n-2*k < 1 {
		k = (n - 1) / 2
	}
	return k
}

// Distribution is the sorted, trimmed reference set of one group metric.
type Distribution struct {
	ref []float64
}

// NewDistribution sorts values and trims the tails according to trim.
func NewDistribution(values []float64, trim Trim) Distribution {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	k := trim.count(len(sorted))
	return Distribution{ref: sorted[k : len(sorted)-k]}
}

// Len returns the size of the reference set.
func (d Distribution) Len() int {
	return len(d.ref)
}

// Percentile places v within the reference set using a tie-aware mean rank,
// (rank-1)/(N-1)*100. Values outside the trimmed range pin to 0 or 100, and a
// reference set of one value returns 50. Higher values get higher percentiles.
func (d Distribution) Percentile(v float64) float64 {
	n := len(d.ref)
	if n <= 1 {
		return 50
	}
	if v < d.ref[0] {
		return 0
	}
	if v > d.ref[n-1] {
		return 100
	}

	below := sort.SearchFloat64s(d.ref, v)
	upTo := sort.Search(n, func(i int) bool { return d.ref[i] > v })
	equal := upTo - below

	rank := float64(below) + float64(equal+1)/2
	pct := (rank - 1) / float64(n-1) * 100
	return math.Max(0, math.Min(100, pct))
}

// LowerIsBetter inverts a percentile for axes where smaller raw values rank higher.
func LowerIsBetter(pct float64) float64 {
	return 100 - pct
}

// PercentileRank is the one-shot form of NewDistribution(values, trim).Percentile(v).
func PercentileRank(values []float64, v float64, trim Trim, lowerIsBetter bool) float64 {
	pct := NewDistribution(values, trim).Percentile(v)
	if lowerIsBetter {
		return LowerIsBetter(pct)
	}
	return pct
}
