package model

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
)

// Rank is a tier label on the fixed ordinal scale D < C < B < A < S < S+.
type Rank string

const (
	RankD     Rank = "D"
	RankC     Rank = "C"
	RankB     Rank = "B"
	RankA     Rank = "A"
	RankS     Rank = "S"
	RankSPlus Rank = "S+"
)

// rankOrdinals is the fixed ordinal scale. Unknown ranks map to 0.
var rankOrdinals = map[Rank]int{
	RankD:     1,
	RankC:     2,
	RankB:     3,
	RankA:     4,
	RankS:     5,
	RankSPlus: 6,
}

// AxisRanks lists the ranks an individual axis may take, lowest first.
var AxisRanks = []Rank{RankD, RankC, RankB, RankA, RankS}

// Ordinal returns the position of r on the rank scale (D=1 … S+=6), or 0 if r is not a valid rank.
func (r Rank) Ordinal() int {
	return rankOrdinals[r]
}

// Valid reports whether r is one of S+, S, A, B, C, D.
func (r Rank) Valid() bool {
	return r.Ordinal() > 0
}

// Less reports whether r sorts strictly below o.
func (r Rank) Less(o Rank) bool {
	return r.Ordinal() < o.Ordinal()
}

// Upgrade returns the next axis rank above r. S (and S+) stay where they are.
func (r Rank) Upgrade() Rank {
	switch r {
	case RankD:
		return RankC
	case RankC:
		return RankB
	case RankB:
		return RankA
	case RankA:
		return RankS
	default:
		return r
	}
}

// ParseRank parses a rank label, tolerating surrounding whitespace and lowercase.
func ParseRank(s string) (Rank, error) {
	r := Rank(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", eris.Errorf("model: invalid rank %q", s)
	}
	return r, nil
}

// RankDelta returns the signed distance from old to new on the ordinal scale.
// A first assignment (or any invalid rank) is not a move on the scale and yields 0.
func RankDelta(old, new Rank) int {
	if !old.Valid() || !new.Valid() {
		return 0
	}
	return new.Ordinal() - old.Ordinal()
}

// RankFromScore maps a 0-100 score (or percentile) to an axis rank:
// >=90 S, >=80 A, >=70 B, >=60 C, else D.
func RankFromScore(score float64) Rank {
	switch {
	case score >= 90:
		return RankS
	case score >= 80:
		return RankA
	case score >= 70:
		return RankB
	case score >= 60:
		return RankC
	default:
		return RankD
	}
}

// ScoreRange is the closed-open interval of scores a rank is expected to pair with.
// Max is inclusive only for the top band.
type ScoreRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether score falls inside the range.
func (sr ScoreRange) Contains(score float64) bool {
	if sr.Max >= 100 {
		return score >= sr.Min && score <= sr.Max
	}
	return score >= sr.Min && score < sr.Max
}

// ExpectedScoreRange returns the score band that maps to r under RankFromScore.
// S+ shares the S band.
func ExpectedScoreRange(r Rank) (ScoreRange, bool) {
	switch r {
	case RankSPlus, RankS:
		return ScoreRange{Min: 90, Max: 100}, true
	case RankA:
		return ScoreRange{Min: 80, Max: 90}, true
	case RankB:
		return ScoreRange{Min: 70, Max: 80}, true
	case RankC:
		return ScoreRange{Min: 60, Max: 70}, true
	case RankD:
		return ScoreRange{Min: 0, Max: 60}, true
	default:
		return ScoreRange{}, false
	}
}

// Clamp returns score moved to the nearest value inside the range.
func (sr ScoreRange) Clamp(score float64) float64 {
	switch {
	case sr.Contains(score):
		return score
	case score < sr.Min:
		return sr.Min
	case sr.Max >= 100:
		return sr.Max
	default:
		return math.Nextafter(sr.Max, sr.Min)
	}
}

// RankValue is the numeric weight of an axis rank used by weighted aggregation.
func RankValue(r Rank) float64 {
	switch r {
	case RankS, RankSPlus:
		return 100
	case RankA:
		return 85
	case RankB:
		return 75
	case RankC:
		return 65
	default:
		return 50
	}
}
