// Package reputation scores NGOs from their verification and disbursement history.
//
// The default scorer is a weighted sum:
//
//	score = w_v×verified + w_s×successRate + w_i×min(1, released/impactTarget)
//
// normalized by the sum of weights and clamped to [0, 1]. The weights are
// configuration; the formula itself is replaceable through Scorer.
package reputation

import "math"

// Inputs are the facts a score is computed from.
type Inputs struct {
	Verified           bool
	MilestonesReleased int
	MilestonesRejected int
	TotalReleased      int64
}

// Score is a computed reputation.
type Score struct {
	Value float64 `json:"value"`
	Tier  string  `json:"tier"`
}

// Scorer computes a score. Implementations must be pure.
type Scorer interface {
	Score(in Inputs) Score
}

type Weights struct {
	Verification float64
	Success      float64
	Impact       float64
	// ImpactTarget is the released amount at which the impact factor saturates.
	ImpactTarget int64
}

func DefaultWeights() Weights {
	return Weights{Verification: 0.4, Success: 0.4, Impact: 0.2, ImpactTarget: 10_000_000}
}

// Weighted is the default Scorer.
type Weighted struct {
	w Weights
}

func NewWeighted(w Weights) *Weighted {
	return &Weighted{w: w}
}

func (s *Weighted) Score(in Inputs) Score {
	total := s.w.Verification + s.w.Success + s.w.Impact
	if total <= 0 {
		return Score{Value: 0, Tier: tier(0)}
	}

	var verified float64
	if in.Verified {
		verified = 1
	}

	// no decided milestones yet: neutral
	success := 0.5
	if decided := in.MilestonesReleased + in.MilestonesRejected; decided > 0 {
		success = float64(in.MilestonesReleased) / float64(decided)
	}

	var impact float64
	if s.w.ImpactTarget > 0 {
		impact = math.Min(1, float64(in.TotalReleased)/float64(s.w.ImpactTarget))
	}

	value := (s.w.Verification*verified + s.w.Success*success + s.w.Impact*impact) / total
	value = clamp(value, 0, 1)
	return Score{Value: value, Tier: tier(value)}
}

func tier(v float64) string {
	switch {
	case v >= 0.9:
		return "EXCELLENT"
	case v >= 0.7:
		return "GOOD"
	case v >= 0.5:
		return "NEUTRAL"
	case v >= 0.3:
		return "LOW"
	default:
		return "POOR"
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
