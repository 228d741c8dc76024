package game

import (
	"math"

	"github.com/user/sinergia/internal/types"
)

const (
	scoreMin     = 0
	scoreMax     = 100
	initialValue = 50

	empathyWeight = 0.4
	respectWeight = 0.3
	trustWeight   = 0.3
)

// ChoiceKind classifies a choice by the net sign of its weighted-axis deltas
type ChoiceKind int

const (
	ChoiceNeutral ChoiceKind = iota
	ChoiceGenuine
	ChoiceManipulative
)

func (k ChoiceKind) String() string {
	switch k {
	case ChoiceGenuine:
		return "genuine"
	case ChoiceManipulative:
		return "manipulative"
	default:
		return "neutral"
	}
}

// InitialScore returns the score every playthrough starts from
func InitialScore() types.AmabilityScore {
	return types.AmabilityScore{
		TotalAmability: initialValue,
		Empathy:        initialValue,
		Respect:        initialValue,
		Trust:          initialValue,
		Efficiency:     initialValue,
	}
}

// ClassifyImpact reports whether impact is a genuine, manipulative or neutral choice.
// Efficiency does not count.
func ClassifyImpact(impact types.AmabilityImpact) ChoiceKind {
	net := delta(impact.Empathy) + delta(impact.Respect) + delta(impact.Trust)
	switch {
	case net > 0:
		return ChoiceGenuine
	case net < 0:
		return ChoiceManipulative
	default:
		return ChoiceNeutral
	}
}

// ApplyImpact returns score with impact applied. Axes are clamped to [0,100],
// the choice counters are bumped by classification and the composite is
// recomputed from the resulting axes.
func ApplyImpact(score types.AmabilityScore, impact types.AmabilityImpact) types.AmabilityScore {
	next := score
	next.Empathy = clamp(score.Empathy + delta(impact.Empathy))
	next.Respect = clamp(score.Respect + delta(impact.Respect))
	next.Trust = clamp(score.Trust + delta(impact.Trust))
	next.Efficiency = clamp(score.Efficiency + delta(impact.Efficiency))

	switch ClassifyImpact(impact) {
	case ChoiceGenuine:
		next.GenuineChoices++
	case ChoiceManipulative:
		next.ManipulativeChoices++
	}

	next.TotalAmability = CalculateTotal(next)
	return next
}

// CalculateTotal is the rounded weighted average of empathy, respect and trust
func CalculateTotal(score types.AmabilityScore) int {
	total := float64(score.Empathy)*empathyWeight +
		float64(score.Respect)*respectWeight +
		float64(score.Trust)*trustWeight
	return int(math.Round(math.Max(scoreMin, math.Min(scoreMax, total))))
}

// delta reads an optional axis change, saturated to the width of the scale
// so a single impact can never overflow the sum
func delta(v *int) int {
	if v == nil {
		return 0
	}
	return max(-scoreMax, min(scoreMax, *v))
}

func clamp(v int) int {
	if v < scoreMin {
		return scoreMin
	}
	if v > scoreMax {
		return scoreMax
	}
	return v
}
