package narrative

import (
	"math"

	"github.com/user/sinergia/internal/interfaces"
	"github.com/user/sinergia/internal/types"
)

const (
	// usedTagReduction is the weight fraction removed when every tag was already shown
	usedTagReduction = 0.5
	// minTaggedWeight floors the weight of a tagged variation after repetition decay
	minTaggedWeight = 0.1
	// contextBoost multiplies the weight of a variation matching the current context
	contextBoost = 1.5
)

// VariantChoice is the outcome of variation selection
type VariantChoice struct {
	Variation types.DialogueVariation
	// Index into the node's declared variations
	Index int
	// Fallback is set when no variation passed its requirement
	Fallback bool
}

// SelectVariation picks one of variations for state. It returns false only
// when variations is empty.
func SelectVariation(variations []types.DialogueVariation, state types.GameState, rng interfaces.RandomSource) (VariantChoice, bool) {
	if len(variations) == 0 {
		return VariantChoice{}, false
	}

	candidates := make([]int, 0, len(variations))
	for i, v := range variations {
		if CheckConditionRequirement(v.Requires, state) {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return VariantChoice{Variation: variations[0], Index: 0, Fallback: true}, true
	}

	contextual := GenerateContextualTags(state)
	used := make(map[string]struct{}, len(state.UsedTags))
	for _, t := range state.UsedTags {
		used[t] = struct{}{}
	}

	weights := make([]float64, len(candidates))
	for i, idx := range candidates {
		v := variations[idx]
		w := adjustForUsedTags(v.Weight, v.Tags, used)
		if contextual.Intersects(v.Tags) {
			w *= contextBoost
		}
		weights[i] = w
	}

	picked := pickWeighted(weights, rng)
	idx := candidates[picked]
	return VariantChoice{Variation: variations[idx], Index: idx}, true
}

// adjustForUsedTags lowers weight in proportion to how many of tags were already used
func adjustForUsedTags(weight float64, tags []string, used map[string]struct{}) float64 {
	if len(tags) == 0 {
		return weight
	}
	seen := 0
	for _, t := range tags {
		if _, ok := used[t]; ok {
			seen++
		}
	}
	fraction := float64(seen) / float64(len(tags))
	return math.Max(minTaggedWeight, weight*(1-fraction*usedTagReduction))
}

// pickWeighted draws an index with probability proportional to its weight.
// Non-positive weights are never drawn while a positive weight exists; when
// the total is not positive the first index wins.
func pickWeighted(weights []float64, rng interfaces.RandomSource) int {
	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 || rng == nil {
		return 0
	}

	draw := rng.Float64() * total
	last := -1
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		if draw < w {
			return i
		}
		draw -= w
		last = i
	}
	// rounding left a sliver past the final edge
	return last
}
