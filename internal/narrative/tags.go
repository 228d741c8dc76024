package narrative

import "github.com/user/sinergia/internal/types"

// Contextual tags derived from game state
const (
	TagFirstPlaythrough  = "first_playthrough"
	TagSecondPlaythrough = "second_playthrough"
	TagThirdPlaythrough  = "third_playthrough"
	TagHighAmability     = "high_amability"
	TagLowAmability      = "low_amability"
	TagHighEfficiency    = "high_efficiency"
	TagLowEfficiency     = "low_efficiency"
	TagGenuinePath       = "genuine_path"
	TagManipulativePath  = "manipulative_path"
)

const (
	highBand = 70
	lowBand  = 30
)

// TagSet is an unordered set of tags
type TagSet map[string]struct{}

// Has reports whether tag is in the set
func (s TagSet) Has(tag string) bool {
	_, ok := s[tag]
	return ok
}

// Intersects reports whether any of tags is in the set
func (s TagSet) Intersects(tags []string) bool {
	for _, t := range tags {
		if s.Has(t) {
			return true
		}
	}
	return false
}

// GenerateContextualTags derives at most one tag per band from state
func GenerateContextualTags(state types.GameState) TagSet {
	tags := make(TagSet, 4)

	switch {
	case state.PlaythroughCount <= 0:
		tags[TagFirstPlaythrough] = struct{}{}
	case state.PlaythroughCount == 1:
		tags[TagSecondPlaythrough] = struct{}{}
	default:
		tags[TagThirdPlaythrough] = struct{}{}
	}

	if band := scoreBand(state.AmabilityScore.TotalAmability, TagHighAmability, TagLowAmability); band != "" {
		tags[band] = struct{}{}
	}
	if band := scoreBand(state.AmabilityScore.Efficiency, TagHighEfficiency, TagLowEfficiency); band != "" {
		tags[band] = struct{}{}
	}

	genuine, manipulative := state.AmabilityScore.GenuineChoices, state.AmabilityScore.ManipulativeChoices
	switch {
	case genuine > manipulative:
		tags[TagGenuinePath] = struct{}{}
	case manipulative > genuine:
		tags[TagManipulativePath] = struct{}{}
	}

	return tags
}

func scoreBand(value int, high, low string) string {
	switch {
	case value >= highBand:
		return high
	case value <= lowBand:
		return low
	}
	return ""
}
