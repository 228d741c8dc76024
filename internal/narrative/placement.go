package narrative

import (
	"github.com/cespare/xxhash/v2"
	"github.com/user/sinergia/internal/types"
)

// PlaceOptions orders a pair of options left then right. Explicit placements
// are honored; when both are unset or either is random the pair is swapped
// according to a hash of the node and option ids, so a given combination
// always lands the same way. Lists other than pairs are returned unchanged.
func PlaceOptions(nodeID string, options []types.DialogueOption) []types.DialogueOption {
	if len(options) != 2 {
		return options
	}
	first, second := options[0], options[1]

	randomize := first.Position == types.PlacementRandom ||
		second.Position == types.PlacementRandom ||
		(first.Position == types.PlacementUnset && second.Position == types.PlacementUnset)

	swap := false
	if randomize {
		swap = placementHash(nodeID, first.OptionID, second.OptionID)%2 == 0
	} else {
		swap = first.Position == types.PlacementRight || second.Position == types.PlacementLeft
	}

	if swap {
		return []types.DialogueOption{second, first}
	}
	return []types.DialogueOption{first, second}
}

func placementHash(nodeID, a, b string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(nodeID)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(a)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(b)
	return d.Sum64()
}
