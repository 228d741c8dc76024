package narrative

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/user/sinergia/internal/types"
)

func pair(a, b types.Placement) []types.DialogueOption {
	return []types.DialogueOption{
		{OptionID: "a", Text: "A", NextNodeID: "x", Position: a},
		{OptionID: "b", Text: "B", NextNodeID: "y", Position: b},
	}
}

func ids(options []types.DialogueOption) []string {
	out := make([]string, len(options))
	for i, o := range options {
		out[i] = o.OptionID
	}
	return out
}

func TestPlaceOptionsExplicit(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, ids(PlaceOptions("n", pair(types.PlacementLeft, types.PlacementRight))))
	assert.Equal(t, []string{"b", "a"}, ids(PlaceOptions("n", pair(types.PlacementRight, types.PlacementLeft))))
	assert.Equal(t, []string{"b", "a"}, ids(PlaceOptions("n", pair(types.PlacementRight, types.PlacementUnset))))
	assert.Equal(t, []string{"b", "a"}, ids(PlaceOptions("n", pair(types.PlacementUnset, types.PlacementLeft))))
	assert.Equal(t, []string{"a", "b"}, ids(PlaceOptions("n", pair(types.PlacementLeft, types.PlacementUnset))))
}

func TestPlaceOptionsRandomIsStable(t *testing.T) {
	options := pair(types.PlacementRandom, types.PlacementRandom)
	first := ids(PlaceOptions("intro", options))
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, ids(PlaceOptions("intro", options)))
	}

	// The input slice is not reordered in place
	assert.Equal(t, []string{"a", "b"}, ids(options))
}

func TestPlaceOptionsRandomVariesAcrossNodes(t *testing.T) {
	options := pair(types.PlacementRandom, types.PlacementUnset)
	seen := map[string]bool{}
	for i := 0; i < 64; i++ {
		order := ids(PlaceOptions(fmt.Sprintf("node_%d", i), options))
		seen[order[0]] = true
	}
	assert.True(t, seen["a"], "some node keeps the declared order")
	assert.True(t, seen["b"], "some node swaps the pair")
}

func TestPlaceOptionsNonPairUnchanged(t *testing.T) {
	single := []types.DialogueOption{{OptionID: "only", Position: types.PlacementRight}}
	assert.Equal(t, single, PlaceOptions("n", single))

	three := []types.DialogueOption{{OptionID: "1"}, {OptionID: "2"}, {OptionID: "3"}}
	assert.Equal(t, []string{"1", "2", "3"}, ids(PlaceOptions("n", three)))
}
