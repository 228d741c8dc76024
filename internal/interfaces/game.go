package interfaces

import (
	"context"

	"github.com/user/sinergia/internal/types"
)

// TreeSource fetches narrative trees by id
type TreeSource interface {
	FetchTree(ctx context.Context, treeID string) (*types.NarrativeTree, error)
}

// SlotStore persists serialized save snapshots addressed by slot number
type SlotStore interface {
	PutSlot(ctx context.Context, slot int, data []byte) error
	GetSlot(ctx context.Context, slot int) ([]byte, bool, error)
	DeleteSlot(ctx context.Context, slot int) error
}

// RandomSource yields uniform floats in [0, 1)
type RandomSource interface {
	Float64() float64
}
