package narrative

import (
	"errors"
	"fmt"
)

var (
	// ErrNodeNotFound indicates the requested node is not in the resident tree
	ErrNodeNotFound = errors.New("node not found")
	// ErrNodeGated indicates the node exists but its conditions failed; it matches ErrNodeNotFound
	ErrNodeGated = fmt.Errorf("node conditions not met: %w", ErrNodeNotFound)
	// ErrDeadEnd indicates an interactive node with no options that is not a terminal
	ErrDeadEnd = errors.New("node has no options and is not a terminal")
	// ErrNoTree indicates no tree is resident
	ErrNoTree = errors.New("no narrative tree loaded")
	// ErrLoadInProgress indicates a tree load is already running
	ErrLoadInProgress = errors.New("narrative load already in progress")
	// ErrTreeNotFound indicates a source has no tree for the id
	ErrTreeNotFound = errors.New("narrative tree not found")
	// ErrEmptyTree indicates a payload had no usable nodes
	ErrEmptyTree = errors.New("narrative tree has no valid nodes")
)

// LoadError reports a failed tree load
type LoadError struct {
	TreeID string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load narrative tree %q: %v", e.TreeID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// DecodeError reports a payload that is not a structurally valid tree
type DecodeError struct {
	TreeID string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid narrative tree %q: %v", e.TreeID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
