package narrative

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/user/sinergia/internal/types"
	"gopkg.in/yaml.v3"
)

// Format is a narrative payload encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks a format from a file extension; unknown extensions read as JSON
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// DecodeTree parses a payload into a typed tree. Shape problems are reported
// as *DecodeError; node-level filtering happens later when the tree is indexed.
func DecodeTree(treeID string, data []byte, format Format) (*types.NarrativeTree, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &DecodeError{TreeID: treeID, Err: errors.New("empty payload")}
	}

	var envelope struct {
		TreeID      string                `json:"treeId" yaml:"treeId"`
		CharacterID string                `json:"characterId" yaml:"characterId"`
		Nodes       *[]types.DialogueNode `json:"nodes" yaml:"nodes"`
	}

	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &envelope)
	default:
		err = json.Unmarshal(data, &envelope)
	}
	if err != nil {
		return nil, &DecodeError{TreeID: treeID, Err: err}
	}
	if envelope.Nodes == nil {
		return nil, &DecodeError{TreeID: treeID, Err: errors.New("missing nodes list")}
	}
	if len(*envelope.Nodes) == 0 {
		return nil, &DecodeError{TreeID: treeID, Err: ErrEmptyTree}
	}

	tree := &types.NarrativeTree{
		TreeID:      envelope.TreeID,
		CharacterID: envelope.CharacterID,
		Nodes:       *envelope.Nodes,
	}
	if tree.TreeID == "" {
		tree.TreeID = treeID
	}
	return tree, nil
}

// EncodeTree writes a tree in the given format
func EncodeTree(tree *types.NarrativeTree, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(tree)
	case FormatJSON:
		return json.MarshalIndent(tree, "", "  ")
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}
