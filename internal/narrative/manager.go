package narrative

import (
	"context"
	"strings"
	"sync"

	"github.com/user/sinergia/internal/interfaces"
	"github.com/user/sinergia/internal/types"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// StartNodeID is the conventional entry node of a tree
const StartNodeID = "start"

// DefaultCharacterName is used for nodes that do not name a speaker
const DefaultCharacterName = "System"

// terminalMarker identifies ending nodes by id
const terminalMarker = "end"

// ResolvedNode is a per-call view of a node after gating, variation and option
// resolution. The resident tree is never modified.
type ResolvedNode struct {
	NodeID            string                   `json:"nodeId"`
	CharacterName     string                   `json:"characterName"`
	Text              string                   `json:"text"`
	VariantTags       []string                 `json:"variantTags,omitempty"`
	Options           []types.DialogueOption   `json:"options"`
	NextNodeIDs       []string                 `json:"nextNodeIds,omitempty"`
	Automatic         bool                     `json:"automatic"`
	Terminal          bool                     `json:"terminal"`
	OptionFallback    bool                     `json:"optionFallback,omitempty"`
	VariantFallback   bool                     `json:"variantFallback,omitempty"`
	ConscienceComment *types.ConscienceComment `json:"conscienceComment,omitempty"`
}

// Option returns the resolved option with the given id
func (n *ResolvedNode) Option(optionID string) (types.DialogueOption, bool) {
	for _, opt := range n.Options {
		if opt.OptionID == optionID {
			return opt, true
		}
	}
	return types.DialogueOption{}, false
}

// Tree is a validated, immutable narrative tree ready to be resolved against
type Tree struct {
	id          string
	characterID string
	nodes       map[string]types.DialogueNode
	order       []string
	rng         interfaces.RandomSource
	logger      *zap.Logger
}

// ID returns the tree id
func (t *Tree) ID() string {
	return t.id
}

// CharacterID returns the character the tree belongs to
func (t *Tree) CharacterID() string {
	return t.characterID
}

// Len returns the number of nodes
func (t *Tree) Len() int {
	return len(t.nodes)
}

// StartNodeID returns start when present, otherwise the first declared node
func (t *Tree) StartNodeID(start string) string {
	if start == "" {
		start = StartNodeID
	}
	if _, ok := t.nodes[start]; ok {
		return start
	}
	return t.order[0]
}

// Resolve produces the view of nodeID for state
func (t *Tree) Resolve(nodeID string, state types.GameState) (*ResolvedNode, error) {
	node, ok := t.nodes[nodeID]
	if !ok {
		t.logger.Warn("Node not found", zap.String("tree_id", t.id), zap.String("node_id", nodeID))
		return nil, ErrNodeNotFound
	}

	if !CheckConditions(node.Conditions, state) {
		t.logger.Debug("Node conditions not met", zap.String("node_id", nodeID))
		return nil, ErrNodeGated
	}

	resolved := &ResolvedNode{
		NodeID:            node.NodeID,
		CharacterName:     node.CharacterName,
		Text:              node.DialogueText,
		NextNodeIDs:       append([]string(nil), node.NextNodeIDs...),
		ConscienceComment: cloneComment(node.ConscienceComment),
	}
	if resolved.CharacterName == "" {
		t.logger.Warn("Node without characterName, using default", zap.String("node_id", nodeID))
		resolved.CharacterName = DefaultCharacterName
	}

	if choice, ok := SelectVariation(node.DialogueVariations, state, t.rng); ok {
		if choice.Fallback {
			t.logger.Warn("No variation qualified, using first", zap.String("node_id", nodeID))
		}
		resolved.Text = choice.Variation.Text
		resolved.VariantTags = append([]string(nil), choice.Variation.Tags...)
		resolved.VariantFallback = choice.Fallback
	}

	if node.IsAutomatic || (len(node.Options) == 0 && len(node.NextNodeIDs) > 0) {
		resolved.Automatic = true
		resolved.Options = append([]types.DialogueOption(nil), node.Options...)
		return resolved, nil
	}

	if len(node.Options) == 0 {
		if strings.Contains(node.NodeID, terminalMarker) {
			resolved.Terminal = true
			resolved.Options = []types.DialogueOption{}
			return resolved, nil
		}
		t.logger.Error("Interactive node has no options",
			zap.String("tree_id", t.id),
			zap.String("node_id", nodeID))
		return nil, ErrDeadEnd
	}

	valid := make([]types.DialogueOption, 0, len(node.Options))
	for _, opt := range node.Options {
		if !CheckConditions(opt.Conditions, state) {
			continue
		}
		if opt.OptionID == "" || opt.Text == "" || opt.NextNodeID == "" {
			t.logger.Warn("Dropping malformed option",
				zap.String("node_id", nodeID),
				zap.String("option_id", opt.OptionID))
			continue
		}
		valid = append(valid, opt)
	}
	if len(valid) == 0 {
		t.logger.Warn("All options filtered, using first as fallback", zap.String("node_id", nodeID))
		valid = []types.DialogueOption{node.Options[0]}
		resolved.OptionFallback = true
	}

	resolved.Options = PlaceOptions(node.NodeID, valid)
	return resolved, nil
}

// Manager owns the single resident narrative tree
type Manager struct {
	source    interfaces.TreeSource
	logger    *zap.Logger
	rng       *syncRandom
	startNode string

	loading atomic.Bool

	mu   sync.RWMutex
	tree *Tree
}

// NewManager creates an empty manager reading trees from source
func NewManager(source interfaces.TreeSource, rng interfaces.RandomSource, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		source:    source,
		logger:    logger,
		rng:       &syncRandom{src: rng},
		startNode: StartNodeID,
	}
}

// SetStartNode changes the preferred entry node id
func (m *Manager) SetStartNode(nodeID string) {
	if nodeID != "" {
		m.startNode = nodeID
	}
}

// Prepare fetches and validates treeID without touching the resident tree
func (m *Manager) Prepare(ctx context.Context, treeID string) (*Tree, error) {
	if !m.loading.CompareAndSwap(false, true) {
		return nil, ErrLoadInProgress
	}
	defer m.loading.Store(false)

	tree, err := m.source.FetchTree(ctx, treeID)
	if err != nil {
		m.logger.Error("Failed to fetch narrative tree", zap.String("tree_id", treeID), zap.Error(err))
		return nil, &LoadError{TreeID: treeID, Err: err}
	}
	if tree == nil {
		return nil, &LoadError{TreeID: treeID, Err: &DecodeError{TreeID: treeID, Err: ErrEmptyTree}}
	}

	nodes := make(map[string]types.DialogueNode, len(tree.Nodes))
	order := make([]string, 0, len(tree.Nodes))
	for i, node := range tree.Nodes {
		if strings.TrimSpace(node.NodeID) == "" {
			m.logger.Warn("Dropping node without id",
				zap.String("tree_id", treeID),
				zap.Int("index", i))
			continue
		}
		if _, dup := nodes[node.NodeID]; dup {
			m.logger.Warn("Dropping duplicate node",
				zap.String("tree_id", treeID),
				zap.String("node_id", node.NodeID))
			continue
		}
		nodes[node.NodeID] = node
		order = append(order, node.NodeID)
	}
	if len(nodes) == 0 {
		return nil, &LoadError{TreeID: treeID, Err: ErrEmptyTree}
	}

	return &Tree{
		id:          treeID,
		characterID: tree.CharacterID,
		nodes:       nodes,
		order:       order,
		rng:         m.rng,
		logger:      m.logger,
	}, nil
}

// Install makes tree the resident tree
func (m *Manager) Install(tree *Tree) {
	if tree == nil {
		return
	}
	m.mu.Lock()
	m.tree = tree
	m.mu.Unlock()

	m.logger.Info("Loaded narrative tree",
		zap.String("tree_id", tree.id),
		zap.String("character_id", tree.characterID),
		zap.Int("nodes", len(tree.nodes)))
}

// Load fetches treeID and swaps it in only once it has been fully validated.
// On failure the previously resident tree stays in place.
func (m *Manager) Load(ctx context.Context, treeID string) error {
	tree, err := m.Prepare(ctx, treeID)
	if err != nil {
		return err
	}
	m.Install(tree)
	return nil
}

// Loading reports whether a load is in flight
func (m *Manager) Loading() bool {
	return m.loading.Load()
}

// Loaded reports whether a tree is resident
func (m *Manager) Loaded() bool {
	return m.resident() != nil
}

// TreeID returns the resident tree id, or "" when empty
func (m *Manager) TreeID() string {
	if t := m.resident(); t != nil {
		return t.id
	}
	return ""
}

// Clear drops the resident tree
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tree = nil
}

// StartNodeID returns the preferred start node of the resident tree
func (m *Manager) StartNodeID() (string, error) {
	t := m.resident()
	if t == nil {
		return "", ErrNoTree
	}
	return t.StartNodeID(m.startNode), nil
}

// PreferredStart returns the configured entry node id
func (m *Manager) PreferredStart() string {
	return m.startNode
}

// Resolve produces the view of nodeID in the resident tree for state
func (m *Manager) Resolve(nodeID string, state types.GameState) (*ResolvedNode, error) {
	t := m.resident()
	if t == nil {
		return nil, ErrNoTree
	}
	return t.Resolve(nodeID, state)
}

func (m *Manager) resident() *Tree {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree
}

func cloneComment(c *types.ConscienceComment) *types.ConscienceComment {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}

// syncRandom serializes access to a RandomSource that is not safe for concurrent use
type syncRandom struct {
	mu  sync.Mutex
	src interfaces.RandomSource
}

func (r *syncRandom) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.src == nil {
		return 0
	}
	return r.src.Float64()
}
