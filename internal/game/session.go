package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/user/sinergia/internal/narrative"
	"github.com/user/sinergia/internal/types"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var (
	// ErrNotPlaying indicates an action that needs an active playthrough
	ErrNotPlaying = errors.New("game is not in progress")
	// ErrOptionNotFound indicates the option is not offered by the current node
	ErrOptionNotFound = errors.New("option not found on current node")
	// ErrSessionClosed indicates the session has been closed
	ErrSessionClosed = errors.New("session closed")
	// ErrEmptySequence indicates there are no characters to play
	ErrEmptySequence = errors.New("character sequence is empty")
	// ErrLoadInProgress indicates a tree load or character transition is running
	ErrLoadInProgress = narrative.ErrLoadInProgress
)

// SessionConfig holds the tunables of a session
type SessionConfig struct {
	CharacterSequence []string
	TreeSuffix        string
	AutoAdvance       time.Duration
	TransitionDelay   time.Duration
	TransitionSteps   int
}

// DefaultSessionConfig returns the standard timings and roster order
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		CharacterSequence: append([]string(nil), DefaultCharacterSequence...),
		TreeSuffix:        DefaultTreeSuffix,
		AutoAdvance:       2000 * time.Millisecond,
		TransitionDelay:   1500 * time.Millisecond,
		TransitionSteps:   10,
	}
}

// Session is one playthrough context. Actions are serialized; views can be
// read at any time, including while a tree is loading.
type Session struct {
	cfg       SessionConfig
	tree      *narrative.Manager
	saves     *SaveManager
	roster    Roster
	logger    *zap.Logger
	scheduler *Scheduler

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	isLoading       atomic.Bool
	loadingProgress atomic.Int32

	actionMu sync.Mutex

	stateMu     sync.RWMutex
	state       types.GameState
	currentNode *narrative.ResolvedNode
	ending      *Ending
	conscience  string
	lastChoice  string

	obsMu     sync.RWMutex
	observers map[int]Observer
	nextObsID int
}

// NewSession creates a session in the menu state
func NewSession(tree *narrative.Manager, saves *SaveManager, roster Roster, cfg SessionConfig, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.CharacterSequence) == 0 {
		cfg.CharacterSequence = append([]string(nil), DefaultCharacterSequence...)
	}
	if cfg.TreeSuffix == "" {
		cfg.TreeSuffix = DefaultTreeSuffix
	}
	if cfg.TransitionSteps <= 0 {
		cfg.TransitionSteps = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:       cfg,
		tree:      tree,
		saves:     saves,
		roster:    roster,
		logger:    logger,
		scheduler: NewScheduler(logger),
		ctx:       ctx,
		cancel:    cancel,
		observers: make(map[int]Observer),
	}
	s.state = s.freshState(0, nil)
	return s
}

func (s *Session) freshState(playthroughs int, met []string) types.GameState {
	return types.GameState{
		CurrentState:      types.StatusMenu,
		PlaythroughCount:  playthroughs,
		ChoicesHistory:    []string{},
		AmabilityScore:    InitialScore(),
		UsedTags:          []string{},
		CharactersMet:     append([]string{}, met...),
		CharacterSequence: append([]string(nil), s.cfg.CharacterSequence...),
	}
}

// StartGame resets the playthrough and loads the first character. On failure
// the session is left as it was.
func (s *Session) StartGame(ctx context.Context) error {
	if err := s.begin(true); err != nil {
		return err
	}
	defer s.actionMu.Unlock()

	next := s.freshState(s.state.PlaythroughCount, s.state.CharactersMet)
	if len(next.CharacterSequence) == 0 {
		return ErrEmptySequence
	}

	s.startLoading()
	defer s.finishLoading()

	tree, node, err := s.prepareCharacter(ctx, &next, 0, "")
	if err != nil {
		return err
	}
	next.CurrentState = types.StatusPlaying

	s.finishLoading()
	s.scheduler.Cancel()
	s.tree.Install(tree)
	s.commit(next, node, nil)

	s.logger.Info("Game started",
		zap.String("character", next.CurrentCharacter),
		zap.Int("playthrough", next.PlaythroughCount))
	s.notify()
	s.scheduleFor(node)
	return nil
}

// MakeChoice records optionID and applies impact to the score
func (s *Session) MakeChoice(optionID string, impact types.AmabilityImpact) error {
	if err := s.begin(false); err != nil {
		return err
	}
	defer s.actionMu.Unlock()

	if s.state.CurrentState != types.StatusPlaying {
		return ErrNotPlaying
	}
	s.makeChoiceLocked(optionID, impact)
	s.notify()
	return nil
}

// AdvanceTo resolves nodeID and makes it the current node
func (s *Session) AdvanceTo(nodeID string) error {
	if err := s.begin(false); err != nil {
		return err
	}
	defer s.actionMu.Unlock()

	if s.state.CurrentState != types.StatusPlaying {
		return ErrNotPlaying
	}
	if err := s.advanceLocked(nodeID); err != nil {
		return err
	}
	s.notify()
	return nil
}

// Choose applies the impact of an option on the current node and follows it
func (s *Session) Choose(ctx context.Context, optionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.begin(false); err != nil {
		return err
	}
	defer s.actionMu.Unlock()

	if s.state.CurrentState != types.StatusPlaying || s.currentNode == nil {
		return ErrNotPlaying
	}
	opt, ok := s.currentNode.Option(optionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrOptionNotFound, optionID)
	}

	s.makeChoiceLocked(opt.OptionID, opt.AmabilityImpact)
	if err := s.advanceLocked(opt.NextNodeID); err != nil {
		s.notify()
		return err
	}
	s.notify()
	return nil
}

// CompleteCharacter moves on from the current character: the next tree is
// loaded behind a progress transition, or the ending is reached.
func (s *Session) CompleteCharacter(ctx context.Context) error {
	if err := s.begin(true); err != nil {
		return err
	}
	defer s.actionMu.Unlock()
	return s.completeLocked(ctx)
}

func (s *Session) completeLocked(ctx context.Context) error {
	if s.state.CurrentState != types.StatusPlaying {
		return ErrNotPlaying
	}
	s.scheduler.Cancel()

	index := s.state.CurrentCharacterIndex
	if _, ok := NextCharacter(index, s.state.CharacterSequence); !ok {
		next := s.state.Clone()
		next.CurrentState = types.StatusEnding
		next.CurrentNodeID = ""
		ending := ResolveEnding(next.AmabilityScore)

		s.tree.Clear()
		s.commit(next, nil, &ending)
		s.logger.Info("Game ended",
			zap.String("ending", string(ending.Type)),
			zap.Int("amability", next.AmabilityScore.TotalAmability),
			zap.Int("efficiency", next.AmabilityScore.Efficiency))
		s.notify()
		return nil
	}

	s.startLoading()
	defer s.finishLoading()
	if err := s.transition(ctx); err != nil {
		return err
	}

	next := s.state.Clone()
	tree, node, err := s.prepareCharacter(ctx, &next, index+1, "")
	if err != nil {
		return err
	}

	s.finishLoading()
	s.tree.Install(tree)
	s.commit(next, node, nil)
	s.logger.Info("Character transition complete",
		zap.String("character", next.CurrentCharacter),
		zap.Int("index", next.CurrentCharacterIndex))
	s.notify()
	s.scheduleFor(node)
	return nil
}

// SaveGame writes the current session into slot
func (s *Session) SaveGame(ctx context.Context, slot int) error {
	if err := s.begin(false); err != nil {
		return err
	}
	defer s.actionMu.Unlock()

	return s.saves.Save(ctx, slot, s.snapshot())
}

// LoadGame restores slot. The snapshot and its tree are fully validated
// before any live state changes.
func (s *Session) LoadGame(ctx context.Context, slot int) error {
	if err := s.begin(true); err != nil {
		return err
	}
	defer s.actionMu.Unlock()

	snapshot, err := s.saves.Load(ctx, slot)
	if err != nil {
		return err
	}

	next, err := s.restoreState(snapshot)
	if err != nil {
		return err
	}

	var (
		tree   *narrative.Tree
		node   *narrative.ResolvedNode
		ending *Ending
	)
	switch next.CurrentState {
	case types.StatusPlaying:
		s.startLoading()
		defer s.finishLoading()

		treeID := ""
		if snapshot.CurrentTreeID != nil {
			treeID = *snapshot.CurrentTreeID
		}
		nodeID := ""
		if snapshot.CurrentNodeID != nil {
			nodeID = *snapshot.CurrentNodeID
		}
		tree, node, err = s.prepareTree(ctx, &next, treeID, nodeID)
		if err != nil {
			return err
		}
	case types.StatusEnding:
		e := ResolveEnding(next.AmabilityScore)
		ending = &e
	}

	s.finishLoading()
	s.scheduler.Cancel()
	if tree != nil {
		s.tree.Install(tree)
	} else {
		s.tree.Clear()
	}
	s.commit(next, node, ending)

	s.logger.Info("Game loaded",
		zap.Int("slot", slot),
		zap.String("state", string(next.CurrentState)),
		zap.String("character", next.CurrentCharacter))
	s.notify()
	s.scheduleFor(node)
	return nil
}

// DeleteSave clears slot
func (s *Session) DeleteSave(ctx context.Context, slot int) error {
	return s.saves.Delete(ctx, slot)
}

// ListSaves returns previews of every slot
func (s *Session) ListSaves(ctx context.Context) []SlotInfo {
	return s.saves.List(ctx)
}

// ResetGame returns to the menu, counts a finished playthrough and restores
// the default score and history. Characters met are kept.
func (s *Session) ResetGame() error {
	if err := s.begin(false); err != nil {
		return err
	}
	defer s.actionMu.Unlock()

	s.scheduler.Cancel()
	s.tree.Clear()
	next := s.freshState(s.state.PlaythroughCount+1, s.state.CharactersMet)
	s.commit(next, nil, nil)

	s.logger.Info("Game reset", zap.Int("playthrough", next.PlaythroughCount))
	s.notify()
	return nil
}

// View returns the current observable state
func (s *Session) View() StateView {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	state := s.state.Clone()
	view := StateView{
		CurrentState:          state.CurrentState,
		AmabilityScore:        state.AmabilityScore,
		IsLoading:             s.isLoading.Load(),
		LoadingProgress:       int(s.loadingProgress.Load()),
		CharactersMet:         state.CharactersMet,
		PlaythroughCount:      state.PlaythroughCount,
		CurrentCharacter:      state.CurrentCharacter,
		CurrentTreeID:         s.tree.TreeID(),
		ChoicesHistory:        state.ChoicesHistory,
		CurrentCharacterIndex: state.CurrentCharacterIndex,
		CharacterSequence:     state.CharacterSequence,
		ConscienceComment:     s.conscience,
		LastChoice:            s.lastChoice,
	}
	if s.currentNode != nil {
		node := *s.currentNode
		view.CurrentNode = &node
		view.Speaker = node.CharacterName
	}
	if s.ending != nil {
		ending := *s.ending
		view.Ending = &ending
	}
	if c, ok := s.roster[state.CurrentCharacter]; ok {
		view.Character = &c
	}
	return view
}

// State returns a copy of the game state
func (s *Session) State() types.GameState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state.Clone()
}

// Subscribe registers fn to be called after every state change. Observers
// run on the acting goroutine and must not call session actions.
func (s *Session) Subscribe(fn Observer) func() {
	s.obsMu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// Close cancels pending timers and in-flight transitions
func (s *Session) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.scheduler.Stop()
	s.cancel()
}

// begin acquires the action lock. Loading actions are rejected outright
// while another load is running.
func (s *Session) begin(loads bool) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if loads && s.isLoading.Load() {
		return ErrLoadInProgress
	}
	s.actionMu.Lock()
	if s.closed.Load() {
		s.actionMu.Unlock()
		return ErrSessionClosed
	}
	return nil
}

func (s *Session) makeChoiceLocked(optionID string, impact types.AmabilityImpact) {
	kind := ClassifyImpact(impact)

	s.stateMu.Lock()
	s.state.AmabilityScore = ApplyImpact(s.state.AmabilityScore, impact)
	s.state.ChoicesHistory = append(s.state.ChoicesHistory, optionID)
	s.lastChoice = optionID
	s.conscience = ""
	if s.currentNode != nil && s.currentNode.ConscienceComment != nil {
		switch kind {
		case ChoiceGenuine:
			s.conscience = s.currentNode.ConscienceComment.AfterGenuine
		case ChoiceManipulative:
			s.conscience = s.currentNode.ConscienceComment.AfterManipulative
		}
	}
	score := s.state.AmabilityScore
	s.stateMu.Unlock()

	s.logger.Debug("Choice recorded",
		zap.String("option_id", optionID),
		zap.String("kind", kind.String()),
		zap.Int("amability", score.TotalAmability))
}

func (s *Session) advanceLocked(nodeID string) error {
	s.scheduler.Cancel()

	node, err := s.tree.Resolve(nodeID, s.State())
	if err != nil {
		s.logger.Warn("Failed to advance", zap.String("node_id", nodeID), zap.Error(err))
		return err
	}

	s.stateMu.Lock()
	s.currentNode = node
	s.state.CurrentNodeID = node.NodeID
	s.state.UsedTags = mergeTags(s.state.UsedTags, node.VariantTags)
	s.stateMu.Unlock()

	s.scheduleFor(node)
	return nil
}

// prepareCharacter points state at the character at index and resolves the
// entry node of its tree. Nothing live is touched.
func (s *Session) prepareCharacter(ctx context.Context, state *types.GameState, index int, nodeID string) (*narrative.Tree, *narrative.ResolvedNode, error) {
	if index < 0 || index >= len(state.CharacterSequence) {
		return nil, nil, fmt.Errorf("character index %d outside sequence of %d", index, len(state.CharacterSequence))
	}
	state.CurrentCharacterIndex = index
	state.CurrentCharacter = state.CharacterSequence[index]
	state.CharactersMet = mergeTags(state.CharactersMet, []string{state.CurrentCharacter})
	return s.prepareTree(ctx, state, "", nodeID)
}

func (s *Session) prepareTree(ctx context.Context, state *types.GameState, treeID, nodeID string) (*narrative.Tree, *narrative.ResolvedNode, error) {
	if treeID == "" {
		treeID = s.roster.TreeFor(state.CurrentCharacter, s.cfg.TreeSuffix)
	}
	tree, err := s.tree.Prepare(ctx, treeID)
	if err != nil {
		return nil, nil, err
	}
	if nodeID == "" {
		nodeID = tree.StartNodeID(s.tree.PreferredStart())
	}
	state.CurrentNodeID = nodeID

	node, err := tree.Resolve(nodeID, *state)
	if err != nil {
		s.logger.Error("Failed to resolve entry node",
			zap.String("tree_id", treeID),
			zap.String("node_id", nodeID),
			zap.Error(err))
		return nil, nil, fmt.Errorf("failed to resolve node %q in %q: %w", nodeID, treeID, err)
	}
	state.UsedTags = mergeTags(state.UsedTags, node.VariantTags)
	return tree, node, nil
}

// transition runs the progress delay between characters
func (s *Session) transition(ctx context.Context) error {
	s.notify()

	steps := s.cfg.TransitionSteps
	interval := s.cfg.TransitionDelay / time.Duration(steps)
	for i := 1; i <= steps; i++ {
		if interval > 0 {
			timer := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-s.ctx.Done():
				timer.Stop()
				return ErrSessionClosed
			case <-timer.C:
			}
		}
		s.loadingProgress.Store(int32(i * 90 / steps))
		s.notify()
	}
	return nil
}

func (s *Session) startLoading() {
	s.loadingProgress.Store(0)
	s.isLoading.Store(true)
}

func (s *Session) finishLoading() {
	s.loadingProgress.Store(100)
	s.isLoading.Store(false)
}

func (s *Session) commit(state types.GameState, node *narrative.ResolvedNode, ending *Ending) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state = state
	s.currentNode = node
	s.ending = ending
	s.conscience = ""
	s.lastChoice = ""
}

// scheduleFor arms auto-advance for automatic nodes and character
// completion for terminal nodes
func (s *Session) scheduleFor(node *narrative.ResolvedNode) {
	if node == nil || s.cfg.AutoAdvance <= 0 {
		return
	}

	var err error
	switch {
	case node.Automatic && len(node.NextNodeIDs) > 0:
		target := node.NextNodeIDs[0]
		_, err = s.scheduler.Schedule(s.cfg.AutoAdvance, func(gen uint64) {
			s.fireAdvance(gen, target)
		})
	case node.Terminal:
		_, err = s.scheduler.Schedule(s.cfg.AutoAdvance, func(gen uint64) {
			s.fireComplete(gen)
		})
	}
	if err != nil {
		s.logger.Debug("Auto-advance not scheduled", zap.String("node_id", node.NodeID), zap.Error(err))
	}
}

func (s *Session) fireAdvance(gen uint64, target string) {
	s.actionMu.Lock()
	defer s.actionMu.Unlock()
	if !s.scheduler.Current(gen) || s.state.CurrentState != types.StatusPlaying {
		return
	}
	if err := s.advanceLocked(target); err != nil {
		return
	}
	s.notify()
}

func (s *Session) fireComplete(gen uint64) {
	s.actionMu.Lock()
	defer s.actionMu.Unlock()
	if !s.scheduler.Current(gen) {
		return
	}
	if err := s.completeLocked(s.ctx); err != nil && !errors.Is(err, ErrSessionClosed) {
		s.logger.Error("Automatic character completion failed", zap.Error(err))
	}
}

func (s *Session) snapshot() types.SaveSnapshot {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	state := s.state.Clone()
	snap := types.SaveSnapshot{
		GameState: types.SavedGameState{
			CurrentState:          state.CurrentState,
			PlaythroughCount:      state.PlaythroughCount,
			ChoicesHistory:        state.ChoicesHistory,
			CurrentCharacterIndex: state.CurrentCharacterIndex,
			CharacterSequence:     state.CharacterSequence,
			CharactersMet:         state.CharactersMet,
			UsedTags:              state.UsedTags,
		},
		AmabilityScore: state.AmabilityScore,
	}
	if state.CurrentCharacter != "" {
		c := state.CurrentCharacter
		snap.GameState.CurrentCharacter = &c
	}
	if s.currentNode != nil {
		id := s.currentNode.NodeID
		snap.CurrentNodeID = &id
	}
	if treeID := s.tree.TreeID(); treeID != "" {
		snap.CurrentTreeID = &treeID
	}
	return snap
}

// restoreState turns a validated snapshot into a game state
func (s *Session) restoreState(snapshot types.SaveSnapshot) (types.GameState, error) {
	saved := snapshot.GameState
	sequence := saved.CharacterSequence
	if len(sequence) == 0 {
		sequence = append([]string(nil), s.cfg.CharacterSequence...)
	}
	if saved.CurrentState != types.StatusMenu && saved.CurrentCharacterIndex >= len(sequence) {
		return types.GameState{}, &ValidationError{Field: "gameState.currentCharacterIndex", Reason: "is outside the character sequence"}
	}

	state := types.GameState{
		CurrentState:          saved.CurrentState,
		PlaythroughCount:      saved.PlaythroughCount,
		ChoicesHistory:        saved.ChoicesHistory,
		AmabilityScore:        snapshot.AmabilityScore,
		UsedTags:              saved.UsedTags,
		CharactersMet:         saved.CharactersMet,
		CurrentCharacterIndex: saved.CurrentCharacterIndex,
		CharacterSequence:     sequence,
	}
	if saved.CurrentCharacter != nil {
		state.CurrentCharacter = *saved.CurrentCharacter
	} else if saved.CurrentState == types.StatusPlaying {
		state.CurrentCharacter = sequence[saved.CurrentCharacterIndex]
	}
	// The composite is derived; a stale stored value is recomputed.
	state.AmabilityScore.TotalAmability = CalculateTotal(state.AmabilityScore)
	return state, nil
}

func (s *Session) notify() {
	s.obsMu.RLock()
	if len(s.observers) == 0 {
		s.obsMu.RUnlock()
		return
	}
	observers := make([]Observer, 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.obsMu.RUnlock()

	view := s.View()
	for _, fn := range observers {
		fn(view)
	}
}

func mergeTags(have, add []string) []string {
	out := append([]string{}, have...)
	for _, tag := range add {
		found := false
		for _, existing := range out {
			if existing == tag {
				found = true
				break
			}
		}
		if !found {
			out = append(out, tag)
		}
	}
	return out
}
