package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/user/sinergia/internal/interfaces"
	"github.com/user/sinergia/internal/types"
	"go.uber.org/zap"
)

// SaveVersion is the snapshot format written by this build
const SaveVersion = "1.0.0"

// DefaultMaxSlots is the number of save slots
const DefaultMaxSlots = 5

var (
	// ErrInvalidSlot indicates a slot number outside [0, maxSlots)
	ErrInvalidSlot = errors.New("invalid save slot")
	// ErrSlotEmpty indicates nothing is stored in the slot
	ErrSlotEmpty = errors.New("save slot is empty")
)

// ValidationError reports why a stored snapshot was rejected
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid save data: %s %s", e.Field, e.Reason)
}

// SaveManager reads and writes snapshots through a SlotStore
type SaveManager struct {
	store    interfaces.SlotStore
	maxSlots int
	logger   *zap.Logger
	now      func() time.Time
}

// NewSaveManager creates a save manager; maxSlots <= 0 uses DefaultMaxSlots
func NewSaveManager(store interfaces.SlotStore, maxSlots int, logger *zap.Logger) *SaveManager {
	if maxSlots <= 0 {
		maxSlots = DefaultMaxSlots
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SaveManager{
		store:    store,
		maxSlots: maxSlots,
		logger:   logger,
		now:      time.Now,
	}
}

// MaxSlots returns the number of addressable slots
func (sm *SaveManager) MaxSlots() int {
	return sm.maxSlots
}

func (sm *SaveManager) checkSlot(slot int) error {
	if slot < 0 || slot >= sm.maxSlots {
		return fmt.Errorf("%w: %d (must be between 0 and %d)", ErrInvalidSlot, slot, sm.maxSlots-1)
	}
	return nil
}

// Save stamps and writes snapshot into slot
func (sm *SaveManager) Save(ctx context.Context, slot int, snapshot types.SaveSnapshot) error {
	if err := sm.checkSlot(slot); err != nil {
		return err
	}

	snapshot.Timestamp = sm.now().UnixMilli()
	snapshot.Version = SaveVersion

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal save: %w", err)
	}
	if err := sm.store.PutSlot(ctx, slot, data); err != nil {
		return fmt.Errorf("failed to write save slot %d: %w", slot, err)
	}

	sm.logger.Info("Game saved", zap.Int("slot", slot), zap.Int("bytes", len(data)))
	return nil
}

// Load reads and validates the snapshot in slot
func (sm *SaveManager) Load(ctx context.Context, slot int) (types.SaveSnapshot, error) {
	if err := sm.checkSlot(slot); err != nil {
		return types.SaveSnapshot{}, err
	}

	data, ok, err := sm.store.GetSlot(ctx, slot)
	if err != nil {
		return types.SaveSnapshot{}, fmt.Errorf("failed to read save slot %d: %w", slot, err)
	}
	if !ok {
		return types.SaveSnapshot{}, ErrSlotEmpty
	}

	snapshot, err := ParseSnapshot(data)
	if err != nil {
		sm.logger.Warn("Rejected save data", zap.Int("slot", slot), zap.Error(err))
		return types.SaveSnapshot{}, err
	}
	return snapshot, nil
}

// Delete clears slot
func (sm *SaveManager) Delete(ctx context.Context, slot int) error {
	if err := sm.checkSlot(slot); err != nil {
		return err
	}
	if err := sm.store.DeleteSlot(ctx, slot); err != nil {
		return fmt.Errorf("failed to delete save slot %d: %w", slot, err)
	}
	return nil
}

// List returns a preview of every slot; unreadable slots show as empty
func (sm *SaveManager) List(ctx context.Context) []SlotInfo {
	infos := make([]SlotInfo, 0, sm.maxSlots)
	for slot := 0; slot < sm.maxSlots; slot++ {
		snapshot, err := sm.Load(ctx, slot)
		if err != nil {
			if !errors.Is(err, ErrSlotEmpty) {
				sm.logger.Warn("Unreadable save slot", zap.Int("slot", slot), zap.Error(err))
			}
			infos = append(infos, SlotInfo{Slot: slot})
			continue
		}
		infos = append(infos, previewOf(slot, snapshot))
	}
	return infos
}

func previewOf(slot int, snapshot types.SaveSnapshot) SlotInfo {
	met := len(snapshot.GameState.CharactersMet)
	total := len(snapshot.GameState.CharacterSequence)
	return SlotInfo{
		Slot:           slot,
		Exists:         true,
		SavedAt:        snapshot.SavedAt(),
		AmabilityScore: snapshot.AmabilityScore.TotalAmability,
		CharactersMet:  met,
		Total:          total,
		Progress:       fmt.Sprintf("%d/%d characters", met, total),
	}
}

type rawSnapshot struct {
	Timestamp      *int64        `json:"timestamp"`
	Version        *string       `json:"version"`
	GameState      *rawGameState `json:"gameState"`
	AmabilityScore *rawScore     `json:"amabilityScore"`
	CurrentNodeID  *string       `json:"currentNodeId"`
	CurrentTreeID  *string       `json:"currentTreeId"`
}

type rawGameState struct {
	CurrentState          *string   `json:"currentState"`
	PlaythroughCount      *int      `json:"playthroughCount"`
	ChoicesHistory        *[]string `json:"choicesHistory"`
	CurrentCharacter      *string   `json:"currentCharacter"`
	CurrentCharacterIndex *int      `json:"currentCharacterIndex"`
	CharacterSequence     []string  `json:"characterSequence"`
	CharactersMet         []string  `json:"charactersMet"`
	UsedTags              []string  `json:"usedTags"`
}

type rawScore struct {
	TotalAmability      *int `json:"totalAmability"`
	Empathy             *int `json:"empathy"`
	Respect             *int `json:"respect"`
	Trust               *int `json:"trust"`
	Efficiency          *int `json:"efficiency"`
	GenuineChoices      int  `json:"genuineChoices"`
	ManipulativeChoices int  `json:"manipulativeChoices"`
	CharactersHelped    int  `json:"charactersHelped"`
}

// ParseSnapshot decodes data and checks field presence, types and ranges.
// Either the whole snapshot is valid or an error is returned.
func ParseSnapshot(data []byte) (types.SaveSnapshot, error) {
	var raw rawSnapshot
	if err := json.Unmarshal(data, &raw); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return types.SaveSnapshot{}, &ValidationError{Field: typeErr.Field, Reason: "has the wrong type"}
		}
		return types.SaveSnapshot{}, &ValidationError{Field: "payload", Reason: "is not valid JSON"}
	}

	if raw.Timestamp == nil {
		return types.SaveSnapshot{}, missing("timestamp")
	}
	if raw.Version != nil && !strings.HasPrefix(*raw.Version, "1.") {
		return types.SaveSnapshot{}, &ValidationError{Field: "version", Reason: fmt.Sprintf("%q is not supported", *raw.Version)}
	}
	if raw.GameState == nil {
		return types.SaveSnapshot{}, missing("gameState")
	}
	if raw.AmabilityScore == nil {
		return types.SaveSnapshot{}, missing("amabilityScore")
	}

	gs := raw.GameState
	if gs.CurrentState == nil || !types.GameStatus(*gs.CurrentState).Valid() {
		return types.SaveSnapshot{}, &ValidationError{Field: "gameState.currentState", Reason: "must be menu, playing or ending"}
	}
	if gs.PlaythroughCount == nil {
		return types.SaveSnapshot{}, missing("gameState.playthroughCount")
	}
	if *gs.PlaythroughCount < 0 {
		return types.SaveSnapshot{}, &ValidationError{Field: "gameState.playthroughCount", Reason: "must not be negative"}
	}
	if gs.ChoicesHistory == nil {
		return types.SaveSnapshot{}, missing("gameState.choicesHistory")
	}
	if gs.CurrentCharacterIndex == nil {
		return types.SaveSnapshot{}, missing("gameState.currentCharacterIndex")
	}
	if idx := *gs.CurrentCharacterIndex; idx < 0 || (len(gs.CharacterSequence) > 0 && idx >= len(gs.CharacterSequence)) {
		return types.SaveSnapshot{}, &ValidationError{Field: "gameState.currentCharacterIndex", Reason: "is outside the character sequence"}
	}

	sc := raw.AmabilityScore
	axes := []struct {
		name  string
		value *int
	}{
		{"amabilityScore.totalAmability", sc.TotalAmability},
		{"amabilityScore.empathy", sc.Empathy},
		{"amabilityScore.respect", sc.Respect},
		{"amabilityScore.trust", sc.Trust},
		{"amabilityScore.efficiency", sc.Efficiency},
	}
	for _, axis := range axes {
		if axis.value == nil {
			return types.SaveSnapshot{}, missing(axis.name)
		}
		if *axis.value < scoreMin || *axis.value > scoreMax {
			return types.SaveSnapshot{}, &ValidationError{Field: axis.name, Reason: "must be between 0 and 100"}
		}
	}
	if sc.GenuineChoices < 0 || sc.ManipulativeChoices < 0 || sc.CharactersHelped < 0 {
		return types.SaveSnapshot{}, &ValidationError{Field: "amabilityScore", Reason: "counters must not be negative"}
	}

	version := SaveVersion
	if raw.Version != nil {
		version = *raw.Version
	}

	return types.SaveSnapshot{
		Timestamp: *raw.Timestamp,
		Version:   version,
		GameState: types.SavedGameState{
			CurrentState:          types.GameStatus(*gs.CurrentState),
			PlaythroughCount:      *gs.PlaythroughCount,
			ChoicesHistory:        nonNil(*gs.ChoicesHistory),
			CurrentCharacter:      gs.CurrentCharacter,
			CurrentCharacterIndex: *gs.CurrentCharacterIndex,
			CharacterSequence:     nonNil(gs.CharacterSequence),
			CharactersMet:         nonNil(gs.CharactersMet),
			UsedTags:              nonNil(gs.UsedTags),
		},
		AmabilityScore: types.AmabilityScore{
			TotalAmability:      *sc.TotalAmability,
			Empathy:             *sc.Empathy,
			Respect:             *sc.Respect,
			Trust:               *sc.Trust,
			Efficiency:          *sc.Efficiency,
			GenuineChoices:      sc.GenuineChoices,
			ManipulativeChoices: sc.ManipulativeChoices,
			CharactersHelped:    sc.CharactersHelped,
		},
		CurrentNodeID: raw.CurrentNodeID,
		CurrentTreeID: raw.CurrentTreeID,
	}, nil
}

func missing(field string) error {
	return &ValidationError{Field: field, Reason: "is required"}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append([]string(nil), s...)
}
