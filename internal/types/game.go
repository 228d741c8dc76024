package types

import "time"

// GameStatus is the top-level phase of a session
type GameStatus string

const (
	StatusMenu    GameStatus = "menu"
	StatusPlaying GameStatus = "playing"
	StatusEnding  GameStatus = "ending"
)

// Valid reports whether s is one of the known phases
func (s GameStatus) Valid() bool {
	switch s {
	case StatusMenu, StatusPlaying, StatusEnding:
		return true
	}
	return false
}

// AmabilityScore holds the four axes and the derived composite
type AmabilityScore struct {
	TotalAmability      int `json:"totalAmability"`
	Empathy             int `json:"empathy"`
	Respect             int `json:"respect"`
	Trust               int `json:"trust"`
	Efficiency          int `json:"efficiency"`
	GenuineChoices      int `json:"genuineChoices"`
	ManipulativeChoices int `json:"manipulativeChoices"`
	CharactersHelped    int `json:"charactersHelped"`
}

// AmabilityImpact carries optional per-axis deltas. TotalAmability is accepted
// in payloads but never applied; the composite is always recomputed.
type AmabilityImpact struct {
	TotalAmability *int `json:"totalAmability,omitempty" yaml:"totalAmability,omitempty"`
	Empathy        *int `json:"empathy,omitempty" yaml:"empathy,omitempty"`
	Respect        *int `json:"respect,omitempty" yaml:"respect,omitempty"`
	Trust          *int `json:"trust,omitempty" yaml:"trust,omitempty"`
	Efficiency     *int `json:"efficiency,omitempty" yaml:"efficiency,omitempty"`
}

// GameState is the live session snapshot consulted by conditions and tags
type GameState struct {
	CurrentState          GameStatus     `json:"currentState"`
	PlaythroughCount      int            `json:"playthroughCount"`
	ChoicesHistory        []string       `json:"choicesHistory"`
	AmabilityScore        AmabilityScore `json:"amabilityScore"`
	CurrentCharacter      string         `json:"currentCharacter"`
	CurrentNodeID         string         `json:"currentNodeId"`
	UsedTags              []string       `json:"usedTags"`
	CharactersMet         []string       `json:"charactersMet"`
	CurrentCharacterIndex int            `json:"currentCharacterIndex"`
	CharacterSequence     []string       `json:"characterSequence"`
}

// Clone returns a deep copy so callers can hand state out without aliasing
func (g GameState) Clone() GameState {
	out := g
	out.ChoicesHistory = append([]string(nil), g.ChoicesHistory...)
	out.UsedTags = append([]string(nil), g.UsedTags...)
	out.CharactersMet = append([]string(nil), g.CharactersMet...)
	out.CharacterSequence = append([]string(nil), g.CharacterSequence...)
	return out
}

// Character describes one member of the roster
type Character struct {
	ID            string `json:"characterId"`
	Name          string `json:"name"`
	Age           int    `json:"age,omitempty"`
	Role          string `json:"role,omitempty"`
	Description   string `json:"description,omitempty"`
	NarrativeTree string `json:"narrativeTree,omitempty"`
}

// SaveSnapshot is the persisted projection of a session
type SaveSnapshot struct {
	Timestamp      int64          `json:"timestamp"`
	Version        string         `json:"version"`
	GameState      SavedGameState `json:"gameState"`
	AmabilityScore AmabilityScore `json:"amabilityScore"`
	CurrentNodeID  *string        `json:"currentNodeId"`
	CurrentTreeID  *string        `json:"currentTreeId"`
}

// SavedAt returns the snapshot timestamp as a time
func (s SaveSnapshot) SavedAt() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// SavedGameState is the game-state portion of a snapshot
type SavedGameState struct {
	CurrentState          GameStatus `json:"currentState"`
	PlaythroughCount      int        `json:"playthroughCount"`
	ChoicesHistory        []string   `json:"choicesHistory"`
	CurrentCharacter      *string    `json:"currentCharacter"`
	CurrentCharacterIndex int        `json:"currentCharacterIndex"`
	CharacterSequence     []string   `json:"characterSequence"`
	CharactersMet         []string   `json:"charactersMet"`
	UsedTags              []string   `json:"usedTags"`
}
