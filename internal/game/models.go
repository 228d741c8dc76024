package game

import (
	"time"

	"github.com/user/sinergia/internal/narrative"
	"github.com/user/sinergia/internal/types"
)

// StateView is the observable projection of a session handed to the UI
type StateView struct {
	CurrentState          types.GameStatus        `json:"currentState"`
	CurrentNode           *narrative.ResolvedNode `json:"currentNode,omitempty"`
	AmabilityScore        types.AmabilityScore    `json:"amabilityScore"`
	IsLoading             bool                    `json:"isLoading"`
	LoadingProgress       int                     `json:"loadingProgress"`
	CharactersMet         []string                `json:"charactersMet"`
	PlaythroughCount      int                     `json:"playthroughCount"`
	CurrentCharacter      string                  `json:"currentCharacter"`
	Speaker               string                  `json:"speaker,omitempty"`
	CurrentTreeID         string                  `json:"currentTreeId,omitempty"`
	ChoicesHistory        []string                `json:"choicesHistory"`
	CurrentCharacterIndex int                     `json:"currentCharacterIndex"`
	CharacterSequence     []string                `json:"characterSequence"`
	Ending                *Ending                 `json:"ending,omitempty"`
	ConscienceComment     string                  `json:"conscienceComment,omitempty"`
	LastChoice            string                  `json:"lastChoice,omitempty"`
	Character             *types.Character        `json:"character,omitempty"`
}

// SlotInfo is the preview of one save slot
type SlotInfo struct {
	Slot           int       `json:"slot"`
	Exists         bool      `json:"exists"`
	SavedAt        time.Time `json:"savedAt"`
	AmabilityScore int       `json:"amabilityScore,omitempty"`
	CharactersMet  int       `json:"charactersMet,omitempty"`
	Total          int       `json:"total,omitempty"`
	Progress       string    `json:"progress,omitempty"`
}

// Observer is called with a fresh view after every state change
type Observer func(StateView)
