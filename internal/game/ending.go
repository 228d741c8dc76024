package game

import (
	"fmt"

	"github.com/user/sinergia/internal/types"
)

// EndingType is one of the three endings
type EndingType string

const (
	EndingGood    EndingType = "good"
	EndingBad     EndingType = "bad"
	EndingNeutral EndingType = "neutral"
)

// Ending is the resolved ending with its presentation text
type Ending struct {
	Type        EndingType `json:"type"`
	Title       string     `json:"title"`
	Subtitle    string     `json:"subtitle"`
	Message     string     `json:"message"`
	Description string     `json:"description"`
}

// CalculateEnding maps a final score to an ending type. Thresholds are strict.
func CalculateEnding(score types.AmabilityScore) EndingType {
	switch {
	case score.TotalAmability > 70 && score.Efficiency < 30:
		return EndingGood
	case score.TotalAmability < 30 && score.Efficiency > 70:
		return EndingBad
	default:
		return EndingNeutral
	}
}

// ResolveEnding builds the full ending for score
func ResolveEnding(score types.AmabilityScore) Ending {
	kind := CalculateEnding(score)
	switch kind {
	case EndingGood:
		return Ending{
			Type:     kind,
			Title:    "The Genuine Ending",
			Subtitle: "The real victory is keeping your humanity",
			Message:  "You were fired for \"incompetence\". But you kept your humanity.",
			Description: fmt.Sprintf("You chose true amability. Your genuine choices, showing empathy (%d), "+
				"respect (%d) and trust (%d), were the right ones even if the corporation does not recognize them. "+
				"You were fired for \"incompetence\", but you kept your humanity. That is the real victory.",
				score.Empathy, score.Respect, score.Trust),
		}
	case EndingBad:
		return Ending{
			Type:     kind,
			Title:    "The Efficient Ending",
			Subtitle: "Efficiency above all",
			Message:  "Congratulations! You were promoted. Everyone was let go. You won.",
			Description: fmt.Sprintf("You reached maximum efficiency (%d). You dismissed every employee using "+
				"kind, manipulative language. The company is pleased and you were promoted. But at what cost? "+
				"Your choices were efficient, not genuine. You traded your humanity for efficiency.",
				score.Efficiency),
		}
	default:
		return Ending{
			Type:     EndingNeutral,
			Title:    "The Neutral Ending",
			Subtitle: "An unstable balance",
			Message:  "You survived. But at what cost?",
			Description: fmt.Sprintf("Your choices were a mix of genuine and manipulative. The result is ambiguous: "+
				"neither fully efficient (%d) nor fully human (%d). You survived, but perhaps it is time to reflect "+
				"on what really matters.",
				score.Efficiency, score.TotalAmability),
		}
	}
}
