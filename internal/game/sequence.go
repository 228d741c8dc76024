package game

// DefaultCharacterSequence is the order characters are met in
var DefaultCharacterSequence = []string{
	"carlos",
	"sara",
	"ana",
	"marcos",
	"rafael",
	"juliana",
	"roberto",
	"patricia",
	"lucas",
	"fernanda",
}

// DefaultTreeSuffix is appended to a character id to name its tree
const DefaultTreeSuffix = "_dialogue"

// NextCharacter returns the character after index, or false at the end of the roster
func NextCharacter(index int, roster []string) (string, bool) {
	next := index + 1
	if next < 0 || next >= len(roster) {
		return "", false
	}
	return roster[next], true
}

// AllCharactersMet reports whether index is at or past the last roster position
func AllCharactersMet(index int, roster []string) bool {
	return index >= len(roster)-1
}

// TreeID names the narrative tree of a character
func TreeID(characterID string) string {
	return characterID + DefaultTreeSuffix
}
