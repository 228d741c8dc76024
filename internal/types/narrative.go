package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// NarrativeTree is the branching dialogue for one character
type NarrativeTree struct {
	TreeID      string         `json:"treeId" yaml:"treeId"`
	CharacterID string         `json:"characterId" yaml:"characterId"`
	Nodes       []DialogueNode `json:"nodes" yaml:"nodes"`
}

// DialogueNode is a single beat of a conversation
type DialogueNode struct {
	NodeID             string              `json:"nodeId" yaml:"nodeId"`
	CharacterName      string              `json:"characterName" yaml:"characterName"`
	DialogueText       string              `json:"dialogueText,omitempty" yaml:"dialogueText,omitempty"`
	DialogueVariations []DialogueVariation `json:"dialogueVariations,omitempty" yaml:"dialogueVariations,omitempty"`
	Options            []DialogueOption    `json:"options" yaml:"options"`
	NextNodeIDs        []string            `json:"nextNodeIds,omitempty" yaml:"nextNodeIds,omitempty"`
	AmabilityImpact    *AmabilityImpact    `json:"amabilityImpact,omitempty" yaml:"amabilityImpact,omitempty"`
	Conditions         []Condition         `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Tags               []string            `json:"tags,omitempty" yaml:"tags,omitempty"`
	IsAutomatic        bool                `json:"isAutomatic,omitempty" yaml:"isAutomatic,omitempty"`
	ConscienceComment  *ConscienceComment  `json:"conscienceComment,omitempty" yaml:"conscienceComment,omitempty"`
}

// DialogueVariation is a weighted alternative text for a node
type DialogueVariation struct {
	Text     string                `json:"text" yaml:"text"`
	Weight   float64               `json:"weight" yaml:"weight"`
	Tags     []string              `json:"tags" yaml:"tags"`
	Requires *ConditionRequirement `json:"requires,omitempty" yaml:"requires,omitempty"`
}

// Placement is the left/right hint on an option
type Placement string

const (
	PlacementUnset  Placement = ""
	PlacementLeft   Placement = "left"
	PlacementRight  Placement = "right"
	PlacementRandom Placement = "random"
)

// DialogueOption is a player choice on an interactive node
type DialogueOption struct {
	OptionID        string          `json:"optionId" yaml:"optionId"`
	Text            string          `json:"text" yaml:"text"`
	Position        Placement       `json:"position,omitempty" yaml:"position,omitempty"`
	NextNodeID      string          `json:"nextNodeId" yaml:"nextNodeId"`
	AmabilityImpact AmabilityImpact `json:"amabilityImpact" yaml:"amabilityImpact"`
	Conditions      []Condition     `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// ConscienceComment is the narrator's side remark around a node
type ConscienceComment struct {
	Before            string `json:"before,omitempty" yaml:"before,omitempty"`
	AfterManipulative string `json:"after_manipulative,omitempty" yaml:"after_manipulative,omitempty"`
	AfterGenuine      string `json:"after_genuine,omitempty" yaml:"after_genuine,omitempty"`
}

// ConditionType selects the observable a Condition reads
type ConditionType string

const (
	ConditionAmabilityScore   ConditionType = "amabilityScore"
	ConditionEmpathyScore     ConditionType = "empathyScore"
	ConditionRespectScore     ConditionType = "respectScore"
	ConditionTrustScore       ConditionType = "trustScore"
	ConditionEfficiencyScore  ConditionType = "efficiencyScore"
	ConditionCharactersMet    ConditionType = "charactersMet"
	ConditionChoicesMade      ConditionType = "choicesMade"
	ConditionPlaythroughCount ConditionType = "playthroughCount"
)

// Operator is a comparison operator
type Operator string

const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
)

// Condition is a single gate on a node or option
type Condition struct {
	Type     ConditionType  `json:"type" yaml:"type"`
	Operator Operator       `json:"operator" yaml:"operator"`
	Value    ConditionValue `json:"value" yaml:"value"`
}

// ConditionValue is the target of a Condition; payloads may carry a number or a string
type ConditionValue struct {
	raw     string
	numeric bool
}

// NumberValue builds a numeric condition value
func NumberValue(f float64) ConditionValue {
	return ConditionValue{raw: strconv.FormatFloat(f, 'f', -1, 64), numeric: true}
}

// StringValue builds a string condition value
func StringValue(s string) ConditionValue {
	return ConditionValue{raw: s}
}

// String returns the value as text
func (v ConditionValue) String() string {
	return v.raw
}

// Float parses the value as a number
func (v ConditionValue) Float() (float64, bool) {
	return ParseNumber(v.raw)
}

// ParseNumber parses s as a finite float
func ParseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// UnmarshalJSON accepts a JSON number or string
func (v *ConditionValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = ConditionValue{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("condition value must be a number or string: %w", err)
	}
	*v = ConditionValue{raw: n.String(), numeric: true}
	return nil
}

// MarshalJSON writes numbers back as numbers
func (v ConditionValue) MarshalJSON() ([]byte, error) {
	if v.numeric {
		if _, ok := v.Float(); ok {
			return []byte(v.raw), nil
		}
	}
	return json.Marshal(v.raw)
}

// UnmarshalYAML accepts any scalar
func (v *ConditionValue) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("condition value must be a scalar, got kind %d", node.Kind)
	}
	*v = ConditionValue{raw: node.Value, numeric: node.ShortTag() == "!!int" || node.ShortTag() == "!!float"}
	return nil
}

// MarshalYAML writes numbers back as numbers
func (v ConditionValue) MarshalYAML() (interface{}, error) {
	if v.numeric {
		if f, ok := v.Float(); ok {
			return f, nil
		}
	}
	return v.raw, nil
}

// Range is an optional inclusive min/max bound
type Range struct {
	Min *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max *float64 `json:"max,omitempty" yaml:"max,omitempty"`
}

// Contains reports whether v satisfies every bound that is present
func (r Range) Contains(v float64) bool {
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

// ConditionRequirement gates dialogue variations
type ConditionRequirement struct {
	PlaythroughCount *Range   `json:"playthroughCount,omitempty" yaml:"playthroughCount,omitempty"`
	AmabilityScore   *Range   `json:"amabilityScore,omitempty" yaml:"amabilityScore,omitempty"`
	EmpathyScore     *Range   `json:"empathyScore,omitempty" yaml:"empathyScore,omitempty"`
	RespectScore     *Range   `json:"respectScore,omitempty" yaml:"respectScore,omitempty"`
	TrustScore       *Range   `json:"trustScore,omitempty" yaml:"trustScore,omitempty"`
	EfficiencyScore  *Range   `json:"efficiencyScore,omitempty" yaml:"efficiencyScore,omitempty"`
	CharactersMet    []string `json:"charactersMet,omitempty" yaml:"charactersMet,omitempty"`
	ChoicesMade      []string `json:"choicesMade,omitempty" yaml:"choicesMade,omitempty"`
}
