package narrative

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/sinergia/internal/types"
)

func baseState() types.GameState {
	return types.GameState{
		CurrentState:     types.StatusPlaying,
		PlaythroughCount: 0,
		ChoicesHistory:   []string{"honest", "support"},
		AmabilityScore: types.AmabilityScore{
			TotalAmability: 60,
			Empathy:        70,
			Respect:        55,
			Trust:          50,
			Efficiency:     40,
		},
		CharactersMet: []string{"carlos", "sara"},
	}
}

func floatPtr(f float64) *float64 { return &f }

func TestCheckConditionsEmpty(t *testing.T) {
	// An empty or nil list holds for any state
	assert.True(t, CheckConditions(nil, baseState()))
	assert.True(t, CheckConditions([]types.Condition{}, baseState()))
	assert.True(t, CheckConditions(nil, types.GameState{}))
}

func TestCheckConditionsOperators(t *testing.T) {
	state := baseState()

	tests := []struct {
		name      string
		condition types.Condition
		want      bool
	}{
		{"greater true", types.Condition{Type: types.ConditionEmpathyScore, Operator: types.OpGreater, Value: types.NumberValue(60)}, true},
		{"greater false", types.Condition{Type: types.ConditionEmpathyScore, Operator: types.OpGreater, Value: types.NumberValue(70)}, false},
		{"less", types.Condition{Type: types.ConditionEfficiencyScore, Operator: types.OpLess, Value: types.NumberValue(50)}, true},
		{"equal", types.Condition{Type: types.ConditionTrustScore, Operator: types.OpEqual, Value: types.NumberValue(50)}, true},
		{"not equal", types.Condition{Type: types.ConditionTrustScore, Operator: types.OpNotEqual, Value: types.NumberValue(50)}, false},
		{"greater equal", types.Condition{Type: types.ConditionAmabilityScore, Operator: types.OpGreaterEqual, Value: types.NumberValue(60)}, true},
		{"less equal", types.Condition{Type: types.ConditionRespectScore, Operator: types.OpLessEqual, Value: types.NumberValue(54)}, false},
		{"playthrough count", types.Condition{Type: types.ConditionPlaythroughCount, Operator: types.OpEqual, Value: types.NumberValue(0)}, true},
		{"choices made counts history", types.Condition{Type: types.ConditionChoicesMade, Operator: types.OpGreaterEqual, Value: types.NumberValue(2)}, true},
		{"characters met counts roster", types.Condition{Type: types.ConditionCharactersMet, Operator: types.OpGreater, Value: types.NumberValue(2)}, false},
		{"numeric string value", types.Condition{Type: types.ConditionEmpathyScore, Operator: types.OpEqual, Value: types.StringValue("70")}, true},
		{"string equality", types.Condition{Type: types.ConditionEmpathyScore, Operator: types.OpEqual, Value: types.StringValue("high")}, false},
		{"string inequality", types.Condition{Type: types.ConditionEmpathyScore, Operator: types.OpNotEqual, Value: types.StringValue("high")}, true},
		{"string ordering fails closed", types.Condition{Type: types.ConditionEmpathyScore, Operator: types.OpGreater, Value: types.StringValue("high")}, false},
		{"unknown operator fails closed", types.Condition{Type: types.ConditionEmpathyScore, Operator: "~=", Value: types.NumberValue(1)}, false},
		{"unknown type reads zero", types.Condition{Type: "mood", Operator: types.OpEqual, Value: types.NumberValue(0)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckConditions([]types.Condition{tt.condition}, state))
		})
	}
}

func TestCheckConditionsIsConjunction(t *testing.T) {
	state := baseState()
	pass := types.Condition{Type: types.ConditionEmpathyScore, Operator: types.OpGreater, Value: types.NumberValue(10)}
	fail := types.Condition{Type: types.ConditionEmpathyScore, Operator: types.OpLess, Value: types.NumberValue(10)}

	assert.True(t, CheckConditions([]types.Condition{pass, pass}, state))
	assert.False(t, CheckConditions([]types.Condition{pass, fail}, state))
	assert.False(t, CheckConditions([]types.Condition{fail, pass}, state))
}

func TestCheckConditionRequirement(t *testing.T) {
	state := baseState()

	// Test case 1: absent requirement
	assert.True(t, CheckConditionRequirement(nil, state))

	// Test case 2: all fields satisfied
	req := &types.ConditionRequirement{
		PlaythroughCount: &types.Range{Max: floatPtr(0)},
		AmabilityScore:   &types.Range{Min: floatPtr(50), Max: floatPtr(70)},
		EmpathyScore:     &types.Range{Min: floatPtr(70)},
		RespectScore:     &types.Range{Max: floatPtr(55)},
		TrustScore:       &types.Range{Min: floatPtr(0), Max: floatPtr(100)},
		EfficiencyScore:  &types.Range{Max: floatPtr(40)},
		CharactersMet:    []string{"carlos"},
		ChoicesMade:      []string{"support", "honest"},
	}
	assert.True(t, CheckConditionRequirement(req, state))

	// Test case 3: each unmet bound fails
	failing := []*types.ConditionRequirement{
		{PlaythroughCount: &types.Range{Min: floatPtr(1)}},
		{AmabilityScore: &types.Range{Max: floatPtr(59)}},
		{EmpathyScore: &types.Range{Min: floatPtr(71)}},
		{RespectScore: &types.Range{Min: floatPtr(56)}},
		{TrustScore: &types.Range{Max: floatPtr(49)}},
		{EfficiencyScore: &types.Range{Min: floatPtr(41)}},
		{CharactersMet: []string{"carlos", "ana"}},
		{ChoicesMade: []string{"spin"}},
	}
	for i, r := range failing {
		assert.False(t, CheckConditionRequirement(r, state), "requirement %d", i)
	}

	// Test case 4: empty requirement holds
	assert.True(t, CheckConditionRequirement(&types.ConditionRequirement{}, state))
}

func TestObserveSharedByBothDialects(t *testing.T) {
	state := baseState()

	// A condition and a requirement on the same observable agree
	cond := []types.Condition{{Type: types.ConditionTrustScore, Operator: types.OpGreaterEqual, Value: types.NumberValue(50)}}
	req := &types.ConditionRequirement{TrustScore: &types.Range{Min: floatPtr(50)}}
	assert.Equal(t, CheckConditions(cond, state), CheckConditionRequirement(req, state))

	v, ok := observe(types.ConditionTrustScore, state)
	assert.True(t, ok)
	assert.Equal(t, 50, v)

	_, ok = observe("unknown", state)
	assert.False(t, ok)
}

func TestConditionValueDecoding(t *testing.T) {
	var conditions []types.Condition
	payload := `[
		{"type": "empathyScore", "operator": ">", "value": 60},
		{"type": "empathyScore", "operator": "==", "value": "70"}
	]`
	require.NoError(t, json.Unmarshal([]byte(payload), &conditions))
	require.Len(t, conditions, 2)

	assert.Equal(t, "60", conditions[0].Value.String())
	assert.Equal(t, "70", conditions[1].Value.String())
	assert.True(t, CheckConditions(conditions, baseState()))

	out, err := json.Marshal(conditions[0].Value)
	require.NoError(t, err)
	assert.Equal(t, "60", string(out))

	out, err = json.Marshal(conditions[1].Value)
	require.NoError(t, err)
	assert.Equal(t, `"70"`, string(out))
}
