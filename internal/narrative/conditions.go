package narrative

import (
	"fmt"
	"strconv"

	"github.com/user/sinergia/internal/types"
	"go.uber.org/zap"
)

// CheckConditions reports whether every condition holds against state.
// An empty list is vacuously true; an evaluation failure fails the whole check.
func CheckConditions(conditions []types.Condition, state types.GameState) bool {
	for _, condition := range conditions {
		ok, err := evaluateCondition(condition, state)
		if err != nil {
			zap.L().Warn("Condition evaluation failed",
				zap.String("type", string(condition.Type)),
				zap.String("operator", string(condition.Operator)),
				zap.String("value", condition.Value.String()),
				zap.Error(err))
			return false
		}
		if !ok {
			zap.L().Debug("Condition not met",
				zap.String("type", string(condition.Type)),
				zap.String("operator", string(condition.Operator)),
				zap.String("value", condition.Value.String()))
			return false
		}
	}
	return true
}

// CheckConditionRequirement reports whether every present field of req holds.
// A nil requirement is vacuously true.
func CheckConditionRequirement(req *types.ConditionRequirement, state types.GameState) (ok bool) {
	if req == nil {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("Requirement evaluation panicked", zap.Any("panic", r))
			ok = false
		}
	}()

	ranges := []struct {
		bound *types.Range
		value int
	}{
		{req.PlaythroughCount, state.PlaythroughCount},
		{req.AmabilityScore, state.AmabilityScore.TotalAmability},
		{req.EmpathyScore, state.AmabilityScore.Empathy},
		{req.RespectScore, state.AmabilityScore.Respect},
		{req.TrustScore, state.AmabilityScore.Trust},
		{req.EfficiencyScore, state.AmabilityScore.Efficiency},
	}
	for _, r := range ranges {
		if r.bound != nil && !r.bound.Contains(float64(r.value)) {
			return false
		}
	}

	if !containsAll(state.CharactersMet, req.CharactersMet) {
		return false
	}
	if !containsAll(state.ChoicesHistory, req.ChoicesMade) {
		return false
	}
	return true
}

// observe returns the state value a condition type reads
func observe(conditionType types.ConditionType, state types.GameState) (int, bool) {
	score := state.AmabilityScore
	switch conditionType {
	case types.ConditionAmabilityScore:
		return score.TotalAmability, true
	case types.ConditionEmpathyScore:
		return score.Empathy, true
	case types.ConditionRespectScore:
		return score.Respect, true
	case types.ConditionTrustScore:
		return score.Trust, true
	case types.ConditionEfficiencyScore:
		return score.Efficiency, true
	case types.ConditionPlaythroughCount:
		return state.PlaythroughCount, true
	case types.ConditionChoicesMade:
		return len(state.ChoicesHistory), true
	case types.ConditionCharactersMet:
		return len(state.CharactersMet), true
	default:
		return 0, false
	}
}

func evaluateCondition(condition types.Condition, state types.GameState) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("panic during evaluation: %v", r)
		}
	}()

	actual, known := observe(condition.Type, state)
	if !known {
		zap.L().Warn("Unknown condition type, using 0", zap.String("type", string(condition.Type)))
	}
	return compareValues(strconv.Itoa(actual), condition.Operator, condition.Value.String())
}

// compareValues compares numerically when both sides parse as numbers, otherwise
// falls back to string equality or inequality.
func compareValues(actual string, op types.Operator, expected string) (bool, error) {
	a, aNum := types.ParseNumber(actual)
	e, eNum := types.ParseNumber(expected)
	if aNum && eNum {
		switch op {
		case types.OpGreater:
			return a > e, nil
		case types.OpLess:
			return a < e, nil
		case types.OpEqual:
			return a == e, nil
		case types.OpNotEqual:
			return a != e, nil
		case types.OpGreaterEqual:
			return a >= e, nil
		case types.OpLessEqual:
			return a <= e, nil
		default:
			return false, fmt.Errorf("unknown operator %q", op)
		}
	}

	switch op {
	case types.OpEqual:
		return actual == expected, nil
	case types.OpNotEqual:
		return actual != expected, nil
	default:
		return false, fmt.Errorf("operator %q not supported for string comparison", op)
	}
}

func containsAll(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[h] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}
