package monitor

import (
	"fmt"
	"math"
)

// EvaluateCondition applies a rule condition to an observed value. A zero
// tolerance makes eq an exact float comparison.
func EvaluateCondition(cond ConditionType, value, threshold, tolerance float64) (bool, error) {
	switch cond {
	case ConditionGreater:
		return value > threshold, nil
	case ConditionLess:
		return value < threshold, nil
	case ConditionEqual:
		if tolerance <= 0 {
			return value == threshold, nil
		}
		return math.Abs(value-threshold) <= tolerance, nil
	default:
		return false, fmt.Errorf("unsupported condition %q", cond)
	}
}

// LimitExpr renders a rule condition for logs and alert events, e.g. "> 30".
func LimitExpr(cond ConditionType, threshold float64) string {
	switch cond {
	case ConditionGreater:
		return fmt.Sprintf("> %v", threshold)
	case ConditionLess:
		return fmt.Sprintf("< %v", threshold)
	case ConditionEqual:
		return fmt.Sprintf("== %v", threshold)
	default:
		return string(cond)
	}
}
