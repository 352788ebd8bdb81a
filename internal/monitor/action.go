package monitor

import (
	"fmt"
	"strings"
)

type Action string

const (
	ActionCollect Action = "collect"
	ActionHealth  Action = "health"
)

// ParseAction accepts the two entrypoint actions, case-insensitively.
func ParseAction(raw string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(raw))) {
	case ActionCollect:
		return ActionCollect, nil
	case ActionHealth:
		return ActionHealth, nil
	default:
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidRequest, raw)
	}
}
