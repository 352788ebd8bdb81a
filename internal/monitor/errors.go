package monitor

import "errors"

var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrPersistence        = errors.New("persistence failure")
	ErrNotFound           = errors.New("not found")
	ErrAlertAlreadyFiring = errors.New("alert already firing for rule")
)
