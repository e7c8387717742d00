package workflow

import "errors"

var (
	ErrInvalidInput   = errors.New("workflow: invalid input")
	ErrUnknownSession = errors.New("workflow: unknown session")
	ErrNoCheckpoint   = errors.New("workflow: no checkpoint")
	ErrConflict       = errors.New("workflow: conflict")
)
