package domain

import "errors"

var (
	// ErrInvalidMessage is returned when a queue message is malformed
	ErrInvalidMessage = errors.New("invalid submission message")

	// ErrNoSchedulerID is returned when the submit command output carries no
	// scheduler job identifier
	ErrNoSchedulerID = errors.New("no scheduler job id in submit output")

	// ErrAlreadyDispatched is returned when a redelivered message refers to a
	// job another consumer already dispatched
	ErrAlreadyDispatched = errors.New("job already dispatched")
)
