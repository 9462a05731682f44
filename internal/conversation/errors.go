package conversation

import "errors"

var (
	// ErrTurnInFlight is returned when a session already has a turn running.
	ErrTurnInFlight = errors.New("conversation: turn already in flight")

	// ErrEmptyMessage is returned when a turn has no user text.
	ErrEmptyMessage = errors.New("conversation: message is empty")
)
