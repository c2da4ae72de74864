package inventory

import "errors"

var (
	// ErrInvalidArgument rejects malformed input before any mutation.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInsufficientCapacity means a claim asked for more seats than are
	// FREE. Recoverable: retry later or reduce the request.
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	// ErrCapacityExceeded means the counter guard would push
	// available_seats out of range. This never fires during normal
	// operation; it signals drift between the counter and the seat pool.
	ErrCapacityExceeded = errors.New("capacity guard tripped")
	// ErrTerminalState rejects any transition out of CANCELLED.
	ErrTerminalState = errors.New("booking is in a terminal state")
)
