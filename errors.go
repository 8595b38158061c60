package choreo

import "errors"

var (
	// Lookup errors.
	ErrSlipNotFound = errors.New("choreo: routing slip not found")
	ErrTaskNotFound = errors.New("choreo: task not found")

	// Step errors.
	ErrUnknownStep = errors.New("choreo: unknown step kind")
	ErrNotEligible = errors.New("choreo: step is not at the head of the slip")

	// Slip errors.
	ErrInvalidPlan = errors.New("choreo: invalid step plan")
	ErrInvariant   = errors.New("choreo: routing slip invariant violated")
	ErrTerminal    = errors.New("choreo: routing slip is terminal")

	// Lifecycle errors.
	ErrAlreadyRunning = errors.New("choreo: already running")
	ErrNoKinds        = errors.New("choreo: no step kinds configured")
	ErrFeedEnded      = errors.New("choreo: change feed ended")
)
