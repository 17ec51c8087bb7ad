// Package pool owns the set of agent records: creation, lifecycle
// transitions, health grading, scaling, and capacity queries. It is the
// sole mutator of agent state; other components receive copies.
package pool

import "errors"

// ErrInvalidConfig indicates an agent configuration that fails validation.
var ErrInvalidConfig = errors.New("invalid agent config")

// ErrNotFound indicates the referenced agent ID is unknown.
var ErrNotFound = errors.New("agent not found")

// ErrAlreadyTerminated indicates the agent is in its terminal state.
var ErrAlreadyTerminated = errors.New("agent already terminated")

// ErrInvalidState indicates the operation is not valid for the agent's
// current lifecycle state.
var ErrInvalidState = errors.New("operation invalid for agent state")

// ErrRecoveryFailed indicates a recovery attempt did not restore the
// agent to a healthy grade.
var ErrRecoveryFailed = errors.New("agent recovery failed")
