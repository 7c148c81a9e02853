package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrAgentNotFound means no allocation exists for the agent.
	ErrAgentNotFound = errors.New("no allocation for agent")
	// ErrAllocationInUse means the allocation still backs open trades.
	ErrAllocationInUse = errors.New("allocation has capital in use")
	// ErrHalted means the ledger refused a mutation after an invariant breach.
	ErrHalted = errors.New("ledger halted after invariant violation")
)

// AllocationError is returned when a request exceeds what the ledger can
// provide. It is recoverable; the caller may retry with a smaller amount.
type AllocationError struct {
	AgentID   string
	Requested float64
	Available float64
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("insufficient capital for %s: requested %.8f, available %.8f",
		e.AgentID, e.Requested, e.Available)
}

// InvariantViolation indicates a capital-conservation breach. It is a logic
// bug, not a runtime condition: callers must halt mutating operations
// instead of retrying.
type InvariantViolation struct {
	Op     string
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("capital invariant violated in %s: %s", e.Op, e.Detail)
}
