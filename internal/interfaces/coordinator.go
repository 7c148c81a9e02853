package interfaces

import (
	"context"

	"agent-trading-bot/internal/types"
)

// Coordinator drives the per-tick execution of registered agents and owns
// the run-loop state machine.
type Coordinator interface {
	Start(ctx context.Context) error
	Tick(ctx context.Context) (*types.TickReport, error)
	Dispatch(ctx context.Context, cmd types.SystemCommand) error
	State() types.RunState
	Shutdown(ctx context.Context) error
}
