package interfaces

import (
	"context"

	"agent-trading-bot/internal/types"
)

// Agent is one decision or monitoring unit invoked by the coordinator each
// tick. Process returns the messages the agent wants applied and published;
// it must bound any external I/O with the supplied context.
type Agent interface {
	Process(ctx context.Context) ([]types.Message, error)
	Name() string
	IsActive() bool
	SetActive(active bool)
}
