package marketfeed

import (
	"context"
	"sync"

	"agent-trading-bot/internal/interfaces"
	"agent-trading-bot/internal/types"
)

const agentName = "marketfeed"

// maxPerTick caps how many buffered ticks one Process call forwards, so a
// burst from the stream cannot starve the other agents in the tick.
const maxPerTick = 64

// Agent bridges a streaming price source into the tick cycle: each Process
// call forwards whatever market data has buffered since the last tick.
type Agent struct {
	mu     sync.Mutex
	active bool

	source <-chan types.MarketData
}

var _ interfaces.Agent = (*Agent)(nil)

// New wraps a market data channel, typically exchange.Stream's output.
func New(source <-chan types.MarketData) *Agent {
	return &Agent{active: true, source: source}
}

func (a *Agent) Name() string { return agentName }

func (a *Agent) IsActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

func (a *Agent) SetActive(active bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = active
}

func (a *Agent) Process(ctx context.Context) ([]types.Message, error) {
	var out []types.Message
	for len(out) < maxPerTick {
		select {
		case md, ok := <-a.source:
			if !ok {
				return out, nil
			}
			md.SourceAgent = agentName
			out = append(out, md)
		default:
			return out, nil
		}
	}
	return out, nil
}
