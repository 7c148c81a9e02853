package coordinator

import (
	"context"
	"fmt"
	"time"

	"agent-trading-bot/internal/interfaces"
	"agent-trading-bot/internal/logger"
	"agent-trading-bot/internal/types"
)

const (
	healthOK       = "OK"
	healthDegraded = "DEGRADED"
	healthDisabled = "DISABLED"
)

// agentEntry is the coordinator's per-agent bookkeeping. Error counts are
// cumulative for the agent's lifetime; the consecutive counter resets on any
// successful tick and drives degradation.
type agentEntry struct {
	agent       interfaces.Agent
	errorCount  int
	consecutive int
	lastError   string
	degraded    bool
}

func (e *agentEntry) recordSuccess() {
	e.consecutive = 0
}

func (e *agentEntry) status(now time.Time) types.AgentStatus {
	health := healthOK
	switch {
	case e.degraded:
		health = healthDegraded
	case !e.agent.IsActive():
		health = healthDisabled
	}
	return types.AgentStatus{
		AgentName:  e.agent.Name(),
		Active:     e.agent.IsActive(),
		Health:     health,
		ErrorCount: e.errorCount,
		LastError:  e.lastError,
		Timestamp:  now,
	}
}

// processAgent invokes one agent with panic isolation. A panicking agent is
// reported as an error so the degradation counters apply to it the same as
// a returned failure.
func (c *Coordinator) processAgent(ctx context.Context, entry *agentEntry) (msgs []types.Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			msgs = nil
			err = fmt.Errorf("agent %q panicked: %v", entry.agent.Name(), r)
		}
	}()
	return entry.agent.Process(ctx)
}

func (c *Coordinator) recordFailureLocked(ctx context.Context, entry *agentEntry, err error) {
	entry.errorCount++
	entry.consecutive++
	entry.lastError = err.Error()

	logger.ErrorWithErr(ctx, "Agent tick failed", err,
		"agent", entry.agent.Name(),
		"error_count", entry.errorCount,
		"consecutive", entry.consecutive)

	if !entry.degraded && entry.consecutive >= c.degradeThreshold {
		entry.degraded = true
		entry.agent.SetActive(false)
		logger.Warn(ctx, "Agent degraded and deactivated",
			"agent", entry.agent.Name(), "threshold", c.degradeThreshold)
	}
}
