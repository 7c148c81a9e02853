package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"agent-trading-bot/internal/bus"
	"agent-trading-bot/internal/interfaces"
	"agent-trading-bot/internal/ledger"
	"agent-trading-bot/internal/logger"
	"agent-trading-bot/internal/registry"
	"agent-trading-bot/internal/types"
)

// DefaultDegradeThreshold is the consecutive-failure count after which an
// agent is sidelined when none is configured.
const DefaultDegradeThreshold = 5

// Params wires the coordinator's collaborators.
type Params struct {
	Ledger           *ledger.Ledger
	Registry         *registry.Registry
	Bus              *bus.Bus
	Exchange         interfaces.ExchangeClient
	DegradeThreshold int
}

// Coordinator runs the tick loop over all registered agents: collect their
// messages, apply the ones with side effects against the ledger and registry,
// then fan everything out on the bus. One failing agent never takes down a
// tick; each agent call is isolated with its own panic recovery and error
// accounting.
type Coordinator struct {
	mu               sync.Mutex
	ledger           *ledger.Ledger
	registry         *registry.Registry
	bus              *bus.Bus
	exchange         interfaces.ExchangeClient
	degradeThreshold int

	agents []*agentEntry
	byName map[string]*agentEntry

	state types.RunState
	seq   uint64
}

var _ interfaces.Coordinator = (*Coordinator)(nil)

// New creates an idle coordinator. Agents are attached with RegisterAgent
// before Start.
func New(p Params) *Coordinator {
	threshold := p.DegradeThreshold
	if threshold <= 0 {
		threshold = DefaultDegradeThreshold
	}
	return &Coordinator{
		ledger:           p.Ledger,
		registry:         p.Registry,
		bus:              p.Bus,
		exchange:         p.Exchange,
		degradeThreshold: threshold,
		byName:           make(map[string]*agentEntry),
		state:            types.RunStateIdle,
	}
}

// RegisterAgent attaches an agent to the tick cycle. Tick order follows
// registration order. Agents that consume bus messages hold their own
// subscription; registration here only makes the agent's Process part of
// each tick.
func (c *Coordinator) RegisterAgent(agent interfaces.Agent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := agent.Name()
	if _, ok := c.byName[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateAgent, name)
	}

	entry := &agentEntry{agent: agent}
	c.agents = append(c.agents, entry)
	c.byName[name] = entry
	return nil
}

// Start moves the coordinator from Idle to Running.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != types.RunStateIdle {
		return ErrAlreadyStarted
	}
	c.state = types.RunStateRunning
	logger.Info(ctx, "Coordinator started", "agents", len(c.agents))
	return nil
}

// Tick runs one full round: process every active agent, apply the returned
// messages, publish them. Paused ticks still run the agents so a monitoring
// agent can observe conditions and issue RESUME_TRADING, but new trade
// signals are not applied while paused.
func (c *Coordinator) Tick(ctx context.Context) (*types.TickReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case types.RunStateRunning, types.RunStatePaused:
	case types.RunStateEmergency:
		return nil, ErrEmergencyStopped
	case types.RunStateShuttingDown:
		return nil, ErrShuttingDown
	default:
		return nil, ErrNotRunning
	}

	c.seq++
	report := &types.TickReport{Seq: c.seq, State: c.state, Agents: len(c.agents)}

	var pending []types.Message
	for _, entry := range c.agents {
		if !entry.agent.IsActive() {
			continue
		}
		msgs, err := c.processAgent(ctx, entry)
		if err != nil {
			report.Errors++
			c.recordFailureLocked(ctx, entry, err)
			continue
		}
		entry.recordSuccess()
		pending = append(pending, msgs...)
	}
	report.Messages = len(pending)

	var tickErr error
	for _, msg := range pending {
		applied, err := c.applyMessage(ctx, msg)
		if err != nil {
			report.Errors++
			logger.ErrorWithErr(ctx, "Message application failed", err,
				"kind", string(msg.Kind()), "source", msg.Source())
			if c.escalateLocked(ctx, err) {
				tickErr = err
			}
		}
		if applied {
			report.Applied++
		}
		report.Published += c.bus.Broadcast(ctx, msg)
	}

	report.State = c.state
	logger.Debug(ctx, "Tick complete",
		"seq", report.Seq, "state", string(report.State),
		"messages", report.Messages, "applied", report.Applied,
		"errors", report.Errors, "published", report.Published)
	return report, tickErr
}

// Dispatch executes a system command immediately, outside the tick cycle.
func (c *Coordinator) Dispatch(ctx context.Context, cmd types.SystemCommand) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.execCommandLocked(ctx, cmd)
}

// State returns the current run-loop state.
func (c *Coordinator) State() types.RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// EmergencyStop freezes the run loop and liquidates every open position.
// Capital committed to the closed trades is released back to the owning
// agents' allocations.
func (c *Coordinator) EmergencyStop(ctx context.Context, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.emergencyStopLocked(ctx, reason)
}

// Shutdown closes every open trade at its last seen price, releases the
// committed capital and leaves the coordinator in ShuttingDown. Idempotent.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == types.RunStateShuttingDown {
		return nil
	}
	prev := c.state
	c.state = types.RunStateShuttingDown
	logger.Info(ctx, "Coordinator shutting down",
		"from", string(prev), "open_trades", c.registry.ActiveCount())

	closed := c.registry.CloseAllTrades(ctx, "coordinator shutdown")
	return c.settleClosed(ctx, closed)
}

// AgentStatuses reports the health of every registered agent.
func (c *Coordinator) AgentStatuses() []types.AgentStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]types.AgentStatus, 0, len(c.agents))
	now := time.Now().UTC()
	for _, entry := range c.agents {
		out = append(out, entry.status(now))
	}
	return out
}

func (c *Coordinator) emergencyStopLocked(ctx context.Context, reason string) error {
	if c.state == types.RunStateEmergency || c.state == types.RunStateShuttingDown {
		return nil
	}
	c.state = types.RunStateEmergency
	logger.Warn(ctx, "EMERGENCY STOP",
		"reason", reason, "open_trades", c.registry.ActiveCount())

	closed := c.registry.CloseAllTrades(ctx, "emergency stop: "+reason)
	return c.settleClosed(ctx, closed)
}

// escalateLocked reacts to an application error. A ledger invariant violation
// is unrecoverable by the coordinator: mutations stop and the run loop goes
// to Emergency, but open positions are left untouched for operator review
// since the books can no longer be trusted to settle them.
func (c *Coordinator) escalateLocked(ctx context.Context, err error) bool {
	var iv *ledger.InvariantViolation
	if !errors.As(err, &iv) {
		return false
	}
	if c.state != types.RunStateEmergency && c.state != types.RunStateShuttingDown {
		c.state = types.RunStateEmergency
		logger.Error(ctx, "Ledger invariant violated, halting",
			"op", iv.Op, "detail", iv.Detail)
	}
	return true
}
