package riskmonitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agent-trading-bot/internal/interfaces"
	"agent-trading-bot/internal/ledger"
	"agent-trading-bot/internal/logger"
	"agent-trading-bot/internal/registry"
	"agent-trading-bot/internal/types"
)

const agentName = "riskmonitor"

// Params configures the drawdown monitor.
type Params struct {
	Ledger *ledger.Ledger
	// Registry supplies unrealized P&L on open positions.
	Registry *registry.Registry
	// MaxDrawdownPct pauses trading when equity falls this fraction below
	// the high-water mark.
	MaxDrawdownPct float64
	// ResumePct resumes trading once drawdown recovers below this fraction.
	ResumePct float64
}

// Agent watches account equity against its high-water mark. Breaching the
// drawdown limit emits a critical warning plus a PAUSE_TRADING command;
// recovery below the resume threshold emits RESUME_TRADING. The pause gate
// is latched so the pair of commands fires once per breach, not every tick.
type Agent struct {
	mu     sync.Mutex
	active bool

	ledger   *ledger.Ledger
	registry *registry.Registry
	maxDD    float64
	resumeDD float64

	highWater float64
	paused    bool
}

var _ interfaces.Agent = (*Agent)(nil)

func New(p Params) *Agent {
	return &Agent{
		active:   true,
		ledger:   p.Ledger,
		registry: p.Registry,
		maxDD:    p.MaxDrawdownPct,
		resumeDD: p.ResumePct,
	}
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
	a.mu.Lock()
	defer a.mu.Unlock()

	equity := a.equity()
	if equity > a.highWater {
		a.highWater = equity
	}
	if a.highWater <= 0 {
		return nil, nil
	}
	drawdown := (a.highWater - equity) / a.highWater

	now := time.Now().UTC()
	switch {
	case !a.paused && drawdown >= a.maxDD:
		a.paused = true
		logger.Warn(ctx, "Drawdown limit breached",
			"drawdown", drawdown, "limit", a.maxDD,
			"equity", equity, "high_water", a.highWater)
		return []types.Message{
			types.MacroWarning{
				Severity:    "CRITICAL",
				Code:        "MAX_DRAWDOWN",
				Detail:      fmt.Sprintf("drawdown %.2f%% breached limit %.2f%%", drawdown*100, a.maxDD*100),
				SourceAgent: agentName,
				Timestamp:   now,
			},
			types.SystemCommand{
				Command:     types.CommandPauseTrading,
				Reason:      "max drawdown breached",
				SourceAgent: agentName,
				Timestamp:   now,
			},
		}, nil

	case a.paused && drawdown <= a.resumeDD:
		a.paused = false
		logger.Info(ctx, "Drawdown recovered",
			"drawdown", drawdown, "resume_threshold", a.resumeDD)
		return []types.Message{
			types.SystemCommand{
				Command:     types.CommandResumeTrading,
				Reason:      "drawdown recovered",
				SourceAgent: agentName,
				Timestamp:   now,
			},
		}, nil
	}
	return nil, nil
}

// equity is realized capital plus the unrealized P&L on open positions.
func (a *Agent) equity() float64 {
	equity := a.ledger.TotalCapital()
	for _, t := range a.registry.ActiveTrades() {
		equity += t.PnL
	}
	return equity
}
