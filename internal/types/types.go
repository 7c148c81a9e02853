package types

import "time"

// Direction is the side of a trade.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Sign returns +1 for long exposure and -1 for short.
func (d Direction) Sign() float64 {
	if d == DirectionShort {
		return -1
	}
	return 1
}

// TradeState is the lifecycle state of a trade. Transitions only move
// forward through the table in the registry package; Completed is terminal.
type TradeState string

const (
	StatePendingEntry   TradeState = "PENDING_ENTRY"
	StateEntrySubmitted TradeState = "ENTRY_SUBMITTED"
	StateActive         TradeState = "ACTIVE"
	StatePendingExit    TradeState = "PENDING_EXIT"
	StateExitSubmitted  TradeState = "EXIT_SUBMITTED"
	StateCompleted      TradeState = "COMPLETED"
)

// TradeOutcome records how a completed trade ended.
type TradeOutcome string

const (
	OutcomeNone          TradeOutcome = ""
	OutcomeTakeProfitHit TradeOutcome = "TAKE_PROFIT_HIT"
	OutcomeStopLossHit   TradeOutcome = "STOP_LOSS_HIT"
	OutcomeExpired       TradeOutcome = "EXPIRED"
	OutcomeManualClose   TradeOutcome = "MANUAL_CLOSE"
	OutcomeAborted       TradeOutcome = "ABORTED"
)

// Trade is a single position tracked by the registry. Mutated only through
// the registry API; moved to immutable history once Completed.
type Trade struct {
	ID           string       `json:"id"`
	Symbol       string       `json:"symbol"`
	Direction    Direction    `json:"direction"`
	EntryPrice   float64      `json:"entry_price"`
	StopLoss     float64      `json:"stop_loss"`
	TakeProfit   float64      `json:"take_profit"`
	Size         float64      `json:"size"`
	Leverage     float64      `json:"leverage"`
	State        TradeState   `json:"state"`
	Outcome      TradeOutcome `json:"outcome,omitempty"`
	CurrentPrice float64      `json:"current_price"`
	ExitPrice    float64      `json:"exit_price,omitempty"`
	PnL          float64      `json:"pnl"`
	ROI          float64      `json:"roi"`
	Contributors []string     `json:"contributors,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	Expiration   time.Time    `json:"expiration,omitempty"`
}

// Expired reports whether the trade's expiration has passed at the given time.
func (t *Trade) Expired(now time.Time) bool {
	return !t.Expiration.IsZero() && now.After(t.Expiration)
}

// StateTransition is one append-only audit record of a trade state change.
type StateTransition struct {
	ID        uint64     `json:"id"`
	TradeID   string     `json:"trade_id"`
	From      TradeState `json:"from"`
	To        TradeState `json:"to"`
	Timestamp time.Time  `json:"timestamp"`
	Reason    string     `json:"reason,omitempty"`
}

// CapitalAllocation is the per-agent view held by the ledger.
type CapitalAllocation struct {
	AgentID   string  `json:"agent_id"`
	Allocated float64 `json:"allocated"`
	Used      float64 `json:"used"`
	PnL       float64 `json:"pnl"`
}

// Available is the portion of the allocation not committed to open trades.
func (a CapitalAllocation) Available() float64 {
	return a.Allocated - a.Used
}

// LedgerSnapshot is a consistent read-only copy of the ledger state.
type LedgerSnapshot struct {
	Total       float64                      `json:"total"`
	Reserve     float64                      `json:"reserve"`
	Available   float64                      `json:"available"`
	Allocations map[string]CapitalAllocation `json:"allocations"`
}

// RunState is the coordinator's run-loop state.
type RunState string

const (
	RunStateIdle         RunState = "IDLE"
	RunStateRunning      RunState = "RUNNING"
	RunStatePaused       RunState = "PAUSED"
	RunStateEmergency    RunState = "EMERGENCY"
	RunStateShuttingDown RunState = "SHUTTING_DOWN"
)

// TickReport summarizes one coordinator tick.
type TickReport struct {
	Seq       uint64   `json:"seq"`
	State     RunState `json:"state"`
	Agents    int      `json:"agents"`
	Messages  int      `json:"messages"`
	Applied   int      `json:"applied"`
	Errors    int      `json:"errors"`
	Published int      `json:"published"`
}

// Ticker is a point-in-time quote from the exchange.
type Ticker struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Volume float64 `json:"volume"`
}

// Balance is the exchange account balance.
type Balance struct {
	Available float64 `json:"available"`
	Total     float64 `json:"total"`
}

// OrderRequest is a request to place an order with the exchange.
type OrderRequest struct {
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`
	Size      float64   `json:"size"`
	Price     float64   `json:"price"`
	Leverage  float64   `json:"leverage"`
	Tag       string    `json:"tag,omitempty"`
}
