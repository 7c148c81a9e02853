package registry

import (
	"context"
	"sync"
	"time"

	"agent-trading-bot/internal/logger"
	"agent-trading-bot/internal/types"
)

// TransitionSink receives every audit record as it is appended. Sinks are
// called under the registry lock and must not call back into the registry.
type TransitionSink func(types.StateTransition)

// Registry owns the lifecycle of every trade: a live map keyed by id, an
// append-only audit trail of state transitions, and an immutable history of
// completed trades. All mutation goes through this API under one lock, so a
// price update and its resulting transition are atomic per trade.
type Registry struct {
	mu          sync.Mutex
	active      map[string]*types.Trade
	history     []types.Trade
	historyIDs  map[string]bool
	audit       []types.StateTransition
	nextAuditID uint64
	sink        TransitionSink
	now         func() time.Time
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		active:     make(map[string]*types.Trade),
		historyIDs: make(map[string]bool),
		now:        time.Now,
	}
}

// OnTransition installs a best-effort sink for audit records (persistence,
// reporting). The in-memory trail stays authoritative.
func (r *Registry) OnTransition(sink TransitionSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = sink
}

// AddTrade registers a new trade. At most one live trade may exist per id,
// and ids of completed trades can never be reused.
func (r *Registry) AddTrade(ctx context.Context, t types.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.active[t.ID]; ok {
		return ErrDuplicateTrade
	}
	if r.historyIDs[t.ID] {
		return ErrDuplicateTrade
	}
	if t.State == "" {
		t.State = types.StatePendingEntry
	}
	if t.State != types.StatePendingEntry {
		return &InvalidStateTransition{TradeID: t.ID, From: "", To: t.State}
	}
	now := r.now()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.CurrentPrice == 0 {
		t.CurrentPrice = t.EntryPrice
	}
	r.active[t.ID] = &t
	r.appendAuditLocked(t.ID, "", types.StatePendingEntry, "trade registered")
	return nil
}

// UpdateTradeState moves a trade one step through the lifecycle table.
func (r *Registry) UpdateTradeState(ctx context.Context, id string, to types.TradeState, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.active[id]
	if !ok {
		if r.historyIDs[id] {
			return &InvalidStateTransition{TradeID: id, From: types.StateCompleted, To: to}
		}
		return ErrTradeNotFound
	}
	if !canTransition(t.State, to) {
		return &InvalidStateTransition{TradeID: id, From: t.State, To: to}
	}
	r.transitionLocked(t, to, reason)
	if to == types.StateCompleted {
		if t.Outcome == types.OutcomeNone {
			t.Outcome = types.OutcomeManualClose
		}
		r.finalizeLocked(t)
	}
	return nil
}

// UpdateTradePrice applies a price tick to one trade: PnL and ROI are
// recomputed, and for an Active trade the exit thresholds are evaluated.
// Take-profit is checked before stop-loss; when both are crossed in the same
// tick, TakeProfitHit wins. Time expiry fires only when neither threshold
// triggered. A triggered trade moves to PendingExit with its pending outcome
// recorded; the returned outcome tells the caller which exit to submit.
func (r *Registry) UpdateTradePrice(ctx context.Context, id string, price float64) (types.TradeOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.active[id]
	if !ok {
		if r.historyIDs[id] {
			return types.OutcomeNone, &InvalidStateTransition{TradeID: id, From: types.StateCompleted, To: types.StateActive}
		}
		return types.OutcomeNone, ErrTradeNotFound
	}

	t.CurrentPrice = price
	t.PnL = pnl(t, price)
	t.ROI = roi(t)
	t.UpdatedAt = r.now()

	if t.State != types.StateActive {
		return types.OutcomeNone, nil
	}

	outcome := types.OutcomeNone
	switch {
	case crossedTakeProfit(t, price):
		outcome = types.OutcomeTakeProfitHit
	case crossedStopLoss(t, price):
		outcome = types.OutcomeStopLossHit
	case t.Expired(r.now()):
		outcome = types.OutcomeExpired
	}
	if outcome == types.OutcomeNone {
		return types.OutcomeNone, nil
	}

	t.Outcome = outcome
	r.transitionLocked(t, types.StatePendingExit, "exit trigger: "+string(outcome))
	return outcome, nil
}

// CloseTrade walks a trade through its remaining forward states to
// Completed at the given exit price, one audit record per hop. Returns the
// final trade record as it entered history.
func (r *Registry) CloseTrade(ctx context.Context, id string, exitPrice float64, outcome types.TradeOutcome, reason string) (types.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.active[id]
	if !ok {
		if r.historyIDs[id] {
			return types.Trade{}, &InvalidStateTransition{TradeID: id, From: types.StateCompleted, To: types.StateCompleted}
		}
		return types.Trade{}, ErrTradeNotFound
	}
	if err := r.closeLocked(t, exitPrice, outcome, reason); err != nil {
		return types.Trade{}, err
	}
	return *t, nil
}

// AbortTrade cancels a trade from any live state. A trade that never went
// Active realizes no P&L.
func (r *Registry) AbortTrade(ctx context.Context, id string, reason string) (types.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.active[id]
	if !ok {
		if r.historyIDs[id] {
			return types.Trade{}, &InvalidStateTransition{TradeID: id, From: types.StateCompleted, To: types.StateCompleted}
		}
		return types.Trade{}, ErrTradeNotFound
	}
	if err := r.closeLocked(t, t.CurrentPrice, types.OutcomeAborted, reason); err != nil {
		return types.Trade{}, err
	}
	return *t, nil
}

// CloseAllTrades is the emergency path: best-effort iteration over every
// live trade, closing each at its last seen price. Per-trade failures are
// logged, never propagated. Returns the trades that were closed.
func (r *Registry) CloseAllTrades(ctx context.Context, reason string) []types.Trade {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}

	closed := make([]types.Trade, 0, len(ids))
	for _, id := range ids {
		t, ok := r.active[id]
		if !ok {
			continue
		}
		if err := r.closeLocked(t, t.CurrentPrice, types.OutcomeAborted, reason); err != nil {
			logger.Warn(ctx, "Failed to close trade during close-all",
				"trade_id", id, "state", string(t.State), "error", err)
			continue
		}
		closed = append(closed, *t)
	}
	return closed
}

// Trade returns a copy of a live trade.
func (r *Registry) Trade(id string) (types.Trade, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.active[id]
	if !ok {
		return types.Trade{}, false
	}
	return *t, true
}

// ActiveTrades returns copies of every live trade.
func (r *Registry) ActiveTrades() []types.Trade {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Trade, 0, len(r.active))
	for _, t := range r.active {
		out = append(out, *t)
	}
	return out
}

// ActiveCount returns the number of live trades.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// History returns a copy of the completed-trade history, oldest first.
func (r *Registry) History() []types.Trade {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Trade, len(r.history))
	copy(out, r.history)
	return out
}

// Transitions returns a copy of the full audit trail.
func (r *Registry) Transitions() []types.StateTransition {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.StateTransition, len(r.audit))
	copy(out, r.audit)
	return out
}

func (r *Registry) closeLocked(t *types.Trade, exitPrice float64, outcome types.TradeOutcome, reason string) error {
	if outcome == types.OutcomeNone {
		outcome = types.OutcomeManualClose
	}

	var path []types.TradeState
	switch t.State {
	case types.StatePendingEntry, types.StateEntrySubmitted:
		// never filled: no P&L to realize
		path = []types.TradeState{types.StateCompleted}
		exitPrice = 0
		t.PnL = 0
		t.ROI = 0
	default:
		var ok bool
		path, ok = exitPath[t.State]
		if !ok {
			return &InvalidStateTransition{TradeID: t.ID, From: t.State, To: types.StateCompleted}
		}
		t.CurrentPrice = exitPrice
		t.PnL = pnl(t, exitPrice)
		t.ROI = roi(t)
	}

	t.Outcome = outcome
	t.ExitPrice = exitPrice
	for _, next := range path {
		r.transitionLocked(t, next, reason)
	}
	r.finalizeLocked(t)
	return nil
}

// transitionLocked applies one state hop and appends its audit record in the
// same critical section, so no observer can see the state without the record.
func (r *Registry) transitionLocked(t *types.Trade, to types.TradeState, reason string) {
	from := t.State
	t.State = to
	t.UpdatedAt = r.now()
	r.appendAuditLocked(t.ID, from, to, reason)
}

func (r *Registry) appendAuditLocked(id string, from, to types.TradeState, reason string) {
	r.nextAuditID++
	rec := types.StateTransition{
		ID:        r.nextAuditID,
		TradeID:   id,
		From:      from,
		To:        to,
		Timestamp: r.now(),
		Reason:    reason,
	}
	r.audit = append(r.audit, rec)
	if r.sink != nil {
		r.sink(rec)
	}
}

func (r *Registry) finalizeLocked(t *types.Trade) {
	r.history = append(r.history, *t)
	r.historyIDs[t.ID] = true
	delete(r.active, t.ID)
}

func pnl(t *types.Trade, price float64) float64 {
	if t.EntryPrice == 0 {
		return 0
	}
	return t.Direction.Sign() * (price - t.EntryPrice) * t.Size * t.Leverage / t.EntryPrice
}

func roi(t *types.Trade) float64 {
	if t.Size == 0 {
		return 0
	}
	return t.PnL / t.Size * 100
}

func crossedTakeProfit(t *types.Trade, price float64) bool {
	if t.TakeProfit == 0 {
		return false
	}
	if t.Direction == types.DirectionShort {
		return price <= t.TakeProfit
	}
	return price >= t.TakeProfit
}

func crossedStopLoss(t *types.Trade, price float64) bool {
	if t.StopLoss == 0 {
		return false
	}
	if t.Direction == types.DirectionShort {
		return price >= t.StopLoss
	}
	return price <= t.StopLoss
}
