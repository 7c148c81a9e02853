package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-trading-bot/internal/types"
)

func newLongTrade(id string) types.Trade {
	return types.Trade{
		ID:         id,
		Symbol:     "BTC-USD",
		Direction:  types.DirectionLong,
		EntryPrice: 100,
		StopLoss:   95,
		TakeProfit: 105,
		Size:       10,
		Leverage:   1,
	}
}

func activate(t *testing.T, r *Registry, id string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, r.UpdateTradeState(ctx, id, types.StateEntrySubmitted, "order sent"))
	require.NoError(t, r.UpdateTradeState(ctx, id, types.StateActive, "order filled"))
}

func TestLifecycleForwardOnly(t *testing.T) {
	ctx := context.Background()
	r := New()
	require.NoError(t, r.AddTrade(ctx, newLongTrade("t1")))

	// skipping a state is illegal
	var ist *InvalidStateTransition
	err := r.UpdateTradeState(ctx, "t1", types.StateActive, "skip")
	require.ErrorAs(t, err, &ist)

	activate(t, r, "t1")

	// regression is illegal
	err = r.UpdateTradeState(ctx, "t1", types.StateEntrySubmitted, "rewind")
	require.ErrorAs(t, err, &ist)
	assert.Equal(t, types.StateActive, ist.From)
}

func TestDuplicateIDs(t *testing.T) {
	ctx := context.Background()
	r := New()
	require.NoError(t, r.AddTrade(ctx, newLongTrade("t1")))
	assert.ErrorIs(t, r.AddTrade(ctx, newLongTrade("t1")), ErrDuplicateTrade)

	activate(t, r, "t1")
	_, err := r.CloseTrade(ctx, "t1", 101, types.OutcomeManualClose, "done")
	require.NoError(t, err)

	// completed ids never re-enter the active map
	assert.ErrorIs(t, r.AddTrade(ctx, newLongTrade("t1")), ErrDuplicateTrade)
}

func TestCompletedIsTerminal(t *testing.T) {
	ctx := context.Background()
	r := New()
	require.NoError(t, r.AddTrade(ctx, newLongTrade("t1")))
	activate(t, r, "t1")
	closed, err := r.CloseTrade(ctx, "t1", 104, types.OutcomeManualClose, "manual")
	require.NoError(t, err)
	assert.Equal(t, types.StateCompleted, closed.State)

	assert.Equal(t, 0, r.ActiveCount())
	require.Len(t, r.History(), 1)

	var ist *InvalidStateTransition
	assert.ErrorAs(t, r.UpdateTradeState(ctx, "t1", types.StateActive, "revive"), &ist)
	_, err = r.UpdateTradePrice(ctx, "t1", 110)
	assert.ErrorAs(t, err, &ist)
	_, err = r.CloseTrade(ctx, "t1", 110, types.OutcomeManualClose, "again")
	assert.ErrorAs(t, err, &ist)
	require.Len(t, r.History(), 1)
}

func TestTakeProfitBeatsStopLossSameTick(t *testing.T) {
	ctx := context.Background()
	r := New()

	// stop-loss above take-profit so a single tick at 105 notionally
	// breaches both thresholds
	trade := newLongTrade("t1")
	trade.StopLoss = 110
	require.NoError(t, r.AddTrade(ctx, trade))
	activate(t, r, "t1")

	outcome, err := r.UpdateTradePrice(ctx, "t1", 105)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeTakeProfitHit, outcome)

	got, ok := r.Trade("t1")
	require.True(t, ok)
	assert.Equal(t, types.StatePendingExit, got.State)
	assert.Equal(t, types.OutcomeTakeProfitHit, got.Outcome)
}

func TestStopLossTrigger(t *testing.T) {
	ctx := context.Background()
	r := New()
	require.NoError(t, r.AddTrade(ctx, newLongTrade("t1")))
	activate(t, r, "t1")

	outcome, err := r.UpdateTradePrice(ctx, "t1", 94.5)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeStopLossHit, outcome)
}

func TestShortDirectionTriggers(t *testing.T) {
	ctx := context.Background()
	r := New()
	trade := types.Trade{
		ID: "s1", Symbol: "ETH-USD", Direction: types.DirectionShort,
		EntryPrice: 200, StopLoss: 210, TakeProfit: 190, Size: 5, Leverage: 2,
	}
	require.NoError(t, r.AddTrade(ctx, trade))
	activate(t, r, "s1")

	outcome, err := r.UpdateTradePrice(ctx, "s1", 189)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeTakeProfitHit, outcome)

	got, _ := r.Trade("s1")
	// short pnl: -1 * (189-200) * 5 * 2 / 200 = 0.55
	assert.InDelta(t, 0.55, got.PnL, 1e-9)
	assert.InDelta(t, 11.0, got.ROI, 1e-9)
}

func TestExpiryOnlyWhenNoThresholdCrossed(t *testing.T) {
	ctx := context.Background()
	r := New()
	r.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	trade := newLongTrade("t1")
	trade.Expiration = time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	require.NoError(t, r.AddTrade(ctx, trade))
	activate(t, r, "t1")

	// expired AND take-profit crossed: take-profit wins
	outcome, err := r.UpdateTradePrice(ctx, "t1", 106)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeTakeProfitHit, outcome)

	trade2 := newLongTrade("t2")
	trade2.Expiration = time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	require.NoError(t, r.AddTrade(ctx, trade2))
	activate(t, r, "t2")

	outcome, err = r.UpdateTradePrice(ctx, "t2", 101)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeExpired, outcome)
}

func TestPriceUpdateRecomputesPnL(t *testing.T) {
	ctx := context.Background()
	r := New()
	trade := newLongTrade("t1")
	trade.Leverage = 3
	require.NoError(t, r.AddTrade(ctx, trade))
	activate(t, r, "t1")

	_, err := r.UpdateTradePrice(ctx, "t1", 102)
	require.NoError(t, err)

	got, _ := r.Trade("t1")
	// (102-100) * 10 * 3 / 100 = 0.6
	assert.InDelta(t, 0.6, got.PnL, 1e-9)
	assert.InDelta(t, 6.0, got.ROI, 1e-9)
}

func TestAuditTrailAtomicWithTransitions(t *testing.T) {
	ctx := context.Background()
	r := New()

	var sunk []types.StateTransition
	r.OnTransition(func(rec types.StateTransition) { sunk = append(sunk, rec) })

	require.NoError(t, r.AddTrade(ctx, newLongTrade("t1")))
	activate(t, r, "t1")
	_, err := r.CloseTrade(ctx, "t1", 103, types.OutcomeManualClose, "manual close")
	require.NoError(t, err)

	trail := r.Transitions()
	// registered, entry submitted, active, pending exit, exit submitted, completed
	require.Len(t, trail, 6)
	assert.Equal(t, types.StatePendingEntry, trail[0].To)
	assert.Equal(t, types.StateCompleted, trail[len(trail)-1].To)
	for i, rec := range trail {
		assert.Equal(t, uint64(i+1), rec.ID, "audit ids are sequential")
	}
	assert.Equal(t, trail, sunk, "sink sees exactly the audit trail")
}

func TestAbortNeverFilledTradeHasNoPnL(t *testing.T) {
	ctx := context.Background()
	r := New()
	require.NoError(t, r.AddTrade(ctx, newLongTrade("t1")))

	aborted, err := r.AbortTrade(ctx, "t1", "signal expired")
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeAborted, aborted.Outcome)
	hist := r.History()
	require.Len(t, hist, 1)
	assert.Equal(t, types.OutcomeAborted, hist[0].Outcome)
	assert.Zero(t, hist[0].PnL)
}

func TestCloseAllTrades(t *testing.T) {
	ctx := context.Background()
	r := New()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, r.AddTrade(ctx, newLongTrade(id)))
	}
	activate(t, r, "a")
	activate(t, r, "b")
	// "c" stays in PendingEntry

	closed := r.CloseAllTrades(ctx, "emergency stop")
	assert.Len(t, closed, 3)
	assert.Equal(t, 0, r.ActiveCount())
	assert.Len(t, r.History(), 3)
}

func TestMetricsRecomputedFromHistory(t *testing.T) {
	ctx := context.Background()
	r := New()

	wins := []float64{104, 103} // +0.4, +0.3
	for i, exit := range wins {
		id := string(rune('a' + i))
		require.NoError(t, r.AddTrade(ctx, newLongTrade(id)))
		activate(t, r, id)
		_, err := r.CloseTrade(ctx, id, exit, types.OutcomeTakeProfitHit, "tp")
		require.NoError(t, err)
	}
	require.NoError(t, r.AddTrade(ctx, newLongTrade("z")))
	activate(t, r, "z")
	_, err := r.CloseTrade(ctx, "z", 98, types.OutcomeStopLossHit, "sl") // -0.2
	require.NoError(t, err)

	m := r.Metrics()
	assert.Equal(t, 3, m.TotalTrades)
	assert.Equal(t, 2, m.Wins)
	assert.Equal(t, 1, m.Losses)
	assert.InDelta(t, 66.666, m.WinRate, 0.01)
	assert.InDelta(t, 3.5, m.ProfitFactor, 1e-9) // 0.7 / 0.2
	assert.InDelta(t, 0.5, m.TotalPnL, 1e-9)
	assert.InDelta(t, 0.35, m.AverageWin, 1e-9)
	assert.InDelta(t, -0.2, m.AverageLoss, 1e-9)
	assert.InDelta(t, 0.4, m.LargestWin, 1e-9)
	assert.InDelta(t, -0.2, m.LargestLoss, 1e-9)
}
