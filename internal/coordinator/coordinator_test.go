package coordinator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-trading-bot/internal/bus"
	"agent-trading-bot/internal/interfaces"
	"agent-trading-bot/internal/ledger"
	"agent-trading-bot/internal/registry"
	"agent-trading-bot/internal/types"
)

// scriptedAgent returns one queued batch of messages per Process call.
type scriptedAgent struct {
	name    string
	active  bool
	batches [][]types.Message
	calls   int
	err     error
	panics  bool
}

func (a *scriptedAgent) Process(ctx context.Context) ([]types.Message, error) {
	a.calls++
	if a.panics {
		panic("scripted panic")
	}
	if a.err != nil {
		return nil, a.err
	}
	if len(a.batches) == 0 {
		return nil, nil
	}
	batch := a.batches[0]
	a.batches = a.batches[1:]
	return batch, nil
}

func (a *scriptedAgent) Name() string          { return a.name }
func (a *scriptedAgent) IsActive() bool        { return a.active }
func (a *scriptedAgent) SetActive(active bool) { a.active = active }

type fakeExchange struct {
	orders     []types.OrderRequest
	failOrders bool
}

func (f *fakeExchange) GetTicker(ctx context.Context, symbol string) (types.Ticker, error) {
	return types.Ticker{Symbol: symbol, Price: 100}, nil
}

func (f *fakeExchange) PlaceOrder(ctx context.Context, req types.OrderRequest) (string, error) {
	if f.failOrders {
		return "", errors.New("order rejected")
	}
	f.orders = append(f.orders, req)
	return fmt.Sprintf("ORD-%d", len(f.orders)), nil
}

func (f *fakeExchange) GetBalance(ctx context.Context) (types.Balance, error) {
	return types.Balance{Available: 1000, Total: 1000}, nil
}

func newTestCoordinator(t *testing.T, exch interfaces.ExchangeClient, agents ...interfaces.Agent) (*Coordinator, *ledger.Ledger, *registry.Registry) {
	t.Helper()
	l := ledger.New(1000, 0)
	r := registry.New()
	c := New(Params{
		Ledger:           l,
		Registry:         r,
		Bus:              bus.New(16),
		Exchange:         exch,
		DegradeThreshold: 3,
	})
	for _, a := range agents {
		require.NoError(t, c.RegisterAgent(a))
	}
	return c, l, r
}

func signal(id, agent string, size float64) types.TradeSignal {
	return types.TradeSignal{
		ID:           id,
		Symbol:       "BTCUSDT",
		Direction:    types.DirectionLong,
		EntryPrice:   100,
		StopLoss:     95,
		TakeProfit:   110,
		PositionSize: size,
		Leverage:     1,
		SourceAgent:  agent,
		Timestamp:    time.Now().UTC(),
	}
}

func TestTickRequiresStart(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCoordinator(t, &fakeExchange{})

	_, err := c.Tick(ctx)
	require.ErrorIs(t, err, ErrNotRunning)

	require.NoError(t, c.Start(ctx))
	require.ErrorIs(t, c.Start(ctx), ErrAlreadyStarted)
	assert.Equal(t, types.RunStateRunning, c.State())
}

func TestTradeSignalOpensTrade(t *testing.T) {
	ctx := context.Background()
	exch := &fakeExchange{}
	agent := &scriptedAgent{name: "signals", active: true,
		batches: [][]types.Message{{signal("sig-1", "signals", 200)}}}
	c, l, r := newTestCoordinator(t, exch, agent)
	require.NoError(t, l.Allocate(ctx, "signals", 500))
	require.NoError(t, c.Start(ctx))

	report, err := c.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Messages)
	assert.Equal(t, 1, report.Applied)
	assert.Zero(t, report.Errors)

	trade, ok := r.Trade("sig-1")
	require.True(t, ok)
	assert.Equal(t, types.StateActive, trade.State)
	assert.Equal(t, []string{"signals"}, trade.Contributors)

	alloc, ok := l.Allocation("signals")
	require.True(t, ok)
	assert.InDelta(t, 200, alloc.Used, 1e-9)

	require.Len(t, exch.orders, 1)
	assert.Equal(t, "entry:sig-1", exch.orders[0].Tag)
}

func TestTakeProfitSettlesAndReleasesCapital(t *testing.T) {
	ctx := context.Background()
	exch := &fakeExchange{}
	agent := &scriptedAgent{name: "signals", active: true, batches: [][]types.Message{
		{signal("sig-1", "signals", 200)},
		{types.MarketData{Symbol: "BTCUSDT", Price: 111, SourceAgent: "signals", Timestamp: time.Now().UTC()}},
	}}
	c, l, r := newTestCoordinator(t, exch, agent)
	require.NoError(t, l.Allocate(ctx, "signals", 500))
	require.NoError(t, c.Start(ctx))

	_, err := c.Tick(ctx)
	require.NoError(t, err)
	_, err = c.Tick(ctx)
	require.NoError(t, err)

	assert.Zero(t, r.ActiveCount())
	history := r.History()
	require.Len(t, history, 1)
	assert.Equal(t, types.OutcomeTakeProfitHit, history[0].Outcome)
	assert.InDelta(t, 22, history[0].PnL, 1e-9) // (111-100)/100 * 200

	alloc, ok := l.Allocation("signals")
	require.True(t, ok)
	assert.Zero(t, alloc.Used)
	assert.InDelta(t, 22, alloc.PnL, 1e-9)
	assert.InDelta(t, 1022, l.TotalCapital(), 1e-9)

	require.Len(t, exch.orders, 2)
	assert.Equal(t, "exit:sig-1", exch.orders[1].Tag)
	assert.Equal(t, types.DirectionShort, exch.orders[1].Direction)
}

func TestPausedTickRunsAgentsButSkipsSignals(t *testing.T) {
	ctx := context.Background()
	monitor := &scriptedAgent{name: "monitor", active: true, batches: [][]types.Message{
		{signal("sig-1", "monitor", 100)},
		{types.SystemCommand{Command: types.CommandResumeTrading, SourceAgent: "monitor"}},
	}}
	c, l, r := newTestCoordinator(t, &fakeExchange{}, monitor)
	require.NoError(t, l.Allocate(ctx, "monitor", 500))
	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Dispatch(ctx, types.SystemCommand{Command: types.CommandPauseTrading, SourceAgent: "test"}))
	assert.Equal(t, types.RunStatePaused, c.State())

	report, err := c.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, monitor.calls)
	assert.Zero(t, report.Applied)
	assert.Zero(t, r.ActiveCount())

	// The monitoring agent can still resume trading from a paused tick.
	_, err = c.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.RunStateRunning, c.State())
}

func TestAgentPanicIsIsolated(t *testing.T) {
	ctx := context.Background()
	broken := &scriptedAgent{name: "broken", active: true, panics: true}
	healthy := &scriptedAgent{name: "signals", active: true,
		batches: [][]types.Message{{signal("sig-1", "signals", 100)}}}
	c, l, r := newTestCoordinator(t, &fakeExchange{}, broken, healthy)
	require.NoError(t, l.Allocate(ctx, "signals", 500))
	require.NoError(t, c.Start(ctx))

	report, err := c.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, 1, report.Applied)
	assert.Equal(t, 1, r.ActiveCount())
}

func TestConsecutiveFailuresDegradeAgent(t *testing.T) {
	ctx := context.Background()
	flaky := &scriptedAgent{name: "flaky", active: true, err: errors.New("feed down")}
	c, _, _ := newTestCoordinator(t, &fakeExchange{}, flaky)
	require.NoError(t, c.Start(ctx))

	for i := 0; i < 3; i++ {
		_, err := c.Tick(ctx)
		require.NoError(t, err)
	}
	assert.False(t, flaky.IsActive())

	statuses := c.AgentStatuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, "DEGRADED", statuses[0].Health)
	assert.Equal(t, 3, statuses[0].ErrorCount)
	assert.Equal(t, "feed down", statuses[0].LastError)

	// A degraded agent is skipped rather than retried.
	_, err := c.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, flaky.calls)

	require.NoError(t, c.Dispatch(ctx, types.SystemCommand{
		Command: types.CommandEnableAgent, AgentName: "flaky", SourceAgent: "test"}))
	assert.True(t, flaky.IsActive())
	statuses = c.AgentStatuses()
	assert.Equal(t, "OK", statuses[0].Health)
}

func TestRejectedEntryOrderRefundsCapital(t *testing.T) {
	ctx := context.Background()
	exch := &fakeExchange{failOrders: true}
	agent := &scriptedAgent{name: "signals", active: true,
		batches: [][]types.Message{{signal("sig-1", "signals", 200)}}}
	c, l, r := newTestCoordinator(t, exch, agent)
	require.NoError(t, l.Allocate(ctx, "signals", 500))
	require.NoError(t, c.Start(ctx))

	report, err := c.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Errors)
	assert.Zero(t, report.Applied)

	assert.Zero(t, r.ActiveCount())
	history := r.History()
	require.Len(t, history, 1)
	assert.Equal(t, types.OutcomeAborted, history[0].Outcome)

	alloc, ok := l.Allocation("signals")
	require.True(t, ok)
	assert.Zero(t, alloc.Used)
	assert.InDelta(t, 1000, l.TotalCapital(), 1e-9)
}

func TestSignalExpiredBeforeApplicationIsDropped(t *testing.T) {
	ctx := context.Background()
	stale := signal("sig-1", "signals", 100)
	stale.Expiration = time.Now().UTC().Add(-time.Minute)
	agent := &scriptedAgent{name: "signals", active: true,
		batches: [][]types.Message{{stale}}}
	c, l, r := newTestCoordinator(t, &fakeExchange{}, agent)
	require.NoError(t, l.Allocate(ctx, "signals", 500))
	require.NoError(t, c.Start(ctx))

	report, err := c.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Applied)
	assert.Zero(t, report.Errors)
	assert.Zero(t, r.ActiveCount())

	alloc, _ := l.Allocation("signals")
	assert.Zero(t, alloc.Used)
}

func TestEmergencyStopClosesAllAndBlocksTicks(t *testing.T) {
	ctx := context.Background()
	agent := &scriptedAgent{name: "signals", active: true,
		batches: [][]types.Message{{signal("sig-1", "signals", 200)}}}
	c, l, r := newTestCoordinator(t, &fakeExchange{}, agent)
	require.NoError(t, l.Allocate(ctx, "signals", 500))
	require.NoError(t, c.Start(ctx))

	_, err := c.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, r.ActiveCount())

	require.NoError(t, c.EmergencyStop(ctx, "drawdown breach"))
	assert.Equal(t, types.RunStateEmergency, c.State())
	assert.Zero(t, r.ActiveCount())

	alloc, _ := l.Allocation("signals")
	assert.Zero(t, alloc.Used)

	_, err = c.Tick(ctx)
	require.ErrorIs(t, err, ErrEmergencyStopped)

	require.NoError(t, c.Dispatch(ctx, types.SystemCommand{
		Command: types.CommandRestart, SourceAgent: "operator"}))
	assert.Equal(t, types.RunStateRunning, c.State())
}

func TestShutdownIsIdempotent(t *testing.T) {
	ctx := context.Background()
	agent := &scriptedAgent{name: "signals", active: true,
		batches: [][]types.Message{{signal("sig-1", "signals", 200)}}}
	c, l, r := newTestCoordinator(t, &fakeExchange{}, agent)
	require.NoError(t, l.Allocate(ctx, "signals", 500))
	require.NoError(t, c.Start(ctx))
	_, err := c.Tick(ctx)
	require.NoError(t, err)

	require.NoError(t, c.Shutdown(ctx))
	assert.Equal(t, types.RunStateShuttingDown, c.State())
	assert.Zero(t, r.ActiveCount())
	alloc, _ := l.Allocation("signals")
	assert.Zero(t, alloc.Used)

	require.NoError(t, c.Shutdown(ctx))
	_, err = c.Tick(ctx)
	require.ErrorIs(t, err, ErrShuttingDown)
}

func TestDispatchUnknownAgent(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCoordinator(t, &fakeExchange{})
	require.NoError(t, c.Start(ctx))

	err := c.Dispatch(ctx, types.SystemCommand{
		Command: types.CommandDisableAgent, AgentName: "ghost", SourceAgent: "test"})
	require.ErrorIs(t, err, ErrUnknownAgent)
}

func TestDuplicateAgentRegistration(t *testing.T) {
	a := &scriptedAgent{name: "signals", active: true}
	b := &scriptedAgent{name: "signals", active: true}
	c, _, _ := newTestCoordinator(t, &fakeExchange{}, a)
	require.ErrorIs(t, c.RegisterAgent(b), ErrDuplicateAgent)
}
