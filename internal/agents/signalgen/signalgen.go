package signalgen

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agent-trading-bot/internal/interfaces"
	"agent-trading-bot/internal/ledger"
	"agent-trading-bot/internal/logger"
	"agent-trading-bot/internal/types"
)

const agentName = "signalgen"

// Params configures the momentum signal agent.
type Params struct {
	Exchange          interfaces.ExchangeClient
	Ledger            *ledger.Ledger
	Symbols           []string
	MomentumWindow    int
	MomentumThreshold float64
	StopLossPct       float64
	TakeProfitPct     float64
	PositionPct       float64
	Leverage          float64
	SignalTTL         time.Duration
}

// Agent emits trade signals from a simple momentum rule: when price over the
// lookback window has drifted past the threshold in either direction, signal
// a position that way. The window resets after each emitted signal so one
// sustained move produces one signal, not one per tick.
type Agent struct {
	mu     sync.Mutex
	active bool

	exchange  interfaces.ExchangeClient
	ledger    *ledger.Ledger
	symbols   []string
	window    int
	threshold float64
	slPct     float64
	tpPct     float64
	posPct    float64
	leverage  float64
	ttl       time.Duration

	prices map[string][]float64
	seq    uint64
}

var _ interfaces.Agent = (*Agent)(nil)

func New(p Params) *Agent {
	return &Agent{
		active:    true,
		exchange:  p.Exchange,
		ledger:    p.Ledger,
		symbols:   p.Symbols,
		window:    p.MomentumWindow,
		threshold: p.MomentumThreshold,
		slPct:     p.StopLossPct,
		tpPct:     p.TakeProfitPct,
		posPct:    p.PositionPct,
		leverage:  p.Leverage,
		ttl:       p.SignalTTL,
		prices:    make(map[string][]float64),
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

// Process pulls a fresh quote for every tracked symbol and evaluates the
// momentum rule against the accumulated window.
func (a *Agent) Process(ctx context.Context) ([]types.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []types.Message
	var firstErr error
	for _, symbol := range a.symbols {
		ticker, err := a.exchange.GetTicker(ctx, symbol)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("ticker %s: %w", symbol, err)
			}
			continue
		}

		window := append(a.prices[symbol], ticker.Price)
		if len(window) > a.window {
			window = window[len(window)-a.window:]
		}
		a.prices[symbol] = window
		if len(window) < a.window {
			continue
		}

		momentum := (window[len(window)-1] - window[0]) / window[0]
		var direction types.Direction
		switch {
		case momentum >= a.threshold:
			direction = types.DirectionLong
		case momentum <= -a.threshold:
			direction = types.DirectionShort
		default:
			continue
		}

		size := a.positionSize()
		if size <= 0 {
			logger.Debug(ctx, "Momentum trigger with no available capital",
				"symbol", symbol, "momentum", momentum)
			continue
		}

		sig := a.buildSignal(symbol, direction, ticker.Price, size)
		out = append(out, sig)
		a.prices[symbol] = nil
		logger.Info(ctx, "Momentum signal emitted",
			"signal_id", sig.ID, "symbol", symbol,
			"direction", string(direction), "momentum", momentum, "size", size)
	}
	return out, firstErr
}

// positionSize risks a fixed fraction of the agent's uncommitted allocation.
func (a *Agent) positionSize() float64 {
	alloc, ok := a.ledger.Allocation(agentName)
	if !ok {
		return 0
	}
	return alloc.Available() * a.posPct
}

func (a *Agent) buildSignal(symbol string, direction types.Direction, price, size float64) types.TradeSignal {
	a.seq++
	now := time.Now().UTC()

	stopLoss := price * (1 - a.slPct)
	takeProfit := price * (1 + a.tpPct)
	if direction == types.DirectionShort {
		stopLoss = price * (1 + a.slPct)
		takeProfit = price * (1 - a.tpPct)
	}

	return types.TradeSignal{
		ID:           fmt.Sprintf("%s-%s-%d", agentName, symbol, a.seq),
		Symbol:       symbol,
		Direction:    direction,
		EntryPrice:   price,
		StopLoss:     stopLoss,
		TakeProfit:   takeProfit,
		PositionSize: size,
		Leverage:     a.leverage,
		Confidence:   0.5,
		SourceAgent:  agentName,
		Timestamp:    now,
		Expiration:   now.Add(a.ttl),
	}
}
