package simulator

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"agent-trading-bot/internal/bus"
	"agent-trading-bot/internal/interfaces"
	"agent-trading-bot/internal/logger"
	"agent-trading-bot/internal/types"
)

const agentName = "simulator"

// maxSteps bounds one simulated price path when neither threshold is hit.
const maxSteps = 500

// stepVol is the per-step standard deviation of the simulated walk, as a
// fraction of price.
const stepVol = 0.005

// Params configures the Monte Carlo simulator.
type Params struct {
	// Inbox is the agent's bus subscription; trade signals arriving on it
	// are simulated.
	Inbox *bus.Subscription
	// Runs is the number of price paths per signal.
	Runs int
	// Seed fixes the random source; zero seeds from the clock.
	Seed int64
}

// Agent replays each observed trade signal through a random-walk Monte Carlo
// and reports the estimated win probability, expected return and worst
// drawdown. Results are advisory; the coordinator publishes them for other
// agents and operators rather than acting on them.
type Agent struct {
	mu     sync.Mutex
	active bool

	inbox *bus.Subscription
	runs  int
	rng   *rand.Rand
}

var _ interfaces.Agent = (*Agent)(nil)

func New(p Params) *Agent {
	seed := p.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Agent{
		active: true,
		inbox:  p.Inbox,
		runs:   p.Runs,
		rng:    rand.New(rand.NewSource(seed)),
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

	var out []types.Message
	for _, msg := range a.inbox.Drain() {
		sig, ok := msg.(types.TradeSignal)
		if !ok {
			continue
		}
		result := a.simulate(sig)
		out = append(out, result)
		logger.Debug(ctx, "Signal simulated",
			"signal_id", sig.ID, "win_probability", result.WinProbability,
			"expected_roi", result.ExpectedROI)
	}
	return out, nil
}

// simulate runs random price paths from the signal's entry until take-profit
// or stop-loss is hit, or the path times out at its last price.
func (a *Agent) simulate(sig types.TradeSignal) types.SimulationResult {
	wins := 0
	var totalROI, worstDrawdown float64
	sign := sig.Direction.Sign()

	for run := 0; run < a.runs; run++ {
		price := sig.EntryPrice
		low := price

		exit := price
		for step := 0; step < maxSteps; step++ {
			price *= 1 + a.rng.NormFloat64()*stepVol
			if sign*price < sign*low {
				low = price
			}
			if hit(sig.TakeProfit, price, sign, true) {
				exit = sig.TakeProfit
				break
			}
			if hit(sig.StopLoss, price, sign, false) {
				exit = sig.StopLoss
				break
			}
			exit = price
		}

		roi := sign * (exit - sig.EntryPrice) / sig.EntryPrice * sig.Leverage * 100
		if roi > 0 {
			wins++
		}
		totalROI += roi

		drawdown := sign * (sig.EntryPrice - low) / sig.EntryPrice
		worstDrawdown = math.Max(worstDrawdown, drawdown)
	}

	return types.SimulationResult{
		SignalID:       sig.ID,
		Symbol:         sig.Symbol,
		Runs:           a.runs,
		WinProbability: float64(wins) / float64(a.runs),
		ExpectedROI:    totalROI / float64(a.runs),
		MaxDrawdown:    worstDrawdown,
		SourceAgent:    agentName,
		Timestamp:      time.Now().UTC(),
	}
}

// hit reports whether price crossed the threshold in the profitable
// direction (favorable=true) or against it.
func hit(threshold, price, sign float64, favorable bool) bool {
	if threshold <= 0 {
		return false
	}
	if favorable {
		return sign*price >= sign*threshold
	}
	return sign*price <= sign*threshold
}
