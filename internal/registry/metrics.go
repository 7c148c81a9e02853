package registry

import "math"

// Metrics are derived trading statistics. They are recomputed from the
// completed-trade history on every call rather than accumulated
// incrementally, so they can never drift from the trades that back them.
type Metrics struct {
	TotalTrades  int     `json:"total_trades"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRate      float64 `json:"win_rate"`
	ProfitFactor float64 `json:"profit_factor"`
	TotalPnL     float64 `json:"total_pnl"`
	AverageWin   float64 `json:"average_win"`
	AverageLoss  float64 `json:"average_loss"`
	LargestWin   float64 `json:"largest_win"`
	LargestLoss  float64 `json:"largest_loss"`
}

// Metrics recomputes derived statistics from history. Aborted trades that
// never realized P&L still count toward the trade total.
func (r *Registry) Metrics() Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	var m Metrics
	var grossProfit, grossLoss float64
	for _, t := range r.history {
		m.TotalTrades++
		m.TotalPnL += t.PnL
		switch {
		case t.PnL > 0:
			m.Wins++
			grossProfit += t.PnL
			m.LargestWin = math.Max(m.LargestWin, t.PnL)
		case t.PnL < 0:
			m.Losses++
			grossLoss += -t.PnL
			m.LargestLoss = math.Min(m.LargestLoss, t.PnL)
		}
	}
	if m.Wins+m.Losses > 0 {
		m.WinRate = float64(m.Wins) / float64(m.Wins+m.Losses) * 100
	}
	if m.Wins > 0 {
		m.AverageWin = grossProfit / float64(m.Wins)
	}
	if m.Losses > 0 {
		m.AverageLoss = -grossLoss / float64(m.Losses)
	}
	if grossLoss > 0 {
		m.ProfitFactor = grossProfit / grossLoss
	} else if grossProfit > 0 {
		m.ProfitFactor = math.Inf(1)
	}
	return m
}
