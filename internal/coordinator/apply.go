package coordinator

import (
	"context"
	"fmt"
	"time"

	"agent-trading-bot/internal/logger"
	"agent-trading-bot/internal/types"
)

// applyMessage performs the coordinator-side effect of one message. The
// returned bool reports whether the message changed ledger or registry state;
// messages without a coordinator-side effect are still published.
func (c *Coordinator) applyMessage(ctx context.Context, msg types.Message) (bool, error) {
	switch m := msg.(type) {
	case types.TradeSignal:
		return c.applyTradeSignal(ctx, m)
	case types.MarketData:
		return c.applyMarketData(ctx, m)
	case types.SystemCommand:
		if err := c.execCommandLocked(ctx, m); err != nil {
			return false, err
		}
		return true, nil
	case types.MacroWarning:
		logger.Warn(ctx, "Macro warning",
			"severity", m.Severity, "code", m.Code,
			"detail", m.Detail, "source", m.SourceAgent)
		return false, nil
	default:
		return false, nil
	}
}

// applyTradeSignal opens a position: commit capital from the signalling
// agent's allocation, register the trade, submit the entry order and mark it
// filled. Any failure after capital was committed unwinds both the trade and
// the capital, so a rejected order never leaks funds.
func (c *Coordinator) applyTradeSignal(ctx context.Context, sig types.TradeSignal) (bool, error) {
	if c.state == types.RunStatePaused {
		logger.Debug(ctx, "Trade signal ignored while paused",
			"signal_id", sig.ID, "source", sig.SourceAgent)
		return false, nil
	}
	now := time.Now().UTC()
	if !sig.Expiration.IsZero() && now.After(sig.Expiration) {
		logger.Debug(ctx, "Trade signal expired before application",
			"signal_id", sig.ID, "source", sig.SourceAgent)
		return false, nil
	}

	leverage := sig.Leverage
	if leverage <= 0 {
		leverage = 1
	}
	if err := c.ledger.UseCapital(ctx, sig.SourceAgent, sig.PositionSize); err != nil {
		return false, fmt.Errorf("commit capital for signal %s: %w", sig.ID, err)
	}

	trade := types.Trade{
		ID:           sig.ID,
		Symbol:       sig.Symbol,
		Direction:    sig.Direction,
		EntryPrice:   sig.EntryPrice,
		StopLoss:     sig.StopLoss,
		TakeProfit:   sig.TakeProfit,
		Size:         sig.PositionSize,
		Leverage:     leverage,
		State:        types.StatePendingEntry,
		Contributors: []string{sig.SourceAgent},
		Expiration:   sig.Expiration,
	}
	if err := c.registry.AddTrade(ctx, trade); err != nil {
		c.refundCapital(ctx, sig.SourceAgent, sig.PositionSize)
		return false, fmt.Errorf("register trade %s: %w", sig.ID, err)
	}

	if err := c.registry.UpdateTradeState(ctx, sig.ID, types.StateEntrySubmitted, "entry order submitted"); err != nil {
		return false, err
	}
	orderID, err := c.exchange.PlaceOrder(ctx, types.OrderRequest{
		Symbol:    sig.Symbol,
		Direction: sig.Direction,
		Size:      sig.PositionSize,
		Price:     sig.EntryPrice,
		Leverage:  leverage,
		Tag:       "entry:" + sig.ID,
	})
	if err != nil {
		if _, abortErr := c.registry.AbortTrade(ctx, sig.ID, "entry order rejected"); abortErr != nil {
			logger.ErrorWithErr(ctx, "Failed to abort rejected trade", abortErr, "trade_id", sig.ID)
		}
		c.refundCapital(ctx, sig.SourceAgent, sig.PositionSize)
		return false, fmt.Errorf("place entry order for %s: %w", sig.ID, err)
	}
	if err := c.registry.UpdateTradeState(ctx, sig.ID, types.StateActive, "entry filled: "+orderID); err != nil {
		return false, err
	}

	logger.Info(ctx, "Trade opened",
		"trade_id", sig.ID, "symbol", sig.Symbol,
		"direction", string(sig.Direction), "size", sig.PositionSize,
		"entry", sig.EntryPrice, "order_id", orderID, "agent", sig.SourceAgent)
	return true, nil
}

// applyMarketData pushes a price tick into every live trade on the symbol
// and settles the ones whose exit thresholds triggered.
func (c *Coordinator) applyMarketData(ctx context.Context, md types.MarketData) (bool, error) {
	touched := false
	var firstErr error
	for _, t := range c.registry.ActiveTrades() {
		if t.Symbol != md.Symbol {
			continue
		}
		outcome, err := c.registry.UpdateTradePrice(ctx, t.ID, md.Price)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		touched = true
		if outcome == types.OutcomeNone {
			continue
		}
		if err := c.settleTriggered(ctx, t, md.Price, outcome); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return touched, firstErr
}

// settleTriggered submits the exit order for a trade whose threshold fired,
// completes it in the registry and releases its capital. Exit order failures
// are logged but do not block settlement; the internal books close either way.
func (c *Coordinator) settleTriggered(ctx context.Context, t types.Trade, price float64, outcome types.TradeOutcome) error {
	exitDirection := types.DirectionShort
	if t.Direction == types.DirectionShort {
		exitDirection = types.DirectionLong
	}
	if _, err := c.exchange.PlaceOrder(ctx, types.OrderRequest{
		Symbol:    t.Symbol,
		Direction: exitDirection,
		Size:      t.Size,
		Price:     price,
		Leverage:  t.Leverage,
		Tag:       "exit:" + t.ID,
	}); err != nil {
		logger.ErrorWithErr(ctx, "Exit order failed", err,
			"trade_id", t.ID, "outcome", string(outcome))
	}

	closed, err := c.registry.CloseTrade(ctx, t.ID, price, outcome, "exit trigger: "+string(outcome))
	if err != nil {
		return fmt.Errorf("close trade %s: %w", t.ID, err)
	}
	if err := c.settleClosed(ctx, []types.Trade{closed}); err != nil {
		return err
	}

	logger.Info(ctx, "Trade closed",
		"trade_id", closed.ID, "outcome", string(closed.Outcome),
		"exit", closed.ExitPrice, "pnl", closed.PnL, "roi", closed.ROI)
	return nil
}

// settleClosed releases the capital each completed trade was holding back to
// its owning agent, booking the realized P&L.
func (c *Coordinator) settleClosed(ctx context.Context, closed []types.Trade) error {
	var firstErr error
	for _, t := range closed {
		if len(t.Contributors) == 0 {
			logger.Warn(ctx, "Closed trade has no owning agent", "trade_id", t.ID)
			continue
		}
		owner := t.Contributors[0]
		if err := c.ledger.ReleaseCapital(ctx, owner, t.Size, t.PnL); err != nil {
			logger.ErrorWithErr(ctx, "Capital release failed", err,
				"trade_id", t.ID, "agent", owner, "size", t.Size, "pnl", t.PnL)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// refundCapital returns capital committed for a trade that never opened.
func (c *Coordinator) refundCapital(ctx context.Context, agentID string, amount float64) {
	if err := c.ledger.ReleaseCapital(ctx, agentID, amount, 0); err != nil {
		logger.ErrorWithErr(ctx, "Capital refund failed", err,
			"agent", agentID, "amount", amount)
	}
}

// execCommandLocked handles one system command. Pause and resume follow the
// Running <-> Paused edge; RESTART is the only way out of Emergency and is
// refused while the ledger is halted.
func (c *Coordinator) execCommandLocked(ctx context.Context, cmd types.SystemCommand) error {
	logger.Info(ctx, "System command",
		"command", string(cmd.Command), "source", cmd.SourceAgent,
		"agent_name", cmd.AgentName, "reason", cmd.Reason)

	switch cmd.Command {
	case types.CommandPauseTrading:
		if c.state == types.RunStateRunning {
			c.state = types.RunStatePaused
			logger.Warn(ctx, "Trading paused", "reason", cmd.Reason, "source", cmd.SourceAgent)
		}
		return nil

	case types.CommandResumeTrading:
		if c.state == types.RunStatePaused {
			c.state = types.RunStateRunning
			logger.Info(ctx, "Trading resumed", "reason", cmd.Reason, "source", cmd.SourceAgent)
		}
		return nil

	case types.CommandShutdown:
		if c.state == types.RunStateShuttingDown {
			return nil
		}
		c.state = types.RunStateShuttingDown
		closed := c.registry.CloseAllTrades(ctx, "shutdown command: "+cmd.Reason)
		return c.settleClosed(ctx, closed)

	case types.CommandRestart:
		switch c.state {
		case types.RunStateEmergency:
			if c.ledger.Halted() {
				return ErrLedgerHalted
			}
			c.state = types.RunStateRunning
			logger.Warn(ctx, "Restarted from emergency stop", "source", cmd.SourceAgent)
		case types.RunStatePaused:
			c.state = types.RunStateRunning
		case types.RunStateShuttingDown:
			return ErrShuttingDown
		}
		return nil

	case types.CommandEnableAgent:
		entry, ok := c.byName[cmd.AgentName]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownAgent, cmd.AgentName)
		}
		entry.degraded = false
		entry.consecutive = 0
		entry.agent.SetActive(true)
		return nil

	case types.CommandDisableAgent:
		entry, ok := c.byName[cmd.AgentName]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownAgent, cmd.AgentName)
		}
		entry.agent.SetActive(false)
		return nil

	case types.CommandSetParameter, types.CommandCustom:
		// Parameter changes are applied by the target agents themselves when
		// the command is broadcast; nothing to do coordinator-side.
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Command)
	}
}
