package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"agent-trading-bot/internal/agents/marketfeed"
	"agent-trading-bot/internal/agents/riskmonitor"
	"agent-trading-bot/internal/agents/signalgen"
	"agent-trading-bot/internal/agents/simulator"
	"agent-trading-bot/internal/bus"
	"agent-trading-bot/internal/coordinator"
	"agent-trading-bot/internal/coordinator/coordobs"
	"agent-trading-bot/internal/exchange"
	"agent-trading-bot/internal/exchange/exchangeobs"
	"agent-trading-bot/internal/interfaces"
	"agent-trading-bot/internal/ledger"
	"agent-trading-bot/internal/logger"
	"agent-trading-bot/internal/registry"
	"agent-trading-bot/internal/store"
	"agent-trading-bot/internal/trace"
	"agent-trading-bot/internal/tradelog"
	"agent-trading-bot/internal/types"
)

// system holds the wired application. coordinator is the observable surface
// used by the run loop; core keeps the concrete type for status reporting.
type system struct {
	coordinator interfaces.Coordinator
	core        *coordinator.Coordinator
	registry    *registry.Registry
	ledger      *ledger.Ledger
	stream      *exchange.Stream

	persisted int
}

// initializeSystem initializes environment, logger and tracer.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

// loadConfig loads and returns the configuration.
func loadConfig(ctx context.Context) (*store.Config, error) {
	cfg, err := store.LoadConfig("config.yaml")
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		return nil, err
	}
	return cfg, nil
}

// compressOldLogs compresses old tradelog files if retention is configured.
func compressOldLogs(ctx context.Context) {
	if v := os.Getenv("TRADER_LOG_RETENTION_DAYS"); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		if err := tradelog.CompressOlder(n); err != nil {
			logger.Warn(ctx, "Failed to compress old logs", "error", err)
		}
	}
}

// buildSystem wires ledger, registry, bus, exchange, agents and coordinator
// from the configuration.
func buildSystem(ctx context.Context, cfg *store.Config) (*system, error) {
	led := ledger.New(cfg.Capital.Total, cfg.Capital.ReservePct)
	reg := registry.New()
	msgBus := bus.New(cfg.Bus.Capacity)

	if cfg.Mode == "DRY_RUN" {
		logger.Warn(ctx, "Running in DRY_RUN mode - orders will be simulated")
	}
	base := exchange.New(exchange.Params{
		Mode:    cfg.Mode,
		BaseURL: cfg.Exchange.BaseURL,
		Timeout: time.Duration(cfg.Exchange.TimeoutSeconds) * time.Second,
	})
	exch := exchangeobs.Wrap(base)
	stream := exchange.NewStream(exchange.StreamParams{
		Mode:        cfg.Mode,
		WSURL:       cfg.Exchange.WSURL,
		Symbols:     cfg.Symbols,
		SimInterval: time.Duration(cfg.Coordinator.TickMillis) * time.Millisecond,
	}, base)

	core := coordinator.New(coordinator.Params{
		Ledger:           led,
		Registry:         reg,
		Bus:              msgBus,
		Exchange:         exch,
		DegradeThreshold: cfg.Coordinator.DegradeThreshold,
	})

	if err := registerAgents(ctx, cfg, core, led, reg, msgBus, exch, stream); err != nil {
		return nil, err
	}

	reg.OnTransition(func(rec types.StateTransition) {
		if err := tradelog.AppendTransition(rec); err != nil {
			logger.Warn(ctx, "Failed to persist transition", "trade_id", rec.TradeID, "error", err)
		}
	})

	if err := stream.Start(ctx); err != nil {
		return nil, fmt.Errorf("start market stream: %w", err)
	}

	return &system{
		coordinator: coordobs.Wrap(core),
		core:        core,
		registry:    reg,
		ledger:      led,
		stream:      stream,
	}, nil
}

// registerAgents constructs the enabled agents, attaches them to the
// coordinator and funds the trading agent's allocation.
func registerAgents(ctx context.Context, cfg *store.Config, core *coordinator.Coordinator,
	led *ledger.Ledger, reg *registry.Registry, msgBus *bus.Bus,
	exch interfaces.ExchangeClient, stream *exchange.Stream) error {

	if cfg.Agents.MarketFeed.Enabled {
		if err := core.RegisterAgent(marketfeed.New(stream.C())); err != nil {
			return err
		}
	}

	if cfg.Agents.Signal.Enabled {
		agent := signalgen.New(signalgen.Params{
			Exchange:          exch,
			Ledger:            led,
			Symbols:           cfg.Symbols,
			MomentumWindow:    cfg.Agents.Signal.MomentumWindow,
			MomentumThreshold: cfg.Agents.Signal.MomentumThreshold,
			StopLossPct:       cfg.Agents.Signal.StopLossPct,
			TakeProfitPct:     cfg.Agents.Signal.TakeProfitPct,
			PositionPct:       cfg.Agents.Signal.PositionPct,
			Leverage:          cfg.Agents.Signal.Leverage,
			SignalTTL:         time.Duration(cfg.Agents.Signal.SignalTTLSeconds) * time.Second,
		})
		if err := core.RegisterAgent(agent); err != nil {
			return err
		}
		if err := led.Allocate(ctx, agent.Name(), cfg.Agents.Signal.Allocation); err != nil {
			return fmt.Errorf("fund signal agent: %w", err)
		}
	}

	if cfg.Agents.Risk.Enabled {
		agent := riskmonitor.New(riskmonitor.Params{
			Ledger:         led,
			Registry:       reg,
			MaxDrawdownPct: cfg.Agents.Risk.MaxDrawdownPct,
			ResumePct:      cfg.Agents.Risk.ResumePct,
		})
		if err := core.RegisterAgent(agent); err != nil {
			return err
		}
	}

	if cfg.Agents.Simulator.Enabled {
		inbox, err := msgBus.Register("simulator")
		if err != nil {
			return err
		}
		agent := simulator.New(simulator.Params{Inbox: inbox, Runs: cfg.Agents.Simulator.Runs})
		if err := core.RegisterAgent(agent); err != nil {
			return err
		}
	}

	return nil
}

// persistCompleted appends newly completed trades to the trade log.
func (s *system) persistCompleted(ctx context.Context) {
	history := s.registry.History()
	for _, t := range history[s.persisted:] {
		if err := tradelog.AppendTrade(t); err != nil {
			logger.Warn(ctx, "Failed to persist trade", "trade_id", t.ID, "error", err)
		}
	}
	s.persisted = len(history)
}

// logStatus reports agent health and capital state.
func (s *system) logStatus(ctx context.Context) {
	snap := s.ledger.Snapshot()
	logger.Info(ctx, "Capital",
		"total", snap.Total, "available", snap.Available,
		"reserve", snap.Reserve, "open_trades", s.registry.ActiveCount(),
		"halted", s.ledger.Halted())

	for _, status := range s.core.AgentStatuses() {
		logger.Info(ctx, "Agent status",
			"agent", status.AgentName, "active", status.Active,
			"health", status.Health, "errors", status.ErrorCount)
	}
}
