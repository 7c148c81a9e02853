package store

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Mode    string   `yaml:"mode"`
	Symbols []string `yaml:"symbols"`
	Capital struct {
		Total      float64 `yaml:"total"`
		ReservePct float64 `yaml:"reserve_pct"`
	} `yaml:"capital"`
	Coordinator struct {
		TickMillis       int `yaml:"tick_ms"`
		DegradeThreshold int `yaml:"degrade_threshold"`
	} `yaml:"coordinator"`
	Bus struct {
		Capacity int `yaml:"capacity"`
	} `yaml:"bus"`
	Exchange struct {
		BaseURL        string `yaml:"base_url"`
		WSURL          string `yaml:"ws_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"exchange"`
	Agents struct {
		Signal struct {
			Enabled           bool    `yaml:"enabled"`
			Allocation        float64 `yaml:"allocation"`
			MomentumWindow    int     `yaml:"momentum_window"`
			MomentumThreshold float64 `yaml:"momentum_threshold"`
			StopLossPct       float64 `yaml:"stop_loss_pct"`
			TakeProfitPct     float64 `yaml:"take_profit_pct"`
			PositionPct       float64 `yaml:"position_pct"`
			Leverage          float64 `yaml:"leverage"`
			SignalTTLSeconds  int     `yaml:"signal_ttl_seconds"`
		} `yaml:"signal"`
		Risk struct {
			Enabled        bool    `yaml:"enabled"`
			MaxDrawdownPct float64 `yaml:"max_drawdown_pct"`
			ResumePct      float64 `yaml:"resume_pct"`
		} `yaml:"risk"`
		Simulator struct {
			Enabled bool `yaml:"enabled"`
			Runs    int  `yaml:"runs"`
		} `yaml:"simulator"`
		MarketFeed struct {
			Enabled bool `yaml:"enabled"`
		} `yaml:"market_feed"`
	} `yaml:"agents"`
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if len(c.Symbols) == 0 {
		return errors.New("symbols cannot be empty")
	}
	if c.Capital.Total <= 0 {
		return fmt.Errorf("capital.total must be positive, got %.2f", c.Capital.Total)
	}
	if c.Capital.ReservePct < 0 || c.Capital.ReservePct >= 1 {
		return fmt.Errorf("capital.reserve_pct must be in [0,1), got %.2f", c.Capital.ReservePct)
	}
	if c.Agents.Signal.Enabled && c.Agents.Signal.Allocation <= 0 {
		return errors.New("agents.signal.allocation must be positive when the signal agent is enabled")
	}
	if c.Mode == "LIVE" && c.Exchange.BaseURL == "" {
		return errors.New("exchange.base_url is required in LIVE mode")
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	if c.Coordinator.TickMillis == 0 {
		c.Coordinator.TickMillis = 1000
	}
	if c.Coordinator.DegradeThreshold == 0 {
		c.Coordinator.DegradeThreshold = 5
	}
	if c.Bus.Capacity == 0 {
		c.Bus.Capacity = 100
	}
	if c.Exchange.TimeoutSeconds == 0 {
		c.Exchange.TimeoutSeconds = 10
	}
	if c.Agents.Signal.MomentumWindow == 0 {
		c.Agents.Signal.MomentumWindow = 12
	}
	if c.Agents.Signal.Leverage == 0 {
		c.Agents.Signal.Leverage = 1
	}
	if c.Agents.Signal.SignalTTLSeconds == 0 {
		c.Agents.Signal.SignalTTLSeconds = 300
	}
	if c.Agents.Simulator.Runs == 0 {
		c.Agents.Simulator.Runs = 500
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
