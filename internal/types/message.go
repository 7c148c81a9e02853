package types

import "time"

// MessageKind tags the concrete type of a bus message.
type MessageKind string

const (
	KindTradeSignal      MessageKind = "TRADE_SIGNAL"
	KindMarketData       MessageKind = "MARKET_DATA"
	KindSimulationResult MessageKind = "SIMULATION_RESULT"
	KindMacroWarning     MessageKind = "MACRO_WARNING"
	KindAgentStatus      MessageKind = "AGENT_STATUS"
	KindSystemCommand    MessageKind = "SYSTEM_COMMAND"
)

// Message is the tagged union passed through the bus. Concrete messages are
// plain value structs; they are immutable once constructed and move by value.
type Message interface {
	Kind() MessageKind
	Source() string
}

// TradeSignal is a request from an agent to open a position.
type TradeSignal struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Direction    Direction `json:"direction"`
	EntryPrice   float64   `json:"entry_price"`
	StopLoss     float64   `json:"stop_loss"`
	TakeProfit   float64   `json:"take_profit"`
	PositionSize float64   `json:"position_size"`
	Leverage     float64   `json:"leverage"`
	Confidence   float64   `json:"confidence"`
	SourceAgent  string    `json:"source_agent"`
	Timestamp    time.Time `json:"timestamp"`
	Expiration   time.Time `json:"expiration,omitempty"`
}

func (TradeSignal) Kind() MessageKind { return KindTradeSignal }
func (m TradeSignal) Source() string  { return m.SourceAgent }

// MarketData is a price observation fanned out to interested agents and
// applied to open trades by the coordinator.
type MarketData struct {
	Symbol      string    `json:"symbol"`
	Price       float64   `json:"price"`
	Bid         float64   `json:"bid"`
	Ask         float64   `json:"ask"`
	Volume      float64   `json:"volume"`
	SourceAgent string    `json:"source_agent"`
	Timestamp   time.Time `json:"timestamp"`
}

func (MarketData) Kind() MessageKind { return KindMarketData }
func (m MarketData) Source() string  { return m.SourceAgent }

// SimulationResult carries the outcome of a Monte Carlo run for a signal.
type SimulationResult struct {
	SignalID       string    `json:"signal_id"`
	Symbol         string    `json:"symbol"`
	Runs           int       `json:"runs"`
	WinProbability float64   `json:"win_probability"`
	ExpectedROI    float64   `json:"expected_roi"`
	MaxDrawdown    float64   `json:"max_drawdown"`
	SourceAgent    string    `json:"source_agent"`
	Timestamp      time.Time `json:"timestamp"`
}

func (SimulationResult) Kind() MessageKind { return KindSimulationResult }
func (m SimulationResult) Source() string  { return m.SourceAgent }

// MacroWarning flags a market-wide or account-wide risk condition.
type MacroWarning struct {
	Severity    string    `json:"severity"`
	Code        string    `json:"code"`
	Detail      string    `json:"detail"`
	SourceAgent string    `json:"source_agent"`
	Timestamp   time.Time `json:"timestamp"`
}

func (MacroWarning) Kind() MessageKind { return KindMacroWarning }
func (m MacroWarning) Source() string  { return m.SourceAgent }

// AgentStatus is the coordinator's health view of one agent.
type AgentStatus struct {
	AgentName  string    `json:"agent_name"`
	Active     bool      `json:"active"`
	Health     string    `json:"health"`
	ErrorCount int       `json:"error_count"`
	LastError  string    `json:"last_error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func (AgentStatus) Kind() MessageKind { return KindAgentStatus }
func (m AgentStatus) Source() string  { return m.AgentName }

// CommandKind enumerates the system commands agents may issue.
type CommandKind string

const (
	CommandPauseTrading  CommandKind = "PAUSE_TRADING"
	CommandResumeTrading CommandKind = "RESUME_TRADING"
	CommandShutdown      CommandKind = "SHUTDOWN"
	CommandRestart       CommandKind = "RESTART"
	CommandEnableAgent   CommandKind = "ENABLE_AGENT"
	CommandDisableAgent  CommandKind = "DISABLE_AGENT"
	CommandSetParameter  CommandKind = "SET_PARAMETER"
	CommandCustom        CommandKind = "CUSTOM"
)

// SystemCommand instructs the coordinator to change run state or agent state.
type SystemCommand struct {
	Command     CommandKind `json:"command"`
	AgentName   string      `json:"agent_name,omitempty"`
	Parameter   string      `json:"parameter,omitempty"`
	Value       string      `json:"value,omitempty"`
	Reason      string      `json:"reason,omitempty"`
	SourceAgent string      `json:"source_agent"`
	Timestamp   time.Time   `json:"timestamp"`
}

func (SystemCommand) Kind() MessageKind { return KindSystemCommand }
func (m SystemCommand) Source() string  { return m.SourceAgent }
