package coordinator

import "errors"

var (
	// ErrNotRunning means Tick was called before Start or after Shutdown.
	ErrNotRunning = errors.New("coordinator is not running")
	// ErrAlreadyStarted means Start was called twice.
	ErrAlreadyStarted = errors.New("coordinator already started")
	// ErrEmergencyStopped means the run loop was frozen by an emergency stop
	// and needs an explicit RESTART command to resume.
	ErrEmergencyStopped = errors.New("coordinator is emergency stopped")
	// ErrShuttingDown means the coordinator will accept no further work.
	ErrShuttingDown = errors.New("coordinator is shutting down")
	// ErrUnknownAgent means a command named an agent that was never registered.
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrDuplicateAgent means an agent name was registered twice.
	ErrDuplicateAgent = errors.New("agent already registered")
	// ErrUnknownCommand means the command kind is not one the coordinator handles.
	ErrUnknownCommand = errors.New("unknown system command")
	// ErrLedgerHalted means the capital ledger froze on an invariant violation
	// and the coordinator refuses to open new positions.
	ErrLedgerHalted = errors.New("capital ledger is halted")
)
