package registry

import (
	"errors"
	"fmt"

	"agent-trading-bot/internal/types"
)

var (
	// ErrDuplicateTrade means a live trade with the same id already exists.
	ErrDuplicateTrade = errors.New("trade id already registered")
	// ErrTradeNotFound means no live trade has the given id.
	ErrTradeNotFound = errors.New("trade not found")
)

// InvalidStateTransition is returned for any move not in the forward-only
// transition table, including every attempt to mutate a Completed trade.
type InvalidStateTransition struct {
	TradeID string
	From    types.TradeState
	To      types.TradeState
}

func (e *InvalidStateTransition) Error() string {
	return fmt.Sprintf("trade %s: illegal transition %s -> %s", e.TradeID, e.From, e.To)
}
