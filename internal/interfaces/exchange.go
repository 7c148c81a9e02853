package interfaces

import (
	"context"

	"agent-trading-bot/internal/types"
)

// ExchangeClient is the market access surface consumed by agents. All calls
// are fallible; timeout and retry policy belong to the caller.
type ExchangeClient interface {
	GetTicker(ctx context.Context, symbol string) (types.Ticker, error)
	PlaceOrder(ctx context.Context, req types.OrderRequest) (string, error)
	GetBalance(ctx context.Context) (types.Balance, error)
}
