package exchangeobs

import (
	"context"

	"agent-trading-bot/internal/interfaces"
	"agent-trading-bot/internal/logger"
	"agent-trading-bot/internal/trace"
	"agent-trading-bot/internal/types"
)

// observableExchange wraps an ExchangeClient with logging and tracing.
type observableExchange struct {
	client interfaces.ExchangeClient
}

var _ interfaces.ExchangeClient = (*observableExchange)(nil)

// Wrap wraps an exchange client with observability middleware.
func Wrap(client interfaces.ExchangeClient) interfaces.ExchangeClient {
	return &observableExchange{
		client: client,
	}
}

func (oe *observableExchange) GetTicker(ctx context.Context, symbol string) (types.Ticker, error) {
	ctx, span := trace.StartSpan(ctx, "exchange.GetTicker")
	defer span.End()

	ticker, err := oe.client.GetTicker(ctx, symbol)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to fetch ticker", err, "symbol", symbol)
		return types.Ticker{}, err
	}

	logger.Debug(ctx, "Ticker fetched", "symbol", symbol, "price", ticker.Price)
	return ticker, nil
}

func (oe *observableExchange) PlaceOrder(ctx context.Context, req types.OrderRequest) (string, error) {
	ctx, span := trace.StartSpan(ctx, "exchange.PlaceOrder")
	defer span.End()

	logger.Info(ctx, "Placing order",
		"symbol", req.Symbol,
		"direction", string(req.Direction),
		"size", req.Size,
		"price", req.Price,
		"tag", req.Tag,
	)

	orderID, err := oe.client.PlaceOrder(ctx, req)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to place order", err,
			"symbol", req.Symbol, "direction", string(req.Direction), "size", req.Size)
		return "", err
	}

	logger.Info(ctx, "Order placed", "symbol", req.Symbol, "order_id", orderID)
	return orderID, nil
}

func (oe *observableExchange) GetBalance(ctx context.Context) (types.Balance, error) {
	ctx, span := trace.StartSpan(ctx, "exchange.GetBalance")
	defer span.End()

	balance, err := oe.client.GetBalance(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to fetch balance", err)
		return types.Balance{}, err
	}

	logger.Debug(ctx, "Balance fetched", "available", balance.Available, "total", balance.Total)
	return balance, nil
}
