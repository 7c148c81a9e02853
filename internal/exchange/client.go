package exchange

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"

	"agent-trading-bot/internal/interfaces"
	"agent-trading-bot/internal/types"
)

// ErrUpstreamTimeout flags an exchange call that ran out of time. The caller
// owns backoff and retry.
var ErrUpstreamTimeout = errors.New("exchange request timed out")

type Params struct {
	Mode    string // DRY_RUN or LIVE
	BaseURL string
	Timeout time.Duration
}

// Client talks to the exchange REST API. In DRY_RUN mode every call is
// served from an in-process random-walk simulation, so the rest of the
// system exercises the same code paths without network access.
type Client struct {
	p        Params
	http     *resty.Client
	orderSeq atomic.Uint64

	mu  sync.Mutex
	sim map[string]float64
	rng *rand.Rand
}

var _ interfaces.ExchangeClient = (*Client)(nil)

func New(p Params) *Client {
	if p.Timeout == 0 {
		p.Timeout = 10 * time.Second
	}
	http := resty.New()
	http.SetBaseURL(p.BaseURL)
	http.SetTimeout(p.Timeout)

	return &Client{
		p:    p,
		http: http,
		sim:  make(map[string]float64),
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

type tickerResponse struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Volume float64 `json:"volume"`
}

func (c *Client) GetTicker(ctx context.Context, symbol string) (types.Ticker, error) {
	if c.p.Mode == "DRY_RUN" {
		return c.simTicker(symbol), nil
	}

	var body tickerResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&body).
		Get("/ticker")
	if err != nil {
		return types.Ticker{}, wrapTimeout(err)
	}
	if resp.StatusCode() != 200 {
		return types.Ticker{}, fmt.Errorf("ticker %s: exchange returned %d: %s", symbol, resp.StatusCode(), resp.String())
	}
	return types.Ticker{
		Symbol: symbol,
		Price:  body.Price,
		Bid:    body.Bid,
		Ask:    body.Ask,
		Volume: body.Volume,
	}, nil
}

type orderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (c *Client) PlaceOrder(ctx context.Context, req types.OrderRequest) (string, error) {
	if c.p.Mode == "DRY_RUN" {
		return fmt.Sprintf("SIM-%d", c.orderSeq.Add(1)), nil
	}

	var body orderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&body).
		Post("/orders")
	if err != nil {
		return "", wrapTimeout(err)
	}
	if resp.StatusCode() != 200 && resp.StatusCode() != 201 {
		return "", fmt.Errorf("order %s %s: exchange returned %d: %s",
			req.Symbol, req.Direction, resp.StatusCode(), resp.String())
	}
	return body.OrderID, nil
}

func (c *Client) GetBalance(ctx context.Context) (types.Balance, error) {
	if c.p.Mode == "DRY_RUN" {
		return types.Balance{Available: 100000, Total: 100000}, nil
	}

	var body types.Balance
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		Get("/balance")
	if err != nil {
		return types.Balance{}, wrapTimeout(err)
	}
	if resp.StatusCode() != 200 {
		return types.Balance{}, fmt.Errorf("balance: exchange returned %d: %s", resp.StatusCode(), resp.String())
	}
	return body, nil
}

// simTicker advances the symbol's random walk by one step and quotes around
// it. The walk is seeded from the symbol name so runs are comparable.
func (c *Client) simTicker(symbol string) types.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()

	price, ok := c.sim[symbol]
	if !ok {
		price = basePrice(symbol)
	}
	price *= 1 + (c.rng.Float64()-0.5)*0.004
	c.sim[symbol] = price

	spread := price * 0.0005
	return types.Ticker{
		Symbol: symbol,
		Price:  price,
		Bid:    price - spread,
		Ask:    price + spread,
		Volume: 100 + c.rng.Float64()*900,
	}
}

func basePrice(symbol string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	return 100 + float64(h.Sum32()%9000)
}

func wrapTimeout(err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}
	return err
}
