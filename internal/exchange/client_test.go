package exchange

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-trading-bot/internal/types"
)

func TestDryRunTickerWalks(t *testing.T) {
	ctx := context.Background()
	c := New(Params{Mode: "DRY_RUN"})

	first, err := c.GetTicker(ctx, "BTCUSDT")
	require.NoError(t, err)
	second, err := c.GetTicker(ctx, "BTCUSDT")
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", first.Symbol)
	assert.Greater(t, first.Price, 0.0)
	// One walk step moves at most 0.2%.
	assert.LessOrEqual(t, math.Abs(second.Price-first.Price)/first.Price, 0.002+1e-12)
	assert.Less(t, first.Bid, first.Ask)
}

func TestDryRunSymbolsWalkIndependently(t *testing.T) {
	ctx := context.Background()
	c := New(Params{Mode: "DRY_RUN"})

	btc, err := c.GetTicker(ctx, "BTCUSDT")
	require.NoError(t, err)
	eth, err := c.GetTicker(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.NotEqual(t, btc.Price, eth.Price)
}

func TestDryRunOrderIDsAreSequential(t *testing.T) {
	ctx := context.Background()
	c := New(Params{Mode: "DRY_RUN"})

	id1, err := c.PlaceOrder(ctx, types.OrderRequest{Symbol: "BTCUSDT", Direction: types.DirectionLong, Size: 100})
	require.NoError(t, err)
	id2, err := c.PlaceOrder(ctx, types.OrderRequest{Symbol: "BTCUSDT", Direction: types.DirectionShort, Size: 100})
	require.NoError(t, err)

	assert.Equal(t, "SIM-1", id1)
	assert.Equal(t, "SIM-2", id2)
}

func TestLiveTickerParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ticker", r.URL.Path)
		require.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tickerResponse{
			Symbol: "BTCUSDT", Price: 50000, Bid: 49990, Ask: 50010, Volume: 1234,
		})
	}))
	defer srv.Close()

	c := New(Params{Mode: "LIVE", BaseURL: srv.URL})
	ticker, err := c.GetTicker(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 50000.0, ticker.Price)
	assert.Equal(t, 49990.0, ticker.Bid)
}

func TestLiveErrorStatusSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance window", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Params{Mode: "LIVE", BaseURL: srv.URL})
	_, err := c.GetTicker(context.Background(), "BTCUSDT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestLiveOrderPostsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/orders", r.URL.Path)
		var req types.OrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "BTCUSDT", req.Symbol)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(orderResponse{OrderID: "X-1", Status: "ACCEPTED"})
	}))
	defer srv.Close()

	c := New(Params{Mode: "LIVE", BaseURL: srv.URL})
	id, err := c.PlaceOrder(context.Background(), types.OrderRequest{
		Symbol: "BTCUSDT", Direction: types.DirectionLong, Size: 100, Price: 50000,
	})
	require.NoError(t, err)
	assert.Equal(t, "X-1", id)
}

func TestTimeoutMapsToUpstreamTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(Params{Mode: "LIVE", BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := c.GetBalance(context.Background())
	require.ErrorIs(t, err, ErrUpstreamTimeout)
}
