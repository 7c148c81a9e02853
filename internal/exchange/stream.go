package exchange

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"agent-trading-bot/internal/logger"
	"agent-trading-bot/internal/types"
)

// StreamParams configures a ticker stream.
type StreamParams struct {
	Mode        string // DRY_RUN or LIVE
	WSURL       string
	Symbols     []string
	SimInterval time.Duration // tick spacing in DRY_RUN mode
}

// Stream pushes MarketData for the configured symbols into a bounded
// channel. LIVE mode reads a websocket feed and reconnects with backoff;
// DRY_RUN mode synthesizes ticks from the client's price simulation.
type Stream struct {
	p      StreamParams
	client *Client
	out    chan types.MarketData
	cancel context.CancelFunc
}

func NewStream(p StreamParams, client *Client) *Stream {
	if p.SimInterval == 0 {
		p.SimInterval = time.Second
	}
	return &Stream{
		p:      p,
		client: client,
		out:    make(chan types.MarketData, 1024),
	}
}

// C is the stream output. Ticks are dropped, not queued unboundedly, when
// the consumer falls behind.
func (s *Stream) C() <-chan types.MarketData { return s.out }

// Start launches the feed goroutine.
func (s *Stream) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	if s.p.Mode == "DRY_RUN" {
		go s.runSim(ctx)
		return nil
	}
	go s.runLive(ctx)
	return nil
}

// Stop terminates the feed goroutine.
func (s *Stream) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Stream) runSim(ctx context.Context) {
	ticker := time.NewTicker(s.p.SimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range s.p.Symbols {
				t := s.client.simTicker(symbol)
				s.push(ctx, types.MarketData{
					Symbol:    t.Symbol,
					Price:     t.Price,
					Bid:       t.Bid,
					Ask:       t.Ask,
					Volume:    t.Volume,
					Timestamp: time.Now(),
				})
			}
		}
	}
}

type wireTick struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Volume float64 `json:"volume"`
}

type subscribeRequest struct {
	Op      string   `json:"op"`
	Symbols []string `json:"symbols"`
}

func (s *Stream) runLive(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.readOnce(ctx); err != nil {
			logger.Warn(ctx, "Ticker stream disconnected, retrying",
				"url", s.p.WSURL, "backoff", backoff.String(), "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (s *Stream) readOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.p.WSURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteJSON(subscribeRequest{Op: "subscribe", Symbols: s.p.Symbols}); err != nil {
		return err
	}
	logger.Info(ctx, "Ticker stream connected", "url", s.p.WSURL, "symbols", s.p.Symbols)

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var tick wireTick
		if err := json.Unmarshal(raw, &tick); err != nil {
			logger.Debug(ctx, "Skipping malformed tick", "error", err)
			continue
		}
		if tick.Symbol == "" {
			continue
		}
		s.push(ctx, types.MarketData{
			Symbol:    tick.Symbol,
			Price:     tick.Price,
			Bid:       tick.Bid,
			Ask:       tick.Ask,
			Volume:    tick.Volume,
			Timestamp: time.Now(),
		})
	}
}

func (s *Stream) push(ctx context.Context, md types.MarketData) {
	select {
	case s.out <- md:
	default:
		logger.Debug(ctx, "Dropping tick for slow consumer", "symbol", md.Symbol)
	}
}
