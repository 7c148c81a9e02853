package bus

import (
	"context"
	"errors"
	"sync"

	"agent-trading-bot/internal/logger"
	"agent-trading-bot/internal/types"
)

// DefaultCapacity is the per-agent channel depth when none is configured.
const DefaultCapacity = 100

var (
	// ErrAgentNotFound means no subscriber is registered under the name.
	ErrAgentNotFound = errors.New("agent not registered on bus")
	// ErrAlreadyRegistered means the name is taken by a live subscriber.
	ErrAlreadyRegistered = errors.New("agent already registered on bus")
	// ErrChannelClosed means the subscriber was unregistered.
	ErrChannelClosed = errors.New("subscriber channel closed")
	// ErrChannelFull is the broadcast drop reason for a saturated subscriber.
	ErrChannelFull = errors.New("subscriber channel full")
)

// Subscription is the receiving end handed to an agent at registration.
// Messages sent before Unregister remain readable from C afterwards; Done is
// closed when the subscription is torn down.
type Subscription struct {
	name string
	ch   chan types.Message
	done chan struct{}
}

// C is the agent's inbox. Per-sender FIFO order is guaranteed; ordering
// across senders is not.
func (s *Subscription) C() <-chan types.Message { return s.ch }

// Done is closed on Unregister.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Name returns the subscriber name.
func (s *Subscription) Name() string { return s.name }

// Drain returns everything currently buffered without blocking.
func (s *Subscription) Drain() []types.Message {
	var out []types.Message
	for {
		select {
		case msg := <-s.ch:
			out = append(out, msg)
		default:
			return out
		}
	}
}

// Bus is a typed, per-agent bounded-channel pub/sub. Each subscriber owns an
// independent bounded queue, so a slow consumer backs up only itself.
type Bus struct {
	mu       sync.Mutex
	subs     map[string]*Subscription
	capacity int
}

// New creates a bus whose subscriber channels hold capacity messages.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		subs:     make(map[string]*Subscription),
		capacity: capacity,
	}
}

// Register creates a bounded inbox for the named agent.
func (b *Bus) Register(name string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[name]; ok {
		return nil, ErrAlreadyRegistered
	}
	sub := &Subscription{
		name: name,
		ch:   make(chan types.Message, b.capacity),
		done: make(chan struct{}),
	}
	b.subs[name] = sub
	return sub, nil
}

// Unregister tears down the named subscription. The inbox channel is left
// open for the consumer to finish draining; Done signals senders to stop.
func (b *Bus) Unregister(name string) {
	b.mu.Lock()
	sub, ok := b.subs[name]
	if ok {
		delete(b.subs, name)
	}
	b.mu.Unlock()

	if ok {
		close(sub.done)
	}
}

// SendTo delivers one message to the named agent, blocking for channel
// capacity. A full inbox stalls only this call, which is the backpressure
// the bounded channel exists to provide.
func (b *Bus) SendTo(ctx context.Context, name string, msg types.Message) error {
	b.mu.Lock()
	sub, ok := b.subs[name]
	b.mu.Unlock()
	if !ok {
		return ErrAgentNotFound
	}

	select {
	case sub.ch <- msg:
		return nil
	case <-sub.done:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Broadcast fans a message out to every current subscriber. The registry is
// snapshotted under a short-held lock and the sends happen outside it, so an
// agent registering or unregistering mid-broadcast cannot deadlock the bus.
// Delivery is best-effort: a failed or saturated subscriber is logged and
// skipped rather than aborting the fan-out. Returns the delivered count.
func (b *Bus) Broadcast(ctx context.Context, msg types.Message) int {
	b.mu.Lock()
	snapshot := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		snapshot = append(snapshot, sub)
	}
	b.mu.Unlock()

	delivered := 0
	for _, sub := range snapshot {
		select {
		case <-sub.done:
			logger.Debug(ctx, "Broadcast skipped unregistered agent",
				"agent", sub.name, "kind", string(msg.Kind()))
		case sub.ch <- msg:
			delivered++
		default:
			logger.Warn(ctx, "Broadcast dropped for saturated agent",
				"agent", sub.name, "kind", string(msg.Kind()), "error", ErrChannelFull)
		}
	}
	return delivered
}

// Subscribers returns the currently registered agent names.
func (b *Bus) Subscribers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.subs))
	for name := range b.subs {
		names = append(names, name)
	}
	return names
}
