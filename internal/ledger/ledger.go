package ledger

import (
	"context"
	"math"
	"sync"

	"agent-trading-bot/internal/logger"
	"agent-trading-bot/internal/types"
)

// conservation tolerance for float arithmetic
const epsilon = 1e-9

// Ledger tracks total, available and per-agent allocated capital plus a
// loss-prevention reserve withheld from allocation. It is the sole writer of
// funds: nothing outside this package mutates capital fields.
//
// Conservation invariant, checked after every mutation:
//
//	total == available + Σallocated + reserve  (±1e-9)
//
// available may go negative internally when realized losses exceed free
// capital; AvailableCapital clamps the externally visible value at zero.
type Ledger struct {
	mu          sync.Mutex
	total       float64
	reserve     float64
	available   float64
	allocations map[string]*types.CapitalAllocation
	halted      bool
}

// New creates a ledger holding total capital with reservePct (a fraction in
// [0,1)) withheld from allocation.
func New(total, reservePct float64) *Ledger {
	reserve := total * reservePct
	return &Ledger{
		total:       total,
		reserve:     reserve,
		available:   total - reserve,
		allocations: make(map[string]*types.CapitalAllocation),
	}
}

// Allocate moves amount from available capital into the agent's allocation.
// Fails with *AllocationError when amount exceeds available capital.
func (l *Ledger) Allocate(ctx context.Context, agentID string, amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.halted {
		return ErrHalted
	}
	if amount <= 0 {
		return &AllocationError{AgentID: agentID, Requested: amount, Available: l.availableLocked()}
	}
	if amount > l.availableLocked()+epsilon {
		return &AllocationError{AgentID: agentID, Requested: amount, Available: l.availableLocked()}
	}

	alloc := l.allocations[agentID]
	if alloc == nil {
		alloc = &types.CapitalAllocation{AgentID: agentID}
		l.allocations[agentID] = alloc
	}
	l.available -= amount
	alloc.Allocated += amount

	return l.verifyLocked("allocate")
}

// Deallocate returns the agent's entire allocation to available capital and
// removes the allocation record. Fails with ErrAllocationInUse while any of
// the allocation backs open trades, and with ErrAgentNotFound once the
// record is gone, so a double deallocate can never double-credit.
func (l *Ledger) Deallocate(ctx context.Context, agentID string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.halted {
		return 0, ErrHalted
	}
	alloc := l.allocations[agentID]
	if alloc == nil {
		return 0, ErrAgentNotFound
	}
	if alloc.Used > epsilon {
		return 0, ErrAllocationInUse
	}

	freed := alloc.Allocated
	l.available += freed
	delete(l.allocations, agentID)

	if err := l.verifyLocked("deallocate"); err != nil {
		return 0, err
	}
	return freed, nil
}

// UseCapital commits part of the agent's allocation to an open trade.
func (l *Ledger) UseCapital(ctx context.Context, agentID string, amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.halted {
		return ErrHalted
	}
	alloc := l.allocations[agentID]
	if alloc == nil {
		return ErrAgentNotFound
	}
	if amount <= 0 || amount > alloc.Available()+epsilon {
		return &AllocationError{AgentID: agentID, Requested: amount, Available: alloc.Available()}
	}

	alloc.Used += amount
	return l.verifyLocked("use_capital")
}

// ReleaseCapital returns amount from the agent's used capital and books the
// realized pnl into total capital and the agent's cumulative P&L. Realized
// profit is deliberately not compounded into the allocated principal; it
// lands in available capital where Allocate can pick it up explicitly.
// Releasing more than is used is an *InvariantViolation and halts the ledger.
func (l *Ledger) ReleaseCapital(ctx context.Context, agentID string, amount, pnl float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.halted {
		return ErrHalted
	}
	alloc := l.allocations[agentID]
	if alloc == nil {
		return ErrAgentNotFound
	}
	if amount > alloc.Used+epsilon {
		l.halted = true
		logger.Error(ctx, "Release exceeds used capital",
			"agent_id", agentID, "amount", amount, "used", alloc.Used)
		return &InvariantViolation{Op: "release_capital", Detail: "release exceeds used amount"}
	}

	alloc.Used -= amount
	alloc.PnL += pnl
	l.total += pnl
	l.available += pnl

	return l.verifyLocked("release_capital")
}

// TotalCapital returns current total capital including realized P&L.
func (l *Ledger) TotalCapital() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// AvailableCapital returns the capital currently allocable, floored at zero.
func (l *Ledger) AvailableCapital() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.availableLocked()
}

// Reserve returns the amount withheld from allocation.
func (l *Ledger) Reserve() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reserve
}

// Allocation returns a copy of the agent's allocation.
func (l *Ledger) Allocation(agentID string) (types.CapitalAllocation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	alloc := l.allocations[agentID]
	if alloc == nil {
		return types.CapitalAllocation{}, false
	}
	return *alloc, true
}

// Halted reports whether a past invariant violation froze the ledger.
func (l *Ledger) Halted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.halted
}

// Snapshot returns a consistent copy of the whole ledger state.
func (l *Ledger) Snapshot() types.LedgerSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := types.LedgerSnapshot{
		Total:       l.total,
		Reserve:     l.reserve,
		Available:   l.availableLocked(),
		Allocations: make(map[string]types.CapitalAllocation, len(l.allocations)),
	}
	for id, alloc := range l.allocations {
		snap.Allocations[id] = *alloc
	}
	return snap
}

func (l *Ledger) availableLocked() float64 {
	return math.Max(0, l.available)
}

// verifyLocked rechecks conservation from first principles. A failure is a
// logic bug: the ledger halts and refuses further mutation.
func (l *Ledger) verifyLocked(op string) error {
	var allocated float64
	for _, alloc := range l.allocations {
		allocated += alloc.Allocated
	}
	drift := l.total - (l.available + allocated + l.reserve)
	if math.Abs(drift) > epsilon {
		l.halted = true
		return &InvariantViolation{Op: op, Detail: "total != available + allocated + reserve"}
	}
	return nil
}
