package registry

import "agent-trading-bot/internal/types"

// transitions is the forward-only lifecycle table. Every state may jump
// straight to Completed (abort path); Completed itself has no successors.
var transitions = map[types.TradeState][]types.TradeState{
	types.StatePendingEntry:   {types.StateEntrySubmitted, types.StateCompleted},
	types.StateEntrySubmitted: {types.StateActive, types.StateCompleted},
	types.StateActive:         {types.StatePendingExit, types.StateCompleted},
	types.StatePendingExit:    {types.StateExitSubmitted, types.StateCompleted},
	types.StateExitSubmitted:  {types.StateCompleted},
	types.StateCompleted:      nil,
}

// exitPath lists the remaining forward states between a given state and
// Completed, used by close/abort to walk the full lifecycle with one audit
// record per hop.
var exitPath = map[types.TradeState][]types.TradeState{
	types.StateActive:        {types.StatePendingExit, types.StateExitSubmitted, types.StateCompleted},
	types.StatePendingExit:   {types.StateExitSubmitted, types.StateCompleted},
	types.StateExitSubmitted: {types.StateCompleted},
}

func canTransition(from, to types.TradeState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
