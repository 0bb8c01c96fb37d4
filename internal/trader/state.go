package trader

import "fmt"

// CandidateStatus is the lifecycle state of a buy candidate
type CandidateStatus string

const (
	// CandWatching: in the pool, waiting for its entry trigger
	CandWatching CandidateStatus = "watching"
	// CandAnalyzing: an oracle call for this candidate is in flight
	CandAnalyzing CandidateStatus = "analyzing"
	// CandOrdering: a buy order is being submitted
	CandOrdering CandidateStatus = "ordering"
	// CandPending: a limit order is resting at the broker
	CandPending CandidateStatus = "pending"
	// CandFilled: the position is open and managed by exit rules
	CandFilled CandidateStatus = "filled"
	// CandSold: terminal, the round trip is complete
	CandSold CandidateStatus = "sold"
	// CandBlacklisted: terminal, the broker permanently rejected the symbol
	CandBlacklisted CandidateStatus = "blacklisted"
)

// candidateTransitions declares every legal state change. Anything not
// listed is a bug in the caller, reported as an error and not applied.
var candidateTransitions = map[CandidateStatus][]CandidateStatus{
	CandWatching:  {CandAnalyzing},
	CandAnalyzing: {CandWatching, CandOrdering},
	CandOrdering:  {CandPending, CandFilled, CandWatching, CandBlacklisted},
	CandPending:   {CandFilled, CandWatching, CandBlacklisted},
	CandFilled:    {CandSold},
	CandSold:      nil,
	CandBlacklisted: nil,
}

// CanTransition reports whether from -> to is a declared edge
func CanTransition(from, to CandidateStatus) bool {
	for _, next := range candidateTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible
func (s CandidateStatus) Terminal() bool {
	return len(candidateTransitions[s]) == 0
}

// HoldingStatus is the lifecycle state of a held position
type HoldingStatus string

const (
	HoldWatching  HoldingStatus = "watching"
	HoldAnalyzing HoldingStatus = "analyzing"
	HoldSelling   HoldingStatus = "selling"
	HoldSold      HoldingStatus = "sold"
)

var holdingTransitions = map[HoldingStatus][]HoldingStatus{
	HoldWatching:  {HoldAnalyzing},
	HoldAnalyzing: {HoldWatching, HoldSelling},
	HoldSelling:   {HoldSold, HoldWatching},
	HoldSold:      nil,
}

// CanTransitionHolding reports whether from -> to is a declared edge
func CanTransitionHolding(from, to HoldingStatus) bool {
	for _, next := range holdingTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible
func (s HoldingStatus) Terminal() bool {
	return len(holdingTransitions[s]) == 0
}

// transitionError describes a rejected state change
func transitionError(symbol string, from, to fmt.Stringer) error {
	return fmt.Errorf("%s: illegal transition %s -> %s", symbol, from, to)
}

func (s CandidateStatus) String() string { return string(s) }
func (s HoldingStatus) String() string   { return string(s) }
