package trader

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Book owns all shared trading state: the candidate pool, tracked
// holdings, the budget ledger, and the permanent blacklist. Every
// mutation goes through a Book method under one mutex; the loops never
// touch the structs directly.
type Book struct {
	mu sync.Mutex

	totalCashKRW float64
	allocation   map[TradeStyle]float64

	candidates map[string]*Candidate
	holdings   map[string]*Holding
	blacklist  map[string]string // symbol -> reason
}

// NewBook creates an empty book with the given style allocations
func NewBook(swingAlloc, dayAlloc float64) *Book {
	return &Book{
		allocation: map[TradeStyle]float64{
			StyleSwing: swingAlloc,
			StyleDay:   dayAlloc,
		},
		candidates: make(map[string]*Candidate),
		holdings:   make(map[string]*Holding),
		blacklist:  make(map[string]string),
	}
}

// SetCash updates the total cash figure the allocations divide
func (b *Book) SetCash(totalKRW float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.totalCashKRW = totalKRW
}

// LedgerSnapshot is a point-in-time view of the budget
type LedgerSnapshot struct {
	TotalCashKRW float64
	Allocation   map[TradeStyle]float64
	Used         map[TradeStyle]float64
	Committed    map[TradeStyle]int // open candidate and holding count per style
}

// Ledger computes the budget snapshot from live candidate state
func (b *Book) Ledger() LedgerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ledgerLocked()
}

func (b *Book) ledgerLocked() LedgerSnapshot {
	snap := LedgerSnapshot{
		TotalCashKRW: b.totalCashKRW,
		Allocation:   map[TradeStyle]float64{},
		Used:         map[TradeStyle]float64{},
		Committed:    map[TradeStyle]int{},
	}
	for style, frac := range b.allocation {
		snap.Allocation[style] = frac
	}
	counted := make(map[string]bool, len(b.candidates))
	for _, c := range b.candidates {
		spent := c.SpentKRW()
		if spent > 0 {
			snap.Used[c.Style] += spent
			snap.Committed[c.Style]++
			counted[c.Symbol] = true
		}
	}
	// Held positions tie up a slot in their style too. A symbol already
	// counted through its candidate is not counted twice; a holding of
	// unknown style counts toward neither side.
	for _, h := range b.holdings {
		if h.Status.Terminal() || h.Style == "" || counted[h.Symbol] {
			continue
		}
		snap.Committed[h.Style]++
	}
	return snap
}

// BudgetFor returns the style's total budget and the unspent remainder
func (b *Book) BudgetFor(style TradeStyle) (total, remaining float64) {
	snap := b.Ledger()
	total = snap.TotalCashKRW * snap.Allocation[style]
	remaining = total - snap.Used[style]
	if remaining < 0 {
		remaining = 0
	}
	return total, remaining
}

// AddCandidate admits a candidate into the pool. Symbols that are
// already tracked or blacklisted are rejected, which also enforces the
// one-open-order-per-symbol rule.
func (b *Book) AddCandidate(c *Candidate) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if reason, ok := b.blacklist[c.Symbol]; ok {
		return fmt.Errorf("%s is blacklisted: %s", c.Symbol, reason)
	}
	if existing, ok := b.candidates[c.Symbol]; ok && !existing.Status.Terminal() {
		return fmt.Errorf("%s is already tracked (%s)", c.Symbol, existing.Status)
	}

	now := time.Now()
	c.Status = CandWatching
	c.AddedAt = now
	c.UpdatedAt = now
	b.candidates[c.Symbol] = c
	return nil
}

// ReplacePool swaps in a freshly selected candidate set. Candidates
// that have progressed past watching keep their place; watching
// candidates not in the new set are dropped.
func (b *Book) ReplacePool(selected []*Candidate) {
	b.mu.Lock()
	defer b.mu.Unlock()

	keep := make(map[string]bool, len(selected))
	for _, c := range selected {
		keep[c.Symbol] = true
	}
	for symbol, c := range b.candidates {
		if c.Status == CandWatching && !keep[symbol] {
			delete(b.candidates, symbol)
		}
	}

	now := time.Now()
	for _, c := range selected {
		if _, ok := b.blacklist[c.Symbol]; ok {
			continue
		}
		if existing, ok := b.candidates[c.Symbol]; ok && existing.Status != CandWatching {
			continue
		}
		c.Status = CandWatching
		if c.AddedAt.IsZero() {
			c.AddedAt = now
		}
		c.UpdatedAt = now
		b.candidates[c.Symbol] = c
	}
}

// Candidate returns a copy of the tracked candidate
func (b *Book) Candidate(symbol string) (Candidate, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.candidates[symbol]
	if !ok {
		return Candidate{}, false
	}
	return *c, true
}

// Candidates returns copies of all candidates, stable by symbol
func (b *Book) Candidates() []Candidate {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Candidate, 0, len(b.candidates))
	for _, c := range b.candidates {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// CandidatesIn returns copies of candidates currently in the given state
func (b *Book) CandidatesIn(status CandidateStatus) []Candidate {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Candidate
	for _, c := range b.candidates {
		if c.Status == status {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Transition moves a candidate along a declared edge. Illegal edges
// return an error and change nothing.
func (b *Book) Transition(symbol string, to CandidateStatus) error {
	return b.TransitionWith(symbol, to, nil)
}

// TransitionWith moves a candidate and applies extra mutations in the
// same critical section, so order bookkeeping lands atomically with
// the state change.
func (b *Book) TransitionWith(symbol string, to CandidateStatus, mutate func(*Candidate)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.candidates[symbol]
	if !ok {
		return fmt.Errorf("%s: not tracked", symbol)
	}
	if !CanTransition(c.Status, to) {
		return transitionError(symbol, c.Status, to)
	}
	c.Status = to
	c.UpdatedAt = time.Now()
	if mutate != nil {
		mutate(c)
	}
	return nil
}

// Blacklist marks a symbol permanently untradable and moves its
// candidate to the terminal state.
func (b *Book) Blacklist(symbol, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.candidates[symbol]
	if !ok {
		return fmt.Errorf("%s: not tracked", symbol)
	}
	if !CanTransition(c.Status, CandBlacklisted) {
		return transitionError(symbol, c.Status, CandBlacklisted)
	}
	c.Status = CandBlacklisted
	c.UpdatedAt = time.Now()
	b.blacklist[symbol] = reason
	return nil
}

// IsBlacklisted reports whether a symbol is permanently excluded
func (b *Book) IsBlacklisted(symbol string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.blacklist[symbol]
	return ok
}

// Update applies a mutation to a candidate under the lock
func (b *Book) Update(symbol string, mutate func(*Candidate)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.candidates[symbol]
	if !ok {
		return fmt.Errorf("%s: not tracked", symbol)
	}
	mutate(c)
	c.UpdatedAt = time.Now()
	return nil
}

// Drop removes a candidate outright (market closed, pool rotation)
func (b *Book) Drop(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.candidates, symbol)
}

// SyncHoldings reconciles the broker balance with tracked holdings.
// New positions enter as watching; positions gone from the balance
// while not mid-sale are removed; the rest get price updates.
func (b *Book) SyncHoldings(fresh []Holding) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	seen := make(map[string]bool, len(fresh))
	for i := range fresh {
		f := fresh[i]
		seen[f.Symbol] = true
		if h, ok := b.holdings[f.Symbol]; ok {
			h.Quantity = f.Quantity
			h.AvgBuyPrice = f.AvgBuyPrice
			h.CurrentPrice = f.CurrentPrice
			h.ProfitPct = f.ProfitPct
			h.UpdatedAt = now
			continue
		}
		if f.Style == "" {
			if c, ok := b.candidates[f.Symbol]; ok {
				f.Style = c.Style
				if f.Strategy == "" && c.Entry != nil {
					f.Strategy = c.Entry.Strategy
				}
			}
		}
		f.Status = HoldWatching
		f.FirstSeen = now
		f.UpdatedAt = now
		copied := f
		b.holdings[f.Symbol] = &copied
	}

	for symbol, h := range b.holdings {
		if !seen[symbol] && h.Status != HoldSelling {
			delete(b.holdings, symbol)
		}
	}
}

// Holding returns a copy of a tracked holding
func (b *Book) Holding(symbol string) (Holding, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.holdings[symbol]
	if !ok {
		return Holding{}, false
	}
	return *h, true
}

// Holdings returns copies of all tracked holdings, stable by symbol
func (b *Book) Holdings() []Holding {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Holding, 0, len(b.holdings))
	for _, h := range b.holdings {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// TransitionHolding moves a holding along a declared edge
func (b *Book) TransitionHolding(symbol string, to HoldingStatus) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.holdings[symbol]
	if !ok {
		return fmt.Errorf("%s: no such holding", symbol)
	}
	if !CanTransitionHolding(h.Status, to) {
		return transitionError(symbol, h.Status, to)
	}
	h.Status = to
	h.UpdatedAt = time.Now()
	return nil
}

// UpdateHolding applies a mutation to a holding under the lock
func (b *Book) UpdateHolding(symbol string, mutate func(*Holding)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.holdings[symbol]
	if !ok {
		return fmt.Errorf("%s: no such holding", symbol)
	}
	mutate(h)
	h.UpdatedAt = time.Now()
	return nil
}
