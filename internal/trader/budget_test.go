package trader

import "testing"

func ledger(total float64) LedgerSnapshot {
	return LedgerSnapshot{
		TotalCashKRW: total,
		Allocation:   map[TradeStyle]float64{StyleSwing: 0.5, StyleDay: 0.5},
		Used:         map[TradeStyle]float64{},
		Committed:    map[TradeStyle]int{},
	}
}

func cand(symbol string, style TradeStyle, score int, priceKRW float64, lot int64) *Candidate {
	return &Candidate{Symbol: symbol, Style: style, Score: score, PriceKRW: priceKRW, LotSize: lot}
}

func TestSelectAlternatesBetweenStyles(t *testing.T) {
	// 10 day candidates, 2 swing candidates, plenty of budget: both
	// swing picks land even though day has higher scores queued.
	var scored []*Candidate
	for i := 0; i < 10; i++ {
		scored = append(scored, cand("D"+string(rune('0'+i)), StyleDay, 90-i, 10000, 1))
	}
	scored = append(scored,
		cand("S1", StyleSwing, 80, 10000, 1),
		cand("S2", StyleSwing, 76, 10000, 1),
	)

	selected := SelectWithinBudget(ledger(1_000_000), scored)

	var swing, day int
	for _, c := range selected {
		if c.Style == StyleSwing {
			swing++
		} else {
			day++
		}
	}
	if swing != 2 {
		t.Errorf("swing selections = %d, want 2", swing)
	}
	if day != 10 {
		t.Errorf("day selections = %d, want 10", day)
	}

	// Balanced draw means the two swing picks appear within the first
	// four selections, not after all ten day picks.
	seenSwing := 0
	for _, c := range selected[:4] {
		if c.Style == StyleSwing {
			seenSwing++
		}
	}
	if seenSwing != 2 {
		t.Errorf("swing picks in first four = %d, want 2", seenSwing)
	}
}

func TestSelectNeverExceedsStyleBudget(t *testing.T) {
	// Day budget is 500_000. Candidates total well beyond it.
	var scored []*Candidate
	for i := 0; i < 8; i++ {
		scored = append(scored, cand("D"+string(rune('a'+i)), StyleDay, 90-i, 90_000, 1))
	}

	selected := SelectWithinBudget(ledger(1_000_000), scored)

	var spent float64
	for _, c := range selected {
		if c.Style != StyleDay {
			t.Fatalf("unexpected style %s", c.Style)
		}
		spent += c.BudgetKRW
	}
	if spent > 500_000 {
		t.Errorf("day spend %f exceeds allocation 500000", spent)
	}
	if len(selected) != 5 {
		t.Errorf("selected %d, want 5 (5 x 90000 fits, 6th does not)", len(selected))
	}
}

func TestSelectSkipsOverBudgetAndContinues(t *testing.T) {
	// The top-scored candidate is unaffordable; cheaper ones behind it
	// must still be picked.
	scored := []*Candidate{
		cand("BIG", StyleDay, 95, 600_000, 1),
		cand("MID", StyleDay, 85, 200_000, 1),
		cand("SML", StyleDay, 75, 100_000, 1),
	}

	selected := SelectWithinBudget(ledger(1_000_000), scored)

	if len(selected) != 2 {
		t.Fatalf("selected %d, want 2", len(selected))
	}
	if selected[0].Symbol != "MID" || selected[1].Symbol != "SML" {
		t.Errorf("selected %s, %s; want MID, SML", selected[0].Symbol, selected[1].Symbol)
	}
}

func TestSelectCountsLotCostNotShareCost(t *testing.T) {
	// 100-share lots: a 4000 KRW share is a 400_000 KRW commitment.
	// Day budget 500_000 fits only one such lot.
	scored := []*Candidate{
		cand("7203", StyleDay, 90, 4000, 100),
		cand("6758", StyleDay, 85, 4000, 100),
	}

	selected := SelectWithinBudget(ledger(1_000_000), scored)

	if len(selected) != 1 {
		t.Fatalf("selected %d, want 1", len(selected))
	}
	if selected[0].BudgetKRW != 400_000 {
		t.Errorf("committed %f, want 400000", selected[0].BudgetKRW)
	}
}

func TestSelectHonorsExistingCommitments(t *testing.T) {
	l := ledger(1_000_000)
	l.Used[StyleDay] = 450_000
	l.Committed[StyleDay] = 3

	scored := []*Candidate{
		cand("A", StyleDay, 90, 100_000, 1),
		cand("B", StyleDay, 80, 40_000, 1),
	}
	selected := SelectWithinBudget(l, scored)

	// Only 50_000 remains for day: A is skipped, B fits.
	if len(selected) != 1 || selected[0].Symbol != "B" {
		t.Fatalf("selected %v, want just B", symbols(selected))
	}
}

func TestHeldPositionsCountTowardStyleBalance(t *testing.T) {
	book := NewBook(0.5, 0.5)
	book.SetCash(1_000_000)
	book.SyncHoldings([]Holding{
		{Symbol: "HELD", Style: StyleSwing, Quantity: 10, AvgBuyPrice: 100},
	})

	snap := book.Ledger()
	if snap.Committed[StyleSwing] != 1 {
		t.Fatalf("swing committed = %d, want 1 from the held position", snap.Committed[StyleSwing])
	}

	// The held swing position tilts the balanced draw: the day candidate
	// goes first even though the swing candidate scores higher.
	scored := []*Candidate{
		cand("S", StyleSwing, 95, 10_000, 1),
		cand("D", StyleDay, 90, 10_000, 1),
	}
	selected := SelectWithinBudget(snap, scored)
	if len(selected) != 2 {
		t.Fatalf("selected %d, want 2", len(selected))
	}
	if selected[0].Symbol != "D" {
		t.Errorf("first pick = %s, want the day candidate", selected[0].Symbol)
	}
}

func symbols(cs []*Candidate) []string {
	var out []string
	for _, c := range cs {
		out = append(out, c.Symbol)
	}
	return out
}

func TestRiskFraction(t *testing.T) {
	tests := []struct {
		risk int
		want float64
	}{
		{10, 0.10}, {7, 0.10},
		{6, 0.20}, {4, 0.20},
		{3, 0.30}, {1, 0.30},
	}
	for _, tt := range tests {
		if got := RiskFraction(tt.risk); got != tt.want {
			t.Errorf("RiskFraction(%d) = %f, want %f", tt.risk, got, tt.want)
		}
	}
}

func TestPositionSizeRoundsDownToWholeLots(t *testing.T) {
	tests := []struct {
		budget, price float64
		lot           int64
		want          int64
	}{
		{1_000_000, 4000, 100, 200},  // 250 shares -> 2 lots
		{390_000, 4000, 100, 0},      // under one lot
		{1_000_000, 4000, 1, 250},    // single-share lots
		{1_000_000, 0, 1, 0},         // bad price
		{1_000_000, 4000, 0, 0},      // bad lot
	}
	for _, tt := range tests {
		if got := PositionSize(tt.budget, tt.price, tt.lot); got != tt.want {
			t.Errorf("PositionSize(%f, %f, %d) = %d, want %d", tt.budget, tt.price, tt.lot, got, tt.want)
		}
	}
}
