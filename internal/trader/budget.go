package trader

import "sort"

// SelectWithinBudget picks which scored candidates get budget. The
// pool is split by style, each side sorted by score, then picked
// greedily from whichever style has fewer committed positions so the
// styles stay balanced. A candidate whose minimum lot does not fit the
// style's remaining budget is skipped and selection continues with the
// next one.
func SelectWithinBudget(ledger LedgerSnapshot, scored []*Candidate) []*Candidate {
	remaining := map[TradeStyle]float64{}
	committed := map[TradeStyle]int{}
	for _, style := range []TradeStyle{StyleSwing, StyleDay} {
		remaining[style] = ledger.TotalCashKRW*ledger.Allocation[style] - ledger.Used[style]
		if remaining[style] < 0 {
			remaining[style] = 0
		}
		committed[style] = ledger.Committed[style]
	}

	queues := map[TradeStyle][]*Candidate{}
	for _, c := range scored {
		style := c.Style
		if style != StyleSwing && style != StyleDay {
			style = StyleDay
			c.Style = style
		}
		queues[style] = append(queues[style], c)
	}
	for style := range queues {
		q := queues[style]
		sort.SliceStable(q, func(i, j int) bool { return q[i].Score > q[j].Score })
	}

	var selected []*Candidate
	for len(queues[StyleSwing]) > 0 || len(queues[StyleDay]) > 0 {
		style := pickStyle(queues, committed)
		q := queues[style]
		c := q[0]
		queues[style] = q[1:]

		cost := c.PriceKRW * float64(c.LotSize)
		if cost <= 0 || cost > remaining[style] {
			// Over budget or unpriced: skip it, cheaper candidates
			// further down the queue may still fit.
			continue
		}

		c.BudgetKRW = cost
		remaining[style] -= cost
		committed[style]++
		selected = append(selected, c)
	}
	return selected
}

// pickStyle chooses which queue to draw from next: the style with
// fewer committed positions, ties broken by the higher head score.
func pickStyle(queues map[TradeStyle][]*Candidate, committed map[TradeStyle]int) TradeStyle {
	swing, day := queues[StyleSwing], queues[StyleDay]
	if len(swing) == 0 {
		return StyleDay
	}
	if len(day) == 0 {
		return StyleSwing
	}
	switch {
	case committed[StyleSwing] < committed[StyleDay]:
		return StyleSwing
	case committed[StyleDay] < committed[StyleSwing]:
		return StyleDay
	case swing[0].Score >= day[0].Score:
		return StyleSwing
	default:
		return StyleDay
	}
}

// RiskFraction maps an oracle risk grade to the share of the style's
// remaining budget a single position may take.
func RiskFraction(risk int) float64 {
	switch {
	case risk >= 7:
		return 0.10
	case risk >= 4:
		return 0.20
	default:
		return 0.30
	}
}

// PositionSize converts a KRW budget into a share count rounded down
// to whole lots. Returns 0 when even one lot does not fit.
func PositionSize(budgetKRW, priceKRW float64, lotSize int64) int64 {
	if priceKRW <= 0 || lotSize <= 0 {
		return 0
	}
	shares := int64(budgetKRW / priceKRW)
	lots := shares / lotSize
	return lots * lotSize
}
