package domain

import (
	"errors"
	"sort"
	"time"
)

// CashFlow is a single dated cash movement. Outflows (capital calls,
// investments) are negative; inflows (distributions, exits) are positive.
type CashFlow struct {
	Date   time.Time
	Amount float64
}

// CashFlow validation errors.
var (
	ErrTooFewCashFlows = errors.New("cash flow series needs at least 2 flows")
	ErrNoSignChange    = errors.New("cash flow series needs at least one negative and one positive amount")
	ErrIdenticalDates  = errors.New("cash flow series dates are all identical")
)

// ValidateCashFlows checks well-posedness of a series for return
// computation: ≥2 flows, at least one strictly negative and one strictly
// positive amount, and not all dates identical.
func ValidateCashFlows(flows []CashFlow) error {
	if len(flows) < 2 {
		return ErrTooFewCashFlows
	}

	hasNegative := false
	hasPositive := false
	allSameDate := true
	first := flows[0].Date

	for _, f := range flows {
		if f.Amount < 0 {
			hasNegative = true
		}
		if f.Amount > 0 {
			hasPositive = true
		}
		if !f.Date.Equal(first) {
			allSameDate = false
		}
	}

	if !hasNegative || !hasPositive {
		return ErrNoSignChange
	}
	if allSameDate {
		return ErrIdenticalDates
	}
	return nil
}

// SortCashFlows returns a copy sorted by date ASC. Ties keep input order
// (deterministic for reproducible runs).
func SortCashFlows(flows []CashFlow) []CashFlow {
	sorted := make([]CashFlow, len(flows))
	copy(sorted, flows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	return sorted
}
