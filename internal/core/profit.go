package core

import (
	"strconv"
)

// MonthlyProfit is one row of the monthly_profit view.
type MonthlyProfit struct {
	FarmID        string
	Year          int
	Month         int
	TotalRevenue  Money
	TotalExpenses Money
	Profit        Money
}

// ProfitPerAnimal is one row of the profit_per_animal view.
type ProfitPerAnimal struct {
	FarmID      string
	HerdID      string
	Year        int
	Month       int
	AnimalCount int
	TotalProfit Money
	PerAnimal   Money
}

func (p MonthlyProfit) Period() YearMonth {
	return YearMonth{Year: p.Year, Month: p.Month}
}

// ProfitChange compares a month against the one before it.
type ProfitChange struct {
	Amount  Money
	Percent string // one decimal, e.g. "12.5"; "0.0" when there is no previous profit
}

// CompareMonths computes current minus previous profit. The percentage is
// relative to the magnitude of the previous profit so a recovery from a loss
// reads as positive; a signed divisor would report -200% for a loss of 10
// turning into a profit of 10.
func CompareMonths(current, previous MonthlyProfit) ProfitChange {
	change := current.Profit.Sub(previous.Profit)
	if previous.Profit.Cents == 0 {
		return ProfitChange{Amount: change, Percent: "0.0"}
	}
	base := previous.Profit.Cents
	if base < 0 {
		base = -base
	}
	pct := float64(change.Cents) / float64(base) * 100
	return ProfitChange{Amount: change, Percent: strconv.FormatFloat(pct, 'f', 1, 64)}
}

// Up reports whether profit grew or held.
func (c ProfitChange) Up() bool { return c.Amount.Cents >= 0 }

// PerAnimalShare splits a profit across animals, truncating toward zero. No animals yields zero.
func PerAnimalShare(total Money, animals int) Money {
	if animals <= 0 {
		return Money{}
	}
	return Money{Cents: total.Cents / int64(animals)}
}
