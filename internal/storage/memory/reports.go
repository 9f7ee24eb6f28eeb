package memory

import (
	"context"
	"sort"

	"farmledger/internal/core"
)

type monthKey struct {
	herdID string
	ym     core.YearMonth
}

// monthlyTotals folds revenue and expenses into per-month sums, like the monthly_profit view.
func (s *Store) monthlyTotals(farmID string) map[core.YearMonth]*core.MonthlyProfit {
	out := map[core.YearMonth]*core.MonthlyProfit{}
	row := func(ym core.YearMonth) *core.MonthlyProfit {
		mp, ok := out[ym]
		if !ok {
			mp = &core.MonthlyProfit{FarmID: farmID, Year: ym.Year, Month: ym.Month}
			out[ym] = mp
		}
		return mp
	}
	for _, e := range s.revenue {
		if e.val.FarmID == farmID {
			mp := row(e.val.Date.YearMonth())
			mp.TotalRevenue = mp.TotalRevenue.Add(e.val.Amount)
		}
	}
	for _, e := range s.expenses {
		if e.val.FarmID == farmID {
			mp := row(e.val.Date.YearMonth())
			mp.TotalExpenses = mp.TotalExpenses.Add(e.val.Amount)
		}
	}
	for _, mp := range out {
		mp.Profit = mp.TotalRevenue.Sub(mp.TotalExpenses)
	}
	return out
}

func (s *Store) GetMonthlyProfit(_ context.Context, farmID string, ym core.YearMonth) (core.MonthlyProfit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if mp, ok := s.monthlyTotals(farmID)[ym]; ok {
		return *mp, nil
	}
	return core.MonthlyProfit{FarmID: farmID, Year: ym.Year, Month: ym.Month}, nil
}

func (s *Store) ListMonthlyProfit(_ context.Context, farmID string, limit int) ([]core.MonthlyProfit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.MonthlyProfit
	for _, mp := range s.monthlyTotals(farmID) {
		out = append(out, *mp)
	}
	sort.Slice(out, func(i, j int) bool { return newerMonth(out[i].Period(), out[j].Period()) })
	return limited(out, limit), nil
}

// ListProfitPerAnimal splits herd-linked profit across the herd's active animals.
func (s *Store) ListProfitPerAnimal(_ context.Context, farmID, herdID string) ([]core.ProfitPerAnimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := map[monthKey]core.Money{}
	for _, e := range s.revenue {
		if e.val.FarmID == farmID && e.val.HerdID == herdID && herdID != "" {
			k := monthKey{herdID, e.val.Date.YearMonth()}
			totals[k] = totals[k].Add(e.val.Amount)
		}
	}
	for _, e := range s.expenses {
		if e.val.FarmID == farmID && e.val.HerdID == herdID && herdID != "" {
			k := monthKey{herdID, e.val.Date.YearMonth()}
			totals[k] = totals[k].Sub(e.val.Amount)
		}
	}

	active := 0
	for _, a := range s.animals {
		if a.val.HerdID == herdID && a.val.Status == core.AnimalActive {
			active++
		}
	}

	var out []core.ProfitPerAnimal
	for k, total := range totals {
		out = append(out, core.ProfitPerAnimal{
			FarmID:      farmID,
			HerdID:      herdID,
			Year:        k.ym.Year,
			Month:       k.ym.Month,
			AnimalCount: active,
			TotalProfit: total,
			PerAnimal:   core.PerAnimalShare(total, active),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return newerMonth(core.YearMonth{Year: out[i].Year, Month: out[i].Month}, core.YearMonth{Year: out[j].Year, Month: out[j].Month})
	})
	return out, nil
}

func newerMonth(a, b core.YearMonth) bool {
	if a.Year != b.Year {
		return a.Year > b.Year
	}
	return a.Month > b.Month
}
