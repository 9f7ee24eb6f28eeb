package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"farmledger/internal/core"
)

// GetMonthlyProfit reads one month from the monthly_profit view. A month
// without entries yields a zero row rather than an error.
func (r *SQLiteRepository) GetMonthlyProfit(ctx context.Context, farmID string, ym core.YearMonth) (core.MonthlyProfit, error) {
	mp := core.MonthlyProfit{FarmID: farmID, Year: ym.Year, Month: ym.Month}
	err := r.db.QueryRowContext(ctx,
		`SELECT total_revenue, total_expenses, profit FROM monthly_profit
		 WHERE farm_id = ? AND year = ? AND month = ?`, farmID, ym.Year, ym.Month,
	).Scan(&mp.TotalRevenue.Cents, &mp.TotalExpenses.Cents, &mp.Profit.Cents)
	if errors.Is(err, sql.ErrNoRows) {
		return mp, nil
	}
	if err != nil {
		return mp, fmt.Errorf("get monthly profit: %w", err)
	}
	return mp, nil
}

// ListMonthlyProfit returns the farm's most recent months, newest first.
func (r *SQLiteRepository) ListMonthlyProfit(ctx context.Context, farmID string, limit int) ([]core.MonthlyProfit, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT farm_id, year, month, total_revenue, total_expenses, profit FROM monthly_profit
		 WHERE farm_id = ? ORDER BY year DESC, month DESC LIMIT ?`, farmID, limit)
	if err != nil {
		return nil, fmt.Errorf("list monthly profit: %w", err)
	}
	defer rows.Close()

	var out []core.MonthlyProfit
	for rows.Next() {
		var mp core.MonthlyProfit
		if err := rows.Scan(&mp.FarmID, &mp.Year, &mp.Month, &mp.TotalRevenue.Cents, &mp.TotalExpenses.Cents, &mp.Profit.Cents); err != nil {
			return nil, fmt.Errorf("scan monthly profit: %w", err)
		}
		out = append(out, mp)
	}
	return out, rows.Err()
}

// ListProfitPerAnimal reads the herd's rows from the profit_per_animal view, newest month first.
func (r *SQLiteRepository) ListProfitPerAnimal(ctx context.Context, farmID, herdID string) ([]core.ProfitPerAnimal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT farm_id, herd_id, year, month, animal_count, total_profit, profit_per_animal FROM profit_per_animal
		 WHERE farm_id = ? AND herd_id = ? ORDER BY year DESC, month DESC`, farmID, herdID)
	if err != nil {
		return nil, fmt.Errorf("list profit per animal: %w", err)
	}
	defer rows.Close()

	var out []core.ProfitPerAnimal
	for rows.Next() {
		var p core.ProfitPerAnimal
		if err := rows.Scan(&p.FarmID, &p.HerdID, &p.Year, &p.Month, &p.AnimalCount, &p.TotalProfit.Cents, &p.PerAnimal.Cents); err != nil {
			return nil, fmt.Errorf("scan profit per animal: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
