package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"farmledger/internal/core"
)

const revenueColumns = `id, farm_id, revenue_type, amount, transaction_date, customer_name, herd_id, animal_id, description, created_at, updated_at`

func scanRevenue(row interface{ Scan(...any) error }) (core.Revenue, error) {
	var (
		rv                           core.Revenue
		revenueType, date            string
		customer, herd, animal, desc sql.NullString
		created, updated             string
	)
	if err := row.Scan(&rv.ID, &rv.FarmID, &revenueType, &rv.Amount.Cents, &date, &customer, &herd, &animal, &desc, &created, &updated); err != nil {
		return core.Revenue{}, err
	}
	rv.Type = core.RevenueType(revenueType)
	rv.Date = dateFrom(sql.NullString{String: date, Valid: true})
	rv.CustomerName = customer.String
	rv.HerdID = herd.String
	rv.AnimalID = animal.String
	rv.Description = desc.String
	rv.CreatedAt = parseTime(created)
	rv.UpdatedAt = parseTime(updated)
	return rv, nil
}

func (r *SQLiteRepository) queryRevenue(ctx context.Context, op, query string, args ...any) ([]core.Revenue, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []core.Revenue
	for rows.Next() {
		rv, err := scanRevenue(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

// ListRevenue returns up to limit revenue rows, most recent transaction first.
func (r *SQLiteRepository) ListRevenue(ctx context.Context, farmID string, limit int) ([]core.Revenue, error) {
	return r.queryRevenue(ctx, "list revenue",
		`SELECT `+revenueColumns+` FROM revenue WHERE farm_id = ?
		 ORDER BY transaction_date DESC, created_at DESC LIMIT ?`, farmID, limit)
}

// ListRevenueRange returns revenue with start <= date <= end, oldest first.
func (r *SQLiteRepository) ListRevenueRange(ctx context.Context, farmID string, start, end core.Date) ([]core.Revenue, error) {
	return r.queryRevenue(ctx, "list revenue range",
		`SELECT `+revenueColumns+` FROM revenue WHERE farm_id = ? AND transaction_date >= ? AND transaction_date <= ?
		 ORDER BY transaction_date ASC, created_at ASC`, farmID, start.String(), end.String())
}

func (r *SQLiteRepository) GetRevenue(ctx context.Context, farmID, id string) (core.Revenue, error) {
	rv, err := scanRevenue(r.db.QueryRowContext(ctx,
		`SELECT `+revenueColumns+` FROM revenue WHERE farm_id = ? AND id = ?`, farmID, id))
	if err != nil {
		return core.Revenue{}, notFound("get revenue", err)
	}
	return rv, nil
}

func (r *SQLiteRepository) CreateRevenue(ctx context.Context, rv core.Revenue) error {
	now := r.stamp()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO revenue (`+revenueColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rv.ID, rv.FarmID, string(rv.Type), rv.Amount.Cents, rv.Date.String(),
		nullString(rv.CustomerName), nullString(rv.HerdID), nullString(rv.AnimalID), nullString(rv.Description), now, now)
	if err != nil {
		return conflict("create revenue", err)
	}
	slog.InfoContext(ctx, "Revenue saved to SQLite",
		"id", rv.ID,
		"farm_id", rv.FarmID,
		"revenue_type", rv.Type,
		"amount", rv.Amount.Cents,
		"date", rv.Date.String())
	return nil
}

// UpdateRevenue rewrites the row and marks it for re-sync.
func (r *SQLiteRepository) UpdateRevenue(ctx context.Context, rv core.Revenue) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE revenue SET revenue_type = ?, amount = ?, transaction_date = ?, customer_name = ?, herd_id = ?,
		        animal_id = ?, description = ?, updated_at = ?, version = version + 1, sync_status = 'pending'
		 WHERE farm_id = ? AND id = ?`,
		string(rv.Type), rv.Amount.Cents, rv.Date.String(), nullString(rv.CustomerName), nullString(rv.HerdID),
		nullString(rv.AnimalID), nullString(rv.Description), r.stamp(), rv.FarmID, rv.ID)
	return expectOne("update revenue", res, err)
}

func (r *SQLiteRepository) DeleteRevenue(ctx context.Context, farmID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM revenue WHERE farm_id = ? AND id = ?`, farmID, id)
	return expectOne("delete revenue", res, err)
}

const expenseColumns = `id, farm_id, category, amount, transaction_date, vendor_name, herd_id, animal_id, description, created_at, updated_at`

func scanExpense(row interface{ Scan(...any) error }) (core.Expense, error) {
	var (
		e                          core.Expense
		category, date             string
		vendor, herd, animal, desc sql.NullString
		created, updated           string
	)
	if err := row.Scan(&e.ID, &e.FarmID, &category, &e.Amount.Cents, &date, &vendor, &herd, &animal, &desc, &created, &updated); err != nil {
		return core.Expense{}, err
	}
	e.Category = core.ExpenseCategory(category)
	e.Date = dateFrom(sql.NullString{String: date, Valid: true})
	e.VendorName = vendor.String
	e.HerdID = herd.String
	e.AnimalID = animal.String
	e.Description = desc.String
	e.CreatedAt = parseTime(created)
	e.UpdatedAt = parseTime(updated)
	return e, nil
}

func (r *SQLiteRepository) queryExpenses(ctx context.Context, op, query string, args ...any) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListExpenses returns up to limit expenses, most recent transaction first.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, farmID string, limit int) ([]core.Expense, error) {
	return r.queryExpenses(ctx, "list expenses",
		`SELECT `+expenseColumns+` FROM expenses WHERE farm_id = ?
		 ORDER BY transaction_date DESC, created_at DESC LIMIT ?`, farmID, limit)
}

// ListExpensesRange returns expenses with start <= date <= end, oldest first.
func (r *SQLiteRepository) ListExpensesRange(ctx context.Context, farmID string, start, end core.Date) ([]core.Expense, error) {
	return r.queryExpenses(ctx, "list expenses range",
		`SELECT `+expenseColumns+` FROM expenses WHERE farm_id = ? AND transaction_date >= ? AND transaction_date <= ?
		 ORDER BY transaction_date ASC, created_at ASC`, farmID, start.String(), end.String())
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, farmID, id string) (core.Expense, error) {
	e, err := scanExpense(r.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE farm_id = ? AND id = ?`, farmID, id))
	if err != nil {
		return core.Expense{}, notFound("get expense", err)
	}
	return e, nil
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) error {
	now := r.stamp()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (`+expenseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.FarmID, string(e.Category), e.Amount.Cents, e.Date.String(),
		nullString(e.VendorName), nullString(e.HerdID), nullString(e.AnimalID), nullString(e.Description), now, now)
	if err != nil {
		return conflict("create expense", err)
	}
	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"farm_id", e.FarmID,
		"category", e.Category,
		"amount", e.Amount.Cents,
		"date", e.Date.String())
	return nil
}

// UpdateExpense rewrites the row and marks it for re-sync.
func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.Expense) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET category = ?, amount = ?, transaction_date = ?, vendor_name = ?, herd_id = ?,
		        animal_id = ?, description = ?, updated_at = ?, version = version + 1, sync_status = 'pending'
		 WHERE farm_id = ? AND id = ?`,
		string(e.Category), e.Amount.Cents, e.Date.String(), nullString(e.VendorName), nullString(e.HerdID),
		nullString(e.AnimalID), nullString(e.Description), r.stamp(), e.FarmID, e.ID)
	return expectOne("update expense", res, err)
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, farmID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE farm_id = ? AND id = ?`, farmID, id)
	return expectOne("delete expense", res, err)
}
