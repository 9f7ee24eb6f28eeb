package storage

import (
	"context"
	"database/sql"
	"fmt"

	"farmledger/internal/core"
)

const subsidyColumns = `id, farm_id, name, expected_amount, actual_amount, application_deadline, payment_date, status, document_url, created_at, updated_at`

func scanSubsidy(row interface{ Scan(...any) error }) (core.Subsidy, error) {
	var (
		s                core.Subsidy
		actual           sql.NullInt64
		deadline, paid   sql.NullString
		docURL           sql.NullString
		status           string
		created, updated string
	)
	if err := row.Scan(&s.ID, &s.FarmID, &s.Name, &s.ExpectedAmount.Cents, &actual, &deadline, &paid, &status, &docURL, &created, &updated); err != nil {
		return core.Subsidy{}, err
	}
	s.ActualAmount = core.Money{Cents: actual.Int64}
	s.ApplicationDeadline = dateFrom(deadline)
	s.PaymentDate = dateFrom(paid)
	s.Status = core.SubsidyStatus(status)
	s.DocumentURL = docURL.String
	s.CreatedAt = parseTime(created)
	s.UpdatedAt = parseTime(updated)
	return s, nil
}

func (r *SQLiteRepository) querySubsidies(ctx context.Context, op, query string, args ...any) ([]core.Subsidy, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []core.Subsidy
	for rows.Next() {
		s, err := scanSubsidy(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListSubsidies returns up to limit subsidies, latest deadline first; rows without a deadline come last.
func (r *SQLiteRepository) ListSubsidies(ctx context.Context, farmID string, limit int) ([]core.Subsidy, error) {
	return r.querySubsidies(ctx, "list subsidies",
		`SELECT `+subsidyColumns+` FROM subsidies WHERE farm_id = ?
		 ORDER BY application_deadline IS NULL, application_deadline DESC, created_at DESC LIMIT ?`, farmID, limit)
}

// ListUpcomingSubsidies returns applied or approved subsidies whose deadline is today or later, soonest first.
func (r *SQLiteRepository) ListUpcomingSubsidies(ctx context.Context, farmID string, today core.Date, limit int) ([]core.Subsidy, error) {
	return r.querySubsidies(ctx, "list upcoming subsidies",
		`SELECT `+subsidyColumns+` FROM subsidies
		 WHERE farm_id = ? AND status IN ('applied', 'approved') AND application_deadline >= ?
		 ORDER BY application_deadline ASC LIMIT ?`, farmID, today.String(), limit)
}

func (r *SQLiteRepository) GetSubsidy(ctx context.Context, farmID, id string) (core.Subsidy, error) {
	s, err := scanSubsidy(r.db.QueryRowContext(ctx,
		`SELECT `+subsidyColumns+` FROM subsidies WHERE farm_id = ? AND id = ?`, farmID, id))
	if err != nil {
		return core.Subsidy{}, notFound("get subsidy", err)
	}
	return s, nil
}

func (r *SQLiteRepository) CreateSubsidy(ctx context.Context, s core.Subsidy) error {
	now := r.stamp()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO subsidies (`+subsidyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.FarmID, s.Name, s.ExpectedAmount.Cents, nullMoney(s.ActualAmount),
		nullDate(s.ApplicationDeadline), nullDate(s.PaymentDate), string(s.Status), nullString(s.DocumentURL), now, now)
	if err != nil {
		return conflict("create subsidy", err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateSubsidy(ctx context.Context, s core.Subsidy) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE subsidies SET name = ?, expected_amount = ?, actual_amount = ?, application_deadline = ?,
		        payment_date = ?, status = ?, document_url = ?, updated_at = ?
		 WHERE farm_id = ? AND id = ?`,
		s.Name, s.ExpectedAmount.Cents, nullMoney(s.ActualAmount), nullDate(s.ApplicationDeadline),
		nullDate(s.PaymentDate), string(s.Status), nullString(s.DocumentURL), r.stamp(), s.FarmID, s.ID)
	return expectOne("update subsidy", res, err)
}

func (r *SQLiteRepository) DeleteSubsidy(ctx context.Context, farmID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM subsidies WHERE farm_id = ? AND id = ?`, farmID, id)
	return expectOne("delete subsidy", res, err)
}
