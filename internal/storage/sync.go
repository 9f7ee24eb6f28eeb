package storage

import (
	"context"
	"fmt"
	"log/slog"

	"farmledger/internal/core"
)

// ListPendingLedgerSync returns up to limit revenue and expense rows awaiting
// a mirror, oldest first. Rows that failed before come after every pending
// row, so a batch of failing rows cannot starve new writes.
func (r *SQLiteRepository) ListPendingLedgerSync(ctx context.Context, limit int) ([]core.PendingSync, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT kind, id, farm_id, version, created_at FROM (
		     SELECT 'revenue' AS kind, id, farm_id, version, sync_status, created_at FROM revenue WHERE sync_status != 'synced'
		     UNION ALL
		     SELECT 'expense', id, farm_id, version, sync_status, created_at FROM expenses WHERE sync_status != 'synced'
		 ) ORDER BY sync_status = 'error' ASC, created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending ledger sync: %w", err)
	}
	defer rows.Close()

	var out []core.PendingSync
	for rows.Next() {
		var (
			p             core.PendingSync
			kind, created string
		)
		if err := rows.Scan(&kind, &p.ID, &p.FarmID, &p.Version, &created); err != nil {
			return nil, fmt.Errorf("scan pending ledger sync: %w", err)
		}
		p.Kind = core.LedgerKind(kind)
		p.CreatedAt = parseTime(created)
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetLedgerVersion returns the current version of a ledger row.
func (r *SQLiteRepository) GetLedgerVersion(ctx context.Context, kind core.LedgerKind, id string) (int64, error) {
	table, err := ledgerTable(kind)
	if err != nil {
		return 0, err
	}
	var version int64
	if err := r.db.QueryRowContext(ctx, `SELECT version FROM `+table+` WHERE id = ?`, id).Scan(&version); err != nil {
		return 0, notFound("get ledger version", err)
	}
	return version, nil
}

// MarkLedgerSynced flags the row as mirrored, unless it changed since version was read.
func (r *SQLiteRepository) MarkLedgerSynced(ctx context.Context, kind core.LedgerKind, id string, version int64) error {
	table, err := ledgerTable(kind)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE `+table+` SET sync_status = 'synced' WHERE id = ? AND version = ?`, id, version)
	if err != nil {
		return fmt.Errorf("mark %s synced: %w", kind, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		slog.DebugContext(ctx, "Ledger row changed or vanished before sync completed", "kind", kind, "id", id, "version", version)
		return nil
	}
	slog.InfoContext(ctx, "Ledger row marked as synced", "kind", kind, "id", id, "version", version)
	return nil
}

func (r *SQLiteRepository) MarkLedgerSyncError(ctx context.Context, kind core.LedgerKind, id string) error {
	table, err := ledgerTable(kind)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `UPDATE `+table+` SET sync_status = 'error' WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark %s sync error: %w", kind, err)
	}
	slog.WarnContext(ctx, "Ledger row marked with sync error", "kind", kind, "id", id)
	return nil
}

func ledgerTable(kind core.LedgerKind) (string, error) {
	switch kind {
	case core.KindRevenue:
		return "revenue", nil
	case core.KindExpense:
		return "expenses", nil
	default:
		return "", fmt.Errorf("unknown ledger kind %q", kind)
	}
}
