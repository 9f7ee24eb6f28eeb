// Package sheets mirrors ledger rows to the accountant's spreadsheet.
package sheets

import (
	"context"
	"time"

	"farmledger/internal/core"
)

// LedgerRow is the flat shape written to the spreadsheet. One tab per kind.
type LedgerRow struct {
	Kind         core.LedgerKind
	ID           string
	FarmID       string
	Date         core.Date
	Category     string
	Amount       core.Money
	Counterparty string
	Description  string
	Version      int64
	SyncedAt     time.Time
}

func RevenueRow(rv core.Revenue, version int64) LedgerRow {
	return LedgerRow{
		Kind:         core.KindRevenue,
		ID:           rv.ID,
		FarmID:       rv.FarmID,
		Date:         rv.Date,
		Category:     string(rv.Type),
		Amount:       rv.Amount,
		Counterparty: rv.CustomerName,
		Description:  rv.Description,
		Version:      version,
	}
}

func ExpenseRow(e core.Expense, version int64) LedgerRow {
	return LedgerRow{
		Kind:         core.KindExpense,
		ID:           e.ID,
		FarmID:       e.FarmID,
		Date:         e.Date,
		Category:     string(e.Category),
		Amount:       e.Amount,
		Counterparty: e.VendorName,
		Description:  e.Description,
		Version:      version,
	}
}

// Header is the first row of every ledger tab.
var Header = []any{"id", "farm_id", "date", "category", "amount", "counterparty", "description", "version", "synced_at"}

// Values renders the row in Header order. Cells are written as raw values,
// so the amount is numeric and user text never becomes a formula.
func (r LedgerRow) Values() []any {
	return []any{
		r.ID,
		r.FarmID,
		r.Date.String(),
		r.Category,
		r.Amount.Float64(),
		r.Counterparty,
		r.Description,
		r.Version,
		r.SyncedAt.UTC().Format(time.RFC3339),
	}
}

// LedgerMirror keeps one spreadsheet row per ledger row, keyed by id.
type LedgerMirror interface {
	// Upsert rewrites the row with the same id, or appends it.
	Upsert(ctx context.Context, row LedgerRow) (rowRef string, err error)
	// Delete removes the row with the id. Missing rows are not an error.
	Delete(ctx context.Context, kind core.LedgerKind, id string) error
}
