package core

import "time"

// LedgerKind names the ledger table a sync message refers to.
type LedgerKind string

const (
	KindRevenue LedgerKind = "revenue"
	KindExpense LedgerKind = "expense"
)

func (k LedgerKind) Valid() bool { return k == KindRevenue || k == KindExpense }

// SyncStatus tracks mirroring of a ledger row to the accountant's spreadsheet.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncError   SyncStatus = "error"
)

// PendingSync is a ledger row whose latest version has not been mirrored yet.
type PendingSync struct {
	Kind      LedgerKind
	ID        string
	FarmID    string
	Version   int64
	CreatedAt time.Time
}
