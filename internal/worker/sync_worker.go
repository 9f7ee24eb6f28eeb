// Package worker mirrors ledger rows to the spreadsheet, driven by AMQP
// messages and a periodic sweep of rows still pending.
package worker

import (
	"context"
	"errors"
	"fmt"

	"farmledger/internal/amqp"
	"farmledger/internal/backend"
	"farmledger/internal/core"
	"farmledger/internal/log"
	"farmledger/internal/sheets"
)

type Repository interface {
	GetRevenue(ctx context.Context, farmID, id string) (core.Revenue, error)
	GetExpense(ctx context.Context, farmID, id string) (core.Expense, error)
	backend.SyncStore
}

// SyncWorker writes ledger rows to the mirror and records the outcome.
type SyncWorker struct {
	repo      Repository
	mirror    sheets.LedgerMirror
	batchSize int
	logger    *log.Logger
}

func NewSyncWorker(repo Repository, mirror sheets.LedgerMirror, batchSize int, logger *log.Logger) *SyncWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if batchSize < 1 {
		batchSize = 10
	}
	return &SyncWorker{repo: repo, mirror: mirror, batchSize: batchSize, logger: logger.WithComponent(log.ComponentWorker)}
}

// HandleMessage processes one sync message. A returned error requeues it.
func (w *SyncWorker) HandleMessage(ctx context.Context, msg amqp.LedgerSyncMessage) error {
	w.logger.InfoContext(ctx, "Processing sync message",
		"kind", msg.Kind,
		log.FieldEntityID, msg.ID,
		"op", msg.Op,
		"version", msg.Version)

	switch msg.Op {
	case amqp.OpDelete:
		if err := w.mirror.Delete(ctx, msg.Kind, msg.ID); err != nil {
			return fmt.Errorf("delete from sheet: %w", err)
		}
		return nil
	case amqp.OpUpsert:
		return w.sync(ctx, msg.Kind, msg.ID, msg.FarmID)
	default:
		return fmt.Errorf("unknown op %q", msg.Op)
	}
}

// sync mirrors the row's current state. A row deleted since the message was
// sent is skipped; its delete message removes it from the sheet.
func (w *SyncWorker) sync(ctx context.Context, kind core.LedgerKind, id, farmID string) error {
	version, err := w.repo.GetLedgerVersion(ctx, kind, id)
	if errors.Is(err, core.ErrNotFound) {
		w.logger.InfoContext(ctx, "Ledger row gone, skipping sync", "kind", kind, log.FieldEntityID, id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}

	row, err := w.load(ctx, kind, id, farmID, version)
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	ref, err := w.mirror.Upsert(ctx, row)
	if err != nil {
		if markErr := w.repo.MarkLedgerSyncError(ctx, kind, id); markErr != nil {
			w.logger.ErrorContext(ctx, "Failed to mark sync error", log.FieldEntityID, id, log.FieldError, markErr)
		}
		return fmt.Errorf("upsert to sheet: %w", err)
	}

	// A newer edit keeps the row pending; only this version is marked.
	if err := w.repo.MarkLedgerSynced(ctx, kind, id, version); err != nil {
		w.logger.ErrorContext(ctx, "Failed to mark as synced", log.FieldEntityID, id, log.FieldError, err)
	}

	w.logger.InfoContext(ctx, "Synced ledger row",
		"kind", kind,
		log.FieldEntityID, id,
		"version", version,
		log.FieldSheetsRef, ref,
		log.FieldAmount, row.Amount.Cents)
	return nil
}

func (w *SyncWorker) load(ctx context.Context, kind core.LedgerKind, id, farmID string, version int64) (sheets.LedgerRow, error) {
	switch kind {
	case core.KindRevenue:
		rv, err := w.repo.GetRevenue(ctx, farmID, id)
		if err != nil {
			return sheets.LedgerRow{}, fmt.Errorf("get revenue: %w", err)
		}
		return sheets.RevenueRow(rv, version), nil
	case core.KindExpense:
		e, err := w.repo.GetExpense(ctx, farmID, id)
		if err != nil {
			return sheets.LedgerRow{}, fmt.Errorf("get expense: %w", err)
		}
		return sheets.ExpenseRow(e, version), nil
	default:
		return sheets.LedgerRow{}, fmt.Errorf("unknown ledger kind %q", kind)
	}
}

// ProcessPending syncs up to one batch of rows whose latest version is not
// mirrored yet. It covers lost messages and worker downtime.
func (w *SyncWorker) ProcessPending(ctx context.Context) (synced, failed int, err error) {
	pending, err := w.repo.ListPendingLedgerSync(ctx, w.batchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("list pending rows: %w", err)
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	w.logger.InfoContext(ctx, "Processing pending ledger rows", "count", len(pending))
	for _, p := range pending {
		if ctx.Err() != nil {
			return synced, failed, ctx.Err()
		}
		if err := w.sync(ctx, p.Kind, p.ID, p.FarmID); err != nil {
			w.logger.ErrorContext(ctx, "Failed to sync pending row", log.FieldEntityID, p.ID, log.FieldError, err)
			failed++
			continue
		}
		synced++
	}
	return synced, failed, nil
}
