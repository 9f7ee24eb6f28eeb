package memory

import (
	"context"
	"testing"

	"farmledger/internal/core"
	"farmledger/internal/sheets"
)

func TestMirrorUpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	m := New()

	ref, err := m.Upsert(ctx, sheets.LedgerRow{Kind: core.KindExpense, ID: "e1", Version: 1})
	if err != nil || ref != "mem:expense:1" {
		t.Fatalf("Upsert = %q, %v", ref, err)
	}
	if _, err := m.Upsert(ctx, sheets.LedgerRow{Kind: core.KindExpense, ID: "e2", Version: 1}); err != nil {
		t.Fatal(err)
	}
	ref, _ = m.Upsert(ctx, sheets.LedgerRow{Kind: core.KindExpense, ID: "e1", Version: 2})
	if ref != "mem:expense:1" {
		t.Fatalf("re-upsert moved the row: %s", ref)
	}

	rows := m.Rows(core.KindExpense)
	if len(rows) != 2 || rows[0].ID != "e1" || rows[0].Version != 2 {
		t.Fatalf("rows = %+v", rows)
	}

	if err := m.Delete(ctx, core.KindExpense, "e1"); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(ctx, core.KindExpense, "missing"); err != nil {
		t.Fatalf("deleting a missing row: %v", err)
	}
	if got := len(m.Rows(core.KindExpense)); got != 1 {
		t.Fatalf("rows after delete = %d", got)
	}
	if _, err := m.Upsert(ctx, sheets.LedgerRow{Kind: "subsidy", ID: "s"}); err == nil {
		t.Fatal("unknown kind accepted")
	}
}
