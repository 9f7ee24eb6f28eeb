// Package memory is an in-process LedgerMirror for tests and for running the
// worker without Google credentials.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"farmledger/internal/core"
	"farmledger/internal/sheets"
)

type Mirror struct {
	mu   sync.Mutex
	rows map[core.LedgerKind]map[string]sheets.LedgerRow
	seq  map[string]int
	next int
}

var _ sheets.LedgerMirror = (*Mirror)(nil)

func New() *Mirror {
	return &Mirror{
		rows: map[core.LedgerKind]map[string]sheets.LedgerRow{
			core.KindRevenue: {},
			core.KindExpense: {},
		},
		seq: map[string]int{},
	}
}

func (m *Mirror) Upsert(_ context.Context, row sheets.LedgerRow) (string, error) {
	tab, ok := m.rows[row.Kind]
	if !ok {
		return "", fmt.Errorf("unknown ledger kind %q", row.Kind)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(row.Kind) + ":" + row.ID
	if _, exists := m.seq[key]; !exists {
		m.next++
		m.seq[key] = m.next
	}
	tab[row.ID] = row
	return fmt.Sprintf("mem:%s:%d", row.Kind, m.seq[key]), nil
}

func (m *Mirror) Delete(_ context.Context, kind core.LedgerKind, id string) error {
	tab, ok := m.rows[kind]
	if !ok {
		return fmt.Errorf("unknown ledger kind %q", kind)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(tab, id)
	return nil
}

// Rows returns a snapshot of one tab in insertion order.
func (m *Mirror) Rows(kind core.LedgerKind) []sheets.LedgerRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sheets.LedgerRow, 0, len(m.rows[kind]))
	for _, r := range m.rows[kind] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return m.seq[string(kind)+":"+out[i].ID] < m.seq[string(kind)+":"+out[j].ID]
	})
	return out
}
