package memory

import (
	"context"
	"fmt"
	"sort"

	"farmledger/internal/core"
)

func (s *Store) hasFarm(farmID string) bool {
	_, ok := s.profiles[farmID]
	return ok
}

func inRange(d, start, end core.Date) bool {
	ds := d.String()
	return ds >= start.String() && ds <= end.String()
}

func newestRevenue(a, b entry[core.Revenue]) bool {
	if da, db := a.val.Date.String(), b.val.Date.String(); da != db {
		return da > db
	}
	return a.seq > b.seq
}

func oldestRevenue(a, b entry[core.Revenue]) bool { return newestRevenue(b, a) }

func (s *Store) ListRevenue(_ context.Context, farmID string, limit int) ([]core.Revenue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return limited(sorted(s.revenue,
		func(r core.Revenue) bool { return r.FarmID == farmID },
		newestRevenue,
	), limit), nil
}

func (s *Store) ListRevenueRange(_ context.Context, farmID string, start, end core.Date) ([]core.Revenue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sorted(s.revenue,
		func(r core.Revenue) bool { return r.FarmID == farmID && inRange(r.Date, start, end) },
		oldestRevenue,
	), nil
}

func (s *Store) GetRevenue(_ context.Context, farmID, id string) (core.Revenue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.revenue[id]
	if !ok || e.val.FarmID != farmID {
		return core.Revenue{}, notFound("get revenue")
	}
	return e.val, nil
}

func (s *Store) CreateRevenue(_ context.Context, rv core.Revenue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.revenue[rv.ID]; ok {
		return conflict("create revenue")
	}
	if !s.hasFarm(rv.FarmID) {
		return fmt.Errorf("create revenue: unknown farm %q", rv.FarmID)
	}
	now := s.now().UTC()
	rv.CreatedAt, rv.UpdatedAt = now, now
	s.revenue[rv.ID] = entry[core.Revenue]{val: rv, seq: s.next()}
	s.meta[core.KindRevenue][rv.ID] = &ledgerMeta{version: 1, status: core.SyncPending}
	return nil
}

func (s *Store) UpdateRevenue(_ context.Context, rv core.Revenue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.revenue[rv.ID]
	if !ok || e.val.FarmID != rv.FarmID {
		return notFound("update revenue")
	}
	rv.CreatedAt = e.val.CreatedAt
	rv.UpdatedAt = s.now().UTC()
	e.val = rv
	s.revenue[rv.ID] = e
	s.bump(core.KindRevenue, rv.ID)
	return nil
}

func (s *Store) DeleteRevenue(_ context.Context, farmID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.revenue[id]
	if !ok || e.val.FarmID != farmID {
		return notFound("delete revenue")
	}
	delete(s.revenue, id)
	delete(s.meta[core.KindRevenue], id)
	return nil
}

func newestExpense(a, b entry[core.Expense]) bool {
	if da, db := a.val.Date.String(), b.val.Date.String(); da != db {
		return da > db
	}
	return a.seq > b.seq
}

func oldestExpense(a, b entry[core.Expense]) bool { return newestExpense(b, a) }

func (s *Store) ListExpenses(_ context.Context, farmID string, limit int) ([]core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return limited(sorted(s.expenses,
		func(e core.Expense) bool { return e.FarmID == farmID },
		newestExpense,
	), limit), nil
}

func (s *Store) ListExpensesRange(_ context.Context, farmID string, start, end core.Date) ([]core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sorted(s.expenses,
		func(e core.Expense) bool { return e.FarmID == farmID && inRange(e.Date, start, end) },
		oldestExpense,
	), nil
}

func (s *Store) GetExpense(_ context.Context, farmID, id string) (core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.expenses[id]
	if !ok || e.val.FarmID != farmID {
		return core.Expense{}, notFound("get expense")
	}
	return e.val, nil
}

func (s *Store) CreateExpense(_ context.Context, x core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenses[x.ID]; ok {
		return conflict("create expense")
	}
	if !s.hasFarm(x.FarmID) {
		return fmt.Errorf("create expense: unknown farm %q", x.FarmID)
	}
	now := s.now().UTC()
	x.CreatedAt, x.UpdatedAt = now, now
	s.expenses[x.ID] = entry[core.Expense]{val: x, seq: s.next()}
	s.meta[core.KindExpense][x.ID] = &ledgerMeta{version: 1, status: core.SyncPending}
	return nil
}

func (s *Store) UpdateExpense(_ context.Context, x core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[x.ID]
	if !ok || e.val.FarmID != x.FarmID {
		return notFound("update expense")
	}
	x.CreatedAt = e.val.CreatedAt
	x.UpdatedAt = s.now().UTC()
	e.val = x
	s.expenses[x.ID] = e
	s.bump(core.KindExpense, x.ID)
	return nil
}

func (s *Store) DeleteExpense(_ context.Context, farmID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok || e.val.FarmID != farmID {
		return notFound("delete expense")
	}
	delete(s.expenses, id)
	delete(s.meta[core.KindExpense], id)
	return nil
}

func (s *Store) bump(kind core.LedgerKind, id string) {
	m := s.meta[kind][id]
	m.version++
	m.status = core.SyncPending
}

// Sync bookkeeping

func (s *Store) ListPendingLedgerSync(_ context.Context, limit int) ([]core.PendingSync, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type pending struct {
		p      core.PendingSync
		seq    int64
		failed bool
	}
	var rows []pending
	for id, e := range s.revenue {
		if m := s.meta[core.KindRevenue][id]; m.status != core.SyncSynced {
			rows = append(rows, pending{core.PendingSync{Kind: core.KindRevenue, ID: id, FarmID: e.val.FarmID, Version: m.version, CreatedAt: e.val.CreatedAt}, e.seq, m.status == core.SyncError})
		}
	}
	for id, e := range s.expenses {
		if m := s.meta[core.KindExpense][id]; m.status != core.SyncSynced {
			rows = append(rows, pending{core.PendingSync{Kind: core.KindExpense, ID: id, FarmID: e.val.FarmID, Version: m.version, CreatedAt: e.val.CreatedAt}, e.seq, m.status == core.SyncError})
		}
	}
	sortBySeq(rows, func(p pending) int64 { return p.seq })
	// Failed rows go last.
	sort.SliceStable(rows, func(i, j int) bool { return !rows[i].failed && rows[j].failed })

	out := make([]core.PendingSync, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.p)
	}
	return limited(out, limit), nil
}

func (s *Store) GetLedgerVersion(_ context.Context, kind core.LedgerKind, id string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	metas, ok := s.meta[kind]
	if !ok {
		return 0, fmt.Errorf("unknown ledger kind %q", kind)
	}
	m, ok := metas[id]
	if !ok {
		return 0, notFound("get ledger version")
	}
	return m.version, nil
}

func (s *Store) MarkLedgerSynced(_ context.Context, kind core.LedgerKind, id string, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	metas, ok := s.meta[kind]
	if !ok {
		return fmt.Errorf("unknown ledger kind %q", kind)
	}
	if m, ok := metas[id]; ok && m.version == version {
		m.status = core.SyncSynced
	}
	return nil
}

func (s *Store) MarkLedgerSyncError(_ context.Context, kind core.LedgerKind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	metas, ok := s.meta[kind]
	if !ok {
		return fmt.Errorf("unknown ledger kind %q", kind)
	}
	if m, ok := metas[id]; ok {
		m.status = core.SyncError
	}
	return nil
}
