package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"farmledger/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "farm.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

// seedFarm creates a user with a profile and returns the farm id.
func seedFarm(t *testing.T, repo *SQLiteRepository, suffix string) string {
	t.Helper()
	ctx := context.Background()
	userID := "user-" + suffix
	if err := repo.CreateUser(ctx, core.User{ID: userID, Email: suffix + "@example.com", PasswordHash: "hash"}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	farmID := "farm-" + suffix
	if err := repo.CreateProfile(ctx, core.Profile{ID: farmID, UserID: userID, Role: core.RoleOwner}); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	return farmID
}

func TestMigrationsApplied(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	version, dirty, err := repo.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if dirty || version != 3 {
		t.Fatalf("schema version = %d dirty=%v, want 3 clean", version, dirty)
	}
	if err := repo.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestPingReportsBrokenSchema(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.db.ExecContext(ctx, `UPDATE schema_migrations SET dirty = 1`); err != nil {
		t.Fatal(err)
	}
	if err := repo.Ping(ctx); err == nil || !strings.Contains(err.Error(), "dirty at version 3") {
		t.Fatalf("Ping on dirty schema = %v", err)
	}

	if _, err := repo.db.ExecContext(ctx, `UPDATE schema_migrations SET version = 2, dirty = 0`); err != nil {
		t.Fatal(err)
	}
	if err := repo.Ping(ctx); err == nil || !strings.Contains(err.Error(), "want 3") {
		t.Fatalf("Ping on old schema = %v", err)
	}
}

func TestUsersAndSessions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u := core.User{ID: "u1", Email: "farmer@example.com", PasswordHash: "argon2id$..."}
	if err := repo.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := repo.CreateUser(ctx, core.User{ID: "u2", Email: u.Email, PasswordHash: "x"}); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("duplicate email err = %v, want ErrConflict", err)
	}

	got, err := repo.GetUserByEmail(ctx, "farmer@example.com")
	if err != nil || got.ID != "u1" || got.CreatedAt.IsZero() {
		t.Fatalf("GetUserByEmail = %+v, %v", got, err)
	}
	if _, err := repo.GetUserByID(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("missing user err = %v", err)
	}

	now := time.Now()
	live := core.Session{ID: "s1", UserID: "u1", ExpiresAt: now.Add(time.Hour)}
	expired := core.Session{ID: "s2", UserID: "u1", ExpiresAt: now.Add(-time.Hour)}
	for _, s := range []core.Session{live, expired} {
		if err := repo.CreateSession(ctx, s); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
	}

	s, err := repo.GetSession(ctx, "s1")
	if err != nil || s.Revoked || s.UserID != "u1" {
		t.Fatalf("GetSession = %+v, %v", s, err)
	}
	if !s.ExpiresAt.After(now) {
		t.Fatalf("expires_at round trip lost precision: %v", s.ExpiresAt)
	}

	if err := repo.RevokeSession(ctx, "s1"); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}
	if s, _ := repo.GetSession(ctx, "s1"); !s.Revoked {
		t.Fatal("session should be revoked")
	}
	if err := repo.RevokeSession(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("revoke missing err = %v", err)
	}

	n, err := repo.DeleteExpiredSessions(ctx, now)
	if err != nil || n != 2 {
		t.Fatalf("DeleteExpiredSessions = %d, %v; want 2 (one expired, one revoked)", n, err)
	}
}

func TestRotateSession(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	if err := repo.CreateUser(ctx, core.User{ID: "u1", Email: "a@example.com", PasswordHash: "h"}); err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	if err := repo.CreateSession(ctx, core.Session{ID: "s1", UserID: "u1", ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}

	next := core.Session{ID: "s2", UserID: "u1", ExpiresAt: now.Add(2 * time.Hour)}
	if err := repo.RotateSession(ctx, "s1", next, now); err != nil {
		t.Fatalf("RotateSession: %v", err)
	}
	old, err := repo.GetSession(ctx, "s1")
	if err != nil || !old.Revoked || old.ReplacedBy != "s2" || !old.RotatedAt.Equal(now) {
		t.Fatalf("rotated session = %+v, %v", old, err)
	}
	if s, err := repo.GetSession(ctx, "s2"); err != nil || s.Revoked {
		t.Fatalf("successor = %+v, %v", s, err)
	}

	lost := core.Session{ID: "s3", UserID: "u1", ExpiresAt: now.Add(2 * time.Hour)}
	if err := repo.RotateSession(ctx, "s1", lost, now); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("second rotation err = %v, want ErrConflict", err)
	}
	if _, err := repo.GetSession(ctx, "s3"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("losing rotation must not insert its session: %v", err)
	}

	if n, err := repo.DeleteExpiredSessions(ctx, now.Add(time.Second)); err != nil || n != 0 {
		t.Fatalf("purge inside reuse window = %d, %v", n, err)
	}
	if n, err := repo.DeleteExpiredSessions(ctx, now.Add(core.SessionReuseWindow+time.Second)); err != nil || n != 1 {
		t.Fatalf("purge after reuse window = %d, %v", n, err)
	}
}

func TestProfileLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	if err := repo.CreateUser(ctx, core.User{ID: "u1", Email: "a@example.com", PasswordHash: "h"}); err != nil {
		t.Fatal(err)
	}

	if _, err := repo.GetProfileByUserID(ctx, "u1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected no profile yet, got %v", err)
	}

	p := core.Profile{ID: "p1", UserID: "u1", Role: core.RoleOwner, FarmName: "My Farm"}
	if err := repo.CreateProfile(ctx, p); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	if err := repo.CreateProfile(ctx, core.Profile{ID: "p2", UserID: "u1", Role: core.RoleOwner}); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("second profile err = %v, want ErrConflict", err)
	}

	p.FarmName = ""
	p.Role = core.RoleAccountant
	if err := repo.UpdateProfile(ctx, p); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	got, err := repo.GetProfileByUserID(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfileByUserID: %v", err)
	}
	if got.FarmName != "" || got.Role != core.RoleAccountant {
		t.Fatalf("profile = %+v", got)
	}
}

func TestHerdsAndAnimalsScopedByFarm(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	farmA := seedFarm(t, repo, "a")
	farmB := seedFarm(t, repo, "b")

	for i, name := range []string{"Dairy 1", "Beef 1"} {
		h := core.Herd{ID: "h" + string(rune('1'+i)), FarmID: farmA, Name: name, AnimalType: core.AnimalDairy}
		if err := repo.CreateHerd(ctx, h); err != nil {
			t.Fatalf("CreateHerd: %v", err)
		}
	}

	herds, err := repo.ListHerds(ctx, farmA)
	if err != nil || len(herds) != 2 {
		t.Fatalf("ListHerds = %d, %v", len(herds), err)
	}
	if herds[0].Name != "Beef 1" {
		t.Fatalf("expected newest herd first, got %q", herds[0].Name)
	}
	if other, _ := repo.ListHerds(ctx, farmB); len(other) != 0 {
		t.Fatalf("farm B sees %d herds", len(other))
	}
	if _, err := repo.GetHerd(ctx, farmB, "h1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("cross-farm GetHerd err = %v", err)
	}
	if err := repo.DeleteHerd(ctx, farmB, "h1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("cross-farm DeleteHerd err = %v", err)
	}

	a := core.Animal{ID: "a1", HerdID: "h1", IdentificationNumber: "JP-001", BirthDate: core.NewDate(2022, 4, 1), Status: core.AnimalActive}
	if err := repo.CreateAnimal(ctx, farmA, a); err != nil {
		t.Fatalf("CreateAnimal: %v", err)
	}
	if err := repo.CreateAnimal(ctx, farmB, core.Animal{ID: "a2", HerdID: "h1", Status: core.AnimalActive}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("cross-farm CreateAnimal err = %v", err)
	}

	a.Status = core.AnimalSold
	a.SaleDate = core.NewDate(2025, 1, 5)
	if err := repo.UpdateAnimal(ctx, farmA, a); err != nil {
		t.Fatalf("UpdateAnimal: %v", err)
	}
	got, err := repo.GetAnimal(ctx, farmA, "a1")
	if err != nil || got.Status != core.AnimalSold || got.SaleDate.String() != "2025-01-05" || got.BirthDate.String() != "2022-04-01" {
		t.Fatalf("GetAnimal = %+v, %v", got, err)
	}

	if err := repo.DeleteHerd(ctx, farmA, "h1"); err != nil {
		t.Fatalf("DeleteHerd: %v", err)
	}
	if _, err := repo.GetAnimal(ctx, farmA, "a1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("animal should cascade with herd, err = %v", err)
	}
}

func TestLedgerOrderingAndRange(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	farm := seedFarm(t, repo, "a")

	dates := []core.Date{core.NewDate(2025, 3, 10), core.NewDate(2025, 1, 5), core.NewDate(2025, 2, 20)}
	for i, d := range dates {
		rv := core.Revenue{ID: "r" + d.String(), FarmID: farm, Type: core.RevenueMilk, Amount: core.Money{Cents: int64(i+1) * 1000}, Date: d}
		if err := repo.CreateRevenue(ctx, rv); err != nil {
			t.Fatalf("CreateRevenue: %v", err)
		}
		e := core.Expense{ID: "e" + d.String(), FarmID: farm, Category: core.ExpenseFuel, Amount: core.Money{Cents: 500}, Date: d, VendorName: "Co-op"}
		if err := repo.CreateExpense(ctx, e); err != nil {
			t.Fatalf("CreateExpense: %v", err)
		}
	}

	latest, err := repo.ListRevenue(ctx, farm, 2)
	if err != nil || len(latest) != 2 {
		t.Fatalf("ListRevenue = %d, %v", len(latest), err)
	}
	if latest[0].Date.String() != "2025-03-10" || latest[1].Date.String() != "2025-02-20" {
		t.Fatalf("unexpected order: %s, %s", latest[0].Date, latest[1].Date)
	}

	inRange, err := repo.ListExpensesRange(ctx, farm, core.NewDate(2025, 1, 5), core.NewDate(2025, 2, 28))
	if err != nil || len(inRange) != 2 {
		t.Fatalf("ListExpensesRange = %d, %v", len(inRange), err)
	}
	if inRange[0].Date.String() != "2025-01-05" || inRange[0].VendorName != "Co-op" {
		t.Fatalf("range should be ascending and inclusive, got %+v", inRange[0])
	}

	rv, err := repo.GetRevenue(ctx, farm, "r2025-01-05")
	if err != nil {
		t.Fatalf("GetRevenue: %v", err)
	}
	rv.Amount = core.Money{Cents: 99900}
	rv.Description = "corrected"
	if err := repo.UpdateRevenue(ctx, rv); err != nil {
		t.Fatalf("UpdateRevenue: %v", err)
	}
	version, err := repo.GetLedgerVersion(ctx, core.KindRevenue, rv.ID)
	if err != nil || version != 2 {
		t.Fatalf("version after update = %d, %v", version, err)
	}

	if err := repo.DeleteExpense(ctx, "farm-other", "e2025-01-05"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("cross-farm delete err = %v", err)
	}
	if err := repo.DeleteExpense(ctx, farm, "e2025-01-05"); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}
}

func TestSubsidies(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	farm := seedFarm(t, repo, "a")
	today := core.NewDate(2025, 6, 1)

	subs := []core.Subsidy{
		{ID: "s1", FarmID: farm, Name: "Stabilisation", ExpectedAmount: core.Money{Cents: 100}, ApplicationDeadline: today.AddDays(30), Status: core.SubsidyApplied},
		{ID: "s2", FarmID: farm, Name: "Environment", ExpectedAmount: core.Money{Cents: 100}, ActualAmount: core.Money{Cents: 100}, ApplicationDeadline: today.AddDays(-10), PaymentDate: today.AddDays(-5), Status: core.SubsidyPaid},
		{ID: "s3", FarmID: farm, Name: "Feed prices", ExpectedAmount: core.Money{Cents: 100}, ApplicationDeadline: today.AddDays(5), Status: core.SubsidyApproved},
		{ID: "s4", FarmID: farm, Name: "No deadline", ExpectedAmount: core.Money{Cents: 100}, Status: core.SubsidyApplied},
		{ID: "s5", FarmID: farm, Name: "Rejected", ExpectedAmount: core.Money{Cents: 100}, ApplicationDeadline: today.AddDays(3), Status: core.SubsidyRejected},
	}
	for _, s := range subs {
		if err := repo.CreateSubsidy(ctx, s); err != nil {
			t.Fatalf("CreateSubsidy %s: %v", s.ID, err)
		}
	}

	upcoming, err := repo.ListUpcomingSubsidies(ctx, farm, today, 5)
	if err != nil {
		t.Fatalf("ListUpcomingSubsidies: %v", err)
	}
	if len(upcoming) != 2 || upcoming[0].ID != "s3" || upcoming[1].ID != "s1" {
		t.Fatalf("upcoming = %+v", upcoming)
	}

	all, err := repo.ListSubsidies(ctx, farm, 50)
	if err != nil || len(all) != 5 {
		t.Fatalf("ListSubsidies = %d, %v", len(all), err)
	}
	if all[len(all)-1].ID != "s4" {
		t.Fatalf("subsidy without deadline should sort last, got %s", all[len(all)-1].ID)
	}

	paid, err := repo.GetSubsidy(ctx, farm, "s2")
	if err != nil || paid.ActualAmount.Cents != 100 || paid.PaymentDate.String() != today.AddDays(-5).String() {
		t.Fatalf("GetSubsidy = %+v, %v", paid, err)
	}
}

func TestReportingViews(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	farm := seedFarm(t, repo, "a")

	if err := repo.CreateHerd(ctx, core.Herd{ID: "h1", FarmID: farm, Name: "Dairy", AnimalType: core.AnimalDairy}); err != nil {
		t.Fatal(err)
	}
	for i, status := range []core.AnimalStatus{core.AnimalActive, core.AnimalActive, core.AnimalSold} {
		a := core.Animal{ID: "a" + string(rune('0'+i)), HerdID: "h1", Status: status}
		if err := repo.CreateAnimal(ctx, farm, a); err != nil {
			t.Fatal(err)
		}
	}

	entries := []struct {
		revenue bool
		cents   int64
		date    core.Date
		herd    string
	}{
		{true, 500000, core.NewDate(2025, 1, 10), "h1"},
		{true, 150000, core.NewDate(2025, 1, 20), ""},
		{false, 200000, core.NewDate(2025, 1, 15), "h1"},
		{false, 80000, core.NewDate(2025, 2, 1), ""},
	}
	for i, e := range entries {
		id := "x" + string(rune('0'+i))
		var err error
		if e.revenue {
			err = repo.CreateRevenue(ctx, core.Revenue{ID: id, FarmID: farm, Type: core.RevenueMilk, Amount: core.Money{Cents: e.cents}, Date: e.date, HerdID: e.herd})
		} else {
			err = repo.CreateExpense(ctx, core.Expense{ID: id, FarmID: farm, Category: core.ExpenseFeedRoughage, Amount: core.Money{Cents: e.cents}, Date: e.date, HerdID: e.herd})
		}
		if err != nil {
			t.Fatalf("entry %d: %v", i, err)
		}
	}

	jan, err := repo.GetMonthlyProfit(ctx, farm, core.YearMonth{Year: 2025, Month: 1})
	if err != nil {
		t.Fatalf("GetMonthlyProfit: %v", err)
	}
	if jan.TotalRevenue.Cents != 650000 || jan.TotalExpenses.Cents != 200000 || jan.Profit.Cents != 450000 {
		t.Fatalf("january = %+v", jan)
	}

	feb, _ := repo.GetMonthlyProfit(ctx, farm, core.YearMonth{Year: 2025, Month: 2})
	if feb.Profit.Cents != -80000 {
		t.Fatalf("february profit = %d", feb.Profit.Cents)
	}

	empty, err := repo.GetMonthlyProfit(ctx, farm, core.YearMonth{Year: 2024, Month: 12})
	if err != nil || !empty.Profit.IsZero() || empty.Month != 12 {
		t.Fatalf("empty month = %+v, %v", empty, err)
	}

	months, err := repo.ListMonthlyProfit(ctx, farm, 12)
	if err != nil || len(months) != 2 || months[0].Month != 2 {
		t.Fatalf("ListMonthlyProfit = %+v, %v", months, err)
	}

	perAnimal, err := repo.ListProfitPerAnimal(ctx, farm, "h1")
	if err != nil || len(perAnimal) != 1 {
		t.Fatalf("ListProfitPerAnimal = %+v, %v", perAnimal, err)
	}
	got := perAnimal[0]
	if got.AnimalCount != 2 || got.TotalProfit.Cents != 300000 || got.PerAnimal.Cents != 150000 {
		t.Fatalf("profit per animal = %+v", got)
	}
}

func TestLedgerSyncBookkeeping(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	farm := seedFarm(t, repo, "a")

	if err := repo.CreateRevenue(ctx, core.Revenue{ID: "r1", FarmID: farm, Type: core.RevenueCalf, Amount: core.Money{Cents: 1}, Date: core.NewDate(2025, 1, 1)}); err != nil {
		t.Fatal(err)
	}
	if err := repo.CreateExpense(ctx, core.Expense{ID: "e1", FarmID: farm, Category: core.ExpenseLabor, Amount: core.Money{Cents: 1}, Date: core.NewDate(2025, 1, 1)}); err != nil {
		t.Fatal(err)
	}

	pending, err := repo.ListPendingLedgerSync(ctx, 10)
	if err != nil || len(pending) != 2 {
		t.Fatalf("pending = %+v, %v", pending, err)
	}
	if pending[0].Kind != core.KindRevenue || pending[0].Version != 1 {
		t.Fatalf("first pending = %+v", pending[0])
	}

	if err := repo.MarkLedgerSynced(ctx, core.KindRevenue, "r1", 1); err != nil {
		t.Fatalf("MarkLedgerSynced: %v", err)
	}
	if err := repo.MarkLedgerSyncError(ctx, core.KindExpense, "e1"); err != nil {
		t.Fatalf("MarkLedgerSyncError: %v", err)
	}

	pending, _ = repo.ListPendingLedgerSync(ctx, 10)
	if len(pending) != 1 || pending[0].ID != "e1" {
		t.Fatalf("after sync pending = %+v", pending)
	}

	// A stale version must not clear a newer edit.
	if err := repo.MarkLedgerSynced(ctx, core.KindExpense, "e1", 0); err != nil {
		t.Fatalf("stale MarkLedgerSynced: %v", err)
	}
	if pending, _ = repo.ListPendingLedgerSync(ctx, 10); len(pending) != 1 {
		t.Fatalf("stale version cleared pending row")
	}

	if err := repo.MarkLedgerSynced(ctx, core.LedgerKind("subsidy"), "x", 1); err == nil {
		t.Fatal("expected error for unknown ledger kind")
	}
}

func TestPendingSyncPutsFailedRowsLast(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	farm := seedFarm(t, repo, "a")

	for _, id := range []string{"old-1", "old-2", "new-1"} {
		if err := repo.CreateRevenue(ctx, core.Revenue{ID: id, FarmID: farm, Type: core.RevenueCalf, Amount: core.Money{Cents: 1}, Date: core.NewDate(2025, 1, 1)}); err != nil {
			t.Fatal(err)
		}
	}
	for _, id := range []string{"old-1", "old-2"} {
		if err := repo.MarkLedgerSyncError(ctx, core.KindRevenue, id); err != nil {
			t.Fatal(err)
		}
	}

	pending, err := repo.ListPendingLedgerSync(ctx, 1)
	if err != nil || len(pending) != 1 || pending[0].ID != "new-1" {
		t.Fatalf("first batch = %+v, %v; want the never-tried row", pending, err)
	}
	pending, _ = repo.ListPendingLedgerSync(ctx, 10)
	var ids []string
	for _, p := range pending {
		ids = append(ids, p.ID)
	}
	if strings.Join(ids, ",") != "new-1,old-1,old-2" {
		t.Fatalf("order = %v", ids)
	}
}
