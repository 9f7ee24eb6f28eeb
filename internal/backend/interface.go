package backend

import (
	"context"
	"time"

	"farmledger/internal/core"
)

type UserStore interface {
	CreateUser(ctx context.Context, u core.User) error
	GetUserByEmail(ctx context.Context, email string) (core.User, error)
	GetUserByID(ctx context.Context, id string) (core.User, error)
}

// SessionStore persists refresh-token sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, s core.Session) error
	GetSession(ctx context.Context, id string) (core.Session, error)
	RevokeSession(ctx context.Context, id string) error
	RotateSession(ctx context.Context, oldID string, next core.Session, at time.Time) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

type ProfileStore interface {
	GetProfileByUserID(ctx context.Context, userID string) (core.Profile, error)
	// CreateProfile returns core.ErrConflict when the user already has a profile.
	CreateProfile(ctx context.Context, p core.Profile) error
	UpdateProfile(ctx context.Context, p core.Profile) error
}

// HerdStore covers herds and the animals in them. Every call is scoped to a farm.
type HerdStore interface {
	ListHerds(ctx context.Context, farmID string) ([]core.Herd, error)
	GetHerd(ctx context.Context, farmID, id string) (core.Herd, error)
	CreateHerd(ctx context.Context, h core.Herd) error
	UpdateHerd(ctx context.Context, h core.Herd) error
	DeleteHerd(ctx context.Context, farmID, id string) error

	ListAnimals(ctx context.Context, farmID, herdID string) ([]core.Animal, error)
	GetAnimal(ctx context.Context, farmID, id string) (core.Animal, error)
	CreateAnimal(ctx context.Context, farmID string, a core.Animal) error
	UpdateAnimal(ctx context.Context, farmID string, a core.Animal) error
	DeleteAnimal(ctx context.Context, farmID, id string) error
}

type LedgerStore interface {
	ListRevenue(ctx context.Context, farmID string, limit int) ([]core.Revenue, error)
	ListRevenueRange(ctx context.Context, farmID string, start, end core.Date) ([]core.Revenue, error)
	GetRevenue(ctx context.Context, farmID, id string) (core.Revenue, error)
	CreateRevenue(ctx context.Context, rv core.Revenue) error
	UpdateRevenue(ctx context.Context, rv core.Revenue) error
	DeleteRevenue(ctx context.Context, farmID, id string) error

	ListExpenses(ctx context.Context, farmID string, limit int) ([]core.Expense, error)
	ListExpensesRange(ctx context.Context, farmID string, start, end core.Date) ([]core.Expense, error)
	GetExpense(ctx context.Context, farmID, id string) (core.Expense, error)
	CreateExpense(ctx context.Context, e core.Expense) error
	UpdateExpense(ctx context.Context, e core.Expense) error
	DeleteExpense(ctx context.Context, farmID, id string) error
}

type SubsidyStore interface {
	ListSubsidies(ctx context.Context, farmID string, limit int) ([]core.Subsidy, error)
	ListUpcomingSubsidies(ctx context.Context, farmID string, today core.Date, limit int) ([]core.Subsidy, error)
	GetSubsidy(ctx context.Context, farmID, id string) (core.Subsidy, error)
	CreateSubsidy(ctx context.Context, s core.Subsidy) error
	UpdateSubsidy(ctx context.Context, s core.Subsidy) error
	DeleteSubsidy(ctx context.Context, farmID, id string) error
}

// ReportStore reads the derived profit views.
type ReportStore interface {
	GetMonthlyProfit(ctx context.Context, farmID string, ym core.YearMonth) (core.MonthlyProfit, error)
	ListMonthlyProfit(ctx context.Context, farmID string, limit int) ([]core.MonthlyProfit, error)
	ListProfitPerAnimal(ctx context.Context, farmID, herdID string) ([]core.ProfitPerAnimal, error)
}

// SyncStore tracks which ledger rows still need mirroring to Google Sheets.
type SyncStore interface {
	ListPendingLedgerSync(ctx context.Context, limit int) ([]core.PendingSync, error)
	GetLedgerVersion(ctx context.Context, kind core.LedgerKind, id string) (int64, error)
	MarkLedgerSynced(ctx context.Context, kind core.LedgerKind, id string, version int64) error
	MarkLedgerSyncError(ctx context.Context, kind core.LedgerKind, id string) error
}

// Repository is everything the web server and worker need from storage.
type Repository interface {
	UserStore
	SessionStore
	ProfileStore
	HerdStore
	LedgerStore
	SubsidyStore
	ReportStore
	SyncStore

	Ping(ctx context.Context) error
	Close() error
}

// BackendResult contains the repository and an optional cleanup function.
type BackendResult struct {
	Repository Repository
	Cleanup    func() error
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
