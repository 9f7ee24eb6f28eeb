package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"farmledger/internal/backend"
	"farmledger/internal/cache"
	"farmledger/internal/core"
	"farmledger/internal/log"
)

// Row counts shown on the dashboard.
const (
	DashboardRecentLimit   = 5
	DashboardUpcomingLimit = 5
	DashboardHistoryMonths = 6
)

type DashboardRepository interface {
	backend.LedgerStore
	backend.SubsidyStore
	backend.ReportStore
}

// Dashboard is the overview of one farm for one month.
type Dashboard struct {
	Period            core.YearMonth
	Current           core.MonthlyProfit
	Previous          core.MonthlyProfit
	Change            core.ProfitChange
	RecentRevenue     []core.Revenue
	RecentExpenses    []core.Expense
	UpcomingSubsidies []core.Subsidy
	History           []core.MonthlyProfit
}

type DashboardService struct {
	repo   DashboardRepository
	cache  cache.Cache[Dashboard]
	logger *log.Logger
	now    func() time.Time
}

// NewDashboardService builds the service. A nil cache disables caching.
func NewDashboardService(repo DashboardRepository, c cache.Cache[Dashboard], logger *log.Logger) *DashboardService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DashboardService{repo: repo, cache: c, logger: logger.WithComponent(log.ComponentFarm), now: time.Now}
}

func dashboardKeyPrefix(farmID string) string { return "dashboard:" + farmID + ":" }

// Load returns the dashboard for the current month, from cache when possible.
func (s *DashboardService) Load(ctx context.Context, farmID string) (Dashboard, error) {
	today := core.DateOf(s.now())
	period := today.YearMonth()
	key := dashboardKeyPrefix(farmID) + period.String() + ":" + today.String()

	if s.cache != nil {
		if d, ok := s.cache.Get(key); ok {
			return d, nil
		}
	}

	d := Dashboard{Period: period}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		d.Current, err = s.repo.GetMonthlyProfit(gctx, farmID, period)
		if err != nil {
			return fmt.Errorf("current month profit: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		d.Previous, err = s.repo.GetMonthlyProfit(gctx, farmID, period.Previous())
		if err != nil {
			return fmt.Errorf("previous month profit: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		d.RecentRevenue, err = s.repo.ListRevenue(gctx, farmID, DashboardRecentLimit)
		if err != nil {
			return fmt.Errorf("recent revenue: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		d.RecentExpenses, err = s.repo.ListExpenses(gctx, farmID, DashboardRecentLimit)
		if err != nil {
			return fmt.Errorf("recent expenses: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		d.UpcomingSubsidies, err = s.repo.ListUpcomingSubsidies(gctx, farmID, today, DashboardUpcomingLimit)
		if err != nil {
			return fmt.Errorf("upcoming subsidies: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		d.History, err = s.repo.ListMonthlyProfit(gctx, farmID, DashboardHistoryMonths)
		if err != nil {
			return fmt.Errorf("profit history: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "Dashboard load failed", log.FieldFarmID, farmID, log.FieldError, err)
		return Dashboard{}, err
	}

	d.Change = core.CompareMonths(d.Current, d.Previous)
	if s.cache != nil {
		s.cache.Set(key, d)
	}
	return d, nil
}

// Invalidate drops every cached dashboard of the farm.
func (s *DashboardService) Invalidate(farmID string) {
	if s.cache == nil {
		return
	}
	if n := s.cache.DeletePrefix(dashboardKeyPrefix(farmID)); n > 0 {
		s.logger.Debug("Dashboard cache invalidated", log.FieldFarmID, farmID, "entries", n)
	}
}
