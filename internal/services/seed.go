package services

import (
	"context"
	"time"

	"farmledger/internal/core"
	"farmledger/internal/log"
)

// SeedResult counts what the demo seed created.
type SeedResult struct {
	Herds     int
	Revenue   int
	Expenses  int
	Subsidies int
	Failed    int
	Errors    []string
}

// SeedService fills a farm with demo data dated around today.
type SeedService struct {
	herds     *HerdService
	ledger    *LedgerService
	subsidies *SubsidyService
	logger    *log.Logger
	now       func() time.Time
}

func NewSeedService(herds *HerdService, ledger *LedgerService, subsidies *SubsidyService, logger *log.Logger) *SeedService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &SeedService{herds: herds, ledger: ledger, subsidies: subsidies, logger: logger.WithComponent(log.ComponentSeed), now: time.Now}
}

func yen(n int64) core.Money { return core.Money{Cents: n * 100} }

// Seed creates one dairy herd, five revenue rows, six expenses, three
// subsidies and two more herds. A failed row is logged and counted; the rest
// still get created.
func (s *SeedService) Seed(ctx context.Context, farmID string) SeedResult {
	var res SeedResult
	today := core.DateOf(s.now())
	ago := func(days int) core.Date { return today.AddDays(-days) }

	fail := func(what string, err error) {
		res.Failed++
		res.Errors = append(res.Errors, what+": "+err.Error())
		s.logger.WarnContext(ctx, "Seed row failed", "item", what, log.FieldFarmID, farmID, log.FieldError, err)
	}

	herd, err := s.herds.CreateHerd(ctx, farmID, core.Herd{Name: "Dairy Herd 1", AnimalType: core.AnimalDairy})
	if err != nil {
		fail("herd", err)
	} else {
		res.Herds++
	}

	revenue := []core.Revenue{
		{Type: core.RevenueMilk, Amount: yen(500000), Date: ago(5), CustomerName: "Dairy Co. A", Description: "Milk sales"},
		{Type: core.RevenueMilk, Amount: yen(480000), Date: ago(10), CustomerName: "Dairy Co. A", Description: "Milk sales"},
		{Type: core.RevenueCalf, Amount: yen(150000), Date: ago(15), CustomerName: "Livestock Farm B", Description: "Calf sale"},
		{Type: core.RevenueMilk, Amount: yen(520000), Date: ago(20), CustomerName: "Dairy Co. A", Description: "Milk sales"},
		{Type: core.RevenueOther, Amount: yen(50000), Date: ago(25), Description: "Other income"},
	}
	for _, rv := range revenue {
		if herd.ID != "" && rv.Type == core.RevenueMilk {
			rv.HerdID = herd.ID
		}
		if _, err := s.ledger.CreateRevenue(ctx, farmID, rv); err != nil {
			fail("revenue", err)
			continue
		}
		res.Revenue++
	}

	expenses := []core.Expense{
		{Category: core.ExpenseFeedRoughage, Amount: yen(200000), Date: ago(3), VendorName: "Feed Supplier C", Description: "Roughage"},
		{Category: core.ExpenseFeedConcentrate, Amount: yen(150000), Date: ago(7), VendorName: "Feed Supplier C", Description: "Concentrate"},
		{Category: core.ExpenseVeterinary, Amount: yen(50000), Date: ago(12), VendorName: "Animal Clinic D", Description: "Vet visit"},
		{Category: core.ExpenseLabor, Amount: yen(300000), Date: ago(1), Description: "Wages"},
		{Category: core.ExpenseFuel, Amount: yen(80000), Date: ago(8), VendorName: "Gas Station E", Description: "Fuel"},
		{Category: core.ExpenseUtilities, Amount: yen(60000), Date: ago(15), VendorName: "Power Company F", Description: "Electricity"},
	}
	for _, e := range expenses {
		if _, err := s.ledger.CreateExpense(ctx, farmID, e); err != nil {
			fail("expense", err)
			continue
		}
		res.Expenses++
	}

	subsidies := []core.Subsidy{
		{Name: "Dairy Management Stabilization", ExpectedAmount: yen(1000000), ApplicationDeadline: today.AddDays(30), Status: core.SubsidyApplied},
		{Name: "Livestock Environment Improvement", ExpectedAmount: yen(500000), ActualAmount: yen(500000), ApplicationDeadline: ago(10), PaymentDate: ago(5), Status: core.SubsidyPaid},
		{Name: "Feed Price Relief", ExpectedAmount: yen(300000), ApplicationDeadline: today.AddDays(60), Status: core.SubsidyApproved},
	}
	for _, sub := range subsidies {
		if _, err := s.subsidies.Create(ctx, farmID, sub); err != nil {
			fail("subsidy", err)
			continue
		}
		res.Subsidies++
	}

	for _, h := range []core.Herd{
		{Name: "Beef Herd 1", AnimalType: core.AnimalBeef},
		{Name: "Dairy Herd 2", AnimalType: core.AnimalDairy},
	} {
		if _, err := s.herds.CreateHerd(ctx, farmID, h); err != nil {
			fail("herd", err)
			continue
		}
		res.Herds++
	}

	s.logger.InfoContext(ctx, "Demo data seeded",
		log.FieldFarmID, farmID,
		log.FieldOperation, log.OpSeed,
		"herds", res.Herds,
		"revenue", res.Revenue,
		"expenses", res.Expenses,
		"subsidies", res.Subsidies,
		"failed", res.Failed)
	return res
}
