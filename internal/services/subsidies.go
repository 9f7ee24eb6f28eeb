package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"farmledger/internal/backend"
	"farmledger/internal/core"
	"farmledger/internal/log"
)

type SubsidyService struct {
	store       backend.SubsidyStore
	invalidator Invalidator
	logger      *log.Logger
	now         func() time.Time
}

func NewSubsidyService(store backend.SubsidyStore, invalidator Invalidator, logger *log.Logger) *SubsidyService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &SubsidyService{store: store, invalidator: invalidator, logger: logger.WithComponent(log.ComponentLedger), now: time.Now}
}

func (s *SubsidyService) List(ctx context.Context, farmID string, limit int) ([]core.Subsidy, error) {
	return s.store.ListSubsidies(ctx, farmID, limit)
}

func (s *SubsidyService) Get(ctx context.Context, farmID, id string) (core.Subsidy, error) {
	return s.store.GetSubsidy(ctx, farmID, id)
}

func (s *SubsidyService) Create(ctx context.Context, farmID string, sub core.Subsidy) (core.Subsidy, error) {
	now := s.now().UTC()
	sub.ID = uuid.NewString()
	sub.FarmID = farmID
	sub.CreatedAt, sub.UpdatedAt = now, now
	normalizeSubsidy(&sub)
	if err := sub.Validate(); err != nil {
		return core.Subsidy{}, err
	}
	if err := s.store.CreateSubsidy(ctx, sub); err != nil {
		return core.Subsidy{}, fmt.Errorf("create subsidy: %w", err)
	}
	s.logger.InfoContext(ctx, "Subsidy recorded",
		log.NewFields().WithLedgerEntry("subsidy", sub.ID, sub.ExpectedAmount.Cents, sub.ApplicationDeadline.String()).WithFarm("", farmID).ToSlice()...)
	s.invalidate(farmID)
	return sub, nil
}

func (s *SubsidyService) Update(ctx context.Context, farmID string, sub core.Subsidy) error {
	sub.FarmID = farmID
	normalizeSubsidy(&sub)
	if err := sub.Validate(); err != nil {
		return err
	}
	if err := s.store.UpdateSubsidy(ctx, sub); err != nil {
		return fmt.Errorf("update subsidy: %w", err)
	}
	s.invalidate(farmID)
	return nil
}

func (s *SubsidyService) Delete(ctx context.Context, farmID, id string) error {
	if err := s.store.DeleteSubsidy(ctx, farmID, id); err != nil {
		return fmt.Errorf("delete subsidy: %w", err)
	}
	s.invalidate(farmID)
	return nil
}

func normalizeSubsidy(sub *core.Subsidy) {
	sub.Name = strings.TrimSpace(sub.Name)
	sub.DocumentURL = strings.TrimSpace(sub.DocumentURL)
	if sub.Status == "" {
		sub.Status = core.SubsidyApplied
	}
}

func (s *SubsidyService) invalidate(farmID string) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(farmID)
	}
}
