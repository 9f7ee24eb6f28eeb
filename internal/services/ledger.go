package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"farmledger/internal/amqp"
	"farmledger/internal/backend"
	"farmledger/internal/core"
	"farmledger/internal/log"
)

// Publisher sends ledger sync messages to the worker.
type Publisher interface {
	PublishLedgerSync(ctx context.Context, msg amqp.LedgerSyncMessage) error
}

// Invalidator drops cached views of a farm after a write.
type Invalidator interface {
	Invalidate(farmID string)
}

type LedgerRepository interface {
	backend.LedgerStore
	backend.SyncStore
	backend.HerdStore
}

// LedgerService writes revenue and expense rows, then announces them for
// mirroring. The local write is the source of truth: publish failures are
// logged and never fail the request.
type LedgerService struct {
	repo        LedgerRepository
	publisher   Publisher
	invalidator Invalidator
	logger      *log.Logger
	now         func() time.Time
}

func NewLedgerService(repo LedgerRepository, publisher Publisher, invalidator Invalidator, logger *log.Logger) *LedgerService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &LedgerService{
		repo:        repo,
		publisher:   publisher,
		invalidator: invalidator,
		logger:      logger.WithComponent(log.ComponentLedger),
		now:         time.Now,
	}
}

func (s *LedgerService) ListRevenue(ctx context.Context, farmID string, limit int) ([]core.Revenue, error) {
	return s.repo.ListRevenue(ctx, farmID, limit)
}

func (s *LedgerService) GetRevenue(ctx context.Context, farmID, id string) (core.Revenue, error) {
	return s.repo.GetRevenue(ctx, farmID, id)
}

func (s *LedgerService) CreateRevenue(ctx context.Context, farmID string, rv core.Revenue) (core.Revenue, error) {
	rv.ID = uuid.NewString()
	rv.FarmID = farmID
	rv.CustomerName = strings.TrimSpace(rv.CustomerName)
	rv.Description = strings.TrimSpace(rv.Description)
	if err := rv.Validate(); err != nil {
		return core.Revenue{}, err
	}
	if err := s.checkLinks(ctx, farmID, rv.HerdID, rv.AnimalID); err != nil {
		return core.Revenue{}, err
	}
	if err := s.repo.CreateRevenue(ctx, rv); err != nil {
		return core.Revenue{}, fmt.Errorf("save revenue: %w", err)
	}
	rv.CreatedAt = s.now().UTC()
	rv.UpdatedAt = rv.CreatedAt

	s.logger.InfoContext(ctx, "Revenue recorded",
		log.NewFields().WithLedgerEntry("revenue", rv.ID, rv.Amount.Cents, rv.Date.String()).WithFarm("", farmID).ToSlice()...)
	s.written(ctx, amqp.NewUpsertMessage(core.KindRevenue, rv.ID, farmID, 1))
	return rv, nil
}

func (s *LedgerService) UpdateRevenue(ctx context.Context, farmID string, rv core.Revenue) error {
	rv.FarmID = farmID
	rv.CustomerName = strings.TrimSpace(rv.CustomerName)
	rv.Description = strings.TrimSpace(rv.Description)
	if err := rv.Validate(); err != nil {
		return err
	}
	if err := s.checkLinks(ctx, farmID, rv.HerdID, rv.AnimalID); err != nil {
		return err
	}
	if err := s.repo.UpdateRevenue(ctx, rv); err != nil {
		return fmt.Errorf("update revenue: %w", err)
	}
	s.writtenWithVersion(ctx, core.KindRevenue, rv.ID, farmID)
	return nil
}

func (s *LedgerService) DeleteRevenue(ctx context.Context, farmID, id string) error {
	if err := s.repo.DeleteRevenue(ctx, farmID, id); err != nil {
		return fmt.Errorf("delete revenue: %w", err)
	}
	s.logger.InfoContext(ctx, "Revenue deleted", log.FieldEntityID, id, log.FieldFarmID, farmID)
	s.written(ctx, amqp.NewDeleteMessage(core.KindRevenue, id, farmID))
	return nil
}

func (s *LedgerService) ListExpenses(ctx context.Context, farmID string, limit int) ([]core.Expense, error) {
	return s.repo.ListExpenses(ctx, farmID, limit)
}

func (s *LedgerService) GetExpense(ctx context.Context, farmID, id string) (core.Expense, error) {
	return s.repo.GetExpense(ctx, farmID, id)
}

func (s *LedgerService) CreateExpense(ctx context.Context, farmID string, e core.Expense) (core.Expense, error) {
	e.ID = uuid.NewString()
	e.FarmID = farmID
	e.VendorName = strings.TrimSpace(e.VendorName)
	e.Description = strings.TrimSpace(e.Description)
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if err := s.checkLinks(ctx, farmID, e.HerdID, e.AnimalID); err != nil {
		return core.Expense{}, err
	}
	if err := s.repo.CreateExpense(ctx, e); err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}
	e.CreatedAt = s.now().UTC()
	e.UpdatedAt = e.CreatedAt

	s.logger.InfoContext(ctx, "Expense recorded",
		log.NewFields().WithLedgerEntry("expense", e.ID, e.Amount.Cents, e.Date.String()).WithFarm("", farmID).ToSlice()...)
	s.written(ctx, amqp.NewUpsertMessage(core.KindExpense, e.ID, farmID, 1))
	return e, nil
}

func (s *LedgerService) UpdateExpense(ctx context.Context, farmID string, e core.Expense) error {
	e.FarmID = farmID
	e.VendorName = strings.TrimSpace(e.VendorName)
	e.Description = strings.TrimSpace(e.Description)
	if err := e.Validate(); err != nil {
		return err
	}
	if err := s.checkLinks(ctx, farmID, e.HerdID, e.AnimalID); err != nil {
		return err
	}
	if err := s.repo.UpdateExpense(ctx, e); err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	s.writtenWithVersion(ctx, core.KindExpense, e.ID, farmID)
	return nil
}

func (s *LedgerService) DeleteExpense(ctx context.Context, farmID, id string) error {
	if err := s.repo.DeleteExpense(ctx, farmID, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	s.logger.InfoContext(ctx, "Expense deleted", log.FieldEntityID, id, log.FieldFarmID, farmID)
	s.written(ctx, amqp.NewDeleteMessage(core.KindExpense, id, farmID))
	return nil
}

// checkLinks rejects herd or animal references that belong to another farm.
func (s *LedgerService) checkLinks(ctx context.Context, farmID, herdID, animalID string) error {
	if herdID != "" {
		if _, err := s.repo.GetHerd(ctx, farmID, herdID); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return &core.ValidationError{Field: "herd_id", Err: core.ErrUnknownValue}
			}
			return err
		}
	}
	if animalID != "" {
		a, err := s.repo.GetAnimal(ctx, farmID, animalID)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return &core.ValidationError{Field: "animal_id", Err: core.ErrUnknownValue}
			}
			return err
		}
		if herdID != "" && a.HerdID != herdID {
			return &core.ValidationError{Field: "animal_id", Err: core.ErrUnknownValue}
		}
	}
	return nil
}

func (s *LedgerService) writtenWithVersion(ctx context.Context, kind core.LedgerKind, id, farmID string) {
	version, err := s.repo.GetLedgerVersion(ctx, kind, id)
	if err != nil {
		// The periodic sweep still picks the row up as pending.
		s.logger.WarnContext(ctx, "Could not read ledger version, skipping publish",
			log.FieldEntityID, id, log.FieldError, err)
		s.invalidate(farmID)
		return
	}
	s.written(ctx, amqp.NewUpsertMessage(kind, id, farmID, version))
}

func (s *LedgerService) written(ctx context.Context, msg amqp.LedgerSyncMessage) {
	s.invalidate(msg.FarmID)

	if s.publisher == nil {
		s.logger.DebugContext(ctx, "AMQP publisher not configured, skipping sync message", log.FieldEntityID, msg.ID)
		return
	}
	if err := s.publisher.PublishLedgerSync(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish sync message",
			log.FieldEntityID, msg.ID,
			"kind", msg.Kind,
			"op", msg.Op,
			log.FieldError, err)
	}
}

func (s *LedgerService) invalidate(farmID string) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(farmID)
	}
}
