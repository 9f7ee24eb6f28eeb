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

type HerdRepository interface {
	backend.HerdStore
	backend.ReportStore
}

type HerdService struct {
	repo   HerdRepository
	logger *log.Logger
	now    func() time.Time
}

func NewHerdService(repo HerdRepository, logger *log.Logger) *HerdService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &HerdService{repo: repo, logger: logger.WithComponent(log.ComponentFarm), now: time.Now}
}

// HerdDetail is a herd with its animals and monthly profit-per-animal rows.
type HerdDetail struct {
	Herd    core.Herd
	Animals []core.Animal
	Profit  []core.ProfitPerAnimal
}

// ActiveCount counts animals still on the farm.
func (d HerdDetail) ActiveCount() int {
	n := 0
	for _, a := range d.Animals {
		if a.Status == core.AnimalActive {
			n++
		}
	}
	return n
}

func (s *HerdService) ListHerds(ctx context.Context, farmID string) ([]core.Herd, error) {
	return s.repo.ListHerds(ctx, farmID)
}

func (s *HerdService) Detail(ctx context.Context, farmID, herdID string) (HerdDetail, error) {
	h, err := s.repo.GetHerd(ctx, farmID, herdID)
	if err != nil {
		return HerdDetail{}, err
	}
	animals, err := s.repo.ListAnimals(ctx, farmID, herdID)
	if err != nil {
		return HerdDetail{}, fmt.Errorf("list animals: %w", err)
	}
	profit, err := s.repo.ListProfitPerAnimal(ctx, farmID, herdID)
	if err != nil {
		return HerdDetail{}, fmt.Errorf("profit per animal: %w", err)
	}
	return HerdDetail{Herd: h, Animals: animals, Profit: profit}, nil
}

func (s *HerdService) CreateHerd(ctx context.Context, farmID string, h core.Herd) (core.Herd, error) {
	now := s.now().UTC()
	h.ID = uuid.NewString()
	h.FarmID = farmID
	h.Name = strings.TrimSpace(h.Name)
	h.CreatedAt, h.UpdatedAt = now, now
	if err := h.Validate(); err != nil {
		return core.Herd{}, err
	}
	if err := s.repo.CreateHerd(ctx, h); err != nil {
		return core.Herd{}, fmt.Errorf("create herd: %w", err)
	}
	s.logger.InfoContext(ctx, "Herd created", log.FieldFarmID, farmID, log.FieldEntityID, h.ID)
	return h, nil
}

func (s *HerdService) UpdateHerd(ctx context.Context, farmID string, h core.Herd) error {
	h.FarmID = farmID
	h.Name = strings.TrimSpace(h.Name)
	if err := h.Validate(); err != nil {
		return err
	}
	if err := s.repo.UpdateHerd(ctx, h); err != nil {
		return fmt.Errorf("update herd: %w", err)
	}
	return nil
}

// DeleteHerd removes the herd and its animals. Ledger rows that pointed at
// them keep their amounts and lose the link.
func (s *HerdService) DeleteHerd(ctx context.Context, farmID, id string) error {
	if err := s.repo.DeleteHerd(ctx, farmID, id); err != nil {
		return fmt.Errorf("delete herd: %w", err)
	}
	s.logger.InfoContext(ctx, "Herd deleted", log.FieldFarmID, farmID, log.FieldEntityID, id)
	return nil
}

func (s *HerdService) AddAnimal(ctx context.Context, farmID, herdID string, a core.Animal) (core.Animal, error) {
	a.ID = uuid.NewString()
	a.HerdID = herdID
	a.IdentificationNumber = strings.TrimSpace(a.IdentificationNumber)
	if a.Status == "" {
		a.Status = core.AnimalActive
	}
	a.CreatedAt = s.now().UTC()
	if err := a.Validate(); err != nil {
		return core.Animal{}, err
	}
	if err := s.repo.CreateAnimal(ctx, farmID, a); err != nil {
		return core.Animal{}, fmt.Errorf("add animal: %w", err)
	}
	return a, nil
}

// UpdateAnimalStatus records a status change. Selling an animal without a
// sale date stamps today.
func (s *HerdService) UpdateAnimalStatus(ctx context.Context, farmID, animalID string, status core.AnimalStatus, saleDate core.Date) (core.Animal, error) {
	a, err := s.repo.GetAnimal(ctx, farmID, animalID)
	if err != nil {
		return core.Animal{}, err
	}
	a.Status = status
	if !saleDate.IsZero() {
		a.SaleDate = saleDate
	} else if status == core.AnimalSold && a.SaleDate.IsZero() {
		a.SaleDate = core.DateOf(s.now())
	}
	if err := a.Validate(); err != nil {
		return core.Animal{}, err
	}
	if err := s.repo.UpdateAnimal(ctx, farmID, a); err != nil {
		return core.Animal{}, fmt.Errorf("update animal: %w", err)
	}
	return a, nil
}

func (s *HerdService) DeleteAnimal(ctx context.Context, farmID, animalID string) (herdID string, err error) {
	a, err := s.repo.GetAnimal(ctx, farmID, animalID)
	if err != nil {
		return "", err
	}
	if err := s.repo.DeleteAnimal(ctx, farmID, animalID); err != nil {
		return "", fmt.Errorf("delete animal: %w", err)
	}
	return a.HerdID, nil
}

// LinkOptions lists the farm's herds and their animals for the optional
// herd/animal selects on revenue and expense forms.
func (s *HerdService) LinkOptions(ctx context.Context, farmID string) (herds, animals []core.Option, err error) {
	hs, err := s.repo.ListHerds(ctx, farmID)
	if err != nil {
		return nil, nil, err
	}
	for _, h := range hs {
		herds = append(herds, core.Option{Value: h.ID, Label: h.Name})
		as, err := s.repo.ListAnimals(ctx, farmID, h.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("list animals of herd %s: %w", h.ID, err)
		}
		for _, a := range as {
			name := a.IdentificationNumber
			if name == "" {
				name = "#" + shortID(a.ID)
			}
			animals = append(animals, core.Option{Value: a.ID, Label: h.Name + " / " + name})
		}
	}
	return herds, animals, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
