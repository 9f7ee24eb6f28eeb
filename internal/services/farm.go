// Package services holds the farm ledger use cases that sit between the HTTP
// handlers and storage.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"farmledger/internal/backend"
	"farmledger/internal/core"
	"farmledger/internal/log"
)

// FarmService owns the per-user farm profile.
type FarmService struct {
	profiles    backend.ProfileStore
	defaultName string
	logger      *log.Logger
	now         func() time.Time
}

func NewFarmService(profiles backend.ProfileStore, defaultName string, logger *log.Logger) *FarmService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if strings.TrimSpace(defaultName) == "" {
		defaultName = "My Farm"
	}
	return &FarmService{
		profiles:    profiles,
		defaultName: defaultName,
		logger:      logger.WithComponent(log.ComponentFarm),
		now:         time.Now,
	}
}

// DefaultName is the farm name given to bootstrapped profiles.
func (s *FarmService) DefaultName() string { return s.defaultName }

// EnsureProfile returns the user's profile, creating an owner profile with the
// default farm name on first access.
func (s *FarmService) EnsureProfile(ctx context.Context, userID string) (core.Profile, error) {
	return s.ensure(ctx, userID, s.defaultName)
}

// CreateInitialProfile is EnsureProfile with the farm name typed at signup.
// A blank name falls back to the default.
func (s *FarmService) CreateInitialProfile(ctx context.Context, userID, farmName string) (core.Profile, error) {
	if strings.TrimSpace(farmName) == "" {
		farmName = s.defaultName
	}
	return s.ensure(ctx, userID, strings.TrimSpace(farmName))
}

func (s *FarmService) ensure(ctx context.Context, userID, farmName string) (core.Profile, error) {
	p, err := s.profiles.GetProfileByUserID(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return core.Profile{}, fmt.Errorf("load profile: %w", err)
	}

	now := s.now().UTC()
	p = core.Profile{
		ID:        uuid.NewString(),
		UserID:    userID,
		Role:      core.RoleOwner,
		FarmName:  farmName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.Validate(); err != nil {
		return core.Profile{}, err
	}

	createErr := s.profiles.CreateProfile(ctx, p)
	if createErr == nil {
		s.logger.InfoContext(ctx, "Bootstrapped farm profile",
			log.FieldUserID, userID,
			log.FieldFarmID, p.ID,
			log.FieldOperation, log.OpBootstrap)
		return p, nil
	}

	// A concurrent request may have created it first.
	existing, err := s.profiles.GetProfileByUserID(ctx, userID)
	if err == nil {
		return existing, nil
	}
	s.logger.ErrorContext(ctx, "Profile bootstrap failed",
		log.FieldUserID, userID,
		log.FieldError, createErr)
	return core.Profile{}, fmt.Errorf("create profile: %w", createErr)
}

// UpdateProfile changes the farm name and role of the user's own profile.
func (s *FarmService) UpdateProfile(ctx context.Context, userID, farmName string, role core.Role) (core.Profile, error) {
	p, err := s.EnsureProfile(ctx, userID)
	if err != nil {
		return core.Profile{}, err
	}
	p.FarmName = strings.TrimSpace(farmName)
	p.Role = role
	if err := p.Validate(); err != nil {
		return core.Profile{}, err
	}
	if err := s.profiles.UpdateProfile(ctx, p); err != nil {
		return core.Profile{}, fmt.Errorf("update profile: %w", err)
	}
	p.UpdatedAt = s.now().UTC()
	s.logger.InfoContext(ctx, "Profile updated", log.FieldFarmID, p.ID, "role", p.Role)
	return p, nil
}
