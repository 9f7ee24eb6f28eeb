package memory

import (
	"context"
	"fmt"

	"farmledger/internal/core"
)

// bySubsidyDeadline sorts latest deadline first with undated subsidies last.
func bySubsidyDeadline(a, b entry[core.Subsidy]) bool {
	da, db := a.val.ApplicationDeadline.String(), b.val.ApplicationDeadline.String()
	if (da == "") != (db == "") {
		return db == ""
	}
	if da != db {
		return da > db
	}
	return a.seq > b.seq
}

func (s *Store) ListSubsidies(_ context.Context, farmID string, limit int) ([]core.Subsidy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return limited(sorted(s.subsidies,
		func(x core.Subsidy) bool { return x.FarmID == farmID },
		bySubsidyDeadline,
	), limit), nil
}

func (s *Store) ListUpcomingSubsidies(_ context.Context, farmID string, today core.Date, limit int) ([]core.Subsidy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return limited(sorted(s.subsidies,
		func(x core.Subsidy) bool { return x.FarmID == farmID && x.Upcoming(today) },
		func(a, b entry[core.Subsidy]) bool {
			if da, db := a.val.ApplicationDeadline.String(), b.val.ApplicationDeadline.String(); da != db {
				return da < db
			}
			return a.seq < b.seq
		},
	), limit), nil
}

func (s *Store) GetSubsidy(_ context.Context, farmID, id string) (core.Subsidy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.subsidies[id]
	if !ok || e.val.FarmID != farmID {
		return core.Subsidy{}, notFound("get subsidy")
	}
	return e.val, nil
}

func (s *Store) CreateSubsidy(_ context.Context, x core.Subsidy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subsidies[x.ID]; ok {
		return conflict("create subsidy")
	}
	if !s.hasFarm(x.FarmID) {
		return fmt.Errorf("create subsidy: unknown farm %q", x.FarmID)
	}
	now := s.now().UTC()
	x.CreatedAt, x.UpdatedAt = now, now
	s.subsidies[x.ID] = entry[core.Subsidy]{val: x, seq: s.next()}
	return nil
}

func (s *Store) UpdateSubsidy(_ context.Context, x core.Subsidy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.subsidies[x.ID]
	if !ok || e.val.FarmID != x.FarmID {
		return notFound("update subsidy")
	}
	x.CreatedAt = e.val.CreatedAt
	x.UpdatedAt = s.now().UTC()
	e.val = x
	s.subsidies[x.ID] = e
	return nil
}

func (s *Store) DeleteSubsidy(_ context.Context, farmID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.subsidies[id]
	if !ok || e.val.FarmID != farmID {
		return notFound("delete subsidy")
	}
	delete(s.subsidies, id)
	return nil
}
