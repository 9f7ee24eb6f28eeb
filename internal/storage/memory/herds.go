package memory

import (
	"context"

	"farmledger/internal/core"
)

func (s *Store) ListHerds(_ context.Context, farmID string) ([]core.Herd, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sorted(s.herds,
		func(h core.Herd) bool { return h.FarmID == farmID },
		func(a, b entry[core.Herd]) bool { return a.seq > b.seq },
	), nil
}

func (s *Store) GetHerd(_ context.Context, farmID, id string) (core.Herd, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.herds[id]
	if !ok || e.val.FarmID != farmID {
		return core.Herd{}, notFound("get herd")
	}
	return e.val, nil
}

func (s *Store) CreateHerd(_ context.Context, h core.Herd) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.herds[h.ID]; ok {
		return conflict("create herd")
	}
	now := s.now().UTC()
	h.CreatedAt, h.UpdatedAt = now, now
	s.herds[h.ID] = entry[core.Herd]{val: h, seq: s.next()}
	return nil
}

func (s *Store) UpdateHerd(_ context.Context, h core.Herd) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.herds[h.ID]
	if !ok || e.val.FarmID != h.FarmID {
		return notFound("update herd")
	}
	e.val.Name = h.Name
	e.val.AnimalType = h.AnimalType
	e.val.UpdatedAt = s.now().UTC()
	s.herds[h.ID] = e
	return nil
}

// DeleteHerd drops the herd with its animals and unlinks ledger rows, as the SQL foreign keys do.
func (s *Store) DeleteHerd(_ context.Context, farmID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.herds[id]
	if !ok || e.val.FarmID != farmID {
		return notFound("delete herd")
	}
	delete(s.herds, id)
	for aid, a := range s.animals {
		if a.val.HerdID == id {
			s.deleteAnimalLocked(aid)
		}
	}
	for rid, r := range s.revenue {
		if r.val.HerdID == id {
			r.val.HerdID = ""
			s.revenue[rid] = r
		}
	}
	for eid, x := range s.expenses {
		if x.val.HerdID == id {
			x.val.HerdID = ""
			s.expenses[eid] = x
		}
	}
	return nil
}

func (s *Store) ownsHerd(farmID, herdID string) bool {
	h, ok := s.herds[herdID]
	return ok && h.val.FarmID == farmID
}

func (s *Store) ListAnimals(_ context.Context, farmID, herdID string) ([]core.Animal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ownsHerd(farmID, herdID) {
		return nil, nil
	}
	return sorted(s.animals,
		func(a core.Animal) bool { return a.HerdID == herdID },
		func(a, b entry[core.Animal]) bool {
			if a.val.IdentificationNumber != b.val.IdentificationNumber {
				return a.val.IdentificationNumber < b.val.IdentificationNumber
			}
			return a.seq < b.seq
		},
	), nil
}

func (s *Store) GetAnimal(_ context.Context, farmID, id string) (core.Animal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.animals[id]
	if !ok || !s.ownsHerd(farmID, e.val.HerdID) {
		return core.Animal{}, notFound("get animal")
	}
	return e.val, nil
}

func (s *Store) CreateAnimal(_ context.Context, farmID string, a core.Animal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ownsHerd(farmID, a.HerdID) {
		return notFound("create animal")
	}
	if _, ok := s.animals[a.ID]; ok {
		return conflict("create animal")
	}
	a.CreatedAt = s.now().UTC()
	s.animals[a.ID] = entry[core.Animal]{val: a, seq: s.next()}
	return nil
}

func (s *Store) UpdateAnimal(_ context.Context, farmID string, a core.Animal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.animals[a.ID]
	if !ok || !s.ownsHerd(farmID, e.val.HerdID) {
		return notFound("update animal")
	}
	e.val.IdentificationNumber = a.IdentificationNumber
	e.val.BirthDate = a.BirthDate
	e.val.PurchaseDate = a.PurchaseDate
	e.val.SaleDate = a.SaleDate
	e.val.Status = a.Status
	s.animals[a.ID] = e
	return nil
}

func (s *Store) DeleteAnimal(_ context.Context, farmID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.animals[id]
	if !ok || !s.ownsHerd(farmID, e.val.HerdID) {
		return notFound("delete animal")
	}
	s.deleteAnimalLocked(id)
	return nil
}

func (s *Store) deleteAnimalLocked(id string) {
	delete(s.animals, id)
	for rid, r := range s.revenue {
		if r.val.AnimalID == id {
			r.val.AnimalID = ""
			s.revenue[rid] = r
		}
	}
	for eid, x := range s.expenses {
		if x.val.AnimalID == id {
			x.val.AnimalID = ""
			s.expenses[eid] = x
		}
	}
}
