package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"farmledger/internal/core"
)

// GetProfileByUserID returns the user's farm profile, or core.ErrNotFound when none exists yet.
func (r *SQLiteRepository) GetProfileByUserID(ctx context.Context, userID string) (core.Profile, error) {
	var (
		p                core.Profile
		role             string
		farmName         sql.NullString
		created, updated string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, role, farm_name, created_at, updated_at FROM profiles WHERE user_id = ?`, userID,
	).Scan(&p.ID, &p.UserID, &role, &farmName, &created, &updated)
	if err != nil {
		return core.Profile{}, notFound("get profile", err)
	}
	p.Role = core.Role(role)
	p.FarmName = farmName.String
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	return p, nil
}

// CreateProfile inserts a profile. A second profile for the same user fails with core.ErrConflict.
func (r *SQLiteRepository) CreateProfile(ctx context.Context, p core.Profile) error {
	now := r.stamp()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (id, user_id, role, farm_name, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, string(p.Role), nullString(p.FarmName), now, now)
	if err != nil {
		return conflict("create profile", err)
	}
	slog.InfoContext(ctx, "Profile created", "farm_id", p.ID, "user_id", p.UserID, "role", p.Role)
	return nil
}

func (r *SQLiteRepository) UpdateProfile(ctx context.Context, p core.Profile) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET role = ?, farm_name = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		string(p.Role), nullString(p.FarmName), r.stamp(), p.ID, p.UserID)
	return expectOne("update profile", res, err)
}

const herdColumns = `id, farm_id, name, animal_type, created_at, updated_at`

func scanHerd(row interface{ Scan(...any) error }) (core.Herd, error) {
	var (
		h                core.Herd
		animalType       string
		created, updated string
	)
	if err := row.Scan(&h.ID, &h.FarmID, &h.Name, &animalType, &created, &updated); err != nil {
		return core.Herd{}, err
	}
	h.AnimalType = core.AnimalType(animalType)
	h.CreatedAt = parseTime(created)
	h.UpdatedAt = parseTime(updated)
	return h, nil
}

// ListHerds returns the farm's herds, newest first.
func (r *SQLiteRepository) ListHerds(ctx context.Context, farmID string) ([]core.Herd, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+herdColumns+` FROM herds WHERE farm_id = ? ORDER BY created_at DESC, id`, farmID)
	if err != nil {
		return nil, fmt.Errorf("list herds: %w", err)
	}
	defer rows.Close()

	var herds []core.Herd
	for rows.Next() {
		h, err := scanHerd(rows)
		if err != nil {
			return nil, fmt.Errorf("scan herd: %w", err)
		}
		herds = append(herds, h)
	}
	return herds, rows.Err()
}

func (r *SQLiteRepository) GetHerd(ctx context.Context, farmID, id string) (core.Herd, error) {
	h, err := scanHerd(r.db.QueryRowContext(ctx,
		`SELECT `+herdColumns+` FROM herds WHERE farm_id = ? AND id = ?`, farmID, id))
	if err != nil {
		return core.Herd{}, notFound("get herd", err)
	}
	return h, nil
}

func (r *SQLiteRepository) CreateHerd(ctx context.Context, h core.Herd) error {
	now := r.stamp()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO herds (`+herdColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		h.ID, h.FarmID, h.Name, string(h.AnimalType), now, now)
	if err != nil {
		return conflict("create herd", err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateHerd(ctx context.Context, h core.Herd) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE herds SET name = ?, animal_type = ?, updated_at = ? WHERE farm_id = ? AND id = ?`,
		h.Name, string(h.AnimalType), r.stamp(), h.FarmID, h.ID)
	return expectOne("update herd", res, err)
}

// DeleteHerd removes a herd and its animals. Ledger rows keep their amounts and lose the herd link.
func (r *SQLiteRepository) DeleteHerd(ctx context.Context, farmID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM herds WHERE farm_id = ? AND id = ?`, farmID, id)
	return expectOne("delete herd", res, err)
}

const animalColumns = `a.id, a.herd_id, a.identification_number, a.birth_date, a.purchase_date, a.sale_date, a.status, a.created_at`

func scanAnimal(row interface{ Scan(...any) error }) (core.Animal, error) {
	var (
		a                     core.Animal
		ident                 sql.NullString
		birth, purchase, sale sql.NullString
		status, created       string
	)
	if err := row.Scan(&a.ID, &a.HerdID, &ident, &birth, &purchase, &sale, &status, &created); err != nil {
		return core.Animal{}, err
	}
	a.IdentificationNumber = ident.String
	a.BirthDate = dateFrom(birth)
	a.PurchaseDate = dateFrom(purchase)
	a.SaleDate = dateFrom(sale)
	a.Status = core.AnimalStatus(status)
	a.CreatedAt = parseTime(created)
	return a, nil
}

// ListAnimals returns the herd's animals ordered by identification number.
func (r *SQLiteRepository) ListAnimals(ctx context.Context, farmID, herdID string) ([]core.Animal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+animalColumns+` FROM animals a JOIN herds h ON h.id = a.herd_id
		 WHERE h.farm_id = ? AND a.herd_id = ?
		 ORDER BY a.identification_number, a.created_at`, farmID, herdID)
	if err != nil {
		return nil, fmt.Errorf("list animals: %w", err)
	}
	defer rows.Close()

	var animals []core.Animal
	for rows.Next() {
		a, err := scanAnimal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan animal: %w", err)
		}
		animals = append(animals, a)
	}
	return animals, rows.Err()
}

func (r *SQLiteRepository) GetAnimal(ctx context.Context, farmID, id string) (core.Animal, error) {
	a, err := scanAnimal(r.db.QueryRowContext(ctx,
		`SELECT `+animalColumns+` FROM animals a JOIN herds h ON h.id = a.herd_id WHERE h.farm_id = ? AND a.id = ?`,
		farmID, id))
	if err != nil {
		return core.Animal{}, notFound("get animal", err)
	}
	return a, nil
}

// CreateAnimal inserts an animal into one of the farm's herds.
func (r *SQLiteRepository) CreateAnimal(ctx context.Context, farmID string, a core.Animal) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO animals (id, herd_id, identification_number, birth_date, purchase_date, sale_date, status, created_at)
		 SELECT ?, h.id, ?, ?, ?, ?, ?, ? FROM herds h WHERE h.farm_id = ? AND h.id = ?`,
		a.ID, nullString(a.IdentificationNumber), nullDate(a.BirthDate), nullDate(a.PurchaseDate), nullDate(a.SaleDate),
		string(a.Status), r.stamp(), farmID, a.HerdID)
	return expectOne("create animal", res, err)
}

func (r *SQLiteRepository) UpdateAnimal(ctx context.Context, farmID string, a core.Animal) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE animals SET identification_number = ?, birth_date = ?, purchase_date = ?, sale_date = ?, status = ?
		 WHERE id = ? AND herd_id IN (SELECT id FROM herds WHERE farm_id = ?)`,
		nullString(a.IdentificationNumber), nullDate(a.BirthDate), nullDate(a.PurchaseDate), nullDate(a.SaleDate),
		string(a.Status), a.ID, farmID)
	return expectOne("update animal", res, err)
}

func (r *SQLiteRepository) DeleteAnimal(ctx context.Context, farmID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM animals WHERE id = ? AND herd_id IN (SELECT id FROM herds WHERE farm_id = ?)`, id, farmID)
	return expectOne("delete animal", res, err)
}
