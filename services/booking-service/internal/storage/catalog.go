package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/model"
)

type catalogRepo struct {
	tx pgx.Tx
}

func (r catalogRepo) Service(ctx context.Context, id string) (model.Service, error) {
	var s model.Service
	err := r.tx.QueryRow(ctx, `
		SELECT id, name, price, min_days, max_days, min_capacity, max_capacity,
			allow_extra_occupants, extra_fee_per_person, max_extra_occupants, updated_at
		FROM catalog_services
		WHERE id = $1
	`, id).Scan(&s.ID, &s.Name, &s.Price, &s.MinDays, &s.MaxDays, &s.MinCapacity, &s.MaxCapacity,
		&s.AllowExtraOccupants, &s.ExtraFeePerPerson, &s.MaxExtraOccupants, &s.UpdatedAt)
	if err != nil {
		return model.Service{}, notFound(err, "service", id)
	}
	return s, nil
}

func (r catalogRepo) Combo(ctx context.Context, id string) (model.Combo, error) {
	var c model.Combo
	err := r.tx.QueryRow(ctx, `
		SELECT id, name, price, updated_at FROM catalog_combos WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Price, &c.UpdatedAt)
	if err != nil {
		return model.Combo{}, notFound(err, "combo", id)
	}
	return c, nil
}

func (r catalogRepo) Equipment(ctx context.Context, id string) (model.Equipment, error) {
	var e model.Equipment
	err := r.tx.QueryRow(ctx, `
		SELECT id, name, price, updated_at FROM catalog_equipment WHERE id = $1
	`, id).Scan(&e.ID, &e.Name, &e.Price, &e.UpdatedAt)
	if err != nil {
		return model.Equipment{}, notFound(err, "equipment", id)
	}
	return e, nil
}

func (r catalogRepo) UpsertService(ctx context.Context, s model.Service) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO catalog_services
			(id, name, price, min_days, max_days, min_capacity, max_capacity,
			 allow_extra_occupants, extra_fee_per_person, max_extra_occupants, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			min_days = EXCLUDED.min_days,
			max_days = EXCLUDED.max_days,
			min_capacity = EXCLUDED.min_capacity,
			max_capacity = EXCLUDED.max_capacity,
			allow_extra_occupants = EXCLUDED.allow_extra_occupants,
			extra_fee_per_person = EXCLUDED.extra_fee_per_person,
			max_extra_occupants = EXCLUDED.max_extra_occupants,
			updated_at = EXCLUDED.updated_at
	`, s.ID, s.Name, s.Price, s.MinDays, s.MaxDays, s.MinCapacity, s.MaxCapacity,
		s.AllowExtraOccupants, s.ExtraFeePerPerson, s.MaxExtraOccupants, s.UpdatedAt)
	return err
}

func (r catalogRepo) UpsertCombo(ctx context.Context, c model.Combo) error {
	return r.upsertFlat(ctx, "catalog_combos", c.ID, c.Name, c.Price, c.UpdatedAt)
}

func (r catalogRepo) UpsertEquipment(ctx context.Context, e model.Equipment) error {
	return r.upsertFlat(ctx, "catalog_equipment", e.ID, e.Name, e.Price, e.UpdatedAt)
}

// table is one of two constants above, never caller input.
func (r catalogRepo) upsertFlat(ctx context.Context, table, id, name string, price int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO `+table+` (id, name, price, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, updated_at = EXCLUDED.updated_at
	`, id, name, price, at)
	return err
}
