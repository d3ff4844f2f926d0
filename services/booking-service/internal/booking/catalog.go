package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/ledger"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/store"
)

const maxProvisionDays = 366

func (s *Service) UpsertService(ctx context.Context, svc model.Service) (model.Service, error) {
	if err := svc.Validate(); err != nil {
		return model.Service{}, err
	}
	svc.UpdatedAt = s.now()
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Catalog().UpsertService(ctx, svc)
	})
	return svc, err
}

func (s *Service) UpsertCombo(ctx context.Context, c model.Combo) (model.Combo, error) {
	if err := model.FlatItem(c.ID, c.Price); err != nil {
		return model.Combo{}, err
	}
	c.UpdatedAt = s.now()
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Catalog().UpsertCombo(ctx, c)
	})
	return c, err
}

func (s *Service) UpsertEquipment(ctx context.Context, e model.Equipment) (model.Equipment, error) {
	if err := model.FlatItem(e.ID, e.Price); err != nil {
		return model.Equipment{}, err
	}
	e.UpdatedAt = s.now()
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Catalog().UpsertEquipment(ctx, e)
	})
	return e, err
}

// ProvisionAvailability sets totalSlots for every day in [from, to).
func (s *Service) ProvisionAvailability(ctx context.Context, serviceID string, from, to time.Time, totalSlots int) ([]ledger.Record, error) {
	r, err := ledger.NewDateRange(from, to)
	if err != nil {
		return nil, err
	}
	if r.Days() > maxProvisionDays {
		return nil, fmt.Errorf("%w: at most %d days per provisioning call", model.ErrInvalidArgument, maxProvisionDays)
	}
	var out []ledger.Record
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Catalog().Service(ctx, serviceID); err != nil {
			return err
		}
		if err := tx.Ledger().Provision(ctx, serviceID, r, totalSlots); err != nil {
			return err
		}
		recs, err := tx.Ledger().Records(ctx, serviceID, r)
		out = recs
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("availability provisioned", "service_id", serviceID, "range", r.String(), "total_slots", totalSlots)
	return out, nil
}

func (s *Service) Availability(ctx context.Context, serviceID string, from, to time.Time) ([]ledger.Record, error) {
	r, err := ledger.NewDateRange(from, to)
	if err != nil {
		return nil, err
	}
	if r.Days() > maxProvisionDays {
		return nil, fmt.Errorf("%w: at most %d days per query", model.ErrInvalidArgument, maxProvisionDays)
	}
	var out []ledger.Record
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		recs, err := tx.Ledger().Records(ctx, serviceID, r)
		out = recs
		return err
	})
	return out, err
}
