package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/ledger"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/model"
)

type ledgerRepo struct {
	tx pgx.Tx
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const selectRange = `
	SELECT service_id, date, total_slots, booked_slots
	FROM availability
	WHERE service_id = $1 AND date >= $2 AND date < $3
	ORDER BY date`

func scanRecords(ctx context.Context, q querier, sql, serviceID string, r ledger.DateRange) ([]ledger.Record, error) {
	rows, err := q.Query(ctx, sql, serviceID, r.Start, r.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Record
	for rows.Next() {
		var rec ledger.Record
		if err := rows.Scan(&rec.ServiceID, &rec.Date, &rec.TotalSlots, &rec.BookedSlots); err != nil {
			return nil, err
		}
		rec.Date = ledger.Day(rec.Date)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (l ledgerRepo) CheckCapacity(ctx context.Context, serviceID string, r ledger.DateRange) error {
	recs, err := scanRecords(ctx, l.tx, selectRange, serviceID, r)
	if err != nil {
		return err
	}
	return ledger.Evaluate(serviceID, recs, r)
}

// Reserve locks the range rows in date order, so concurrent reservations
// over overlapping ranges queue instead of deadlocking, then increments every
// day under the same guard. A savepoint keeps a failed attempt from leaving
// partial increments in the caller's transaction.
func (l ledgerRepo) Reserve(ctx context.Context, serviceID string, r ledger.DateRange) error {
	sp, err := l.tx.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = sp.Rollback(ctx) }()

	recs, err := scanRecords(ctx, sp, selectRange+` FOR UPDATE`, serviceID, r)
	if err != nil {
		return err
	}
	if err := ledger.Evaluate(serviceID, recs, r); err != nil {
		return err
	}

	tag, err := sp.Exec(ctx, `
		UPDATE availability
		SET booked_slots = booked_slots + 1, updated_at = now()
		WHERE service_id = $1 AND date >= $2 AND date < $3 AND booked_slots < total_slots
	`, serviceID, r.Start, r.End)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != int64(r.Days()) {
		return fmt.Errorf("%w: service %s over %s", model.ErrCapacityExceeded, serviceID, r)
	}
	return sp.Commit(ctx)
}

func (l ledgerRepo) Release(ctx context.Context, serviceID string, r ledger.DateRange) error {
	_, err := l.tx.Exec(ctx, `
		UPDATE availability
		SET booked_slots = GREATEST(booked_slots - 1, 0), updated_at = now()
		WHERE service_id = $1 AND date >= $2 AND date < $3
	`, serviceID, r.Start, r.End)
	return err
}

func (l ledgerRepo) Provision(ctx context.Context, serviceID string, r ledger.DateRange, totalSlots int) error {
	existing, err := scanRecords(ctx, l.tx, selectRange+` FOR UPDATE`, serviceID, r)
	if err != nil {
		return err
	}
	if err := ledger.CheckProvision(existing, totalSlots); err != nil {
		return err
	}
	_, err = l.tx.Exec(ctx, `
		INSERT INTO availability (service_id, date, total_slots)
		SELECT $1, d::date, $4
		FROM generate_series($2::date::timestamp, $3::date::timestamp - interval '1 day', interval '1 day') AS d
		ON CONFLICT (service_id, date) DO UPDATE
		SET total_slots = EXCLUDED.total_slots, updated_at = now()
	`, serviceID, r.Start, r.End, totalSlots)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: service %s", model.ErrNotFound, serviceID)
	}
	return err
}

func (l ledgerRepo) Records(ctx context.Context, serviceID string, r ledger.DateRange) ([]ledger.Record, error) {
	return scanRecords(ctx, l.tx, selectRange, serviceID, r)
}
