// Package storage is the PostgreSQL implementation of the store ports.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/camprent/libs/db"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/ledger"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/store"
)

type Store struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func New(pool *db.Pool, outboxRepo *outbox.Repository) *Store {
	return &Store{pool: pool, outbox: outboxRepo}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{tx: tx, outbox: s.outbox}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *pgTx) Catalog() store.Catalog               { return catalogRepo{t.tx} }
func (t *pgTx) Ledger() ledger.Ledger                { return ledgerRepo{t.tx} }
func (t *pgTx) Bookings() store.Bookings             { return bookingRepo{t.tx} }
func (t *pgTx) Payments() store.Payments             { return paymentRepo{t.tx} }
func (t *pgTx) Staff() store.StaffDirectory          { return staffRepo{t.tx} }
func (t *pgTx) Shifts() store.Shifts                 { return shiftRepo{t.tx} }
func (t *pgTx) Events() store.EventSink              { return eventSink{t.tx, t.outbox} }
func (t *pgTx) ProviderEvents() store.ProviderEvents { return providerEventRepo{t.tx} }

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// notFound converts pgx.ErrNoRows into the domain error and passes others through.
func notFound(err error, kind, id string) error {
	if IsNotFound(err) {
		return fmt.Errorf("%w: %s %s", model.ErrNotFound, kind, id)
	}
	return err
}
