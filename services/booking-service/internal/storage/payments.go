package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/model"
)

type paymentRepo struct {
	tx pgx.Tx
}

const paymentColumns = `
	id, booking_id, method, status, amount, currency, txn_ref, COALESCE(provider_ref, ''),
	captured_at, COALESCE(last_error, ''), paid_at, failed_at, created_at, updated_at`

func scanPayment(row pgx.Row) (model.Payment, error) {
	var p model.Payment
	err := row.Scan(&p.ID, &p.BookingID, &p.Method, &p.Status, &p.Amount, &p.Currency, &p.TxnRef, &p.ProviderRef,
		&p.CapturedAt, &p.LastError, &p.PaidAt, &p.FailedAt, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r paymentRepo) Save(ctx context.Context, p model.Payment) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO payments
			(id, booking_id, method, status, amount, currency, txn_ref, provider_ref,
			 captured_at, last_error, paid_at, failed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, NULLIF($10, ''), $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			provider_ref = EXCLUDED.provider_ref,
			captured_at = EXCLUDED.captured_at,
			last_error = EXCLUDED.last_error,
			paid_at = EXCLUDED.paid_at,
			failed_at = EXCLUDED.failed_at,
			updated_at = EXCLUDED.updated_at
	`, p.ID, p.BookingID, p.Method, p.Status, p.Amount, p.Currency, p.TxnRef, p.ProviderRef,
		p.CapturedAt, p.LastError, p.PaidAt, p.FailedAt, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: txn ref %s already used", model.ErrInvalidArgument, p.TxnRef)
	}
	return err
}

func (r paymentRepo) ByBooking(ctx context.Context, bookingID string) ([]model.Payment, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE booking_id = $1 ORDER BY created_at DESC, id DESC`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r paymentRepo) ByTxnRefForUpdate(ctx context.Context, txnRef string) (model.Payment, error) {
	p, err := scanPayment(r.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE txn_ref = $1 FOR UPDATE`, txnRef))
	if err != nil {
		return model.Payment{}, notFound(err, "payment", txnRef)
	}
	return p, nil
}
