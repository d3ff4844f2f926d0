package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/model"
)

type bookingRepo struct {
	tx pgx.Tx
}

const bookingColumns = `
	id, customer_id, status, COALESCE(assigned_staff_id, ''), checked_in_at, cancelled_at,
	COALESCE(cancel_reason, ''), COALESCE(review_rating, 0), COALESCE(review_feedback, ''), reviewed_at,
	created_at, updated_at`

func scanBooking(row pgx.Row) (model.Booking, error) {
	var (
		b          model.Booking
		rating     int
		feedback   string
		reviewedAt *time.Time
	)
	err := row.Scan(&b.ID, &b.CustomerID, &b.Status, &b.AssignedStaffID, &b.CheckedInAt, &b.CancelledAt,
		&b.CancelReason, &rating, &feedback, &reviewedAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return model.Booking{}, err
	}
	if reviewedAt != nil {
		b.Review = &model.Review{Rating: rating, Feedback: feedback, ReviewedAt: *reviewedAt}
	}
	return b, nil
}

func (r bookingRepo) Create(ctx context.Context, b model.Booking) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO bookings (id, customer_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, b.ID, b.CustomerID, b.Status, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: booking %s already exists", model.ErrInvalidArgument, b.ID)
		}
		return err
	}
	for _, li := range b.Items {
		var checkIn, checkOut *time.Time
		if li.Type == model.ItemService {
			checkIn, checkOut = &li.CheckIn, &li.CheckOut
		}
		_, err := r.tx.Exec(ctx, `
			INSERT INTO booking_items
				(booking_id, position, item_type, catalog_id, quantity, unit_price, check_in, check_out, people)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, b.ID, li.Position, li.Type, li.CatalogID, li.Quantity, li.UnitPrice, checkIn, checkOut, li.People)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r bookingRepo) Get(ctx context.Context, id string) (model.Booking, error) {
	return r.get(ctx, id, "")
}

func (r bookingRepo) GetForUpdate(ctx context.Context, id string) (model.Booking, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r bookingRepo) get(ctx context.Context, id, lock string) (model.Booking, error) {
	b, err := scanBooking(r.tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`+lock, id))
	if err != nil {
		return model.Booking{}, notFound(err, "booking", id)
	}
	items, err := r.items(ctx, []string{id})
	if err != nil {
		return model.Booking{}, err
	}
	b.Items = items[id]
	return b, nil
}

func (r bookingRepo) items(ctx context.Context, ids []string) (map[string][]model.LineItem, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT booking_id, position, item_type, catalog_id, quantity, unit_price, check_in, check_out, people
		FROM booking_items
		WHERE booking_id = ANY($1)
		ORDER BY booking_id, position
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]model.LineItem, len(ids))
	for rows.Next() {
		var (
			bookingID         string
			li                model.LineItem
			checkIn, checkOut *time.Time
		)
		if err := rows.Scan(&bookingID, &li.Position, &li.Type, &li.CatalogID, &li.Quantity, &li.UnitPrice,
			&checkIn, &checkOut, &li.People); err != nil {
			return nil, err
		}
		if checkIn != nil && checkOut != nil {
			li.CheckIn, li.CheckOut = checkIn.UTC(), checkOut.UTC()
		}
		out[bookingID] = append(out[bookingID], li)
	}
	return out, rows.Err()
}

func (r bookingRepo) Update(ctx context.Context, b model.Booking) error {
	var (
		rating     *int
		feedback   *string
		reviewedAt *time.Time
	)
	if b.Review != nil {
		rating, feedback, reviewedAt = &b.Review.Rating, &b.Review.Feedback, &b.Review.ReviewedAt
	}
	tag, err := r.tx.Exec(ctx, `
		UPDATE bookings
		SET status = $2,
			assigned_staff_id = NULLIF($3, ''),
			checked_in_at = $4,
			cancelled_at = $5,
			cancel_reason = NULLIF($6, ''),
			review_rating = $7,
			review_feedback = $8,
			reviewed_at = $9,
			updated_at = $10
		WHERE id = $1
	`, b.ID, b.Status, b.AssignedStaffID, b.CheckedInAt, b.CancelledAt, b.CancelReason,
		rating, feedback, reviewedAt, b.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: staff %s", model.ErrNotFound, b.AssignedStaffID)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: booking %s", model.ErrNotFound, b.ID)
	}
	return nil
}

func (r bookingRepo) List(ctx context.Context, f model.BookingFilter) ([]model.Booking, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.CustomerID != "" {
		add("customer_id = $%d", f.CustomerID)
	}
	if f.StaffID != "" {
		add("assigned_staff_id = $%d", f.StaffID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	sql := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d`, len(args))

	rows, err := r.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	var (
		out []model.Booking
		ids []string
	)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, b)
		ids = append(ids, b.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	items, err := r.items(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

func (r bookingRepo) ActiveLoad(ctx context.Context, staffIDs []string, excludeBookingID string) (map[string]int, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT assigned_staff_id, count(*)
		FROM bookings
		WHERE assigned_staff_id = ANY($1)
			AND status IN ('PENDING', 'CONFIRMED')
			AND id <> $2
		GROUP BY assigned_staff_id
	`, staffIDs, excludeBookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	load := map[string]int{}
	for rows.Next() {
		var (
			staffID string
			n       int
		)
		if err := rows.Scan(&staffID, &n); err != nil {
			return nil, err
		}
		load[staffID] = n
	}
	return load, rows.Err()
}
