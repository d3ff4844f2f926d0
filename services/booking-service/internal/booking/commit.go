package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/ledger"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/store"
)

// Confirm reserves every stay of b and applies trigger on. A failed reserve
// leaves earlier increments in tx, so the caller must roll tx back on error.
func Confirm(ctx context.Context, tx store.Tx, b *model.Booking, on model.BookingTrigger, at time.Time) error {
	next, err := b.Status.Next(on)
	if err != nil {
		return err
	}
	if b.Status == model.BookingPending {
		for _, li := range b.ServiceItems() {
			stay, err := stayOf(li)
			if err != nil {
				return err
			}
			if err := tx.Ledger().Reserve(ctx, li.CatalogID, stay); err != nil {
				return fmt.Errorf("reserve %s %s: %w", li.CatalogID, stay, err)
			}
		}
	}
	b.Status = next
	b.UpdatedAt = at
	return tx.Bookings().Update(ctx, *b)
}

// release returns every consumed slot of a CONFIRMED booking.
func release(ctx context.Context, tx store.Tx, b model.Booking) error {
	if b.Status != model.BookingConfirmed {
		return nil
	}
	for _, li := range b.ServiceItems() {
		stay, err := stayOf(li)
		if err != nil {
			return err
		}
		if err := tx.Ledger().Release(ctx, li.CatalogID, stay); err != nil {
			return fmt.Errorf("release %s %s: %w", li.CatalogID, stay, err)
		}
	}
	return nil
}

func stayOf(li model.LineItem) (ledger.DateRange, error) {
	return ledger.NewDateRange(li.CheckIn, li.CheckOut)
}

// AppendEvent writes a booking event with the common payload plus extra.
func AppendEvent(ctx context.Context, tx store.Tx, b model.Booking, eventType string, extra map[string]any) error {
	payload := map[string]any{
		"booking_id":  b.ID,
		"customer_id": b.CustomerID,
		"status":      b.Status,
		"total":       b.Total(),
		"occurred_at": b.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if b.AssignedStaffID != "" {
		payload["assigned_staff_id"] = b.AssignedStaffID
	}
	for k, v := range extra {
		payload[k] = v
	}
	evt, err := outbox.NewEvent("booking", b.ID, eventType, payload)
	if err != nil {
		return err
	}
	return tx.Events().Append(ctx, evt)
}
