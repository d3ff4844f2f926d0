// Package store declares the persistence ports used by the booking core.
// Every operation runs inside a transaction obtained from Store.WithTx so a
// booking, its ledger effects and its outbox events commit together.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/ledger"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/outbox"
)

var ErrDuplicateProviderEvent = errors.New("duplicate provider event")

type Store interface {
	// WithTx runs fn in one transaction. A non-nil error from fn rolls back every effect.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type Tx interface {
	Catalog() Catalog
	Ledger() ledger.Ledger
	Bookings() Bookings
	Payments() Payments
	Staff() StaffDirectory
	Shifts() Shifts
	Events() EventSink
	ProviderEvents() ProviderEvents
}

type Catalog interface {
	Service(ctx context.Context, id string) (model.Service, error)
	Combo(ctx context.Context, id string) (model.Combo, error)
	Equipment(ctx context.Context, id string) (model.Equipment, error)
	UpsertService(ctx context.Context, s model.Service) error
	UpsertCombo(ctx context.Context, c model.Combo) error
	UpsertEquipment(ctx context.Context, e model.Equipment) error
}

type Bookings interface {
	Create(ctx context.Context, b model.Booking) error
	Get(ctx context.Context, id string) (model.Booking, error)
	// GetForUpdate locks the booking row until the transaction ends.
	GetForUpdate(ctx context.Context, id string) (model.Booking, error)
	// Update persists the mutable booking fields. Line items never change.
	Update(ctx context.Context, b model.Booking) error
	List(ctx context.Context, f model.BookingFilter) ([]model.Booking, error)
	// ActiveLoad counts PENDING and CONFIRMED bookings per staff member,
	// ignoring excludeBookingID. Staff without bookings are absent from the map.
	ActiveLoad(ctx context.Context, staffIDs []string, excludeBookingID string) (map[string]int, error)
}

type Payments interface {
	// Save inserts a payment attempt or updates it by id. A booking keeps
	// every attempt it was issued; txn refs are unique across all of them.
	Save(ctx context.Context, p model.Payment) error
	// ByBooking lists the booking's attempts, newest first.
	ByBooking(ctx context.Context, bookingID string) ([]model.Payment, error)
	ByTxnRefForUpdate(ctx context.Context, txnRef string) (model.Payment, error)
}

type StaffDirectory interface {
	Get(ctx context.Context, id string) (model.Staff, error)
	Upsert(ctx context.Context, s model.Staff) error
}

type Shifts interface {
	Create(ctx context.Context, s model.Shift) error
	GetForUpdate(ctx context.Context, id string) (model.Shift, error)
	UpdateStatus(ctx context.Context, id string, status model.ShiftStatus, at time.Time) error
	// Overlapping returns shifts in one of statuses whose [Start, End) overlaps [start, end).
	Overlapping(ctx context.Context, start, end time.Time, statuses []model.ShiftStatus) ([]model.Shift, error)
}

type EventSink interface {
	Append(ctx context.Context, evt outbox.Event) error
}

// ProviderEvents de-duplicates webhook deliveries. Record returns
// ErrDuplicateProviderEvent when (provider, eventID) was seen before.
type ProviderEvents interface {
	Record(ctx context.Context, provider, eventID, eventType string, payload []byte) error
}
