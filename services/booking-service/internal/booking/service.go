// Package booking composes priced bookings and drives their lifecycle
// through the reservation commit protocol.
package booking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	otelx "github.com/md-rashed-zaman/camprent/libs/otel"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/ledger"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/pricing"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otelx.Tracer("booking")

type Service struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

func NewService(st store.Store, logger *slog.Logger) *Service {
	return &Service{
		store:  st,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// ItemRequest is one requested line item. CheckIn, CheckOut and People
// apply to SERVICE items; Quantity to COMBO and EQUIPMENT.
type ItemRequest struct {
	Type      model.ItemType
	CatalogID string
	Quantity  int
	CheckIn   time.Time
	CheckOut  time.Time
	People    int
}

// Compose validates and prices the request and stores it as a PENDING
// booking. Capacity is checked but not consumed.
func (s *Service) Compose(ctx context.Context, customerID string, reqs []ItemRequest) (_ model.Booking, err error) {
	ctx, span := tracer.Start(ctx, "booking.compose", trace.WithAttributes(attribute.Int("booking.items", len(reqs))))
	defer func() { endSpan(span, err) }()

	if customerID == "" {
		return model.Booking{}, fmt.Errorf("%w: customer id required", model.ErrInvalidArgument)
	}
	if len(reqs) == 0 {
		return model.Booking{}, fmt.Errorf("%w: at least one item required", model.ErrInvalidArgument)
	}

	now := s.now()
	b := model.Booking{
		ID:         s.newID(),
		CustomerID: customerID,
		Status:     model.BookingPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		items := make([]model.LineItem, 0, len(reqs))
		for i, req := range reqs {
			li, err := lineItem(ctx, tx, req)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			li.Position = i
			items = append(items, li)
		}
		if err := checkCombinedDemand(ctx, tx, items); err != nil {
			return err
		}
		b.Items = items
		if err := tx.Bookings().Create(ctx, b); err != nil {
			return err
		}
		return AppendEvent(ctx, tx, b, outbox.BookingCreated, map[string]any{"items": len(items)})
	})
	if err != nil {
		return model.Booking{}, err
	}
	span.SetAttributes(attribute.String("booking.id", b.ID))
	s.logger.Info("booking composed", "booking_id", b.ID, "customer_id", customerID, "total", b.Total())
	return b, nil
}

// checkCombinedDemand sums the booking's own service items per day. Each item
// alone was already checked, so only services booked more than once need it.
func checkCombinedDemand(ctx context.Context, tx store.Tx, items []model.LineItem) error {
	need := map[string]map[time.Time]int{}
	span := map[string]ledger.DateRange{}
	var order []string
	for _, li := range items {
		if li.Type != model.ItemService {
			continue
		}
		stay := ledger.DateRange{Start: li.CheckIn, End: li.CheckOut}
		days, ok := need[li.CatalogID]
		if !ok {
			days = map[time.Time]int{}
			need[li.CatalogID] = days
			span[li.CatalogID] = stay
			order = append(order, li.CatalogID)
		}
		sp := span[li.CatalogID]
		if stay.Start.Before(sp.Start) {
			sp.Start = stay.Start
		}
		if stay.End.After(sp.End) {
			sp.End = stay.End
		}
		span[li.CatalogID] = sp
		for _, d := range stay.Dates() {
			days[d]++
		}
	}
	for _, id := range order {
		if !overlaps(need[id]) {
			continue
		}
		records, err := tx.Ledger().Records(ctx, id, span[id])
		if err != nil {
			return err
		}
		if err := ledger.EvaluateDemand(id, records, need[id]); err != nil {
			return err
		}
	}
	return nil
}

func overlaps(days map[time.Time]int) bool {
	for _, n := range days {
		if n > 1 {
			return true
		}
	}
	return false
}

func lineItem(ctx context.Context, tx store.Tx, req ItemRequest) (model.LineItem, error) {
	if req.CatalogID == "" {
		return model.LineItem{}, fmt.Errorf("%w: catalog id required", model.ErrInvalidArgument)
	}
	switch req.Type {
	case model.ItemService:
		if req.Quantity > 1 {
			return model.LineItem{}, fmt.Errorf("%w: service quantity must be 1", model.ErrInvalidArgument)
		}
		stay, err := ledger.NewDateRange(req.CheckIn, req.CheckOut)
		if err != nil {
			return model.LineItem{}, err
		}
		svc, err := tx.Catalog().Service(ctx, req.CatalogID)
		if err != nil {
			return model.LineItem{}, err
		}
		price, err := pricing.Quote(svc, stay, req.People)
		if err != nil {
			return model.LineItem{}, err
		}
		if err := tx.Ledger().CheckCapacity(ctx, svc.ID, stay); err != nil {
			return model.LineItem{}, err
		}
		return model.LineItem{
			Type:      model.ItemService,
			CatalogID: svc.ID,
			Quantity:  1,
			UnitPrice: price,
			CheckIn:   stay.Start,
			CheckOut:  stay.End,
			People:    req.People,
		}, nil

	case model.ItemCombo, model.ItemEquipment:
		if req.Quantity < 1 {
			return model.LineItem{}, fmt.Errorf("%w: quantity must be at least 1", model.ErrInvalidArgument)
		}
		var price int64
		if req.Type == model.ItemCombo {
			c, err := tx.Catalog().Combo(ctx, req.CatalogID)
			if err != nil {
				return model.LineItem{}, err
			}
			price = c.Price
		} else {
			e, err := tx.Catalog().Equipment(ctx, req.CatalogID)
			if err != nil {
				return model.LineItem{}, err
			}
			price = e.Price
		}
		return model.LineItem{
			Type:      req.Type,
			CatalogID: req.CatalogID,
			Quantity:  req.Quantity,
			UnitPrice: price,
		}, nil
	}
	return model.LineItem{}, fmt.Errorf("%w: unknown item type %q", model.ErrInvalidArgument, req.Type)
}

func (s *Service) Get(ctx context.Context, id string) (model.Booking, error) {
	var out model.Booking
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.Bookings().Get(ctx, id)
		out = b
		return err
	})
	return out, err
}

func (s *Service) List(ctx context.Context, f model.BookingFilter) ([]model.Booking, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	var out []model.Booking
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		bs, err := tx.Bookings().List(ctx, f)
		out = bs
		return err
	})
	return out, err
}

// Cancel releases consumed slots when the booking was CONFIRMED.
func (s *Service) Cancel(ctx context.Context, id, reason string) (model.Booking, error) {
	return s.mutate(ctx, id, func(ctx context.Context, tx store.Tx, b *model.Booking, now time.Time) (string, error) {
		next, err := b.Status.Next(model.TriggerCancel)
		if err != nil {
			return "", err
		}
		if err := release(ctx, tx, *b); err != nil {
			return "", err
		}
		b.Status = next
		b.CancelledAt = &now
		b.CancelReason = reason
		b.UpdatedAt = now
		return outbox.BookingCancelled, tx.Bookings().Update(ctx, *b)
	})
}

// CheckIn confirms a PENDING booking by reserving its slots, or stamps the
// arrival of a CONFIRMED one.
func (s *Service) CheckIn(ctx context.Context, id string) (_ model.Booking, err error) {
	ctx, span := tracer.Start(ctx, "booking.check_in", trace.WithAttributes(attribute.String("booking.id", id)))
	defer func() { endSpan(span, err) }()

	return s.mutate(ctx, id, func(ctx context.Context, tx store.Tx, b *model.Booking, now time.Time) (string, error) {
		b.CheckedInAt = &now
		if b.Status == model.BookingPending {
			if err := Confirm(ctx, tx, b, model.TriggerCheckIn, now); err != nil {
				return "", err
			}
			return outbox.BookingCheckedIn, AppendEvent(ctx, tx, *b, outbox.BookingConfirmed, map[string]any{"source": "check_in"})
		}
		if _, err := b.Status.Next(model.TriggerCheckIn); err != nil {
			return "", err
		}
		b.UpdatedAt = now
		return outbox.BookingCheckedIn, tx.Bookings().Update(ctx, *b)
	})
}

func (s *Service) CheckOut(ctx context.Context, id string) (model.Booking, error) {
	return s.mutate(ctx, id, func(ctx context.Context, tx store.Tx, b *model.Booking, now time.Time) (string, error) {
		next, err := b.Status.Next(model.TriggerCheckOut)
		if err != nil {
			return "", err
		}
		b.Status = next
		b.UpdatedAt = now
		return outbox.BookingCompleted, tx.Bookings().Update(ctx, *b)
	})
}

func (s *Service) Review(ctx context.Context, id string, rating int, feedback string) (model.Booking, error) {
	if rating < 1 || rating > 5 {
		return model.Booking{}, fmt.Errorf("%w: rating must be between 1 and 5", model.ErrInvalidArgument)
	}
	return s.mutate(ctx, id, func(ctx context.Context, tx store.Tx, b *model.Booking, now time.Time) (string, error) {
		if b.Status != model.BookingCompleted {
			return "", fmt.Errorf("%w: only completed bookings can be reviewed", model.ErrInvalidStatusTransition)
		}
		if b.Review != nil {
			return "", fmt.Errorf("%w: booking already reviewed", model.ErrInvalidStatusTransition)
		}
		b.Review = &model.Review{Rating: rating, Feedback: feedback, ReviewedAt: now}
		b.UpdatedAt = now
		return outbox.BookingReviewed, tx.Bookings().Update(ctx, *b)
	})
}

// mutate locks the booking, applies fn and appends the event type fn returns.
func (s *Service) mutate(ctx context.Context, id string, fn func(ctx context.Context, tx store.Tx, b *model.Booking, now time.Time) (string, error)) (model.Booking, error) {
	var out model.Booking
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.Bookings().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		eventType, err := fn(ctx, tx, &b, s.now())
		if err != nil {
			return err
		}
		if err := AppendEvent(ctx, tx, b, eventType, nil); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return model.Booking{}, err
	}
	s.logger.Info("booking updated", "booking_id", out.ID, "status", out.Status)
	return out, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
