package staffing

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	otelx "github.com/md-rashed-zaman/camprent/libs/otel"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otelx.Tracer("staffing")

// staffedStatuses are the shift states whose staff can take bookings.
var staffedStatuses = []model.ShiftStatus{model.ShiftApproved, model.ShiftInProgress}

type Scheduler struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

func NewScheduler(st store.Store, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:  st,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// AssignManually sets the booking's staff without a load check.
func (s *Scheduler) AssignManually(ctx context.Context, bookingID, staffID string) (model.Booking, error) {
	if staffID == "" {
		return model.Booking{}, fmt.Errorf("%w: staff id required", model.ErrInvalidArgument)
	}
	return s.assign(ctx, bookingID, "manual", func(ctx context.Context, tx store.Tx, _ model.Booking) (string, error) {
		st, err := tx.Staff().Get(ctx, staffID)
		if err != nil {
			return "", err
		}
		if !st.Active {
			return "", fmt.Errorf("%w: staff %s is inactive", model.ErrInvalidArgument, staffID)
		}
		return st.ID, nil
	})
}

// AssignAutomatically picks the least loaded staff member among those on an
// approved or running shift that overlaps the booking's stay.
func (s *Scheduler) AssignAutomatically(ctx context.Context, bookingID string) (_ model.Booking, err error) {
	ctx, span := tracer.Start(ctx, "staffing.assign_auto")
	span.SetAttributes(attribute.String("booking.id", bookingID))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	return s.assign(ctx, bookingID, "auto", func(ctx context.Context, tx store.Tx, b model.Booking) (string, error) {
		start, end, ok := b.StayWindow()
		if !ok {
			return "", fmt.Errorf("%w: booking %s has no stay to staff", model.ErrInvalidArgument, b.ID)
		}
		shifts, err := tx.Shifts().Overlapping(ctx, start, end, staffedStatuses)
		if err != nil {
			return "", err
		}
		var ids []string
		for _, sh := range shifts {
			ids = append(ids, sh.StaffIDs()...)
		}
		slices.Sort(ids)
		ids = slices.Compact(ids)

		eligible := ids[:0]
		for _, id := range ids {
			st, err := tx.Staff().Get(ctx, id)
			if err != nil {
				return "", err
			}
			if st.Active {
				eligible = append(eligible, id)
			}
		}
		if len(eligible) == 0 {
			return "", fmt.Errorf("%w: no staff on shift between %s and %s",
				model.ErrNoEligibleStaff, start.Format(time.RFC3339), end.Format(time.RFC3339))
		}

		load, err := tx.Bookings().ActiveLoad(ctx, eligible, b.ID)
		if err != nil {
			return "", err
		}
		candidates := make([]Candidate, 0, len(eligible))
		for _, id := range eligible {
			candidates = append(candidates, Candidate{StaffID: id, Load: load[id]})
		}
		return SelectLeastLoaded(candidates)
	})
}

func (s *Scheduler) assign(ctx context.Context, bookingID, mode string, pick func(ctx context.Context, tx store.Tx, b model.Booking) (string, error)) (model.Booking, error) {
	var out model.Booking
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.Status.Terminal() {
			return fmt.Errorf("%w: booking is %s", model.ErrInvalidStatusTransition, b.Status)
		}
		staffID, err := pick(ctx, tx, b)
		if err != nil {
			return err
		}
		b.AssignedStaffID = staffID
		b.UpdatedAt = s.now()
		if err := tx.Bookings().Update(ctx, b); err != nil {
			return err
		}
		if err := booking.AppendEvent(ctx, tx, b, outbox.BookingStaffAssigned, map[string]any{"mode": mode}); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return model.Booking{}, err
	}
	s.logger.Info("staff assigned", "booking_id", out.ID, "staff_id", out.AssignedStaffID, "mode", mode)
	return out, nil
}

func (s *Scheduler) UpsertStaff(ctx context.Context, st model.Staff) (model.Staff, error) {
	if st.ID == "" || st.Name == "" {
		return model.Staff{}, fmt.Errorf("%w: staff id and name required", model.ErrInvalidArgument)
	}
	st.UpdatedAt = s.now()
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Staff().Upsert(ctx, st)
	})
	return st, err
}

// CreateShift registers a shift. Date defaults to the UTC day of start.
func (s *Scheduler) CreateShift(ctx context.Context, sh model.Shift) (model.Shift, error) {
	if sh.Start.IsZero() || !sh.End.After(sh.Start) {
		return model.Shift{}, fmt.Errorf("%w: shift end must be after start", model.ErrInvalidDateRange)
	}
	for _, a := range sh.Assignments {
		if a.StaffID == "" {
			return model.Shift{}, fmt.Errorf("%w: assignment staff id required", model.ErrInvalidArgument)
		}
	}
	now := s.now()
	if sh.ID == "" {
		sh.ID = s.newID()
	}
	if sh.Date.IsZero() {
		y, m, d := sh.Start.UTC().Date()
		sh.Date = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	sh.Start, sh.End = sh.Start.UTC(), sh.End.UTC()
	sh.Status = model.ShiftRegistered
	sh.CreatedAt, sh.UpdatedAt = now, now

	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Shifts().Create(ctx, sh)
	})
	if err != nil {
		return model.Shift{}, err
	}
	s.logger.Info("shift created", "shift_id", sh.ID, "staff", len(sh.Assignments))
	return sh, nil
}

func (s *Scheduler) TransitionShift(ctx context.Context, shiftID string, on model.ShiftTrigger) (model.Shift, error) {
	var out model.Shift
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sh, err := tx.Shifts().GetForUpdate(ctx, shiftID)
		if err != nil {
			return err
		}
		next, err := sh.Status.Next(on)
		if err != nil {
			return err
		}
		now := s.now()
		if err := tx.Shifts().UpdateStatus(ctx, sh.ID, next, now); err != nil {
			return err
		}
		sh.Status, sh.UpdatedAt = next, now
		out = sh
		return nil
	})
	return out, err
}
