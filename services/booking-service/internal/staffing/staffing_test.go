package staffing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/memstore"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/model"
)

func TestSelectLeastLoaded(t *testing.T) {
	cases := []struct {
		name       string
		candidates []Candidate
		want       string
	}{
		{"lowest load wins", []Candidate{{"amy", 3}, {"bob", 1}}, "bob"},
		{"tie goes to lowest id", []Candidate{{"zed", 2}, {"bob", 2}, {"kim", 2}}, "bob"},
		{"zero load", []Candidate{{"amy", 1}, {"bob", 0}, {"cat", 0}}, "bob"},
		{"single", []Candidate{{"amy", 9}}, "amy"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SelectLeastLoaded(tc.candidates)
			if err != nil {
				t.Fatalf("select: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}

	if _, err := SelectLeastLoaded(nil); !errors.Is(err, model.ErrNoEligibleStaff) {
		t.Fatalf("expected ErrNoEligibleStaff, got %v", err)
	}
}

type fixture struct {
	ctx      context.Context
	bookings *booking.Service
	sched    *Scheduler
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st := memstore.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := fixture{
		ctx:      context.Background(),
		bookings: booking.NewService(st, logger),
		sched:    NewScheduler(st, logger),
	}
	if _, err := f.bookings.UpsertService(f.ctx, model.Service{
		ID: "cabin", Name: "Cabin", Price: 500, MinDays: 1, MaxDays: 7, MinCapacity: 1, MaxCapacity: 4,
	}); err != nil {
		t.Fatalf("upsert service: %v", err)
	}
	if _, err := f.bookings.ProvisionAvailability(f.ctx, "cabin", day(1), day(20), 20); err != nil {
		t.Fatalf("provision: %v", err)
	}
	for _, id := range []string{"amy", "bob", "cat"} {
		if _, err := f.sched.UpsertStaff(f.ctx, model.Staff{ID: id, Name: id, Active: true}); err != nil {
			t.Fatalf("upsert staff: %v", err)
		}
	}
	return f
}

func day(d int) time.Time {
	return time.Date(2026, 9, d, 0, 0, 0, 0, time.UTC)
}

func (f fixture) compose(t *testing.T, from, to int) model.Booking {
	t.Helper()
	b, err := f.bookings.Compose(f.ctx, "cust", []booking.ItemRequest{{
		Type: model.ItemService, CatalogID: "cabin", CheckIn: day(from), CheckOut: day(to), People: 2,
	}})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	return b
}

func (f fixture) approvedShift(t *testing.T, from, to time.Time, staff ...string) model.Shift {
	t.Helper()
	sh := model.Shift{Start: from, End: to}
	for _, id := range staff {
		sh.Assignments = append(sh.Assignments, model.ShiftAssignment{StaffID: id, Role: "host"})
	}
	created, err := f.sched.CreateShift(f.ctx, sh)
	if err != nil {
		t.Fatalf("create shift: %v", err)
	}
	approved, err := f.sched.TransitionShift(f.ctx, created.ID, model.ShiftApprove)
	if err != nil {
		t.Fatalf("approve shift: %v", err)
	}
	return approved
}

func TestAssignAutomaticallyPicksLeastLoaded(t *testing.T) {
	f := newFixture(t)
	f.approvedShift(t, day(1), day(10), "amy", "bob")

	for i := 0; i < 3; i++ {
		if _, err := f.sched.AssignManually(f.ctx, f.compose(t, 1, 2).ID, "amy"); err != nil {
			t.Fatalf("assign amy: %v", err)
		}
	}
	if _, err := f.sched.AssignManually(f.ctx, f.compose(t, 1, 2).ID, "bob"); err != nil {
		t.Fatalf("assign bob: %v", err)
	}

	target := f.compose(t, 3, 5)
	got, err := f.sched.AssignAutomatically(f.ctx, target.ID)
	if err != nil {
		t.Fatalf("assign auto: %v", err)
	}
	if got.AssignedStaffID != "bob" {
		t.Fatalf("expected bob (load 1) over amy (load 3), got %s", got.AssignedStaffID)
	}

	// Reassigning must not count the booking against its current assignee.
	again, err := f.sched.AssignAutomatically(f.ctx, target.ID)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if again.AssignedStaffID != "bob" {
		t.Fatalf("expected bob to keep the booking, got %s", again.AssignedStaffID)
	}
}

func TestAssignAutomaticallyTieBreaksOnLowestID(t *testing.T) {
	f := newFixture(t)
	f.approvedShift(t, day(1), day(10), "cat", "bob")

	got, err := f.sched.AssignAutomatically(f.ctx, f.compose(t, 2, 3).ID)
	if err != nil {
		t.Fatalf("assign auto: %v", err)
	}
	if got.AssignedStaffID != "bob" {
		t.Fatalf("expected bob, got %s", got.AssignedStaffID)
	}
}

func TestAssignAutomaticallyIgnoresIneligibleShifts(t *testing.T) {
	f := newFixture(t)

	// Registered only, never approved.
	if _, err := f.sched.CreateShift(f.ctx, model.Shift{
		Start: day(1), End: day(10),
		Assignments: []model.ShiftAssignment{{StaffID: "amy"}},
	}); err != nil {
		t.Fatalf("create shift: %v", err)
	}
	// Touches the stay window only at its end, half-open so no overlap.
	f.approvedShift(t, day(1), day(5), "bob")
	// Cancelled after approval.
	cancelled := f.approvedShift(t, day(4), day(8), "cat")
	if _, err := f.sched.TransitionShift(f.ctx, cancelled.ID, model.ShiftCancel); err != nil {
		t.Fatalf("cancel shift: %v", err)
	}

	_, err := f.sched.AssignAutomatically(f.ctx, f.compose(t, 5, 7).ID)
	if !errors.Is(err, model.ErrNoEligibleStaff) {
		t.Fatalf("expected ErrNoEligibleStaff, got %v", err)
	}
}

func TestAssignAutomaticallySkipsInactiveStaff(t *testing.T) {
	f := newFixture(t)
	f.approvedShift(t, day(1), day(10), "amy", "bob")
	if _, err := f.sched.UpsertStaff(f.ctx, model.Staff{ID: "amy", Name: "amy", Active: false}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	got, err := f.sched.AssignAutomatically(f.ctx, f.compose(t, 2, 3).ID)
	if err != nil {
		t.Fatalf("assign auto: %v", err)
	}
	if got.AssignedStaffID != "bob" {
		t.Fatalf("expected bob, got %s", got.AssignedStaffID)
	}
}

func TestAssignManuallyRules(t *testing.T) {
	f := newFixture(t)
	b := f.compose(t, 1, 2)

	if _, err := f.sched.AssignManually(f.ctx, b.ID, "ghost"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown staff, got %v", err)
	}
	if _, err := f.sched.AssignManually(f.ctx, "missing", "amy"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown booking, got %v", err)
	}
	if _, err := f.bookings.Cancel(f.ctx, b.ID, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.sched.AssignManually(f.ctx, b.ID, "amy"); !errors.Is(err, model.ErrInvalidStatusTransition) {
		t.Fatalf("expected terminal booking to be rejected, got %v", err)
	}
}

func TestShiftTransitions(t *testing.T) {
	f := newFixture(t)
	if _, err := f.sched.CreateShift(f.ctx, model.Shift{Start: day(2), End: day(1)}); !errors.Is(err, model.ErrInvalidDateRange) {
		t.Fatalf("expected ErrInvalidDateRange, got %v", err)
	}
	if _, err := f.sched.CreateShift(f.ctx, model.Shift{
		Start: day(1), End: day(2), Assignments: []model.ShiftAssignment{{StaffID: "ghost"}},
	}); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown staff, got %v", err)
	}

	sh, err := f.sched.CreateShift(f.ctx, model.Shift{Start: day(1).Add(8 * time.Hour), End: day(1).Add(16 * time.Hour)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sh.Status != model.ShiftRegistered || !sh.Date.Equal(day(1)) {
		t.Fatalf("unexpected shift: %+v", sh)
	}
	if _, err := f.sched.TransitionShift(f.ctx, sh.ID, model.ShiftStart); !errors.Is(err, model.ErrInvalidStatusTransition) {
		t.Fatalf("start before approval should fail, got %v", err)
	}
	for _, step := range []struct {
		on   model.ShiftTrigger
		want model.ShiftStatus
	}{
		{model.ShiftApprove, model.ShiftApproved},
		{model.ShiftStart, model.ShiftInProgress},
		{model.ShiftComplete, model.ShiftCompleted},
	} {
		got, err := f.sched.TransitionShift(f.ctx, sh.ID, step.on)
		if err != nil {
			t.Fatalf("%s: %v", step.on, err)
		}
		if got.Status != step.want {
			t.Fatalf("%s: expected %s, got %s", step.on, step.want, got.Status)
		}
	}
	if _, err := f.sched.TransitionShift(f.ctx, sh.ID, model.ShiftCancel); !errors.Is(err, model.ErrInvalidStatusTransition) {
		t.Fatalf("completed shift must be terminal, got %v", err)
	}
}
