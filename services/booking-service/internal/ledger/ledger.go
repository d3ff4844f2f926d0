// Package ledger holds the per (service, day) capacity counters and the
// pure rules used to check and consume them.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/model"
)

const day = 24 * time.Hour

// Day truncates t to UTC midnight, the ledger's date key.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateRange is the half-open day range [Start, End).
type DateRange struct {
	Start time.Time
	End   time.Time
}

func NewDateRange(start, end time.Time) (DateRange, error) {
	if start.IsZero() || end.IsZero() {
		return DateRange{}, fmt.Errorf("%w: check-in and check-out are required", model.ErrInvalidDateRange)
	}
	r := DateRange{Start: Day(start), End: Day(end)}
	if !r.End.After(r.Start) {
		return DateRange{}, fmt.Errorf("%w: check-out %s must be after check-in %s",
			model.ErrInvalidDateRange, r.End.Format(time.DateOnly), r.Start.Format(time.DateOnly))
	}
	return r, nil
}

func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start) / day)
}

func (r DateRange) Dates() []time.Time {
	out := make([]time.Time, 0, r.Days())
	for d := r.Start; d.Before(r.End); d = d.Add(day) {
		out = append(out, d)
	}
	return out
}

func (r DateRange) String() string {
	return r.Start.Format(time.DateOnly) + ".." + r.End.Format(time.DateOnly)
}

// Record is one (service, day) counter. 0 <= BookedSlots <= TotalSlots always holds.
type Record struct {
	ServiceID   string
	Date        time.Time
	TotalSlots  int
	BookedSlots int
}

func (r Record) Free() int {
	return r.TotalSlots - r.BookedSlots
}

// Ledger is the capacity store. Reserve is all-or-nothing over the range and
// must be safe under concurrent callers. Release floors at zero.
type Ledger interface {
	CheckCapacity(ctx context.Context, serviceID string, r DateRange) error
	Reserve(ctx context.Context, serviceID string, r DateRange) error
	Release(ctx context.Context, serviceID string, r DateRange) error
	Provision(ctx context.Context, serviceID string, r DateRange, totalSlots int) error
	Records(ctx context.Context, serviceID string, r DateRange) ([]Record, error)
}

// Evaluate checks that every day of r has a record with a free slot.
// records may be in any order and may contain days outside r.
func Evaluate(serviceID string, records []Record, r DateRange) error {
	byDay := make(map[time.Time]Record, len(records))
	for _, rec := range records {
		byDay[Day(rec.Date)] = rec
	}
	for _, d := range r.Dates() {
		rec, ok := byDay[d]
		if !ok {
			return fmt.Errorf("%w: service %s on %s", model.ErrMissingAvailabilityConfig, serviceID, d.Format(time.DateOnly))
		}
		if rec.BookedSlots >= rec.TotalSlots {
			return fmt.Errorf("%w: service %s is full on %s", model.ErrCapacityExceeded, serviceID, d.Format(time.DateOnly))
		}
	}
	return nil
}

// EvaluateDemand checks that every day in need has at least need[day] free
// slots.
func EvaluateDemand(serviceID string, records []Record, need map[time.Time]int) error {
	byDay := make(map[time.Time]Record, len(records))
	for _, rec := range records {
		byDay[Day(rec.Date)] = rec
	}
	days := make([]time.Time, 0, len(need))
	for d := range need {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	for _, d := range days {
		rec, ok := byDay[Day(d)]
		if !ok {
			return fmt.Errorf("%w: service %s on %s", model.ErrMissingAvailabilityConfig, serviceID, d.Format(time.DateOnly))
		}
		if rec.Free() < need[d] {
			return fmt.Errorf("%w: service %s has %d free slots on %s, %d requested",
				model.ErrCapacityExceeded, serviceID, rec.Free(), d.Format(time.DateOnly), need[d])
		}
	}
	return nil
}

// CheckProvision rejects a capacity that would break the counter invariant
// for already consumed slots.
func CheckProvision(existing []Record, totalSlots int) error {
	if totalSlots < 0 {
		return fmt.Errorf("%w: total slots must not be negative", model.ErrInvalidArgument)
	}
	for _, rec := range existing {
		if rec.BookedSlots > totalSlots {
			return fmt.Errorf("%w: %s already has %d booked slots",
				model.ErrInvalidArgument, rec.Date.Format(time.DateOnly), rec.BookedSlots)
		}
	}
	return nil
}
