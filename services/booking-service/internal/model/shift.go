package model

import (
	"slices"
	"time"
)

type Staff struct {
	ID        string
	Name      string
	Active    bool
	UpdatedAt time.Time
}

type Shift struct {
	ID          string
	Date        time.Time
	Start       time.Time
	End         time.Time
	Status      ShiftStatus
	Assignments []ShiftAssignment
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type ShiftAssignment struct {
	StaffID string
	Role    string
}

// Overlaps uses half-open intervals: touching endpoints do not overlap.
func (s Shift) Overlaps(start, end time.Time) bool {
	return s.Start.Before(end) && start.Before(s.End)
}

// StaffIDs returns the distinct staff on the shift in ascending order.
func (s Shift) StaffIDs() []string {
	ids := make([]string, 0, len(s.Assignments))
	for _, a := range s.Assignments {
		ids = append(ids, a.StaffID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}
