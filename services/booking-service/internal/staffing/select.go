// Package staffing assigns staff to bookings and manages shifts.
package staffing

import (
	"fmt"

	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/model"
)

// Candidate is a snapshot of one staff member's current load.
type Candidate struct {
	StaffID string
	Load    int
}

// SelectLeastLoaded returns the candidate with the smallest load. Equal loads
// resolve to the lexicographically lowest staff id.
func SelectLeastLoaded(candidates []Candidate) (string, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: no staff on an active shift", model.ErrNoEligibleStaff)
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Load < best.Load || (c.Load == best.Load && c.StaffID < best.StaffID) {
			best = c
		}
	}
	return best.StaffID, nil
}
