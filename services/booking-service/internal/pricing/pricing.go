// Package pricing validates a stay request against a catalog service and prices it.
package pricing

import (
	"fmt"

	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/ledger"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/model"
)

// Quote returns the price of one stay line item:
//
//	price + min(max(0, people-maxCapacity), maxExtraOccupants) * extraFeePerPerson
func Quote(svc model.Service, stay ledger.DateRange, people int) (int64, error) {
	if days := stay.Days(); days < svc.MinDays || days > svc.MaxDays {
		return 0, fmt.Errorf("%w: stay of %d days outside [%d, %d] for service %s",
			model.ErrInvalidDateRange, days, svc.MinDays, svc.MaxDays, svc.ID)
	}
	extra, err := ChargeableExtra(svc, people)
	if err != nil {
		return 0, err
	}
	return svc.Price + int64(extra)*svc.ExtraFeePerPerson, nil
}

// ChargeableExtra validates occupancy and returns the number of extra
// occupants that are billed.
func ChargeableExtra(svc model.Service, people int) (int, error) {
	if people < svc.MinCapacity {
		return 0, fmt.Errorf("%w: %d people below minimum %d for service %s",
			model.ErrCapacityExceeded, people, svc.MinCapacity, svc.ID)
	}
	excess := max(0, people-svc.MaxCapacity)
	if excess == 0 {
		return 0, nil
	}
	if !svc.AllowExtraOccupants || excess > svc.MaxExtraOccupants {
		return 0, fmt.Errorf("%w: %d people exceeds capacity %d (+%d extra allowed) for service %s",
			model.ErrCapacityExceeded, people, svc.MaxCapacity, allowedExtra(svc), svc.ID)
	}
	return min(excess, svc.MaxExtraOccupants), nil
}

func allowedExtra(svc model.Service) int {
	if !svc.AllowExtraOccupants {
		return 0
	}
	return svc.MaxExtraOccupants
}
