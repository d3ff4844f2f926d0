package model

import "errors"

// Domain error kinds. Callers wrap them with detail via fmt.Errorf("%w: ...")
// and match with errors.Is.
var (
	ErrNotFound                  = errors.New("not found")
	ErrInvalidArgument           = errors.New("invalid argument")
	ErrInvalidDateRange          = errors.New("invalid date range")
	ErrCapacityExceeded          = errors.New("capacity exceeded")
	ErrMissingAvailabilityConfig = errors.New("missing availability configuration")
	ErrInvalidStatusTransition   = errors.New("invalid status transition")
	ErrPaymentAlreadySettled     = errors.New("payment already settled")
	ErrNoEligibleStaff           = errors.New("no eligible staff")
)
