package model

import (
	"fmt"
	"time"
)

type PaymentMethod string

const (
	MethodHosted PaymentMethod = "HOSTED"
	MethodStripe PaymentMethod = "STRIPE"
)

func ParsePaymentMethod(v string) (PaymentMethod, error) {
	switch m := PaymentMethod(v); m {
	case MethodHosted, MethodStripe:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown payment method %q", ErrInvalidArgument, v)
}

// Payment is owned 1:1 by a booking. TxnRef is unique across all payments.
type Payment struct {
	ID          string
	BookingID   string
	Method      PaymentMethod
	Status      PaymentStatus
	Amount      int64
	Currency    string
	TxnRef      string
	ProviderRef string
	// CapturedAt and LastError are set when money was captured but the
	// reservation could not be committed; the payment then needs operator action.
	CapturedAt *time.Time
	LastError  string
	PaidAt     *time.Time
	FailedAt   *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
