// Package payment initiates redirect-based payments and settles them from
// gateway callbacks through the reservation commit protocol.
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/model"
)

var (
	ErrInvalidSignature   = errors.New("invalid gateway signature")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// Checkout describes the charge a gateway should collect.
type Checkout struct {
	BookingID   string
	TxnRef      string
	Amount      int64
	Currency    string
	Description string
	ClientIP    string
}

type Redirect struct {
	URL         string
	ProviderRef string
	ExpiresAt   time.Time
}

type Gateway interface {
	Method() model.PaymentMethod
	CreateRedirect(ctx context.Context, c Checkout) (Redirect, error)
}

// Callback is a gateway verdict for one transaction reference.
type Callback struct {
	TxnRef      string
	Success     bool
	ProviderRef string
	Reason      string
	// Amount and Currency are the charge the provider reports, when it echoes
	// one. A zero Amount means the provider did not report it.
	Amount   int64
	Currency string
}
