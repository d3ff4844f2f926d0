package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/model"
	"github.com/sony/gobreaker"
	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"
)

type StripeConfig struct {
	SecretKey        string
	WebhookSecret    string
	SuccessURL       string
	CancelURL        string
	WebhookTolerance time.Duration
	// TTL is clamped to Stripe's 30 minute minimum session lifetime.
	TTL time.Duration
	// BreakerFailures consecutive failed session creations open the circuit
	// for BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
	Logger          *slog.Logger
}

type sessionCreator func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)

// StripeGateway collects payment through a Stripe Checkout Session and
// settles from signed webhooks.
type StripeGateway struct {
	cfg     StripeConfig
	create  sessionCreator
	breaker *gobreaker.CircuitBreaker
	now     func() time.Time
}

func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	if cfg.TTL < 30*time.Minute {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.WebhookTolerance <= 0 {
		cfg.WebhookTolerance = webhook.DefaultTolerance
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	secret := cfg.SecretKey
	failures := cfg.BreakerFailures
	return &StripeGateway{
		cfg: cfg,
		create: func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			// Stripe uses a global API key. Keep usage limited to this call.
			stripe.Key = secret
			return checkoutsession.New(params)
		},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "stripe-checkout",
			Timeout: cfg.BreakerCooldown,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= failures
			},
			IsSuccessful: stripeHealthy,
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
		now: time.Now,
	}
}

// stripeHealthy reports whether err says nothing about Stripe's availability.
// Rejected requests are the caller's fault and must not open the circuit.
func stripeHealthy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var se *stripe.Error
	if errors.As(err, &se) {
		return se.HTTPStatusCode != 0 && se.HTTPStatusCode < http.StatusInternalServerError &&
			se.HTTPStatusCode != http.StatusTooManyRequests
	}
	return false
}

func (g *StripeGateway) Method() model.PaymentMethod { return model.MethodStripe }

func (g *StripeGateway) CreateRedirect(ctx context.Context, c Checkout) (Redirect, error) {
	expires := g.now().Add(g.cfg.TTL)
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(g.cfg.SuccessURL),
		CancelURL:         stripe.String(g.cfg.CancelURL),
		ClientReferenceID: stripe.String(c.TxnRef),
		ExpiresAt:         stripe.Int64(expires.Unix()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(c.Currency)),
					UnitAmount: stripe.Int64(c.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(c.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			"booking_id": c.BookingID,
			"txn_ref":    c.TxnRef,
		},
	}
	params.Context = ctx
	// Stripe-level idempotency: a retried initiation reuses the session.
	params.IdempotencyKey = stripe.String(c.TxnRef)

	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.create(params)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Redirect{}, fmt.Errorf("%w: stripe checkout: %v", ErrGatewayUnavailable, err)
	}
	if err != nil {
		return Redirect{}, fmt.Errorf("stripe checkout session: %w", err)
	}
	sess := out.(*stripe.CheckoutSession)
	return Redirect{URL: sess.URL, ProviderRef: sess.ID, ExpiresAt: expires}, nil
}

// WebhookEvent is a verified Stripe delivery. Settles is false for event
// types that carry no payment verdict; Callback is then empty.
type WebhookEvent struct {
	ID       string
	Type     string
	Settles  bool
	Callback Callback
}

func (g *StripeGateway) ParseWebhook(body []byte, sigHeader string) (WebhookEvent, error) {
	evt, err := webhook.ConstructEventWithOptions(body, sigHeader, g.cfg.WebhookSecret, webhook.ConstructEventOptions{
		Tolerance:                g.cfg.WebhookTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	out := WebhookEvent{ID: evt.ID, Type: string(evt.Type)}

	var success bool
	switch out.Type {
	case "checkout.session.completed":
		// Delayed methods complete unpaid and settle with an async event later.
		success = true
	case "checkout.session.async_payment_succeeded":
		success = true
	case "checkout.session.async_payment_failed", "checkout.session.expired":
		success = false
	default:
		return out, nil
	}

	if evt.Data == nil {
		return WebhookEvent{}, fmt.Errorf("%w: event %s has no data", model.ErrInvalidArgument, evt.ID)
	}
	var session stripe.CheckoutSession
	if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: checkout session payload: %v", model.ErrInvalidArgument, err)
	}
	if out.Type == "checkout.session.completed" && session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return out, nil
	}

	txnRef := session.Metadata["txn_ref"]
	if txnRef == "" {
		txnRef = session.ClientReferenceID
	}
	if txnRef == "" {
		return WebhookEvent{}, fmt.Errorf("%w: checkout session %s has no txn_ref", model.ErrInvalidArgument, session.ID)
	}

	out.Settles = true
	out.Callback = Callback{TxnRef: txnRef, Success: success, ProviderRef: session.ID}
	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		out.Callback.ProviderRef = session.PaymentIntent.ID
	}
	if success {
		out.Callback.Amount = session.AmountTotal
		out.Callback.Currency = string(session.Currency)
	} else {
		out.Callback.Reason = "stripe " + out.Type
	}
	return out, nil
}
