package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
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

var tracer = otelx.Tracer("payment")

const (
	providerHosted = "hosted"
	providerStripe = "stripe"
)

type Service struct {
	store    store.Store
	logger   *slog.Logger
	currency string
	gateways map[model.PaymentMethod]Gateway
	hosted   *HostedGateway
	stripe   *StripeGateway
	now      func() time.Time
	newID    func() string
}

// NewService wires the given gateways. A nil gateway is skipped, so a method
// without configuration is reported as unsupported.
func NewService(st store.Store, logger *slog.Logger, currency string, hosted *HostedGateway, stripeGW *StripeGateway) *Service {
	s := &Service{
		store:    st,
		logger:   logger,
		currency: strings.ToUpper(currency),
		gateways: map[model.PaymentMethod]Gateway{},
		hosted:   hosted,
		stripe:   stripeGW,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	if hosted != nil {
		s.gateways[hosted.Method()] = hosted
	}
	if stripeGW != nil {
		s.gateways[stripeGW.Method()] = stripeGW
	}
	return s
}

type Initiated struct {
	Payment     model.Payment
	RedirectURL string
	ExpiresAt   time.Time
}

// Initiate issues a fresh payment attempt for a PENDING booking and returns
// the gateway redirect.
func (s *Service) Initiate(ctx context.Context, bookingID string, method model.PaymentMethod, clientIP string) (Initiated, error) {
	gw, ok := s.gateways[method]
	if !ok {
		return Initiated{}, fmt.Errorf("%w: payment method %s is not available", model.ErrInvalidArgument, method)
	}

	var b model.Booking
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		b, err = payable(ctx, tx, bookingID)
		return err
	})
	if err != nil {
		return Initiated{}, err
	}

	txnRef := s.newID()
	redirect, err := gw.CreateRedirect(ctx, Checkout{
		BookingID:   b.ID,
		TxnRef:      txnRef,
		Amount:      b.Total(),
		Currency:    s.currency,
		Description: "Booking " + b.ID,
		ClientIP:    clientIP,
	})
	if err != nil {
		return Initiated{}, err
	}

	now := s.now()
	p := model.Payment{
		ID:          s.newID(),
		BookingID:   b.ID,
		Method:      method,
		Status:      model.PaymentPending,
		Amount:      b.Total(),
		Currency:    s.currency,
		TxnRef:      txnRef,
		ProviderRef: redirect.ProviderRef,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		// Re-check under lock: the booking may have moved while the gateway was called.
		cur, err := payable(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if cur.Total() != p.Amount {
			return fmt.Errorf("%w: booking total changed during initiation", model.ErrInvalidArgument)
		}
		if err := tx.Payments().Save(ctx, p); err != nil {
			return err
		}
		return appendPaymentEvent(ctx, tx, p, outbox.PaymentInitiated, nil)
	})
	if err != nil {
		return Initiated{}, err
	}
	s.logger.Info("payment initiated", "booking_id", b.ID, "payment_id", p.ID, "method", method, "amount", p.Amount)
	return Initiated{Payment: p, RedirectURL: redirect.URL, ExpiresAt: redirect.ExpiresAt}, nil
}

// payable locks the booking and checks that a new payment attempt may start.
func payable(ctx context.Context, tx store.Tx, bookingID string) (model.Booking, error) {
	b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if b.Status != model.BookingPending {
		return model.Booking{}, fmt.Errorf("%w: booking is %s", model.ErrInvalidStatusTransition, b.Status)
	}
	if b.Total() <= 0 {
		return model.Booking{}, fmt.Errorf("%w: booking total must be positive", model.ErrInvalidArgument)
	}
	attempts, err := tx.Payments().ByBooking(ctx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if prev, ok := settledAttempt(attempts); ok {
		return model.Booking{}, fmt.Errorf("%w: payment %s already captured", model.ErrPaymentAlreadySettled, prev.ID)
	}
	return b, nil
}

// settledAttempt returns the attempt holding the booking's money: a PAID one
// first, else one captured without a reservation.
func settledAttempt(attempts []model.Payment) (model.Payment, bool) {
	for _, p := range attempts {
		if p.Status == model.PaymentPaid {
			return p, true
		}
	}
	for _, p := range attempts {
		if p.Status == model.PaymentPending && p.CapturedAt != nil {
			return p, true
		}
	}
	return model.Payment{}, false
}

// ForBooking reports the booking's effective payment: the settled attempt
// if there is one, otherwise the latest.
func (s *Service) ForBooking(ctx context.Context, bookingID string) (model.Payment, error) {
	var attempts []model.Payment
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		attempts, err = tx.Payments().ByBooking(ctx, bookingID)
		return err
	})
	if err != nil {
		return model.Payment{}, err
	}
	if p, ok := settledAttempt(attempts); ok {
		return p, nil
	}
	if len(attempts) == 0 {
		return model.Payment{}, fmt.Errorf("%w: payment for booking %s", model.ErrNotFound, bookingID)
	}
	return attempts[0], nil
}

type CallbackResult struct {
	Payment model.Payment
	// Replayed is set when the verdict was already applied.
	Replayed bool
	// Conflict is set when money was captured but the reservation could not
	// be committed. The payment then stays PENDING with CapturedAt set.
	Conflict bool
	// Duplicate is set when the provider event was delivered before.
	Duplicate bool
}

// HandleCallback applies a gateway verdict to the payment identified by cb.TxnRef.
func (s *Service) HandleCallback(ctx context.Context, cb Callback) (CallbackResult, error) {
	return s.settle(ctx, cb, nil)
}

// recorder runs first inside every settlement transaction, so a provider
// event is only marked seen together with its effects.
type recorder func(ctx context.Context, tx store.Tx) error

// reservationConflict carries a commit failure out of the rolled back transaction.
type reservationConflict struct{ err error }

func (c *reservationConflict) Error() string { return c.err.Error() }
func (c *reservationConflict) Unwrap() error { return c.err }

func isCommitConflict(err error) bool {
	return errors.Is(err, model.ErrCapacityExceeded) ||
		errors.Is(err, model.ErrMissingAvailabilityConfig) ||
		errors.Is(err, model.ErrInvalidStatusTransition) ||
		errors.Is(err, model.ErrInvalidDateRange)
}

func (s *Service) settle(ctx context.Context, cb Callback, record recorder) (res CallbackResult, err error) {
	ctx, span := tracer.Start(ctx, "payment.settle")
	span.SetAttributes(attribute.String("payment.txn_ref", cb.TxnRef), attribute.Bool("payment.success", cb.Success))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if cb.TxnRef == "" {
		return CallbackResult{}, fmt.Errorf("%w: txn ref required", model.ErrInvalidArgument)
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if record != nil {
			if err := record(ctx, tx); err != nil {
				return err
			}
		}
		p, err := tx.Payments().ByTxnRefForUpdate(ctx, cb.TxnRef)
		if err != nil {
			return err
		}
		if p.Status == model.PaymentPaid && cb.Success {
			res = CallbackResult{Payment: p, Replayed: true}
			return nil
		}
		next, err := p.Status.Next(cb.Success)
		if err != nil {
			return err
		}
		if cb.Success && cb.Amount != 0 && (cb.Amount != p.Amount || !strings.EqualFold(cb.Currency, p.Currency)) {
			return &reservationConflict{err: fmt.Errorf("%w: captured %d %s, expected %d %s",
				model.ErrInvalidArgument, cb.Amount, cb.Currency, p.Amount, p.Currency)}
		}

		now := s.now()
		if cb.ProviderRef != "" {
			p.ProviderRef = cb.ProviderRef
		}
		p.UpdatedAt = now

		if !cb.Success {
			if p.CapturedAt != nil {
				return fmt.Errorf("%w: payment %s was captured", model.ErrPaymentAlreadySettled, p.ID)
			}
			p.Status = next
			p.FailedAt = &now
			p.LastError = cb.Reason
			if err := tx.Payments().Save(ctx, p); err != nil {
				return err
			}
			res = CallbackResult{Payment: p}
			return appendPaymentEvent(ctx, tx, p, outbox.PaymentFailed, map[string]any{"reason": cb.Reason})
		}

		b, err := tx.Bookings().GetForUpdate(ctx, p.BookingID)
		if err != nil {
			return err
		}
		attempts, err := tx.Payments().ByBooking(ctx, p.BookingID)
		if err != nil {
			return err
		}
		for _, other := range attempts {
			if other.ID != p.ID && other.Status == model.PaymentPaid {
				return &reservationConflict{err: fmt.Errorf("%w: booking %s already paid by payment %s",
					model.ErrPaymentAlreadySettled, b.ID, other.ID)}
			}
		}
		// A check-in may already have confirmed the booking and consumed its slots.
		confirming := b.Status != model.BookingConfirmed
		if confirming {
			if err := booking.Confirm(ctx, tx, &b, model.TriggerConfirm, now); err != nil {
				if isCommitConflict(err) {
					return &reservationConflict{err: err}
				}
				return err
			}
		}
		p.Status = next
		p.PaidAt = &now
		p.LastError = ""
		if err := tx.Payments().Save(ctx, p); err != nil {
			return err
		}
		if err := appendPaymentEvent(ctx, tx, p, outbox.PaymentSucceeded, nil); err != nil {
			return err
		}
		res = CallbackResult{Payment: p}
		if !confirming {
			return nil
		}
		return booking.AppendEvent(ctx, tx, b, outbox.BookingConfirmed, map[string]any{"payment_id": p.ID, "source": "payment"})
	})

	var conflict *reservationConflict
	switch {
	case errors.Is(err, store.ErrDuplicateProviderEvent):
		return s.duplicate(ctx, cb.TxnRef)
	case errors.As(err, &conflict):
		return s.recordConflict(ctx, cb, conflict.err, record)
	case err != nil:
		return CallbackResult{}, err
	}

	if !res.Replayed {
		s.logger.Info("payment settled", "txn_ref", cb.TxnRef, "booking_id", res.Payment.BookingID, "status", res.Payment.Status)
	}
	return res, nil
}

// recordConflict runs after the failed commit rolled back. The booking and
// payment stay PENDING; the capture is recorded for operator follow-up.
func (s *Service) recordConflict(ctx context.Context, cb Callback, cause error, record recorder) (CallbackResult, error) {
	var res CallbackResult
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if record != nil {
			if err := record(ctx, tx); err != nil {
				return err
			}
		}
		p, err := tx.Payments().ByTxnRefForUpdate(ctx, cb.TxnRef)
		if err != nil {
			return err
		}
		if p.Status != model.PaymentPending {
			// Settled concurrently; report what won.
			res = CallbackResult{Payment: p, Replayed: true}
			return nil
		}
		now := s.now()
		if p.CapturedAt == nil {
			p.CapturedAt = &now
		}
		if cb.ProviderRef != "" {
			p.ProviderRef = cb.ProviderRef
		}
		p.LastError = cause.Error()
		p.UpdatedAt = now
		if err := tx.Payments().Save(ctx, p); err != nil {
			return err
		}
		res = CallbackResult{Payment: p, Conflict: true}
		evt, err := outbox.NewEvent("booking", p.BookingID, outbox.BookingReservationConflict, map[string]any{
			"booking_id":   p.BookingID,
			"payment_id":   p.ID,
			"txn_ref":      p.TxnRef,
			"provider_ref": p.ProviderRef,
			"amount":       p.Amount,
			"currency":     p.Currency,
			"reason":       cause.Error(),
			"occurred_at":  now.Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		return tx.Events().Append(ctx, evt)
	})
	if errors.Is(err, store.ErrDuplicateProviderEvent) {
		return s.duplicate(ctx, cb.TxnRef)
	}
	if err != nil {
		return CallbackResult{}, err
	}
	if res.Conflict {
		s.logger.Warn("payment captured but reservation failed",
			"txn_ref", cb.TxnRef, "booking_id", res.Payment.BookingID, "err", cause)
	}
	return res, nil
}

func (s *Service) duplicate(ctx context.Context, txnRef string) (CallbackResult, error) {
	var p model.Payment
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		p, err = tx.Payments().ByTxnRefForUpdate(ctx, txnRef)
		return err
	})
	if err != nil {
		return CallbackResult{}, err
	}
	return CallbackResult{Payment: p, Duplicate: true, Replayed: true}, nil
}

// HandleHostedReturn verifies and applies the hosted gateway's return query.
// A repeated return for the same verdict is reported as a duplicate.
func (s *Service) HandleHostedReturn(ctx context.Context, query url.Values) (CallbackResult, error) {
	if s.hosted == nil {
		return CallbackResult{}, fmt.Errorf("%w: hosted gateway is not configured", model.ErrNotFound)
	}
	cb, err := s.hosted.VerifyReturn(query)
	if err != nil {
		return CallbackResult{}, err
	}
	eventID := cb.TxnRef + "/" + query.Get(paramResponseCode)
	payload := map[string]string{}
	for k := range query {
		payload[k] = query.Get(k)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return CallbackResult{}, err
	}
	return s.settle(ctx, cb, func(ctx context.Context, tx store.Tx) error {
		return tx.ProviderEvents().Record(ctx, providerHosted, eventID, "return", body)
	})
}

type WebhookResult struct {
	EventID  string
	Type     string
	Ignored  bool
	Callback CallbackResult
}

// HandleStripeWebhook verifies, de-duplicates and applies a Stripe delivery.
func (s *Service) HandleStripeWebhook(ctx context.Context, body []byte, sigHeader string) (WebhookResult, error) {
	if s.stripe == nil {
		return WebhookResult{}, fmt.Errorf("%w: stripe gateway is not configured", model.ErrNotFound)
	}
	evt, err := s.stripe.ParseWebhook(body, sigHeader)
	if err != nil {
		return WebhookResult{}, err
	}
	out := WebhookResult{EventID: evt.ID, Type: evt.Type}
	record := func(ctx context.Context, tx store.Tx) error {
		return tx.ProviderEvents().Record(ctx, providerStripe, evt.ID, evt.Type, body)
	}

	if !evt.Settles {
		err := s.store.WithTx(ctx, record)
		if err != nil && !errors.Is(err, store.ErrDuplicateProviderEvent) {
			return WebhookResult{}, err
		}
		out.Ignored = true
		s.logger.Info("stripe event ignored", "provider_event_id", evt.ID, "event_type", evt.Type)
		return out, nil
	}

	res, err := s.settle(ctx, evt.Callback, record)
	if err != nil {
		return WebhookResult{}, err
	}
	out.Callback = res
	if res.Duplicate {
		s.logger.Info("stripe event duplicate ignored", "provider_event_id", evt.ID, "event_type", evt.Type)
	}
	return out, nil
}

func appendPaymentEvent(ctx context.Context, tx store.Tx, p model.Payment, eventType string, extra map[string]any) error {
	payload := map[string]any{
		"payment_id":  p.ID,
		"booking_id":  p.BookingID,
		"method":      p.Method,
		"status":      p.Status,
		"amount":      p.Amount,
		"currency":    p.Currency,
		"txn_ref":     p.TxnRef,
		"occurred_at": p.UpdatedAt.UTC().Format(time.RFC3339),
	}
	for k, v := range extra {
		payload[k] = v
	}
	evt, err := outbox.NewEvent("payment", p.ID, eventType, payload)
	if err != nil {
		return err
	}
	return tx.Events().Append(ctx, evt)
}
