package payment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/memstore"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/outbox"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const (
	hostedSecret  = "hosted-secret"
	webhookSecret = "whsec_test"
)

type fixture struct {
	ctx      context.Context
	st       *memstore.Store
	bookings *booking.Service
	payments *Service
	hosted   *HostedGateway
	sessions []*stripe.CheckoutSessionParams
}

func newFixture(t *testing.T, slots int) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{ctx: context.Background(), st: memstore.New()}
	f.bookings = booking.NewService(f.st, logger)
	f.hosted = NewHostedGateway(HostedConfig{
		BaseURL:      "https://pay.example.test/checkout",
		MerchantCode: "CAMP01",
		Secret:       hostedSecret,
		ReturnURL:    "https://camp.example.test/api/v1/payments/return",
	})
	sg := NewStripeGateway(StripeConfig{
		SecretKey:     "sk_test",
		WebhookSecret: webhookSecret,
		SuccessURL:    "https://camp.example.test/paid",
		CancelURL:     "https://camp.example.test/cancelled",
	})
	sg.create = func(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		f.sessions = append(f.sessions, p)
		id := "cs_test_" + *p.ClientReferenceID
		return &stripe.CheckoutSession{ID: id, URL: "https://checkout.stripe.test/" + id}, nil
	}
	f.payments = NewService(f.st, logger, "usd", f.hosted, sg)

	if _, err := f.bookings.UpsertService(f.ctx, model.Service{
		ID: "pitch", Name: "Pitch", Price: 2500, MinDays: 1, MaxDays: 5, MinCapacity: 1, MaxCapacity: 4,
	}); err != nil {
		t.Fatalf("upsert service: %v", err)
	}
	if _, err := f.bookings.ProvisionAvailability(f.ctx, "pitch", day(1), day(10), slots); err != nil {
		t.Fatalf("provision: %v", err)
	}
	return f
}

func day(d int) time.Time {
	return time.Date(2026, 10, d, 0, 0, 0, 0, time.UTC)
}

func (f *fixture) compose(t *testing.T) model.Booking {
	t.Helper()
	b, err := f.bookings.Compose(f.ctx, "cust", []booking.ItemRequest{{
		Type: model.ItemService, CatalogID: "pitch", CheckIn: day(2), CheckOut: day(4), People: 2,
	}})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	return b
}

func (f *fixture) initiate(t *testing.T, bookingID string, method model.PaymentMethod) Initiated {
	t.Helper()
	got, err := f.payments.Initiate(f.ctx, bookingID, method, "203.0.113.9")
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	return got
}

func (f *fixture) booked(t *testing.T, d time.Time) int {
	t.Helper()
	rec, ok := f.st.Slot("pitch", d)
	if !ok {
		t.Fatalf("no availability on %s", d.Format(time.DateOnly))
	}
	return rec.BookedSlots
}

func (f *fixture) status(t *testing.T, bookingID string) model.BookingStatus {
	t.Helper()
	b, err := f.bookings.Get(f.ctx, bookingID)
	if err != nil {
		t.Fatalf("get booking: %v", err)
	}
	return b.Status
}

func (f *fixture) hasEvent(eventType string) bool {
	return slices.ContainsFunc(f.st.Events(), func(e outbox.Event) bool { return e.EventType == eventType })
}

func TestHostedSignatureRoundTripAndTamper(t *testing.T) {
	f := newFixture(t, 1)
	b := f.compose(t)
	init := f.initiate(t, b.ID, model.MethodHosted)

	u, err := url.Parse(init.RedirectURL)
	if err != nil {
		t.Fatalf("parse redirect: %v", err)
	}
	q := u.Query()
	if q.Get("amount") != "5000" || q.Get("currency") != "USD" || q.Get("txn_ref") != init.Payment.TxnRef {
		t.Fatalf("unexpected redirect query: %s", u.RawQuery)
	}
	if q.Get(paramSecureHash) != Sign(hostedSecret, q) {
		t.Fatal("redirect must carry a valid secure_hash")
	}
	if got := init.ExpiresAt.Sub(time.Now()); got <= 14*time.Minute || got > 15*time.Minute {
		t.Fatalf("expected 15 minute expiry, got %s", got)
	}

	ret := url.Values{}
	ret.Set(paramTxnRef, init.Payment.TxnRef)
	ret.Set(paramResponseCode, "00")
	ret.Set("amount", "5000")
	ret.Set("currency", "usd")
	ret.Set(paramSecureHash, Sign(hostedSecret, ret))
	cb, err := f.hosted.VerifyReturn(ret)
	if err != nil || !cb.Success || cb.Amount != 5000 || cb.Currency != "USD" {
		t.Fatalf("expected verified success, got %+v %v", cb, err)
	}

	noAmount := url.Values{}
	noAmount.Set(paramTxnRef, init.Payment.TxnRef)
	noAmount.Set(paramResponseCode, "00")
	noAmount.Set(paramSecureHash, Sign(hostedSecret, noAmount))
	if _, err := f.hosted.VerifyReturn(noAmount); !errors.Is(err, model.ErrInvalidArgument) {
		t.Fatalf("success without amount should be rejected, got %v", err)
	}

	tampered := url.Values{}
	for k, v := range ret {
		tampered[k] = slices.Clone(v)
	}
	tampered.Set("amount", "1")
	if _, err := f.hosted.VerifyReturn(tampered); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for tampered amount, got %v", err)
	}
	wrongKey := url.Values{}
	for k, v := range ret {
		wrongKey[k] = slices.Clone(v)
	}
	wrongKey.Set(paramSecureHash, Sign("other-secret", ret))
	if _, err := f.hosted.VerifyReturn(wrongKey); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for wrong key, got %v", err)
	}
}

func TestSuccessCallbackConfirmsAndReplayIsNoop(t *testing.T) {
	f := newFixture(t, 1)
	b := f.compose(t)
	init := f.initiate(t, b.ID, model.MethodHosted)

	res, err := f.payments.HandleCallback(f.ctx, Callback{TxnRef: init.Payment.TxnRef, Success: true, ProviderRef: "T-1"})
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if res.Replayed || res.Conflict || res.Payment.Status != model.PaymentPaid || res.Payment.PaidAt == nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if f.status(t, b.ID) != model.BookingConfirmed {
		t.Fatal("booking must be CONFIRMED after payment")
	}
	if f.booked(t, day(2)) != 1 || f.booked(t, day(3)) != 1 || f.booked(t, day(4)) != 0 {
		t.Fatal("payment must reserve exactly the stay")
	}
	if !f.hasEvent(outbox.PaymentSucceeded) || !f.hasEvent(outbox.BookingConfirmed) {
		t.Fatal("expected payment.succeeded and booking.confirmed events")
	}

	events := len(f.st.Events())
	again, err := f.payments.HandleCallback(f.ctx, Callback{TxnRef: init.Payment.TxnRef, Success: true})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !again.Replayed {
		t.Fatal("expected replay to be reported")
	}
	if f.booked(t, day(2)) != 1 || len(f.st.Events()) != events {
		t.Fatal("replay must not change ledger or emit events")
	}

	if _, err := f.payments.HandleCallback(f.ctx, Callback{TxnRef: init.Payment.TxnRef, Success: false}); !errors.Is(err, model.ErrPaymentAlreadySettled) {
		t.Fatalf("failure after PAID should be rejected, got %v", err)
	}
	if _, err := f.payments.Initiate(f.ctx, b.ID, model.MethodHosted, ""); !errors.Is(err, model.ErrInvalidStatusTransition) {
		t.Fatalf("confirmed booking cannot start a new payment, got %v", err)
	}
}

func TestFailureCallbackThenReinitiate(t *testing.T) {
	f := newFixture(t, 1)
	b := f.compose(t)
	first := f.initiate(t, b.ID, model.MethodHosted)

	res, err := f.payments.HandleCallback(f.ctx, Callback{TxnRef: first.Payment.TxnRef, Success: false, Reason: "declined"})
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if res.Payment.Status != model.PaymentFailed || res.Payment.LastError != "declined" {
		t.Fatalf("unexpected payment: %+v", res.Payment)
	}
	if f.status(t, b.ID) != model.BookingPending || f.booked(t, day(2)) != 0 {
		t.Fatal("failed payment must leave booking PENDING and ledger untouched")
	}
	if _, err := f.payments.HandleCallback(f.ctx, Callback{TxnRef: first.Payment.TxnRef, Success: true}); !errors.Is(err, model.ErrPaymentAlreadySettled) {
		t.Fatalf("success after FAILED should be rejected, got %v", err)
	}

	second := f.initiate(t, b.ID, model.MethodHosted)
	if second.Payment.TxnRef == first.Payment.TxnRef {
		t.Fatal("re-initiation must issue a fresh txn ref")
	}
	if _, err := f.payments.HandleCallback(f.ctx, Callback{TxnRef: first.Payment.TxnRef, Success: true}); !errors.Is(err, model.ErrPaymentAlreadySettled) {
		t.Fatalf("failed attempt stays failed after re-initiation, got %v", err)
	}
	if _, err := f.payments.HandleCallback(f.ctx, Callback{TxnRef: second.Payment.TxnRef, Success: true}); err != nil {
		t.Fatalf("callback: %v", err)
	}
	if f.status(t, b.ID) != model.BookingConfirmed {
		t.Fatal("expected CONFIRMED")
	}
}

func TestSupersededAttemptCaptureIsKept(t *testing.T) {
	f := newFixture(t, 1)
	b := f.compose(t)
	first := f.initiate(t, b.ID, model.MethodHosted)
	second := f.initiate(t, b.ID, model.MethodHosted)
	if first.Payment.ID == second.Payment.ID || first.Payment.TxnRef == second.Payment.TxnRef {
		t.Fatal("each initiation must be its own attempt")
	}

	res, err := f.payments.HandleCallback(f.ctx, Callback{TxnRef: first.Payment.TxnRef, Success: true, ProviderRef: "T-1"})
	if err != nil {
		t.Fatalf("callback on earlier attempt: %v", err)
	}
	if res.Payment.Status != model.PaymentPaid || res.Payment.ID != first.Payment.ID {
		t.Fatalf("expected earlier attempt PAID, got %+v", res.Payment)
	}
	if f.status(t, b.ID) != model.BookingConfirmed || f.booked(t, day(2)) != 1 {
		t.Fatal("capture on earlier attempt must confirm the booking")
	}
	current, err := f.payments.ForBooking(f.ctx, b.ID)
	if err != nil {
		t.Fatalf("for booking: %v", err)
	}
	if current.ID != first.Payment.ID || current.Status != model.PaymentPaid {
		t.Fatalf("booking should report the paid attempt, got %+v", current)
	}

	res, err = f.payments.HandleCallback(f.ctx, Callback{TxnRef: second.Payment.TxnRef, Success: true, ProviderRef: "T-2"})
	if err != nil {
		t.Fatalf("callback on later attempt: %v", err)
	}
	if !res.Conflict || res.Payment.CapturedAt == nil || res.Payment.Status != model.PaymentPending {
		t.Fatalf("double capture must be recorded as conflict, got %+v", res)
	}
	if f.booked(t, day(2)) != 1 {
		t.Fatal("double capture must not reserve twice")
	}
	if !f.hasEvent(outbox.BookingReservationConflict) {
		t.Fatal("expected booking.reservation_conflict event")
	}
}

func TestCapturedPaymentWithoutCapacityIsRecordedAsConflict(t *testing.T) {
	f := newFixture(t, 1)
	winner := f.compose(t)
	loser := f.compose(t)
	w := f.initiate(t, winner.ID, model.MethodHosted)
	l := f.initiate(t, loser.ID, model.MethodHosted)

	if _, err := f.payments.HandleCallback(f.ctx, Callback{TxnRef: w.Payment.TxnRef, Success: true}); err != nil {
		t.Fatalf("winner callback: %v", err)
	}
	res, err := f.payments.HandleCallback(f.ctx, Callback{TxnRef: l.Payment.TxnRef, Success: true, ProviderRef: "T-2"})
	if err != nil {
		t.Fatalf("loser callback: %v", err)
	}
	if !res.Conflict {
		t.Fatalf("expected conflict, got %+v", res)
	}
	if res.Payment.Status != model.PaymentPending || res.Payment.CapturedAt == nil || res.Payment.LastError == "" {
		t.Fatalf("payment must stay PENDING with capture recorded, got %+v", res.Payment)
	}
	if f.status(t, loser.ID) != model.BookingPending {
		t.Fatal("loser booking must stay PENDING")
	}
	if f.booked(t, day(2)) != 1 {
		t.Fatal("ledger must not be oversold")
	}
	if !f.hasEvent(outbox.BookingReservationConflict) {
		t.Fatal("expected booking.reservation_conflict event")
	}
	if _, err := f.payments.Initiate(f.ctx, loser.ID, model.MethodHosted, ""); !errors.Is(err, model.ErrPaymentAlreadySettled) {
		t.Fatalf("captured payment blocks re-initiation, got %v", err)
	}
	if _, err := f.payments.HandleCallback(f.ctx, Callback{TxnRef: l.Payment.TxnRef, Success: false}); !errors.Is(err, model.ErrPaymentAlreadySettled) {
		t.Fatalf("captured payment cannot fail, got %v", err)
	}
}

func TestSuccessAfterCancelIsConflict(t *testing.T) {
	f := newFixture(t, 1)
	b := f.compose(t)
	init := f.initiate(t, b.ID, model.MethodHosted)
	if _, err := f.bookings.Cancel(f.ctx, b.ID, "changed mind"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	res, err := f.payments.HandleCallback(f.ctx, Callback{TxnRef: init.Payment.TxnRef, Success: true})
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if !res.Conflict || f.booked(t, day(2)) != 0 {
		t.Fatalf("expected conflict without reservation, got %+v", res)
	}
}

func TestInitiateRejects(t *testing.T) {
	f := newFixture(t, 1)
	b := f.compose(t)
	if _, err := f.payments.Initiate(f.ctx, "missing", model.MethodHosted, ""); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	noStripe := NewService(f.st, slog.New(slog.NewTextHandler(io.Discard, nil)), "usd", f.hosted, nil)
	if _, err := noStripe.Initiate(f.ctx, b.ID, model.MethodStripe, ""); !errors.Is(err, model.ErrInvalidArgument) {
		t.Fatalf("expected unconfigured method to be rejected, got %v", err)
	}

	if _, err := f.bookings.UpsertCombo(f.ctx, model.Combo{ID: "free", Name: "Welcome pack", Price: 0}); err != nil {
		t.Fatalf("upsert combo: %v", err)
	}
	free, err := f.bookings.Compose(f.ctx, "cust", []booking.ItemRequest{{Type: model.ItemCombo, CatalogID: "free", Quantity: 1}})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if _, err := f.payments.Initiate(f.ctx, free.ID, model.MethodHosted, ""); !errors.Is(err, model.ErrInvalidArgument) {
		t.Fatalf("zero total should be rejected, got %v", err)
	}
}

func TestHostedReturnAmountMismatchIsConflict(t *testing.T) {
	f := newFixture(t, 1)
	b := f.compose(t)
	init := f.initiate(t, b.ID, model.MethodHosted)

	ret := url.Values{}
	ret.Set(paramTxnRef, init.Payment.TxnRef)
	ret.Set(paramResponseCode, "00")
	ret.Set(paramTransactionNo, "T-7")
	ret.Set(paramAmount, "4999")
	ret.Set(paramCurrency, "USD")
	ret.Set(paramSecureHash, Sign(hostedSecret, ret))

	res, err := f.payments.HandleHostedReturn(f.ctx, ret)
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if !res.Conflict || res.Payment.CapturedAt == nil || !strings.Contains(res.Payment.LastError, "4999") {
		t.Fatalf("short capture must be recorded as conflict, got %+v", res)
	}
	if f.status(t, b.ID) != model.BookingPending || f.booked(t, day(2)) != 0 {
		t.Fatal("short capture must not confirm the booking")
	}

	other := f.compose(t)
	next := f.initiate(t, other.ID, model.MethodHosted)
	if _, err := f.payments.HandleCallback(f.ctx, Callback{
		TxnRef: next.Payment.TxnRef, Success: true, Amount: next.Payment.Amount, Currency: "EUR",
	}); err != nil {
		t.Fatalf("callback: %v", err)
	}
	if f.status(t, other.ID) != model.BookingPending {
		t.Fatal("currency mismatch must not confirm the booking")
	}
}

func TestHostedReturnDeduplicates(t *testing.T) {
	f := newFixture(t, 1)
	b := f.compose(t)
	init := f.initiate(t, b.ID, model.MethodHosted)

	ret := url.Values{}
	ret.Set(paramTxnRef, init.Payment.TxnRef)
	ret.Set(paramResponseCode, "24")
	ret.Set(paramTransactionNo, "T-9")
	ret.Set(paramSecureHash, Sign(hostedSecret, ret))

	res, err := f.payments.HandleHostedReturn(f.ctx, ret)
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if res.Payment.Status != model.PaymentFailed {
		t.Fatalf("response code 24 must fail the payment, got %s", res.Payment.Status)
	}
	again, err := f.payments.HandleHostedReturn(f.ctx, ret)
	if err != nil {
		t.Fatalf("repeated return: %v", err)
	}
	if !again.Duplicate || again.Payment.Status != model.PaymentFailed {
		t.Fatalf("expected duplicate report, got %+v", again)
	}

	ret.Set(paramSecureHash, strings.Repeat("ab", 64))
	if _, err := f.payments.HandleHostedReturn(f.ctx, ret); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func stripeEvent(t *testing.T, id, typ, txnRef, paymentStatus string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        typ,
		"api_version": stripe.APIVersion,
		"created":     time.Now().Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id":                  "cs_test_" + txnRef,
				"object":              "checkout.session",
				"payment_status":      paymentStatus,
				"client_reference_id": txnRef,
				"metadata":            map[string]string{"txn_ref": txnRef},
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return body
}

func sign(body []byte, secret string) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	}).Header
}

func TestStripeCheckoutAndWebhook(t *testing.T) {
	f := newFixture(t, 1)
	b := f.compose(t)
	init := f.initiate(t, b.ID, model.MethodStripe)

	if len(f.sessions) != 1 {
		t.Fatalf("expected one checkout session, got %d", len(f.sessions))
	}
	p := f.sessions[0]
	if *p.Mode != string(stripe.CheckoutSessionModePayment) || *p.LineItems[0].PriceData.UnitAmount != 5000 ||
		*p.LineItems[0].PriceData.Currency != "usd" || p.Metadata["booking_id"] != b.ID {
		t.Fatalf("unexpected checkout params: %+v", p)
	}
	if !strings.HasPrefix(init.RedirectURL, "https://checkout.stripe.test/") || init.Payment.ProviderRef == "" {
		t.Fatalf("unexpected initiation: %+v", init)
	}

	body := stripeEvent(t, "evt_1", "checkout.session.completed", init.Payment.TxnRef, "paid")
	if _, err := f.payments.HandleStripeWebhook(f.ctx, body, sign(body, "whsec_wrong")); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	res, err := f.payments.HandleStripeWebhook(f.ctx, body, sign(body, webhookSecret))
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if res.Ignored || res.Callback.Payment.Status != model.PaymentPaid {
		t.Fatalf("unexpected webhook result: %+v", res)
	}
	if f.status(t, b.ID) != model.BookingConfirmed || f.booked(t, day(2)) != 1 {
		t.Fatal("webhook must confirm the booking")
	}

	dup, err := f.payments.HandleStripeWebhook(f.ctx, body, sign(body, webhookSecret))
	if err != nil {
		t.Fatalf("duplicate webhook: %v", err)
	}
	if !dup.Callback.Duplicate {
		t.Fatalf("expected duplicate, got %+v", dup)
	}

	other := stripeEvent(t, "evt_2", "customer.created", init.Payment.TxnRef, "")
	ignored, err := f.payments.HandleStripeWebhook(f.ctx, other, sign(other, webhookSecret))
	if err != nil {
		t.Fatalf("ignored webhook: %v", err)
	}
	if !ignored.Ignored {
		t.Fatalf("expected unrelated event to be ignored, got %+v", ignored)
	}
}

func TestStripeUnpaidCompletionWaitsForAsyncResult(t *testing.T) {
	f := newFixture(t, 1)
	b := f.compose(t)
	init := f.initiate(t, b.ID, model.MethodStripe)

	pending := stripeEvent(t, "evt_a", "checkout.session.completed", init.Payment.TxnRef, "unpaid")
	res, err := f.payments.HandleStripeWebhook(f.ctx, pending, sign(pending, webhookSecret))
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if !res.Ignored || f.status(t, b.ID) != model.BookingPending {
		t.Fatalf("unpaid completion must not settle, got %+v", res)
	}

	failed := stripeEvent(t, "evt_b", "checkout.session.async_payment_failed", init.Payment.TxnRef, "unpaid")
	res, err = f.payments.HandleStripeWebhook(f.ctx, failed, sign(failed, webhookSecret))
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if res.Callback.Payment.Status != model.PaymentFailed {
		t.Fatalf("expected FAILED, got %+v", res.Callback.Payment)
	}
}

func TestStripeCheckoutCircuitOpensOnProviderFailures(t *testing.T) {
	sg := NewStripeGateway(StripeConfig{
		SecretKey:       "sk_test",
		WebhookSecret:   webhookSecret,
		BreakerFailures: 2,
		BreakerCooldown: time.Hour,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	calls := 0
	fail := errors.New("connection reset by peer")
	sg.create = func(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		calls++
		return nil, fail
	}
	checkout := Checkout{BookingID: "b1", TxnRef: "t1", Amount: 100, Currency: "usd", Description: "Booking b1"}

	for i := 0; i < 2; i++ {
		if _, err := sg.CreateRedirect(context.Background(), checkout); !errors.Is(err, fail) {
			t.Fatalf("attempt %d: expected provider error, got %v", i, err)
		}
	}
	if _, err := sg.CreateRedirect(context.Background(), checkout); !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable once the circuit opens, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("open circuit must not call stripe, got %d calls", calls)
	}
}

func TestStripeRejectedRequestsKeepCircuitClosed(t *testing.T) {
	sg := NewStripeGateway(StripeConfig{SecretKey: "sk_test", WebhookSecret: webhookSecret, BreakerFailures: 1})
	rejected := &stripe.Error{HTTPStatusCode: 400, Msg: "invalid currency"}
	sg.create = func(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		return nil, rejected
	}
	checkout := Checkout{BookingID: "b1", TxnRef: "t1", Amount: 100, Currency: "usd"}
	for i := 0; i < 3; i++ {
		_, err := sg.CreateRedirect(context.Background(), checkout)
		if errors.Is(err, ErrGatewayUnavailable) || !errors.Is(err, rejected) {
			t.Fatalf("attempt %d: rejected request must pass through, got %v", i, err)
		}
	}
}
