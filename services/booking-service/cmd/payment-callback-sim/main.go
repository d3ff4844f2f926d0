// Command payment-callback-sim replays a provider callback against a running
// booking service: a Stripe-signed webhook or a signed hosted-gateway return.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/payment"
	"github.com/stripe/stripe-go/v79/webhook"
)

func main() {
	var (
		baseURL  = flag.String("base-url", getenv("BASE_URL", "http://localhost:8083"), "booking service base url")
		provider = flag.String("provider", getenv("PROVIDER", "stripe"), "stripe | hosted")
		txnRef   = flag.String("txn-ref", getenv("TXN_REF", ""), "payment txn_ref")
		booking  = flag.String("booking-id", getenv("BOOKING_ID", ""), "booking_id metadata (stripe)")
		evtType  = flag.String("type", getenv("STRIPE_EVENT_TYPE", "checkout.session.completed"), "stripe event type")
		code     = flag.String("response-code", getenv("RESPONSE_CODE", "00"), "hosted response code (00 = success)")
		secret   = flag.String("secret", getenv("CALLBACK_SECRET", ""), "stripe webhook secret (whsec_...) or hosted signing secret")
		amount   = flag.Int64("amount", 0, "hosted charged amount in minor units")
		currency = flag.String("currency", getenv("CURRENCY", "USD"), "hosted charged currency")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("CALLBACK_SECRET is required")
	}
	if strings.TrimSpace(*txnRef) == "" {
		fatal("TXN_REF is required")
	}
	base := strings.TrimRight(*baseURL, "/")

	var (
		req *http.Request
		err error
	)
	switch *provider {
	case "stripe":
		req, err = stripeRequest(base, *evtType, *txnRef, *booking, *secret)
	case "hosted":
		req, err = hostedRequest(base, *txnRef, *code, *amount, *currency, *secret)
	default:
		err = fmt.Errorf("unsupported provider: %s", *provider)
	}
	if err != nil {
		fatal(err.Error())
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("status=%d body=%s\n", resp.StatusCode, strings.TrimSpace(string(body)))
}

func stripeRequest(base, eventType, txnRef, bookingID, secret string) (*http.Request, error) {
	now := time.Now().UTC()
	payload, err := buildEventJSON(fmt.Sprintf("evt_sim_%d", now.UnixNano()), eventType, now, txnRef, bookingID)
	if err != nil {
		return nil, err
	}
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: now,
		Scheme:    "v1",
	})

	req, err := http.NewRequest(http.MethodPost, base+"/api/v1/payments/webhooks/stripe", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)
	return req, nil
}

func buildEventJSON(eventID, eventType string, t time.Time, txnRef, bookingID string) ([]byte, error) {
	paymentStatus := "paid"
	switch eventType {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
	case "checkout.session.async_payment_failed", "checkout.session.expired":
		paymentStatus = "unpaid"
	default:
		return nil, fmt.Errorf("unsupported event type: %s", eventType)
	}
	return json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"created":     t.Unix(),
		"type":        eventType,
		"api_version": "2024-06-20",
		"data": map[string]any{
			"object": map[string]any{
				"id":                  "cs_sim_" + txnRef,
				"object":              "checkout.session",
				"client_reference_id": txnRef,
				"payment_status":      paymentStatus,
				"metadata": map[string]any{
					"booking_id": bookingID,
					"txn_ref":    txnRef,
				},
			},
		},
	})
}

func hostedRequest(base, txnRef, code string, amount int64, currency, secret string) (*http.Request, error) {
	if code == "00" && amount <= 0 {
		return nil, fmt.Errorf("-amount is required for a successful hosted return")
	}
	q := url.Values{}
	q.Set("txn_ref", txnRef)
	q.Set("response_code", code)
	if amount > 0 {
		q.Set("amount", strconv.FormatInt(amount, 10))
		q.Set("currency", strings.ToUpper(currency))
	}
	q.Set("transaction_no", fmt.Sprintf("SIM%d", time.Now().Unix()))
	q.Set("secure_hash", payment.Sign(secret, q))
	return http.NewRequest(http.MethodGet, base+"/api/v1/payments/return?"+q.Encode(), nil)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
