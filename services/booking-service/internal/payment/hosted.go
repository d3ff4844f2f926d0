package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/model"
)

const (
	hostedTimeLayout   = "20060102150405"
	hostedSuccessCode  = "00"
	paramSecureHash    = "secure_hash"
	paramTxnRef        = "txn_ref"
	paramResponseCode  = "response_code"
	paramTransactionNo = "transaction_no"
	paramAmount        = "amount"
	paramCurrency      = "currency"
)

type HostedConfig struct {
	BaseURL      string
	MerchantCode string
	Secret       string
	ReturnURL    string
	TTL          time.Duration
}

// HostedGateway redirects to a payment page that authenticates the request
// and its return with a shared-secret HMAC-SHA512 over the sorted query.
type HostedGateway struct {
	cfg HostedConfig
	now func() time.Time
}

func NewHostedGateway(cfg HostedConfig) *HostedGateway {
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Minute
	}
	return &HostedGateway{cfg: cfg, now: time.Now}
}

func (g *HostedGateway) Method() model.PaymentMethod { return model.MethodHosted }

func (g *HostedGateway) CreateRedirect(_ context.Context, c Checkout) (Redirect, error) {
	base, err := url.Parse(g.cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return Redirect{}, fmt.Errorf("hosted gateway base url %q is invalid", g.cfg.BaseURL)
	}
	created := g.now().UTC()
	expires := created.Add(g.cfg.TTL)

	params := url.Values{}
	params.Set("merchant", g.cfg.MerchantCode)
	params.Set(paramAmount, strconv.FormatInt(c.Amount, 10))
	params.Set(paramCurrency, strings.ToUpper(c.Currency))
	params.Set(paramTxnRef, c.TxnRef)
	params.Set("order_info", c.Description)
	params.Set("return_url", g.cfg.ReturnURL)
	params.Set("create_date", created.Format(hostedTimeLayout))
	params.Set("expire_date", expires.Format(hostedTimeLayout))
	if c.ClientIP != "" {
		params.Set("ip_addr", c.ClientIP)
	}
	params.Set(paramSecureHash, Sign(g.cfg.Secret, params))

	base.RawQuery = params.Encode()
	return Redirect{URL: base.String(), ExpiresAt: expires}, nil
}

// VerifyReturn authenticates the gateway's return query and maps the
// response code to a callback.
func (g *HostedGateway) VerifyReturn(query url.Values) (Callback, error) {
	got, err := hex.DecodeString(query.Get(paramSecureHash))
	if err != nil || len(got) == 0 {
		return Callback{}, fmt.Errorf("%w: missing or malformed %s", ErrInvalidSignature, paramSecureHash)
	}
	want, _ := hex.DecodeString(Sign(g.cfg.Secret, query))
	if !hmac.Equal(got, want) {
		return Callback{}, ErrInvalidSignature
	}

	txnRef := query.Get(paramTxnRef)
	if txnRef == "" {
		return Callback{}, fmt.Errorf("%w: %s required", model.ErrInvalidArgument, paramTxnRef)
	}
	code := query.Get(paramResponseCode)
	cb := Callback{
		TxnRef:      txnRef,
		Success:     code == hostedSuccessCode,
		ProviderRef: query.Get(paramTransactionNo),
	}
	if !cb.Success {
		cb.Reason = "gateway response code " + code
		return cb, nil
	}
	amount, err := strconv.ParseInt(query.Get(paramAmount), 10, 64)
	if err != nil || amount <= 0 {
		return Callback{}, fmt.Errorf("%w: %s must be a positive integer", model.ErrInvalidArgument, paramAmount)
	}
	cb.Amount = amount
	cb.Currency = strings.ToUpper(query.Get(paramCurrency))
	if cb.Currency == "" {
		return Callback{}, fmt.Errorf("%w: %s required", model.ErrInvalidArgument, paramCurrency)
	}
	return cb, nil
}

// Sign returns the hex HMAC-SHA512 of params in sorted, URL-encoded form.
// secure_hash itself is never part of the signed data.
func Sign(secret string, params url.Values) string {
	signed := url.Values{}
	for k, v := range params {
		if k == paramSecureHash || len(v) == 0 || v[0] == "" {
			continue
		}
		signed[k] = v[:1]
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(signed.Encode()))
	return hex.EncodeToString(mac.Sum(nil))
}
