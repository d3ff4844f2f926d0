package handlers

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/camprent/libs/httpx"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/payment"
)

const maxWebhookBody = 1 << 20

type paymentResponse struct {
	ID          string `json:"id"`
	BookingID   string `json:"booking_id"`
	Method      string `json:"method"`
	Status      string `json:"status"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	TxnRef      string `json:"txn_ref"`
	ProviderRef string `json:"provider_ref,omitempty"`
	CapturedAt  string `json:"captured_at,omitempty"`
	LastError   string `json:"last_error,omitempty"`
	PaidAt      string `json:"paid_at,omitempty"`
	FailedAt    string `json:"failed_at,omitempty"`
}

func toPaymentResponse(p model.Payment) paymentResponse {
	return paymentResponse{
		ID:          p.ID,
		BookingID:   p.BookingID,
		Method:      string(p.Method),
		Status:      string(p.Status),
		Amount:      p.Amount,
		Currency:    p.Currency,
		TxnRef:      p.TxnRef,
		ProviderRef: p.ProviderRef,
		CapturedAt:  formatTime(p.CapturedAt),
		LastError:   p.LastError,
		PaidAt:      formatTime(p.PaidAt),
		FailedAt:    formatTime(p.FailedAt),
	}
}

type initiatePaymentRequest struct {
	BookingID string `json:"booking_id" validate:"required"`
	Method    string `json:"method" validate:"required"`
}

type initiatePaymentResponse struct {
	Payment     paymentResponse `json:"payment"`
	RedirectURL string          `json:"redirect_url"`
	ExpiresAt   string          `json:"expires_at"`
}

func (h *Handler) initiatePayment(w http.ResponseWriter, r *http.Request) {
	var req initiatePaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	method, err := model.ParsePaymentMethod(strings.ToUpper(req.Method))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	b, ok := h.owned(w, r, req.BookingID)
	if !ok {
		return
	}
	out, err := h.payments.Initiate(r.Context(), b.ID, method, httpx.ClientIP(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, initiatePaymentResponse{
		Payment:     toPaymentResponse(out.Payment),
		RedirectURL: out.RedirectURL,
		ExpiresAt:   out.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

type callbackResponse struct {
	Status    string          `json:"status"`
	Payment   paymentResponse `json:"payment"`
	Conflict  bool            `json:"conflict,omitempty"`
	Duplicate bool            `json:"duplicate,omitempty"`
}

func callbackStatus(res payment.CallbackResult) string {
	switch {
	case res.Duplicate:
		return "duplicate"
	case res.Conflict:
		return "conflict"
	case res.Replayed:
		return "replayed"
	}
	return "processed"
}

func (h *Handler) hostedReturn(w http.ResponseWriter, r *http.Request) {
	res, err := h.payments.HandleHostedReturn(r.Context(), r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, callbackResponse{
		Status:    callbackStatus(res),
		Payment:   toPaymentResponse(res.Payment),
		Conflict:  res.Conflict,
		Duplicate: res.Duplicate,
	})
}

func (h *Handler) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	sig := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sig) == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "missing Stripe-Signature header")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "failed to read request body")
		return
	}

	res, err := h.payments.HandleStripeWebhook(r.Context(), body, sig)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := "ignored"
	if !res.Ignored {
		status = callbackStatus(res.Callback)
	}
	h.logger.Info("stripe webhook handled", "provider_event_id", res.EventID, "event_type", res.Type, "status", status)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": status, "event_id": res.EventID})
}
