// Package handlers exposes the booking core over HTTP/JSON.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/camprent/libs/auth"
	"github.com/md-rashed-zaman/camprent/libs/httpx"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/payment"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/staffing"
)

type Handler struct {
	bookings  *booking.Service
	payments  *payment.Service
	scheduler *staffing.Scheduler
	logger    *slog.Logger
	errs      *httpx.ErrorMapper
}

func New(bookings *booking.Service, payments *payment.Service, scheduler *staffing.Scheduler, logger *slog.Logger) *Handler {
	return &Handler{
		bookings:  bookings,
		payments:  payments,
		scheduler: scheduler,
		logger:    logger,
		errs: httpx.NewErrorMapper().
			WithMapping(model.ErrNotFound, http.StatusNotFound, "").
			WithMapping(model.ErrInvalidArgument, http.StatusBadRequest, "").
			WithMapping(model.ErrInvalidDateRange, http.StatusBadRequest, "").
			WithMapping(model.ErrCapacityExceeded, http.StatusUnprocessableEntity, "").
			WithMapping(model.ErrMissingAvailabilityConfig, http.StatusUnprocessableEntity, "").
			WithMapping(model.ErrNoEligibleStaff, http.StatusUnprocessableEntity, "").
			WithMapping(model.ErrInvalidStatusTransition, http.StatusConflict, "").
			WithMapping(model.ErrPaymentAlreadySettled, http.StatusConflict, "").
			WithMapping(payment.ErrInvalidSignature, http.StatusBadRequest, "invalid signature").
			WithMapping(payment.ErrGatewayUnavailable, http.StatusServiceUnavailable, "payment gateway unavailable"),
	}
}

// Guards are applied per route group. Public wraps unauthenticated and
// signature-authenticated routes (rate limiting); Auth verifies the bearer token.
type Guards struct {
	Public httpx.Middleware
	Auth   httpx.Middleware
}

func (h *Handler) Register(mux *http.ServeMux, g Guards) {
	public := func(fn http.HandlerFunc) http.Handler { return wrap(fn, g.Public) }
	authed := func(fn http.HandlerFunc) http.Handler { return wrap(fn, g.Auth) }
	staff := func(fn http.HandlerFunc) http.Handler {
		return wrap(fn, g.Auth, auth.RequireRole(auth.RoleStaff, auth.RoleAdmin))
	}

	mux.Handle("POST /api/v1/bookings", wrap(h.createBooking, g.Public, g.Auth))
	mux.Handle("GET /api/v1/availability", public(h.getAvailability))
	mux.Handle("GET /api/v1/payments/return", public(h.hostedReturn))
	mux.Handle("POST /api/v1/payments/webhooks/stripe", public(h.stripeWebhook))

	mux.Handle("GET /api/v1/bookings", authed(h.listBookings))
	mux.Handle("GET /api/v1/bookings/{id}", authed(h.getBooking))
	mux.Handle("POST /api/v1/bookings/{id}/cancel", authed(h.cancelBooking))
	mux.Handle("POST /api/v1/bookings/{id}/review", authed(h.reviewBooking))
	mux.Handle("POST /api/v1/payments", authed(h.initiatePayment))

	mux.Handle("POST /api/v1/bookings/{id}/check-in", staff(h.checkIn))
	mux.Handle("POST /api/v1/bookings/{id}/check-out", staff(h.checkOut))
	mux.Handle("POST /api/v1/bookings/{id}/assign", staff(h.assignStaff))
	mux.Handle("POST /api/v1/bookings/{id}/assign/auto", staff(h.assignStaffAuto))
	mux.Handle("POST /api/v1/availability", staff(h.provisionAvailability))
	mux.Handle("PUT /api/v1/catalog/services/{id}", staff(h.putService))
	mux.Handle("PUT /api/v1/catalog/combos/{id}", staff(h.putCombo))
	mux.Handle("PUT /api/v1/catalog/equipment/{id}", staff(h.putEquipment))
	mux.Handle("PUT /api/v1/staff/{id}", staff(h.putStaff))
	mux.Handle("POST /api/v1/shifts", staff(h.createShift))
	mux.Handle("POST /api/v1/shifts/{id}/status", staff(h.transitionShift))
}

// wrap applies middleware so the first one listed runs first. nil entries are skipped.
func wrap(fn http.HandlerFunc, m ...func(http.Handler) http.Handler) http.Handler {
	var h http.Handler = fn
	for i := len(m) - 1; i >= 0; i-- {
		if m[i] != nil {
			h = m[i](h)
		}
	}
	return h
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg, known := h.errs.Map(err)
	if !known {
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"err", err,
		)
	}
	httpx.WriteError(w, r, status, msg)
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	httpx.WriteError(w, r, http.StatusBadRequest, err.Error())
}

func caller(r *http.Request) *auth.Claims {
	c, _ := auth.ClaimsFromContext(r.Context())
	return c
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// parseDay accepts YYYY-MM-DD. An empty value yields the zero time.
func parseDay(field, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, &fieldError{field: field, want: "YYYY-MM-DD"}
	}
	return t, nil
}

func parseInstant(field, v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, &fieldError{field: field, want: "RFC3339 timestamp"}
	}
	return t, nil
}

type fieldError struct {
	field string
	want  string
}

func (e *fieldError) Error() string { return e.field + " must be a " + e.want }
