package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/md-rashed-zaman/camprent/libs/auth"
	"github.com/md-rashed-zaman/camprent/libs/httpx"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/model"
)

type itemRequest struct {
	Type      string `json:"type" validate:"required,oneof=SERVICE COMBO EQUIPMENT"`
	CatalogID string `json:"catalog_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=0"`
	CheckIn   string `json:"check_in"`
	CheckOut  string `json:"check_out"`
	People    int    `json:"people" validate:"gte=0"`
}

type createBookingRequest struct {
	Items []itemRequest `json:"items" validate:"required,min=1,max=50,dive"`
}

type lineItemResponse struct {
	Position  int    `json:"position"`
	Type      string `json:"type"`
	CatalogID string `json:"catalog_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Total     int64  `json:"total"`
	CheckIn   string `json:"check_in,omitempty"`
	CheckOut  string `json:"check_out,omitempty"`
	People    int    `json:"people,omitempty"`
}

type reviewResponse struct {
	Rating     int    `json:"rating"`
	Feedback   string `json:"feedback,omitempty"`
	ReviewedAt string `json:"reviewed_at"`
}

type bookingResponse struct {
	ID              string             `json:"id"`
	CustomerID      string             `json:"customer_id"`
	Status          string             `json:"status"`
	Items           []lineItemResponse `json:"items"`
	Total           int64              `json:"total"`
	AssignedStaffID string             `json:"assigned_staff_id,omitempty"`
	CheckedInAt     string             `json:"checked_in_at,omitempty"`
	CancelledAt     string             `json:"cancelled_at,omitempty"`
	CancelReason    string             `json:"cancel_reason,omitempty"`
	Review          *reviewResponse    `json:"review,omitempty"`
	Payment         *paymentResponse   `json:"payment,omitempty"`
	CreatedAt       string             `json:"created_at"`
	UpdatedAt       string             `json:"updated_at"`
}

func toBookingResponse(b model.Booking) bookingResponse {
	resp := bookingResponse{
		ID:              b.ID,
		CustomerID:      b.CustomerID,
		Status:          string(b.Status),
		Items:           make([]lineItemResponse, 0, len(b.Items)),
		Total:           b.Total(),
		AssignedStaffID: b.AssignedStaffID,
		CheckedInAt:     formatTime(b.CheckedInAt),
		CancelledAt:     formatTime(b.CancelledAt),
		CancelReason:    b.CancelReason,
		CreatedAt:       b.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       b.UpdatedAt.UTC().Format(time.RFC3339),
	}
	for _, li := range b.Items {
		item := lineItemResponse{
			Position:  li.Position,
			Type:      string(li.Type),
			CatalogID: li.CatalogID,
			Quantity:  li.Quantity,
			UnitPrice: li.UnitPrice,
			Total:     li.Total(),
		}
		if li.Type == model.ItemService {
			item.CheckIn = li.CheckIn.Format(time.DateOnly)
			item.CheckOut = li.CheckOut.Format(time.DateOnly)
			item.People = li.People
		}
		resp.Items = append(resp.Items, item)
	}
	if b.Review != nil {
		resp.Review = &reviewResponse{
			Rating:     b.Review.Rating,
			Feedback:   b.Review.Feedback,
			ReviewedAt: b.Review.ReviewedAt.UTC().Format(time.RFC3339),
		}
	}
	return resp
}

func (h *Handler) createBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	items := make([]booking.ItemRequest, 0, len(req.Items))
	for _, it := range req.Items {
		checkIn, err := parseDay("check_in", it.CheckIn)
		if err != nil {
			h.badRequest(w, r, err)
			return
		}
		checkOut, err := parseDay("check_out", it.CheckOut)
		if err != nil {
			h.badRequest(w, r, err)
			return
		}
		items = append(items, booking.ItemRequest{
			Type:      model.ItemType(it.Type),
			CatalogID: it.CatalogID,
			Quantity:  it.Quantity,
			CheckIn:   checkIn,
			CheckOut:  checkOut,
			People:    it.People,
		})
	}

	b, err := h.bookings.Compose(r.Context(), caller(r).Subject, items)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toBookingResponse(b))
}

// owned loads the path booking and hides it from customers who do not own it.
func (h *Handler) owned(w http.ResponseWriter, r *http.Request, id string) (model.Booking, bool) {
	b, err := h.bookings.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return model.Booking{}, false
	}
	c := caller(r)
	if !auth.IsStaff(c) && b.CustomerID != c.Subject {
		httpx.WriteError(w, r, http.StatusNotFound, "booking not found")
		return model.Booking{}, false
	}
	return b, true
}

func (h *Handler) getBooking(w http.ResponseWriter, r *http.Request) {
	b, ok := h.owned(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	resp := toBookingResponse(b)
	p, err := h.payments.ForBooking(r.Context(), b.ID)
	switch {
	case err == nil:
		pr := toPaymentResponse(p)
		resp.Payment = &pr
	case !errors.Is(err, model.ErrNotFound):
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) listBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f model.BookingFilter
	if v := q.Get("status"); v != "" {
		st, err := model.ParseBookingStatus(v)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		f.Status = st
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httpx.WriteError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		f.Limit = n
	}
	c := caller(r)
	if auth.IsStaff(c) {
		f.CustomerID = q.Get("customer_id")
		f.StaffID = q.Get("staff_id")
	} else {
		f.CustomerID = c.Subject
	}

	bs, err := h.bookings.List(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	items := make([]bookingResponse, 0, len(bs))
	for _, b := range bs {
		items = append(items, toBookingResponse(b))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

type cancelBookingRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) cancelBooking(w http.ResponseWriter, r *http.Request) {
	var req cancelBookingRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			h.badRequest(w, r, err)
			return
		}
	}
	b, ok := h.owned(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	out, err := h.bookings.Cancel(r.Context(), b.ID, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toBookingResponse(out))
}

type reviewRequest struct {
	Rating   int    `json:"rating" validate:"required,min=1,max=5"`
	Feedback string `json:"feedback" validate:"max=2000"`
}

func (h *Handler) reviewBooking(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	b, ok := h.owned(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	out, err := h.bookings.Review(r.Context(), b.ID, req.Rating, req.Feedback)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toBookingResponse(out))
}

func (h *Handler) checkIn(w http.ResponseWriter, r *http.Request) {
	out, err := h.bookings.CheckIn(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toBookingResponse(out))
}

func (h *Handler) checkOut(w http.ResponseWriter, r *http.Request) {
	out, err := h.bookings.CheckOut(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toBookingResponse(out))
}

type assignRequest struct {
	StaffID string `json:"staff_id" validate:"required"`
}

func (h *Handler) assignStaff(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	out, err := h.scheduler.AssignManually(r.Context(), r.PathValue("id"), req.StaffID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toBookingResponse(out))
}

func (h *Handler) assignStaffAuto(w http.ResponseWriter, r *http.Request) {
	out, err := h.scheduler.AssignAutomatically(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toBookingResponse(out))
}
