package handlers

import (
	"net/http"
	"time"

	"github.com/md-rashed-zaman/camprent/libs/httpx"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/ledger"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/model"
)

type serviceRequest struct {
	Name                string `json:"name" validate:"required,max=200"`
	Price               int64  `json:"price" validate:"gte=0"`
	MinDays             int    `json:"min_days" validate:"gte=1"`
	MaxDays             int    `json:"max_days" validate:"gtefield=MinDays"`
	MinCapacity         int    `json:"min_capacity" validate:"gte=1"`
	MaxCapacity         int    `json:"max_capacity" validate:"gtefield=MinCapacity"`
	AllowExtraOccupants bool   `json:"allow_extra_occupants"`
	ExtraFeePerPerson   int64  `json:"extra_fee_per_person" validate:"gte=0"`
	MaxExtraOccupants   int    `json:"max_extra_occupants" validate:"gte=0"`
}

func (h *Handler) putService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	svc, err := h.bookings.UpsertService(r.Context(), model.Service{
		ID:                  r.PathValue("id"),
		Name:                req.Name,
		Price:               req.Price,
		MinDays:             req.MinDays,
		MaxDays:             req.MaxDays,
		MinCapacity:         req.MinCapacity,
		MaxCapacity:         req.MaxCapacity,
		AllowExtraOccupants: req.AllowExtraOccupants,
		ExtraFeePerPerson:   req.ExtraFeePerPerson,
		MaxExtraOccupants:   req.MaxExtraOccupants,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"id": svc.ID, "updated_at": svc.UpdatedAt.Format(time.RFC3339)})
}

type flatItemRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Price int64  `json:"price" validate:"gte=0"`
}

func (h *Handler) putCombo(w http.ResponseWriter, r *http.Request) {
	var req flatItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	c, err := h.bookings.UpsertCombo(r.Context(), model.Combo{ID: r.PathValue("id"), Name: req.Name, Price: req.Price})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"id": c.ID, "updated_at": c.UpdatedAt.Format(time.RFC3339)})
}

func (h *Handler) putEquipment(w http.ResponseWriter, r *http.Request) {
	var req flatItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	e, err := h.bookings.UpsertEquipment(r.Context(), model.Equipment{ID: r.PathValue("id"), Name: req.Name, Price: req.Price})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"id": e.ID, "updated_at": e.UpdatedAt.Format(time.RFC3339)})
}

type availabilityRecord struct {
	Date        string `json:"date"`
	TotalSlots  int    `json:"total_slots"`
	BookedSlots int    `json:"booked_slots"`
	FreeSlots   int    `json:"free_slots"`
}

func toAvailability(serviceID string, recs []ledger.Record) map[string]any {
	out := make([]availabilityRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, availabilityRecord{
			Date:        rec.Date.Format(time.DateOnly),
			TotalSlots:  rec.TotalSlots,
			BookedSlots: rec.BookedSlots,
			FreeSlots:   rec.Free(),
		})
	}
	return map[string]any{"service_id": serviceID, "days": out}
}

func (h *Handler) getAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	serviceID := q.Get("service_id")
	if serviceID == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "service_id is required")
		return
	}
	from, err := parseDay("from", q.Get("from"))
	if err != nil {
		h.badRequest(w, r, err)
		return
	}
	to, err := parseDay("to", q.Get("to"))
	if err != nil {
		h.badRequest(w, r, err)
		return
	}
	recs, err := h.bookings.Availability(r.Context(), serviceID, from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAvailability(serviceID, recs))
}

type provisionRequest struct {
	ServiceID  string `json:"service_id" validate:"required"`
	From       string `json:"from" validate:"required"`
	To         string `json:"to" validate:"required"`
	TotalSlots int    `json:"total_slots" validate:"gte=0"`
}

func (h *Handler) provisionAvailability(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	from, err := parseDay("from", req.From)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}
	to, err := parseDay("to", req.To)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}
	recs, err := h.bookings.ProvisionAvailability(r.Context(), req.ServiceID, from, to, req.TotalSlots)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAvailability(req.ServiceID, recs))
}

type staffRequest struct {
	Name   string `json:"name" validate:"required,max=200"`
	Active *bool  `json:"active"`
}

func (h *Handler) putStaff(w http.ResponseWriter, r *http.Request) {
	var req staffRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	st, err := h.scheduler.UpsertStaff(r.Context(), model.Staff{ID: r.PathValue("id"), Name: req.Name, Active: active})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"id": st.ID, "name": st.Name, "active": st.Active})
}

type shiftAssignmentRequest struct {
	StaffID string `json:"staff_id" validate:"required"`
	Role    string `json:"role" validate:"max=100"`
}

type createShiftRequest struct {
	ID          string                   `json:"id"`
	Date        string                   `json:"date"`
	Start       string                   `json:"start" validate:"required"`
	End         string                   `json:"end" validate:"required"`
	Assignments []shiftAssignmentRequest `json:"assignments" validate:"dive"`
}

type shiftResponse struct {
	ID          string                   `json:"id"`
	Date        string                   `json:"date"`
	Start       string                   `json:"start"`
	End         string                   `json:"end"`
	Status      string                   `json:"status"`
	Assignments []shiftAssignmentRequest `json:"assignments"`
}

func toShiftResponse(sh model.Shift) shiftResponse {
	resp := shiftResponse{
		ID:          sh.ID,
		Date:        sh.Date.Format(time.DateOnly),
		Start:       sh.Start.UTC().Format(time.RFC3339),
		End:         sh.End.UTC().Format(time.RFC3339),
		Status:      string(sh.Status),
		Assignments: make([]shiftAssignmentRequest, 0, len(sh.Assignments)),
	}
	for _, a := range sh.Assignments {
		resp.Assignments = append(resp.Assignments, shiftAssignmentRequest{StaffID: a.StaffID, Role: a.Role})
	}
	return resp
}

func (h *Handler) createShift(w http.ResponseWriter, r *http.Request) {
	var req createShiftRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	date, err := parseDay("date", req.Date)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}
	start, err := parseInstant("start", req.Start)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}
	end, err := parseInstant("end", req.End)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}
	sh := model.Shift{ID: req.ID, Date: date, Start: start, End: end}
	for _, a := range req.Assignments {
		sh.Assignments = append(sh.Assignments, model.ShiftAssignment{StaffID: a.StaffID, Role: a.Role})
	}
	out, err := h.scheduler.CreateShift(r.Context(), sh)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toShiftResponse(out))
}

type shiftStatusRequest struct {
	Action string `json:"action" validate:"required"`
}

func (h *Handler) transitionShift(w http.ResponseWriter, r *http.Request) {
	var req shiftStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	on, err := model.ParseShiftTrigger(req.Action)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.scheduler.TransitionShift(r.Context(), r.PathValue("id"), on)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toShiftResponse(out))
}
