package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/advisoryoffice/libs/apperr"
	"github.com/md-rashed-zaman/advisoryoffice/libs/auth"
	"github.com/md-rashed-zaman/advisoryoffice/libs/httpx"
	"github.com/md-rashed-zaman/advisoryoffice/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/advisoryoffice/services/booking-service/internal/bookings"
	"github.com/md-rashed-zaman/advisoryoffice/services/booking-service/internal/model"
)

type BookingHandler struct {
	svc    *bookings.Service
	logger *slog.Logger
}

func NewBookingHandler(svc *bookings.Service, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, logger: logger}
}

func (h *BookingHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /bookings", h.Create)
	mux.HandleFunc("GET /bookings/slots", h.Slots)
	mux.HandleFunc("GET /bookings", h.List)
	mux.HandleFunc("GET /bookings/{id}", h.Get)
	mux.HandleFunc("POST /bookings/{id}/status", h.UpdateStatus)
}

type createBookingRequest struct {
	Name        string `json:"name" validate:"required"`
	Phone       string `json:"phone" validate:"required"`
	Date        string `json:"date" validate:"required"`
	Time        string `json:"time" validate:"required"`
	ServiceType string `json:"service_type"`
}

type createBookingResponse struct {
	BookingID   string      `json:"bookingId"`
	AccessToken string      `json:"access_token,omitempty"`
	Booking     bookingItem `json:"booking"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type bookingItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	StartsAt    string `json:"starts_at"`
	ServiceType string `json:"service_type,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type slotsResponse struct {
	Date      string   `json:"date"`
	Available []string `json:"available"`
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	receipt, err := h.svc.Submit(r.Context(), bookings.SubmitRequest{
		Name:        req.Name,
		Phone:       req.Phone,
		Date:        req.Date,
		Time:        req.Time,
		ServiceType: req.ServiceType,
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, createBookingResponse{
		BookingID:   receipt.Booking.ID,
		AccessToken: receipt.AccessToken,
		Booking:     h.toItem(receipt.Booking),
	})
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	open, err := h.svc.AvailableSlots(r.Context(), date)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	resp := slotsResponse{Date: date, Available: make([]string, 0, len(open))}
	for _, s := range open {
		resp.Available = append(resp.Available, s.Display())
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	q := r.URL.Query()
	filter := model.Filter{
		Status: model.Status(strings.ToLower(strings.TrimSpace(q.Get("status")))),
		Date:   strings.TrimSpace(q.Get("date")),
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.WriteError(w, r, h.logger, apperr.Validation("limit must be a positive integer"))
			return
		}
		filter.Limit = n
	}

	list, err := h.svc.List(r.Context(), filter)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	items := make([]bookingItem, 0, len(list))
	for _, b := range list {
		items = append(items, h.toItem(b))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"bookings": items})
}

// Get serves admins and the guest holding this booking's token.
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p := auth.PrincipalFromHeaders(r.Header)
	if !p.IsAdmin() && (p.BookingID == "" || p.BookingID != id) {
		httpx.WriteError(w, r, h.logger, apperr.Forbidden("booking belongs to another visitor"))
		return
	}
	b, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"booking": h.toItem(b)})
}

func (h *BookingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	var req updateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	b, err := h.svc.UpdateStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"booking": h.toItem(b)})
}

func (h *BookingHandler) toItem(b model.Booking) bookingItem {
	slot := availability.Slot{Date: b.Date, Clock: b.Clock}
	return bookingItem{
		ID:          b.ID,
		Name:        b.Name,
		Phone:       b.Phone,
		Date:        b.Date,
		Time:        slot.Display(),
		StartsAt:    h.svc.SlotStart(b).UTC().Format(time.RFC3339),
		ServiceType: b.ServiceType,
		Status:      string(b.Status),
		CreatedAt:   b.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   b.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func requireAdmin(r *http.Request) error {
	p := auth.PrincipalFromHeaders(r.Header)
	if p.Role == "" {
		return apperr.Unauthorized("admin session required")
	}
	if !p.IsAdmin() {
		return apperr.Forbidden("admin role required")
	}
	return nil
}
