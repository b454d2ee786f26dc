package handlers

import (
	"net/http"

	"github.com/cermofi/ReserveUMT/internal/domain"
	"github.com/cermofi/ReserveUMT/internal/http/middleware"
	"github.com/cermofi/ReserveUMT/internal/http/response"
	"github.com/cermofi/ReserveUMT/internal/schedule"
)

// publicBooking is the anonymized calendar entry: no email, note or address
// leaves the server on the public surface.
type publicBooking struct {
	ID      int64        `json:"id"`
	StartTs int64        `json:"start_ts"`
	EndTs   int64        `json:"end_ts"`
	Name    string       `json:"name"`
	Space   domain.Space `json:"space"`
}

func toPublic(bookings []domain.Booking) []publicBooking {
	out := make([]publicBooking, len(bookings))
	for i, b := range bookings {
		out[i] = publicBooking{
			ID:      b.ID,
			StartTs: b.StartTs,
			EndTs:   b.EndTs,
			Name:    b.Name,
			Space:   b.Space,
		}
	}
	return out
}

// ListCalendar returns the public calendar: confirmed bookings plus expanded
// recurring occurrences in the requested window.
func (h *Handlers) ListCalendar(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.listWindow(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	bookings, err := h.svc.ListBookings(r.Context(), from, to)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	occurrences, err := h.svc.ListOccurrences(r.Context(), from, to)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	writeOK(w, map[string]any{
		"bookings":    toPublic(bookings),
		"occurrences": occurrences,
	})
}

// GetSettings exposes the booking policy so the frontend can adapt its form.
func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.GetSettings(r.Context())
	if err != nil {
		response.Error(w, r, err)
		return
	}
	writeOK(w, settings)
}

// RequestBooking starts the reservation flow.
func (h *Handlers) RequestBooking(w http.ResponseWriter, r *http.Request) {
	var in schedule.BookingInput
	if err := decodeJSON(r, &in); err != nil {
		response.Error(w, r, err)
		return
	}

	result, err := h.svc.CreatePending(r.Context(), in, middleware.ClientIP(r))
	if err != nil {
		response.Error(w, r, err)
		return
	}

	if result.BookingID != 0 {
		writeOK(w, map[string]any{"booking_id": result.BookingID})
		return
	}
	writeOK(w, map[string]any{
		"pending_id": result.PendingID,
		"expires_ts": result.ExpiresTs,
	})
}

// VerifyCode exchanges an emailed code for a confirmed booking.
func (h *Handlers) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var in struct {
		PendingID int64  `json:"pending_id"`
		Code      string `json:"code"`
	}
	if err := decodeJSON(r, &in); err != nil {
		response.Error(w, r, err)
		return
	}
	if in.PendingID <= 0 || in.Code == "" {
		response.Error(w, r, domain.Validation("pending_id and code are required"))
		return
	}

	bookingID, err := h.svc.Verify(r.Context(), in.PendingID, in.Code, middleware.ClientIP(r))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	writeOK(w, map[string]any{"booking_id": bookingID})
}
