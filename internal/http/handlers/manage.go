package handlers

import (
	"net/http"

	"github.com/cermofi/ReserveUMT/internal/domain"
	"github.com/cermofi/ReserveUMT/internal/http/middleware"
	"github.com/cermofi/ReserveUMT/internal/http/response"
	"github.com/cermofi/ReserveUMT/internal/schedule"
)

// ownerBooking is what the booking's owner sees through a manage link: the
// full record minus internals.
type ownerBooking struct {
	ID      int64        `json:"id"`
	StartTs int64        `json:"start_ts"`
	EndTs   int64        `json:"end_ts"`
	Name    string       `json:"name"`
	Email   string       `json:"email,omitempty"`
	Space   domain.Space `json:"space"`
	Note    string       `json:"note,omitempty"`
}

func toOwner(b *domain.Booking) ownerBooking {
	return ownerBooking{
		ID:      b.ID,
		StartTs: b.StartTs,
		EndTs:   b.EndTs,
		Name:    b.Name,
		Email:   b.Email,
		Space:   b.Space,
		Note:    b.Note,
	}
}

func manageToken(r *http.Request) (string, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		return "", domain.Validation("missing token")
	}
	return token, nil
}

// GetManagedBooking resolves a manage link to its booking.
func (h *Handlers) GetManagedBooking(w http.ResponseWriter, r *http.Request) {
	token, err := manageToken(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	b, err := h.svc.BookingByEditToken(r.Context(), token)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	writeOK(w, toOwner(b))
}

// UpdateManagedBooking edits a booking through its manage link.
func (h *Handlers) UpdateManagedBooking(w http.ResponseWriter, r *http.Request) {
	token, err := manageToken(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	var in schedule.BookingInput
	if err := decodeJSON(r, &in); err != nil {
		response.Error(w, r, err)
		return
	}
	if err := h.svc.PublicUpdate(r.Context(), token, in, middleware.ClientIP(r)); err != nil {
		response.Error(w, r, err)
		return
	}
	writeOK(w, map[string]any{"updated": true})
}

// DeleteManagedBooking cancels a booking through its manage link.
func (h *Handlers) DeleteManagedBooking(w http.ResponseWriter, r *http.Request) {
	token, err := manageToken(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	if err := h.svc.PublicDelete(r.Context(), token, middleware.ClientIP(r)); err != nil {
		response.Error(w, r, err)
		return
	}
	writeOK(w, map[string]any{"deleted": true})
}

// ListManagedBookings lists every upcoming booking behind an email token.
func (h *Handlers) ListManagedBookings(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("email_token")
	if token == "" {
		response.Error(w, r, domain.Validation("missing email_token"))
		return
	}
	email, bookings, err := h.svc.BookingsForEmailToken(r.Context(), token)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	out := make([]ownerBooking, len(bookings))
	for i := range bookings {
		out[i] = toOwner(&bookings[i])
	}
	writeOK(w, map[string]any{
		"email":    email,
		"bookings": out,
	})
}
