package handlers

import (
	"net/http"
	"time"

	"github.com/cermofi/ReserveUMT/internal/domain"
	"github.com/cermofi/ReserveUMT/internal/http/middleware"
	"github.com/cermofi/ReserveUMT/internal/http/response"
	"github.com/cermofi/ReserveUMT/internal/platform/auth"
	"github.com/cermofi/ReserveUMT/internal/schedule"
	"github.com/cermofi/ReserveUMT/pkg/logger"
)

const (
	loginLimit  = 5
	loginWindow = 15 * time.Minute

	sessionCookie = "admin_session"
)

// Login exchanges the admin password for a session token, also set as an
// HttpOnly cookie for browser clients. Attempts are rate limited per IP.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	ip := middleware.ClientIP(r)
	ok, err := h.limiter.Allow(r.Context(), "login_ip:"+ip, loginLimit, loginWindow)
	if err != nil {
		logger.WarnContext(r.Context(), "rate limiter unavailable, denying login", "error", err)
		ok = false
	}
	if !ok {
		response.Error(w, r, domain.RateLimited())
		return
	}

	var in struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		response.Error(w, r, err)
		return
	}
	if !auth.VerifyPassword(h.passwordHash, in.Password) {
		response.Unauthorized(w, "wrong password")
		return
	}

	token, err := h.sessions.NewToken()
	if err != nil {
		response.Error(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeOK(w, map[string]any{"token": token})
}

// Logout clears the session cookie. The JWT itself stays valid until expiry;
// the cookie is the only server-held handle.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeOK(w, map[string]any{"logged_out": true})
}

// Overview serves the admin dashboard payload.
func (h *Handlers) Overview(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.listWindow(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	overview, err := h.svc.AdminOverview(r.Context(), from, to)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	writeOK(w, overview)
}

func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var in schedule.BookingInput
	if err := decodeJSON(r, &in); err != nil {
		response.Error(w, r, err)
		return
	}
	id, err := h.svc.AdminCreate(r.Context(), in, middleware.ClientIP(r))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	writeOK(w, map[string]any{"booking_id": id})
}

func (h *Handlers) UpdateBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		response.Error(w, r, err)
		return
	}
	var in schedule.BookingInput
	if err := decodeJSON(r, &in); err != nil {
		response.Error(w, r, err)
		return
	}
	if err := h.svc.AdminUpdate(r.Context(), id, in, middleware.ClientIP(r)); err != nil {
		response.Error(w, r, err)
		return
	}
	writeOK(w, map[string]any{"updated": true})
}

func (h *Handlers) DeleteBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		response.Error(w, r, err)
		return
	}
	if err := h.svc.AdminDelete(r.Context(), id, middleware.ClientIP(r)); err != nil {
		response.Error(w, r, err)
		return
	}
	writeOK(w, map[string]any{"deleted": true})
}

func (h *Handlers) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.svc.ListRules(r.Context())
	if err != nil {
		response.Error(w, r, err)
		return
	}
	writeOK(w, map[string]any{"rules": rules})
}

func (h *Handlers) CreateRule(w http.ResponseWriter, r *http.Request) {
	var in schedule.RuleInput
	if err := decodeJSON(r, &in); err != nil {
		response.Error(w, r, err)
		return
	}
	id, err := h.svc.CreateRule(r.Context(), in, middleware.ClientIP(r))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	writeOK(w, map[string]any{"rule_id": id})
}

func (h *Handlers) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		response.Error(w, r, err)
		return
	}
	if err := h.svc.DeleteRule(r.Context(), id, middleware.ClientIP(r)); err != nil {
		response.Error(w, r, err)
		return
	}
	writeOK(w, map[string]any{"deleted": true})
}

// DeleteOccurrence cancels one date of a recurring rule.
func (h *Handlers) DeleteOccurrence(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		response.Error(w, r, err)
		return
	}
	date, err := pathID(r, "date")
	if err != nil {
		response.Error(w, r, domain.Validation("invalid date"))
		return
	}
	if err := h.svc.DeleteOccurrence(r.Context(), id, date, middleware.ClientIP(r)); err != nil {
		response.Error(w, r, err)
		return
	}
	writeOK(w, map[string]any{"deleted": true})
}

func (h *Handlers) SetSetting(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := decodeJSON(r, &in); err != nil {
		response.Error(w, r, err)
		return
	}
	if err := h.svc.SetSetting(r.Context(), in.Key, in.Value, middleware.ClientIP(r)); err != nil {
		response.Error(w, r, err)
		return
	}
	writeOK(w, map[string]any{"updated": true})
}

func (h *Handlers) ClearRateLimits(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearRateLimits(r.Context(), middleware.ClientIP(r)); err != nil {
		response.Error(w, r, err)
		return
	}
	writeOK(w, map[string]any{"cleared": true})
}
