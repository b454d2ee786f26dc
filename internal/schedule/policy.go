package schedule

import (
	"fmt"

	"github.com/cermofi/ReserveUMT/internal/domain"
)

// durationEpsilon absorbs float rounding when comparing a reservation length
// against the configured hour limit.
const durationEpsilon = 1e-6

// CheckAdvanceLimit rejects intervals reaching further ahead than the
// configured number of days. A zero limit disables the check.
func CheckAdvanceLimit(s domain.Settings, now, start, end int64) error {
	if s.MaxAdvanceBookingDays == 0 {
		return nil
	}
	horizon := now + int64(s.MaxAdvanceBookingDays)*86400
	if start > horizon || end > horizon {
		return domain.Policy(fmt.Sprintf("bookings can be made at most %d days ahead", s.MaxAdvanceBookingDays))
	}
	return nil
}

// CheckDurationLimit rejects intervals longer than the configured number of
// hours. A non-positive limit disables the check.
func CheckDurationLimit(s domain.Settings, start, end int64) error {
	if s.MaxDurationHours <= 0 {
		return nil
	}
	hours := float64(end-start) / 3600
	if hours > s.MaxDurationHours+durationEpsilon {
		return domain.Policy(fmt.Sprintf("bookings are limited to %g hours", s.MaxDurationHours))
	}
	return nil
}

// emailCapApplies reports whether the per-email reservation cap is in force
// for the given address. The cap only means anything when the address is
// verified, so it is skipped entirely when verification is off.
func emailCapApplies(s domain.Settings, email string) bool {
	return s.RequireEmailVerification && s.MaxReservationsPerEmail > 0 && email != ""
}

// CheckEmailCap rejects when the address already holds the configured number
// of active reservations.
func CheckEmailCap(s domain.Settings, existing int) error {
	if existing >= s.MaxReservationsPerEmail {
		return domain.Policy(fmt.Sprintf("at most %d active reservations per email", s.MaxReservationsPerEmail))
	}
	return nil
}
