package domain

import (
	"regexp"
	"strconv"
)

// Setting keys. The settings store accepts no other keys.
const (
	SettingRequireEmailVerification = "require_email_verification"
	SettingMaxAdvanceBookingDays    = "max_advance_booking_days"
	SettingMaxReservationsPerEmail  = "max_reservations_per_email"
	SettingMaxDurationHours         = "max_reservation_duration_hours"
)

// Settings is a point-in-time snapshot of the booking policy configuration.
// Zero limits mean unlimited.
type Settings struct {
	RequireEmailVerification bool
	MaxAdvanceBookingDays    int
	MaxReservationsPerEmail  int
	MaxDurationHours         float64
}

func DefaultSettings() Settings {
	return Settings{
		RequireEmailVerification: true,
		MaxAdvanceBookingDays:    30,
		MaxReservationsPerEmail:  0,
		MaxDurationHours:         2,
	}
}

// SettingDefaults maps each key to its stored string default.
var SettingDefaults = map[string]string{
	SettingRequireEmailVerification: "1",
	SettingMaxAdvanceBookingDays:    "30",
	SettingMaxReservationsPerEmail:  "0",
	SettingMaxDurationHours:         "2",
}

var (
	intValue   = regexp.MustCompile(`^\d+$`)
	floatValue = regexp.MustCompile(`^\d+(\.\d+)?$`)
)

// ValidateSetting checks a key/value pair before it is written.
func ValidateSetting(key, value string) error {
	switch key {
	case SettingRequireEmailVerification:
		if value != "0" && value != "1" {
			return Validation("setting must be 0 or 1")
		}
	case SettingMaxAdvanceBookingDays, SettingMaxReservationsPerEmail:
		if !intValue.MatchString(value) {
			return Validation("setting must be a non-negative integer")
		}
	case SettingMaxDurationHours:
		if !floatValue.MatchString(value) {
			return Validation("setting must be a non-negative number")
		}
	default:
		return Validation("unknown setting")
	}
	return nil
}

// SettingsFromValues builds a snapshot from raw stored strings, falling back
// to defaults on missing or malformed values.
func SettingsFromValues(values map[string]string) Settings {
	s := DefaultSettings()
	if v, ok := values[SettingRequireEmailVerification]; ok {
		s.RequireEmailVerification = v == "1"
	}
	if v, ok := values[SettingMaxAdvanceBookingDays]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			s.MaxAdvanceBookingDays = n
		}
	}
	if v, ok := values[SettingMaxReservationsPerEmail]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			s.MaxReservationsPerEmail = n
		}
	}
	if v, ok := values[SettingMaxDurationHours]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			s.MaxDurationHours = f
		}
	}
	return s
}
