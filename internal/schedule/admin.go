package schedule

import (
	"context"

	"github.com/cermofi/ReserveUMT/internal/domain"
)

// Overview is the admin dashboard payload: everything in one read.
type Overview struct {
	Bookings    []domain.Booking       `json:"bookings"`
	Occurrences []domain.Occurrence    `json:"occurrences"`
	Rules       []domain.RecurringRule `json:"rules"`
	Settings    map[string]string      `json:"settings"`
	Audit       []domain.AuditEntry    `json:"audit"`
}

const overviewAuditLimit = 50

// GetSettings returns the stored value of every known setting key, filling
// defaults for keys never written.
func (s *Service) GetSettings(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string, len(domain.SettingDefaults))
	for key, def := range domain.SettingDefaults {
		v, err := s.settings.Get(ctx, key)
		if err != nil {
			return nil, domain.Storage(err)
		}
		if v == "" {
			v = def
		}
		out[key] = v
	}
	return out, nil
}

// SetSetting validates and persists one policy setting.
func (s *Service) SetSetting(ctx context.Context, key, value, ip string) error {
	if err := domain.ValidateSetting(key, value); err != nil {
		return err
	}
	if err := s.settings.Set(ctx, key, value); err != nil {
		return domain.Storage(err)
	}
	s.audit.Record(ctx, ActorAdmin, "admin_setting_updated", ip, map[string]any{
		"key":   key,
		"value": value,
	})
	return nil
}

// ClearRateLimits drops every rate limit counter. Escape hatch for a locked
// out legitimate user.
func (s *Service) ClearRateLimits(ctx context.Context, ip string) error {
	if err := s.limiter.Reset(ctx); err != nil {
		return domain.Storage(err)
	}
	s.audit.Record(ctx, ActorAdmin, "admin_rate_limits_cleared", ip, nil)
	return nil
}

// AdminOverview gathers bookings and occurrences in [from, to), all rules,
// current settings and the recent audit trail.
func (s *Service) AdminOverview(ctx context.Context, from, to int64) (*Overview, error) {
	bookings, err := s.ListBookings(ctx, from, to)
	if err != nil {
		return nil, err
	}
	occurrences, err := s.ListOccurrences(ctx, from, to)
	if err != nil {
		return nil, err
	}
	rules, err := s.ListRules(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	audit, err := s.store.RecentAudit(ctx, overviewAuditLimit)
	if err != nil {
		return nil, domain.Storage(err)
	}
	return &Overview{
		Bookings:    bookings,
		Occurrences: occurrences,
		Rules:       rules,
		Settings:    settings,
		Audit:       audit,
	}, nil
}
