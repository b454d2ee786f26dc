package schedule

import (
	"context"
	"unicode/utf8"

	"github.com/cermofi/ReserveUMT/internal/domain"
	"github.com/cermofi/ReserveUMT/internal/timeutil"
	"github.com/cermofi/ReserveUMT/internal/utils"
	"github.com/cermofi/ReserveUMT/pkg/events"
)

// RuleInput is the admin payload for a weekly recurring rule.
type RuleInput struct {
	Title     string `json:"title"`
	Space     string `json:"space"`
	Weekday   int    `json:"dow"`
	Start     string `json:"start"`
	End       string `json:"end"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type ruleFields struct {
	title     string
	space     domain.Space
	weekday   int
	startMin  int
	endMin    int
	startDate int64
	endDate   int64
}

func (s *Service) validateRule(in RuleInput) (ruleFields, error) {
	var f ruleFields

	title := utils.NormalizeString(in.Title)
	if title == "" || utf8.RuneCountInString(title) > domain.MaxNameLen {
		return f, domain.Validation("invalid title")
	}
	space, ok := domain.ParseSpace(utils.NormalizeString(in.Space))
	if !ok {
		return f, domain.Validation("invalid space")
	}
	if in.Weekday < 1 || in.Weekday > 7 {
		return f, domain.Validation("invalid weekday")
	}

	startMin, err := timeutil.MinuteOfDay(utils.NormalizeString(in.Start))
	if err != nil {
		return f, domain.Validation("invalid start time")
	}
	endMin, err := timeutil.MinuteOfDay(utils.NormalizeString(in.End))
	if err != nil {
		return f, domain.Validation("invalid end time")
	}
	if endMin <= startMin {
		return f, domain.Validation("end must be after start")
	}

	startDate, err := s.cal.ParseDate(utils.NormalizeString(in.StartDate))
	if err != nil {
		return f, domain.Validation("invalid start date")
	}
	endDate, err := s.cal.ParseDate(utils.NormalizeString(in.EndDate))
	if err != nil {
		return f, domain.Validation("invalid end date")
	}
	if endDate < startDate {
		return f, domain.Validation("end date precedes start date")
	}

	f = ruleFields{
		title:     title,
		space:     space,
		weekday:   in.Weekday,
		startMin:  startMin,
		endMin:    endMin,
		startDate: startDate,
		endDate:   endDate,
	}
	return f, nil
}

// ListRules returns every recurring rule.
func (s *Service) ListRules(ctx context.Context) ([]domain.RecurringRule, error) {
	rules, err := s.store.ListRules(ctx)
	if err != nil {
		return nil, domain.Storage(err)
	}
	return rules, nil
}

// CreateRule validates a weekly rule, simulates every occurrence over its
// whole date range against the conflict engine, and inserts it. The
// simulation and the insert share one exclusive transaction so a racing
// booking cannot land inside a just-approved slot.
func (s *Service) CreateRule(ctx context.Context, in RuleInput, ip string) (int64, error) {
	f, err := s.validateRule(in)
	if err != nil {
		return 0, err
	}

	rule := &domain.RecurringRule{
		Title:     f.title,
		Space:     f.space,
		Weekday:   f.weekday,
		StartMin:  f.startMin,
		EndMin:    f.endMin,
		StartDate: f.startDate,
		EndDate:   f.endDate,
		CreatedTs: s.now().Unix(),
	}

	var ruleID int64
	err = s.store.WithTx(ctx, func(q Queries) error {
		for day := f.startDate; day <= f.endDate; day = s.cal.NextDay(day) {
			if s.cal.Weekday(day) != f.weekday {
				continue
			}
			start := day + int64(f.startMin)*60
			end := day + int64(f.endMin)*60
			busy, err := hasConflict(ctx, q, s.cal, start, end, f.space, 0)
			if err != nil {
				return err
			}
			if busy {
				return domain.Conflict("a recurring slot collides with an existing reservation")
			}
		}
		id, err := q.InsertRule(ctx, rule)
		if err != nil {
			return err
		}
		ruleID = id
		return nil
	})
	if err != nil {
		return 0, storageUnlessDomain(err)
	}

	s.audit.Record(ctx, ActorAdmin, "admin_recurring_created", ip, map[string]any{"rule_id": ruleID})
	s.publish(ctx, events.RecurringRuleCreated, events.RecurringRuleCreatedEvent{
		RuleID:  ruleID,
		Title:   f.title,
		Space:   string(f.space),
		Weekday: f.weekday,
	})
	return ruleID, nil
}

// DeleteRule removes a rule and, by extension, all of its occurrences and
// exceptions.
func (s *Service) DeleteRule(ctx context.Context, id int64, ip string) error {
	err := s.store.WithTx(ctx, func(q Queries) error {
		deleted, err := q.DeleteRule(ctx, id)
		if err != nil {
			return err
		}
		if !deleted {
			return domain.NotFound("rule not found")
		}
		return nil
	})
	if err != nil {
		return storageUnlessDomain(err)
	}

	s.audit.Record(ctx, ActorAdmin, "admin_recurring_deleted", ip, map[string]any{"rule_id": id})
	s.publish(ctx, events.RecurringRuleDeleted, events.RecurringRuleDeletedEvent{RuleID: id})
	return nil
}

// DeleteOccurrence cancels a single occurrence by recording an exception
// date. Idempotent: excepting an already-excepted date succeeds quietly.
func (s *Service) DeleteOccurrence(ctx context.Context, ruleID, dateTs int64, ip string) error {
	date := s.cal.Midnight(dateTs)
	err := s.store.WithTx(ctx, func(q Queries) error {
		rules, err := q.ListRules(ctx)
		if err != nil {
			return err
		}
		var found bool
		for _, r := range rules {
			if r.ID == ruleID {
				found = true
				break
			}
		}
		if !found {
			return domain.NotFound("rule not found")
		}
		return q.InsertException(ctx, ruleID, date, s.now().Unix())
	})
	if err != nil {
		return storageUnlessDomain(err)
	}

	s.audit.Record(ctx, ActorAdmin, "admin_occurrence_deleted", ip, map[string]any{
		"rule_id": ruleID,
		"date_ts": date,
	})
	return nil
}
