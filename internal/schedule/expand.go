package schedule

import (
	"github.com/cermofi/ReserveUMT/internal/domain"
	"github.com/cermofi/ReserveUMT/internal/timeutil"
)

// ExpandOccurrences materializes the concrete occurrences of a weekly rule
// whose calendar day falls inside [windowStart, windowEnd], skipping excepted
// dates. The walk visits every local calendar day of the clamped range; the
// weekday test uses the local calendar date, so daylight-saving transitions
// never shift which day is matched. windowStart/windowEnd are arbitrary
// timestamps; they are truncated to local midnights here.
func ExpandOccurrences(cal *timeutil.Calendar, rule domain.RecurringRule, exceptions map[int64]struct{}, windowStart, windowEnd int64) []domain.Occurrence {
	checkStart := rule.StartDate
	if m := cal.Midnight(windowStart); m > checkStart {
		checkStart = m
	}
	checkEnd := rule.EndDate
	if m := cal.Midnight(windowEnd); m < checkEnd {
		checkEnd = m
	}

	var out []domain.Occurrence
	for day := checkStart; day <= checkEnd; day = cal.NextDay(day) {
		if _, excluded := exceptions[day]; excluded {
			continue
		}
		if cal.Weekday(day) != rule.Weekday {
			continue
		}
		out = append(out, domain.Occurrence{
			ID:          domain.OccurrenceID(rule.ID, day),
			RuleID:      rule.ID,
			StartTs:     day + int64(rule.StartMin)*60,
			EndTs:       day + int64(rule.EndMin)*60,
			Name:        rule.Title,
			Space:       rule.Space,
			DateTs:      day,
			IsRecurring: true,
		})
	}
	return out
}

// FilterOverlapping keeps the occurrences intersecting the half-open window
// [from, to). Listing callers want only visible occurrences; the conflict
// engine applies its own overlap predicate instead.
func FilterOverlapping(occs []domain.Occurrence, from, to int64) []domain.Occurrence {
	out := occs[:0:0]
	for _, o := range occs {
		if o.StartTs < to && o.EndTs > from {
			out = append(out, o)
		}
	}
	return out
}
