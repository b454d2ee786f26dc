package domain

import "fmt"

// RecurringRule reserves one space every week on a fixed weekday and
// time-of-day range, within an inclusive day range. StartDate and EndDate are
// local-midnight epoch seconds; StartMin/EndMin are minutes since local
// midnight.
type RecurringRule struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Space     Space  `json:"space"`
	Weekday   int    `json:"dow"` // ISO: 1=Monday .. 7=Sunday
	StartMin  int    `json:"start_min"`
	EndMin    int    `json:"end_min"`
	StartDate int64  `json:"start_date"`
	EndDate   int64  `json:"end_date"`
	CreatedTs int64  `json:"created_ts,omitempty"`
}

// Occurrence is one concrete calendar instance of a recurring rule. It is
// never persisted; the ID is synthesized so a single occurrence can be
// addressed (and excepted) without mutating the rule.
type Occurrence struct {
	ID          string `json:"id"`
	RuleID      int64  `json:"rule_id"`
	StartTs     int64  `json:"start_ts"`
	EndTs       int64  `json:"end_ts"`
	Name        string `json:"name"`
	Space       Space  `json:"space"`
	DateTs      int64  `json:"date_ts"`
	IsRecurring bool   `json:"is_recurring"`
}

func OccurrenceID(ruleID, dateTs int64) string {
	return fmt.Sprintf("R%d-%d", ruleID, dateTs)
}

// RecurringException suppresses exactly one occurrence of a rule, identified
// by the local midnight of the excluded day. Unique per (rule, date).
type RecurringException struct {
	RuleID    int64
	DateTs    int64
	CreatedTs int64
}
