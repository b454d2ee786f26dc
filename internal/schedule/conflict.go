package schedule

import (
	"context"

	"github.com/cermofi/ReserveUMT/internal/domain"
	"github.com/cermofi/ReserveUMT/internal/timeutil"
)

// hasConflict reports whether [start, end) on the given space collides with a
// confirmed booking or a recurring occurrence. excludeID skips one booking so
// edits do not conflict with themselves; pass 0 to exclude nothing.
//
// The overlap predicate is half-open on both phases: a reservation ending
// exactly when another starts is not a conflict. Callers that are about to
// write must run this against the same transaction that performs the write.
func hasConflict(ctx context.Context, q Queries, cal *timeutil.Calendar, start, end int64, space domain.Space, excludeID int64) (bool, error) {
	spaces := space.ConflictSet()

	busy, err := q.HasOverlappingBooking(ctx, start, end, spaces, excludeID)
	if err != nil {
		return false, err
	}
	if busy {
		return true, nil
	}

	fromDate := cal.Midnight(start)
	toDate := cal.Midnight(end)
	rules, err := q.RulesIntersecting(ctx, fromDate, toDate, spaces)
	if err != nil {
		return false, err
	}
	for _, rule := range rules {
		exceptions, err := q.RuleExceptions(ctx, rule.ID)
		if err != nil {
			return false, err
		}
		for _, occ := range ExpandOccurrences(cal, rule, exceptions, start, end) {
			if start < occ.EndTs && end > occ.StartTs {
				return true, nil
			}
		}
	}
	return false, nil
}
