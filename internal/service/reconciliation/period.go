package reconciliation

import (
	"fmt"
	"time"

	"github.com/mamadbah2/farmledger/internal/domain/models"
)

// Named reporting windows.
const (
	Period7Days   = "7d"
	Period30Days  = "30d"
	Period90Days  = "90d"
	Period365Days = "365d"
	PeriodAll     = "all"

	DefaultPeriod = Period30Days
)

var periodDays = map[string]int{
	Period7Days:   7,
	Period30Days:  30,
	Period90Days:  90,
	Period365Days: 365,
}

// Clock returns the current instant.
type Clock func() time.Time

// PeriodResolver turns reporting windows into concrete date ranges anchored at
// the clock's "now" in the operation's time zone.
type PeriodResolver struct {
	now Clock
	loc *time.Location
}

// NewPeriodResolver builds a resolver. A nil clock uses time.Now and a nil
// location uses UTC.
func NewPeriodResolver(now Clock, loc *time.Location) *PeriodResolver {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return &PeriodResolver{now: now, loc: loc}
}

// Now returns the clock's current instant in the resolver's zone.
func (r *PeriodResolver) Now() time.Time {
	return r.now().In(r.loc)
}

// Location returns the operation's zone.
func (r *PeriodResolver) Location() *time.Location {
	return r.loc
}

// Resolve converts a named period into a rolling range ending now. "Nd" starts
// at midnight N days before today; "all" starts at the zero time. An empty name
// resolves to the default 30-day window.
func (r *PeriodResolver) Resolve(name string) (models.DateRange, error) {
	if name == "" {
		name = DefaultPeriod
	}

	now := r.Now()
	if name == PeriodAll {
		return models.DateRange{End: now, Rolling: true}, nil
	}

	days, ok := periodDays[name]
	if !ok {
		return models.DateRange{}, models.NewValidationError("period", fmt.Sprintf("unknown period %q", name))
	}

	start := models.TruncateDay(now).AddDate(0, 0, -days)
	return models.DateRange{Start: start, End: now, Rolling: true}, nil
}

// ResolveExplicit builds a fixed range covering whole days from start to end
// in the operation's zone.
func (r *PeriodResolver) ResolveExplicit(start, end time.Time) (models.DateRange, error) {
	if start.IsZero() || end.IsZero() {
		return models.DateRange{}, models.NewValidationError("period", "both start and end are required")
	}

	from := dayIn(start, r.loc)
	to := dayIn(end, r.loc).AddDate(0, 0, 1).Add(-time.Nanosecond)
	if to.Before(from) {
		return models.DateRange{}, models.NewValidationError("period", "end is before start")
	}
	return models.DateRange{Start: from, End: to}, nil
}

// Lifetime is the life-to-date range ending now.
func (r *PeriodResolver) Lifetime() models.DateRange {
	return models.DateRange{End: r.Now(), Rolling: true}
}

// IsWithin reports whether an anchor date (placement, split) belongs to the
// range. Rolling ranges end at now, so only the lower bound applies to them.
func IsWithin(anchor time.Time, period models.DateRange) bool {
	return period.Contains(anchor)
}

// dayIn reads the calendar date of t and pins it to midnight in loc.
func dayIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
