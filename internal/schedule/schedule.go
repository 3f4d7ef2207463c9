// Package schedule decides how long to wait between successful refresh cycles.
package schedule

import (
	"fmt"
	"time"

	"github.com/quotewatch/quotewatch/internal/config"
)

// Policy maps wall-clock time to a refresh interval. It is a pure value and
// safe to share between goroutines.
type Policy struct {
	Business time.Duration
	Weekend  time.Duration

	// Loc decides which calendar day t falls on. Nil means UTC.
	Loc *time.Location
}

// FromConfig builds the Policy described by s.
func FromConfig(s config.Schedule) (Policy, error) {
	loc, err := s.Location()
	if err != nil {
		return Policy{}, fmt.Errorf("schedule: timezone %q: %w", s.Timezone, err)
	}
	return Policy{
		Business: s.BusinessDayInterval,
		Weekend:  s.WeekendInterval,
		Loc:      loc,
	}, nil
}

// Interval returns the wait after a successful cycle finishing at t.
func (p Policy) Interval(t time.Time) time.Duration {
	if IsWeekend(t.In(p.location())) {
		return p.Weekend
	}
	return p.Business
}

// Min returns the shortest interval the policy can produce.
func (p Policy) Min() time.Duration {
	return min(p.Business, p.Weekend)
}

func (p Policy) location() *time.Location {
	if p.Loc == nil {
		return time.UTC
	}
	return p.Loc
}

// IsWeekend reports whether t falls on Saturday or Sunday in its own location.
func IsWeekend(t time.Time) bool {
	d := t.Weekday()
	return d == time.Saturday || d == time.Sunday
}
