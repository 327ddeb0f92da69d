package timing

import (
	"time"

	"github.com/shopspring/decimal"
)

// TATMinutes returns the span between start and end in minutes, exact to the
// millisecond. Both the fold engine and the master builder derive turnaround
// time through this one function so the two paths can never drift.
func TATMinutes(start, end time.Time) decimal.Decimal {
	return decimal.NewFromInt(end.Sub(start).Milliseconds()).
		Div(decimal.NewFromInt(60_000))
}

// AgeDays returns whole days elapsed from start to asOf, truncated.
// A volatile as-of-now value, not an immutable fact.
func AgeDays(start, asOf time.Time) int {
	return int(asOf.Sub(start).Hours() / 24)
}

// MinTime returns the earlier of the current value and candidate, treating
// nil current as unset.
func MinTime(current *time.Time, candidate time.Time) *time.Time {
	if current == nil || candidate.Before(*current) {
		c := candidate
		return &c
	}
	return current
}

// MaxTime returns the later of the current value and candidate, treating
// nil current as unset.
func MaxTime(current *time.Time, candidate time.Time) *time.Time {
	if current == nil || candidate.After(*current) {
		c := candidate
		return &c
	}
	return current
}
