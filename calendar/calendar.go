// Package calendar holds the date arithmetic and the booking-window rules.
//
// Every date handled by the service is a calendar day represented as a
// time.Time at midnight UTC. Normalize converts any instant into that form
// so dates can be compared with == and used as map keys.
package calendar

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

const (
	// Layout is the canonical string form of a date on the wire and in the cache.
	Layout = "2006-01-02"

	MaxStayDays      = 3
	MinDaysInAdvance = 1
	MaxDaysInAdvance = 30

	// DefaultWindowDays is the size of the availability window when no end is given.
	DefaultWindowDays = 30

	// MaxWindowDays bounds an availability query.
	MaxWindowDays = 366

	// FarFutureDays is how far ahead "all live bookings" reaches.
	FarFutureDays = 3650
)

var ErrInvalidDateRange = errors.New("invalid date range")

// Normalize drops the clock part of t, keeping the calendar day as seen in t's location.
func Normalize(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current calendar day in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return Normalize(now.In(loc))
}

func AddDays(t time.Time, days int) time.Time {
	return Normalize(t).AddDate(0, 0, days)
}

// DaysBetween returns the number of whole days from a to b (negative if b is before a).
func DaysBetween(a, b time.Time) int {
	return int(Normalize(b).Sub(Normalize(a)).Hours() / 24)
}

// Between returns every date in [start, end], ascending. Empty if end is before start.
func Between(start, end time.Time) []time.Time {
	start, end = Normalize(start), Normalize(end)
	if end.Before(start) {
		return nil
	}
	dates := make([]time.Time, 0, DaysBetween(start, end)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

func Format(t time.Time) string {
	return Normalize(t).Format(Layout)
}

func Parse(s string) (time.Time, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// ValidateRange enforces the stay rules for a booking request:
// end strictly after start, at most MaxStayDays days inclusive, and a start
// between MinDaysInAdvance and MaxDaysInAdvance days after today.
func ValidateRange(start, end, today time.Time) error {
	start, end, today = Normalize(start), Normalize(end), Normalize(today)

	ahead := DaysBetween(today, start)
	switch {
	case !end.After(start),
		DaysBetween(start, end)+1 > MaxStayDays,
		ahead < MinDaysInAdvance,
		ahead > MaxDaysInAdvance:
		return ErrInvalidDateRange
	}
	return nil
}

// ValidateWindow checks an availability query window.
func ValidateWindow(start, end time.Time) error {
	start, end = Normalize(start), Normalize(end)
	if end.Before(start) || DaysBetween(start, end)+1 > MaxWindowDays {
		return ErrInvalidDateRange
	}
	return nil
}

// Set is a set of calendar days.
type Set map[time.Time]struct{}

func NewSet(dates ...time.Time) Set {
	s := make(Set, len(dates))
	for _, d := range dates {
		s.Add(d)
	}
	return s
}

func (s Set) Add(d time.Time) {
	s[Normalize(d)] = struct{}{}
}

func (s Set) Has(d time.Time) bool {
	_, ok := s[Normalize(d)]
	return ok
}

// Sorted returns the members in ascending order.
func (s Set) Sorted() []time.Time {
	out := make([]time.Time, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Strings returns the members in canonical form, ascending.
func (s Set) Strings() []string {
	sorted := s.Sorted()
	out := make([]string, len(sorted))
	for i, d := range sorted {
		out[i] = d.Format(Layout)
	}
	return out
}

// Bounds returns the earliest and latest members. ok is false for an empty set.
func (s Set) Bounds() (first, last time.Time, ok bool) {
	sorted := s.Sorted()
	if len(sorted) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return sorted[0], sorted[len(sorted)-1], true
}
