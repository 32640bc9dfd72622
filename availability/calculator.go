// Package availability derives the free days of a window from the booked-days
// cache, refilling the cache from the booking store on a miss.
package availability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arunvm123/campsite/cache"
	"github.com/arunvm123/campsite/calendar"
	"github.com/arunvm123/campsite/metrics"
)

// ScheduledDatesFinder is the read side of the booking store used on a cache miss.
type ScheduledDatesFinder interface {
	FindScheduledDates(ctx context.Context, startDate, endDate time.Time) (calendar.Set, error)
}

type Calculator struct {
	store   ScheduledDatesFinder
	cache   cache.DateCache
	metrics *metrics.Recorder
	log     *slog.Logger
}

func NewCalculator(store ScheduledDatesFinder, dateCache cache.DateCache, rec *metrics.Recorder, log *slog.Logger) *Calculator {
	return &Calculator{
		store:   store,
		cache:   dateCache,
		metrics: rec,
		log:     log.With("component", "availability"),
	}
}

// AvailableDates returns the free days in [start, end], ascending.
// A nil start means today and a nil end means start plus DefaultWindowDays-1.
func (c *Calculator) AvailableDates(ctx context.Context, today time.Time, start, end *time.Time) ([]time.Time, error) {
	today = calendar.Normalize(today)

	from := today
	if start != nil {
		from = calendar.Normalize(*start)
	}
	to := calendar.AddDays(from, calendar.DefaultWindowDays-1)
	if end != nil {
		to = calendar.Normalize(*end)
	}
	if to.Before(from) {
		return nil, calendar.ErrInvalidDateRange
	}

	booked, err := c.BookedDates(ctx, today, from, to)
	if err != nil {
		return nil, err
	}

	free := make([]time.Time, 0, calendar.DaysBetween(from, to)+1)
	for _, d := range calendar.Between(from, to) {
		if !booked.Has(d) {
			free = append(free, d)
		}
	}
	return free, nil
}

// BookedDates returns the booked days relevant to [from, to]. The cache only
// holds days from today on, so days before today are read from the store.
// On a cache miss every booking from today to the far future is loaded and
// the cache is filled with that set.
func (c *Calculator) BookedDates(ctx context.Context, today, from, to time.Time) (calendar.Set, error) {
	today = calendar.Normalize(today)

	booked, err := c.upcoming(ctx, today)
	if err != nil {
		return nil, err
	}

	from = calendar.Normalize(from)
	if !from.Before(today) {
		return booked, nil
	}

	pastEnd := calendar.AddDays(today, -1)
	if t := calendar.Normalize(to); t.Before(pastEnd) {
		pastEnd = t
	}
	past, err := c.store.FindScheduledDates(ctx, from, pastEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to load past booked dates: %w", err)
	}

	merged := make(calendar.Set, len(booked)+len(past))
	for d := range booked {
		merged.Add(d)
	}
	for d := range past {
		merged.Add(d)
	}
	return merged, nil
}

func (c *Calculator) upcoming(ctx context.Context, today time.Time) (calendar.Set, error) {
	if dates, ok := c.cache.GetAll(ctx); ok {
		c.metrics.CacheLookup(ctx, true)
		return dates, nil
	}
	c.metrics.CacheLookup(ctx, false)

	dates, err := c.store.FindScheduledDates(ctx, today, calendar.AddDays(today, calendar.FarFutureDays))
	if err != nil {
		return nil, fmt.Errorf("failed to load booked dates: %w", err)
	}

	c.log.Debug("refilling booked dates cache", "dates", len(dates))
	c.cache.Fill(ctx, dates.Sorted())
	return dates, nil
}
