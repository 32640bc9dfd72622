package cache

import (
	"context"
	"time"

	"github.com/arunvm123/campsite/calendar"
)

// PopulatedMarker is stored alongside the dates so that a filled cache with
// no bookings is still distinguishable from a cold one.
const PopulatedMarker = "~populated"

// DateCache is the cache-aside set of booked days. It is advisory only:
// implementations log and absorb backend failures instead of returning them.
type DateCache interface {
	// GetAll returns the cached days. ok is false when the cache has not
	// been filled or the backend could not be read.
	GetAll(ctx context.Context) (dates calendar.Set, ok bool)

	// Add inserts days into an already filled cache. On a cold cache it does nothing.
	Add(ctx context.Context, dates []time.Time)
	Remove(ctx context.Context, dates []time.Time)
	// Replace removes oldDates then adds newDates. Not atomic.
	Replace(ctx context.Context, newDates, oldDates []time.Time)

	// Fill writes dates and marks the cache as populated.
	Fill(ctx context.Context, dates []time.Time)
	Clear(ctx context.Context)

	// Health check
	Ping(ctx context.Context) error
}
