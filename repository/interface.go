package repository

import (
	"context"
	"errors"
	"time"

	"github.com/arunvm123/campsite/calendar"
	"github.com/arunvm123/campsite/model"
)

var (
	// ErrDateConflict means at least one requested day already belongs to another booking.
	ErrDateConflict = errors.New("booking date already taken")
	// ErrOptimisticConflict means the booking row changed or vanished since it was read.
	ErrOptimisticConflict = errors.New("booking was modified concurrently")
	ErrBookingNotFound    = errors.New("booking not found")
)

// BookingRepository is the authoritative store. It is the only place where
// date uniqueness and booking versions are enforced.
type BookingRepository interface {
	// Save inserts the booking when Version is 0, otherwise replaces its
	// dates provided the stored version still equals booking.Version.
	// On success booking.Version holds the new stored version.
	Save(ctx context.Context, booking *model.Booking) (*model.Booking, error)
	FindByID(ctx context.Context, bookingID string) (*model.Booking, error)
	// FindScheduledDates returns every booked day within [startDate, endDate].
	FindScheduledDates(ctx context.Context, startDate, endDate time.Time) (calendar.Set, error)
	// Delete removes the booking, version-checked like Save.
	Delete(ctx context.Context, booking *model.Booking) error

	// Health check
	Ping(ctx context.Context) error
}
