package service

import (
	"errors"

	"github.com/arunvm123/campsite/calendar"
)

var (
	// ErrInvalidDateRange is returned when requested dates break the stay or query rules.
	ErrInvalidDateRange = calendar.ErrInvalidDateRange
	// ErrAlreadyBooked is returned when a requested day belongs to another booking.
	ErrAlreadyBooked = errors.New("dates already booked")
	// ErrBookingNotFound is returned for unknown, canceled or concurrently changed bookings.
	ErrBookingNotFound = errors.New("booking not found")
	// ErrBookingFinished is returned for changes to a stay that is already over.
	ErrBookingFinished = errors.New("booking finished")
	// ErrBookingFailure hides storage failures from callers. The cause is logged.
	ErrBookingFailure = errors.New("booking failure")
)
