package model

import (
	"time"

	"github.com/arunvm123/campsite/calendar"
)

// ============================================================================
// DATABASE ENTITIES (Internal - GORM only, no JSON tags)
// ============================================================================

// Booking represents a reservation of the campsite for a contiguous set of days
type Booking struct {
	ID        string        `gorm:"type:varchar(36);primaryKey"`
	Name      string        `gorm:"type:varchar(255);not null"`
	Email     string        `gorm:"type:varchar(255);not null"`
	Version   int           `gorm:"not null;default:1"`
	Dates     []BookingDate `gorm:"foreignKey:BookingID"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName sets the table name for GORM
func (Booking) TableName() string {
	return "bookings"
}

// BookingDate is one booked day. The unique index on Date is what keeps
// two bookings from ever holding the same day.
type BookingDate struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	BookingID string    `gorm:"type:varchar(36);not null;index"`
	Date      time.Time `gorm:"type:date;not null;uniqueIndex:ux_booking_dates_date"`
}

// TableName sets the table name for GORM
func (BookingDate) TableName() string {
	return "booking_dates"
}

// NewBookingDates builds the date rows for a booking id.
func NewBookingDates(bookingID string, dates []time.Time) []BookingDate {
	rows := make([]BookingDate, len(dates))
	for i, d := range dates {
		rows[i] = BookingDate{BookingID: bookingID, Date: calendar.Normalize(d)}
	}
	return rows
}

// DateSet returns the booked days as a set
func (b *Booking) DateSet() calendar.Set {
	s := make(calendar.Set, len(b.Dates))
	for _, d := range b.Dates {
		s.Add(d.Date)
	}
	return s
}

// IsFinished reports whether every day of the stay is on or before today.
// Finished bookings can no longer be modified or canceled.
func (b *Booking) IsFinished(today time.Time) bool {
	_, last, ok := b.DateSet().Bounds()
	if !ok {
		return false
	}
	return !last.After(calendar.Normalize(today))
}

// ============================================================================
// API DATA TRANSFER OBJECTS (External - JSON tags for HTTP)
// ============================================================================

// CreateBookingRequest represents the API request to create a booking
type CreateBookingRequest struct {
	Name      string `json:"name" binding:"required,max=255"`
	Email     string `json:"email" binding:"required,email,max=255"`
	StartDate string `json:"startDate" binding:"required"`
	EndDate   string `json:"endDate" binding:"required"`
}

// ModifyBookingRequest represents the API request to move a booking to new dates
type ModifyBookingRequest struct {
	BookingID string `json:"bookingId" binding:"required"`
	StartDate string `json:"startDate" binding:"required"`
	EndDate   string `json:"endDate" binding:"required"`
}

// AvailableDatesQuery holds the optional query window
type AvailableDatesQuery struct {
	StartDate string `form:"startDate"`
	EndDate   string `form:"endDate"`
}

// BookingResponse represents a booking as returned by the API
type BookingResponse struct {
	BookingID string `json:"bookingId"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Checks    map[string]string `json:"checks"`
	Timestamp time.Time         `json:"timestamp"`
}

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ============================================================================
// KAFKA MESSAGE STRUCTURES
// ============================================================================

const (
	EventBookingCreated  = "booking_created"
	EventBookingModified = "booking_modified"
	EventBookingCanceled = "booking_canceled"
)

// BookingEvent is published after a booking change has been committed
type BookingEvent struct {
	Type      string    `json:"type"`
	BookingID string    `json:"booking_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
	Timestamp time.Time `json:"timestamp"`
}

// CacheResetRequest asks the worker to rebuild the booked-dates cache now
type CacheResetRequest struct {
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// ============================================================================
// CONVERSION METHODS
// ============================================================================

// ToBookingResponse converts a Booking entity to an API response
func (b *Booking) ToBookingResponse() *BookingResponse {
	first, last, _ := b.DateSet().Bounds()
	return &BookingResponse{
		BookingID: b.ID,
		Name:      b.Name,
		Email:     b.Email,
		StartDate: first.Format(calendar.Layout),
		EndDate:   last.Format(calendar.Layout),
	}
}

// ToBookingEvent converts a Booking entity to a Kafka event
func (b *Booking) ToBookingEvent(eventType string, now time.Time) BookingEvent {
	first, last, _ := b.DateSet().Bounds()
	return BookingEvent{
		Type:      eventType,
		BookingID: b.ID,
		Name:      b.Name,
		Email:     b.Email,
		StartDate: first.Format(calendar.Layout),
		EndDate:   last.Format(calendar.Layout),
		Timestamp: now,
	}
}
