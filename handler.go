package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/arunvm123/campsite/calendar"
	"github.com/arunvm123/campsite/model"
	"github.com/arunvm123/campsite/service"
	"github.com/gin-gonic/gin"
)

// User facing messages
const (
	msgBookingNotFound   = "Could not find the requested booking."
	msgInvalidWindow     = "Dates are invalid. Start date must be before end date and the window at most 366 days."
	msgInvalidStay       = "Invalid booking dates. Reservation is for a maximum of 3 days and must be made with a minimum of 1 day or a maximum of 30 days in advance."
	msgInvalidDateFormat = "Dates must use the YYYY-MM-DD format."
	msgAlreadyBooked     = "Apologies, but the date/s are already taken."
	msgGeneralError      = "Apologies, but we could not process your request at the moment. Please try again later."
)

// ReservationService is the part of service.ReservationService the handlers use
type ReservationService interface {
	GetAvailableDates(ctx context.Context, start, end *time.Time) ([]time.Time, error)
	GetBooking(ctx context.Context, bookingID string) (*model.Booking, error)
	CreateBooking(ctx context.Context, name, email string, start, end time.Time) (*model.Booking, error)
	ModifyBooking(ctx context.Context, bookingID string, start, end time.Time) (*model.Booking, error)
	CancelBooking(ctx context.Context, bookingID string) error
	Ping(ctx context.Context) map[string]error
}

type BookingHandler struct {
	service ReservationService
}

func NewBookingHandler(svc ReservationService) *BookingHandler {
	return &BookingHandler{service: svc}
}

// GetAvailableDates lists the free days in the optional startDate/endDate window
func (h *BookingHandler) GetAvailableDates(c *gin.Context) {
	var query model.AvailableDatesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "validation_failed",
			Message: err.Error(),
		})
		return
	}

	start, ok := optionalDate(c, query.StartDate)
	if !ok {
		return
	}
	end, ok := optionalDate(c, query.EndDate)
	if !ok {
		return
	}

	dates, err := h.service.GetAvailableDates(c.Request.Context(), start, end)
	if err != nil {
		respondError(c, err, msgInvalidWindow, "")
		return
	}

	response := make([]string, len(dates))
	for i, d := range dates {
		response[i] = calendar.Format(d)
	}
	c.JSON(http.StatusOK, response)
}

// GetBooking returns a single booking
func (h *BookingHandler) GetBooking(c *gin.Context) {
	booking, err := h.service.GetBooking(c.Request.Context(), c.Param("bookingId"))
	if err != nil {
		respondError(c, err, "", "")
		return
	}

	c.JSON(http.StatusOK, booking.ToBookingResponse())
}

// CreateBooking reserves the campsite for the requested stay
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var req model.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "validation_failed",
			Message: err.Error(),
		})
		return
	}

	start, end, ok := requiredRange(c, req.StartDate, req.EndDate)
	if !ok {
		return
	}

	booking, err := h.service.CreateBooking(c.Request.Context(), req.Name, req.Email, start, end)
	if err != nil {
		respondError(c, err, msgInvalidStay, "")
		return
	}

	c.JSON(http.StatusOK, booking.ToBookingResponse())
}

// ModifyBooking moves a booking to new dates
func (h *BookingHandler) ModifyBooking(c *gin.Context) {
	var req model.ModifyBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "validation_failed",
			Message: err.Error(),
		})
		return
	}

	start, end, ok := requiredRange(c, req.StartDate, req.EndDate)
	if !ok {
		return
	}

	booking, err := h.service.ModifyBooking(c.Request.Context(), req.BookingID, start, end)
	if err != nil {
		respondError(c, err, msgInvalidStay, "modify")
		return
	}

	c.JSON(http.StatusOK, booking.ToBookingResponse())
}

// CancelBooking deletes a booking that has not finished
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	bookingID := c.Param("bookingId")
	if err := h.service.CancelBooking(c.Request.Context(), bookingID); err != nil {
		respondError(c, err, "", "delete")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bookingId": bookingID,
		"message":   "Booking canceled successfully",
	})
}

// HealthCheck handles health check endpoint. The database is required, the
// cache is only reported.
func (h *BookingHandler) HealthCheck(c *gin.Context) {
	results := h.service.Ping(c.Request.Context())

	checks := make(map[string]string, len(results))
	for name, err := range results {
		if err != nil {
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	response := model.HealthResponse{
		Status:    "healthy",
		Service:   serviceName,
		Checks:    checks,
		Timestamp: time.Now(),
	}

	if results["database"] != nil {
		response.Status = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	if results["cache"] != nil {
		response.Status = "degraded"
	}

	c.JSON(http.StatusOK, response)
}

func optionalDate(c *gin.Context, value string) (*time.Time, bool) {
	if value == "" {
		return nil, true
	}
	d, err := calendar.Parse(value)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "invalid_date",
			Message: msgInvalidDateFormat,
		})
		return nil, false
	}
	return &d, true
}

func requiredRange(c *gin.Context, startValue, endValue string) (time.Time, time.Time, bool) {
	start, err := calendar.Parse(startValue)
	if err == nil {
		var end time.Time
		if end, err = calendar.Parse(endValue); err == nil {
			return start, end, true
		}
	}

	c.JSON(http.StatusBadRequest, model.ErrorResponse{
		Error:   "invalid_date",
		Message: msgInvalidDateFormat,
	})
	return time.Time{}, time.Time{}, false
}

// respondError maps service errors to a status and a user safe message.
func respondError(c *gin.Context, err error, invalidRangeMsg, action string) {
	switch {
	case errors.Is(err, service.ErrInvalidDateRange):
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "invalid_date_range",
			Message: invalidRangeMsg,
		})
	case errors.Is(err, service.ErrAlreadyBooked):
		c.JSON(http.StatusConflict, model.ErrorResponse{
			Error:   "already_booked",
			Message: msgAlreadyBooked,
		})
	case errors.Is(err, service.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, model.ErrorResponse{
			Error:   "booking_not_found",
			Message: msgBookingNotFound,
		})
	case errors.Is(err, service.ErrBookingFinished):
		c.JSON(http.StatusUnprocessableEntity, model.ErrorResponse{
			Error:   "booking_finished",
			Message: fmt.Sprintf("Can't %s a booking that has already passed.", action),
		})
	default:
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Error:   "internal_error",
			Message: msgGeneralError,
		})
	}
}
