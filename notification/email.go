package notification

import (
	"fmt"

	"github.com/arunvm123/campsite/model"
)

// EmailTemplate represents an email to be sent
type EmailTemplate struct {
	To      string
	Subject string
	Body    string
}

const signature = "Campsite Reservations"

// GenerateEmail renders the guest email for a booking event. ok is false for
// event types that do not notify the guest.
func GenerateEmail(event model.BookingEvent) (email *EmailTemplate, ok bool) {
	switch event.Type {
	case model.EventBookingCreated:
		return bookingConfirmedEmail(event), true
	case model.EventBookingModified:
		return bookingModifiedEmail(event), true
	case model.EventBookingCanceled:
		return bookingCanceledEmail(event), true
	default:
		return nil, false
	}
}

func bookingConfirmedEmail(e model.BookingEvent) *EmailTemplate {
	body := "Dear " + e.Name + ",\n\n" +
		"Your campsite reservation is confirmed!\n\n" +
		stayDetails(e) +
		"We look forward to seeing you.\n\n" +
		signature

	return &EmailTemplate{
		To:      e.Email,
		Subject: "Reservation Confirmed - " + e.StartDate,
		Body:    body,
	}
}

func bookingModifiedEmail(e model.BookingEvent) *EmailTemplate {
	body := "Dear " + e.Name + ",\n\n" +
		"Your campsite reservation has been moved to new dates.\n\n" +
		stayDetails(e) +
		"Your booking ID is unchanged.\n\n" +
		signature

	return &EmailTemplate{
		To:      e.Email,
		Subject: "Reservation Updated - " + e.StartDate,
		Body:    body,
	}
}

func bookingCanceledEmail(e model.BookingEvent) *EmailTemplate {
	body := "Dear " + e.Name + ",\n\n" +
		"Your campsite reservation has been canceled.\n\n" +
		stayDetails(e) +
		"The dates are now open to other guests.\n\n" +
		signature

	return &EmailTemplate{
		To:      e.Email,
		Subject: "Reservation Canceled - " + e.StartDate,
		Body:    body,
	}
}

func stayDetails(e model.BookingEvent) string {
	return fmt.Sprintf("Arrival: %s\nDeparture: %s\nBooking ID: %s\n\n", e.StartDate, e.EndDate, e.BookingID)
}
