package main

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRouter(bookingHandler *BookingHandler, metricsHandler http.Handler, log *slog.Logger) *gin.Engine {
	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(CORSMiddleware())
	r.Use(LoggingMiddleware(log))

	r.GET("/health", bookingHandler.HealthCheck)
	if metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(metricsHandler))
	}

	// Booking endpoints
	booking := r.Group("/api/booking")
	booking.GET("/availableDates", bookingHandler.GetAvailableDates)
	booking.GET("/:bookingId", bookingHandler.GetBooking)
	booking.POST("/new", bookingHandler.CreateBooking)
	booking.POST("/modify", bookingHandler.ModifyBooking)
	booking.DELETE("/delete/:bookingId", bookingHandler.CancelBooking)

	return r
}
