package service

import (
	"context"

	"github.com/arunvm123/campsite/model"
)

// TaskSubmitter runs fire-and-forget work in the background. Submit reports
// false when the task was dropped.
type TaskSubmitter interface {
	Submit(name string, fn func(ctx context.Context)) bool
}

// EventPublisher sends committed booking changes downstream
type EventPublisher interface {
	Publish(ctx context.Context, event model.BookingEvent) error
	Close() error
}

// CacheReconciler rebuilds the booked-dates cache from the store
type CacheReconciler interface {
	Run(ctx context.Context)
}
