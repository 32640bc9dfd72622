package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/arunvm123/campsite/cache"
	"github.com/arunvm123/campsite/calendar"
	"github.com/arunvm123/campsite/metrics"
	"github.com/arunvm123/campsite/model"
	"github.com/segmentio/kafka-go"
)

// ScheduledDatesFinder is the read side of the booking store.
type ScheduledDatesFinder interface {
	FindScheduledDates(ctx context.Context, startDate, endDate time.Time) (calendar.Set, error)
}

// MessageReader is satisfied by *kafka.Reader.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// Reconciler rebuilds the booked-dates cache from the booking store. Runs
// are serialized and idempotent; failures are logged, never returned.
type Reconciler struct {
	store   ScheduledDatesFinder
	cache   cache.DateCache
	now     func() time.Time
	loc     *time.Location
	metrics *metrics.Recorder
	log     *slog.Logger

	mu sync.Mutex
}

func NewReconciler(store ScheduledDatesFinder, dateCache cache.DateCache, now func() time.Time, loc *time.Location, rec *metrics.Recorder, log *slog.Logger) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		store:   store,
		cache:   dateCache,
		now:     now,
		loc:     loc,
		metrics: rec,
		log:     log.With("component", "reconciler"),
	}
}

// Run clears the cache and fills it with every booked day from today on.
// If the store read fails the cache stays cleared, so the next availability
// read refills it.
func (r *Reconciler) Run(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	today := calendar.Today(r.now(), r.loc)

	r.cache.Clear(ctx)

	dates, err := r.store.FindScheduledDates(ctx, today, calendar.AddDays(today, calendar.FarFutureDays))
	if err != nil {
		r.metrics.ReconcileRun(ctx, metrics.OutcomeFailure)
		r.log.Error("cache reconciliation failed", "error", err)
		return
	}

	r.cache.Fill(ctx, dates.Sorted())
	r.metrics.ReconcileRun(ctx, metrics.OutcomeSuccess)
	r.log.Info("cache reconciled", "dates", len(dates), "took", time.Since(start))
}

// Schedule runs the reconciler every interval until ctx is canceled.
func (r *Reconciler) Schedule(ctx context.Context, interval time.Duration, runOnStart bool) error {
	if interval <= 0 {
		return errors.New("reconcile interval must be positive")
	}

	r.log.Info("reconciler scheduled", "interval", interval, "run_on_start", runOnStart)
	if runOnStart {
		r.Run(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Run(ctx)
		}
	}
}

// ConsumeResets runs the reconciler once per message read from reader.
func (r *Reconciler) ConsumeResets(ctx context.Context, reader MessageReader) error {
	r.log.Info("listening for cache reset requests")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.log.Error("error reading cache reset message", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		var req model.CacheResetRequest
		if err := json.Unmarshal(msg.Value, &req); err != nil {
			r.log.Warn("unreadable cache reset payload, reconciling anyway", "error", err)
		}
		r.log.Info("cache reset requested", "reason", req.Reason, "offset", msg.Offset)
		r.Run(ctx)
	}
}
