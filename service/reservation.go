package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/arunvm123/campsite/availability"
	"github.com/arunvm123/campsite/cache"
	"github.com/arunvm123/campsite/calendar"
	"github.com/arunvm123/campsite/metrics"
	"github.com/arunvm123/campsite/model"
	"github.com/arunvm123/campsite/repository"
	"github.com/google/uuid"
)

const (
	opCreate = "create"
	opModify = "modify"
	opCancel = "cancel"
)

// Dependencies wires a ReservationService. Now and Location default to
// time.Now and UTC.
type Dependencies struct {
	Repo       repository.BookingRepository
	Cache      cache.DateCache
	Tasks      TaskSubmitter
	Events     EventPublisher
	Reconciler CacheReconciler
	Metrics    *metrics.Recorder
	Logger     *slog.Logger
	Now        func() time.Time
	Location   *time.Location
}

// ReservationService owns the booking rules and the cache protocol: the store
// is written first and the cache is only updated, in the background, after
// the store has committed.
type ReservationService struct {
	repo       repository.BookingRepository
	cache      cache.DateCache
	calculator *availability.Calculator
	tasks      TaskSubmitter
	events     EventPublisher
	reconciler CacheReconciler
	metrics    *metrics.Recorder
	log        *slog.Logger
	now        func() time.Time
	loc        *time.Location
}

func NewReservationService(deps Dependencies) *ReservationService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	log := deps.Logger.With("component", "reservation_service")

	return &ReservationService{
		repo:       deps.Repo,
		cache:      deps.Cache,
		calculator: availability.NewCalculator(deps.Repo, deps.Cache, deps.Metrics, deps.Logger),
		tasks:      deps.Tasks,
		events:     deps.Events,
		reconciler: deps.Reconciler,
		metrics:    deps.Metrics,
		log:        log,
		now:        deps.Now,
		loc:        deps.Location,
	}
}

func (s *ReservationService) today() time.Time {
	return calendar.Today(s.now(), s.loc)
}

// GetAvailableDates returns the free days of the window, ascending.
// Missing bounds default to today and a 30 day window.
func (s *ReservationService) GetAvailableDates(ctx context.Context, start, end *time.Time) ([]time.Time, error) {
	today := s.today()

	if end != nil {
		from := today
		if start != nil {
			from = *start
		}
		if err := calendar.ValidateWindow(from, *end); err != nil {
			return nil, ErrInvalidDateRange
		}
	}

	dates, err := s.calculator.AvailableDates(ctx, today, start, end)
	if err != nil {
		if errors.Is(err, calendar.ErrInvalidDateRange) {
			return nil, ErrInvalidDateRange
		}
		s.log.Error("failed to compute available dates", "error", err)
		return nil, ErrBookingFailure
	}
	return dates, nil
}

func (s *ReservationService) GetBooking(ctx context.Context, bookingID string) (*model.Booking, error) {
	booking, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrBookingNotFound) {
			return nil, ErrBookingNotFound
		}
		s.log.Error("failed to get booking", "booking_id", bookingID, "error", err)
		return nil, ErrBookingFailure
	}
	return booking, nil
}

// CreateBooking reserves every day in [start, end] for the guest.
func (s *ReservationService) CreateBooking(ctx context.Context, name, email string, start, end time.Time) (*model.Booking, error) {
	if err := calendar.ValidateRange(start, end, s.today()); err != nil {
		s.metrics.BookingOperation(ctx, opCreate, metrics.OutcomeRejected)
		return nil, ErrInvalidDateRange
	}

	dates := calendar.Between(start, end)
	id := uuid.NewString()
	booking := &model.Booking{
		ID:    id,
		Name:  name,
		Email: email,
		Dates: model.NewBookingDates(id, dates),
	}

	saved, err := s.repo.Save(ctx, booking)
	if err != nil {
		if errors.Is(err, repository.ErrDateConflict) {
			s.metrics.BookingOperation(ctx, opCreate, metrics.OutcomeRejected)
			return nil, ErrAlreadyBooked
		}
		s.metrics.BookingOperation(ctx, opCreate, metrics.OutcomeFailure)
		s.log.Error("failed to create booking", "error", err)
		return nil, ErrBookingFailure
	}

	s.metrics.BookingOperation(ctx, opCreate, metrics.OutcomeSuccess)
	s.log.Info("booking created", "booking_id", saved.ID,
		"start_date", calendar.Format(start), "end_date", calendar.Format(end))

	s.submit("cache.add", func(ctx context.Context) { s.cache.Add(ctx, dates) })
	s.publish(saved, model.EventBookingCreated)

	return saved, nil
}

// ModifyBooking moves an existing booking to [start, end], keeping its id.
func (s *ReservationService) ModifyBooking(ctx context.Context, bookingID string, start, end time.Time) (*model.Booking, error) {
	today := s.today()
	if err := calendar.ValidateRange(start, end, today); err != nil {
		s.metrics.BookingOperation(ctx, opModify, metrics.OutcomeRejected)
		return nil, ErrInvalidDateRange
	}

	existing, err := s.findActive(ctx, opModify, bookingID, today)
	if err != nil {
		return nil, err
	}

	oldDates := existing.DateSet().Sorted()
	newDates := calendar.Between(start, end)

	updated := *existing
	updated.Dates = model.NewBookingDates(existing.ID, newDates)

	saved, err := s.repo.Save(ctx, &updated)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDateConflict):
			s.metrics.BookingOperation(ctx, opModify, metrics.OutcomeRejected)
			return nil, ErrAlreadyBooked
		case errors.Is(err, repository.ErrOptimisticConflict):
			s.metrics.BookingOperation(ctx, opModify, metrics.OutcomeRejected)
			s.log.Warn("booking changed concurrently", "booking_id", bookingID)
			return nil, ErrBookingNotFound
		default:
			s.metrics.BookingOperation(ctx, opModify, metrics.OutcomeFailure)
			s.log.Error("failed to modify booking", "booking_id", bookingID, "error", err)
			return nil, ErrBookingFailure
		}
	}

	s.metrics.BookingOperation(ctx, opModify, metrics.OutcomeSuccess)
	s.log.Info("booking modified", "booking_id", saved.ID,
		"start_date", calendar.Format(start), "end_date", calendar.Format(end))

	s.submit("cache.replace", func(ctx context.Context) { s.cache.Replace(ctx, newDates, oldDates) })
	s.publish(saved, model.EventBookingModified)

	return saved, nil
}

// CancelBooking removes a booking that has not finished yet.
func (s *ReservationService) CancelBooking(ctx context.Context, bookingID string) error {
	existing, err := s.findActive(ctx, opCancel, bookingID, s.today())
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, existing); err != nil {
		if errors.Is(err, repository.ErrOptimisticConflict) {
			s.metrics.BookingOperation(ctx, opCancel, metrics.OutcomeRejected)
			s.log.Warn("booking changed concurrently", "booking_id", bookingID)
			return ErrBookingNotFound
		}
		s.metrics.BookingOperation(ctx, opCancel, metrics.OutcomeFailure)
		s.log.Error("failed to cancel booking", "booking_id", bookingID, "error", err)
		return ErrBookingFailure
	}

	s.metrics.BookingOperation(ctx, opCancel, metrics.OutcomeSuccess)
	s.log.Info("booking canceled", "booking_id", bookingID)

	dates := existing.DateSet().Sorted()
	s.submit("cache.remove", func(ctx context.Context) { s.cache.Remove(ctx, dates) })
	s.publish(existing, model.EventBookingCanceled)

	return nil
}

// ReconcileCache rebuilds the cache from the store. Errors are logged by the reconciler.
func (s *ReservationService) ReconcileCache(ctx context.Context) {
	s.reconciler.Run(ctx)
}

// Ping reports store and cache health, keyed by dependency name
func (s *ReservationService) Ping(ctx context.Context) map[string]error {
	return map[string]error{
		"database": s.repo.Ping(ctx),
		"cache":    s.cache.Ping(ctx),
	}
}

func (s *ReservationService) findActive(ctx context.Context, op, bookingID string, today time.Time) (*model.Booking, error) {
	existing, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrBookingNotFound) {
			s.metrics.BookingOperation(ctx, op, metrics.OutcomeRejected)
			return nil, ErrBookingNotFound
		}
		s.metrics.BookingOperation(ctx, op, metrics.OutcomeFailure)
		s.log.Error("failed to load booking", "booking_id", bookingID, "error", err)
		return nil, ErrBookingFailure
	}

	if existing.IsFinished(today) {
		s.metrics.BookingOperation(ctx, op, metrics.OutcomeRejected)
		return nil, ErrBookingFinished
	}
	return existing, nil
}

func (s *ReservationService) submit(name string, fn func(ctx context.Context)) {
	if !s.tasks.Submit(name, fn) {
		s.log.Warn("background task dropped, cache may be stale until the next reconcile", "task", name)
	}
}

func (s *ReservationService) publish(booking *model.Booking, eventType string) {
	if s.events == nil {
		return
	}
	event := booking.ToBookingEvent(eventType, s.now())
	s.submit("event.publish", func(ctx context.Context) {
		if err := s.events.Publish(ctx, event); err != nil {
			s.log.Warn("failed to publish booking event", "type", eventType, "booking_id", event.BookingID, "error", err)
		}
	})
}
