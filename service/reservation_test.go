package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/arunvm123/campsite/cache/memory"
	"github.com/arunvm123/campsite/calendar"
	"github.com/arunvm123/campsite/logger"
	"github.com/arunvm123/campsite/metrics"
	"github.com/arunvm123/campsite/model"
	"github.com/arunvm123/campsite/repository"
	"github.com/arunvm123/campsite/repository/postgres"
	"github.com/arunvm123/campsite/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// syncSubmitter runs tasks inline so cache effects are visible immediately.
type syncSubmitter struct {
	drop bool
}

func (s *syncSubmitter) Submit(_ string, fn func(ctx context.Context)) bool {
	if s.drop {
		return false
	}
	fn(context.Background())
	return true
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.BookingEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event model.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// faultyRepo overrides selected repository results.
type faultyRepo struct {
	repository.BookingRepository
	saveErr   error
	deleteErr error
	findErr   error
}

func (r *faultyRepo) Save(ctx context.Context, b *model.Booking) (*model.Booking, error) {
	if r.saveErr != nil {
		return nil, r.saveErr
	}
	return r.BookingRepository.Save(ctx, b)
}

func (r *faultyRepo) Delete(ctx context.Context, b *model.Booking) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	return r.BookingRepository.Delete(ctx, b)
}

func (r *faultyRepo) FindScheduledDates(ctx context.Context, start, end time.Time) (calendar.Set, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	return r.BookingRepository.FindScheduledDates(ctx, start, end)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(s string) {
	c.mu.Lock()
	c.now = day(s).Add(9 * time.Hour)
	c.mu.Unlock()
}

type fixture struct {
	db     *gorm.DB
	svc    *ReservationService
	repo   *faultyRepo
	cache  *memory.MemoryDateCache
	clock  *clock
	events *recordingPublisher
	tasks  *syncSubmitter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "campsite.db")+"?_busy_timeout=5000&_foreign_keys=on"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	store, err := postgres.NewBookingRepositoryFromDB(db, time.Second)
	require.NoError(t, err)

	f := &fixture{
		db:     db,
		repo:   &faultyRepo{BookingRepository: store},
		cache:  memory.NewMemoryDateCache(),
		clock:  &clock{},
		events: &recordingPublisher{},
		tasks:  &syncSubmitter{},
	}
	f.clock.Set("2024-01-01")

	rec := metrics.NewNoopRecorder()
	reconciler := worker.NewReconciler(f.repo, f.cache, f.clock.Now, time.UTC, rec, logger.Discard())

	f.svc = NewReservationService(Dependencies{
		Repo:       f.repo,
		Cache:      f.cache,
		Tasks:      f.tasks,
		Events:     f.events,
		Reconciler: reconciler,
		Metrics:    rec,
		Logger:     logger.Discard(),
		Now:        f.clock.Now,
		Location:   time.UTC,
	})
	return f
}

func day(s string) time.Time {
	t, err := calendar.Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr(t time.Time) *time.Time { return &t }

func formatted(dates []time.Time) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = calendar.Format(d)
	}
	return out
}

func TestScenario_CreateThenQueryDefaultWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	booking, err := f.svc.CreateBooking(ctx, "Ada", "ada@example.com", day("2024-01-02"), day("2024-01-04"))
	require.NoError(t, err)
	assert.NotEmpty(t, booking.ID)

	free, err := f.svc.GetAvailableDates(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, free, 27)
	assert.Equal(t, "2024-01-01", calendar.Format(free[0]))
	assert.NotContains(t, formatted(free), "2024-01-02")
	assert.NotContains(t, formatted(free), "2024-01-03")
	assert.NotContains(t, formatted(free), "2024-01-04")
	for i := 1; i < len(free); i++ {
		assert.True(t, free[i-1].Before(free[i]))
	}
}

func TestScenario_OverlappingCreateIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateBooking(ctx, "Ada", "ada@example.com", day("2024-01-02"), day("2024-01-04"))
	require.NoError(t, err)

	_, err = f.svc.CreateBooking(ctx, "Bob", "bob@example.com", day("2024-01-03"), day("2024-01-04"))
	assert.ErrorIs(t, err, ErrAlreadyBooked)

	booked, err := f.repo.FindScheduledDates(ctx, day("2024-01-01"), day("2024-12-31"))
	require.NoError(t, err)
	assert.Equal(t, first.DateSet().Strings(), booked.Strings())
}

func TestScenario_ModifyMovesDates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// warm the cache so the write path has to keep it right
	_, err := f.svc.GetAvailableDates(ctx, nil, nil)
	require.NoError(t, err)

	booking, err := f.svc.CreateBooking(ctx, "Ada", "ada@example.com", day("2024-01-02"), day("2024-01-04"))
	require.NoError(t, err)

	modified, err := f.svc.ModifyBooking(ctx, booking.ID, day("2024-01-10"), day("2024-01-12"))
	require.NoError(t, err)
	assert.Equal(t, booking.ID, modified.ID)
	assert.Equal(t, booking.Version+1, modified.Version)

	free, err := f.svc.GetAvailableDates(ctx, nil, nil)
	require.NoError(t, err)
	got := formatted(free)
	for _, d := range []string{"2024-01-10", "2024-01-11", "2024-01-12"} {
		assert.NotContains(t, got, d)
	}
	for _, d := range []string{"2024-01-02", "2024-01-03", "2024-01-04"} {
		assert.Contains(t, got, d)
	}

	fetched, err := f.svc.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	resp := fetched.ToBookingResponse()
	assert.Equal(t, "2024-01-10", resp.StartDate)
	assert.Equal(t, "2024-01-12", resp.EndDate)
}

func TestScenario_CancelFinishedBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	booking, err := f.svc.CreateBooking(ctx, "Ada", "ada@example.com", day("2024-01-02"), day("2024-01-04"))
	require.NoError(t, err)

	f.clock.Set("2024-01-05")

	err = f.svc.CancelBooking(ctx, booking.ID)
	assert.ErrorIs(t, err, ErrBookingFinished)

	_, err = f.svc.ModifyBooking(ctx, booking.ID, day("2024-01-10"), day("2024-01-11"))
	assert.ErrorIs(t, err, ErrBookingFinished)

	stored, err := f.svc.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.DateSet().Strings(), stored.DateSet().Strings())
}

func TestCancelBooking_InProgressStayCanBeCanceled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	booking, err := f.svc.CreateBooking(ctx, "Ada", "ada@example.com", day("2024-01-02"), day("2024-01-04"))
	require.NoError(t, err)

	f.clock.Set("2024-01-03")
	require.NoError(t, f.svc.CancelBooking(ctx, booking.ID))

	_, err = f.svc.GetBooking(ctx, booking.ID)
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestCancelBooking_FreesDates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetAvailableDates(ctx, nil, nil)
	require.NoError(t, err)

	booking, err := f.svc.CreateBooking(ctx, "Ada", "ada@example.com", day("2024-01-02"), day("2024-01-03"))
	require.NoError(t, err)
	require.NoError(t, f.svc.CancelBooking(ctx, booking.ID))

	cached, ok := f.cache.GetAll(ctx)
	require.True(t, ok)
	assert.Empty(t, cached)

	assert.ErrorIs(t, f.svc.CancelBooking(ctx, booking.ID), ErrBookingNotFound)

	assert.Equal(t, []string{
		model.EventBookingCreated,
		model.EventBookingCanceled,
	}, f.events.types())
}

func TestCancelBooking_ForeignKeysEnforced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var fkEnabled int
	require.NoError(t, f.db.Raw("PRAGMA foreign_keys").Scan(&fkEnabled).Error)
	require.Equal(t, 1, fkEnabled)

	booking, err := f.svc.CreateBooking(ctx, "Ada", "ada@example.com", day("2024-01-02"), day("2024-01-04"))
	require.NoError(t, err)
	require.NoError(t, f.svc.CancelBooking(ctx, booking.ID))

	var orphans int64
	require.NoError(t, f.db.Model(&model.BookingDate{}).Where("booking_id = ?", booking.ID).Count(&orphans).Error)
	assert.Zero(t, orphans)

	_, err = f.svc.CreateBooking(ctx, "Bob", "bob@example.com", day("2024-01-02"), day("2024-01-04"))
	assert.NoError(t, err)
}

func TestCreateBooking_InvalidRanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := [][2]string{
		{"2024-01-02", "2024-01-02"},
		{"2024-01-03", "2024-01-02"},
		{"2024-01-02", "2024-01-05"},
		{"2024-01-01", "2024-01-02"},
		{"2024-02-01", "2024-02-02"},
	}
	for _, c := range cases {
		_, err := f.svc.CreateBooking(ctx, "Ada", "ada@example.com", day(c[0]), day(c[1]))
		assert.ErrorIs(t, err, ErrInvalidDateRange, "%s..%s", c[0], c[1])
	}
	assert.Empty(t, f.events.types())
}

func TestModifyBooking_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ModifyBooking(ctx, "missing", day("2024-01-05"), day("2024-01-06"))
	assert.ErrorIs(t, err, ErrBookingNotFound)

	x, err := f.svc.CreateBooking(ctx, "Ada", "ada@example.com", day("2024-01-02"), day("2024-01-03"))
	require.NoError(t, err)
	_, err = f.svc.CreateBooking(ctx, "Bob", "bob@example.com", day("2024-01-10"), day("2024-01-12"))
	require.NoError(t, err)

	_, err = f.svc.ModifyBooking(ctx, x.ID, day("2024-01-11"), day("2024-01-12"))
	assert.ErrorIs(t, err, ErrAlreadyBooked)

	_, err = f.svc.ModifyBooking(ctx, x.ID, day("2024-01-05"), day("2024-01-09"))
	assert.ErrorIs(t, err, ErrInvalidDateRange)

	stored, err := f.svc.GetBooking(ctx, x.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-02", "2024-01-03"}, stored.DateSet().Strings())

	f.repo.saveErr = repository.ErrOptimisticConflict
	_, err = f.svc.ModifyBooking(ctx, x.ID, day("2024-01-05"), day("2024-01-06"))
	assert.ErrorIs(t, err, ErrBookingNotFound)

	f.repo.saveErr = errors.New("connection reset")
	_, err = f.svc.ModifyBooking(ctx, x.ID, day("2024-01-05"), day("2024-01-06"))
	assert.ErrorIs(t, err, ErrBookingFailure)
	assert.NotContains(t, err.Error(), "connection reset")
}

func TestCreateBooking_StoreFailureIsHidden(t *testing.T) {
	f := newFixture(t)
	f.repo.saveErr = errors.New("pq: too many connections")

	_, err := f.svc.CreateBooking(context.Background(), "Ada", "ada@example.com", day("2024-01-02"), day("2024-01-03"))
	assert.ErrorIs(t, err, ErrBookingFailure)
	assert.NotContains(t, err.Error(), "pq")
}

func TestCancelBooking_ConcurrentChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	booking, err := f.svc.CreateBooking(ctx, "Ada", "ada@example.com", day("2024-01-02"), day("2024-01-03"))
	require.NoError(t, err)

	f.repo.deleteErr = repository.ErrOptimisticConflict
	assert.ErrorIs(t, f.svc.CancelBooking(ctx, booking.ID), ErrBookingNotFound)

	f.repo.deleteErr = errors.New("timeout")
	assert.ErrorIs(t, f.svc.CancelBooking(ctx, booking.ID), ErrBookingFailure)
}

func TestGetAvailableDates_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetAvailableDates(ctx, ptr(day("2024-01-05")), ptr(day("2024-01-04")))
	assert.ErrorIs(t, err, ErrInvalidDateRange)

	_, err = f.svc.GetAvailableDates(ctx, ptr(day("2024-01-01")), ptr(day("2025-06-01")))
	assert.ErrorIs(t, err, ErrInvalidDateRange)

	_, err = f.svc.GetAvailableDates(ctx, nil, ptr(day("2023-12-01")))
	assert.ErrorIs(t, err, ErrInvalidDateRange)

	free, err := f.svc.GetAvailableDates(ctx, ptr(day("2024-03-01")), ptr(day("2024-03-03")))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-01", "2024-03-02", "2024-03-03"}, formatted(free))
}

func TestGetAvailableDates_StoreFailureOnMiss(t *testing.T) {
	f := newFixture(t)
	f.repo.findErr = errors.New("db down")

	_, err := f.svc.GetAvailableDates(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrBookingFailure)
}

func TestAvailability_ColdCacheStillExcludesEveryBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateBooking(ctx, "Ada", "ada@example.com", day("2024-01-02"), day("2024-01-03"))
	require.NoError(t, err)

	f.cache.Clear(ctx)

	// written while the cache is cold; its Add must not make the cache look complete
	_, err = f.svc.CreateBooking(ctx, "Bob", "bob@example.com", day("2024-01-20"), day("2024-01-21"))
	require.NoError(t, err)

	free, err := f.svc.GetAvailableDates(ctx, nil, nil)
	require.NoError(t, err)
	got := formatted(free)
	for _, d := range []string{"2024-01-02", "2024-01-03", "2024-01-20", "2024-01-21"} {
		assert.NotContains(t, got, d)
	}
	assert.Len(t, free, 26)
}

func TestAvailability_PastDaysSameWarmOrCold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateBooking(ctx, "Ada", "ada@example.com", day("2024-01-02"), day("2024-01-04"))
	require.NoError(t, err)
	_, err = f.svc.CreateBooking(ctx, "Bob", "bob@example.com", day("2024-01-12"), day("2024-01-13"))
	require.NoError(t, err)

	f.clock.Set("2024-01-10")
	want := []string{"2024-01-01", "2024-01-05", "2024-01-06", "2024-01-07", "2024-01-08",
		"2024-01-09", "2024-01-10", "2024-01-11", "2024-01-14", "2024-01-15"}

	f.cache.Clear(ctx)
	cold, err := f.svc.GetAvailableDates(ctx, ptr(day("2024-01-01")), ptr(day("2024-01-15")))
	require.NoError(t, err)
	assert.Equal(t, want, formatted(cold))

	f.svc.ReconcileCache(ctx)
	_, ok := f.cache.GetAll(ctx)
	require.True(t, ok)

	warm, err := f.svc.GetAvailableDates(ctx, ptr(day("2024-01-01")), ptr(day("2024-01-15")))
	require.NoError(t, err)
	assert.Equal(t, want, formatted(warm))
}

func TestAvailability_DroppedCacheTaskHealsAfterReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetAvailableDates(ctx, nil, nil)
	require.NoError(t, err)

	f.tasks.drop = true
	_, err = f.svc.CreateBooking(ctx, "Ada", "ada@example.com", day("2024-01-02"), day("2024-01-03"))
	require.NoError(t, err)
	f.tasks.drop = false

	// stale cache over-reports availability
	free, err := f.svc.GetAvailableDates(ctx, nil, nil)
	require.NoError(t, err)
	assert.Contains(t, formatted(free), "2024-01-02")

	// but the store still refuses a double booking
	_, err = f.svc.CreateBooking(ctx, "Bob", "bob@example.com", day("2024-01-02"), day("2024-01-03"))
	assert.ErrorIs(t, err, ErrAlreadyBooked)

	f.svc.ReconcileCache(ctx)

	cached, ok := f.cache.GetAll(ctx)
	require.True(t, ok)
	stored, err := f.repo.FindScheduledDates(ctx, day("2024-01-01"), calendar.AddDays(day("2024-01-01"), calendar.FarFutureDays))
	require.NoError(t, err)
	assert.Equal(t, stored.Strings(), cached.Strings())

	free, err = f.svc.GetAvailableDates(ctx, nil, nil)
	require.NoError(t, err)
	assert.NotContains(t, formatted(free), "2024-01-02")
}

func TestCreateBooking_ConcurrentRequestsStayDisjoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ranges := [][2]string{
		{"2024-01-02", "2024-01-04"},
		{"2024-01-03", "2024-01-05"},
		{"2024-01-04", "2024-01-05"},
		{"2024-01-05", "2024-01-07"},
		{"2024-01-06", "2024-01-07"},
		{"2024-01-02", "2024-01-03"},
	}

	var wg sync.WaitGroup
	for _, r := range ranges {
		wg.Add(1)
		go func(r [2]string) {
			defer wg.Done()
			_, err := f.svc.CreateBooking(ctx, "Guest", "guest@example.com", day(r[0]), day(r[1]))
			if err != nil {
				assert.ErrorIs(t, err, ErrAlreadyBooked)
			}
		}(r)
	}
	wg.Wait()

	var bookings []*model.Booking
	booked, err := f.repo.FindScheduledDates(ctx, day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)

	seen := calendar.Set{}
	for _, e := range f.events.events {
		b, err := f.svc.GetBooking(ctx, e.BookingID)
		require.NoError(t, err)
		bookings = append(bookings, b)
		for d := range b.DateSet() {
			assert.False(t, seen.Has(d), "date %s booked twice", calendar.Format(d))
			seen.Add(d)
		}
	}
	assert.NotEmpty(t, bookings)
	assert.Equal(t, booked.Strings(), seen.Strings())
}

func TestPing(t *testing.T) {
	f := newFixture(t)

	checks := f.svc.Ping(context.Background())
	assert.NoError(t, checks["database"])
	assert.NoError(t, checks["cache"])
}
