package postgres

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/arunvm123/campsite/calendar"
	"github.com/arunvm123/campsite/model"
	"github.com/arunvm123/campsite/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestRepository runs the repository against a SQLite file. The gorm code
// path is the same one used with Postgres; unique violations are translated
// by the driver in both cases.
func newTestRepository(t *testing.T) *PostgresBookingRepository {
	t.Helper()

	path := filepath.Join(t.TempDir(), "campsite.db")
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000&_foreign_keys=on"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	repo, err := NewBookingRepositoryFromDB(db, time.Second)
	require.NoError(t, err)
	return repo
}

func day(s string) time.Time {
	t, err := calendar.Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

func newBooking(start, end string) *model.Booking {
	id := uuid.NewString()
	return &model.Booking{
		ID:    id,
		Name:  "Ada Lovelace",
		Email: "ada@example.com",
		Dates: model.NewBookingDates(id, calendar.Between(day(start), day(end))),
	}
}

func TestSave_CreateAndFind(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	saved, err := repo.Save(ctx, newBooking("2024-01-02", "2024-01-04"))
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Version)

	found, err := repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, found.ID)
	assert.Equal(t, "Ada Lovelace", found.Name)
	assert.Equal(t, 1, found.Version)
	assert.Equal(t, []string{"2024-01-02", "2024-01-03", "2024-01-04"}, found.DateSet().Strings())
}

func TestSave_RejectsOverlappingDates(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	first, err := repo.Save(ctx, newBooking("2024-01-02", "2024-01-04"))
	require.NoError(t, err)

	_, err = repo.Save(ctx, newBooking("2024-01-04", "2024-01-05"))
	assert.ErrorIs(t, err, repository.ErrDateConflict)

	dates, err := repo.FindScheduledDates(ctx, day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)
	assert.Equal(t, first.DateSet().Strings(), dates.Strings(), "failed insert must leave no rows behind")
}

func TestSave_UpdateReplacesDates(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	saved, err := repo.Save(ctx, newBooking("2024-01-02", "2024-01-04"))
	require.NoError(t, err)

	moved := *saved
	moved.Dates = model.NewBookingDates(saved.ID, calendar.Between(day("2024-01-03"), day("2024-01-05")))
	updated, err := repo.Save(ctx, &moved)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	found, err := repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, found.Version)
	assert.Equal(t, []string{"2024-01-03", "2024-01-04", "2024-01-05"}, found.DateSet().Strings())
}

func TestSave_UpdateConflictLeavesBothUnchanged(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	x, err := repo.Save(ctx, newBooking("2024-01-02", "2024-01-03"))
	require.NoError(t, err)
	y, err := repo.Save(ctx, newBooking("2024-01-10", "2024-01-12"))
	require.NoError(t, err)

	moved := *x
	moved.Dates = model.NewBookingDates(x.ID, calendar.Between(day("2024-01-11"), day("2024-01-13")))
	_, err = repo.Save(ctx, &moved)
	assert.ErrorIs(t, err, repository.ErrDateConflict)

	foundX, err := repo.FindByID(ctx, x.ID)
	require.NoError(t, err)
	assert.Equal(t, x.DateSet().Strings(), foundX.DateSet().Strings())
	assert.Equal(t, 1, foundX.Version)

	foundY, err := repo.FindByID(ctx, y.ID)
	require.NoError(t, err)
	assert.Equal(t, y.DateSet().Strings(), foundY.DateSet().Strings())
}

func TestSave_StaleVersion(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	saved, err := repo.Save(ctx, newBooking("2024-01-02", "2024-01-03"))
	require.NoError(t, err)

	first := *saved
	first.Dates = model.NewBookingDates(saved.ID, calendar.Between(day("2024-01-05"), day("2024-01-06")))
	_, err = repo.Save(ctx, &first)
	require.NoError(t, err)

	stale := *saved
	stale.Dates = model.NewBookingDates(saved.ID, calendar.Between(day("2024-01-08"), day("2024-01-09")))
	_, err = repo.Save(ctx, &stale)
	assert.ErrorIs(t, err, repository.ErrOptimisticConflict)
}

func TestSave_UpdateOfDeletedBooking(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	saved, err := repo.Save(ctx, newBooking("2024-01-02", "2024-01-03"))
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, saved))

	moved := *saved
	_, err = repo.Save(ctx, &moved)
	assert.ErrorIs(t, err, repository.ErrOptimisticConflict)
}

func TestSave_NoDates(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.Save(context.Background(), &model.Booking{ID: uuid.NewString()})
	assert.Error(t, err)
}

func TestSave_ConcurrentCreatesExactlyOneWins(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Save(ctx, newBooking("2024-01-03", "2024-01-04"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, repository.ErrDateConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, conflicts)
}

func TestFindByID_NotFound(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.FindByID(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, repository.ErrBookingNotFound)
}

func TestFindScheduledDates_WithinWindowOnly(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.Save(ctx, newBooking("2024-01-02", "2024-01-04"))
	require.NoError(t, err)
	_, err = repo.Save(ctx, newBooking("2024-02-10", "2024-02-11"))
	require.NoError(t, err)

	dates, err := repo.FindScheduledDates(ctx, day("2024-01-03"), day("2024-02-10"))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-03", "2024-01-04", "2024-02-10"}, dates.Strings())

	none, err := repo.FindScheduledDates(ctx, day("2024-03-01"), day("2024-03-31"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDelete(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	saved, err := repo.Save(ctx, newBooking("2024-01-02", "2024-01-04"))
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, saved))

	_, err = repo.FindByID(ctx, saved.ID)
	assert.ErrorIs(t, err, repository.ErrBookingNotFound)

	dates, err := repo.FindScheduledDates(ctx, day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)
	assert.Empty(t, dates)

	// the freed days can be booked again
	_, err = repo.Save(ctx, newBooking("2024-01-02", "2024-01-03"))
	assert.NoError(t, err)

	assert.ErrorIs(t, repo.Delete(ctx, saved), repository.ErrOptimisticConflict)
}

func TestDelete_ForeignKeysEnforced(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	var fkEnabled int
	require.NoError(t, repo.db.Raw("PRAGMA foreign_keys").Scan(&fkEnabled).Error)
	require.Equal(t, 1, fkEnabled)

	orphan := model.BookingDate{BookingID: uuid.NewString(), Date: day("2024-03-01")}
	require.Error(t, repo.db.Create(&orphan).Error, "date rows must reference a booking")

	saved, err := repo.Save(ctx, newBooking("2024-01-02", "2024-01-04"))
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, saved))

	var remaining int64
	require.NoError(t, repo.db.Model(&model.BookingDate{}).Count(&remaining).Error)
	assert.Zero(t, remaining)
}

func TestDelete_StaleVersionKeepsDates(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	saved, err := repo.Save(ctx, newBooking("2024-01-02", "2024-01-04"))
	require.NoError(t, err)

	moved := *saved
	moved.Dates = model.NewBookingDates(saved.ID, calendar.Between(day("2024-01-05"), day("2024-01-06")))
	_, err = repo.Save(ctx, &moved)
	require.NoError(t, err)

	assert.ErrorIs(t, repo.Delete(ctx, saved), repository.ErrOptimisticConflict)

	found, err := repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-05", "2024-01-06"}, found.DateSet().Strings())
}

func TestPing(t *testing.T) {
	repo := newTestRepository(t)
	assert.NoError(t, repo.Ping(context.Background()))
}
