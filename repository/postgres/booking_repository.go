package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arunvm123/campsite/calendar"
	"github.com/arunvm123/campsite/config"
	"github.com/arunvm123/campsite/model"
	"github.com/arunvm123/campsite/repository"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const defaultQueryTimeout = 5 * time.Second

type PostgresBookingRepository struct {
	db           *gorm.DB
	queryTimeout time.Duration
}

func NewBookingRepository(cfg *config.Database) (*PostgresBookingRepository, error) {
	db, err := gorm.Open(postgres.Open(cfg.GetDatabaseURL()), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)

	return NewBookingRepositoryFromDB(db, cfg.QueryTimeout())
}

// NewBookingRepositoryFromDB wraps an open gorm handle. The handle must have
// been opened with TranslateError so unique violations surface as
// gorm.ErrDuplicatedKey.
func NewBookingRepositoryFromDB(db *gorm.DB, queryTimeout time.Duration) (*PostgresBookingRepository, error) {
	// Auto-migrate the booking tables
	if err := db.AutoMigrate(&model.Booking{}, &model.BookingDate{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}

	return &PostgresBookingRepository{db: db, queryTimeout: queryTimeout}, nil
}

// Save creates or updates a booking together with its date rows in one transaction
func (r *PostgresBookingRepository) Save(ctx context.Context, booking *model.Booking) (*model.Booking, error) {
	if len(booking.Dates) == 0 {
		return nil, errors.New("booking has no dates")
	}

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	if booking.Version == 0 {
		return r.create(ctx, booking)
	}
	return r.update(ctx, booking)
}

func (r *PostgresBookingRepository) create(ctx context.Context, booking *model.Booking) (*model.Booking, error) {
	stored := *booking
	stored.Version = 1
	stored.Dates = model.NewBookingDates(booking.ID, datesOf(booking))

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&stored).Error; err != nil {
			return err
		}
		return tx.Create(&stored.Dates).Error
	})
	if err != nil {
		return nil, translate("create booking", err)
	}

	return &stored, nil
}

func (r *PostgresBookingRepository) update(ctx context.Context, booking *model.Booking) (*model.Booking, error) {
	stored := *booking
	stored.Version = booking.Version + 1
	stored.Dates = model.NewBookingDates(booking.ID, datesOf(booking))

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Booking{}).
			Where("id = ? AND version = ?", booking.ID, booking.Version).
			Updates(map[string]interface{}{
				"name":       booking.Name,
				"email":      booking.Email,
				"version":    gorm.Expr("version + 1"),
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return repository.ErrOptimisticConflict
		}

		if err := tx.Where("booking_id = ?", booking.ID).Delete(&model.BookingDate{}).Error; err != nil {
			return err
		}
		return tx.Create(&stored.Dates).Error
	})
	if err != nil {
		return nil, translate("update booking", err)
	}

	return &stored, nil
}

// FindByID retrieves a booking and its dates
func (r *PostgresBookingRepository) FindByID(ctx context.Context, bookingID string) (*model.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	var booking model.Booking
	err := r.db.WithContext(ctx).
		Preload("Dates", func(db *gorm.DB) *gorm.DB { return db.Order("date ASC") }).
		Where("id = ?", bookingID).
		First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	return &booking, nil
}

// FindScheduledDates returns all booked days inside [startDate, endDate]
func (r *PostgresBookingRepository) FindScheduledDates(ctx context.Context, startDate, endDate time.Time) (calendar.Set, error) {
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	var dates []time.Time
	err := r.db.WithContext(ctx).
		Model(&model.BookingDate{}).
		Where("date >= ? AND date <= ?", calendar.Normalize(startDate), calendar.Normalize(endDate)).
		Order("date ASC").
		Pluck("date", &dates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get scheduled dates: %w", err)
	}

	return calendar.NewSet(dates...), nil
}

// Delete removes a booking and its dates. The booking row is claimed with a
// versioned update first so rows are locked in the same order as update;
// date rows go before the booking row they reference.
func (r *PostgresBookingRepository) Delete(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Booking{}).
			Where("id = ? AND version = ?", booking.ID, booking.Version).
			Update("version", gorm.Expr("version + 1"))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return repository.ErrOptimisticConflict
		}

		if err := tx.Where("booking_id = ?", booking.ID).Delete(&model.BookingDate{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", booking.ID).Delete(&model.Booking{}).Error
	})
	if err != nil {
		return translate("delete booking", err)
	}

	return nil
}

// Ping checks if the database is reachable
func (r *PostgresBookingRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func datesOf(booking *model.Booking) []time.Time {
	return booking.DateSet().Sorted()
}

func translate(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrOptimisticConflict):
		return repository.ErrOptimisticConflict
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", op, repository.ErrDateConflict)
	default:
		return fmt.Errorf("failed to %s: %w", op, err)
	}
}
