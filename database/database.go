package database

import (
	"fmt"
	"log/slog"

	"github.com/anjiri1684/tutor_ledger/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func ConnectDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt:                              false,
		SkipDefaultTransaction:                   true,
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		Logger:                                   logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connected")
	return db, nil
}

// liveSlotIndex enforces at most one live booking per (teacher, date, slot).
// gorm's struct tags cannot express the partial predicate reliably, so it is
// created by hand after AutoMigrate.
const liveSlotIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_live_slot
	ON bookings (teacher_id, date, slot_start, slot_end)
	WHERE status IN ('pending', 'approved', 'booked', 'paid')`

// bookingLedgerIndex makes each (booking, entry type) pair appear at most once
// in the ledger, which is what keeps payment replays from crediting twice.
const bookingLedgerIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_booking_type
	ON transactions (booking_id, type)
	WHERE booking_id IS NOT NULL`

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Course{},
		&models.AvailabilityDay{},
		&models.AvailabilitySlot{},
		&models.Booking{},
		&models.Wallet{},
		&models.Transaction{},
		&models.Payout{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	for _, stmt := range []string{liveSlotIndex, bookingLedgerIndex} {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	slog.Info("database migration successful")
	return nil
}
