package database

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/psds-microservice/dispatch-service/internal/config"
	"github.com/psds-microservice/dispatch-service/internal/model"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects gorm to the database selected by driver.
func Open(driver, dsn string, log *slog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case config.DriverPostgres:
		dialector = postgres.Open(dsn)
	case config.DriverMySQL:
		dialector = mysql.Open(dsn)
	case config.DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("database: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(slog.NewLogLogger(log.Handler(), slog.LevelWarn), logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", driver, err)
	}
	if driver == config.DriverSQLite {
		// sqlite allows a single writer.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// AutoMigrate creates or updates the schema from the model definitions.
// It is used for mysql and sqlite, which have no SQL migrations.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Agent{}, &model.Ticket{}, &model.Comment{})
}

// Migrate brings the schema up to date for the configured driver.
// PostgreSQL runs the versioned SQL migrations; the other drivers use
// AutoMigrate on db.
func Migrate(cfg *config.Config, db *gorm.DB, log *slog.Logger) error {
	if cfg.DB.Driver == config.DriverPostgres {
		return MigrateUp(cfg.DatabaseURL(), log)
	}
	if err := AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	log.Info("migrate: schema up to date", "driver", cfg.DB.Driver)
	return nil
}
