package database

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/targc/numbervault/pkg/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Connect(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(gormLogLevel()),
		TranslateError: true,
	})

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info("Database connected successfully")

	return db, nil
}

func AutoMigrate(db *gorm.DB) error {
	log.Info("Running auto migration...")

	err := db.AutoMigrate(
		&models.TelephoneNumber{},
		&models.StatusHistory{},
		&models.IngestionJob{},
	)

	if err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}

	log.Info("Auto migration completed")

	err = RunMigrations(db)

	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func gormLogLevel() logger.LogLevel {
	switch log.GetLevel() {
	case log.TraceLevel, log.DebugLevel:
		return logger.Info
	case log.InfoLevel, log.WarnLevel:
		return logger.Warn
	default:
		return logger.Error
	}
}
