package database

import (
	"fmt"
	"time"

	"salesflow/internal/model"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewConnection opens the postgres pool and migrates the schema
func NewConnection(dsn string, logger *zap.Logger, debug bool) (*gorm.DB, error) {
	level := gormlogger.Warn
	if debug {
		level = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(level),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	// gen_random_uuid() defaults need pgcrypto on postgres < 13
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`).Error; err != nil {
		logger.Warn("could not enable pgcrypto", zap.Error(err))
	}

	err = db.AutoMigrate(
		&model.Company{},
		&model.User{},
		&model.Client{},
		&model.Plan{},
		&model.Sale{},
		&model.Beneficiary{},
		&model.SaleSignature{},
		&model.WorkflowConfig{},
		&model.AuditLog{},
	)
	if err != nil {
		// keep serving with the existing schema, like a half-applied deploy would
		logger.Warn("failed to auto-migrate models", zap.Error(err))
	}

	return db, nil
}
