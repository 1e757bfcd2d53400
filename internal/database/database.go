package database

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/orbitreach/core/internal/config"
	"github.com/orbitreach/core/internal/models"
)

// DB is the global database instance.
var DB *gorm.DB

// Connect opens a MySQL connection and optionally runs auto-migration.
func Connect(cfg *config.AppConfig, autoMigrate bool) (*gorm.DB, error) {
	db, err := openDB(cfg, resolveLogLevel(cfg))
	if err != nil {
		return nil, err
	}

	if autoMigrate {
		if err := Migrate(db); err != nil {
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}

	DB = db
	return db, nil
}

// EnsureSchema applies database migration in a short-lived setup connection.
func EnsureSchema(cfg *config.AppConfig) error {
	db, err := openDB(cfg, resolveLogLevel(cfg))
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("resolve sql db: %w", err)
	}
	defer sqlDB.Close()

	if err := Migrate(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func resolveLogLevel(cfg *config.AppConfig) logger.LogLevel {
	if cfg.IsDev() {
		return logger.Info
	}
	return logger.Warn
}

func openDB(cfg *config.AppConfig, logLevel logger.LogLevel) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:               cfg.DSN,
		DefaultStringSize: 191,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	return db, nil
}

// Migrate runs GORM auto-migration for all models.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.CampaignModel{},
		&models.ApprovalModel{},
		&models.CampaignStatusHistoryModel{},
		&models.CampaignRevisionModel{},
		&models.WebhookModel{},
		&models.WebhookEventModel{},
	); err != nil {
		return err
	}

	if db.Dialector.Name() == "mysql" {
		for _, stmt := range []string{
			"ALTER TABLE `campaigns` MODIFY COLUMN `strategy_versions` LONGTEXT NULL",
			"ALTER TABLE `campaigns` MODIFY COLUMN `content_versions` LONGTEXT NULL",
			"ALTER TABLE `campaigns` MODIFY COLUMN `schedule` LONGTEXT NULL",
			"ALTER TABLE `campaigns` MODIFY COLUMN `asset_refs` LONGTEXT NULL",
			"ALTER TABLE `approvals` MODIFY COLUMN `approvers` LONGTEXT NULL",
			"ALTER TABLE `campaign_revisions` MODIFY COLUMN `detail` LONGTEXT NULL",
			"ALTER TABLE `webhooks` MODIFY COLUMN `events` LONGTEXT NULL",
		} {
			if err := db.Exec(stmt).Error; err != nil {
				return err
			}
		}
	}

	return nil
}
