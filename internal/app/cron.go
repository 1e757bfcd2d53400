package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/orbitreach/core/internal/config"
	"github.com/orbitreach/core/internal/models"
	"github.com/orbitreach/core/internal/modules/backup"
	pkgcron "github.com/orbitreach/core/internal/pkg/cron"
	pkgredis "github.com/orbitreach/core/internal/pkg/redis"
	"github.com/orbitreach/core/internal/pkg/taskqueue"
)

// registerCronJobs registers all scheduled background jobs.
func registerCronJobs(sched *pkgcron.Scheduler, db *gorm.DB, cfg *config.AppConfig, rc *pkgredis.Client, logger *zap.Logger) {
	cronLogger := logger.Named("CronService")
	taskSvc := taskqueue.NewService(rc)

	sched.Register(pkgcron.Job{
		Name:        "cleanup_webhook_events",
		Description: "delete webhook delivery logs older than 90 days",
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			cutoff := time.Now().AddDate(0, 0, -90)
			result := db.Where("timestamp < ?", cutoff).Delete(&models.WebhookEventModel{})
			if result.Error != nil {
				cronLogger.Warn("webhook event cleanup failed", zap.Error(result.Error))
				return result.Error
			}
			cronLogger.Info(fmt.Sprintf("webhook event cleanup done, %d rows removed", result.RowsAffected))
			return nil
		},
	})

	sched.Register(pkgcron.Job{
		Name:        "cleanup_finished_tasks",
		Description: "delete completed background tasks older than 3 days",
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			cutoff := time.Now().AddDate(0, 0, -3).UnixMilli()
			if err := taskSvc.DeleteCompleted(ctx, cutoff); err != nil {
				cronLogger.Warn("task cleanup failed", zap.Error(err))
				return err
			}
			return nil
		},
	})

	sched.Register(pkgcron.Job{
		Name:        "auto_backup",
		Description: "archive every tenant to the local backup directory",
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			cronLogger.Info("running scheduled backup...")
			created, err := backup.CreateLocalBackups(db, cfg)
			if err != nil {
				cronLogger.Warn("scheduled backup failed", zap.Error(err))
				return err
			}
			cronLogger.Info(fmt.Sprintf("scheduled backup done, %d archives written", created))
			return nil
		},
	})
}
