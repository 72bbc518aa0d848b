package bubblesync

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/splitleasesharath/splitlease-sub012/config"
	"github.com/splitleasesharath/splitlease-sub012/models"
	"github.com/splitleasesharath/splitlease-sub012/utils"
	"gorm.io/gorm"
)

// PayloadUploader stores an archived payload under an object name.
type PayloadUploader interface {
	Upload(ctx context.Context, objectName string, data []byte, contentType string) error
}

type gcsUploader struct{}

func (gcsUploader) Upload(ctx context.Context, objectName string, data []byte, contentType string) error {
	return utils.UploadBytesToGCS(ctx, objectName, data, contentType)
}

// Archiver moves payloads of settled entries older than the retention window
// out of MySQL and into object storage. The row itself stays behind as the
// audit record; only the blob leaves.
type Archiver struct {
	DB       *gorm.DB
	Uploader PayloadUploader
	Logger   *logrus.Logger

	Retention time.Duration
	Interval  time.Duration
	BatchSize int
}

func NewArchiver(db *gorm.DB, logger *logrus.Logger) *Archiver {
	retentionDays := config.IntFromEnv("SYNC_ARCHIVE_RETENTION_DAYS", 30)
	return &Archiver{
		DB:        db,
		Uploader:  gcsUploader{},
		Logger:    logger,
		Retention: time.Duration(retentionDays) * 24 * time.Hour,
		Interval:  time.Hour,
		BatchSize: 100,
	}
}

func (a *Archiver) Run(ctx context.Context) {
	ticker := time.NewTicker(a.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.ArchiveOnce(ctx)
			if err != nil && a.Logger != nil {
				config.LogError(a.Logger, "bubblesync", "ArchiveOnce", "archive pass", nil, err)
			}
			if n > 0 && a.Logger != nil {
				a.Logger.WithFields(logrus.Fields{
					"field":    "SyncArchiver",
					"archived": n,
				}).Info("archived settled payloads")
			}
		}
	}
}

// ArchiveOnce archives one batch and reports how many payloads moved.
func (a *Archiver) ArchiveOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-a.Retention)

	var entries []models.SyncQueueEntry
	err := a.DB.WithContext(ctx).
		Where("status IN ? AND resolved_at IS NOT NULL AND resolved_at < ? AND archived_at IS NULL AND payload IS NOT NULL",
			[]string{models.SyncStatusSucceeded, models.SyncStatusDeadLettered}, cutoff).
		Order("resolved_at ASC").
		Limit(a.BatchSize).
		Find(&entries).Error
	if err != nil {
		return 0, err
	}

	archived := 0
	for _, entry := range entries {
		objectName := "sync-archive/" + entry.ID + ".json"
		if err := a.Uploader.Upload(ctx, objectName, entry.Payload, "application/json"); err != nil {
			// Leave the row untouched so the next pass retries it.
			if a.Logger != nil {
				a.Logger.WithFields(logrus.Fields{
					"field":    "SyncArchiver",
					"entry_id": entry.ID,
				}).Warn("payload upload failed: " + err.Error())
			}
			continue
		}

		now := time.Now().UTC()
		res := a.DB.WithContext(ctx).
			Model(&models.SyncQueueEntry{}).
			Where("id = ? AND archived_at IS NULL", entry.ID).
			Updates(map[string]interface{}{
				"payload":     nil,
				"archived_at": &now,
			})
		if res.Error != nil {
			return archived, res.Error
		}
		if res.RowsAffected > 0 {
			archived++
		}
	}
	return archived, nil
}
