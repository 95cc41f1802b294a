package workflow

import (
	"context"
	"strings"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/inspect_backend/config"
	"bitbucket.org/mmdatafocus/inspect_backend/models"
	"bitbucket.org/mmdatafocus/inspect_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const unknownInspector = "(unknown)"

// Archiver sweeps time-expired and completed scheduled entries into immutable
// history. Idempotent: an archived entry is tombstoned and no longer pending,
// so a second sweep finds nothing to do.
type Archiver struct {
	DB     *gorm.DB
	Logger *logrus.Logger

	SweepInterval time.Duration

	mu sync.Mutex
}

func NewArchiver(db *gorm.DB, logger *logrus.Logger) *Archiver {
	return &Archiver{
		DB:            db,
		Logger:        logger,
		SweepInterval: time.Hour,
	}
}

func (a *Archiver) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		cycleCtx := utils.SetCorrelationIdInContext(ctx, uuid.NewString())
		if _, err := a.RunSweepNow(cycleCtx); err != nil && a.Logger != nil {
			logPassError(a.Logger, "Archiver.Run", cycleCtx, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(a.SweepInterval):
		}
	}
}

// RunSweepNow archives every pending entry that has expired or completed and
// returns how many were archived. Per-entry failures are logged and skipped.
func (a *Archiver) RunSweepNow(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pending, err := models.PendingScheduledInspections(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	archived := 0
	for _, entry := range pending {
		if ctx.Err() != nil {
			break
		}

		isExpired := entry.ScheduledDate.Before(today)
		isCompleted, err := a.hasApprovedReport(ctx, entry.ID)
		if err != nil {
			if a.Logger != nil {
				config.LogError(a.Logger, "workflow", "Archiver.RunSweepNow", entry.ID, nil, err)
			}
			continue
		}
		if !isExpired && !isCompleted {
			continue
		}

		// Expiry check precedes completion when both hold.
		status := models.ScheduleArchiveStatusCompleted
		if isExpired {
			status = models.ScheduleArchiveStatusExpired
		}

		if err := a.archiveEntry(ctx, entry, status); err != nil {
			if a.Logger != nil {
				config.LogError(a.Logger, "workflow", "Archiver.RunSweepNow", entry.ID, nil, err)
			}
			continue
		}
		archived++
	}
	return archived, nil
}

func (a *Archiver) hasApprovedReport(ctx context.Context, scheduledInspectionId string) (bool, error) {
	var count int64
	err := a.DB.WithContext(ctx).Model(&models.Inspection{}).
		Where("scheduled_inspection_id = ? AND status = ? AND is_deleted = ?",
			scheduledInspectionId, models.InspectionStatusApproved, false).
		Count(&count).Error
	return count > 0, err
}

func (a *Archiver) archiveEntry(ctx context.Context, entry *models.ScheduledInspection, status models.ScheduleArchiveStatus) error {
	history := models.ScheduledInspectionHistory{
		ScheduledInspectionId: entry.ID,
		CompanyId:             entry.CompanyId,
		ScheduledDate:         entry.ScheduledDate,
		Inspectors:            a.resolveInspectors(ctx, entry.InspectorIds),
		Purpose:               entry.Purpose,
		Status:                status,
	}

	return a.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&history).Error; err != nil {
			return err
		}
		// Tombstone rather than hard delete: the pending entry is
		// sync-tracked, and its removal must propagate on the next push.
		entry.Touch()
		return tx.Model(entry).Updates(map[string]interface{}{
			"is_deleted":        true,
			"is_dirty":          true,
			"last_modified_utc": entry.LastModifiedUtc,
		}).Error
	})
}

// resolveInspectors turns the stored JSON id list into display names.
// Malformed stored data degrades to a placeholder; the sweep never fails over
// a bad identifier list.
func (a *Archiver) resolveInspectors(ctx context.Context, rawIds string) string {
	ids, err := utils.DecodeStringList(rawIds)
	if err != nil {
		if a.Logger != nil {
			config.LogError(a.Logger, "workflow", "Archiver.resolveInspectors", rawIds, nil, err)
		}
		return unknownInspector
	}
	if len(ids) == 0 {
		return unknownInspector
	}

	names := make([]string, 0, len(ids))
	for _, id := range ids {
		user, err := models.GetUser(ctx, id)
		if err != nil || user.Name == "" {
			names = append(names, unknownInspector)
			continue
		}
		names = append(names, user.Name)
	}
	return strings.Join(names, ", ")
}
