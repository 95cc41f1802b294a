package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/inspect_backend/config"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SyncCheckpoint is a single-row table recording the high-water mark of the
// last successful pull. Not a SyncEntity: it never leaves the device.
type SyncCheckpoint struct {
	ID           int       `gorm:"primary_key" json:"id"`
	LastSyncedAt time.Time `json:"last_synced_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

const syncCheckpointRow = 1

// GetSyncCheckpoint returns the zero time before the first successful sync.
func GetSyncCheckpoint(ctx context.Context) (time.Time, error) {
	db := config.GetDB()
	var checkpoint SyncCheckpoint
	err := db.WithContext(ctx).First(&checkpoint, syncCheckpointRow).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return checkpoint.LastSyncedAt, nil
}

// AdvanceSyncCheckpoint moves the checkpoint forward; it never rewinds.
func AdvanceSyncCheckpoint(ctx context.Context, to time.Time) error {
	current, err := GetSyncCheckpoint(ctx)
	if err != nil {
		return err
	}
	if !to.After(current) {
		return nil
	}
	db := config.GetDB()
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_synced_at"}),
		}).
		Create(&SyncCheckpoint{ID: syncCheckpointRow, LastSyncedAt: to}).Error
}
