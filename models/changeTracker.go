package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/inspect_backend/config"
	"bitbucket.org/mmdatafocus/inspect_backend/utils"
	"gorm.io/gorm"
)

// The change tracker is the only sanctioned way dirtiness is read or cleared.
// Everything else goes through Touch on write paths.

// DirtyRecords returns every record of type T with unsynchronized local
// changes, tombstones included (deletions must propagate too). Ordered by
// LastModifiedUtc so older edits reconcile first.
func DirtyRecords[T any](ctx context.Context) ([]*T, error) {
	db := config.GetDB()
	var results []*T
	err := db.WithContext(ctx).
		Where("is_dirty = ?", true).
		Order("last_modified_utc ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ClearDirty clears the dirty flag for one record after a confirmed remote
// acknowledgment. The asOf guard makes the clear atomic with the ack it
// belongs to: a local edit that raced in after the push left a newer
// LastModifiedUtc, the guarded UPDATE matches nothing, and the record stays
// dirty for the next cycle. Duplicate retry over silent loss.
func ClearDirty[T any](ctx context.Context, id string, asOf time.Time) error {
	db := config.GetDB()
	var model T
	return db.WithContext(ctx).
		Model(&model).
		Where("id = ? AND last_modified_utc <= ?", id, asOf).
		Update("is_dirty", false).Error
}

// CountDirty reports how many records of type T still await sync.
func CountDirty[T any](ctx context.Context) (int64, error) {
	db := config.GetDB()
	var model T
	var count int64
	err := db.WithContext(ctx).Model(&model).Where("is_dirty = ?", true).Count(&count).Error
	return count, err
}

// GetSynced fetches one record by ID, tombstoned rows included.
// (may return ErrorRecordNotFound)
func GetSynced[T any](ctx context.Context, id string) (*T, error) {
	db := config.GetDB()
	var result T
	err := db.WithContext(ctx).First(&result, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

// SaveSynced inserts or updates a record that carries no natural key, keyed
// purely by its (possibly freshly minted) ID. Marks dirty.
func SaveSynced[T any, PT SyncablePtr[T]](ctx context.Context, entity PT) error {
	db := config.GetDB()
	entity.EnsureID()
	entity.Touch()
	return db.WithContext(ctx).Save(entity).Error
}

// SoftDelete tombstones a record so the deletion propagates on the next sync
// instead of disappearing silently. The row is retained.
func SoftDelete[T any, PT SyncablePtr[T]](ctx context.Context, id string) error {
	db := config.GetDB()
	var entity T
	if err := db.WithContext(ctx).First(&entity, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorRecordNotFound
		}
		return err
	}
	pe := PT(&entity)
	pe.Touch()
	return db.WithContext(ctx).Model(pe).
		Updates(map[string]interface{}{
			"is_deleted":        true,
			"is_dirty":          true,
			"last_modified_utc": pe.ModifiedUtc(),
		}).Error
}

// AdoptCanonicalID re-keys a local row to the canonical ID the remote
// reconciler resolved. When the canonical row already exists locally the
// pushed row was a duplicate of an already-known entity; the duplicate is
// dropped and the next pull refreshes the canonical row.
func AdoptCanonicalID[T any](ctx context.Context, localID string, canonicalID string) error {
	if localID == canonicalID || canonicalID == "" {
		return nil
	}
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model T
		var count int64
		if err := tx.Model(&model).Where("id = ?", canonicalID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return tx.Where("id = ?", localID).Delete(&model).Error
		}
		return tx.Model(&model).Where("id = ?", localID).Update("id", canonicalID).Error
	})
}
