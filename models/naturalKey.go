package models

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/inspect_backend/config"
	"gorm.io/gorm"
)

// NaturalKey is one candidate business-key attribute of an entity, in the
// priority order the owning entity defines.
type NaturalKey struct {
	Column string
	Value  string
}

// NaturallyKeyed entities can be deduplicated against rows created
// independently on other offline devices.
type NaturallyKeyed interface {
	NaturalKeys() []NaturalKey
}

// findByNaturalKey tries candidate keys in priority order and returns the
// first non-deleted row with a case-insensitive match. Blank candidates are
// skipped: an empty file number on both rows is not a match. The first
// attribute that yields a match wins; lower-priority keys are never consulted
// after that (no union-of-keys merge).
func findByNaturalKey[T any](ctx context.Context, keys []NaturalKey) (*T, error) {
	db := config.GetDB()
	for _, key := range keys {
		if strings.TrimSpace(key.Value) == "" {
			continue
		}
		var result T
		err := db.WithContext(ctx).
			Where(fmt.Sprintf("%s <> '' AND LOWER(%s) = LOWER(?)", key.Column, key.Column), strings.TrimSpace(key.Value)).
			Where("is_deleted = ?", false).
			First(&result).Error
		if err == nil {
			return &result, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

// reconcileSave decides insert vs. update before the write lands. On a
// natural-key match the existing row's ID is adopted and the caller's
// (possibly freshly minted) ID is discarded; otherwise the caller's ID is
// kept and a new row inserted. Either way the record comes out dirty with a
// fresh LastModifiedUtc.
func reconcileSave[T any, PT SyncablePtr[T]](ctx context.Context, entity PT, keys []NaturalKey) error {
	db := config.GetDB()
	entity.EnsureID()

	existing, err := findByNaturalKey[T](ctx, keys)
	if err != nil {
		return err
	}
	if existing != nil {
		pe := PT(existing)
		entity.SetID(pe.GetID())
		entity.Touch()
		return db.WithContext(ctx).Save(entity).Error
	}

	entity.Touch()
	return db.WithContext(ctx).Create(entity).Error
}
