package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/inspect_backend/config"
)

// ScheduledInspection is a pending planned visit. It stays mutable while
// pending; once its date passes or its report is approved, the archival job
// converts it into an immutable ScheduledInspectionHistory row and tombstones
// the pending entry. One-way, non-reversible.
type ScheduledInspection struct {
	SyncEntity
	CompanyId     string    `gorm:"size:36;index;not null" json:"company_id"`
	ScheduledDate time.Time `gorm:"index" json:"scheduled_date"`
	InspectorIds  string    `gorm:"type:text" json:"inspector_ids"` // JSON array of user IDs
	Purpose       string    `gorm:"size:255" json:"purpose"`
}

type ScheduleArchiveStatus string

const (
	ScheduleArchiveStatusExpired   ScheduleArchiveStatus = "Expired"
	ScheduleArchiveStatusCompleted ScheduleArchiveStatus = "Completed"
)

// ScheduledInspectionHistory is immutable once written. Inspectors holds the
// resolved display names, not IDs: history must stay readable even after the
// accounts it references are gone.
type ScheduledInspectionHistory struct {
	ID                    int                   `gorm:"primary_key" json:"id"`
	ScheduledInspectionId string                `gorm:"size:36;index;not null" json:"scheduled_inspection_id"`
	CompanyId             string                `gorm:"size:36;index" json:"company_id"`
	ScheduledDate         time.Time             `json:"scheduled_date"`
	Inspectors            string                `gorm:"size:255" json:"inspectors"`
	Purpose               string                `gorm:"size:255" json:"purpose"`
	Status                ScheduleArchiveStatus `gorm:"size:20;not null" json:"status"`
	ArchivedAt            time.Time             `gorm:"autoCreateTime" json:"archived_at"`
}

func SaveScheduledInspection(ctx context.Context, entry *ScheduledInspection) (*ScheduledInspection, error) {
	if err := SaveSynced[ScheduledInspection](ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func GetScheduledInspection(ctx context.Context, id string) (*ScheduledInspection, error) {
	return GetSynced[ScheduledInspection](ctx, id)
}

// PendingScheduledInspections returns entries not yet archived.
func PendingScheduledInspections(ctx context.Context) ([]*ScheduledInspection, error) {
	db := config.GetDB()
	var results []*ScheduledInspection
	err := db.WithContext(ctx).
		Where("is_deleted = ?", false).
		Order("scheduled_date ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func ListScheduledInspectionHistory(ctx context.Context, companyId string) ([]*ScheduledInspectionHistory, error) {
	db := config.GetDB()
	var results []*ScheduledInspectionHistory
	dbCtx := db.WithContext(ctx)
	if companyId != "" {
		dbCtx = dbCtx.Where("company_id = ?", companyId)
	}
	err := dbCtx.Order("archived_at DESC").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func DeleteScheduledInspection(ctx context.Context, id string) error {
	return SoftDelete[ScheduledInspection, *ScheduledInspection](ctx, id)
}
