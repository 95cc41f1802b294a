package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/inspect_backend/config"
	"bitbucket.org/mmdatafocus/inspect_backend/utils"
)

type InspectionStatus string

const (
	InspectionStatusDraft     InspectionStatus = "Draft"
	InspectionStatusSubmitted InspectionStatus = "Submitted"
	InspectionStatusApproved  InspectionStatus = "Approved"
	InspectionStatusRejected  InspectionStatus = "Rejected"
)

// Inspection is a completed or in-progress field report. Approved is
// terminal; the archival job treats a scheduled entry with an approved report
// as completed.
type Inspection struct {
	SyncEntity
	CompanyId              string           `gorm:"size:36;index;not null" json:"company_id"`
	ScheduledInspectionId  string           `gorm:"size:36;index" json:"scheduled_inspection_id"`
	InspectorId            string           `gorm:"size:36;index" json:"inspector_id"`
	InspectionDate         time.Time        `gorm:"index" json:"inspection_date"`
	Status                 InspectionStatus `gorm:"size:20;default:Draft" json:"status"`
	Notes                  string           `gorm:"type:text" json:"notes"`
}

// SaveInspection stamps the signed-in inspector from the session context when
// the report does not name one.
func SaveInspection(ctx context.Context, inspection *Inspection) (*Inspection, error) {
	if inspection.InspectorId == "" {
		if userId, ok := utils.GetUserIdFromContext(ctx); ok {
			inspection.InspectorId = userId
		}
	}
	if err := SaveSynced[Inspection](ctx, inspection); err != nil {
		return nil, err
	}
	return inspection, nil
}

func GetInspection(ctx context.Context, id string) (*Inspection, error) {
	return GetSynced[Inspection](ctx, id)
}

func ListInspectionsForCompany(ctx context.Context, companyId string) ([]*Inspection, error) {
	db := config.GetDB()
	var results []*Inspection
	err := db.WithContext(ctx).
		Where("company_id = ? AND is_deleted = ?", companyId, false).
		Order("inspection_date DESC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func DeleteInspection(ctx context.Context, id string) error {
	return SoftDelete[Inspection, *Inspection](ctx, id)
}
