package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/inspect_backend/config"
	"bitbucket.org/mmdatafocus/inspect_backend/utils"
	"github.com/shopspring/decimal"
)

type ViolationSeverity string

const (
	ViolationSeverityLow      ViolationSeverity = "Low"
	ViolationSeverityMedium   ViolationSeverity = "Medium"
	ViolationSeverityHigh     ViolationSeverity = "High"
	ViolationSeverityCritical ViolationSeverity = "Critical"
)

type Violation struct {
	SyncEntity
	InspectionId  string            `gorm:"size:36;index;not null" json:"inspection_id"`
	CompanyId     string            `gorm:"size:36;index;not null" json:"company_id"`
	Code          string            `gorm:"size:20;not null" json:"code" validate:"required"`
	Description   string            `gorm:"type:text" json:"description"`
	Severity      ViolationSeverity `gorm:"size:10;default:Low" json:"severity"`
	PenaltyAmount decimal.Decimal   `gorm:"type:decimal(12,2)" json:"penalty_amount"`
	CorrectedAt   *time.Time        `json:"corrected_at"`
}

func SaveViolation(ctx context.Context, violation *Violation) (*Violation, error) {
	if err := utils.ValidateStruct(violation); err != nil {
		return nil, err
	}
	if err := SaveSynced[Violation](ctx, violation); err != nil {
		return nil, err
	}
	return violation, nil
}

func GetViolation(ctx context.Context, id string) (*Violation, error) {
	return GetSynced[Violation](ctx, id)
}

// MarkViolationCorrected records remediation. Business-field write, so the
// record goes back on the dirty set.
func MarkViolationCorrected(ctx context.Context, id string, correctedAt time.Time) (*Violation, error) {
	violation, err := GetViolation(ctx, id)
	if err != nil {
		return nil, err
	}
	violation.CorrectedAt = &correctedAt
	return SaveViolation(ctx, violation)
}

func ListOpenViolationsForCompany(ctx context.Context, companyId string) ([]*Violation, error) {
	db := config.GetDB()
	var results []*Violation
	err := db.WithContext(ctx).
		Where("company_id = ? AND corrected_at IS NULL AND is_deleted = ?", companyId, false).
		Order("severity DESC, last_modified_utc DESC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func DeleteViolation(ctx context.Context, id string) error {
	return SoftDelete[Violation, *Violation](ctx, id)
}
