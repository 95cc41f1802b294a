package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/inspect_backend/config"
	"github.com/shopspring/decimal"
)

type RenewalStatus string

const (
	RenewalStatusPending   RenewalStatus = "Pending"
	RenewalStatusSubmitted RenewalStatus = "Submitted"
	RenewalStatusRenewed   RenewalStatus = "Renewed"
	RenewalStatusLapsed    RenewalStatus = "Lapsed"
)

// CompanyRenewal tracks a certificate that is approaching its expiry date.
// ReminderSentAt keeps the reminder sweep from queueing duplicates.
type CompanyRenewal struct {
	SyncEntity
	CompanyId         string          `gorm:"size:36;index;not null" json:"company_id"`
	CertificateNumber string          `gorm:"size:50" json:"certificate_number"`
	ExpiryDate        time.Time       `gorm:"index" json:"expiry_date"`
	FeeAmount         decimal.Decimal `gorm:"type:decimal(12,2)" json:"fee_amount"`
	Status            RenewalStatus   `gorm:"size:20;default:Pending" json:"status"`
	ReminderSentAt    *time.Time      `json:"reminder_sent_at"`
}

func SaveCompanyRenewal(ctx context.Context, renewal *CompanyRenewal) (*CompanyRenewal, error) {
	if err := SaveSynced[CompanyRenewal](ctx, renewal); err != nil {
		return nil, err
	}
	return renewal, nil
}

func GetCompanyRenewal(ctx context.Context, id string) (*CompanyRenewal, error) {
	return GetSynced[CompanyRenewal](ctx, id)
}

// PendingRenewalsDueBy lists pending renewals expiring on or before the
// cutoff that have not had a reminder queued yet.
func PendingRenewalsDueBy(ctx context.Context, cutoff time.Time) ([]*CompanyRenewal, error) {
	db := config.GetDB()
	var results []*CompanyRenewal
	err := db.WithContext(ctx).
		Where("status = ? AND expiry_date <= ? AND reminder_sent_at IS NULL AND is_deleted = ?",
			RenewalStatusPending, cutoff, false).
		Order("expiry_date ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func DeleteCompanyRenewal(ctx context.Context, id string) error {
	return SoftDelete[CompanyRenewal, *CompanyRenewal](ctx, id)
}
