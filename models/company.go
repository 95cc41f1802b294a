package models

import (
	"context"

	"bitbucket.org/mmdatafocus/inspect_backend/config"
	"bitbucket.org/mmdatafocus/inspect_backend/utils"
)

// Company is a regulated business under inspection. FileNumber and
// CertificateNumber are assigned by the regulator; either may be blank on a
// record captured in the field, which is why the natural key is a priority
// list rather than a single unique column.
type Company struct {
	SyncEntity
	FileNumber        string `gorm:"size:50;index" json:"file_number"`
	CertificateNumber string `gorm:"size:50;index" json:"certificate_number"`
	Name              string `gorm:"size:255;not null;index" json:"name" validate:"required"`
	Location          string `gorm:"size:255" json:"location"`
	Phone             string `gorm:"size:20" json:"phone"`
	Email             string `gorm:"size:100" json:"email"`
	ContactPerson     string `gorm:"size:100" json:"contact_person"`
}

// NaturalKeys returns candidate keys in descending priority order. Blank
// candidates are skipped by the reconciler, not treated as matches.
func (c *Company) NaturalKeys() []NaturalKey {
	return []NaturalKey{
		{Column: "file_number", Value: c.FileNumber},
		{Column: "certificate_number", Value: c.CertificateNumber},
		{Column: "name", Value: c.Name},
	}
}

// SaveCompany reconciles against the natural key before writing: a company
// recorded independently on two devices lands as one row, keeping the
// original row's ID.
func SaveCompany(ctx context.Context, company *Company) (*Company, error) {
	if err := utils.ValidateStruct(company); err != nil {
		return nil, err
	}
	if company.Phone != "" {
		if err := utils.ValidatePhoneNumber(company.Phone, config.PhoneRegion()); err != nil {
			return nil, err
		}
	}
	if err := reconcileSave[Company](ctx, company, company.NaturalKeys()); err != nil {
		return nil, err
	}
	return company, nil
}

func GetCompany(ctx context.Context, id string) (*Company, error) {
	return GetSynced[Company](ctx, id)
}

func ListCompanies(ctx context.Context) ([]*Company, error) {
	db := config.GetDB()
	var results []*Company
	err := db.WithContext(ctx).
		Where("is_deleted = ?", false).
		Order("name ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func DeleteCompany(ctx context.Context, id string) error {
	return SoftDelete[Company, *Company](ctx, id)
}
