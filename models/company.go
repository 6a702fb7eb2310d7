package models

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stillbooks/compliance_backend/config"
	"github.com/stillbooks/compliance_backend/utils"
)

// Company is the tenant every compliance record is scoped to. Full company
// CRUD lives outside this service; only the fields the compliance core reads
// are modeled here.
type Company struct {
	ID       int    `gorm:"primary_key" json:"id"`
	Name     string `gorm:"size:255;not null" json:"name"`
	Timezone string `gorm:"size:64" json:"timezone"`

	// CBMA reduced-rate eligibility is an explicit election, not inferred.
	IsEligibleForReducedRate bool `gorm:"not null;default:false" json:"is_eligible_for_reduced_rate"`

	// Annual production in proof gallons, maintained by the production side.
	// Checked against the eligibility ceiling at tax-determination time.
	AnnualProductionPG decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"annual_production_pg"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetCompanyById(ctx context.Context, companyId int) (*Company, error) {
	if companyId <= 0 {
		return nil, fmt.Errorf("%w: company id must be positive", utils.ErrorValidation)
	}
	db := config.GetDB()
	var company Company
	if err := db.WithContext(ctx).First(&company, companyId).Error; err != nil {
		return nil, fmt.Errorf("%w: company %d", utils.ErrorRecordNotFound, companyId)
	}
	return &company, nil
}
