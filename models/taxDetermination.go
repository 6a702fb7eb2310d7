package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stillbooks/compliance_backend/config"
	"gorm.io/gorm"
)

// TaxDetermination fixes the excise liability for one removal. At most one
// exists per order; amounts are immutable once written; corrections require a
// new determination and manual reconciliation.
type TaxDetermination struct {
	ID                int             `gorm:"primary_key" json:"id"`
	CompanyId         int             `gorm:"index;not null" json:"company_id"`
	OrderId           int             `gorm:"uniqueIndex;not null" json:"order_id"`
	ProofGallons      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"proof_gallons"`
	EffectiveTaxRate  decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"effective_tax_rate"`
	TaxAmount         decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"tax_amount"`
	DeterminationDate time.Time       `gorm:"index;not null" json:"determination_date"`
	PaidDate          *time.Time      `json:"paid_date"`
	PaymentReference  *string         `gorm:"size:100" json:"payment_reference"`
	JournalReference  *string         `gorm:"size:100" json:"journal_reference"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// GetTaxDeterminationByOrderId returns the order's determination, or nil when
// none exists yet.
func GetTaxDeterminationByOrderId(tx *gorm.DB, ctx context.Context, companyId int, orderId int) (*TaxDetermination, error) {
	var determination TaxDetermination
	err := tx.WithContext(ctx).
		Where("company_id = ? AND order_id = ?", companyId, orderId).
		First(&determination).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &determination, nil
}

// GetYearToDateTaxedProofGallons sums the proof gallons already determined for
// the company in the given calendar year. Feeds the reduced-rate tier split.
func GetYearToDateTaxedProofGallons(ctx context.Context, companyId int, year int) (decimal.Decimal, error) {
	db := config.GetDB()
	yearStart := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	yearEnd := yearStart.AddDate(1, 0, 0)

	var total decimal.NullDecimal
	err := db.WithContext(ctx).Model(&TaxDetermination{}).
		Where("company_id = ? AND determination_date >= ? AND determination_date < ?", companyId, yearStart, yearEnd).
		Select("SUM(proof_gallons)").
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}
