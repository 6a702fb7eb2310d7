package models

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stillbooks/compliance_backend/config"
	"github.com/stillbooks/compliance_backend/utils"
	"gorm.io/gorm"
)

// InventorySnapshotRow is one (category, spirit class, tax status) line of a
// dated inventory materialization. Rows are a recomputable view of container
// positions: rebuilding a date replaces all of its rows.
type InventorySnapshotRow struct {
	ID              int             `gorm:"primary_key" json:"id"`
	CompanyId       int             `gorm:"index:idx_snapshot_company_date,priority:1;not null" json:"company_id"`
	SnapshotDate    time.Time       `gorm:"index:idx_snapshot_company_date,priority:2;not null" json:"snapshot_date"`
	ProductCategory string          `gorm:"size:100;not null" json:"product_category"`
	SpiritClass     SpiritClass     `gorm:"size:30;not null" json:"spirit_class"`
	TaxStatus       TaxStatus       `gorm:"size:20;not null" json:"tax_status"`
	WineGallons     decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"wine_gallons"`
	ProofGallons    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"proof_gallons"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// SnapshotRun summarizes one snapshot build for the audit trail.
type SnapshotRun struct {
	CompanyId    int       `json:"company_id"`
	SnapshotDate time.Time `json:"snapshot_date"`
	RowCount     int       `json:"row_count"`
	BarrelCount  int       `json:"barrel_count"`
}

// standardBarrelGallons is the fixed fill volume a bonded barrel contributes.
var standardBarrelGallons = decimal.NewFromInt(53)

// barrelInSnapshot decides whether a barrel's order keeps it in inventory for
// the given snapshot date. A barrel leaves only once its order reached a
// terminal-disposal status before the snapshot day began: a barrel sold at
// 14:00 on day D still counts for D and drops out at D+1. This grandfather
// rule prevents off-by-one exclusion at period boundaries.
func barrelInSnapshot(order Order, snapshotDate time.Time) bool {
	if !order.IsTerminalDisposal() {
		return true
	}
	if order.StatusUpdatedAt == nil {
		return true
	}
	return !order.StatusUpdatedAt.Before(utils.StartOfDay(snapshotDate))
}

type snapshotKey struct {
	Category    string
	SpiritClass SpiritClass
	TaxStatus   TaxStatus
}

// BuildSnapshotRows materializes the company's container positions for the
// given date. Returns an empty slice, not an error, when the company has no
// containers at that date.
func BuildSnapshotRows(tx *gorm.DB, ctx context.Context, calc *VolumeCalculator, classifier *SpiritClassifier, companyId int, snapshotDate time.Time) ([]*InventorySnapshotRow, int, error) {
	if companyId <= 0 {
		return nil, 0, fmt.Errorf("%w: company id must be positive", utils.ErrorValidation)
	}
	snapshotDate = utils.StartOfDay(snapshotDate)

	barrels, err := getBarrelsWithOrders(tx, ctx, companyId, utils.EndOfDayExclusive(snapshotDate))
	if err != nil {
		return nil, 0, err
	}

	totals := make(map[snapshotKey]*InventorySnapshotRow)
	included := 0
	for _, bo := range barrels {
		if !barrelInSnapshot(bo.Order, snapshotDate) {
			continue
		}
		included++

		classification := classifier.Classify(bo.Order.SpiritName, "Spirits")
		proofGallons := calc.ProofGallonsFromAbv(standardBarrelGallons, classification.Abv)

		key := snapshotKey{
			Category:    classification.Category,
			SpiritClass: classification.SpiritClass,
			TaxStatus:   bo.Order.InferTaxStatus(),
		}
		row, ok := totals[key]
		if !ok {
			row = &InventorySnapshotRow{
				CompanyId:       companyId,
				SnapshotDate:    snapshotDate,
				ProductCategory: key.Category,
				SpiritClass:     key.SpiritClass,
				TaxStatus:       key.TaxStatus,
				WineGallons:     decimal.Zero,
				ProofGallons:    decimal.Zero,
			}
			totals[key] = row
		}
		row.WineGallons = row.WineGallons.Add(standardBarrelGallons)
		row.ProofGallons = row.ProofGallons.Add(proofGallons)
	}

	rows := make([]*InventorySnapshotRow, 0, len(totals))
	for _, row := range totals {
		rows = append(rows, row)
	}
	return rows, included, nil
}

// ReplaceSnapshotRows persists a snapshot build as delete-and-replace of the
// (company, date) rows, keeping recomputation idempotent by construction.
func ReplaceSnapshotRows(tx *gorm.DB, ctx context.Context, companyId int, snapshotDate time.Time, rows []*InventorySnapshotRow, barrelCount int) error {
	snapshotDate = utils.StartOfDay(snapshotDate)

	err := tx.WithContext(ctx).
		Where("company_id = ? AND snapshot_date = ?", companyId, snapshotDate).
		Delete(&InventorySnapshotRow{}).Error
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		if err := tx.WithContext(ctx).Create(&rows).Error; err != nil {
			return err
		}
	}

	run := SnapshotRun{
		CompanyId:    companyId,
		SnapshotDate: snapshotDate,
		RowCount:     len(rows),
		BarrelCount:  barrelCount,
	}
	return SaveAuditCreate(tx, companyId, SnapshotRunAuditEntity(&run),
		fmt.Sprintf("inventory snapshot rebuilt for %s (%d rows)", snapshotDate.Format("2006-01-02"), len(rows)))
}

// GetLatestSnapshotBefore returns the rows of the most recent snapshot
// strictly before the given date, or (nil, zero time) when none exists.
func GetLatestSnapshotBefore(ctx context.Context, companyId int, before time.Time) ([]*InventorySnapshotRow, time.Time, error) {
	db := config.GetDB()

	var latest struct {
		SnapshotDate *time.Time
	}
	err := db.WithContext(ctx).Model(&InventorySnapshotRow{}).
		Where("company_id = ? AND snapshot_date < ?", companyId, before).
		Select("MAX(snapshot_date) AS snapshot_date").
		Scan(&latest).Error
	if err != nil {
		return nil, time.Time{}, err
	}
	if latest.SnapshotDate == nil {
		return nil, time.Time{}, nil
	}

	rows, err := GetSnapshotRowsAt(ctx, companyId, *latest.SnapshotDate)
	if err != nil {
		return nil, time.Time{}, err
	}
	return rows, *latest.SnapshotDate, nil
}

func GetSnapshotRowsAt(ctx context.Context, companyId int, snapshotDate time.Time) ([]*InventorySnapshotRow, error) {
	db := config.GetDB()
	var rows []*InventorySnapshotRow
	err := db.WithContext(ctx).
		Where("company_id = ? AND snapshot_date = ?", companyId, snapshotDate).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
