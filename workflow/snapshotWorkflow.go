package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stillbooks/compliance_backend/config"
	"github.com/stillbooks/compliance_backend/models"
	"github.com/stillbooks/compliance_backend/models/reports"
	"gorm.io/gorm"
)

// ProcessSnapshotWorkflow materializes a company's inventory for one date.
// Safe to re-run: the write is a full replace of that date's rows, so
// recomputation is idempotent by construction.
func ProcessSnapshotWorkflow(ctx context.Context, logger *logrus.Logger, calc *models.VolumeCalculator, classifier *models.SpiritClassifier, companyId int, snapshotDate time.Time) ([]*models.InventorySnapshotRow, error) {
	if _, err := models.GetCompanyById(ctx, companyId); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var rows []*models.InventorySnapshotRow
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var barrelCount int
		var err error
		rows, barrelCount, err = models.BuildSnapshotRows(tx, ctx, calc, classifier, companyId, snapshotDate)
		if err != nil {
			return err
		}
		return models.ReplaceSnapshotRows(tx, ctx, companyId, snapshotDate, rows, barrelCount)
	})
	if err != nil {
		config.LogError(logger, "snapshotWorkflow.go", "ProcessSnapshotWorkflow",
			fmt.Sprintf("company=%d date=%s", companyId, snapshotDate.Format("2006-01-02")), nil, err)
		return nil, err
	}

	// the snapshot feeds its month's reconciliation and the next month's
	// opening inventory; both cached calculations are now stale
	monthStart := time.Date(snapshotDate.Year(), snapshotDate.Month(), 1, 0, 0, 0, 0, time.UTC)
	reports.InvalidateMonthlyReportCache(companyId, monthStart.Year(), int(monthStart.Month()))
	nextMonth := monthStart.AddDate(0, 1, 0)
	reports.InvalidateMonthlyReportCache(companyId, nextMonth.Year(), int(nextMonth.Month()))

	logger.WithFields(logrus.Fields{
		"company_id":    companyId,
		"snapshot_date": snapshotDate.Format("2006-01-02"),
		"rows":          len(rows),
	}).Info("inventory snapshot rebuilt")
	return rows, nil
}
