package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stillbooks/compliance_backend/config"
	"github.com/stillbooks/compliance_backend/utils"
	"gorm.io/gorm"
)

// MonthlyReport is the regulator-facing filing for one (company, month, year).
// It is created in Draft by the report-generation job, mutated only through
// workflow transitions, and never deleted; a submitted period is immutable
// and eventually archived.
type MonthlyReport struct {
	ID        int          `gorm:"primary_key" json:"id"`
	CompanyId int          `gorm:"not null;index:uniq_report_period,unique,priority:1" json:"company_id"`
	Year      int          `gorm:"not null;index:uniq_report_period,unique,priority:2" json:"year"`
	Month     int          `gorm:"not null;index:uniq_report_period,unique,priority:3" json:"month"`
	Status    ReportStatus `gorm:"size:20;not null;default:'Draft'" json:"status"`

	// JSON-encoded string lists set by report calculation.
	ValidationErrors   *string `gorm:"type:text" json:"validation_errors"`
	ValidationWarnings *string `gorm:"type:text" json:"validation_warnings"`

	// Version is the optimistic concurrency token: every transition must carry
	// the version it read, and the guarded UPDATE fails when it moved.
	Version int `gorm:"not null;default:1" json:"version"`

	SubmittedForReviewBy *int       `json:"submitted_for_review_by"`
	SubmittedForReviewAt *time.Time `json:"submitted_for_review_at"`
	ReviewedBy           *int       `json:"reviewed_by"`
	ReviewedAt           *time.Time `json:"reviewed_at"`
	RejectionReason      *string    `gorm:"type:text" json:"rejection_reason"`
	SubmittedBy          *int       `json:"submitted_by"`
	SubmittedAt          *time.Time `json:"submitted_at"`
	ConfirmationNumber   *string    `gorm:"size:100" json:"confirmation_number"`
	ArchivedBy           *int       `json:"archived_by"`
	ArchivedAt           *time.Time `json:"archived_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r *MonthlyReport) ValidationErrorList() []string {
	return decodeStringList(r.ValidationErrors)
}

func (r *MonthlyReport) ValidationWarningList() []string {
	return decodeStringList(r.ValidationWarnings)
}

func decodeStringList(encoded *string) []string {
	if encoded == nil || *encoded == "" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(*encoded), &list); err != nil {
		// Unreadable stored results must not read as "no errors".
		return []string{"stored validation results are unreadable; recalculate the report"}
	}
	return list
}

func encodeStringList(list []string) *string {
	if len(list) == 0 {
		return nil
	}
	b, err := json.Marshal(list)
	if err != nil {
		return nil
	}
	return utils.Ptr(string(b))
}

func GetMonthlyReportById(ctx context.Context, reportId int) (*MonthlyReport, error) {
	db := config.GetDB()
	var report MonthlyReport
	if err := db.WithContext(ctx).First(&report, reportId).Error; err != nil {
		return nil, fmt.Errorf("%w: monthly report %d", utils.ErrorRecordNotFound, reportId)
	}
	return &report, nil
}

// GetOrCreateDraftReport returns the period's report, creating the Draft row
// on first touch. At most one report exists per (company, year, month).
func GetOrCreateDraftReport(ctx context.Context, companyId int, year int, month int) (*MonthlyReport, error) {
	if month < 1 || month > 12 || year < 2000 {
		return nil, fmt.Errorf("%w: invalid period %d-%d", utils.ErrorValidation, year, month)
	}
	if companyId <= 0 {
		return nil, fmt.Errorf("%w: company id must be positive", utils.ErrorValidation)
	}

	db := config.GetDB()
	var report MonthlyReport
	err := db.WithContext(ctx).
		Where("company_id = ? AND year = ? AND month = ?", companyId, year, month).
		First(&report).Error
	if err == nil {
		return &report, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	report = MonthlyReport{
		CompanyId: companyId,
		Year:      year,
		Month:     month,
		Status:    ReportStatusDraft,
		Version:   1,
	}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&report).Error; err != nil {
			return err
		}
		return SaveAuditCreate(tx, report.ID, MonthlyReportAuditEntity(&report),
			fmt.Sprintf("monthly report drafted for %d-%02d", year, month))
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// SetReportValidationResults stores the calculation's error/warning lists on a
// Draft report. Reports past Draft are immutable to recalculation results.
func SetReportValidationResults(ctx context.Context, reportId int, validationErrors []string, warnings []string) error {
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var report MonthlyReport
		if err := tx.First(&report, reportId).Error; err != nil {
			return fmt.Errorf("%w: monthly report %d", utils.ErrorRecordNotFound, reportId)
		}
		if report.Status != ReportStatusDraft {
			return fmt.Errorf("%w: report %d is %s; calculation results only apply to Draft reports",
				utils.ErrorStateConflict, reportId, report.Status)
		}
		before := report
		updates := map[string]interface{}{
			"validation_errors":   encodeStringList(validationErrors),
			"validation_warnings": encodeStringList(warnings),
			"version":             report.Version + 1,
		}
		result := tx.Model(&MonthlyReport{}).
			Where("id = ? AND version = ?", report.ID, report.Version).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: report %d was modified concurrently", utils.ErrorStateConflict, reportId)
		}
		report.ValidationErrors = encodeStringList(validationErrors)
		report.ValidationWarnings = encodeStringList(warnings)
		report.Version++
		return SaveAuditUpdate(tx, report.ID, MonthlyReportAuditEntity(&before), MonthlyReportAuditEntity(&report),
			"report validation results updated")
	})
}
