package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stillbooks/compliance_backend/config"
	"github.com/stillbooks/compliance_backend/utils"
	"gorm.io/gorm"
)

// LedgerEntry is one append-only compliance event. Entries are immutable once
// written; corrections happen through new events, never edits. The
// (kind, source_type, source_id) unique key makes recording idempotent.
type LedgerEntry struct {
	ID              int             `gorm:"primary_key" json:"id"`
	CompanyId       int             `gorm:"index:idx_ledger_company_date,priority:1;not null" json:"company_id"`
	TransactionDate time.Time       `gorm:"index:idx_ledger_company_date,priority:2;not null" json:"transaction_date"`
	Kind            TransactionKind `gorm:"size:30;not null;index:uniq_ledger_source,unique,priority:1" json:"kind"`
	ProductCategory string          `gorm:"size:100;not null" json:"product_category"`
	SpiritClass     SpiritClass     `gorm:"size:30;not null" json:"spirit_class"`
	ProofGallons    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"proof_gallons"`
	WineGallons     decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"wine_gallons"`
	SourceType      SourceType      `gorm:"size:20;not null;index:uniq_ledger_source,unique,priority:2" json:"source_type"`
	SourceId        int             `gorm:"not null;index:uniq_ledger_source,unique,priority:3" json:"source_id"`
	Note            string          `gorm:"type:text" json:"note"`
	CorrelationId   string          `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type RecordLedgerEntryInput struct {
	CompanyId       int
	TransactionDate time.Time
	Kind            TransactionKind
	ProductCategory string
	SpiritClass     SpiritClass
	ProofGallons    decimal.Decimal
	WineGallons     decimal.Decimal
	SourceType      SourceType
	SourceId        int
	Note            string
}

// RecordLedgerEntry appends one compliance event inside the caller's
// transaction. Replays with the same (kind, source type, source id) return the
// existing entry untouched. A ledger entry without a valid classification
// would corrupt every downstream aggregate, so missing context is terminal.
func RecordLedgerEntry(tx *gorm.DB, ctx context.Context, input RecordLedgerEntryInput) (*LedgerEntry, error) {
	if input.CompanyId <= 0 {
		return nil, fmt.Errorf("%w: company %d", utils.ErrorRecordNotFound, input.CompanyId)
	}
	if _, err := ParseTransactionKind(string(input.Kind)); err != nil {
		return nil, fmt.Errorf("%w: %s is not a transaction kind", utils.ErrorValidation, input.Kind)
	}
	if input.SourceId <= 0 {
		return nil, fmt.Errorf("%w: source id must be positive", utils.ErrorValidation)
	}
	if input.ProductCategory == "" || input.SpiritClass == "" {
		return nil, fmt.Errorf("%w: source %s %d has no spirit classification",
			utils.ErrorMissingContext, input.SourceType, input.SourceId)
	}

	existing, err := GetLedgerEntryBySource(tx, ctx, input.Kind, input.SourceType, input.SourceId)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		// idempotent replay: success, no second entry
		return existing, nil
	}

	entry := LedgerEntry{
		CompanyId:       input.CompanyId,
		TransactionDate: utils.StartOfDay(input.TransactionDate),
		Kind:            input.Kind,
		ProductCategory: input.ProductCategory,
		SpiritClass:     input.SpiritClass,
		ProofGallons:    clampGallons(input.ProofGallons),
		WineGallons:     clampGallons(input.WineGallons),
		SourceType:      input.SourceType,
		SourceId:        input.SourceId,
		Note:            input.Note,
		CorrelationId:   correlationIdFromContextOrNew(ctx),
	}
	if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, err
	}
	if err := SaveAuditCreate(tx, entry.ID, LedgerEntryAuditEntity(&entry),
		fmt.Sprintf("%s ledger entry recorded for %s %d", entry.Kind, entry.SourceType, entry.SourceId)); err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetLedgerEntryBySource returns the entry recorded under one natural key, or
// nil when none exists.
func GetLedgerEntryBySource(tx *gorm.DB, ctx context.Context, kind TransactionKind, sourceType SourceType, sourceId int) (*LedgerEntry, error) {
	var entry LedgerEntry
	err := tx.WithContext(ctx).
		Where("kind = ? AND source_type = ? AND source_id = ?", kind, sourceType, sourceId).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// clampGallons floors negative quantities at zero and rounds to 2 decimals.
func clampGallons(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v.Round(2)
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// GetLedgerEntriesForPeriod returns a company's entries with
// start <= transaction_date < end.
func GetLedgerEntriesForPeriod(ctx context.Context, companyId int, start time.Time, end time.Time) ([]*LedgerEntry, error) {
	db := config.GetDB()
	var entries []*LedgerEntry
	err := db.WithContext(ctx).
		Where("company_id = ? AND transaction_date >= ? AND transaction_date < ?", companyId, start, end).
		Order("transaction_date, id").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// GetLedgerEntriesBefore returns all of a company's entries strictly before
// the given date. Used as the opening-inventory fallback when no snapshot
// exists.
func GetLedgerEntriesBefore(ctx context.Context, companyId int, before time.Time) ([]*LedgerEntry, error) {
	db := config.GetDB()
	var entries []*LedgerEntry
	err := db.WithContext(ctx).
		Where("company_id = ? AND transaction_date < ?", companyId, before).
		Order("transaction_date, id").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
