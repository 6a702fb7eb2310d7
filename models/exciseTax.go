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

// Federal excise rates per proof gallon. The reduced (CBMA) rate applies up to
// the annual threshold for companies that elected it and produce below the
// eligibility ceiling.
var (
	reducedTaxRate       = decimal.RequireFromString("13.34")
	standardTaxRate      = decimal.RequireFromString("13.50")
	reducedRateThreshold = decimal.NewFromInt(100000)
	eligibilityCeiling   = decimal.NewFromInt(2250000)
)

// ExciseTaxEngine computes graduated tax liability for removal events.
type ExciseTaxEngine struct {
	calc       *VolumeCalculator
	classifier *SpiritClassifier
}

func NewExciseTaxEngine(calc *VolumeCalculator, classifier *SpiritClassifier) *ExciseTaxEngine {
	return &ExciseTaxEngine{calc: calc, classifier: classifier}
}

// TaxCalculation is the full breakdown of one order's liability.
type TaxCalculation struct {
	CompanyId           int             `json:"company_id"`
	OrderId             int             `json:"order_id"`
	ProofGallons        decimal.Decimal `json:"proof_gallons"`
	YearToDateGallons   decimal.Decimal `json:"year_to_date_gallons"`
	ReducedRateEligible bool            `json:"reduced_rate_eligible"`
	ReducedRateGallons  decimal.Decimal `json:"reduced_rate_gallons"`
	StandardRateGallons decimal.Decimal `json:"standard_rate_gallons"`
	TotalTax            decimal.Decimal `json:"total_tax"`
	EffectiveRate       decimal.Decimal `json:"effective_rate"`
	DeterminationDate   time.Time       `json:"determination_date"`
}

// allocateTaxTiers splits gallons between the reduced and standard rates given
// the company's year-to-date consumption of the reduced-rate threshold.
// Ineligibility routes everything to the standard rate; it is not an error.
func allocateTaxTiers(gallons decimal.Decimal, yearToDate decimal.Decimal, eligible bool) (reduced decimal.Decimal, standard decimal.Decimal) {
	if !eligible {
		return decimal.Zero, gallons
	}
	remaining := reducedRateThreshold.Sub(yearToDate)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	reduced = decimal.Min(gallons, remaining)
	standard = gallons.Sub(reduced)
	return reduced, standard
}

// Calculate computes an order's excise liability from its removal gauge
// readings. A determination without gallons is meaningless, not a zero-tax
// case, so an order with no removal volume is rejected.
func (e *ExciseTaxEngine) Calculate(ctx context.Context, companyId int, orderId int) (*TaxCalculation, error) {
	company, err := GetCompanyById(ctx, companyId)
	if err != nil {
		return nil, err
	}
	order, err := GetOrderById(ctx, companyId, orderId)
	if err != nil {
		return nil, err
	}

	readings, err := GetRemovalReadingsForOrder(ctx, companyId, order.ID)
	if err != nil {
		return nil, err
	}
	gallons := decimal.Zero
	for _, r := range readings {
		gallons = gallons.Add(e.calc.ProofGallons(r.WineGallons, r.Proof, r.TemperatureF))
	}
	if !gallons.IsPositive() {
		return nil, fmt.Errorf("%w: order %d has no removal gauge data", utils.ErrorMissingContext, orderId)
	}

	now := time.Now().UTC()
	yearToDate, err := GetYearToDateTaxedProofGallons(ctx, companyId, now.Year())
	if err != nil {
		return nil, err
	}

	eligible := company.IsEligibleForReducedRate && company.AnnualProductionPG.LessThan(eligibilityCeiling)
	reduced, standard := allocateTaxTiers(gallons, yearToDate, eligible)

	// per-tier amounts summed first, rounded once at the end
	totalTax := reduced.Mul(reducedTaxRate).Add(standard.Mul(standardTaxRate)).Round(2)

	effectiveRate := decimal.Zero
	if gallons.IsPositive() {
		effectiveRate = totalTax.Div(gallons).Round(4)
	}

	return &TaxCalculation{
		CompanyId:           companyId,
		OrderId:             orderId,
		ProofGallons:        gallons,
		YearToDateGallons:   yearToDate,
		ReducedRateEligible: eligible,
		ReducedRateGallons:  reduced,
		StandardRateGallons: standard,
		TotalTax:            totalTax,
		EffectiveRate:       effectiveRate,
		DeterminationDate:   now,
	}, nil
}

// RecordDetermination persists the calculation as the order's single tax
// determination, with an accompanying ledger entry, in one transaction.
// Idempotent per order: an existing determination is returned untouched.
func (e *ExciseTaxEngine) RecordDetermination(ctx context.Context, companyId int, orderId int) (*TaxDetermination, error) {
	db := config.GetDB()

	var determination *TaxDetermination
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := GetTaxDeterminationByOrderId(tx, ctx, companyId, orderId)
		if err != nil {
			return err
		}
		if existing != nil {
			determination = existing
			return nil
		}

		calculation, err := e.Calculate(ctx, companyId, orderId)
		if err != nil {
			return err
		}

		determination = &TaxDetermination{
			CompanyId:         companyId,
			OrderId:           orderId,
			ProofGallons:      calculation.ProofGallons,
			EffectiveTaxRate:  calculation.EffectiveRate,
			TaxAmount:         calculation.TotalTax,
			DeterminationDate: calculation.DeterminationDate,
		}
		if err := tx.Create(determination).Error; err != nil {
			return err
		}
		if err := SaveAuditCreate(tx, determination.ID, TaxDeterminationAuditEntity(determination),
			fmt.Sprintf("tax determined for order %d: $%s at $%s/PG", orderId,
				determination.TaxAmount.StringFixed(2), determination.EffectiveTaxRate.String())); err != nil {
			return err
		}

		order, err := GetOrderById(ctx, companyId, orderId)
		if err != nil {
			return err
		}
		classification := e.classifier.Classify(order.SpiritName, "Spirits")
		_, err = RecordLedgerEntry(tx, ctx, RecordLedgerEntryInput{
			CompanyId:       companyId,
			TransactionDate: calculation.DeterminationDate,
			Kind:            TransactionKindTaxDetermination,
			ProductCategory: classification.Category,
			SpiritClass:     classification.SpiritClass,
			ProofGallons:    calculation.ProofGallons,
			WineGallons:     decimal.Zero,
			SourceType:      SourceTypeOrder,
			SourceId:        orderId,
			Note:            fmt.Sprintf("excise tax determination for order %s", order.OrderNumber),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return determination, nil
}
