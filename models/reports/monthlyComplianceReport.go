package reports

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stillbooks/compliance_backend/config"
	"github.com/stillbooks/compliance_backend/models"
	"github.com/stillbooks/compliance_backend/utils"
)

// SectionTotal is one (category, spirit class) line of a report section.
type SectionTotal struct {
	ProductCategory string             `json:"product_category"`
	SpiritClass     models.SpiritClass `json:"spirit_class"`
	WineGallons     decimal.Decimal    `json:"wine_gallons"`
	ProofGallons    decimal.Decimal    `json:"proof_gallons"`
}

type sectionKey struct {
	Category    string
	SpiritClass models.SpiritClass
}

// MonthlyReportData carries every section of a calculated month. All gallons
// are rounded to 2 decimals at this presentation layer only.
type MonthlyReportData struct {
	CompanyId int `json:"company_id"`
	Year      int `json:"year"`
	Month     int `json:"month"`

	Opening      []SectionTotal `json:"opening"`
	Production   []SectionTotal `json:"production"`
	TransfersIn  []SectionTotal `json:"transfers_in"`
	TransfersOut []SectionTotal `json:"transfers_out"`
	Losses       []SectionTotal `json:"losses"`
	Closing      []SectionTotal `json:"closing"`

	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

type gallonPair struct {
	wine  decimal.Decimal
	proof decimal.Decimal
}

// closingMultipliers signs each transaction kind's contribution to closing
// inventory. Gain/Destruction/Bottling are carried for forward compatibility;
// tax determinations do not move inventory.
var closingMultipliers = map[models.TransactionKind]int64{
	models.TransactionKindProduction:       1,
	models.TransactionKindTransferIn:       1,
	models.TransactionKindGain:             1,
	models.TransactionKindTransferOut:      -1,
	models.TransactionKindLoss:             -1,
	models.TransactionKindDestruction:      -1,
	models.TransactionKindBottling:         -1,
	models.TransactionKindTaxDetermination: 0,
}

// reconciliationTolerance absorbs rounding drift between the computed closing
// and an independently built snapshot.
var reconciliationTolerance = decimal.RequireFromString("0.01")

func addToBucket(buckets map[sectionKey]*gallonPair, key sectionKey, wine decimal.Decimal, proof decimal.Decimal) {
	pair, ok := buckets[key]
	if !ok {
		pair = &gallonPair{wine: decimal.Zero, proof: decimal.Zero}
		buckets[key] = pair
	}
	pair.wine = pair.wine.Add(wine)
	pair.proof = pair.proof.Add(proof)
}

// sumEntriesByKind totals the period's entries for one transaction kind.
// Each kind is its own report bucket, so no directional multiplier applies.
func sumEntriesByKind(entries []*models.LedgerEntry, kind models.TransactionKind) map[sectionKey]*gallonPair {
	buckets := make(map[sectionKey]*gallonPair)
	for _, e := range entries {
		if e.Kind != kind {
			continue
		}
		addToBucket(buckets, sectionKey{Category: e.ProductCategory, SpiritClass: e.SpiritClass}, e.WineGallons, e.ProofGallons)
	}
	return buckets
}

// sumEntriesSigned aggregates entries with the closing-inventory sign table.
// Used for the ledger fallback of opening inventory and for closing math.
func sumEntriesSigned(entries []*models.LedgerEntry) map[sectionKey]*gallonPair {
	buckets := make(map[sectionKey]*gallonPair)
	for _, e := range entries {
		mult, ok := closingMultipliers[e.Kind]
		if !ok || mult == 0 {
			continue
		}
		m := decimal.NewFromInt(mult)
		addToBucket(buckets, sectionKey{Category: e.ProductCategory, SpiritClass: e.SpiritClass},
			e.WineGallons.Mul(m), e.ProofGallons.Mul(m))
	}
	return buckets
}

func snapshotToBuckets(rows []*models.InventorySnapshotRow) map[sectionKey]*gallonPair {
	buckets := make(map[sectionKey]*gallonPair)
	for _, row := range rows {
		// tax-status dimension collapses to the (category, class) report key
		addToBucket(buckets, sectionKey{Category: row.ProductCategory, SpiritClass: row.SpiritClass},
			row.WineGallons, row.ProofGallons)
	}
	return buckets
}

// computeClosing applies the month's signed movements on top of opening.
func computeClosing(opening map[sectionKey]*gallonPair, entries []*models.LedgerEntry) map[sectionKey]*gallonPair {
	closing := make(map[sectionKey]*gallonPair, len(opening))
	for key, pair := range opening {
		closing[key] = &gallonPair{wine: pair.wine, proof: pair.proof}
	}
	for key, pair := range sumEntriesSigned(entries) {
		addToBucket(closing, key, pair.wine, pair.proof)
	}
	return closing
}

// reconcile compares the computed closing against an independently built
// snapshot, per key, within tolerance. Divergence produces warnings, never
// errors: the computed values remain the report's source of truth and the
// snapshot stays a health check.
func reconcile(computed map[sectionKey]*gallonPair, snapshot map[sectionKey]*gallonPair) []string {
	keys := make(map[sectionKey]bool, len(computed)+len(snapshot))
	for key := range computed {
		keys[key] = true
	}
	for key := range snapshot {
		keys[key] = true
	}

	ordered := make([]sectionKey, 0, len(keys))
	for key := range keys {
		ordered = append(ordered, key)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Category != ordered[j].Category {
			return ordered[i].Category < ordered[j].Category
		}
		return ordered[i].SpiritClass < ordered[j].SpiritClass
	})

	var warnings []string
	for _, key := range ordered {
		computedPG := decimal.Zero
		if pair, ok := computed[key]; ok {
			computedPG = pair.proof
		}
		snapshotPG := decimal.Zero
		if pair, ok := snapshot[key]; ok {
			snapshotPG = pair.proof
		}
		diff := computedPG.Sub(snapshotPG).Abs()
		if diff.GreaterThan(reconciliationTolerance) {
			warnings = append(warnings, fmt.Sprintf(
				"closing inventory diverges from snapshot for %s/%s: computed %s PG, snapshot %s PG",
				key.Category, key.SpiritClass, computedPG.Round(2).StringFixed(2), snapshotPG.Round(2).StringFixed(2)))
		}
	}
	return warnings
}

// toSectionTotals renders buckets as sorted, 2dp-rounded section lines.
// Rounding happens only here, after all additions, so per-entry rounding error
// cannot compound.
func toSectionTotals(buckets map[sectionKey]*gallonPair) []SectionTotal {
	totals := make([]SectionTotal, 0, len(buckets))
	for key, pair := range buckets {
		totals = append(totals, SectionTotal{
			ProductCategory: key.Category,
			SpiritClass:     key.SpiritClass,
			WineGallons:     pair.wine.Round(2),
			ProofGallons:    pair.proof.Round(2),
		})
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].ProductCategory != totals[j].ProductCategory {
			return totals[i].ProductCategory < totals[j].ProductCategory
		}
		return totals[i].SpiritClass < totals[j].SpiritClass
	})
	return totals
}

// CalculateMonth assembles a company's monthly report data: opening inventory
// (snapshot, or ledger fallback), the month's movements by kind, a computed
// closing, and reconciliation against the period-end snapshot when one exists.
func CalculateMonth(ctx context.Context, companyId int, year int, month int) (*MonthlyReportData, error) {
	if month < 1 || month > 12 || year < 2000 {
		return nil, fmt.Errorf("%w: invalid period %d-%d", utils.ErrorValidation, year, month)
	}
	if companyId <= 0 {
		return nil, fmt.Errorf("%w: company id must be positive", utils.ErrorValidation)
	}

	started := time.Now()
	cacheKey := monthlyReportCacheKey(companyId, year, month)
	if reportCacheEnabled() {
		var cached MonthlyReportData
		if hit, err := cacheGet(cacheKey, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	periodStart, periodEnd := utils.MonthBounds(year, month)
	data := &MonthlyReportData{CompanyId: companyId, Year: year, Month: month}

	// 1. opening inventory
	openingRows, _, err := models.GetLatestSnapshotBefore(ctx, companyId, periodStart)
	if err != nil {
		return nil, err
	}
	var opening map[sectionKey]*gallonPair
	if len(openingRows) > 0 {
		opening = snapshotToBuckets(openingRows)
	} else {
		priorEntries, err := models.GetLedgerEntriesBefore(ctx, companyId, periodStart)
		if err != nil {
			return nil, err
		}
		opening = sumEntriesSigned(priorEntries)
		if len(priorEntries) > 0 {
			// ledger fallback has no tax-status dimension
			data.Warnings = append(data.Warnings,
				"opening inventory derived from ledger history; no snapshot exists before the period start")
		}
	}

	// 2. period movements
	entries, err := models.GetLedgerEntriesForPeriod(ctx, companyId, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}

	// 3. computed closing
	closing := computeClosing(opening, entries)

	// 4. reconciliation against the period-end snapshot
	periodEndDate := periodEnd.AddDate(0, 0, -1)
	snapshotRows, err := models.GetSnapshotRowsAt(ctx, companyId, periodEndDate)
	if err != nil {
		return nil, err
	}
	if len(snapshotRows) > 0 {
		divergences := reconcile(closing, snapshotToBuckets(snapshotRows))
		for _, warning := range divergences {
			config.LogWarn(config.GetLogger(), "monthlyComplianceReport.go", "CalculateMonth",
				fmt.Sprintf("company=%d period=%d-%02d", companyId, year, month), warning)
		}
		data.Warnings = append(data.Warnings, divergences...)
	}

	// negative closing stock cannot be filed
	for key, pair := range closing {
		if pair.proof.Round(2).IsNegative() || pair.wine.Round(2).IsNegative() {
			data.Errors = append(data.Errors, fmt.Sprintf(
				"computed closing inventory is negative for %s/%s", key.Category, key.SpiritClass))
		}
	}
	sort.Strings(data.Errors)

	// 5. presentation rounding
	data.Opening = toSectionTotals(opening)
	data.Production = toSectionTotals(sumEntriesByKind(entries, models.TransactionKindProduction))
	data.TransfersIn = toSectionTotals(sumEntriesByKind(entries, models.TransactionKindTransferIn))
	data.TransfersOut = toSectionTotals(sumEntriesByKind(entries, models.TransactionKindTransferOut))
	data.Losses = toSectionTotals(sumEntriesByKind(entries, models.TransactionKindLoss))
	data.Closing = toSectionTotals(closing)

	if reportCacheEnabled() {
		_ = cacheSet(cacheKey, data, reportCacheTTL())
	}
	logSlowReport(ctx, "monthly_compliance_report", started, map[string]any{
		"company_id": companyId, "year": year, "month": month,
	})
	return data, nil
}

// RunMonthlyReportCalculation calculates the month and stores the resulting
// error/warning lists on the period's Draft report.
func RunMonthlyReportCalculation(ctx context.Context, companyId int, year int, month int) (*models.MonthlyReport, *MonthlyReportData, error) {
	report, err := models.GetOrCreateDraftReport(ctx, companyId, year, month)
	if err != nil {
		return nil, nil, err
	}
	data, err := CalculateMonth(ctx, companyId, year, month)
	if err != nil {
		return nil, nil, err
	}
	if err := models.SetReportValidationResults(ctx, report.ID, data.Errors, data.Warnings); err != nil {
		return nil, nil, err
	}
	report, err = models.GetMonthlyReportById(ctx, report.ID)
	if err != nil {
		return nil, nil, err
	}
	return report, data, nil
}
