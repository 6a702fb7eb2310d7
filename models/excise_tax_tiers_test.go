package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAllocateTaxTiersSplitsAtThreshold(t *testing.T) {
	// 95,000 PG already taxed this year, 10,000 PG removal: 5,000 finish the
	// reduced-rate allotment, 5,000 spill to the standard rate.
	reduced, standard := allocateTaxTiers(d("10000"), d("95000"), true)
	if reduced.String() != "5000" {
		t.Fatalf("expected 5000 reduced-rate gallons, got %s", reduced)
	}
	if standard.String() != "5000" {
		t.Fatalf("expected 5000 standard-rate gallons, got %s", standard)
	}

	total := reduced.Mul(reducedTaxRate).Add(standard.Mul(standardTaxRate)).Round(2)
	if total.StringFixed(2) != "134200.00" {
		t.Fatalf("expected total tax 134200.00, got %s", total.StringFixed(2))
	}
}

func TestAllocateTaxTiersEntirelyUnderThreshold(t *testing.T) {
	reduced, standard := allocateTaxTiers(d("1000"), d("50000"), true)
	if reduced.String() != "1000" {
		t.Fatalf("expected all gallons at the reduced rate, got %s", reduced)
	}
	if !standard.IsZero() {
		t.Fatalf("expected no standard-rate gallons, got %s", standard)
	}
}

func TestAllocateTaxTiersYearToDateAboveThreshold(t *testing.T) {
	reduced, standard := allocateTaxTiers(d("1000"), d("150000"), true)
	if !reduced.IsZero() {
		t.Fatalf("threshold exhausted: expected no reduced-rate gallons, got %s", reduced)
	}
	if standard.String() != "1000" {
		t.Fatalf("expected all gallons at the standard rate, got %s", standard)
	}
}

func TestAllocateTaxTiersIneligibleCompanyPaysStandard(t *testing.T) {
	// ineligibility is not an error, every gallon just prices at 13.50
	reduced, standard := allocateTaxTiers(d("10000"), d("0"), false)
	if !reduced.IsZero() {
		t.Fatalf("ineligible company must get no reduced-rate gallons, got %s", reduced)
	}
	if standard.String() != "10000" {
		t.Fatalf("expected 10000 standard-rate gallons, got %s", standard)
	}
}

func TestAllocateTaxTiersGallonsConserved(t *testing.T) {
	cases := []struct {
		gallons    string
		yearToDate string
		eligible   bool
	}{
		{"10000", "95000", true},
		{"250.75", "99999.50", true},
		{"10000", "0", false},
		{"0.01", "100000", true},
	}
	for _, tt := range cases {
		gallons := d(tt.gallons)
		reduced, standard := allocateTaxTiers(gallons, d(tt.yearToDate), tt.eligible)
		if !reduced.Add(standard).Equal(gallons) {
			t.Errorf("tiers must sum to input: %s + %s != %s", reduced, standard, gallons)
		}
		if reduced.IsNegative() || standard.IsNegative() {
			t.Errorf("tier gallons must never be negative: %s / %s", reduced, standard)
		}
	}
}
