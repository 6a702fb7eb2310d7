package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestTemperatureCorrectionStandardSixtyIsIdentity(t *testing.T) {
	calc := NewVolumeCalculator()
	one := decimal.NewFromInt(1)

	for _, proof := range []string{"80", "100", "125", "190", "200"} {
		factor := calc.TemperatureCorrectionFactor(decimal.NewFromInt(60), decimal.RequireFromString(proof))
		if !factor.Equal(one) {
			t.Fatalf("60F at proof %s: expected factor 1.0000, got %s", proof, factor)
		}
	}
}

func TestTemperatureCorrectionBucketLookup(t *testing.T) {
	calc := NewVolumeCalculator()

	tests := []struct {
		temperature string
		proof       string
		factor      string
	}{
		{"85", "110", "0.9912"},
		{"39.9", "95", "1.0080"},
		{"45", "185", "1.0080"},
		{"70", "100", "0.9977"},  // 70 is inclusive in the 60-70 band
		{"70.1", "100", "0.9944"},
		{"95", "200", "0.9840"},
		{"59.99", "100", "1.0023"},
	}
	for _, tt := range tests {
		got := calc.TemperatureCorrectionFactor(
			decimal.RequireFromString(tt.temperature), decimal.RequireFromString(tt.proof))
		if got.String() != decimal.RequireFromString(tt.factor).String() {
			t.Errorf("factor(%sF, %s proof): expected %s, got %s", tt.temperature, tt.proof, tt.factor, got)
		}
	}
}

func TestTemperatureCorrectionFallsOpenWhenTableIsIncomplete(t *testing.T) {
	calc := &VolumeCalculator{corrections: map[correctionKey]decimal.Decimal{}}

	factor := calc.TemperatureCorrectionFactor(decimal.NewFromInt(85), decimal.NewFromInt(110))
	if !factor.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("missing table entry must not reject gauging: expected 1, got %s", factor)
	}
}

func TestProofGallonsBasicConversion(t *testing.T) {
	calc := NewVolumeCalculator()

	// 100 WG at 100 proof and standard temperature is exactly 100 PG
	got := calc.ProofGallons(decimal.NewFromInt(100), decimal.NewFromInt(100), decimal.NewFromInt(60))
	if got.String() != "100" {
		t.Fatalf("expected 100 PG, got %s", got)
	}

	// 53 WG at 110 proof gauged at 85F: 53 * 1.10 * 0.9912 = 57.786960 -> 57.79
	got = calc.ProofGallons(decimal.NewFromInt(53), decimal.NewFromInt(110), decimal.NewFromInt(85))
	if got.String() != "57.79" {
		t.Fatalf("expected 57.79 PG, got %s", got)
	}
}

func TestProofGallonsRoundsHalfAwayFromZero(t *testing.T) {
	calc := NewVolumeCalculator()

	// 10 gal at 50.025% ABV -> proof 100.05 -> 10.005 -> rounds up
	got := calc.ProofGallonsFromAbv(decimal.NewFromInt(10), decimal.RequireFromString("50.025"))
	if got.String() != "10.01" {
		t.Fatalf("expected 10.01, got %s", got)
	}
}

func TestProofGallonsDegenerateInputsFloorAtZero(t *testing.T) {
	calc := NewVolumeCalculator()

	cases := []struct {
		name        string
		wineGallons string
		proof       string
	}{
		{"zero volume", "0", "100"},
		{"negative volume", "-10", "100"},
		{"zero proof", "50", "0"},
		{"negative proof", "50", "-80"},
	}
	for _, tt := range cases {
		got := calc.ProofGallons(
			decimal.RequireFromString(tt.wineGallons), decimal.RequireFromString(tt.proof), decimal.NewFromInt(60))
		if !got.Equal(decimal.Zero) {
			t.Errorf("%s: expected exactly zero, got %s", tt.name, got)
		}
		if got.IsNegative() {
			t.Errorf("%s: proof gallons must never be negative", tt.name)
		}
	}

	if got := calc.ProofGallonsFromAbv(decimal.NewFromInt(-5), decimal.NewFromInt(40)); !got.Equal(decimal.Zero) {
		t.Errorf("negative volume via ABV: expected zero, got %s", got)
	}
}
