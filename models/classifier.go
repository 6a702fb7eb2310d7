package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Classification resolves a spirit name to the regulatory dimensions a ledger
// entry needs: reporting category, spirit class, and typical ABV.
type Classification struct {
	Category    string
	SpiritClass SpiritClass
	Abv         decimal.Decimal
}

// SpiritClassifier holds the immutable spirit-name ruleset. Unknown names are
// never an error: classification must not block a financial calculation on
// missing metadata, so they fall back to a conservative default.
type SpiritClassifier struct {
	rules map[string]Classification
}

func NewSpiritClassifier() *SpiritClassifier {
	entries := []struct {
		name     string
		category string
		class    SpiritClass
		abv      string
	}{
		{"bourbon", "Whisky", SpiritClassUnder190Proof, "62.5"},
		{"whiskey", "Whisky", SpiritClassUnder190Proof, "62.5"},
		{"whisky", "Whisky", SpiritClassUnder190Proof, "62.5"},
		{"rye", "Whisky", SpiritClassUnder190Proof, "62.5"},
		{"rye whiskey", "Whisky", SpiritClassUnder190Proof, "62.5"},
		{"single malt", "Whisky", SpiritClassUnder190Proof, "62.5"},
		{"corn whiskey", "Whisky", SpiritClassUnder190Proof, "62.5"},
		{"brandy", "Brandy", SpiritClassUnder190Proof, "60"},
		{"apple brandy", "Brandy", SpiritClassUnder190Proof, "60"},
		{"rum", "Rum", SpiritClassUnder190Proof, "75"},
		{"vodka", "Vodka", SpiritClassNeutral190OrMore, "95"},
		{"gin", "Gin", SpiritClassUnder190Proof, "80"},
		{"neutral spirit", "NeutralSpirits", SpiritClassNeutral190OrMore, "95"},
		{"gns", "NeutralSpirits", SpiritClassNeutral190OrMore, "95"},
		{"alcohol", "Alcohol", SpiritClassAlcohol, "95"},
		{"wine", "Wine", SpiritClassWine, "20"},
	}

	rules := make(map[string]Classification, len(entries))
	for _, e := range entries {
		rules[e.name] = Classification{
			Category:    e.category,
			SpiritClass: e.class,
			Abv:         decimal.RequireFromString(e.abv),
		}
	}
	return &SpiritClassifier{rules: rules}
}

// Classify looks up spiritName case-insensitively. Unknown names fall back to
// (fallbackCategory, Under190Proof, 80 ABV).
func (c *SpiritClassifier) Classify(spiritName string, fallbackCategory string) Classification {
	name := strings.ToLower(strings.TrimSpace(spiritName))
	if classification, ok := c.rules[name]; ok {
		return classification
	}
	return Classification{
		Category:    fallbackCategory,
		SpiritClass: SpiritClassUnder190Proof,
		Abv:         decimal.NewFromInt(80),
	}
}
