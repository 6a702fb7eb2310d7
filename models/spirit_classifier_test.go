package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestClassifyIsCaseAndWhitespaceInsensitive(t *testing.T) {
	classifier := NewSpiritClassifier()

	for _, name := range []string{"bourbon", "Bourbon", "BOURBON", "  bourbon  "} {
		got := classifier.Classify(name, "Spirits")
		if got.Category != "Whisky" {
			t.Errorf("Classify(%q): expected category Whisky, got %s", name, got.Category)
		}
		if got.SpiritClass != SpiritClassUnder190Proof {
			t.Errorf("Classify(%q): expected Under190Proof, got %s", name, got.SpiritClass)
		}
		if !got.Abv.Equal(decimal.RequireFromString("62.5")) {
			t.Errorf("Classify(%q): expected 62.5 ABV, got %s", name, got.Abv)
		}
	}
}

func TestClassifyNeutralSpirits(t *testing.T) {
	classifier := NewSpiritClassifier()

	for _, name := range []string{"vodka", "neutral spirit", "GNS"} {
		got := classifier.Classify(name, "Spirits")
		if got.SpiritClass != SpiritClassNeutral190OrMore {
			t.Errorf("Classify(%q): expected Neutral190OrMore, got %s", name, got.SpiritClass)
		}
	}
}

func TestClassifyUnknownNameFallsBack(t *testing.T) {
	classifier := NewSpiritClassifier()

	got := classifier.Classify("moonshine", "Spirits")
	if got.Category != "Spirits" {
		t.Errorf("expected fallback category Spirits, got %s", got.Category)
	}
	if got.SpiritClass != SpiritClassUnder190Proof {
		t.Errorf("expected fallback class Under190Proof, got %s", got.SpiritClass)
	}
	if !got.Abv.Equal(decimal.NewFromInt(80)) {
		t.Errorf("expected fallback 80 ABV, got %s", got.Abv)
	}
}
