package models

import (
	"github.com/shopspring/decimal"
)

// Federal reporting works in proof gallons: one wine gallon at 100 proof.
// Gauged volumes are corrected back to the 60F standard before conversion.

type temperatureBucket int

const (
	tempBelow40 temperatureBucket = iota
	temp40To50
	temp50To60
	tempStandard60
	temp60To70
	temp70To80
	temp80To90
	tempAbove90
)

type proofBucket int

const (
	proofBelow100 proofBucket = iota
	proof100To120
	proof120To140
	proof140To160
	proof160To180
	proof180Plus
)

type correctionKey struct {
	temp  temperatureBucket
	proof proofBucket
}

// VolumeCalculator converts gauged volumes into taxable proof gallons.
// The correction table is immutable after construction; build one instance at
// startup and share it.
type VolumeCalculator struct {
	corrections map[correctionKey]decimal.Decimal
}

func NewVolumeCalculator() *VolumeCalculator {
	factors := map[temperatureBucket][6]string{
		tempBelow40:    {"1.0080", "1.0090", "1.0100", "1.0110", "1.0120", "1.0130"},
		temp40To50:     {"1.0050", "1.0056", "1.0062", "1.0068", "1.0074", "1.0080"},
		temp50To60:     {"1.0020", "1.0023", "1.0026", "1.0029", "1.0032", "1.0035"},
		tempStandard60: {"1.0000", "1.0000", "1.0000", "1.0000", "1.0000", "1.0000"},
		temp60To70:     {"0.9980", "0.9977", "0.9974", "0.9971", "0.9968", "0.9965"},
		temp70To80:     {"0.9950", "0.9944", "0.9938", "0.9932", "0.9926", "0.9920"},
		temp80To90:     {"0.9920", "0.9912", "0.9904", "0.9896", "0.9888", "0.9880"},
		tempAbove90:    {"0.9890", "0.9880", "0.9870", "0.9860", "0.9850", "0.9840"},
	}

	corrections := make(map[correctionKey]decimal.Decimal, len(factors)*6)
	for tb, row := range factors {
		for pb, factor := range row {
			corrections[correctionKey{temp: tb, proof: proofBucket(pb)}] = decimal.RequireFromString(factor)
		}
	}
	return &VolumeCalculator{corrections: corrections}
}

func bucketTemperature(temperatureF decimal.Decimal) temperatureBucket {
	sixty := decimal.NewFromInt(60)
	switch {
	case temperatureF.Equal(sixty):
		return tempStandard60
	case temperatureF.LessThan(decimal.NewFromInt(40)):
		return tempBelow40
	case temperatureF.LessThan(decimal.NewFromInt(50)):
		return temp40To50
	case temperatureF.LessThan(sixty):
		return temp50To60
	case temperatureF.LessThanOrEqual(decimal.NewFromInt(70)):
		return temp60To70
	case temperatureF.LessThanOrEqual(decimal.NewFromInt(80)):
		return temp70To80
	case temperatureF.LessThanOrEqual(decimal.NewFromInt(90)):
		return temp80To90
	default:
		return tempAbove90
	}
}

func bucketProof(proof decimal.Decimal) proofBucket {
	switch {
	case proof.LessThan(decimal.NewFromInt(100)):
		return proofBelow100
	case proof.LessThan(decimal.NewFromInt(120)):
		return proof100To120
	case proof.LessThan(decimal.NewFromInt(140)):
		return proof120To140
	case proof.LessThan(decimal.NewFromInt(160)):
		return proof140To160
	case proof.LessThan(decimal.NewFromInt(180)):
		return proof160To180
	default:
		return proof180Plus
	}
}

// TemperatureCorrectionFactor returns the multiplier that normalizes a volume
// gauged at temperatureF back to the 60F standard. Combinations outside the
// table fall open to 1.0000 (no correction); gauging must never be rejected
// here.
func (c *VolumeCalculator) TemperatureCorrectionFactor(temperatureF decimal.Decimal, proof decimal.Decimal) decimal.Decimal {
	key := correctionKey{temp: bucketTemperature(temperatureF), proof: bucketProof(proof)}
	factor, ok := c.corrections[key]
	if !ok {
		return decimal.NewFromInt(1)
	}
	return factor
}

// ProofGallons converts a gauged wine-gallon volume at the given proof and
// temperature into proof gallons, rounded to 2 decimals (half away from zero).
// Degenerate inputs floor at exactly zero, never negative.
func (c *VolumeCalculator) ProofGallons(wineGallons decimal.Decimal, proof decimal.Decimal, temperatureF decimal.Decimal) decimal.Decimal {
	if !wineGallons.IsPositive() || !proof.IsPositive() {
		return decimal.Zero
	}
	factor := c.TemperatureCorrectionFactor(temperatureF, proof)
	pg := wineGallons.Mul(proof).Div(decimal.NewFromInt(100)).Mul(factor)
	return pg.Round(2)
}

// ProofGallonsFromAbv converts a volume with a known alcohol-by-volume percent
// (proof = 2 x ABV) without temperature correction.
func (c *VolumeCalculator) ProofGallonsFromAbv(volumeGallons decimal.Decimal, abv decimal.Decimal) decimal.Decimal {
	if !volumeGallons.IsPositive() || !abv.IsPositive() {
		return decimal.Zero
	}
	proof := abv.Mul(decimal.NewFromInt(2))
	return volumeGallons.Mul(proof).Div(decimal.NewFromInt(100)).Round(2)
}
