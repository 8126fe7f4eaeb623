// Package units provides canonical unit types and rounding helpers.
package units

import (
	"math"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// Unit represents a measurable quantity.
type Unit string

const (
	UnitCelsius       Unit = "°C"
	UnitPercent       Unit = "%"
	UnitMillimetres   Unit = "mm"
	UnitLitresPerWeek Unit = "L/week"
	UnitKgCO2PerYear  Unit = "kg CO2/year"
	UnitRupees        Unit = "₹"
)

// Round rounds v to the given number of decimal places, half away from zero,
// on the shortest decimal representation of v.
func Round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return Round(v, 1)
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// FloorTolerant floors v after absorbing float representation error,
// so 799.9999999999 becomes 800.
func FloorTolerant(v float64) float64 {
	return math.Floor(v + 1e-9)
}

// FormatRupees renders an amount as whole rupees with thousands separators,
// e.g. ₹800,000.
func FormatRupees(amount decimal.Decimal) string {
	return string(UnitRupees) + humanize.Comma(amount.Round(0).IntPart())
}
