// Package climate derives qualitative stress levels and water demand
// from a city's raw weather observation.
package climate

import (
	"fmt"

	gerrors "urban-greenery/pkg/errors"
	"urban-greenery/pkg/units"
)

// Level is a three-step qualitative rating.
type Level string

const (
	Low      Level = "Low"
	Moderate Level = "Moderate"
	High     Level = "High"
)

// Season describes how favourable current conditions are for planting.
type Season string

const (
	SeasonOptimal     Season = "Optimal"
	SeasonModerate    Season = "Moderate"
	SeasonChallenging Season = "Challenging"
)

// Classification thresholds.
const (
	HeatModerateAbove     = 30.0 // °C
	HeatHighAbove         = 35.0 // °C
	WaterHighBelow        = 15.0 // mm
	WaterModerateBelow    = 30.0 // mm
	HumidityModerateAbove = 45.0 // %
	HumidityHighAbove     = 65.0 // %
)

// Water demand model.
const (
	BaseWaterDemand   = 100.0 // litres per tree per week
	ReferenceTemp     = 25.0
	TempDemandPerDeg  = 0.05
	RainReliefPerMM   = 0.02
	MinRainMultiplier = 0.3
)

// Climate challenge labels.
const (
	ChallengeDrought      = "Extreme heat + drought conditions - high plant mortality risk"
	ChallengeHotDry       = "Hot and dry - increased irrigation requirements"
	ChallengeHighMoisture = "High moisture - fungal disease risk, good natural watering"
	ChallengeFavorable    = "Favorable growing conditions - optimal planting window"
	ChallengeModerate     = "Moderate stress conditions - standard care protocols"
)

// Assessment is the Climate Analyst's output.
type Assessment struct {
	HeatStress         Level   `json:"heat_stress"`
	WaterStress        Level   `json:"water_stress"`
	HumidityLevel      Level   `json:"humidity_level"`
	WaterDemandPerTree float64 `json:"water_demand_per_tree"`
	ClimateChallenge   string  `json:"climate_challenge"`
	GrowingSeason      Season  `json:"growing_season"`
}

// Assess classifies the record's temperature, humidity and rainfall.
func Assess(rec CityRecord) (Assessment, error) {
	for _, f := range []Field{FieldTemperature, FieldHumidity, FieldRainfall} {
		if !rec.Has(f) {
			return Assessment{}, gerrors.NewMissingFieldError(f.Name(), rec.City)
		}
	}

	temp, humidity, rainfall := rec.Temperature, rec.Humidity, rec.Rainfall

	return Assessment{
		HeatStress:         HeatStress(temp),
		WaterStress:        WaterStress(rainfall),
		HumidityLevel:      HumidityLevel(humidity),
		WaterDemandPerTree: WaterDemand(temp, rainfall),
		ClimateChallenge:   Challenge(temp, humidity, rainfall),
		GrowingSeason:      GrowingSeason(temp, humidity, rainfall),
	}, nil
}

// HeatStress is High above HeatHighAbove and Moderate above HeatModerateAbove.
func HeatStress(temp float64) Level {
	switch {
	case temp > HeatHighAbove:
		return High
	case temp > HeatModerateAbove:
		return Moderate
	default:
		return Low
	}
}

// WaterStress rises as rainfall drops; both bounds are exclusive.
func WaterStress(rainfall float64) Level {
	switch {
	case rainfall < WaterHighBelow:
		return High
	case rainfall < WaterModerateBelow:
		return Moderate
	default:
		return Low
	}
}

// HumidityLevel buckets relative humidity in percent.
func HumidityLevel(humidity float64) Level {
	switch {
	case humidity > HumidityHighAbove:
		return High
	case humidity > HumidityModerateAbove:
		return Moderate
	default:
		return Low
	}
}

// WaterDemand returns litres per tree per week, rounded to one decimal.
// Never negative: the temperature multiplier goes below zero under 5 °C.
func WaterDemand(temp, rainfall float64) float64 {
	tempMultiplier := 1.0 + (temp-ReferenceTemp)*TempDemandPerDeg
	rainMultiplier := 1.0 - rainfall*RainReliefPerMM
	if rainMultiplier < MinRainMultiplier {
		rainMultiplier = MinRainMultiplier
	}
	demand := BaseWaterDemand * tempMultiplier * rainMultiplier
	if demand < 0 {
		demand = 0
	}
	return units.Round1(demand)
}

type challengeRule struct {
	matches func(temp, humidity, rainfall float64) bool
	label   string
}

// challengeRules are checked in order; the first match wins.
var challengeRules = []challengeRule{
	{func(t, _, r float64) bool { return t > 37 && r < 10 }, ChallengeDrought},
	{func(t, h, _ float64) bool { return t > 35 && h < 40 }, ChallengeHotDry},
	{func(_, h, r float64) bool { return r > 40 && h > 70 }, ChallengeHighMoisture},
	{func(t, _, r float64) bool { return t < 28 && r > 25 }, ChallengeFavorable},
}

// Challenge names the dominant climate challenge, ChallengeModerate when
// no rule matches.
func Challenge(temp, humidity, rainfall float64) string {
	for _, rule := range challengeRules {
		if rule.matches(temp, humidity, rainfall) {
			return rule.label
		}
	}
	return ChallengeModerate
}

// GrowingSeason uses inclusive bounds for the optimal window.
func GrowingSeason(temp, humidity, rainfall float64) Season {
	if temp >= 25 && temp <= 32 && humidity >= 45 && humidity <= 70 && rainfall >= 20 {
		return SeasonOptimal
	}
	if temp > 36 || rainfall < 8 {
		return SeasonChallenging
	}
	return SeasonModerate
}

// Summary is the analyst's one-line conversation message.
func (a Assessment) Summary() string {
	return fmt.Sprintf("🌡️ Climate Analysis Complete: %s heat stress, %s water stress. Trees will need %.1f%s. %s",
		a.HeatStress, a.WaterStress, a.WaterDemandPerTree, units.UnitLitresPerWeek, a.ClimateChallenge)
}
