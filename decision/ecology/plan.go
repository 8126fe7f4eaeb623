// Package ecology turns a climate assessment into a planting plan:
// which species, how many trees, where and when.
package ecology

import (
	"fmt"
	"math"

	"urban-greenery/decision/climate"
	gerrors "urban-greenery/pkg/errors"
	"urban-greenery/pkg/units"
)

const (
	// MaxTargetCover caps the target green cover percentage.
	MaxTargetCover = 50.0
	// CoverIncrement is the green cover gain aimed for in one programme.
	CoverIncrement = 8.0
	// TreesPerPercent converts a percentage point of cover to trees.
	TreesPerPercent = 100.0

	maxPriorityZones = 3
)

var (
	droughtSpecies  = []string{"Neem", "Peepal", "Gulmohar", "Bottle Brush"}
	moistureSpecies = []string{"Mango", "Jack Fruit", "Rain Tree", "Ashoka"}
	moderateSpecies = []string{"Banyan", "Oak", "Mahogany", "Silk Cotton"}
)

// Intervention strategies.
const (
	StrategyReforestation  = "Aggressive reforestation with native species"
	StrategyHeatCanopy     = "Heat-resistant urban canopy development"
	StrategyMicroIrrigated = "Drought-tolerant plantation with micro-irrigation"
	StrategyGreenBelt      = "Sustainable green belt expansion"
)

// Planting windows.
const (
	SeasonMonsoon     = "Monsoon season (current conditions favorable)"
	SeasonPostMonsoon = "Post-monsoon (September-November)"
	SeasonEither      = "Pre-monsoon (March-May) or Post-monsoon"
)

var maintenanceLabels = map[climate.Level]string{
	climate.High:     "High - daily watering, shade protection",
	climate.Low:      "Low - natural conditions sufficient",
	climate.Moderate: "Moderate - bi-weekly care, seasonal adjustments",
}

// Plan is the Ecological Planner's output.
type Plan struct {
	RecommendedSpecies   []string      `json:"recommended_species"`
	CurrentGreenCover    float64       `json:"current_green_cover"`
	TargetGreenCover     float64       `json:"target_green_cover"`
	TreesToPlant         int           `json:"trees_to_plant"`
	InterventionStrategy string        `json:"intervention_strategy"`
	PriorityZones        []string      `json:"priority_zones"`
	PlantingSeason       string        `json:"planting_season"`
	MaintenanceLevel     climate.Level `json:"maintenance_level"`
	MaintenanceLabel     string        `json:"maintenance_label"`
}

// Derive builds a plan from the record's green cover and the assessment.
func Derive(rec climate.CityRecord, a climate.Assessment) (Plan, error) {
	if !rec.Has(climate.FieldGreenCover) {
		return Plan{}, gerrors.NewMissingFieldError(climate.FieldGreenCover.Name(), rec.City)
	}

	current := rec.GreenCover
	target := TargetCover(current)
	level := MaintenanceLevel(a)

	return Plan{
		RecommendedSpecies:   Species(a),
		CurrentGreenCover:    current,
		TargetGreenCover:     target,
		TreesToPlant:         TreesToPlant(current, target),
		InterventionStrategy: Strategy(current, a),
		PriorityZones:        PriorityZones(current, a),
		PlantingSeason:       PlantingSeason(a),
		MaintenanceLevel:     level,
		MaintenanceLabel:     MaintenanceLabel(level),
	}, nil
}

// Species returns a fresh copy of the species list suited to the climate.
func Species(a climate.Assessment) []string {
	var src []string
	switch {
	case a.HeatStress == climate.High && a.WaterStress == climate.High:
		src = droughtSpecies
	case a.HumidityLevel == climate.High:
		src = moistureSpecies
	default:
		src = moderateSpecies
	}
	return append([]string(nil), src...)
}

// TargetCover raises cover by CoverIncrement, capped at MaxTargetCover.
func TargetCover(current float64) float64 {
	return math.Min(MaxTargetCover, current+CoverIncrement)
}

// TreesToPlant floors the cover gap in trees. A city already past the
// target needs none.
func TreesToPlant(current, target float64) int {
	n := units.FloorTolerant((target - current) * TreesPerPercent)
	if n < 0 {
		return 0
	}
	return int(n)
}

// Strategy picks the planting approach. Low cover outranks climate stress.
func Strategy(current float64, a climate.Assessment) string {
	switch {
	case current < 25:
		return StrategyReforestation
	case a.HeatStress == climate.High:
		return StrategyHeatCanopy
	case a.WaterStress == climate.High:
		return StrategyMicroIrrigated
	default:
		return StrategyGreenBelt
	}
}

// PriorityZones keeps the first three zones in append order.
func PriorityZones(current float64, a climate.Assessment) []string {
	zones := make([]string, 0, 7)
	if a.HeatStress == climate.High {
		zones = append(zones, "Commercial areas", "Transport corridors")
	}
	if current < 30 {
		zones = append(zones, "Residential neighborhoods", "Schools")
	}
	zones = append(zones, "Parks", "River banks", "Industrial buffer zones")
	return zones[:maxPriorityZones]
}

// PlantingSeason prefers the monsoon unless water or heat stress argues
// against it.
func PlantingSeason(a climate.Assessment) string {
	switch {
	case a.WaterStress == climate.Low:
		return SeasonMonsoon
	case a.HeatStress == climate.High:
		return SeasonPostMonsoon
	default:
		return SeasonEither
	}
}

// MaintenanceLevel is High under any high stress and Low in an optimal
// growing season.
func MaintenanceLevel(a climate.Assessment) climate.Level {
	switch {
	case a.HeatStress == climate.High || a.WaterStress == climate.High:
		return climate.High
	case a.GrowingSeason == climate.SeasonOptimal:
		return climate.Low
	default:
		return climate.Moderate
	}
}

// MaintenanceLabel describes the care a maintenance level implies.
func MaintenanceLabel(level climate.Level) string {
	if label, ok := maintenanceLabels[level]; ok {
		return label
	}
	return maintenanceLabels[climate.Moderate]
}

// Summary is the planner's conversation message.
func (p Plan) Summary() string {
	lead := "native"
	if len(p.RecommendedSpecies) > 0 {
		lead = p.RecommendedSpecies[0]
	}
	return fmt.Sprintf("🌳 Ecological Plan Ready: Plant %d trees to reach %.1f%% green cover. Focus on %s species. Strategy: %s",
		p.TreesToPlant, p.TargetGreenCover, lead, p.InterventionStrategy)
}
