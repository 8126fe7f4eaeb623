// Package sustainability scores a city's green resilience and turns a
// planting plan into a costed, phased recommendation.
package sustainability

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"urban-greenery/decision/carbon"
	"urban-greenery/decision/climate"
	"urban-greenery/decision/ecology"
	"urban-greenery/decision/policy"
	"urban-greenery/pkg/units"
)

// CostPerTree is the base sapling, planting and first-year care cost in rupees.
var CostPerTree = decimal.NewFromInt(500)

var maintenanceMultipliers = map[climate.Level]decimal.Decimal{
	climate.High:     decimal.NewFromFloat(2.0),
	climate.Moderate: decimal.NewFromFloat(1.5),
	climate.Low:      decimal.NewFromFloat(1.2),
}

var defaultMultiplier = decimal.NewFromFloat(1.5)

const largeProgramme = 300

// Metric is one named success metric.
type Metric struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Recommendation is the Sustainability Advisor's output.
type Recommendation struct {
	GreenResilienceScore   float64         `json:"green_resilience_score"`
	TotalCostEstimate      decimal.Decimal `json:"total_cost_estimate"`
	ImplementationRisks    []string        `json:"implementation_risks"`
	WateringSchedule       string          `json:"watering_schedule"`
	ImplementationTimeline []string        `json:"implementation_timeline"`
	SuccessMetrics         []Metric        `json:"success_metrics"`
	QuickWins              []string        `json:"quick_wins"`
	LongTermVision         string          `json:"long_term_vision"`
	Governance             *policy.Result  `json:"governance"`
}

// Metric returns the value of the named success metric.
func (r Recommendation) Metric(key string) (string, bool) {
	for _, m := range r.SuccessMetrics {
		if m.Key == key {
			return m.Value, true
		}
	}
	return "", false
}

// Advisor combines the assessment and the plan into a recommendation.
type Advisor struct {
	carbonStore carbon.Store
	policies    *policy.Engine
}

// NewAdvisor creates an advisor with the static carbon rate and the
// built-in risk policies.
func NewAdvisor() *Advisor {
	return &Advisor{
		carbonStore: carbon.NewStaticStore(carbon.DefaultRate),
		policies:    policy.NewEngine(),
	}
}

// WithCarbonStore replaces the sequestration rate source.
func (a *Advisor) WithCarbonStore(store carbon.Store) *Advisor {
	a.carbonStore = store
	return a
}

// WithPolicyEngine replaces the risk and budget policy engine.
func (a *Advisor) WithPolicyEngine(e *policy.Engine) *Advisor {
	a.policies = e
	return a
}

// Advise produces the recommendation for one city.
func (a *Advisor) Advise(ctx context.Context, rec climate.CityRecord, assessment climate.Assessment, plan ecology.Plan) (Recommendation, error) {
	score := ResilienceScore(rec.Temperature, rec.Rainfall, rec.GreenCover, assessment)
	cost := Cost(plan.TreesToPlant, plan.MaintenanceLevel)

	lead := "native"
	if len(plan.RecommendedSpecies) > 0 {
		lead = plan.RecommendedSpecies[0]
	}
	sequestered, err := carbon.AnnualSequestration(ctx, a.carbonStore, lead, plan.TreesToPlant)
	if err != nil {
		return Recommendation{}, fmt.Errorf("carbon rate for %s: %w", lead, err)
	}

	review, err := a.policies.Evaluate(ctx, policy.Input{
		HeatStress:      assessment.HeatStress,
		WaterStress:     assessment.WaterStress,
		TreesToPlant:    plan.TreesToPlant,
		TotalCost:       cost,
		CarbonKgPerYear: sequestered,
		ResilienceScore: score,
	})
	if err != nil {
		return Recommendation{}, fmt.Errorf("evaluate policies: %w", err)
	}

	return Recommendation{
		GreenResilienceScore:   score,
		TotalCostEstimate:      cost,
		ImplementationRisks:    review.Risks,
		WateringSchedule:       WateringSchedule(assessment.WaterDemandPerTree),
		ImplementationTimeline: Timeline(plan.TreesToPlant),
		SuccessMetrics:         successMetrics(rec.GreenCover, plan.TargetGreenCover, sequestered),
		QuickWins:              QuickWins(lead),
		LongTermVision:         Vision(rec.City, plan.TargetGreenCover),
		Governance:             review,
	}, nil
}

// ResilienceScore combines temperature, rainfall and green cover sub-scores
// less stress penalties, clamped to [0,100] and rounded to one decimal.
func ResilienceScore(temp, rainfall, greenCover float64, a climate.Assessment) float64 {
	tempScore := max(0, 100-(temp-25)*3)
	rainScore := min(100, rainfall*2)
	greenScore := min(100, greenCover*2.5)

	penalty := 0.0
	if a.HeatStress == climate.High {
		penalty += 15
	}
	if a.WaterStress == climate.High {
		penalty += 10
	}

	raw := (tempScore+rainScore+greenScore)/3 - penalty
	return units.Round1(units.Clamp(raw, 0, 100))
}

// Cost is trees × CostPerTree × the maintenance multiplier.
func Cost(trees int, level climate.Level) decimal.Decimal {
	m, ok := maintenanceMultipliers[level]
	if !ok {
		m = defaultMultiplier
	}
	return decimal.NewFromInt(int64(trees)).Mul(CostPerTree).Mul(m)
}

// WateringSchedule maps weekly litres per tree to a watering routine.
func WateringSchedule(demand float64) string {
	switch {
	case demand > 150:
		return "Daily watering (early morning + evening), drip irrigation recommended"
	case demand > 100:
		return "Alternate day watering, mulching essential"
	default:
		return "Twice weekly watering, natural rainfall supplementation"
	}
}

// Timeline is a 12 month, 4 phase plan above 300 trees, else 6 months in 3.
func Timeline(trees int) []string {
	if trees > largeProgramme {
		return []string{
			"Phase 1 (Month 1-2): Site preparation, nursery setup",
			"Phase 2 (Month 3-5): Plant 50% of trees in priority zones",
			"Phase 3 (Month 6-8): Complete remaining plantation",
			"Phase 4 (Month 9-12): Monitoring and replacement of failed saplings",
		}
	}
	return []string{
		"Phase 1 (Month 1): Site preparation and species procurement",
		"Phase 2 (Month 2-3): Plantation drive completion",
		"Phase 3 (Month 4-6): Establishment care and monitoring",
	}
}

func successMetrics(current, target, carbonKg float64) []Metric {
	return []Metric{
		{Key: "tree_survival_rate", Value: ">85% after 1 year"},
		{Key: "green_cover_increase", Value: fmt.Sprintf("%.1f%% → %.1f%%", current, target)},
		{Key: "carbon_sequestration", Value: fmt.Sprintf("~%s%s", humanize.Comma(int64(carbonKg+0.5)), units.UnitKgCO2PerYear)},
		{Key: "temperature_reduction", Value: "0.5-2°C in planted areas"},
		{Key: "community_engagement", Value: "500+ citizens in maintenance activities"},
	}
}

// QuickWins are the first actions, led by the top species.
func QuickWins(species string) []string {
	return []string{
		fmt.Sprintf("Plant 50 %s trees in highest priority zone", species),
		"Set up community composting for organic fertilizer",
		"Install drip irrigation in pilot area",
		"Launch citizen tree adoption program",
	}
}

// Vision is the one-sentence goal statement for the city.
func Vision(city string, target float64) string {
	return fmt.Sprintf("Transform %s into a green resilient city with %.1f%% tree cover, reduced urban heat island effect, improved air quality, and engaged citizens as environmental stewards.",
		city, target)
}

// Summary is the advisor's conversation message.
func (r Recommendation) Summary() string {
	return fmt.Sprintf("🎯 Sustainability Plan Finalized: Resilience Score %.1f/100. Estimated cost %s. %d phase implementation recommended.",
		r.GreenResilienceScore, units.FormatRupees(r.TotalCostEstimate), len(r.ImplementationTimeline))
}
