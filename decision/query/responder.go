// Package query answers free-text questions about a city's recommendation
// with keyword rules. The first matching rule wins.
package query

import (
	"fmt"
	"strings"

	"urban-greenery/decision/climate"
	"urban-greenery/decision/workflow"
	"urban-greenery/pkg/units"
)

// Rule answers queries containing any of its keywords.
type Rule struct {
	Name     string
	Keywords []string
	Answer   func(city string, b *workflow.Bundle) string
}

// Matches reports whether the lower-cased query contains a keyword.
func (r Rule) Matches(q string) bool {
	for _, k := range r.Keywords {
		if strings.Contains(q, k) {
			return true
		}
	}
	return false
}

// Rules in priority order.
var Rules = []Rule{
	{Name: "improve", Keywords: []string{"improve", "better", "enhance"}, Answer: improveAnswer},
	{Name: "cost", Keywords: []string{"cost", "budget", "expensive"}, Answer: costAnswer},
	{Name: "water", Keywords: []string{"water", "irrigation"}, Answer: waterAnswer},
	{Name: "species", Keywords: []string{"species", "trees", "plant"}, Answer: speciesAnswer},
}

// Respond always returns a non-empty answer. A nil bundle or empty fields
// fall back to generic wording.
func Respond(q string, rec climate.CityRecord, b *workflow.Bundle) string {
	city := rec.City
	if city == "" {
		city = "this city"
	}
	lq := strings.ToLower(q)
	for _, r := range Rules {
		if r.Matches(lq) {
			return r.Answer(city, b)
		}
	}
	return fallbackAnswer(city, b)
}

func improveAnswer(city string, b *workflow.Bundle) string {
	species, zone := "native", "priority areas"
	if b != nil {
		if s := b.Plan.RecommendedSpecies; len(s) > 0 {
			species = s[0]
		}
		if z := b.Plan.PriorityZones; len(z) > 0 {
			zone = z[0]
		}
	}
	return fmt.Sprintf("To improve greenery in %s, I recommend starting with %s trees in %s. The Green Resilience Score can improve from current level to 75+ with proper implementation.",
		city, species, zone)
}

func costAnswer(city string, b *workflow.Bundle) string {
	cost := string(units.UnitRupees) + "0"
	if b != nil {
		cost = units.FormatRupees(b.Recommendation.TotalCostEstimate)
	}
	return fmt.Sprintf("The estimated cost for %s's green transformation is %s. This includes saplings, planting, and maintenance. Consider phased implementation to spread costs.",
		city, cost)
}

func waterAnswer(city string, b *workflow.Bundle) string {
	schedule := "Regular watering needed"
	if b != nil && b.Recommendation.WateringSchedule != "" {
		schedule = b.Recommendation.WateringSchedule
	}
	return fmt.Sprintf("For %s, the recommended watering approach is: %s. This is based on current climate stress levels.",
		city, schedule)
}

func speciesAnswer(city string, b *workflow.Bundle) string {
	species := "suitable native species"
	if b != nil && len(b.Plan.RecommendedSpecies) > 0 {
		s := b.Plan.RecommendedSpecies
		species = strings.Join(s[:min(3, len(s))], ", ")
	}
	return fmt.Sprintf("Best species for %s: %s. These are selected based on local climate resilience and maintenance requirements.",
		city, species)
}

func fallbackAnswer(city string, b *workflow.Bundle) string {
	score, win := "N/A", "immediate green interventions"
	if b != nil {
		score = fmt.Sprintf("%.1f", b.Recommendation.GreenResilienceScore)
		if w := b.Recommendation.QuickWins; len(w) > 0 {
			win = w[0]
		}
	}
	return fmt.Sprintf("%s has a Green Resilience Score of %s/100. The multi-agent system recommends focusing on %s.",
		city, score, win)
}
