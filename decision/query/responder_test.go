package query

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"urban-greenery/decision/climate"
	"urban-greenery/decision/ecology"
	"urban-greenery/decision/workflow"
)

func bundleFor(t *testing.T, rec climate.CityRecord) *workflow.Bundle {
	t.Helper()
	res, err := workflow.Run(context.Background(), rec)
	require.NoError(t, err)
	return &res.Bundle
}

func TestRespondBranches(t *testing.T) {
	rec := climate.NewCityRecord("Test", 38, 70, 8, 20)
	b := bundleFor(t, rec)

	tests := []struct {
		query string
		want  string
	}{
		{"How can we IMPROVE things?", "To improve greenery in Test, I recommend starting with Neem trees in Commercial areas."},
		{"what's the budget", "The estimated cost for Test's green transformation is ₹800,000."},
		{"Irrigation plan?", "For Test, the recommended watering approach is: Alternate day watering, mulching essential."},
		{"Which species?", "Best species for Test: Neem, Peepal, Gulmohar."},
		{"hello", "Test has a Green Resilience Score of 17.3/100. The multi-agent system recommends focusing on Plant 50 Neem trees in highest priority zone."},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.True(t, strings.HasPrefix(Respond(tt.query, rec, b), tt.want), Respond(tt.query, rec, b))
		})
	}
}

func TestRespondPriorityOrder(t *testing.T) {
	rec := climate.NewCityRecord("Test", 38, 70, 8, 20)
	b := bundleFor(t, rec)

	// "better" outranks "cost", "cost" outranks "water", "water" outranks "trees".
	assert.Contains(t, Respond("better cost", rec, b), "To improve greenery")
	assert.Contains(t, Respond("water cost", rec, b), "estimated cost")
	assert.Contains(t, Respond("trees need water", rec, b), "watering approach")
}

func TestRespondIsTotal(t *testing.T) {
	queries := []string{"", " ", "improve", "cost", "water", "species", "¿qué?", strings.Repeat("x", 1000)}
	records := []climate.CityRecord{{}, climate.NewCityRecord("Delhi", 40, 30, 5, 10)}
	bundles := []*workflow.Bundle{nil, {}, {Plan: workflowPlanWithEmptySlices()}}

	for _, q := range queries {
		for _, rec := range records {
			for _, b := range bundles {
				assert.NotEmpty(t, Respond(q, rec, b))
			}
		}
	}
}

func TestRespondDefaults(t *testing.T) {
	rec := climate.NewCityRecord("Pune", 30, 50, 20, 10)
	assert.Contains(t, Respond("improve", rec, nil), "starting with native trees in priority areas")
	assert.Contains(t, Respond("species", rec, nil), "suitable native species")
	assert.Contains(t, Respond("water", rec, &workflow.Bundle{}), "Regular watering needed")
	assert.Contains(t, Respond("?", rec, nil), "Score of N/A/100")
	assert.Contains(t, Respond("?", rec, nil), "immediate green interventions")
}

func workflowPlanWithEmptySlices() (p ecology.Plan) {
	p.RecommendedSpecies = []string{}
	p.PriorityZones = []string{}
	return p
}
