package report

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"urban-greenery/decision/climate"
	"urban-greenery/decision/workflow"
)

func run(t *testing.T, rec climate.CityRecord) *workflow.Result {
	t.Helper()
	res, err := workflow.Run(context.Background(), rec)
	require.NoError(t, err)
	return res
}

func TestScoreBand(t *testing.T) {
	assert.Equal(t, BandHigh, ScoreBand(70))
	assert.Equal(t, BandMedium, ScoreBand(69.9))
	assert.Equal(t, BandMedium, ScoreBand(40))
	assert.Equal(t, BandLow, ScoreBand(39.9))
}

func TestCoverClass(t *testing.T) {
	assert.Equal(t, "High", CoverClass(35))
	assert.Equal(t, "Medium", CoverClass(25))
	assert.Equal(t, "Low", CoverClass(24.9))
}

func TestMarkdown(t *testing.T) {
	rec := climate.NewCityRecord("Test", 38, 70, 8, 20)
	md := Markdown(rec, run(t, rec))

	assert.True(t, strings.HasPrefix(md, "# Urban Greenery Analysis Report: Test\n"))
	assert.Contains(t, md, "- **Green Resilience Score:** 17.3/100 (low)")
	assert.Contains(t, md, "- Temperature: 38°C")
	assert.Contains(t, md, "## Implementation Cost\n₹800,000")
	assert.Contains(t, md, "- Tree Survival Rate: >85% after 1 year")
	assert.Contains(t, md, "- Carbon Sequestration: ~20,000kg CO2/year")
	assert.NotContains(t, md, "initiated for Test")
	assert.NotContains(t, md, "Budget Review")
	assert.Equal(t, 3, strings.Count(md, "- 🌡️")+strings.Count(md, "- 🌳")+strings.Count(md, "- 🎯"))
}

func TestExport(t *testing.T) {
	rec := climate.NewCityRecord("Pune", 31, 55, 22, 24)
	res := run(t, rec)
	at := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)

	data, err := NewExport(rec, res, at).JSON()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "Pune", doc["city"])
	assert.Equal(t, "2024-03-02T10:00:00Z", doc["analysis_timestamp"])
	assert.Equal(t, float64(5), doc["agent_messages"])
	assert.Contains(t, doc, "environmental_data")
	assert.Contains(t, doc["recommendations"], "sustainability_plan")
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "greenery_report_new_delhi.md", FileName("report", "New Delhi", "md"))
}

func TestCompareAndRank(t *testing.T) {
	recs := []climate.CityRecord{
		climate.NewCityRecord("Hot", 40, 30, 5, 10),
		climate.NewCityRecord("Mild", 26, 60, 40, 38),
		climate.NewCityRecord("Broken", 30, 50, 20, 28),
	}
	outcomes := []workflow.Outcome{
		{City: "Hot", Result: run(t, recs[0])},
		{City: "Mild", Result: run(t, recs[1])},
		{City: "Broken", Err: errors.New("missing humidity")},
	}

	rows := Compare(recs, outcomes)
	require.Len(t, rows, 3)
	assert.Equal(t, "Low", rows[0].CoverClass)
	assert.Equal(t, "High", rows[1].CoverClass)
	assert.Equal(t, "Medium", rows[2].CoverClass)
	assert.Equal(t, "missing humidity", rows[2].Error)
	assert.Zero(t, rows[2].ResilienceScore)

	ranked := Rank(rows)
	assert.Equal(t, "Mild", ranked[0].City)
	assert.Equal(t, "Hot", rows[0].City, "Rank must not reorder its input")
}
