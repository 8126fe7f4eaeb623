// Package report renders advisory results as markdown reports, JSON
// exports and multi-city comparisons.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"urban-greenery/decision/climate"
	"urban-greenery/decision/workflow"
	"urban-greenery/pkg/units"
)

// Band classifies a resilience score for display.
type Band string

const (
	BandHigh   Band = "high"
	BandMedium Band = "medium"
	BandLow    Band = "low"
)

// ScoreBand returns high at 70 and above, medium at 40 and above.
func ScoreBand(score float64) Band {
	switch {
	case score >= 70:
		return BandHigh
	case score >= 40:
		return BandMedium
	default:
		return BandLow
	}
}

// CoverClass is the map marker class for a green cover percentage.
func CoverClass(greenCover float64) string {
	switch {
	case greenCover >= 35:
		return "High"
	case greenCover >= 25:
		return "Medium"
	default:
		return "Low"
	}
}

// Markdown renders the full analysis report for one city.
func Markdown(rec climate.CityRecord, res *workflow.Result) string {
	b := res.Bundle
	r := b.Recommendation
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Urban Greenery Analysis Report: %s\n\n", rec.City)

	sb.WriteString("## Executive Summary\n")
	fmt.Fprintf(&sb, "- **Green Resilience Score:** %.1f/100 (%s)\n", r.GreenResilienceScore, ScoreBand(r.GreenResilienceScore))
	fmt.Fprintf(&sb, "- **Current Green Cover:** %g%%\n", rec.GreenCover)
	fmt.Fprintf(&sb, "- **Climate Challenge Level:** %s\n\n", b.Climate.ClimateChallenge)

	sb.WriteString("## Environmental Data\n")
	fmt.Fprintf(&sb, "- Temperature: %g%s\n", rec.Temperature, units.UnitCelsius)
	fmt.Fprintf(&sb, "- Humidity: %g%s\n", rec.Humidity, units.UnitPercent)
	fmt.Fprintf(&sb, "- Rainfall: %g%s\n", rec.Rainfall, units.UnitMillimetres)
	fmt.Fprintf(&sb, "- Green Cover: %g%s\n\n", rec.GreenCover, units.UnitPercent)

	sb.WriteString("## Agent Recommendations Summary\n")
	for _, e := range res.Log {
		if e.Agent == workflow.AgentSystem {
			continue
		}
		fmt.Fprintf(&sb, "- %s\n", e.Message)
	}
	sb.WriteString("\n")

	sb.WriteString("## Implementation Cost\n")
	fmt.Fprintf(&sb, "%s\n\n", units.FormatRupees(r.TotalCostEstimate))

	sb.WriteString("## Success Metrics\n")
	for _, m := range r.SuccessMetrics {
		fmt.Fprintf(&sb, "- %s: %s\n", titleKey(m.Key), m.Value)
	}

	if g := r.Governance; g != nil && len(g.Violations)+len(g.Warnings) > 0 {
		fmt.Fprintf(&sb, "\n## Budget Review: %s\n", strings.ToUpper(string(g.Decision)))
		for _, v := range g.Violations {
			fmt.Fprintf(&sb, "- **%s**: %s\n", v.PolicyName, v.Message)
		}
		for _, w := range g.Warnings {
			fmt.Fprintf(&sb, "- %s\n", w.Message)
		}
	}
	return sb.String()
}

// titleKey turns "tree_survival_rate" into "Tree Survival Rate".
func titleKey(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// Export is the downloadable JSON document for one city.
type Export struct {
	City              string             `json:"city"`
	AnalysisTimestamp time.Time          `json:"analysis_timestamp"`
	EnvironmentalData climate.CityRecord `json:"environmental_data"`
	Recommendations   workflow.Bundle    `json:"recommendations"`
	AgentMessages     int                `json:"agent_messages"`
}

// NewExport builds the export document stamped with at.
func NewExport(rec climate.CityRecord, res *workflow.Result, at time.Time) Export {
	return Export{
		City:              rec.City,
		AnalysisTimestamp: at.UTC(),
		EnvironmentalData: rec,
		Recommendations:   res.Bundle,
		AgentMessages:     len(res.Log),
	}
}

// JSON renders the export indented.
func (e Export) JSON() ([]byte, error) {
	return json.MarshalIndent(e, "", "  ")
}

// FileName returns the suggested download name, e.g. "greenery_report_pune.md".
func FileName(kind, city, ext string) string {
	slug := strings.ToLower(strings.Join(strings.Fields(city), "_"))
	return fmt.Sprintf("greenery_%s_%s.%s", kind, slug, ext)
}
