package main

import (
	"encoding/json"
	"fmt"
	"io"

	"urban-greenery/decision/policy"
	"urban-greenery/decision/raster"
	"urban-greenery/decision/report"
	"urban-greenery/decision/scenario"
	"urban-greenery/decision/workflow"
	"urban-greenery/pkg/units"
)

// =============================================================================
// OUTPUT FORMATTERS
// =============================================================================

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func outputTable(w io.Writer, res *workflow.Result) error {
	b := res.Bundle
	a, p, r := b.Climate, b.Plan, b.Recommendation

	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintf(w, "║  🌳 %-56s ║\n", truncate("GREENERY PLAN: "+b.City, 56))
	fmt.Fprintln(w, "╠══════════════════════════════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Heat / Water Stress:   %-36s ║\n", fmt.Sprintf("%s / %s", a.HeatStress, a.WaterStress))
	fmt.Fprintf(w, "║  Water per Tree:        %-36s ║\n", fmt.Sprintf("%.1f %s", a.WaterDemandPerTree, units.UnitLitresPerWeek))
	fmt.Fprintf(w, "║  Growing Season:        %-36s ║\n", a.GrowingSeason)
	fmt.Fprintf(w, "║  Green Cover:           %-36s ║\n", fmt.Sprintf("%.1f%% → %.1f%%", p.CurrentGreenCover, p.TargetGreenCover))
	fmt.Fprintf(w, "║  Trees to Plant:        %-36d ║\n", p.TreesToPlant)
	fmt.Fprintf(w, "║  Resilience Score:      %-36s ║\n", fmt.Sprintf("%.1f/100 (%s)", r.GreenResilienceScore, report.ScoreBand(r.GreenResilienceScore)))
	fmt.Fprintf(w, "║  Estimated Cost:        %-36s ║\n", units.FormatRupees(r.TotalCostEstimate))
	fmt.Fprintln(w, "╠══════════════════════════════════════════════════════════════╣")

	fmt.Fprintln(w, "║  CONVERSATION                                                ║")
	fmt.Fprintln(w, "╠══════════════════════════════════════════════════════════════╣")
	for _, e := range res.Log {
		fmt.Fprintf(w, "║  [%s] %-49s ║\n", e.Timestamp, truncate(e.Agent, 49))
		fmt.Fprintf(w, "║    %-57s ║\n", truncate(e.Message, 57))
	}

	fmt.Fprintln(w, "╠══════════════════════════════════════════════════════════════╣")
	fmt.Fprintln(w, "║  RISKS                                                       ║")
	for _, risk := range r.ImplementationRisks {
		fmt.Fprintf(w, "║  • %-58s ║\n", truncate(risk, 58))
	}

	if gov := r.Governance; gov != nil {
		fmt.Fprintln(w, "╠══════════════════════════════════════════════════════════════╣")
		fmt.Fprintf(w, "║  Policy Result:         %-36s ║\n", decisionIcon(gov.Decision))
		for _, v := range gov.Violations {
			fmt.Fprintf(w, "║  ❌ %-57s ║\n", truncate(v.Message, 57))
		}
		for _, warn := range gov.Warnings {
			fmt.Fprintf(w, "║  ⚠️  %-56s ║\n", truncate(warn.Message, 56))
		}
	}

	_, err := fmt.Fprintln(w, "╚══════════════════════════════════════════════════════════════╝")
	return err
}

func decisionIcon(d policy.Decision) string {
	switch d {
	case policy.DecisionPass:
		return "✅ PASS"
	case policy.DecisionWarn:
		return "⚠️  WARN"
	case policy.DecisionDeny:
		return "❌ DENY"
	}
	return string(d)
}

func outputCompare(w io.Writer, rows []report.Row) error {
	fmt.Fprintf(w, "%-20s %8s %-8s %10s %-8s %8s\n", "CITY", "COVER", "CLASS", "SCORE", "BAND", "TREES")
	for _, r := range rows {
		if r.Error != "" {
			fmt.Fprintf(w, "%-20s %7.1f%% %-8s %10s %s\n", truncate(r.City, 20), r.GreenCover, r.CoverClass, "-", truncate(r.Error, 40))
			continue
		}
		fmt.Fprintf(w, "%-20s %7.1f%% %-8s %10.1f %-8s %8d\n",
			truncate(r.City, 20), r.GreenCover, r.CoverClass, r.ResilienceScore, r.Band, r.TreesToPlant)
	}
	return nil
}

func outputScenario(w io.Writer, sc scenario.Scenario, base, adjusted *workflow.Result) error {
	b, a := base.Bundle, adjusted.Bundle
	fmt.Fprintf(w, "🧪 %s for %s\n\n", sc.Label(), b.City)
	fmt.Fprintf(w, "%-22s %18s %18s\n", "", "BASELINE", "SCENARIO")
	fmt.Fprintf(w, "%-22s %18s %18s\n", "Heat stress", b.Climate.HeatStress, a.Climate.HeatStress)
	fmt.Fprintf(w, "%-22s %18s %18s\n", "Water stress", b.Climate.WaterStress, a.Climate.WaterStress)
	fmt.Fprintf(w, "%-22s %18.1f %18.1f\n", "Water demand (L/wk)", b.Climate.WaterDemandPerTree, a.Climate.WaterDemandPerTree)
	fmt.Fprintf(w, "%-22s %18d %18d\n", "Trees to plant", b.Plan.TreesToPlant, a.Plan.TreesToPlant)
	fmt.Fprintf(w, "%-22s %18.1f %18.1f\n", "Resilience score",
		b.Recommendation.GreenResilienceScore, a.Recommendation.GreenResilienceScore)
	fmt.Fprintf(w, "%-22s %18s %18s\n", "Estimated cost",
		units.FormatRupees(b.Recommendation.TotalCostEstimate), units.FormatRupees(a.Recommendation.TotalCostEstimate))
	_, err := fmt.Fprintf(w, "\nResilience change: %+.1f\n",
		a.Recommendation.GreenResilienceScore-b.Recommendation.GreenResilienceScore)
	return err
}

func outputClasses(w io.Writer, s raster.ClassSummary) error {
	for _, c := range []int{raster.ClassNonVegetated, raster.ClassSparse, raster.ClassDense} {
		fmt.Fprintf(w, "%-22s %8d px %6.1f%%\n", raster.ClassNames[c], s.Counts[c], s.Share(c)*100)
	}
	if n := s.Counts[raster.ClassNoData]; n > 0 {
		fmt.Fprintf(w, "%-22s %8d px\n", "No data", n)
	}
	return nil
}

func outputPolicies(w io.Writer, policies []policy.Policy) error {
	fmt.Fprintln(w, "Policies:")
	for _, p := range policies {
		state := ""
		if !p.Enabled {
			state = " (disabled)"
		}
		fmt.Fprintf(w, "  - %s [%s]%s: %s", p.ID, p.Type, state, p.Name)
		if p.Threshold != 0 {
			fmt.Fprintf(w, " (threshold %g)", p.Threshold)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
