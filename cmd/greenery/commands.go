package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"urban-greenery/decision/climate"
	"urban-greenery/decision/policy"
	"urban-greenery/decision/query"
	"urban-greenery/decision/report"
	"urban-greenery/decision/scenario"
	"urban-greenery/decision/workflow"
	"urban-greenery/pkg/platform"
)

// =============================================================================
// ANALYZE COMMAND
// =============================================================================

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "Run the climate, ecology and sustainability advisors for one city",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:     "city",
				Aliases:  []string{"c"},
				Usage:    "City name as it appears in the dataset",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "scenario",
				Usage: "Scenario to simulate (temperature, rainfall, green_cover)",
			},
			&cli.Float64Flag{
				Name:  "change",
				Usage: "Scenario change (°C, mm or %); the scenario default when unset",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "table",
				Usage:   "Output format (table, json, markdown)",
			},
		}, budgetFlags()...),
		Action: runAnalyze,
	}
}

func runAnalyze(c *cli.Context) error {
	res, rec, label, err := analyze(c, c.String("city"))
	if err != nil {
		return err
	}
	if label != "" {
		fmt.Fprintf(os.Stderr, "🧪 %s\n", label)
	}

	w := c.App.Writer
	switch c.String("format") {
	case "json":
		err = outputJSON(w, res)
	case "markdown":
		_, err = fmt.Fprint(w, report.Markdown(rec, res))
	default:
		err = outputTable(w, res)
	}
	if err != nil {
		return err
	}

	if gov := res.Bundle.Recommendation.Governance; gov != nil && gov.Decision == policy.DecisionDeny {
		return cli.Exit("policy decision: deny", 2)
	}
	return nil
}

// analyze loads city, applies the scenario flags and runs the pipeline.
func analyze(c *cli.Context, city string) (*workflow.Result, climate.CityRecord, string, error) {
	logger := newLogger(c)
	defer logger.Sync()

	cities, closeCities, err := openCities(c, logger)
	if err != nil {
		return nil, climate.CityRecord{}, "", err
	}
	defer closeCities()

	rec, err := cities.Get(c.Context, city)
	if err != nil {
		return nil, climate.CityRecord{}, "", err
	}

	var label string
	if kind := c.String("scenario"); kind != "" {
		sc, err := scenarioFromFlags(c, kind)
		if err != nil {
			return nil, climate.CityRecord{}, "", err
		}
		if rec, err = sc.Apply(rec); err != nil {
			return nil, climate.CityRecord{}, "", err
		}
		label = sc.Label()
	}

	pipeline, err := newPipeline(c, logger)
	if err != nil {
		return nil, climate.CityRecord{}, "", err
	}
	res, err := pipeline.Run(c.Context, rec)
	if err != nil {
		return nil, climate.CityRecord{}, "", fmt.Errorf("analysis failed: %w", err)
	}
	return res, rec, label, nil
}

func scenarioFromFlags(c *cli.Context, kind string) (scenario.Scenario, error) {
	k, err := scenario.ParseKind(kind)
	if err != nil {
		return scenario.Scenario{}, err
	}
	sc := scenario.Default(k)
	if c.IsSet("change") {
		sc.Change = c.Float64("change")
	}
	return sc, nil
}

// =============================================================================
// COMPARE COMMAND
// =============================================================================

func compareCommand() *cli.Command {
	return &cli.Command{
		Name:  "compare",
		Usage: "Compare resilience scores across cities",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "cities",
				Usage: "Comma-separated cities (all cities when empty)",
			},
			&cli.BoolFlag{
				Name:  "rank",
				Usage: "Order by resilience score, best first",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "table",
				Usage:   "Output format (table, json)",
			},
		},
		Action: runCompare,
	}
}

func runCompare(c *cli.Context) error {
	logger := newLogger(c)
	defer logger.Sync()

	cities, closeCities, err := openCities(c, logger)
	if err != nil {
		return err
	}
	defer closeCities()

	var recs []climate.CityRecord
	if names := platform.SplitList(c.String("cities")); len(names) > 0 {
		for _, name := range names {
			rec, err := cities.Get(c.Context, name)
			if err != nil {
				return err
			}
			recs = append(recs, rec)
		}
	} else if recs, err = cities.List(c.Context); err != nil {
		return err
	}

	pipeline, err := newPipeline(c, logger)
	if err != nil {
		return err
	}
	rows := report.Compare(recs, pipeline.RunAll(c.Context, recs))
	if c.Bool("rank") {
		rows = report.Rank(rows)
	}

	if c.String("format") == "json" {
		return outputJSON(c.App.Writer, rows)
	}
	return outputCompare(c.App.Writer, rows)
}

// =============================================================================
// QUERY COMMAND
// =============================================================================

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "Ask a question about a city's greenery plan",
		ArgsUsage: "QUESTION",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "city",
				Aliases:  []string{"c"},
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			question := strings.Join(c.Args().Slice(), " ")
			res, rec, _, err := analyze(c, c.String("city"))
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "🤖 %s\n", query.Respond(question, rec, &res.Bundle))
			return nil
		},
	}
}

// =============================================================================
// SCENARIO COMMAND
// =============================================================================

func scenarioCommand() *cli.Command {
	return &cli.Command{
		Name:  "scenario",
		Usage: "Compare a city's baseline plan with a simulated scenario",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "city",
				Aliases:  []string{"c"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "type",
				Aliases:  []string{"t"},
				Usage:    "Scenario (temperature, rainfall, green_cover)",
				Required: true,
			},
			&cli.Float64Flag{
				Name:  "change",
				Usage: "Scenario change; the scenario default when unset",
			},
		},
		Action: runScenario,
	}
}

func runScenario(c *cli.Context) error {
	logger := newLogger(c)
	defer logger.Sync()

	sc, err := scenarioFromFlags(c, c.String("type"))
	if err != nil {
		return err
	}

	cities, closeCities, err := openCities(c, logger)
	if err != nil {
		return err
	}
	defer closeCities()

	base, err := cities.Get(c.Context, c.String("city"))
	if err != nil {
		return err
	}
	adjusted, err := sc.Apply(base)
	if err != nil {
		return err
	}

	pipeline, err := newPipeline(c, logger)
	if err != nil {
		return err
	}
	outcomes := pipeline.RunAll(c.Context, []climate.CityRecord{base, adjusted})
	for _, o := range outcomes {
		if o.Err != nil {
			return o.Err
		}
	}
	return outputScenario(c.App.Writer, sc, outcomes[0].Result, outcomes[1].Result)
}

// =============================================================================
// REPORT COMMAND
// =============================================================================

func reportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Write a markdown report or JSON export for a city",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "city",
				Aliases:  []string{"c"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "md",
				Usage:   "Report format (md, json)",
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Output directory (stdout when empty)",
			},
		},
		Action: runReport,
	}
}

func runReport(c *cli.Context) error {
	res, rec, _, err := analyze(c, c.String("city"))
	if err != nil {
		return err
	}

	var body []byte
	var name string
	switch c.String("format") {
	case "md", "markdown":
		body = []byte(report.Markdown(rec, res))
		name = report.FileName("report", rec.City, "md")
	case "json":
		if body, err = report.NewExport(rec, res, time.Now()).JSON(); err != nil {
			return err
		}
		name = report.FileName("data", rec.City, "json")
	default:
		return fmt.Errorf("unsupported format %q (use md or json)", c.String("format"))
	}

	dir := c.String("out")
	if dir == "" {
		_, err = c.App.Writer.Write(body)
		return err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	fmt.Fprintf(os.Stderr, "📄 Report written to %s\n", path)
	return nil
}
