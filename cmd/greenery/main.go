// Greenery CLI - urban greenery advisory
//
// Usage:
//
//	greenery analyze --city Delhi [--scenario rainfall --change 10]
//	greenery compare --rank
//	greenery serve --port 8080
//	greenery predict --location Thane --month 7 ...
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"urban-greenery/pkg/platform"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := platform.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "greenery",
		Usage:   "Urban greenery advisor - climate, planting and sustainability plans for cities",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"GREENERY_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "data",
				Value:   "city_data.csv",
				Usage:   "City dataset CSV",
				EnvVars: []string{"GREENERY_DATA"},
			},
			&cli.StringFlag{
				Name:    "city-source",
				Value:   "csv",
				Usage:   "Where city observations are read from (csv, clickhouse)",
				EnvVars: []string{"GREENERY_CITY_SOURCE"},
			},
			&cli.StringFlag{
				Name:    "policies",
				Usage:   "YAML file with budget and risk policies",
				EnvVars: []string{"GREENERY_POLICIES"},
			},
			&cli.StringFlag{
				Name:    "carbon-rates",
				Usage:   "YAML file with per-species sequestration rates (kg CO2/tree/year)",
				EnvVars: []string{"GREENERY_CARBON_RATES"},
			},
			&cli.StringFlag{
				Name:    "model",
				Usage:   "NDVI regression model artifact (JSON)",
				EnvVars: []string{"GREENERY_MODEL"},
			},
			&cli.StringFlag{
				Name:    "tiles",
				Usage:   "NDVI tile metadata CSV",
				EnvVars: []string{"GREENERY_TILES"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-host",
				Value:   "localhost",
				Usage:   "ClickHouse host",
				EnvVars: []string{"CLICKHOUSE_HOST"},
			},
			&cli.IntFlag{
				Name:    "clickhouse-port",
				Value:   9000,
				Usage:   "ClickHouse native port",
				EnvVars: []string{"CLICKHOUSE_PORT"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-database",
				Value:   "greenery",
				Usage:   "ClickHouse database",
				EnvVars: []string{"CLICKHOUSE_DATABASE"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-user",
				Value:   "default",
				Usage:   "ClickHouse user",
				EnvVars: []string{"CLICKHOUSE_USER"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-password",
				Value:   "",
				Usage:   "ClickHouse password",
				EnvVars: []string{"CLICKHOUSE_PASSWORD"},
			},
		},

		Commands: []*cli.Command{
			analyzeCommand(),
			compareCommand(),
			queryCommand(),
			scenarioCommand(),
			reportCommand(),
			serveCommand(),
			predictCommand(),
			tilesCommand(),
			rasterCommand(),
			citiesCommand(),
			policyCommand(),
		},
	}
}
