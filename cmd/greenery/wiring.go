package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"urban-greenery/db/citydata"
	"urban-greenery/db/clickhouse"
	"urban-greenery/decision/carbon"
	"urban-greenery/decision/ndvi"
	"urban-greenery/decision/policy"
	"urban-greenery/decision/sustainability"
	"urban-greenery/decision/workflow"
	"urban-greenery/pkg/platform"
)

func newLogger(c *cli.Context) *zap.Logger {
	logger, err := platform.NewLogger(c.String("log-level"))
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func clickhouseConfig(c *cli.Context) *clickhouse.Config {
	return &clickhouse.Config{
		Host:     c.String("clickhouse-host"),
		Port:     c.Int("clickhouse-port"),
		Database: c.String("clickhouse-database"),
		Username: c.String("clickhouse-user"),
		Password: c.String("clickhouse-password"),
	}
}

// openCities returns the configured city source and a function releasing it.
func openCities(c *cli.Context, logger *zap.Logger) (citydata.Store, func(), error) {
	switch source := strings.ToLower(c.String("city-source")); source {
	case "", "csv":
		return citydata.NewCSVStore(c.String("data")), func() {}, nil
	case "clickhouse":
		store, err := clickhouse.NewStore(clickhouseConfig(c), logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		return store, func() { store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown city source %q (use csv or clickhouse)", source)
	}
}

// policyEngine builds the engine from the built-in risk policies, the
// policy file and any limits given on the command line.
func policyEngine(c *cli.Context) (*policy.Engine, error) {
	engine := policy.NewEngine()

	if path := c.String("policies"); path != "" {
		custom, err := policy.LoadFile(path)
		if err != nil {
			return nil, err
		}
		for _, p := range custom {
			engine.AddPolicy(p)
		}
	}

	if c.IsSet("cost-limit") {
		engine.AddPolicy(policy.Policy{
			ID:        "cli-cost-limit",
			Name:      "Cost Limit",
			Type:      policy.PolicyTypeCostLimit,
			Severity:  policy.SeverityError,
			Threshold: c.Float64("cost-limit"),
			Enabled:   true,
		})
	}
	if c.IsSet("carbon-floor") {
		engine.AddPolicy(policy.Policy{
			ID:        "cli-carbon-floor",
			Name:      "Carbon Floor",
			Type:      policy.PolicyTypeCarbonFloor,
			Severity:  policy.SeverityWarning,
			Threshold: c.Float64("carbon-floor"),
			Enabled:   true,
		})
	}
	return engine, nil
}

func newPipeline(c *cli.Context, logger *zap.Logger) (*workflow.Pipeline, error) {
	engine, err := policyEngine(c)
	if err != nil {
		return nil, err
	}
	rates, err := carbon.NewStore(c.String("carbon-rates"))
	if err != nil {
		return nil, err
	}
	advisor := sustainability.NewAdvisor().WithCarbonStore(rates).WithPolicyEngine(engine)
	return workflow.New(workflow.WithAdvisor(advisor), workflow.WithLogger(logger)), nil
}

// loadPredictor returns nil when no model is configured.
func loadPredictor(c *cli.Context) (*ndvi.Predictor, error) {
	path := c.String("model")
	if path == "" {
		return nil, nil
	}
	model, err := ndvi.LoadModel(path)
	if err != nil {
		return nil, err
	}
	return ndvi.NewPredictor(model)
}

// loadTiles returns nil when no metadata file is configured.
func loadTiles(c *cli.Context) (*ndvi.TileIndex, error) {
	path := c.String("tiles")
	if path == "" {
		return nil, nil
	}
	return ndvi.LoadTileIndex(path)
}

// budgetFlags are shared by the commands that evaluate policies.
func budgetFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{
			Name:  "cost-limit",
			Usage: "Cost limit in rupees for policy check",
		},
		&cli.Float64Flag{
			Name:  "carbon-floor",
			Usage: "Minimum carbon sequestration (kg CO2/year) for policy check",
		},
	}
}
