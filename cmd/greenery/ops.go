package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"urban-greenery/api"
	"urban-greenery/db/citydata"
	"urban-greenery/db/clickhouse"
	"urban-greenery/db/ingestion"
	"urban-greenery/decision/ndvi"
	"urban-greenery/decision/raster"
	gerrors "urban-greenery/pkg/errors"
	"urban-greenery/pkg/platform"
)

// =============================================================================
// SERVE COMMAND (API SERVER)
// =============================================================================

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the greenery API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Value:   8080,
				Usage:   "API server port",
				EnvVars: []string{"GREENERY_PORT", "PORT"},
			},
			&cli.StringFlag{
				Name:    "cors-origins",
				Value:   "*",
				Usage:   "Comma-separated list of allowed CORS origins",
				EnvVars: []string{"GREENERY_CORS_ORIGINS"},
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "Require this X-API-Key on /api and model endpoints",
				EnvVars: []string{"GREENERY_API_KEY"},
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	logger := newLogger(c)
	defer logger.Sync()

	cities, closeCities, err := openCities(c, logger)
	if err != nil {
		return err
	}
	defer closeCities()

	pipeline, err := newPipeline(c, logger)
	if err != nil {
		return err
	}

	predictor, err := loadPredictor(c)
	if err != nil {
		// The advisory endpoints still work without the model.
		logger.Error("NDVI model not loaded", zap.Error(err))
	}
	tiles, err := loadTiles(c)
	if err != nil {
		logger.Error("tile index not loaded", zap.Error(err))
	} else if tiles != nil && tiles.Skipped > 0 {
		logger.Warn("skipped invalid tile rows", zap.Int("skipped", tiles.Skipped))
	}

	deps := api.Deps{
		Cities:    cities,
		Pipeline:  pipeline,
		Predictor: predictor,
		Tiles:     tiles,
		Logger:    logger,
	}
	if pinger, ok := cities.(api.Pinger); ok {
		deps.Store = pinger
	}

	cfg := api.DefaultConfig()
	cfg.Port = c.Int("port")
	cfg.CORSOrigins = platform.SplitList(c.String("cors-origins"))
	cfg.APIKey = c.String("api-key")

	return api.NewServer(deps, cfg).StartWithGracefulShutdown()
}

// =============================================================================
// NDVI COMMANDS
// =============================================================================

func predictCommand() *cli.Command {
	return &cli.Command{
		Name:  "predict",
		Usage: "Predict monthly average NDVI for a location (requires --model)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "location", Usage: "Trained location, e.g. Thane", Required: true},
			&cli.IntFlag{Name: "year", Value: 2025},
			&cli.IntFlag{Name: "month", Required: true},
			&cli.Float64Flag{Name: "min-temp", Usage: "Minimum temperature (°C)", Required: true},
			&cli.Float64Flag{Name: "max-temp", Usage: "Maximum temperature (°C)", Required: true},
			&cli.Float64Flag{Name: "mean-temp", Usage: "Mean temperature (°C)", Required: true},
			&cli.Float64Flag{Name: "precip", Usage: "Total precipitation (mm)", Required: true},
			&cli.Float64Flag{Name: "solar-rad", Usage: "Total solar radiation (J/m²)", Required: true},
			&cli.IntFlag{Name: "rainy-days", Required: true},
		},
		Action: func(c *cli.Context) error {
			predictor, err := loadPredictor(c)
			if err != nil {
				return err
			}
			if predictor == nil {
				return fmt.Errorf("no model configured (use --model or GREENERY_MODEL)")
			}
			pred, err := predictor.Predict(c.Context, ndvi.Features{
				Year:             c.Int("year"),
				Month:            c.Int("month"),
				MinTempC:         c.Float64("min-temp"),
				MaxTempC:         c.Float64("max-temp"),
				MeanTempC:        c.Float64("mean-temp"),
				TotalPrecipMM:    c.Float64("precip"),
				TotalSolarRadJM2: c.Float64("solar-rad"),
				RainyDays:        c.Int("rainy-days"),
				Location:         ndvi.Location(c.String("location")),
			})
			if err != nil {
				return err
			}
			return outputJSON(c.App.Writer, pred)
		},
	}
}

func tilesCommand() *cli.Command {
	return &cli.Command{
		Name:  "tiles",
		Usage: "Find the NDVI tile covering a point (requires --tiles)",
		Flags: []cli.Flag{
			&cli.Float64Flag{Name: "lat"},
			&cli.Float64Flag{Name: "lon"},
			&cli.IntFlag{Name: "year", Value: 2024},
			&cli.StringFlag{Name: "location", Usage: "Use a trained location's centre instead of --lat/--lon"},
		},
		Action: func(c *cli.Context) error {
			idx, err := loadTiles(c)
			if err != nil {
				return err
			}
			if idx == nil {
				return fmt.Errorf("no tile metadata configured (use --tiles or GREENERY_TILES)")
			}
			lat, lon := c.Float64("lat"), c.Float64("lon")
			if name := c.String("location"); name != "" {
				coord, ok := ndvi.CoordinateOf(ndvi.Location(name))
				if !ok {
					return gerrors.NewUnknownLocationError(name)
				}
				lat, lon = coord.Lat, coord.Lon
			} else if !c.IsSet("lat") || !c.IsSet("lon") {
				return fmt.Errorf("either --location or both --lat and --lon are required")
			}
			tile, ok := idx.FindTile(lat, lon, c.Int("year"))
			if !ok {
				return fmt.Errorf("no tile covers (%g, %g) in %d", lat, lon, c.Int("year"))
			}
			fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\n", tile.Location, tile.ImagePath(), tile.NDVIFileName)
			return nil
		},
	}
}

func rasterCommand() *cli.Command {
	return &cli.Command{
		Name:  "raster",
		Usage: "Process NDVI GeoTIFFs",
		Subcommands: []*cli.Command{
			{
				Name:  "reclassify",
				Usage: "Classify NDVI into non-vegetated, sparse and dense vegetation",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "in", Required: true},
					&cli.StringFlag{Name: "out", Usage: "PNG output path"},
					&cli.IntFlag{Name: "scale", Value: 1, Usage: "Pixel magnification"},
				},
				Action: runReclassify,
			},
			{
				Name:  "change",
				Usage: "Map NDVI change between two years",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "before", Required: true},
					&cli.StringFlag{Name: "after", Required: true},
					&cli.StringFlag{Name: "out", Usage: "PNG output path"},
					&cli.Float64Flag{Name: "threshold", Value: 0.1, Usage: "Change counted as gain or loss"},
					&cli.IntFlag{Name: "scale", Value: 1, Usage: "Pixel magnification"},
				},
				Action: runChange,
			},
		},
	}
}

func readTIFF(path string) (*raster.Grid, error) {
	if !strings.HasSuffix(path, ".tif") {
		return nil, fmt.Errorf("%s: invalid file format, expected a .tif file", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return raster.DecodeTIFF(f, nil)
}

func writePNG(path string, g *raster.Grid, cmap raster.ColorMap, scale int) error {
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := raster.WritePNG(f, g, cmap, scale); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func runReclassify(c *cli.Context) error {
	g, err := readTIFF(c.String("in"))
	if err != nil {
		return err
	}
	classes := raster.Reclassify(g)
	if err := writePNG(c.String("out"), classes, raster.ClassColorMap, c.Int("scale")); err != nil {
		return err
	}
	return outputClasses(c.App.Writer, raster.Summarize(classes))
}

func runChange(c *cli.Context) error {
	before, err := readTIFF(c.String("before"))
	if err != nil {
		return err
	}
	after, err := readTIFF(c.String("after"))
	if err != nil {
		return err
	}
	diff, err := raster.Difference(after, before)
	if err != nil {
		return err
	}
	if err := writePNG(c.String("out"), diff, raster.ChangeColorMap(raster.DefaultChangeNorm), c.Int("scale")); err != nil {
		return err
	}
	s := raster.SummarizeChange(diff, c.Float64("threshold"))
	fmt.Fprintf(c.App.Writer, "Mean change: %+.3f\nGained: %s px\nLost: %s px\nStable: %s px\n",
		s.Mean, humanize.Comma(int64(s.Gained)), humanize.Comma(int64(s.Lost)), humanize.Comma(int64(s.Stable)))
	return nil
}

// =============================================================================
// CITIES COMMAND
// =============================================================================

func citiesCommand() *cli.Command {
	return &cli.Command{
		Name:  "cities",
		Usage: "Manage city observations",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List cities from the configured source",
				Action: func(c *cli.Context) error {
					logger := newLogger(c)
					defer logger.Sync()
					cities, closeCities, err := openCities(c, logger)
					if err != nil {
						return err
					}
					defer closeCities()
					recs, err := cities.List(c.Context)
					if err != nil {
						return err
					}
					return citydata.WriteCSV(c.App.Writer, recs)
				},
			},
			{
				Name:  "import",
				Usage: "Import a city CSV into ClickHouse as a new active snapshot",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "from", Usage: "CSV to import (defaults to --data)"},
					&cli.IntFlag{Name: "batch-size", Value: ingestion.DefaultBatchSize},
					&cli.BoolFlag{Name: "migrate", Value: true, Usage: "Create tables when missing"},
				},
				Action: runImport,
			},
		},
	}
}

func runImport(c *cli.Context) error {
	logger := newLogger(c)
	defer logger.Sync()

	path := c.String("from")
	if path == "" {
		path = c.String("data")
	}
	recs, err := citydata.NewCSVStore(path).List(c.Context)
	if err != nil {
		return err
	}

	store, err := clickhouse.NewStore(clickhouseConfig(c), logger)
	if err != nil {
		return fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	defer store.Close()

	if c.Bool("migrate") {
		if err := store.Migrate(c.Context); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	result, err := ingestion.NewClickHouseAdapter(store, logger).
		WithBatchSize(c.Int("batch-size")).
		Ingest(c.Context, path, recs)
	if err != nil {
		return err
	}
	if result.Unchanged {
		fmt.Fprintf(c.App.Writer, "✅ Content unchanged; snapshot %s re-activated\n", result.SnapshotID)
		return nil
	}
	fmt.Fprintf(c.App.Writer, "✅ Imported %d cities into snapshot %s in %s\n",
		result.Rows, result.SnapshotID, result.Duration.Round(time.Millisecond))
	return nil
}

// =============================================================================
// POLICY COMMAND
// =============================================================================

func policyCommand() *cli.Command {
	return &cli.Command{
		Name:  "policy",
		Usage: "Manage policies",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List built-in and configured policies",
				Flags: budgetFlags(),
				Action: func(c *cli.Context) error {
					engine, err := policyEngine(c)
					if err != nil {
						return err
					}
					return outputPolicies(c.App.Writer, engine.Policies())
				},
			},
		},
	}
}
