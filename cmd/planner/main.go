package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/apparelworks/demandplan/internal/accuracy"
	"github.com/apparelworks/demandplan/internal/cache"
	"github.com/apparelworks/demandplan/internal/config"
	"github.com/apparelworks/demandplan/internal/datasource"
	"github.com/apparelworks/demandplan/internal/domain"
	"github.com/apparelworks/demandplan/internal/forecast"
	"github.com/apparelworks/demandplan/internal/priority"
	"github.com/apparelworks/demandplan/internal/service"
	"github.com/apparelworks/demandplan/pkg/logger"
)

type app struct {
	planning *service.PlanningService
	forecast *service.ForecastService
}

func main() {
	var a app

	cliApp := &cli.App{
		Name:  "planner",
		Usage: "inventory planning and demand forecasting batch runs",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "data-dir", Usage: "CSV data directory (overrides APP_DATA_DIR)"},
			&cli.StringFlag{Name: "db-url", Usage: "Postgres connection URL; when set the database replaces the CSV directory"},
			&cli.StringFlag{Name: "log-level", Value: "info"},
		},
		Before: func(c *cli.Context) error {
			logger.SetLevel(c.String("log-level"))
			return a.init(c)
		},
		Commands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "compute classified SKU summaries with safety stock and reorder points",
				Flags: []cli.Flag{
					entityTypeFlag(),
					&cli.BoolFlag{Name: "force", Usage: "bypass derived caches"},
				},
				Action: func(c *cli.Context) error {
					et, err := entityType(c)
					if err != nil {
						return err
					}
					summaries, err := a.planning.GetSkuStatistics(c.Context, et, c.Bool("force"))
					if err != nil {
						return err
					}
					return printJSON(summaries)
				},
			},
			{
				Name:  "priorities",
				Usage: "score reorder priorities",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "view", Value: service.ViewModelColor, Usage: "sku or model_color"},
					&cli.IntFlag{Name: "top", Usage: "limit to the N highest scores"},
					&cli.StringSliceFlag{Name: "exclude-facility"},
					&cli.BoolFlag{Name: "force"},
				},
				Action: func(c *cli.Context) error {
					rows, err := a.planning.GetOrderPriorities(c.Context, c.String("view"), c.Int("top"),
						priority.Filter{ExcludeFacilities: c.StringSlice("exclude-facility")}, c.Bool("force"))
					if err != nil {
						return err
					}
					return printJSON(rows)
				},
			},
			{
				Name:  "forecast",
				Usage: "generate a forecast batch for every entity",
				Flags: []cli.Flag{
					entityTypeFlag(),
					&cli.IntFlag{Name: "horizon", Usage: "months ahead (default from configuration)"},
					&cli.BoolFlag{Name: "ml", Usage: "use cross-validated ML model selection"},
					&cli.StringFlag{Name: "method", Usage: "force a single method instead of automatic selection"},
				},
				Action: func(c *cli.Context) error {
					et, err := entityType(c)
					if err != nil {
						return err
					}
					opts := forecast.Options{
						Horizon: c.Int("horizon"),
						UseML:   c.Bool("ml"),
						Method:  forecast.Method(c.String("method")),
					}
					if opts.Method != "" && !opts.Method.Valid() {
						return fmt.Errorf("unknown forecast method %q", opts.Method)
					}
					batch, err := a.forecast.GenerateForecasts(c.Context, et, opts)
					if err != nil {
						return err
					}
					return printJSON(batch)
				},
			},
			{
				Name:  "train",
				Usage: "train and persist ML models for entities with enough history",
				Flags: []cli.Flag{entityTypeFlag()},
				Action: func(c *cli.Context) error {
					et, err := entityType(c)
					if err != nil {
						return err
					}
					stats, err := a.forecast.TrainModels(c.Context, et, forecast.Options{})
					if err != nil {
						return err
					}
					return printJSON(stats)
				},
			},
			{
				Name:  "accuracy",
				Usage: "evaluate an external forecast generation against realized sales",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "start", Required: true, Usage: "window start (YYYY-MM-DD)"},
					&cli.StringFlag{Name: "end", Required: true, Usage: "window end (YYYY-MM-DD)"},
					&cli.IntFlag{Name: "lookback", Value: 1, Usage: "generation look-back in months"},
				},
				Action: func(c *cli.Context) error {
					start, err := time.Parse("2006-01-02", c.String("start"))
					if err != nil {
						return fmt.Errorf("invalid start date: %w", err)
					}
					end, err := time.Parse("2006-01-02", c.String("end"))
					if err != nil {
						return fmt.Errorf("invalid end date: %w", err)
					}
					metrics, byType, err := a.forecast.EvaluateAccuracy(c.Context,
						accuracy.Window{Start: start, End: end}, c.Int("lookback"))
					if err != nil {
						return err
					}
					return printJSON(map[string]any{"entities": metrics, "by_type": byType})
				},
			},
			{
				Name:  "compare",
				Usage: "compare internal forecasts head-to-head with the external source",
				Flags: []cli.Flag{entityTypeFlag(), &cli.BoolFlag{Name: "ml"}},
				Action: func(c *cli.Context) error {
					et, err := entityType(c)
					if err != nil {
						return err
					}
					batch, err := a.forecast.GenerateForecasts(c.Context, et, forecast.Options{UseML: c.Bool("ml")})
					if err != nil {
						return err
					}
					entities, byType, err := a.forecast.CompareForecasts(c.Context, batch)
					if err != nil {
						return err
					}
					return printJSON(map[string]any{"entities": entities, "by_type": byType})
				},
			},
			{
				Name:  "optimize",
				Usage: "allocate production patterns to cover a model's size demand",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "pattern-set", Required: true},
					&cli.StringFlag{Name: "model", Required: true},
					&cli.IntFlag{Name: "lookback", Value: 12, Usage: "demand window in months"},
				},
				Action: func(c *cli.Context) error {
					since := time.Now().UTC().AddDate(0, -c.Int("lookback"), 0)
					demand, counts, err := a.planning.SizeDemand(c.Context, c.String("model"), since)
					if err != nil {
						return err
					}
					result, err := a.planning.OptimizePatterns(c.Context, c.String("pattern-set"), demand, counts)
					if err != nil {
						return err
					}
					return printJSON(map[string]any{"demand": demand, "result": result})
				},
			},
			{
				Name:  "invalidate-cache",
				Usage: "drop every derived cache entry",
				Action: func(c *cli.Context) error {
					return a.planning.InvalidateCaches(c.Context)
				},
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("planner run failed")
	}
}

func (a *app) init(c *cli.Context) error {
	cfg := config.Load()

	if err := cfg.Planning.Validate(); err != nil {
		return err
	}

	var (
		src    datasource.DataSource
		writer datasource.BatchWriter
	)
	switch {
	case c.String("db-url") != "":
		db, err := datasource.NewDBFromURL(c.String("db-url"))
		if err != nil {
			return err
		}
		pg := datasource.NewPostgresSource(db)
		src, writer = pg, pg
	default:
		dir := cfg.App.DataDir
		if d := c.String("data-dir"); d != "" {
			dir = d
		}
		src = datasource.NewCSVSource(dir, cfg.App.LoadWorkers)
	}

	planCache, err := cache.NewPlanCache(cfg.Cache)
	if err != nil {
		return err
	}
	store, err := forecast.NewFileModelStore(cfg.App.DataDir + "/models")
	if err != nil {
		return err
	}

	a.planning = service.NewPlanningService(src, planCache, cfg.Planning)
	a.forecast = service.NewForecastService(src, writer, store, a.planning, cfg.Planning)
	return nil
}

func entityTypeFlag() cli.Flag {
	return &cli.StringFlag{Name: "entity-type", Value: string(domain.EntitySKU), Usage: "sku or model"}
}

func entityType(c *cli.Context) (domain.EntityType, error) {
	et := domain.EntityType(c.String("entity-type"))
	if et != domain.EntitySKU && et != domain.EntityModel {
		return "", fmt.Errorf("entity-type must be sku or model, got %q", et)
	}
	return et, nil
}

func printJSON(v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(payload))
	return nil
}
