// Command seed loads a CSV export directory into the Postgres backing store
// so the planner and server can run against the database source.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"time"

	"github.com/apparelworks/demandplan/internal/datasource"
	"github.com/apparelworks/demandplan/pkg/logger"
)

func main() {
	dbURL := flag.String("db-url", "", "Postgres connection URL")
	dataDir := flag.String("data-dir", "./data", "Directory containing CSV exports")
	workers := flag.Int("workers", 4, "Parallel file loaders")
	flag.Parse()

	if *dbURL == "" {
		logger.Log.Fatal().Msg("database URL is required (use -db-url flag)")
	}

	ctx := context.Background()

	src := datasource.NewCSVSource(*dataDir, *workers)
	bundle, err := src.LoadAll(ctx, datasource.TimeRange{})
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("failed to load csv inputs")
	}

	db, err := datasource.NewDBFromURL(*dbURL)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	start := time.Now()
	if err := seed(ctx, db, bundle); err != nil {
		logger.Log.Fatal().Err(err).Msg("seeding failed")
	}
	logger.Log.Info().
		Int("sales", len(bundle.Sales)).
		Int("stock", len(bundle.Stock)+len(bundle.StockHistory)).
		Int("forecasts", len(bundle.Forecasts)).
		Int("pattern_sets", len(bundle.PatternSets)).
		Dur("elapsed", time.Since(start)).
		Msg("seeding complete")
}

func seed(ctx context.Context, db *datasource.DB, b *datasource.Bundle) error {
	if err := seedSales(ctx, db, b); err != nil {
		return err
	}
	if err := seedStock(ctx, db, b); err != nil {
		return err
	}
	if err := seedForecasts(ctx, db, b); err != nil {
		return err
	}
	if err := seedPatternSets(ctx, db, b); err != nil {
		return err
	}
	return seedAliases(ctx, db, b)
}

func seedSales(ctx context.Context, db *datasource.DB, b *datasource.Bundle) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO sales_transactions (order_id, date, sku, quantity, unit_price, total_amount)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT DO NOTHING`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, t := range b.Sales {
			if _, err := stmt.ExecContext(ctx, t.OrderID, t.Date, t.SKU, t.Quantity, t.UnitPrice, t.TotalAmount); err != nil {
				return err
			}
		}
		return nil
	})
}

func seedStock(ctx context.Context, db *datasource.DB, b *datasource.Bundle) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO stock_snapshots (sku, snapshot_date, available_stock, net_price, is_active)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (sku, snapshot_date) DO UPDATE SET
				available_stock = EXCLUDED.available_stock,
				net_price = EXCLUDED.net_price,
				is_active = EXCLUDED.is_active`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, s := range b.Stock {
			if _, err := stmt.ExecContext(ctx, s.SKU, s.SnapshotDate, s.AvailableStock, s.NetPrice, s.IsActive); err != nil {
				return err
			}
		}
		for _, s := range b.StockHistory {
			if _, err := stmt.ExecContext(ctx, s.SKU, s.SnapshotDate, s.AvailableStock, s.NetPrice, s.IsActive); err != nil {
				return err
			}
		}
		return nil
	})
}

func seedForecasts(ctx context.Context, db *datasource.DB, b *datasource.Bundle) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO external_forecasts (generated_date, forecast_date, sku, forecast_quantity)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (generated_date, forecast_date, sku) DO UPDATE SET
				forecast_quantity = EXCLUDED.forecast_quantity`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, f := range b.Forecasts {
			if _, err := stmt.ExecContext(ctx, f.GeneratedDate, f.ForecastDate, f.SKU, f.ForecastQuantity); err != nil {
				return err
			}
		}
		return nil
	})
}

func seedPatternSets(ctx context.Context, db *datasource.DB, b *datasource.Bundle) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO pattern_sets (id, name, size_names, patterns)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				size_names = EXCLUDED.size_names,
				patterns = EXCLUDED.patterns`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, ps := range b.PatternSets {
			sizes, err := json.Marshal(ps.SizeNames)
			if err != nil {
				return err
			}
			patterns, err := json.Marshal(ps.Patterns)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, ps.ID, ps.Name, sizes, patterns); err != nil {
				return err
			}
		}
		return nil
	})
}

func seedAliases(ctx context.Context, db *datasource.DB, b *datasource.Bundle) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO value_aliases (kind, alias, canonical)
			VALUES ($1, $2, $3)
			ON CONFLICT (kind, alias) DO UPDATE SET canonical = EXCLUDED.canonical`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for alias, canonical := range b.SizeAliases {
			if _, err := stmt.ExecContext(ctx, "size", alias, canonical); err != nil {
				return err
			}
		}
		for alias, canonical := range b.ColorAliases {
			if _, err := stmt.ExecContext(ctx, "color", alias, canonical); err != nil {
				return err
			}
		}
		return nil
	})
}
