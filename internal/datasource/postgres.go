package datasource

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/apparelworks/demandplan/internal/config"
	"github.com/apparelworks/demandplan/internal/domain"
)

type DB struct {
	*sqlx.DB
	sem *semaphore.Weighted
}

var (
	dbInstance *DB
	once       sync.Once
)

// NewDB creates a new database connection pool
func NewDB(cfg *config.DatabaseConfig) (*DB, error) {
	var err error
	once.Do(func() {
		connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

		var db *sqlx.DB
		db, err = sqlx.Connect("postgres", connStr)
		if err != nil {
			return
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		dbInstance = &DB{
			DB:  db,
			sem: semaphore.NewWeighted(10), // Limit to 10 concurrent operations
		}
	})

	return dbInstance, err
}

// NewDBFromURL opens a pool from a single connection URL via the pgx driver.
// Unlike NewDB it is not a singleton; CLI runs open and close their own pool.
func NewDBFromURL(url string) (*DB, error) {
	db, err := sqlx.Connect("pgx", url)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &DB{DB: db, sem: semaphore.NewWeighted(10)}, nil
}

// WithTx executes a function within a transaction
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := db.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("could not acquire semaphore: %w", err)
	}
	defer db.sem.Release(1)

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	if err := fn(tx.Tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("could not rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// PostgresSource serves planning inputs from Postgres and persists generated
// forecast batches. It implements both DataSource and BatchWriter.
type PostgresSource struct {
	db *DB
}

func NewPostgresSource(db *DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (p *PostgresSource) LoadSalesData(ctx context.Context, r TimeRange) ([]domain.Transaction, error) {
	query := `
		SELECT order_id, date, sku, quantity, unit_price, total_amount
		FROM sales_transactions
		WHERE quantity > 0`
	args := []interface{}{}
	if r.Start != nil {
		args = append(args, *r.Start)
		query += fmt.Sprintf(" AND date >= $%d", len(args))
	}
	if r.End != nil {
		args = append(args, *r.End)
		query += fmt.Sprintf(" AND date <= $%d", len(args))
	}
	query += " ORDER BY date, sku"

	var out []domain.Transaction
	if err := p.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, &domain.DataLoadError{Source: "sales_transactions", Err: err}
	}
	return out, nil
}

func (p *PostgresSource) LoadStockData(ctx context.Context, date *time.Time) ([]domain.StockSnapshot, error) {
	// Latest snapshot per SKU, optionally bounded by the requested date.
	query := `
		SELECT DISTINCT ON (sku) sku, snapshot_date, available_stock, net_price, is_active
		FROM stock_snapshots`
	args := []interface{}{}
	if date != nil {
		args = append(args, *date)
		query += " WHERE snapshot_date <= $1"
	}
	query += " ORDER BY sku, snapshot_date DESC"

	var out []domain.StockSnapshot
	if err := p.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, &domain.DataLoadError{Source: "stock_snapshots", Err: err}
	}
	return out, nil
}

func (p *PostgresSource) LoadStockHistory(ctx context.Context, r TimeRange) ([]domain.StockSnapshot, error) {
	query := `
		SELECT sku, snapshot_date, available_stock, net_price, is_active
		FROM stock_snapshots
		WHERE 1=1`
	args := []interface{}{}
	if r.Start != nil {
		args = append(args, *r.Start)
		query += fmt.Sprintf(" AND snapshot_date >= $%d", len(args))
	}
	if r.End != nil {
		args = append(args, *r.End)
		query += fmt.Sprintf(" AND snapshot_date <= $%d", len(args))
	}
	query += " ORDER BY sku, snapshot_date"

	var out []domain.StockSnapshot
	if err := p.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, &domain.DataLoadError{Source: "stock_snapshots", Err: err}
	}
	return out, nil
}

func (p *PostgresSource) LoadForecastData(ctx context.Context, generatedDate *time.Time) ([]domain.ForecastRecord, error) {
	query := `
		SELECT generated_date, forecast_date, sku, forecast_quantity
		FROM external_forecasts`
	args := []interface{}{}
	if generatedDate != nil {
		args = append(args, *generatedDate)
		query += " WHERE generated_date = $1"
	}
	query += " ORDER BY sku, forecast_date"

	var out []domain.ForecastRecord
	if err := p.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, &domain.DataLoadError{Source: "external_forecasts", Err: err}
	}
	return out, nil
}

func (p *PostgresSource) LoadPatternSets(ctx context.Context) ([]domain.PatternSet, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, name, size_names, patterns FROM pattern_sets ORDER BY id`)
	if err != nil {
		return nil, &domain.DataLoadError{Source: "pattern_sets", Err: err}
	}
	defer rows.Close()

	var out []domain.PatternSet
	for rows.Next() {
		var (
			ps          domain.PatternSet
			sizesJSON   []byte
			patternsRaw []byte
		)
		if err := rows.Scan(&ps.ID, &ps.Name, &sizesJSON, &patternsRaw); err != nil {
			return nil, &domain.DataLoadError{Source: "pattern_sets", Err: err}
		}
		if err := json.Unmarshal(sizesJSON, &ps.SizeNames); err != nil {
			return nil, &domain.DataLoadError{Source: "pattern_sets", Err: err}
		}
		if err := json.Unmarshal(patternsRaw, &ps.Patterns); err != nil {
			return nil, &domain.DataLoadError{Source: "pattern_sets", Err: err}
		}
		if err := ps.Validate(); err != nil {
			return nil, err
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

func (p *PostgresSource) loadAliases(ctx context.Context, kind string) (Aliases, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT alias, canonical FROM value_aliases WHERE kind = $1`, kind)
	if err != nil {
		return nil, &domain.DataLoadError{Source: "value_aliases", Err: err}
	}
	defer rows.Close()

	out := Aliases{}
	for rows.Next() {
		var alias, canonical string
		if err := rows.Scan(&alias, &canonical); err != nil {
			return nil, &domain.DataLoadError{Source: "value_aliases", Err: err}
		}
		out[alias] = canonical
	}
	return out, rows.Err()
}

func (p *PostgresSource) LoadSizeAliases(ctx context.Context) (Aliases, error) {
	return p.loadAliases(ctx, "size")
}

func (p *PostgresSource) LoadColorAliases(ctx context.Context) (Aliases, error) {
	return p.loadAliases(ctx, "color")
}

func (p *PostgresSource) LoadCategoryMappings(ctx context.Context) (Aliases, error) {
	return p.loadAliases(ctx, "category")
}

func (p *PostgresSource) LoadOutletModels(ctx context.Context) ([]string, error) {
	var out []string
	if err := p.db.SelectContext(ctx, &out,
		`SELECT model FROM outlet_models ORDER BY model`); err != nil {
		return nil, &domain.DataLoadError{Source: "outlet_models", Err: err}
	}
	return out, nil
}

// SaveForecastBatch persists a batch header and its per-period forecast rows
// in a single transaction. Re-running a batch for the same entity and period
// overwrites the previous rows.
func (p *PostgresSource) SaveForecastBatch(ctx context.Context, batch *domain.ForecastBatch) error {
	if batch == nil || len(batch.Forecasts) == 0 {
		return nil
	}

	return p.db.WithTx(ctx, func(tx *sql.Tx) error {
		statsJSON, err := json.Marshal(batch.Stats)
		if err != nil {
			return fmt.Errorf("could not marshal batch stats: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO forecast_batches (batch_id, generated_at, entity_type, horizon_months, stats)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (batch_id) DO UPDATE SET
				generated_at = EXCLUDED.generated_at,
				entity_type = EXCLUDED.entity_type,
				horizon_months = EXCLUDED.horizon_months,
				stats = EXCLUDED.stats`,
			batch.BatchID, batch.GeneratedAt, string(batch.EntityType), batch.HorizonMonths, statsJSON)
		if err != nil {
			return fmt.Errorf("could not upsert forecast batch: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO entity_forecasts
				(batch_id, entity_id, entity_type, period, forecast, lower_ci, upper_ci, method, product_type, cv)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (entity_id, entity_type, period) DO UPDATE SET
				batch_id = EXCLUDED.batch_id,
				forecast = EXCLUDED.forecast,
				lower_ci = EXCLUDED.lower_ci,
				upper_ci = EXCLUDED.upper_ci,
				method = EXCLUDED.method,
				product_type = EXCLUDED.product_type,
				cv = EXCLUDED.cv`)
		if err != nil {
			return fmt.Errorf("could not prepare forecast statement: %w", err)
		}
		defer stmt.Close()

		for _, fc := range batch.Forecasts {
			for _, pt := range fc.Points {
				if _, err := stmt.ExecContext(ctx,
					batch.BatchID, fc.EntityID, string(fc.EntityType), pt.Period,
					pt.Forecast, pt.LowerCI, pt.UpperCI,
					fc.Method, string(fc.ProductType), fc.CV); err != nil {
					return fmt.Errorf("could not upsert forecast for %s %s: %w", fc.EntityID, pt.Period, err)
				}
			}
		}

		log.Info().
			Str("batch_id", batch.BatchID).
			Int("entities", len(batch.Forecasts)).
			Msg("saved forecast batch")
		return nil
	})
}

var (
	_ DataSource  = (*PostgresSource)(nil)
	_ BatchWriter = (*PostgresSource)(nil)
)
