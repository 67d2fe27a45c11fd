package datasource

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/apparelworks/demandplan/internal/domain"
	"github.com/apparelworks/demandplan/pkg/logger"
)

// amountTolerance is the largest accepted gap between a line's total amount
// and quantity times unit price.
var amountTolerance = decimal.NewFromFloat(0.01)

// File names the CSV source expects under its directory.
const (
	salesFile        = "sales.csv"
	stockFile        = "stock.csv"
	stockHistoryFile = "stock_history.csv"
	forecastFile     = "forecasts.csv"
	sizeAliasFile    = "size_aliases.csv"
	colorAliasFile   = "color_aliases.csv"
	categoryFile     = "category_mappings.csv"
	outletModelFile  = "outlet_models.csv"
	patternSetFile   = "pattern_sets.json"
)

// columnAliases maps each canonical column to the spellings seen across
// source exports. Resolution happens once per file at the header row.
var columnAliases = map[string][]string{
	"order_id":       {"order_id", "nr_zamowienia", "document_no", "order"},
	"date":           {"date", "data", "order_date", "transaction_date"},
	"sku":            {"sku", "kod", "item_code", "product_code"},
	"quantity":       {"quantity", "ilosc", "total_quantity", "qty"},
	"unit_price":     {"unit_price", "cena", "price"},
	"total_amount":   {"total_amount", "wartosc", "total", "amount"},
	"snapshot_date":  {"snapshot_date", "stock_date", "data_stanu"},
	"stock":          {"stock", "available_stock", "stan", "on_hand"},
	"net_price":      {"net_price", "cena_netto"},
	"is_active":      {"is_active", "active", "aktywny"},
	"generated_date": {"generated_date", "forecast_generated"},
	"forecast_date":  {"forecast_date", "target_date"},
	"forecast_qty":   {"forecast_qty", "forecast_quantity", "prognoza"},
	"alias":          {"alias", "raw", "source_value"},
	"canonical":      {"canonical", "target", "mapped_value"},
	"model":          {"model", "model_code"},
}

// CSVSource reads planning inputs from a directory of CSV exports. Sales,
// stock history and forecast files are loaded in parallel by LoadAll.
type CSVSource struct {
	dir     string
	workers int
}

func NewCSVSource(dir string, workers int) *CSVSource {
	if workers <= 0 {
		workers = 4
	}
	return &CSVSource{dir: dir, workers: workers}
}

// normalizeColumnName lowercases, trims, strips a UTF-8 BOM and collapses
// separators so header matching survives the source systems' spelling drift.
func normalizeColumnName(name string) string {
	name = strings.TrimPrefix(name, "\ufeff")
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")
	return name
}

// resolveHeader maps canonical column names to indices in the header row.
func resolveHeader(header []string) map[string]int {
	byName := make(map[string]int, len(header))
	for i, h := range header {
		byName[normalizeColumnName(h)] = i
	}

	resolved := make(map[string]int)
	for canonical, spellings := range columnAliases {
		for _, s := range spellings {
			if idx, ok := byName[s]; ok {
				resolved[canonical] = idx
				break
			}
		}
	}
	return resolved
}

type csvRow struct {
	cols   map[string]int
	fields []string
	line   int
}

func (r csvRow) get(canonical string) (string, bool) {
	idx, ok := r.cols[canonical]
	if !ok || idx >= len(r.fields) {
		return "", false
	}
	return strings.TrimSpace(r.fields[idx]), true
}

func (r csvRow) require(canonical string) (string, error) {
	v, ok := r.get(canonical)
	if !ok || v == "" {
		return "", &domain.ValidationError{
			Field:  canonical,
			Reason: fmt.Sprintf("missing required column value at line %d", r.line),
		}
	}
	return v, nil
}

func (s *CSVSource) readFile(path string, fn func(row csvRow) error) error {
	f, err := os.Open(path)
	if err != nil {
		return &domain.DataLoadError{Source: path, Err: err}
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return &domain.DataLoadError{Source: path, Err: err}
	}
	cols := resolveHeader(header)

	line := 1
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return &domain.DataLoadError{Source: path, Err: err}
		}
		line++
		if err := fn(csvRow{cols: cols, fields: fields, line: line}); err != nil {
			return err
		}
	}
}

func parseDate(v string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339, "02.01.2006"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", v)
}

// validateAmounts cross-checks a sales line with decimal arithmetic: the
// reported total must match quantity x unit price within a cent.
func validateAmounts(qty int, unitPrice, total float64, line int) error {
	expected := decimal.NewFromInt(int64(qty)).Mul(decimal.NewFromFloat(unitPrice))
	got := decimal.NewFromFloat(total)
	if got.Sub(expected).Abs().GreaterThan(amountTolerance) {
		return &domain.ValidationError{
			Field:  "total_amount",
			Reason: fmt.Sprintf("line %d: total %s does not match quantity x unit price %s", line, got, expected),
		}
	}
	return nil
}

func (s *CSVSource) LoadSalesData(_ context.Context, r TimeRange) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := s.readFile(filepath.Join(s.dir, salesFile), func(row csvRow) error {
		skuVal, err := row.require("sku")
		if err != nil {
			return err
		}
		dateVal, err := row.require("date")
		if err != nil {
			return err
		}
		date, err := parseDate(dateVal)
		if err != nil {
			return &domain.ValidationError{Field: "date", Reason: err.Error()}
		}
		if !r.contains(date) {
			return nil
		}

		qtyVal, err := row.require("quantity")
		if err != nil {
			return err
		}
		qty, err := strconv.Atoi(qtyVal)
		if err != nil || qty <= 0 {
			return &domain.ValidationError{
				Field:  "quantity",
				Reason: fmt.Sprintf("line %d: quantity must be a positive integer, got %q", row.line, qtyVal),
			}
		}

		tx := domain.Transaction{SKU: strings.ToUpper(skuVal), Date: date, Quantity: qty}
		if v, ok := row.get("order_id"); ok {
			tx.OrderID = v
		}
		if v, ok := row.get("unit_price"); ok && v != "" {
			if tx.UnitPrice, err = strconv.ParseFloat(v, 64); err != nil {
				return &domain.ValidationError{Field: "unit_price", Reason: fmt.Sprintf("line %d: %v", row.line, err)}
			}
		}
		if v, ok := row.get("total_amount"); ok && v != "" {
			if tx.TotalAmount, err = strconv.ParseFloat(v, 64); err != nil {
				return &domain.ValidationError{Field: "total_amount", Reason: fmt.Sprintf("line %d: %v", row.line, err)}
			}
			if tx.UnitPrice > 0 {
				if err := validateAmounts(tx.Quantity, tx.UnitPrice, tx.TotalAmount, row.line); err != nil {
					return err
				}
			}
		} else if tx.UnitPrice > 0 {
			tx.TotalAmount = float64(tx.Quantity) * tx.UnitPrice
		}

		out = append(out, tx)
		return nil
	})
	return out, err
}

func (s *CSVSource) loadSnapshots(path string, r TimeRange) ([]domain.StockSnapshot, error) {
	var out []domain.StockSnapshot
	err := s.readFile(path, func(row csvRow) error {
		skuVal, err := row.require("sku")
		if err != nil {
			return err
		}
		dateVal, err := row.require("snapshot_date")
		if err != nil {
			return err
		}
		date, err := parseDate(dateVal)
		if err != nil {
			return &domain.ValidationError{Field: "snapshot_date", Reason: err.Error()}
		}
		if !r.contains(date) {
			return nil
		}

		snap := domain.StockSnapshot{SKU: strings.ToUpper(skuVal), SnapshotDate: date, IsActive: true}
		if v, ok := row.get("stock"); ok && v != "" {
			if snap.AvailableStock, err = strconv.ParseFloat(v, 64); err != nil {
				return &domain.ValidationError{Field: "stock", Reason: fmt.Sprintf("line %d: %v", row.line, err)}
			}
		}
		if v, ok := row.get("net_price"); ok && v != "" {
			if snap.NetPrice, err = strconv.ParseFloat(v, 64); err != nil {
				return &domain.ValidationError{Field: "net_price", Reason: fmt.Sprintf("line %d: %v", row.line, err)}
			}
		}
		if v, ok := row.get("is_active"); ok && v != "" {
			snap.IsActive = v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
		}
		out = append(out, snap)
		return nil
	})
	return out, err
}

func (s *CSVSource) LoadStockData(_ context.Context, date *time.Time) ([]domain.StockSnapshot, error) {
	all, err := s.loadSnapshots(filepath.Join(s.dir, stockFile), TimeRange{})
	if err != nil {
		return nil, err
	}
	if date == nil {
		return all, nil
	}

	// Latest snapshot per SKU on or before the requested date.
	latest := make(map[string]domain.StockSnapshot)
	for _, snap := range all {
		if snap.SnapshotDate.After(*date) {
			continue
		}
		if cur, ok := latest[snap.SKU]; !ok || snap.SnapshotDate.After(cur.SnapshotDate) {
			latest[snap.SKU] = snap
		}
	}
	out := make([]domain.StockSnapshot, 0, len(latest))
	for _, snap := range latest {
		out = append(out, snap)
	}
	return out, nil
}

func (s *CSVSource) LoadStockHistory(_ context.Context, r TimeRange) ([]domain.StockSnapshot, error) {
	return s.loadSnapshots(filepath.Join(s.dir, stockHistoryFile), r)
}

func (s *CSVSource) LoadForecastData(_ context.Context, generatedDate *time.Time) ([]domain.ForecastRecord, error) {
	var out []domain.ForecastRecord
	err := s.readFile(filepath.Join(s.dir, forecastFile), func(row csvRow) error {
		skuVal, err := row.require("sku")
		if err != nil {
			return err
		}
		genVal, err := row.require("generated_date")
		if err != nil {
			return err
		}
		gen, err := parseDate(genVal)
		if err != nil {
			return &domain.ValidationError{Field: "generated_date", Reason: err.Error()}
		}
		if generatedDate != nil && !gen.Equal(*generatedDate) {
			return nil
		}

		fcVal, err := row.require("forecast_date")
		if err != nil {
			return err
		}
		fc, err := parseDate(fcVal)
		if err != nil {
			return &domain.ValidationError{Field: "forecast_date", Reason: err.Error()}
		}
		if fc.Before(gen) {
			return &domain.ValidationError{
				Field:  "forecast_date",
				Reason: fmt.Sprintf("line %d: forecast date precedes generation date", row.line),
			}
		}

		qtyVal, err := row.require("forecast_qty")
		if err != nil {
			return err
		}
		qty, err := strconv.ParseFloat(qtyVal, 64)
		if err != nil || qty < 0 {
			return &domain.ValidationError{
				Field:  "forecast_qty",
				Reason: fmt.Sprintf("line %d: forecast quantity must be non-negative, got %q", row.line, qtyVal),
			}
		}

		out = append(out, domain.ForecastRecord{
			GeneratedDate:    gen,
			ForecastDate:     fc,
			SKU:              strings.ToUpper(skuVal),
			ForecastQuantity: qty,
		})
		return nil
	})
	return out, err
}

func (s *CSVSource) loadAliasFile(name string) (Aliases, error) {
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Alias files are optional.
		return Aliases{}, nil
	}

	out := Aliases{}
	err := s.readFile(path, func(row csvRow) error {
		raw, err := row.require("alias")
		if err != nil {
			return err
		}
		canonical, err := row.require("canonical")
		if err != nil {
			return err
		}
		out[raw] = canonical
		return nil
	})
	return out, err
}

func (s *CSVSource) LoadSizeAliases(context.Context) (Aliases, error) {
	return s.loadAliasFile(sizeAliasFile)
}

func (s *CSVSource) LoadColorAliases(context.Context) (Aliases, error) {
	return s.loadAliasFile(colorAliasFile)
}

func (s *CSVSource) LoadCategoryMappings(context.Context) (Aliases, error) {
	return s.loadAliasFile(categoryFile)
}

func (s *CSVSource) LoadOutletModels(context.Context) ([]string, error) {
	path := filepath.Join(s.dir, outletModelFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	var out []string
	err := s.readFile(path, func(row csvRow) error {
		model, err := row.require("model")
		if err != nil {
			return err
		}
		out = append(out, strings.ToUpper(model))
		return nil
	})
	return out, err
}

func (s *CSVSource) LoadPatternSets(context.Context) ([]domain.PatternSet, error) {
	path := filepath.Join(s.dir, patternSetFile)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &domain.DataLoadError{Source: path, Err: err}
	}

	var sets []domain.PatternSet
	if err := json.Unmarshal(raw, &sets); err != nil {
		return nil, &domain.DataLoadError{Source: path, Err: err}
	}
	for _, ps := range sets {
		if err := ps.Validate(); err != nil {
			return nil, err
		}
	}
	return sets, nil
}

// Bundle is the result of loading every input file in one pass.
type Bundle struct {
	Sales        []domain.Transaction
	Stock        []domain.StockSnapshot
	StockHistory []domain.StockSnapshot
	Forecasts    []domain.ForecastRecord
	PatternSets  []domain.PatternSet
	SizeAliases  Aliases
	ColorAliases Aliases
}

// LoadAll loads the independent input files in parallel with a bounded worker
// pool. Each file load runs in isolation and returns a completed slice.
func (s *CSVSource) LoadAll(ctx context.Context, r TimeRange) (*Bundle, error) {
	bundle := &Bundle{}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	g.Go(func() error {
		var err error
		bundle.Sales, err = s.LoadSalesData(ctx, r)
		return err
	})
	g.Go(func() error {
		var err error
		bundle.Stock, err = s.LoadStockData(ctx, nil)
		return err
	})
	g.Go(func() error {
		var err error
		bundle.StockHistory, err = s.LoadStockHistory(ctx, r)
		return err
	})
	g.Go(func() error {
		var err error
		bundle.Forecasts, err = s.LoadForecastData(ctx, nil)
		return err
	})
	g.Go(func() error {
		var err error
		bundle.PatternSets, err = s.LoadPatternSets(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		bundle.SizeAliases, err = s.LoadSizeAliases(ctx)
		if err != nil {
			return err
		}
		bundle.ColorAliases, err = s.LoadColorAliases(ctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	logger.Log.Info().
		Int("sales", len(bundle.Sales)).
		Int("stock", len(bundle.Stock)).
		Int("forecasts", len(bundle.Forecasts)).
		Msg("loaded csv inputs")
	return bundle, nil
}

var _ DataSource = (*CSVSource)(nil)
