package datasource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apparelworks/demandplan/internal/domain"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestNormalizeColumnName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Quantity", "quantity"},
		{"  Total Amount ", "total_amount"},
		{"ILOSC", "ilosc"},
		{"order-id", "order_id"},
		{"\ufeffsku", "sku"}, // BOM-prefixed header
	}
	for _, tc := range cases {
		if got := normalizeColumnName(tc.in); got != tc.want {
			t.Errorf("normalizeColumnName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestResolveHeaderAliases(t *testing.T) {
	cols := resolveHeader([]string{"Data", "KOD", "Ilosc", "Cena", "Wartosc"})

	for canonical, want := range map[string]int{
		"date": 0, "sku": 1, "quantity": 2, "unit_price": 3, "total_amount": 4,
	} {
		if got, ok := cols[canonical]; !ok || got != want {
			t.Errorf("column %s resolved to %d (ok=%v), want %d", canonical, got, ok, want)
		}
	}
}

func TestLoadSalesData(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, salesFile,
		"order_id,date,sku,ilosc,unit_price,total_amount\n"+
			"A-1,2025-03-10,tshrt-blk-m,3,49.99,149.97\n"+
			"A-2,2025-04-02,TSHRT-WHT-L,1,59.90,59.90\n"+
			"A-3,2024-12-31,TSHRT-BLK-M,2,49.99,99.98\n")

	src := NewCSVSource(dir, 2)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	txs, err := src.LoadSalesData(context.Background(), TimeRange{Start: &start})
	if err != nil {
		t.Fatalf("LoadSalesData: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("got %d transactions, want 2 (out-of-range row filtered)", len(txs))
	}
	if txs[0].SKU != "TSHRT-BLK-M" {
		t.Errorf("sku not uppercased: %q", txs[0].SKU)
	}
	if txs[0].Quantity != 3 || txs[0].UnitPrice != 49.99 {
		t.Errorf("unexpected first row: %+v", txs[0])
	}
}

func TestLoadSalesDataRejectsAmountMismatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, salesFile,
		"date,sku,quantity,unit_price,total_amount\n"+
			"2025-03-10,SKU-1,3,49.99,140.00\n")

	src := NewCSVSource(dir, 1)
	_, err := src.LoadSalesData(context.Background(), TimeRange{})
	if err == nil {
		t.Fatal("expected validation error for amount mismatch")
	}
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	if verr.Field != "total_amount" {
		t.Errorf("error field = %q, want total_amount", verr.Field)
	}
}

func TestLoadSalesDataAcceptsRoundingDrift(t *testing.T) {
	dir := t.TempDir()
	// 3 x 33.333 = 99.999; reported total 100.00 is within a cent.
	writeFile(t, dir, salesFile,
		"date,sku,quantity,unit_price,total_amount\n"+
			"2025-03-10,SKU-1,3,33.333,100.00\n")

	src := NewCSVSource(dir, 1)
	txs, err := src.LoadSalesData(context.Background(), TimeRange{})
	if err != nil {
		t.Fatalf("LoadSalesData: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("got %d transactions, want 1", len(txs))
	}
}

func TestLoadSalesDataRejectsNonPositiveQuantity(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, salesFile,
		"date,sku,quantity\n2025-03-10,SKU-1,0\n")

	src := NewCSVSource(dir, 1)
	if _, err := src.LoadSalesData(context.Background(), TimeRange{}); err == nil {
		t.Fatal("expected validation error for zero quantity")
	}
}

func TestLoadStockDataPicksLatestPerSKU(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, stockFile,
		"sku,snapshot_date,stock,is_active\n"+
			"SKU-1,2025-05-01,10,true\n"+
			"SKU-1,2025-06-01,4,true\n"+
			"SKU-1,2025-07-01,2,true\n"+
			"SKU-2,2025-06-15,7,false\n")

	src := NewCSVSource(dir, 1)
	asOf := time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)
	snaps, err := src.LoadStockData(context.Background(), &asOf)
	if err != nil {
		t.Fatalf("LoadStockData: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("got %d snapshots, want 2", len(snaps))
	}
	byID := make(map[string]domain.StockSnapshot)
	for _, s := range snaps {
		byID[s.SKU] = s
	}
	if got := byID["SKU-1"].AvailableStock; got != 4 {
		t.Errorf("SKU-1 stock = %v, want 4 (2025-06-01 snapshot)", got)
	}
	if byID["SKU-2"].IsActive {
		t.Error("SKU-2 should be inactive")
	}
}

func TestLoadAliasesOptionalFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, sizeAliasFile, "alias,canonical\nXXL,2XL\nxl,XL\n")

	src := NewCSVSource(dir, 1)
	sizes, err := src.LoadSizeAliases(context.Background())
	if err != nil {
		t.Fatalf("LoadSizeAliases: %v", err)
	}
	if got := sizes.Resolve("XXL"); got != "2XL" {
		t.Errorf("Resolve(XXL) = %q, want 2XL", got)
	}
	if got := sizes.Resolve("M"); got != "M" {
		t.Errorf("unmapped value must pass through, got %q", got)
	}

	// Missing color alias file is not an error.
	colors, err := src.LoadColorAliases(context.Background())
	if err != nil {
		t.Fatalf("LoadColorAliases on missing file: %v", err)
	}
	if len(colors) != 0 {
		t.Errorf("expected empty aliases, got %v", colors)
	}
}

func TestLoadForecastDataRejectsBackwardsDates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, forecastFile,
		"generated_date,forecast_date,sku,forecast_qty\n"+
			"2025-06-01,2025-05-01,SKU-1,12\n")

	src := NewCSVSource(dir, 1)
	if _, err := src.LoadForecastData(context.Background(), nil); err == nil {
		t.Fatal("expected error when forecast date precedes generation date")
	}
}

func TestLoadAll(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, salesFile,
		"date,sku,quantity\n2025-03-10,SKU-1,3\n2025-03-11,SKU-2,1\n")
	writeFile(t, dir, stockFile,
		"sku,snapshot_date,stock\nSKU-1,2025-03-12,5\n")
	writeFile(t, dir, stockHistoryFile,
		"sku,snapshot_date,stock\nSKU-1,2025-03-01,9\nSKU-1,2025-03-12,5\n")
	writeFile(t, dir, forecastFile,
		"generated_date,forecast_date,sku,forecast_qty\n2025-03-01,2025-04-01,SKU-1,8\n")
	writeFile(t, dir, patternSetFile,
		`[{"id":"ps1","name":"tee","size_names":["S","M"],"patterns":[{"id":"p1","sizes":{"S":1,"M":1}}]}]`)

	src := NewCSVSource(dir, 4)
	bundle, err := src.LoadAll(context.Background(), TimeRange{})
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(bundle.Sales) != 2 {
		t.Errorf("sales = %d, want 2", len(bundle.Sales))
	}
	if len(bundle.Stock) != 1 || len(bundle.StockHistory) != 2 {
		t.Errorf("stock = %d history = %d, want 1 and 2", len(bundle.Stock), len(bundle.StockHistory))
	}
	if len(bundle.Forecasts) != 1 || len(bundle.PatternSets) != 1 {
		t.Errorf("forecasts = %d patterns = %d, want 1 and 1", len(bundle.Forecasts), len(bundle.PatternSets))
	}
}
