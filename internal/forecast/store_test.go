// internal/forecast/store_test.go
package forecast

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/apparelworks/demandplan/internal/domain"
)

func trainRidgeForTest(t *testing.T) *TrainedModel {
	t.Helper()
	series := make([]float64, 30)
	months := monthsFrom(1, 30)
	for i := range series {
		series[i] = 50 + 2*float64(i)
	}
	fs := BuildFeatures(series, months, domain.TypeRegular, 0.4)
	reg := NewRidge()
	if err := reg.Fit(fs.X, fs.Y); err != nil {
		t.Fatalf("fit ridge: %v", err)
	}
	return &TrainedModel{
		Meta: domain.TrainedModelMeta{
			EntityID:     "SHIRT-BLK-M",
			EntityType:   domain.EntitySKU,
			ModelType:    "ridge",
			CVScore:      4.2,
			CVMetric:     "mape",
			FeatureNames: FeatureNames,
			ProductType:  domain.TypeRegular,
			CV:           0.4,
			TrainedAt:    time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		},
		Model: reg,
	}
}

func TestFileModelStoreRoundTrip(t *testing.T) {
	store, err := NewFileModelStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileModelStore: %v", err)
	}
	ctx := context.Background()
	m := trainRidgeForTest(t)

	if err := store.Save(ctx, m); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load(ctx, domain.EntitySKU, "SHIRT-BLK-M")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Meta.ModelType != "ridge" || loaded.Meta.CVScore != 4.2 {
		t.Errorf("meta = %+v", loaded.Meta)
	}

	// The restored model must predict identically to the original.
	row := predictionRow([]float64{100, 102, 104, 106}, 5, domain.TypeRegular, 0.4)
	if got, want := loaded.Model.Predict(row), m.Model.Predict(row); math.Abs(got-want) > 1e-9 {
		t.Errorf("restored prediction = %v, want %v", got, want)
	}
}

func TestFileModelStoreLastWriterWins(t *testing.T) {
	store, err := NewFileModelStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileModelStore: %v", err)
	}
	ctx := context.Background()

	first := trainRidgeForTest(t)
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save first: %v", err)
	}

	second := trainRidgeForTest(t)
	second.Meta.CVScore = 9.9
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("Save second: %v", err)
	}

	loaded, err := store.Load(ctx, domain.EntitySKU, "SHIRT-BLK-M")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Meta.CVScore != 9.9 {
		t.Errorf("cv score = %v, want the second writer's 9.9", loaded.Meta.CVScore)
	}

	metas, err := store.List(ctx, domain.EntitySKU)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(metas) != 1 {
		t.Errorf("got %d metas, want 1", len(metas))
	}
}

func TestFileModelStoreDelete(t *testing.T) {
	store, err := NewFileModelStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileModelStore: %v", err)
	}
	ctx := context.Background()

	if err := store.Save(ctx, trainRidgeForTest(t)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Delete(ctx, domain.EntitySKU, "SHIRT-BLK-M"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Load(ctx, domain.EntitySKU, "SHIRT-BLK-M"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Load after delete = %v, want not found", err)
	}

	// Deleting a missing model is a no-op.
	if err := store.Delete(ctx, domain.EntitySKU, "NEVER-SAW-IT"); err != nil {
		t.Errorf("Delete missing: %v", err)
	}
}

func TestFileModelStoreListEmptyType(t *testing.T) {
	store, err := NewFileModelStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileModelStore: %v", err)
	}
	metas, err := store.List(context.Background(), domain.EntityModel)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(metas) != 0 {
		t.Errorf("got %d metas, want 0", len(metas))
	}
}
