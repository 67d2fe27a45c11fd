package classify

import (
	"testing"
	"time"

	"github.com/apparelworks/demandplan/internal/config"
	"github.com/apparelworks/demandplan/internal/domain"
)

var now = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func newClassifier() *Classifier {
	return New(config.DefaultPlanning()).WithClock(func() time.Time { return now })
}

func summary(cv float64, firstSaleDaysAgo int) domain.SkuSummary {
	return domain.SkuSummary{
		EntityID:      "AB12345XS",
		CV:            cv,
		FirstSaleDate: now.AddDate(0, 0, -firstSaleDaysAgo),
	}
}

func TestClassifyRuleOrder(t *testing.T) {
	c := newClassifier()

	tests := []struct {
		name    string
		cv      float64
		daysAgo int
		want    domain.ProductType
	}{
		{"young sku is new regardless of cv", 0.1, 100, domain.TypeNew},
		{"young high-cv sku is still new", 2.0, 200, domain.TypeNew},
		{"low cv is basic", 0.10, 400, domain.TypeBasic},
		{"cv just below basic threshold", 0.59, 400, domain.TypeBasic},
		{"cv between thresholds is regular", 0.8, 400, domain.TypeRegular},
		{"cv at seasonal threshold is regular", 1.0, 400, domain.TypeRegular},
		{"high cv is seasonal", 1.4, 400, domain.TypeSeasonal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(summary(tt.cv, tt.daysAgo))
			if got != tt.want {
				t.Errorf("Classify(cv=%v, %dd old) = %v, want %v", tt.cv, tt.daysAgo, got, tt.want)
			}
		})
	}
}

func TestClassifySingleObservation(t *testing.T) {
	// Single data point means std dev is unknown and cv = 0: basic unless new.
	c := newClassifier()
	s := summary(0, 400)
	if got := c.Classify(s); got != domain.TypeBasic {
		t.Errorf("single-observation sku = %v, want basic", got)
	}
}

func TestClassifyAllIsDeterministic(t *testing.T) {
	c := newClassifier()
	in := []domain.SkuSummary{summary(0.1, 400), summary(1.5, 400), summary(0.8, 30)}

	first := c.ClassifyAll(append([]domain.SkuSummary(nil), in...))
	second := c.ClassifyAll(append([]domain.SkuSummary(nil), in...))

	for i := range first {
		if first[i].Type == "" {
			t.Fatalf("row %d received no type", i)
		}
		if first[i].Type != second[i].Type {
			t.Errorf("row %d differs across runs: %v vs %v", i, first[i].Type, second[i].Type)
		}
	}
}
