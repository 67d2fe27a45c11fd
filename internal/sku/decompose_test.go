package sku

import (
	"errors"
	"testing"

	"github.com/apparelworks/demandplan/internal/domain"
)

func TestDecompose(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		model string
		color string
		size  string
	}{
		{"full sku", "AB12345XS", "AB123", "45", "XS"},
		{"longer sku keeps first nine", "AB12345XS001", "AB123", "45", "XS"},
		{"model and color only", "AB12345", "AB123", "45", ""},
		{"model only", "AB123", "AB123", "", ""},
		{"too short", "AB1", "", "", ""},
		{"lowercase is normalized", "ab12345xs", "AB123", "45", "XS"},
		{"whitespace trimmed", "  AB12345XS ", "AB123", "45", "XS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Decompose(tt.in)
			if p.Model != tt.model || p.Color != tt.color || p.Size != tt.size {
				t.Errorf("Decompose(%q) = %+v, want model=%q color=%q size=%q",
					tt.in, p, tt.model, tt.color, tt.size)
			}
		})
	}
}

func TestDecomposeStrict(t *testing.T) {
	if _, err := DecomposeStrict("AB12345XS"); err != nil {
		t.Fatalf("unexpected error for valid sku: %v", err)
	}

	_, err := DecomposeStrict("AB12345")
	if !errors.Is(err, domain.ErrInvalidSKU) {
		t.Errorf("expected ErrInvalidSKU, got %v", err)
	}
}

func TestEntityID(t *testing.T) {
	if got := EntityID("AB12345XS", domain.EntityModel); got != "AB123" {
		t.Errorf("model view entity id = %q, want AB123", got)
	}
	if got := EntityID("ab12345xs", domain.EntitySKU); got != "AB12345XS" {
		t.Errorf("sku view entity id = %q, want AB12345XS", got)
	}
	if got := EntityID("AB1", domain.EntityModel); got != "AB1" {
		t.Errorf("short sku model = %q, want AB1", got)
	}
}
