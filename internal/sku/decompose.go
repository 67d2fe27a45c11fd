// internal/sku/decompose.go
package sku

import (
	"fmt"
	"strings"

	"github.com/apparelworks/demandplan/internal/domain"
)

// Parts holds the decomposed components of a SKU. A field is empty when the
// SKU is too short to carry it.
type Parts struct {
	Model string
	Color string
	Size  string
}

// Decompose splits a SKU into model (chars 0-4), color (5-6) and size (7-8).
// Short identifiers yield partial results; strict callers use DecomposeStrict.
func Decompose(s string) Parts {
	s = strings.ToUpper(strings.TrimSpace(s))

	p := Parts{}
	if len(s) >= 5 {
		p.Model = s[0:5]
	}
	if len(s) >= 7 {
		p.Color = s[5:7]
	}
	if len(s) >= 9 {
		p.Size = s[7:9]
	}
	return p
}

// DecomposeStrict is like Decompose but fails when the SKU cannot supply all
// three components.
func DecomposeStrict(s string) (Parts, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(s))
	if len(trimmed) < 9 {
		return Parts{}, fmt.Errorf("%w: %q is shorter than 9 characters", domain.ErrInvalidSKU, s)
	}
	return Decompose(trimmed), nil
}

// Model returns the 5-char model prefix, or the whole string when shorter.
// It is the entity id used by the model-level analysis view.
func Model(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) < 5 {
		return s
	}
	return s[0:5]
}

// EntityID maps a SKU to the entity id for the requested view.
func EntityID(s string, entityType domain.EntityType) string {
	if entityType == domain.EntityModel {
		return Model(s)
	}
	return strings.ToUpper(strings.TrimSpace(s))
}
