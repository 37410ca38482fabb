// Package discount resolves promotional codes and applies them to a subtotal.
// Every caller that computes a total goes through the same Resolver.
package discount

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Kind string

const (
	Percentage Kind = "percentage"
	Fixed      Kind = "fixed"
)

type Discount struct {
	Code  string          `json:"code"`
	Kind  Kind            `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

//go:embed codes.yaml
var defaultTable []byte

// Resolver is an immutable code table.
type Resolver struct {
	codes map[string]Discount
}

type tableFile struct {
	Codes []struct {
		Code  string `yaml:"code"`
		Kind  string `yaml:"kind"`
		Value string `yaml:"value"`
	} `yaml:"codes"`
}

// Default returns the resolver built from the embedded code table.
func Default() *Resolver {
	r, err := Parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("discount: embedded table: %v", err))
	}
	return r
}

// Parse builds a resolver from a YAML table.
func Parse(data []byte) (*Resolver, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse discount table: %w", err)
	}

	codes := make(map[string]Discount, len(f.Codes))
	for _, c := range f.Codes {
		code := normalize(c.Code)
		if code == "" {
			return nil, fmt.Errorf("discount table: empty code")
		}
		value, err := decimal.NewFromString(c.Value)
		if err != nil {
			return nil, fmt.Errorf("discount %s: value: %w", code, err)
		}
		if value.IsNegative() {
			return nil, fmt.Errorf("discount %s: negative value", code)
		}
		kind := Kind(strings.ToLower(c.Kind))
		switch kind {
		case Percentage:
			if value.GreaterThan(decimal.NewFromInt(100)) {
				return nil, fmt.Errorf("discount %s: percentage above 100", code)
			}
		case Fixed:
		default:
			return nil, fmt.Errorf("discount %s: unknown kind %q", code, c.Kind)
		}
		if _, dup := codes[code]; dup {
			return nil, fmt.Errorf("discount %s: duplicate code", code)
		}
		codes[code] = Discount{Code: code, Kind: kind, Value: value}
	}
	return &Resolver{codes: codes}, nil
}

// Resolve looks a code up case-insensitively.
func (r *Resolver) Resolve(code string) (Discount, bool) {
	d, ok := r.codes[normalize(code)]
	return d, ok
}

// Apply returns the amount taken off subtotal. It never exceeds subtotal.
func Apply(subtotal decimal.Decimal, d Discount) decimal.Decimal {
	if !subtotal.IsPositive() {
		return decimal.Zero
	}
	var off decimal.Decimal
	switch d.Kind {
	case Percentage:
		off = subtotal.Mul(d.Value).Div(decimal.NewFromInt(100))
	case Fixed:
		off = d.Value
	}
	return decimal.Min(off, subtotal)
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
