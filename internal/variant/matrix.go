package variant

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fekuna/omnipos-stock-ledger/internal/inventory"
	"github.com/fekuna/omnipos-stock-ledger/internal/model"
)

const DefaultMaxCombinations = 10000

// Matrix expands option axes into concrete variant identities.
type Matrix struct {
	maxCombinations int
}

func NewMatrix(maxCombinations int) *Matrix {
	if maxCombinations <= 0 {
		maxCombinations = DefaultMaxCombinations
	}
	return &Matrix{maxCombinations: maxCombinations}
}

// Expand returns the cartesian product of axes. Axis order and option order
// are preserved, the last axis varying fastest. No axes means no combinations;
// treating such a product as a single default variant is the caller's call.
func (m *Matrix) Expand(axes []model.VariantOptionAxis) ([]model.Combination, error) {
	if len(axes) == 0 {
		return []model.Combination{}, nil
	}
	if err := validateAxes(axes); err != nil {
		return nil, err
	}

	total := 1
	for _, axis := range axes {
		total *= len(axis.Options)
		if total > m.maxCombinations {
			return nil, fmt.Errorf("%w: more than %d combinations", inventory.ErrTooManyCombinations, m.maxCombinations)
		}
	}

	out := make([]model.Combination, 0, total)
	idx := make([]int, len(axes))
	for {
		combo := make(model.Combination, len(axes))
		for i, axis := range axes {
			combo[i] = model.OptionChoice{Axis: axis.Name, Option: axis.Options[idx[i]]}
		}
		out = append(out, combo)

		// odometer step, last axis first
		i := len(axes) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(axes[i].Options) {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return out, nil
		}
	}
}

// Build expands axes into variants with stable SKUs derived from baseSKU.
func (m *Matrix) Build(productID, baseSKU string, axes []model.VariantOptionAxis) ([]model.Variant, error) {
	if productID == "" || baseSKU == "" {
		return nil, fmt.Errorf("%w: product id and base sku are required", inventory.ErrInvalidInput)
	}
	combos, err := m.Expand(axes)
	if err != nil {
		return nil, err
	}

	variants := make([]model.Variant, len(combos))
	seen := make(map[string]int, len(combos))
	for i, combo := range combos {
		sku := SKU(baseSKU, combo)
		if prev, ok := seen[sku]; ok {
			return nil, fmt.Errorf("%w: combinations %d and %d both map to sku %s", inventory.ErrInvalidInput, prev, i, sku)
		}
		seen[sku] = i
		variants[i] = model.Variant{
			ID:        productID + ":" + sku,
			ProductID: productID,
			SKU:       sku,
			Position:  i,
			Options:   combo,
		}
	}
	return variants, nil
}

var skuUnsafe = regexp.MustCompile(`[^A-Z0-9]+`)

// SKU joins the base with each chosen option, upper-cased and stripped of
// anything but letters and digits: ("TEE", S/Red) -> "TEE-S-RED".
func SKU(base string, combo model.Combination) string {
	parts := []string{base}
	for _, c := range combo {
		parts = append(parts, skuUnsafe.ReplaceAllString(strings.ToUpper(c.Option), ""))
	}
	return strings.Join(parts, "-")
}

func validateAxes(axes []model.VariantOptionAxis) error {
	names := make(map[string]struct{}, len(axes))
	for _, axis := range axes {
		if strings.TrimSpace(axis.Name) == "" {
			return fmt.Errorf("%w: axis name is required", inventory.ErrInvalidInput)
		}
		if _, dup := names[axis.Name]; dup {
			return fmt.Errorf("%w: duplicate axis %q", inventory.ErrInvalidInput, axis.Name)
		}
		names[axis.Name] = struct{}{}

		if len(axis.Options) == 0 {
			return fmt.Errorf("%w: axis %q has no options", inventory.ErrInvalidInput, axis.Name)
		}
		opts := make(map[string]struct{}, len(axis.Options))
		for _, o := range axis.Options {
			if _, dup := opts[o]; dup {
				return fmt.Errorf("%w: axis %q repeats option %q", inventory.ErrInvalidInput, axis.Name, o)
			}
			opts[o] = struct{}{}
		}
	}
	return nil
}
