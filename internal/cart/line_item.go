package cart

import (
	"fmt"
	"maps"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// LineItem is one product variant held in a cart.
type LineItem struct {
	VariantID string
	Image     string
	Name      string
	Quantity  int
	Price     decimal.Decimal
	Data      map[string]any
}

// NewLineItem builds a line item. A nil data map is replaced with a fresh one
// so items never share metadata by accident.
func NewLineItem(variantID, image, name string, quantity int, price decimal.Decimal, data map[string]any) *LineItem {
	if data == nil {
		data = map[string]any{}
	}
	return &LineItem{
		VariantID: variantID,
		Image:     image,
		Name:      name,
		Quantity:  quantity,
		Price:     price,
		Data:      data,
	}
}

func (it *LineItem) String() string {
	return fmt.Sprintf("Product variant (%s)", it.VariantID)
}

// Subtotal is price * quantity.
func (it *LineItem) Subtotal() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// ToPlainData returns the record stored in the session for this item. The
// price keeps its scale ("10.00" stays "10.00") and data is copied.
func (it *LineItem) ToPlainData() ItemRecord {
	return ItemRecord{
		VariantID: it.VariantID,
		Image:     it.Image,
		Name:      it.Name,
		Quantity:  it.Quantity,
		Price:     it.Price.StringFixed(max(0, -it.Price.Exponent())),
		Data:      maps.Clone(it.Data),
	}
}

// ParsePrice coerces strings and numbers into a fixed-point price. Floats go
// through their shortest decimal text, so 10.1 stays 10.1.
func ParsePrice(v any) (decimal.Decimal, error) {
	switch p := v.(type) {
	case decimal.Decimal:
		return p, nil
	case *decimal.Decimal:
		if p == nil {
			return decimal.Decimal{}, ErrMissingPrice
		}
		return *p, nil
	case string:
		d, err := decimal.NewFromString(p)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidPrice, p)
		}
		return d, nil
	case int:
		return decimal.NewFromInt(int64(p)), nil
	case int32:
		return decimal.NewFromInt32(p), nil
	case int64:
		return decimal.NewFromInt(p), nil
	case float32:
		return parseFloatPrice(float64(p), 32)
	case float64:
		return parseFloatPrice(p, 64)
	case nil:
		return decimal.Decimal{}, ErrMissingPrice
	default:
		return decimal.Decimal{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidPrice, v)
	}
}

func parseFloatPrice(f float64, bits int) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Decimal{}, fmt.Errorf("%w: %v", ErrInvalidPrice, f)
	}
	return decimal.RequireFromString(strconv.FormatFloat(f, 'f', -1, bits)), nil
}
