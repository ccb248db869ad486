package cart

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"
)

// ItemRecord is the plain-data form of a LineItem as it lives in the session.
type ItemRecord struct {
	VariantID string         `json:"variant_id"`
	Image     string         `json:"image"`
	Name      string         `json:"name"`
	Quantity  int            `json:"quantity"`
	Price     string         `json:"price"`
	Data      map[string]any `json:"data"`
}

// Snapshot is the serialized cart, keyed by stringified variant id.
type Snapshot map[string]ItemRecord

var recordFields = []string{"variant_id", "image", "name", "quantity", "price", "data"}

// decodeSnapshot turns whatever the session holds under the cart key into
// line items. Values written by this process are typed snapshots; values
// reloaded from a persisted session arrive as raw JSON or generic maps.
func decodeSnapshot(v any) (map[string]*LineItem, error) {
	var raw []byte
	switch s := v.(type) {
	case Snapshot:
		return itemsFromRecords(s)
	case map[string]ItemRecord:
		return itemsFromRecords(s)
	case json.RawMessage:
		raw = s
	case []byte:
		raw = s
	case string:
		raw = []byte(s)
	case nil:
		return nil, fmt.Errorf("%w: cart value is null", ErrDecode)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		raw = b
	}

	var entries map[string]map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if entries == nil {
		return nil, fmt.Errorf("%w: cart value is null", ErrDecode)
	}

	items := make(map[string]*LineItem, len(entries))
	for key, fields := range entries {
		it, err := decodeRecord(fields)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %q: %v", ErrDecode, key, err)
		}
		if err := addDecoded(items, key, it); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func itemsFromRecords(s map[string]ItemRecord) (map[string]*LineItem, error) {
	items := make(map[string]*LineItem, len(s))
	for key, rec := range s {
		price, err := ParsePrice(rec.Price)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %q: %v", ErrDecode, key, err)
		}
		it := NewLineItem(rec.VariantID, rec.Image, rec.Name, rec.Quantity, price, maps.Clone(rec.Data))
		if err := addDecoded(items, key, it); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// addDecoded indexes a loaded item by its own variant id. Stored lines must
// hold at least one unit and name distinct variants.
func addDecoded(items map[string]*LineItem, key string, it *LineItem) error {
	if it.Quantity < 1 {
		return fmt.Errorf("%w: entry %q: quantity %d below 1", ErrDecode, key, it.Quantity)
	}
	if _, dup := items[it.VariantID]; dup {
		return fmt.Errorf("%w: entry %q: variant %q stored twice", ErrDecode, key, it.VariantID)
	}
	items[it.VariantID] = it
	return nil
}

func decodeRecord(fields map[string]json.RawMessage) (*LineItem, error) {
	for _, name := range recordFields {
		if _, ok := fields[name]; !ok {
			return nil, fmt.Errorf("missing field %q", name)
		}
	}

	variantID, err := decodeVariantID(fields["variant_id"])
	if err != nil {
		return nil, err
	}
	var image, name *string
	if err := json.Unmarshal(fields["image"], &image); err != nil {
		return nil, fmt.Errorf("image: %v", err)
	}
	if err := json.Unmarshal(fields["name"], &name); err != nil {
		return nil, fmt.Errorf("name: %v", err)
	}
	quantity, err := decodeQuantity(fields["quantity"])
	if err != nil {
		return nil, err
	}
	var rawPrice any
	if err := json.Unmarshal(fields["price"], &rawPrice); err != nil {
		return nil, fmt.Errorf("price: %v", err)
	}
	price, err := ParsePrice(rawPrice)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal(fields["data"], &data); err != nil {
		return nil, fmt.Errorf("data: %v", err)
	}

	return NewLineItem(variantID, deref(image), deref(name), quantity, price, data), nil
}

// decodeVariantID accepts string and numeric ids; numbers keep their JSON text.
func decodeVariantID(raw json.RawMessage) (string, error) {
	var id any
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", fmt.Errorf("variant_id: %v", err)
	}
	switch v := id.(type) {
	case string:
		return v, nil
	case float64:
		return strings.TrimSpace(string(raw)), nil
	default:
		return "", fmt.Errorf("variant_id: unsupported value %s", raw)
	}
}

func decodeQuantity(raw json.RawMessage) (int, error) {
	var q any
	if err := json.Unmarshal(raw, &q); err != nil {
		return 0, fmt.Errorf("quantity: %v", err)
	}
	switch v := q.(type) {
	case float64:
		if math.IsNaN(v) || v > math.MaxInt32 || v < math.MinInt32 {
			return 0, fmt.Errorf("quantity: out of range %v", v)
		}
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("quantity: %v", err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("quantity: unsupported value %s", raw)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
