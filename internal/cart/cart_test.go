package cart

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
)

type fakeSession struct {
	values   map[string]any
	modified bool
	sets     int
}

func newFakeSession() *fakeSession {
	return &fakeSession{values: map[string]any{}}
}

func (s *fakeSession) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s *fakeSession) Set(key string, value any) {
	s.values[key] = value
	s.sets++
}

func (s *fakeSession) Contains(key string) bool {
	_, ok := s.values[key]
	return ok
}

func (s *fakeSession) MarkModified() { s.modified = true }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newCart(t *testing.T, s Session) *Cart {
	t.Helper()
	c, err := New(s, "")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNewEmptySession(t *testing.T) {
	t.Parallel()

	s := newFakeSession()
	c := newCart(t, s)
	if !c.IsEmpty() {
		t.Fatalf("expected empty cart")
	}
	if c.SessionKey() != DefaultSessionKey {
		t.Fatalf("session key = %q, want %q", c.SessionKey(), DefaultSessionKey)
	}
	if s.modified || s.sets != 0 {
		t.Fatalf("construction must not write to the session")
	}
	if !c.Total().IsZero() {
		t.Fatalf("total = %s, want 0", c.Total())
	}
}

func TestAddNewVariant(t *testing.T) {
	t.Parallel()

	s := newFakeSession()
	c := newCart(t, s)
	if err := c.Add("v1", "shirt.png", "Shirt", WithPrice(dec("10.00")), WithQuantity(2)); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if c.Count() != 2 {
		t.Fatalf("count = %d, want 2", c.Count())
	}
	if c.UniqueCount() != 1 {
		t.Fatalf("unique count = %d, want 1", c.UniqueCount())
	}
	if !c.Total().Equal(dec("20.00")) {
		t.Fatalf("total = %s, want 20.00", c.Total())
	}
	if !s.modified {
		t.Fatalf("expected session marked modified")
	}
	stored, ok := s.values[DefaultSessionKey].(Snapshot)
	if !ok {
		t.Fatalf("session value = %T, want Snapshot", s.values[DefaultSessionKey])
	}
	want := ItemRecord{VariantID: "v1", Image: "shirt.png", Name: "Shirt", Quantity: 2, Price: "10.00", Data: map[string]any{}}
	if !reflect.DeepEqual(stored["v1"], want) {
		t.Fatalf("stored record = %+v, want %+v", stored["v1"], want)
	}
}

func TestAddAccumulatesQuantityOnly(t *testing.T) {
	t.Parallel()

	c := newCart(t, newFakeSession())
	if err := c.Add("v1", "a.png", "Shirt", WithPrice(dec("10.00")), WithQuantity(2), WithData(map[string]any{"size": "M"})); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := c.Add("v1", "b.png", "Other", WithQuantity(3), WithPrice(dec("99")), WithData(map[string]any{"size": "L"})); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	it := c.Items()[0]
	if it.Quantity != 5 {
		t.Fatalf("quantity = %d, want 5", it.Quantity)
	}
	if !it.Price.Equal(dec("10.00")) || it.Name != "Shirt" || it.Image != "a.png" || it.Data["size"] != "M" {
		t.Fatalf("item changed on re-add: %+v", it)
	}
	if !c.Total().Equal(dec("50.00")) {
		t.Fatalf("total = %s, want 50.00", c.Total())
	}
}

func TestAddSumOfQuantities(t *testing.T) {
	t.Parallel()

	c := newCart(t, newFakeSession())
	want := 0
	for _, q := range []int{1, 4, 2, 7} {
		if err := c.Add("v9", "", "Mug", WithPrice(dec("3.10")), WithQuantity(q)); err != nil {
			t.Fatalf("Add(%d) error = %v", q, err)
		}
		want += q
	}
	if c.Count() != want {
		t.Fatalf("count = %d, want %d", c.Count(), want)
	}
}

func TestAddIncreasesTotalByPriceTimesQuantity(t *testing.T) {
	t.Parallel()

	c := newCart(t, newFakeSession())
	_ = c.Add("a", "", "A", WithPrice(dec("1.10")))
	before := c.Total()
	if err := c.Add("b", "", "B", WithPrice(dec("0.10")), WithQuantity(3)); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if got := c.Total().Sub(before); !got.Equal(dec("0.30")) {
		t.Fatalf("total delta = %s, want 0.30", got)
	}
}

func TestAddRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts []AddOption
		want error
	}{
		{name: "zero quantity", opts: []AddOption{WithPrice(dec("1")), WithQuantity(0)}, want: ErrInvalidQuantity},
		{name: "negative quantity", opts: []AddOption{WithPrice(dec("1")), WithQuantity(-2)}, want: ErrInvalidQuantity},
		{name: "missing price", opts: nil, want: ErrMissingPrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFakeSession()
			c := newCart(t, s)
			err := c.Add("v2", "", "Hat", tt.opts...)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Add() error = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("expected invalid argument, got %v", err)
			}
			if !c.IsEmpty() {
				t.Fatalf("expected cart to stay empty")
			}
			if s.modified || s.sets != 0 {
				t.Fatalf("failed add must not touch the session")
			}
		})
	}
}

func TestAddDataIsNotShared(t *testing.T) {
	t.Parallel()

	c := newCart(t, newFakeSession())
	_ = c.Add("a", "", "A", WithPrice(dec("1")))
	_ = c.Add("b", "", "B", WithPrice(dec("1")))
	c.Items()[0].Data["gift"] = true
	if _, ok := c.Items()[1].Data["gift"]; ok {
		t.Fatalf("default data map shared between items")
	}

	data := map[string]any{"engraving": "hi"}
	_ = c.Add("c", "", "C", WithPrice(dec("1")), WithData(data))
	data["engraving"] = "changed"
	for _, it := range c.Items() {
		if it.VariantID == "c" && it.Data["engraving"] != "hi" {
			t.Fatalf("caller's data map aliased into the cart")
		}
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()

	s := newFakeSession()
	c := newCart(t, s)
	_ = c.Add("v1", "", "Shirt", WithPrice(dec("10")))
	if err := c.Remove("v1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if c.Contains("v1") {
		t.Fatalf("expected v1 removed")
	}
	if snap := s.values[DefaultSessionKey].(Snapshot); len(snap) != 0 {
		t.Fatalf("snapshot = %v, want empty", snap)
	}
}

func TestRemoveMissing(t *testing.T) {
	t.Parallel()

	s := newFakeSession()
	c := newCart(t, s)
	_ = c.Add("v1", "", "Shirt", WithPrice(dec("10")))
	before := s.values[DefaultSessionKey]
	sets := s.sets

	err := c.Remove("nope")
	if !errors.Is(err, ErrItemNotFound) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("Remove() error = %v, want ErrItemNotFound", err)
	}
	if s.sets != sets || !reflect.DeepEqual(s.values[DefaultSessionKey], before) {
		t.Fatalf("failed remove must not touch the session")
	}
	if !c.Contains("v1") || c.UniqueCount() != 1 {
		t.Fatalf("items changed by failed remove")
	}
}

func TestRemoveSingle(t *testing.T) {
	t.Parallel()

	s := newFakeSession()
	c := newCart(t, s)
	_ = c.Add("v1", "", "Shirt", WithPrice(dec("10")), WithQuantity(2))

	c.RemoveSingle("v1")
	if c.Count() != 1 {
		t.Fatalf("count = %d, want 1", c.Count())
	}
	c.RemoveSingle("v1")
	if c.Contains("v1") {
		t.Fatalf("expected last unit to drop the line")
	}

	sets := s.sets
	c.RemoveSingle("v1")
	if s.sets != sets {
		t.Fatalf("RemoveSingle on absent variant wrote to the session")
	}
}

func TestSetQuantity(t *testing.T) {
	t.Parallel()

	s := newFakeSession()
	c := newCart(t, s)
	_ = c.Add("v1", "", "Shirt", WithPrice(dec("2.50")))

	if err := c.SetQuantity("v1", 4); err != nil {
		t.Fatalf("SetQuantity() error = %v", err)
	}
	if !c.Total().Equal(dec("10")) {
		t.Fatalf("total = %s, want 10", c.Total())
	}
	if got := s.values[DefaultSessionKey].(Snapshot)["v1"].Quantity; got != 4 {
		t.Fatalf("stored quantity = %d, want 4", got)
	}

	if err := c.SetQuantity("v1", 0); err != nil {
		t.Fatalf("SetQuantity(0) error = %v", err)
	}
	if c.Contains("v1") {
		t.Fatalf("expected zero quantity to remove the item")
	}
}

func TestSetQuantityRejectsNegative(t *testing.T) {
	t.Parallel()

	s := newFakeSession()
	c := newCart(t, s)
	_ = c.Add("v1", "", "Shirt", WithPrice(dec("1")), WithQuantity(3))
	sets := s.sets

	if err := c.SetQuantity("v1", -1); !errors.Is(err, ErrNegativeQuantity) {
		t.Fatalf("SetQuantity() error = %v, want ErrNegativeQuantity", err)
	}
	if c.Count() != 3 || s.sets != sets {
		t.Fatalf("failed SetQuantity changed state")
	}
}

func TestSetQuantityAbsentIsNoop(t *testing.T) {
	t.Parallel()

	s := newFakeSession()
	c := newCart(t, s)
	if err := c.SetQuantity("ghost", 3); err != nil {
		t.Fatalf("SetQuantity() error = %v", err)
	}
	if s.modified || s.sets != 0 {
		t.Fatalf("SetQuantity on absent variant wrote to the session")
	}
}

func TestClear(t *testing.T) {
	t.Parallel()

	s := newFakeSession()
	c := newCart(t, s)
	_ = c.Add("v1", "", "Shirt", WithPrice(dec("1")))
	_ = c.Add("v2", "", "Hat", WithPrice(dec("2")))
	s.modified = false

	c.Clear()
	if !c.IsEmpty() {
		t.Fatalf("expected empty cart")
	}
	if len(c.Snapshot()) != 0 {
		t.Fatalf("snapshot = %v, want empty", c.Snapshot())
	}
	if !s.modified {
		t.Fatalf("expected session marked modified")
	}
	if snap, ok := s.values[DefaultSessionKey].(Snapshot); !ok || len(snap) != 0 {
		t.Fatalf("stored snapshot = %#v, want empty Snapshot", s.values[DefaultSessionKey])
	}
}

func TestProductIDsAndItemsOrder(t *testing.T) {
	t.Parallel()

	c := newCart(t, newFakeSession())
	for _, id := range []string{"c", "a", "b"} {
		_ = c.Add(id, "", id, WithPrice(dec("1")))
	}
	if got := c.ProductIDs(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("product ids = %v", got)
	}
	items := c.Items()
	if len(items) != 3 || items[0].VariantID != "a" || items[2].VariantID != "c" {
		t.Fatalf("items = %v", items)
	}
}

func TestRoundTripThroughSession(t *testing.T) {
	t.Parallel()

	s := newFakeSession()
	c := newCart(t, s)
	_ = c.Add("v1", "shirt.png", "Shirt", WithPrice(dec("19.99")), WithQuantity(2), WithData(map[string]any{"size": "M"}))
	_ = c.Add("42", "mug.png", "Mug", WithPrice(dec("0.1")))

	reloaded := newCart(t, s)
	if !reflect.DeepEqual(reloaded.Snapshot(), c.Snapshot()) {
		t.Fatalf("reloaded snapshot = %+v, want %+v", reloaded.Snapshot(), c.Snapshot())
	}

	// Persisted sessions hand the value back as JSON.
	raw, err := json.Marshal(c.Snapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	js := newFakeSession()
	js.values["cart"] = json.RawMessage(raw)
	fromJSON, err := New(js, "cart")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !reflect.DeepEqual(fromJSON.Snapshot(), c.Snapshot()) {
		t.Fatalf("json snapshot = %+v, want %+v", fromJSON.Snapshot(), c.Snapshot())
	}
	if !fromJSON.Total().Equal(dec("40.08")) {
		t.Fatalf("total = %s, want 40.08", fromJSON.Total())
	}
}

func TestNewDecodesGenericValues(t *testing.T) {
	t.Parallel()

	s := newFakeSession()
	s.values[DefaultSessionKey] = map[string]any{
		"7": map[string]any{
			"variant_id": 7,
			"image":      nil,
			"name":       "Poster",
			"quantity":   "3",
			"price":      12.5,
			"data":       nil,
		},
	}
	c := newCart(t, s)
	it := c.Items()[0]
	if it.VariantID != "7" || it.Quantity != 3 || !it.Price.Equal(dec("12.5")) {
		t.Fatalf("item = %+v", it)
	}
	if it.Data == nil {
		t.Fatalf("expected non-nil data")
	}
}

func TestNewMalformed(t *testing.T) {
	t.Parallel()

	tests := map[string]any{
		"missing price":   json.RawMessage(`{"v1":{"variant_id":"v1","image":"","name":"A","quantity":1,"data":{}}}`),
		"missing data":    json.RawMessage(`{"v1":{"variant_id":"v1","image":"","name":"A","quantity":1,"price":"1"}}`),
		"bad price":       json.RawMessage(`{"v1":{"variant_id":"v1","image":"","name":"A","quantity":1,"price":"abc","data":{}}}`),
		"bad quantity":    json.RawMessage(`{"v1":{"variant_id":"v1","image":"","name":"A","quantity":"x","price":"1","data":{}}}`),
		"zero quantity":   json.RawMessage(`{"v1":{"variant_id":"v1","image":"","name":"A","quantity":0,"price":"1","data":{}}}`),
		"duplicate":       json.RawMessage(`{"a":{"variant_id":"v1","image":"","name":"A","quantity":1,"price":"1","data":{}},"v1":{"variant_id":"v1","image":"","name":"B","quantity":1,"price":"1","data":{}}}`),
		"typed negative":  Snapshot{"v1": {VariantID: "v1", Quantity: -1, Price: "1"}},
		"not an object":   json.RawMessage(`[1,2,3]`),
		"null":            nil,
		"typed bad price": Snapshot{"v1": {VariantID: "v1", Quantity: 1, Price: "nope"}},
	}
	for name, value := range tests {
		t.Run(name, func(t *testing.T) {
			s := newFakeSession()
			s.values[DefaultSessionKey] = value
			if _, err := New(s, ""); !errors.Is(err, ErrDecode) {
				t.Fatalf("New() error = %v, want ErrDecode", err)
			}
		})
	}
}

func TestNewKeysItemsByStoredVariantID(t *testing.T) {
	t.Parallel()

	s := newFakeSession()
	s.values[DefaultSessionKey] = json.RawMessage(`{"legacy":{"variant_id":"v1","image":"","name":"A","quantity":2,"price":"1.50","data":{}}}`)
	c := newCart(t, s)
	if !c.Contains("v1") || c.Contains("legacy") {
		t.Fatalf("product ids = %v, want [v1]", c.ProductIDs())
	}
	if _, ok := c.Snapshot()["v1"]; !ok {
		t.Fatalf("snapshot = %v", c.Snapshot())
	}
}

func TestPriceScaleSurvivesRoundTrip(t *testing.T) {
	t.Parallel()

	price, err := ParsePrice("10.00")
	if err != nil {
		t.Fatalf("ParsePrice() error = %v", err)
	}
	s := newFakeSession()
	c := newCart(t, s)
	_ = c.Add("v1", "", "Shirt", WithPrice(price))
	if got := c.Snapshot()["v1"].Price; got != "10.00" {
		t.Fatalf("stored price = %q, want 10.00", got)
	}

	raw, _ := json.Marshal(c.Snapshot())
	js := newFakeSession()
	js.values[DefaultSessionKey] = json.RawMessage(raw)
	reloaded := newCart(t, js)
	if got := reloaded.Snapshot()["v1"].Price; got != "10.00" {
		t.Fatalf("reloaded price = %q, want 10.00", got)
	}
}

func TestSnapshotDataIsCopied(t *testing.T) {
	t.Parallel()

	s := newFakeSession()
	c := newCart(t, s)
	_ = c.Add("v1", "", "Shirt", WithPrice(dec("1")), WithData(map[string]any{"size": "M"}))
	s.modified = false

	c.Items()[0].Data["size"] = "XL"
	stored := s.values[DefaultSessionKey].(Snapshot)["v1"]
	if stored.Data["size"] != "M" {
		t.Fatalf("session copy changed to %v without a mutation", stored.Data["size"])
	}
	if s.modified {
		t.Fatalf("session marked modified")
	}
}
