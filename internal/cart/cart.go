// Package cart keeps a shopping cart's line items in a request session.
//
// A Cart is built per request from the session, and every mutation writes a
// full snapshot back under the cart's session key and marks the session
// modified so the host persists it.
package cart

import (
	"maps"
	"slices"

	"github.com/shopspring/decimal"
)

// DefaultSessionKey is used when New is given an empty key.
const DefaultSessionKey = "CART"

// Session is the request's key-value store.
type Session interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Contains(key string) bool
	MarkModified()
}

type Cart struct {
	items      map[string]*LineItem
	session    Session
	sessionKey string
}

// New binds a cart to session, loading any items already stored under
// sessionKey. Malformed stored data fails with ErrDecode.
func New(session Session, sessionKey string) (*Cart, error) {
	if sessionKey == "" {
		sessionKey = DefaultSessionKey
	}
	c := &Cart{
		items:      map[string]*LineItem{},
		session:    session,
		sessionKey: sessionKey,
	}
	if session.Contains(sessionKey) {
		v, _ := session.Get(sessionKey)
		items, err := decodeSnapshot(v)
		if err != nil {
			return nil, err
		}
		c.items = items
	}
	return c, nil
}

func (c *Cart) SessionKey() string { return c.sessionKey }

func (c *Cart) Contains(variantID string) bool {
	_, ok := c.items[variantID]
	return ok
}

type addOptions struct {
	price    *decimal.Decimal
	quantity int
	data     map[string]any
}

// AddOption configures Add.
type AddOption func(*addOptions)

// WithPrice sets the unit price. Required the first time a variant is added.
func WithPrice(p decimal.Decimal) AddOption {
	return func(o *addOptions) { o.price = &p }
}

// WithQuantity sets how many units to add; defaults to 1.
func WithQuantity(q int) AddOption {
	return func(o *addOptions) { o.quantity = q }
}

// WithData attaches metadata to a newly added variant.
func WithData(d map[string]any) AddOption {
	return func(o *addOptions) { o.data = d }
}

// Add puts quantity units of a variant in the cart. For a variant already in
// the cart only the quantity accumulates; price, name, image and data stay as
// first added.
func (c *Cart) Add(variantID, image, name string, opts ...AddOption) error {
	o := addOptions{quantity: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.quantity < 1 {
		return ErrInvalidQuantity
	}

	if it, ok := c.items[variantID]; ok {
		it.Quantity += o.quantity
	} else {
		if o.price == nil {
			return ErrMissingPrice
		}
		c.items[variantID] = NewLineItem(variantID, image, name, o.quantity, *o.price, maps.Clone(o.data))
	}

	c.updateSession()
	return nil
}

// Remove drops a variant. It fails with ErrItemNotFound when absent.
func (c *Cart) Remove(variantID string) error {
	if _, ok := c.items[variantID]; !ok {
		return ErrItemNotFound
	}
	delete(c.items, variantID)
	c.updateSession()
	return nil
}

// RemoveSingle takes one unit of a variant out, dropping the line when it
// was the last one. Absent variants are ignored.
func (c *Cart) RemoveSingle(variantID string) {
	it, ok := c.items[variantID]
	if !ok {
		return
	}
	if it.Quantity <= 1 {
		delete(c.items, variantID)
	} else {
		it.Quantity--
	}
	c.updateSession()
}

func (c *Cart) Clear() {
	c.items = map[string]*LineItem{}
	c.updateSession()
}

// SetQuantity replaces a variant's quantity; zero removes it. Absent
// variants are ignored.
func (c *Cart) SetQuantity(variantID string, quantity int) error {
	if quantity < 0 {
		return ErrNegativeQuantity
	}
	it, ok := c.items[variantID]
	if !ok {
		return nil
	}
	it.Quantity = quantity
	if it.Quantity < 1 {
		delete(c.items, variantID)
	}
	c.updateSession()
	return nil
}

// Items returns the cart's line items ordered by variant id. The pointers
// are live; changing them directly, Data included, does not update the
// session until the next mutation writes a fresh snapshot.
func (c *Cart) Items() []*LineItem {
	out := make([]*LineItem, 0, len(c.items))
	for _, id := range c.ProductIDs() {
		out = append(out, c.items[id])
	}
	return out
}

// Snapshot is exactly what gets written to the session.
func (c *Cart) Snapshot() Snapshot {
	s := make(Snapshot, len(c.items))
	for _, it := range c.items {
		s[it.VariantID] = it.ToPlainData()
	}
	return s
}

// Count is the total number of units across all lines.
func (c *Cart) Count() int {
	n := 0
	for _, it := range c.items {
		n += it.Quantity
	}
	return n
}

func (c *Cart) UniqueCount() int { return len(c.items) }

func (c *Cart) IsEmpty() bool { return c.UniqueCount() == 0 }

// ProductIDs lists the variant ids in the cart, sorted.
func (c *Cart) ProductIDs() []string {
	return slices.Sorted(maps.Keys(c.items))
}

func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.items {
		total = total.Add(it.Subtotal())
	}
	return total
}

func (c *Cart) updateSession() {
	c.session.Set(c.sessionKey, c.Snapshot())
	c.session.MarkModified()
}
