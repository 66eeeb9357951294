// Package cart holds the session-scoped shopping cart: an ordered mapping of item id to quantity.
package cart

import (
	"encoding/json"
	"errors"
)

var (
	ErrInvalidQuantity = errors.New("cart: quantity must be greater than zero")
	ErrInvalidItem     = errors.New("cart: item id is required")
)

type Line struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

// Cart keeps one line per item. Iteration follows the order in which items were first added.
type Cart struct {
	order []string
	qty   map[string]int
}

func New() *Cart {
	return &Cart{qty: make(map[string]int)}
}

func (c *Cart) Quantity(itemID string) int {
	return c.qty[itemID]
}

// Set replaces the line for itemID, keeping its position if it already exists.
func (c *Cart) Set(itemID string, quantity int) error {
	if itemID == "" {
		return ErrInvalidItem
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if _, ok := c.qty[itemID]; !ok {
		c.order = append(c.order, itemID)
	}
	c.qty[itemID] = quantity
	return nil
}

// Remove deletes the line for itemID and reports whether it existed.
func (c *Cart) Remove(itemID string) bool {
	if _, ok := c.qty[itemID]; !ok {
		return false
	}
	delete(c.qty, itemID)
	for i, id := range c.order {
		if id == itemID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

func (c *Cart) Lines() []Line {
	out := make([]Line, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, Line{ItemID: id, Quantity: c.qty[id]})
	}
	return out
}

func (c *Cart) Len() int { return len(c.order) }

func (c *Cart) IsEmpty() bool { return len(c.order) == 0 }

// Count is the sum of all line quantities.
func (c *Cart) Count() int {
	n := 0
	for _, q := range c.qty {
		n += q
	}
	return n
}

func (c *Cart) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Lines())
}

func (c *Cart) UnmarshalJSON(data []byte) error {
	var lines []Line
	if err := json.Unmarshal(data, &lines); err != nil {
		return err
	}
	fresh := New()
	for _, l := range lines {
		if err := fresh.Set(l.ItemID, l.Quantity); err != nil {
			return err
		}
	}
	*c = *fresh
	return nil
}
