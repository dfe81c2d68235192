package client

import (
	"encoding/json"
	"math"
	"strconv"
)

// CartItem is one line of the displayed cart.
type CartItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// Cart is the client's copy of the shopper's cart, refreshed from
// access_cart_information results.
type Cart struct {
	Items    []CartItem `json:"cart"`
	Subtotal float64    `json:"subtotal"`
}

func (c *Cart) IsEmpty() bool { return len(c.Items) == 0 }

// Update replaces the cart from a tool result. It accepts {cart, subtotal},
// a single item object, a list of items, a JSON string of any of these and
// nil, which empties the cart. It returns false and leaves the cart alone
// for anything else.
func (c *Cart) Update(v any) bool {
	switch data := v.(type) {
	case nil:
		c.Items, c.Subtotal = []CartItem{}, 0
		return true

	case map[string]any:
		if raw, ok := data["cart"]; ok {
			list, _ := raw.([]any)
			c.Items = itemsFrom(list)
			if st, ok := toFloat(data["subtotal"]); ok {
				c.Subtotal = st
			} else {
				c.Subtotal = subtotalOf(c.Items)
			}
			return true
		}
		for _, k := range []string{"product_id", "name", "quantity", "price"} {
			if _, ok := data[k]; ok {
				c.Items = []CartItem{itemFrom(data)}
				c.Subtotal = subtotalOf(c.Items)
				return true
			}
		}
		return false

	case []any:
		c.Items = itemsFrom(data)
		c.Subtotal = subtotalOf(c.Items)
		return true

	case string:
		var parsed any
		if err := json.Unmarshal([]byte(data), &parsed); err != nil {
			return false
		}
		if _, again := parsed.(string); again {
			return false
		}
		return c.Update(parsed)
	}
	return false
}

func itemsFrom(list []any) []CartItem {
	out := make([]CartItem, 0, len(list))
	for _, v := range list {
		if m, ok := v.(map[string]any); ok {
			out = append(out, itemFrom(m))
		}
	}
	return out
}

func itemFrom(m map[string]any) CartItem {
	it := CartItem{}
	it.ProductID, _ = m["product_id"].(string)
	it.Name, _ = m["name"].(string)
	if q, ok := toFloat(m["quantity"]); ok {
		it.Quantity = int(q)
	}
	if p, ok := toFloat(m["price"]); ok {
		it.Price = p
	}
	return it
}

func subtotalOf(items []CartItem) float64 {
	var sum float64
	for _, it := range items {
		sum += it.Price * float64(it.Quantity)
	}
	return math.Round(sum*100) / 100
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
