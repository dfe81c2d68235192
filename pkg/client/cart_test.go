package client_test

import (
	"testing"

	"github.com/bitop-dev/shopagent/pkg/client"
)

func TestCartUpdate(t *testing.T) {
	cases := []struct {
		name     string
		in       any
		ok       bool
		items    int
		subtotal float64
	}{
		{
			name:     "dict with cart and subtotal",
			in:       map[string]any{"cart": []any{map[string]any{"product_id": "A", "quantity": float64(1), "price": 10.0}}, "subtotal": 12.5},
			ok:       true,
			items:    1,
			subtotal: 12.5,
		},
		{
			name:     "dict with cart only",
			in:       map[string]any{"cart": []any{map[string]any{"product_id": "A", "quantity": float64(2), "price": 1.25}}},
			ok:       true,
			items:    1,
			subtotal: 2.5,
		},
		{
			name:     "single item",
			in:       map[string]any{"product_id": "A", "name": "Ball", "quantity": float64(3), "price": 2.0},
			ok:       true,
			items:    1,
			subtotal: 6,
		},
		{
			name: "list",
			in: []any{
				map[string]any{"product_id": "A", "quantity": float64(1), "price": 139.99},
				map[string]any{"product_id": "B", "quantity": "2", "price": "15.76"},
			},
			ok:       true,
			items:    2,
			subtotal: 171.51,
		},
		{
			name:     "json string",
			in:       `{"cart":[{"product_id":"A","quantity":1,"price":4}],"subtotal":4}`,
			ok:       true,
			items:    1,
			subtotal: 4,
		},
		{name: "nil", in: nil, ok: true},
		{name: "unrelated dict", in: map[string]any{"status": "ok"}, ok: false, items: 1, subtotal: 9},
		{name: "bad string", in: "not json", ok: false, items: 1, subtotal: 9},
		{name: "number", in: 42.0, ok: false, items: 1, subtotal: 9},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := client.Cart{Items: []client.CartItem{{ProductID: "OLD", Quantity: 1, Price: 9}}, Subtotal: 9}
			if got := c.Update(tc.in); got != tc.ok {
				t.Fatalf("ok: got %v, want %v", got, tc.ok)
			}
			if len(c.Items) != tc.items {
				t.Errorf("items: got %d, want %d", len(c.Items), tc.items)
			}
			if c.Subtotal != tc.subtotal {
				t.Errorf("subtotal: got %v, want %v", c.Subtotal, tc.subtotal)
			}
		})
	}
}

func TestCartItemFields(t *testing.T) {
	var c client.Cart
	c.Update(map[string]any{"cart": []any{map[string]any{"product_id": "RUN-S05", "name": "CloudRunner", "quantity": float64(2), "price": 139.99}}})
	want := client.CartItem{ProductID: "RUN-S05", Name: "CloudRunner", Quantity: 2, Price: 139.99}
	if c.Items[0] != want {
		t.Errorf("got %+v, want %+v", c.Items[0], want)
	}
}
