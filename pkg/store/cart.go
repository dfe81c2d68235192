package store

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// CartLine is one product in a cart.
type CartLine struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// CartView is what access_cart_information returns.
type CartView struct {
	Cart     []CartLine `json:"cart"`
	Subtotal float64    `json:"subtotal"`
}

// LineItem is a requested cart change. Quantity is ignored on removal.
type LineItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity,omitempty"`
}

// CartChange reports what ModifyCart did.
type CartChange struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	ItemsAdded   bool   `json:"items_added"`
	ItemsRemoved bool   `json:"items_removed"`
}

// Cart returns the customer's cart. An unknown customer has an empty cart.
func (s *Store) Cart(ctx context.Context, customerID string) (*CartView, error) {
	return cartOf(s.db.WithContext(ctx), customerID)
}

func cartOf(db *gorm.DB, customerID string) (*CartView, error) {
	var items []CartItem
	err := db.Joins("Product").
		Where("cart_items.customer_id = ?", customerID).
		Order("cart_items.id").
		Find(&items).Error
	if err != nil {
		return nil, errors.Wrap(err, "store: load cart")
	}

	view := &CartView{Cart: make([]CartLine, 0, len(items))}
	var subtotal float64
	for _, it := range items {
		view.Cart = append(view.Cart, CartLine{
			ProductID: it.Product.ID,
			Name:      it.Product.Name,
			Quantity:  it.Quantity,
			Price:     it.Product.Price,
		})
		subtotal += it.Product.Price * float64(it.Quantity)
	}
	view.Subtotal = roundCents(subtotal)
	return view, nil
}

// ModifyCart applies additions then removals in one transaction.
func (s *Store) ModifyCart(ctx context.Context, customerID string, add, remove []LineItem) (*CartChange, error) {
	res := &CartChange{Status: "success", Message: "Cart updated successfully."}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range add {
			qty := item.Quantity
			if qty <= 0 {
				qty = 1
			}

			var n int64
			if err := tx.Model(&Product{}).Where("id = ?", item.ProductID).Count(&n).Error; err != nil {
				return errors.Wrap(err, "lookup product")
			}
			if n == 0 {
				s.log.WithField("product_id", item.ProductID).Warn("product not found, cannot add to cart")
				continue
			}

			var line CartItem
			err := tx.Where("customer_id = ? AND product_id = ?", customerID, item.ProductID).
				Take(&line).Error
			switch {
			case err == nil:
				if err := tx.Model(&line).Update("quantity", gorm.Expr("quantity + ?", qty)).Error; err != nil {
					return errors.Wrap(err, "update cart line")
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				line = CartItem{CustomerID: customerID, ProductID: item.ProductID, Quantity: qty}
				if err := tx.Omit("Product").Create(&line).Error; err != nil {
					return errors.Wrap(err, "add cart line")
				}
			default:
				return errors.Wrap(err, "lookup cart line")
			}
			res.ItemsAdded = true
		}

		for _, item := range remove {
			r := tx.Where("customer_id = ? AND product_id = ?", customerID, item.ProductID).Delete(&CartItem{})
			if r.Error != nil {
				return errors.Wrap(r.Error, "remove cart line")
			}
			if r.RowsAffected > 0 {
				res.ItemsRemoved = true
			}
		}
		return nil
	})
	if err != nil {
		s.log.WithError(err).WithField("customer_id", customerID).Error("modify cart failed")
		return nil, errors.Wrap(err, "store: modify cart")
	}
	return res, nil
}

func roundCents(v float64) float64 { return math.Round(v*100) / 100 }
