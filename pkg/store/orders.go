package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// OrderLine is an ordered product at the price paid.
type OrderLine struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
	Subtotal  float64 `json:"subtotal"`
}

type OrderSummary struct {
	OrderID string      `json:"order_id"`
	Date    string      `json:"date"`
	Status  string      `json:"status"`
	Total   float64     `json:"total"`
	Items   []OrderLine `json:"items"`
}

type Shipping struct {
	Status            string  `json:"status"`
	EstimatedDelivery *string `json:"estimated_delivery"`
	TrackingNumber    *string `json:"tracking_number"`
}

// OrderDetail is a single order with customer and shipping information.
type OrderDetail struct {
	OrderSummary
	CustomerID   string   `json:"customer_id"`
	CustomerName string   `json:"customer_name"`
	ItemCount    int      `json:"item_count"`
	Shipping     Shipping `json:"shipping"`
}

// PlacedOrder is the result of CreateOrder.
type PlacedOrder struct {
	Status     string     `json:"status"`
	OrderID    string     `json:"order_id"`
	OrderDate  string     `json:"order_date"`
	Items      []LineItem `json:"items"`
	OrderTotal float64    `json:"order_total"`
}

// OrderHistory lists orders, filtered by customer and/or order id when set.
func (s *Store) OrderHistory(ctx context.Context, customerID, orderID string) ([]OrderSummary, error) {
	db := s.db.WithContext(ctx).Preload("Items").Order("order_date")
	if customerID != "" {
		db = db.Where("customer_id = ?", customerID)
	}
	if orderID != "" {
		db = db.Where("id = ?", orderID)
	}
	var orders []Order
	if err := db.Find(&orders).Error; err != nil {
		return nil, errors.Wrap(err, "store: order history")
	}
	names, err := s.productNames(ctx, orders)
	if err != nil {
		return nil, err
	}

	out := make([]OrderSummary, 0, len(orders))
	for _, o := range orders {
		out = append(out, summarize(o, names))
	}
	return out, nil
}

// OrderByID returns one order or ErrNotFound. Orders that are Shipped or
// Processing carry a mock tracking number and delivery estimate.
func (s *Store) OrderByID(ctx context.Context, orderID string) (*OrderDetail, error) {
	var o Order
	err := s.db.WithContext(ctx).Preload("Items").Take(&o, "id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "order %s", orderID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "store: load order")
	}
	names, err := s.productNames(ctx, []Order{o})
	if err != nil {
		return nil, err
	}

	customerName := "Unknown Customer"
	var c Customer
	switch err := s.db.WithContext(ctx).Select("first_name", "last_name").Take(&c, "id = ?", o.CustomerID).Error; {
	case err == nil:
		customerName = c.FullName()
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, errors.Wrap(err, "store: load order customer")
	}

	d := &OrderDetail{
		OrderSummary: summarize(o, names),
		CustomerID:   o.CustomerID,
		CustomerName: customerName,
		Shipping:     Shipping{Status: o.Status},
	}
	d.ItemCount = len(d.Items)
	if o.Status == "Shipped" || o.Status == "Processing" {
		tracking := fmt.Sprintf("TRK%08d", 10000000+s.intn(90000000))
		eta := o.OrderDate.AddDate(0, 0, 3+s.intn(3)).Format(dateLayout)
		d.Shipping.TrackingNumber = &tracking
		d.Shipping.EstimatedDelivery = &eta
	}
	return d, nil
}

// CreateOrder turns the cart into a Processing order and empties the cart.
func (s *Store) CreateOrder(ctx context.Context, customerID string) (*PlacedOrder, error) {
	var placed *PlacedOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := cartOf(tx, customerID)
		if err != nil {
			return err
		}
		if len(cart.Cart) == 0 {
			return ErrEmptyCart
		}

		now := s.now()
		order := Order{
			ID:         newOrderID(),
			CustomerID: customerID,
			OrderDate:  now,
			Status:     "Processing",
			Total:      cart.Subtotal,
		}
		items := make([]LineItem, 0, len(cart.Cart))
		for _, l := range cart.Cart {
			order.Items = append(order.Items, OrderItem{
				ProductID: l.ProductID,
				Quantity:  l.Quantity,
				Price:     l.Price,
			})
			items = append(items, LineItem{ProductID: l.ProductID, Quantity: l.Quantity})
		}
		if err := tx.Create(&order).Error; err != nil {
			return errors.Wrap(err, "insert order")
		}
		if err := tx.Where("customer_id = ?", customerID).Delete(&CartItem{}).Error; err != nil {
			return errors.Wrap(err, "clear cart")
		}

		placed = &PlacedOrder{
			Status:     "success",
			OrderID:    order.ID,
			OrderDate:  now.Format(dateLayout),
			Items:      items,
			OrderTotal: order.Total,
		}
		return nil
	})
	if err == ErrEmptyCart {
		return nil, errors.WithStack(ErrEmptyCart)
	}
	if err != nil {
		s.log.WithError(err).WithField("customer_id", customerID).Error("create order failed")
		return nil, errors.Wrap(err, "store: create order")
	}
	s.log.WithFields(logrus.Fields{
		"customer_id": customerID,
		"order_id":    placed.OrderID,
		"total":       placed.OrderTotal,
	}).Info("order created")
	return placed, nil
}

func summarize(o Order, names map[string]string) OrderSummary {
	sum := OrderSummary{
		OrderID: o.ID,
		Date:    o.OrderDate.Format(dateLayout),
		Status:  o.Status,
		Total:   o.Total,
		Items:   make([]OrderLine, 0, len(o.Items)),
	}
	for _, it := range o.Items {
		sum.Items = append(sum.Items, OrderLine{
			ProductID: it.ProductID,
			Name:      nameOrUnknown(names, it.ProductID),
			Quantity:  it.Quantity,
			Price:     it.Price,
			Subtotal:  roundCents(it.Price * float64(it.Quantity)),
		})
	}
	return sum
}

// newOrderID is "ORD-" followed by eight upper-case hex digits.
func newOrderID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ORD-" + strings.ToUpper(hex[:8])
}
