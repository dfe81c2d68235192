package shop

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bitop-dev/shopagent/pkg/store"
	"github.com/bitop-dev/shopagent/pkg/tools"
)

var lineItem = tools.Property{
	Type: "object",
	Properties: map[string]tools.Property{
		"product_id": str("Product ID"),
		"quantity":   {Type: "integer", Description: "Quantity, defaults to 1", Default: 1},
	},
	Required: []string{"product_id"},
}

func (ts *toolset) accessCartInformation() tools.Tool {
	return tools.NewFunc("access_cart_information",
		"Retrieves the current contents of the customer's shopping cart as {cart: [{product_id, name, quantity, price}], subtotal}.",
		tools.SimpleSchema{
			Properties: map[string]tools.Property{"customer_id": str("The ID of the customer")},
			Required:   []string{"customer_id"},
		},
		func(ctx context.Context, a tools.Args) (any, error) {
			id := a.String("customer_id")
			ts.log.WithField("customer_id", id).Info("accessing cart information")
			if ts.store == nil {
				return demoCart(), nil
			}
			cart, err := ts.store.Cart(ctx, id)
			if err != nil {
				ts.fallback("access_cart_information", err)
				return demoCart(), nil
			}
			return cart, nil
		})
}

func (ts *toolset) modifyCart() tools.Tool {
	return tools.NewFunc("modify_cart",
		"Modifies the user's shopping cart by adding and/or removing items. "+
			"items_to_add entries need product_id and quantity; items_to_remove entries need product_id.",
		tools.SimpleSchema{
			Properties: map[string]tools.Property{
				"customer_id":     str("The ID of the customer"),
				"items_to_add":    {Type: "array", Description: "Items to add", Items: &lineItem},
				"items_to_remove": {Type: "array", Description: "Items to remove", Items: &lineItem},
			},
			Required: []string{"customer_id"},
		},
		func(ctx context.Context, a tools.Args) (any, error) {
			id := a.String("customer_id")
			add, remove := lineItems(a.Objects("items_to_add")), lineItems(a.Objects("items_to_remove"))
			ts.log.WithField("customer_id", id).
				WithField("add", len(add)).
				WithField("remove", len(remove)).
				Info("modifying cart")

			demo := &store.CartChange{
				Status:       "success",
				Message:      "Cart updated successfully.",
				ItemsAdded:   len(add) > 0,
				ItemsRemoved: len(remove) > 0,
			}
			if ts.store == nil {
				return demo, nil
			}
			res, err := ts.store.ModifyCart(ctx, id, add, remove)
			if err != nil {
				ts.fallback("modify_cart", err)
				return demo, nil
			}
			return res, nil
		})
}

// lineItems converts raw objects; a bad or missing quantity becomes 1.
func lineItems(objs []map[string]any) []store.LineItem {
	out := make([]store.LineItem, 0, len(objs))
	for _, o := range objs {
		a := tools.Args(o)
		qty := a.Int("quantity", 1)
		if qty <= 0 {
			qty = 1
		}
		out = append(out, store.LineItem{ProductID: a.String("product_id"), Quantity: qty})
	}
	return out
}

// CRMUpdate is the result of update_salesforce_crm.
type CRMUpdate struct {
	Status      string           `json:"status"`
	Message     string           `json:"message"`
	OrderID     string           `json:"order_id,omitempty"`
	OrderDate   string           `json:"order_date,omitempty"`
	OrderTotal  float64          `json:"order_total,omitempty"`
	Items       []store.LineItem `json:"items,omitempty"`
	OrderStatus string           `json:"order_status,omitempty"`
}

func (ts *toolset) updateSalesforceCRM() tools.Tool {
	return tools.NewFunc("update_salesforce_crm",
		"Updates the Salesforce CRM with customer details. When details contains items, "+
			"the customer's cart is submitted as an order and the order id, date and total are returned.",
		tools.SimpleSchema{
			Properties: map[string]tools.Property{
				"customer_id": str("The ID of the customer"),
				"details":     {Type: "object", Description: "Details to record, such as an order summary or appointment"},
			},
			Required: []string{"customer_id", "details"},
		},
		func(ctx context.Context, a tools.Args) (any, error) {
			id := a.String("customer_id")
			details := a.Object("details")
			ts.log.WithField("customer_id", id).WithField("details", details).Info("updating salesforce crm")

			updated := &CRMUpdate{Status: "success", Message: "Salesforce record updated."}
			if _, isOrder := details["items"]; !isOrder || ts.store == nil {
				return updated, nil
			}

			placed, err := ts.store.CreateOrder(ctx, id)
			if errors.Cause(err) == store.ErrEmptyCart {
				return &CRMUpdate{Status: "error", Message: "Failed to create order: Cart is empty"}, nil
			}
			if err != nil {
				ts.log.WithError(err).WithField("customer_id", id).Error("create order failed")
				return &CRMUpdate{Status: "error", Message: "Error creating order: " + err.Error()}, nil
			}
			ts.log.WithField("order_id", placed.OrderID).Info("order created")
			return &CRMUpdate{
				Status:      "success",
				Message:     "Order created and Salesforce record updated.",
				OrderID:     placed.OrderID,
				OrderDate:   placed.OrderDate,
				OrderTotal:  placed.OrderTotal,
				Items:       placed.Items,
				OrderStatus: "Processing",
			}, nil
		})
}
