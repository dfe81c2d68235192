package shop

import (
	"context"

	"github.com/bitop-dev/shopagent/pkg/tools"
)

func (ts *toolset) productRecommendations() tools.Tool {
	return tools.NewFunc("get_product_recommendations",
		"Provides product recommendations for a sport or activity, excluding products already in the customer's cart.",
		tools.SimpleSchema{
			Properties: map[string]tools.Property{
				"sport_or_activity": str("The sport or activity, e.g. Tennis, Running, Basketball"),
				"customer_id":       str("The ID of the customer"),
			},
			Required: []string{"sport_or_activity"},
		},
		func(ctx context.Context, a tools.Args) (any, error) {
			sport, id := a.String("sport_or_activity"), a.String("customer_id")
			ts.log.WithField("sport", sport).WithField("customer_id", id).Info("getting product recommendations")
			if ts.store == nil {
				return demoRecommendationsFor(sport), nil
			}
			recs, err := ts.store.Recommendations(ctx, sport, id)
			if err != nil {
				ts.fallback("get_product_recommendations", err)
				return demoRecommendationsFor(sport), nil
			}
			return recs, nil
		})
}

func (ts *toolset) checkProductAvailability() tools.Tool {
	return tools.NewFunc("check_product_availability",
		"Checks the availability of a product at a store, or 'pickup' for online availability.",
		tools.SimpleSchema{
			Properties: map[string]tools.Property{
				"product_id": str("The ID of the product"),
				"store_id":   str("The ID of the store, or 'pickup'"),
			},
			Required: []string{"product_id", "store_id"},
		},
		func(ctx context.Context, a tools.Args) (any, error) {
			product, storeID := a.String("product_id"), a.String("store_id")
			ts.log.WithField("product_id", product).WithField("store_id", storeID).Info("checking product availability")
			if ts.store == nil {
				return demoAvailability(product, storeID), nil
			}
			av, err := ts.store.Availability(ctx, product, storeID)
			if err != nil {
				ts.fallback("check_product_availability", err)
				return demoAvailability(product, storeID), nil
			}
			return av, nil
		})
}
