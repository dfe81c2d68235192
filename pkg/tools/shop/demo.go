package shop

import (
	"strings"

	"github.com/bitop-dev/shopagent/pkg/store"
)

func demoCart() *store.CartView {
	return &store.CartView{
		Cart: []store.CartLine{
			{ProductID: "RUN-S05", Name: "CloudRunner Running Shoes", Quantity: 1, Price: 139.99},
			{ProductID: "RUN-A01", Name: "Running Socks (3-pack)", Quantity: 1, Price: 15.76},
		},
		Subtotal: 155.75,
	}
}

var demoRecommendations = map[string][]store.Recommendation{
	"tennis": {
		{ProductID: "TEN-SHOE-01", Name: "ProCourt Tennis Shoes", Description: "Excellent stability for court movement.", Price: 129.99},
		{ProductID: "TEN-RAC-ADV", Name: "Advanced Graphite Racket", Description: "Great for intermediate players seeking more power.", Price: 149.99},
		{ProductID: "TNB-003", Name: "Tennis Balls (3-pack)", Description: "Durable, high-performance tennis balls.", Price: 5.99},
	},
	"running": {
		{ProductID: "RUN-S05", Name: "CloudRunner Running Shoes", Description: "Lightweight and breathable for long distances.", Price: 139.99},
		{ProductID: "RUN-A01", Name: "Running Socks (3-pack)", Description: "Moisture-wicking and blister protection.", Price: 15.76},
		{ProductID: "RUN-W01", Name: "GPS Running Watch", Description: "Track your pace, distance, and heart rate.", Price: 199.99},
	},
	"basketball": {
		{ProductID: "BKB-007", Name: "Official Size Basketball", Description: "Durable composite leather for indoor/outdoor play.", Price: 29.99},
		{ProductID: "BKB-S01", Name: "High-Top Basketball Shoes", Description: "Superior ankle support and cushioning.", Price: 119.99},
		{ProductID: "BKB-A02", Name: "Basketball Hoop (Portable)", Description: "Adjustable height, easy to move.", Price: 249.99},
	},
}

var demoGeneral = []store.Recommendation{
	{ProductID: "GEN-WB-01", Name: "Insulated Water Bottle", Description: "Keeps drinks cold during any activity.", Price: 19.99},
}

// demoRecommendationsFor picks the list for the first sport named in term
// and drops anything in the demo cart.
func demoRecommendationsFor(term string) *store.Recommendations {
	term = strings.ToLower(term)
	list := demoGeneral
	for _, sport := range []string{"tennis", "running", "basketball"} {
		if strings.Contains(term, sport) {
			list = demoRecommendations[sport]
			break
		}
	}

	inCart := map[string]bool{}
	for _, l := range demoCart().Cart {
		inCart[l.ProductID] = true
	}
	out := &store.Recommendations{Recommendations: []store.Recommendation{}}
	for _, r := range list {
		if !inCart[r.ProductID] {
			out.Recommendations = append(out.Recommendations, r)
		}
	}
	return out
}

func demoAvailability(productID, storeID string) *store.StoreAvailability {
	if productID == "NON-EXISTENT" {
		return &store.StoreAvailability{Store: storeID}
	}
	return &store.StoreAvailability{Available: true, Quantity: 15, Store: storeID}
}
