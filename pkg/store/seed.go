package store

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DemoCustomerID is the customer the demo agent serves.
const DemoCustomerID = "123"

// DemoProducts is the fixed starter catalog.
func DemoProducts() []Product {
	products := []Product{
		{ID: "TEN-SHOE-01", Name: "ProCourt Tennis Shoes", Description: "Excellent stability for court movement", Price: 129.99, Category: "Footwear", Sport: "Tennis"},
		{ID: "TEN-RAC-ADV", Name: "Advanced Graphite Racket", Description: "Great for intermediate players seeking more power", Price: 149.99, Category: "Equipment", Sport: "Tennis"},
		{ID: "TNB-003", Name: "Tennis Balls (3-pack)", Description: "Durable, high-performance tennis balls", Price: 5.99, Category: "Accessories", Sport: "Tennis"},
		{ID: "RUN-S05", Name: "CloudRunner Running Shoes", Description: "Lightweight and breathable for long distances", Price: 139.99, Category: "Footwear", Sport: "Running"},
		{ID: "RUN-A01", Name: "Running Socks (3-pack)", Description: "Moisture-wicking and blister protection", Price: 15.76, Category: "Accessories", Sport: "Running"},
		{ID: "RUN-W01", Name: "GPS Running Watch", Description: "Track your pace, distance, and heart rate", Price: 199.99, Category: "Electronics", Sport: "Running"},
		{ID: "BKB-007", Name: "Official Size Basketball", Description: "Durable composite leather for indoor/outdoor play", Price: 29.99, Category: "Equipment", Sport: "Basketball"},
		{ID: "BKB-S01", Name: "High-Top Basketball Shoes", Description: "Superior ankle support and cushioning", Price: 119.99, Category: "Footwear", Sport: "Basketball"},
		{ID: "BKB-A02", Name: "Basketball Hoop (Portable)", Description: "Adjustable height, easy to move", Price: 249.99, Category: "Equipment", Sport: "Basketball"},
		{ID: "GEN-WB-01", Name: "Insulated Water Bottle", Description: "Keeps drinks cold during any activity", Price: 19.99, Category: "Accessories", Sport: "General"},
	}
	for i := range products {
		products[i].ImageURL = ImageURL(products[i])
	}
	return products
}

func demoCustomer() Customer {
	return Customer{
		ID:                DemoCustomerID,
		AccountNumber:     "428765091",
		FirstName:         "Alex",
		LastName:          "Johnson",
		Email:             "alex.johnson@example.com",
		PhoneNumber:       "+1-702-555-1212",
		CustomerStartDate: "2022-06-10",
		LoyaltyPoints:     133,
		PreferredStore:    "BetterSale Sports Center",
	}
}

// SeedDemo loads the starter catalog and the demo customer. With clear set
// it also resets the demo customer's cart to two running items and records
// a past order. Running it twice leaves the same rows.
func (s *Store) SeedDemo(ctx context.Context, clear bool) error {
	now := s.now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upsert := clause.OnConflict{UpdateAll: true}

		var products int64
		if err := tx.Model(&Product{}).Count(&products).Error; err != nil {
			return errors.Wrap(err, "count products")
		}
		if clear || products == 0 {
			catalog := DemoProducts()
			if err := tx.Clauses(upsert).Create(&catalog).Error; err != nil {
				return errors.Wrap(err, "seed products")
			}
		}

		alex := demoCustomer()
		if err := tx.Omit(clause.Associations).Clauses(upsert).Create(&alex).Error; err != nil {
			return errors.Wrap(err, "seed customer")
		}
		// Child rows are replaced rather than upserted since their keys are
		// generated.
		for _, m := range []any{&Address{}, &CommunicationPreferences{}, &SportsProfile{}} {
			if err := tx.Where("customer_id = ?", alex.ID).Delete(m).Error; err != nil {
				return errors.Wrap(err, "clear customer profile")
			}
		}
		children := []any{
			&Address{CustomerID: alex.ID, Street: "123 Main St", City: "Anytown", State: "CA", Zip: "12345"},
			&CommunicationPreferences{CustomerID: alex.ID, Email: true, SMS: false, PushNotifications: true},
			&SportsProfile{
				CustomerID:        alex.ID,
				PreferredSports:   []string{"Tennis", "Running"},
				SkillLevel:        map[string]string{"Tennis": "Intermediate", "Running": "Beginner"},
				FavoriteTeams:     []string{"Lakers", "Dodgers"},
				Interests:         []string{"Hiking", "Yoga"},
				ActivityFrequency: "weekly",
			},
		}
		for _, c := range children {
			if err := tx.Create(c).Error; err != nil {
				return errors.Wrap(err, "seed customer profile")
			}
		}
		if !clear {
			return nil
		}

		if err := tx.Where("customer_id = ?", alex.ID).Delete(&CartItem{}).Error; err != nil {
			return errors.Wrap(err, "clear demo cart")
		}
		cart := []CartItem{
			{CustomerID: alex.ID, ProductID: "RUN-S05", Quantity: 1},
			{CustomerID: alex.ID, ProductID: "RUN-A01", Quantity: 1},
		}
		if err := tx.Omit("Product").Create(&cart).Error; err != nil {
			return errors.Wrap(err, "seed demo cart")
		}

		const pastOrder = "ORD-12345678"
		if err := tx.Where("order_id = ?", pastOrder).Delete(&OrderItem{}).Error; err != nil {
			return errors.Wrap(err, "clear past order")
		}
		order := Order{
			ID:         pastOrder,
			CustomerID: alex.ID,
			OrderDate:  now.AddDate(0, 0, -30),
			Status:     "Completed",
			Total:      85.98,
		}
		if err := tx.Omit(clause.Associations).Clauses(upsert).Create(&order).Error; err != nil {
			return errors.Wrap(err, "seed past order")
		}
		items := []OrderItem{
			{OrderID: pastOrder, ProductID: "TNR-001", Quantity: 1, Price: 59.99},
			{OrderID: pastOrder, ProductID: "TNB-003", Quantity: 2, Price: 5.99},
		}
		return errors.Wrap(tx.Create(&items).Error, "seed past order items")
	})
	if err != nil {
		return errors.Wrap(err, "store: seed demo data")
	}
	s.log.WithField("clear", clear).Info("demo data seeded")
	return nil
}

// IsEmpty reports whether the catalog has no products.
func (s *Store) IsEmpty(ctx context.Context) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Product{}).Count(&n).Error; err != nil {
		return false, errors.Wrap(err, "store: count products")
	}
	return n == 0, nil
}
