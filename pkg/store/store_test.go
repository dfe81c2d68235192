package store_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/bitop-dev/shopagent/pkg/store"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Config{DSN: ":memory:"},
		store.WithClock(func() time.Time { return fixedNow }),
		store.WithRand(1),
	)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func seededStore(t *testing.T) *store.Store {
	t.Helper()
	s := newStore(t)
	if err := s.SeedDemo(context.Background(), true); err != nil {
		t.Fatalf("SeedDemo: %v", err)
	}
	return s
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := store.Open(store.Config{Driver: "oracle"})
	if err == nil || !strings.Contains(err.Error(), "unknown driver") {
		t.Fatalf("got %v, want unknown driver error", err)
	}
}

func TestOpenPostgresNeedsDSN(t *testing.T) {
	if _, err := store.Open(store.Config{Driver: "postgres"}); err == nil {
		t.Fatal("expected error for postgres without dsn")
	}
}

func TestMembershipLevel(t *testing.T) {
	cases := map[int]string{0: "Standard", 499: "Standard", 500: "Silver", 999: "Silver", 1000: "Gold", 4999: "Gold", 5000: "Platinum", 9000: "Platinum"}
	for points, want := range cases {
		if got := store.MembershipLevel(points); got != want {
			t.Errorf("MembershipLevel(%d): got %q, want %q", points, got, want)
		}
	}
}

func TestSeedDemoIdempotent(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()
	if err := s.SeedDemo(ctx, true); err != nil {
		t.Fatalf("second SeedDemo: %v", err)
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]int64{
		"customers": 1, "addresses": 1, "communication_preferences": 1, "sports_profiles": 1,
		"products": 10, "cart_items": 2, "orders": 1, "order_items": 2, "appointments": 0,
	}
	for table, n := range want {
		if stats[table] != n {
			t.Errorf("%s: got %d rows, want %d", table, stats[table], n)
		}
	}
}

func TestCustomerInformation(t *testing.T) {
	s := seededStore(t)
	info, err := s.CustomerInformation(context.Background(), store.DemoCustomerID)
	if err != nil {
		t.Fatal(err)
	}
	if info.Name != "Alex Johnson" {
		t.Errorf("name: got %q", info.Name)
	}
	if info.MembershipLevel != "Standard" || info.Loyalty.Tier != "Standard" {
		t.Errorf("tier: got %q", info.MembershipLevel)
	}
	if info.Address.Country != "USA" || info.Address.City != "Anytown" {
		t.Errorf("address: got %+v", info.Address)
	}
	if info.Preferences.CommunicationPreference != "Email" {
		t.Errorf("preference: got %q", info.Preferences.CommunicationPreference)
	}
	if len(info.Preferences.FavoriteSports) != 2 {
		t.Errorf("sports: got %v", info.Preferences.FavoriteSports)
	}
}

func TestCustomerInformationNotFound(t *testing.T) {
	s := seededStore(t)
	_, err := s.CustomerInformation(context.Background(), "nobody")
	if errors.Cause(err) != store.ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestCustomerProfile(t *testing.T) {
	s := seededStore(t)
	p, err := s.Customer(context.Background(), store.DemoCustomerID)
	if err != nil {
		t.Fatal(err)
	}
	// 2022-06-10 to 2025-06-15 is 1101 days.
	if p.YearsAsCustomer != 3 {
		t.Errorf("years: got %d, want 3", p.YearsAsCustomer)
	}
	if p.CommunicationPreferences.SMS || !p.CommunicationPreferences.Email {
		t.Errorf("prefs: got %+v", p.CommunicationPreferences)
	}
	if p.SportsProfile.SkillLevel["Tennis"] != "Intermediate" {
		t.Errorf("skill: got %v", p.SportsProfile.SkillLevel)
	}
	if len(p.PurchaseHistory) != 1 {
		t.Fatalf("history: got %d purchases", len(p.PurchaseHistory))
	}
	h := p.PurchaseHistory[0]
	if h.Date != "2025-05-16" || h.TotalAmount != 85.98 {
		t.Errorf("purchase: got %+v", h)
	}
	if h.Items[0].Name != "Unknown Product" {
		t.Errorf("unknown product name: got %q", h.Items[0].Name)
	}

	b, _ := json.Marshal(p)
	for _, key := range []string{`"customer_first_name":"Alex"`, `"scheduled_appointments":{}`, `"billing_address":`} {
		if !strings.Contains(string(b), key) {
			t.Errorf("profile JSON missing %s: %s", key, b)
		}
	}
}

func TestCart(t *testing.T) {
	s := seededStore(t)
	cart, err := s.Cart(context.Background(), store.DemoCustomerID)
	if err != nil {
		t.Fatal(err)
	}
	if len(cart.Cart) != 2 {
		t.Fatalf("got %d lines, want 2", len(cart.Cart))
	}
	if cart.Subtotal != 155.75 {
		t.Errorf("subtotal: got %v, want 155.75", cart.Subtotal)
	}
	empty, err := s.Cart(context.Background(), "nobody")
	if err != nil || len(empty.Cart) != 0 || empty.Subtotal != 0 {
		t.Errorf("unknown customer: got %+v, %v", empty, err)
	}
}

func TestModifyCart(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()
	res, err := s.ModifyCart(ctx, store.DemoCustomerID,
		[]store.LineItem{
			{ProductID: "RUN-S05", Quantity: 2},
			{ProductID: "TNB-003", Quantity: 0},
			{ProductID: "NO-SUCH"},
		},
		[]store.LineItem{{ProductID: "RUN-A01"}},
	)
	if err != nil {
		t.Fatal(err)
	}
	if !res.ItemsAdded || !res.ItemsRemoved || res.Status != "success" {
		t.Errorf("got %+v", res)
	}

	cart, _ := s.Cart(ctx, store.DemoCustomerID)
	qty := map[string]int{}
	for _, l := range cart.Cart {
		qty[l.ProductID] = l.Quantity
	}
	want := map[string]int{"RUN-S05": 3, "TNB-003": 1}
	if len(qty) != len(want) {
		t.Fatalf("got %v, want %v", qty, want)
	}
	for id, n := range want {
		if qty[id] != n {
			t.Errorf("%s: got %d, want %d", id, qty[id], n)
		}
	}
}

func TestModifyCartNothingRemoved(t *testing.T) {
	s := seededStore(t)
	res, err := s.ModifyCart(context.Background(), store.DemoCustomerID, nil, []store.LineItem{{ProductID: "BKB-007"}})
	if err != nil {
		t.Fatal(err)
	}
	if res.ItemsAdded || res.ItemsRemoved {
		t.Errorf("got %+v, want no changes", res)
	}
}

func TestInventoryStatus(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()
	for _, p := range store.DemoProducts() {
		inv, err := s.InventoryStatus(ctx, p.ID)
		if err != nil {
			t.Fatal(err)
		}
		if inv.Available != (inv.Quantity > 0) {
			t.Errorf("%s: available %v with quantity %d", p.ID, inv.Available, inv.Quantity)
		}
		if inv.Available && inv.Location != "Main Warehouse" {
			t.Errorf("%s: location %q", p.ID, inv.Location)
		}
		if !inv.Available && (inv.Location != "Out of Stock" || inv.NextShipment == "") {
			t.Errorf("%s: got %+v", p.ID, inv)
		}
		again, _ := s.InventoryStatus(ctx, p.ID)
		if *again != *inv {
			t.Errorf("%s: not stable: %+v vs %+v", p.ID, inv, again)
		}
	}

	inv, err := s.InventoryStatus(ctx, "NOPE")
	if err != nil {
		t.Fatal(err)
	}
	if inv.Available || inv.Location != "Unknown" || inv.Message != "Product not found" {
		t.Errorf("unknown product: got %+v", inv)
	}
}

func TestProductsFilter(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()
	cases := []struct {
		name   string
		filter store.ProductFilter
		want   []string
	}{
		{"sport", store.ProductFilter{Sport: "Tennis"}, []string{"TEN-RAC-ADV", "TEN-SHOE-01", "TNB-003"}},
		{"category", store.ProductFilter{Category: "Electronics"}, []string{"RUN-W01"}},
		{"both", store.ProductFilter{Sport: "Basketball", Category: "Equipment"}, []string{"BKB-007", "BKB-A02"}},
		{"limit", store.ProductFilter{Limit: 2}, []string{"BKB-007", "BKB-A02"}},
		{"no match", store.ProductFilter{Sport: "Golf"}, nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := s.Products(ctx, c.filter)
			if err != nil {
				t.Fatal(err)
			}
			var ids []string
			for _, p := range got {
				ids = append(ids, p.ID)
			}
			if strings.Join(ids, ",") != strings.Join(c.want, ",") {
				t.Errorf("got %v, want %v", ids, c.want)
			}
		})
	}

	all, _ := s.Products(ctx, store.ProductFilter{})
	if len(all) != 10 {
		t.Errorf("unfiltered: got %d products, want 10", len(all))
	}
}

func TestSportsAndCategories(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()
	sports, err := s.Sports(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(sports, ","); got != "Basketball,General,Running,Tennis" {
		t.Errorf("sports: got %s", got)
	}
	cats, err := s.Categories(ctx, "Running")
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(cats, ","); got != "Accessories,Electronics,Footwear" {
		t.Errorf("running categories: got %s", got)
	}
	all, _ := s.Categories(ctx, "")
	if len(all) != 4 {
		t.Errorf("categories: got %v, want 4", all)
	}
}

func TestRecommendationsExcludeCart(t *testing.T) {
	s := seededStore(t)
	recs, err := s.Recommendations(context.Background(), "RUN", store.DemoCustomerID)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs.Recommendations) != 1 || recs.Recommendations[0].ProductID != "RUN-W01" {
		t.Errorf("got %+v, want only RUN-W01", recs.Recommendations)
	}
	none, err := s.Recommendations(context.Background(), "curling", store.DemoCustomerID)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := json.Marshal(none)
	if string(b) != `{"recommendations":[]}` {
		t.Errorf("got %s", b)
	}
}

func TestAvailability(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()
	a, _ := s.Availability(ctx, "BKB-007", "store-1")
	if !a.Available || a.Quantity != 15 || a.Store != "store-1" {
		t.Errorf("known: got %+v", a)
	}
	for _, id := range []string{"NON-EXISTENT", "MISSING"} {
		a, _ := s.Availability(ctx, id, "store-1")
		if a.Available || a.Quantity != 0 {
			t.Errorf("%s: got %+v", id, a)
		}
	}
}

func TestCreateOrderClearsCart(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()
	placed, err := s.CreateOrder(ctx, store.DemoCustomerID)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(placed.OrderID, "ORD-") || len(placed.OrderID) != 12 || placed.OrderID != strings.ToUpper(placed.OrderID) {
		t.Errorf("order id: got %q", placed.OrderID)
	}
	if placed.OrderTotal != 155.75 || placed.OrderDate != "2025-06-15" || len(placed.Items) != 2 {
		t.Errorf("got %+v", placed)
	}

	cart, _ := s.Cart(ctx, store.DemoCustomerID)
	if len(cart.Cart) != 0 {
		t.Errorf("cart not cleared: %+v", cart)
	}

	_, err = s.CreateOrder(ctx, store.DemoCustomerID)
	if errors.Cause(err) != store.ErrEmptyCart {
		t.Fatalf("got %v, want ErrEmptyCart", err)
	}

	d, err := s.OrderByID(ctx, placed.OrderID)
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != "Processing" || d.ItemCount != 2 || d.CustomerName != "Alex Johnson" {
		t.Errorf("got %+v", d)
	}
	if d.Shipping.TrackingNumber == nil || !strings.HasPrefix(*d.Shipping.TrackingNumber, "TRK") || len(*d.Shipping.TrackingNumber) != 11 {
		t.Errorf("tracking: got %v", d.Shipping.TrackingNumber)
	}
	eta, err := time.Parse("2006-01-02", *d.Shipping.EstimatedDelivery)
	if err != nil {
		t.Fatal(err)
	}
	if days := eta.Sub(fixedNow.Truncate(24*time.Hour)).Hours() / 24; days < 3 || days > 5 {
		t.Errorf("estimate %v is %v days out", eta, days)
	}
}

func TestOrderByIDCompleted(t *testing.T) {
	s := seededStore(t)
	d, err := s.OrderByID(context.Background(), "ORD-12345678")
	if err != nil {
		t.Fatal(err)
	}
	if d.Shipping.TrackingNumber != nil || d.Shipping.EstimatedDelivery != nil {
		t.Errorf("completed order has shipping info: %+v", d.Shipping)
	}
	if d.Items[1].Subtotal != 11.98 {
		t.Errorf("subtotal: got %v", d.Items[1].Subtotal)
	}
	b, _ := json.Marshal(d.Shipping)
	if !strings.Contains(string(b), `"tracking_number":null`) {
		t.Errorf("got %s", b)
	}

	if _, err := s.OrderByID(context.Background(), "ORD-NOPE"); errors.Cause(err) != store.ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestOrderHistoryFilters(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()
	if _, err := s.CreateOrder(ctx, store.DemoCustomerID); err != nil {
		t.Fatal(err)
	}
	all, err := s.OrderHistory(ctx, store.DemoCustomerID, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d orders, want 2", len(all))
	}
	one, _ := s.OrderHistory(ctx, "", "ORD-12345678")
	if len(one) != 1 || one[0].Status != "Completed" {
		t.Errorf("got %+v", one)
	}
	none, _ := s.OrderHistory(ctx, "someone-else", "")
	if len(none) != 0 {
		t.Errorf("got %+v", none)
	}
}

func TestScheduleService(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()
	b, err := s.ScheduleService(ctx, store.DemoCustomerID, "Tennis Lesson", "2025-07-01", "10-11", "backhand")
	if err != nil {
		t.Fatal(err)
	}
	if b.ConfirmationTime != "2025-07-01 10:00" || b.Status != "success" || b.AppointmentID == "" {
		t.Errorf("got %+v", b)
	}
	p, _ := s.Customer(ctx, store.DemoCustomerID)
	appt, ok := p.ScheduledAppointments[b.AppointmentID]
	if !ok || appt.Status != "Scheduled" || appt.TimeRange != "10-11" {
		t.Errorf("got %+v", p.ScheduledAppointments)
	}
}

func TestAppointments(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()
	for _, b := range []struct{ date, slot string }{
		{"2025-07-02", "14-15"},
		{"2025-07-01", "16-17"},
		{"2025-07-01", "10-11"},
	} {
		if _, err := s.ScheduleService(ctx, store.DemoCustomerID, "Tennis Lesson", b.date, b.slot, ""); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.ScheduleService(ctx, "other", "Bike Tune-up", "2025-06-30", "9-11", ""); err != nil {
		t.Fatal(err)
	}

	got, err := s.Appointments(ctx, store.DemoCustomerID)
	if err != nil {
		t.Fatal(err)
	}
	var order []string
	for _, a := range got {
		order = append(order, a.Date+" "+a.TimeRange)
	}
	want := "2025-07-01 10-11,2025-07-01 16-17,2025-07-02 14-15"
	if strings.Join(order, ",") != want {
		t.Errorf("got %v, want %s", order, want)
	}

	none, err := s.Appointments(ctx, "nobody")
	if err != nil || len(none) != 0 {
		t.Errorf("unknown customer: got %v, %v", none, err)
	}
}

func TestAvailableServiceTimes(t *testing.T) {
	if got := store.AvailableServiceTimes("Tennis Lesson"); len(got) != 5 {
		t.Errorf("lesson: got %v", got)
	}
	if got := store.AvailableServiceTimes("Bike Tune-Up"); len(got) != 3 || got[0] != "9-11" {
		t.Errorf("tune-up: got %v", got)
	}
	if got := store.AvailableServiceTimes("fitting"); len(got) != 2 {
		t.Errorf("default: got %v", got)
	}
}

func TestImageURL(t *testing.T) {
	got := store.ImageURL(store.Product{ID: "TEN-SHOE-01", Sport: "Tennis", Category: "Footwear"})
	want := "https://storage.cloud.google.com/bettersale-product-images/tennis/footwear/ten_shoe_01.jpg"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestGeneratorAndImageUpdate(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()
	g := s.NewGenerator(42)

	added, err := g.Products(ctx, 20)
	if err != nil {
		t.Fatal(err)
	}
	if added != 20 {
		t.Errorf("added %d products, want 20", added)
	}
	again, err := s.NewGenerator(42).Products(ctx, 20)
	if err != nil {
		t.Fatal(err)
	}
	if again != 0 {
		t.Errorf("re-run added %d, want 0", again)
	}

	ids, err := g.Customers(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 5 {
		t.Fatalf("got %d customers", len(ids))
	}
	for _, id := range ids {
		info, err := s.CustomerInformation(ctx, id)
		if err != nil {
			t.Fatalf("%s: %v", id, err)
		}
		if !strings.HasPrefix(id, "CUST-") || info.Loyalty.Points > 1000 {
			t.Errorf("%s: got %+v", id, info)
		}
	}

	n, err := s.UpdateImageURLs(ctx)
	if err != nil || n != 0 {
		t.Errorf("UpdateImageURLs: got %d, %v; want 0", n, err)
	}
	if err := s.VerifyPersistence(ctx); err != nil {
		t.Fatal(err)
	}
}
