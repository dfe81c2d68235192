package store

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ---------------------------------------------------------------------------
// Catalog
// ---------------------------------------------------------------------------

type productKind struct {
	prefix   string
	name     string
	category string
	min, max int
}

type sportLine struct {
	sport    string
	kinds    []productKind
	brands   []string
	features map[string][]string
}

var catalog = []sportLine{
	{
		sport: "Tennis",
		kinds: []productKind{
			{"TEN-SHOE", "Tennis Shoes", "Footwear", 75, 200},
			{"TEN-RAC", "Tennis Racket", "Equipment", 60, 350},
			{"TEN-BALLS", "Tennis Balls", "Equipment", 5, 25},
			{"TEN-BAG", "Tennis Bag", "Accessories", 40, 150},
			{"TEN-APP", "Tennis Apparel", "Apparel", 25, 100},
			{"TEN-STRI", "Racket Strings", "Equipment", 15, 50},
		},
		brands: []string{"ProSpin", "AceServe", "PowerCourt", "GrandSlam", "TopSpin"},
		features: map[string][]string{
			"Footwear":    {"Clay Court", "Hard Court", "All Court", "Indoor Court", "Pro Tour"},
			"Equipment":   {"Carbon Fiber", "Graphite", "Aluminum", "Professional", "Beginner"},
			"Apparel":     {"Breathable", "Moisture-Wicking", "UV Protection", "Tournament", "Training"},
			"Accessories": {"Premium", "Professional", "Lightweight", "Durable", "Water-Resistant"},
		},
	},
	{
		sport: "Running",
		kinds: []productKind{
			{"RUN-SHOE", "Running Shoes", "Footwear", 80, 220},
			{"RUN-SOCK", "Running Socks", "Apparel", 10, 30},
			{"RUN-SHIRT", "Running Shirt", "Apparel", 25, 85},
			{"RUN-SHORT", "Running Shorts", "Apparel", 25, 70},
			{"RUN-WATCH", "Running Watch", "Electronics", 100, 500},
			{"RUN-BOTTLE", "Water Bottle", "Accessories", 15, 45},
		},
		brands: []string{"RoadRunner", "SpeedForce", "TrailMax", "UltraStride", "MilesAhead"},
		features: map[string][]string{
			"Footwear":    {"Trail", "Road", "Marathon", "Cushioned", "Lightweight"},
			"Apparel":     {"Reflective", "Compression", "All-Weather", "Thermal", "Lightweight"},
			"Electronics": {"GPS", "Heart Rate Monitor", "Bluetooth", "Training", "Water-Resistant"},
			"Accessories": {"Hydration", "Storage", "Lightweight", "Insulated", "BPA-Free"},
		},
	},
	{
		sport: "Basketball",
		kinds: []productKind{
			{"BKB-BALL", "Basketball", "Equipment", 20, 90},
			{"BKB-SHOE", "Basketball Shoes", "Footwear", 90, 250},
			{"BKB-HOOP", "Basketball Hoop", "Equipment", 100, 600},
			{"BKB-JERSEY", "Basketball Jersey", "Apparel", 35, 120},
			{"BKB-SHORT", "Basketball Shorts", "Apparel", 30, 90},
			{"BKB-SOCK", "Basketball Socks", "Apparel", 10, 30},
		},
		brands: []string{"CourtKing", "SlamDunk", "HoopStar", "BallPro", "AirGame"},
		features: map[string][]string{
			"Footwear":  {"High-Top", "Mid-Top", "Low-Top", "Indoor", "Outdoor"},
			"Equipment": {"Indoor", "Outdoor", "Official Size", "Training", "Professional"},
			"Apparel":   {"Breathable", "Moisture-Wicking", "Performance", "Reversible", "Streetball"},
		},
	},
	{
		sport: "Soccer",
		kinds: []productKind{
			{"SOC-BALL", "Soccer Ball", "Equipment", 20, 150},
			{"SOC-CLEAT", "Soccer Cleats", "Footwear", 60, 250},
			{"SOC-GOAL", "Soccer Goal", "Equipment", 80, 350},
			{"SOC-JERSEY", "Soccer Jersey", "Apparel", 40, 120},
			{"SOC-SHORT", "Soccer Shorts", "Apparel", 25, 65},
			{"SOC-SOCK", "Soccer Socks", "Apparel", 10, 30},
		},
		brands: []string{"GoalStrike", "FieldMaster", "KickPro", "WorldCup", "ScorePerfect"},
		features: map[string][]string{
			"Footwear":  {"Firm Ground", "Soft Ground", "Indoor", "Turf", "Training"},
			"Equipment": {"Match Ball", "Training Ball", "Professional", "Youth", "Futsal"},
			"Apparel":   {"Breathable", "Moisture-Wicking", "Club", "Professional", "Replica"},
		},
	},
	{
		sport: "Golf",
		kinds: []productKind{
			{"GOLF-CLUB", "Golf Club", "Equipment", 100, 800},
			{"GOLF-BALL", "Golf Balls", "Equipment", 15, 60},
			{"GOLF-BAG", "Golf Bag", "Equipment", 70, 350},
			{"GOLF-SHOE", "Golf Shoes", "Footwear", 80, 220},
			{"GOLF-GLOVE", "Golf Glove", "Accessories", 15, 45},
			{"GOLF-SHIRT", "Golf Shirt", "Apparel", 35, 95},
		},
		brands: []string{"GreenMaster", "FairwayPro", "DriveMax", "PuttPerfect", "TeeElite"},
		features: map[string][]string{
			"Footwear":    {"Waterproof", "Spiked", "Spikeless", "Tour", "Classic"},
			"Equipment":   {"Driver", "Iron Set", "Putter", "Wedge", "Hybrid"},
			"Apparel":     {"UV Protection", "Moisture-Wicking", "Tournament", "Classic", "Performance"},
			"Accessories": {"Premium", "Tournament", "Practice", "Weather-Resistant", "Ergonomic"},
		},
	},
	{
		sport: "Swimming",
		kinds: []productKind{
			{"SWIM-SUIT", "Swimsuit", "Apparel", 30, 120},
			{"SWIM-GOGGLE", "Swim Goggles", "Equipment", 15, 80},
			{"SWIM-CAP", "Swim Cap", "Equipment", 8, 30},
			{"SWIM-TOWEL", "Swim Towel", "Accessories", 20, 60},
			{"SWIM-BOARD", "Kickboard", "Equipment", 15, 40},
			{"SWIM-FIN", "Swim Fins", "Equipment", 25, 70},
		},
		brands: []string{"AquaSpeed", "WaveDive", "SwimPro", "TorpedoSwim", "HydroElite"},
		features: map[string][]string{
			"Apparel":     {"Competition", "Training", "Chlorine-Resistant", "Hydrodynamic", "Open Water"},
			"Equipment":   {"Anti-Fog", "UV Protection", "Racing", "Training", "Competitive"},
			"Accessories": {"Quick-Dry", "Microfiber", "Lightweight", "Competition", "Training"},
		},
	},
	{
		sport: "Cycling",
		kinds: []productKind{
			{"CYCLE-BIKE", "Bicycle", "Equipment", 300, 3000},
			{"CYCLE-HELM", "Cycling Helmet", "Safety", 40, 200},
			{"CYCLE-JERSEY", "Cycling Jersey", "Apparel", 30, 150},
			{"CYCLE-SHORT", "Cycling Shorts", "Apparel", 35, 120},
			{"CYCLE-LIGHT", "Bike Lights", "Accessories", 20, 100},
			{"CYCLE-LOCK", "Bike Lock", "Accessories", 15, 120},
		},
		brands: []string{"PedalPower", "SpinMax", "VeloElite", "RoadRider", "TrailCruiser"},
		features: map[string][]string{
			"Equipment":   {"Road", "Mountain", "Hybrid", "Electric", "Urban"},
			"Safety":      {"Ventilated", "MIPS Technology", "Aerodynamic", "LED", "Lightweight"},
			"Apparel":     {"Padded", "Aerodynamic", "Reflective", "Weather-Resistant", "UV Protection"},
			"Accessories": {"Waterproof", "High-Visibility", "USB Rechargeable", "Anti-Theft", "Lightweight"},
		},
	},
	{
		sport: "Yoga",
		kinds: []productKind{
			{"YOGA-MAT", "Yoga Mat", "Equipment", 20, 120},
			{"YOGA-BLOCK", "Yoga Block", "Equipment", 10, 30},
			{"YOGA-STRAP", "Yoga Strap", "Equipment", 8, 25},
			{"YOGA-PANTS", "Yoga Pants", "Apparel", 25, 120},
			{"YOGA-TOP", "Yoga Top", "Apparel", 20, 80},
			{"YOGA-TOWEL", "Yoga Towel", "Accessories", 15, 45},
		},
		brands: []string{"ZenFlow", "FlexPose", "OmBalance", "NamasteFit", "AsanaCore"},
		features: map[string][]string{
			"Equipment":   {"Non-Slip", "Eco-Friendly", "Extra Thick", "Alignment", "Travel"},
			"Apparel":     {"4-Way Stretch", "Moisture-Wicking", "Breathable", "Seamless", "Sustainable"},
			"Accessories": {"Extra Long", "Natural", "Premium", "Washable", "Hot Yoga"},
		},
	},
	{
		sport: "Hiking",
		kinds: []productKind{
			{"HIKE-BOOT", "Hiking Boots", "Footwear", 80, 250},
			{"HIKE-PACK", "Backpack", "Equipment", 60, 300},
			{"HIKE-POLE", "Trekking Poles", "Equipment", 30, 150},
			{"HIKE-JACKET", "Hiking Jacket", "Apparel", 70, 350},
			{"HIKE-SOCK", "Hiking Socks", "Apparel", 12, 30},
			{"HIKE-BOTTLE", "Insulated Bottle", "Accessories", 20, 65},
		},
		brands: []string{"TrailBlaze", "SummitSeeker", "PathFinder", "TerrainTrek", "AlpineView"},
		features: map[string][]string{
			"Footwear":    {"Waterproof", "Vibram Sole", "Gore-Tex", "Lightweight", "Ankle Support"},
			"Equipment":   {"Ultralight", "Hydration", "Ventilated", "Water-Resistant", "Adjustable"},
			"Apparel":     {"Waterproof", "Breathable", "Insulated", "UV Protection", "Quick-Dry"},
			"Accessories": {"BPA-Free", "Vacuum Insulated", "Leak-Proof", "Double Wall", "Wide Mouth"},
		},
	},
}

var descriptions = map[string]map[string]string{
	"Tennis": {
		"Footwear":    "%s %s tennis shoes designed for optimal court performance and comfort.",
		"Equipment":   "%s %s tennis racket with perfect balance and precision for players of all levels.",
		"Apparel":     "%s %s tennis apparel for maximum performance and style on the court.",
		"Accessories": "%s %s tennis accessory designed for serious players.",
	},
	"Running": {
		"Footwear":    "%s %s running shoes engineered for optimal performance and comfort on any terrain.",
		"Apparel":     "%s %s running apparel designed to enhance performance and comfort during your run.",
		"Electronics": "%s %s running watch with advanced metrics to track and improve your performance.",
		"Accessories": "%s %s running accessory to enhance your training and race day experience.",
	},
}

func describe(sport, category, brand, feature, name string) string {
	if t, ok := descriptions[sport][category]; ok {
		return fmt.Sprintf(t, brand, feature)
	}
	return fmt.Sprintf("%s %s %s designed for optimal performance and comfort.", brand, feature, name)
}

var (
	firstNames = []string{
		"Emma", "James", "Olivia", "Noah", "Ava", "William", "Sophia", "Benjamin",
		"Isabella", "Elijah", "Charlotte", "Lucas", "Amelia", "Mason", "Mia",
		"Alexander", "Harper", "Ethan", "Evelyn", "Daniel", "Abigail", "Matthew",
	}
	lastNames = []string{
		"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis",
		"Rodriguez", "Martinez", "Hernandez", "Lopez", "Gonzalez", "Wilson", "Anderson",
		"Thomas", "Taylor", "Moore", "Jackson", "Martin", "Lee", "Perez", "Thompson",
	}
	emailDomains = []string{"gmail.com", "yahoo.com", "outlook.com", "icloud.com", "hotmail.com"}
	cities       = []string{
		"New York", "Los Angeles", "Chicago", "Houston", "Phoenix", "Philadelphia",
		"San Antonio", "San Diego", "Dallas", "San Jose", "Austin", "Jacksonville",
		"Seattle", "Denver", "Boston", "Portland", "Atlanta", "Miami",
	}
	states = []string{
		"AL", "AK", "AZ", "AR", "CA", "CO", "CT", "DE", "FL", "GA", "HI", "ID", "IL", "IN", "IA",
		"KS", "KY", "LA", "ME", "MD", "MA", "MI", "MN", "MS", "MO", "MT", "NE", "NV", "NH", "NJ",
		"NM", "NY", "NC", "ND", "OH", "OK", "OR", "PA", "RI", "SC", "SD", "TN", "TX", "UT", "VT",
		"VA", "WA", "WV", "WI", "WY",
	}
	streets = []string{
		"Main St", "Oak Ave", "Maple Rd", "Washington Blvd", "Park Ave",
		"Lake St", "River Rd", "Mountain View", "Sunset Blvd", "Broadway",
	}
	sports      = []string{"Tennis", "Running", "Basketball", "Soccer", "Golf", "Swimming", "Cycling", "Yoga", "Hiking"}
	skillLevels = []string{"Beginner", "Intermediate", "Advanced", "Professional"}
	frequencies = []string{"Daily", "Weekly", "Bi-weekly", "Monthly", "Occasionally"}
	areaCodes   = []string{"206", "408", "415", "650", "212", "718", "305", "312", "404", "713", "214"}
	stores      = []string{"BetterSale Sports Center", "BetterSale Downtown", "BetterSale Outlet", "BetterSale Mall"}
	teams       = []string{
		"Lakers", "Dodgers", "Yankees", "Patriots", "Celtics", "Bulls", "Warriors",
		"Seahawks", "Packers", "Cowboys", "Red Sox", "Chelsea", "Barcelona", "Real Madrid",
	}
	activities = []string{
		"Hiking", "Camping", "Fishing", "Biking", "Rock Climbing", "Skiing",
		"Snowboarding", "Surfing", "Kayaking", "Yoga", "Weight Training", "Dancing",
	}
	priceEndings = []float64{0.99, 0.95, 0.50, 0.00}
)

// ---------------------------------------------------------------------------
// Generator
// ---------------------------------------------------------------------------

// Generator fills the database with synthetic customers and products.
type Generator struct {
	s   *Store
	rnd *rand.Rand
}

// NewGenerator returns a generator drawing from the given seed.
func (s *Store) NewGenerator(seed int64) *Generator {
	return &Generator{s: s, rnd: rand.New(rand.NewSource(seed))}
}

// between returns a uniform int in [lo, hi].
func (g *Generator) between(lo, hi int) int { return lo + g.rnd.Intn(hi-lo+1) }

func (g *Generator) pick(xs []string) string { return xs[g.rnd.Intn(len(xs))] }

func (g *Generator) sample(xs []string, n int) []string {
	idx := g.rnd.Perm(len(xs))[:n]
	out := make([]string, n)
	for i, j := range idx {
		out[i] = xs[j]
	}
	return out
}

func (g *Generator) hex8() string {
	const digits = "0123456789ABCDEF"
	b := make([]byte, 8)
	for i := range b {
		b[i] = digits[g.rnd.Intn(16)]
	}
	return string(b)
}

// Products generates count products, cycling through every sport's product
// kinds. Ids that already exist are skipped. It returns the number inserted.
func (g *Generator) Products(ctx context.Context, count int) (int, error) {
	products := make([]Product, 0, count)
	for len(products) < count {
		for _, line := range catalog {
			for _, k := range line.kinds {
				if len(products) >= count {
					break
				}
				features := line.features[k.category]
				if len(features) == 0 {
					features = []string{"Premium"}
				}
				brand, feature := g.pick(line.brands), g.pick(features)
				p := Product{
					ID:          fmt.Sprintf("%s-%03d", k.prefix, len(products)+1),
					Name:        fmt.Sprintf("%s %s %s", brand, feature, k.name),
					Description: describe(line.sport, k.category, brand, feature, k.name),
					Price:       float64(g.between(k.min, k.max-1)) + priceEndings[g.rnd.Intn(len(priceEndings))],
					Category:    k.category,
					Sport:       line.sport,
				}
				p.Price = roundCents(p.Price)
				p.ImageURL = ImageURL(p)
				products = append(products, p)
			}
		}
	}

	res := g.s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&products, 100)
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "store: generate products")
	}
	g.s.log.WithField("added", res.RowsAffected).Info("products generated")
	return int(res.RowsAffected), nil
}

// Customers generates n customers with profiles, order history and, for
// roughly a third, a non-empty cart. Orders and carts draw from the
// existing catalog. It returns the new customer ids.
func (g *Generator) Customers(ctx context.Context, n int) ([]string, error) {
	var products []Product
	if err := g.s.db.WithContext(ctx).Find(&products).Error; err != nil {
		return nil, errors.Wrap(err, "store: load catalog")
	}

	ids := make([]string, 0, n)
	now := g.s.now()
	err := g.s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := 0; i < n; i++ {
			c := g.customer(now)
			c.Orders = g.orders(c, products, now)
			c.CartItems = g.cart(products)
			if err := tx.Create(&c).Error; err != nil {
				return errors.Wrapf(err, "insert customer %s", c.ID)
			}
			ids = append(ids, c.ID)
			g.s.log.WithFields(logrus.Fields{
				"n":        i + 1,
				"of":       n,
				"customer": c.FullName(),
			}).Debug("customer generated")
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "store: generate customers")
	}
	g.s.log.WithField("added", len(ids)).Info("customers generated")
	return ids, nil
}

func (g *Generator) customer(now time.Time) Customer {
	first, last := g.pick(firstNames), g.pick(lastNames)
	start := now.AddDate(0, 0, -g.between(365, 365*5))
	id := "CUST-" + g.hex8()

	skills := map[string]string{}
	preferred := g.sample(sports, g.between(1, 3))
	for _, sp := range preferred {
		skills[sp] = g.pick(skillLevels)
	}
	return Customer{
		ID:                id,
		AccountNumber:     fmt.Sprintf("AC%d", g.between(100000000, 999999999)),
		FirstName:         first,
		LastName:          last,
		Email:             fmt.Sprintf("%s.%s@%s", strings.ToLower(first), strings.ToLower(last), g.pick(emailDomains)),
		PhoneNumber:       fmt.Sprintf("+1-%s-%d-%d", g.pick(areaCodes), g.between(100, 999), g.between(1000, 9999)),
		CustomerStartDate: start.Format(dateLayout),
		LoyaltyPoints:     g.between(0, 1000),
		PreferredStore:    g.pick(stores),
		Addresses: []Address{{
			Street: fmt.Sprintf("%d %s", g.between(100, 9999), g.pick(streets)),
			City:   g.pick(cities),
			State:  g.pick(states),
			Zip:    fmt.Sprintf("%d", g.between(10000, 99999)),
		}},
		CommunicationPreferences: &CommunicationPreferences{
			Email:             g.rnd.Intn(2) == 0,
			SMS:               g.rnd.Intn(2) == 0,
			PushNotifications: g.rnd.Intn(2) == 0,
		},
		SportsProfile: &SportsProfile{
			PreferredSports:   preferred,
			SkillLevel:        skills,
			FavoriteTeams:     g.sample(teams, g.between(0, 3)),
			Interests:         g.sample(activities, g.between(1, 4)),
			ActivityFrequency: g.pick(frequencies),
		},
	}
}

// orders places 0 to 5 orders between the customer's start date and now.
func (g *Generator) orders(c Customer, products []Product, now time.Time) []Order {
	if len(products) == 0 {
		return nil
	}
	start, err := time.Parse(dateLayout, c.CustomerStartDate)
	if err != nil {
		return nil
	}
	days := int(now.Sub(start).Hours() / 24)
	if days <= 0 {
		return nil
	}

	var out []Order
	for range g.between(0, 5) {
		o := Order{
			ID:         "ORD-" + g.hex8(),
			CustomerID: c.ID,
			OrderDate:  start.AddDate(0, 0, g.between(1, days)),
			Status:     g.orderStatus(),
		}
		var total float64
		for _, p := range g.products(products, g.between(1, 5)) {
			qty := g.between(1, 3)
			total += p.Price * float64(qty)
			o.Items = append(o.Items, OrderItem{ProductID: p.ID, Quantity: qty, Price: p.Price})
		}
		o.Total = roundCents(total)
		out = append(out, o)
	}
	return out
}

func (g *Generator) cart(products []Product) []CartItem {
	if len(products) == 0 || g.rnd.Float64() >= 0.3 {
		return nil
	}
	var out []CartItem
	for _, p := range g.products(products, g.between(1, 3)) {
		out = append(out, CartItem{ProductID: p.ID, Quantity: g.between(1, 2)})
	}
	return out
}

// products samples up to n distinct catalog entries.
func (g *Generator) products(all []Product, n int) []Product {
	n = min(n, len(all))
	out := make([]Product, n)
	for i, j := range g.rnd.Perm(len(all))[:n] {
		out[i] = all[j]
	}
	return out
}

// orderStatus draws Completed 70%, Shipped 15%, Processing 10%, Delivered 5%.
func (g *Generator) orderStatus() string {
	switch r := g.rnd.Float64(); {
	case r < 0.70:
		return "Completed"
	case r < 0.85:
		return "Shipped"
	case r < 0.95:
		return "Processing"
	default:
		return "Delivered"
	}
}
