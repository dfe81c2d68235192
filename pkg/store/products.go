package store

import (
	"context"
	"crypto/md5"
	"math/big"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Inventory is the simulated stock level of a product.
type Inventory struct {
	Available    bool   `json:"available"`
	Quantity     int    `json:"quantity"`
	Location     string `json:"location"`
	LastRestock  string `json:"last_restock,omitempty"`
	NextShipment string `json:"next_shipment,omitempty"`
	Message      string `json:"message,omitempty"`
}

type Recommendation struct {
	ProductID   string  `json:"product_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

type Recommendations struct {
	Recommendations []Recommendation `json:"recommendations"`
}

type StoreAvailability struct {
	Available bool   `json:"available"`
	Quantity  int    `json:"quantity"`
	Store     string `json:"store"`
}

// Product returns one catalog entry or ErrNotFound.
func (s *Store) Product(ctx context.Context, productID string) (*Product, error) {
	var p Product
	err := s.db.WithContext(ctx).Take(&p, "id = ?", productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "product %s", productID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "store: load product")
	}
	return &p, nil
}

// ProductFilter narrows a catalog listing. Empty fields match everything;
// Limit <= 0 means 100.
type ProductFilter struct {
	Sport    string
	Category string
	Limit    int
}

// Products lists the catalog ordered by id.
func (s *Store) Products(ctx context.Context, f ProductFilter) ([]Product, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	db := s.db.WithContext(ctx).Order("id").Limit(limit)
	if f.Sport != "" {
		db = db.Where("sport = ?", f.Sport)
	}
	if f.Category != "" {
		db = db.Where("category = ?", f.Category)
	}
	var out []Product
	if err := db.Find(&out).Error; err != nil {
		return nil, errors.Wrap(err, "store: list products")
	}
	return out, nil
}

// Sports returns the distinct sports in the catalog, sorted.
func (s *Store) Sports(ctx context.Context) ([]string, error) {
	var out []string
	err := s.db.WithContext(ctx).Model(&Product{}).
		Where("sport <> ''").Distinct().Order("sport").Pluck("sport", &out).Error
	if err != nil {
		return nil, errors.Wrap(err, "store: list sports")
	}
	return out, nil
}

// Categories returns the distinct categories, optionally within one sport.
func (s *Store) Categories(ctx context.Context, sport string) ([]string, error) {
	db := s.db.WithContext(ctx).Model(&Product{}).Where("category <> ''")
	if sport != "" {
		db = db.Where("sport = ?", sport)
	}
	var out []string
	if err := db.Distinct().Order("category").Pluck("category", &out).Error; err != nil {
		return nil, errors.Wrap(err, "store: list categories")
	}
	return out, nil
}

// InventoryStatus derives a stable stock level from the product id.
func (s *Store) InventoryStatus(ctx context.Context, productID string) (*Inventory, error) {
	if _, err := s.Product(ctx, productID); err != nil {
		if errors.Cause(err) == ErrNotFound {
			return &Inventory{Location: "Unknown", Message: "Product not found"}, nil
		}
		return nil, err
	}

	h := stockHash(productID)
	today := s.now()
	inv := &Inventory{
		LastRestock: today.AddDate(0, 0, -(h % 30)).Format(dateLayout),
	}
	if h > 10 {
		inv.Available = true
		inv.Quantity = h
		inv.Location = "Main Warehouse"
	} else {
		inv.Location = "Out of Stock"
		inv.NextShipment = today.AddDate(0, 0, h%14+1).Format(dateLayout)
	}
	return inv, nil
}

// stockHash is the md5 digest of id read as a big-endian integer, mod 100.
func stockHash(id string) int {
	sum := md5.Sum([]byte(id))
	n := new(big.Int).SetBytes(sum[:])
	return int(n.Mod(n, big.NewInt(100)).Int64())
}

// Recommendations lists products whose sport contains the term, skipping
// anything already in the customer's cart.
func (s *Store) Recommendations(ctx context.Context, sport, customerID string) (*Recommendations, error) {
	var products []Product
	err := s.db.WithContext(ctx).
		Where("LOWER(sport) LIKE ?", "%"+strings.ToLower(sport)+"%").
		Order("id").
		Find(&products).Error
	if err != nil {
		return nil, errors.Wrap(err, "store: recommendations")
	}
	cart, err := s.Cart(ctx, customerID)
	if err != nil {
		return nil, err
	}
	inCart := make(map[string]bool, len(cart.Cart))
	for _, l := range cart.Cart {
		inCart[l.ProductID] = true
	}

	out := &Recommendations{Recommendations: []Recommendation{}}
	for _, p := range products {
		if inCart[p.ID] {
			continue
		}
		out.Recommendations = append(out.Recommendations, Recommendation{
			ProductID:   p.ID,
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
		})
	}
	return out, nil
}

// Availability reports store stock. Every known product has 15 units.
func (s *Store) Availability(ctx context.Context, productID, storeID string) (*StoreAvailability, error) {
	out := &StoreAvailability{Store: storeID}
	if productID == "NON-EXISTENT" {
		return out, nil
	}
	if _, err := s.Product(ctx, productID); err != nil {
		if errors.Cause(err) == ErrNotFound {
			return out, nil
		}
		return nil, err
	}
	out.Available = true
	out.Quantity = 15
	return out, nil
}

// productNames resolves the names of every product referenced by orders.
func (s *Store) productNames(ctx context.Context, orders []Order) (map[string]string, error) {
	ids := make([]string, 0)
	seen := map[string]bool{}
	for _, o := range orders {
		for _, it := range o.Items {
			if !seen[it.ProductID] {
				seen[it.ProductID] = true
				ids = append(ids, it.ProductID)
			}
		}
	}
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	var products []Product
	if err := s.db.WithContext(ctx).Select("id", "name").Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, errors.Wrap(err, "store: product names")
	}
	for _, p := range products {
		names[p.ID] = p.Name
	}
	return names, nil
}

func nameOrUnknown(names map[string]string, id string) string {
	if n, ok := names[id]; ok {
		return n
	}
	return "Unknown Product"
}
