package store

import "time"

// Customer is a BetterSale shopper.
type Customer struct {
	ID                string `gorm:"primaryKey"`
	AccountNumber     string
	FirstName         string
	LastName          string
	Email             string
	PhoneNumber       string
	CustomerStartDate string // YYYY-MM-DD
	LoyaltyPoints     int
	PreferredStore    string

	Addresses                []Address                 `gorm:"constraint:OnDelete:CASCADE"`
	CommunicationPreferences *CommunicationPreferences `gorm:"constraint:OnDelete:CASCADE"`
	SportsProfile            *SportsProfile            `gorm:"constraint:OnDelete:CASCADE"`
	Orders                   []Order                   `gorm:"constraint:OnDelete:CASCADE"`
	CartItems                []CartItem                `gorm:"constraint:OnDelete:CASCADE"`
	Appointments             []Appointment             `gorm:"constraint:OnDelete:CASCADE"`
}

func (Customer) TableName() string { return "customers" }

// FullName is "First Last".
func (c Customer) FullName() string { return c.FirstName + " " + c.LastName }

type Address struct {
	ID         uint   `gorm:"primaryKey"`
	CustomerID string `gorm:"index"`
	Street     string
	City       string
	State      string
	Zip        string
}

func (Address) TableName() string { return "addresses" }

type CommunicationPreferences struct {
	ID                uint   `gorm:"primaryKey"`
	CustomerID        string `gorm:"uniqueIndex"`
	Email             bool
	SMS               bool `gorm:"column:sms"`
	PushNotifications bool
}

func (CommunicationPreferences) TableName() string { return "communication_preferences" }

type SportsProfile struct {
	ID                uint              `gorm:"primaryKey"`
	CustomerID        string            `gorm:"uniqueIndex"`
	PreferredSports   []string          `gorm:"serializer:json"`
	SkillLevel        map[string]string `gorm:"serializer:json"`
	FavoriteTeams     []string          `gorm:"serializer:json"`
	Interests         []string          `gorm:"serializer:json"`
	ActivityFrequency string            // weekly, monthly, occasionally
}

func (SportsProfile) TableName() string { return "sports_profiles" }

type Product struct {
	ID          string `gorm:"primaryKey"`
	Name        string
	Description string
	Price       float64
	Category    string `gorm:"index"`
	Sport       string `gorm:"index"`
	ImageURL    string `gorm:"column:image_url"`
}

func (Product) TableName() string { return "products" }

type CartItem struct {
	ID         uint    `gorm:"primaryKey"`
	CustomerID string  `gorm:"index"`
	ProductID  string  `gorm:"index"`
	Product    Product `gorm:"constraint:OnDelete:CASCADE"`
	Quantity   int
	DateAdded  time.Time `gorm:"autoCreateTime"`
}

func (CartItem) TableName() string { return "cart_items" }

type Order struct {
	ID              string `gorm:"primaryKey"`
	CustomerID      string `gorm:"index"`
	OrderDate       time.Time
	Status          string
	Total           float64
	DiscountApplied string
	Items           []OrderItem `gorm:"constraint:OnDelete:CASCADE"`
}

func (Order) TableName() string { return "orders" }

// OrderItem keeps the product id as plain text: historical orders may name
// products that are no longer in the catalog.
type OrderItem struct {
	ID        uint   `gorm:"primaryKey"`
	OrderID   string `gorm:"index"`
	ProductID string
	Quantity  int
	Price     float64
}

func (OrderItem) TableName() string { return "order_items" }

type Appointment struct {
	ID          string `gorm:"primaryKey"`
	CustomerID  string `gorm:"index"`
	ServiceType string // Tennis Lesson, Bike Tune-up
	Date        string // YYYY-MM-DD
	TimeRange   string // "10-11"
	Details     string
	Status      string
}

func (Appointment) TableName() string { return "appointments" }
