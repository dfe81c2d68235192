package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ---------------------------------------------------------------------------
// Views
// ---------------------------------------------------------------------------

type AddressView struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country,omitempty"`
}

// CustomerInfo is the summary the agent greets a customer with.
type CustomerInfo struct {
	Name            string      `json:"name"`
	Email           string      `json:"email"`
	Phone           string      `json:"phone"`
	MembershipLevel string      `json:"membership_level"`
	CustomerSince   string      `json:"customer_since"`
	Address         AddressView `json:"address"`
	Preferences     struct {
		FavoriteSports          []string `json:"favorite_sports"`
		CommunicationPreference string   `json:"communication_preference"`
	} `json:"preferences"`
	Loyalty struct {
		Points      int    `json:"points"`
		MemberSince string `json:"member_since"`
		Tier        string `json:"tier"`
	} `json:"loyalty"`
}

type CommunicationView struct {
	Email             bool `json:"email"`
	SMS               bool `json:"sms"`
	PushNotifications bool `json:"push_notifications"`
}

type SportsProfileView struct {
	PreferredSports   []string          `json:"preferred_sports"`
	SkillLevel        map[string]string `json:"skill_level"`
	FavoriteTeams     []string          `json:"favorite_teams"`
	Interests         []string          `json:"interests"`
	ActivityFrequency string            `json:"activity_frequency"`
}

type AppointmentView struct {
	ServiceType string `json:"service_type"`
	Date        string `json:"date"`
	TimeRange   string `json:"time_range"`
	Details     string `json:"details"`
	Status      string `json:"status"`
}

type PurchasedProduct struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
}

type Purchase struct {
	Date        string             `json:"date"`
	Items       []PurchasedProduct `json:"items"`
	TotalAmount float64            `json:"total_amount"`
}

// CustomerProfile is the full profile injected into the agent's instructions.
type CustomerProfile struct {
	CustomerID               string                     `json:"customer_id"`
	AccountNumber            string                     `json:"account_number"`
	FirstName                string                     `json:"customer_first_name"`
	LastName                 string                     `json:"customer_last_name"`
	Email                    string                     `json:"email"`
	PhoneNumber              string                     `json:"phone_number"`
	CustomerStartDate        string                     `json:"customer_start_date"`
	YearsAsCustomer          int                        `json:"years_as_customer"`
	LoyaltyPoints            int                        `json:"loyalty_points"`
	PreferredStore           string                     `json:"preferred_store"`
	BillingAddress           AddressView                `json:"billing_address"`
	CommunicationPreferences CommunicationView          `json:"communication_preferences"`
	SportsProfile            SportsProfileView          `json:"sports_profile"`
	ScheduledAppointments    map[string]AppointmentView `json:"scheduled_appointments"`
	PurchaseHistory          []Purchase                 `json:"purchase_history"`
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// MembershipLevel maps loyalty points to a tier.
func MembershipLevel(points int) string {
	switch {
	case points >= 5000:
		return "Platinum"
	case points >= 1000:
		return "Gold"
	case points >= 500:
		return "Silver"
	default:
		return "Standard"
	}
}

// CustomerInformation returns the customer summary or ErrNotFound.
func (s *Store) CustomerInformation(ctx context.Context, customerID string) (*CustomerInfo, error) {
	c, err := s.loadCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	tier := MembershipLevel(c.LoyaltyPoints)
	info := &CustomerInfo{
		Name:            c.FullName(),
		Email:           c.Email,
		Phone:           c.PhoneNumber,
		MembershipLevel: tier,
		CustomerSince:   c.CustomerStartDate,
		Address:         billingAddress(c),
	}
	info.Address.Country = "USA"
	info.Preferences.FavoriteSports = []string{}
	if c.SportsProfile != nil && c.SportsProfile.PreferredSports != nil {
		info.Preferences.FavoriteSports = c.SportsProfile.PreferredSports
	}
	info.Preferences.CommunicationPreference = preferredChannel(c.CommunicationPreferences)
	info.Loyalty.Points = c.LoyaltyPoints
	info.Loyalty.MemberSince = c.CustomerStartDate
	info.Loyalty.Tier = tier
	return info, nil
}

// Customer returns the full profile or ErrNotFound.
func (s *Store) Customer(ctx context.Context, customerID string) (*CustomerProfile, error) {
	c, err := s.loadCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	history, err := s.PurchaseHistory(ctx, customerID)
	if err != nil {
		return nil, err
	}

	p := &CustomerProfile{
		CustomerID:            c.ID,
		AccountNumber:         c.AccountNumber,
		FirstName:             c.FirstName,
		LastName:              c.LastName,
		Email:                 c.Email,
		PhoneNumber:           c.PhoneNumber,
		CustomerStartDate:     c.CustomerStartDate,
		YearsAsCustomer:       yearsSince(c.CustomerStartDate, s.now()),
		LoyaltyPoints:         c.LoyaltyPoints,
		PreferredStore:        c.PreferredStore,
		BillingAddress:        billingAddress(c),
		ScheduledAppointments: make(map[string]AppointmentView, len(c.Appointments)),
		PurchaseHistory:       history,
		SportsProfile: SportsProfileView{
			PreferredSports: []string{},
			SkillLevel:      map[string]string{},
			FavoriteTeams:   []string{},
			Interests:       []string{},
		},
		CommunicationPreferences: CommunicationView{Email: true, SMS: true, PushNotifications: true},
	}
	if cp := c.CommunicationPreferences; cp != nil {
		p.CommunicationPreferences = CommunicationView{Email: cp.Email, SMS: cp.SMS, PushNotifications: cp.PushNotifications}
	}
	if sp := c.SportsProfile; sp != nil {
		p.SportsProfile.ActivityFrequency = sp.ActivityFrequency
		if sp.PreferredSports != nil {
			p.SportsProfile.PreferredSports = sp.PreferredSports
		}
		if sp.SkillLevel != nil {
			p.SportsProfile.SkillLevel = sp.SkillLevel
		}
		if sp.FavoriteTeams != nil {
			p.SportsProfile.FavoriteTeams = sp.FavoriteTeams
		}
		if sp.Interests != nil {
			p.SportsProfile.Interests = sp.Interests
		}
	}
	for _, a := range c.Appointments {
		p.ScheduledAppointments[a.ID] = AppointmentView{
			ServiceType: a.ServiceType,
			Date:        a.Date,
			TimeRange:   a.TimeRange,
			Details:     a.Details,
			Status:      a.Status,
		}
	}
	return p, nil
}

// PurchaseHistory lists every order of the customer, oldest first.
func (s *Store) PurchaseHistory(ctx context.Context, customerID string) ([]Purchase, error) {
	var orders []Order
	err := s.db.WithContext(ctx).
		Preload("Items").
		Where("customer_id = ?", customerID).
		Order("order_date").
		Find(&orders).Error
	if err != nil {
		return nil, errors.Wrap(err, "store: purchase history")
	}
	names, err := s.productNames(ctx, orders)
	if err != nil {
		return nil, err
	}

	out := make([]Purchase, 0, len(orders))
	for _, o := range orders {
		p := Purchase{Date: o.OrderDate.Format(dateLayout), TotalAmount: o.Total, Items: []PurchasedProduct{}}
		for _, it := range o.Items {
			p.Items = append(p.Items, PurchasedProduct{
				ProductID: it.ProductID,
				Name:      nameOrUnknown(names, it.ProductID),
				Quantity:  it.Quantity,
			})
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) loadCustomer(ctx context.Context, customerID string) (*Customer, error) {
	var c Customer
	err := s.db.WithContext(ctx).
		Preload("Addresses", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("CommunicationPreferences").
		Preload("SportsProfile").
		Preload("Appointments").
		First(&c, "id = ?", customerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.log.WithField("customer_id", customerID).Warn("customer not found")
		return nil, errors.Wrapf(ErrNotFound, "customer %s", customerID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "store: load customer")
	}
	return &c, nil
}

func billingAddress(c *Customer) AddressView {
	if len(c.Addresses) == 0 {
		return AddressView{}
	}
	a := c.Addresses[0]
	return AddressView{Street: a.Street, City: a.City, State: a.State, Zip: a.Zip}
}

func preferredChannel(cp *CommunicationPreferences) string {
	switch {
	case cp == nil, cp.Email:
		return "Email"
	case cp.SMS:
		return "SMS"
	case cp.PushNotifications:
		return "Push"
	default:
		return "Email"
	}
}

const dateLayout = "2006-01-02"

// yearsSince counts whole 365-day years from a YYYY-MM-DD date. Unparseable
// dates count as zero.
func yearsSince(date string, now time.Time) int {
	start, err := time.Parse(dateLayout, date)
	if err != nil {
		return 0
	}
	days := int(now.Sub(start).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days / 365
}
