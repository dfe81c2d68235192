// Package shop provides the twelve customer-service tools the BetterSale
// agent calls: cart access and changes, recommendations, availability,
// service scheduling, discounts, QR codes, training tips and CRM sync.
//
// Tools read and write through a Store. When the Store is nil, or a store
// call fails, each tool answers with fixed demo data so a conversation can
// continue without a database.
package shop

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bitop-dev/shopagent/pkg/store"
	"github.com/bitop-dev/shopagent/pkg/tools"
)

// Store is the subset of *store.Store the tools use.
type Store interface {
	Cart(ctx context.Context, customerID string) (*store.CartView, error)
	ModifyCart(ctx context.Context, customerID string, add, remove []store.LineItem) (*store.CartChange, error)
	CreateOrder(ctx context.Context, customerID string) (*store.PlacedOrder, error)
	Recommendations(ctx context.Context, sport, customerID string) (*store.Recommendations, error)
	Availability(ctx context.Context, productID, storeID string) (*store.StoreAvailability, error)
	ScheduleService(ctx context.Context, customerID, serviceType, date, timeRange, details string) (*store.Booking, error)
}

// Names lists the tools in registration order.
var Names = []string{
	"send_call_companion_link",
	"approve_discount",
	"sync_ask_for_approval",
	"update_salesforce_crm",
	"access_cart_information",
	"modify_cart",
	"get_product_recommendations",
	"check_product_availability",
	"schedule_service",
	"get_available_service_times",
	"send_training_tips",
	"generate_qr_code",
}

type toolset struct {
	store Store
	log   logrus.FieldLogger
	now   func() time.Time
}

// Option customises the toolset.
type Option func(*toolset)

// WithClock overrides time.Now for expiration dates.
func WithClock(now func() time.Time) Option {
	return func(t *toolset) { t.now = now }
}

// Register adds every shop tool to reg. st may be nil.
func Register(reg *tools.Registry, st Store, log logrus.FieldLogger, opts ...Option) {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	ts := &toolset{store: st, log: log.WithField("component", "shop"), now: time.Now}
	for _, o := range opts {
		o(ts)
	}

	reg.Register(ts.sendCallCompanionLink())
	reg.Register(ts.approveDiscount())
	reg.Register(ts.syncAskForApproval())
	reg.Register(ts.updateSalesforceCRM())
	reg.Register(ts.accessCartInformation())
	reg.Register(ts.modifyCart())
	reg.Register(ts.productRecommendations())
	reg.Register(ts.checkProductAvailability())
	reg.Register(ts.scheduleService())
	reg.Register(ts.availableServiceTimes())
	reg.Register(ts.sendTrainingTips())
	reg.Register(ts.generateQRCode())
}

// fallback logs a store failure before a tool answers with demo data.
func (ts *toolset) fallback(tool string, err error) {
	ts.log.WithError(err).WithField("tool", tool).Warn("store call failed, using demo data")
}

func str(desc string) tools.Property { return tools.Property{Type: "string", Description: desc} }
