package shop

import (
	"context"
	"fmt"

	"github.com/bitop-dev/shopagent/pkg/tools"
)

var discountSchema = tools.SimpleSchema{
	Properties: map[string]tools.Property{
		"discount_type": str("The type of discount, either percentage or flat"),
		"value":         {Type: "number", Description: "The value of the discount"},
		"reason":        str("The reason for the discount"),
	},
	Required: []string{"discount_type", "value", "reason"},
}

func (ts *toolset) sendCallCompanionLink() tools.Tool {
	return tools.NewFunc("send_call_companion_link",
		"Sends a link to the user's phone number to start a video session.",
		tools.SimpleSchema{
			Properties: map[string]tools.Property{"phone_number": str("The phone number to send the link to")},
			Required:   []string{"phone_number"},
		},
		func(_ context.Context, a tools.Args) (any, error) {
			phone := a.String("phone_number")
			ts.log.WithField("phone", phone).Info("sending call companion link")
			return &Notice{Status: "success", Message: "Link sent to " + phone}, nil
		})
}

func (ts *toolset) approveDiscount() tools.Tool {
	return tools.NewFunc("approve_discount",
		"Approves a flat rate or percentage discount requested by the user.",
		discountSchema,
		func(_ context.Context, a tools.Args) (any, error) {
			ts.log.WithField("type", a.String("discount_type")).
				WithField("value", a.Float("value", 0)).
				WithField("reason", a.String("reason")).
				Info("approving discount")
			return `{"status": "ok"}`, nil
		})
}

func (ts *toolset) syncAskForApproval() tools.Tool {
	return tools.NewFunc("sync_ask_for_approval",
		"Asks the manager for approval of a discount.",
		discountSchema,
		func(_ context.Context, a tools.Args) (any, error) {
			ts.log.WithField("type", a.String("discount_type")).
				WithField("value", a.Float("value", 0)).
				WithField("reason", a.String("reason")).
				Info("asking manager for discount approval")
			return `{"status": "approved"}`, nil
		})
}

// QRCode carries the encoded discount.
type QRCode struct {
	Status         string `json:"status"`
	QRCodeData     string `json:"qr_code_data"`
	ExpirationDate string `json:"expiration_date"`
}

func (ts *toolset) generateQRCode() tools.Tool {
	return tools.NewFunc("generate_qr_code",
		"Generates a QR code for a discount. Only call it for approved discounts.",
		tools.SimpleSchema{
			Properties: map[string]tools.Property{
				"customer_id":     str("The ID of the customer"),
				"discount_value":  {Type: "number", Description: "The value of the discount, e.g. 10 for 10% or 5 for $5"},
				"discount_type":   {Type: "string", Description: "percentage (default) or fixed"},
				"expiration_days": {Type: "integer", Description: "Number of days until the code expires"},
			},
			Required: []string{"customer_id", "discount_value", "expiration_days"},
		},
		func(_ context.Context, a tools.Args) (any, error) {
			id, kind := a.String("customer_id"), a.String("discount_type")
			if kind == "" {
				kind = "percentage"
			}
			value := a.String("discount_value")
			expires := ts.now().AddDate(0, 0, a.Int("expiration_days", 30)).Format("2006-01-02")
			ts.log.WithField("customer_id", id).WithField("discount", value+" "+kind).Info("generating qr code")
			return &QRCode{
				Status:         "success",
				QRCodeData:     fmt.Sprintf("DISCOUNT:%s:%s:EXP:%s:CUST:%s", kind, value, expires, id),
				ExpirationDate: expires,
			}, nil
		})
}
