package shop

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/bitop-dev/shopagent/pkg/store"
	"github.com/bitop-dev/shopagent/pkg/tools"
)

func (ts *toolset) scheduleService() tools.Tool {
	return tools.NewFunc("schedule_service",
		"Schedules a service appointment such as a tennis lesson or bike tune-up.",
		tools.SimpleSchema{
			Properties: map[string]tools.Property{
				"customer_id":  str("The ID of the customer"),
				"service_type": str("The type of service, e.g. Tennis Lesson, Bike Tune-up"),
				"date":         str("The desired date (YYYY-MM-DD)"),
				"time_range":   str("The desired time range, e.g. 10-11"),
				"details":      str("Any additional details, e.g. Focus on backhand"),
			},
			Required: []string{"customer_id", "service_type", "date", "time_range"},
		},
		func(ctx context.Context, a tools.Args) (any, error) {
			id, service := a.String("customer_id"), a.String("service_type")
			date, slot := a.String("date"), a.String("time_range")
			ts.log.WithField("customer_id", id).
				WithField("service", service).
				WithField("date", date).
				WithField("time_range", slot).
				Info("scheduling service")
			if ts.store == nil {
				return store.NewBooking(uuid.NewString(), date, slot), nil
			}
			b, err := ts.store.ScheduleService(ctx, id, service, date, slot, a.String("details"))
			if err != nil {
				ts.fallback("schedule_service", err)
				return store.NewBooking(uuid.NewString(), date, slot), nil
			}
			return b, nil
		})
}

func (ts *toolset) availableServiceTimes() tools.Tool {
	return tools.NewFunc("get_available_service_times",
		"Retrieves available time slots for a service type on a given date.",
		tools.SimpleSchema{
			Properties: map[string]tools.Property{
				"service_type": str("The type of service, e.g. Tennis Lesson, Bike Tune-up"),
				"date":         str("The date to check (YYYY-MM-DD)"),
			},
			Required: []string{"service_type"},
		},
		func(_ context.Context, a tools.Args) (any, error) {
			ts.log.WithField("service", a.String("service_type")).WithField("date", a.String("date")).
				Info("retrieving available service times")
			return store.AvailableServiceTimes(a.String("service_type")), nil
		})
}

// Notice is a status acknowledgement.
type Notice struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (ts *toolset) sendTrainingTips() tools.Tool {
	return tools.NewFunc("send_training_tips",
		"Sends an email or SMS with training tips for a specific sport.",
		tools.SimpleSchema{
			Properties: map[string]tools.Property{
				"customer_id":     str("The ID of the customer"),
				"sport":           str("The sport, e.g. Tennis, Running"),
				"delivery_method": {Type: "string", Description: "email (default) or sms", Enum: []any{"email", "sms"}},
			},
			Required: []string{"customer_id", "sport"},
		},
		func(_ context.Context, a tools.Args) (any, error) {
			method := a.String("delivery_method")
			if method == "" {
				method = "email"
			}
			sport := a.String("sport")
			ts.log.WithField("customer_id", a.String("customer_id")).
				WithField("sport", sport).
				WithField("method", method).
				Info("sending training tips")
			return &Notice{Status: "success", Message: fmt.Sprintf("Training tips for %s sent via %s.", sport, method)}, nil
		})
}
