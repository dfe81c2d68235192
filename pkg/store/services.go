package store

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Booking confirms a scheduled service appointment.
type Booking struct {
	Status           string `json:"status"`
	AppointmentID    string `json:"appointment_id"`
	Date             string `json:"date"`
	Time             string `json:"time"`
	ConfirmationTime string `json:"confirmation_time"`
}

// ScheduleService books an appointment for the customer.
func (s *Store) ScheduleService(ctx context.Context, customerID, serviceType, date, timeRange, details string) (*Booking, error) {
	appt := Appointment{
		ID:          uuid.NewString(),
		CustomerID:  customerID,
		ServiceType: serviceType,
		Date:        date,
		TimeRange:   timeRange,
		Details:     details,
		Status:      "Scheduled",
	}
	if err := s.db.WithContext(ctx).Create(&appt).Error; err != nil {
		s.log.WithError(err).WithField("customer_id", customerID).Error("schedule service failed")
		return nil, errors.Wrap(err, "store: schedule service")
	}
	return NewBooking(appt.ID, date, timeRange), nil
}

// NewBooking builds the confirmation for an appointment. The confirmation
// time is the date followed by the start hour of the range.
func NewBooking(id, date, timeRange string) *Booking {
	start, _, _ := strings.Cut(timeRange, "-")
	return &Booking{
		Status:           "success",
		AppointmentID:    id,
		Date:             date,
		Time:             timeRange,
		ConfirmationTime: date + " " + strings.TrimSpace(start) + ":00",
	}
}

// AvailableServiceTimes returns the bookable slots for a service type.
func AvailableServiceTimes(serviceType string) []string {
	st := strings.ToLower(serviceType)
	switch {
	case strings.Contains(st, "lesson"):
		return []string{"10-11", "11-12", "14-15", "15-16", "16-17"}
	case strings.Contains(st, "tune-up"):
		return []string{"9-11", "11-13", "14-16"}
	default:
		return []string{"10-11", "14-15"}
	}
}

// Appointments lists the customer's appointments by date.
func (s *Store) Appointments(ctx context.Context, customerID string) ([]Appointment, error) {
	var out []Appointment
	err := s.db.WithContext(ctx).Where("customer_id = ?", customerID).Order("date, time_range").Find(&out).Error
	if err != nil {
		return nil, errors.Wrap(err, "store: list appointments")
	}
	return out, nil
}
