package model

import "time"

type Status string

const (
	StatusNew       Status = "new"
	StatusContacted Status = "contacted"
	StatusClosed    Status = "closed"
	StatusCancelled Status = "cancelled"
	StatusRejected  Status = "rejected"
)

func ParseStatus(raw string) (Status, bool) {
	switch s := Status(raw); s {
	case StatusNew, StatusContacted, StatusClosed, StatusCancelled, StatusRejected:
		return s, true
	default:
		return "", false
	}
}

// HoldsSlot reports whether a booking in this status occupies its slot. Cancelled and
// rejected bookings release it for re-booking.
func (s Status) HoldsSlot() bool {
	return s != StatusCancelled && s != StatusRejected
}

// Booking is one visitor request for a consultation slot. Date is YYYY-MM-DD and Clock is
// the 24h HH:MM start time, both in the firm's booking time zone.
type Booking struct {
	ID          string
	Name        string
	Phone       string
	Date        string
	Clock       string
	ServiceType string
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Filter struct {
	Status Status
	Date   string
	Limit  int
}
