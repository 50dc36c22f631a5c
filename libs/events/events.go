// Package events holds the Kafka topic names and payloads exchanged between services.
// The topic name equals the event type.
package events

const (
	BookingCreated       = "booking.created.v1"
	BookingStatusChanged = "booking.status_changed.v1"
	EntryResolved        = "office.entry_resolved.v1"
)

type BookingCreatedPayload struct {
	BookingID   string `json:"booking_id"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	StartsAt    string `json:"starts_at"`
	ServiceType string `json:"service_type,omitempty"`
}

type BookingStatusChangedPayload struct {
	BookingID string `json:"booking_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	ChangedAt string `json:"changed_at"`
}

type EntryResolvedPayload struct {
	EntryID    string `json:"entry_id"`
	MeetingID  string `json:"meeting_id"`
	UserName   string `json:"user_name"`
	UserEmail  string `json:"user_email,omitempty"`
	Status     string `json:"status"`
	ResolvedAt string `json:"resolved_at"`
}
