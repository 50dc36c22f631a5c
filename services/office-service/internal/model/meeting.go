package model

import "time"

// Meeting is one virtual-office session. BookingID is empty for ad-hoc sessions.
type Meeting struct {
	ID           string
	BookingID    string
	ScheduledFor *time.Time
	StartedAt    *time.Time
	CreatedAt    time.Time
}

func (m Meeting) Started() bool { return m.StartedAt != nil }

// Role of a chat sender.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleGuest Role = "guest"
)

func ParseRole(raw string) (Role, bool) {
	switch r := Role(raw); r {
	case RoleAdmin, RoleGuest:
		return r, true
	default:
		return "", false
	}
}

// ChatMessage is immutable once stored.
type ChatMessage struct {
	ID         string
	MeetingID  string
	SenderName string
	SenderRole Role
	Message    string
	SentAt     time.Time
}

// SharedFile is the metadata of an uploaded file; the bytes live in the object store.
type SharedFile struct {
	ID         string
	MeetingID  string
	FileName   string
	FileURL    string
	UploadedBy string
	MimeType   string
	SizeBytes  int64
	UploadedAt time.Time
}
