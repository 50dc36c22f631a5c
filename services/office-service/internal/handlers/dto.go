package handlers

import (
	"time"

	"github.com/md-rashed-zaman/advisoryoffice/services/office-service/internal/model"
)

// Response items use the field names the livesync client decodes.

type entryItem struct {
	ID              string     `json:"id"`
	MeetingID       string     `json:"meeting_id"`
	UserName        string     `json:"user_name"`
	UserEmail       string     `json:"user_email"`
	Status          string     `json:"status"`
	JoinRequestedAt time.Time  `json:"join_requested_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}

type chatItem struct {
	ID         string    `json:"id"`
	MeetingID  string    `json:"meeting_id"`
	SenderName string    `json:"sender_name"`
	SenderRole string    `json:"sender_role"`
	Message    string    `json:"message"`
	SentAt     time.Time `json:"sent_at"`
}

type fileItem struct {
	ID         string    `json:"id"`
	MeetingID  string    `json:"meeting_id"`
	FileName   string    `json:"file_name"`
	FileURL    string    `json:"file_url"`
	UploadedBy string    `json:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at"`
	MimeType   string    `json:"mime_type"`
	SizeBytes  int64     `json:"size_bytes"`
}

type meetingItem struct {
	ID           string      `json:"id"`
	BookingID    string      `json:"booking_id,omitempty"`
	ScheduledFor *time.Time  `json:"scheduled_for,omitempty"`
	StartedAt    *time.Time  `json:"started_at,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	Roster       []entryItem `json:"roster"`
}

func toEntry(e model.WaitingEntry) entryItem {
	return entryItem{
		ID:              e.ID,
		MeetingID:       e.MeetingID,
		UserName:        e.UserName,
		UserEmail:       e.UserEmail,
		Status:          e.Status.String(),
		JoinRequestedAt: e.JoinRequestedAt,
		ResolvedAt:      e.ResolvedAt,
	}
}

func toEntries(list []model.WaitingEntry) []entryItem {
	out := make([]entryItem, 0, len(list))
	for _, e := range list {
		out = append(out, toEntry(e))
	}
	return out
}

func toChat(list []model.ChatMessage) []chatItem {
	out := make([]chatItem, 0, len(list))
	for _, m := range list {
		out = append(out, chatItem{
			ID:         m.ID,
			MeetingID:  m.MeetingID,
			SenderName: m.SenderName,
			SenderRole: string(m.SenderRole),
			Message:    m.Message,
			SentAt:     m.SentAt,
		})
	}
	return out
}

func toFiles(list []model.SharedFile) []fileItem {
	out := make([]fileItem, 0, len(list))
	for _, f := range list {
		out = append(out, fileItem{
			ID:         f.ID,
			MeetingID:  f.MeetingID,
			FileName:   f.FileName,
			FileURL:    f.FileURL,
			UploadedBy: f.UploadedBy,
			UploadedAt: f.UploadedAt,
			MimeType:   f.MimeType,
			SizeBytes:  f.SizeBytes,
		})
	}
	return out
}

func toMeeting(m model.Meeting, roster []model.WaitingEntry) meetingItem {
	return meetingItem{
		ID:           m.ID,
		BookingID:    m.BookingID,
		ScheduledFor: m.ScheduledFor,
		StartedAt:    m.StartedAt,
		CreatedAt:    m.CreatedAt,
		Roster:       toEntries(roster),
	}
}
