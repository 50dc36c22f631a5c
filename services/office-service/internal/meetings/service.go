// Package meetings owns meeting sessions and their append-only chat log and file list.
package meetings

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/md-rashed-zaman/advisoryoffice/libs/apperr"
	"github.com/md-rashed-zaman/advisoryoffice/libs/events"
	"github.com/md-rashed-zaman/advisoryoffice/services/office-service/internal/model"
	"github.com/md-rashed-zaman/advisoryoffice/services/office-service/internal/objectstore"
)

const (
	maxMessageLen  = 4000
	maxNameLen     = 120
	maxFileNameLen = 255
)

type Store interface {
	CreateMeeting(ctx context.Context, m model.Meeting) (model.Meeting, error)
	EnsureMeetingForBooking(ctx context.Context, m model.Meeting) (model.Meeting, bool, error)
	GetMeeting(ctx context.Context, id string) (model.Meeting, error)
	MeetingForBooking(ctx context.Context, bookingID string) (model.Meeting, error)
	StartMeeting(ctx context.Context, id string, at time.Time) (model.Meeting, error)
	AppendMessage(ctx context.Context, m model.ChatMessage) error
	ListMessages(ctx context.Context, meetingID string) ([]model.ChatMessage, error)
	AddFile(ctx context.Context, f model.SharedFile) error
	ListFiles(ctx context.Context, meetingID string) ([]model.SharedFile, error)
}

type Service struct {
	store   Store
	objects objectstore.Store
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(store Store, objects objectstore.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, objects: objects, logger: logger, now: time.Now}
}

// Open creates a meeting on the host's request. Without a booking it is an ad-hoc
// session and starts right away.
func (s *Service) Open(ctx context.Context, bookingID string) (model.Meeting, error) {
	bookingID = strings.TrimSpace(bookingID)
	if bookingID != "" {
		if _, err := uuid.Parse(bookingID); err != nil {
			return model.Meeting{}, apperr.Validation("bookingId must be a uuid")
		}
	}
	now := s.now().UTC()
	m := model.Meeting{ID: uuid.NewString(), BookingID: bookingID, CreatedAt: now}
	if bookingID == "" {
		m.StartedAt = &now
	}
	created, err := s.store.CreateMeeting(ctx, m)
	if err != nil {
		return model.Meeting{}, err
	}
	s.logger.Info("meeting opened", "meeting_id", created.ID, "booking_id", bookingID)
	return created, nil
}

// OpenForBooking creates the meeting of a newly booked slot. Replays of the same event
// return the existing meeting.
func (s *Service) OpenForBooking(ctx context.Context, p events.BookingCreatedPayload) (model.Meeting, bool, error) {
	if _, err := uuid.Parse(p.BookingID); err != nil {
		return model.Meeting{}, false, apperr.Validation("booking event without a valid booking id")
	}
	m := model.Meeting{ID: uuid.NewString(), BookingID: p.BookingID, CreatedAt: s.now().UTC()}
	if p.StartsAt != "" {
		at, err := time.Parse(time.RFC3339, p.StartsAt)
		if err != nil {
			return model.Meeting{}, false, apperr.Validation("booking event with malformed starts_at")
		}
		m.ScheduledFor = &at
	}
	stored, created, err := s.store.EnsureMeetingForBooking(ctx, m)
	if err != nil {
		return model.Meeting{}, false, err
	}
	if created {
		s.logger.Info("meeting scheduled", "meeting_id", stored.ID, "booking_id", p.BookingID, "starts_at", p.StartsAt)
	}
	return stored, created, nil
}

func (s *Service) Start(ctx context.Context, id string) (model.Meeting, error) {
	if err := checkID("meeting", id); err != nil {
		return model.Meeting{}, err
	}
	return s.store.StartMeeting(ctx, id, s.now().UTC())
}

func (s *Service) Get(ctx context.Context, id string) (model.Meeting, error) {
	if err := checkID("meeting", id); err != nil {
		return model.Meeting{}, err
	}
	return s.store.GetMeeting(ctx, id)
}

func (s *Service) ForBooking(ctx context.Context, bookingID string) (model.Meeting, error) {
	if err := checkID("meeting for booking", bookingID); err != nil {
		return model.Meeting{}, err
	}
	return s.store.MeetingForBooking(ctx, bookingID)
}

type PostRequest struct {
	MeetingID  string
	SenderName string
	SenderRole string
	Message    string
}

// PostMessage appends to the meeting's chat. sent_at is assigned here, never by the
// client.
func (s *Service) PostMessage(ctx context.Context, req PostRequest) (model.ChatMessage, error) {
	if _, err := s.Get(ctx, req.MeetingID); err != nil {
		return model.ChatMessage{}, err
	}
	role, ok := model.ParseRole(strings.ToLower(strings.TrimSpace(req.SenderRole)))
	if !ok {
		return model.ChatMessage{}, apperr.Validation("senderRole must be admin or guest")
	}
	name := strings.TrimSpace(req.SenderName)
	text := strings.TrimSpace(req.Message)
	switch {
	case name == "":
		return model.ChatMessage{}, apperr.Validation("senderName is required")
	case utf8.RuneCountInString(name) > maxNameLen:
		return model.ChatMessage{}, apperr.Validation("senderName is too long")
	case text == "":
		return model.ChatMessage{}, apperr.Validation("message is required")
	case utf8.RuneCountInString(text) > maxMessageLen:
		return model.ChatMessage{}, apperr.Validation("message is too long")
	}

	msg := model.ChatMessage{
		ID:         uuid.NewString(),
		MeetingID:  req.MeetingID,
		SenderName: name,
		SenderRole: role,
		Message:    text,
		SentAt:     s.now().UTC(),
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return model.ChatMessage{}, err
	}
	return msg, nil
}

// Chat returns the whole log ordered by sent_at.
func (s *Service) Chat(ctx context.Context, meetingID string) ([]model.ChatMessage, error) {
	if _, err := s.Get(ctx, meetingID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, meetingID)
}

type UploadRequest struct {
	MeetingID  string
	FileName   string
	Content    []byte
	MimeType   string
	UploadedBy string
}

// UploadFile hands the bytes to the object store and records the returned URL. The
// meeting is checked first so nothing is stored for an unknown meeting.
func (s *Service) UploadFile(ctx context.Context, req UploadRequest) (model.SharedFile, error) {
	if _, err := s.Get(ctx, req.MeetingID); err != nil {
		return model.SharedFile{}, err
	}
	fileName := strings.TrimSpace(req.FileName)
	uploadedBy := strings.TrimSpace(req.UploadedBy)
	switch {
	case fileName == "":
		return model.SharedFile{}, apperr.Validation("fileName is required")
	case utf8.RuneCountInString(fileName) > maxFileNameLen:
		return model.SharedFile{}, apperr.Validation("fileName is too long")
	case uploadedBy == "":
		return model.SharedFile{}, apperr.Validation("uploadedBy is required")
	}
	mimeType := strings.TrimSpace(req.MimeType)
	if mimeType == "" {
		mimeType = mimetype.Detect(req.Content).String()
	}

	id := uuid.NewString()
	url, err := s.objects.Put(ctx, objectstore.Object{
		Key:      objectstore.KeyFor(req.MeetingID, id, fileName),
		FileName: fileName,
		MimeType: mimeType,
		Data:     req.Content,
	})
	if err != nil {
		s.logger.Warn("object store rejected upload", "meeting_id", req.MeetingID, "file_name", fileName, "err", err)
		return model.SharedFile{}, apperr.Upload(err)
	}

	f := model.SharedFile{
		ID:         id,
		MeetingID:  req.MeetingID,
		FileName:   fileName,
		FileURL:    url,
		UploadedBy: uploadedBy,
		MimeType:   mimeType,
		SizeBytes:  int64(len(req.Content)),
		UploadedAt: s.now().UTC(),
	}
	if err := s.store.AddFile(ctx, f); err != nil {
		return model.SharedFile{}, fmt.Errorf("record uploaded file: %w", err)
	}
	return f, nil
}

// Files returns the meeting's files ordered by upload time.
func (s *Service) Files(ctx context.Context, meetingID string) ([]model.SharedFile, error) {
	if _, err := s.Get(ctx, meetingID); err != nil {
		return nil, err
	}
	return s.store.ListFiles(ctx, meetingID)
}

func checkID(what, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.NotFound(what, id)
	}
	return nil
}
