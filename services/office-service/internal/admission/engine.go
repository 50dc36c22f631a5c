// Package admission runs the waiting-room state machine: visitors ask to join a meeting
// and the host admits or rejects each request exactly once.
package admission

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/md-rashed-zaman/advisoryoffice/libs/apperr"
	"github.com/md-rashed-zaman/advisoryoffice/libs/events"
	"github.com/md-rashed-zaman/advisoryoffice/libs/outbox"
	"github.com/md-rashed-zaman/advisoryoffice/services/office-service/internal/model"
)

const maxUserNameLen = 120

type Store interface {
	GetMeeting(ctx context.Context, id string) (model.Meeting, error)
	CreateEntry(ctx context.Context, e model.WaitingEntry) error
	ResolveEntry(ctx context.Context, id string, res model.Resolution, at time.Time, events func(model.WaitingEntry) ([]outbox.Event, error)) (model.WaitingEntry, error)
	GetEntry(ctx context.Context, id string) (model.WaitingEntry, error)
	ListEntries(ctx context.Context, meetingID string, statuses ...model.EntryStatus) ([]model.WaitingEntry, error)
}

type Engine struct {
	store    Store
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

func NewEngine(store Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		logger:   logger,
		validate: validator.New(),
		now:      time.Now,
	}
}

// RequestJoin always queues a new waiting entry, also for a visitor who was rejected or
// disconnected before. Entries are never deduplicated by email.
func (e *Engine) RequestJoin(ctx context.Context, meetingID, userName, userEmail string) (model.WaitingEntry, error) {
	userName = strings.TrimSpace(userName)
	userEmail = strings.TrimSpace(userEmail)
	if userName == "" {
		return model.WaitingEntry{}, apperr.Validation("userName is required")
	}
	if utf8.RuneCountInString(userName) > maxUserNameLen {
		return model.WaitingEntry{}, apperr.Validation("userName is too long")
	}
	if userEmail != "" {
		if err := e.validate.Var(userEmail, "email"); err != nil {
			return model.WaitingEntry{}, apperr.Validation("userEmail is not a valid email address")
		}
	}
	if _, err := e.meeting(ctx, meetingID); err != nil {
		return model.WaitingEntry{}, err
	}

	entry := model.WaitingEntry{
		ID:              uuid.NewString(),
		MeetingID:       meetingID,
		UserName:        userName,
		UserEmail:       userEmail,
		Status:          model.EntryWaiting,
		JoinRequestedAt: e.now().UTC(),
	}
	if err := e.store.CreateEntry(ctx, entry); err != nil {
		return model.WaitingEntry{}, err
	}
	e.logger.Info("join requested", "meeting_id", meetingID, "entry_id", entry.ID)
	return entry, nil
}

func (e *Engine) Admit(ctx context.Context, entryID string) (model.WaitingEntry, error) {
	return e.resolve(ctx, entryID, model.Admit)
}

func (e *Engine) Reject(ctx context.Context, entryID string) (model.WaitingEntry, error) {
	return e.resolve(ctx, entryID, model.Reject)
}

func (e *Engine) resolve(ctx context.Context, entryID string, res model.Resolution) (model.WaitingEntry, error) {
	if _, err := uuid.Parse(entryID); err != nil {
		return model.WaitingEntry{}, apperr.NotFound("waiting-room entry", entryID)
	}
	entry, err := e.store.ResolveEntry(ctx, entryID, res, e.now().UTC(), func(resolved model.WaitingEntry) ([]outbox.Event, error) {
		evt, err := outbox.NewEvent("waiting_room_entry", resolved.ID, events.EntryResolved, events.EntryResolvedPayload{
			EntryID:    resolved.ID,
			MeetingID:  resolved.MeetingID,
			UserName:   resolved.UserName,
			UserEmail:  resolved.UserEmail,
			Status:     resolved.Status.String(),
			ResolvedAt: resolved.ResolvedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, fmt.Errorf("build entry event: %w", err)
		}
		return []outbox.Event{evt}, nil
	})
	if err != nil {
		return model.WaitingEntry{}, err
	}
	e.logger.Info("waiting entry resolved", "entry_id", entryID, "meeting_id", entry.MeetingID, "resolution", res.String())
	return entry, nil
}

// Queue lists a meeting's entries by join time. With all unset only waiting entries are
// returned; otherwise the full history, resolved entries included.
func (e *Engine) Queue(ctx context.Context, meetingID string, all bool) ([]model.WaitingEntry, error) {
	if _, err := e.meeting(ctx, meetingID); err != nil {
		return nil, err
	}
	if all {
		return e.store.ListEntries(ctx, meetingID)
	}
	return e.store.ListEntries(ctx, meetingID, model.EntryWaiting)
}

// Roster is the admitted participants of a meeting.
func (e *Engine) Roster(ctx context.Context, meetingID string) ([]model.WaitingEntry, error) {
	return e.store.ListEntries(ctx, meetingID, model.EntryAdmitted)
}

func (e *Engine) Entry(ctx context.Context, entryID string) (model.WaitingEntry, error) {
	if _, err := uuid.Parse(entryID); err != nil {
		return model.WaitingEntry{}, apperr.NotFound("waiting-room entry", entryID)
	}
	return e.store.GetEntry(ctx, entryID)
}

func (e *Engine) meeting(ctx context.Context, id string) (model.Meeting, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Meeting{}, apperr.NotFound("meeting", id)
	}
	return e.store.GetMeeting(ctx, id)
}
