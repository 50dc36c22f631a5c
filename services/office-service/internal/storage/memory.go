package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/advisoryoffice/libs/apperr"
	"github.com/md-rashed-zaman/advisoryoffice/libs/outbox"
	"github.com/md-rashed-zaman/advisoryoffice/services/office-service/internal/model"
)

// Memory is the in-process store used by tests and STORE_DRIVER=memory. Every
// conditional write happens under one lock, so a resolve is a single compare-and-set.
type Memory struct {
	mu        sync.Mutex
	meetings  map[string]model.Meeting
	byBooking map[string]string
	entries   map[string]model.WaitingEntry
	order     map[string][]string // meeting id -> entry ids in insert order
	chat      map[string][]model.ChatMessage
	files     map[string][]model.SharedFile
	events    []outbox.Event
}

func NewMemory() *Memory {
	return &Memory{
		meetings:  map[string]model.Meeting{},
		byBooking: map[string]string{},
		entries:   map[string]model.WaitingEntry{},
		order:     map[string][]string{},
		chat:      map[string][]model.ChatMessage{},
		files:     map[string][]model.SharedFile{},
	}
}

func (m *Memory) CreateMeeting(_ context.Context, mt model.Meeting) (model.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mt.BookingID != "" {
		if _, ok := m.byBooking[mt.BookingID]; ok {
			return model.Meeting{}, apperr.Validation("booking already has a meeting")
		}
		m.byBooking[mt.BookingID] = mt.ID
	}
	m.meetings[mt.ID] = mt
	return mt, nil
}

func (m *Memory) EnsureMeetingForBooking(_ context.Context, mt model.Meeting) (model.Meeting, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byBooking[mt.BookingID]; ok {
		return m.meetings[id], false, nil
	}
	m.byBooking[mt.BookingID] = mt.ID
	m.meetings[mt.ID] = mt
	return mt, true, nil
}

func (m *Memory) GetMeeting(_ context.Context, id string) (model.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt, ok := m.meetings[id]
	if !ok {
		return model.Meeting{}, apperr.NotFound("meeting", id)
	}
	return mt, nil
}

func (m *Memory) MeetingForBooking(_ context.Context, bookingID string) (model.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byBooking[bookingID]
	if !ok {
		return model.Meeting{}, apperr.NotFound("meeting for booking", bookingID)
	}
	return m.meetings[id], nil
}

func (m *Memory) StartMeeting(_ context.Context, id string, at time.Time) (model.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt, ok := m.meetings[id]
	if !ok {
		return model.Meeting{}, apperr.NotFound("meeting", id)
	}
	if mt.StartedAt == nil {
		mt.StartedAt = &at
		m.meetings[id] = mt
	}
	return mt, nil
}

func (m *Memory) CreateEntry(_ context.Context, e model.WaitingEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.meetings[e.MeetingID]; !ok {
		return apperr.NotFound("meeting", e.MeetingID)
	}
	m.entries[e.ID] = e
	m.order[e.MeetingID] = append(m.order[e.MeetingID], e.ID)
	return nil
}

func (m *Memory) ResolveEntry(_ context.Context, id string, res model.Resolution, at time.Time, events func(model.WaitingEntry) ([]outbox.Event, error)) (model.WaitingEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return model.WaitingEntry{}, apperr.NotFound("waiting-room entry", id)
	}
	resolved, err := e.Resolve(res, at)
	if err != nil {
		return model.WaitingEntry{}, err
	}
	evts, err := events(resolved)
	if err != nil {
		return model.WaitingEntry{}, err
	}
	m.entries[id] = resolved
	m.events = append(m.events, evts...)
	return resolved, nil
}

func (m *Memory) GetEntry(_ context.Context, id string) (model.WaitingEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return model.WaitingEntry{}, apperr.NotFound("waiting-room entry", id)
	}
	return e, nil
}

func (m *Memory) ListEntries(_ context.Context, meetingID string, statuses ...model.EntryStatus) ([]model.WaitingEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.WaitingEntry
	for _, id := range m.order[meetingID] {
		e := m.entries[id]
		if len(statuses) > 0 && !hasStatus(statuses, e.Status) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].JoinRequestedAt.Equal(out[j].JoinRequestedAt) {
			return out[i].JoinRequestedAt.Before(out[j].JoinRequestedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) AppendMessage(_ context.Context, msg model.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.meetings[msg.MeetingID]; !ok {
		return apperr.NotFound("meeting", msg.MeetingID)
	}
	m.chat[msg.MeetingID] = append(m.chat[msg.MeetingID], msg)
	return nil
}

func (m *Memory) ListMessages(_ context.Context, meetingID string) ([]model.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]model.ChatMessage(nil), m.chat[meetingID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out, nil
}

func (m *Memory) AddFile(_ context.Context, f model.SharedFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.meetings[f.MeetingID]; !ok {
		return apperr.NotFound("meeting", f.MeetingID)
	}
	m.files[f.MeetingID] = append(m.files[f.MeetingID], f)
	return nil
}

func (m *Memory) ListFiles(_ context.Context, meetingID string) ([]model.SharedFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]model.SharedFile(nil), m.files[meetingID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].UploadedAt.Before(out[j].UploadedAt) })
	return out, nil
}

// Events returns the outbox events recorded so far.
func (m *Memory) Events() []outbox.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]outbox.Event(nil), m.events...)
}

func hasStatus(list []model.EntryStatus, s model.EntryStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
