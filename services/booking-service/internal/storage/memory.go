package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/advisoryoffice/libs/apperr"
	"github.com/md-rashed-zaman/advisoryoffice/libs/outbox"
	"github.com/md-rashed-zaman/advisoryoffice/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/advisoryoffice/services/booking-service/internal/model"
)

// MemoryStore keeps bookings in process. The slot check and the insert happen under one
// lock, which gives it the same exclusivity as the partial unique index.
type MemoryStore struct {
	mu       sync.Mutex
	bookings map[string]model.Booking
	events   []outbox.Event
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bookings: map[string]model.Booking{}, now: time.Now}
}

func (m *MemoryStore) Create(_ context.Context, b model.Booking, events ...outbox.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.holderLocked(b.Date, b.Clock, "") {
		return slotConflict(b)
	}
	m.bookings[b.ID] = b
	m.events = append(m.events, events...)
	return nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id string, to model.Status, events func(prev, next model.Booking) ([]outbox.Event, error)) (model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.bookings[id]
	if !ok {
		return model.Booking{}, apperr.NotFound("booking", id)
	}
	if prev.Status == to {
		return prev, nil
	}
	if to.HoldsSlot() && !prev.Status.HoldsSlot() && m.holderLocked(prev.Date, prev.Clock, id) {
		return model.Booking{}, slotConflict(prev)
	}

	next := prev
	next.Status = to
	next.UpdatedAt = m.now().UTC()
	evts, err := events(prev, next)
	if err != nil {
		return model.Booking{}, err
	}
	m.bookings[id] = next
	m.events = append(m.events, evts...)
	return next, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return model.Booking{}, apperr.NotFound("booking", id)
	}
	return b, nil
}

func (m *MemoryStore) List(_ context.Context, f model.Filter) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Booking, 0, len(m.bookings))
	for _, b := range m.bookings {
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if f.Date != "" && b.Date != f.Date {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryStore) Occupied(_ context.Context, date string) ([]availability.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []availability.Slot
	for _, b := range m.bookings {
		if b.Date == date && b.Status.HoldsSlot() {
			out = append(out, availability.Slot{Date: b.Date, Clock: b.Clock})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Clock < out[j].Clock })
	return out, nil
}

// Events returns the outbox events recorded so far.
func (m *MemoryStore) Events() []outbox.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]outbox.Event(nil), m.events...)
}

func (m *MemoryStore) holderLocked(date, clock, except string) bool {
	for id, b := range m.bookings {
		if id != except && b.Date == date && b.Clock == clock && b.Status.HoldsSlot() {
			return true
		}
	}
	return false
}
