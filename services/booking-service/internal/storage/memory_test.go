package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/advisoryoffice/libs/apperr"
	"github.com/md-rashed-zaman/advisoryoffice/libs/outbox"
	"github.com/md-rashed-zaman/advisoryoffice/services/booking-service/internal/model"
)

func newBooking(id, clock string) model.Booking {
	return model.Booking{
		ID:        id,
		Name:      "Ann",
		Phone:     "+8801700000000",
		Date:      "2026-12-25",
		Clock:     clock,
		Status:    model.StatusNew,
		CreatedAt: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}
}

func noEvents(model.Booking, model.Booking) ([]outbox.Event, error) { return nil, nil }

func TestMemoryStoreConcurrentCreateSingleWinner(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	const racers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.Create(ctx, newBooking(string(rune('a'+i)), "10:00"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, apperr.ErrSlotConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if wins != 1 || conflicts != racers-1 {
		t.Fatalf("expected 1 win and %d conflicts, got %d/%d", racers-1, wins, conflicts)
	}
}

func TestMemoryStoreReleaseAndReacquire(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, newBooking("b1", "10:00")); err != nil {
		t.Fatalf("create b1: %v", err)
	}
	if _, err := store.UpdateStatus(ctx, "b1", model.StatusCancelled, noEvents); err != nil {
		t.Fatalf("cancel b1: %v", err)
	}
	if err := store.Create(ctx, newBooking("b2", "10:00")); err != nil {
		t.Fatalf("rebook after cancel: %v", err)
	}
	if _, err := store.UpdateStatus(ctx, "b1", model.StatusNew, noEvents); !errors.Is(err, apperr.ErrSlotConflict) {
		t.Fatalf("expected conflict reopening b1, got %v", err)
	}
	b1, _ := store.Get(ctx, "b1")
	if b1.Status != model.StatusCancelled {
		t.Fatalf("failed reopen must not change status, got %s", b1.Status)
	}

	occupied, _ := store.Occupied(ctx, "2026-12-25")
	if len(occupied) != 1 || occupied[0].Clock != "10:00" {
		t.Fatalf("unexpected occupied slots: %+v", occupied)
	}
	if _, err := store.UpdateStatus(ctx, "missing", model.StatusClosed, noEvents); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
