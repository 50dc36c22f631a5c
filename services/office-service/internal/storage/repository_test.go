package storage

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/advisoryoffice/libs/apperr"
	"github.com/md-rashed-zaman/advisoryoffice/libs/db"
	"github.com/md-rashed-zaman/advisoryoffice/libs/outbox"
	"github.com/md-rashed-zaman/advisoryoffice/services/office-service/internal/model"
)

// openTestRepo connects to TEST_DATABASE_URL; the test is skipped when it is unset.
func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Open(ctx, url, db.PoolConfig{MaxConns: 8})
	if err != nil {
		t.Fatalf("db open: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := pool.ApplySchema(ctx, Schema()); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return NewRepository(pool, outbox.NewRepository())
}

func noEvents(model.WaitingEntry) ([]outbox.Event, error) { return nil, nil }

func TestRepositoryResolveExactlyOnce(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	m, err := repo.CreateMeeting(ctx, model.Meeting{ID: uuid.NewString(), CreatedAt: now, StartedAt: &now})
	if err != nil {
		t.Fatalf("create meeting: %v", err)
	}
	entry := model.WaitingEntry{ID: uuid.NewString(), MeetingID: m.ID, UserName: "Bob", Status: model.EntryWaiting, JoinRequestedAt: now}
	if err := repo.CreateEntry(ctx, entry); err != nil {
		t.Fatalf("create entry: %v", err)
	}

	resolutions := []model.Resolution{model.Admit, model.Reject, model.Admit, model.Reject}
	errs := make([]error, len(resolutions))
	var wg sync.WaitGroup
	for i, res := range resolutions {
		wg.Add(1)
		go func(i int, res model.Resolution) {
			defer wg.Done()
			_, errs[i] = repo.ResolveEntry(ctx, entry.ID, res, time.Now().UTC(), noEvents)
		}(i, res)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, apperr.ErrAlreadyResolved):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one resolution, got %d", wins)
	}

	got, err := repo.GetEntry(ctx, entry.ID)
	if err != nil || got.Status == model.EntryWaiting || got.ResolvedAt == nil {
		t.Fatalf("unexpected entry: %+v %v", got, err)
	}
	if _, err := repo.ResolveEntry(ctx, uuid.NewString(), model.Admit, now, noEvents); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRepositoryMeetingForBookingIsIdempotent(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	bookingID := uuid.NewString()
	at := time.Date(2026, 12, 25, 10, 0, 0, 0, time.UTC)

	first, created, err := repo.EnsureMeetingForBooking(ctx, model.Meeting{ID: uuid.NewString(), BookingID: bookingID, ScheduledFor: &at, CreatedAt: time.Now().UTC()})
	if err != nil || !created {
		t.Fatalf("first ensure: created=%v err=%v", created, err)
	}
	second, created, err := repo.EnsureMeetingForBooking(ctx, model.Meeting{ID: uuid.NewString(), BookingID: bookingID, ScheduledFor: &at, CreatedAt: time.Now().UTC()})
	if err != nil || created || second.ID != first.ID {
		t.Fatalf("second ensure: %+v created=%v err=%v", second, created, err)
	}
	if _, err := repo.CreateMeeting(ctx, model.Meeting{ID: uuid.NewString(), BookingID: bookingID, CreatedAt: time.Now().UTC()}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for a second meeting, got %v", err)
	}
}

func TestRepositoryChatOrderAndUnknownMeeting(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	m, err := repo.CreateMeeting(ctx, model.Meeting{ID: uuid.NewString(), CreatedAt: now})
	if err != nil {
		t.Fatal(err)
	}
	// Same timestamp: insertion order breaks the tie.
	for _, text := range []string{"first", "second", "third"} {
		msg := model.ChatMessage{ID: uuid.NewString(), MeetingID: m.ID, SenderName: "Ann", SenderRole: model.RoleGuest, Message: text, SentAt: now}
		if err := repo.AppendMessage(ctx, msg); err != nil {
			t.Fatal(err)
		}
	}
	list, err := repo.ListMessages(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 || list[0].Message != "first" || list[2].Message != "third" {
		t.Fatalf("unexpected order: %+v", list)
	}

	err = repo.AppendMessage(ctx, model.ChatMessage{ID: uuid.NewString(), MeetingID: uuid.NewString(), SenderName: "Ann", SenderRole: model.RoleGuest, Message: "x", SentAt: now})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found for unknown meeting, got %v", err)
	}
}
