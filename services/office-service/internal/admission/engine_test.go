package admission

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/advisoryoffice/libs/apperr"
	"github.com/md-rashed-zaman/advisoryoffice/libs/events"
	"github.com/md-rashed-zaman/advisoryoffice/services/office-service/internal/model"
	"github.com/md-rashed-zaman/advisoryoffice/services/office-service/internal/storage"
)

func newTestEngine(t *testing.T) (*Engine, *storage.Memory, string) {
	t.Helper()
	store := storage.NewMemory()
	meeting, err := store.CreateMeeting(context.Background(), model.Meeting{ID: uuid.NewString(), CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("create meeting: %v", err)
	}
	engine := NewEngine(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	clock := time.Date(2026, 12, 25, 10, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	engine.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	return engine, store, meeting.ID
}

func TestAdmitThenRejectFailsAndOthersUnaffected(t *testing.T) {
	engine, store, meetingID := newTestEngine(t)
	ctx := context.Background()

	e1, err := engine.RequestJoin(ctx, meetingID, "Ann", "ann@example.com")
	if err != nil {
		t.Fatalf("join e1: %v", err)
	}
	e2, err := engine.RequestJoin(ctx, meetingID, "Bob", "")
	if err != nil {
		t.Fatalf("join e2: %v", err)
	}

	admitted, err := engine.Admit(ctx, e1.ID)
	if err != nil || admitted.Status != model.EntryAdmitted || admitted.ResolvedAt == nil {
		t.Fatalf("admit e1: %+v (%v)", admitted, err)
	}
	if _, err := engine.Reject(ctx, e1.ID); !errors.Is(err, apperr.ErrAlreadyResolved) {
		t.Fatalf("reject after admit: expected AlreadyResolved, got %v", err)
	}
	got, _ := engine.Entry(ctx, e1.ID)
	if got.Status != model.EntryAdmitted {
		t.Fatalf("resolved entry changed to %s", got.Status)
	}

	queue, err := engine.Queue(ctx, meetingID, false)
	if err != nil || len(queue) != 1 || queue[0].ID != e2.ID {
		t.Fatalf("expected only e2 waiting, got %+v (%v)", queue, err)
	}
	if _, err := engine.Admit(ctx, e2.ID); err != nil {
		t.Fatalf("admit e2: %v", err)
	}

	roster, _ := engine.Roster(ctx, meetingID)
	if len(roster) != 2 {
		t.Fatalf("expected two admitted, got %d", len(roster))
	}
	evts := store.Events()
	if len(evts) != 2 || evts[0].EventType != events.EntryResolved {
		t.Fatalf("expected one event per successful resolution, got %+v", evts)
	}
}

func TestConcurrentResolutionsHaveOneWinner(t *testing.T) {
	engine, _, meetingID := newTestEngine(t)
	ctx := context.Background()

	for round := 0; round < 20; round++ {
		entry, err := engine.RequestJoin(ctx, meetingID, "Ann", "")
		if err != nil {
			t.Fatalf("join: %v", err)
		}
		ops := []func(context.Context, string) (model.WaitingEntry, error){engine.Admit, engine.Reject, engine.Admit}
		errs := make([]error, len(ops))
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i, op := range ops {
			wg.Add(1)
			go func(i int, op func(context.Context, string) (model.WaitingEntry, error)) {
				defer wg.Done()
				<-start
				_, errs[i] = op(ctx, entry.ID)
			}(i, op)
		}
		close(start)
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
			t.Fatalf("round %d: expected exactly one winner, got %d", round, wins)
		}
	}
}

func TestRejectedVisitorMayRejoin(t *testing.T) {
	engine, _, meetingID := newTestEngine(t)
	ctx := context.Background()

	first, _ := engine.RequestJoin(ctx, meetingID, "Ann", "ann@example.com")
	if _, err := engine.Reject(ctx, first.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	second, err := engine.RequestJoin(ctx, meetingID, "Ann", "ann@example.com")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if second.ID == first.ID || second.Status != model.EntryWaiting {
		t.Fatalf("rejoin must create a new waiting entry: %+v", second)
	}

	history, _ := engine.Queue(ctx, meetingID, true)
	if len(history) != 2 || history[0].ID != first.ID || history[0].Status != model.EntryRejected {
		t.Fatalf("rejected entry must stay in history in join order: %+v", history)
	}
	if !history[0].JoinRequestedAt.Before(history[1].JoinRequestedAt) {
		t.Fatal("history must be ordered by join time")
	}
}

func TestAdmissionErrors(t *testing.T) {
	engine, _, meetingID := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.RequestJoin(ctx, uuid.NewString(), "Ann", ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown meeting: expected NotFound, got %v", err)
	}
	if _, err := engine.RequestJoin(ctx, "not-a-meeting", "Ann", ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("malformed meeting id: expected NotFound, got %v", err)
	}
	if _, err := engine.RequestJoin(ctx, meetingID, "  ", ""); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("blank name: expected validation error, got %v", err)
	}
	if _, err := engine.RequestJoin(ctx, meetingID, "Ann", "not-an-email"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("bad email: expected validation error, got %v", err)
	}
	if _, err := engine.Admit(ctx, uuid.NewString()); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown entry: expected NotFound, got %v", err)
	}
	if _, err := engine.Reject(ctx, "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("malformed entry id: expected NotFound, got %v", err)
	}
	if _, err := engine.Queue(ctx, uuid.NewString(), false); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("queue of unknown meeting: expected NotFound, got %v", err)
	}
}
