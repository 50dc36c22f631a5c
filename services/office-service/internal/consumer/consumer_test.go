package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/advisoryoffice/libs/events"
	"github.com/md-rashed-zaman/advisoryoffice/libs/kafkax"
	"github.com/md-rashed-zaman/advisoryoffice/services/office-service/internal/inbox"
	"github.com/md-rashed-zaman/advisoryoffice/services/office-service/internal/meetings"
	"github.com/md-rashed-zaman/advisoryoffice/services/office-service/internal/model"
	"github.com/md-rashed-zaman/advisoryoffice/services/office-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

// sliceReader replays msgs and then blocks until ctx is cancelled.
type sliceReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []string
	closed    bool
}

func (r *sliceReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		msg := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *sliceReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, kafkax.ExtractEventMeta(m).EventID)
	}
	return nil
}

func (r *sliceReader) commits() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.committed...)
}

func (r *sliceReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func bookingMessage(t *testing.T, eventID, bookingID string) kafka.Message {
	t.Helper()
	raw, err := json.Marshal(events.BookingCreatedPayload{BookingID: bookingID, StartsAt: "2026-12-25T10:00:00Z"})
	if err != nil {
		t.Fatal(err)
	}
	return kafka.Message{
		Topic: events.BookingCreated,
		Key:   []byte(bookingID),
		Value: raw,
		Headers: []kafka.Header{
			{Key: kafkax.HeaderEventID, Value: []byte(eventID)},
			{Key: kafkax.HeaderEventType, Value: []byte(events.BookingCreated)},
		},
	}
}

func TestBookingCreatedOpensOneMeetingPerBooking(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemory()
	svc := meetings.NewService(store, nil, logger)
	box := inbox.NewMemory()

	bookingID := uuid.NewString()
	reader := &sliceReader{msgs: []kafka.Message{
		bookingMessage(t, "evt-1", bookingID),
		bookingMessage(t, "evt-1", bookingID), // redelivery
		bookingMessage(t, "evt-2", bookingID), // same booking, new event id
		{Topic: events.BookingCreated, Value: []byte("{not json"), Headers: []kafka.Header{{Key: kafkax.HeaderEventID, Value: []byte("evt-3")}}},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c := NewWithReader(logger, box, reader, BookingCreated(svc, logger))
	go func() {
		c.Run(ctx)
		close(done)
	}()

	// evt-3 is the last message; once it is recorded everything before it was handled.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if seen, _ := box.Seen(ctx, "evt-3"); seen {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("events were not processed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	m, err := store.MeetingForBooking(context.Background(), bookingID)
	if err != nil {
		t.Fatalf("meeting for booking: %v", err)
	}
	if m.ScheduledFor == nil {
		t.Fatal("meeting must carry the booked slot")
	}
	for _, id := range []string{"evt-1", "evt-2"} {
		if seen, _ := box.Seen(context.Background(), id); !seen {
			t.Fatalf("%s not recorded", id)
		}
	}
	if got := reader.commits(); len(got) != 4 {
		t.Fatalf("expected every handled message committed, got %v", got)
	}
	if !reader.closed {
		t.Fatal("reader must be closed when Run returns")
	}
}

// flakyOpener fails until failures reaches zero.
type flakyOpener struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyOpener) OpenForBooking(context.Context, events.BookingCreatedPayload) (model.Meeting, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return model.Meeting{}, false, errors.New("db down")
	}
	return model.Meeting{}, true, nil
}

func (f *flakyOpener) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestFailedHandlerIsNotRecorded(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	box := inbox.NewMemory()
	opener := &flakyOpener{failures: 1}
	c := NewWithReader(logger, box, &sliceReader{}, BookingCreated(opener, logger))

	msg := bookingMessage(t, "evt-9", uuid.NewString())
	if err := c.process(context.Background(), msg); err == nil {
		t.Fatal("expected the handler error to be returned")
	}
	if seen, _ := box.Seen(context.Background(), "evt-9"); seen {
		t.Fatal("failed event must not be recorded")
	}
	if err := c.process(context.Background(), msg); err != nil {
		t.Fatalf("second attempt: %v", err)
	}
	if seen, _ := box.Seen(context.Background(), "evt-9"); !seen {
		t.Fatal("event must be recorded once the handler succeeded")
	}
}

func TestFailedEventIsRetriedBeforeCommit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	box := inbox.NewMemory()
	opener := &flakyOpener{failures: 2}
	reader := &sliceReader{msgs: []kafka.Message{
		bookingMessage(t, "evt-10", uuid.NewString()),
		bookingMessage(t, "evt-11", uuid.NewString()),
	}}
	c := NewWithReader(logger, box, reader, BookingCreated(opener, logger))
	c.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(reader.commits()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("events were not committed, got %v", reader.commits())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if got := reader.commits(); got[0] != "evt-10" || got[1] != "evt-11" {
		t.Fatalf("commit order = %v", got)
	}
	// two failures plus one success for evt-10, one call for evt-11
	if n := opener.callCount(); n != 4 {
		t.Fatalf("expected 4 handler calls, got %d", n)
	}
}

func TestFailingEventIsNeverCommitted(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opener := &flakyOpener{failures: 1 << 30}
	reader := &sliceReader{msgs: []kafka.Message{bookingMessage(t, "evt-12", uuid.NewString())}}
	c := NewWithReader(logger, inbox.NewMemory(), reader, BookingCreated(opener, logger))
	c.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for opener.callCount() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("handler was not retried")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if got := reader.commits(); len(got) != 0 {
		t.Fatalf("failing event must not be committed, got %v", got)
	}
}
