package livesync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/advisoryoffice/libs/auth"
)

func TestClientFetchesFullLists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(auth.BookingTokenHeader) != "guest-token" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/virtual-office/chat/m-1":
			_, _ = w.Write([]byte(`{"chat":[{"id":"c1","meeting_id":"m-1","sender_name":"Ann","sender_role":"guest","message":"hi","sent_at":"2026-12-25T10:00:00Z"}]}`))
		case "/virtual-office/files/m-1":
			_, _ = w.Write([]byte(`{"files":[{"id":"f1","meeting_id":"m-1","file_name":"a.png","file_url":"http://x/a.png","uploaded_by":"Ann","mime_type":"image/png","uploaded_at":"2026-12-25T10:01:00Z"}]}`))
		case "/virtual-office/meetings":
			if r.URL.Query().Get("bookingId") != "b-1" {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte(`{"meeting":{"id":"m-1","booking_id":"b-1","scheduled_for":"2026-12-25T10:00:00Z"}}`))
		case "/virtual-office/waiting-room/entry/e-1":
			_, _ = w.Write([]byte(`{"entry":{"id":"e-1","meeting_id":"m-1","user_name":"Ann","status":"admitted","join_requested_at":"2026-12-25T09:59:00Z"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", WithBookingToken("guest-token"))
	ctx := context.Background()

	m, err := c.MeetingForBooking(ctx, "b-1")
	if err != nil || m.ID != "m-1" || m.ScheduledFor == nil {
		t.Fatalf("unexpected meeting: %+v (%v)", m, err)
	}
	if _, err := c.MeetingForBooking(ctx, "b-2"); err == nil {
		t.Fatal("expected error for unknown booking")
	}

	chat, err := c.Chat(ctx, "m-1")
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if len(chat) != 1 || chat[0].Message != "hi" || !chat[0].SentAt.Equal(time.Date(2026, 12, 25, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected chat: %+v", chat)
	}
	files, err := c.Files(ctx, "m-1")
	if err != nil || len(files) != 1 || files[0].MimeType != "image/png" {
		t.Fatalf("unexpected files: %+v (%v)", files, err)
	}
	entry, err := c.Entry(ctx, "e-1")
	if err != nil || entry.Status != "admitted" {
		t.Fatalf("unexpected entry: %+v (%v)", entry, err)
	}
	if _, err := c.Queue(ctx, "m-1"); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestChatPollerAgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"chat":[]}`))
	}))
	defer srv.Close()

	got := make(chan []ChatMessage, 1)
	p := NewClient(srv.URL).ChatPoller("m-1", func(msgs []ChatMessage) {
		select {
		case got <- msgs:
		default:
		}
	}, nil)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Close()

	select {
	case msgs := <-got:
		if len(msgs) != 0 {
			t.Fatalf("expected empty chat, got %d", len(msgs))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for first poll")
	}
}
