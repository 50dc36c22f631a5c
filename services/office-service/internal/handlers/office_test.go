package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/advisoryoffice/libs/auth"
	"github.com/md-rashed-zaman/advisoryoffice/libs/events"
	"github.com/md-rashed-zaman/advisoryoffice/libs/httpx"
	"github.com/md-rashed-zaman/advisoryoffice/services/office-service/internal/admission"
	"github.com/md-rashed-zaman/advisoryoffice/services/office-service/internal/meetings"
	"github.com/md-rashed-zaman/advisoryoffice/services/office-service/internal/objectstore"
	"github.com/md-rashed-zaman/advisoryoffice/services/office-service/internal/storage"
)

type fixture struct {
	mux      *http.ServeMux
	meetings *meetings.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemory()
	local, err := objectstore.NewLocal(t.TempDir(), "http://office.test/files", objectstore.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	svc := meetings.NewService(store, local, logger)
	mux := http.NewServeMux()
	NewOfficeHandler(svc, admission.NewEngine(store, logger), logger).Register(mux)
	mux.Handle("GET /files/{key...}", local.Handler())
	return fixture{mux: mux, meetings: svc}
}

func do(mux http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	return rw
}

var admin = map[string]string{auth.HeaderRole: auth.RoleAdmin, auth.HeaderUserID: "owner@example.com"}

func guest(bookingID string) map[string]string {
	return map[string]string{auth.HeaderRole: auth.RoleGuest, auth.HeaderUserID: bookingID, auth.HeaderBookingID: bookingID}
}

func decode[T any](t *testing.T, rw *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rw.Body.Bytes(), &v); err != nil {
		t.Fatalf("bad body %q: %v", rw.Body.String(), err)
	}
	return v
}

func openMeeting(t *testing.T, mux http.Handler, body string) string {
	t.Helper()
	rw := do(mux, http.MethodPost, "/virtual-office/meetings", body, admin)
	if rw.Code != http.StatusCreated {
		t.Fatalf("open meeting: %d %s", rw.Code, rw.Body.String())
	}
	return decode[struct {
		Meeting struct {
			ID string `json:"id"`
		} `json:"meeting"`
	}](t, rw).Meeting.ID
}

func TestWaitingRoomFlow(t *testing.T) {
	f := newFixture(t)
	meetingID := openMeeting(t, f.mux, "")

	rw := do(f.mux, http.MethodPost, "/virtual-office/waiting-room/"+meetingID+"/join", `{"userName":"Bob","userEmail":"bob@example.com"}`, nil)
	if rw.Code != http.StatusCreated {
		t.Fatalf("join: %d %s", rw.Code, rw.Body.String())
	}
	entryID := decode[struct {
		EntryID string `json:"entryId"`
	}](t, rw).EntryID

	rw = do(f.mux, http.MethodGet, "/virtual-office/waiting-room/"+meetingID, "", admin)
	if rw.Code != http.StatusOK {
		t.Fatalf("queue: %d %s", rw.Code, rw.Body.String())
	}
	if rw.Header().Get(httpx.PollIntervalHeader) != "3000" || rw.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("unexpected poll headers: %v", rw.Header())
	}
	queue := decode[struct {
		Queue []entryItem `json:"queue"`
	}](t, rw).Queue
	if len(queue) != 1 || queue[0].ID != entryID || queue[0].Status != "waiting" {
		t.Fatalf("unexpected queue: %+v", queue)
	}

	if rw := do(f.mux, http.MethodPost, "/virtual-office/admit/"+entryID, "", nil); rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session, got %d", rw.Code)
	}
	if rw := do(f.mux, http.MethodPost, "/virtual-office/admit/"+entryID, "", admin); rw.Code != http.StatusOK {
		t.Fatalf("admit: %d %s", rw.Code, rw.Body.String())
	}
	rw = do(f.mux, http.MethodPost, "/virtual-office/reject/"+entryID, "", admin)
	if rw.Code != http.StatusConflict {
		t.Fatalf("expected 409 on second decision, got %d", rw.Code)
	}
	if code := decode[map[string]string](t, rw)["code"]; code != "already_resolved" {
		t.Fatalf("unexpected code %q", code)
	}
	if rw := do(f.mux, http.MethodPost, "/virtual-office/admit/"+uuid.NewString(), "", admin); rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown entry, got %d", rw.Code)
	}

	rw = do(f.mux, http.MethodGet, "/virtual-office/waiting-room/entry/"+entryID, "", nil)
	if entry := decode[struct {
		Entry entryItem `json:"entry"`
	}](t, rw).Entry; entry.Status != "admitted" || entry.ResolvedAt == nil {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	rw = do(f.mux, http.MethodGet, "/virtual-office/waiting-room/"+meetingID, "", admin)
	if queue := decode[struct {
		Queue []entryItem `json:"queue"`
	}](t, rw).Queue; len(queue) != 0 {
		t.Fatalf("resolved entries must leave the queue: %+v", queue)
	}
	rw = do(f.mux, http.MethodGet, "/virtual-office/waiting-room/"+meetingID+"?all=true", "", admin)
	if queue := decode[struct {
		Queue []entryItem `json:"queue"`
	}](t, rw).Queue; len(queue) != 1 {
		t.Fatalf("expected history with ?all=true: %+v", queue)
	}

	rw = do(f.mux, http.MethodGet, "/virtual-office/meetings/"+meetingID, "", admin)
	if m := decode[struct {
		Meeting meetingItem `json:"meeting"`
	}](t, rw).Meeting; len(m.Roster) != 1 || m.Roster[0].UserName != "Bob" {
		t.Fatalf("unexpected roster: %+v", m)
	}
}

func TestQueueRequiresHost(t *testing.T) {
	f := newFixture(t)
	meetingID := openMeeting(t, f.mux, "")
	if rw := do(f.mux, http.MethodGet, "/virtual-office/waiting-room/"+meetingID, "", guest(uuid.NewString())); rw.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rw.Code)
	}
	if rw := do(f.mux, http.MethodGet, "/virtual-office/waiting-room/"+meetingID+"?all=maybe", "", admin); rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestChatEndpoints(t *testing.T) {
	f := newFixture(t)
	meetingID := openMeeting(t, f.mux, "")

	rw := do(f.mux, http.MethodPost, "/virtual-office/chat", `{"meetingId":"`+meetingID+`","senderName":"Ann","senderRole":"guest","message":"hello"}`, nil)
	if rw.Code != http.StatusCreated {
		t.Fatalf("post: %d %s", rw.Code, rw.Body.String())
	}
	rw = do(f.mux, http.MethodPost, "/virtual-office/chat", `{"meetingId":"`+meetingID+`","senderName":"Ann","senderRole":"admin","message":"hi"}`, nil)
	if rw.Code != http.StatusForbidden {
		t.Fatalf("guest posting as admin: expected 403, got %d", rw.Code)
	}
	rw = do(f.mux, http.MethodPost, "/virtual-office/chat", `{"meetingId":"`+meetingID+`","senderName":"Host","senderRole":"admin","message":"welcome"}`, admin)
	if rw.Code != http.StatusCreated {
		t.Fatalf("admin post: %d %s", rw.Code, rw.Body.String())
	}
	rw = do(f.mux, http.MethodPost, "/virtual-office/chat", `{"meetingId":"`+meetingID+`","senderName":"Ann","senderRole":"guest"}`, nil)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("missing message: expected 400, got %d", rw.Code)
	}

	rw = do(f.mux, http.MethodGet, "/virtual-office/chat/"+meetingID, "", nil)
	if rw.Header().Get(httpx.PollIntervalHeader) != "3000" {
		t.Fatalf("unexpected poll interval %q", rw.Header().Get(httpx.PollIntervalHeader))
	}
	chat := decode[struct {
		Chat []chatItem `json:"chat"`
	}](t, rw).Chat
	if len(chat) != 2 || chat[0].Message != "hello" || chat[1].SenderRole != "admin" {
		t.Fatalf("unexpected chat: %+v", chat)
	}
	if rw := do(f.mux, http.MethodGet, "/virtual-office/chat/"+uuid.NewString(), "", nil); rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rw.Code)
	}
}

func TestUploadAndServeFile(t *testing.T) {
	f := newFixture(t)
	meetingID := openMeeting(t, f.mux, "")
	content := base64.StdEncoding.EncodeToString([]byte("quarterly numbers\n"))

	rw := do(f.mux, http.MethodPost, "/virtual-office/files/upload",
		`{"meetingId":"`+meetingID+`","fileName":"notes.txt","fileBase64":"data:text/plain;base64,`+content+`","uploadedBy":"Ann"}`, nil)
	if rw.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", rw.Code, rw.Body.String())
	}
	fileID := decode[struct {
		FileID string `json:"fileId"`
	}](t, rw).FileID

	rw = do(f.mux, http.MethodGet, "/virtual-office/files/"+meetingID, "", nil)
	if rw.Header().Get(httpx.PollIntervalHeader) != "5000" {
		t.Fatalf("unexpected poll interval %q", rw.Header().Get(httpx.PollIntervalHeader))
	}
	files := decode[struct {
		Files []fileItem `json:"files"`
	}](t, rw).Files
	if len(files) != 1 || files[0].ID != fileID || !strings.HasPrefix(files[0].MimeType, "text/plain") {
		t.Fatalf("unexpected files: %+v", files)
	}

	path := strings.TrimPrefix(files[0].FileURL, "http://office.test")
	rw = do(f.mux, http.MethodGet, path, "", nil)
	if rw.Code != http.StatusOK || rw.Body.String() != "quarterly numbers\n" {
		t.Fatalf("serve file: %d %q", rw.Code, rw.Body.String())
	}

	rw = do(f.mux, http.MethodPost, "/virtual-office/files/upload",
		`{"meetingId":"`+meetingID+`","fileName":"x.txt","fileBase64":"%%%","uploadedBy":"Ann"}`, nil)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("bad base64: expected 400, got %d", rw.Code)
	}
	rw = do(f.mux, http.MethodPost, "/virtual-office/files/upload",
		`{"meetingId":"`+meetingID+`","fileName":"run.exe","fileBase64":"`+base64.StdEncoding.EncodeToString([]byte("MZ\x90\x00\x03\x00\x00\x00"))+`","uploadedBy":"Ann"}`, nil)
	if rw.Code != http.StatusBadGateway {
		t.Fatalf("disallowed type: expected 502, got %d: %s", rw.Code, rw.Body.String())
	}
}

func TestGuestScopingOnBookedMeetings(t *testing.T) {
	f := newFixture(t)
	bookingID := uuid.NewString()
	if _, _, err := f.meetings.OpenForBooking(context.Background(), events.BookingCreatedPayload{BookingID: bookingID, StartsAt: "2026-12-25T10:00:00Z"}); err != nil {
		t.Fatal(err)
	}
	lookup := do(f.mux, http.MethodGet, "/virtual-office/meetings?bookingId="+bookingID, "", guest(bookingID))
	if lookup.Code != http.StatusOK {
		t.Fatalf("lookup by booking: %d %s", lookup.Code, lookup.Body.String())
	}
	m := decode[struct {
		Meeting meetingItem `json:"meeting"`
	}](t, lookup).Meeting
	if m.BookingID != bookingID || m.ID == "" {
		t.Fatalf("unexpected meeting %+v", m)
	}
	target := "/virtual-office/chat/" + m.ID

	if rw := do(f.mux, http.MethodGet, target, "", nil); rw.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected 401, got %d", rw.Code)
	}
	if rw := do(f.mux, http.MethodGet, target, "", guest(uuid.NewString())); rw.Code != http.StatusForbidden {
		t.Fatalf("other booking: expected 403, got %d", rw.Code)
	}
	if rw := do(f.mux, http.MethodGet, target, "", guest(bookingID)); rw.Code != http.StatusOK {
		t.Fatalf("owner: expected 200, got %d", rw.Code)
	}
	if rw := do(f.mux, http.MethodGet, target, "", admin); rw.Code != http.StatusOK {
		t.Fatalf("admin: expected 200, got %d", rw.Code)
	}
	rw := do(f.mux, http.MethodPost, "/virtual-office/waiting-room/"+m.ID+"/join", `{"userName":"Eve"}`, guest(uuid.NewString()))
	if rw.Code != http.StatusForbidden {
		t.Fatalf("join with another booking: expected 403, got %d", rw.Code)
	}
}

func TestFindMeetingByBooking(t *testing.T) {
	f := newFixture(t)
	bookingID := uuid.NewString()
	opened, _, err := f.meetings.OpenForBooking(context.Background(), events.BookingCreatedPayload{BookingID: bookingID})
	if err != nil {
		t.Fatal(err)
	}
	target := "/virtual-office/meetings?bookingId=" + bookingID

	cases := []struct {
		name    string
		target  string
		headers map[string]string
		want    int
	}{
		{"anonymous", target, nil, http.StatusUnauthorized},
		{"other booking", target, guest(uuid.NewString()), http.StatusForbidden},
		{"missing booking id", "/virtual-office/meetings", admin, http.StatusBadRequest},
		{"unknown booking", "/virtual-office/meetings?bookingId=" + uuid.NewString(), admin, http.StatusNotFound},
		{"owner", target, guest(bookingID), http.StatusOK},
		{"admin", target, admin, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rw := do(f.mux, http.MethodGet, tc.target, "", tc.headers)
			if rw.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rw.Code, rw.Body.String())
			}
			if tc.want != http.StatusOK {
				return
			}
			if got := decode[struct {
				Meeting meetingItem `json:"meeting"`
			}](t, rw).Meeting; got.ID != opened.ID {
				t.Fatalf("expected meeting %s, got %+v", opened.ID, got)
			}
		})
	}

	// the found id is enough to join the waiting room
	rw := do(f.mux, http.MethodPost, "/virtual-office/waiting-room/"+opened.ID+"/join", `{"userName":"Ada"}`, guest(bookingID))
	if rw.Code != http.StatusCreated {
		t.Fatalf("join: %d %s", rw.Code, rw.Body.String())
	}
}

func TestMeetingAdministration(t *testing.T) {
	f := newFixture(t)
	if rw := do(f.mux, http.MethodPost, "/virtual-office/meetings", "", guest(uuid.NewString())); rw.Code != http.StatusForbidden {
		t.Fatalf("guest open: expected 403, got %d", rw.Code)
	}
	if rw := do(f.mux, http.MethodPost, "/virtual-office/meetings", `{"bookingId":"nope"}`, admin); rw.Code != http.StatusBadRequest {
		t.Fatalf("bad booking id: expected 400, got %d", rw.Code)
	}
	meetingID := openMeeting(t, f.mux, `{"bookingId":"`+uuid.NewString()+`"}`)

	rw := do(f.mux, http.MethodGet, "/virtual-office/meetings/"+meetingID, "", admin)
	if m := decode[struct {
		Meeting meetingItem `json:"meeting"`
	}](t, rw).Meeting; m.StartedAt != nil {
		t.Fatalf("booked meeting must not start on open: %+v", m)
	}
	rw = do(f.mux, http.MethodPost, "/virtual-office/meetings/"+meetingID+"/start", "", admin)
	if m := decode[struct {
		Meeting meetingItem `json:"meeting"`
	}](t, rw).Meeting; rw.Code != http.StatusOK || m.StartedAt == nil {
		t.Fatalf("start: %d %+v", rw.Code, m)
	}
}
