package livesync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/md-rashed-zaman/advisoryoffice/libs/auth"
)

type ChatMessage struct {
	ID         string    `json:"id"`
	MeetingID  string    `json:"meeting_id"`
	SenderName string    `json:"sender_name"`
	SenderRole string    `json:"sender_role"`
	Message    string    `json:"message"`
	SentAt     time.Time `json:"sent_at"`
}

type SharedFile struct {
	ID         string    `json:"id"`
	MeetingID  string    `json:"meeting_id"`
	FileName   string    `json:"file_name"`
	FileURL    string    `json:"file_url"`
	UploadedBy string    `json:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at"`
	MimeType   string    `json:"mime_type"`
}

type WaitingRoomEntry struct {
	ID              string     `json:"id"`
	MeetingID       string     `json:"meeting_id"`
	UserName        string     `json:"user_name"`
	UserEmail       string     `json:"user_email"`
	Status          string     `json:"status"`
	JoinRequestedAt time.Time  `json:"join_requested_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}

type Meeting struct {
	ID           string     `json:"id"`
	BookingID    string     `json:"booking_id,omitempty"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
}

// Client fetches full meeting state from the office API (directly or through the gateway).
type Client struct {
	baseURL      string
	http         *http.Client
	bearer       string
	bookingToken string
}

type ClientOption func(*Client)

// WithBearer authenticates as a host with an admin session token.
func WithBearer(token string) ClientOption {
	return func(c *Client) { c.bearer = strings.TrimSpace(token) }
}

// WithBookingToken scopes requests to the guest's own booking.
func WithBookingToken(token string) ClientOption {
	return func(c *Client) { c.bookingToken = strings.TrimSpace(token) }
}

func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MeetingForBooking finds the meeting opened for a booking. A guest can only look up the
// booking its token was issued for.
func (c *Client) MeetingForBooking(ctx context.Context, bookingID string) (Meeting, error) {
	var body struct {
		Meeting Meeting `json:"meeting"`
	}
	q := url.Values{"bookingId": {bookingID}}
	if err := c.get(ctx, "/virtual-office/meetings?"+q.Encode(), &body); err != nil {
		return Meeting{}, err
	}
	return body.Meeting, nil
}

func (c *Client) Chat(ctx context.Context, meetingID string) ([]ChatMessage, error) {
	var body struct {
		Chat []ChatMessage `json:"chat"`
	}
	if err := c.get(ctx, "/virtual-office/chat/"+url.PathEscape(meetingID), &body); err != nil {
		return nil, err
	}
	return body.Chat, nil
}

func (c *Client) Files(ctx context.Context, meetingID string) ([]SharedFile, error) {
	var body struct {
		Files []SharedFile `json:"files"`
	}
	if err := c.get(ctx, "/virtual-office/files/"+url.PathEscape(meetingID), &body); err != nil {
		return nil, err
	}
	return body.Files, nil
}

func (c *Client) Queue(ctx context.Context, meetingID string) ([]WaitingRoomEntry, error) {
	var body struct {
		Queue []WaitingRoomEntry `json:"queue"`
	}
	if err := c.get(ctx, "/virtual-office/waiting-room/"+url.PathEscape(meetingID), &body); err != nil {
		return nil, err
	}
	return body.Queue, nil
}

func (c *Client) Entry(ctx context.Context, entryID string) (WaitingRoomEntry, error) {
	var body struct {
		Entry WaitingRoomEntry `json:"entry"`
	}
	if err := c.get(ctx, "/virtual-office/waiting-room/entry/"+url.PathEscape(entryID), &body); err != nil {
		return WaitingRoomEntry{}, err
	}
	return body.Entry, nil
}

func (c *Client) ChatPoller(meetingID string, onSnapshot func([]ChatMessage), logger *slog.Logger) *Poller[[]ChatMessage] {
	return NewPoller("chat:"+meetingID, ChatInterval, func(ctx context.Context) ([]ChatMessage, error) {
		return c.Chat(ctx, meetingID)
	}, onSnapshot, logger)
}

func (c *Client) FilesPoller(meetingID string, onSnapshot func([]SharedFile), logger *slog.Logger) *Poller[[]SharedFile] {
	return NewPoller("files:"+meetingID, FilesInterval, func(ctx context.Context) ([]SharedFile, error) {
		return c.Files(ctx, meetingID)
	}, onSnapshot, logger)
}

func (c *Client) QueuePoller(meetingID string, onSnapshot func([]WaitingRoomEntry), logger *slog.Logger) *Poller[[]WaitingRoomEntry] {
	return NewPoller("queue:"+meetingID, WaitingRoomInterval, func(ctx context.Context) ([]WaitingRoomEntry, error) {
		return c.Queue(ctx, meetingID)
	}, onSnapshot, logger)
}

// EntryPoller lets a guest wait for the host's admission decision.
func (c *Client) EntryPoller(entryID string, onSnapshot func(WaitingRoomEntry), logger *slog.Logger) *Poller[WaitingRoomEntry] {
	return NewPoller("entry:"+entryID, WaitingRoomInterval, func(ctx context.Context) (WaitingRoomEntry, error) {
		return c.Entry(ctx, entryID)
	}, onSnapshot, logger)
}

func (c *Client) get(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	if c.bookingToken != "" {
		req.Header.Set(auth.BookingTokenHeader, c.bookingToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
