package handlers

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/advisoryoffice/libs/apperr"
	"github.com/md-rashed-zaman/advisoryoffice/libs/auth"
	"github.com/md-rashed-zaman/advisoryoffice/libs/httpx"
	"github.com/md-rashed-zaman/advisoryoffice/libs/livesync"
	"github.com/md-rashed-zaman/advisoryoffice/services/office-service/internal/admission"
	"github.com/md-rashed-zaman/advisoryoffice/services/office-service/internal/meetings"
	"github.com/md-rashed-zaman/advisoryoffice/services/office-service/internal/model"
)

type OfficeHandler struct {
	meetings  *meetings.Service
	admission *admission.Engine
	logger    *slog.Logger
}

func NewOfficeHandler(m *meetings.Service, a *admission.Engine, logger *slog.Logger) *OfficeHandler {
	return &OfficeHandler{meetings: m, admission: a, logger: logger}
}

func (h *OfficeHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /virtual-office/meetings", h.OpenMeeting)
	mux.HandleFunc("GET /virtual-office/meetings", h.FindMeeting)
	mux.HandleFunc("GET /virtual-office/meetings/{meetingId}", h.GetMeeting)
	mux.HandleFunc("POST /virtual-office/meetings/{meetingId}/start", h.StartMeeting)

	mux.HandleFunc("POST /virtual-office/waiting-room/{meetingId}/join", h.Join)
	mux.HandleFunc("GET /virtual-office/waiting-room/entry/{entryId}", h.Entry)
	mux.HandleFunc("GET /virtual-office/waiting-room/{meetingId}", h.Queue)
	mux.HandleFunc("POST /virtual-office/admit/{entryId}", h.Admit)
	mux.HandleFunc("POST /virtual-office/reject/{entryId}", h.Reject)

	mux.HandleFunc("GET /virtual-office/chat/{meetingId}", h.Chat)
	mux.HandleFunc("POST /virtual-office/chat", h.PostChat)
	mux.HandleFunc("GET /virtual-office/files/{meetingId}", h.Files)
	mux.HandleFunc("POST /virtual-office/files/upload", h.Upload)
}

type openMeetingRequest struct {
	BookingID string `json:"bookingId" validate:"omitempty,uuid"`
}

type joinRequest struct {
	UserName  string `json:"userName" validate:"required"`
	UserEmail string `json:"userEmail" validate:"omitempty,email"`
}

type postChatRequest struct {
	MeetingID  string `json:"meetingId" validate:"required"`
	SenderName string `json:"senderName" validate:"required"`
	SenderRole string `json:"senderRole" validate:"required"`
	Message    string `json:"message" validate:"required"`
}

type uploadRequest struct {
	MeetingID  string `json:"meetingId" validate:"required"`
	FileName   string `json:"fileName" validate:"required"`
	FileBase64 string `json:"fileBase64" validate:"required"`
	MimeType   string `json:"mimeType"`
	UploadedBy string `json:"uploadedBy" validate:"required"`
}

func (h *OfficeHandler) OpenMeeting(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	var req openMeetingRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, r, h.logger, err)
			return
		}
	}
	m, err := h.meetings.Open(r.Context(), req.BookingID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"meeting": toMeeting(m, nil)})
}

func (h *OfficeHandler) GetMeeting(w http.ResponseWriter, r *http.Request) {
	m, err := h.authorizeMeeting(r, r.PathValue("meetingId"))
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	roster, err := h.admission.Roster(r.Context(), m.ID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"meeting": toMeeting(m, roster)})
}

// FindMeeting resolves ?bookingId= to the booking's meeting. Guests may only look up
// their own booking.
func (h *OfficeHandler) FindMeeting(w http.ResponseWriter, r *http.Request) {
	bookingID := strings.TrimSpace(r.URL.Query().Get("bookingId"))
	if bookingID == "" {
		httpx.WriteError(w, r, h.logger, apperr.Validation("bookingId is required"))
		return
	}
	p := auth.PrincipalFromHeaders(r.Header)
	if !p.IsAdmin() {
		if p.BookingID == "" {
			httpx.WriteError(w, r, h.logger, apperr.Unauthorized("booking token required"))
			return
		}
		if p.BookingID != bookingID {
			httpx.WriteError(w, r, h.logger, apperr.Forbidden("booking token does not match"))
			return
		}
	}
	m, err := h.meetings.ForBooking(r.Context(), bookingID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"meeting": toMeeting(m, nil)})
}

func (h *OfficeHandler) StartMeeting(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	m, err := h.meetings.Start(r.Context(), r.PathValue("meetingId"))
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"meeting": toMeeting(m, nil)})
}

func (h *OfficeHandler) Join(w http.ResponseWriter, r *http.Request) {
	m, err := h.authorizeMeeting(r, r.PathValue("meetingId"))
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	var req joinRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	entry, err := h.admission.RequestJoin(r.Context(), m.ID, req.UserName, req.UserEmail)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"entryId": entry.ID, "entry": toEntry(entry)})
}

// Entry is polled by a visitor waiting for the host's decision.
func (h *OfficeHandler) Entry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.admission.Entry(r.Context(), r.PathValue("entryId"))
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if _, err := h.authorizeMeeting(r, entry.MeetingID); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WritePoll(w, livesync.WaitingRoomInterval, map[string]any{"entry": toEntry(entry)})
}

// Queue returns the waiting entries; ?all=true adds resolved ones.
func (h *OfficeHandler) Queue(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	all := false
	if raw := strings.TrimSpace(r.URL.Query().Get("all")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.WriteError(w, r, h.logger, apperr.Validation("all must be a boolean"))
			return
		}
		all = v
	}
	list, err := h.admission.Queue(r.Context(), r.PathValue("meetingId"), all)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WritePoll(w, livesync.WaitingRoomInterval, map[string]any{"queue": toEntries(list)})
}

func (h *OfficeHandler) Admit(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.admission.Admit)
}

func (h *OfficeHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.admission.Reject)
}

func (h *OfficeHandler) resolve(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, id string) (model.WaitingEntry, error)) {
	if err := requireAdmin(r); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	entry, err := apply(r.Context(), r.PathValue("entryId"))
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"entry": toEntry(entry)})
}

func (h *OfficeHandler) Chat(w http.ResponseWriter, r *http.Request) {
	m, err := h.authorizeMeeting(r, r.PathValue("meetingId"))
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	list, err := h.meetings.Chat(r.Context(), m.ID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WritePoll(w, livesync.ChatInterval, map[string]any{"chat": toChat(list)})
}

func (h *OfficeHandler) PostChat(w http.ResponseWriter, r *http.Request) {
	var req postChatRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if _, err := h.authorizeMeeting(r, req.MeetingID); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if strings.EqualFold(strings.TrimSpace(req.SenderRole), string(model.RoleAdmin)) {
		if err := requireAdmin(r); err != nil {
			httpx.WriteError(w, r, h.logger, apperr.Forbidden("only the host can post as admin"))
			return
		}
	}
	msg, err := h.meetings.PostMessage(r.Context(), meetings.PostRequest{
		MeetingID:  req.MeetingID,
		SenderName: req.SenderName,
		SenderRole: req.SenderRole,
		Message:    req.Message,
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"messageId": msg.ID, "message": toChat([]model.ChatMessage{msg})[0]})
}

func (h *OfficeHandler) Files(w http.ResponseWriter, r *http.Request) {
	m, err := h.authorizeMeeting(r, r.PathValue("meetingId"))
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	list, err := h.meetings.Files(r.Context(), m.ID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WritePoll(w, livesync.FilesInterval, map[string]any{"files": toFiles(list)})
}

func (h *OfficeHandler) Upload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if _, err := h.authorizeMeeting(r, req.MeetingID); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	content, err := decodeBase64(req.FileBase64)
	if err != nil {
		httpx.WriteError(w, r, h.logger, apperr.Validation("fileBase64 is not valid base64"))
		return
	}
	f, err := h.meetings.UploadFile(r.Context(), meetings.UploadRequest{
		MeetingID:  req.MeetingID,
		FileName:   req.FileName,
		Content:    content,
		MimeType:   req.MimeType,
		UploadedBy: req.UploadedBy,
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"fileId": f.ID, "file": toFiles([]model.SharedFile{f})[0]})
}

// authorizeMeeting loads the meeting and applies guest scoping: a meeting booked by a
// visitor is reachable only with that booking's token. Ad-hoc meetings are open to
// anyone holding the id.
func (h *OfficeHandler) authorizeMeeting(r *http.Request, meetingID string) (model.Meeting, error) {
	m, err := h.meetings.Get(r.Context(), meetingID)
	if err != nil {
		return model.Meeting{}, err
	}
	p := auth.PrincipalFromHeaders(r.Header)
	if p.IsAdmin() || m.BookingID == "" {
		return m, nil
	}
	if p.BookingID == "" {
		return model.Meeting{}, apperr.Unauthorized("booking token required")
	}
	if p.BookingID != m.BookingID {
		return model.Meeting{}, apperr.Forbidden("meeting belongs to another booking")
	}
	return m, nil
}

// decodeBase64 accepts plain base64 and data URLs ("data:image/png;base64,...").
func decodeBase64(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "data:") {
		if i := strings.Index(raw, ","); i >= 0 {
			raw = raw[i+1:]
		}
	}
	return base64.StdEncoding.DecodeString(raw)
}

func requireAdmin(r *http.Request) error {
	p := auth.PrincipalFromHeaders(r.Header)
	if p.Role == "" {
		return apperr.Unauthorized("admin session required")
	}
	if !p.IsAdmin() {
		return apperr.Forbidden("admin role required")
	}
	return nil
}
