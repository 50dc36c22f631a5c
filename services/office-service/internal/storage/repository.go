package storage

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/advisoryoffice/libs/apperr"
	"github.com/md-rashed-zaman/advisoryoffice/libs/db"
	"github.com/md-rashed-zaman/advisoryoffice/libs/outbox"
	"github.com/md-rashed-zaman/advisoryoffice/services/office-service/internal/model"
)

//go:embed schema.sql
var schemaDDL string

// Schema returns the office tables plus the outbox table.
func Schema() string {
	return schemaDDL + outbox.Schema
}

const (
	meetingColumns = `id::text, COALESCE(booking_id::text, ''), scheduled_for, started_at, created_at`
	entryColumns   = `id::text, meeting_id::text, user_name, user_email, status, join_requested_at, resolved_at`
	messageColumns = `id::text, meeting_id::text, sender_name, sender_role, message, sent_at`
	fileColumns    = `id::text, meeting_id::text, file_name, file_url, uploaded_by, mime_type, size_bytes, uploaded_at`
)

// Repository is the Postgres store for meetings, waiting-room entries, chat and files.
type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{pool: pool, outbox: outboxRepo}
}

func (r *Repository) CreateMeeting(ctx context.Context, m model.Meeting) (model.Meeting, error) {
	created, err := scanMeeting(r.pool.QueryRow(ctx, `
		INSERT INTO meetings (id, booking_id, scheduled_for, started_at, created_at)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5)
		RETURNING `+meetingColumns,
		m.ID, m.BookingID, m.ScheduledFor, m.StartedAt, m.CreatedAt))
	if err != nil {
		if db.IsConstraintViolation(err, "meetings_booking_id_key") {
			return model.Meeting{}, apperr.Validation("booking already has a meeting")
		}
		return model.Meeting{}, fmt.Errorf("insert meeting: %w", err)
	}
	return created, nil
}

// EnsureMeetingForBooking creates the booking's meeting unless one exists. It returns
// the stored meeting and whether this call created it.
func (r *Repository) EnsureMeetingForBooking(ctx context.Context, m model.Meeting) (model.Meeting, bool, error) {
	created, err := scanMeeting(r.pool.QueryRow(ctx, `
		INSERT INTO meetings (id, booking_id, scheduled_for, created_at)
		VALUES ($1, $2::uuid, $3, $4)
		ON CONFLICT (booking_id) DO NOTHING
		RETURNING `+meetingColumns,
		m.ID, m.BookingID, m.ScheduledFor, m.CreatedAt))
	if err == nil {
		return created, true, nil
	}
	if !db.IsNoRows(err) {
		return model.Meeting{}, false, fmt.Errorf("insert meeting: %w", err)
	}
	existing, err := r.MeetingForBooking(ctx, m.BookingID)
	return existing, false, err
}

func (r *Repository) GetMeeting(ctx context.Context, id string) (model.Meeting, error) {
	m, err := scanMeeting(r.pool.QueryRow(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return model.Meeting{}, apperr.NotFound("meeting", id)
		}
		return model.Meeting{}, fmt.Errorf("get meeting: %w", err)
	}
	return m, nil
}

func (r *Repository) MeetingForBooking(ctx context.Context, bookingID string) (model.Meeting, error) {
	m, err := scanMeeting(r.pool.QueryRow(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE booking_id = $1::uuid`, bookingID))
	if err != nil {
		if db.IsNoRows(err) {
			return model.Meeting{}, apperr.NotFound("meeting for booking", bookingID)
		}
		return model.Meeting{}, fmt.Errorf("get meeting by booking: %w", err)
	}
	return m, nil
}

// StartMeeting sets started_at once; later calls keep the first value.
func (r *Repository) StartMeeting(ctx context.Context, id string, at time.Time) (model.Meeting, error) {
	m, err := scanMeeting(r.pool.QueryRow(ctx, `
		UPDATE meetings SET started_at = COALESCE(started_at, $2)
		WHERE id = $1
		RETURNING `+meetingColumns, id, at))
	if err != nil {
		if db.IsNoRows(err) {
			return model.Meeting{}, apperr.NotFound("meeting", id)
		}
		return model.Meeting{}, fmt.Errorf("start meeting: %w", err)
	}
	return m, nil
}

func (r *Repository) CreateEntry(ctx context.Context, e model.WaitingEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO waiting_room_entries (id, meeting_id, user_name, user_email, status, join_requested_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.MeetingID, e.UserName, e.UserEmail, e.Status.String(), e.JoinRequestedAt)
	if db.IsForeignKeyViolation(err) {
		return apperr.NotFound("meeting", e.MeetingID)
	}
	if err != nil {
		return fmt.Errorf("insert waiting entry: %w", err)
	}
	return nil
}

// ResolveEntry moves a waiting entry to res's target with one conditional update. Of
// two concurrent resolutions exactly one matches the status = 'waiting' predicate; the
// other sees zero rows and gets apperr.AlreadyResolved.
func (r *Repository) ResolveEntry(ctx context.Context, id string, res model.Resolution, at time.Time, events func(model.WaitingEntry) ([]outbox.Event, error)) (model.WaitingEntry, error) {
	target := res.Target()
	if target == 0 {
		return model.WaitingEntry{}, apperr.Validation("invalid resolution")
	}
	var resolved model.WaitingEntry
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		e, err := scanEntry(tx.QueryRow(ctx, `
			UPDATE waiting_room_entries
			SET status = $2, resolved_at = $3
			WHERE id = $1 AND status = 'waiting'
			RETURNING `+entryColumns, id, target.String(), at))
		if err != nil {
			if !db.IsNoRows(err) {
				return fmt.Errorf("resolve waiting entry: %w", err)
			}
			var status string
			err := tx.QueryRow(ctx, `SELECT status FROM waiting_room_entries WHERE id = $1`, id).Scan(&status)
			if db.IsNoRows(err) {
				return apperr.NotFound("waiting-room entry", id)
			}
			if err != nil {
				return fmt.Errorf("load waiting entry: %w", err)
			}
			return apperr.AlreadyResolved(id, status)
		}
		resolved = e
		evts, err := events(e)
		if err != nil {
			return err
		}
		return r.outbox.InsertAll(ctx, tx, evts)
	})
	if err != nil {
		return model.WaitingEntry{}, err
	}
	return resolved, nil
}

func (r *Repository) GetEntry(ctx context.Context, id string) (model.WaitingEntry, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM waiting_room_entries WHERE id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return model.WaitingEntry{}, apperr.NotFound("waiting-room entry", id)
		}
		return model.WaitingEntry{}, fmt.Errorf("get waiting entry: %w", err)
	}
	return e, nil
}

// ListEntries returns the meeting's entries by join time. With no statuses given every
// entry is returned.
func (r *Repository) ListEntries(ctx context.Context, meetingID string, statuses ...model.EntryStatus) ([]model.WaitingEntry, error) {
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, s.String())
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM waiting_room_entries
		WHERE meeting_id = $1 AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		ORDER BY join_requested_at, id
	`, meetingID, names)
	if err != nil {
		return nil, fmt.Errorf("list waiting entries: %w", err)
	}
	return collect(rows, scanEntry)
}

func (r *Repository) AppendMessage(ctx context.Context, m model.ChatMessage) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO chat_messages (id, meeting_id, sender_name, sender_role, message, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.MeetingID, m.SenderName, string(m.SenderRole), m.Message, m.SentAt)
	if db.IsForeignKeyViolation(err) {
		return apperr.NotFound("meeting", m.MeetingID)
	}
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

func (r *Repository) ListMessages(ctx context.Context, meetingID string) ([]model.ChatMessage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM chat_messages
		WHERE meeting_id = $1
		ORDER BY sent_at, seq
	`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	return collect(rows, scanMessage)
}

func (r *Repository) AddFile(ctx context.Context, f model.SharedFile) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO shared_files (id, meeting_id, file_name, file_url, uploaded_by, mime_type, size_bytes, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, f.ID, f.MeetingID, f.FileName, f.FileURL, f.UploadedBy, f.MimeType, f.SizeBytes, f.UploadedAt)
	if db.IsForeignKeyViolation(err) {
		return apperr.NotFound("meeting", f.MeetingID)
	}
	if err != nil {
		return fmt.Errorf("insert shared file: %w", err)
	}
	return nil
}

func (r *Repository) ListFiles(ctx context.Context, meetingID string) ([]model.SharedFile, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+fileColumns+`
		FROM shared_files
		WHERE meeting_id = $1
		ORDER BY uploaded_at, seq
	`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("list shared files: %w", err)
	}
	return collect(rows, scanFile)
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanMeeting(row pgx.Row) (model.Meeting, error) {
	var m model.Meeting
	err := row.Scan(&m.ID, &m.BookingID, &m.ScheduledFor, &m.StartedAt, &m.CreatedAt)
	return m, err
}

func scanEntry(row pgx.Row) (model.WaitingEntry, error) {
	var (
		e      model.WaitingEntry
		status string
	)
	if err := row.Scan(&e.ID, &e.MeetingID, &e.UserName, &e.UserEmail, &status, &e.JoinRequestedAt, &e.ResolvedAt); err != nil {
		return model.WaitingEntry{}, err
	}
	s, ok := model.ParseEntryStatus(status)
	if !ok {
		return model.WaitingEntry{}, fmt.Errorf("unknown entry status %q", status)
	}
	e.Status = s
	return e, nil
}

func scanMessage(row pgx.Row) (model.ChatMessage, error) {
	var (
		m    model.ChatMessage
		role string
	)
	if err := row.Scan(&m.ID, &m.MeetingID, &m.SenderName, &role, &m.Message, &m.SentAt); err != nil {
		return model.ChatMessage{}, err
	}
	m.SenderRole = model.Role(role)
	return m, nil
}

func scanFile(row pgx.Row) (model.SharedFile, error) {
	var f model.SharedFile
	err := row.Scan(&f.ID, &f.MeetingID, &f.FileName, &f.FileURL, &f.UploadedBy, &f.MimeType, &f.SizeBytes, &f.UploadedAt)
	return f, err
}
