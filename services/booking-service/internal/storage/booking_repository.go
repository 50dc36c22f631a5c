package storage

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/advisoryoffice/libs/apperr"
	"github.com/md-rashed-zaman/advisoryoffice/libs/db"
	"github.com/md-rashed-zaman/advisoryoffice/libs/outbox"
	"github.com/md-rashed-zaman/advisoryoffice/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/advisoryoffice/services/booking-service/internal/model"
)

//go:embed schema.sql
var schemaDDL string

// Schema returns the booking tables plus the outbox table.
func Schema() string {
	return schemaDDL + outbox.Schema
}

const activeSlotIndex = "bookings_active_slot_uniq"

const bookingColumns = `id::text, name, phone, to_char(slot_date, 'YYYY-MM-DD'), to_char(slot_time, 'HH24:MI'),
	service_type, status, created_at, updated_at`

type BookingRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewBookingRepository(pool *db.Pool, outboxRepo *outbox.Repository) *BookingRepository {
	return &BookingRepository{pool: pool, outbox: outboxRepo}
}

// Create inserts the booking and its events in one transaction. The partial unique index
// is the only slot check: a lost race surfaces as a unique violation and becomes
// apperr.SlotConflict.
func (r *BookingRepository) Create(ctx context.Context, b model.Booking, events ...outbox.Event) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO bookings (id, name, phone, slot_date, slot_time, service_type, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4::date, $5::time, $6, $7, $8, $8)
		`, b.ID, b.Name, b.Phone, b.Date, b.Clock, b.ServiceType, string(b.Status), b.CreatedAt)
		if err != nil {
			if db.IsConstraintViolation(err, activeSlotIndex) {
				return slotConflict(b)
			}
			return fmt.Errorf("insert booking: %w", err)
		}
		return r.outbox.InsertAll(ctx, tx, events)
	})
}

// UpdateStatus moves a booking to status `to`. Moving a released booking back to an
// active status re-acquires the slot through the same index. events builds the outbox
// rows from the previous and updated booking; it is not called when nothing changed.
func (r *BookingRepository) UpdateStatus(ctx context.Context, id string, to model.Status, events func(prev, next model.Booking) ([]outbox.Event, error)) (model.Booking, error) {
	var updated model.Booking
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		prev, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if db.IsNoRows(err) {
				return apperr.NotFound("booking", id)
			}
			return fmt.Errorf("load booking: %w", err)
		}
		if prev.Status == to {
			updated = prev
			return nil
		}

		updated, err = scanBooking(tx.QueryRow(ctx, `
			UPDATE bookings SET status = $2, updated_at = now()
			WHERE id = $1
			RETURNING `+bookingColumns, id, string(to)))
		if err != nil {
			if db.IsConstraintViolation(err, activeSlotIndex) {
				return slotConflict(prev)
			}
			return fmt.Errorf("update booking status: %w", err)
		}

		evts, err := events(prev, updated)
		if err != nil {
			return err
		}
		return r.outbox.InsertAll(ctx, tx, evts)
	})
	if err != nil {
		return model.Booking{}, err
	}
	return updated, nil
}

func (r *BookingRepository) Get(ctx context.Context, id string) (model.Booking, error) {
	b, err := scanBooking(r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return model.Booking{}, apperr.NotFound("booking", id)
		}
		return model.Booking{}, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

// List returns bookings newest first.
func (r *BookingRepository) List(ctx context.Context, f model.Filter) ([]model.Booking, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	if f.Date != "" {
		args = append(args, f.Date)
		where = append(where, "slot_date = $"+strconv.Itoa(len(args))+"::date")
	}
	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit)
	query += ` ORDER BY created_at DESC, id LIMIT $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Occupied returns the slots of date held by active bookings.
func (r *BookingRepository) Occupied(ctx context.Context, date string) ([]availability.Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT to_char(slot_time, 'HH24:MI')
		FROM bookings
		WHERE slot_date = $1::date AND status NOT IN ('cancelled', 'rejected')
		ORDER BY slot_time
	`, date)
	if err != nil {
		return nil, fmt.Errorf("occupied slots: %w", err)
	}
	defer rows.Close()

	var out []availability.Slot
	for rows.Next() {
		var clock string
		if err := rows.Scan(&clock); err != nil {
			return nil, err
		}
		out = append(out, availability.Slot{Date: date, Clock: clock})
	}
	return out, rows.Err()
}

func scanBooking(row pgx.Row) (model.Booking, error) {
	var (
		b      model.Booking
		status string
	)
	err := row.Scan(&b.ID, &b.Name, &b.Phone, &b.Date, &b.Clock, &b.ServiceType, &status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return model.Booking{}, err
	}
	b.Status = model.Status(status)
	return b, nil
}

func slotConflict(b model.Booking) error {
	s := availability.Slot{Date: b.Date, Clock: b.Clock}
	return apperr.SlotConflict(s.Date, s.Display())
}
