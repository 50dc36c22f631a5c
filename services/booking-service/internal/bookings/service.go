// Package bookings implements visitor booking submission and the admin status workflow.
package bookings

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/advisoryoffice/libs/apperr"
	"github.com/md-rashed-zaman/advisoryoffice/libs/events"
	"github.com/md-rashed-zaman/advisoryoffice/libs/outbox"
	"github.com/md-rashed-zaman/advisoryoffice/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/advisoryoffice/services/booking-service/internal/model"
)

const (
	aggregateType     = "booking"
	maxNameLen        = 120
	maxPhoneLen       = 32
	maxServiceTypeLen = 80
	defaultListLimit  = 100
	maxListLimit      = 500
)

type Store interface {
	Create(ctx context.Context, b model.Booking, events ...outbox.Event) error
	UpdateStatus(ctx context.Context, id string, to model.Status, events func(prev, next model.Booking) ([]outbox.Event, error)) (model.Booking, error)
	Get(ctx context.Context, id string) (model.Booking, error)
	List(ctx context.Context, f model.Filter) ([]model.Booking, error)
	Occupied(ctx context.Context, date string) ([]availability.Slot, error)
}

// TokenIssuer hands the visitor a token scoped to their booking.
type TokenIssuer interface {
	BookingToken(bookingID string, slotStart time.Time, ttl time.Duration) (string, error)
}

type Config struct {
	Policy   availability.Policy
	TokenTTL time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

type Service struct {
	store  Store
	tokens TokenIssuer
	policy availability.Policy
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store Store, tokens TokenIssuer, logger *slog.Logger, cfg Config) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.Policy.Location == nil {
		cfg.Policy.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		tokens: tokens,
		policy: cfg.Policy,
		ttl:    cfg.TokenTTL,
		logger: logger,
		now:    cfg.Now,
	}
}

type SubmitRequest struct {
	Name        string
	Phone       string
	Date        string
	Time        string
	ServiceType string
}

type Receipt struct {
	Booking     model.Booking
	AccessToken string
}

// Submit reserves the requested slot. A slot held by another active booking fails with
// apperr.SlotConflict; the store decides that atomically with the insert.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (Receipt, error) {
	name := strings.TrimSpace(req.Name)
	phone := strings.TrimSpace(req.Phone)
	serviceType := strings.TrimSpace(req.ServiceType)
	switch {
	case name == "":
		return Receipt{}, apperr.Validation("name is required")
	case phone == "":
		return Receipt{}, apperr.Validation("phone is required")
	case utf8.RuneCountInString(name) > maxNameLen:
		return Receipt{}, apperr.Validation("name is too long")
	case utf8.RuneCountInString(phone) > maxPhoneLen:
		return Receipt{}, apperr.Validation("phone is too long")
	case utf8.RuneCountInString(serviceType) > maxServiceTypeLen:
		return Receipt{}, apperr.Validation("service_type is too long")
	}

	slot, err := availability.Parse(req.Date, req.Time)
	if err != nil {
		return Receipt{}, err
	}
	now := s.now().UTC()
	if err := s.policy.Check(slot, now); err != nil {
		return Receipt{}, err
	}

	b := model.Booking{
		ID:          uuid.NewString(),
		Name:        name,
		Phone:       phone,
		Date:        slot.Date,
		Clock:       slot.Clock,
		ServiceType: serviceType,
		Status:      model.StatusNew,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	start := slot.Start(s.policy.Location)
	evt, err := outbox.NewEvent(aggregateType, b.ID, events.BookingCreated, events.BookingCreatedPayload{
		BookingID:   b.ID,
		Name:        b.Name,
		Phone:       b.Phone,
		Date:        slot.Date,
		Time:        slot.Display(),
		StartsAt:    start.UTC().Format(time.RFC3339),
		ServiceType: b.ServiceType,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("build booking event: %w", err)
	}

	if err := s.store.Create(ctx, b, evt); err != nil {
		return Receipt{}, err
	}
	s.logger.Info("booking created", "booking_id", b.ID, "slot", slot.String())

	token, err := s.tokens.BookingToken(b.ID, start, s.ttl)
	if err != nil {
		// The booking is committed; the visitor can still be reached by phone.
		s.logger.Error("booking token failed", "booking_id", b.ID, "err", err)
	}
	return Receipt{Booking: b, AccessToken: token}, nil
}

// UpdateStatus is the admin workflow. Cancelling or rejecting frees the slot; reopening a
// freed booking fails with apperr.SlotConflict when the slot was taken meanwhile.
func (s *Service) UpdateStatus(ctx context.Context, id, status string) (model.Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Booking{}, apperr.NotFound("booking", id)
	}
	to, ok := model.ParseStatus(strings.ToLower(strings.TrimSpace(status)))
	if !ok {
		return model.Booking{}, apperr.Validation(fmt.Sprintf("unknown status %q", status))
	}

	updated, err := s.store.UpdateStatus(ctx, id, to, func(prev, next model.Booking) ([]outbox.Event, error) {
		evt, err := outbox.NewEvent(aggregateType, next.ID, events.BookingStatusChanged, events.BookingStatusChangedPayload{
			BookingID: next.ID,
			From:      string(prev.Status),
			To:        string(next.Status),
			ChangedAt: next.UpdatedAt.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return nil, err
		}
		return []outbox.Event{evt}, nil
	})
	if err != nil {
		return model.Booking{}, err
	}
	s.logger.Info("booking status updated", "booking_id", id, "status", string(updated.Status))
	return updated, nil
}

func (s *Service) Get(ctx context.Context, id string) (model.Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Booking{}, apperr.NotFound("booking", id)
	}
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f model.Filter) ([]model.Booking, error) {
	if f.Status != "" {
		if _, ok := model.ParseStatus(string(f.Status)); !ok {
			return nil, apperr.Validation(fmt.Sprintf("unknown status %q", f.Status))
		}
	}
	if f.Date != "" {
		if _, err := time.Parse(availability.DateLayout, f.Date); err != nil {
			return nil, apperr.Validation("date must be YYYY-MM-DD")
		}
	}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	return s.store.List(ctx, f)
}

// AvailableSlots lists the open slots of date. It is a hint for the booking form only;
// Submit never relies on it.
func (s *Service) AvailableSlots(ctx context.Context, date string) ([]availability.Slot, error) {
	if _, err := time.Parse(availability.DateLayout, date); err != nil {
		return nil, apperr.Validation("date must be YYYY-MM-DD")
	}
	occupied, err := s.store.Occupied(ctx, date)
	if err != nil {
		return nil, err
	}
	return s.policy.Open(date, occupied, s.now().UTC())
}

// SlotStart is the start instant of b's slot in the booking time zone.
func (s *Service) SlotStart(b model.Booking) time.Time {
	return availability.Slot{Date: b.Date, Clock: b.Clock}.Start(s.policy.Location)
}
