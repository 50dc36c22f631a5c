package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/md-rashed-zaman/advisoryoffice/libs/apperr"
	"github.com/md-rashed-zaman/advisoryoffice/libs/events"
	"github.com/md-rashed-zaman/advisoryoffice/services/office-service/internal/model"
	"github.com/segmentio/kafka-go"
)

type MeetingOpener interface {
	OpenForBooking(ctx context.Context, p events.BookingCreatedPayload) (model.Meeting, bool, error)
}

// BookingCreated opens the meeting session of every new booking. Malformed events are
// logged and dropped; storage errors are returned so the event is not marked handled.
func BookingCreated(opener MeetingOpener, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var payload events.BookingCreatedPayload
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		_, _, err := opener.OpenForBooking(ctx, payload)
		if errors.Is(err, apperr.ErrValidation) {
			logger.Error("booking event rejected", "err", err, "booking_id", payload.BookingID)
			return nil
		}
		return err
	}
}
