package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gateway "github.com/nimasrn/train-reservation/internal/gateways"
	"github.com/nimasrn/train-reservation/internal/model"
	"github.com/nimasrn/train-reservation/internal/queue"
	"github.com/nimasrn/train-reservation/pkg/logger"
	"github.com/nimasrn/train-reservation/pkg/prom"
)

const (
	confirmationConfirmed = "confirmed"
	confirmationDuplicate = "duplicate"
	confirmationRejected  = "rejected"
	confirmationFailed    = "failed"
)

type Confirmer interface {
	Confirm(ctx context.Context, req *gateway.ConfirmRequest) (*gateway.ConfirmResponse, error)
}

// BookingConfirmationProcessor forwards committed bookings to the ticketing
// system, once per booking.
type BookingConfirmationProcessor struct {
	client      Confirmer
	idempotency *IdempotencyService
	now         func() time.Time
}

func NewBookingConfirmationProcessor(client Confirmer, idempotency *IdempotencyService) *BookingConfirmationProcessor {
	return &BookingConfirmationProcessor{
		client:      client,
		idempotency: idempotency,
		now:         time.Now,
	}
}

func (p *BookingConfirmationProcessor) GetType() string {
	return "booking.created"
}

// Process returns nil when the event needs no further delivery attempts and
// an error when the queue should redeliver it.
func (p *BookingConfirmationProcessor) Process(ctx context.Context, msg *queue.Message) error {
	var event model.BookingCreatedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		logger.Error("failed to unmarshal booking event", "id", msg.ID, "error", err)
		return fmt.Errorf("decode booking event %s: %w", msg.ID, err)
	}
	if event.BookingID <= 0 {
		logger.Error("booking event without booking id", "id", msg.ID)
		return fmt.Errorf("booking event %s has no booking id", msg.ID)
	}

	pc, err := p.idempotency.AcquireProcessingLock(ctx, event.BookingID)
	if err != nil {
		if errors.Is(err, ErrAlreadyProcessed) {
			logger.Info("booking already confirmed, skipping", "booking_id", event.BookingID)
			prom.ObserveConfirmation(confirmationDuplicate, -1)
			return nil
		}
		return err
	}
	defer func() {
		if err := p.idempotency.ReleaseLock(ctx, pc); err != nil {
			logger.Warn("failed to release processing lock", "booking_id", event.BookingID, "error", err)
		}
	}()

	res, err := p.client.Confirm(ctx, &gateway.ConfirmRequest{
		BookingID:   event.BookingID,
		TrainID:     event.TrainID,
		TrainNumber: event.TrainNumber,
		PrincipalID: event.PrincipalID,
		BookedAt:    event.CreatedAt,
	})
	if err != nil {
		if errors.Is(err, gateway.ErrRejected) {
			logger.Error("booking confirmation rejected", "booking_id", event.BookingID, "attempt", msg.Attempts, "error", err)
			prom.ObserveConfirmation(confirmationRejected, -1)
			return nil
		}
		logger.Warn("booking confirmation failed", "booking_id", event.BookingID, "attempt", msg.Attempts, "error", err)
		prom.ObserveConfirmation(confirmationFailed, -1)
		return err
	}

	if err := p.idempotency.MarkSuccess(ctx, pc, res.Reference); err != nil {
		logger.Error("failed to mark booking confirmed", "booking_id", event.BookingID, "error", err)
	}

	delay := -1.0
	if !event.CreatedAt.IsZero() {
		delay = p.now().Sub(event.CreatedAt).Seconds()
	}
	prom.ObserveConfirmation(confirmationConfirmed, delay)
	logger.Info("booking confirmed",
		"booking_id", event.BookingID,
		"train_number", event.TrainNumber,
		"reference", res.Reference,
		"endpoint", res.Endpoint,
		"attempt", msg.Attempts)
	return nil
}
