package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// ReceiptSender delivers a settled-sale receipt to the customer channel.
// Implementations decide the medium (print spooler, SMS, email).
type ReceiptSender interface {
	Send(ctx context.Context, saleID string, payload json.RawMessage) error
}

// NotificationHandler processes settlement notification tasks.
type NotificationHandler struct {
	Sender ReceiptSender
	Logger zerolog.Logger
}

// ProcessTask implements asynq.Handler for TypeSaleSettled tasks.
func (h NotificationHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload SaleSettledPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		// malformed payloads can never succeed, skip retries
		return fmt.Errorf("decode %s payload: %v: %w", task.Type(), err, asynq.SkipRetry)
	}
	if h.Sender == nil {
		h.Logger.Warn().Str("sale_id", payload.SaleID).Msg("no receipt sender configured, dropping notification")
		return nil
	}
	if err := h.Sender.Send(ctx, payload.SaleID, payload.Payload); err != nil {
		return fmt.Errorf("send receipt for sale %s: %w", payload.SaleID, err)
	}
	h.Logger.Info().
		Str("sale_id", payload.SaleID).
		Str("event_id", payload.EventID).
		Msg("receipt notification delivered")
	return nil
}

// Mux builds the asynq handler mux for the worker process.
func Mux(handler NotificationHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeSaleSettled, handler)
	return mux
}
