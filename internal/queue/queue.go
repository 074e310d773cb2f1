package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-permata/internal/events"
)

// Task type names routed through asynq.
const (
	TypeSaleSettled = "notify:sale_settled"
)

// SaleSettledPayload is the task body for post-settlement notifications such
// as receipt delivery.
type SaleSettledPayload struct {
	EventID    string          `json:"event_id"`
	SaleID     string          `json:"sale_id"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Enqueuer publishes domain events onto the task queue. It implements
// events.Notifier so it can hang off the event bus.
type Enqueuer struct {
	Client *asynq.Client
}

// Notify converts the event into an asynq task. The event id doubles as the
// task id so redelivered events collapse into one task.
func (e Enqueuer) Notify(ctx context.Context, event events.Event) error {
	if e.Client == nil {
		return errors.New("queue: asynq client not configured")
	}
	if event.Topic != events.TopicSaleSettled {
		return nil
	}
	body, err := json.Marshal(SaleSettledPayload{
		EventID:    event.ID.String(),
		SaleID:     event.AggregateID.String(),
		Payload:    event.Payload,
		OccurredAt: event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("queue: encode task: %w", err)
	}
	task := asynq.NewTask(TypeSaleSettled, body)
	_, err = e.Client.EnqueueContext(ctx, task,
		asynq.TaskID(event.ID.String()),
		asynq.MaxRetry(10),
		asynq.Timeout(30*time.Second),
	)
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("queue: enqueue %s: %w", TypeSaleSettled, err)
	}
	return nil
}
