package events

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists domain events in the domain_events table.
type PGStore struct {
	Pool *pgxpool.Pool
}

// InsertEvent appends the event to the log.
func (s *PGStore) InsertEvent(ctx context.Context, event Event) error {
	const q = `
		INSERT INTO domain_events (id, topic, aggregate_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.Pool.Exec(ctx, q, event.ID, event.Topic, event.AggregateID, event.Payload, event.OccurredAt); err != nil {
		return fmt.Errorf("insert domain event: %w", err)
	}
	return nil
}
