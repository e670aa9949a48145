package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gcregistry/registry/internal/domain/event"
	"github.com/gcregistry/registry/internal/eventlog"
)

// EventAppender implements eventlog.Appender against the write store's
// "events" outbox table: every row it inserts commits inside the same
// transaction as the entity mutation it describes.
type EventAppender struct{}

// NewEventAppender builds an EventAppender.
func NewEventAppender() *EventAppender { return &EventAppender{} }

var _ eventlog.Appender = (*EventAppender)(nil)

// AppendTx inserts events into the outbox within tx.
func (EventAppender) AppendTx(ctx context.Context, tx *sql.Tx, events []event.Event) error {
	for _, e := range events {
		before, err := eventlog.MarshalAttributes(e.AttributesBefore)
		if err != nil {
			return fmt.Errorf("marshal before attributes: %w", err)
		}
		after, err := eventlog.MarshalAttributes(e.AttributesAfter)
		if err != nil {
			return fmt.Errorf("marshal after attributes: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO events (id, entity_id, entity_name, event_type, attributes_before, attributes_after, timestamp)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, e.ID, e.EntityID, e.EntityName, string(e.EventType), before, after, e.Timestamp)
		if err != nil {
			return fmt.Errorf("insert event %s: %w", e.ID, err)
		}
	}
	return nil
}
