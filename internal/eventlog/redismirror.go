package eventlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/gcregistry/registry/internal/domain/event"
)

// RedisMirror fans events out to a Redis stream for downstream consumers
// tailing the log without hitting Postgres. It is never the system of
// record: Publish failures here are surfaced via Writer.OnMirrorError and
// never roll back the commit that already happened.
type RedisMirror struct {
	client     *redis.Client
	streamName string
}

// NewRedisMirror builds a RedisMirror publishing to streamName.
func NewRedisMirror(client *redis.Client, streamName string) *RedisMirror {
	return &RedisMirror{client: client, streamName: streamName}
}

var _ Mirror = (*RedisMirror)(nil)

// Publish appends each event to the stream via XADD, one entry per event,
// in order.
func (m *RedisMirror) Publish(ctx context.Context, events []event.Event) error {
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", e.ID, err)
		}
		err = m.client.XAdd(ctx, &redis.XAddArgs{
			Stream: m.streamName,
			Values: map[string]any{"event_id": e.ID, "payload": payload},
		}).Err()
		if err != nil {
			return fmt.Errorf("xadd event %s: %w", e.ID, err)
		}
	}
	return nil
}
