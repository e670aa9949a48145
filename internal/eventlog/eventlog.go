// Package eventlog implements the Event Log Writer: an
// append-only, ordered, replayable stream of CREATE/UPDATE/DELETE events.
//
// The authoritative copy of every event lives in the "events" outbox table
// of the write store, appended in the same transaction as the entity
// mutation it describes (see internal/cqrs) — this is what gives the CQRS
// Coordinator its all-or-nothing guarantee. Mirror is an optional,
// best-effort fan-out (e.g. a Redis stream) for downstream consumers that
// want to tail the log without hitting Postgres; it is never the system of
// record and a publish failure there never rolls back a commit.
package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/gcregistry/registry/internal/domain/event"
)

// Appender appends rows to the authoritative "events" table within an
// already-open write transaction. Implementations live in
// pkg/store/postgres.
type Appender interface {
	AppendTx(ctx context.Context, tx *sql.Tx, events []event.Event) error
}

// Mirror fans events out to a non-authoritative stream for external
// consumers. A nil Mirror is valid: mirroring is optional.
type Mirror interface {
	Publish(ctx context.Context, events []event.Event) error
}

// Writer is the Event Log Writer. It is safe for concurrent use.
type Writer struct {
	appender Appender
	mirror   Mirror
	onMirrorError func(error)
}

// New builds a Writer. mirror may be nil to disable fan-out.
func New(appender Appender, mirror Mirror) *Writer {
	return &Writer{appender: appender, mirror: mirror, onMirrorError: func(error) {}}
}

// OnMirrorError installs a callback invoked when the best-effort mirror
// publish fails; defaults to a no-op. Intended for logging.
func (w *Writer) OnMirrorError(fn func(error)) {
	if fn != nil {
		w.onMirrorError = fn
	}
}

// Build constructs an Event for one entity mutation.
func Build(entityID, entityName string, eventType event.Type, before, after map[string]any, at time.Time) event.Event {
	return event.Event{
		ID:               uuid.NewString(),
		EntityID:         entityID,
		EntityName:       entityName,
		EventType:        eventType,
		AttributesBefore: before,
		AttributesAfter:  after,
		Timestamp:        at,
	}
}

// AppendTx appends events to the authoritative outbox within tx. Callers
// (the CQRS coordinator) are responsible for committing tx; AppendTx never
// commits or rolls back itself.
func (w *Writer) AppendTx(ctx context.Context, tx *sql.Tx, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}
	return w.appender.AppendTx(ctx, tx, events)
}

// MirrorAsync publishes events to the best-effort mirror after the
// authoritative transaction has committed. Failures are reported via
// OnMirrorError and never propagate to the caller: the mirror is a
// convenience, not a correctness boundary.
func (w *Writer) MirrorAsync(ctx context.Context, events []event.Event) {
	if w.mirror == nil || len(events) == 0 {
		return
	}
	if err := w.mirror.Publish(ctx, events); err != nil {
		w.onMirrorError(err)
	}
}

// MarshalAttributes is a helper store implementations use to serialize the
// before/after maps for storage as JSON columns.
func MarshalAttributes(attrs map[string]any) ([]byte, error) {
	if attrs == nil {
		return nil, nil
	}
	return json.Marshal(attrs)
}
