// Package cqrs implements the CQRS Coordinator — the registry's hardest
// invariant: every mutating call stages a write to the write store, merges
// into the read store, and appends a matching event. The write and its
// events commit together or not at all; the read store commits afterwards,
// and a failure there is reported through OnReadLag.
package cqrs

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gcregistry/registry/internal/apperrors"
	"github.com/gcregistry/registry/internal/domain/event"
	"github.com/gcregistry/registry/internal/eventlog"
)

// txBeginner is satisfied by both *sql.DB and *sqlx.DB (which promotes it
// from its embedded *sql.DB), letting the coordinator stay decoupled from
// the sqlx import.
type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// WriteFn stages one entity's mutation against the open write transaction
// and returns the resolved entity id plus the before/after attribute snapshots
// the event log needs. before is nil for CREATE; after is nil for DELETE.
type WriteFn func(ctx context.Context, tx *sql.Tx) (entityID string, before, after map[string]any, err error)

// ReadFn merges the same entity identity into the read store's transaction.
// It receives the entityID and after-snapshot WriteFn produced, since the
// write store may have just assigned the id.
type ReadFn func(ctx context.Context, tx *sql.Tx, entityID string, after map[string]any) error

// Mutation bundles one entity's write/read staging with the event metadata
// needed to build its Event.
type Mutation struct {
	EntityName string
	EventType  event.Type
	Write      WriteFn
	Read       ReadFn
}

// Result reports what a committed Mutation resolved to.
type Result struct {
	EntityID string
	EventID  string
}

// MetricsRecorder receives coordinator outcomes for operational visibility
// (internal/metrics). A nil recorder is valid.
type MetricsRecorder interface {
	ObserveCommit(outcome string, duration time.Duration)
}

// Coordinator is the CQRS Coordinator.
type Coordinator struct {
	writeDB     txBeginner
	readDB      txBeginner
	events      *eventlog.Writer
	metrics     MetricsRecorder
	now         func() time.Time
	onReadLag   func(error)
	onCommitted func(ctx context.Context, results []Result)
}

// New builds a Coordinator. readDB may be nil to collapse to a single
// store, letting the event log carry fan-out as the source of truth.
func New(writeDB, readDB txBeginner, events *eventlog.Writer, metrics MetricsRecorder) *Coordinator {
	return &Coordinator{
		writeDB:     writeDB,
		readDB:      readDB,
		events:      events,
		metrics:     metrics,
		now:         time.Now,
		onReadLag:   func(error) {},
		onCommitted: func(context.Context, []Result) {},
	}
}

// OnReadLag installs a callback invoked when the read-store transaction
// fails to commit after the write store has already committed — the one
// residual risk window a two-pool design without true two-phase commit
// cannot close. The write and its event are already durable at that
// point; the read store is left to be reconciled from the event log,
// since it is a rebuildable replica rather than the source of truth.
func (c *Coordinator) OnReadLag(fn func(error)) {
	if fn != nil {
		c.onReadLag = fn
	}
}

// OnCommitted installs a callback invoked once both stores have committed
// successfully, after the event mirror has been dispatched. results carry
// only entity and event ids; a failure in fn never rolls back the
// already-committed mutation.
func (c *Coordinator) OnCommitted(fn func(ctx context.Context, results []Result)) {
	if fn != nil {
		c.onCommitted = fn
	}
}

// Execute runs the mutations as a single CQRS call: stage writes, stage
// read-store merges, append events, then commit write before read, in that
// fixed order.
//
// On any failure before both commits, both transactions are rolled back and
// no event is appended.
func (c *Coordinator) Execute(ctx context.Context, mutations []Mutation) ([]Result, error) {
	start := c.now()
	results, err := c.execute(ctx, mutations)
	if c.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		c.metrics.ObserveCommit(outcome, c.now().Sub(start))
	}
	return results, err
}

func (c *Coordinator) execute(ctx context.Context, mutations []Mutation) ([]Result, error) {
	if len(mutations) == 0 {
		return nil, nil
	}

	writeTx, err := c.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.Internal(correlationID(ctx), fmt.Errorf("begin write tx: %w", err))
	}

	var readTx *sql.Tx
	if c.readDB != nil {
		readTx, err = c.readDB.BeginTx(ctx, nil)
		if err != nil {
			_ = writeTx.Rollback()
			return nil, apperrors.Internal(correlationID(ctx), fmt.Errorf("begin read tx: %w", err))
		}
	}

	rollbackBoth := func() {
		_ = writeTx.Rollback()
		if readTx != nil {
			_ = readTx.Rollback()
		}
	}

	type staged struct {
		entityID string
		before   map[string]any
		after    map[string]any
		mutation Mutation
	}

	stagedOps := make([]staged, 0, len(mutations))

	// Step 1: stage writes.
	for _, m := range mutations {
		id, before, after, werr := m.Write(ctx, writeTx)
		if werr != nil {
			rollbackBoth()
			if re, ok := apperrors.As(werr); ok {
				return nil, re
			}
			return nil, apperrors.Internal(correlationID(ctx), fmt.Errorf("write stage %s: %w", m.EntityName, werr))
		}
		stagedOps = append(stagedOps, staged{entityID: id, before: before, after: after, mutation: m})
	}

	// Step 2: stage read-store merges, still inside both open transactions.
	if readTx != nil {
		for _, op := range stagedOps {
			if op.mutation.Read == nil {
				continue
			}
			if rerr := op.mutation.Read(ctx, readTx, op.entityID, op.after); rerr != nil {
				rollbackBoth()
				return nil, apperrors.Internal(correlationID(ctx), fmt.Errorf("read stage %s: %w", op.mutation.EntityName, rerr))
			}
		}
	}

	// Step 3: append one event per mutation into the write tx's outbox.
	now := c.now()
	events := make([]event.Event, 0, len(stagedOps))
	results := make([]Result, 0, len(stagedOps))
	for _, op := range stagedOps {
		e := eventlog.Build(op.entityID, op.mutation.EntityName, op.mutation.EventType, op.before, op.after, now)
		events = append(events, e)
		results = append(results, Result{EntityID: op.entityID, EventID: e.ID})
	}
	if err := c.events.AppendTx(ctx, writeTx, events); err != nil {
		rollbackBoth()
		return nil, apperrors.Internal(correlationID(ctx), fmt.Errorf("append events: %w", err))
	}

	// Step 4: commit write store. This is the atomicity boundary: entity
	// rows and the event outbox row commit together, or not at all.
	if err := writeTx.Commit(); err != nil {
		if readTx != nil {
			_ = readTx.Rollback()
		}
		return nil, apperrors.Internal(correlationID(ctx), fmt.Errorf("commit write tx: %w", err))
	}

	// Step 5: commit the read store. A failure here cannot be undone
	// without re-opening the already-committed write transaction; the read
	// store is a rebuildable replica, so we report the lag rather than
	// pretend the write never happened.
	if readTx != nil {
		if err := readTx.Commit(); err != nil {
			c.onReadLag(fmt.Errorf("commit read tx after write commit: %w", err))
			return results, apperrors.Internal(correlationID(ctx), fmt.Errorf("commit read tx: %w", err))
		}
	}

	c.events.MirrorAsync(ctx, events)
	c.onCommitted(ctx, results)

	return results, nil
}

type correlationIDKey struct{}

// WithCorrelationID attaches a correlation id to ctx for internal-error
// reporting.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

func correlationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}
	return ""
}
