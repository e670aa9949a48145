package cqrs

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/gcregistry/registry/internal/domain/event"
	"github.com/gcregistry/registry/internal/eventlog"
)

type fakeAppender struct {
	calls int
	err   error
}

func (f *fakeAppender) AppendTx(_ context.Context, _ *sql.Tx, events []event.Event) error {
	f.calls++
	return f.err
}

type fakeMirror struct {
	published int
}

func (f *fakeMirror) Publish(_ context.Context, events []event.Event) error {
	f.published += len(events)
	return nil
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func successfulWrite(id string) WriteFn {
	return func(ctx context.Context, tx *sql.Tx) (string, map[string]any, map[string]any, error) {
		return id, nil, map[string]any{"status": "ACTIVE"}, nil
	}
}

func successfulRead() ReadFn {
	return func(ctx context.Context, tx *sql.Tx, entityID string, after map[string]any) error { return nil }
}

func TestExecute_HappyPath_CommitsBothAndAppendsOneEvent(t *testing.T) {
	writeDB, writeMock := newMockDB(t)
	readDB, readMock := newMockDB(t)

	writeMock.ExpectBegin()
	writeMock.ExpectCommit()
	readMock.ExpectBegin()
	readMock.ExpectCommit()

	appender := &fakeAppender{}
	mirror := &fakeMirror{}
	w := eventlog.New(appender, mirror)
	coord := New(writeDB, readDB, w, nil)

	results, err := coord.Execute(context.Background(), []Mutation{
		{EntityName: "GranularCertificateBundle", EventType: event.TypeCreate, Write: successfulWrite("bundle-1"), Read: successfulRead()},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "bundle-1", results[0].EntityID)
	require.Equal(t, 1, appender.calls)
	require.NoError(t, writeMock.ExpectationsWereMet())
	require.NoError(t, readMock.ExpectationsWereMet())

	// Mirror publish runs synchronously in this implementation's happy path.
	require.Equal(t, 1, mirror.published)
}

func TestExecute_WriteFailure_RollsBackBothAndAppendsNoEvent(t *testing.T) {
	writeDB, writeMock := newMockDB(t)
	readDB, readMock := newMockDB(t)

	writeMock.ExpectBegin()
	writeMock.ExpectRollback()
	readMock.ExpectBegin()
	readMock.ExpectRollback()

	appender := &fakeAppender{}
	w := eventlog.New(appender, nil)
	coord := New(writeDB, readDB, w, nil)

	failingWrite := func(ctx context.Context, tx *sql.Tx) (string, map[string]any, map[string]any, error) {
		return "", nil, nil, errors.New("duplicate range")
	}

	_, err := coord.Execute(context.Background(), []Mutation{
		{EntityName: "GranularCertificateBundle", EventType: event.TypeCreate, Write: failingWrite, Read: successfulRead()},
	})
	require.Error(t, err)
	require.Equal(t, 0, appender.calls)
	require.NoError(t, writeMock.ExpectationsWereMet())
	require.NoError(t, readMock.ExpectationsWereMet())
}

func TestExecute_ReadStageFailure_RollsBackBoth(t *testing.T) {
	writeDB, writeMock := newMockDB(t)
	readDB, readMock := newMockDB(t)

	writeMock.ExpectBegin()
	writeMock.ExpectRollback()
	readMock.ExpectBegin()
	readMock.ExpectRollback()

	appender := &fakeAppender{}
	w := eventlog.New(appender, nil)
	coord := New(writeDB, readDB, w, nil)

	failingRead := func(ctx context.Context, tx *sql.Tx, entityID string, after map[string]any) error {
		return errors.New("read store unreachable")
	}

	_, err := coord.Execute(context.Background(), []Mutation{
		{EntityName: "Account", EventType: event.TypeCreate, Write: successfulWrite("acct-1"), Read: failingRead},
	})
	require.Error(t, err)
	require.Equal(t, 0, appender.calls)
	require.NoError(t, writeMock.ExpectationsWereMet())
	require.NoError(t, readMock.ExpectationsWereMet())
}

func TestExecute_EventAppendFailure_RollsBackBoth(t *testing.T) {
	writeDB, writeMock := newMockDB(t)
	readDB, readMock := newMockDB(t)

	writeMock.ExpectBegin()
	writeMock.ExpectRollback()
	readMock.ExpectBegin()
	readMock.ExpectRollback()

	appender := &fakeAppender{err: errors.New("event store unavailable")}
	w := eventlog.New(appender, nil)
	coord := New(writeDB, readDB, w, nil)

	_, err := coord.Execute(context.Background(), []Mutation{
		{EntityName: "Account", EventType: event.TypeCreate, Write: successfulWrite("acct-1"), Read: successfulRead()},
	})
	require.Error(t, err)
	require.NoError(t, writeMock.ExpectationsWereMet())
	require.NoError(t, readMock.ExpectationsWereMet())
}

func TestExecute_ReadCommitFailsAfterWriteCommit_ReportsLagButKeepsWriteDurable(t *testing.T) {
	writeDB, writeMock := newMockDB(t)
	readDB, readMock := newMockDB(t)

	writeMock.ExpectBegin()
	writeMock.ExpectCommit()
	readMock.ExpectBegin()
	readMock.ExpectCommit().WillReturnError(errors.New("replica down"))

	appender := &fakeAppender{}
	w := eventlog.New(appender, nil)
	coord := New(writeDB, readDB, w, nil)

	var lagErr error
	coord.OnReadLag(func(err error) { lagErr = err })

	results, err := coord.Execute(context.Background(), []Mutation{
		{EntityName: "Account", EventType: event.TypeCreate, Write: successfulWrite("acct-1"), Read: successfulRead()},
	})
	require.Error(t, err)
	require.Error(t, lagErr)
	require.Len(t, results, 1, "write+event already committed before the read-commit failure")
	require.Equal(t, 1, appender.calls)
}

func TestExecute_NoMutationsIsNoOp(t *testing.T) {
	writeDB, _ := newMockDB(t)
	readDB, _ := newMockDB(t)
	w := eventlog.New(&fakeAppender{}, nil)
	coord := New(writeDB, readDB, w, nil)

	results, err := coord.Execute(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, results)
}

type fakeMetrics struct {
	outcomes []string
}

func (f *fakeMetrics) ObserveCommit(outcome string, _ time.Duration) {
	f.outcomes = append(f.outcomes, outcome)
}

func TestExecute_RecordsMetricsOutcome(t *testing.T) {
	writeDB, writeMock := newMockDB(t)
	readDB, readMock := newMockDB(t)
	writeMock.ExpectBegin()
	writeMock.ExpectCommit()
	readMock.ExpectBegin()
	readMock.ExpectCommit()

	metrics := &fakeMetrics{}
	w := eventlog.New(&fakeAppender{}, nil)
	coord := New(writeDB, readDB, w, metrics)

	_, err := coord.Execute(context.Background(), []Mutation{
		{EntityName: "Account", EventType: event.TypeCreate, Write: successfulWrite("acct-1"), Read: successfulRead()},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"success"}, metrics.outcomes)
}
