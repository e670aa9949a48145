// Package postgres implements the write and read store persistence for
// every registry entity, grounded on database/sql against the two
// connection pools internal/platform/database opens. Write-side methods
// build cqrs.Mutation values that stage their statements against the
// transaction the CQRS Coordinator already opened; read-side methods run
// directly against a *sqlx.DB pool.
package postgres

import (
	"database/sql"
	"time"
)

// nullTimeToPtr converts sql.NullTime to *time.Time.
func nullTimeToPtr(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

// ptrToNullTime converts *time.Time to sql.NullTime.
func ptrToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// ptrToNullString converts *string to sql.NullString.
func ptrToNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullStringToPtr converts sql.NullString to *string.
func nullStringToPtr(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

// ptrToNullFloat64 converts *float64 to sql.NullFloat64.
func ptrToNullFloat64(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// nullFloat64ToPtr converts sql.NullFloat64 to *float64.
func nullFloat64ToPtr(nf sql.NullFloat64) *float64 {
	if nf.Valid {
		return &nf.Float64
	}
	return nil
}
