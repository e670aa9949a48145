package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/gcregistry/registry/internal/apperrors"
	"github.com/gcregistry/registry/internal/cqrs"
	"github.com/gcregistry/registry/internal/domain/certificate"
	"github.com/gcregistry/registry/internal/domain/event"
	"github.com/gcregistry/registry/internal/query"
	"github.com/gcregistry/registry/internal/validator"
)

const bundleColumns = `id, issuance_id, hash, account_id, device_id, metadata_id, range_start, range_end,
	certificate_bundle_status, production_starting_interval, production_ending_interval, expiry_datestamp,
	energy_carrier, energy_source, is_storage, allocated_storage_record_id, storage_efficiency_factor,
	beneficiary, is_deleted, created_at, updated_at`

// BundleStore persists GranularCertificateBundle rows and builds the
// cqrs.Mutation values the CQRS Coordinator stages against the write and
// read transactions.
type BundleStore struct {
	read *sqlx.DB
}

// NewBundleStore builds a BundleStore. read is the pool read-only lookup
// methods (BundleLookup, query.Store, validator ranges) query directly.
func NewBundleStore(read *sqlx.DB) *BundleStore {
	return &BundleStore{read: read}
}

func bundleAttrs(b certificate.GranularCertificateBundle) map[string]any {
	return map[string]any{
		"id":                          b.ID,
		"issuance_id":                 b.IssuanceID,
		"hash":                        b.Hash,
		"account_id":                  b.AccountID,
		"device_id":                   b.DeviceID,
		"range_start":                 b.RangeStart,
		"range_end":                   b.RangeEnd,
		"certificate_bundle_status":   string(b.CertificateBundleStatus),
		"is_storage":                  b.IsStorage,
		"beneficiary":                 b.Beneficiary,
		"is_deleted":                  b.IsDeleted,
	}
}

func execBundleUpsert(ctx context.Context, exec execer, b certificate.GranularCertificateBundle) error {
	_, err := exec.ExecContext(ctx, `
		INSERT INTO granular_certificate_bundles (`+bundleColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		ON CONFLICT (id) DO UPDATE SET
			hash = EXCLUDED.hash,
			account_id = EXCLUDED.account_id,
			range_start = EXCLUDED.range_start,
			range_end = EXCLUDED.range_end,
			certificate_bundle_status = EXCLUDED.certificate_bundle_status,
			allocated_storage_record_id = EXCLUDED.allocated_storage_record_id,
			storage_efficiency_factor = EXCLUDED.storage_efficiency_factor,
			beneficiary = EXCLUDED.beneficiary,
			is_deleted = EXCLUDED.is_deleted,
			updated_at = EXCLUDED.updated_at
	`,
		b.ID, b.IssuanceID, b.Hash, b.AccountID, b.DeviceID, b.MetadataID, b.RangeStart, b.RangeEnd,
		string(b.CertificateBundleStatus), b.ProductionStartingInterval, b.ProductionEndingInterval, b.ExpiryDatestamp,
		string(b.EnergyCarrier), b.EnergySource, b.IsStorage, ptrToNullString(b.AllocatedStorageRecordID), ptrToNullFloat64(b.StorageEfficiencyFactor),
		b.Beneficiary, b.IsDeleted, b.CreatedAt, b.UpdatedAt,
	)
	return err
}

// execer is satisfied by both *sql.Tx and *sql.DB.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Insert builds a Mutation that creates a new bundle row.
func (s *BundleStore) Insert(b certificate.GranularCertificateBundle, at time.Time) cqrs.Mutation {
	b.CreatedAt, b.UpdatedAt = at, at
	return cqrs.Mutation{
		EntityName: b.EntityName(),
		EventType:  event.TypeCreate,
		Write: func(ctx context.Context, tx *sql.Tx) (string, map[string]any, map[string]any, error) {
			if err := execBundleUpsert(ctx, tx, b); err != nil {
				return "", nil, nil, fmt.Errorf("insert bundle: %w", err)
			}
			return b.ID, nil, bundleAttrs(b), nil
		},
		Read: func(ctx context.Context, tx *sql.Tx, _ string, _ map[string]any) error {
			return execBundleUpsert(ctx, tx, b)
		},
	}
}

// Update builds a Mutation that persists an already-mutated bundle (status
// transitions, splits, storage allocation, range changes).
func (s *BundleStore) Update(before, after certificate.GranularCertificateBundle, at time.Time) cqrs.Mutation {
	after.UpdatedAt = at
	return cqrs.Mutation{
		EntityName: after.EntityName(),
		EventType:  event.TypeUpdate,
		Write: func(ctx context.Context, tx *sql.Tx) (string, map[string]any, map[string]any, error) {
			if err := execBundleUpsert(ctx, tx, after); err != nil {
				return "", nil, nil, fmt.Errorf("update bundle: %w", err)
			}
			return after.ID, bundleAttrs(before), bundleAttrs(after), nil
		},
		Read: func(ctx context.Context, tx *sql.Tx, _ string, _ map[string]any) error {
			return execBundleUpsert(ctx, tx, after)
		},
	}
}

func scanBundle(row interface {
	Scan(dest ...any) error
}) (certificate.GranularCertificateBundle, error) {
	var (
		b           certificate.GranularCertificateBundle
		status      string
		carrier     string
		allocatedID sql.NullString
		efficiency  sql.NullFloat64
	)
	err := row.Scan(
		&b.ID, &b.IssuanceID, &b.Hash, &b.AccountID, &b.DeviceID, &b.MetadataID, &b.RangeStart, &b.RangeEnd,
		&status, &b.ProductionStartingInterval, &b.ProductionEndingInterval, &b.ExpiryDatestamp,
		&carrier, &b.EnergySource, &b.IsStorage, &allocatedID, &efficiency,
		&b.Beneficiary, &b.IsDeleted, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return certificate.GranularCertificateBundle{}, err
	}
	b.CertificateBundleStatus = certificate.Status(status)
	b.EnergyCarrier = certificate.EnergyCarrier(carrier)
	b.AllocatedStorageRecordID = nullStringToPtr(allocatedID)
	b.StorageEfficiencyFactor = nullFloat64ToPtr(efficiency)
	return b, nil
}

// GetByID implements storageallocator.BundleLookup and actions-processor
// lookups against the read store.
func (s *BundleStore) GetByID(_ context.Context, id string) (certificate.GranularCertificateBundle, bool, error) {
	row := s.read.QueryRow(`SELECT `+bundleColumns+` FROM granular_certificate_bundles WHERE id = $1 AND is_deleted = false`, id)
	b, err := scanBundle(row)
	if err == sql.ErrNoRows {
		return certificate.GranularCertificateBundle{}, false, nil
	}
	if err != nil {
		return certificate.GranularCertificateBundle{}, false, err
	}
	return b, true, nil
}

// QueryBundles implements query.Store: it builds the dynamic WHERE clause
// from the validated Filter.
func (s *BundleStore) QueryBundles(ctx context.Context, f query.Filter) ([]certificate.GranularCertificateBundle, error) {
	conditions := []string{"is_deleted = false", "account_id = $1"}
	args := []any{f.SourceAccountID}

	if f.DeviceID != "" {
		args = append(args, f.DeviceID)
		conditions = append(conditions, fmt.Sprintf("device_id = $%d", len(args)))
	}
	if f.EnergySource != "" {
		args = append(args, f.EnergySource)
		conditions = append(conditions, fmt.Sprintf("energy_source = $%d", len(args)))
	}
	if f.CertificateBundleStatus != "" {
		args = append(args, string(f.CertificateBundleStatus))
		conditions = append(conditions, fmt.Sprintf("certificate_bundle_status = $%d", len(args)))
	}
	if f.CertificatePeriodStart != nil {
		args = append(args, *f.CertificatePeriodStart)
		conditions = append(conditions, fmt.Sprintf("production_starting_interval >= $%d", len(args)))
	}
	if f.CertificatePeriodEnd != nil {
		args = append(args, *f.CertificatePeriodEnd)
		conditions = append(conditions, fmt.Sprintf("production_ending_interval <= $%d", len(args)))
	}
	if len(f.IssuanceIDs) > 0 {
		orClauses := make([]string, 0, len(f.IssuanceIDs))
		for _, k := range f.IssuanceIDs {
			args = append(args, k.DeviceID)
			deviceArg := len(args)
			args = append(args, k.StartingInterval)
			startArg := len(args)
			orClauses = append(orClauses, fmt.Sprintf("(device_id = $%d AND production_starting_interval = $%d)", deviceArg, startArg))
		}
		conditions = append(conditions, "("+strings.Join(orClauses, " OR ")+")")
	}

	stmt := `SELECT ` + bundleColumns + ` FROM granular_certificate_bundles WHERE ` + strings.Join(conditions, " AND ")
	rows, err := s.read.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []certificate.GranularCertificateBundle
	for rows.Next() {
		b, err := scanBundle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ExistingRanges implements importer.Params.ExistingRanges: every
// non-deleted range issued to a device, ordered by range_start.
func (s *BundleStore) ExistingRanges(ctx context.Context, deviceID string) ([]validator.Range, error) {
	rows, err := s.read.QueryContext(ctx, `
		SELECT range_start, range_end FROM granular_certificate_bundles
		WHERE device_id = $1 AND is_deleted = false
		ORDER BY range_start
	`, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []validator.Range
	for rows.Next() {
		var r validator.Range
		if err := rows.Scan(&r.Start, &r.End); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LastRangeEnd returns the highest range_end among a device's non-WITHDRAWN
// bundles, -1 if none.
func (s *BundleStore) LastRangeEnd(ctx context.Context, deviceID string) (int64, error) {
	var end sql.NullInt64
	err := s.read.QueryRowContext(ctx, `
		SELECT MAX(range_end) FROM granular_certificate_bundles
		WHERE device_id = $1 AND certificate_bundle_status <> $2
	`, deviceID, string(certificate.StatusWithdrawn)).Scan(&end)
	if err != nil {
		return 0, err
	}
	if !end.Valid {
		return -1, nil
	}
	return end.Int64, nil
}

// LastProductionIntervalEnd returns the production_ending_interval of the
// most recently issued bundle for a device, for the sweep to resume from.
func (s *BundleStore) LastProductionIntervalEnd(ctx context.Context, deviceID string) (time.Time, bool, error) {
	var end sql.NullTime
	err := s.read.QueryRowContext(ctx, `
		SELECT MAX(production_ending_interval) FROM granular_certificate_bundles WHERE device_id = $1
	`, deviceID).Scan(&end)
	if err != nil {
		return time.Time{}, false, err
	}
	if !end.Valid {
		return time.Time{}, false, nil
	}
	return end.Time, true, nil
}

// ResolveError maps a driver-level row-missing condition to the registry's
// NotFound taxonomy; used by callers that need a *RegistryError rather than
// a bare bool.
func ResolveError(resource, id string, found bool) error {
	if found {
		return nil
	}
	return apperrors.NotFound(resource, id)
}
