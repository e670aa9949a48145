package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/gcregistry/registry/internal/cqrs"
	"github.com/gcregistry/registry/internal/domain/event"
	"github.com/gcregistry/registry/internal/domain/storagerecord"
)

// StorageRecordStore persists StorageRecord (SCR/SDR) and
// AllocatedStorageRecord rows.
type StorageRecordStore struct {
	read *sqlx.DB
}

// NewStorageRecordStore builds a StorageRecordStore.
func NewStorageRecordStore(read *sqlx.DB) *StorageRecordStore {
	return &StorageRecordStore{read: read}
}

// Insert builds a Mutation registering a new charge or discharge record.
func (s *StorageRecordStore) Insert(r storagerecord.StorageRecord) cqrs.Mutation {
	return cqrs.Mutation{
		EntityName: r.EntityName(),
		EventType:  event.TypeCreate,
		Write: func(ctx context.Context, tx *sql.Tx) (string, map[string]any, map[string]any, error) {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO storage_records (id, device_id, is_charging, flow_start_datetime, flow_end_datetime,
					flow_energy, validator_id, is_deleted, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			`, r.ID, r.DeviceID, r.IsCharging, r.FlowStartDatetime, r.FlowEndDatetime, r.FlowEnergy,
				ptrToNullString(r.ValidatorID), r.IsDeleted, r.CreatedAt)
			if err != nil {
				return "", nil, nil, fmt.Errorf("insert storage record: %w", err)
			}
			after := map[string]any{"id": r.ID, "device_id": r.DeviceID, "is_charging": r.IsCharging, "flow_energy": r.FlowEnergy}
			return r.ID, nil, after, nil
		},
		Read: func(ctx context.Context, tx *sql.Tx, _ string, _ map[string]any) error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO storage_records (id, device_id, is_charging, flow_start_datetime, flow_end_datetime,
					flow_energy, validator_id, is_deleted, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			`, r.ID, r.DeviceID, r.IsCharging, r.FlowStartDatetime, r.FlowEndDatetime, r.FlowEnergy,
				ptrToNullString(r.ValidatorID), r.IsDeleted, r.CreatedAt)
			return err
		},
	}
}

// ByValidatorID implements storageallocator.RecordLookup, resolving every
// non-deleted storage record whose validator_id matches.
func (s *StorageRecordStore) ByValidatorID(ctx context.Context, validatorID string) ([]storagerecord.StorageRecord, error) {
	rows, err := s.read.QueryContext(ctx, `
		SELECT id, device_id, is_charging, flow_start_datetime, flow_end_datetime, flow_energy, validator_id, is_deleted, created_at
		FROM storage_records WHERE validator_id = $1 AND is_deleted = false
	`, validatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storagerecord.StorageRecord
	for rows.Next() {
		var (
			r  storagerecord.StorageRecord
			vc sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.DeviceID, &r.IsCharging, &r.FlowStartDatetime, &r.FlowEndDatetime,
			&r.FlowEnergy, &vc, &r.IsDeleted, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.ValidatorID = nullStringToPtr(vc)
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertAllocation builds a Mutation recording a ternary SCR/SDR/GC match.
func (s *StorageRecordStore) InsertAllocation(a storagerecord.AllocatedStorageRecord) cqrs.Mutation {
	return cqrs.Mutation{
		EntityName: a.EntityName(),
		EventType:  event.TypeCreate,
		Write: func(ctx context.Context, tx *sql.Tx) (string, map[string]any, map[string]any, error) {
			if err := execAllocationUpsert(ctx, tx, a); err != nil {
				return "", nil, nil, fmt.Errorf("insert allocated storage record: %w", err)
			}
			after := map[string]any{"id": a.ID, "scr_id": a.SCRID, "sdr_id": a.SDRID}
			return a.ID, nil, after, nil
		},
		Read: func(ctx context.Context, tx *sql.Tx, _ string, _ map[string]any) error {
			return execAllocationUpsert(ctx, tx, a)
		},
	}
}

func execAllocationUpsert(ctx context.Context, exec execer, a storagerecord.AllocatedStorageRecord) error {
	_, err := exec.ExecContext(ctx, `
		INSERT INTO allocated_storage_records (id, scr_id, sdr_id, gc_allocation_id, sdgc_allocation_id,
			sdr_proportion, storage_efficiency_factor, scr_allocation_methodology,
			efficiency_interval_start, efficiency_interval_end, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET sdgc_allocation_id = EXCLUDED.sdgc_allocation_id
	`, a.ID, a.SCRID, a.SDRID, ptrToNullString(a.GCAllocationID), ptrToNullString(a.SDGCAllocationID),
		a.SDRProportion, a.StorageEfficiencyFactor, a.SCRAllocationMethodology,
		a.EfficiencyIntervalStart, a.EfficiencyIntervalEnd, a.CreatedAt)
	return err
}
