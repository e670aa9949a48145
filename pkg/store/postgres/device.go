package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/gcregistry/registry/internal/cqrs"
	"github.com/gcregistry/registry/internal/domain/device"
	"github.com/gcregistry/registry/internal/domain/event"
)

// DeviceStore persists Device rows.
type DeviceStore struct {
	read *sqlx.DB
}

// NewDeviceStore builds a DeviceStore.
func NewDeviceStore(read *sqlx.DB) *DeviceStore {
	return &DeviceStore{read: read}
}

func deviceAttrs(d device.Device) map[string]any {
	return map[string]any{
		"id":           d.ID,
		"account_id":   d.AccountID,
		"power_mw":     d.PowerMW,
		"is_storage":   d.IsStorage,
		"is_deleted":   d.IsDeleted,
	}
}

func execDeviceUpsert(ctx context.Context, exec execer, d device.Device) error {
	_, err := exec.ExecContext(ctx, `
		INSERT INTO devices (id, account_id, local_device_identifier, energy_source, technology_type,
			power_mw, operational_date, is_storage, energy_mwh, is_deleted, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			energy_source = EXCLUDED.energy_source,
			technology_type = EXCLUDED.technology_type,
			power_mw = EXCLUDED.power_mw,
			is_storage = EXCLUDED.is_storage,
			energy_mwh = EXCLUDED.energy_mwh,
			is_deleted = EXCLUDED.is_deleted,
			updated_at = EXCLUDED.updated_at
	`, d.ID, d.AccountID, d.LocalDeviceIdentifier, string(d.EnergySource), d.TechnologyType,
		d.PowerMW, d.OperationalDate, d.IsStorage, ptrToNullFloat64(d.EnergyMWh), d.IsDeleted, d.CreatedAt, d.UpdatedAt)
	return err
}

// Insert builds a Mutation registering a new device.
func (s *DeviceStore) Insert(d device.Device, at time.Time) cqrs.Mutation {
	d.CreatedAt, d.UpdatedAt = at, at
	return cqrs.Mutation{
		EntityName: d.EntityName(),
		EventType:  event.TypeCreate,
		Write: func(ctx context.Context, tx *sql.Tx) (string, map[string]any, map[string]any, error) {
			if err := execDeviceUpsert(ctx, tx, d); err != nil {
				return "", nil, nil, fmt.Errorf("insert device: %w", err)
			}
			return d.ID, nil, deviceAttrs(d), nil
		},
		Read: func(ctx context.Context, tx *sql.Tx, _ string, _ map[string]any) error {
			return execDeviceUpsert(ctx, tx, d)
		},
	}
}

// Update builds a Mutation persisting an already-mutated device.
func (s *DeviceStore) Update(before, after device.Device, at time.Time) cqrs.Mutation {
	after.UpdatedAt = at
	return cqrs.Mutation{
		EntityName: after.EntityName(),
		EventType:  event.TypeUpdate,
		Write: func(ctx context.Context, tx *sql.Tx) (string, map[string]any, map[string]any, error) {
			if err := execDeviceUpsert(ctx, tx, after); err != nil {
				return "", nil, nil, fmt.Errorf("update device: %w", err)
			}
			return after.ID, deviceAttrs(before), deviceAttrs(after), nil
		},
		Read: func(ctx context.Context, tx *sql.Tx, _ string, _ map[string]any) error {
			return execDeviceUpsert(ctx, tx, after)
		},
	}
}

// ListActive returns every non-deleted, non-storage device, for the
// issuance sweep to walk each cycle.
func (s *DeviceStore) ListActive(ctx context.Context) ([]device.Device, error) {
	rows, err := s.read.QueryContext(ctx, `
		SELECT id, account_id, local_device_identifier, energy_source, technology_type,
			power_mw, operational_date, is_storage, energy_mwh, is_deleted, created_at, updated_at
		FROM devices WHERE is_deleted = false AND is_storage = false
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []device.Device
	for rows.Next() {
		var (
			d        device.Device
			source   string
			energyMW sql.NullFloat64
		)
		if err := rows.Scan(&d.ID, &d.AccountID, &d.LocalDeviceIdentifier, &source, &d.TechnologyType,
			&d.PowerMW, &d.OperationalDate, &d.IsStorage, &energyMW, &d.IsDeleted, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.EnergySource = device.EnergySource(source)
		d.EnergyMWh = nullFloat64ToPtr(energyMW)
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetByID fetches a single device from the read store.
func (s *DeviceStore) GetByID(_ context.Context, id string) (device.Device, bool, error) {
	var (
		d        device.Device
		source   string
		energyMW sql.NullFloat64
	)
	err := s.read.QueryRow(`
		SELECT id, account_id, local_device_identifier, energy_source, technology_type,
			power_mw, operational_date, is_storage, energy_mwh, is_deleted, created_at, updated_at
		FROM devices WHERE id = $1 AND is_deleted = false
	`, id).Scan(&d.ID, &d.AccountID, &d.LocalDeviceIdentifier, &source, &d.TechnologyType,
		&d.PowerMW, &d.OperationalDate, &d.IsStorage, &energyMW, &d.IsDeleted, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return device.Device{}, false, nil
	}
	if err != nil {
		return device.Device{}, false, err
	}
	d.EnergySource = device.EnergySource(source)
	d.EnergyMWh = nullFloat64ToPtr(energyMW)
	return d, true, nil
}
