// Package device defines the Device entity: a production, consumption, or
// storage unit bound to exactly one Account.
package device

import (
	"time"

	"github.com/gcregistry/registry/internal/apperrors"
)

// EnergySource is the device's fuel/generation category.
type EnergySource string

const (
	EnergySourceSolar   EnergySource = "SOLAR"
	EnergySourceWind    EnergySource = "WIND"
	EnergySourceHydro   EnergySource = "HYDRO"
	EnergySourceStorage EnergySource = "STORAGE"
	EnergySourceOther   EnergySource = "OTHER"
)

// Device is a production, consumption, or storage unit.
type Device struct {
	ID                    string
	AccountID             string
	LocalDeviceIdentifier string
	EnergySource          EnergySource
	TechnologyType        string
	PowerMW               float64
	OperationalDate       time.Time
	IsStorage             bool
	EnergyMWh             *float64 // required when IsStorage
	IsDeleted             bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Validate enforces the Device invariant: storage devices must carry a
// capacity in MWh.
func (d Device) Validate() error {
	if d.IsStorage && d.EnergyMWh == nil {
		return apperrors.Integrity("storage device requires energy_mwh").WithDetails("device_id", d.ID)
	}
	return nil
}

// EntityName reports the event-log entity name for Device.
func (Device) EntityName() string { return "Device" }

// EntityID reports the identity the event log keys on.
func (d Device) EntityID() string { return d.ID }
