// Package storagerecord defines StorageRecord (SCR/SDR) and
// AllocatedStorageRecord, consumed by the Storage Allocator.
package storagerecord

import "time"

// StorageRecord is one contiguous metered flow interval for a storage
// device: a Storage Charge Record when IsCharging, else a Storage
// Discharge Record.
type StorageRecord struct {
	ID                string
	DeviceID          string
	IsCharging        bool
	FlowStartDatetime time.Time
	FlowEndDatetime   time.Time
	FlowEnergy        float64 // Wh, non-negative
	ValidatorID       *string
	IsDeleted         bool
	CreatedAt         time.Time
}

// EntityName reports the event-log entity name for StorageRecord.
func (StorageRecord) EntityName() string { return "StorageRecord" }

// EntityID reports the identity the event log keys on.
func (s StorageRecord) EntityID() string { return s.ID }

// AllocatedStorageRecord is a ternary match linking one SCR, one SDR, one
// cancelled production-GC bundle, and the resulting SD-GC.
type AllocatedStorageRecord struct {
	ID                       string
	SCRID                    string
	SDRID                    string
	GCAllocationID           *string // cancelled production GC bundle id
	SDGCAllocationID         *string // minted SD-GC bundle id, set after issuance
	SDRProportion            float64 // (0,1]
	StorageEfficiencyFactor  float64 // [0,1]
	SCRAllocationMethodology string
	EfficiencyIntervalStart  time.Time
	EfficiencyIntervalEnd    time.Time
	CreatedAt                time.Time
}

// EntityName reports the event-log entity name for AllocatedStorageRecord.
func (AllocatedStorageRecord) EntityName() string { return "AllocatedStorageRecord" }

// EntityID reports the identity the event log keys on.
func (a AllocatedStorageRecord) EntityID() string { return a.ID }
