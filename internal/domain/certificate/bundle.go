// Package certificate defines the central entity of the registry: the
// GranularCertificateBundle, its metadata, and its lifecycle.
package certificate

import "time"

// Status is a certificate_bundle_status value.
type Status string

const (
	StatusActive      Status = "ACTIVE"
	StatusCancelled   Status = "CANCELLED"
	StatusClaimed     Status = "CLAIMED"
	StatusReserved    Status = "RESERVED"
	StatusLocked      Status = "LOCKED"
	StatusWithdrawn   Status = "WITHDRAWN"
	StatusExpired     Status = "EXPIRED"
	StatusBundleSplit Status = "BUNDLE_SPLIT"
)

// transitions enumerates the allowed outbound moves for each status:
// ACTIVE → {CANCELLED, RESERVED, LOCKED, WITHDRAWN, EXPIRED, BUNDLE_SPLIT};
// CANCELLED → CLAIMED; RESERVED → CANCELLED. WITHDRAWN and BUNDLE_SPLIT
// are terminal.
var transitions = map[Status]map[Status]bool{
	StatusActive: {
		StatusCancelled:   true,
		StatusReserved:    true,
		StatusLocked:      true,
		StatusWithdrawn:   true,
		StatusExpired:     true,
		StatusBundleSplit: true,
	},
	StatusCancelled: {StatusClaimed: true},
	StatusReserved:  {StatusCancelled: true},
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// move.
func (s Status) CanTransition(next Status) bool {
	return transitions[s][next]
}

// EnergyCarrier is the metered physical or chemical carrier a bundle
// represents.
type EnergyCarrier string

const (
	EnergyCarrierElectricity EnergyCarrier = "ELECTRICITY"
	EnergyCarrierHydrogen    EnergyCarrier = "HYDROGEN"
	EnergyCarrierHeat        EnergyCarrier = "HEAT"
)

// IssuanceMetaData carries jurisdiction / issuing-body / market-zone
// attributes attached to one or more bundles.
type IssuanceMetaData struct {
	ID               string
	Country          string
	IssuingBody      string
	MarketZone       string
	LegalStatus      string
	EmissionsFactor  *float64
	FuelSource       string
	AdditionalValues map[string]string
}

// Fingerprint produces a stable key for de-duplicating metadata rows during
// bulk import (each unique metadata combination is de-duplicated).
func (m IssuanceMetaData) Fingerprint() string {
	return m.Country + "|" + m.IssuingBody + "|" + m.MarketZone + "|" + m.LegalStatus + "|" + m.FuelSource
}

// GranularCertificateBundle is the central entity: a contiguous integer
// range of unit certificates for one device, one production interval.
type GranularCertificateBundle struct {
	ID                         string
	IssuanceID                 string // stable across splits
	Hash                       string // lineage hash
	AccountID                  string
	DeviceID                   string
	MetadataID                 string
	RangeStart                 int64
	RangeEnd                   int64
	CertificateBundleStatus    Status
	ProductionStartingInterval time.Time
	ProductionEndingInterval   time.Time
	ExpiryDatestamp            time.Time
	EnergyCarrier              EnergyCarrier
	EnergySource               string
	IsStorage                  bool
	AllocatedStorageRecordID   *string
	StorageEfficiencyFactor    *float64
	Beneficiary                string
	IsDeleted                  bool
	CreatedAt                  time.Time
	UpdatedAt                  time.Time
}

// BundleQuantity returns range_end − range_start + 1.
func (b GranularCertificateBundle) BundleQuantity() int64 {
	return b.RangeEnd - b.RangeStart + 1
}

// EntityName reports the event-log entity name for a bundle.
func (GranularCertificateBundle) EntityName() string { return "GranularCertificateBundle" }

// EntityID reports the identity the event log keys on.
func (b GranularCertificateBundle) EntityID() string { return b.ID }

// WithRange returns a copy of b with a new range and recomputed quantity
// fields; used by the split engine to build children without reassigning
// unrelated fields.
func (b GranularCertificateBundle) WithRange(start, end int64) GranularCertificateBundle {
	c := b
	c.RangeStart = start
	c.RangeEnd = end
	return c
}
