// Package memory provides an in-memory backend for the registry's
// lookup/query interfaces, for local development and tests that should
// not require a live PostgreSQL/Redis instance.
package memory

import (
	"context"
	"sync"

	"github.com/gcregistry/registry/internal/domain/account"
	"github.com/gcregistry/registry/internal/domain/certificate"
	"github.com/gcregistry/registry/internal/domain/device"
	"github.com/gcregistry/registry/internal/domain/storagerecord"
	"github.com/gcregistry/registry/internal/domain/whitelist"
	"github.com/gcregistry/registry/internal/query"
	"github.com/gcregistry/registry/internal/validator"
)

// Store is an in-memory implementation of the registry's persistence
// boundaries. It is safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	bundles         map[string]certificate.GranularCertificateBundle
	accounts        map[string]account.Account
	devices         map[string]device.Device
	storageRecords  map[string]storagerecord.StorageRecord
	allocations     map[string]storagerecord.AllocatedStorageRecord
	whitelistLinks  map[string]whitelist.Link
	userLinks       map[string]bool // "userID:accountID" -> linked
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		bundles:        make(map[string]certificate.GranularCertificateBundle),
		accounts:       make(map[string]account.Account),
		devices:        make(map[string]device.Device),
		storageRecords: make(map[string]storagerecord.StorageRecord),
		allocations:    make(map[string]storagerecord.AllocatedStorageRecord),
		whitelistLinks: make(map[string]whitelist.Link),
		userLinks:      make(map[string]bool),
	}
}

// PutBundle seeds or overwrites a bundle.
func (s *Store) PutBundle(b certificate.GranularCertificateBundle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundles[b.ID] = b
}

// PutAccount seeds or overwrites an account.
func (s *Store) PutAccount(a account.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
}

// PutDevice seeds or overwrites a device.
func (s *Store) PutDevice(d device.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[d.ID] = d
}

// PutStorageRecord seeds or overwrites a storage record.
func (s *Store) PutStorageRecord(r storagerecord.StorageRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storageRecords[r.ID] = r
}

// PutAllocation seeds or overwrites an allocated storage record.
func (s *Store) PutAllocation(a storagerecord.AllocatedStorageRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allocations[a.ID] = a
}

// PutWhitelistLink seeds or overwrites a transfer admission edge.
func (s *Store) PutWhitelistLink(l whitelist.Link) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.whitelistLinks[l.ID] = l
}

// LinkUser records a user-account link.
func (s *Store) LinkUser(userID, accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userLinks[userID+":"+accountID] = true
}

// BundleByID implements storageallocator.BundleLookup and the Action
// Processor's target lookups.
func (s *Store) BundleByID(id string) (certificate.GranularCertificateBundle, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bundles[id]
	if !ok || b.IsDeleted {
		return certificate.GranularCertificateBundle{}, false, nil
	}
	return b, true, nil
}

// StorageRecordsByValidatorID implements storageallocator.RecordLookup.
func (s *Store) StorageRecordsByValidatorID(validatorID string) ([]storagerecord.StorageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []storagerecord.StorageRecord
	for _, r := range s.storageRecords {
		if r.ValidatorID != nil && *r.ValidatorID == validatorID && !r.IsDeleted {
			out = append(out, r)
		}
	}
	return out, nil
}

// Linked implements whitelistgate.LinkLookup.
func (s *Store) Linked(sourceAccountID, targetAccountID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.whitelistLinks {
		if l.SourceAccountID == sourceAccountID && l.TargetAccountID == targetAccountID && !l.IsDeleted {
			return true, nil
		}
	}
	return false, nil
}

// UserLinked implements whitelistgate.UserLinkLookup.
func (s *Store) UserLinked(userID, accountID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userLinks[userID+":"+accountID], nil
}

// ExistingRanges implements importer.Params.ExistingRanges: every
// non-deleted range issued to a device, in no particular order.
func (s *Store) ExistingRanges(deviceID string) ([]validator.Range, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []validator.Range
	for _, b := range s.bundles {
		if b.DeviceID == deviceID && !b.IsDeleted {
			out = append(out, validator.Range{Start: b.RangeStart, End: b.RangeEnd})
		}
	}
	return out, nil
}

// QueryBundles implements query.Store.
func (s *Store) QueryBundles(_ context.Context, f query.Filter) ([]certificate.GranularCertificateBundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	issuanceMatch := func(b certificate.GranularCertificateBundle) bool {
		if len(f.IssuanceIDs) == 0 {
			return true
		}
		for _, k := range f.IssuanceIDs {
			if b.DeviceID == k.DeviceID && b.ProductionStartingInterval.Equal(k.StartingInterval) {
				return true
			}
		}
		return false
	}

	var out []certificate.GranularCertificateBundle
	for _, b := range s.bundles {
		if b.IsDeleted || b.AccountID != f.SourceAccountID {
			continue
		}
		if f.DeviceID != "" && b.DeviceID != f.DeviceID {
			continue
		}
		if f.EnergySource != "" && b.EnergySource != f.EnergySource {
			continue
		}
		if f.CertificateBundleStatus != "" && b.CertificateBundleStatus != f.CertificateBundleStatus {
			continue
		}
		if f.CertificatePeriodStart != nil && b.ProductionStartingInterval.Before(*f.CertificatePeriodStart) {
			continue
		}
		if f.CertificatePeriodEnd != nil && b.ProductionEndingInterval.After(*f.CertificatePeriodEnd) {
			continue
		}
		if !issuanceMatch(b) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}
