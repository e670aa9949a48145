// Package hashing implements the bundle lineage hash:
//
//	bundle_hash(bundle, parent_hash) =
//	    SHA256(canonical_json(bundle_without_{id, created_at, hash, mutable_fields}) || parent_hash)
//
// Mutable fields are excluded so the lineage hash stays verifiable
// regardless of lifecycle movement or split-induced range shifts.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/gcregistry/registry/internal/domain/certificate"
)

// canonicalBundle is the subset of GranularCertificateBundle fields that
// participate in the lineage hash: everything except id, created_at, hash,
// and the fields that mutate over a bundle's life (status, account_id,
// sdr_allocation_id, storage_efficiency_factor, is_deleted, range_start,
// range_end).
type canonicalBundle struct {
	IssuanceID                 string `json:"issuance_id"`
	DeviceID                   string `json:"device_id"`
	MetadataID                 string `json:"metadata_id"`
	ProductionStartingInterval string `json:"production_starting_interval"`
	ProductionEndingInterval   string `json:"production_ending_interval"`
	ExpiryDatestamp            string `json:"expiry_datestamp"`
	EnergyCarrier              string `json:"energy_carrier"`
	EnergySource               string `json:"energy_source"`
	IsStorage                  bool   `json:"is_storage"`
}

func toCanonical(b certificate.GranularCertificateBundle) canonicalBundle {
	return canonicalBundle{
		IssuanceID:                 b.IssuanceID,
		DeviceID:                   b.DeviceID,
		MetadataID:                 b.MetadataID,
		ProductionStartingInterval: b.ProductionStartingInterval.UTC().Format(rfc3339Nano),
		ProductionEndingInterval:   b.ProductionEndingInterval.UTC().Format(rfc3339Nano),
		ExpiryDatestamp:            b.ExpiryDatestamp.UTC().Format(rfc3339Nano),
		EnergyCarrier:              string(b.EnergyCarrier),
		EnergySource:               b.EnergySource,
		IsStorage:                  b.IsStorage,
	}
}

const rfc3339Nano = "2006-01-02T15:04:05.999999999Z07:00"

// CanonicalJSON returns the deterministic JSON encoding of b's immutable
// fields, sorted so field order never affects the digest (Go's
// encoding/json already emits struct fields in declaration order, but we
// round-trip through a map to guarantee it regardless of struct changes).
func CanonicalJSON(b certificate.GranularCertificateBundle) ([]byte, error) {
	canon := toCanonical(b)
	raw, err := json.Marshal(canon)
	if err != nil {
		return nil, err
	}

	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(asMap))
	for k := range asMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := []byte("{")
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, _ := json.Marshal(k)
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, asMap[k]...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// Hash computes bundle_hash(bundle, parentHash). parentHash is empty for a
// freshly-issued bundle (no parent) and the parent's hash for a split child.
func Hash(b certificate.GranularCertificateBundle, parentHash string) (string, error) {
	canon, err := CanonicalJSON(b)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write(canon)
	h.Write([]byte(parentHash))
	return hex.EncodeToString(h.Sum(nil)), nil
}
