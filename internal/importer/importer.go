// Package importer implements the bulk certificate importer: a
// schema-validated streaming row reader (CSV or JSON) that produces
// candidate bundles, de-duplicating metadata and rejecting individual rows
// without aborting the rest of the batch.
package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/gcregistry/registry/internal/apperrors"
	"github.com/gcregistry/registry/internal/domain/certificate"
	"github.com/gcregistry/registry/internal/hashing"
	"github.com/gcregistry/registry/internal/issuanceid"
	"github.com/gcregistry/registry/internal/validator"
)

// RowError records one rejected row without aborting the batch.
type RowError struct {
	RowIndex int
	Err      error
}

// Summary is the outcome of one import call.
type Summary struct {
	Accepted []certificate.GranularCertificateBundle
	Metadata []certificate.IssuanceMetaData
	Rejected []RowError
}

// csvColumns are the required columns of the import CSV schema: the union
// of IssuanceMetaData and GranularCertificateBundle fields a row must
// carry.
var csvColumns = []string{
	"device_id", "range_start", "range_end",
	"production_starting_interval", "production_ending_interval", "expiry_datestamp",
	"energy_carrier", "energy_source", "beneficiary",
	"country", "issuing_body", "market_zone", "legal_status", "fuel_source",
}

// Params configures one import call.
type Params struct {
	AccountID       string
	NewBundleID     func() string
	NewMetadataID   func() string
	ExistingRanges  func(deviceID string) ([]validator.Range, error)
}

// Importer streams rows, de-duplicates metadata, validates ranges, and
// mints candidate bundles.
type Importer struct {
	params Params
	seen   map[string]string // metadata fingerprint -> assigned metadata id
}

// New builds an Importer.
func New(p Params) *Importer {
	return &Importer{params: p, seen: make(map[string]string)}
}

// ImportCSV streams r as the import CSV schema.
func (imp *Importer) ImportCSV(r io.Reader) (Summary, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return Summary{}, apperrors.Wrap(apperrors.KindValidation, "VAL_IMPORT_HEADER", "could not read CSV header", err)
	}
	colIndex, err := indexColumns(header)
	if err != nil {
		return Summary{}, err
	}

	var summary Summary
	rowIndex := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return summary, apperrors.Wrap(apperrors.KindValidation, "VAL_IMPORT_ROW_UNREADABLE", "could not read CSV row", err)
		}
		rowIndex++

		row := make(map[string]string, len(colIndex))
		for col, idx := range colIndex {
			if idx < len(record) {
				row[col] = record[idx]
			}
		}

		bundle, meta, err := imp.buildCandidate(row)
		if err != nil {
			summary.Rejected = append(summary.Rejected, RowError{RowIndex: rowIndex, Err: err})
			continue
		}
		if meta != nil {
			summary.Metadata = append(summary.Metadata, *meta)
		}
		summary.Accepted = append(summary.Accepted, bundle)
	}

	return summary, nil
}

// ImportJSON streams JSON array body: each element is one row object with
// the same field set the CSV schema names.
func (imp *Importer) ImportJSON(data []byte) (Summary, error) {
	result := gjson.ParseBytes(data)
	if !result.IsArray() {
		return Summary{}, apperrors.Validation("VAL_IMPORT_JSON_SHAPE", "import JSON body must be an array of rows")
	}

	var summary Summary
	rowIndex := 0
	for _, rowResult := range result.Array() {
		rowIndex++
		row := make(map[string]string)
		rowResult.ForEach(func(key, value gjson.Result) bool {
			row[key.String()] = value.String()
			return true
		})

		bundle, meta, err := imp.buildCandidate(row)
		if err != nil {
			summary.Rejected = append(summary.Rejected, RowError{RowIndex: rowIndex, Err: err})
			continue
		}
		if meta != nil {
			summary.Metadata = append(summary.Metadata, *meta)
		}
		summary.Accepted = append(summary.Accepted, bundle)
	}

	return summary, nil
}

func (imp *Importer) buildCandidate(row map[string]string) (certificate.GranularCertificateBundle, *certificate.IssuanceMetaData, error) {
	rangeStart, err := parseInt(row["range_start"])
	if err != nil {
		return certificate.GranularCertificateBundle{}, nil, apperrors.Validation("VAL_IMPORT_RANGE_START", "range_start must be an integer")
	}
	rangeEnd, err := parseInt(row["range_end"])
	if err != nil {
		return certificate.GranularCertificateBundle{}, nil, apperrors.Validation("VAL_IMPORT_RANGE_END", "range_end must be an integer")
	}

	prodStart, err := parseUTCTime(row["production_starting_interval"])
	if err != nil {
		return certificate.GranularCertificateBundle{}, nil, apperrors.InvalidTimezone("production_starting_interval")
	}
	prodEnd, err := parseUTCTime(row["production_ending_interval"])
	if err != nil {
		return certificate.GranularCertificateBundle{}, nil, apperrors.InvalidTimezone("production_ending_interval")
	}
	expiry, err := parseUTCTime(row["expiry_datestamp"])
	if err != nil {
		return certificate.GranularCertificateBundle{}, nil, apperrors.InvalidTimezone("expiry_datestamp")
	}

	deviceID := row["device_id"]
	if deviceID == "" {
		return certificate.GranularCertificateBundle{}, nil, apperrors.Validation("VAL_IMPORT_DEVICE_ID", "device_id is required")
	}

	existing, err := imp.params.ExistingRanges(deviceID)
	if err != nil {
		return certificate.GranularCertificateBundle{}, nil, apperrors.Internal("", err)
	}
	if err := validator.ValidateImportRange(rangeStart, rangeEnd, existing); err != nil {
		return certificate.GranularCertificateBundle{}, nil, err
	}

	meta := certificate.IssuanceMetaData{
		Country:     row["country"],
		IssuingBody: row["issuing_body"],
		MarketZone:  row["market_zone"],
		LegalStatus: row["legal_status"],
		FuelSource:  row["fuel_source"],
	}
	fingerprint := meta.Fingerprint()
	metadataID, alreadySeen := imp.seen[fingerprint]
	var mintedMeta *certificate.IssuanceMetaData
	if !alreadySeen {
		metadataID = imp.params.NewMetadataID()
		meta.ID = metadataID
		imp.seen[fingerprint] = metadataID
		mintedMeta = &meta
	}

	bundle := certificate.GranularCertificateBundle{
		ID:                         imp.params.NewBundleID(),
		IssuanceID:                 issuanceid.Encode(deviceID, prodStart),
		AccountID:                  imp.params.AccountID,
		DeviceID:                   deviceID,
		MetadataID:                 metadataID,
		RangeStart:                 rangeStart,
		RangeEnd:                   rangeEnd,
		CertificateBundleStatus:    certificate.StatusActive,
		ProductionStartingInterval: prodStart,
		ProductionEndingInterval:   prodEnd,
		ExpiryDatestamp:            expiry,
		EnergyCarrier:              certificate.EnergyCarrier(row["energy_carrier"]),
		EnergySource:               row["energy_source"],
		Beneficiary:                row["beneficiary"],
	}

	hash, err := hashing.Hash(bundle, "")
	if err != nil {
		return certificate.GranularCertificateBundle{}, nil, apperrors.Internal("", err)
	}
	bundle.Hash = hash

	return bundle, mintedMeta, nil
}

func indexColumns(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, col := range header {
		index[col] = i
	}
	for _, required := range csvColumns {
		if _, ok := index[required]; !ok {
			return nil, apperrors.Validation("VAL_IMPORT_MISSING_COLUMN", fmt.Sprintf("missing required column %q", required))
		}
	}
	return index, nil
}

func parseInt(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func parseUTCTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	if t.Location() != time.UTC {
		t = t.UTC()
	}
	return t, nil
}
