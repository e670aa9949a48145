package httpapi

import (
	"net/http"
	"time"

	"github.com/gcregistry/registry/internal/apperrors"
	"github.com/gcregistry/registry/internal/domain/storagerecord"
	"github.com/gcregistry/registry/internal/storageallocator"
)

// storageRecordRequestBody is the wire shape of POST /storage/storage_records.
type storageRecordRequestBody struct {
	DeviceID          string    `json:"device_id"`
	IsCharging        bool      `json:"is_charging"`
	FlowStartDatetime time.Time `json:"flow_start_datetime"`
	FlowEndDatetime   time.Time `json:"flow_end_datetime"`
	FlowEnergy        float64   `json:"flow_energy"`
	ValidatorID       *string   `json:"validator_id,omitempty"`
}

func (h *handler) submitStorageRecord(w http.ResponseWriter, r *http.Request) {
	var body storageRecordRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.DeviceID == "" {
		writeError(w, apperrors.Validation("VAL_DEVICE_ID_REQUIRED", "device_id is required"))
		return
	}
	if body.FlowEnergy < 0 {
		writeError(w, apperrors.OutOfRange("flow_energy", 0, nil))
		return
	}
	if body.FlowEndDatetime.Before(body.FlowStartDatetime) {
		writeError(w, apperrors.Validation("VAL_FLOW_RANGE_INVERTED", "flow_end_datetime precedes flow_start_datetime"))
		return
	}

	record := storagerecord.StorageRecord{
		DeviceID:          body.DeviceID,
		IsCharging:        body.IsCharging,
		FlowStartDatetime: body.FlowStartDatetime,
		FlowEndDatetime:   body.FlowEndDatetime,
		FlowEnergy:        body.FlowEnergy,
		ValidatorID:       body.ValidatorID,
	}

	stored, err := h.deps.SubmitStorageRecord(r.Context(), record)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

// allocateStorageRecordRequestBody is the wire shape of
// POST /storage/allocated_storage_records.
type allocateStorageRecordRequestBody struct {
	SCRValidatorID          string  `json:"scr_validator_id"`
	SDRValidatorID          string  `json:"sdr_validator_id"`
	GCBundleID              string  `json:"gc_bundle_id,omitempty"`
	SDRProportion           float64 `json:"sdr_proportion"`
	StorageEfficiencyFactor float64 `json:"storage_efficiency_factor"`
	StorageDeviceID         string  `json:"storage_device_id,omitempty"` // required when gc_bundle_id set
	Methodology             string  `json:"scr_allocation_methodology"`
	LastRangeEnd            int64   `json:"last_range_end,omitempty"`
}

func (h *handler) allocateStorageRecord(w http.ResponseWriter, r *http.Request) {
	var body allocateStorageRecordRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	h.commitAllocation(w, r, body)
}

func (h *handler) commitAllocation(w http.ResponseWriter, r *http.Request, body allocateStorageRecordRequestBody) {
	if body.SCRValidatorID == "" || body.SDRValidatorID == "" {
		writeError(w, apperrors.Validation("VAL_VALIDATOR_IDS_REQUIRED", "scr_validator_id and sdr_validator_id are required"))
		return
	}
	if body.SDRProportion <= 0 || body.SDRProportion > 1 {
		writeError(w, apperrors.OutOfRange("sdr_proportion", 0, 1))
		return
	}

	row := storageallocator.Row{
		SCRValidatorID:          body.SCRValidatorID,
		SDRValidatorID:          body.SDRValidatorID,
		GCBundleID:              body.GCBundleID,
		SDRProportion:           body.SDRProportion,
		StorageEfficiencyFactor: body.StorageEfficiencyFactor,
	}
	params := storageallocator.MintParams{
		NewAllocatedRecordID: h.deps.NewAllocationID(),
		NewBundleID:          h.deps.NewBundleID(),
		StorageDeviceID:      body.StorageDeviceID,
		LastRangeEnd:         body.LastRangeEnd,
		Methodology:          body.Methodology,
	}

	result, err := h.deps.AllocateAndCommit(r.Context(), row, params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// issueSDGC serves POST /storage/issue_sdgcs: an alias of the allocation
// endpoint for callers that only ever retire a cancelled production GC and
// never submit a bare SCR/SDR match.
func (h *handler) issueSDGC(w http.ResponseWriter, r *http.Request) {
	var body allocateStorageRecordRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.GCBundleID == "" {
		writeError(w, apperrors.Validation("VAL_GC_BUNDLE_ID_REQUIRED", "gc_bundle_id is required to issue a storage discharge GC"))
		return
	}
	h.commitAllocation(w, r, body)
}
