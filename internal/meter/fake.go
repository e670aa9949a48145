package meter

import (
	"context"
	"time"
)

// Fake is a deterministic in-memory Client for tests: readings are keyed by
// device id and interval start, set up in advance via Set.
type Fake struct {
	readings map[string]Reading
}

// NewFake builds an empty Fake.
func NewFake() *Fake {
	return &Fake{readings: make(map[string]Reading)}
}

// Set registers the reading a later FetchReading call for this
// device/interval should return.
func (f *Fake) Set(deviceID string, intervalStart time.Time, quantity int64) {
	f.readings[key(deviceID, intervalStart)] = Reading{
		DeviceID:        deviceID,
		IntervalStart:   intervalStart,
		MeteredQuantity: quantity,
	}
}

// FetchReading implements Client.
func (f *Fake) FetchReading(_ context.Context, deviceID string, intervalStart, intervalEnd time.Time) (*Reading, error) {
	r, ok := f.readings[key(deviceID, intervalStart)]
	if !ok {
		return nil, nil
	}
	r.IntervalEnd = intervalEnd
	return &r, nil
}

func key(deviceID string, intervalStart time.Time) string {
	return deviceID + "|" + intervalStart.UTC().Format(time.RFC3339)
}
