package testutil

import (
	"github.com/google/uuid"

	"github.com/nwops/upgraded/pkg/models"
)

// NewDevice returns a Device with sensible defaults, suitable for test
// fixtures. Override individual fields via options or after creation.
func NewDevice(opts ...func(*models.Device)) models.Device {
	d := models.Device{
		ID:             uuid.New().String(),
		Hostname:       "edge-router-01",
		MgmtIP:         "10.0.0.1",
		Vendor:         "cisco",
		Model:          "ISR4431",
		CurrentVersion: "16.9.4",
		TargetVersion:  "17.3.1",
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// WithID sets the device ID.
func WithID(id string) func(*models.Device) {
	return func(d *models.Device) { d.ID = id }
}

// WithVendorModel sets the device's vendor and model.
func WithVendorModel(vendor, model string) func(*models.Device) {
	return func(d *models.Device) { d.Vendor = vendor; d.Model = model }
}

// WithVersions sets the device's current and target versions.
func WithVersions(current, target string) func(*models.Device) {
	return func(d *models.Device) { d.CurrentVersion = current; d.TargetVersion = target }
}

// NewPolicy returns a resolved Policy with permissive defaults.
func NewPolicy(opts ...func(*models.Policy)) models.Policy {
	p := models.Policy{
		MaxCPUPercent:     75,
		MinFreeMemPercent: 25,
		MaxCriticalErrors: 0,
		Source:            models.PolicySourceDefault,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// WithThresholds sets the CPU and memory thresholds.
func WithThresholds(maxCPU, minMem float64) func(*models.Policy) {
	return func(p *models.Policy) { p.MaxCPUPercent = maxCPU; p.MinFreeMemPercent = minMem }
}

// NewSnapshot returns a healthy snapshot for the device.
func NewSnapshot(deviceID string, cpu, mem float64, errs int64) *models.HealthSnapshot {
	s := &models.HealthSnapshot{
		DeviceID:       deviceID,
		Window:         "2h",
		CPUAvg:         &cpu,
		MemFreeMin:     &mem,
		CriticalErrors: errs,
	}
	return s
}
