package models

import "time"

// HealthStatus is the coarse classification of a health snapshot. It is
// advisory (dashboards, alerts) and distinct from the upgrade verdict.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthCaution  HealthStatus = "caution"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
	HealthUnknown  HealthStatus = "unknown"
)

// HealthSnapshot aggregates telemetry for one device over a time window.
// CPUAvg and MemFreeMin are nil when the underlying read failed or returned
// no data; evaluation substitutes the least favorable value for nil fields.
type HealthSnapshot struct {
	DeviceID       string       `json:"device_id"`
	Window         string       `json:"window"`
	CPUAvg         *float64     `json:"cpu_avg"`
	MemFreeMin     *float64     `json:"mem_free_min"`
	CriticalErrors int64        `json:"critical_errors"`
	Status         HealthStatus `json:"status"`
	CollectedAt    time.Time    `json:"collected_at"`
}
