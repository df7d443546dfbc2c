package models

// PolicySource indicates how a policy was resolved for a device.
type PolicySource string

const (
	PolicySourceVendorModel PolicySource = "vendor_model"
	PolicySourceDefault     PolicySource = "default"
)

// Policy holds the thresholds governing upgrade approval for a device.
// A resolved Policy is immutable for the duration of an evaluation.
type Policy struct {
	Vendor                   string       `json:"vendor,omitempty"`
	Model                    string       `json:"model,omitempty"`
	MaxCPUPercent            float64      `json:"max_cpu_percent"`
	MinFreeMemPercent        float64      `json:"min_free_mem_percent"`
	MaxCriticalErrors        int64        `json:"max_critical_errors"`
	BlockIfCriticalErrors    bool         `json:"block_if_critical_errors"`
	RequireMaintenanceWindow bool         `json:"require_maintenance_window"`
	Source                   PolicySource `json:"source"`
}
