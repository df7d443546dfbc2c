package models

import "time"

// Device represents a managed network device subject to upgrade decisions.
// Inventory management owns these rows; the decision core reads them only.
type Device struct {
	ID             string     `json:"id"`
	Hostname       string     `json:"hostname"`
	MgmtIP         string     `json:"mgmt_ip"`
	Vendor         string     `json:"vendor"`
	Model          string     `json:"model"`
	CurrentVersion string     `json:"current_version"`
	TargetVersion  string     `json:"target_version,omitempty"`
	WindowStart    *time.Time `json:"window_start,omitempty"`
	WindowEnd      *time.Time `json:"window_end,omitempty"`
	LastUpgradeAt  *time.Time `json:"last_upgrade_at,omitempty"`
	Notes          string     `json:"notes,omitempty"`
}

// UpgradeTarget returns the version an upgrade would move the device to.
// Devices with no explicit target fall back to their current version, so a
// no-op upgrade is representable.
func (d *Device) UpgradeTarget() string {
	if d.TargetVersion != "" {
		return d.TargetVersion
	}
	return d.CurrentVersion
}
