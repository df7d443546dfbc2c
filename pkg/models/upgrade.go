package models

import (
	"encoding/json"
	"time"
)

// UpgradeStatus is the state of an upgrade attempt. Transitions only move
// forward along the graph:
//
//	pending  -> denied | precheck
//	precheck -> precheck_failed | running
//	running  -> success | failed
//
// denied, precheck_failed, success and failed are terminal.
type UpgradeStatus string

const (
	StatusPending        UpgradeStatus = "pending"
	StatusDenied         UpgradeStatus = "denied"
	StatusPrecheck       UpgradeStatus = "precheck"
	StatusPrecheckFailed UpgradeStatus = "precheck_failed"
	StatusRunning        UpgradeStatus = "running"
	StatusSuccess        UpgradeStatus = "success"
	StatusFailed         UpgradeStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s UpgradeStatus) Terminal() bool {
	switch s {
	case StatusDenied, StatusPrecheckFailed, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// AttemptKind distinguishes forward upgrades from operator-invoked rollbacks.
type AttemptKind string

const (
	AttemptUpgrade  AttemptKind = "upgrade"
	AttemptRollback AttemptKind = "rollback"
)

// UpgradeRecord is one instance of the upgrade state machine for a device,
// from verdict to terminal status. The current status is overwritten in
// place; the full transition history lives in the audit trail.
type UpgradeRecord struct {
	ID            string          `json:"id"`
	DeviceID      string          `json:"device_id"`
	Kind          AttemptKind     `json:"kind"`
	Verdict       Verdict         `json:"verdict"`
	Status        UpgradeStatus   `json:"status"`
	TargetVersion string          `json:"target_version,omitempty"`
	Detail        json.RawMessage `json:"detail,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}
