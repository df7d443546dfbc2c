package models

import (
	"encoding/json"
	"time"
)

// AuditEvent is one immutable entry in a device's audit trail. Events are
// write-once and ordered by timestamp; they are never updated or deleted.
type AuditEvent struct {
	ID        string          `json:"id"`
	DeviceID  string          `json:"device_id"`
	AttemptID string          `json:"attempt_id,omitempty"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
