// Package audit persists upgrade attempts and their transition history.
// Attempt rows hold the current status; every transition additionally lands
// in the append-only audit_events table, which is never updated or deleted.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/nwops/upgraded/internal/store"
	"github.com/nwops/upgraded/pkg/models"
)

// ErrNotFound is returned when an attempt does not exist.
var ErrNotFound = errors.New("not found")

// Recorder is the audit store contract consumed by the orchestrator.
type Recorder interface {
	// CreateAttempt persists a new attempt row and its creation event.
	// record.ID is generated when empty.
	CreateAttempt(ctx context.Context, record *models.UpgradeRecord) error

	// UpdateStatus overwrites the attempt's current status and appends a
	// transition event. Detail, when non-nil, replaces the stored backend
	// detail. CompletedAt is stamped for terminal statuses.
	UpdateStatus(ctx context.Context, attemptID string, status models.UpgradeStatus, detail json.RawMessage) error

	// AppendEvent records a free-form audit event for a device.
	AppendEvent(ctx context.Context, deviceID, attemptID, event string, payload any) error

	// OpenAttempt returns the device's most recent non-terminal attempt,
	// or ErrNotFound when every attempt has reached a terminal state.
	OpenAttempt(ctx context.Context, deviceID string) (*models.UpgradeRecord, error)

	// GetAttempt returns a single attempt by ID.
	GetAttempt(ctx context.Context, id string) (*models.UpgradeRecord, error)

	// ListAttempts returns the device's most recent attempts, newest first.
	ListAttempts(ctx context.Context, deviceID string, limit int) ([]models.UpgradeRecord, error)

	// ListEvents returns the device's most recent audit events, newest first.
	ListEvents(ctx context.Context, deviceID string, limit int) ([]models.AuditEvent, error)
}

// Migrations creates the upgrades and audit_events tables.
var Migrations = []store.Migration{
	{
		Version:     1,
		Description: "create upgrades and audit_events tables",
		Up: func(tx *sql.Tx) error {
			stmts := []string{
				`CREATE TABLE upgrades (
					id           TEXT PRIMARY KEY,
					router_id    TEXT NOT NULL,
					kind         TEXT NOT NULL DEFAULT 'upgrade',
					verdict      TEXT NOT NULL,
					status       TEXT NOT NULL DEFAULT 'pending',
					target_ver   TEXT NOT NULL DEFAULT '',
					detail       TEXT,
					created_at   DATETIME NOT NULL,
					completed_at DATETIME
				)`,
				`CREATE INDEX idx_upgrades_router ON upgrades(router_id, created_at)`,
				`CREATE INDEX idx_upgrades_status ON upgrades(status)`,
				`CREATE TABLE audit_events (
					id         TEXT PRIMARY KEY,
					router_id  TEXT NOT NULL,
					attempt_id TEXT NOT NULL DEFAULT '',
					event      TEXT NOT NULL,
					payload    TEXT,
					ts         DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_audit_events_router ON audit_events(router_id, ts)`,
			}
			for _, stmt := range stmts {
				if _, err := tx.Exec(stmt); err != nil {
					return err
				}
			}
			return nil
		},
	},
}
