// Package inventory provides read access to the device and policy tables.
// Inventory rows are owned by external tooling; the decision core never
// writes them. Create/Update exist for seeding and tests only.
package inventory

import (
	"database/sql"
	"errors"

	"github.com/nwops/upgraded/internal/store"
)

// ErrNotFound is returned when a device or policy row does not exist.
var ErrNotFound = errors.New("not found")

// Migrations creates the routers and upgrade_policies tables.
var Migrations = []store.Migration{
	{
		Version:     1,
		Description: "create routers and upgrade_policies tables",
		Up: func(tx *sql.Tx) error {
			stmts := []string{
				`CREATE TABLE routers (
					id              TEXT PRIMARY KEY,
					hostname        TEXT NOT NULL,
					mgmt_ip         TEXT NOT NULL,
					vendor          TEXT NOT NULL,
					model           TEXT NOT NULL,
					current_ver     TEXT NOT NULL,
					target_ver      TEXT NOT NULL DEFAULT '',
					window_start    DATETIME,
					window_end      DATETIME,
					last_upgrade_at DATETIME,
					notes           TEXT NOT NULL DEFAULT ''
				)`,
				`CREATE TABLE upgrade_policies (
					id                        INTEGER PRIMARY KEY AUTOINCREMENT,
					vendor                    TEXT NOT NULL,
					model                     TEXT NOT NULL,
					max_cpu_percent           REAL NOT NULL DEFAULT 70,
					min_free_mem_percent      REAL NOT NULL DEFAULT 30,
					block_if_critical_errors  INTEGER NOT NULL DEFAULT 1
				)`,
				`CREATE INDEX idx_upgrade_policies_vendor_model ON upgrade_policies(vendor, model)`,
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
