package inventory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nwops/upgraded/pkg/models"
)

// DeviceRepository provides access to managed devices.
type DeviceRepository interface {
	// Get returns a single device by ID.
	Get(ctx context.Context, id string) (*models.Device, error)

	// List returns all devices ordered by hostname.
	List(ctx context.Context) ([]models.Device, error)

	// Create inserts a device row. Used by seeding and tests; the decision
	// core itself never creates devices.
	Create(ctx context.Context, device *models.Device) error
}

// Compile-time interface guard.
var _ DeviceRepository = (*SQLiteDeviceRepository)(nil)

// SQLiteDeviceRepository implements DeviceRepository over the routers table.
type SQLiteDeviceRepository struct {
	db *sql.DB
}

// NewSQLiteDeviceRepository creates a DeviceRepository. The routers table
// must already exist (created by the inventory migrations).
func NewSQLiteDeviceRepository(db *sql.DB) *SQLiteDeviceRepository {
	return &SQLiteDeviceRepository{db: db}
}

const deviceColumns = `id, hostname, mgmt_ip, vendor, model, current_ver,
	target_ver, window_start, window_end, last_upgrade_at, notes`

func (r *SQLiteDeviceRepository) Get(ctx context.Context, id string) (*models.Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM routers WHERE id = ?`, id)

	var d models.Device
	err := row.Scan(
		&d.ID, &d.Hostname, &d.MgmtIP, &d.Vendor, &d.Model, &d.CurrentVersion,
		&d.TargetVersion, &d.WindowStart, &d.WindowEnd, &d.LastUpgradeAt, &d.Notes,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get device %q: %w", id, err)
	}
	return &d, nil
}

func (r *SQLiteDeviceRepository) List(ctx context.Context) ([]models.Device, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM routers ORDER BY hostname`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(
			&d.ID, &d.Hostname, &d.MgmtIP, &d.Vendor, &d.Model, &d.CurrentVersion,
			&d.TargetVersion, &d.WindowStart, &d.WindowEnd, &d.LastUpgradeAt, &d.Notes,
		); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate devices: %w", err)
	}
	if devices == nil {
		devices = []models.Device{}
	}
	return devices, nil
}

func (r *SQLiteDeviceRepository) Create(ctx context.Context, device *models.Device) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO routers (
			id, hostname, mgmt_ip, vendor, model, current_ver,
			target_ver, window_start, window_end, last_upgrade_at, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		device.ID, device.Hostname, device.MgmtIP, device.Vendor, device.Model,
		device.CurrentVersion, device.TargetVersion,
		device.WindowStart, device.WindowEnd, device.LastUpgradeAt, device.Notes,
	)
	if err != nil {
		return fmt.Errorf("create device: %w", err)
	}
	return nil
}
