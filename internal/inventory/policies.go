package inventory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nwops/upgraded/pkg/models"
)

// PolicyRepository provides access to per-vendor/model upgrade policies.
type PolicyRepository interface {
	// Find returns the policy row matching (vendor, model), or ErrNotFound.
	Find(ctx context.Context, vendor, model string) (*models.Policy, error)

	// Create inserts a policy row. Used by seeding and tests.
	Create(ctx context.Context, policy *models.Policy) error
}

// Compile-time interface guard.
var _ PolicyRepository = (*SQLitePolicyRepository)(nil)

// SQLitePolicyRepository implements PolicyRepository over upgrade_policies.
type SQLitePolicyRepository struct {
	db *sql.DB
}

// NewSQLitePolicyRepository creates a PolicyRepository.
func NewSQLitePolicyRepository(db *sql.DB) *SQLitePolicyRepository {
	return &SQLitePolicyRepository{db: db}
}

func (r *SQLitePolicyRepository) Find(ctx context.Context, vendor, model string) (*models.Policy, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT vendor, model, max_cpu_percent, min_free_mem_percent, block_if_critical_errors
		FROM upgrade_policies
		WHERE vendor = ? COLLATE NOCASE AND model = ? COLLATE NOCASE
		ORDER BY id LIMIT 1`,
		vendor, model)

	var p models.Policy
	err := row.Scan(&p.Vendor, &p.Model, &p.MaxCPUPercent, &p.MinFreeMemPercent, &p.BlockIfCriticalErrors)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find policy %s/%s: %w", vendor, model, err)
	}
	p.Source = models.PolicySourceVendorModel
	return &p, nil
}

func (r *SQLitePolicyRepository) Create(ctx context.Context, policy *models.Policy) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO upgrade_policies (vendor, model, max_cpu_percent, min_free_mem_percent, block_if_critical_errors)
		VALUES (?, ?, ?, ?, ?)`,
		policy.Vendor, policy.Model, policy.MaxCPUPercent, policy.MinFreeMemPercent, policy.BlockIfCriticalErrors,
	)
	if err != nil {
		return fmt.Errorf("create policy: %w", err)
	}
	return nil
}
