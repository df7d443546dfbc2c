// Package policy turns device metadata, resolved thresholds and a health
// snapshot into a rule-based upgrade verdict with an itemized rationale.
package policy

import (
	"context"

	"github.com/spf13/viper"

	"github.com/nwops/upgraded/internal/inventory"
	"github.com/nwops/upgraded/pkg/models"
)

// Defaults holds the global policy thresholds applied when no vendor/model
// specific policy exists. Loaded once at startup; immutable afterwards.
type Defaults struct {
	MaxCPUPercent            float64
	MinFreeMemPercent        float64
	MaxCriticalErrors        int64
	BlockIfCriticalErrors    bool
	RequireMaintenanceWindow bool
	Window                   string // Telemetry window, e.g. "2h".
}

// DefaultsFromConfig reads the policy.* section of the configuration.
// Missing keys fall back to the shipped defaults.
func DefaultsFromConfig(v *viper.Viper) Defaults {
	v.SetDefault("policy.max_cpu_percent", 70.0)
	v.SetDefault("policy.min_free_mem_percent", 30.0)
	v.SetDefault("policy.max_critical_errors", 0)
	v.SetDefault("policy.block_if_critical_errors", true)
	v.SetDefault("policy.require_maintenance_window", false)
	v.SetDefault("policy.window", "2h")

	return Defaults{
		MaxCPUPercent:            v.GetFloat64("policy.max_cpu_percent"),
		MinFreeMemPercent:        v.GetFloat64("policy.min_free_mem_percent"),
		MaxCriticalErrors:        v.GetInt64("policy.max_critical_errors"),
		BlockIfCriticalErrors:    v.GetBool("policy.block_if_critical_errors"),
		RequireMaintenanceWindow: v.GetBool("policy.require_maintenance_window"),
		Window:                   v.GetString("policy.window"),
	}
}

// Policy returns the defaults as a resolved Policy value.
func (d Defaults) Policy() models.Policy {
	return models.Policy{
		MaxCPUPercent:            d.MaxCPUPercent,
		MinFreeMemPercent:        d.MinFreeMemPercent,
		MaxCriticalErrors:        d.MaxCriticalErrors,
		BlockIfCriticalErrors:    d.BlockIfCriticalErrors,
		RequireMaintenanceWindow: d.RequireMaintenanceWindow,
		Source:                   models.PolicySourceDefault,
	}
}

// Resolver resolves the policy for a device: the vendor/model row when one
// exists, the global defaults otherwise. Fields that only exist globally
// (max_critical_errors, require_maintenance_window) always come from the
// defaults.
type Resolver struct {
	repo     inventory.PolicyRepository
	defaults Defaults
}

// NewResolver creates a Resolver.
func NewResolver(repo inventory.PolicyRepository, defaults Defaults) *Resolver {
	return &Resolver{repo: repo, defaults: defaults}
}

// Resolve returns the effective policy for the device. Absence of a
// vendor/model row is not an error.
func (r *Resolver) Resolve(ctx context.Context, device *models.Device) (models.Policy, error) {
	p, err := r.repo.Find(ctx, device.Vendor, device.Model)
	if err != nil {
		if err == inventory.ErrNotFound {
			return r.defaults.Policy(), nil
		}
		return models.Policy{}, err
	}
	p.MaxCriticalErrors = r.defaults.MaxCriticalErrors
	p.RequireMaintenanceWindow = r.defaults.RequireMaintenanceWindow
	return *p, nil
}
