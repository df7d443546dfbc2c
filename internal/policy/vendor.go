package policy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// VendorRequirements are vendor/model specific pre-upgrade requirements
// layered on top of the threshold policy.
type VendorRequirements struct {
	CompatibilityCheck     bool `yaml:"compatibility_check"`
	MinimumMemoryMB        int  `yaml:"minimum_memory_mb"`
	BootflashRequirementMB int  `yaml:"bootflash_requirement_mb"`
}

// VendorOverlay maps vendor name to model-key to requirements. Model keys
// match on case-insensitive substring in either direction, so "isr4431"
// matches both the key "isr4" and the model "ISR4431-X".
type VendorOverlay map[string]map[string]VendorRequirements

// LoadVendorOverlay parses a vendor requirements YAML file. A missing path
// yields an empty overlay.
func LoadVendorOverlay(path string) (VendorOverlay, error) {
	if path == "" {
		return VendorOverlay{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vendor overlay %q: %w", path, err)
	}
	var overlay VendorOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parse vendor overlay %q: %w", path, err)
	}
	if overlay == nil {
		overlay = VendorOverlay{}
	}
	return overlay, nil
}

// Lookup returns the requirements for a vendor/model pair, or a zero value
// when no entry matches.
func (o VendorOverlay) Lookup(vendor, model string) VendorRequirements {
	vendorCfg, ok := o[strings.ToLower(vendor)]
	if !ok {
		return VendorRequirements{}
	}
	model = strings.ToLower(model)
	for key, reqs := range vendorCfg {
		key = strings.ToLower(key)
		if strings.Contains(model, key) || strings.Contains(key, model) {
			return reqs
		}
	}
	return VendorRequirements{}
}
