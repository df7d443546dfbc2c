package policy

import (
	"sort"

	"github.com/nwops/upgraded/pkg/models"
)

// Pre-check names derived from vendor requirements.
const (
	CheckFirmwareCompatibility = "firmware_compatibility_check"
	CheckMemoryRequirements    = "memory_requirements_check"
	CheckBootflashSpace        = "bootflash_space_check"
)

// PreCheckGenerator assembles the list of required pre-upgrade checks for a
// device: the configured base list plus any checks implied by the vendor
// requirement overlay.
type PreCheckGenerator struct {
	base    []string
	overlay VendorOverlay
}

// NewPreCheckGenerator creates a PreCheckGenerator.
func NewPreCheckGenerator(base []string, overlay VendorOverlay) *PreCheckGenerator {
	return &PreCheckGenerator{base: base, overlay: overlay}
}

// Generate returns the deduplicated, sorted pre-check list for the device.
func (g *PreCheckGenerator) Generate(device *models.Device) []string {
	seen := make(map[string]struct{}, len(g.base)+3)
	for _, c := range g.base {
		seen[c] = struct{}{}
	}

	reqs := g.overlay.Lookup(device.Vendor, device.Model)
	if reqs.CompatibilityCheck {
		seen[CheckFirmwareCompatibility] = struct{}{}
	}
	if reqs.MinimumMemoryMB > 0 {
		seen[CheckMemoryRequirements] = struct{}{}
	}
	if reqs.BootflashRequirementMB > 0 {
		seen[CheckBootflashSpace] = struct{}{}
	}

	checks := make([]string, 0, len(seen))
	for c := range seen {
		checks = append(checks, c)
	}
	sort.Strings(checks)
	return checks
}
