package policy

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nwops/upgraded/pkg/models"
)

// WindowFromConfig reads the policy.upgrade_window.* section. The shipped
// default (0, 0, no days) places no restriction.
func WindowFromConfig(v *viper.Viper) WindowConfig {
	return WindowConfig{
		StartHour:   v.GetInt("policy.upgrade_window.start_hour"),
		EndHour:     v.GetInt("policy.upgrade_window.end_hour"),
		AllowedDays: v.GetStringSlice("policy.upgrade_window.allowed_days"),
	}
}

// WindowConfig describes the global maintenance window: an hour range plus
// an optional list of allowed weekdays. An empty day list allows every day.
// Hours are compared in the orchestrator's local time zone: StartHour is
// inclusive, EndHour exclusive. Windows crossing midnight (start > end) are
// supported.
type WindowConfig struct {
	StartHour   int
	EndHour     int
	AllowedDays []string // Lowercase weekday names, e.g. "saturday".
}

// WindowChecker evaluates whether the current time permits an upgrade.
// The clock is injected so tests control time.
type WindowChecker struct {
	cfg WindowConfig
	now func() time.Time
}

// NewWindowChecker creates a WindowChecker. A nil clock uses time.Now.
func NewWindowChecker(cfg WindowConfig, now func() time.Time) *WindowChecker {
	if now == nil {
		now = time.Now
	}
	return &WindowChecker{cfg: cfg, now: now}
}

// Within reports whether the current time falls inside the maintenance
// window for the device. A device-level window (explicit start/end
// timestamps) takes precedence over the global hour/day rule.
func (w *WindowChecker) Within(device *models.Device) bool {
	now := w.now()

	if device != nil && device.WindowStart != nil && device.WindowEnd != nil {
		return !now.Before(*device.WindowStart) && now.Before(*device.WindowEnd)
	}

	return w.hourOK(now) && w.dayOK(now)
}

func (w *WindowChecker) hourOK(now time.Time) bool {
	start, end := w.cfg.StartHour, w.cfg.EndHour
	if start == end {
		return true // Degenerate config: no hour restriction.
	}
	h := now.Hour()
	if start < end {
		return h >= start && h < end
	}
	// Window crosses midnight.
	return h >= start || h < end
}

func (w *WindowChecker) dayOK(now time.Time) bool {
	if len(w.cfg.AllowedDays) == 0 {
		return true
	}
	day := strings.ToLower(now.Weekday().String())
	for _, allowed := range w.cfg.AllowedDays {
		if strings.EqualFold(allowed, day) {
			return true
		}
	}
	return false
}
