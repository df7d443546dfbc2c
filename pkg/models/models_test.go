package models

import "testing"

func TestUpgradeTarget(t *testing.T) {
	d := Device{CurrentVersion: "16.9.4", TargetVersion: "17.3.1"}
	if got := d.UpgradeTarget(); got != "17.3.1" {
		t.Errorf("UpgradeTarget() = %q, want 17.3.1", got)
	}

	d.TargetVersion = ""
	if got := d.UpgradeTarget(); got != "16.9.4" {
		t.Errorf("UpgradeTarget() = %q, want current version fallback", got)
	}
}

func TestUpgradeStatusTerminal(t *testing.T) {
	terminal := map[UpgradeStatus]bool{
		StatusPending:        false,
		StatusDenied:         true,
		StatusPrecheck:       false,
		StatusPrecheckFailed: true,
		StatusRunning:        false,
		StatusSuccess:        true,
		StatusFailed:         true,
	}

	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}
