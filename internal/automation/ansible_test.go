package automation

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nwops/upgraded/internal/testutil"
)

func ansibleDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "inventory.ini"), []byte("[routers]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "playbooks"), 0o755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestNewAnsibleRunnerValidatesLayout(t *testing.T) {
	if _, err := NewAnsibleRunner(ansibleDir(t), time.Minute, testutil.Logger()); err != nil {
		t.Errorf("NewAnsibleRunner() error = %v with complete layout", err)
	}

	empty := t.TempDir()
	if _, err := NewAnsibleRunner(empty, time.Minute, testutil.Logger()); err == nil {
		t.Error("NewAnsibleRunner() error = nil, want failure on missing inventory.ini")
	}

	noPlaybooks := t.TempDir()
	if err := os.WriteFile(filepath.Join(noPlaybooks, "inventory.ini"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewAnsibleRunner(noPlaybooks, time.Minute, testutil.Logger()); err == nil {
		t.Error("NewAnsibleRunner() error = nil, want failure on missing playbooks/")
	}
}

func TestRunRejectsMissingPlaybook(t *testing.T) {
	r, err := NewAnsibleRunner(ansibleDir(t), time.Minute, testutil.Logger())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.Run(context.Background(), "r1", "17.3.1", ModeApply); err == nil {
		t.Error("Run() error = nil, want failure when upgrade.yml is absent")
	}
}

func TestRunRejectsUnknownMode(t *testing.T) {
	r, err := NewAnsibleRunner(ansibleDir(t), time.Minute, testutil.Logger())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.Run(context.Background(), "r1", "17.3.1", Mode("reboot")); err == nil {
		t.Error("Run() error = nil, want failure for unknown mode")
	}
}

func TestPlanModeMapping(t *testing.T) {
	r := &AnsibleRunner{}

	tests := []struct {
		mode     Mode
		playbook string
		check    bool
	}{
		{ModeCheck, "upgrade.yml", true},
		{ModeApply, "upgrade.yml", false},
		{ModeRollback, "rollback.yml", false},
		{ModePing, "ping.yml", false},
	}

	for _, tt := range tests {
		playbook, check, err := r.plan(tt.mode)
		if err != nil {
			t.Errorf("plan(%q) error = %v", tt.mode, err)
			continue
		}
		if playbook != tt.playbook || check != tt.check {
			t.Errorf("plan(%q) = (%q, %v), want (%q, %v)", tt.mode, playbook, check, tt.playbook, tt.check)
		}
	}
}
