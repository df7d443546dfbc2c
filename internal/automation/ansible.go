package automation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Playbook filenames resolved relative to the Ansible directory.
const (
	upgradePlaybook  = "upgrade.yml"
	rollbackPlaybook = "rollback.yml"
	pingPlaybook     = "ping.yml"
)

// Compile-time interface guard.
var _ Runner = (*AnsibleRunner)(nil)

// AnsibleRunner executes playbooks via the ansible-playbook binary. The
// Ansible directory must contain inventory.ini and a playbooks/ folder.
type AnsibleRunner struct {
	dir     string
	timeout time.Duration
	logger  *zap.Logger
}

// NewAnsibleRunner validates the Ansible directory layout and returns a
// Runner bound to it.
func NewAnsibleRunner(dir string, timeout time.Duration, logger *zap.Logger) (*AnsibleRunner, error) {
	for _, required := range []string{
		filepath.Join(dir, "inventory.ini"),
		filepath.Join(dir, "playbooks"),
	} {
		if _, err := os.Stat(required); err != nil {
			return nil, fmt.Errorf("ansible setup: %w", err)
		}
	}
	return &AnsibleRunner{dir: dir, timeout: timeout, logger: logger}, nil
}

// Run invokes the playbook for the mode with a bounded timeout. A non-zero
// exit code produces a Result with Success=false and a nil error; the
// caller decides what a failure means. A timeout is reported in the Result
// rather than aborting the pipeline.
func (a *AnsibleRunner) Run(ctx context.Context, deviceID, targetVersion string, mode Mode) (*Result, error) {
	playbook, checkFlag, err := a.plan(mode)
	if err != nil {
		return nil, err
	}

	playbookPath := filepath.Join(a.dir, "playbooks", playbook)
	if _, err := os.Stat(playbookPath); err != nil {
		return nil, fmt.Errorf("playbook %q: %w", playbook, err)
	}

	args := []string{
		"-i", filepath.Join(a.dir, "inventory.ini"),
		playbookPath,
		"-e", "router_id=" + deviceID,
	}
	if targetVersion != "" {
		args = append(args, "-e", "target_ver="+targetVersion)
	}
	if checkFlag {
		args = append(args, "--check")
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ansible-playbook", args...)
	cmd.Dir = a.dir
	cmd.Env = append(os.Environ(),
		"ANSIBLE_HOST_KEY_CHECKING=False",
		"ANSIBLE_STDOUT_CALLBACK=yaml",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	a.logger.Info("running ansible-playbook",
		zap.String("device_id", deviceID),
		zap.String("mode", string(mode)),
		zap.String("playbook", playbook),
	)

	runErr := cmd.Run()

	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	switch {
	case runErr == nil:
		result.Success = true
		result.ExitCode = 0
	case ctx.Err() == context.DeadlineExceeded:
		result.Success = false
		result.ExitCode = -1
		result.TimedOut = true
		if result.Stderr == "" {
			result.Stderr = fmt.Sprintf("execution timed out after %s", a.timeout)
		}
	default:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.Success = false
			result.ExitCode = exitErr.ExitCode()
		} else {
			// The process never started (binary missing, permissions).
			return nil, fmt.Errorf("run ansible-playbook: %w", runErr)
		}
	}

	a.logger.Info("ansible-playbook finished",
		zap.String("device_id", deviceID),
		zap.String("mode", string(mode)),
		zap.Bool("success", result.Success),
		zap.Int("exit_code", result.ExitCode),
	)

	return result, nil
}

func (a *AnsibleRunner) plan(mode Mode) (playbook string, check bool, err error) {
	switch mode {
	case ModeCheck:
		return upgradePlaybook, true, nil
	case ModeApply:
		return upgradePlaybook, false, nil
	case ModeRollback:
		return rollbackPlaybook, false, nil
	case ModePing:
		return pingPlaybook, false, nil
	default:
		return "", false, fmt.Errorf("unknown mode %q", mode)
	}
}
