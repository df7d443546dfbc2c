// Package automation abstracts the backend that actually mutates device
// configuration. The core only ever sees the Runner contract; the concrete
// backend shells out to Ansible.
package automation

import "context"

// Mode selects what a Run invocation does.
type Mode string

const (
	// ModeCheck runs the upgrade playbook in dry-run (check) mode. Nothing
	// on the device changes.
	ModeCheck Mode = "check"

	// ModeApply runs the upgrade playbook for real.
	ModeApply Mode = "apply"

	// ModeRollback runs the rollback playbook. Never invoked automatically.
	ModeRollback Mode = "rollback"

	// ModePing validates connectivity to the device.
	ModePing Mode = "ping"
)

// Result is the structured outcome of a backend invocation. A Result is
// produced even on failure; an opaque exit code alone is never enough for
// the audit trail.
type Result struct {
	Success  bool   `json:"success"`
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

// Runner executes device operations. Implementations must bound execution
// time and return a structured Result whenever the backend was actually
// invoked; an error return means the invocation itself could not start.
type Runner interface {
	Run(ctx context.Context, deviceID, targetVersion string, mode Mode) (*Result, error)
}
