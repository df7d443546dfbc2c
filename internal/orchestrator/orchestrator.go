// Package orchestrator sequences upgrade attempts: readiness evaluation,
// dry-run precheck, execution, and terminal outcome, with every transition
// persisted to the audit trail before control returns to the caller.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nwops/upgraded/internal/audit"
	"github.com/nwops/upgraded/internal/automation"
	"github.com/nwops/upgraded/internal/gate"
	"github.com/nwops/upgraded/internal/inventory"
	"github.com/nwops/upgraded/internal/policy"
	"github.com/nwops/upgraded/internal/telemetry"
	"github.com/nwops/upgraded/pkg/models"
)

// ErrAttemptInFlight is returned when a device already has a non-terminal
// upgrade attempt. The caller must wait for it to finish; requests are
// rejected, never queued.
var ErrAttemptInFlight = errors.New("upgrade attempt already in progress")

// Mode selects how far an approved upgrade proceeds.
type Mode string

const (
	// ModePlanOnly stops after a successful precheck without touching the
	// device.
	ModePlanOnly Mode = "plan_only"

	// ModeExecute runs the real upgrade after a successful precheck.
	ModeExecute Mode = "execute"
)

// Evaluation bundles everything produced while deciding on a device.
type Evaluation struct {
	Device   *models.Device         `json:"device"`
	Policy   models.Policy          `json:"policy"`
	Snapshot *models.HealthSnapshot `json:"snapshot"`
	Verdict  models.Verdict         `json:"verdict"`
}

// Orchestrator drives the upgrade state machine for managed devices.
type Orchestrator struct {
	devices   inventory.DeviceRepository
	resolver  *policy.Resolver
	health    *telemetry.HealthAggregator
	evaluator *policy.Evaluator
	gate      *gate.SafetyGate
	runner    automation.Runner
	recorder  audit.Recorder
	locks     *deviceLocks
	window    string
	logger    *zap.Logger
}

// New creates an Orchestrator. window is the telemetry window passed to the
// health aggregator (e.g. "2h").
func New(
	devices inventory.DeviceRepository,
	resolver *policy.Resolver,
	health *telemetry.HealthAggregator,
	evaluator *policy.Evaluator,
	safetyGate *gate.SafetyGate,
	runner automation.Runner,
	recorder audit.Recorder,
	window string,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		devices:   devices,
		resolver:  resolver,
		health:    health,
		evaluator: evaluator,
		gate:      safetyGate,
		runner:    runner,
		recorder:  recorder,
		locks:     newDeviceLocks(),
		window:    window,
		logger:    logger,
	}
}

// Evaluate runs the decision pipeline for a device without starting an
// attempt: health snapshot, rule evaluation, safety gate. The final verdict
// is recorded in the audit trail. Rejected with ErrAttemptInFlight while an
// attempt holds the device.
func (o *Orchestrator) Evaluate(ctx context.Context, deviceID string) (*Evaluation, error) {
	device, err := o.devices.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	if o.locks.Held(deviceID) {
		return nil, ErrAttemptInFlight
	}
	if err := o.ensureNoOpenAttempt(ctx, deviceID); err != nil {
		return nil, err
	}

	eval := o.decide(ctx, device)

	if err := o.recorder.AppendEvent(ctx, deviceID, "", "verdict", eval.Verdict); err != nil {
		return nil, fmt.Errorf("record verdict: %w", err)
	}
	return eval, nil
}

// Upgrade runs the full state machine for a device. In plan_only mode a
// successful precheck completes the attempt without invoking real
// execution. The returned record carries the terminal status.
func (o *Orchestrator) Upgrade(ctx context.Context, deviceID string, mode Mode) (*models.UpgradeRecord, error) {
	device, err := o.devices.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	if !o.locks.TryAcquire(deviceID) {
		return nil, ErrAttemptInFlight
	}
	defer o.locks.Release(deviceID)

	if err := o.ensureNoOpenAttempt(ctx, deviceID); err != nil {
		return nil, err
	}

	eval := o.decide(ctx, device)

	record := &models.UpgradeRecord{
		DeviceID:      deviceID,
		Kind:          models.AttemptUpgrade,
		Verdict:       eval.Verdict,
		Status:        models.StatusPending,
		TargetVersion: eval.Verdict.TargetVersion,
	}
	if err := o.recorder.CreateAttempt(ctx, record); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	if !eval.Verdict.Approve {
		// Denied verdicts never reach the automation backend.
		if err := o.transition(ctx, record, models.StatusDenied, nil); err != nil {
			return nil, err
		}
		return o.recorder.GetAttempt(ctx, record.ID)
	}

	if err := o.transition(ctx, record, models.StatusPrecheck, nil); err != nil {
		return nil, err
	}

	checkResult, err := o.runner.Run(ctx, deviceID, record.TargetVersion, automation.ModeCheck)
	if err != nil {
		detail := errorDetail(err)
		if terr := o.transition(ctx, record, models.StatusPrecheckFailed, detail); terr != nil {
			return nil, terr
		}
		return o.recorder.GetAttempt(ctx, record.ID)
	}
	checkDetail, _ := json.Marshal(checkResult)
	if !checkResult.Success {
		if err := o.transition(ctx, record, models.StatusPrecheckFailed, checkDetail); err != nil {
			return nil, err
		}
		return o.recorder.GetAttempt(ctx, record.ID)
	}

	if mode == ModePlanOnly {
		planDetail, _ := json.Marshal(map[string]any{
			"plan_only": true,
			"precheck":  checkResult,
		})
		if err := o.transition(ctx, record, models.StatusSuccess, planDetail); err != nil {
			return nil, err
		}
		return o.recorder.GetAttempt(ctx, record.ID)
	}

	if err := o.transition(ctx, record, models.StatusRunning, checkDetail); err != nil {
		return nil, err
	}

	// Past this point the device may already be changing; the attempt
	// always runs to a terminal result, never cancellation.
	applyResult, err := o.runner.Run(ctx, deviceID, record.TargetVersion, automation.ModeApply)
	if err != nil {
		detail := errorDetail(err)
		if terr := o.transition(ctx, record, models.StatusFailed, detail); terr != nil {
			return nil, terr
		}
		return o.recorder.GetAttempt(ctx, record.ID)
	}

	applyDetail, _ := json.Marshal(applyResult)
	final := models.StatusFailed
	if applyResult.Success {
		final = models.StatusSuccess
	}
	if err := o.transition(ctx, record, final, applyDetail); err != nil {
		return nil, err
	}
	return o.recorder.GetAttempt(ctx, record.ID)
}

// Rollback runs the rollback playbook for a device under the same per-device
// exclusivity as upgrades. It is a distinct operator-invoked operation, never
// triggered automatically by a failed upgrade.
func (o *Orchestrator) Rollback(ctx context.Context, deviceID string) (*models.UpgradeRecord, error) {
	device, err := o.devices.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	if !o.locks.TryAcquire(deviceID) {
		return nil, ErrAttemptInFlight
	}
	defer o.locks.Release(deviceID)

	if err := o.ensureNoOpenAttempt(ctx, deviceID); err != nil {
		return nil, err
	}

	record := &models.UpgradeRecord{
		DeviceID: deviceID,
		Kind:     models.AttemptRollback,
		Verdict: models.Verdict{
			Approve:       true,
			Reason:        "operator-initiated rollback",
			TargetVersion: device.CurrentVersion,
			Confidence:    1,
			Source:        models.VerdictSourceRule,
			EvaluatedAt:   time.Now().UTC(),
		},
		Status:        models.StatusPending,
		TargetVersion: device.CurrentVersion,
	}
	if err := o.recorder.CreateAttempt(ctx, record); err != nil {
		return nil, fmt.Errorf("create rollback attempt: %w", err)
	}

	if err := o.transition(ctx, record, models.StatusRunning, nil); err != nil {
		return nil, err
	}

	result, err := o.runner.Run(ctx, deviceID, "", automation.ModeRollback)
	if err != nil {
		detail := errorDetail(err)
		if terr := o.transition(ctx, record, models.StatusFailed, detail); terr != nil {
			return nil, terr
		}
		return o.recorder.GetAttempt(ctx, record.ID)
	}

	detail, _ := json.Marshal(result)
	final := models.StatusFailed
	if result.Success {
		final = models.StatusSuccess
	}
	if err := o.transition(ctx, record, final, detail); err != nil {
		return nil, err
	}
	return o.recorder.GetAttempt(ctx, record.ID)
}

// History returns the device's recent attempts, newest first.
func (o *Orchestrator) History(ctx context.Context, deviceID string, limit int) ([]models.UpgradeRecord, error) {
	if _, err := o.devices.Get(ctx, deviceID); err != nil {
		return nil, err
	}
	return o.recorder.ListAttempts(ctx, deviceID, limit)
}

// decide runs snapshot, rule evaluation and the safety gate. It never
// fails: telemetry problems degrade to absent metrics and gate problems
// fold into a denial.
func (o *Orchestrator) decide(ctx context.Context, device *models.Device) *Evaluation {
	pol, err := o.resolver.Resolve(ctx, device)
	if err != nil {
		// No silent fallback to defaults when the policy store is
		// unreadable: deny with the resolution failure.
		o.logger.Error("policy resolution failed", zap.String("device_id", device.ID), zap.Error(err))
		return &Evaluation{
			Device: device,
			Verdict: models.Verdict{
				Approve:       false,
				Reason:        fmt.Sprintf("policy resolution failed: %v", err),
				TargetVersion: device.UpgradeTarget(),
				Source:        models.VerdictSourceRule,
				EvaluatedAt:   time.Now().UTC(),
			},
		}
	}

	snap := o.health.Snapshot(ctx, device.ID, o.window)
	rule := o.evaluator.Evaluate(device, pol, snap)
	final := o.gate.Review(ctx, device, pol, snap, rule)

	return &Evaluation{Device: device, Policy: pol, Snapshot: snap, Verdict: final}
}

// transition moves the attempt to the next status and persists it before
// returning, so a crash can leave at most one unaudited step.
func (o *Orchestrator) transition(ctx context.Context, record *models.UpgradeRecord, status models.UpgradeStatus, detail json.RawMessage) error {
	o.logger.Info("attempt transition",
		zap.String("attempt_id", record.ID),
		zap.String("device_id", record.DeviceID),
		zap.String("from", string(record.Status)),
		zap.String("to", string(status)),
	)
	if err := o.recorder.UpdateStatus(ctx, record.ID, status, detail); err != nil {
		return fmt.Errorf("persist transition to %s: %w", status, err)
	}
	record.Status = status
	return nil
}

func (o *Orchestrator) ensureNoOpenAttempt(ctx context.Context, deviceID string) error {
	_, err := o.recorder.OpenAttempt(ctx, deviceID)
	if err == nil {
		return ErrAttemptInFlight
	}
	if errors.Is(err, audit.ErrNotFound) {
		return nil
	}
	return fmt.Errorf("check open attempts: %w", err)
}

func errorDetail(err error) json.RawMessage {
	detail, _ := json.Marshal(map[string]string{"error": err.Error()})
	return detail
}
