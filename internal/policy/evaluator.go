package policy

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nwops/upgraded/pkg/models"
)

// Substitutes for metrics the telemetry store could not provide. Absence is
// never "no constraint": a missing CPU reading is evaluated as fully loaded
// and missing memory as fully exhausted, so the verdict leans toward denial.
const (
	absentCPU     = 100.0
	absentMemFree = 0.0
)

// ruleConfidence is the fixed confidence attached to rule-based verdicts.
const ruleConfidence = 0.8

// Evaluator applies policy thresholds to a health snapshot and produces a
// rule-based verdict.
type Evaluator struct {
	window    *WindowChecker
	prechecks *PreCheckGenerator
	logger    *zap.Logger
	now       func() time.Time
}

// NewEvaluator creates an Evaluator. A nil clock uses time.Now.
func NewEvaluator(window *WindowChecker, prechecks *PreCheckGenerator, logger *zap.Logger, now func() time.Time) *Evaluator {
	if now == nil {
		now = time.Now
	}
	return &Evaluator{window: window, prechecks: prechecks, logger: logger, now: now}
}

// Evaluate produces a rule verdict for the device. Approval requires all
// four conditions (CPU, memory, critical errors, maintenance window) to
// hold. The verdict's condition lines name each measured value, its
// threshold and a pass/fail marker so the decision can be reconstructed
// from the audit trail alone.
func (e *Evaluator) Evaluate(device *models.Device, pol models.Policy, snap *models.HealthSnapshot) models.Verdict {
	cpu, cpuAbsent := absentCPU, true
	if snap.CPUAvg != nil {
		cpu, cpuAbsent = *snap.CPUAvg, false
	}
	mem, memAbsent := absentMemFree, true
	if snap.MemFreeMin != nil {
		mem, memAbsent = *snap.MemFreeMin, false
	}
	errs := snap.CriticalErrors

	cpuOK := cpu <= pol.MaxCPUPercent
	memOK := mem >= pol.MinFreeMemPercent
	maxErrors := pol.MaxCriticalErrors
	if pol.BlockIfCriticalErrors {
		maxErrors = 0
	}
	errorsOK := errs <= maxErrors

	windowRequired := pol.RequireMaintenanceWindow
	withinWindow := e.window.Within(device)
	windowOK := withinWindow || !windowRequired

	approve := cpuOK && memOK && errorsOK && windowOK

	conditions := []string{
		fmt.Sprintf("cpu_avg %s (limit %.1f%%): %s", formatMetric(cpu, cpuAbsent, "%"), pol.MaxCPUPercent, mark(cpuOK)),
		fmt.Sprintf("mem_free_min %s (min %.1f%%): %s", formatMetric(mem, memAbsent, "%"), pol.MinFreeMemPercent, mark(memOK)),
		fmt.Sprintf("critical_errors %d (max %d): %s", errs, maxErrors, mark(errorsOK)),
		fmt.Sprintf("maintenance_window required=%t within=%t: %s", windowRequired, withinWindow, mark(windowOK)),
	}

	reason := "conditions failed: " + strings.Join(conditions, "; ")
	if approve {
		reason = "all conditions passed: " + strings.Join(conditions, "; ")
	}

	verdict := models.Verdict{
		Approve:       approve,
		Reason:        reason,
		Conditions:    conditions,
		TargetVersion: device.UpgradeTarget(),
		Confidence:    ruleConfidence,
		Source:        models.VerdictSourceRule,
		RiskScore:     RiskScore(snap),
		EvaluatedAt:   e.now().UTC(),
	}
	if e.prechecks != nil {
		verdict.PreChecks = e.prechecks.Generate(device)
	}

	e.logger.Info("rule verdict",
		zap.String("device_id", device.ID),
		zap.Bool("approve", approve),
		zap.String("policy_source", string(pol.Source)),
		zap.Int("risk_score", verdict.RiskScore),
	)

	return verdict
}

func formatMetric(v float64, absent bool, unit string) string {
	if absent {
		return fmt.Sprintf("absent(%.1f%s)", v, unit)
	}
	return fmt.Sprintf("%.1f%s", v, unit)
}

func mark(ok bool) string {
	if ok {
		return "pass"
	}
	return "FAIL"
}
