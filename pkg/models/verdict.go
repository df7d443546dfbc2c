package models

import "time"

// VerdictSource identifies which layer produced a verdict.
type VerdictSource string

const (
	VerdictSourceRule VerdictSource = "rule"
	VerdictSourceGate VerdictSource = "gate"
)

// Verdict is an approve/deny outcome with its rationale. Verdicts are
// immutable; a new evaluation produces a new Verdict.
//
// Conditions holds one line per evaluated condition, each naming the measured
// value, the threshold, and a pass/fail marker. Audit consumers reconstruct
// the decision from these lines without re-querying telemetry.
type Verdict struct {
	Approve       bool          `json:"approve"`
	Reason        string        `json:"reason"`
	Conditions    []string      `json:"conditions,omitempty"`
	TargetVersion string        `json:"target_version,omitempty"`
	Confidence    float64       `json:"confidence"`
	Source        VerdictSource `json:"source"`
	RiskScore     int           `json:"risk_score"`
	PreChecks     []string      `json:"pre_checks,omitempty"`
	EvaluatedAt   time.Time     `json:"evaluated_at"`
}
