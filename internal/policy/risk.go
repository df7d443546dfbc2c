package policy

import "github.com/nwops/upgraded/pkg/models"

// RiskScore computes an advisory 0-100 risk score from a health snapshot
// (higher is riskier). The score does not gate approval; it is recorded in
// the audit payload and surfaced to operators.
func RiskScore(snap *models.HealthSnapshot) int {
	score := 0

	// Unlike rule evaluation, absent metrics contribute no risk here: the
	// conservative substitution would max the score and drown the signal.
	if snap.CPUAvg != nil {
		switch cpu := *snap.CPUAvg; {
		case cpu > 85:
			score += 40
		case cpu > 75:
			score += 25
		case cpu > 60:
			score += 10
		}
	}

	if snap.MemFreeMin != nil {
		switch mem := *snap.MemFreeMin; {
		case mem < 20:
			score += 35
		case mem < 30:
			score += 20
		case mem < 40:
			score += 10
		}
	}

	switch errs := snap.CriticalErrors; {
	case errs > 5:
		score += 25
	case errs > 2:
		score += 15
	case errs > 0:
		score += 10
	}

	if score > 100 {
		score = 100
	}
	return score
}
