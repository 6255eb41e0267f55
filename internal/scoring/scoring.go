// ABOUTME: Pure scoring engine turning findings into an aggregate score and verdict.
// ABOUTME: Sum of severity-base times weight, with an install-hook escalation rule.

package scoring

import "github.com/sigil-dev/sigil/internal/types"

// Verdict thresholds. Each bucket is inclusive of its lower bound.
const (
	mediumThreshold   = 10
	highThreshold     = 25
	criticalThreshold = 50
)

// FindingScore returns the contribution of a single finding:
// severityBase(severity) x the weight stamped on the finding at match time.
func FindingScore(f types.Finding) int {
	return types.SeverityBase(f.Severity) * f.Weight
}

// Score sums the contributions of all findings. The sum is commutative, so
// finding order never affects the result.
func Score(findings []types.Finding) int {
	total := 0
	for _, f := range findings {
		total += FindingScore(f)
	}
	return total
}

// DetermineVerdict maps findings and their aggregate score to a verdict.
//
// Escalation first: any single Critical finding in the install-hooks phase
// forces CRITICAL regardless of the aggregate score. Only then the thresholds:
// CLEAN (no findings), LOW (0-9), MEDIUM (10-24), HIGH (25-49), CRITICAL (>=50).
func DetermineVerdict(findings []types.Finding, score int) types.Verdict {
	if len(findings) == 0 {
		return types.VerdictClean
	}

	for _, f := range findings {
		if f.Phase == types.PhaseInstallHooks && f.Severity == types.SeverityCritical {
			return types.VerdictCritical
		}
	}

	switch {
	case score >= criticalThreshold:
		return types.VerdictCritical
	case score >= highThreshold:
		return types.VerdictHigh
	case score >= mediumThreshold:
		return types.VerdictMedium
	default:
		return types.VerdictLow
	}
}

// Evaluate computes both score and verdict for a finding set.
func Evaluate(findings []types.Finding) (int, types.Verdict) {
	score := Score(findings)
	return score, DetermineVerdict(findings, score)
}
