// ABOUTME: Common types shared across the Sigil scanning core.
// ABOUTME: Defines phases, severities, verdicts, rules, findings, and scan results.

package types

import "time"

// Phase is one of the eight detection categories a rule belongs to.
type Phase string

const (
	PhaseInstallHooks    Phase = "install_hooks"
	PhaseCodePatterns    Phase = "code_patterns"
	PhaseNetworkExfil    Phase = "network_exfil"
	PhaseCredentials     Phase = "credentials"
	PhaseObfuscation     Phase = "obfuscation"
	PhaseProvenance      Phase = "provenance"
	PhasePromptInjection Phase = "prompt_injection"
	PhaseSkillSecurity   Phase = "skill_security"
)

// AllPhases lists every phase in catalog order.
var AllPhases = []Phase{
	PhaseInstallHooks,
	PhaseCodePatterns,
	PhaseNetworkExfil,
	PhaseCredentials,
	PhaseObfuscation,
	PhaseProvenance,
	PhasePromptInjection,
	PhaseSkillSecurity,
}

// DefaultPhaseWeight returns the documented default weight multiplier for a
// phase. Provenance has no default: every provenance rule must declare its
// own weight (1-3x), and the catalog rejects ones that do not.
func DefaultPhaseWeight(p Phase) (int, bool) {
	switch p {
	case PhaseInstallHooks:
		return 10, true
	case PhaseCodePatterns:
		return 5, true
	case PhaseNetworkExfil:
		return 3, true
	case PhaseCredentials:
		return 2, true
	case PhaseObfuscation:
		return 5, true
	case PhasePromptInjection:
		return 10, true
	case PhaseSkillSecurity:
		return 5, true
	case PhaseProvenance:
		return 0, false
	default:
		return 0, false
	}
}

// Severity of an individual finding or rule.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// SeverityBase returns the base score contribution for a severity.
func SeverityBase(s Severity) int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 5
	default:
		return 0
	}
}

// ValidSeverity reports whether s is one of the four known severities.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ValidPhase reports whether p is one of the eight known phases.
func ValidPhase(p Phase) bool {
	for _, known := range AllPhases {
		if p == known {
			return true
		}
	}
	return false
}

// Verdict is the human-facing risk label derived from the aggregate score.
type Verdict string

const (
	VerdictClean    Verdict = "CLEAN"
	VerdictLow      Verdict = "LOW"
	VerdictMedium   Verdict = "MEDIUM"
	VerdictHigh     Verdict = "HIGH"
	VerdictCritical Verdict = "CRITICAL"
)

// MatcherKind selects how a rule's pattern is applied.
type MatcherKind string

const (
	// MatcherText applies the pattern as a regex against each line of a
	// readable file.
	MatcherText MatcherKind = "text"
	// MatcherManifest applies a structured predicate against a parsed
	// manifest file (package.json, skill manifests, and friends).
	MatcherManifest MatcherKind = "manifest"
)

// Rule is a single detection rule within a catalog version. Rules are unique
// by ID; the ID is the merge key when cloud signatures are folded in.
type Rule struct {
	ID          string      `json:"id" yaml:"id"`
	Phase       Phase       `json:"phase" yaml:"phase"`
	Severity    Severity    `json:"severity" yaml:"severity"`
	Matcher     MatcherKind `json:"matcher" yaml:"matcher"`
	Pattern     string      `json:"pattern" yaml:"pattern"`
	Description string      `json:"description" yaml:"description"`

	// Weight overrides the phase default when > 0. Required for provenance
	// rules, which have no phase default.
	Weight int `json:"weight,omitempty" yaml:"weight,omitempty"`

	// FileNames restricts a rule to specific basenames (e.g. setup.py,
	// package.json). Empty means the rule applies to every scanned file.
	FileNames []string `json:"file_names,omitempty" yaml:"file_names,omitempty"`
}

// EffectiveWeight returns the rule's own weight if set, else its phase's
// default. Catalog validation guarantees one of the two exists.
func (r Rule) EffectiveWeight() int {
	if r.Weight > 0 {
		return r.Weight
	}
	w, _ := DefaultPhaseWeight(r.Phase)
	return w
}

// Finding is a single rule match against scanned content. Multiple matches of
// the same rule in the same file yield multiple findings.
type Finding struct {
	RuleID   string   `json:"rule"`
	Phase    Phase    `json:"phase"`
	Severity Severity `json:"severity"`
	File     string   `json:"file"`
	Line     int      `json:"line,omitempty"` // zero when not line-addressable
	Snippet  string   `json:"snippet"`
	Weight   int      `json:"weight"`
}

// ScanResult is the immutable outcome of scanning one file tree.
type ScanResult struct {
	Target       string    `json:"target"`
	ContentHash  string    `json:"content_hash"`
	FilesScanned int       `json:"files_scanned"`
	DurationMs   int64     `json:"duration_ms"`
	Score        int       `json:"score"`
	Verdict      Verdict   `json:"verdict"`
	Findings     []Finding `json:"findings"`

	// Publisher is advisory metadata, independent of the artifact's own
	// findings. Nil when the artifact has no known author.
	Publisher *PublisherReputation `json:"publisher,omitempty"`
}

// Signature is a rule plus a monotonically increasing version marker, as
// exchanged with the threat intelligence service. A superseding signature
// carries a higher version; signatures are never mutated in place.
type Signature struct {
	Rule    `yaml:",inline"`
	Version int64 `json:"version" yaml:"version"`

	// ReportID links a community-minted signature back to the confirmed
	// threat report it was derived from. Empty for shipped defaults.
	ReportID string `json:"report_id,omitempty" yaml:"report_id,omitempty"`
}

// QuarantineStatus is the admission state of a quarantined artifact.
// Pending is the only non-terminal state.
type QuarantineStatus string

const (
	QuarantinePending  QuarantineStatus = "pending"
	QuarantineApproved QuarantineStatus = "approved"
	QuarantineRejected QuarantineStatus = "rejected"
)

// QuarantineEntry tracks one artifact awaiting an admit decision. Entries are
// created on admission and mutated only through approve/reject; rejected
// entries keep a tombstone record after the artifact itself is deleted.
type QuarantineEntry struct {
	ID            string           `json:"id"`
	Source        string           `json:"source"`
	SourceType    string           `json:"source_type"`
	Status        QuarantineStatus `json:"status"`
	ScanResultRef string           `json:"scan_result_ref"`
	ArtifactPath  string           `json:"artifact_path,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	DecidedAt     *time.Time       `json:"decided_at,omitempty"`
}

// ReportStatus tracks a community threat report through review.
// Transitions are forward-only: received -> under_review -> {confirmed, rejected}.
type ReportStatus string

const (
	ReportReceived    ReportStatus = "received"
	ReportUnderReview ReportStatus = "under_review"
	ReportConfirmed   ReportStatus = "confirmed"
	ReportRejected    ReportStatus = "rejected"
)

// ThreatReport is a community-submitted suspicion about a package.
type ThreatReport struct {
	ID          string       `json:"id"`
	PackageName string       `json:"package_name"`
	Ecosystem   string       `json:"ecosystem"`
	Reason      string       `json:"reason"`
	Evidence    string       `json:"evidence"`
	Status      ReportStatus `json:"status"`
	ReviewerID  string       `json:"reviewer_id,omitempty"`
	ReviewNotes string       `json:"review_notes,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ThreatEntry is a confirmed-malicious record returned by hash lookup.
type ThreatEntry struct {
	Hash        string   `json:"hash"`
	PackageName string   `json:"package_name"`
	ThreatType  string   `json:"threat_type"`
	Description string   `json:"description"`
	References  []string `json:"references,omitempty"`
}

// PublisherReputation is an aggregate trust profile for a content author,
// recomputed incrementally as scan results for their artifacts are observed.
type PublisherReputation struct {
	AuthorID      string  `json:"author_id"`
	TotalPackages int     `json:"total_packages"`
	AvgRiskScore  float64 `json:"avg_risk_score"`
	HighRiskCount int     `json:"high_risk_count"`
	TrustScore    float64 `json:"trust_score"`

	// Warning is set when the author's trust score is low enough that even
	// clean artifacts should carry a caution flag.
	Warning bool `json:"warning,omitempty"`
}

// ScanMetadata is what gets pushed to the community service: triggered rule
// IDs, verdict, and score. Raw source content never leaves the machine.
type ScanMetadata struct {
	Target      string   `json:"target"`
	ContentHash string   `json:"content_hash"`
	RuleIDs     []string `json:"rule_ids"`
	Verdict     Verdict  `json:"verdict"`
	Score       int      `json:"score"`
}
