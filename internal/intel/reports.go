// ABOUTME: Review pipeline advancing community threat reports to a verdict.
// ABOUTME: Confirmed reports are the only source of community-minted signatures.

package intel

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sigil-dev/sigil/internal/types"
)

// ReviewPipeline holds threat reports as they move received -> under_review
// -> {confirmed, rejected}. Transitions are forward-only, and leaving
// under_review requires a reviewer identity. Authorization of that reviewer
// is the caller's problem; the pipeline only records who decided.
type ReviewPipeline struct {
	logger *logrus.Logger

	mu          sync.Mutex
	reports     map[string]*types.ThreatReport
	nextID      int
	nextVersion int64
	now         func() time.Time
}

// NewReviewPipeline creates an empty pipeline. nextVersion seeds the version
// counter for minted signatures; pass the catalog's current version so new
// signatures always supersede.
func NewReviewPipeline(nextVersion int64, logger *logrus.Logger) *ReviewPipeline {
	return &ReviewPipeline{
		logger:      logger,
		reports:     make(map[string]*types.ThreatReport),
		nextVersion: nextVersion + 1,
		now:         time.Now,
	}
}

// Submit records a new report in the received state.
func (p *ReviewPipeline) Submit(packageName, ecosystem, reason, evidence string) *types.ThreatReport {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	report := &types.ThreatReport{
		ID:          fmt.Sprintf("report-%d", p.nextID),
		PackageName: packageName,
		Ecosystem:   ecosystem,
		Reason:      reason,
		Evidence:    evidence,
		Status:      types.ReportReceived,
		CreatedAt:   p.now().UTC(),
	}
	p.reports[report.ID] = report

	p.logger.WithFields(logrus.Fields{
		"component": "intel",
		"report_id": report.ID,
		"package":   packageName,
		"ecosystem": ecosystem,
	}).Info("Threat report received")

	copied := *report
	return &copied
}

// BeginReview moves a received report to under_review.
func (p *ReviewPipeline) BeginReview(id string) (*types.ThreatReport, error) {
	return p.transition(id, types.ReportReceived, types.ReportUnderReview, "", "")
}

// Confirm decides a report malicious. reviewerID is required.
func (p *ReviewPipeline) Confirm(id, reviewerID, notes string) (*types.ThreatReport, error) {
	if reviewerID == "" {
		return nil, fmt.Errorf("confirming report %s requires a reviewer identity", id)
	}
	return p.transition(id, types.ReportUnderReview, types.ReportConfirmed, reviewerID, notes)
}

// RejectReport decides a report benign or unsubstantiated. reviewerID is
// required.
func (p *ReviewPipeline) RejectReport(id, reviewerID, notes string) (*types.ThreatReport, error) {
	if reviewerID == "" {
		return nil, fmt.Errorf("rejecting report %s requires a reviewer identity", id)
	}
	return p.transition(id, types.ReportUnderReview, types.ReportRejected, reviewerID, notes)
}

// Get returns a copy of the report, if it exists.
func (p *ReviewPipeline) Get(id string) (*types.ThreatReport, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	report, ok := p.reports[id]
	if !ok {
		return nil, false
	}
	copied := *report
	return &copied, true
}

// MintSignature turns a confirmed report into a deployable signature. The
// rule is authored by the reviewer; the pipeline stamps the version and the
// report id so the signature's provenance stays auditable. Any non-confirmed
// report is refused.
func (p *ReviewPipeline) MintSignature(reportID string, rule types.Rule) (types.Signature, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	report, ok := p.reports[reportID]
	if !ok {
		return types.Signature{}, fmt.Errorf("unknown report %s", reportID)
	}
	if report.Status != types.ReportConfirmed {
		return types.Signature{}, fmt.Errorf("report %s is %s, only confirmed reports mint signatures: %w",
			reportID, report.Status, types.ErrInvalidTransition)
	}

	sig := types.Signature{
		Rule:     rule,
		Version:  p.nextVersion,
		ReportID: reportID,
	}
	p.nextVersion++

	p.logger.WithFields(logrus.Fields{
		"component": "intel",
		"report_id": reportID,
		"rule_id":   rule.ID,
		"version":   sig.Version,
	}).Info("Signature minted from confirmed report")
	return sig, nil
}

func (p *ReviewPipeline) transition(id string, from, to types.ReportStatus, reviewerID, notes string) (*types.ThreatReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	report, ok := p.reports[id]
	if !ok {
		return nil, fmt.Errorf("unknown report %s", id)
	}
	if report.Status != from {
		return nil, fmt.Errorf("report %s is %s, cannot move to %s: %w",
			id, report.Status, to, types.ErrInvalidTransition)
	}

	report.Status = to
	if reviewerID != "" {
		report.ReviewerID = reviewerID
	}
	if notes != "" {
		report.ReviewNotes = notes
	}

	p.logger.WithFields(logrus.Fields{
		"component": "intel",
		"report_id": id,
		"status":    string(to),
	}).Info("Threat report transitioned")

	copied := *report
	return &copied, nil
}
