// ABOUTME: Tests for the threat report review pipeline.
// ABOUTME: Covers forward-only transitions, reviewer identity, and signature minting.

package intel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/sigil/internal/types"
)

func submitTestReport(t *testing.T, p *ReviewPipeline) *types.ThreatReport {
	t.Helper()
	return p.Submit("evil-pkg", "npm", "obfuscated credential exfiltration", "base64 blob posting to paste site")
}

func TestReportLifecycle(t *testing.T) {
	p := NewReviewPipeline(10, testLogger())
	report := submitTestReport(t, p)
	assert.Equal(t, types.ReportReceived, report.Status)

	report, err := p.BeginReview(report.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ReportUnderReview, report.Status)

	report, err = p.Confirm(report.ID, "reviewer-1", "verified against sandbox capture")
	require.NoError(t, err)
	assert.Equal(t, types.ReportConfirmed, report.Status)
	assert.Equal(t, "reviewer-1", report.ReviewerID)
}

func TestReportForwardOnly(t *testing.T) {
	p := NewReviewPipeline(0, testLogger())

	t.Run("cannot confirm before review", func(t *testing.T) {
		report := submitTestReport(t, p)
		_, err := p.Confirm(report.ID, "reviewer-1", "")
		assert.ErrorIs(t, err, types.ErrInvalidTransition)
	})

	t.Run("cannot re-review a decided report", func(t *testing.T) {
		report := submitTestReport(t, p)
		_, err := p.BeginReview(report.ID)
		require.NoError(t, err)
		_, err = p.RejectReport(report.ID, "reviewer-1", "false positive")
		require.NoError(t, err)

		_, err = p.BeginReview(report.ID)
		assert.ErrorIs(t, err, types.ErrInvalidTransition)
		_, err = p.Confirm(report.ID, "reviewer-2", "")
		assert.ErrorIs(t, err, types.ErrInvalidTransition)
	})
}

func TestLeavingReviewRequiresReviewer(t *testing.T) {
	p := NewReviewPipeline(0, testLogger())
	report := submitTestReport(t, p)
	_, err := p.BeginReview(report.ID)
	require.NoError(t, err)

	_, err = p.Confirm(report.ID, "", "no reviewer")
	assert.Error(t, err)
	_, err = p.RejectReport(report.ID, "", "no reviewer")
	assert.Error(t, err)

	got, ok := p.Get(report.ID)
	require.True(t, ok)
	assert.Equal(t, types.ReportUnderReview, got.Status, "a refused decision changes nothing")
}

func TestMintSignatureRequiresConfirmation(t *testing.T) {
	p := NewReviewPipeline(100, testLogger())
	rule := types.Rule{
		ID:       "NET-200",
		Phase:    types.PhaseNetworkExfil,
		Severity: types.SeverityCritical,
		Matcher:  types.MatcherText,
		Pattern:  "paste\\.example\\.com",
	}

	report := submitTestReport(t, p)
	_, err := p.MintSignature(report.ID, rule)
	assert.ErrorIs(t, err, types.ErrInvalidTransition, "received report does not mint")

	_, err = p.BeginReview(report.ID)
	require.NoError(t, err)
	_, err = p.MintSignature(report.ID, rule)
	assert.ErrorIs(t, err, types.ErrInvalidTransition, "under-review report does not mint")

	_, err = p.Confirm(report.ID, "reviewer-1", "")
	require.NoError(t, err)

	sig, err := p.MintSignature(report.ID, rule)
	require.NoError(t, err)
	assert.Equal(t, report.ID, sig.ReportID, "minted signature traces back to its report")
	assert.Greater(t, sig.Version, int64(100), "minted signature supersedes the seed version")

	// Versions are unique across mints.
	sig2, err := p.MintSignature(report.ID, rule)
	require.NoError(t, err)
	assert.Greater(t, sig2.Version, sig.Version)
}

func TestMintUnknownReport(t *testing.T) {
	p := NewReviewPipeline(0, testLogger())
	_, err := p.MintSignature("report-999", types.Rule{ID: "X-1"})
	assert.Error(t, err)
}
