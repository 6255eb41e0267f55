// ABOUTME: Tests for Prometheus metrics exposition.
// ABOUTME: Scrapes the handler and checks the rendered series.

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/sigil/internal/types"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

type fakeCatalog struct {
	version int64
	size    int
}

func (f fakeCatalog) Version() int64 { return f.version }
func (f fakeCatalog) Len() int       { return f.size }

type fakeQuarantine map[types.QuarantineStatus]int

func (f fakeQuarantine) CountByStatus() map[types.QuarantineStatus]int { return f }

func scrape(t *testing.T, h *Handler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Result().Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetricsExposition(t *testing.T) {
	recorder := NewRecorder()
	recorder.RecordScan(&types.ScanResult{
		Verdict: types.VerdictCritical,
		Findings: []types.Finding{
			{RuleID: "INSTALL-001", Phase: types.PhaseInstallHooks, Severity: types.SeverityCritical},
			{RuleID: "NET-001", Phase: types.PhaseNetworkExfil, Severity: types.SeverityHigh},
		},
	})
	recorder.RecordScan(&types.ScanResult{Verdict: types.VerdictClean})

	h := NewHandler(recorder, fakeCatalog{version: 42, size: 60},
		fakeQuarantine{types.QuarantinePending: 3, types.QuarantineRejected: 1}, testLogger())

	body := scrape(t, h)
	assert.Contains(t, body, `sigil_scans_total{verdict="CRITICAL"} 1`)
	assert.Contains(t, body, `sigil_scans_total{verdict="CLEAN"} 1`)
	assert.Contains(t, body, `sigil_findings_by_phase_total{phase="install_hooks"} 1`)
	assert.Contains(t, body, `sigil_findings_by_severity_total{severity="HIGH"} 1`)
	assert.Contains(t, body, `sigil_quarantine_entries{status="pending"} 3`)
	assert.Contains(t, body, `sigil_catalog_info{info_type="version"} 42`)
	assert.Contains(t, body, `sigil_catalog_info{info_type="rule_count"} 60`)
}

func TestMetricsWithoutProviders(t *testing.T) {
	h := NewHandler(NewRecorder(), nil, nil, testLogger())
	body := scrape(t, h)
	assert.NotContains(t, body, "sigil_catalog_info")
}

func TestRecorderAccumulates(t *testing.T) {
	recorder := NewRecorder()
	for i := 0; i < 3; i++ {
		recorder.RecordScan(&types.ScanResult{Verdict: types.VerdictLow})
	}

	h := NewHandler(recorder, nil, nil, testLogger())
	assert.Contains(t, scrape(t, h), `sigil_scans_total{verdict="LOW"} 3`)
}
