// ABOUTME: Tests for the threat intelligence HTTP client.
// ABOUTME: Uses httptest servers to verify wire behavior and failure handling.

package intel

import (
	"context"
	"encoding/json"
	"errors"
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

func TestPullSendsVersionMarker(t *testing.T) {
	var gotSince string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/signatures", r.URL.Path)
		gotSince = r.URL.Query().Get("since")
		json.NewEncoder(w).Encode(signatureResponse{
			Signatures: []types.Signature{
				{Rule: types.Rule{ID: "NET-099", Phase: types.PhaseNetworkExfil, Severity: types.SeverityHigh, Matcher: types.MatcherText, Pattern: "evil\\.example"}, Version: 7},
			},
			Total: 1,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "", testLogger())
	sigs, err := client.Pull(context.Background(), 5)
	require.NoError(t, err)

	assert.Equal(t, "5", gotSince)
	require.Len(t, sigs, 1)
	assert.Equal(t, "NET-099", sigs[0].ID)
	assert.Equal(t, int64(7), sigs[0].Version)
}

func TestPullNetworkFailure(t *testing.T) {
	server := httptest.NewServer(nil)
	server.Close() // connection refused from here on

	client := NewClient(server.URL, "", testLogger())
	_, err := client.Pull(context.Background(), 0)

	var netErr *types.NetworkFailure
	require.True(t, errors.As(err, &netErr))
}

func TestPushRequiresToken(t *testing.T) {
	client := NewClient("http://unused", "", testLogger())
	err := client.Push(context.Background(), types.ScanMetadata{Target: "pkg"})
	assert.Error(t, err)
}

func TestPushSendsMetadataOnly(t *testing.T) {
	var gotAuth string
	var gotBody types.ScanMetadata
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/scan-metadata", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-token", testLogger())
	err := client.Push(context.Background(), types.ScanMetadata{
		Target:      "npm:left-pad",
		ContentHash: "abc123",
		RuleIDs:     []string{"CODE-001"},
		Verdict:     types.VerdictMedium,
		Score:       15,
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "npm:left-pad", gotBody.Target)
	assert.Equal(t, []string{"CODE-001"}, gotBody.RuleIDs)
}

func TestReportReturnsCreatedRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/report", r.URL.Path)
		var in types.ThreatReport
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		in.ID = "report-42"
		in.Status = types.ReportReceived
		json.NewEncoder(w).Encode(in)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", testLogger())
	created, err := client.Report(context.Background(), types.ThreatReport{
		PackageName: "evil-pkg",
		Ecosystem:   "npm",
		Reason:      "credential harvesting in postinstall",
	})
	require.NoError(t, err)

	assert.Equal(t, "report-42", created.ID)
	assert.Equal(t, types.ReportReceived, created.Status)
}

func TestLookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/threat/deadbeef":
			json.NewEncoder(w).Encode(types.ThreatEntry{
				Hash:        "deadbeef",
				PackageName: "evil-pkg",
				ThreatType:  "credential-stealer",
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "", testLogger())

	t.Run("known hash", func(t *testing.T) {
		entry, err := client.Lookup(context.Background(), "deadbeef")
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, "evil-pkg", entry.PackageName)
	})

	t.Run("unknown hash is not an error", func(t *testing.T) {
		entry, err := client.Lookup(context.Background(), "cafebabe")
		require.NoError(t, err)
		assert.Nil(t, entry)
	})
}
