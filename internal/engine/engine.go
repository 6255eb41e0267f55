// ABOUTME: Orchestrates scanning, scoring, memoization, and signature refresh.
// ABOUTME: Concurrent identical scans collapse onto one rule pass via singleflight.

package engine

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/sigil-dev/sigil/internal/cache"
	"github.com/sigil-dev/sigil/internal/catalog"
	"github.com/sigil-dev/sigil/internal/reputation"
	"github.com/sigil-dev/sigil/internal/scanner"
	"github.com/sigil-dev/sigil/internal/scoring"
	"github.com/sigil-dev/sigil/internal/types"
)

// SignatureSource supplies threat signatures for catalog refresh. Satisfied
// by *intel.SignatureCache; faked in tests.
type SignatureSource interface {
	Signatures(ctx context.Context) ([]types.Signature, error)
}

// MetadataSink receives scan metadata for community aggregation. Satisfied by
// an authenticated *intel.Client.
type MetadataSink interface {
	Push(ctx context.Context, meta types.ScanMetadata) error
}

// Config holds engine tuning knobs.
type Config struct {
	// RefreshInterval is how often the background loop merges new
	// signatures into the catalog. Zero disables the loop.
	RefreshInterval time.Duration

	// ResultTTL bounds how long a memoized scan result stays valid.
	ResultTTL time.Duration

	// Parallel bounds the scanner's per-file fan-out.
	Parallel int

	// PushMetadata enables best-effort metadata submission after scans.
	PushMetadata bool
}

// ScanRequest identifies one artifact to scan.
type ScanRequest struct {
	// Path is the materialized file tree on local disk.
	Path string

	// Target is the artifact's logical identity, e.g. "npm:left-pad".
	Target string

	// AuthorID attributes the artifact to a publisher. Empty means the
	// result carries no reputation metadata.
	AuthorID string
}

// Engine is the scanning orchestrator. It owns the active catalog, swaps it
// on signature refresh, and memoizes results by content hash.
type Engine struct {
	scanner    *scanner.Scanner
	results    *cache.ResultCache
	reputation *reputation.Tracker
	signatures SignatureSource
	sink       MetadataSink
	config     Config
	logger     *logrus.Logger

	group singleflight.Group

	mu  sync.RWMutex
	cat *catalog.Catalog
}

// New creates an engine over an initial catalog. signatures and sink may be
// nil; the engine then runs fully offline.
func New(cat *catalog.Catalog, signatures SignatureSource, sink MetadataSink, tracker *reputation.Tracker, config Config, logger *logrus.Logger) *Engine {
	if config.ResultTTL <= 0 {
		config.ResultTTL = time.Hour
	}
	return &Engine{
		scanner:    scanner.New(logger, config.Parallel),
		results:    cache.NewResultCache(config.ResultTTL, logger),
		reputation: tracker,
		signatures: signatures,
		sink:       sink,
		config:     config,
		logger:     logger,
		cat:        cat,
	}
}

// Catalog returns the active catalog snapshot.
func (e *Engine) Catalog() *catalog.Catalog {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cat
}

// Scan runs the full pipeline for one artifact: hash, memoize, rule pass,
// score, attribute. Two concurrent requests for byte-identical content share
// one rule pass; the second caller reuses the first's result.
func (e *Engine) Scan(ctx context.Context, req ScanRequest) (*types.ScanResult, error) {
	logger := e.logger.WithFields(logrus.Fields{
		"component": "engine",
		"target":    req.Target,
	})

	contentHash, err := scanner.HashTree(req.Path)
	if err != nil {
		return nil, err
	}

	if cached := e.results.Get(contentHash); cached != nil {
		logger.WithField("content_hash", contentHash).Debug("Serving memoized scan result")
		return e.attributed(cached, req.AuthorID), nil
	}

	v, err, shared := e.group.Do(contentHash, func() (interface{}, error) {
		return e.scanOnce(ctx, req, contentHash)
	})
	if err != nil {
		return nil, err
	}
	result := v.(*types.ScanResult)
	if shared {
		logger.WithField("content_hash", contentHash).Debug("Shared in-flight scan result")
	}

	return e.attributed(result, req.AuthorID), nil
}

func (e *Engine) scanOnce(ctx context.Context, req ScanRequest, contentHash string) (*types.ScanResult, error) {
	cat := e.Catalog()
	start := time.Now()

	findings, filesScanned, err := e.scanner.Scan(ctx, req.Path, cat)
	if err != nil {
		return nil, err
	}

	score, verdict := scoring.Evaluate(findings)
	result := &types.ScanResult{
		Target:       req.Target,
		ContentHash:  contentHash,
		FilesScanned: filesScanned,
		DurationMs:   time.Since(start).Milliseconds(),
		Score:        score,
		Verdict:      verdict,
		Findings:     findings,
	}
	e.results.Set(contentHash, result)

	e.logger.WithFields(logrus.Fields{
		"component":     "engine",
		"target":        req.Target,
		"files_scanned": filesScanned,
		"findings":      len(findings),
		"score":         score,
		"verdict":       string(verdict),
	}).Info("Scan completed")

	if e.config.PushMetadata && e.sink != nil {
		go e.pushMetadata(result)
	}
	return result, nil
}

// attributed returns a copy of result carrying the author's updated
// reputation. The memoized result itself stays attribution-free, since the
// same bytes may arrive from different publishers.
func (e *Engine) attributed(result *types.ScanResult, authorID string) *types.ScanResult {
	copied := *result
	if authorID != "" && e.reputation != nil {
		copied.Publisher = e.reputation.Observe(authorID, result.Score)
	}
	return &copied
}

// pushMetadata submits rule ids, verdict, and score upstream. Best-effort:
// failure is logged and forgotten.
func (e *Engine) pushMetadata(result *types.ScanResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ruleIDs := make([]string, 0, len(result.Findings))
	seen := make(map[string]struct{})
	for _, f := range result.Findings {
		if _, ok := seen[f.RuleID]; ok {
			continue
		}
		seen[f.RuleID] = struct{}{}
		ruleIDs = append(ruleIDs, f.RuleID)
	}

	err := e.sink.Push(ctx, types.ScanMetadata{
		Target:      result.Target,
		ContentHash: result.ContentHash,
		RuleIDs:     ruleIDs,
		Verdict:     result.Verdict,
		Score:       result.Score,
	})
	if err != nil {
		e.logger.WithError(err).Debug("Metadata push failed")
	}
}

// Start runs the background signature refresh loop until ctx is cancelled.
// Refresh failures never block or fail scans; the current catalog keeps
// serving.
func (e *Engine) Start(ctx context.Context) {
	logger := e.logger.WithField("component", "engine")

	if e.signatures == nil || e.config.RefreshInterval <= 0 {
		logger.Info("Signature refresh disabled")
		return
	}

	e.refreshCatalog(ctx)

	ticker := time.NewTicker(e.config.RefreshInterval)
	defer ticker.Stop()

	logger.WithField("interval", e.config.RefreshInterval).Info("Starting signature refresh loop")
	for {
		select {
		case <-ctx.Done():
			logger.Info("Signature refresh loop stopping")
			return
		case <-ticker.C:
			e.refreshCatalog(ctx)
		}
	}
}

// RefreshCatalog merges the latest signatures into the active catalog. Safe
// to call concurrently with scans: in-flight scans keep their snapshot.
func (e *Engine) RefreshCatalog(ctx context.Context) error {
	return e.refreshCatalog(ctx)
}

func (e *Engine) refreshCatalog(ctx context.Context) error {
	logger := e.logger.WithField("operation", "refresh_catalog")

	sigs, err := e.signatures.Signatures(ctx)
	if err != nil {
		logger.WithError(err).Error("Signature fetch failed")
		return err
	}
	if len(sigs) == 0 {
		return nil
	}

	current := e.Catalog()
	merged, err := current.Merge(sigs)
	if err != nil {
		logger.WithError(err).Error("Signature merge failed")
		return err
	}
	if merged.Version() == current.Version() {
		return nil
	}

	e.mu.Lock()
	e.cat = merged
	e.mu.Unlock()
	e.results.Clear()

	logger.WithFields(logrus.Fields{
		"catalog_version": merged.Version(),
		"rule_count":      merged.Len(),
	}).Info("Catalog updated from signature refresh")
	return nil
}
