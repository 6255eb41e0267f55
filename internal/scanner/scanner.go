// ABOUTME: Applies the rule catalog to a materialized file tree, producing findings.
// ABOUTME: Per-file matching runs in a bounded errgroup; output order is deterministic.

package scanner

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sigil-dev/sigil/internal/catalog"
	"github.com/sigil-dev/sigil/internal/types"
)

const (
	maxSnippetLen    = 200
	largeFileBytes   = 5_000_000
	binarySniffBytes = 8000
	defaultParallel  = 8
)

// Dotfiles that are expected project furniture, not provenance red flags.
var benignDotfiles = map[string]struct{}{
	".gitignore":     {},
	".gitkeep":       {},
	".gitattributes": {},
	".editorconfig":  {},
}

// Scanner applies a catalog to file trees. It holds no per-scan state, so a
// single Scanner is safe for concurrent scans.
type Scanner struct {
	logger   *logrus.Logger
	parallel int
}

// New creates a scanner. parallel bounds the per-file fan-out; values < 1
// fall back to the default.
func New(logger *logrus.Logger, parallel int) *Scanner {
	if parallel < 1 {
		parallel = defaultParallel
	}
	return &Scanner{logger: logger, parallel: parallel}
}

// Scan walks the tree rooted at target and returns every rule match, sorted
// by phase, then file, then line, then rule id. For a fixed catalog version
// and fixed input bytes the result is identical across runs.
//
// A missing or unreadable target is a *types.InputError. Cancellation
// discards all partial findings; no partial result is ever returned.
func (s *Scanner) Scan(ctx context.Context, target string, cat *catalog.Catalog) ([]types.Finding, int, error) {
	logger := s.logger.WithFields(logrus.Fields{
		"component": "scanner",
		"target":    target,
	})

	info, err := os.Stat(target)
	if err != nil {
		return nil, 0, &types.InputError{Target: target, Err: err}
	}
	if !info.IsDir() {
		return nil, 0, &types.InputError{Target: target, Err: os.ErrInvalid}
	}

	files, err := listFiles(target)
	if err != nil {
		return nil, 0, &types.InputError{Target: target, Err: err}
	}

	logger.WithField("file_count", len(files)).Debug("Starting rule pass")

	var (
		mu       sync.Mutex
		findings []types.Finding
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallel)

	for _, rel := range files {
		rel := rel
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fileFindings := s.scanFile(target, rel, cat)
			if len(fileFindings) == 0 {
				return nil
			}
			mu.Lock()
			findings = append(findings, fileFindings...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// All-or-nothing: a cancelled scan yields no findings at all.
		return nil, 0, err
	}

	findings = append(findings, treeFindings(target, files, cat)...)
	sortFindings(findings)

	logger.WithFields(logrus.Fields{
		"files_scanned": len(files),
		"findings":      len(findings),
	}).Debug("Rule pass completed")

	return findings, len(files), nil
}

// listFiles collects relative file paths under root, in sorted order,
// skipping .git internals.
func listFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// scanFile produces all findings for one file: provenance path checks, then
// either a single binary-file finding or full content matching.
func (s *Scanner) scanFile(root, rel string, cat *catalog.Catalog) []types.Finding {
	var findings []types.Finding
	base := filepath.Base(rel)

	findings = append(findings, pathFindings(rel, base, cat)...)

	abs := filepath.Join(root, filepath.FromSlash(rel))
	info, err := os.Stat(abs)
	if err != nil {
		// The file vanished between walk and read. Treat as unscannable
		// content rather than failing the whole pass.
		return findings
	}

	if info.Size() > largeFileBytes {
		if f, ok := structuralFinding(cat, catalog.RuleLargeFile, rel, "oversized file, contents not scanned"); ok {
			findings = append(findings, f)
		}
		return findings
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return findings
	}

	if isBinary(content) {
		if f, ok := structuralFinding(cat, catalog.RuleBinaryFile, rel, "binary file, contents not scanned"); ok {
			findings = append(findings, f)
		}
		return findings
	}

	findings = append(findings, contentFindings(rel, base, string(content), cat)...)
	return findings
}

// pathFindings applies provenance rules that match on the relative path
// itself (hidden files, suspicious names).
func pathFindings(rel, base string, cat *catalog.Catalog) []types.Finding {
	var findings []types.Finding

	if rule, ok := cat.Rule(catalog.RuleHiddenFile); ok {
		if _, benign := benignDotfiles[base]; !benign {
			if re := cat.Regexp(rule.ID); re != nil && re.MatchString(rel) {
				findings = append(findings, newFinding(rule, rel, 0, "hidden file: "+base))
			}
		}
	}

	if rule, ok := cat.Rule(catalog.RuleSuspiciousFilename); ok {
		if re := cat.Regexp(rule.ID); re != nil && re.MatchString(base) {
			findings = append(findings, newFinding(rule, rel, 0, "suspicious filename: "+base))
		}
	}

	return findings
}

// contentFindings runs every applicable text rule line-by-line and every
// applicable manifest rule against the parsed document.
func contentFindings(rel, base, content string, cat *catalog.Catalog) []types.Finding {
	var findings []types.Finding
	var doc interface{}
	var docParsed, docOK bool

	for _, rule := range cat.Rules() {
		if !ruleApplies(rule, base) {
			continue
		}

		switch rule.Matcher {
		case types.MatcherText:
			if rule.Phase == types.PhaseProvenance {
				// Provenance text rules match paths, handled elsewhere.
				continue
			}
			re := cat.Regexp(rule.ID)
			if re == nil {
				continue
			}
			for lineNo, line := range strings.Split(content, "\n") {
				if re.MatchString(line) {
					findings = append(findings, newFinding(rule, rel, lineNo+1, rule.Description+": "+strings.TrimSpace(line)))
				}
			}

		case types.MatcherManifest:
			if !docParsed {
				doc, docOK = parseManifest(base, content)
				docParsed = true
			}
			if !docOK {
				continue
			}
			pred, err := catalog.ParsePredicate(rule.Pattern)
			if err != nil {
				continue // validated at load; cannot happen
			}
			for _, value := range pred.Match(doc) {
				findings = append(findings, newFinding(rule, rel, 0, rule.Description+": "+value))
			}
		}
	}
	return findings
}

// treeFindings covers whole-tree provenance: a package without VCS history.
func treeFindings(root string, files []string, cat *catalog.Catalog) []types.Finding {
	rule, ok := cat.Rule(catalog.RuleNoVCSHistory)
	if !ok {
		return nil
	}
	if _, err := os.Stat(filepath.Join(root, ".git")); err == nil {
		return nil
	}
	looksLikePackage := false
	for _, f := range files {
		if f == "package.json" || f == "setup.py" || f == "pyproject.toml" {
			looksLikePackage = true
			break
		}
	}
	if !looksLikePackage {
		return nil
	}
	return []types.Finding{newFinding(rule, ".", 0, rule.Description)}
}

func structuralFinding(cat *catalog.Catalog, ruleID, rel, snippet string) (types.Finding, bool) {
	rule, ok := cat.Rule(ruleID)
	if !ok {
		// Custom catalogs may drop structural rules; then the check is off.
		return types.Finding{}, false
	}
	return newFinding(rule, rel, 0, snippet), true
}

func newFinding(rule types.Rule, file string, line int, snippet string) types.Finding {
	if len(snippet) > maxSnippetLen {
		snippet = snippet[:maxSnippetLen] + " ..."
	}
	return types.Finding{
		RuleID:   rule.ID,
		Phase:    rule.Phase,
		Severity: rule.Severity,
		File:     file,
		Line:     line,
		Snippet:  snippet,
		Weight:   rule.EffectiveWeight(),
	}
}

func ruleApplies(rule types.Rule, base string) bool {
	if len(rule.FileNames) == 0 {
		return true
	}
	for _, name := range rule.FileNames {
		if name == base {
			return true
		}
	}
	return false
}

// isBinary sniffs for a null byte in the leading window, the same heuristic
// git uses to decide a file is not text.
func isBinary(content []byte) bool {
	window := content
	if len(window) > binarySniffBytes {
		window = window[:binarySniffBytes]
	}
	return bytes.IndexByte(window, 0) >= 0
}

var phaseOrder = func() map[types.Phase]int {
	m := make(map[types.Phase]int, len(types.AllPhases))
	for i, p := range types.AllPhases {
		m[p] = i
	}
	return m
}()

// sortFindings puts findings into the canonical order required for
// reproducible audit records: phase, file, line, rule id.
func sortFindings(findings []types.Finding) {
	sort.Slice(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if phaseOrder[a.Phase] != phaseOrder[b.Phase] {
			return phaseOrder[a.Phase] < phaseOrder[b.Phase]
		}
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.RuleID < b.RuleID
	})
}
