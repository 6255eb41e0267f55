// ABOUTME: Immutable, versioned rule catalog with load-time validation.
// ABOUTME: Merges cloud signatures by rule id with last-writer-by-version semantics.

package catalog

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sigil-dev/sigil/internal/types"
)

// Catalog is an immutable-per-version table of detection rules. Merging
// signatures produces a new Catalog; an existing one is never mutated, so a
// scan holds a consistent rule set for its whole run.
type Catalog struct {
	rules    map[string]types.Rule
	compiled map[string]*regexp.Regexp
	// sigVersions records the signature version each rule arrived with.
	// Shipped defaults and locally loaded rules are version 0.
	sigVersions map[string]int64
	version     int64
}

// New validates rules and builds a catalog. Any malformed rule is a
// *types.RuleError; a bad rule must fail here, never mid-scan.
func New(rules []types.Rule) (*Catalog, error) {
	c := &Catalog{
		rules:       make(map[string]types.Rule, len(rules)),
		compiled:    make(map[string]*regexp.Regexp, len(rules)),
		sigVersions: make(map[string]int64, len(rules)),
	}
	for _, r := range rules {
		if err := c.add(r, 0); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) add(r types.Rule, version int64) error {
	if strings.TrimSpace(r.ID) == "" {
		return &types.RuleError{RuleID: r.ID, Reason: "missing id"}
	}
	if _, dup := c.rules[r.ID]; dup {
		return &types.RuleError{RuleID: r.ID, Reason: "duplicate id"}
	}
	if !types.ValidPhase(r.Phase) {
		return &types.RuleError{RuleID: r.ID, Reason: fmt.Sprintf("unknown phase %q", r.Phase)}
	}
	if !types.ValidSeverity(r.Severity) {
		return &types.RuleError{RuleID: r.ID, Reason: fmt.Sprintf("unknown severity %q", r.Severity)}
	}
	if r.Weight < 0 {
		return &types.RuleError{RuleID: r.ID, Reason: "negative weight"}
	}
	// Provenance rules have a documented weight range (1-3x) but no single
	// default; an unspecified weight is a load error, not a guess.
	if r.Phase == types.PhaseProvenance {
		if r.Weight == 0 {
			return &types.RuleError{RuleID: r.ID, Reason: "provenance rule requires an explicit weight"}
		}
		if r.Weight > 3 {
			return &types.RuleError{RuleID: r.ID, Reason: "provenance weight must be 1-3"}
		}
	}
	if strings.TrimSpace(r.Pattern) == "" {
		return &types.RuleError{RuleID: r.ID, Reason: "missing pattern"}
	}

	switch r.Matcher {
	case types.MatcherText:
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return &types.RuleError{RuleID: r.ID, Reason: fmt.Sprintf("bad regex: %v", err)}
		}
		c.compiled[r.ID] = re
	case types.MatcherManifest:
		pred, err := ParsePredicate(r.Pattern)
		if err != nil {
			return &types.RuleError{RuleID: r.ID, Reason: fmt.Sprintf("bad manifest predicate: %v", err)}
		}
		if pred.ValuePattern != nil {
			c.compiled[r.ID] = pred.ValuePattern
		}
	default:
		return &types.RuleError{RuleID: r.ID, Reason: fmt.Sprintf("unknown matcher kind %q", r.Matcher)}
	}

	c.rules[r.ID] = r
	c.sigVersions[r.ID] = version
	if version > c.version {
		c.version = version
	}
	return nil
}

// Version is the highest signature version folded into this catalog. It is
// the local marker sent as ?since= on the next signature pull.
func (c *Catalog) Version() int64 { return c.version }

// Len returns the number of rules in the catalog.
func (c *Catalog) Len() int { return len(c.rules) }

// Rule returns the rule with the given id, if present.
func (c *Catalog) Rule(id string) (types.Rule, bool) {
	r, ok := c.rules[id]
	return r, ok
}

// Rules returns all rules sorted by id, for deterministic iteration.
func (c *Catalog) Rules() []types.Rule {
	out := make([]types.Rule, 0, len(c.rules))
	for _, r := range c.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Regexp returns the compiled pattern for a text rule, or the compiled value
// pattern for a manifest rule that carries one.
func (c *Catalog) Regexp(id string) *regexp.Regexp {
	return c.compiled[id]
}

// Merge folds signatures into the catalog, producing a new catalog. Rules
// merge by id: an incoming signature replaces an existing rule only when its
// version is strictly higher than the one recorded for that id, so merging
// the same bundle twice is a no-op (idempotent) and out-of-order delivery
// cannot roll a rule back.
func (c *Catalog) Merge(sigs []types.Signature) (*Catalog, error) {
	next := &Catalog{
		rules:       make(map[string]types.Rule, len(c.rules)+len(sigs)),
		compiled:    make(map[string]*regexp.Regexp, len(c.compiled)+len(sigs)),
		sigVersions: make(map[string]int64, len(c.sigVersions)+len(sigs)),
		version:     c.version,
	}
	for id, r := range c.rules {
		next.rules[id] = r
		next.sigVersions[id] = c.sigVersions[id]
		if re, ok := c.compiled[id]; ok {
			next.compiled[id] = re
		}
	}

	for _, sig := range sigs {
		existing, known := next.sigVersions[sig.ID]
		if known && sig.Version <= existing {
			continue
		}
		// Version-bumped replacement: drop the superseded rule, then
		// re-validate the incoming one like any other catalog entry.
		delete(next.rules, sig.ID)
		delete(next.compiled, sig.ID)
		delete(next.sigVersions, sig.ID)
		if err := next.add(sig.Rule, sig.Version); err != nil {
			return nil, err
		}
	}
	return next, nil
}
