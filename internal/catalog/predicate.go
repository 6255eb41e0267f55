// ABOUTME: Structured-manifest predicates for rules that match parsed manifests.
// ABOUTME: A predicate is a dot-separated key path, optionally with a value regex.

package catalog

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Predicate is the parsed form of a manifest rule's pattern. The syntax is
//
//	scripts.postinstall            key path exists
//	scripts.postinstall=~curl|wget value at key path matches regex
//	permissions.*=~(?i)all         wildcard segment matches any key
//
// Matching is purely syntactic over the decoded manifest document; no code
// is evaluated.
type Predicate struct {
	Path         []string
	ValuePattern *regexp.Regexp
}

// ParsePredicate validates and compiles a manifest predicate expression.
func ParsePredicate(expr string) (Predicate, error) {
	pathPart := expr
	var valuePart string
	if idx := strings.Index(expr, "=~"); idx >= 0 {
		pathPart = expr[:idx]
		valuePart = expr[idx+2:]
	}

	pathPart = strings.TrimSpace(pathPart)
	if pathPart == "" {
		return Predicate{}, fmt.Errorf("empty key path")
	}
	segments := strings.Split(pathPart, ".")
	for _, seg := range segments {
		if seg == "" {
			return Predicate{}, fmt.Errorf("empty segment in key path %q", pathPart)
		}
	}

	p := Predicate{Path: segments}
	if valuePart != "" {
		re, err := regexp.Compile(valuePart)
		if err != nil {
			return Predicate{}, fmt.Errorf("value pattern: %w", err)
		}
		p.ValuePattern = re
	}
	return p, nil
}

// Match walks the decoded manifest document along the predicate's key path
// and returns the matched leaf values rendered as strings. A wildcard "*"
// segment fans out across all keys at that level. An empty result means the
// predicate did not match.
func (p Predicate) Match(doc interface{}) []string {
	leaves := walk(doc, p.Path)
	if p.ValuePattern == nil {
		return leaves
	}
	var matched []string
	for _, v := range leaves {
		if p.ValuePattern.MatchString(v) {
			matched = append(matched, v)
		}
	}
	return matched
}

func walk(node interface{}, path []string) []string {
	if len(path) == 0 {
		return renderLeaf(node)
	}
	seg := path[0]
	switch typed := node.(type) {
	case map[string]interface{}:
		if seg == "*" {
			var out []string
			for _, key := range sortedKeys(typed) {
				out = append(out, walk(typed[key], path[1:])...)
			}
			return out
		}
		child, ok := typed[seg]
		if !ok {
			return nil
		}
		return walk(child, path[1:])
	case []interface{}:
		// Arrays fan out implicitly; the segment applies to each element.
		var out []string
		for _, elem := range typed {
			out = append(out, walk(elem, path)...)
		}
		return out
	default:
		return nil
	}
}

func renderLeaf(node interface{}) []string {
	switch typed := node.(type) {
	case string:
		return []string{typed}
	case bool, float64, int, int64:
		return []string{fmt.Sprintf("%v", typed)}
	case []interface{}:
		var out []string
		for _, elem := range typed {
			out = append(out, renderLeaf(elem)...)
		}
		return out
	case map[string]interface{}:
		// A present subtree still counts as a match; render its keys so
		// the snippet shows what was found.
		keys := sortedKeys(typed)
		return []string{strings.Join(keys, ",")}
	case nil:
		return []string{""}
	default:
		return nil
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Deterministic ordering keeps finding order reproducible across runs.
	sort.Strings(keys)
	return keys
}
