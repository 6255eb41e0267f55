// ABOUTME: Parses manifest files (JSON/YAML) into documents for predicate matching.
// ABOUTME: Parsing is lenient: an unparseable manifest just yields no manifest matches.

package scanner

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"
)

// parseManifest decodes a manifest file body into a generic document for
// structured predicate matching. The format is chosen by filename.
func parseManifest(base, content string) (interface{}, bool) {
	switch {
	case strings.HasSuffix(base, ".json"):
		var doc interface{}
		if err := json.Unmarshal([]byte(content), &doc); err != nil {
			return nil, false
		}
		return doc, true
	case strings.HasSuffix(base, ".yaml"), strings.HasSuffix(base, ".yml"):
		var doc interface{}
		if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
			return nil, false
		}
		return normalizeYAML(doc), true
	default:
		return nil, false
	}
}

// normalizeYAML rewrites yaml.v3's map[string]interface{} values so JSON and
// YAML manifests look identical to predicates. Non-string keys are rendered
// through the YAML round trip as strings already; nested structures recurse.
func normalizeYAML(node interface{}) interface{} {
	switch typed := node.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(typed))
		for k, v := range typed {
			out[k] = normalizeYAML(v)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, v := range typed {
			out[i] = normalizeYAML(v)
		}
		return out
	default:
		return node
	}
}
