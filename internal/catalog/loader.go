// ABOUTME: Loads additional rule catalogs and cached signature sets from YAML/JSON files.
// ABOUTME: File problems are load-time errors; a bad file never reaches the scanner.

package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sigil-dev/sigil/internal/types"
)

// ruleFile is the on-disk rule catalog format.
type ruleFile struct {
	Rules []types.Rule `yaml:"rules"`
}

// LoadRulesFile reads a YAML rule file. The returned rules still go through
// New/Merge validation before any of them can match.
func LoadRulesFile(path string) ([]types.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file %q: %w", path, err)
	}
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse rules file %q: %w", path, err)
	}
	return rf.Rules, nil
}

// signatureFile is the cached signature set persisted between syncs.
type signatureFile struct {
	Signatures []types.Signature `json:"signatures"`
	Version    int64             `json:"version"`
	FetchedAt  string            `json:"fetched_at,omitempty"`
}

// LoadSignaturesFile reads a previously cached signature set. A missing file
// is not an error: the scanner simply starts from the builtin catalog.
func LoadSignaturesFile(path string) ([]types.Signature, int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("read signatures file %q: %w", path, err)
	}
	var sf signatureFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, 0, fmt.Errorf("parse signatures file %q: %w", path, err)
	}
	return sf.Signatures, sf.Version, nil
}

// SaveSignaturesFile persists a signature set with its version marker so the
// next process can resume delta sync from where this one left off.
func SaveSignaturesFile(path string, sigs []types.Signature, version int64, fetchedAt string) error {
	sf := signatureFile{Signatures: sigs, Version: version, FetchedAt: fetchedAt}
	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize signatures: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write signatures file: %w", err)
	}
	return os.Rename(tmp, path)
}
