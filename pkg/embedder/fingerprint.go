package embedder

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
)

// FingerprintEntry captures the semantic-relevant fields of one embedder
// configuration, used to detect config drift that invalidates stored
// vectors.
type FingerprintEntry struct {
	Name                     string  `json:"name"`
	Source                   Source  `json:"source"`
	Model                    *string `json:"model,omitempty"`
	Dimensions               int     `json:"dimensions"`
	DocumentTemplate         *string `json:"documentTemplate,omitempty"`
	DocumentTemplateMaxBytes *int    `json:"documentTemplateMaxBytes,omitempty"`
}

// Fingerprint is the full set of embedder configurations for one tenant,
// persisted at fingerprint.json.
type Fingerprint struct {
	Version   int                `json:"version"`
	Embedders []FingerprintEntry `json:"embedders"`
}

// NamedConfig pairs an embedder name with its configuration.
type NamedConfig struct {
	Name   string
	Config Config
}

// FromConfigs builds a fingerprint from the current embedder configs and
// each one's actual runtime dimension (auto-detected dimensions included).
func FromConfigs(configs []NamedConfig, actualDimensions map[string]int) Fingerprint {
	entries := make([]FingerprintEntry, 0, len(configs))
	for _, nc := range configs {
		entries = append(entries, FingerprintEntry{
			Name:                     nc.Name,
			Source:                   nc.Config.Source,
			Model:                    nc.Config.Model,
			Dimensions:               actualDimensions[nc.Name],
			DocumentTemplate:         nc.Config.DocumentTemplate,
			DocumentTemplateMaxBytes: nc.Config.DocumentTemplateMaxBytes,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return Fingerprint{Version: 1, Embedders: entries}
}

// MatchesConfigs reports whether configs, compared name-sorted, still match
// this fingerprint: same source, model, document template, and (only when
// the config pins a dimension) the same dimension.
func (f Fingerprint) MatchesConfigs(configs []NamedConfig) bool {
	sorted := make([]NamedConfig, len(configs))
	copy(sorted, configs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	if len(sorted) != len(f.Embedders) {
		return false
	}
	for i, entry := range f.Embedders {
		nc := sorted[i]
		if entry.Name != nc.Name {
			return false
		}
		if entry.Source != nc.Config.Source {
			return false
		}
		if !strPtrEqual(entry.Model, nc.Config.Model) {
			return false
		}
		if !strPtrEqual(entry.DocumentTemplate, nc.Config.DocumentTemplate) {
			return false
		}
		if !intPtrEqual(entry.DocumentTemplateMaxBytes, nc.Config.DocumentTemplateMaxBytes) {
			return false
		}
		if nc.Config.Dimensions != nil && *nc.Config.Dimensions != entry.Dimensions {
			return false
		}
	}
	return true
}

// Save writes the fingerprint to {dir}/fingerprint.json.
func (f Fingerprint) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "fingerprint.json"), data, 0o644)
}

// LoadFingerprint reads {dir}/fingerprint.json.
func LoadFingerprint(dir string) (Fingerprint, error) {
	data, err := os.ReadFile(filepath.Join(dir, "fingerprint.json"))
	if err != nil {
		return Fingerprint{}, err
	}
	var f Fingerprint
	if err := json.Unmarshal(data, &f); err != nil {
		return Fingerprint{}, err
	}
	return f, nil
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
