package taxonomy

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed rules/default.yaml
var defaultRules []byte

// Rules is the versioned, file-backed taxonomy definition. Categories and
// brands are evaluated in file order.
type Rules struct {
	Version    int               `yaml:"version"`
	Categories []CategoryRule    `yaml:"categories"`
	Brands     []BrandRule       `yaml:"brands"`
	Specs      map[string]string `yaml:"specs"`
}

// CategoryRule maps a title pattern to a category and, optionally, the spec
// that dominates pricing inside it.
type CategoryRule struct {
	Name         string `yaml:"name"`
	Pattern      string `yaml:"pattern"`
	DominantSpec string `yaml:"dominant_spec"`
}

// BrandRule lists the substrings that identify a brand.
type BrandRule struct {
	Name     string   `yaml:"name"`
	Tier     Tier     `yaml:"tier"`
	Synonyms []string `yaml:"synonyms"`
}

// DefaultRules returns the built-in taxonomy.
func DefaultRules() (Rules, error) {
	return ParseRules(defaultRules)
}

// LoadRules reads a taxonomy file. An empty path yields the built-in rules.
func LoadRules(path string) (Rules, error) {
	if path == "" {
		return DefaultRules()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read taxonomy %s: %w", path, err)
	}
	return ParseRules(raw)
}

// ParseRules decodes a YAML taxonomy document.
func ParseRules(raw []byte) (Rules, error) {
	var rules Rules
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return Rules{}, fmt.Errorf("decode taxonomy: %w", err)
	}
	return rules, nil
}
