package taxonomy

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Tier ranks how established a brand is.
type Tier string

const (
	Tier1       Tier = "TIER_1"
	Tier2       Tier = "TIER_2"
	TierUnknown Tier = "UNKNOWN"
)

const (
	OtherCategory  = "Other"
	UnknownBrand   = "Unknown"
	GenericCluster = "generic"
)

// ErrInvalidRules is returned when a taxonomy document cannot be compiled.
var ErrInvalidRules = errors.New("taxonomy: invalid rules")

// Result is the classification of a single listing title.
type Result struct {
	Category   string `json:"category"`
	Brand      string `json:"brand"`
	Tier       Tier   `json:"tier"`
	Spec       string `json:"spec,omitempty"`
	ClusterKey string `json:"cluster_key"`
}

type categoryMatcher struct {
	name string
	re   *regexp.Regexp
	spec *regexp.Regexp
}

type brandMatcher struct {
	name     string
	tier     Tier
	synonyms []string
}

// Classifier assigns category, brand and cluster key to titles. It is safe
// for concurrent use once compiled.
type Classifier struct {
	version    int
	categories []categoryMatcher
	brands     []brandMatcher
}

// Compile validates rules and prepares their patterns.
func Compile(rules Rules) (*Classifier, error) {
	specs := make(map[string]*regexp.Regexp, len(rules.Specs))
	for name, pattern := range rules.Specs {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: spec %q: %v", ErrInvalidRules, name, err)
		}
		specs[name] = re
	}

	c := &Classifier{version: rules.Version}
	for _, rule := range rules.Categories {
		if rule.Name == "" {
			return nil, fmt.Errorf("%w: category without name", ErrInvalidRules)
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: category %q: %v", ErrInvalidRules, rule.Name, err)
		}
		m := categoryMatcher{name: rule.Name, re: re}
		if rule.DominantSpec != "" {
			spec, ok := specs[rule.DominantSpec]
			if !ok {
				return nil, fmt.Errorf("%w: category %q references unknown spec %q", ErrInvalidRules, rule.Name, rule.DominantSpec)
			}
			m.spec = spec
		}
		c.categories = append(c.categories, m)
	}

	for _, rule := range rules.Brands {
		switch rule.Tier {
		case Tier1, Tier2, TierUnknown:
		default:
			return nil, fmt.Errorf("%w: brand %q has tier %q", ErrInvalidRules, rule.Name, rule.Tier)
		}
		synonyms := make([]string, 0, len(rule.Synonyms))
		for _, s := range rule.Synonyms {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				synonyms = append(synonyms, s)
			}
		}
		c.brands = append(c.brands, brandMatcher{name: rule.Name, tier: rule.Tier, synonyms: synonyms})
	}

	return c, nil
}

// Version reports the version of the compiled rule set.
func (c *Classifier) Version() int {
	return c.version
}

// Classify never fails; titles that match nothing fall back to Other/Unknown/generic.
func (c *Classifier) Classify(title string) Result {
	lower := strings.ToLower(title)
	res := Result{
		Category:   OtherCategory,
		Brand:      UnknownBrand,
		Tier:       TierUnknown,
		ClusterKey: GenericCluster,
	}

	for _, cat := range c.categories {
		if !cat.re.MatchString(lower) {
			continue
		}
		res.Category = cat.name
		if cat.spec != nil {
			res.Spec = extractSpec(cat.spec, lower)
		}
		break
	}

brands:
	for _, b := range c.brands {
		for _, syn := range b.synonyms {
			if strings.Contains(lower, syn) {
				res.Brand = b.name
				res.Tier = b.tier
				break brands
			}
		}
	}

	res.ClusterKey = ClusterKey(res.Brand, res.Spec)
	return res
}

// ClusterKey joins the lower-cased brand and spec token, or returns "generic".
func ClusterKey(brand, spec string) string {
	parts := make([]string, 0, 2)
	if brand != "" && brand != UnknownBrand {
		parts = append(parts, strings.ToLower(brand))
	}
	if spec != "" {
		parts = append(parts, spec)
	}
	if len(parts) == 0 {
		return GenericCluster
	}
	return strings.Join(parts, "_")
}

func extractSpec(re *regexp.Regexp, title string) string {
	m := re.FindStringSubmatch(title)
	if m == nil {
		return ""
	}
	if len(m) > 1 && m[1] != "" {
		return m[1]
	}
	return m[0]
}
