package taxonomy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func defaultClassifier(t *testing.T) *Classifier {
	t.Helper()
	rules, err := DefaultRules()
	require.NoError(t, err)
	c, err := Compile(rules)
	require.NoError(t, err)
	return c
}

func TestClassifyDefaults(t *testing.T) {
	c := defaultClassifier(t)

	cases := []struct {
		title string
		want  Result
	}{
		{
			title: "ASUS ROG Swift 240Hz IPS Monitör",
			want:  Result{Category: "Monitor", Brand: "Asus", Tier: Tier1, Spec: "240hz", ClusterKey: "asus_240hz"},
		},
		{
			title: "MSI RTX 4070 Ventus ekran kartı",
			want:  Result{Category: "Graphics Card", Brand: "Msi", Tier: Tier1, Spec: "4070", ClusterKey: "msi_4070"},
		},
		{
			title: "Rampage kablosuz oyuncu mouse",
			want:  Result{Category: "Mouse", Brand: "Rampage", Tier: Tier2, Spec: "kablosuz", ClusterKey: "rampage_kablosuz"},
		},
		{
			title: "Noname 27 inch monitor",
			want:  Result{Category: "Monitor", Brand: "Unknown", Tier: TierUnknown, ClusterKey: "generic"},
		},
		{
			title: "Noname gtx 3060",
			want:  Result{Category: "Graphics Card", Brand: "Unknown", Tier: TierUnknown, Spec: "3060", ClusterKey: "3060"},
		},
		{
			title: "Mekanik klavye",
			want:  Result{Category: "Other", Brand: "Unknown", Tier: TierUnknown, ClusterKey: "generic"},
		},
		{
			title: "Logitech G Pro klavye",
			want:  Result{Category: "Other", Brand: "Logitech", Tier: Tier1, ClusterKey: "logitech"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.title, func(t *testing.T) {
			require.Equal(t, tc.want, c.Classify(tc.title))
		})
	}
}

func TestClassifyFirstMatchWins(t *testing.T) {
	rules := Rules{
		Categories: []CategoryRule{
			{Name: "First", Pattern: "shared"},
			{Name: "Second", Pattern: "shared"},
		},
		Brands: []BrandRule{
			{Name: "Alpha", Tier: Tier2, Synonyms: []string{"al"}},
			{Name: "Alphabet", Tier: Tier1, Synonyms: []string{"alphabet"}},
		},
	}
	c, err := Compile(rules)
	require.NoError(t, err)

	res := c.Classify("Shared ALPHABET device")
	require.Equal(t, "First", res.Category)
	require.Equal(t, "Alpha", res.Brand)
	require.Equal(t, Tier2, res.Tier)
}

func TestSpecWithoutCaptureGroupUsesWholeMatch(t *testing.T) {
	c, err := Compile(Rules{
		Categories: []CategoryRule{{Name: "Disk", Pattern: "ssd", DominantSpec: "size"}},
		Specs:      map[string]string{"size": `\d+tb`},
	})
	require.NoError(t, err)
	require.Equal(t, "2tb", c.Classify("Samsung SSD 2TB").Spec)
}

func TestCompileRejectsBrokenRules(t *testing.T) {
	cases := map[string]Rules{
		"bad regex":    {Categories: []CategoryRule{{Name: "x", Pattern: "("}}},
		"missing spec": {Categories: []CategoryRule{{Name: "x", Pattern: "x", DominantSpec: "nope"}}},
		"bad tier":     {Brands: []BrandRule{{Name: "x", Tier: "GOLD"}}},
		"bad spec":     {Specs: map[string]string{"s": "[["}},
	}
	for name, rules := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Compile(rules)
			require.True(t, errors.Is(err, ErrInvalidRules), "got %v", err)
		})
	}
}

func TestParseRulesFromYAML(t *testing.T) {
	rules, err := ParseRules([]byte(`
version: 2
categories:
  - name: Keyboard
    pattern: "(klavye|keyboard)"
brands:
  - name: Ducky
    tier: TIER_2
    synonyms: [ducky]
`))
	require.NoError(t, err)
	require.Equal(t, 2, rules.Version)

	c, err := Compile(rules)
	require.NoError(t, err)
	require.Equal(t, Result{Category: "Keyboard", Brand: "Ducky", Tier: Tier2, ClusterKey: "ducky"}, c.Classify("Ducky One klavye"))
}
