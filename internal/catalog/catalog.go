// Package catalog knows which remote resources make up a harvest and how the
// harvested records map to asset URLs.
package catalog

import (
	"sort"
	"strings"
)

// groups lists the default resources in declaration order.
var groups = []struct {
	name      string
	resources []string
}{
	{"heroes", []string{
		"RoleConfig",
		"RoleResourcesConfig",
		"HeroTypeDescConfig",
		"HeroConfig",
		"HeroQualitySkillConfig",
		"HeroAwakenConfig",
		"HeroAwakenInfoConfig",
		"HeroRelationConfig",
		"HeroFettersConfig",
		"HeroRelationSkillConfig",
	}},
	{"skills", []string{"SkillConfig", "SkillLabelConfig", "SkillValueConfig"}},
	{"artifacts", []string{"ArtifactConfig", "ArtifactResourcesConfig"}},
	{"force_cards", []string{
		"ForceCardItemConfig",
		"ForceCardLevelConfig",
		"ForceCardStarConfig",
		"ForceCardSuitConfig",
		"ForceCardSkillConfig",
	}},
}

// DefaultResources returns the resources harvested when none are configured.
func DefaultResources() []string {
	var out []string

	for _, g := range groups {
		out = append(out, g.resources...)
	}

	return out
}

// LanguageResource returns the translation table for lang, e.g. LanguagePackage_EN.
func LanguageResource(lang string) string {
	return "LanguagePackage_" + strings.ToUpper(strings.TrimSpace(lang))
}

// URLSet is a set of asset URLs.
type URLSet struct {
	items map[string]struct{}
}

func NewURLSet(urls ...string) *URLSet {
	s := &URLSet{items: make(map[string]struct{}, len(urls))}

	for _, u := range urls {
		s.Add(u)
	}

	return s
}

// Add inserts u. Empty strings are ignored.
func (s *URLSet) Add(u string) {
	if u == "" {
		return
	}

	if s.items == nil {
		s.items = make(map[string]struct{})
	}

	s.items[u] = struct{}{}
}

func (s *URLSet) Len() int {
	if s == nil {
		return 0
	}

	return len(s.items)
}

func (s *URLSet) Contains(u string) bool {
	if s == nil {
		return false
	}

	_, ok := s.items[u]

	return ok
}

// Sorted returns the URLs in lexicographic order. Never nil.
func (s *URLSet) Sorted() []string {
	out := make([]string, 0, s.Len())

	if s == nil {
		return out
	}

	for u := range s.items {
		out = append(out, u)
	}

	sort.Strings(out)

	return out
}
