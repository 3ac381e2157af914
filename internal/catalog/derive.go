package catalog

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/italolelis/asset_harvester/internal/harvest"
)

// DeriveFunc turns harvested tables into the set of asset URLs to download.
type DeriveFunc func(tables map[string]harvest.RecordSet) *URLSet

const texturesPath = "/assets/resources/textures"

// Deriver builds asset URLs rooted at AssetBase.
type Deriver struct {
	AssetBase string
}

// Derive applies the asset path rules to tables. Missing tables contribute
// nothing; the fixed card placeholder is always present.
func (d Deriver) Derive(tables map[string]harvest.RecordSet) *URLSet {
	base := strings.TrimRight(d.AssetBase, "/") + texturesPath
	urls := NewURLSet()

	for _, row := range tables["RoleConfig"] {
		id, ok := field(row, "id")
		if !ok {
			continue
		}

		urls.Add(fmt.Sprintf("%s/hero/squareherohead/SquareHeroHead_%s0.png", base, id))
		urls.Add(fmt.Sprintf("%s/hero/circleherohead/CircleHeroHead_%s0.png", base, id))
		urls.Add(fmt.Sprintf("%s/hero/skillicon/skillbanner/SuperSkill_%s0.png", base, id))
	}

	for _, row := range tables["SkillConfig"] {
		id, ok := field(row, "skillid")
		if !ok {
			continue
		}

		urls.Add(fmt.Sprintf("%s/hero/skillicon/texture/SkillIcon_%s.png", base, id))
	}

	for _, row := range tables["ArtifactResourcesConfig"] {
		preview, ok := field(row, "preview_icon")
		if !ok || preview == "" {
			continue
		}

		path := strings.ToLower(strings.ReplaceAll(preview, "Textures/", ""))
		urls.Add(fmt.Sprintf("%s/%s.png", base, path))
	}

	for _, row := range tables["ForceCardItemConfig"] {
		id, ok := field(row, "id")
		if !ok {
			continue
		}

		urls.Add(fmt.Sprintf("%s/dynamis/card/Card_small_%s.png", base, id))
		urls.Add(fmt.Sprintf("%s/dynamis/card/Card_%s.png", base, id))
	}

	urls.Add(base + "/dynamis/card/ItemIcon_10000.png")

	return urls
}

// field renders row[key] the way it appears in the record's JSON.
func field(row harvest.Record, key string) (string, bool) {
	v, ok := row[key]
	if !ok || v == nil {
		return "", false
	}

	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	default:
		return fmt.Sprint(val), true
	}
}
