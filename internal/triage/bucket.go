package triage

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Impact identifies which threat-impact bucket an asset category feeds.
type Impact string

const (
	ImpactClinical         Impact = "clinical"
	ImpactBiomanufacturing Impact = "biomanufacturing"
	ImpactAgriculture      Impact = "agriculture"
	ImpactSeverity         Impact = "severity"
)

// impactOrder fixes the bucket ordering used in match results and explanations.
var impactOrder = []Impact{ImpactClinical, ImpactBiomanufacturing, ImpactAgriculture, ImpactSeverity}

func validImpact(s string) bool {
	for _, im := range impactOrder {
		if Impact(s) == im {
			return true
		}
	}
	return false
}

// Bucket is a named keyword group for one impact category. Keywords are
// lowercase stems matched by substring containment against normalized text,
// so a stem like "infect" also matches "infected" and "infection". Loaded
// once per process and immutable afterwards.
type Bucket struct {
	ID       string
	Impact   Impact
	Keywords []string
}

// assetCategory is the on-disk shape of one config entry.
type assetCategory struct {
	Keywords []string `json:"keywords"`
	Impact   string   `json:"impact"`
}

// LoadBuckets reads the asset-category config file and groups the categories
// into one bucket per impact, in a fixed impact order. A category missing
// keywords or impact, or naming an unknown impact, fails the load outright
// rather than producing a silently empty bucket.
//
// Stems are matched as substrings, which deliberately trades precision for
// recall on inflected forms; keeping stems long enough to avoid collisions
// inside unrelated words is the config owner's curation responsibility.
func LoadBuckets(path string) ([]Bucket, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // G304: path is operator config, not user input
	if err != nil {
		return nil, fmt.Errorf("read bucket config: %w", err)
	}

	var categories map[string]assetCategory
	if err := json.Unmarshal(raw, &categories); err != nil {
		return nil, fmt.Errorf("parse bucket config %s: %w", path, err)
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("bucket config %s: no asset categories defined", path)
	}

	// deterministic keyword order regardless of map iteration
	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)

	byImpact := make(map[Impact][]string, len(impactOrder))
	for _, name := range names {
		cat := categories[name]
		if len(cat.Keywords) == 0 {
			return nil, fmt.Errorf("bucket config %s: category %q has no keywords", path, name)
		}
		if cat.Impact == "" {
			return nil, fmt.Errorf("bucket config %s: category %q has no impact", path, name)
		}
		if !validImpact(cat.Impact) {
			return nil, fmt.Errorf("bucket config %s: category %q has unknown impact %q", path, name, cat.Impact)
		}
		for _, kw := range cat.Keywords {
			if kw == "" {
				return nil, fmt.Errorf("bucket config %s: category %q has an empty keyword", path, name)
			}
		}
		impact := Impact(cat.Impact)
		byImpact[impact] = append(byImpact[impact], cat.Keywords...)
	}

	var buckets []Bucket
	for _, impact := range impactOrder {
		keywords, ok := byImpact[impact]
		if !ok {
			continue
		}
		buckets = append(buckets, Bucket{
			ID:       string(impact),
			Impact:   impact,
			Keywords: dedupe(keywords),
		})
	}

	return buckets, nil
}

// dedupe drops repeated stems while preserving first-seen order, so a stem
// listed by two categories of the same impact counts once per bucket.
func dedupe(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}
