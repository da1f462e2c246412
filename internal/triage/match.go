package triage

import (
	"fmt"
	"strings"
)

// BucketHits records the distinct stems from one bucket found in a text.
type BucketHits struct {
	Bucket string
	Impact Impact
	Stems  []string
}

// Count is the number of distinct matching stems, not occurrence frequency.
func (h BucketHits) Count() int { return len(h.Stems) }

// MatchResult holds per-bucket hits in bucket configuration order. It is
// derived state, recomputed on every triage pass and never persisted.
type MatchResult []BucketHits

// Match counts, for each bucket, the distinct keywords found as substrings
// of the normalized text. A stem shared by two buckets counts in both: each
// bucket is scored independently against its own list.
func Match(normalized string, buckets []Bucket) MatchResult {
	out := make(MatchResult, 0, len(buckets))
	for _, b := range buckets {
		hits := BucketHits{Bucket: b.ID, Impact: b.Impact}
		for _, kw := range b.Keywords {
			if strings.Contains(normalized, kw) {
				hits.Stems = append(hits.Stems, kw)
			}
		}
		out = append(out, hits)
	}
	return out
}

// BucketsHit is the number of buckets with at least one matching stem.
func (m MatchResult) BucketsHit() int {
	n := 0
	for _, h := range m {
		if h.Count() > 0 {
			n++
		}
	}
	return n
}

// TotalKeywords is the sum of distinct stem hits across all buckets. When a
// single bucket is hit this equals that bucket's count.
func (m MatchResult) TotalKeywords() int {
	n := 0
	for _, h := range m {
		n += h.Count()
	}
	return n
}

// Counts returns the bucket ID to hit count mapping.
func (m MatchResult) Counts() map[string]int {
	out := make(map[string]int, len(m))
	for _, h := range m {
		out[h.Bucket] = h.Count()
	}
	return out
}

// describe lists the hit buckets with their matched stems plus the full count
// vector, so every verdict stays traceable to specific keywords.
func (m MatchResult) describe() string {
	var hit []string
	counts := make([]string, 0, len(m))
	for _, h := range m {
		counts = append(counts, fmt.Sprintf("%s=%d", h.Bucket, h.Count()))
		if h.Count() > 0 {
			hit = append(hit, fmt.Sprintf("%s: %s", h.Bucket, strings.Join(h.Stems, ", ")))
		}
	}

	countPart := "bucket counts: " + strings.Join(counts, " ")
	if len(hit) == 0 {
		return countPart
	}
	return strings.Join(hit, "; ") + " | " + countPart
}
