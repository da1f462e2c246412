package triage

import (
	"fmt"
	"strings"

	"github.com/linnemanlabs/threatwatch/internal/threat"
)

// Priority is the triage verdict tier.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// autoHighStems force an automatic HIGH verdict when found in the normalized
// text. They are written in normalized form: punctuation is stripped before
// matching, so "sole-source" and "multi-state" arrive as "sole source" and
// "multi state".
var autoHighStems = []string{
	"unpatch",
	"no patch",
	"infect",
	"sole source",
	"multi state",
	"multi country",
	"outbreak",
	"wastewater",
}

// Numeric rule boundaries. All inclusive.
const (
	autoHighSeverity    = 9.0
	mediumSeverityMin   = 6.0
	mediumSeverityMax   = 8.0
	highSingleBucketMin = 7
	mediumKeywordMin    = 2
)

// Verdict is the complete, explainable classification of one threat. It is
// fully determined by the record and bucket configuration; identical inputs
// always produce an identical verdict.
type Verdict struct {
	Priority     Priority       `json:"priority"`
	BucketsHit   int            `json:"buckets_hit"`
	KeywordCount int            `json:"keyword_count"`
	BucketCounts map[string]int `json:"bucket_counts"`
	Triggers     []string       `json:"triggers,omitempty"`
	Explanation  string         `json:"explanation"`
}

// Classify applies the priority rules to a threat's match result, in
// precedence order: automatic HIGH triggers, HIGH by volume, MEDIUM, LOW.
// The explanation always cites the rule and the keywords or counts that
// drove the verdict.
func Classify(rec *threat.Record, mr MatchResult) Verdict {
	normalized := Normalize(rec.FullText())
	triggers := autoHighTriggers(normalized, rec)

	v := Verdict{
		BucketsHit:   mr.BucketsHit(),
		KeywordCount: mr.TotalKeywords(),
		BucketCounts: mr.Counts(),
		Triggers:     triggers,
	}

	switch {
	case len(triggers) > 0:
		v.Priority = PriorityHigh
		v.Explanation = "automatic HIGH triggers: " + strings.Join(triggers, ", ")

	case v.BucketsHit >= 2:
		v.Priority = PriorityHigh
		v.Explanation = fmt.Sprintf("multiple buckets hit (%d) | %s", v.BucketsHit, mr.describe())

	case v.BucketsHit == 1 && v.KeywordCount >= highSingleBucketMin:
		v.Priority = PriorityHigh
		v.Explanation = fmt.Sprintf("single bucket with high keyword count (%d) | %s", v.KeywordCount, mr.describe())

	case v.BucketsHit == 1 && v.KeywordCount >= mediumKeywordMin:
		v.Priority = PriorityMedium
		v.Explanation = fmt.Sprintf("single bucket with moderate keyword count (%d) | %s", v.KeywordCount, mr.describe())

	case rec.Severity != nil && *rec.Severity >= mediumSeverityMin && *rec.Severity <= mediumSeverityMax:
		v.Priority = PriorityMedium
		v.Explanation = fmt.Sprintf("severity score in medium range (%.1f) | %s", *rec.Severity, mr.describe())

	default:
		v.Priority = PriorityLow
		v.Explanation = lowExplanation(rec, mr)
	}

	return v
}

func autoHighTriggers(normalized string, rec *threat.Record) []string {
	var triggers []string
	if rec.Severity != nil && *rec.Severity >= autoHighSeverity {
		triggers = append(triggers, fmt.Sprintf("severity score >= 9 (score: %.1f)", *rec.Severity))
	}
	for _, stem := range autoHighStems {
		if strings.Contains(normalized, stem) {
			triggers = append(triggers, fmt.Sprintf("keyword: %q", stem))
		}
	}
	return triggers
}

func lowExplanation(rec *threat.Record, mr MatchResult) string {
	switch {
	case mr.BucketsHit() == 0:
		return fmt.Sprintf("no bucket keyword matches | %s", mr.describe())
	case mr.TotalKeywords() == 1:
		return fmt.Sprintf("only 1 keyword match | %s", mr.describe())
	default:
		return fmt.Sprintf("does not meet HIGH or MEDIUM criteria (buckets_hit=%d, keyword_count=%d, severity=%.1f) | %s",
			mr.BucketsHit(), mr.TotalKeywords(), rec.SeverityScore(), mr.describe())
	}
}
