package triage

import (
	"reflect"
	"strings"
	"testing"

	"github.com/linnemanlabs/threatwatch/internal/threat"
)

func sev(f float64) *float64 { return &f }

// hits builds a single-bucket MatchResult with n synthetic stems.
func hits(bucket string, n int) MatchResult {
	h := BucketHits{Bucket: bucket, Impact: Impact(bucket)}
	for i := 0; i < n; i++ {
		h.Stems = append(h.Stems, strings.Repeat("x", i+3))
	}
	return MatchResult{h}
}

func TestClassify_TriggerPrecedence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rec  threat.Record
	}{
		{
			name: "unpatch keyword",
			rec:  threat.Record{ID: "t1", Description: "vendor shipped an unpatched build"},
		},
		{
			name: "no patch phrase",
			rec:  threat.Record{ID: "t2", Description: "there is no patch available"},
		},
		{
			name: "hyphenated trigger normalizes",
			rec:  threat.Record{ID: "t3", Description: "a multi-state incident is unfolding"},
		},
		{
			name: "outbreak",
			rec:  threat.Record{ID: "t4", Description: "outbreak reported in two regions"},
		},
		{
			name: "wastewater",
			rec:  threat.Record{ID: "t5", Description: "wastewater surveillance flagged a signal"},
		},
		{
			name: "severity at threshold",
			rec:  threat.Record{ID: "t6", Description: "minor note", Severity: sev(9.0)},
		},
		{
			name: "severity above threshold",
			rec:  threat.Record{ID: "t7", Description: "minor note", Severity: sev(9.8)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Zero bucket hits: the trigger alone must force HIGH.
			v := Classify(&tt.rec, MatchResult{})
			if v.Priority != PriorityHigh {
				t.Errorf("priority = %q, want HIGH", v.Priority)
			}
			if len(v.Triggers) == 0 {
				t.Error("expected at least one trigger reason")
			}
			if !strings.Contains(v.Explanation, "automatic HIGH triggers") {
				t.Errorf("explanation %q does not cite triggers", v.Explanation)
			}
		})
	}
}

func TestClassify_SeverityBelowTriggerIsNotHigh(t *testing.T) {
	t.Parallel()

	rec := threat.Record{ID: "t", Description: "quiet report", Severity: sev(8.9)}
	v := Classify(&rec, MatchResult{})
	if v.Priority == PriorityHigh {
		t.Errorf("priority = HIGH for severity 8.9, want MEDIUM or LOW")
	}
}

func TestClassify_VolumeBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		mr   MatchResult
		want Priority
	}{
		{"two buckets hit", MatchResult{hits("clinical", 1)[0], hits("severity", 1)[0]}, PriorityHigh},
		{"single bucket exactly 7", hits("clinical", 7), PriorityHigh},
		{"single bucket 8", hits("clinical", 8), PriorityHigh},
		{"single bucket exactly 6", hits("clinical", 6), PriorityMedium},
		{"single bucket exactly 2", hits("clinical", 2), PriorityMedium},
		{"single bucket 1", hits("clinical", 1), PriorityLow},
		{"no hits", MatchResult{}, PriorityLow},
	}

	rec := threat.Record{ID: "t", Description: "benign filler text with nothing of note"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := Classify(&rec, tt.mr)
			if v.Priority != tt.want {
				t.Errorf("priority = %q, want %q (buckets_hit=%d keyword_count=%d)",
					v.Priority, tt.want, v.BucketsHit, v.KeywordCount)
			}
		})
	}
}

func TestClassify_SeverityMediumBand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		score float64
		want  Priority
	}{
		{5.9, PriorityLow},
		{6.0, PriorityMedium},
		{7.0, PriorityMedium},
		{8.0, PriorityMedium},
		{8.1, PriorityLow},
	}

	for _, tt := range tests {
		rec := threat.Record{ID: "t", Description: "benign filler", Severity: sev(tt.score)}
		v := Classify(&rec, MatchResult{})
		if v.Priority != tt.want {
			t.Errorf("severity %.1f: priority = %q, want %q", tt.score, v.Priority, tt.want)
		}
	}
}

func TestClassify_NoSeverityNoHitsIsLow(t *testing.T) {
	t.Parallel()

	rec := threat.Record{ID: "t", Description: "benign filler"}
	v := Classify(&rec, MatchResult{})
	if v.Priority != PriorityLow {
		t.Errorf("priority = %q, want LOW", v.Priority)
	}
	if !strings.Contains(v.Explanation, "no bucket keyword matches") {
		t.Errorf("explanation %q does not state the reason", v.Explanation)
	}
}

func TestClassify_ClinicalEquipmentScenario(t *testing.T) {
	t.Parallel()

	buckets, err := LoadBuckets("testdata/critical_assets.json")
	if err != nil {
		t.Fatalf("LoadBuckets: %v", err)
	}

	rec := threat.Record{
		ID: "THREAT-001",
		Description: "Unpatched vulnerability in clinical diagnostic equipment " +
			"affecting patient systems. Multiple hospitals reported infected systems.",
	}

	mr := Match(Normalize(rec.FullText()), buckets)

	counts := mr.Counts()
	if counts["clinical"] != 4 {
		t.Errorf("clinical count = %d, want 4 (diagnos, patient, hospital, infect)", counts["clinical"])
	}
	if counts["severity"] != 2 {
		t.Errorf("severity count = %d, want 2 (unpatch, infect)", counts["severity"])
	}
	if got := mr.BucketsHit(); got != 2 {
		t.Errorf("BucketsHit = %d, want 2", got)
	}

	v := Classify(&rec, mr)
	if v.Priority != PriorityHigh {
		t.Errorf("priority = %q, want HIGH", v.Priority)
	}

	joined := strings.Join(v.Triggers, " ")
	for _, stem := range []string{"unpatch", "infect"} {
		if !strings.Contains(joined, stem) {
			t.Errorf("triggers %v missing %q", v.Triggers, stem)
		}
	}
}

func TestClassify_ZeroBucketsLowSeverityScenario(t *testing.T) {
	t.Parallel()

	buckets, err := LoadBuckets("testdata/critical_assets.json")
	if err != nil {
		t.Fatalf("LoadBuckets: %v", err)
	}

	rec := threat.Record{
		ID:          "THREAT-002",
		Description: "Routine maintenance window announced for a vendor portal.",
		Severity:    sev(3.0),
	}

	mr := Match(Normalize(rec.FullText()), buckets)
	v := Classify(&rec, mr)

	if v.BucketsHit != 0 {
		t.Errorf("BucketsHit = %d, want 0", v.BucketsHit)
	}
	if len(v.Triggers) != 0 {
		t.Errorf("Triggers = %v, want none", v.Triggers)
	}
	if v.Priority != PriorityLow {
		t.Errorf("priority = %q, want LOW", v.Priority)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	t.Parallel()

	buckets, err := LoadBuckets("testdata/critical_assets.json")
	if err != nil {
		t.Fatalf("LoadBuckets: %v", err)
	}

	rec := threat.Record{
		ID:          "THREAT-003",
		Title:       "Bioreactor control firmware flaw",
		Description: "Fermentation batches at risk; vaccine production lines share the affected controller.",
		Severity:    sev(7.2),
	}

	first := Classify(&rec, Match(Normalize(rec.FullText()), buckets))
	for i := 0; i < 10; i++ {
		again := Classify(&rec, Match(Normalize(rec.FullText()), buckets))
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d verdict differs:\nfirst: %+v\nagain: %+v", i, first, again)
		}
	}
}

func TestClassify_ExplanationCitesKeywords(t *testing.T) {
	t.Parallel()

	buckets, err := LoadBuckets("testdata/critical_assets.json")
	if err != nil {
		t.Fatalf("LoadBuckets: %v", err)
	}

	rec := threat.Record{
		ID:          "t",
		Description: "Hospital lab result feeds and patient portals degraded after the incident.",
	}
	mr := Match(Normalize(rec.FullText()), buckets)
	v := Classify(&rec, mr)

	if v.Priority != PriorityMedium {
		t.Fatalf("priority = %q, want MEDIUM (clinical count %d)", v.Priority, v.BucketCounts["clinical"])
	}
	for _, stem := range []string{"hospital", "patient", "lab result"} {
		if !strings.Contains(v.Explanation, stem) {
			t.Errorf("explanation %q does not cite %q", v.Explanation, stem)
		}
	}
	if !strings.Contains(v.Explanation, "bucket counts:") {
		t.Errorf("explanation %q missing count vector", v.Explanation)
	}
}
