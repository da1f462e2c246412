// Package runner drives triage passes over the threat dataset: classify every
// record, post HIGH and MEDIUM verdicts for moderation, poll pending posts for
// decisions, and publish approved threats to the community channel.
//
// The runner is the only writer of approval state. Every status transition
// goes through the store's compare-and-swap Update, so concurrent runners
// converge on a single winner per threat and a threat is published at most
// once.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/threatwatch/internal/approval"
	"github.com/linnemanlabs/threatwatch/internal/threat"
	"github.com/linnemanlabs/threatwatch/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/threatwatch/internal/runner")

// Moderator is the human review channel. Post submits a threat for review and
// returns a transmission reference; PollDecision reads back the moderator's
// signal for that reference; Publish sends the final text to the community
// channel; Confirm leaves a closing note on the review thread.
type Moderator interface {
	Post(ctx context.Context, rec *threat.Record, v *triage.Verdict) (string, error)
	PollDecision(ctx context.Context, ref string) (approval.Decision, error)
	Publish(ctx context.Context, rec *threat.Record, v *triage.Verdict, editedText string) (string, error)
	Confirm(ctx context.Context, ref, text string) error
}

// IntentKind is the action a triage pass would take for one threat.
type IntentKind string

const (
	IntentNone IntentKind = "none"
	IntentPost IntentKind = "post"
	IntentPoll IntentKind = "poll"
)

// Enriched pairs a threat record with its verdict, current approval state,
// and the action the next pass would take. It is the read model served by the
// dashboard API.
type Enriched struct {
	Record  *threat.Record  `json:"record"`
	Verdict triage.Verdict  `json:"verdict"`
	State   *approval.State `json:"state"`
	Intent  IntentKind      `json:"intent"`
}

// Outcome is the per-threat result of one triage pass.
type Outcome struct {
	ThreatID string `json:"threat_id"`
	Priority string `json:"priority"`
	Action   string `json:"action"`
	Err      string `json:"error,omitempty"`
}

// Report summarizes one triage pass.
type Report struct {
	RunID     string    `json:"run_id"`
	Posted    int       `json:"posted"`
	Approved  int       `json:"approved"`
	Rejected  int       `json:"rejected"`
	Pending   int       `json:"pending"`
	Published int       `json:"published"`
	Outcomes  []Outcome `json:"outcomes"`
}

// Runner executes triage passes.
type Runner struct {
	buckets []triage.Bucket
	store   approval.Store
	mod     Moderator
	logger  log.Logger
	metrics *Metrics
	now     func() time.Time
}

// New creates a Runner. metrics may be nil, which disables instrumentation.
func New(buckets []triage.Bucket, store approval.Store, mod Moderator, logger log.Logger, metrics *Metrics) *Runner {
	return &Runner{
		buckets: buckets,
		store:   store,
		mod:     mod,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Plan classifies every record and joins it with its stored approval state
// without taking any action. Records keep their input order.
func (r *Runner) Plan(ctx context.Context, records []*threat.Record) ([]Enriched, error) {
	out := make([]Enriched, 0, len(records))
	for _, rec := range records {
		v := triage.Classify(rec, triage.Match(triage.Normalize(rec.FullText()), r.buckets))

		st, ok, err := r.store.Get(ctx, rec.ID)
		if err != nil {
			return nil, fmt.Errorf("load state for %s: %w", rec.ID, err)
		}
		if !ok {
			init := approval.NewState(rec.ID)
			st = &init
		}

		out = append(out, Enriched{
			Record:  rec,
			Verdict: v,
			State:   st,
			Intent:  intentFor(v.Priority, st.Status),
		})
	}
	return out, nil
}

func intentFor(p triage.Priority, s approval.Status) IntentKind {
	switch {
	case s == approval.StatusPending:
		return IntentPoll
	case s == approval.StatusNotPosted && (p == triage.PriorityHigh || p == triage.PriorityMedium):
		return IntentPost
	default:
		return IntentNone
	}
}

// Run executes one triage pass over records. A failure on one threat is
// recorded in its outcome and never aborts the rest of the batch; outcomes
// keep the input order.
func (r *Runner) Run(ctx context.Context, records []*threat.Record) *Report {
	start := r.now()
	report := &Report{
		RunID:    ulid.Make().String(),
		Outcomes: make([]Outcome, 0, len(records)),
	}
	L := r.logger.With("run_id", report.RunID)

	ctx, span := tracer.Start(ctx, "triage.run", trace.WithAttributes(
		attribute.String("threatwatch.run.id", report.RunID),
		attribute.Int("threatwatch.run.threats", len(records)),
	))
	defer span.End()

	for _, rec := range records {
		out := r.process(ctx, rec)
		report.Outcomes = append(report.Outcomes, out)

		switch out.Action {
		case "posted":
			report.Posted++
		case "approved", "published":
			report.Approved++
			if out.Action == "published" {
				report.Published++
			}
		case "rejected", "rejected_published":
			report.Rejected++
			if out.Action == "rejected_published" {
				report.Published++
			}
		case "pending":
			report.Pending++
		}

		if out.Err != "" {
			L.Warn(ctx, "threat processing failed", "threat_id", out.ThreatID, "action", out.Action, "error", out.Err)
		}
	}

	r.metrics.observeRun(r.now().Sub(start).Seconds())
	L.Info(ctx, "triage run complete",
		"threats", len(records),
		"posted", report.Posted,
		"approved", report.Approved,
		"rejected", report.Rejected,
		"pending", report.Pending,
		"published", report.Published,
	)
	return report
}

func (r *Runner) process(ctx context.Context, rec *threat.Record) (out Outcome) {
	ctx, span := tracer.Start(ctx, "triage.threat", trace.WithAttributes(
		attribute.String("threatwatch.threat.id", rec.ID),
	))
	defer func() {
		span.SetAttributes(
			attribute.String("threatwatch.threat.priority", out.Priority),
			attribute.String("threatwatch.threat.action", out.Action),
		)
		span.End()
	}()

	v := triage.Classify(rec, triage.Match(triage.Normalize(rec.FullText()), r.buckets))
	r.metrics.observeVerdict(string(v.Priority))

	out = Outcome{ThreatID: rec.ID, Priority: string(v.Priority)}

	st, ok, err := r.store.Get(ctx, rec.ID)
	if err != nil {
		out.Action = "error"
		out.Err = fmt.Sprintf("load state: %v", err)
		return out
	}
	if !ok {
		init := approval.NewState(rec.ID)
		st = &init
	}

	switch intentFor(v.Priority, st.Status) {
	case IntentPost:
		return r.post(ctx, rec, &v, *st, out)
	case IntentPoll:
		return r.poll(ctx, rec, &v, *st, out)
	default:
		out.Action = "skipped"
		return out
	}
}

func (r *Runner) post(ctx context.Context, rec *threat.Record, v *triage.Verdict, st approval.State, out Outcome) Outcome {
	ref, err := r.mod.Post(ctx, rec, v)
	if err != nil {
		r.metrics.observePost("error")
		out.Action = "error"
		out.Err = fmt.Sprintf("post: %v", err)
		return out
	}

	next, err := st.Post(ref, string(v.Priority), r.now())
	if err != nil {
		out.Action = "error"
		out.Err = err.Error()
		return out
	}

	if err := r.store.Update(ctx, &next, approval.StatusNotPosted); err != nil {
		if errors.Is(err, approval.ErrConflict) {
			// Another runner posted first; its state wins.
			r.metrics.observeConflict()
			out.Action = "skipped"
			return out
		}
		r.metrics.observePost("error")
		out.Action = "error"
		out.Err = fmt.Sprintf("persist posted state: %v", err)
		return out
	}

	r.metrics.observePost("ok")
	out.Action = "posted"
	return out
}

func (r *Runner) poll(ctx context.Context, rec *threat.Record, v *triage.Verdict, st approval.State, out Outcome) Outcome {
	d, err := r.mod.PollDecision(ctx, st.Ref)
	if err != nil {
		out.Action = "pending"
		out.Err = fmt.Sprintf("poll decision: %v", err)
		return out
	}
	r.metrics.observeDecision(d.Kind.String())

	if d.Kind == approval.DecisionNone {
		out.Action = "pending"
		return out
	}

	tr, err := st.Apply(d, r.now())
	if err != nil {
		out.Action = "error"
		out.Err = err.Error()
		return out
	}

	// Claim the terminal status before any publish side effect. If the claim
	// loses to a concurrent runner the winner owns publication.
	if err := r.store.Update(ctx, &tr.Next, approval.StatusPending); err != nil {
		if errors.Is(err, approval.ErrConflict) {
			r.metrics.observeConflict()
			out.Action = "skipped"
			return out
		}
		out.Action = "error"
		out.Err = fmt.Sprintf("persist decision: %v", err)
		return out
	}

	switch {
	case tr.Publish:
		return r.publish(ctx, rec, v, tr.Next, out)
	case tr.Next.Status == approval.StatusRejected:
		if err := r.mod.Confirm(ctx, tr.Next.Ref, "Rejected. Not published."); err != nil {
			r.logger.Warn(ctx, "confirm failed", "threat_id", rec.ID, "error", err.Error())
		}
		out.Action = "rejected"
		return out
	default:
		out.Action = "pending"
		return out
	}
}

func (r *Runner) publish(ctx context.Context, rec *threat.Record, v *triage.Verdict, st approval.State, out Outcome) Outcome {
	pubRef, err := r.mod.Publish(ctx, rec, v, st.EditedText)
	if err != nil {
		r.metrics.observePublish("error")
		// The decision is already durable; the next pass sees a terminal
		// state and will not retry, so surface the failure loudly.
		out.Action = string(st.Status)
		out.Err = fmt.Sprintf("publish: %v", err)
		return out
	}
	r.metrics.observePublish("ok")

	st.PublishedRef = pubRef
	if err := r.store.Put(ctx, &st); err != nil {
		r.logger.Warn(ctx, "record published ref failed", "threat_id", rec.ID, "error", err.Error())
	}

	if err := r.mod.Confirm(ctx, st.Ref, fmt.Sprintf("Published to the community channel (ref %s).", pubRef)); err != nil {
		r.logger.Warn(ctx, "confirm failed", "threat_id", rec.ID, "error", err.Error())
	}

	if st.Status == approval.StatusRejected {
		out.Action = "rejected_published"
	} else {
		out.Action = "published"
	}
	return out
}
