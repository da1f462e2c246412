// Package dashapi serves the read-only dashboard API: classified threats
// joined with their approval state, plus aggregate statistics. It never
// mutates state; all writes belong to the triage runner.
package dashapi

import (
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/threatwatch/internal/runner"
	"github.com/linnemanlabs/threatwatch/internal/threat"
)

// Planner computes the read model: every threat with its verdict, approval
// state, and next-action intent.
type Planner interface {
	Plan(ctx context.Context, records []*threat.Record) ([]runner.Enriched, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger  log.Logger
	planner Planner
	records []*threat.Record
}

// New creates a new API handler over a fixed dataset.
func New(logger log.Logger, planner Planner, records []*threat.Record) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if planner == nil {
		panic(xerrors.New("planner is required"))
	}
	return &API{
		logger:  logger,
		planner: planner,
		records: records,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/threats", a.handleListThreats)
		r.Get("/threats/{id}", a.handleGetThreat)
		r.Get("/stats", a.handleStats)
	})
}

func (a *API) handleListThreats(w http.ResponseWriter, r *http.Request) {
	enriched, err := a.planner.Plan(r.Context(), a.records)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to build threat list")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.Int("threatwatch.threats.count", len(enriched)))

	writeJSON(w, enriched)
}

func (a *API) handleGetThreat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("threatwatch.threat.id", id))

	var match []*threat.Record
	for _, rec := range a.records {
		if rec.ID == id {
			match = append(match, rec)
			break
		}
	}
	if len(match) == 0 {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	enriched, err := a.planner.Plan(r.Context(), match)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to enrich threat", "id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	span.SetAttributes(attribute.String("threatwatch.threat.priority", string(enriched[0].Verdict.Priority)))
	writeJSON(w, enriched[0])
}

// stats is the aggregate view served by /api/v1/stats.
type stats struct {
	Threats     int            `json:"threats"`
	Priorities  map[string]int `json:"priorities"`
	Statuses    map[string]int `json:"statuses"`
	AvgSeverity float64        `json:"avg_severity"`
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	enriched, err := a.planner.Plan(r.Context(), a.records)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to build stats")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, computeStats(enriched))
}

func computeStats(enriched []runner.Enriched) stats {
	s := stats{
		Threats:    len(enriched),
		Priorities: make(map[string]int),
		Statuses:   make(map[string]int),
	}

	var sum float64
	var scored int
	for _, e := range enriched {
		s.Priorities[string(e.Verdict.Priority)]++
		s.Statuses[string(e.State.Status)]++
		if e.Record.Severity != nil {
			sum += *e.Record.Severity
			scored++
		}
	}
	if scored > 0 {
		s.AvgSeverity = sum / float64(scored)
	}
	return s
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
