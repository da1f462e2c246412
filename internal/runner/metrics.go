package runner

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the triage runner.
type Metrics struct {
	RunsTotal      prometheus.Counter
	RunDuration    prometheus.Histogram
	VerdictsTotal  *prometheus.CounterVec
	PostsTotal     *prometheus.CounterVec
	DecisionsTotal *prometheus.CounterVec
	PublishesTotal *prometheus.CounterVec
	StoreConflicts prometheus.Counter
}

// NewMetrics registers and returns runner metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "threatwatch_runs_total",
			Help: "Total triage runs.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "threatwatch_run_duration_seconds",
			Help:    "Duration of triage runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s .. ~51s
		}),
		VerdictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "threatwatch_verdicts_total",
			Help: "Total classified threats by priority.",
		}, []string{"priority"}),
		PostsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "threatwatch_posts_total",
			Help: "Total moderator posts by outcome.",
		}, []string{"outcome"}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "threatwatch_decisions_total",
			Help: "Total moderator decisions by kind.",
		}, []string{"decision"}),
		PublishesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "threatwatch_publishes_total",
			Help: "Total community publishes by outcome.",
		}, []string{"outcome"}),
		StoreConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "threatwatch_store_conflicts_total",
			Help: "Total approval store writes lost to a concurrent writer.",
		}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.VerdictsTotal,
		m.PostsTotal,
		m.DecisionsTotal,
		m.PublishesTotal,
		m.StoreConflicts,
	)

	return m
}

func (m *Metrics) observeVerdict(priority string) {
	if m == nil {
		return
	}
	m.VerdictsTotal.WithLabelValues(priority).Inc()
}

func (m *Metrics) observePost(outcome string) {
	if m == nil {
		return
	}
	m.PostsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeDecision(decision string) {
	if m == nil {
		return
	}
	m.DecisionsTotal.WithLabelValues(decision).Inc()
}

func (m *Metrics) observePublish(outcome string) {
	if m == nil {
		return
	}
	m.PublishesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeConflict() {
	if m == nil {
		return
	}
	m.StoreConflicts.Inc()
}

func (m *Metrics) observeRun(seconds float64) {
	if m == nil {
		return
	}
	m.RunsTotal.Inc()
	m.RunDuration.Observe(seconds)
}
