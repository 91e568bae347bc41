package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"affiliate-poster/models"
)

const jobName = "affiliate_poster"

// RunMetrics holds the gauges describing the last run. A batch job pushes
// them once at exit instead of being scraped. A push replaces the whole
// group, so lastSuccess is only registered by a run that wrote a post;
// otherwise the gateway's previous value would be overwritten with 0.
type RunMetrics struct {
	registry *prometheus.Registry

	queries     *prometheus.GaugeVec
	posts       prometheus.Gauge
	fallbacks   prometheus.Gauge
	duplicates  prometheus.Gauge
	duration    prometheus.Gauge
	lastSuccess prometheus.Gauge
}

// New creates RunMetrics registered on a private registry.
func New() *RunMetrics {
	m := &RunMetrics{
		registry: prometheus.NewRegistry(),
		queries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "affiliate_poster_queries",
			Help: "Product queries issued in the last run, by outcome.",
		}, []string{"outcome"}),
		posts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "affiliate_poster_posts_written",
			Help: "Posts written in the last run.",
		}),
		fallbacks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "affiliate_poster_fallback_reviews",
			Help: "Posts that used fallback content in the last run.",
		}),
		duplicates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "affiliate_poster_duplicates_skipped",
			Help: "Products skipped because they were already posted.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "affiliate_poster_run_duration_seconds",
			Help: "Wall time of the last run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "affiliate_poster_last_success_timestamp_seconds",
			Help: "Unix time of the last run that wrote at least one post.",
		}),
	}
	m.registry.MustRegister(m.queries, m.posts, m.fallbacks, m.duplicates, m.duration)
	return m
}

// Observe copies the counters of r into the gauges.
func (m *RunMetrics) Observe(r *models.RunReport) {
	ok := r.Queries - r.FailedQueries - r.EmptyResults
	m.queries.WithLabelValues("ok").Set(float64(ok))
	m.queries.WithLabelValues("failed").Set(float64(r.FailedQueries))
	m.queries.WithLabelValues("empty").Set(float64(r.EmptyResults))
	m.posts.Set(float64(r.Posted))
	m.fallbacks.Set(float64(r.Fallbacks))
	m.duplicates.Set(float64(r.Duplicates))
	if !r.FinishedAt.IsZero() {
		m.duration.Set(r.FinishedAt.Sub(r.StartedAt).Seconds())
		if r.Posted > 0 {
			m.lastSuccess.Set(float64(r.FinishedAt.Unix()))
			m.markSuccess()
		}
	}
}

// markSuccess adds lastSuccess to the pushed set. A repeat Observe returns
// AlreadyRegisteredError, which is fine.
func (m *RunMetrics) markSuccess() {
	_ = m.registry.Register(m.lastSuccess)
}

// Push sends the gauges to a Prometheus Pushgateway, grouped by instance.
func (m *RunMetrics) Push(ctx context.Context, gatewayURL, instance string) error {
	p := push.New(gatewayURL, jobName).Gatherer(m.registry)
	if instance != "" {
		p = p.Grouping("instance", instance)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("metrics: push: %w", err)
	}
	return nil
}
