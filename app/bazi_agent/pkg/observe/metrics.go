package observe

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsRecorder 将事件转换为 Prometheus 指标
type MetricsRecorder struct {
	fetchAttempts  *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	cacheWriteErrs prometheus.Counter
	agentRuns      *prometheus.CounterVec
	agentDuration  *prometheus.HistogramVec
	produceTotal   *prometheus.CounterVec
	produceLatency prometheus.Histogram
}

// NewMetricsRecorder 在给定 Registerer 上注册指标
func NewMetricsRecorder(reg prometheus.Registerer) *MetricsRecorder {
	f := promauto.With(reg)
	return &MetricsRecorder{
		fetchAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bazi_fortune_fetch_total",
				Help: "Fortune data provider requests by outcome",
			},
			[]string{"result"},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bazi_fortune_cache_lookups_total",
				Help: "Fortune cache lookups by result",
			},
			[]string{"result"},
		),
		cacheWriteErrs: f.NewCounter(
			prometheus.CounterOpts{
				Name: "bazi_fortune_cache_write_errors_total",
				Help: "Fortune cache writes that failed",
			},
		),
		agentRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bazi_agent_runs_total",
				Help: "Narrative agent invocations by agent and result",
			},
			[]string{"agent", "result"},
		),
		agentDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bazi_agent_duration_seconds",
				Help:    "Narrative agent latency in seconds",
				Buckets: []float64{1, 2, 5, 10, 20, 40, 60, 120},
			},
			[]string{"agent"},
		),
		produceTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bazi_produce_total",
				Help: "Report productions by result",
			},
			[]string{"result"},
		),
		produceLatency: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bazi_produce_duration_seconds",
				Help:    "End-to-end report production latency in seconds",
				Buckets: []float64{1, 5, 10, 20, 40, 60, 120, 240},
			},
		),
	}
}

// Record 实现 Recorder
func (m *MetricsRecorder) Record(e Event) {
	switch e.Name {
	case FetchAttempt:
		if e.Err != nil {
			m.fetchAttempts.WithLabelValues("retry").Inc()
		}
	case FetchSuccess:
		m.fetchAttempts.WithLabelValues("success").Inc()
	case FetchFailure:
		m.fetchAttempts.WithLabelValues("failure").Inc()
	case CacheHit:
		m.cacheLookups.WithLabelValues("hit").Inc()
	case CacheMiss:
		m.cacheLookups.WithLabelValues("miss").Inc()
	case CacheWriteErr:
		m.cacheWriteErrs.Inc()
	case AgentDone:
		m.agentRuns.WithLabelValues(e.Agent, "success").Inc()
		m.agentDuration.WithLabelValues(e.Agent).Observe(e.Duration.Seconds())
	case AgentFailed:
		m.agentRuns.WithLabelValues(e.Agent, "fallback").Inc()
		m.agentDuration.WithLabelValues(e.Agent).Observe(e.Duration.Seconds())
	case ProduceDone:
		m.produceTotal.WithLabelValues("success").Inc()
		m.produceLatency.Observe(e.Duration.Seconds())
	case ProduceFailed:
		m.produceTotal.WithLabelValues("failure").Inc()
	}
}
