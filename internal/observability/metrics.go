package observability

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/logger"
)

// Metrics holds the service's Prometheus instruments. A nil *Metrics is a valid no-op.
type Metrics struct {
	reg *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
	httpInflight     prometheus.Gauge
	replies          *prometheus.CounterVec
	llmRequests      *prometheus.CounterVec
	llmLatency       *prometheus.HistogramVec
	llmTokens        *prometheus.CounterVec
	ragRetrievals    *prometheus.CounterVec
	invalidCitations prometheus.Counter
	summaryUpdates   prometheus.Counter
	ingestChunks     *prometheus.CounterVec
	storeOps         *prometheus.CounterVec
	storeLatency     *prometheus.HistogramVec
	redisUp          prometheus.Gauge
	redisPing        prometheus.Gauge
}

// New registers every instrument on a fresh registry. Pass enabled=false to get a nil (no-op) Metrics.
func New(enabled bool) *Metrics {
	if !enabled {
		return nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medi_http_requests_total",
			Help: "HTTP requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		httpLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medi_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds by method/route/status.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"method", "route", "status"}),
		httpInflight: f.NewGauge(prometheus.GaugeOpts{
			Name: "medi_http_inflight_requests",
			Help: "In-flight HTTP requests.",
		}),
		replies: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medi_pipeline_replies_total",
			Help: "Replies produced by the message pipeline, by branch.",
		}, []string{"branch"}),
		llmRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medi_llm_requests_total",
			Help: "LLM completion requests by provider/result.",
		}, []string{"provider", "result"}),
		llmLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medi_llm_latency_seconds",
			Help:    "LLM completion latency in seconds by provider.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"provider"}),
		llmTokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medi_llm_tokens_total",
			Help: "LLM tokens by provider/direction.",
		}, []string{"provider", "direction"}),
		ragRetrievals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medi_rag_retrievals_total",
			Help: "Knowledge retrievals by result.",
		}, []string{"result"}),
		invalidCitations: f.NewCounter(prometheus.CounterOpts{
			Name: "medi_rag_invalid_citations_total",
			Help: "Citation tags in replies that did not match a retrieved chunk.",
		}),
		summaryUpdates: f.NewCounter(prometheus.CounterOpts{
			Name: "medi_summary_updates_total",
			Help: "Rolling conversation summary refreshes.",
		}),
		ingestChunks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medi_ingest_chunks_total",
			Help: "Ingested knowledge chunks by outcome.",
		}, []string{"outcome"}),
		storeOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medi_knowledge_store_operations_total",
			Help: "Knowledge store operations by backend/operation/status.",
		}, []string{"backend", "operation", "status"}),
		storeLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medi_knowledge_store_operation_duration_seconds",
			Help:    "Knowledge store operation latency in seconds by backend/operation.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"backend", "operation"}),
		redisUp: f.NewGauge(prometheus.GaugeOpts{
			Name: "medi_redis_up",
			Help: "1 when the last redis ping succeeded.",
		}),
		redisPing: f.NewGauge(prometheus.GaugeOpts{
			Name: "medi_redis_ping_seconds",
			Help: "Latency of the last redis ping.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Gatherer exposes the registry for tests and custom exporters.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.reg
}

func (m *Metrics) ObserveHTTP(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	method = orDefault(method, "UNKNOWN")
	route = orDefault(route, "unknown")
	status = orDefault(status, "0")
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpLatency.WithLabelValues(method, route, status).Observe(dur.Seconds())
}

func (m *Metrics) HTTPInflightInc() {
	if m == nil {
		return
	}
	m.httpInflight.Inc()
}

func (m *Metrics) HTTPInflightDec() {
	if m == nil {
		return
	}
	m.httpInflight.Dec()
}

func (m *Metrics) IncReply(branch string) {
	if m == nil {
		return
	}
	m.replies.WithLabelValues(orDefault(branch, "unknown")).Inc()
}

func (m *Metrics) ObserveLLM(provider, result string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	provider = orDefault(provider, "unknown")
	m.llmRequests.WithLabelValues(provider, orDefault(result, "unknown")).Inc()
	if dur > 0 {
		m.llmLatency.WithLabelValues(provider).Observe(dur.Seconds())
	}
	if inputTokens > 0 {
		m.llmTokens.WithLabelValues(provider, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.llmTokens.WithLabelValues(provider, "output").Add(float64(outputTokens))
	}
}

func (m *Metrics) IncRetrieval(result string) {
	if m == nil {
		return
	}
	m.ragRetrievals.WithLabelValues(orDefault(result, "unknown")).Inc()
}

func (m *Metrics) AddInvalidCitations(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.invalidCitations.Add(float64(n))
}

func (m *Metrics) IncSummaryUpdate() {
	if m == nil {
		return
	}
	m.summaryUpdates.Inc()
}

func (m *Metrics) AddIngestChunks(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ingestChunks.WithLabelValues(orDefault(outcome, "unknown")).Add(float64(n))
}

func (m *Metrics) ObserveStoreOperation(backend, operation, status string, dur time.Duration) {
	if m == nil {
		return
	}
	backend = orDefault(backend, "unknown")
	operation = orDefault(operation, "unknown")
	m.storeOps.WithLabelValues(backend, operation, orDefault(status, "unknown")).Inc()
	m.storeLatency.WithLabelValues(backend, operation).Observe(dur.Seconds())
}

// RegisterDBStats exposes database/sql pool stats for the gorm connection.
func (m *Metrics) RegisterDBStats(log *logger.Logger, db *gorm.DB, name string) {
	if m == nil || db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		if log != nil {
			log.Warn("metrics: db stats unavailable", "error", err)
		}
		return
	}
	if err := m.reg.Register(collectors.NewDBStatsCollector(sqlDB, orDefault(name, "medi"))); err != nil && log != nil {
		log.Warn("metrics: db stats register failed", "error", err)
	}
}

// StartRedisCollector pings redis on an interval until ctx is done.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *redis.Client, interval time.Duration) {
	if m == nil || rdb == nil {
		return
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

func orDefault(v, fallback string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	return v
}
