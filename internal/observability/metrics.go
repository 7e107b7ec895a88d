package observability

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/omya-backend/internal/platform/logger"
)

// Metrics is the pipeline's Prometheus text-format registry. Every method is
// safe on a nil receiver so callers never branch on whether metrics are on.
type Metrics struct {
	stageDuration    *HistogramVec
	providerRequests *CounterVec
	providerLatency  *HistogramVec
	providerRetries  *CounterVec
	runs             *CounterVec
	limiterWait      *HistogramVec
	redisUp          *Gauge
	redisPing        *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

// Init creates the process-wide registry when enabled.
func Init(enabled bool) *Metrics {
	if !enabled {
		return nil
	}
	initOnce.Do(func() { instance = New() })
	return instance
}

// New returns a standalone registry.
func New() *Metrics {
	return &Metrics{
		stageDuration: NewHistogramVec(
			"omya_stage_duration_seconds",
			"Pipeline stage duration in seconds by stage/status.",
			[]string{"stage", "status"},
			[]float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 900},
		),
		providerRequests: NewCounterVec("omya_provider_requests_total", "Provider calls by provider/stage/status.", []string{"provider", "stage", "status"}),
		providerLatency: NewHistogramVec(
			"omya_provider_request_duration_seconds",
			"Provider call latency in seconds by provider/stage.",
			[]string{"provider", "stage"},
			[]float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		),
		providerRetries: NewCounterVec("omya_provider_retries_total", "Provider retries by provider/stage.", []string{"provider", "stage"}),
		runs:            NewCounterVec("omya_runs_total", "Pipeline runs by source/status.", []string{"source", "status"}),
		limiterWait: NewHistogramVec(
			"omya_limiter_wait_seconds",
			"Time spent waiting for a provider slot.",
			[]string{"provider"},
			[]float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30},
		),
		redisUp:   NewGauge("omya_redis_up", "Whether the limiter Redis responded to the last ping."),
		redisPing: NewGauge("omya_redis_ping_seconds", "Latency of the last limiter Redis ping."),
	}
}

func (m *Metrics) ObserveStage(stage, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.Observe(dur.Seconds(), nonEmpty(stage), nonEmpty(status))
}

func (m *Metrics) ObserveProviderRequest(provider, stage, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.providerRequests.Inc(nonEmpty(provider), nonEmpty(stage), nonEmpty(status))
	if dur > 0 {
		m.providerLatency.Observe(dur.Seconds(), nonEmpty(provider), nonEmpty(stage))
	}
}

func (m *Metrics) IncProviderRetry(provider, stage string) {
	if m == nil {
		return
	}
	m.providerRetries.Inc(nonEmpty(provider), nonEmpty(stage))
}

func (m *Metrics) IncRun(source, status string) {
	if m == nil {
		return
	}
	m.runs.Inc(nonEmpty(source), nonEmpty(status))
}

func (m *Metrics) ObserveLimiterWait(provider string, dur time.Duration) {
	if m == nil {
		return
	}
	m.limiterWait.Observe(dur.Seconds(), nonEmpty(provider))
}

// RetryCount reports how many retries were recorded for provider/stage.
func (m *Metrics) RetryCount(provider, stage string) float64 {
	if m == nil {
		return 0
	}
	return m.providerRetries.Value(nonEmpty(provider), nonEmpty(stage))
}

func (m *Metrics) RunCount(source, status string) float64 {
	if m == nil {
		return 0
	}
	return m.runs.Value(nonEmpty(source), nonEmpty(status))
}

func (m *Metrics) StageCount(stage, status string) uint64 {
	if m == nil {
		return 0
	}
	return m.stageDuration.Count(nonEmpty(stage), nonEmpty(status))
}

// StartRedisCollector pings the limiter's Redis on an interval until ctx ends.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb goredis.UniversalClient, interval time.Duration) {
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

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	writers := []interface{ WritePrometheus(io.Writer) error }{
		m.stageDuration,
		m.providerRequests,
		m.providerLatency,
		m.providerRetries,
		m.runs,
		m.limiterWait,
		m.redisUp,
		m.redisPing,
	}
	for _, wr := range writers {
		if err := wr.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func nonEmpty(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return s
}

type CounterVec struct {
	name       string
	help       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]float64
}

func NewCounterVec(name, help string, labels []string) *CounterVec {
	return &CounterVec{name: name, help: help, labelNames: labels, values: map[string]float64{}}
}

func (c *CounterVec) Inc(values ...string) {
	c.Add(1, values...)
}

func (c *CounterVec) Add(v float64, values ...string) {
	if c == nil {
		return
	}
	lbl := labelString(c.labelNames, values)
	c.mu.Lock()
	c.values[lbl] += v
	c.mu.Unlock()
}

// Value reads one series; used by tests and health output.
func (c *CounterVec) Value(values ...string) float64 {
	if c == nil {
		return 0
	}
	lbl := labelString(c.labelNames, values)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[lbl]
}

func (c *CounterVec) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n", c.name, c.help, c.name); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, k := range sortedKeys(c.values) {
		if _, err := fmt.Fprintf(w, "%s%s %f\n", c.name, k, c.values[k]); err != nil {
			return err
		}
	}
	return nil
}

type Gauge struct {
	name string
	help string
	mu   sync.RWMutex
	val  float64
}

func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help}
}

func (g *Gauge) Set(v float64) {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.val = v
	g.mu.Unlock()
}

func (g *Gauge) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %f\n", g.name, g.help, g.name, g.name, g.val)
	return err
}

type HistogramVec struct {
	name       string
	help       string
	labelNames []string
	buckets    []float64
	mu         sync.RWMutex
	values     map[string]*histogram
}

type histogram struct {
	counts []uint64
	sum    float64
	total  uint64
}

func NewHistogramVec(name, help string, labels []string, buckets []float64) *HistogramVec {
	if len(buckets) == 0 {
		buckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}
	}
	return &HistogramVec{name: name, help: help, labelNames: labels, buckets: buckets, values: map[string]*histogram{}}
}

func (h *HistogramVec) Observe(v float64, values ...string) {
	if h == nil {
		return
	}
	lbl := labelString(h.labelNames, values)
	h.mu.Lock()
	defer h.mu.Unlock()
	hist, ok := h.values[lbl]
	if !ok {
		hist = &histogram{counts: make([]uint64, len(h.buckets))}
		h.values[lbl] = hist
	}
	hist.sum += v
	hist.total++
	for i, b := range h.buckets {
		if v <= b {
			hist.counts[i]++
		}
	}
}

// Count reads the observation count of one series.
func (h *HistogramVec) Count(values ...string) uint64 {
	if h == nil {
		return 0
	}
	lbl := labelString(h.labelNames, values)
	h.mu.RLock()
	defer h.mu.RUnlock()
	if hist, ok := h.values[lbl]; ok {
		return hist.total
	}
	return 0
}

func (h *HistogramVec) WritePrometheus(w io.Writer) error {
	if h == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, k := range sortedKeys(h.values) {
		v := h.values[k]
		for i, b := range h.buckets {
			if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, fmt.Sprintf("%g", b)), v.counts[i]); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, "+Inf"), v.total); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s_sum%s %f\n%s_count%s %d\n", h.name, k, v.sum, h.name, k, v.total); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func labelString(names []string, values []string) string {
	if len(names) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("{")
	for i, name := range names {
		if i > 0 {
			b.WriteString(",")
		}
		val := "unknown"
		if i < len(values) {
			val = values[i]
		}
		b.WriteString(name)
		b.WriteString("=\"")
		b.WriteString(escapeLabel(val))
		b.WriteString("\"")
	}
	b.WriteString("}")
	return b.String()
}

func escapeLabel(v string) string {
	v = strings.ReplaceAll(v, "\\", "\\\\")
	v = strings.ReplaceAll(v, "\"", "\\\"")
	return strings.ReplaceAll(v, "\n", "\\n")
}

func withLe(labels string, le string) string {
	if labels == "" || labels == "{}" {
		return "{le=\"" + le + "\"}"
	}
	return strings.TrimSuffix(labels, "}") + ",le=\"" + le + "\"}"
}
