package metrics

import (
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
)

const labelSep = "\xff"

var defaultBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

type histogram struct {
	counts []uint64
	sum    float64
	count  uint64
}

// observe 累加到所有上界不小于 value 的桶；超出最后一个桶的值只计入 count。
func (h *histogram) observe(buckets []float64, value float64) {
	h.count++
	h.sum += value
	for i, bound := range buckets {
		if value <= bound {
			h.counts[i]++
		}
	}
}

// counterVec 是一组按标签值区分的计数器。
type counterVec struct {
	name   string
	help   string
	labels []string
	values map[string]uint64
}

func newCounterVec(name, help string, labels ...string) *counterVec {
	return &counterVec{name: name, help: help, labels: labels, values: make(map[string]uint64)}
}

func (c *counterVec) add(n uint64, values ...string) {
	c.values[strings.Join(values, labelSep)] += n
}

func (c *counterVec) get(values ...string) uint64 {
	return c.values[strings.Join(values, labelSep)]
}

func (c *counterVec) write(b *strings.Builder) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s counter\n", c.name, c.help, c.name)
	for _, key := range sortedKeys(c.values) {
		fmt.Fprintf(b, "%s{%s} %d\n", c.name, labelPairs(c.labels, key), c.values[key])
	}
}

// histogramVec 是一组按标签值区分的直方图，共用同一组桶。
type histogramVec struct {
	name    string
	help    string
	labels  []string
	buckets []float64
	series  map[string]*histogram
}

func newHistogramVec(name, help string, labels ...string) *histogramVec {
	return &histogramVec{name: name, help: help, labels: labels, buckets: defaultBuckets, series: make(map[string]*histogram)}
}

func (h *histogramVec) observe(value float64, values ...string) {
	key := strings.Join(values, labelSep)
	series := h.series[key]
	if series == nil {
		series = &histogram{counts: make([]uint64, len(h.buckets))}
		h.series[key] = series
	}
	series.observe(h.buckets, value)
}

func (h *histogramVec) write(b *strings.Builder) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
	for _, key := range sortedKeys(h.series) {
		series := h.series[key]
		pairs := labelPairs(h.labels, key)
		for i, bound := range h.buckets {
			fmt.Fprintf(b, "%s_bucket{%s,le=\"%s\"} %d\n", h.name, pairs, formatFloat(bound), series.counts[i])
		}
		fmt.Fprintf(b, "%s_bucket{%s,le=\"+Inf\"} %d\n", h.name, pairs, series.count)
		fmt.Fprintf(b, "%s_sum{%s} %s\n", h.name, pairs, formatFloat(series.sum))
		fmt.Fprintf(b, "%s_count{%s} %d\n", h.name, pairs, series.count)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

func labelPairs(labels []string, key string) string {
	values := strings.Split(key, labelSep)
	pairs := make([]string, len(labels))
	for i, label := range labels {
		value := ""
		if i < len(values) {
			value = values[i]
		}
		pairs[i] = label + `="` + escape(value) + `"`
	}
	return strings.Join(pairs, ",")
}

func escape(value string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", "").Replace(value)
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// registry 持有进程内全部指标族，一把锁保护所有写入与渲染。
type registry struct {
	mu sync.Mutex

	httpRequests *counterVec
	httpErrors   *counterVec
	httpLatency  *histogramVec

	invocations *counterVec
	stages      *counterVec
	latency     *histogramVec
	taskRetries *counterVec
}

func newRegistry() *registry {
	return &registry{
		httpRequests: newCounterVec("ankrmcp_http_requests_total", "Total number of HTTP requests processed.", "handler", "method", "code"),
		httpErrors:   newCounterVec("ankrmcp_http_request_errors_total", "Total number of HTTP requests that resulted in a server error.", "handler", "method"),
		httpLatency:  newHistogramVec("ankrmcp_http_request_duration_seconds", "HTTP request duration in seconds.", "handler", "method"),
		invocations:  newCounterVec("ankrmcp_action_invocations_total", "Total number of action invocations by outcome.", "action", "outcome"),
		stages:       newCounterVec("ankrmcp_action_stage_transitions_total", "Pipeline stages reached per action.", "action", "stage"),
		latency:      newHistogramVec("ankrmcp_action_duration_seconds", "Action invocation duration in seconds.", "action"),
		taskRetries:  newCounterVec("ankrmcp_task_retries_total", "Tasks re-queued after a retryable upstream failure.", "action"),
	}
}

var (
	regMu sync.RWMutex
	reg   = newRegistry()
)

// with 在当前 registry 的锁内执行 fn。
func with(fn func(r *registry)) {
	regMu.RLock()
	r := reg
	regMu.RUnlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r)
}

func (r *registry) render() string {
	var b strings.Builder
	b.Grow(2048)
	r.httpRequests.write(&b)
	r.httpErrors.write(&b)
	r.httpLatency.write(&b)
	r.invocations.write(&b)
	r.stages.write(&b)
	r.latency.write(&b)
	r.taskRetries.write(&b)
	return b.String()
}

// Handler exposes every series in the Prometheus text exposition format.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		var text string
		with(func(r *registry) { text = r.render() })
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, text)
	})
}

// Reset clears every collected series. Tests use it to start from a clean slate.
func Reset() {
	regMu.Lock()
	reg = newRegistry()
	regMu.Unlock()
}
