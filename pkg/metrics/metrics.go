// Package metrics provides Prometheus-based metrics recording for plan
// execution, file mutations, and patch operations.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the Prometheus collectors for this service.
type Recorder struct {
	replaceAttempts *prometheus.CounterVec
	planTransitions *prometheus.CounterVec
	planDuration    *prometheus.HistogramVec
	toolCalls       *prometheus.CounterVec
	patchOps        *prometheus.CounterVec
	publishFailures prometheus.Counter
}

// NewRecorder registers collectors on the default registry.
func NewRecorder() *Recorder {
	return &Recorder{
		replaceAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "editor_replace_attempts_total",
				Help: "Total str_replace attempts by match outcome",
			},
			[]string{"found"},
		),
		planTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plan_status_transitions_total",
				Help: "Total plan status transitions by from and to status",
			},
			[]string{"from", "to"},
		),
		planDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "plan_execution_duration_seconds",
				Help:    "Duration of plan execution runs in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		toolCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plan_tool_calls_total",
				Help: "Total tool calls consumed during plan execution by tool name",
			},
			[]string{"tool"},
		),
		patchOps: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patch_operations_total",
				Help: "Total patch accept/reject operations by kind and path taken",
			},
			[]string{"op", "path"},
		),
		publishFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "event_publish_failures_total",
				Help: "Total swallowed event publish failures",
			},
		),
	}
}

// ObserveReplaceAttempt records one str_replace attempt.
func (r *Recorder) ObserveReplaceAttempt(found bool) {
	r.replaceAttempts.WithLabelValues(strconv.FormatBool(found)).Inc()
}

// ObservePlanTransition records one plan status transition.
func (r *Recorder) ObservePlanTransition(from, to string) {
	r.planTransitions.WithLabelValues(from, to).Inc()
}

// ObservePlanRun records the duration and terminal status of one run.
func (r *Recorder) ObservePlanRun(status string, d time.Duration) {
	r.planDuration.WithLabelValues(status).Observe(d.Seconds())
}

// ObserveToolCall records one consumed tool call.
func (r *Recorder) ObserveToolCall(tool string) {
	r.toolCalls.WithLabelValues(tool).Inc()
}

// ObservePatchOp records one accept/reject operation. path is
// "authoritative" or "local".
func (r *Recorder) ObservePatchOp(op, path string) {
	r.patchOps.WithLabelValues(op, path).Inc()
}

// ObservePublishFailure records one swallowed publish failure.
func (r *Recorder) ObservePublishFailure() {
	r.publishFailures.Inc()
}

var (
	defaultRecorder *Recorder
	defaultOnce     sync.Once
)

// Default returns the process-wide recorder, registering collectors on
// first use. promauto panics on duplicate registration, so the
// singleton is the only way collectors get created.
func Default() *Recorder {
	defaultOnce.Do(func() {
		defaultRecorder = NewRecorder()
	})
	return defaultRecorder
}

// RecordReplaceAttempt records a str_replace attempt on the default recorder.
func RecordReplaceAttempt(found bool) {
	Default().ObserveReplaceAttempt(found)
}

// RecordPlanTransition records a plan transition on the default recorder.
func RecordPlanTransition(from, to string) {
	Default().ObservePlanTransition(from, to)
}

// RecordToolCall records a tool call on the default recorder.
func RecordToolCall(tool string) {
	Default().ObserveToolCall(tool)
}

// RecordPatchOp records a patch operation on the default recorder.
func RecordPatchOp(op, path string) {
	Default().ObservePatchOp(op, path)
}

// RecordPublishFailure records a swallowed publish failure on the default recorder.
func RecordPublishFailure() {
	Default().ObservePublishFailure()
}
