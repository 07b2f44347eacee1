// Package metrics defines the Prometheus instrumentation exposed by the
// generator, fixer, and supervisor loop and the helpers used to record it.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GenerationsRequestedTotal counts generation requests accepted by the
	// orchestrator.
	GenerationsRequestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "generations_requested_total",
		Help: "Total number of artifact-set generation requests accepted",
	})

	// FixAttemptsTotal counts fixer iterations by fix type (validator
	// diagnostic category).
	FixAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fix_attempts_total",
		Help: "Total number of fixer iterations, labeled by fix type",
	}, []string{"fix_type"})

	// FixAttemptDuration records how long a single fixer iteration took.
	FixAttemptDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fix_attempt_duration_seconds",
		Help:    "Duration of a single fixer iteration",
		Buckets: prometheus.DefBuckets,
	})

	// LLMGenerationDuration records how long an LLM generation call took.
	LLMGenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "llm_generation_duration_seconds",
		Help:    "Duration of an LLM generation call",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
	})

	// ArtifactsRejectedTotal counts validator rejections by reason.
	ArtifactsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artifacts_rejected_total",
		Help: "Total number of artifact sets rejected by the validator, labeled by reason",
	}, []string{"reason"})

	// FixAttemptErrorsTotal counts fixer errors by fix type and error type.
	FixAttemptErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fix_attempt_errors_total",
		Help: "Total number of fixer errors, labeled by fix type and error type",
	}, []string{"fix_type", "error_type"})

	// LLMAPICallsTotal counts LLM provider calls by provider id.
	LLMAPICallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_api_calls_total",
		Help: "Total number of LLM provider API calls, labeled by provider",
	}, []string{"provider"})

	// LLMAPIErrorsTotal counts LLM provider errors by provider id and error
	// type.
	LLMAPIErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_api_errors_total",
		Help: "Total number of LLM provider API errors, labeled by provider and error type",
	}, []string{"provider", "error_type"})

	// RegistryAPICallsTotal counts registry gateway calls by operation.
	RegistryAPICallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_api_calls_total",
		Help: "Total number of registry gateway API calls, labeled by operation",
	}, []string{"operation"})

	// ArtifactSetsInFixLoopTotal is the current number of artifact sets
	// parked in FIX_LOOP state.
	ArtifactSetsInFixLoopTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "artifact_sets_in_fix_loop_total",
		Help: "Current number of artifact sets parked in the fix loop",
	})

	// ConcurrentGenerationsRunning is the current number of generation
	// requests being processed.
	ConcurrentGenerationsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "concurrent_generations_running",
		Help: "Current number of generation requests being processed",
	})

	// WebhookRequestsTotal counts inbound webhook requests by outcome.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_requests_total",
		Help: "Total number of inbound webhook requests, labeled by outcome",
	}, []string{"status"})
)

// RecordGenerationRequest increments the generation-request counter.
func RecordGenerationRequest() {
	GenerationsRequestedTotal.Inc()
}

// RecordFixAttempt records a completed fixer iteration of the given type and
// its duration.
func RecordFixAttempt(fixType string, duration time.Duration) {
	FixAttemptsTotal.WithLabelValues(fixType).Inc()
	FixAttemptDuration.Observe(duration.Seconds())
}

// RecordLLMGeneration records the duration of a completed LLM generation
// call.
func RecordLLMGeneration(duration time.Duration) {
	LLMGenerationDuration.Observe(duration.Seconds())
}

// RecordArtifactRejected records a validator rejection.
func RecordArtifactRejected(reason string) {
	ArtifactsRejectedTotal.WithLabelValues(SanitizeFailureReason(reason)).Inc()
}

// RecordFixAttemptError records a fixer error.
func RecordFixAttemptError(fixType, errorType string) {
	FixAttemptErrorsTotal.WithLabelValues(fixType, errorType).Inc()
}

// RecordLLMAPICall records a call to an LLM provider.
func RecordLLMAPICall(provider string) {
	LLMAPICallsTotal.WithLabelValues(provider).Inc()
}

// RecordLLMAPIError records an error returned by an LLM provider.
func RecordLLMAPIError(provider, errorType string) {
	LLMAPIErrorsTotal.WithLabelValues(provider, errorType).Inc()
}

// RecordRegistryAPICall records a call to the registry gateway.
func RecordRegistryAPICall(operation string) {
	RegistryAPICallsTotal.WithLabelValues(operation).Inc()
}

// SetArtifactSetsInFixLoop sets the current fix-loop gauge value.
func SetArtifactSetsInFixLoop(count float64) {
	ArtifactSetsInFixLoopTotal.Set(count)
}

// IncrementConcurrentGenerations increments the concurrent-generations
// gauge.
func IncrementConcurrentGenerations() {
	ConcurrentGenerationsRunning.Inc()
}

// DecrementConcurrentGenerations decrements the concurrent-generations
// gauge.
func DecrementConcurrentGenerations() {
	ConcurrentGenerationsRunning.Dec()
}

// RecordWebhookRequest records an inbound webhook request outcome.
func RecordWebhookRequest(status string) {
	WebhookRequestsTotal.WithLabelValues(status).Inc()
}

// Timer measures elapsed wall time for recording into a duration metric.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the time elapsed since the timer started.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// RecordFixAttempt records the timer's elapsed duration as a fixer
// iteration of the given type.
func (t *Timer) RecordFixAttempt(fixType string) {
	RecordFixAttempt(fixType, t.Elapsed())
}

// RecordLLMGeneration records the timer's elapsed duration as an LLM
// generation call.
func (t *Timer) RecordLLMGeneration() {
	RecordLLMGeneration(t.Elapsed())
}

// knownFailureReasons bounds the cardinality of the reason label on
// ArtifactsRejectedTotal: an unrecognized reason collapses to "other"
// rather than minting a new label value per unique validator message.
var knownFailureReasons = map[string]string{
	"missing_required_section":  "missing_required_section",
	"variable_mismatch":         "variable_mismatch",
	"policy_violation":          "policy_violation",
	"image_unavailable":         "image_unavailable",
	"remote_lint_failure":       "remote_lint_failure",
	"structural_parse_failure":  "structural_parse_failure",
}

const reasonOther = "other"

// SanitizeFailureReason maps a free-form validator failure reason to a
// bounded set of label values.
func SanitizeFailureReason(reason string) string {
	normalized := strings.ToLower(strings.TrimSpace(reason))
	if mapped, ok := knownFailureReasons[normalized]; ok {
		return mapped
	}
	return reasonOther
}
