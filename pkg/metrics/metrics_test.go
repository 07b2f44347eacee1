package metrics

import (
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

var _ = Describe("Metrics", func() {
	It("records a generation request", func() {
		initial := testutil.ToFloat64(GenerationsRequestedTotal)
		RecordGenerationRequest()
		Expect(testutil.ToFloat64(GenerationsRequestedTotal)).To(Equal(initial + 1.0))
		RecordGenerationRequest()
		Expect(testutil.ToFloat64(GenerationsRequestedTotal)).To(Equal(initial + 2.0))
	})

	It("records a fix attempt", func() {
		fixType := "test_missing_required_section"
		initial := testutil.ToFloat64(FixAttemptsTotal.WithLabelValues(fixType))
		RecordFixAttempt(fixType, 500*time.Millisecond)
		Expect(testutil.ToFloat64(FixAttemptsTotal.WithLabelValues(fixType))).To(Equal(initial + 1.0))
	})

	It("records an LLM generation duration", func() {
		RecordLLMGeneration(2 * time.Second)

		metric := &dto.Metric{}
		Expect(LLMGenerationDuration.Write(metric)).To(Succeed())
		Expect(metric.GetHistogram().GetSampleCount()).To(BeNumerically(">", 0))
	})

	It("records a rejected artifact", func() {
		reason := "policy_violation"
		initial := testutil.ToFloat64(ArtifactsRejectedTotal.WithLabelValues(reason))
		RecordArtifactRejected(reason)
		Expect(testutil.ToFloat64(ArtifactsRejectedTotal.WithLabelValues(reason))).To(Equal(initial + 1.0))
	})

	It("records a fix attempt error", func() {
		fixType := "test_variable_mismatch"
		errorType := "llm_timeout"
		initial := testutil.ToFloat64(FixAttemptErrorsTotal.WithLabelValues(fixType, errorType))
		RecordFixAttemptError(fixType, errorType)
		Expect(testutil.ToFloat64(FixAttemptErrorsTotal.WithLabelValues(fixType, errorType))).To(Equal(initial + 1.0))
	})

	It("records an LLM API call", func() {
		provider := "test_local"
		initial := testutil.ToFloat64(LLMAPICallsTotal.WithLabelValues(provider))
		RecordLLMAPICall(provider)
		Expect(testutil.ToFloat64(LLMAPICallsTotal.WithLabelValues(provider))).To(Equal(initial + 1.0))
	})

	It("records an LLM API error", func() {
		provider := "test_local"
		errorType := "timeout"
		initial := testutil.ToFloat64(LLMAPIErrorsTotal.WithLabelValues(provider, errorType))
		RecordLLMAPIError(provider, errorType)
		Expect(testutil.ToFloat64(LLMAPIErrorsTotal.WithLabelValues(provider, errorType))).To(Equal(initial + 1.0))
	})

	It("records a registry API call", func() {
		operation := "test_check_exists"
		initial := testutil.ToFloat64(RegistryAPICallsTotal.WithLabelValues(operation))
		RecordRegistryAPICall(operation)
		Expect(testutil.ToFloat64(RegistryAPICallsTotal.WithLabelValues(operation))).To(Equal(initial + 1.0))
	})

	It("sets the fix-loop gauge", func() {
		SetArtifactSetsInFixLoop(5.0)
		Expect(testutil.ToFloat64(ArtifactSetsInFixLoopTotal)).To(Equal(5.0))
		SetArtifactSetsInFixLoop(3.0)
		Expect(testutil.ToFloat64(ArtifactSetsInFixLoopTotal)).To(Equal(3.0))
	})

	It("increments and decrements the concurrent-generations gauge", func() {
		initial := testutil.ToFloat64(ConcurrentGenerationsRunning)

		IncrementConcurrentGenerations()
		Expect(testutil.ToFloat64(ConcurrentGenerationsRunning)).To(Equal(initial + 1.0))

		IncrementConcurrentGenerations()
		Expect(testutil.ToFloat64(ConcurrentGenerationsRunning)).To(Equal(initial + 2.0))

		DecrementConcurrentGenerations()
		Expect(testutil.ToFloat64(ConcurrentGenerationsRunning)).To(Equal(initial + 1.0))

		DecrementConcurrentGenerations()
		Expect(testutil.ToFloat64(ConcurrentGenerationsRunning)).To(Equal(initial))
	})

	It("records webhook requests by outcome", func() {
		initialSuccess := testutil.ToFloat64(WebhookRequestsTotal.WithLabelValues("success"))
		initialError := testutil.ToFloat64(WebhookRequestsTotal.WithLabelValues("error"))

		RecordWebhookRequest("success")
		Expect(testutil.ToFloat64(WebhookRequestsTotal.WithLabelValues("success"))).To(Equal(initialSuccess + 1.0))

		RecordWebhookRequest("error")
		Expect(testutil.ToFloat64(WebhookRequestsTotal.WithLabelValues("error"))).To(Equal(initialError + 1.0))
	})

	Describe("Timer", func() {
		It("tracks elapsed time", func() {
			timer := NewTimer()
			Expect(timer).NotTo(BeNil())
			Expect(timer.start.IsZero()).To(BeFalse())

			time.Sleep(10 * time.Millisecond)

			elapsed := timer.Elapsed()
			Expect(elapsed).To(BeNumerically(">=", 10*time.Millisecond))
			Expect(elapsed).To(BeNumerically("<", 200*time.Millisecond))
		})

		It("records a fix attempt via the timer", func() {
			timer := NewTimer()
			fixType := "test_timer_fix"
			initial := testutil.ToFloat64(FixAttemptsTotal.WithLabelValues(fixType))

			time.Sleep(10 * time.Millisecond)
			timer.RecordFixAttempt(fixType)

			Expect(testutil.ToFloat64(FixAttemptsTotal.WithLabelValues(fixType))).To(Equal(initial + 1.0))
		})

		It("records an LLM generation via the timer", func() {
			timer := NewTimer()
			time.Sleep(10 * time.Millisecond)
			timer.RecordLLMGeneration()

			metric := &dto.Metric{}
			Expect(LLMGenerationDuration.Write(metric)).To(Succeed())
			Expect(metric.GetHistogram().GetSampleCount()).To(BeNumerically(">", 0))
		})
	})

	It("records multiple distinct fix types independently", func() {
		fixTypes := []string{"test_section_a", "test_section_b", "test_section_c"}
		initialValues := make(map[string]float64)
		for _, ft := range fixTypes {
			initialValues[ft] = testutil.ToFloat64(FixAttemptsTotal.WithLabelValues(ft))
		}

		for _, ft := range fixTypes {
			RecordFixAttempt(ft, 100*time.Millisecond)
		}

		for _, ft := range fixTypes {
			Expect(testutil.ToFloat64(FixAttemptsTotal.WithLabelValues(ft))).To(Equal(initialValues[ft] + 1.0))
		}
	})

	It("simulates a full generation workflow", func() {
		fixType := "test_integration_fix"
		provider := "test_integration_local"

		initialGenerations := testutil.ToFloat64(GenerationsRequestedTotal)
		initialFixes := testutil.ToFloat64(FixAttemptsTotal.WithLabelValues(fixType))
		initialLLMCalls := testutil.ToFloat64(LLMAPICallsTotal.WithLabelValues(provider))
		initialWebhook := testutil.ToFloat64(WebhookRequestsTotal.WithLabelValues("success"))
		initialConcurrent := testutil.ToFloat64(ConcurrentGenerationsRunning)

		RecordWebhookRequest("success")

		numRequests := 3
		for i := 0; i < numRequests; i++ {
			RecordGenerationRequest()

			RecordLLMAPICall(provider)
			RecordLLMGeneration(500 * time.Millisecond)

			IncrementConcurrentGenerations()
			RecordFixAttempt(fixType, 200*time.Millisecond)
			DecrementConcurrentGenerations()
		}

		Expect(testutil.ToFloat64(GenerationsRequestedTotal)).To(Equal(initialGenerations + float64(numRequests)))
		Expect(testutil.ToFloat64(FixAttemptsTotal.WithLabelValues(fixType))).To(Equal(initialFixes + float64(numRequests)))
		Expect(testutil.ToFloat64(LLMAPICallsTotal.WithLabelValues(provider))).To(Equal(initialLLMCalls + float64(numRequests)))
		Expect(testutil.ToFloat64(WebhookRequestsTotal.WithLabelValues("success"))).To(Equal(initialWebhook + 1.0))
		Expect(testutil.ToFloat64(ConcurrentGenerationsRunning)).To(Equal(initialConcurrent))
	})

	It("follows Prometheus metric naming conventions", func() {
		metricNames := []string{
			"generations_requested_total",
			"fix_attempts_total",
			"fix_attempt_duration_seconds",
			"llm_generation_duration_seconds",
			"artifacts_rejected_total",
			"fix_attempt_errors_total",
			"llm_api_calls_total",
			"llm_api_errors_total",
			"registry_api_calls_total",
			"artifact_sets_in_fix_loop_total",
			"concurrent_generations_running",
			"webhook_requests_total",
		}

		for _, name := range metricNames {
			Expect(name).NotTo(ContainSubstring("-"))
			Expect(name).NotTo(ContainSubstring(" "))

			if strings.Contains(name, "duration") {
				Expect(name).To(HaveSuffix("_seconds"))
			}

			if strings.Contains(name, "requested") || strings.Contains(name, "attempts") ||
				strings.Contains(name, "rejected") || strings.Contains(name, "errors") ||
				strings.Contains(name, "calls") || strings.Contains(name, "requests") {
				Expect(name).To(HaveSuffix("_total"))
			}
		}
	})

	Describe("SanitizeFailureReason", func() {
		It("passes through known reasons", func() {
			Expect(SanitizeFailureReason("policy_violation")).To(Equal("policy_violation"))
			Expect(SanitizeFailureReason("Image_Unavailable")).To(Equal("image_unavailable"))
		})

		It("collapses unknown reasons to other", func() {
			Expect(SanitizeFailureReason("some highly specific one-off message")).To(Equal("other"))
		})
	})
})
