package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// PromSink mirrors telemetry entries into prometheus metrics, served by
// the run's control endpoint.
type PromSink struct {
	runsStarted  prometheus.Counter
	runsFinished *prometheus.CounterVec
	stepsTotal   *prometheus.CounterVec
	retriesTotal *prometheus.CounterVec
	loopCapped   *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	tokensTotal  prometheus.Counter
	costUSD      prometheus.Counter
}

// NewPromSink creates the metric vectors and registers them.
func NewPromSink(reg prometheus.Registerer) *PromSink {
	s := &PromSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "draftsmith_runs_started_total",
			Help: "Runs started or resumed",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "draftsmith_runs_finished_total",
			Help: "Runs reaching a terminal status",
		}, []string{"status"}),
		stepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "draftsmith_steps_total",
			Help: "Step executions by outcome",
		}, []string{"step", "status"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "draftsmith_retries_total",
			Help: "Provider retries after transient failures",
		}, []string{"step"}),
		loopCapped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "draftsmith_loop_capped_total",
			Help: "Loops advanced by hitting their pass ceiling",
		}, []string{"step"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "draftsmith_step_duration_seconds",
			Help:    "Wall time per completed step",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"step"}),
		tokensTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "draftsmith_tokens_total",
			Help: "Tokens consumed across all steps",
		}),
		costUSD: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "draftsmith_cost_usd_total",
			Help: "Estimated provider spend in USD",
		}),
	}

	reg.MustRegister(
		s.runsStarted, s.runsFinished, s.stepsTotal, s.retriesTotal,
		s.loopCapped, s.stepDuration, s.tokensTotal, s.costUSD,
	)
	return s
}

// Emit updates the metrics matching the entry's event.
func (s *PromSink) Emit(ctx context.Context, entry Entry) error {
	switch entry.Event {
	case EventRunStarted, EventRunResumed:
		s.runsStarted.Inc()
	case EventStepCompleted:
		s.stepsTotal.WithLabelValues(entry.Step, "completed").Inc()
		s.stepDuration.WithLabelValues(entry.Step).Observe(float64(entry.DurationMS) / 1000)
		s.tokensTotal.Add(float64(entry.Tokens))
		s.costUSD.Add(entry.CostUSD)
	case EventStepFailed:
		s.stepsTotal.WithLabelValues(entry.Step, "failed").Inc()
	case EventRetry:
		s.retriesTotal.WithLabelValues(entry.Step).Inc()
	case EventLoopCapped:
		s.loopCapped.WithLabelValues(entry.Step).Inc()
	case EventRunCompleted:
		s.runsFinished.WithLabelValues("completed").Inc()
	case EventRunAborted:
		s.runsFinished.WithLabelValues("aborted").Inc()
	case EventRunFailed:
		s.runsFinished.WithLabelValues("failed").Inc()
	}
	return nil
}

// Close is a no-op; metrics live until the process exits.
func (s *PromSink) Close() error {
	return nil
}

var _ Sink = (*PromSink)(nil)
