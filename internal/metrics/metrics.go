// Package metrics exposes Prometheus collectors for the assistant pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "credence"

var (
	// Requests counts handled chat requests by outcome (ok, listing, apology, error).
	Requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Chat requests handled, by outcome.",
		},
		[]string{"outcome"},
	)

	// Intents counts detected intents by kind.
	Intents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_total",
			Help:      "Detected message intents, by kind.",
		},
		[]string{"kind"},
	)

	// Extractions counts document extractions by format and result.
	Extractions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Document extractions, by format and result.",
		},
		[]string{"format", "result"},
	)

	// Fragments counts the representation chosen for each resolved document.
	Fragments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_fragments_total",
			Help:      "Document fragments attached to model context, by strategy.",
		},
		[]string{"strategy"},
	)

	// Commands counts executed commands by kind and outcome.
	Commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Parsed model commands, by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	// TasksCreated counts task records written by commands.
	TasksCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_created_total",
			Help:      "Task records created by assignment commands.",
		},
	)

	// ModelCalls observes language-model call latency by operation and result.
	ModelCalls = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_call_seconds",
			Help:      "Language-model call latency, by operation and result.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"op", "result"},
	)

	// InjectedBytes observes the document text injected per request.
	InjectedBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "context_injected_bytes",
			Help:      "Document text bytes injected into model context per request.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		},
	)
)

func init() {
	prometheus.MustRegister(Requests)
	prometheus.MustRegister(Intents)
	prometheus.MustRegister(Extractions)
	prometheus.MustRegister(Fragments)
	prometheus.MustRegister(Commands)
	prometheus.MustRegister(TasksCreated)
	prometheus.MustRegister(ModelCalls)
	prometheus.MustRegister(InjectedBytes)
}

// ObserveModelCall records one model call started at start.
func ObserveModelCall(op string, start time.Time, err error) {
	ModelCalls.WithLabelValues(op, result(err)).Observe(time.Since(start).Seconds())
}

// ObserveExtraction records one extraction attempt.
func ObserveExtraction(format string, ok bool) {
	r := "ok"
	if !ok {
		r = "unreadable"
	}
	Extractions.WithLabelValues(format, r).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
