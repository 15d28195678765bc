package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DiagnosisRequests counts diagnosis requests by outcome ("success" or "error").
	DiagnosisRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "symptom_ai_diagnosis_requests_total",
			Help: "Diagnosis requests sent to the hosted model, by outcome",
		},
		[]string{"outcome"},
	)

	DiagnosisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "symptom_ai_diagnosis_duration_seconds",
			Help:    "Latency of diagnosis requests",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		},
	)

	ChatTurns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "symptom_ai_chat_turns_total",
			Help: "Follow-up chat turns, by outcome",
		},
		[]string{"outcome"},
	)

	// DroppedFrames counts stream frames whose payload could not be decoded.
	DroppedFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "symptom_ai_stream_dropped_frames_total",
			Help: "Streamed response frames skipped because they failed to parse",
		},
	)
)

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeBusy    = "busy"
)
