// Package metrics exposes Prometheus collectors for the playback pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "promptdj"

var (
	// Backend session
	Connects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "connects_total",
		Help:      "Streaming sessions opened against the music backend",
	})

	ConnectionErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "connection_errors_total",
		Help:      "Sessions ended by a backend error or close",
	})

	PromptUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "prompt_updates_total",
			Help:      "Weighted prompt submissions by outcome",
		},
		[]string{"outcome"},
	)

	FilteredPrompts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "filtered_prompts_total",
		Help:      "Prompts rejected by the backend",
	})

	PlaybackState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "playback_state",
			Help:      "1 for the current playback state, 0 otherwise",
		},
		[]string{"state"},
	)

	// Audio path
	ChunksReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audio",
		Name:      "chunks_received_total",
		Help:      "Audio chunks received from the backend",
	})

	DecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audio",
		Name:      "decode_errors_total",
		Help:      "Audio chunks dropped because they failed to decode",
	})

	BuffersScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audio",
		Name:      "buffers_scheduled_total",
		Help:      "Decoded buffers placed on the output timeline",
	})

	Underruns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audio",
		Name:      "underruns_total",
		Help:      "Buffers that arrived after their scheduled start",
	})

	OutputFramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audio",
		Name:      "output_frames_dropped_total",
		Help:      "Rendered frames dropped because no consumer was ready",
	})

	// Listeners
	EncodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "encode_errors_total",
			Help:      "Frames a listener transport failed to encode",
		},
		[]string{"transport"},
	)

	Listeners = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "listeners",
			Help:      "Connected audio listeners by transport",
		},
		[]string{"transport"},
	)
)
