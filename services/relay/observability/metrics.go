// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

// Metrics holds the relay's Prometheus instruments.
//
// Registered once against the default registry via promauto; use the
// package singleton from GetMetrics rather than constructing this.
type Metrics struct {
	// ActiveSessions tracks sessions currently streaming a response.
	ActiveSessions prometheus.Gauge

	// ChunksForwarded counts content chunks relayed to clients.
	ChunksForwarded prometheus.Counter

	// SessionsCompleted counts finalized sessions by terminal outcome
	// (complete, forced_complete, errored, cancelled).
	SessionsCompleted *prometheus.CounterVec

	// DetectionSeconds observes time from generation dispatch to the
	// watcher's verdict.
	DetectionSeconds prometheus.Histogram

	// HistoryWriteFailures counts best-effort history appends that were
	// dropped.
	HistoryWriteFailures prometheus.Counter

	// RAGSearchSeconds observes retrieval latency.
	RAGSearchSeconds prometheus.Histogram
}

var defaultMetrics = &Metrics{
	ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "aleutian",
		Subsystem: "relay",
		Name:      "active_sessions",
		Help:      "Number of chat sessions currently streaming a response.",
	}),
	ChunksForwarded: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aleutian",
		Subsystem: "relay",
		Name:      "chunks_forwarded_total",
		Help:      "Total content chunks relayed to clients.",
	}),
	SessionsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aleutian",
		Subsystem: "relay",
		Name:      "sessions_completed_total",
		Help:      "Total finalized sessions by terminal outcome.",
	}, []string{"outcome"}),
	DetectionSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "aleutian",
		Subsystem: "relay",
		Name:      "completion_detection_seconds",
		Help:      "Time from generation dispatch to completion verdict.",
		Buckets:   []float64{1, 2.5, 5, 7.5, 10, 15, 20, 30, 45},
	}),
	HistoryWriteFailures: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aleutian",
		Subsystem: "relay",
		Name:      "history_write_failures_total",
		Help:      "Total best-effort conversation history writes that failed.",
	}),
	RAGSearchSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "aleutian",
		Subsystem: "relay",
		Name:      "rag_search_seconds",
		Help:      "Latency of retrieval searches.",
		Buckets:   prometheus.DefBuckets,
	}),
}

// GetMetrics returns the process-wide Metrics singleton.
func GetMetrics() *Metrics {
	return defaultMetrics
}
