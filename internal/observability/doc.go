// Package observability provides logging and metrics support for the
// harvest service.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for runs, searches, papers, and sources
//   - Context helpers for propagating observability data
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    Output:    "stdout",
//	    AddSource: true,
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("run_id", runID).Msg("harvest started")
//
// Add run context to logger:
//
//	logger = observability.WithRunContext(logger, runID)
//
// # Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics("harvest")
//
// Record metrics:
//
//	metrics.RecordRunStarted()
//	metrics.RecordSearchCompleted("arxiv", 42, 1.8)
//	metrics.RecordPapersDeduplicated(3)
//
// # Standard Fields
//
// Common fields used across the service:
//
//   - request_id: HTTP request identifier
//   - run_id: Harvest run identifier
//   - phase: Pipeline phase name
//   - source: Paper source (arxiv, semantic_scholar, openalex)
//   - keyword: Search keyword
//   - title: Paper title
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
