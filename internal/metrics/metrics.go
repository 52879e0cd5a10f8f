package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsTotal counts processed events by outcome
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grouping_events_total",
			Help: "Total number of events processed by outcome",
		},
		[]string{"result"},
	)

	// RuleMatches counts events grouped by each rule, labeled by rule index
	RuleMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grouping_rule_matches_total",
			Help: "Total number of events grouped by a fingerprinting rule",
		},
		[]string{"rule"},
	)

	// RulesLoaded is the size of the active rule set
	RulesLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "grouping_rules_loaded",
			Help: "Number of fingerprinting rules currently active",
		},
	)

	// RuleReloads counts rule reload attempts by status
	RuleReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grouping_rule_reloads_total",
			Help: "Total number of rule reloads by status",
		},
		[]string{"status"},
	)

	// OutputErrors counts failed output writes, labeled by output kind
	OutputErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grouping_output_errors_total",
			Help: "Total number of failed output writes by output",
		},
		[]string{"output"},
	)

	// DroppedEvents counts events discarded by a full async buffer
	DroppedEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grouping_output_dropped_total",
			Help: "Total number of grouped events dropped by a full output buffer",
		},
	)

	// ProcessDuration tracks per-event grouping duration
	ProcessDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "grouping_process_duration_seconds",
			Help:    "Event grouping duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Event outcome labels
const (
	ResultMatched = "matched"
	ResultDefault = "default"
	ResultError   = "error"
)

// Reload status labels
const (
	ReloadSuccess = "success"
	ReloadFailure = "failure"
)
