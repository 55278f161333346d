package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	_ "k8s.io/component-base/metrics/prometheus/clientgo" // client-go metrics registration
)

const (
	namespace      = "mirror"
	subsystem      = "agent"
	labelKind      = "kind"
	labelEventType = "event_type"
	labelLevel     = "level"
)

var (
	Registry      = prometheus.NewRegistry()
	WatchReceived = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "watch_received_total",
		Help:      "Number of normalized events received, initial lists included.",
	}, []string{labelKind, labelEventType})

	DispatchFailures = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "dispatch_failures_total",
		Help:      "Number of items a component could not apply, e.g. deletes of unknown objects.",
	}, []string{labelKind, labelEventType})

	MalformedPayloads = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "malformed_payloads_total",
		Help:      "Number of skipped documents or items that could not be decoded.",
	}, []string{labelKind})

	Reconnects = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "reconnects_total",
		Help:      "Number of times a watch connection was re-established after a failure.",
	}, []string{labelKind})

	StoreObjects = promauto.With(Registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "store_objects_count",
		Help:      "Number of objects currently mirrored per kind.",
	}, []string{labelKind})

	ListDuration = promauto.With(Registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "list_duration_seconds",
		Help:      "Seconds taken to fetch and apply a full list.",
		Buckets:   prometheus.ExponentialBucketsRange(0.01, 120, 20),
	}, []string{labelKind})

	LogEntries = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "log_entries_total",
		Help:      "Number of log entries emitted per level.",
	}, []string{labelLevel})
)
