package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const Namespace = "eztest"

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "requests_total",
		Help:      "Registry API calls by operation and outcome",
	}, []string{
		"operation",
		"outcome",
	})

	resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "resolutions_total",
		Help:      "Test case resolutions by the strategy that settled them",
	}, []string{
		"strategy",
	})

	resultsRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "results_recorded_total",
		Help:      "Result record calls by canonical status and outcome",
	}, []string{
		"status",
		"outcome",
	})

	importsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "imports_total",
		Help:      "Report imports by dialect and outcome",
	}, []string{
		"dialect",
		"outcome",
	})
)

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

func RecordRequest(operation string, err error) {
	requestsTotal.WithLabelValues(operation, outcome(err)).Inc()
}

func RecordResolution(strategy string) {
	resolutionsTotal.WithLabelValues(strategy).Inc()
}

func RecordResult(status string, err error) {
	resultsRecordedTotal.WithLabelValues(status, outcome(err)).Inc()
}

func RecordImport(dialect string, err error) {
	importsTotal.WithLabelValues(dialect, outcome(err)).Inc()
}

// Push sends everything registered with the default registry to a Pushgateway
// under job. Imports are short-lived, so nothing is left to scrape.
func Push(gatewayURL, job string) error {
	return push.New(gatewayURL, job).
		Gatherer(prometheus.DefaultGatherer).
		Push()
}
