package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oarkflow/hl7siu/pkg/parsers"
)

// ParserMetrics counts parse outcomes. It implements parsers.Observer.
type ParserMetrics struct {
	resultsTotal  *prometheus.CounterVec
	warningsTotal *prometheus.CounterVec
	parseDuration *prometheus.HistogramVec
}

func NewParserMetrics(reg prometheus.Registerer) *ParserMetrics {
	m := &ParserMetrics{
		resultsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hl7siu",
			Subsystem: "parser",
			Name:      "results_total",
			Help:      "Parsed messages by outcome",
		}, []string{"status"}),
		warningsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hl7siu",
			Subsystem: "parser",
			Name:      "warnings_total",
			Help:      "Recovered issues and failures by error kind",
		}, []string{"kind"}),
		parseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hl7siu",
			Subsystem: "parser",
			Name:      "message_duration_seconds",
			Help:      "Time spent parsing one message",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.resultsTotal, m.warningsTotal, m.parseDuration)
	return m
}

// ObserveResult records one finished message.
func (m *ParserMetrics) ObserveResult(r parsers.ParseResult, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := statusOf(r)
	m.resultsTotal.WithLabelValues(status).Inc()
	m.parseDuration.WithLabelValues(status).Observe(elapsed.Seconds())
	if r.Err != nil {
		m.warningsTotal.WithLabelValues(r.Err.Kind.String()).Inc()
	}
	for _, w := range r.Warnings {
		m.warningsTotal.WithLabelValues(w.Kind.String()).Inc()
	}
}

// WriteTextfile dumps every metric in g in the node_exporter textfile format.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return prometheus.WriteToTextfile(path, g)
}

func statusOf(r parsers.ParseResult) string {
	switch {
	case !r.OK():
		return "failed"
	case len(r.Warnings) > 0:
		return "degraded"
	default:
		return "ok"
	}
}
