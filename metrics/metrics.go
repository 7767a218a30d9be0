package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	NAMESPACE = "httpfieldmerge"
)

var (
	MetricTrafficBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "traffic_bytes",
			Help:      "Bytes received by the application.",
			Namespace: NAMESPACE,
		},
		[]string{"exporter"},
	)
	MetricMessagesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "messages_processed_count",
			Help:      "Messages processed by the rewriting engine.",
			Namespace: NAMESPACE,
		},
		[]string{"exporter"},
	)
	MetricDecoderErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "decoder_error_count",
			Help:      "Messages with a structural parse error (passed through partially rewritten).",
			Namespace: NAMESPACE,
		},
		[]string{"exporter"},
	)
	MetricTemplatesInspected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "templates_inspected_count",
			Help:      "Template records seen in template sets.",
			Namespace: NAMESPACE,
		},
		[]string{"exporter", "type"},
	)
	MetricRecognitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "recognitions_count",
			Help:      "Vendor recognition runs (cache misses and redefinitions).",
			Namespace: NAMESPACE,
		},
		[]string{"exporter", "matched"},
	)
	MetricFieldsRewritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "fields_rewritten_count",
			Help:      "Field specifiers rewritten to the unified identity set.",
			Namespace: NAMESPACE,
		},
		[]string{"exporter", "vendor"},
	)
	MetricWithdrawals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "template_withdrawals_count",
			Help:      "Template withdrawals purging a memoized verdict.",
			Namespace: NAMESPACE,
		},
		[]string{"exporter"},
	)
)

func init() {
	prometheus.MustRegister(MetricTrafficBytes)
	prometheus.MustRegister(MetricMessagesProcessed)
	prometheus.MustRegister(MetricDecoderErrors)
	prometheus.MustRegister(MetricTemplatesInspected)
	prometheus.MustRegister(MetricRecognitions)
	prometheus.MustRegister(MetricFieldsRewritten)
	prometheus.MustRegister(MetricWithdrawals)
}
