// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package runner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dmakurin/redmine-reformat/pkg/types"
)

const namespace = "redmine_reformat"

// Metrics counts run progress. A nil *Metrics records nothing.
type Metrics struct {
	fields        *prometheus.CounterVec
	records       *prometheus.CounterVec
	writeRetries  prometheus.Counter
	recordSeconds prometheus.Histogram
}

// NewMetrics creates the run metrics and registers them with reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		fields: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fields_total",
				Help:      "Record fields processed, by outcome status.",
			},
			[]string{"record_type", "field", "status"},
		),
		records: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_total",
				Help:      "Records visited.",
			},
			[]string{"record_type"},
		),
		writeRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_retries_total",
			Help:      "Record writes retried after a transient store error.",
		}),
		recordSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "record_seconds",
			Help:      "Time to convert and write one record.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}
}

func (m *Metrics) observeRecord(rec types.Record, outcomes []types.FieldOutcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(rec.Type).Inc()
	for _, o := range outcomes {
		m.fields.WithLabelValues(o.RecordType, o.Field, string(o.Status)).Inc()
	}
	m.recordSeconds.Observe(elapsed.Seconds())
}

func (m *Metrics) writeRetried() {
	if m == nil {
		return
	}
	m.writeRetries.Inc()
}
