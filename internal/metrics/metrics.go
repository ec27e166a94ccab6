// Package metrics exposes Prometheus instruments for the ledger.
//
// A nil *Recorder is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result labels.
const (
	ResultCreated = "created"
	ResultUpdated = "updated"
	ResultError   = "error"
	ResultOK      = "ok"
	ResultSkipped = "skipped"
)

// Recorder holds the ledger instruments registered on one registry.
type Recorder struct {
	upserts         *prometheus.CounterVec
	finalize        *prometheus.CounterVec
	persistDuration prometheus.Histogram
	persistFailures prometheus.Counter
	corruptResets   prometheus.Counter
}

// New creates the instruments and registers them on reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		upserts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_upserts_total",
				Help: "Event upserts by source, type and result.",
			},
			[]string{"source", "type", "result"},
		),
		finalize: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_finalize_total",
				Help: "Asset finalize calls by result.",
			},
			[]string{"result"},
		),
		persistDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ledger_persist_duration_seconds",
				Help:    "Time spent serializing and writing the event collection.",
				Buckets: prometheus.DefBuckets,
			},
		),
		persistFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_persist_failures_total",
				Help: "Collection writes that failed.",
			},
		),
		corruptResets: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_corrupt_collection_resets_total",
				Help: "Loads that found an unparseable or wrong-shaped collection file.",
			},
		),
	}
	reg.MustRegister(r.upserts, r.finalize, r.persistDuration, r.persistFailures, r.corruptResets)
	return r
}

// Upsert counts one upsert outcome.
func (r *Recorder) Upsert(source, typ, result string) {
	if r == nil {
		return
	}
	r.upserts.WithLabelValues(source, typ, result).Inc()
}

// Finalize counts one finalize outcome.
func (r *Recorder) Finalize(result string) {
	if r == nil {
		return
	}
	r.finalize.WithLabelValues(result).Inc()
}

// ObservePersist records how long a collection write took and whether it failed.
func (r *Recorder) ObservePersist(d time.Duration, err error) {
	if r == nil {
		return
	}
	r.persistDuration.Observe(d.Seconds())
	if err != nil {
		r.persistFailures.Inc()
	}
}

// CorruptReset counts a corruption-guard reset.
func (r *Recorder) CorruptReset() {
	if r == nil {
		return
	}
	r.corruptResets.Inc()
}
