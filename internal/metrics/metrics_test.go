package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.Upsert("pbx", "call", ResultCreated)
	r.Upsert("pbx", "call", ResultUpdated)
	r.Upsert("pbx", "call", ResultUpdated)
	r.Finalize(ResultSkipped)
	r.ObservePersist(5*time.Millisecond, nil)
	r.ObservePersist(5*time.Millisecond, errors.New("disk full"))
	r.CorruptReset()

	assert.Equal(t, 1.0, testutil.ToFloat64(r.upserts.WithLabelValues("pbx", "call", ResultCreated)))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.upserts.WithLabelValues("pbx", "call", ResultUpdated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.finalize.WithLabelValues(ResultSkipped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.persistFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.corruptResets))
	assert.Equal(t, 3, testutil.CollectAndCount(r.upserts))
	n, err := testutil.GatherAndCount(reg, "ledger_persist_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Upsert("a", "b", ResultError)
		r.Finalize(ResultOK)
		r.ObservePersist(time.Second, nil)
		r.CorruptReset()
	})
}
