package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/lido-go/registry-reconciler/internal/registry"
)

func TestObserveCycleCommitted(t *testing.T) {
	m := New("registry_test_committed", "reconciler")
	meta := &registry.Meta{BlockNumber: 42, Timestamp: 1700}

	m.ObserveCycle("0xabc", meta, nil)

	assert.Equal(t, float64(42), testutil.ToFloat64(m.LastBlockNumber.WithLabelValues("0xabc")))
	assert.Equal(t, float64(1700), testutil.ToFloat64(m.LastBlockTimestamp.WithLabelValues("0xabc")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.UpdateTotal.WithLabelValues("0xabc", "committed")))
}

func TestObserveCycleNoop(t *testing.T) {
	m := New("registry_test_noop", "reconciler")
	m.ObserveCycle("0xabc", nil, nil)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.UpdateTotal.WithLabelValues("0xabc", "noop")))
}

func TestObserveCycleFailed(t *testing.T) {
	m := New("registry_test_failed", "reconciler")
	m.ObserveCycle("0xabc", nil, errors.New("boom"))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.UpdateTotal.WithLabelValues("0xabc", "failed")))
}
