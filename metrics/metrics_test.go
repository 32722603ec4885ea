package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveCountsOutcomes(t *testing.T) {
	before := testutil.ToFloat64(counter("test", "add", OutcomeSuccess))

	Observe("test", "add", time.Now(), true)
	Observe("test", "add", time.Now(), true)
	Observe("test", "add", time.Now(), false)

	assert.Equal(t, before+2, testutil.ToFloat64(counter("test", "add", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(counter("test", "add", OutcomeFailure)))
}

func TestTimer(t *testing.T) {
	ok := false
	func() {
		defer Timer("timer", "get")(&ok)
		ok = true
	}()
	assert.Equal(t, 1.0, testutil.ToFloat64(counter("timer", "get", OutcomeSuccess)))
}

func TestRegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))

	Observe("reg", "count", time.Now(), true)
	n, err := testutil.GatherAndCount(reg, "descriptorstore_operations_total")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
}

func counter(backend, op, outcome string) prometheus.Counter {
	opMetrics.init()
	return opMetrics.operations.WithLabelValues(backend, op, outcome)
}
