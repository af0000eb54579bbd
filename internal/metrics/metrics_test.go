package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NilRegistryDisablesMetrics(t *testing.T) {
	m := New(nil)
	assert.Nil(t, m)

	// Methods on a nil *Metrics are no-ops.
	m.ObserveEvent("default", true, true, time.Millisecond)
	m.SetChainRules("default", 3)
	m.LoadFailed("default", "EMPTY_CHAIN")
}

func TestObserveEvent(t *testing.T) {
	m := New(prometheus.NewRegistry())
	require.NotNil(t, m)

	m.ObserveEvent("chat", true, false, time.Millisecond)
	m.ObserveEvent("chat", true, true, time.Millisecond)
	m.ObserveEvent("chat", false, false, time.Millisecond)
	m.ObserveEvent("sign", false, false, time.Millisecond)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.eventsTotal.WithLabelValues("chat")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.matchedTotal.WithLabelValues("chat")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cancelledTotal.WithLabelValues("chat")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsTotal.WithLabelValues("sign")))
}

func TestSetChainRules(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SetChainRules("chat", 12)
	m.SetChainRules("chat", 4)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.chainRules.WithLabelValues("chat")))
}

func TestLoadFailed_Exposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.LoadFailed("chat", "SOURCE_NOT_FOUND")

	expected := `
# HELP chainfilter_load_errors_total Chain loads that failed
# TYPE chainfilter_load_errors_total counter
chainfilter_load_errors_total{chain="chat",code="SOURCE_NOT_FOUND"} 1
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "chainfilter_load_errors_total")
	assert.NoError(t, err)
}

func TestNew_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
