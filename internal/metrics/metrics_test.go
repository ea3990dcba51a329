package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Leg("buy", "ok")
	m.Leg("buy", "ok")
	m.Leg("sell", "failed")
	m.SniperEvent("matched")
	m.VolumeTick("topup")
	m.Dispatch(2 * time.Second)
	m.RPCRead()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LegsTotal.WithLabelValues("buy", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LegsTotal.WithLabelValues("sell", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SniperEvents.WithLabelValues("matched")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VolumeTicks.WithLabelValues("topup")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCReads))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Leg("buy", "ok")
		m.Dispatch(time.Second)
		m.SniperEvent("ignored")
		m.VolumeTick("cycle")
		m.RPCRead()
	})
}
