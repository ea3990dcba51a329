// Package metrics exposes engine counters over the Prometheus client.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics methods are safe on a nil receiver so components can run without
// a registry.
type Metrics struct {
	LegsTotal        *prometheus.CounterVec
	DispatchDuration prometheus.Histogram
	SniperEvents     *prometheus.CounterVec
	VolumeTicks      *prometheus.CounterVec
	RPCReads         prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LegsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "launch_legs_total",
			Help: "Dispatched legs by action and result.",
		}, []string{"action", "result"}),
		DispatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "launch_dispatch_duration_seconds",
			Help:    "Wall time of one dispatch, first leg start to last leg done.",
			Buckets: []float64{0.5, 1, 2, 3, 5, 10, 20, 40, 80, 160},
		}),
		SniperEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "launch_sniper_events_total",
			Help: "TokenCreate events seen by the sniper, by outcome.",
		}, []string{"outcome"}),
		VolumeTicks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "launch_volume_ticks_total",
			Help: "Volume scheduler ticks, by branch.",
		}, []string{"branch"}),
		RPCReads: f.NewCounter(prometheus.CounterOpts{
			Name: "launch_rpc_reads_total",
			Help: "Read-only RPC calls issued.",
		}),
	}
}

func (m *Metrics) Leg(action, result string) {
	if m == nil {
		return
	}
	m.LegsTotal.WithLabelValues(action, result).Inc()
}

func (m *Metrics) Dispatch(d time.Duration) {
	if m == nil {
		return
	}
	m.DispatchDuration.Observe(d.Seconds())
}

func (m *Metrics) SniperEvent(outcome string) {
	if m == nil {
		return
	}
	m.SniperEvents.WithLabelValues(outcome).Inc()
}

func (m *Metrics) VolumeTick(branch string) {
	if m == nil {
		return
	}
	m.VolumeTicks.WithLabelValues(branch).Inc()
}

func (m *Metrics) RPCRead() {
	if m == nil {
		return
	}
	m.RPCReads.Inc()
}

// Serve exposes /metrics for the given gatherer until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
