// Package metrics exposes Prometheus metrics for baseoverlay-csi: base
// lifecycle counts, mount/unmount outcomes, and operation latency.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BasesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "baseoverlay_bases_total",
			Help: "Total number of bases on disk by validity",
		},
		[]string{"valid"},
	)

	ActiveOverlaysTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "baseoverlay_active_overlays_total",
			Help: "Total number of currently mounted overlay volumes",
		},
	)

	MountsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "baseoverlay_mounts_total",
			Help: "Total number of NodePublishVolume calls by mount kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	UnmountsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "baseoverlay_unmounts_total",
			Help: "Total number of NodeUnpublishVolume calls by outcome",
		},
		[]string{"outcome"},
	)

	PromotionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "baseoverlay_promotions_total",
			Help: "Total number of scratch volumes promoted into bases",
		},
	)

	ReapedBasesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "baseoverlay_reaped_bases_total",
			Help: "Total number of expired bases deleted by the reaper",
		},
	)

	MountDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "baseoverlay_mount_duration_seconds",
			Help:    "Time taken to service a NodePublishVolume call",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	UnmountDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "baseoverlay_unmount_duration_seconds",
			Help:    "Time taken to service a NodeUnpublishVolume call",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReapDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "baseoverlay_reap_duration_seconds",
			Help:    "Time taken for one reap pass",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(BasesTotal)
	prometheus.MustRegister(ActiveOverlaysTotal)
	prometheus.MustRegister(MountsTotal)
	prometheus.MustRegister(UnmountsTotal)
	prometheus.MustRegister(PromotionsTotal)
	prometheus.MustRegister(ReapedBasesTotal)
	prometheus.MustRegister(MountDuration)
	prometheus.MustRegister(UnmountDuration)
	prometheus.MustRegister(ReapDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
