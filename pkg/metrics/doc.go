/*
Package metrics defines and registers the plugin's Prometheus metrics and a
small Timer helper for observing call durations into them.

# Architecture

Counters that track discrete events (mounts, unmounts, promotions, reaps)
are incremented inline by the code that performs the event, in
pkg/lifecycle. Gauges that reflect standing state (base counts, active
overlay counts) are instead snapshotted on a timer by Collector, since no
single call site owns a gauge's value the way an event owns a counter
increment.

All metrics are registered against the default Prometheus registry at
package init and exposed by Handler, which pkg/healthz mounts at /metrics.

# Metrics Catalog

baseoverlay_bases_total{valid}:
  - Type: Gauge
  - Description: Number of bases on disk, partitioned by whether they are
    still within max-base-age.
  - Labels: valid ("true" or "false")

baseoverlay_active_overlays_total:
  - Type: Gauge
  - Description: Number of volumes currently mounted as an overlay against
    a base, i.e. tracked in the registry.

baseoverlay_mounts_total{kind, outcome}:
  - Type: Counter
  - Description: NodePublishVolume calls, partitioned by mount kind
    ("overlay" or "bind") and outcome ("success" or "error").

baseoverlay_unmounts_total{outcome}:
  - Type: Counter
  - Description: NodeUnpublishVolume calls by outcome.

baseoverlay_promotions_total:
  - Type: Counter
  - Description: Scratch volumes promoted into a new base on unpublish.

baseoverlay_reaped_bases_total:
  - Type: Counter
  - Description: Expired, unreferenced bases deleted by the reaper.

baseoverlay_mount_duration_seconds{kind}:
  - Type: Histogram
  - Description: Time to service a NodePublishVolume call, by mount kind.

baseoverlay_unmount_duration_seconds:
  - Type: Histogram
  - Description: Time to service a NodeUnpublishVolume call.

baseoverlay_reap_duration_seconds:
  - Type: Histogram
  - Description: Time for one reap pass over the base store.

# Usage

	timer := metrics.NewTimer()
	// ... do work ...
	timer.ObserveDurationVec(metrics.MountDuration, "overlay")

	metrics.MountsTotal.WithLabelValues("overlay", "success").Inc()
*/
package metrics
