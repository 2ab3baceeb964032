package metrics

import "time"

// StatsProvider is satisfied by lifecycle.Coordinator. Declared here
// rather than imported to avoid a metrics->lifecycle->metrics cycle.
type StatsProvider interface {
	Stats() (totalBases, validBases, activeOverlays int, err error)
}

// Collector periodically snapshots the coordinator's base and overlay
// counts into gauges. Counters (mounts, unmounts, promotions, reaps) are
// updated inline by the coordinator itself and need no polling.
type Collector struct {
	provider StatsProvider
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(provider StatsProvider) *Collector {
	return &Collector{
		provider: provider,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	total, valid, overlays, err := c.provider.Stats()
	if err != nil {
		return
	}

	BasesTotal.WithLabelValues("true").Set(float64(valid))
	BasesTotal.WithLabelValues("false").Set(float64(total - valid))
	ActiveOverlaysTotal.Set(float64(overlays))
}
