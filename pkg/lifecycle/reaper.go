package lifecycle

import (
	"time"

	"github.com/cuemby/baseoverlay-csi/pkg/log"
)

// cleanupInterval is the fixed cadence of the background reap loop.
const cleanupInterval = 30 * time.Second

// Reaper runs Coordinator.Reap on a fixed interval until stopped.
type Reaper struct {
	coordinator *Coordinator
	stopCh      chan struct{}
}

// NewReaper returns a Reaper that calls coordinator.Reap every
// cleanupInterval.
func NewReaper(coordinator *Coordinator) *Reaper {
	return &Reaper{
		coordinator: coordinator,
		stopCh:      make(chan struct{}),
	}
}

// Start begins the reap loop in a background goroutine. An error from Reap
// is logged and the loop continues; a single failed pass must not stop
// future expired bases from being cleaned up.
func (r *Reaper) Start() {
	ticker := time.NewTicker(cleanupInterval)
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := r.coordinator.Reap(); err != nil {
					log.WithComponent("lifecycle").Error().Err(err).Msg("reap pass failed")
				}
			case <-r.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop terminates the reap loop.
func (r *Reaper) Stop() {
	close(r.stopCh)
}
