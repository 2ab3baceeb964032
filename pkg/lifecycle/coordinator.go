package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cuemby/baseoverlay-csi/pkg/basestore"
	"github.com/cuemby/baseoverlay-csi/pkg/clock"
	"github.com/cuemby/baseoverlay-csi/pkg/log"
	"github.com/cuemby/baseoverlay-csi/pkg/metrics"
	"github.com/cuemby/baseoverlay-csi/pkg/registry"
)

// MountEngine mounts and unmounts overlay and bind filesystems. Satisfied
// by pkg/mountutil; an interface here so coordinator tests never shell out.
type MountEngine interface {
	Overlay(ctx context.Context, id, lowerDir, upperDir, workDir, target string) error
	Bind(ctx context.Context, source, target string) error
	Unmount(ctx context.Context, target string) error
}

// Provisioner creates and removes the scratch pod backing a volume's
// working directory. Satisfied by pkg/provisioner.
type Provisioner interface {
	Create(ctx context.Context, volumeID string) (podUID string, err error)
	ResolveVolumePath(podUID string) string
	Delete(ctx context.Context, volumeID string)
}

// Coordinator implements the node-local publish/unpublish/reap state
// machine described by the base store and registry it holds.
type Coordinator struct {
	mu sync.Mutex

	store       *basestore.Store
	registry    *registry.Registry
	mount       MountEngine
	provisioner Provisioner
	clock       clock.Clock

	// podUIDs remembers which scratch pod backs a currently-mounted
	// volume, so Unmount can recompute that volume's scratch directory
	// without asking Kubernetes again.
	podUIDs map[string]string
}

// New constructs a Coordinator. clk may be nil, in which case the system
// clock is used.
func New(store *basestore.Store, reg *registry.Registry, mount MountEngine, prov Provisioner, clk clock.Clock) *Coordinator {
	if clk == nil {
		clk = clock.Real()
	}
	return &Coordinator{
		store:       store,
		registry:    reg,
		mount:       mount,
		provisioner: prov,
		clock:       clk,
		podUIDs:     make(map[string]string),
	}
}

// Mount publishes volumeID at target. It provisions a scratch pod before
// taking the coordinator lock (provisioning can block for seconds waiting
// on the kubelet and must not stall reaping or other mounts), then, under
// the lock, either overlays the scratch directory on top of the current
// valid base or bind-mounts it directly when no base is valid yet.
func (c *Coordinator) Mount(ctx context.Context, volumeID, target string) error {
	logger := log.WithVolumeID(volumeID)
	timer := metrics.NewTimer()

	podUID, err := c.provisioner.Create(ctx, volumeID)
	if err != nil {
		return fmt.Errorf("failed to provision scratch pod for %s: %w", volumeID, err)
	}
	volumeDir := c.provisioner.ResolveVolumePath(podUID)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.podUIDs[volumeID] = podUID

	base, ok, err := c.store.FindValidBase()
	if err != nil {
		return fmt.Errorf("failed to search for a valid base: %w", err)
	}

	if ok {
		upperDir := filepath.Join(volumeDir, "upper")
		workDir := filepath.Join(volumeDir, "work")
		if err := os.MkdirAll(upperDir, 0o755); err != nil {
			metrics.MountsTotal.WithLabelValues("overlay", "error").Inc()
			return fmt.Errorf("failed to create overlay upper dir: %w", err)
		}
		if err := os.MkdirAll(workDir, 0o755); err != nil {
			metrics.MountsTotal.WithLabelValues("overlay", "error").Inc()
			return fmt.Errorf("failed to create overlay work dir: %w", err)
		}
		if err := c.mount.Overlay(ctx, volumeID, base.Path, upperDir, workDir, target); err != nil {
			metrics.MountsTotal.WithLabelValues("overlay", "error").Inc()
			return fmt.Errorf("failed to mount overlay for %s against base %s: %w", volumeID, base.ID, err)
		}
		c.registry.Associate(base.ID, volumeID)
		metrics.MountsTotal.WithLabelValues("overlay", "success").Inc()
		timer.ObserveDurationVec(metrics.MountDuration, "overlay")
		logger.Info().Str("base", base.ID).Msg("mounted overlay volume")
		return nil
	}

	if err := c.mount.Bind(ctx, volumeDir, target); err != nil {
		metrics.MountsTotal.WithLabelValues("bind", "error").Inc()
		return fmt.Errorf("failed to bind mount scratch volume %s: %w", volumeID, err)
	}
	metrics.MountsTotal.WithLabelValues("bind", "success").Inc()
	timer.ObserveDurationVec(metrics.MountDuration, "bind")
	logger.Info().Msg("no valid base available, bind-mounted scratch volume")
	return nil
}

// Unmount unpublishes volumeID from target. If the volume was not an
// overlay and no valid base currently exists, and the scratch directory
// has been marked eligible for promotion, it is promoted into a new base
// before the mount is torn down. Promotion happens under the same lock
// that guards reaping, so a reap pass can never observe a base mid-rename.
func (c *Coordinator) Unmount(ctx context.Context, volumeID, target string) error {
	logger := log.WithVolumeID(volumeID)
	timer := metrics.NewTimer()

	c.mu.Lock()
	podUID, hadPod := c.podUIDs[volumeID]
	isOverlay := c.registry.IsOverlay(volumeID)
	_, hasValidBase, err := c.store.FindValidBase()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to search for a valid base: %w", err)
	}

	if !isOverlay && !hasValidBase && hadPod {
		volumeDir := c.provisioner.ResolveVolumePath(podUID)
		if basestore.HasMarker(volumeDir) {
			base, err := c.store.Promote(volumeDir, volumeID, c.clock.Now())
			if err != nil {
				logger.Error().Err(err).Msg("failed to promote scratch volume into a base")
			} else {
				metrics.PromotionsTotal.Inc()
				logger.Info().Str("base", base.ID).Msg("promoted scratch volume into a new base")
			}
		}
	}

	c.registry.Dissociate(volumeID)
	delete(c.podUIDs, volumeID)
	c.mu.Unlock()

	if err := c.mount.Unmount(ctx, target); err != nil {
		metrics.UnmountsTotal.WithLabelValues("error").Inc()
		logger.Warn().Err(err).Msg("unmount command failed, continuing with teardown")
	} else {
		metrics.UnmountsTotal.WithLabelValues("success").Inc()
	}
	timer.ObserveDuration(metrics.UnmountDuration)

	c.provisioner.Delete(ctx, volumeID)
	return nil
}

// Reap deletes every base that is both expired and unreferenced. It is
// the body of the background reap loop in reaper.go, but is also exported
// so tests and operators can trigger a single pass on demand.
func (c *Coordinator) Reap() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReapDuration)

	bases, err := c.store.Enumerate()
	if err != nil {
		return fmt.Errorf("failed to enumerate bases for reaping: %w", err)
	}

	ids := make([]string, len(bases))
	byID := make(map[string]basestore.Base, len(bases))
	for i, b := range bases {
		ids[i] = b.ID
		byID[b.ID] = b
	}

	for _, id := range c.registry.EmptyEntries(ids) {
		base := byID[id]
		if c.store.Valid(base) {
			continue
		}
		if err := c.store.Delete(base); err != nil {
			log.WithBase(base.ID).Error().Err(err).Msg("failed to delete expired base")
			continue
		}
		c.registry.Remove(base.ID)
		metrics.ReapedBasesTotal.Inc()
		log.WithBase(base.ID).Info().Msg("reaped expired base")
	}
	return nil
}

// Stats reports the current base and overlay counts for the metrics
// collector. It takes the same lock as Mount/Unmount/Reap so a snapshot is
// always internally consistent.
func (c *Coordinator) Stats() (totalBases, validBases, activeOverlays int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bases, err := c.store.Enumerate()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to enumerate bases: %w", err)
	}

	valid := 0
	for _, b := range bases {
		if c.store.Valid(b) {
			valid++
		}
	}

	return len(bases), valid, c.registry.TotalAssociations(), nil
}
