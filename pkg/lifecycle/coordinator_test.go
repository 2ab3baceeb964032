package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/baseoverlay-csi/pkg/basestore"
	"github.com/cuemby/baseoverlay-csi/pkg/clock"
	"github.com/cuemby/baseoverlay-csi/pkg/registry"
)

type fakeMount struct {
	overlayCalls []string
	overlayIDs   []string
	bindCalls    []string
	unmountCalls []string
	failOverlay  bool
	failBind     bool
}

func (f *fakeMount) Overlay(ctx context.Context, id, lowerDir, upperDir, workDir, target string) error {
	if f.failOverlay {
		return errTest
	}
	f.overlayCalls = append(f.overlayCalls, target)
	f.overlayIDs = append(f.overlayIDs, id)
	return nil
}

func (f *fakeMount) Bind(ctx context.Context, source, target string) error {
	if f.failBind {
		return errTest
	}
	f.bindCalls = append(f.bindCalls, target)
	return nil
}

func (f *fakeMount) Unmount(ctx context.Context, target string) error {
	f.unmountCalls = append(f.unmountCalls, target)
	return nil
}

type fakeProvisioner struct {
	root    string
	podUIDs map[string]string
	deleted []string
	nextUID int
}

func newFakeProvisioner(root string) *fakeProvisioner {
	return &fakeProvisioner{root: root, podUIDs: make(map[string]string)}
}

func (f *fakeProvisioner) Create(ctx context.Context, volumeID string) (string, error) {
	f.nextUID++
	uid := volumeID + "-uid"
	f.podUIDs[volumeID] = uid
	dir := f.ResolveVolumePath(uid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return uid, nil
}

func (f *fakeProvisioner) ResolveVolumePath(podUID string) string {
	return filepath.Join(f.root, podUID)
}

func (f *fakeProvisioner) Delete(ctx context.Context, volumeID string) {
	f.deleted = append(f.deleted, volumeID)
}

type testErr struct{ msg string }

func (e *testErr) Error() string { return e.msg }

var errTest = &testErr{"induced failure"}

// mutableClock lets a test advance time after bases/coordinators have
// already been constructed, to exercise expiry-while-in-use scenarios.
type mutableClock struct{ t time.Time }

func (m *mutableClock) Now() time.Time { return m.t }

func newTestCoordinator(t *testing.T, now time.Time, maxAge time.Duration) (*Coordinator, *basestore.Store, *fakeMount, *fakeProvisioner) {
	t.Helper()
	basesRoot := t.TempDir()
	scratchRoot := t.TempDir()

	store := basestore.New(basesRoot, maxAge, clock.Fixed(now))
	reg := registry.New()
	mount := &fakeMount{}
	prov := newFakeProvisioner(scratchRoot)

	return New(store, reg, mount, prov, clock.Fixed(now)), store, mount, prov
}

func TestMountBindsWhenNoValidBase(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c, _, mount, _ := newTestCoordinator(t, now, time.Hour)

	target := filepath.Join(t.TempDir(), "target")
	if err := c.Mount(context.Background(), "vol-A", target); err != nil {
		t.Fatalf("mount: %v", err)
	}
	if len(mount.bindCalls) != 1 || len(mount.overlayCalls) != 0 {
		t.Fatalf("expected a single bind mount, got binds=%v overlays=%v", mount.bindCalls, mount.overlayCalls)
	}
}

func TestMountOverlaysWhenValidBaseExists(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c, store, mount, _ := newTestCoordinator(t, now, time.Hour)

	baseDir := filepath.Join(store.Root(), "existing-base")
	if err := os.Mkdir(baseDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := basestore.WriteMarker(baseDir, now.Add(-time.Minute)); err != nil {
		t.Fatalf("write marker: %v", err)
	}

	target := filepath.Join(t.TempDir(), "target")
	if err := c.Mount(context.Background(), "vol-A", target); err != nil {
		t.Fatalf("mount: %v", err)
	}
	if len(mount.overlayCalls) != 1 || len(mount.bindCalls) != 0 {
		t.Fatalf("expected a single overlay mount, got binds=%v overlays=%v", mount.bindCalls, mount.overlayCalls)
	}
	if len(mount.overlayIDs) != 1 || mount.overlayIDs[0] != "vol-A" {
		t.Fatalf("expected overlay source to be the volume ID, got %v", mount.overlayIDs)
	}
}

func TestUnmountPromotesScratchWhenMarked(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c, store, _, prov := newTestCoordinator(t, now, time.Hour)

	target := filepath.Join(t.TempDir(), "target")
	if err := c.Mount(context.Background(), "vol-A", target); err != nil {
		t.Fatalf("mount: %v", err)
	}

	volumeDir := prov.ResolveVolumePath(prov.podUIDs["vol-A"])
	if err := basestore.WriteMarker(volumeDir, now); err != nil {
		t.Fatalf("write marker: %v", err)
	}

	if err := c.Unmount(context.Background(), "vol-A", target); err != nil {
		t.Fatalf("unmount: %v", err)
	}

	base, ok, err := store.FindValidBase()
	if err != nil {
		t.Fatalf("find valid base: %v", err)
	}
	if !ok || base.ID != "vol-A" {
		t.Fatalf("expected vol-A to have been promoted into a base, got %+v ok=%v", base, ok)
	}
	if len(prov.deleted) != 1 || prov.deleted[0] != "vol-A" {
		t.Fatalf("expected scratch pod to be deleted, got %v", prov.deleted)
	}
}

func TestUnmountDoesNotPromoteOverlayVolumes(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c, store, _, _ := newTestCoordinator(t, now, time.Hour)

	baseDir := filepath.Join(store.Root(), "existing-base")
	if err := os.Mkdir(baseDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := basestore.WriteMarker(baseDir, now.Add(-time.Minute)); err != nil {
		t.Fatalf("write marker: %v", err)
	}

	target := filepath.Join(t.TempDir(), "target")
	if err := c.Mount(context.Background(), "vol-A", target); err != nil {
		t.Fatalf("mount: %v", err)
	}
	if err := c.Unmount(context.Background(), "vol-A", target); err != nil {
		t.Fatalf("unmount: %v", err)
	}

	bases, err := store.Enumerate()
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	if len(bases) != 1 {
		t.Fatalf("expected only the original base to remain, got %+v", bases)
	}
}

func TestReapDeletesExpiredUnreferencedBases(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c, store, _, _ := newTestCoordinator(t, now, time.Hour)

	expiredDir := filepath.Join(store.Root(), "expired")
	if err := os.Mkdir(expiredDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := basestore.WriteMarker(expiredDir, now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("write marker: %v", err)
	}

	if err := c.Reap(); err != nil {
		t.Fatalf("reap: %v", err)
	}

	if _, err := os.Stat(expiredDir); !os.IsNotExist(err) {
		t.Fatalf("expected expired base to be deleted, err=%v", err)
	}
}

func TestReapPreservesInUseExpiredBase(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mc := &mutableClock{t: now}
	maxAge := time.Hour

	basesRoot := t.TempDir()
	scratchRoot := t.TempDir()
	store := basestore.New(basesRoot, maxAge, mc)
	reg := registry.New()
	mount := &fakeMount{}
	prov := newFakeProvisioner(scratchRoot)
	c := New(store, reg, mount, prov, mc)

	baseDir := filepath.Join(store.Root(), "base-a")
	if err := os.Mkdir(baseDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := basestore.WriteMarker(baseDir, now.Add(-30*time.Minute)); err != nil {
		t.Fatalf("write marker: %v", err)
	}

	target := filepath.Join(t.TempDir(), "target")
	if err := c.Mount(context.Background(), "vol-A", target); err != nil {
		t.Fatalf("mount: %v", err)
	}
	if len(mount.overlayCalls) != 1 {
		t.Fatalf("expected overlay mount against base-a, got %v", mount.overlayCalls)
	}

	// Advance time past expiry without unmounting: base-a is still
	// associated with vol-A and must survive a reap pass.
	mc.t = now.Add(2 * time.Hour)

	if err := c.Reap(); err != nil {
		t.Fatalf("reap: %v", err)
	}
	if _, err := os.Stat(baseDir); err != nil {
		t.Fatalf("expected in-use base to survive reap: %v", err)
	}
}
