// Package provisioner creates and tears down the sidecar pods this plugin
// uses as a scratch-space provisioning trick: Kubernetes already knows how
// to give a pod a size-limited emptyDir volume on the node's local disk, so
// rather than reimplementing quota enforcement this package asks the
// kubelet to do it via a throwaway pod and then reads the resulting
// directory straight off the host filesystem.
package provisioner

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cuemby/baseoverlay-csi/pkg/log"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/utils/ptr"
)

// Provisioner creates scratch pods on this node and resolves the host path
// of the emptyDir volume they carry.
type Provisioner struct {
	client    kubernetes.Interface
	namespace string
	nodeName  string
	sizeLimit string
	podsRoot  string
}

// New returns a Provisioner bound to the given client, namespace, and node.
func New(client kubernetes.Interface, namespace, nodeName, sizeLimit, podsRoot string) *Provisioner {
	return &Provisioner{
		client:    client,
		namespace: namespace,
		nodeName:  nodeName,
		sizeLimit: sizeLimit,
		podsRoot:  podsRoot,
	}
}

// Create provisions a scratch pod named id, waits for it to reach
// Running, and returns its UID. The pod name equals the volume ID, which
// is how Delete later finds it.
func (p *Provisioner) Create(ctx context.Context, id string) (podUID string, err error) {
	logger := log.WithVolumeID(id)

	pod, err := scratchPodSpec(id, p.namespace, p.nodeName, p.sizeLimit)
	if err != nil {
		return "", fmt.Errorf("failed to build scratch pod spec for %s: %w", id, err)
	}

	created, err := p.client.CoreV1().Pods(p.namespace).Create(ctx, pod, metav1.CreateOptions{})
	if err != nil {
		if apierrors.IsAlreadyExists(err) {
			existing, getErr := p.client.CoreV1().Pods(p.namespace).Get(ctx, id, metav1.GetOptions{})
			if getErr != nil {
				return "", fmt.Errorf("scratch pod %s already exists but could not be read: %w", id, getErr)
			}
			created = existing
		} else {
			return "", fmt.Errorf("failed to create scratch pod %s: %w", id, err)
		}
	}

	logger.Info().Msg("scratch pod created, waiting for it to become ready")
	if err := p.waitRunning(ctx, id); err != nil {
		return "", err
	}
	return string(created.UID), nil
}

// waitRunning blocks until the pod named id reaches Running phase. It
// restarts the watch when the watch cannot be started or its channel
// closes, since a transient API server disconnect must not fail
// provisioning. A cancelled context or a Failed pod ends it with an error.
func (p *Provisioner) waitRunning(ctx context.Context, id string) error {
	for {
		running, err := p.watchUntilRunning(ctx, id)
		if err != nil {
			return err
		}
		if running {
			return nil
		}
		log.WithVolumeID(id).Warn().Msg("scratch pod watch closed before pod became ready, retrying")
	}
}

func (p *Provisioner) watchUntilRunning(ctx context.Context, id string) (bool, error) {
	w, err := p.client.CoreV1().Pods(p.namespace).Watch(ctx, metav1.ListOptions{
		FieldSelector:   fields.OneTermEqualSelector("metadata.name", id).String(),
		ResourceVersion: "0",
	})
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		log.WithVolumeID(id).Warn().Err(err).Msg("failed to start scratch pod watch")
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(time.Second):
		}
		return false, nil
	}
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case event, ok := <-w.ResultChan():
			if !ok {
				return false, nil
			}
			if event.Type != watch.Modified && event.Type != watch.Added {
				continue
			}
			pod, ok := event.Object.(*corev1.Pod)
			if !ok {
				continue
			}
			if pod.Status.Phase == corev1.PodRunning {
				return true, nil
			}
			if pod.Status.Phase == corev1.PodFailed {
				return false, fmt.Errorf("scratch pod %s failed to start: %s", id, pod.Status.Reason)
			}
		}
	}
}

// ResolveVolumePath returns the host path of a scratch pod's emptyDir
// volume, given the pod's UID.
func (p *Provisioner) ResolveVolumePath(podUID string) string {
	return filepath.Join(p.podsRoot, podUID, "volumes", "kubernetes.io~empty-dir", volumeName)
}

// Delete removes the scratch pod named id. Deletion runs in the
// background relative to the unmount path: the caller does not wait for
// it, matching the original's fire-and-forget pod teardown. Propagation is
// background so the emptyDir volume is reclaimed without the caller
// blocking on the pod's full garbage collection.
func (p *Provisioner) Delete(ctx context.Context, id string) {
	logger := log.WithVolumeID(id)
	err := p.client.CoreV1().Pods(p.namespace).Delete(ctx, id, metav1.DeleteOptions{
		PropagationPolicy: ptr.To(metav1.DeletePropagationBackground),
	})
	if err != nil && !apierrors.IsNotFound(err) {
		logger.Error().Err(err).Msg("failed to delete scratch pod")
		return
	}
	logger.Info().Msg("scratch pod deleted")
}
