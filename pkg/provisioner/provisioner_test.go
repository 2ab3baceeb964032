package provisioner

import (
	"context"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func TestCreateWaitsForRunning(t *testing.T) {
	client := fake.NewSimpleClientset()
	p := New(client, "kube-system", "node-1", "5Gi", "/var/lib/kubelet/pods")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		for {
			pod, err := client.CoreV1().Pods("kube-system").Get(ctx, "vol-A", metav1.GetOptions{})
			if err == nil {
				pod.Status.Phase = corev1.PodRunning
				if _, err := client.CoreV1().Pods("kube-system").UpdateStatus(ctx, pod, metav1.UpdateOptions{}); err == nil {
					return
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
	}()

	uid, err := p.Create(ctx, "vol-A")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if uid == "" {
		t.Fatal("expected non-empty pod UID")
	}
}

func TestResolveVolumePath(t *testing.T) {
	p := New(nil, "kube-system", "node-1", "5Gi", "/var/lib/kubelet/pods")
	got := p.ResolveVolumePath("pod-uid-123")
	want := "/var/lib/kubelet/pods/pod-uid-123/volumes/kubernetes.io~empty-dir/volume"
	if got != want {
		t.Fatalf("ResolveVolumePath() = %s, want %s", got, want)
	}
}

func TestDeleteToleratesNotFound(t *testing.T) {
	client := fake.NewSimpleClientset()
	p := New(client, "kube-system", "node-1", "5Gi", "/var/lib/kubelet/pods")
	// Deleting a pod that was never created must not panic or block.
	p.Delete(context.Background(), "missing-vol")
}
