package provisioner

import (
	corev1 "k8s.io/api/core/v1"
	resourceapi "k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// volumeName is the name of the single emptyDir volume every scratch pod
// carries. The path on the node is derived from it (see
// ResolveVolumePath), so it must never change without a matching change
// there.
const volumeName = "volume"

// containerName is the sidecar container that keeps the scratch pod's
// emptyDir volume open. It idles rather than exiting so an operator can
// kubectl exec into it to inspect a stuck scratch directory.
const containerName = "scratch"

func scratchPodSpec(name, namespace, nodeName, sizeLimit string) (*corev1.Pod, error) {
	quantity, err := resourceapi.ParseQuantity(sizeLimit)
	if err != nil {
		return nil, err
	}

	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels: map[string]string{
				"app.kubernetes.io/managed-by": "baseoverlay-csi",
			},
		},
		Spec: corev1.PodSpec{
			NodeName:      nodeName,
			RestartPolicy: corev1.RestartPolicyNever,
			Containers: []corev1.Container{
				{
					Name:    containerName,
					Image:   "registry.k8s.io/pause:3.9",
					Command: []string{"/pause"},
					VolumeMounts: []corev1.VolumeMount{
						{Name: volumeName, MountPath: "/scratch"},
					},
				},
			},
			Volumes: []corev1.Volume{
				{
					Name: volumeName,
					VolumeSource: corev1.VolumeSource{
						EmptyDir: &corev1.EmptyDirVolumeSource{
							SizeLimit: &quantity,
						},
					},
				},
			},
		},
	}, nil
}
