package resources

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	v1alpha1 "stagehand/pkg/apis/stagehand/v1alpha1"
)

// WorkspaceName returns the name of the Actor's workspace volume claim.
func WorkspaceName(actor *v1alpha1.Actor) string {
	return actor.Spec.Name + workspaceSuffix
}

// ApplyWorkspace ensures the workspace volume shared by the Actor's build
// and push jobs exists. Claims are immutable after creation, so an existing
// claim is left untouched.
func (m *Manager) ApplyWorkspace(ctx context.Context, actor *v1alpha1.Actor, namespace string) error {
	claim := &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:            WorkspaceName(actor),
			Namespace:       namespace,
			Labels:          labels(actor),
			OwnerReferences: []metav1.OwnerReference{ownerReference(actor)},
		},
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{
					corev1.ResourceStorage: resource.MustParse("2Gi"),
				},
			},
		},
	}

	_, err := m.createOrUpdate(ctx, claim, nil)
	return err
}
