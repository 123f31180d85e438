package resources

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	v1alpha1 "stagehand/pkg/apis/stagehand/v1alpha1"
	"stagehand/pkg/logging"
)

// EnsureNamespace creates the Playbook's namespace on first reconcile.
// Existing namespaces are left untouched.
func (m *Manager) EnsureNamespace(ctx context.Context, playbook *v1alpha1.Playbook) error {
	ns := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name: playbook.Spec.Namespace,
			Labels: map[string]string{
				LabelManagedBy: ManagerName,
				LabelPlaybook:  playbook.Name,
			},
		},
	}

	err := m.client.Create(ctx, ns)
	if err != nil {
		if apierrors.IsAlreadyExists(err) {
			return nil
		}
		return fmt.Errorf("creating namespace %s: %w", playbook.Spec.Namespace, err)
	}
	logging.Info("Resources", "Created namespace %s for playbook %s", playbook.Spec.Namespace, playbook.Name)
	return nil
}

// DeleteNamespace tears down the Playbook's namespace and with it every
// managed object inside, the teardown path on Playbook deletion.
func (m *Manager) DeleteNamespace(ctx context.Context, playbook *v1alpha1.Playbook) error {
	ns := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{Name: playbook.Spec.Namespace},
	}
	if err := m.client.Delete(ctx, ns); client.IgnoreNotFound(err) != nil {
		return fmt.Errorf("deleting namespace %s: %w", playbook.Spec.Namespace, err)
	}
	return nil
}

// DeleteNamespaceForPlaybook tears down the namespace of an already deleted
// Playbook, found by label since the spec is no longer available.
func (m *Manager) DeleteNamespaceForPlaybook(ctx context.Context, playbookName string) error {
	var namespaces corev1.NamespaceList
	err := m.client.List(ctx, &namespaces, client.MatchingLabels{
		LabelManagedBy: ManagerName,
		LabelPlaybook:  playbookName,
	})
	if err != nil {
		return fmt.Errorf("listing namespaces for playbook %s: %w", playbookName, err)
	}

	for i := range namespaces.Items {
		ns := &namespaces.Items[i]
		if err := m.client.Delete(ctx, ns); client.IgnoreNotFound(err) != nil {
			return fmt.Errorf("deleting namespace %s: %w", ns.Name, err)
		}
		logging.Info("Resources", "Deleted namespace %s of removed playbook %s", ns.Name, playbookName)
	}
	return nil
}
