package resources

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	v1alpha1 "stagehand/pkg/apis/stagehand/v1alpha1"
	"stagehand/pkg/logging"
)

// labels returns the common label set for objects belonging to an Actor.
func labels(actor *v1alpha1.Actor) map[string]string {
	return map[string]string{
		LabelManagedBy: ManagerName,
		LabelPlaybook:  actor.Spec.Playbook,
		LabelActor:     actor.Spec.Name,
	}
}

// ownerReference builds the controller owner reference tying an object to
// its Actor, enabling cascading garbage collection on deletion.
func ownerReference(actor *v1alpha1.Actor) metav1.OwnerReference {
	return *metav1.NewControllerRef(actor, v1alpha1.GroupVersion.WithKind("Actor"))
}

// createOrUpdate applies the desired object: create when absent, otherwise
// hand the live object to mutate and update in place. The second return is
// true when the call changed anything on the cluster.
func (m *Manager) createOrUpdate(ctx context.Context, desired client.Object, mutate func(live client.Object) bool) (bool, error) {
	live := desired.DeepCopyObject().(client.Object)
	key := client.ObjectKeyFromObject(desired)

	err := m.client.Get(ctx, key, live)
	if err != nil {
		if !apierrors.IsNotFound(err) {
			return false, fmt.Errorf("getting %s: %w", key, err)
		}
		if err := m.client.Create(ctx, desired); err != nil {
			if apierrors.IsAlreadyExists(err) {
				// Lost a create race; the object exists now, treat as
				// unchanged and let the next pass reconcile the content.
				return false, nil
			}
			return false, fmt.Errorf("creating %s: %w", key, err)
		}
		logging.Info("Resources", "Created %T %s", desired, key)
		return true, nil
	}

	if mutate == nil || !mutate(live) {
		return false, nil
	}
	if err := m.client.Update(ctx, live); err != nil {
		return false, fmt.Errorf("updating %s: %w", key, err)
	}
	logging.Info("Resources", "Updated %T %s", desired, key)
	return true, nil
}
