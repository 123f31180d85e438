package client

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"sigs.k8s.io/controller-runtime/pkg/client"

	v1alpha1 "stagehand/pkg/apis/stagehand/v1alpha1"
)

// kubernetesClient implements StageClient using the Kubernetes API and
// controller-runtime.
type kubernetesClient struct {
	client.Client
	scheme *runtime.Scheme
}

// NewKubernetesClient creates a new Kubernetes-backed stage client. It
// fails when the Playbook and Actor CRDs are not installed, which triggers
// the filesystem fallback in the unified constructor.
func NewKubernetesClient(config *rest.Config) (StageClient, error) {
	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(v1alpha1.AddToScheme(scheme))

	k8sClient, err := client.New(config, client.Options{
		Scheme: scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client: %w", err)
	}

	stageClient := &kubernetesClient{
		Client: k8sClient,
		scheme: scheme,
	}

	if err := stageClient.validateCRDs(context.Background()); err != nil {
		return nil, fmt.Errorf("CRD validation failed: %w", err)
	}

	return stageClient, nil
}

// GetPlaybook retrieves a specific Playbook from Kubernetes.
func (k *kubernetesClient) GetPlaybook(ctx context.Context, name string) (*v1alpha1.Playbook, error) {
	playbook := &v1alpha1.Playbook{}
	if err := k.Get(ctx, client.ObjectKey{Name: name}, playbook); err != nil {
		return nil, err
	}
	return playbook, nil
}

// ListPlaybooks lists all Playbooks in the cluster.
func (k *kubernetesClient) ListPlaybooks(ctx context.Context) ([]v1alpha1.Playbook, error) {
	playbookList := &v1alpha1.PlaybookList{}
	if err := k.List(ctx, playbookList); err != nil {
		return nil, fmt.Errorf("failed to list Playbooks: %w", err)
	}
	return playbookList.Items, nil
}

// CreatePlaybook creates a new Playbook in Kubernetes.
func (k *kubernetesClient) CreatePlaybook(ctx context.Context, playbook *v1alpha1.Playbook) error {
	if err := k.Create(ctx, playbook); err != nil {
		return fmt.Errorf("failed to create Playbook %s: %w", playbook.Name, err)
	}
	return nil
}

// UpdatePlaybook updates an existing Playbook in Kubernetes.
func (k *kubernetesClient) UpdatePlaybook(ctx context.Context, playbook *v1alpha1.Playbook) error {
	if err := k.Update(ctx, playbook); err != nil {
		return fmt.Errorf("failed to update Playbook %s: %w", playbook.Name, err)
	}
	return nil
}

// DeletePlaybook deletes a Playbook from Kubernetes.
func (k *kubernetesClient) DeletePlaybook(ctx context.Context, name string) error {
	playbook := &v1alpha1.Playbook{
		ObjectMeta: metav1.ObjectMeta{Name: name},
	}
	if err := k.Delete(ctx, playbook); err != nil {
		return fmt.Errorf("failed to delete Playbook %s: %w", name, err)
	}
	return nil
}

// GetActor retrieves a specific Actor from Kubernetes.
func (k *kubernetesClient) GetActor(ctx context.Context, name, namespace string) (*v1alpha1.Actor, error) {
	actor := &v1alpha1.Actor{}
	key := client.ObjectKey{Name: name, Namespace: namespace}
	if err := k.Get(ctx, key, actor); err != nil {
		return nil, err
	}
	return actor, nil
}

// ListActors lists all Actors in a namespace.
func (k *kubernetesClient) ListActors(ctx context.Context, namespace string) ([]v1alpha1.Actor, error) {
	actorList := &v1alpha1.ActorList{}
	listOpts := []client.ListOption{}
	if namespace != "" {
		listOpts = append(listOpts, client.InNamespace(namespace))
	}

	if err := k.List(ctx, actorList, listOpts...); err != nil {
		return nil, fmt.Errorf("failed to list Actors in namespace %s: %w", namespace, err)
	}
	return actorList.Items, nil
}

// CreateActor creates a new Actor in Kubernetes.
func (k *kubernetesClient) CreateActor(ctx context.Context, actor *v1alpha1.Actor) error {
	if err := k.Create(ctx, actor); err != nil {
		return fmt.Errorf("failed to create Actor %s/%s: %w", actor.Namespace, actor.Name, err)
	}
	return nil
}

// UpdateActor updates an existing Actor in Kubernetes.
func (k *kubernetesClient) UpdateActor(ctx context.Context, actor *v1alpha1.Actor) error {
	if err := k.Update(ctx, actor); err != nil {
		return fmt.Errorf("failed to update Actor %s/%s: %w", actor.Namespace, actor.Name, err)
	}
	return nil
}

// DeleteActor deletes an Actor from Kubernetes.
func (k *kubernetesClient) DeleteActor(ctx context.Context, name, namespace string) error {
	actor := &v1alpha1.Actor{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
	}
	if err := k.Delete(ctx, actor); err != nil {
		return fmt.Errorf("failed to delete Actor %s/%s: %w", namespace, name, err)
	}
	return nil
}

// UpdatePlaybookStatus updates the Playbook's status subresource.
func (k *kubernetesClient) UpdatePlaybookStatus(ctx context.Context, playbook *v1alpha1.Playbook) error {
	if err := k.Status().Update(ctx, playbook); err != nil {
		return fmt.Errorf("failed to update Playbook %s status: %w", playbook.Name, err)
	}
	return nil
}

// UpdateActorStatus updates the Actor's status subresource.
func (k *kubernetesClient) UpdateActorStatus(ctx context.Context, actor *v1alpha1.Actor) error {
	if err := k.Status().Update(ctx, actor); err != nil {
		return fmt.Errorf("failed to update Actor %s/%s status: %w", actor.Namespace, actor.Name, err)
	}
	return nil
}

// IsKubernetesMode returns true since this is the Kubernetes implementation.
func (k *kubernetesClient) IsKubernetesMode() bool {
	return true
}

// Close performs cleanup for the Kubernetes client. Controller-runtime
// clients don't require explicit cleanup; this method is provided for
// interface compatibility.
func (k *kubernetesClient) Close() error {
	return nil
}

// validateCRDs checks if the required CRDs are available in the cluster.
// A failing list call means the Playbook CRD is not installed and the
// caller should fall back to filesystem mode.
func (k *kubernetesClient) validateCRDs(ctx context.Context) error {
	if _, err := k.ListPlaybooks(ctx); err != nil {
		return fmt.Errorf("Playbook CRD not available: %w", err)
	}
	return nil
}

// CreateEvent creates a Kubernetes Event for the given object.
func (k *kubernetesClient) CreateEvent(ctx context.Context, obj client.Object, reason, message, eventType string) error {
	gvk, err := k.GroupVersionKindFor(obj)
	if err != nil {
		return fmt.Errorf("failed to get GroupVersionKind for object: %w", err)
	}

	namespace := obj.GetNamespace()
	if namespace == "" {
		// Cluster-scoped objects (Playbooks) record their events in the
		// default namespace.
		namespace = metav1.NamespaceDefault
	}

	event := &corev1.Event{
		ObjectMeta: metav1.ObjectMeta{
			GenerateName: obj.GetName() + "-",
			Namespace:    namespace,
		},
		InvolvedObject: corev1.ObjectReference{
			APIVersion: gvk.GroupVersion().String(),
			Kind:       gvk.Kind,
			Name:       obj.GetName(),
			Namespace:  obj.GetNamespace(),
			UID:        obj.GetUID(),
		},
		Reason:         reason,
		Message:        message,
		Type:           eventType,
		Source:         corev1.EventSource{Component: "stagehand"},
		FirstTimestamp: metav1.NewTime(time.Now()),
		LastTimestamp:  metav1.NewTime(time.Now()),
		Count:          1,
	}

	if err := k.Create(ctx, event); err != nil {
		return fmt.Errorf("failed to create Kubernetes Event: %w", err)
	}
	return nil
}
