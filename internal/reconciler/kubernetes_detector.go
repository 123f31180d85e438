package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	toolscache "k8s.io/client-go/tools/cache"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/cache"
	"sigs.k8s.io/controller-runtime/pkg/client"

	v1alpha1 "stagehand/pkg/apis/stagehand/v1alpha1"
	"stagehand/pkg/logging"
)

// KubernetesDetector implements ChangeDetector using controller-runtime
// informers.
//
// It watches Playbook and Actor CRDs and generates change events when
// resources are created, updated, or deleted. Actor events carry the owning
// playbook from the Actor's spec so the manager can queue the right
// reconcile pass without an extra lookup.
type KubernetesDetector struct {
	mu sync.RWMutex

	// restConfig is the Kubernetes REST configuration
	restConfig *rest.Config

	// namespace is the namespace to watch Actors in (empty for all namespaces)
	namespace string

	// cache is the controller-runtime cache for watching resources
	cache cache.Cache

	// scheme is the runtime scheme with registered types
	scheme *runtime.Scheme

	// changeChan is the channel to send change events to
	changeChan chan<- ChangeEvent

	// ctx is the detector's context
	ctx context.Context

	// cancelFunc cancels the detector's context
	cancelFunc context.CancelFunc

	// running indicates if the detector is active
	running bool

	// informerRegistrations tracks registered event handlers for cleanup
	informerRegistrations []toolscache.ResourceEventHandlerRegistration
}

// NewKubernetesDetector creates a new Kubernetes change detector.
func NewKubernetesDetector(restConfig *rest.Config, namespace string) (*KubernetesDetector, error) {
	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(v1alpha1.AddToScheme(scheme))

	return &KubernetesDetector{
		restConfig:            restConfig,
		namespace:             namespace,
		scheme:                scheme,
		informerRegistrations: make([]toolscache.ResourceEventHandlerRegistration, 0),
	}, nil
}

// Start begins watching for Kubernetes resource changes.
func (d *KubernetesDetector) Start(ctx context.Context, changes chan<- ChangeEvent) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}

	d.ctx, d.cancelFunc = context.WithCancel(ctx)
	d.changeChan = changes
	d.running = true
	d.mu.Unlock()

	cacheOpts := cache.Options{
		Scheme: d.scheme,
	}
	if d.namespace != "" {
		// Restricts Actor watches. Playbooks are cluster scoped and
		// unaffected by namespace restrictions.
		cacheOpts.DefaultNamespaces = map[string]cache.Config{
			d.namespace: {},
		}
	}

	c, err := cache.New(d.restConfig, cacheOpts)
	if err != nil {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
		return fmt.Errorf("failed to create cache: %w", err)
	}

	d.mu.Lock()
	d.cache = c
	d.mu.Unlock()

	if err := d.setupInformers(); err != nil {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
		return fmt.Errorf("failed to setup informers: %w", err)
	}

	go func() {
		if err := d.cache.Start(d.ctx); err != nil {
			logging.Error("KubernetesDetector", err, "Cache stopped with error")
		}
	}()

	if !d.cache.WaitForCacheSync(d.ctx) {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
		return fmt.Errorf("failed to sync cache")
	}

	logging.Info("KubernetesDetector", "Started watching Playbooks and Actors in %s", d.namespaceDisplay())
	return nil
}

// setupInformers registers event handlers for both watched types.
func (d *KubernetesDetector) setupInformers() error {
	for _, rt := range []ResourceType{ResourceTypePlaybook, ResourceTypeActor} {
		if err := d.setupInformerForType(rt); err != nil {
			return err
		}
	}
	return nil
}

// setupInformerForType creates an informer for a specific resource type.
func (d *KubernetesDetector) setupInformerForType(resourceType ResourceType) error {
	var obj client.Object
	switch resourceType {
	case ResourceTypePlaybook:
		obj = &v1alpha1.Playbook{}
	case ResourceTypeActor:
		obj = &v1alpha1.Actor{}
	default:
		return fmt.Errorf("unsupported resource type: %s", resourceType)
	}

	informer, err := d.cache.GetInformer(d.ctx, obj)
	if err != nil {
		return fmt.Errorf("failed to get informer for %s: %w", resourceType, err)
	}

	handler := d.createEventHandler(resourceType)

	registration, err := informer.AddEventHandler(handler)
	if err != nil {
		return fmt.Errorf("failed to add event handler for %s: %w", resourceType, err)
	}

	d.mu.Lock()
	d.informerRegistrations = append(d.informerRegistrations, registration)
	d.mu.Unlock()

	logging.Debug("KubernetesDetector", "Setup informer for resource type: %s", resourceType)
	return nil
}

// createEventHandler creates a ResourceEventHandler for a resource type.
func (d *KubernetesDetector) createEventHandler(resourceType ResourceType) toolscache.ResourceEventHandler {
	return toolscache.ResourceEventHandlerFuncs{
		AddFunc: func(obj interface{}) {
			d.handleObject(resourceType, obj, OperationCreate)
		},
		UpdateFunc: func(oldObj, newObj interface{}) {
			d.handleObject(resourceType, newObj, OperationUpdate)
		},
		DeleteFunc: func(obj interface{}) {
			// Handle DeletedFinalStateUnknown for objects deleted while
			// the controller was down.
			if deletedState, ok := obj.(toolscache.DeletedFinalStateUnknown); ok {
				obj = deletedState.Obj
			}
			d.handleObject(resourceType, obj, OperationDelete)
		},
	}
}

// handleObject converts an informer event into a ChangeEvent.
func (d *KubernetesDetector) handleObject(resourceType ResourceType, obj interface{}, op ChangeOperation) {
	clientObj, ok := obj.(client.Object)
	if !ok {
		logging.Warn("KubernetesDetector", "Failed to extract metadata from %s event", op)
		return
	}

	event := ChangeEvent{
		Type:      resourceType,
		Name:      clientObj.GetName(),
		Namespace: clientObj.GetNamespace(),
		Operation: op,
		Timestamp: time.Now(),
		Source:    SourceKubernetes,
	}

	switch o := obj.(type) {
	case *v1alpha1.Playbook:
		event.Playbook = o.Name
	case *v1alpha1.Actor:
		event.Playbook = o.Spec.Playbook
	}

	d.sendChangeEvent(event)
}

// sendChangeEvent sends a change event to the output channel.
func (d *KubernetesDetector) sendChangeEvent(event ChangeEvent) {
	d.mu.RLock()
	changeChan := d.changeChan
	running := d.running
	d.mu.RUnlock()

	if !running || changeChan == nil {
		return
	}

	select {
	case changeChan <- event:
		logging.Debug("KubernetesDetector", "Emitted change event: %s %s/%s/%s",
			event.Operation, event.Type, event.Namespace, event.Name)
	default:
		logging.Warn("KubernetesDetector", "Change event channel full, dropping event for %s/%s/%s",
			event.Type, event.Namespace, event.Name)
	}
}

// Stop gracefully stops the Kubernetes detector.
func (d *KubernetesDetector) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}

	d.running = false

	if d.cancelFunc != nil {
		d.cancelFunc()
	}

	// Registrations are removed automatically when the cache stops.
	d.informerRegistrations = nil

	logging.Info("KubernetesDetector", "Stopped Kubernetes detector")
	return nil
}

// GetSource returns the change source type.
func (d *KubernetesDetector) GetSource() ChangeSource {
	return SourceKubernetes
}

// namespaceDisplay returns a display string for the namespace.
func (d *KubernetesDetector) namespaceDisplay() string {
	if d.namespace == "" {
		return "all namespaces"
	}
	return d.namespace
}

// GetRestConfig returns the REST config for creating a Kubernetes detector.
// It uses controller-runtime's config detection.
func GetRestConfig() (*rest.Config, error) {
	return ctrl.GetConfig()
}

// IsKubernetesAvailable checks if Kubernetes cluster access is available.
func IsKubernetesAvailable() bool {
	config, err := ctrl.GetConfig()
	if err != nil {
		return false
	}

	_, err = client.New(config, client.Options{})
	return err == nil
}
