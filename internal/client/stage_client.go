package client

import (
	"context"
	"fmt"

	"k8s.io/client-go/rest"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	v1alpha1 "stagehand/pkg/apis/stagehand/v1alpha1"
	"stagehand/pkg/logging"
)

// StageClient is a unified interface that abstracts both Kubernetes and
// filesystem clients. It provides a single interface for interacting with
// Playbooks and Actors regardless of the deployment mode (Kubernetes
// cluster vs filesystem configuration).
//
// The interface automatically adapts to the environment:
//   - If Kubernetes cluster access is available, it uses the Kubernetes API
//   - If Kubernetes is not available, it falls back to filesystem operations
//
// This abstraction allows the same code to work in both environments
// without modification.
type StageClient interface {
	// Controller-runtime client interface for basic CRUD operations
	client.Client

	// Playbook operations. Playbooks are cluster scoped.
	GetPlaybook(ctx context.Context, name string) (*v1alpha1.Playbook, error)
	ListPlaybooks(ctx context.Context) ([]v1alpha1.Playbook, error)
	CreatePlaybook(ctx context.Context, playbook *v1alpha1.Playbook) error
	UpdatePlaybook(ctx context.Context, playbook *v1alpha1.Playbook) error
	DeletePlaybook(ctx context.Context, name string) error

	// Actor operations. Actors live in their Playbook's namespace.
	GetActor(ctx context.Context, name, namespace string) (*v1alpha1.Actor, error)
	ListActors(ctx context.Context, namespace string) ([]v1alpha1.Actor, error)
	CreateActor(ctx context.Context, actor *v1alpha1.Actor) error
	UpdateActor(ctx context.Context, actor *v1alpha1.Actor) error
	DeleteActor(ctx context.Context, name, namespace string) error

	// Status update operations (uses Status subresource in Kubernetes mode).
	// These methods update only the Status field of the resource.
	UpdatePlaybookStatus(ctx context.Context, playbook *v1alpha1.Playbook) error
	UpdateActorStatus(ctx context.Context, actor *v1alpha1.Actor) error

	// Event operations
	CreateEvent(ctx context.Context, obj client.Object, reason, message, eventType string) error

	// Utility methods
	IsKubernetesMode() bool
	Close() error
}

// NewStageClient creates a new unified stage client with automatic
// environment detection.
//
// The client will attempt to use Kubernetes configuration (from kubeconfig,
// in-cluster config, or other standard methods). If Kubernetes is not
// available, it will fall back to filesystem mode.
func NewStageClient() (StageClient, error) {
	return NewStageClientWithConfig(nil)
}

// NewStageClientWithConfig creates a new unified stage client with optional
// configuration for advanced use cases.
func NewStageClientWithConfig(cfg *StageClientConfig) (StageClient, error) {
	if cfg == nil {
		cfg = &StageClientConfig{}
	}

	// Try Kubernetes configuration first
	if restConfig, err := detectKubernetesConfig(cfg); err == nil && restConfig != nil {
		k8sClient, err := NewKubernetesClient(restConfig)
		if err == nil {
			return k8sClient, nil
		}
		// This is expected behavior when CRDs are not installed; filesystem
		// is the documented fallback, so only log in debug mode.
		if cfg.Debug {
			logging.Debug("Client", "Failed to create Kubernetes client: %v, falling back to filesystem mode", err)
		}
	}

	// Fall back to filesystem mode
	return NewFilesystemClient(cfg)
}

// StageClientConfig provides configuration options for client creation.
type StageClientConfig struct {
	// FilesystemPath is the base path for filesystem storage (defaults to
	// the current directory)
	FilesystemPath string

	// ForceFilesystemMode forces filesystem mode even if Kubernetes is
	// available
	ForceFilesystemMode bool

	// Debug enables debug-level logging and warnings
	Debug bool
}

// detectKubernetesConfig attempts to detect and load Kubernetes configuration.
func detectKubernetesConfig(cfg *StageClientConfig) (*rest.Config, error) {
	if cfg.ForceFilesystemMode {
		return nil, fmt.Errorf("filesystem mode forced")
	}

	// Controller-runtime's standard config detection handles in-cluster
	// config, kubeconfig, and other standard methods.
	restConfig, err := ctrl.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get Kubernetes config: %w", err)
	}

	return restConfig, nil
}
