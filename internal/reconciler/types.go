package reconciler

import (
	"context"
	"time"
)

// ResourceType represents the type of resource a change was detected on.
type ResourceType string

const (
	// ResourceTypePlaybook represents Playbook CRD/YAML resources.
	ResourceTypePlaybook ResourceType = "Playbook"

	// ResourceTypeActor represents Actor CRD/YAML resources.
	ResourceTypeActor ResourceType = "Actor"
)

// ChangeEvent represents a detected change in a resource.
type ChangeEvent struct {
	// Type is the type of resource that changed.
	Type ResourceType

	// Name is the name of the resource that changed.
	Name string

	// Namespace is the Kubernetes namespace (empty for filesystem mode
	// and for cluster-scoped Playbooks).
	Namespace string

	// Playbook is the owning playbook for Actor changes. For Playbook
	// changes it equals Name. May be empty when the detector could not
	// determine ownership; the manager resolves it before queuing.
	Playbook string

	// Operation describes what kind of change occurred.
	Operation ChangeOperation

	// Timestamp is when the change was detected.
	Timestamp time.Time

	// Source indicates where the change came from.
	Source ChangeSource

	// FilePath is the path to the file that changed (filesystem mode only).
	FilePath string
}

// ChangeOperation represents the type of change detected.
type ChangeOperation string

const (
	// OperationCreate indicates a new resource was created.
	OperationCreate ChangeOperation = "Create"

	// OperationUpdate indicates an existing resource was modified.
	OperationUpdate ChangeOperation = "Update"

	// OperationDelete indicates a resource was deleted.
	OperationDelete ChangeOperation = "Delete"
)

// ChangeSource indicates where a change originated.
type ChangeSource string

const (
	// SourceFilesystem indicates the change came from filesystem watching.
	SourceFilesystem ChangeSource = "Filesystem"

	// SourceKubernetes indicates the change came from Kubernetes informers.
	SourceKubernetes ChangeSource = "Kubernetes"

	// SourceManual indicates the change was triggered manually.
	SourceManual ChangeSource = "Manual"

	// SourceResync indicates the periodic full resync.
	SourceResync ChangeSource = "Resync"
)

// ReconcileResult represents the outcome of a reconciliation attempt.
type ReconcileResult struct {
	// Requeue indicates whether the playbook should be requeued for retry.
	Requeue bool

	// RequeueAfter specifies when to requeue (0 means use default backoff).
	RequeueAfter time.Duration

	// Error is any error that occurred during reconciliation.
	Error error
}

// ReconcileRequest represents a request to reconcile one playbook.
//
// The playbook is the unit of reconciliation: a single pass observes every
// actor of the playbook, so actor-level changes collapse onto their owning
// playbook and the queue serializes passes per playbook.
type ReconcileRequest struct {
	// Playbook is the name of the playbook to reconcile.
	Playbook string

	// Attempt is the current retry attempt number (starts at 1).
	Attempt int

	// LastError is the error from the previous attempt, if any.
	LastError error
}

// Reconciler processes playbook reconcile requests.
type Reconciler interface {
	// Reconcile processes a single reconciliation request. It must be
	// idempotent: a pass over an unchanged cluster takes no actions.
	//
	// The reconciler:
	//  1. Fetches the playbook and its actors from the client
	//  2. Resolves sources and dependency order
	//  3. Observes the managed workload objects
	//  4. Advances each actor's stage and enacts the decided effects
	Reconcile(ctx context.Context, req ReconcileRequest) ReconcileResult
}

// ChangeDetector is the interface for components that detect resource changes.
//
// Different implementations exist for filesystem watching and Kubernetes
// informers.
type ChangeDetector interface {
	// Start begins watching for changes.
	// The detector sends change events to the provided channel.
	Start(ctx context.Context, changes chan<- ChangeEvent) error

	// Stop gracefully stops the change detector.
	Stop() error

	// GetSource returns the source type this detector monitors.
	GetSource() ChangeSource
}

// ReconcileQueue represents a queue of playbooks awaiting reconciliation.
type ReconcileQueue interface {
	// Add adds a request to the queue.
	// If the same playbook is already queued, the existing entry is updated.
	Add(req ReconcileRequest)

	// Get retrieves the next request from the queue.
	// Blocks until a request is available or the context is cancelled.
	Get(ctx context.Context) (ReconcileRequest, bool)

	// Done marks a request as processed.
	Done(req ReconcileRequest)

	// Len returns the current queue length.
	Len() int

	// Shutdown signals the queue to stop accepting new items.
	Shutdown()
}

// ManagerConfig holds configuration for the Manager.
type ManagerConfig struct {
	// Mode specifies whether to use Kubernetes or filesystem watching.
	// If empty, the system auto-detects based on available resources.
	Mode WatchMode

	// FilesystemPath is the base path for filesystem watching.
	// Only used when Mode is WatchModeFilesystem.
	FilesystemPath string

	// WorkerCount is the number of concurrent reconciliation workers.
	// Defaults to 4 if not specified.
	WorkerCount int

	// MaxRetries is the maximum number of retry attempts for failed
	// reconcile passes. Defaults to 5 if not specified. This bounds the
	// pass itself, not the actors' stage retry budget.
	MaxRetries int

	// InitialBackoff is the initial backoff duration for retries.
	// Defaults to 1 second if not specified.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration for retries.
	// Defaults to 5 minutes if not specified.
	MaxBackoff time.Duration

	// ReconcileTimeout bounds a single reconcile pass.
	// Defaults to 2 minutes if not specified.
	ReconcileTimeout time.Duration

	// ResyncInterval is how often every known playbook is requeued even
	// without a detected change. Zero disables periodic resync.
	ResyncInterval time.Duration

	// DebounceInterval is how long to wait for additional filesystem
	// changes before reconciling. Defaults to 500ms if not specified.
	DebounceInterval time.Duration

	// Debug enables debug logging for reconciliation operations.
	Debug bool
}

// WatchMode specifies how to detect configuration changes.
type WatchMode string

const (
	// WatchModeFilesystem uses filesystem watching for YAML files.
	WatchModeFilesystem WatchMode = "filesystem"

	// WatchModeKubernetes uses Kubernetes informers for CRDs.
	WatchModeKubernetes WatchMode = "kubernetes"

	// WatchModeAuto automatically selects based on environment.
	WatchModeAuto WatchMode = "auto"
)

// ReconcileStatus represents the current reconcile state of a playbook.
type ReconcileStatus struct {
	// Playbook is the name of the playbook.
	Playbook string

	// LastReconcileTime is when the playbook was last successfully reconciled.
	LastReconcileTime *time.Time

	// LastError is the most recent error, if any.
	LastError string

	// RetryCount is the number of retry attempts.
	RetryCount int

	// State describes the current reconciliation state.
	State ReconcileState
}

// ReconcileState represents the state of a playbook's reconciliation.
type ReconcileState string

const (
	// StatePending means the playbook is awaiting reconciliation.
	StatePending ReconcileState = "Pending"

	// StateReconciling means a pass is in progress.
	StateReconciling ReconcileState = "Reconciling"

	// StateSynced means the playbook was successfully reconciled.
	StateSynced ReconcileState = "Synced"

	// StateError means the pass failed and will be retried.
	StateError ReconcileState = "Error"

	// StateFailed means the pass failed permanently (max retries exceeded).
	StateFailed ReconcileState = "Failed"
)
