package resources

import (
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Object labels applied to everything this adapter materializes.
const (
	// LabelManagedBy marks objects owned by the stagehand controller.
	LabelManagedBy = "app.kubernetes.io/managed-by"

	// LabelPlaybook carries the owning Playbook's name.
	LabelPlaybook = "stagehand.dev/playbook"

	// LabelActor carries the owning Actor's name.
	LabelActor = "stagehand.dev/actor"

	// ManagerName is the value for LabelManagedBy and the field manager.
	ManagerName = "stagehand"
)

// Well-known object name suffixes per stage.
const (
	buildJobSuffix  = "-builder"
	pushJobSuffix   = "-pusher"
	workspaceSuffix = "-workspace"
)

// defaultJobDeadline bounds build and push job runs when no deadline is
// configured. A hung job must eventually fail so the retry policy sees it.
const defaultJobDeadline = 20 * time.Minute

// Manager applies and observes cluster objects for Actors. It wraps a
// controller-runtime client so tests can substitute a fake.
type Manager struct {
	client      client.Client
	scheme      *runtime.Scheme
	jobDeadline time.Duration
}

// NewManager returns a resources manager backed by the given client. A
// zero jobDeadline falls back to the default.
func NewManager(c client.Client, scheme *runtime.Scheme, jobDeadline time.Duration) *Manager {
	if jobDeadline <= 0 {
		jobDeadline = defaultJobDeadline
	}
	return &Manager{client: c, scheme: scheme, jobDeadline: jobDeadline}
}

// IsTransient reports whether a cluster API error should be retried with
// backoff rather than failing the Actor permanently.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return apierrors.IsConflict(err) ||
		apierrors.IsServerTimeout(err) ||
		apierrors.IsTimeout(err) ||
		apierrors.IsTooManyRequests(err) ||
		apierrors.IsServiceUnavailable(err) ||
		apierrors.IsInternalError(err)
}
