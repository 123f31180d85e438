package events

import (
	"time"
)

// EventType represents the type/severity of a Kubernetes Event.
type EventType string

const (
	// EventTypeNormal indicates normal, non-problematic events.
	EventTypeNormal EventType = "Normal"

	// EventTypeWarning indicates events that may require attention.
	EventTypeWarning EventType = "Warning"
)

// EventReason represents the reason code for an event.
type EventReason string

// Playbook event reasons
const (
	// ReasonPlaybookResolved indicates the Playbook's dependency graph was
	// resolved and ordered successfully.
	ReasonPlaybookResolved EventReason = "PlaybookResolved"

	// ReasonPlaybookResolveFailed indicates dependency resolution failed,
	// for example on a cycle or a dangling reference.
	ReasonPlaybookResolveFailed EventReason = "PlaybookResolveFailed"

	// ReasonPlaybookRunning indicates every Actor in the Playbook reached
	// its terminal Running stage.
	ReasonPlaybookRunning EventReason = "PlaybookRunning"

	// ReasonPlaybookDeleted indicates the Playbook and its namespace were
	// torn down.
	ReasonPlaybookDeleted EventReason = "PlaybookDeleted"

	// ReasonNamespaceCreated indicates the Playbook's namespace was created.
	ReasonNamespaceCreated EventReason = "NamespaceCreated"
)

// Actor event reasons
const (
	// ReasonActorDiscovered indicates an Actor was materialized from a
	// dependency declared in another Actor's manifest.
	ReasonActorDiscovered EventReason = "ActorDiscovered"

	// ReasonBuildStarted indicates an image build job was created.
	ReasonBuildStarted EventReason = "BuildStarted"

	// ReasonBuildSucceeded indicates the build job completed.
	ReasonBuildSucceeded EventReason = "BuildSucceeded"

	// ReasonBuildFailed indicates the build job failed.
	ReasonBuildFailed EventReason = "BuildFailed"

	// ReasonPushStarted indicates an image push job was created.
	ReasonPushStarted EventReason = "PushStarted"

	// ReasonPushSucceeded indicates the push job completed.
	ReasonPushSucceeded EventReason = "PushSucceeded"

	// ReasonPushFailed indicates the push job failed.
	ReasonPushFailed EventReason = "PushFailed"

	// ReasonDeployStarted indicates the workload deployment was applied.
	ReasonDeployStarted EventReason = "DeployStarted"

	// ReasonDeployFailed indicates the deployment did not become available.
	ReasonDeployFailed EventReason = "DeployFailed"

	// ReasonActorRunning indicates the Actor reached its Running stage.
	ReasonActorRunning EventReason = "ActorRunning"

	// ReasonActorFailed indicates the Actor entered the Failed stage.
	ReasonActorFailed EventReason = "ActorFailed"

	// ReasonRetryScheduled indicates a failed Actor was scheduled for
	// another attempt after backoff.
	ReasonRetryScheduled EventReason = "RetryScheduled"

	// ReasonDependencyHeld indicates an Actor is held at Pending because a
	// dependency has not reached Running.
	ReasonDependencyHeld EventReason = "DependencyHeld"

	// ReasonSourceChanged indicates the Actor's source revision changed and
	// its pipeline was restarted.
	ReasonSourceChanged EventReason = "SourceChanged"
)

// EventData holds contextual information for event message templating.
type EventData struct {
	// Name is the name of the object involved in the event.
	Name string

	// Namespace is the namespace of the object involved in the event.
	Namespace string

	// Playbook is the owning Playbook's name for Actor events.
	Playbook string

	// Stage is the pipeline stage involved in the event.
	Stage string

	// Revision is the source revision involved in the event.
	Revision string

	// Error contains error information for failure events.
	Error string

	// Attempt is the retry attempt number for retry events.
	Attempt int

	// Duration is the duration of an operation (for completion events).
	Duration time.Duration
}

// getEventType returns the appropriate EventType for a given EventReason.
func getEventType(reason EventReason) EventType {
	switch reason {
	case ReasonPlaybookResolveFailed,
		ReasonBuildFailed,
		ReasonPushFailed,
		ReasonDeployFailed,
		ReasonActorFailed,
		ReasonDependencyHeld:
		return EventTypeWarning
	default:
		return EventTypeNormal
	}
}
