package workflow

import (
	"fmt"

	v1alpha1 "stagehand/pkg/apis/stagehand/v1alpha1"
)

// EffectType identifies a side effect the controller must enact through the
// resources adapter after a transition.
type EffectType string

const (
	// EffectBuild requests the build job for the Actor's image.
	EffectBuild EffectType = "Build"

	// EffectPush requests the push of the built image to the registry.
	EffectPush EffectType = "Push"

	// EffectDeploy requests the deployment objects for the Actor.
	EffectDeploy EffectType = "Deploy"

	// EffectSync requests a live patch of the running workload.
	EffectSync EffectType = "Sync"

	// EffectRecordError requests the failure cause be persisted on the
	// Actor record and surfaced on the event bus.
	EffectRecordError EffectType = "RecordError"
)

// Effect is one requested side effect.
type Effect struct {
	Type EffectType

	// Reason carries the failure cause for EffectRecordError.
	Reason string
}

// ObservedState is the controller's view of the external conditions relevant
// to an Actor's current stage, assembled from the resources adapter and the
// resolver outcome of the current pass.
type ObservedState struct {
	// DependenciesReady is true once every dependency of the Actor has
	// reached at least Running.
	DependenciesReady bool

	// Resolved is true when this pass's resolution succeeded for the Actor.
	Resolved bool

	// ResolveFailed carries a configuration error from the resolver
	// (cycle, unresolved reference). Never retried automatically.
	ResolveFailed string

	// BuildComplete / BuildFailed reflect the build job's reported
	// condition. A build deadline exceeded is reported as BuildFailed.
	BuildComplete bool
	BuildFailed   string

	// PushComplete / PushFailed reflect the push step's condition.
	PushComplete bool
	PushFailed   string

	// DeploymentReady / DeploymentFailed reflect the deployment rollout.
	DeploymentReady  bool
	DeploymentFailed string

	// SyncRequested is true when a sync signal arrived for a Running actor.
	SyncRequested bool

	// SyncApplied is true once the syncer reported the live patch done.
	SyncApplied bool

	// RetryRequested is true when the controller's backoff policy asks a
	// Failed actor to re-enter the pipeline.
	RetryRequested bool
}

// Decision is the outcome of one Advance call.
type Decision struct {
	// Stage is the stage the Actor should move to (possibly unchanged).
	Stage v1alpha1.Stage

	// Effects are the side effects to enact, in order.
	Effects []Effect

	// Retryable marks a Failed decision as eligible for the retry policy
	// (transient infra failure in Building, Pushing or Deploying).
	Retryable bool

	// ResetRetries marks a successful pipeline completion, after which the
	// consumed retry budget is returned.
	ResetRetries bool
}

// Changed reports whether the decision moves the Actor to a new stage.
func (d Decision) Changed(from v1alpha1.Stage) bool {
	return d.Stage != from
}

// transitions is the closed set of legal stage transitions. Anything not
// listed here is a programming error, caught by Validate before persisting.
var transitions = map[v1alpha1.Stage][]v1alpha1.Stage{
	v1alpha1.StagePending:   {v1alpha1.StageResolving},
	v1alpha1.StageResolving: {v1alpha1.StageBuilding, v1alpha1.StageFailed},
	v1alpha1.StageBuilding:  {v1alpha1.StagePushing, v1alpha1.StageFailed},
	v1alpha1.StagePushing:   {v1alpha1.StageDeploying, v1alpha1.StageFailed},
	v1alpha1.StageDeploying: {v1alpha1.StageRunning, v1alpha1.StageFailed},
	v1alpha1.StageRunning:   {v1alpha1.StageSyncing},
	v1alpha1.StageSyncing:   {v1alpha1.StageRunning},
	v1alpha1.StageFailed:    {v1alpha1.StagePending},
}

// Validate reports whether moving from one stage to another is legal.
// Staying in place is always legal (level-triggered no-op).
func Validate(from, to v1alpha1.Stage) error {
	if from == to {
		return nil
	}
	for _, legal := range transitions[from] {
		if legal == to {
			return nil
		}
	}
	return fmt.Errorf("illegal stage transition %s -> %s", from, to)
}

// Engine advances Actors through the pipeline.
type Engine struct {
	// RetryBudget is the maximum number of automatic retries per Actor for
	// transient failures in Building, Pushing and Deploying.
	RetryBudget int
}

// NewEngine returns an engine with the given retry budget.
func NewEngine(retryBudget int) *Engine {
	return &Engine{RetryBudget: retryBudget}
}

// Advance computes the Actor's next stage and requested side effects from
// the observed state. It never mutates the Actor and never blocks.
func (e *Engine) Advance(actor *v1alpha1.Actor, obs ObservedState) Decision {
	stage := actor.Status.Stage
	if stage == "" {
		stage = v1alpha1.StagePending
	}

	switch stage {
	case v1alpha1.StagePending:
		if obs.DependenciesReady {
			return Decision{Stage: v1alpha1.StageResolving}
		}

	case v1alpha1.StageResolving:
		if obs.ResolveFailed != "" {
			// Configuration error: surfaces immediately, no retry.
			return Decision{
				Stage:   v1alpha1.StageFailed,
				Effects: []Effect{{Type: EffectRecordError, Reason: obs.ResolveFailed}},
			}
		}
		if obs.Resolved {
			return Decision{
				Stage:   v1alpha1.StageBuilding,
				Effects: []Effect{{Type: EffectBuild}},
			}
		}

	case v1alpha1.StageBuilding:
		if obs.BuildFailed != "" {
			return Decision{
				Stage:     v1alpha1.StageFailed,
				Effects:   []Effect{{Type: EffectRecordError, Reason: obs.BuildFailed}},
				Retryable: true,
			}
		}
		if obs.BuildComplete {
			return Decision{
				Stage:   v1alpha1.StagePushing,
				Effects: []Effect{{Type: EffectPush}},
			}
		}

	case v1alpha1.StagePushing:
		if obs.PushFailed != "" {
			return Decision{
				Stage:     v1alpha1.StageFailed,
				Effects:   []Effect{{Type: EffectRecordError, Reason: obs.PushFailed}},
				Retryable: true,
			}
		}
		if obs.PushComplete {
			return Decision{
				Stage:   v1alpha1.StageDeploying,
				Effects: []Effect{{Type: EffectDeploy}},
			}
		}

	case v1alpha1.StageDeploying:
		if obs.DeploymentFailed != "" {
			return Decision{
				Stage:     v1alpha1.StageFailed,
				Effects:   []Effect{{Type: EffectRecordError, Reason: obs.DeploymentFailed}},
				Retryable: true,
			}
		}
		if obs.DeploymentReady {
			return Decision{Stage: v1alpha1.StageRunning, ResetRetries: true}
		}

	case v1alpha1.StageRunning:
		if obs.SyncRequested {
			return Decision{
				Stage:   v1alpha1.StageSyncing,
				Effects: []Effect{{Type: EffectSync}},
			}
		}

	case v1alpha1.StageSyncing:
		if obs.SyncApplied {
			return Decision{Stage: v1alpha1.StageRunning}
		}

	case v1alpha1.StageFailed:
		if obs.RetryRequested && actor.Status.RetryCount < e.RetryBudget {
			// Re-enter the pipeline; partial state is reset by the
			// controller, error history is kept.
			return Decision{Stage: v1alpha1.StagePending}
		}
		// Budget exhausted: terminal, no further automatic transitions.
	}

	return Decision{Stage: stage}
}
