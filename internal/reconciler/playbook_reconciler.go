package reconciler

import (
	"context"
	"fmt"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	apimeta "k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"stagehand/internal/dependency"
	"stagehand/internal/events"
	"stagehand/internal/resolver"
	"stagehand/internal/resources"
	"stagehand/internal/syncer"
	"stagehand/internal/workflow"
	v1alpha1 "stagehand/pkg/apis/stagehand/v1alpha1"
	"stagehand/pkg/logging"
)

// AnnotationRetry on an Actor asks the controller to re-enter the pipeline
// from Failed regardless of the consumed retry budget. The controller
// removes the annotation once the retry is scheduled.
const AnnotationRetry = "stagehand.dev/retry"

// Condition types maintained on Actor and Playbook statuses.
const (
	conditionRetryable      = "Retryable"
	conditionDependencyHeld = "DependencyHeld"
	conditionResolved       = "Resolved"
)

// StateClient is the slice of the stage client the reconciler needs.
type StateClient interface {
	GetPlaybook(ctx context.Context, name string) (*v1alpha1.Playbook, error)
	ListActors(ctx context.Context, namespace string) ([]v1alpha1.Actor, error)
	CreateActor(ctx context.Context, actor *v1alpha1.Actor) error
	UpdateActor(ctx context.Context, actor *v1alpha1.Actor) error
	DeleteActor(ctx context.Context, name, namespace string) error
	UpdatePlaybookStatus(ctx context.Context, playbook *v1alpha1.Playbook) error
	UpdateActorStatus(ctx context.Context, actor *v1alpha1.Actor) error
}

// GraphResolver resolves a Playbook's dependency graph for one pass.
type GraphResolver interface {
	Resolve(ctx context.Context, playbook *v1alpha1.Playbook, actors []v1alpha1.Actor) (*resolver.Resolution, error)
}

// Effector applies and observes the cluster objects behind each pipeline
// stage. resources.Manager is the production implementation; tests use a
// recording fake.
type Effector interface {
	EnsureNamespace(ctx context.Context, playbook *v1alpha1.Playbook) error
	DeleteNamespace(ctx context.Context, playbook *v1alpha1.Playbook) error
	DeleteNamespaceForPlaybook(ctx context.Context, playbookName string) error
	ApplyWorkspace(ctx context.Context, actor *v1alpha1.Actor, namespace string) error
	ApplyBuildJob(ctx context.Context, actor *v1alpha1.Actor, namespace, rev string) error
	ApplyPushJob(ctx context.Context, actor *v1alpha1.Actor, namespace, rev string) error
	ApplyDeployment(ctx context.Context, actor *v1alpha1.Actor, namespace, rev string) error
	Observe(ctx context.Context, actor *v1alpha1.Actor, namespace string) (resources.Observation, error)
	CleanupForStage(ctx context.Context, actor *v1alpha1.Actor, namespace string, stage v1alpha1.Stage) error
}

// PlaybookReconcilerConfig tunes the per-actor retry policy and the poll
// cadence while stage objects are in flight.
type PlaybookReconcilerConfig struct {
	// RetryBudget is the maximum automatic retries per Actor.
	RetryBudget int

	// BackoffBase and BackoffCap bound the exponential retry backoff.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// PollInterval is the requeue delay while build jobs, push jobs or
	// deployments are in flight. Their completion produces no watch event,
	// so the pass polls.
	PollInterval time.Duration

	// RestartOnSourceChange restarts a Running actor's pipeline when its
	// resolved source revision changes and live-sync is not enabled for it.
	RestartOnSourceChange bool
}

// PlaybookReconciler drives every Actor of one Playbook through the
// pipeline on each reconcile pass. One instance serves all Playbooks; it
// holds no per-playbook state between passes.
type PlaybookReconciler struct {
	client    StateClient
	resolver  GraphResolver
	engine    *workflow.Engine
	effector  Effector
	bus       *events.Bus
	generator *events.Generator
	syncer    syncer.Syncer
	cfg       PlaybookReconcilerConfig
}

// NewPlaybookReconciler wires a reconciler from its collaborators.
func NewPlaybookReconciler(
	client StateClient,
	graphResolver GraphResolver,
	effector Effector,
	bus *events.Bus,
	generator *events.Generator,
	sync syncer.Syncer,
	cfg PlaybookReconcilerConfig,
) *PlaybookReconciler {
	if cfg.RetryBudget == 0 {
		cfg.RetryBudget = 3
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffCap == 0 {
		cfg.BackoffCap = 5 * time.Minute
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Second
	}

	return &PlaybookReconciler{
		client:    client,
		resolver:  graphResolver,
		engine:    workflow.NewEngine(cfg.RetryBudget),
		effector:  effector,
		bus:       bus,
		generator: generator,
		syncer:    sync,
		cfg:       cfg,
	}
}

// pass carries the working state of one reconcile pass.
type pass struct {
	playbook   *v1alpha1.Playbook
	actors     []v1alpha1.Actor
	resolution *resolver.Resolution

	// stages is the in-pass view of every actor's stage, updated as actors
	// advance so dependents observe this pass's transitions.
	stages map[string]v1alpha1.Stage

	// requeueAfter is the shortest delay any actor asked for, zero if none.
	requeueAfter time.Duration

	// transientErr records the first transient failure of the pass.
	transientErr error
}

func (p *pass) requestRequeue(after time.Duration) {
	if after <= 0 {
		return
	}
	if p.requeueAfter == 0 || after < p.requeueAfter {
		p.requeueAfter = after
	}
}

// Reconcile runs one level-triggered pass over the playbook. A pass over an
// unchanged world takes no actions beyond observation.
func (r *PlaybookReconciler) Reconcile(ctx context.Context, req ReconcileRequest) ReconcileResult {
	playbook, err := r.client.GetPlaybook(ctx, req.Playbook)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return r.teardownDeleted(ctx, req.Playbook)
		}
		return ReconcileResult{Requeue: true, Error: fmt.Errorf("loading playbook %s: %w", req.Playbook, err)}
	}

	if playbook.DeletionTimestamp != nil {
		return r.teardown(ctx, playbook)
	}

	firstPass := playbook.Status.Phase == ""

	if err := r.effector.EnsureNamespace(ctx, playbook); err != nil {
		return ReconcileResult{Requeue: true, Error: err}
	}
	if firstPass {
		r.recordPlaybookEvent(ctx, playbook, events.ReasonNamespaceCreated, events.EventData{
			Namespace: playbook.Spec.Namespace,
		})
	}

	actors, err := r.listActors(ctx, playbook)
	if err != nil {
		return ReconcileResult{Requeue: true, Error: err}
	}

	p := &pass{
		playbook: playbook,
		actors:   actors,
		stages:   make(map[string]v1alpha1.Stage, len(actors)),
	}
	for i := range actors {
		p.stages[actors[i].Spec.Name] = currentStage(&actors[i])
	}

	resolution, err := r.resolver.Resolve(ctx, playbook, actors)
	if err != nil {
		if resolver.IsConfiguration(err) {
			return r.failResolution(ctx, p, err)
		}
		return ReconcileResult{Requeue: true, Error: err}
	}
	p.resolution = resolution
	r.markResolved(ctx, p)

	r.materializeDiscovered(ctx, p)

	for _, node := range resolution.Order {
		actor := findActor(p.actors, string(node))
		if actor == nil {
			// Discovered this pass, record created above; it enters the
			// pipeline on the next pass.
			continue
		}
		r.advanceActor(ctx, p, actor)
	}

	r.updatePlaybookStatus(ctx, p)

	result := ReconcileResult{}
	if p.transientErr != nil {
		result.Requeue = true
		result.Error = p.transientErr
	}
	if p.requeueAfter > 0 {
		result.RequeueAfter = p.requeueAfter
	}
	return result
}

// listActors returns the actor records belonging to the playbook.
func (r *PlaybookReconciler) listActors(ctx context.Context, playbook *v1alpha1.Playbook) ([]v1alpha1.Actor, error) {
	all, err := r.client.ListActors(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("listing actors: %w", err)
	}

	actors := make([]v1alpha1.Actor, 0, len(all))
	for i := range all {
		if all[i].Spec.Playbook == playbook.Name {
			actors = append(actors, all[i])
		}
	}
	return actors, nil
}

// teardownDeleted cleans up after a playbook whose record is already gone:
// orphaned actor records, sync and dedup state, and the labeled namespace.
func (r *PlaybookReconciler) teardownDeleted(ctx context.Context, name string) ReconcileResult {
	logging.Info("Reconciler", "Playbook %s is gone, tearing down", name)

	all, err := r.client.ListActors(ctx, "")
	if err != nil {
		return ReconcileResult{Requeue: true, Error: fmt.Errorf("listing actors for teardown: %w", err)}
	}
	for i := range all {
		actor := &all[i]
		if actor.Spec.Playbook != name {
			continue
		}
		if err := r.client.DeleteActor(ctx, actor.Name, actor.Namespace); err != nil && !apierrors.IsNotFound(err) {
			return ReconcileResult{Requeue: true, Error: fmt.Errorf("deleting actor %s: %w", actor.Name, err)}
		}
		r.bus.Forget(name, actor.Spec.Name)
		r.syncer.Clear(name, actor.Spec.Name)
	}

	if err := r.effector.DeleteNamespaceForPlaybook(ctx, name); err != nil {
		return ReconcileResult{Requeue: true, Error: err}
	}
	return ReconcileResult{}
}

// teardown handles a playbook marked for deletion while its record still
// exists. The namespace delete cascades to every managed object.
func (r *PlaybookReconciler) teardown(ctx context.Context, playbook *v1alpha1.Playbook) ReconcileResult {
	logging.Info("Reconciler", "Playbook %s marked for deletion, tearing down", playbook.Name)

	if err := r.effector.DeleteNamespace(ctx, playbook); err != nil {
		return ReconcileResult{Requeue: true, Error: err}
	}

	all, err := r.client.ListActors(ctx, "")
	if err != nil {
		return ReconcileResult{Requeue: true, Error: err}
	}
	for i := range all {
		actor := &all[i]
		if actor.Spec.Playbook != playbook.Name {
			continue
		}
		if err := r.client.DeleteActor(ctx, actor.Name, actor.Namespace); err != nil && !apierrors.IsNotFound(err) {
			return ReconcileResult{Requeue: true, Error: err}
		}
		r.bus.Forget(playbook.Name, actor.Spec.Name)
		r.syncer.Clear(playbook.Name, actor.Spec.Name)
	}

	r.recordPlaybookEvent(ctx, playbook, events.ReasonPlaybookDeleted, events.EventData{})
	return ReconcileResult{}
}

// failResolution records a configuration error (cycle, dangling reference)
// on the playbook and fails the actors waiting on resolution. Configuration
// errors are never retried; only a definition change clears them.
func (r *PlaybookReconciler) failResolution(ctx context.Context, p *pass, resolveErr error) ReconcileResult {
	logging.Warn("Reconciler", "Resolution failed for playbook %s: %v", p.playbook.Name, resolveErr)

	// Actors failed below go through applyDecision, which expects a
	// resolution for the pass.
	p.resolution = &resolver.Resolution{
		Graph:     dependency.New(),
		Revisions: make(map[string]string),
	}

	flipped := apimeta.SetStatusCondition(&p.playbook.Status.Conditions, metav1.Condition{
		Type:    conditionResolved,
		Status:  metav1.ConditionFalse,
		Reason:  "ResolveFailed",
		Message: resolveErr.Error(),
	})
	if flipped {
		r.recordPlaybookEvent(ctx, p.playbook, events.ReasonPlaybookResolveFailed, events.EventData{
			Error: resolveErr.Error(),
		})
	}

	for i := range p.actors {
		actor := &p.actors[i]
		if currentStage(actor) != v1alpha1.StageResolving {
			continue
		}
		decision := r.engine.Advance(actor, workflow.ObservedState{ResolveFailed: resolveErr.Error()})
		r.applyDecision(ctx, p, actor, decision)
	}

	r.updatePlaybookStatus(ctx, p)

	return ReconcileResult{Error: resolveErr}
}

// markResolved flips the playbook's Resolved condition after a successful
// resolution pass.
func (r *PlaybookReconciler) markResolved(ctx context.Context, p *pass) {
	flipped := apimeta.SetStatusCondition(&p.playbook.Status.Conditions, metav1.Condition{
		Type:   conditionResolved,
		Status: metav1.ConditionTrue,
		Reason: "ResolveSucceeded",
		Message: fmt.Sprintf("%d actors ordered, %d discovered dependencies",
			len(p.actors), len(p.resolution.Missing)),
	})
	if flipped {
		r.recordPlaybookEvent(ctx, p.playbook, events.ReasonPlaybookResolved, events.EventData{})
	}
}

// materializeDiscovered creates actor records for dependencies found only
// in manifests. They join the pipeline on the next pass.
func (r *PlaybookReconciler) materializeDiscovered(ctx context.Context, p *pass) {
	for _, discovered := range p.resolution.Missing {
		actor := &v1alpha1.Actor{
			ObjectMeta: metav1.ObjectMeta{
				Name:      discovered.Name,
				Namespace: p.playbook.Spec.Namespace,
			},
			Spec: v1alpha1.ActorSpec{
				Playbook: p.playbook.Name,
				Name:     discovered.Name,
				Source:   discovered.Source,
			},
		}

		if err := r.client.CreateActor(ctx, actor); err != nil {
			if apierrors.IsAlreadyExists(err) {
				continue
			}
			logging.Warn("Reconciler", "Failed to create discovered actor %s: %v", discovered.Name, err)
			p.transientErr = err
			continue
		}

		logging.Info("Reconciler", "Materialized discovered actor %s for playbook %s",
			discovered.Name, p.playbook.Name)
		r.recordActorEvent(ctx, actor, events.ReasonActorDiscovered, events.EventData{})
		p.requestRequeue(r.cfg.PollInterval)
	}
}

// advanceActor observes one actor's world, asks the engine for a decision,
// enacts its effects and persists the transition. A failure here is
// isolated: it marks the pass for requeue and leaves sibling actors alone.
func (r *PlaybookReconciler) advanceActor(ctx context.Context, p *pass, actor *v1alpha1.Actor) {
	stage := currentStage(actor)
	rev := p.resolution.Revisions[actor.Spec.Name]

	r.recordDiscoveredDependencies(ctx, p, actor)

	// A Running actor whose source moved either live-syncs or restarts.
	if stage == v1alpha1.StageRunning && rev != "" && actor.Status.ResolvedRev != "" && rev != actor.Status.ResolvedRev {
		if !r.liveSyncEnabled(p.playbook, actor) {
			if r.cfg.RestartOnSourceChange {
				r.restartForSourceChange(ctx, p, actor, rev)
			}
			return
		}
	}

	obs, ok := r.observe(ctx, p, actor, stage, rev)
	if !ok {
		return
	}

	decision := r.engine.Advance(actor, obs)

	if err := r.enactEffects(ctx, p, actor, &decision, rev); err != nil {
		p.transientErr = err
		p.requestRequeue(r.cfg.PollInterval)
		return
	}

	r.applyDecision(ctx, p, actor, decision)

	// Stage objects report progress without producing watch events, so an
	// in-flight pipeline polls.
	switch p.stages[actor.Spec.Name] {
	case v1alpha1.StageResolving, v1alpha1.StageBuilding, v1alpha1.StagePushing,
		v1alpha1.StageDeploying, v1alpha1.StageSyncing:
		p.requestRequeue(r.cfg.PollInterval)
	}
}

// observe assembles the engine's view of the actor's world.
func (r *PlaybookReconciler) observe(ctx context.Context, p *pass, actor *v1alpha1.Actor, stage v1alpha1.Stage, rev string) (workflow.ObservedState, bool) {
	obs := workflow.ObservedState{
		Resolved: rev != "",
	}

	obs.DependenciesReady = r.dependenciesReady(ctx, p, actor)

	clusterObs, err := r.effector.Observe(ctx, actor, p.playbook.Spec.Namespace)
	if err != nil {
		logging.Warn("Reconciler", "Failed to observe actor %s: %v", actor.Spec.Name, err)
		p.transientErr = err
		p.requestRequeue(r.cfg.PollInterval)
		return obs, false
	}
	obs.BuildComplete = clusterObs.BuildComplete
	obs.BuildFailed = clusterObs.BuildFailed
	obs.PushComplete = clusterObs.PushComplete
	obs.PushFailed = clusterObs.PushFailed
	obs.DeploymentReady = clusterObs.DeploymentReady
	obs.DeploymentFailed = clusterObs.DeploymentFailed

	if stage == v1alpha1.StageRunning && rev != "" && actor.Status.ResolvedRev != "" &&
		rev != actor.Status.ResolvedRev && r.liveSyncEnabled(p.playbook, actor) {
		obs.SyncRequested = true
	}
	if stage == v1alpha1.StageSyncing {
		obs.SyncApplied = r.syncer.State(p.playbook.Name, actor.Spec.Name) == syncer.StateApplied
	}
	if stage == v1alpha1.StageFailed {
		obs.RetryRequested = r.retryRequested(p, actor)
	}

	return obs, true
}

// dependenciesReady reports whether every dependency of the actor has
// reached Running, holding the actor at Pending otherwise. Dependents of a
// Failed dependency are held, not failed, so the root cause stays visible.
func (r *PlaybookReconciler) dependenciesReady(ctx context.Context, p *pass, actor *v1alpha1.Actor) bool {
	ready := true
	var heldBy string

	for _, dep := range p.resolution.Graph.Dependencies(dependency.NodeID(actor.Spec.Name)) {
		depStage, known := p.stages[string(dep)]
		if !known {
			// Record not materialized yet.
			ready = false
			continue
		}
		switch depStage {
		case v1alpha1.StageRunning, v1alpha1.StageSyncing:
			// Satisfied.
		case v1alpha1.StageFailed:
			ready = false
			heldBy = string(dep)
		default:
			ready = false
		}
	}

	if currentStage(actor) != v1alpha1.StagePending {
		return ready
	}

	if heldBy != "" {
		flipped := apimeta.SetStatusCondition(&actor.Status.Conditions, metav1.Condition{
			Type:    conditionDependencyHeld,
			Status:  metav1.ConditionTrue,
			Reason:  "DependencyFailed",
			Message: fmt.Sprintf("dependency %s is Failed", heldBy),
		})
		if flipped {
			r.persistStatus(ctx, p, actor)
			r.recordActorEvent(ctx, actor, events.ReasonDependencyHeld, events.EventData{
				Error: fmt.Sprintf("dependency %s failed", heldBy),
			})
		}
	} else {
		flipped := apimeta.SetStatusCondition(&actor.Status.Conditions, metav1.Condition{
			Type:   conditionDependencyHeld,
			Status: metav1.ConditionFalse,
			Reason: "DependenciesHealthy",
		})
		if flipped {
			r.persistStatus(ctx, p, actor)
		}
	}

	return ready
}

// retryRequested decides whether a Failed actor re-enters the pipeline this
// pass: either the operator asked via annotation, or the failure was
// transient and its backoff window has elapsed.
func (r *PlaybookReconciler) retryRequested(p *pass, actor *v1alpha1.Actor) bool {
	if _, ok := actor.Annotations[AnnotationRetry]; ok {
		// Manual retry is the documented intervention for an exhausted
		// budget, so the count starts over.
		actor.Status.RetryCount = 0
		return true
	}

	cond := apimeta.FindStatusCondition(actor.Status.Conditions, conditionRetryable)
	if cond == nil || cond.Status != metav1.ConditionTrue {
		return false
	}
	if actor.Status.RetryCount >= r.cfg.RetryBudget {
		return false
	}

	wait := r.backoff(actor.Status.RetryCount)
	elapsed := time.Since(cond.LastTransitionTime.Time)
	if elapsed < wait {
		p.requestRequeue(wait - elapsed)
		return false
	}
	return true
}

// backoff returns the delay before retry number count+1.
func (r *PlaybookReconciler) backoff(count int) time.Duration {
	if count < 1 {
		count = 1
	}
	d := r.cfg.BackoffBase * time.Duration(1<<uint(count-1))
	if d > r.cfg.BackoffCap {
		d = r.cfg.BackoffCap
	}
	return d
}

// liveSyncEnabled reports whether source changes to this actor are shipped
// as live patches instead of a rebuild.
func (r *PlaybookReconciler) liveSyncEnabled(playbook *v1alpha1.Playbook, actor *v1alpha1.Actor) bool {
	return playbook.Spec.Sync || actor.Spec.Live
}

// enactEffects performs the side effects a decision asks for. Effects are
// idempotent, so re-enacting after a failed status write is safe.
func (r *PlaybookReconciler) enactEffects(ctx context.Context, p *pass, actor *v1alpha1.Actor, decision *workflow.Decision, rev string) error {
	namespace := p.playbook.Spec.Namespace

	for _, effect := range decision.Effects {
		var err error
		switch effect.Type {
		case workflow.EffectBuild:
			if err = r.effector.ApplyWorkspace(ctx, actor, namespace); err == nil {
				err = r.effector.ApplyBuildJob(ctx, actor, namespace, rev)
			}
		case workflow.EffectPush:
			err = r.effector.ApplyPushJob(ctx, actor, namespace, rev)
		case workflow.EffectDeploy:
			err = r.effector.ApplyDeployment(ctx, actor, namespace, rev)
		case workflow.EffectSync:
			err = r.syncer.Request(ctx, syncer.Request{
				Playbook:  p.playbook.Name,
				Actor:     actor.Spec.Name,
				Namespace: namespace,
				Rev:       rev,
			})
		case workflow.EffectRecordError:
			recordActorError(actor, effect.Reason)
		}

		if err == nil {
			continue
		}
		if resources.IsTransient(err) {
			return fmt.Errorf("enacting %s for actor %s: %w", effect.Type, actor.Spec.Name, err)
		}

		// A permanent apply failure (forbidden, invalid spec) fails the
		// actor instead of retrying forever.
		logging.Warn("Reconciler", "Permanent failure enacting %s for actor %s: %v",
			effect.Type, actor.Spec.Name, err)
		recordActorError(actor, err.Error())
		*decision = workflow.Decision{
			Stage: v1alpha1.StageFailed,
		}
		return nil
	}
	return nil
}

// applyDecision persists a stage transition, publishes it on the bus and
// records the matching Kubernetes Event.
func (r *PlaybookReconciler) applyDecision(ctx context.Context, p *pass, actor *v1alpha1.Actor, decision workflow.Decision) {
	from := currentStage(actor)
	if !decision.Changed(from) {
		return
	}

	if err := workflow.Validate(from, decision.Stage); err != nil {
		logging.Error("Reconciler", err, "Refusing transition for actor %s", actor.Spec.Name)
		return
	}

	actor.Status.Stage = decision.Stage
	actor.Status.Revision++

	rev := p.resolution.Revisions[actor.Spec.Name]

	switch decision.Stage {
	case v1alpha1.StageBuilding:
		actor.Status.ResolvedRev = rev

	case v1alpha1.StageRunning:
		if from == v1alpha1.StageSyncing {
			if applied := r.syncer.AppliedRev(p.playbook.Name, actor.Spec.Name); applied != "" {
				actor.Status.ResolvedRev = applied
			}
			r.syncer.Clear(p.playbook.Name, actor.Spec.Name)
		}

	case v1alpha1.StageFailed:
		if decision.Retryable {
			actor.Status.RetryCount++
		}
		apimeta.SetStatusCondition(&actor.Status.Conditions, metav1.Condition{
			Type:    conditionRetryable,
			Status:  boolCondition(decision.Retryable),
			Reason:  failureReason(decision.Retryable),
			Message: actor.Status.LastError,
		})

	case v1alpha1.StagePending:
		// Retry out of Failed: partial state is reset, error history kept.
		actor.Status.LastError = ""
		apimeta.RemoveStatusCondition(&actor.Status.Conditions, conditionRetryable)
		if _, ok := actor.Annotations[AnnotationRetry]; ok {
			delete(actor.Annotations, AnnotationRetry)
			if err := r.client.UpdateActor(ctx, actor); err != nil {
				logging.Warn("Reconciler", "Failed to clear retry annotation on actor %s: %v",
					actor.Spec.Name, err)
			}
		}
	}

	if decision.ResetRetries {
		actor.Status.RetryCount = 0
		apimeta.RemoveStatusCondition(&actor.Status.Conditions, conditionRetryable)
	}

	if !r.persistStatus(ctx, p, actor) {
		// Status write failed; stage stays as persisted, effects re-run
		// idempotently next pass.
		actor.Status.Stage = from
		actor.Status.Revision--
		return
	}

	p.stages[actor.Spec.Name] = decision.Stage
	logging.Info("Reconciler", "Actor %s/%s: %s -> %s",
		p.playbook.Name, actor.Spec.Name, from, decision.Stage)

	change := events.StageChange{
		Playbook: p.playbook.Name,
		Actor:    actor.Spec.Name,
		From:     from,
		To:       decision.Stage,
		Revision: actor.Status.Revision,
		Error:    actor.Status.LastError,
	}
	r.bus.Publish(change)

	if reason, ok := events.StageChangeReason(change); ok {
		r.recordActorEvent(ctx, actor, reason, events.EventData{
			Stage:    string(decision.Stage),
			Revision: actor.Status.ResolvedRev,
			Error:    actor.Status.LastError,
			Attempt:  actor.Status.RetryCount,
		})
	}

	// Earlier stages' objects come down once the next stage is confirmed.
	if err := r.effector.CleanupForStage(ctx, actor, p.playbook.Spec.Namespace, decision.Stage); err != nil {
		logging.Warn("Reconciler", "Cleanup after %s for actor %s: %v",
			decision.Stage, actor.Spec.Name, err)
	}
}

// recordDiscoveredDependencies mirrors the resolver's manifest findings
// onto the actor status.
func (r *PlaybookReconciler) recordDiscoveredDependencies(ctx context.Context, p *pass, actor *v1alpha1.Actor) {
	discovered := p.resolution.Discovered[actor.Spec.Name]
	if stringSlicesEqual(actor.Status.DiscoveredDependencies, discovered) {
		return
	}
	actor.Status.DiscoveredDependencies = discovered
	r.persistStatus(ctx, p, actor)
}

// persistStatus writes the actor status, reporting success.
func (r *PlaybookReconciler) persistStatus(ctx context.Context, p *pass, actor *v1alpha1.Actor) bool {
	GetReconcilerMetrics().RecordStatusSyncAttempt(p.playbook.Name)
	if err := r.client.UpdateActorStatus(ctx, actor); err != nil {
		GetReconcilerMetrics().RecordStatusSyncFailure(p.playbook.Name, err.Error())
		p.transientErr = fmt.Errorf("updating status of actor %s: %w", actor.Spec.Name, err)
		return false
	}
	GetReconcilerMetrics().RecordStatusSyncSuccess(p.playbook.Name)
	return true
}

// restartForSourceChange resets a Running actor to Pending so the pipeline
// rebuilds from the new revision. This is a reset, not a pipeline
// transition, the same escape hatch as retry-from-Failed.
func (r *PlaybookReconciler) restartForSourceChange(ctx context.Context, p *pass, actor *v1alpha1.Actor, rev string) {
	logging.Info("Reconciler", "Actor %s/%s source moved to %s, restarting pipeline",
		p.playbook.Name, actor.Spec.Name, rev)

	from := currentStage(actor)
	actor.Status.Stage = v1alpha1.StagePending
	actor.Status.Revision++

	if !r.persistStatus(ctx, p, actor) {
		actor.Status.Stage = from
		actor.Status.Revision--
		return
	}
	p.stages[actor.Spec.Name] = v1alpha1.StagePending

	r.bus.Publish(events.StageChange{
		Playbook: p.playbook.Name,
		Actor:    actor.Spec.Name,
		From:     from,
		To:       v1alpha1.StagePending,
		Revision: actor.Status.Revision,
	})
	r.recordActorEvent(ctx, actor, events.ReasonSourceChanged, events.EventData{
		Revision: rev,
	})
}

// updatePlaybookStatus derives the playbook phase and actor summary from
// this pass's stages and persists them when they changed.
func (r *PlaybookReconciler) updatePlaybookStatus(ctx context.Context, p *pass) {
	summary := make(map[string]v1alpha1.Stage, len(p.stages))
	for name, stage := range p.stages {
		summary[name] = stage
	}

	phase := derivePhase(p.stages)

	// An unresolved playbook is Failed regardless of actor stages; the
	// definition itself is broken.
	if resolved := apimeta.FindStatusCondition(p.playbook.Status.Conditions, conditionResolved); resolved != nil && resolved.Status == metav1.ConditionFalse {
		phase = v1alpha1.PlaybookPhaseFailed
	}

	changed := p.playbook.Status.Phase != phase || !stageSummariesEqual(p.playbook.Status.ActorSummary, summary)
	wasRunning := p.playbook.Status.Phase == v1alpha1.PlaybookPhaseRunning

	p.playbook.Status.Phase = phase
	p.playbook.Status.ActorSummary = summary

	if !changed {
		return
	}

	GetReconcilerMetrics().RecordStatusSyncAttempt(p.playbook.Name)
	if err := r.client.UpdatePlaybookStatus(ctx, p.playbook); err != nil {
		GetReconcilerMetrics().RecordStatusSyncFailure(p.playbook.Name, err.Error())
		p.transientErr = fmt.Errorf("updating status of playbook %s: %w", p.playbook.Name, err)
		return
	}
	GetReconcilerMetrics().RecordStatusSyncSuccess(p.playbook.Name)

	if phase == v1alpha1.PlaybookPhaseRunning && !wasRunning {
		r.recordPlaybookEvent(ctx, p.playbook, events.ReasonPlaybookRunning, events.EventData{})
	}
}

// derivePhase computes the playbook phase from the constituent actors.
func derivePhase(stages map[string]v1alpha1.Stage) v1alpha1.PlaybookPhase {
	if len(stages) == 0 {
		return v1alpha1.PlaybookPhasePending
	}

	allRunning := true
	allPending := true
	for _, stage := range stages {
		if stage == v1alpha1.StageFailed {
			return v1alpha1.PlaybookPhaseFailed
		}
		if stage != v1alpha1.StageRunning {
			allRunning = false
		}
		if stage != v1alpha1.StagePending && stage != "" {
			allPending = false
		}
	}
	if allRunning {
		return v1alpha1.PlaybookPhaseRunning
	}
	if allPending {
		return v1alpha1.PlaybookPhasePending
	}
	return v1alpha1.PlaybookPhaseProgressing
}

func (r *PlaybookReconciler) recordPlaybookEvent(ctx context.Context, playbook *v1alpha1.Playbook, reason events.EventReason, data events.EventData) {
	if r.generator == nil {
		return
	}
	if err := r.generator.PlaybookEvent(ctx, playbook, reason, data); err != nil {
		logging.Debug("Reconciler", "Failed to record playbook event %s: %v", reason, err)
	}
}

func (r *PlaybookReconciler) recordActorEvent(ctx context.Context, actor *v1alpha1.Actor, reason events.EventReason, data events.EventData) {
	if r.generator == nil {
		return
	}
	if err := r.generator.ActorEvent(ctx, actor, reason, data); err != nil {
		logging.Debug("Reconciler", "Failed to record actor event %s: %v", reason, err)
	}
}

// recordActorError stores a failure cause on the actor, keeping history
// across retries without duplicating consecutive identical causes.
func recordActorError(actor *v1alpha1.Actor, cause string) {
	actor.Status.LastError = cause
	n := len(actor.Status.ErrorHistory)
	if n == 0 || actor.Status.ErrorHistory[n-1] != cause {
		actor.Status.ErrorHistory = append(actor.Status.ErrorHistory, cause)
	}
}

func currentStage(actor *v1alpha1.Actor) v1alpha1.Stage {
	if actor.Status.Stage == "" {
		return v1alpha1.StagePending
	}
	return actor.Status.Stage
}

func findActor(actors []v1alpha1.Actor, name string) *v1alpha1.Actor {
	for i := range actors {
		if actors[i].Spec.Name == name {
			return &actors[i]
		}
	}
	return nil
}

func boolCondition(b bool) metav1.ConditionStatus {
	if b {
		return metav1.ConditionTrue
	}
	return metav1.ConditionFalse
}

func failureReason(retryable bool) string {
	if retryable {
		return "TransientFailure"
	}
	return "PermanentFailure"
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func stageSummariesEqual(a, b map[string]v1alpha1.Stage) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
