package events

import (
	"context"

	"sigs.k8s.io/controller-runtime/pkg/client"

	v1alpha1 "stagehand/pkg/apis/stagehand/v1alpha1"
	"stagehand/pkg/logging"
)

// Recorder is the sink the generator writes Kubernetes Events through.
// The unified stage client satisfies it in both Kubernetes and filesystem
// modes.
type Recorder interface {
	CreateEvent(ctx context.Context, obj client.Object, reason, message, eventType string) error
}

// Generator renders and records Events for Playbook and Actor transitions.
type Generator struct {
	recorder  Recorder
	templates *MessageTemplateEngine
}

// NewGenerator creates a Generator writing through the given recorder.
func NewGenerator(recorder Recorder) *Generator {
	return &Generator{
		recorder:  recorder,
		templates: NewMessageTemplateEngine(),
	}
}

// PlaybookEvent records an event against a Playbook.
func (g *Generator) PlaybookEvent(ctx context.Context, playbook *v1alpha1.Playbook, reason EventReason, data EventData) error {
	data.Name = playbook.Name
	if data.Namespace == "" {
		data.Namespace = playbook.Spec.Namespace
	}

	message := g.templates.Render(reason, data)
	eventType := string(getEventType(reason))

	logging.Debug("Events", "Recording playbook event: reason=%s, message=%s, type=%s",
		string(reason), message, eventType)

	return g.recorder.CreateEvent(ctx, playbook, string(reason), message, eventType)
}

// ActorEvent records an event against an Actor.
func (g *Generator) ActorEvent(ctx context.Context, actor *v1alpha1.Actor, reason EventReason, data EventData) error {
	data.Name = actor.Spec.Name
	data.Namespace = actor.Namespace
	data.Playbook = actor.Spec.Playbook

	message := g.templates.Render(reason, data)
	eventType := string(getEventType(reason))

	logging.Debug("Events", "Recording actor event: reason=%s, message=%s, type=%s",
		string(reason), message, eventType)

	return g.recorder.CreateEvent(ctx, actor, string(reason), message, eventType)
}

// StageChangeReason maps a persisted stage transition to the event reason
// recorded for it. Returns false for transitions that produce no event.
func StageChangeReason(change StageChange) (EventReason, bool) {
	switch change.To {
	case v1alpha1.StageBuilding:
		return ReasonBuildStarted, true
	case v1alpha1.StagePushing:
		return ReasonBuildSucceeded, true
	case v1alpha1.StageDeploying:
		return ReasonPushSucceeded, true
	case v1alpha1.StageRunning:
		return ReasonActorRunning, true
	case v1alpha1.StageFailed:
		return ReasonActorFailed, true
	case v1alpha1.StagePending:
		if change.From == v1alpha1.StageFailed {
			return ReasonRetryScheduled, true
		}
	}
	return "", false
}

// SetTemplate allows customizing the message template for a specific event reason.
func (g *Generator) SetTemplate(reason EventReason, template string) {
	g.templates.SetTemplate(reason, template)
}
