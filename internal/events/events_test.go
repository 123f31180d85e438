package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	v1alpha1 "stagehand/pkg/apis/stagehand/v1alpha1"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch1, cancel1 := bus.Subscribe()
	defer cancel1()
	ch2, cancel2 := bus.Subscribe()
	defer cancel2()

	delivered := bus.Publish(StageChange{
		Playbook: "demo",
		Actor:    "api",
		From:     v1alpha1.StagePending,
		To:       v1alpha1.StageResolving,
		Revision: 1,
	})
	require.True(t, delivered)

	for _, ch := range []<-chan StageChange{ch1, ch2} {
		select {
		case change := <-ch:
			assert.Equal(t, "api", change.Actor)
			assert.Equal(t, v1alpha1.StageResolving, change.To)
			assert.NotEmpty(t, change.ID)
			assert.False(t, change.Time.IsZero())
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the change")
		}
	}
}

func TestBusDeduplicatesByRevision(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	defer cancel()

	change := StageChange{Playbook: "demo", Actor: "api", To: v1alpha1.StageBuilding, Revision: 3}
	require.True(t, bus.Publish(change))

	// Republishing the same revision is dropped, as is anything older.
	assert.False(t, bus.Publish(change))
	assert.False(t, bus.Publish(StageChange{Playbook: "demo", Actor: "api", To: v1alpha1.StageResolving, Revision: 2}))

	// A newer revision goes through.
	require.True(t, bus.Publish(StageChange{Playbook: "demo", Actor: "api", To: v1alpha1.StagePushing, Revision: 4}))

	// Another actor with the same revision number is unaffected.
	require.True(t, bus.Publish(StageChange{Playbook: "demo", Actor: "db", To: v1alpha1.StageBuilding, Revision: 3}))

	seen := 0
	for {
		select {
		case <-ch:
			seen++
		default:
			assert.Equal(t, 3, seen)
			return
		}
	}
}

func TestBusForget(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	require.True(t, bus.Publish(StageChange{Playbook: "demo", Actor: "api", Revision: 5}))
	assert.False(t, bus.Publish(StageChange{Playbook: "demo", Actor: "api", Revision: 5}))

	bus.Forget("demo", "api")
	assert.True(t, bus.Publish(StageChange{Playbook: "demo", Actor: "api", Revision: 5}))
}

func TestBusPublishAfterClose(t *testing.T) {
	bus := NewBus()
	bus.Close()
	assert.False(t, bus.Publish(StageChange{Playbook: "demo", Actor: "api", Revision: 1}))
}

func TestTemplateRendering(t *testing.T) {
	engine := NewMessageTemplateEngine()

	message := engine.Render(ReasonBuildFailed, EventData{
		Name:  "api",
		Error: "backoff limit exceeded",
	})
	assert.Equal(t, "Build failed for actor api: backoff limit exceeded", message)

	// Conditional block drops cleanly without an error.
	message = engine.Render(ReasonBuildFailed, EventData{Name: "api"})
	assert.Equal(t, "Build failed for actor api", message)

	message = engine.Render(ReasonRetryScheduled, EventData{Name: "api", Attempt: 2})
	assert.Equal(t, "Retry scheduled for actor api (attempt 2)", message)

	// Unknown reasons fall back to a generic message.
	message = engine.Render(EventReason("Bogus"), EventData{Name: "api", Namespace: "stage-demo"})
	assert.Equal(t, "Event: Bogus for stage-demo/api", message)
}

func TestEventTypeClassification(t *testing.T) {
	assert.Equal(t, EventTypeWarning, getEventType(ReasonActorFailed))
	assert.Equal(t, EventTypeWarning, getEventType(ReasonBuildFailed))
	assert.Equal(t, EventTypeWarning, getEventType(ReasonDependencyHeld))
	assert.Equal(t, EventTypeNormal, getEventType(ReasonActorRunning))
	assert.Equal(t, EventTypeNormal, getEventType(ReasonRetryScheduled))
}

type recordedEvent struct {
	reason    string
	message   string
	eventType string
}

type fakeRecorder struct {
	events []recordedEvent
}

func (f *fakeRecorder) CreateEvent(_ context.Context, _ client.Object, reason, message, eventType string) error {
	f.events = append(f.events, recordedEvent{reason, message, eventType})
	return nil
}

func TestGeneratorActorEvent(t *testing.T) {
	recorder := &fakeRecorder{}
	gen := NewGenerator(recorder)

	actor := &v1alpha1.Actor{
		ObjectMeta: metav1.ObjectMeta{Name: "api", Namespace: "stage-demo"},
		Spec:       v1alpha1.ActorSpec{Playbook: "demo", Name: "api"},
	}

	err := gen.ActorEvent(context.Background(), actor, ReasonActorFailed, EventData{
		Stage: string(v1alpha1.StageBuilding),
		Error: "image build failed",
	})
	require.NoError(t, err)

	require.Len(t, recorder.events, 1)
	assert.Equal(t, "ActorFailed", recorder.events[0].reason)
	assert.Equal(t, "Warning", recorder.events[0].eventType)
	assert.Equal(t, "Actor api failed at stage Building: image build failed", recorder.events[0].message)
}

func TestStageChangeReason(t *testing.T) {
	tests := []struct {
		from, to v1alpha1.Stage
		reason   EventReason
		ok       bool
	}{
		{v1alpha1.StageResolving, v1alpha1.StageBuilding, ReasonBuildStarted, true},
		{v1alpha1.StageBuilding, v1alpha1.StagePushing, ReasonBuildSucceeded, true},
		{v1alpha1.StagePushing, v1alpha1.StageDeploying, ReasonPushSucceeded, true},
		{v1alpha1.StageDeploying, v1alpha1.StageRunning, ReasonActorRunning, true},
		{v1alpha1.StageBuilding, v1alpha1.StageFailed, ReasonActorFailed, true},
		{v1alpha1.StageFailed, v1alpha1.StagePending, ReasonRetryScheduled, true},
		{"", v1alpha1.StagePending, "", false},
		{v1alpha1.StagePending, v1alpha1.StageResolving, "", false},
	}

	for _, tc := range tests {
		reason, ok := StageChangeReason(StageChange{From: tc.from, To: tc.to})
		assert.Equal(t, tc.ok, ok, "transition %s -> %s", tc.from, tc.to)
		if tc.ok {
			assert.Equal(t, tc.reason, reason, "transition %s -> %s", tc.from, tc.to)
		}
	}
}
