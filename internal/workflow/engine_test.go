package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1alpha1 "stagehand/pkg/apis/stagehand/v1alpha1"
)

func actorAt(stage v1alpha1.Stage, retries int) *v1alpha1.Actor {
	return &v1alpha1.Actor{
		Spec: v1alpha1.ActorSpec{Name: "api", Playbook: "demo"},
		Status: v1alpha1.ActorStatus{
			Stage:      stage,
			RetryCount: retries,
		},
	}
}

func effectTypes(effects []Effect) []EffectType {
	if len(effects) == 0 {
		return nil
	}
	types := make([]EffectType, 0, len(effects))
	for _, e := range effects {
		types = append(types, e.Type)
	}
	return types
}

func TestAdvanceTransitionTable(t *testing.T) {
	engine := NewEngine(3)

	tests := []struct {
		name      string
		from      v1alpha1.Stage
		obs       ObservedState
		want      v1alpha1.Stage
		effects   []EffectType
		retryable bool
	}{
		{
			name: "pending holds without dependencies",
			from: v1alpha1.StagePending,
			obs:  ObservedState{},
			want: v1alpha1.StagePending,
		},
		{
			name: "pending advances when dependencies satisfied",
			from: v1alpha1.StagePending,
			obs:  ObservedState{DependenciesReady: true},
			want: v1alpha1.StageResolving,
		},
		{
			name:    "resolving success requests build",
			from:    v1alpha1.StageResolving,
			obs:     ObservedState{Resolved: true},
			want:    v1alpha1.StageBuilding,
			effects: []EffectType{EffectBuild},
		},
		{
			name:    "resolving failure is terminal configuration error",
			from:    v1alpha1.StageResolving,
			obs:     ObservedState{ResolveFailed: "dependency cycle: a -> b -> a"},
			want:    v1alpha1.StageFailed,
			effects: []EffectType{EffectRecordError},
		},
		{
			name:    "building complete requests push",
			from:    v1alpha1.StageBuilding,
			obs:     ObservedState{BuildComplete: true},
			want:    v1alpha1.StagePushing,
			effects: []EffectType{EffectPush},
		},
		{
			name:      "building failure is retryable",
			from:      v1alpha1.StageBuilding,
			obs:       ObservedState{BuildFailed: "job backoff limit exceeded"},
			want:      v1alpha1.StageFailed,
			effects:   []EffectType{EffectRecordError},
			retryable: true,
		},
		{
			name:    "push complete requests deployment",
			from:    v1alpha1.StagePushing,
			obs:     ObservedState{PushComplete: true},
			want:    v1alpha1.StageDeploying,
			effects: []EffectType{EffectDeploy},
		},
		{
			name:      "push failure is retryable",
			from:      v1alpha1.StagePushing,
			obs:       ObservedState{PushFailed: "registry throttled"},
			want:      v1alpha1.StageFailed,
			effects:   []EffectType{EffectRecordError},
			retryable: true,
		},
		{
			name: "deployment ready reaches running",
			from: v1alpha1.StageDeploying,
			obs:  ObservedState{DeploymentReady: true},
			want: v1alpha1.StageRunning,
		},
		{
			name:      "deployment failure is retryable",
			from:      v1alpha1.StageDeploying,
			obs:       ObservedState{DeploymentFailed: "progress deadline exceeded"},
			want:      v1alpha1.StageFailed,
			effects:   []EffectType{EffectRecordError},
			retryable: true,
		},
		{
			name:    "running with sync signal starts syncing",
			from:    v1alpha1.StageRunning,
			obs:     ObservedState{SyncRequested: true},
			want:    v1alpha1.StageSyncing,
			effects: []EffectType{EffectSync},
		},
		{
			name: "syncing returns to running when applied",
			from: v1alpha1.StageSyncing,
			obs:  ObservedState{SyncApplied: true},
			want: v1alpha1.StageRunning,
		},
		{
			name: "running stays put without signals",
			from: v1alpha1.StageRunning,
			obs:  ObservedState{},
			want: v1alpha1.StageRunning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actor := actorAt(tt.from, 0)
			decision := engine.Advance(actor, tt.obs)

			assert.Equal(t, tt.want, decision.Stage)
			assert.Equal(t, tt.effects, effectTypes(decision.Effects))
			assert.Equal(t, tt.retryable, decision.Retryable)
			require.NoError(t, Validate(tt.from, decision.Stage))
		})
	}
}

func TestAdvanceEmptyStageDefaultsToPending(t *testing.T) {
	engine := NewEngine(3)
	actor := actorAt("", 0)

	decision := engine.Advance(actor, ObservedState{})
	assert.Equal(t, v1alpha1.StagePending, decision.Stage)
}

func TestAdvanceLevelTriggeredIdempotence(t *testing.T) {
	engine := NewEngine(3)
	actor := actorAt(v1alpha1.StageBuilding, 0)
	obs := ObservedState{} // nothing observed yet

	first := engine.Advance(actor, obs)
	second := engine.Advance(actor, obs)

	assert.Equal(t, v1alpha1.StageBuilding, first.Stage)
	assert.Equal(t, first, second)
	assert.Empty(t, first.Effects)
}

func TestAdvanceRetryBudget(t *testing.T) {
	engine := NewEngine(2)

	// Budget remains: Failed re-enters at Pending.
	actor := actorAt(v1alpha1.StageFailed, 1)
	decision := engine.Advance(actor, ObservedState{RetryRequested: true})
	assert.Equal(t, v1alpha1.StagePending, decision.Stage)

	// Budget exhausted: Failed is absorbing.
	actor = actorAt(v1alpha1.StageFailed, 2)
	decision = engine.Advance(actor, ObservedState{RetryRequested: true})
	assert.Equal(t, v1alpha1.StageFailed, decision.Stage)
	assert.Empty(t, decision.Effects)
}

func TestAdvanceFailedWithoutRetryRequestHolds(t *testing.T) {
	engine := NewEngine(3)
	actor := actorAt(v1alpha1.StageFailed, 0)

	decision := engine.Advance(actor, ObservedState{})
	assert.Equal(t, v1alpha1.StageFailed, decision.Stage)
}

func TestDeploymentReadyResetsRetries(t *testing.T) {
	engine := NewEngine(3)
	actor := actorAt(v1alpha1.StageDeploying, 2)

	decision := engine.Advance(actor, ObservedState{DeploymentReady: true})
	assert.Equal(t, v1alpha1.StageRunning, decision.Stage)
	assert.True(t, decision.ResetRetries)
}

func TestValidate(t *testing.T) {
	legal := [][2]v1alpha1.Stage{
		{v1alpha1.StagePending, v1alpha1.StageResolving},
		{v1alpha1.StageResolving, v1alpha1.StageBuilding},
		{v1alpha1.StageResolving, v1alpha1.StageFailed},
		{v1alpha1.StageBuilding, v1alpha1.StagePushing},
		{v1alpha1.StagePushing, v1alpha1.StageDeploying},
		{v1alpha1.StageDeploying, v1alpha1.StageRunning},
		{v1alpha1.StageRunning, v1alpha1.StageSyncing},
		{v1alpha1.StageSyncing, v1alpha1.StageRunning},
		{v1alpha1.StageFailed, v1alpha1.StagePending},
		{v1alpha1.StageRunning, v1alpha1.StageRunning}, // no-op
	}
	for _, pair := range legal {
		assert.NoError(t, Validate(pair[0], pair[1]), "%s -> %s", pair[0], pair[1])
	}

	illegal := [][2]v1alpha1.Stage{
		{v1alpha1.StagePending, v1alpha1.StageBuilding},
		{v1alpha1.StageRunning, v1alpha1.StagePending},
		{v1alpha1.StageFailed, v1alpha1.StageRunning},
		{v1alpha1.StageBuilding, v1alpha1.StageDeploying},
	}
	for _, pair := range illegal {
		assert.Error(t, Validate(pair[0], pair[1]), "%s -> %s", pair[0], pair[1])
	}
}
