package resources

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	v1alpha1 "stagehand/pkg/apis/stagehand/v1alpha1"
)

func localTestPlaybook() *v1alpha1.Playbook {
	return &v1alpha1.Playbook{
		ObjectMeta: metav1.ObjectMeta{Name: "demo"},
		Spec:       v1alpha1.PlaybookSpec{Namespace: "stage-demo"},
	}
}

func TestLocalManagerNamespaceLifecycle(t *testing.T) {
	l := NewLocalManager()
	actor := testActor()
	ctx := context.Background()

	require.NoError(t, l.EnsureNamespace(ctx, localTestPlaybook()))
	require.NoError(t, l.EnsureNamespace(ctx, localTestPlaybook()))

	require.NoError(t, l.ApplyBuildJob(ctx, actor, "stage-demo", "rev1"))

	// Teardown by playbook name forgets everything in the namespace.
	require.NoError(t, l.DeleteNamespaceForPlaybook(ctx, "demo"))
	obs, err := l.Observe(ctx, actor, "stage-demo")
	require.NoError(t, err)
	assert.Equal(t, Observation{}, obs)
}

func TestLocalManagerPipelineCompletesInstantly(t *testing.T) {
	l := NewLocalManager()
	actor := testActor()
	ctx := context.Background()

	require.NoError(t, l.EnsureNamespace(ctx, localTestPlaybook()))
	require.NoError(t, l.ApplyWorkspace(ctx, actor, "stage-demo"))

	obs, err := l.Observe(ctx, actor, "stage-demo")
	require.NoError(t, err)
	assert.Equal(t, Observation{}, obs, "no runs yet")

	require.NoError(t, l.ApplyBuildJob(ctx, actor, "stage-demo", "rev1"))
	obs, err = l.Observe(ctx, actor, "stage-demo")
	require.NoError(t, err)
	assert.True(t, obs.BuildComplete)
	assert.False(t, obs.PushComplete)

	require.NoError(t, l.ApplyPushJob(ctx, actor, "stage-demo", "rev1"))
	require.NoError(t, l.ApplyDeployment(ctx, actor, "stage-demo", "rev1"))
	obs, err = l.Observe(ctx, actor, "stage-demo")
	require.NoError(t, err)
	assert.True(t, obs.PushComplete)
	assert.True(t, obs.DeploymentStarted)
	assert.True(t, obs.DeploymentReady)

	// Cleanup mirrors the cluster effector: the build record goes once the
	// deployment is confirmed, the push record once the actor runs.
	require.NoError(t, l.CleanupForStage(ctx, actor, "stage-demo", v1alpha1.StageDeploying))
	obs, err = l.Observe(ctx, actor, "stage-demo")
	require.NoError(t, err)
	assert.False(t, obs.BuildComplete)
	assert.True(t, obs.DeploymentReady)

	require.NoError(t, l.CleanupForStage(ctx, actor, "stage-demo", v1alpha1.StageRunning))
	obs, err = l.Observe(ctx, actor, "stage-demo")
	require.NoError(t, err)
	assert.False(t, obs.PushComplete)
}
