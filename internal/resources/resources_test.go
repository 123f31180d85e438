package resources

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	v1alpha1 "stagehand/pkg/apis/stagehand/v1alpha1"
)

func newTestManager(t *testing.T, objs ...client.Object) (*Manager, client.Client) {
	t.Helper()

	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(v1alpha1.AddToScheme(scheme))

	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(objs...).Build()
	return NewManager(c, scheme, 0), c
}

func testActor() *v1alpha1.Actor {
	return &v1alpha1.Actor{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "api",
			Namespace: "stage-demo",
			UID:       "actor-uid-1",
		},
		Spec: v1alpha1.ActorSpec{
			Playbook: "demo",
			Name:     "api",
			Image:    "registry.example.com/demo/api:latest",
			Source:   v1alpha1.SourceReference{Repo: "https://example.com/api"},
			Ports:    []int32{8080},
		},
	}
}

func TestApplyWorkspaceIdempotent(t *testing.T) {
	m, c := newTestManager(t)
	actor := testActor()
	ctx := context.Background()

	require.NoError(t, m.ApplyWorkspace(ctx, actor, "stage-demo"))
	require.NoError(t, m.ApplyWorkspace(ctx, actor, "stage-demo"))

	var claims corev1.PersistentVolumeClaimList
	require.NoError(t, c.List(ctx, &claims, client.InNamespace("stage-demo")))
	require.Len(t, claims.Items, 1)

	claim := claims.Items[0]
	assert.Equal(t, "api-workspace", claim.Name)
	assert.Equal(t, "demo", claim.Labels[LabelPlaybook])
	require.Len(t, claim.OwnerReferences, 1)
	assert.Equal(t, "Actor", claim.OwnerReferences[0].Kind)
	assert.Equal(t, "api", claim.OwnerReferences[0].Name)
}

func TestApplyBuildJobPinnedToRevision(t *testing.T) {
	m, c := newTestManager(t)
	actor := testActor()
	ctx := context.Background()

	require.NoError(t, m.ApplyBuildJob(ctx, actor, "stage-demo", "rev1"))
	// Same revision: no-op.
	require.NoError(t, m.ApplyBuildJob(ctx, actor, "stage-demo", "rev1"))

	var jobs batchv1.JobList
	require.NoError(t, c.List(ctx, &jobs, client.InNamespace("stage-demo")))
	require.Len(t, jobs.Items, 1)
	assert.Equal(t, "rev1", jobs.Items[0].Annotations[annotationRev])

	// New revision replaces the job.
	require.NoError(t, m.ApplyBuildJob(ctx, actor, "stage-demo", "rev2"))
	var job batchv1.Job
	key := client.ObjectKey{Name: BuildJobName(actor), Namespace: "stage-demo"}
	require.NoError(t, c.Get(ctx, key, &job))
	assert.Equal(t, "rev2", job.Annotations[annotationRev])
}

func TestStageJobsCarryActiveDeadline(t *testing.T) {
	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(v1alpha1.AddToScheme(scheme))
	c := fake.NewClientBuilder().WithScheme(scheme).Build()

	m := NewManager(c, scheme, 5*time.Minute)
	actor := testActor()
	ctx := context.Background()

	require.NoError(t, m.ApplyBuildJob(ctx, actor, "stage-demo", "rev1"))
	require.NoError(t, m.ApplyPushJob(ctx, actor, "stage-demo", "rev1"))

	// A hung run must terminate on its own so the failure reaches the
	// retry policy instead of polling forever.
	var job batchv1.Job
	require.NoError(t, c.Get(ctx, client.ObjectKey{Name: BuildJobName(actor), Namespace: "stage-demo"}, &job))
	require.NotNil(t, job.Spec.ActiveDeadlineSeconds)
	assert.Equal(t, int64(300), *job.Spec.ActiveDeadlineSeconds)

	require.NoError(t, c.Get(ctx, client.ObjectKey{Name: PushJobName(actor), Namespace: "stage-demo"}, &job))
	require.NotNil(t, job.Spec.ActiveDeadlineSeconds)
	assert.Equal(t, int64(300), *job.Spec.ActiveDeadlineSeconds)

	// An unconfigured deadline falls back to the default.
	assert.Equal(t, defaultJobDeadline, NewManager(c, scheme, 0).jobDeadline)
}

func TestApplyDeploymentCreatesService(t *testing.T) {
	m, c := newTestManager(t)
	actor := testActor()
	ctx := context.Background()

	require.NoError(t, m.ApplyDeployment(ctx, actor, "stage-demo", "rev1"))

	var deployment appsv1.Deployment
	key := client.ObjectKey{Name: "api", Namespace: "stage-demo"}
	require.NoError(t, c.Get(ctx, key, &deployment))
	assert.Equal(t, actor.Spec.Image, deployment.Spec.Template.Spec.Containers[0].Image)

	var service corev1.Service
	require.NoError(t, c.Get(ctx, key, &service))
	require.Len(t, service.Spec.Ports, 1)
	assert.Equal(t, int32(8080), service.Spec.Ports[0].Port)
}

func TestApplyDeploymentIdempotent(t *testing.T) {
	m, c := newTestManager(t)
	actor := testActor()
	ctx := context.Background()

	require.NoError(t, m.ApplyDeployment(ctx, actor, "stage-demo", "rev1"))

	var before appsv1.Deployment
	key := client.ObjectKey{Name: "api", Namespace: "stage-demo"}
	require.NoError(t, c.Get(ctx, key, &before))

	// Unchanged revision must not touch the object.
	require.NoError(t, m.ApplyDeployment(ctx, actor, "stage-demo", "rev1"))
	var after appsv1.Deployment
	require.NoError(t, c.Get(ctx, key, &after))
	assert.Equal(t, before.ResourceVersion, after.ResourceVersion)

	// New revision rolls the pod template.
	require.NoError(t, m.ApplyDeployment(ctx, actor, "stage-demo", "rev2"))
	require.NoError(t, c.Get(ctx, key, &after))
	assert.Equal(t, "rev2", after.Annotations[annotationRev])
}

func TestApplyServiceUpdatesChangedPortNumber(t *testing.T) {
	m, c := newTestManager(t)
	actor := testActor()
	ctx := context.Background()

	require.NoError(t, m.ApplyDeployment(ctx, actor, "stage-demo", "rev1"))

	// Same port count, different number: the live Service must follow.
	actor.Spec.Ports = []int32{9090}
	require.NoError(t, m.ApplyDeployment(ctx, actor, "stage-demo", "rev1"))

	var service corev1.Service
	require.NoError(t, c.Get(ctx, client.ObjectKey{Name: "api", Namespace: "stage-demo"}, &service))
	require.Len(t, service.Spec.Ports, 1)
	assert.Equal(t, int32(9090), service.Spec.Ports[0].Port)
	assert.Equal(t, int32(9090), service.Spec.Ports[0].TargetPort.IntVal)
}

func TestObserveJobConditions(t *testing.T) {
	actor := testActor()

	completed := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: BuildJobName(actor), Namespace: "stage-demo"},
		Status: batchv1.JobStatus{
			Conditions: []batchv1.JobCondition{{
				Type:   batchv1.JobComplete,
				Status: corev1.ConditionTrue,
			}},
		},
	}

	m, _ := newTestManager(t, completed)
	obs, err := m.Observe(context.Background(), actor, "stage-demo")
	require.NoError(t, err)
	assert.True(t, obs.BuildComplete)
	assert.Empty(t, obs.BuildFailed)

	failed := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: BuildJobName(actor), Namespace: "stage-demo"},
		Status: batchv1.JobStatus{
			Conditions: []batchv1.JobCondition{{
				Type:    batchv1.JobFailed,
				Status:  corev1.ConditionTrue,
				Message: "backoff limit exceeded",
			}},
		},
	}

	m, _ = newTestManager(t, failed)
	obs, err = m.Observe(context.Background(), actor, "stage-demo")
	require.NoError(t, err)
	assert.False(t, obs.BuildComplete)
	assert.Equal(t, "backoff limit exceeded", obs.BuildFailed)

	// Deadline expiry reports only a reason; it still surfaces as failure.
	expired := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: BuildJobName(actor), Namespace: "stage-demo"},
		Status: batchv1.JobStatus{
			Conditions: []batchv1.JobCondition{{
				Type:   batchv1.JobFailed,
				Status: corev1.ConditionTrue,
				Reason: "DeadlineExceeded",
			}},
		},
	}

	m, _ = newTestManager(t, expired)
	obs, err = m.Observe(context.Background(), actor, "stage-demo")
	require.NoError(t, err)
	assert.Equal(t, "DeadlineExceeded", obs.BuildFailed)
}

func TestObserveMissingObjectsIsZero(t *testing.T) {
	m, _ := newTestManager(t)
	obs, err := m.Observe(context.Background(), testActor(), "stage-demo")
	require.NoError(t, err)
	assert.Equal(t, Observation{}, obs)
}

func TestObserveDeploymentConditions(t *testing.T) {
	actor := testActor()

	ready := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "api", Namespace: "stage-demo"},
		Status: appsv1.DeploymentStatus{
			Conditions: []appsv1.DeploymentCondition{{
				Type:   appsv1.DeploymentAvailable,
				Status: corev1.ConditionTrue,
			}},
		},
	}

	m, _ := newTestManager(t, ready)
	obs, err := m.Observe(context.Background(), actor, "stage-demo")
	require.NoError(t, err)
	assert.True(t, obs.DeploymentStarted)
	assert.True(t, obs.DeploymentReady)

	stuck := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "api", Namespace: "stage-demo"},
		Status: appsv1.DeploymentStatus{
			Conditions: []appsv1.DeploymentCondition{{
				Type:    appsv1.DeploymentProgressing,
				Status:  corev1.ConditionFalse,
				Reason:  "ProgressDeadlineExceeded",
				Message: "rollout stuck",
			}},
		},
	}

	m, _ = newTestManager(t, stuck)
	obs, err = m.Observe(context.Background(), actor, "stage-demo")
	require.NoError(t, err)
	assert.Equal(t, "rollout stuck", obs.DeploymentFailed)
	assert.False(t, obs.DeploymentReady)
}

func TestEnsureNamespaceIdempotent(t *testing.T) {
	m, c := newTestManager(t)
	pb := &v1alpha1.Playbook{
		ObjectMeta: metav1.ObjectMeta{Name: "demo"},
		Spec:       v1alpha1.PlaybookSpec{Namespace: "stage-demo"},
	}
	ctx := context.Background()

	require.NoError(t, m.EnsureNamespace(ctx, pb))
	require.NoError(t, m.EnsureNamespace(ctx, pb))

	var ns corev1.Namespace
	require.NoError(t, c.Get(ctx, client.ObjectKey{Name: "stage-demo"}, &ns))
	assert.Equal(t, "demo", ns.Labels[LabelPlaybook])
}

func TestCleanupForStage(t *testing.T) {
	actor := testActor()
	buildJob := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: BuildJobName(actor), Namespace: "stage-demo"},
	}
	pushJob := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: PushJobName(actor), Namespace: "stage-demo"},
	}

	m, c := newTestManager(t, buildJob, pushJob)
	ctx := context.Background()

	// Entering Deploying removes the build job but keeps the push job.
	require.NoError(t, m.CleanupForStage(ctx, actor, "stage-demo", v1alpha1.StageDeploying))
	var job batchv1.Job
	err := c.Get(ctx, client.ObjectKey{Name: BuildJobName(actor), Namespace: "stage-demo"}, &job)
	assert.True(t, apierrors.IsNotFound(err))
	require.NoError(t, c.Get(ctx, client.ObjectKey{Name: PushJobName(actor), Namespace: "stage-demo"}, &job))

	// Entering Running removes the push job.
	require.NoError(t, m.CleanupForStage(ctx, actor, "stage-demo", v1alpha1.StageRunning))
	err = c.Get(ctx, client.ObjectKey{Name: PushJobName(actor), Namespace: "stage-demo"}, &job)
	assert.True(t, apierrors.IsNotFound(err))

	// Cleanup is safe to repeat.
	require.NoError(t, m.CleanupForStage(ctx, actor, "stage-demo", v1alpha1.StageRunning))
}

func TestIsTransient(t *testing.T) {
	gr := schema.GroupResource{Group: "batch", Resource: "jobs"}

	assert.True(t, IsTransient(apierrors.NewConflict(gr, "api-builder", errors.New("conflict"))))
	assert.True(t, IsTransient(apierrors.NewServerTimeout(gr, "get", 1)))
	assert.True(t, IsTransient(apierrors.NewTooManyRequests("throttled", 1)))
	assert.True(t, IsTransient(apierrors.NewServiceUnavailable("down")))

	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(apierrors.NewNotFound(gr, "api-builder")))
	assert.False(t, IsTransient(apierrors.NewBadRequest("malformed")))
	assert.False(t, IsTransient(errors.New("plain error")))
}
