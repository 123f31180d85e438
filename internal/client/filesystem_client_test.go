package client

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	v1alpha1 "stagehand/pkg/apis/stagehand/v1alpha1"
)

func newFilesystemTestClient(t *testing.T) (StageClient, string) {
	t.Helper()
	dir := t.TempDir()
	c, err := NewFilesystemClient(&StageClientConfig{FilesystemPath: dir})
	require.NoError(t, err)
	return c, dir
}

func samplePlaybook() *v1alpha1.Playbook {
	return &v1alpha1.Playbook{
		ObjectMeta: metav1.ObjectMeta{Name: "demo"},
		Spec: v1alpha1.PlaybookSpec{
			Title:     "Demo stage",
			Namespace: "stage-demo",
			Actors:    []string{"api"},
		},
	}
}

func sampleActor() *v1alpha1.Actor {
	return &v1alpha1.Actor{
		ObjectMeta: metav1.ObjectMeta{Name: "demo-api", Namespace: "stage-demo"},
		Spec: v1alpha1.ActorSpec{
			Playbook: "demo",
			Name:     "api",
			Source:   v1alpha1.SourceReference{Repo: "https://example.com/api"},
			Image:    "registry.example.com/demo/api:latest",
		},
	}
}

func TestFilesystemPlaybookLifecycle(t *testing.T) {
	c, dir := newFilesystemTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.CreatePlaybook(ctx, samplePlaybook()))

	// The file lands where documented.
	_, err := os.Stat(filepath.Join(dir, "playbooks", "demo.yaml"))
	require.NoError(t, err)

	// Creating again reports AlreadyExists.
	err = c.CreatePlaybook(ctx, samplePlaybook())
	assert.True(t, apierrors.IsAlreadyExists(err))

	got, err := c.GetPlaybook(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, "Demo stage", got.Spec.Title)
	assert.Equal(t, "stage-demo", got.Spec.Namespace)

	got.Status.Phase = v1alpha1.PlaybookPhaseRunning
	require.NoError(t, c.UpdatePlaybookStatus(ctx, got))

	reread, err := c.GetPlaybook(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, v1alpha1.PlaybookPhaseRunning, reread.Status.Phase)

	playbooks, err := c.ListPlaybooks(ctx)
	require.NoError(t, err)
	require.Len(t, playbooks, 1)

	require.NoError(t, c.DeletePlaybook(ctx, "demo"))
	_, err = c.GetPlaybook(ctx, "demo")
	assert.True(t, apierrors.IsNotFound(err))
}

func TestFilesystemActorLifecycle(t *testing.T) {
	c, _ := newFilesystemTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.CreateActor(ctx, sampleActor()))

	got, err := c.GetActor(ctx, "demo-api", "stage-demo")
	require.NoError(t, err)
	assert.Equal(t, "api", got.Spec.Name)
	assert.Equal(t, "demo", got.Spec.Playbook)

	got.Status.Stage = v1alpha1.StageBuilding
	got.Status.Revision = 2
	require.NoError(t, c.UpdateActorStatus(ctx, got))

	reread, err := c.GetActor(ctx, "demo-api", "stage-demo")
	require.NoError(t, err)
	assert.Equal(t, v1alpha1.StageBuilding, reread.Status.Stage)
	assert.Equal(t, int64(2), reread.Status.Revision)

	// Namespace filtering on list.
	actors, err := c.ListActors(ctx, "stage-demo")
	require.NoError(t, err)
	require.Len(t, actors, 1)

	actors, err = c.ListActors(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, actors)

	require.NoError(t, c.DeleteActor(ctx, "demo-api", "stage-demo"))
	_, err = c.GetActor(ctx, "demo-api", "stage-demo")
	assert.True(t, apierrors.IsNotFound(err))
}

func TestFilesystemListSkipsBrokenFiles(t *testing.T) {
	c, dir := newFilesystemTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.CreatePlaybook(ctx, samplePlaybook()))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "playbooks", "broken.yaml"), []byte("{{not yaml"), 0644))

	playbooks, err := c.ListPlaybooks(ctx)
	require.NoError(t, err)
	require.Len(t, playbooks, 1)
	assert.Equal(t, "demo", playbooks[0].Name)
}

func TestFilesystemCreateEventAppendsLog(t *testing.T) {
	c, dir := newFilesystemTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.CreateEvent(ctx, sampleActor(), "BuildStarted", "Build started for actor api", "Normal"))
	require.NoError(t, c.CreateEvent(ctx, sampleActor(), "BuildFailed", "Build failed for actor api", "Warning"))

	data, err := os.ReadFile(filepath.Join(dir, "events", "events.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "BuildStarted - Build started for actor api (Normal)")
	assert.Contains(t, string(data), "Actor stage-demo/demo-api")
}

func TestFilesystemSubResourceWritersRejectApply(t *testing.T) {
	c, _ := newFilesystemTestClient(t)
	ctx := context.Background()

	// Server-side apply has no filesystem equivalent; the writers must
	// still satisfy controller-runtime's sub-resource interfaces.
	var writer client.StatusWriter = c.Status()
	assert.Error(t, writer.Apply(ctx, nil))

	var sub client.SubResourceClient = c.SubResource("status")
	assert.Error(t, sub.Apply(ctx, nil))
}

func TestFilesystemClientMode(t *testing.T) {
	c, _ := newFilesystemTestClient(t)
	assert.False(t, c.IsKubernetesMode())
	assert.NoError(t, c.Close())
}

func TestForcedFilesystemMode(t *testing.T) {
	c, err := NewStageClientWithConfig(&StageClientConfig{
		ForceFilesystemMode: true,
		FilesystemPath:      t.TempDir(),
	})
	require.NoError(t, err)
	assert.False(t, c.IsKubernetesMode())
}
