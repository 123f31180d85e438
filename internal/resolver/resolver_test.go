package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stagehand/internal/dependency"
	v1alpha1 "stagehand/pkg/apis/stagehand/v1alpha1"
)

// fakeFetcher serves canned results keyed by repository URL.
type fakeFetcher struct {
	results map[string]*FetchResult
	errs    map[string]error
	calls   int
}

func (f *fakeFetcher) Fetch(_ context.Context, src v1alpha1.SourceReference) (*FetchResult, error) {
	f.calls++
	if err, ok := f.errs[src.Repo]; ok {
		return nil, err
	}
	if res, ok := f.results[src.Repo]; ok {
		return res, nil
	}
	return nil, ErrReferenceNotFound
}

func makeActor(playbook, name string, deps ...string) v1alpha1.Actor {
	return v1alpha1.Actor{
		Spec: v1alpha1.ActorSpec{
			Playbook:     playbook,
			Name:         name,
			Source:       v1alpha1.SourceReference{Repo: "https://example.com/" + name},
			Dependencies: deps,
		},
	}
}

func makePlaybook(name string, actors ...string) *v1alpha1.Playbook {
	pb := &v1alpha1.Playbook{}
	pb.Name = name
	pb.Spec = v1alpha1.PlaybookSpec{
		Title:     name,
		Namespace: "stage-" + name,
		Actors:    actors,
	}
	return pb
}

func TestResolveLinearChain(t *testing.T) {
	fetcher := &fakeFetcher{results: map[string]*FetchResult{
		"https://example.com/frontend": {Rev: "aaa111"},
		"https://example.com/api":      {Rev: "bbb222"},
		"https://example.com/db":       {Rev: "ccc333"},
	}}
	r := New(fetcher)

	actors := []v1alpha1.Actor{
		makeActor("demo", "frontend", "api"),
		makeActor("demo", "api", "db"),
		makeActor("demo", "db"),
	}

	res, err := r.Resolve(context.Background(), makePlaybook("demo", "frontend", "api", "db"), actors)
	require.NoError(t, err)

	assert.Equal(t, []dependency.NodeID{"db", "api", "frontend"}, res.Order)
	assert.Equal(t, "bbb222", res.Revisions["api"])
	assert.Empty(t, res.Missing)
	assert.Empty(t, res.Discovered)
}

func TestResolveDiscoversManifestDependencies(t *testing.T) {
	fetcher := &fakeFetcher{results: map[string]*FetchResult{
		"https://example.com/api": {
			Rev: "abc",
			Manifest: &Manifest{
				Name: "api",
				Dependencies: map[string]ManifestSource{
					"cache": {Repo: "https://example.com/cache"},
				},
			},
		},
	}}
	r := New(fetcher)

	actors := []v1alpha1.Actor{makeActor("demo", "api")}

	res, err := r.Resolve(context.Background(), makePlaybook("demo", "api"), actors)
	require.NoError(t, err)

	assert.Equal(t, []string{"cache"}, res.Discovered["api"])
	require.Len(t, res.Missing, 1)
	assert.Equal(t, "cache", res.Missing[0].Name)
	assert.Equal(t, "https://example.com/cache", res.Missing[0].Source.Repo)
	// The discovered dependency must order before its dependent.
	assert.Equal(t, []dependency.NodeID{"cache", "api"}, res.Order)
}

func TestResolveCycleNamesEveryNode(t *testing.T) {
	fetcher := &fakeFetcher{results: map[string]*FetchResult{
		"https://example.com/a": {Rev: "1"},
		"https://example.com/b": {Rev: "2"},
		"https://example.com/c": {Rev: "3"},
	}}
	r := New(fetcher)

	actors := []v1alpha1.Actor{
		makeActor("demo", "a", "b"),
		makeActor("demo", "b", "c"),
		makeActor("demo", "c", "a"),
	}

	_, err := r.Resolve(context.Background(), makePlaybook("demo", "a", "b", "c"), actors)
	var cycleErr *dependency.CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Len(t, cycleErr.Cycle, 3)
	assert.True(t, IsConfiguration(err))
}

func TestResolveSelfDependency(t *testing.T) {
	fetcher := &fakeFetcher{results: map[string]*FetchResult{
		"https://example.com/a": {Rev: "1"},
	}}
	r := New(fetcher)

	actors := []v1alpha1.Actor{makeActor("demo", "a", "a")}

	_, err := r.Resolve(context.Background(), makePlaybook("demo", "a"), actors)
	var cycleErr *dependency.CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []dependency.NodeID{"a"}, cycleErr.Cycle)
}

func TestResolveMissingReference(t *testing.T) {
	fetcher := &fakeFetcher{}
	r := New(fetcher)

	actors := []v1alpha1.Actor{makeActor("demo", "ghost")}

	_, err := r.Resolve(context.Background(), makePlaybook("demo", "ghost"), actors)
	require.ErrorIs(t, err, ErrReferenceNotFound)
	assert.True(t, IsConfiguration(err))
}

func TestResolveUndeclaredDependency(t *testing.T) {
	fetcher := &fakeFetcher{results: map[string]*FetchResult{
		"https://example.com/api": {Rev: "1"},
	}}
	r := New(fetcher)

	// Declared dependency on an actor that neither exists nor is discovered.
	actors := []v1alpha1.Actor{makeActor("demo", "api", "nowhere")}

	_, err := r.Resolve(context.Background(), makePlaybook("demo", "api"), actors)
	require.ErrorIs(t, err, ErrReferenceNotFound)
}

func TestResolveTransientFetchFailure(t *testing.T) {
	netErr := errors.New("connection refused")
	fetcher := &fakeFetcher{errs: map[string]error{
		"https://example.com/api": netErr,
	}}
	r := New(fetcher)

	actors := []v1alpha1.Actor{makeActor("demo", "api")}

	_, err := r.Resolve(context.Background(), makePlaybook("demo", "api"), actors)
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "api", fetchErr.Actor)
	assert.ErrorIs(t, err, netErr)
	assert.False(t, IsConfiguration(err))
}

func TestResolveIsRepeatable(t *testing.T) {
	fetcher := &fakeFetcher{results: map[string]*FetchResult{
		"https://example.com/api": {Rev: "1"},
		"https://example.com/db":  {Rev: "2"},
	}}
	r := New(fetcher)

	actors := []v1alpha1.Actor{
		makeActor("demo", "api", "db"),
		makeActor("demo", "db"),
	}
	pb := makePlaybook("demo", "api", "db")

	first, err := r.Resolve(context.Background(), pb, actors)
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), pb, actors)
	require.NoError(t, err)

	assert.Equal(t, first.Order, second.Order)
	assert.Equal(t, first.Revisions, second.Revisions)
}

func TestParseManifest(t *testing.T) {
	data := []byte(`
name: api
description: backend service
dependencies:
  db:
    repo: https://example.com/db
    ref: main
`)
	m, err := ParseManifest(data)
	require.NoError(t, err)
	assert.Equal(t, "api", m.Name)
	require.Contains(t, m.Dependencies, "db")
	assert.Equal(t, "main", m.Dependencies["db"].Ref)

	_, err = ParseManifest([]byte("description: no name"))
	assert.Error(t, err)
}
