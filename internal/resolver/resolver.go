package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"stagehand/internal/dependency"
	v1alpha1 "stagehand/pkg/apis/stagehand/v1alpha1"
	"stagehand/pkg/logging"
)

// FetchError reports a transient failure while fetching an Actor's source.
// The caller retries it with backoff; the resolver never retries internally.
type FetchError struct {
	Actor string
	Repo  string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching source for actor %q from %s: %v", e.Actor, e.Repo, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsConfiguration reports whether err is a configuration error (cycle or
// unresolved reference) rather than transient infrastructure flakiness.
func IsConfiguration(err error) bool {
	var cycleErr *dependency.CycleError
	return errors.As(err, &cycleErr) || errors.Is(err, ErrReferenceNotFound)
}

// DiscoveredActor is a dependency found in a manifest for which no Actor
// record exists yet. The controller materializes a record from it.
type DiscoveredActor struct {
	Name   string
	Source v1alpha1.SourceReference
}

// Resolution is the outcome of one resolve pass over a Playbook.
type Resolution struct {
	// Graph holds every known Actor plus discovered dependency names.
	Graph *dependency.Graph

	// Order is the topological build order: dependencies before dependents.
	Order []dependency.NodeID

	// Revisions maps actor names to the commit their source resolved to.
	Revisions map[string]string

	// Discovered maps actor names to dependency names found only in their
	// manifest, beyond the declared ones.
	Discovered map[string][]string

	// Missing lists discovered dependencies that have no Actor record yet,
	// with enough source information to create one.
	Missing []DiscoveredActor
}

// Resolver computes dependency graphs for Playbooks. It holds no per-pass
// state, so one Resolver serves all Playbooks concurrently.
type Resolver struct {
	fetcher Fetcher
}

// New returns a Resolver walking sources through the given fetcher.
func New(fetcher Fetcher) *Resolver {
	return &Resolver{fetcher: fetcher}
}

// Resolve walks the Playbook's Actors and their declared plus discovered
// dependencies, and produces the dependency graph and build order for this
// pass. It returns a *dependency.CycleError naming every node on a cycle,
// ErrReferenceNotFound (wrapped) for unresolvable references, or a
// *FetchError for transient fetch failures.
func (r *Resolver) Resolve(ctx context.Context, playbook *v1alpha1.Playbook, actors []v1alpha1.Actor) (*Resolution, error) {
	res := &Resolution{
		Graph:      dependency.New(),
		Revisions:  make(map[string]string, len(actors)),
		Discovered: make(map[string][]string),
	}

	known := make(map[string]*v1alpha1.Actor, len(actors))
	for i := range actors {
		known[actors[i].Spec.Name] = &actors[i]
	}

	missing := make(map[string]DiscoveredActor)

	for i := range actors {
		actor := &actors[i]
		name := actor.Spec.Name
		res.Graph.AddNode(dependency.Node{ID: dependency.NodeID(name)})

		for _, dep := range actor.Spec.Dependencies {
			if dep == name {
				return nil, &dependency.CycleError{Cycle: []dependency.NodeID{dependency.NodeID(name)}}
			}
			res.Graph.AddEdge(dependency.NodeID(name), dependency.NodeID(dep))
		}

		fetched, err := r.fetcher.Fetch(ctx, actor.Spec.Source)
		if err != nil {
			if errors.Is(err, ErrReferenceNotFound) {
				return nil, fmt.Errorf("actor %q: %w", name, err)
			}
			return nil, &FetchError{Actor: name, Repo: actor.Spec.Source.Repo, Err: err}
		}
		res.Revisions[name] = fetched.Rev

		if fetched.Manifest == nil {
			continue
		}

		declared := make(map[string]bool, len(actor.Spec.Dependencies))
		for _, dep := range actor.Spec.Dependencies {
			declared[dep] = true
		}

		for depName, depSource := range fetched.Manifest.Dependencies {
			if depName == name {
				return nil, &dependency.CycleError{Cycle: []dependency.NodeID{dependency.NodeID(name)}}
			}
			res.Graph.AddEdge(dependency.NodeID(name), dependency.NodeID(depName))
			if !declared[depName] {
				res.Discovered[name] = append(res.Discovered[name], depName)
			}
			if _, ok := known[depName]; !ok {
				missing[depName] = DiscoveredActor{
					Name:   depName,
					Source: depSource.SourceReference(),
				}
			}
		}
		sort.Strings(res.Discovered[name])
	}

	// Declared dependencies must reference actors of this playbook; only
	// manifest-discovered dependencies may be fetched into existence.
	for i := range actors {
		for _, dep := range actors[i].Spec.Dependencies {
			if _, ok := known[dep]; !ok {
				if _, found := missing[dep]; !found {
					return nil, fmt.Errorf("actor %q dependency %q: %w",
						actors[i].Spec.Name, dep, ErrReferenceNotFound)
				}
			}
		}
	}

	for _, name := range sortedKeys(missing) {
		res.Missing = append(res.Missing, missing[name])
	}

	order, err := res.Graph.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	res.Order = order

	logging.Debug("Resolver", "Resolved playbook %s: %d actors, %d discovered, %d missing",
		playbook.Name, len(actors), len(res.Discovered), len(res.Missing))

	return res, nil
}

func sortedKeys(m map[string]DiscoveredActor) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
