// Package resolver turns a Playbook's Actors and their source references
// into a dependency graph and a build order.
//
// Resolution walks declared dependencies plus the dependencies each Actor's
// manifest declares at its resolved source path, fetching every referenced
// repository/path/reference through a Fetcher to confirm it exists. Cycles
// are detected during the walk and reported with the full offending cycle,
// a configuration error that is never retried automatically. Fetch failures
// are transient and left to the caller's retry policy.
//
// Resolve is side-effect free beyond read-only fetches and safe to call
// repeatedly and concurrently for different Playbooks.
package resolver
