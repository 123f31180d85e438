// Package resources is the adapter between pipeline stages and cluster
// objects. Given an Actor and its current stage it produces the objects
// that should exist (build jobs, workspace volumes, deployments, services)
// and applies them idempotently: create-or-update keyed by name and
// namespace, never duplicate.
//
// Every created object carries a controller owner reference back to its
// Actor, so garbage collection on Actor (and transitively Playbook)
// deletion is automatic and cascading. Objects belonging to a stage are
// torn down only after the next stage is confirmed started, so a stage
// transition never leaves a window with no running workload.
//
// Cluster API failures are classified by IsTransient: conflicts, throttling
// and server timeouts are returned to the caller for backoff-and-retry,
// while malformed desired state surfaces as a permanent, Actor-level
// failure.
package resources
