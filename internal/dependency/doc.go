// Package dependency provides the directed acyclic graph the controller
// uses to order Actor pipelines. The graph is an ephemeral, per-pass value:
// the resolver rebuilds it on every reconciliation pass that touches
// dependency-relevant fields, so there is no cross-playbook shared mutable
// state to invalidate.
package dependency
