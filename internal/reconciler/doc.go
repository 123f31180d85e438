// Package reconciler is the control loop of stagehand.
//
// A change detector (Kubernetes informers or fsnotify, depending on the
// environment) turns Playbook and Actor changes into reconcile requests.
// The work queue deduplicates them per playbook: while a pass for a
// playbook is in flight, any number of further changes collapse into
// exactly one follow-up pass. Workers run PlaybookReconciler.Reconcile,
// which resolves the playbook's dependency graph, advances each actor in
// topological order through the build/push/deploy pipeline, enacts side
// effects through the resources adapter and persists stage transitions.
// Failed passes are retried with capped exponential backoff.
package reconciler
