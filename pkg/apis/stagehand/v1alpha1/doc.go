// Package v1alpha1 contains API Schema definitions for the stagehand v1alpha1 API group.
//
// This package defines the Kubernetes Custom Resource Definitions (CRDs) for
// stagehand's core components. The v1alpha1 API version represents the initial
// alpha release of the stagehand Kubernetes API and is subject to change.
//
// # API Group: stagehand.dev/v1alpha1
//
// ## Playbook
//
// Playbook declares an application composed of one or more Actors. The
// reconciliation core drives every Actor referenced by a Playbook through
// the resolve, build, push and deploy pipeline until the whole Playbook
// converges on Running.
//
// Example:
//
//	apiVersion: stagehand.dev/v1alpha1
//	kind: Playbook
//	metadata:
//	  name: amphitheatre-demo
//	spec:
//	  title: Amphitheatre Demo
//	  namespace: stage-amphitheatre-demo
//	  actors:
//	    - api
//	    - frontend
//
// ## Actor
//
// Actor is one independently buildable/deployable service within a Playbook.
// It carries a source locator (repository, path, reference, resolved commit)
// and its declared dependencies on sibling Actors. The Actor's status records
// the current pipeline stage, a monotonically increasing revision used for
// event deduplication and optimistic-concurrency writes, the retry count and
// the last recorded error.
//
// +kubebuilder:object:generate=true
// +groupName=stagehand.dev
package v1alpha1
