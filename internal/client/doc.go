// Package client provides unified access to Playbooks and Actors across
// Kubernetes and filesystem deployment modes.
//
// The StageClient interface abstracts the storage of the desired state.
// In Kubernetes mode resources are CRDs accessed through controller-runtime
// with the status subresource; in filesystem mode they are YAML files under
// a base directory, which makes local development possible without a
// cluster. NewStageClient detects the environment and picks the right
// implementation automatically.
package client
