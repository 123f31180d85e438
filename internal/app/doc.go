// Package app bootstraps and runs the stagehand controller.
//
// Bootstrap happens in two phases: NewApplication loads configuration and
// wires the services (client, resolver, resources, event bus, syncer,
// reconcile manager), then Run starts the control loop and blocks until
// the context is cancelled or a termination signal arrives.
package app
