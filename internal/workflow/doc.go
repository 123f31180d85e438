// Package workflow implements the per-Actor pipeline state machine:
//
//	Pending -> Resolving -> Building -> Pushing -> Deploying -> Running
//	                                                    |          ^
//	                                                    v          |
//	                                                 Failed     Syncing
//
// The engine is level-triggered: every stage's entry condition is an
// observation of external state (a Job or Deployment condition reported by
// the resources adapter), never a timer or a delivered edge. A missed event
// self-heals on the next reconciliation pass.
//
// Advance is pure: it inspects the Actor and the observed state and returns
// the next stage plus the side effects the controller should enact. Nothing
// in this package talks to the cluster.
package workflow
