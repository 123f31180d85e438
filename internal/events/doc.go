// Package events carries Actor stage transitions to interested parties.
//
// It has two halves. The Bus fans persisted stage changes out in-process
// with at-least-once delivery and revision-based deduplication, so the
// status printer and the syncer boundary see every transition exactly
// once even when the controller republishes after a restart. The
// Generator renders those transitions into Kubernetes Events recorded
// against the Playbook or Actor object, using a small message template
// engine.
package events
