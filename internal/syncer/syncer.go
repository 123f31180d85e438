package syncer

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"stagehand/pkg/logging"
)

// Request describes one live patch of a Running actor's workload. It
// carries the changed paths so a transport can ship only the delta.
type Request struct {
	// ID uniquely identifies the request.
	ID string

	// Playbook and Actor name the target workload.
	Playbook string
	Actor    string

	// Namespace is where the workload runs.
	Namespace string

	// Rev is the source revision the patch brings the workload to.
	Rev string

	// Paths are the changed paths relative to the actor's source root.
	// Empty means the whole tree.
	Paths []string
}

// State is the lifecycle position of the latest sync for an actor.
type State int

const (
	// StateIdle means no sync is requested or outstanding.
	StateIdle State = iota

	// StatePending means a patch was requested and has not landed yet.
	StatePending

	// StateApplied means the latest requested patch landed and the caller
	// has not cleared it yet.
	StateApplied
)

// Syncer ships live patches to Running workloads. The controller requests
// patches and polls their state; a transport completes them.
type Syncer interface {
	// Request ships a patch. A request for an actor with one already
	// pending replaces it; the newest revision wins.
	Request(ctx context.Context, req Request) error

	// State reports the lifecycle position of the actor's latest sync.
	State(playbook, actor string) State

	// AppliedRev returns the revision of the applied patch, if any.
	AppliedRev(playbook, actor string) string

	// Clear resets the actor to idle after the controller has persisted
	// the applied revision.
	Clear(playbook, actor string)
}

// Tracker is an in-process Syncer. Requests are handed to a transport
// channel; the transport calls Complete when a patch lands.
type Tracker struct {
	mu       sync.Mutex
	pending  map[string]Request
	applied  map[string]Request
	requests chan Request
	closed   bool
}

// NewTracker returns a Tracker with a buffered transport channel.
func NewTracker() *Tracker {
	return &Tracker{
		pending:  make(map[string]Request),
		applied:  make(map[string]Request),
		requests: make(chan Request, 16),
	}
}

func syncKey(playbook, actor string) string {
	return playbook + "/" + actor
}

// Request queues a patch for the transport. Replaces any pending patch
// for the same actor.
func (t *Tracker) Request(ctx context.Context, req Request) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("syncer is shut down")
	}
	key := syncKey(req.Playbook, req.Actor)
	t.pending[key] = req
	delete(t.applied, key)
	t.mu.Unlock()

	select {
	case t.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	logging.Debug("Syncer", "Requested sync %s for %s at rev %s", req.ID, key, req.Rev)
	return nil
}

// Requests exposes the transport side of the tracker.
func (t *Tracker) Requests() <-chan Request {
	return t.requests
}

// Complete marks a request as landed. Stale completions (an ID replaced by
// a newer request) are ignored.
func (t *Tracker) Complete(requestID, playbook, actor string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := syncKey(playbook, actor)
	req, ok := t.pending[key]
	if !ok || req.ID != requestID {
		logging.Debug("Syncer", "Ignoring stale sync completion %s for %s", requestID, key)
		return
	}

	delete(t.pending, key)
	t.applied[key] = req
	logging.Debug("Syncer", "Sync %s applied for %s", requestID, key)
}

// State reports the actor's sync lifecycle position.
func (t *Tracker) State(playbook, actor string) State {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := syncKey(playbook, actor)
	if _, ok := t.pending[key]; ok {
		return StatePending
	}
	if _, ok := t.applied[key]; ok {
		return StateApplied
	}
	return StateIdle
}

// AppliedRev returns the revision of the applied patch, or "" when none.
func (t *Tracker) AppliedRev(playbook, actor string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if req, ok := t.applied[syncKey(playbook, actor)]; ok {
		return req.Rev
	}
	return ""
}

// Clear resets the actor's sync state to idle.
func (t *Tracker) Clear(playbook, actor string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := syncKey(playbook, actor)
	delete(t.pending, key)
	delete(t.applied, key)
}

// Close shuts the tracker down. Pending requests are dropped.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	close(t.requests)
}

// LocalTransport drains a Tracker's requests and completes each one
// immediately. It stands in for a real transport when workloads share the
// controller's filesystem, where the volume mount makes the patch visible
// without any copying.
func LocalTransport(ctx context.Context, tracker *Tracker) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-tracker.Requests():
			if !ok {
				return
			}
			logging.Info("Syncer", "Applied local sync for %s/%s at rev %s", req.Playbook, req.Actor, req.Rev)
			tracker.Complete(req.ID, req.Playbook, req.Actor)
		}
	}
}
