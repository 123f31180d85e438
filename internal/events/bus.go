package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	v1alpha1 "stagehand/pkg/apis/stagehand/v1alpha1"
	"stagehand/pkg/logging"
)

// StageChange describes one persisted Actor stage transition. Revision is
// the Actor status revision at which the transition was written, so a
// change republished after a controller restart carries the same revision
// and subscribers can deduplicate.
type StageChange struct {
	// ID uniquely identifies this delivery.
	ID string

	// Playbook is the owning Playbook's name.
	Playbook string

	// Actor is the Actor's name.
	Actor string

	// From is the stage before the transition. Empty on first observation.
	From v1alpha1.Stage

	// To is the stage after the transition.
	To v1alpha1.Stage

	// Revision is the Actor's status revision for this transition.
	Revision int64

	// Error carries the failure message for transitions into Failed.
	Error string

	// Time is when the transition was published.
	Time time.Time
}

// Bus fans stage transitions out to subscribers. Delivery is at-least-once:
// a publisher that is unsure whether a transition went out may publish it
// again, and subscribers drop anything at or below the revision they have
// already seen for that Actor.
type Bus struct {
	mu          sync.Mutex
	subscribers map[int]chan StageChange
	nextID      int
	lastRev     map[string]int64
	closed      bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[int]chan StageChange),
		lastRev:     make(map[string]int64),
	}
}

// Subscribe registers a new subscriber and returns its channel together
// with a cancel function. The channel is buffered; a subscriber that stops
// draining loses deliveries once its buffer fills.
func (b *Bus) Subscribe() (<-chan StageChange, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan StageChange, 64)
	b.subscribers[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the change to every subscriber. Repeat publishes of a
// revision already delivered for the same Actor are dropped, so callers
// may publish the same transition more than once without flooding
// subscribers. Returns true when the change was delivered.
func (b *Bus) Publish(change StageChange) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}

	key := change.Playbook + "/" + change.Actor
	if last, ok := b.lastRev[key]; ok && change.Revision <= last {
		b.mu.Unlock()
		logging.Debug("Events", "Dropped duplicate stage change for %s at revision %d", key, change.Revision)
		return false
	}
	b.lastRev[key] = change.Revision

	if change.ID == "" {
		change.ID = uuid.New().String()
	}
	if change.Time.IsZero() {
		change.Time = time.Now()
	}

	for _, ch := range b.subscribers {
		select {
		case ch <- change:
		default:
			logging.Warn("Events", "Subscriber buffer full, dropping stage change for %s", key)
		}
	}
	b.mu.Unlock()
	return true
}

// Forget clears the deduplication state for an Actor, for example after
// its Playbook was deleted and the name may be reused.
func (b *Bus) Forget(playbook, actor string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.lastRev, playbook+"/"+actor)
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}
