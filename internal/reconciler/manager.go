package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	v1alpha1 "stagehand/pkg/apis/stagehand/v1alpha1"
	"stagehand/pkg/logging"
)

// Store is the subset of the stagehand client the manager needs to map
// change events onto playbooks and to drive the periodic resync.
type Store interface {
	ListPlaybooks(ctx context.Context) ([]v1alpha1.Playbook, error)
	GetActor(ctx context.Context, name, namespace string) (*v1alpha1.Actor, error)
}

// Manager coordinates all reconciliation activity.
//
// It owns:
//   - The change detector (filesystem or Kubernetes)
//   - The work queue and worker pool
//   - Retry logic with exponential backoff
//   - The periodic resync that re-examines every playbook
type Manager struct {
	mu sync.RWMutex

	config ManagerConfig

	// reconciler runs the actual playbook reconcile passes
	reconciler Reconciler

	// store resolves actors to their owning playbook and lists playbooks
	store Store

	// changeDetector detects definition changes
	changeDetector ChangeDetector

	// queue is the work queue for reconciliation requests
	queue *delayedQueue

	// statusTracker tracks reconciliation status per playbook
	statusTracker map[string]*ReconcileStatus

	// changeChan receives change events from the detector
	changeChan chan ChangeEvent

	// ctx is the manager's context
	ctx context.Context

	// cancelFunc cancels the manager's context
	cancelFunc context.CancelFunc

	// wg tracks running workers
	wg sync.WaitGroup

	// running indicates if the manager is active
	running bool
}

// NewManager creates a new reconciliation manager.
func NewManager(config ManagerConfig, reconciler Reconciler, store Store) *Manager {
	if config.WorkerCount == 0 {
		config.WorkerCount = 4
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 5
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = time.Second
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = 5 * time.Minute
	}
	if config.DebounceInterval == 0 {
		config.DebounceInterval = 500 * time.Millisecond
	}
	if config.ReconcileTimeout == 0 {
		config.ReconcileTimeout = 2 * time.Minute
	}

	return &Manager{
		config:        config,
		reconciler:    reconciler,
		store:         store,
		queue:         NewDelayedQueue(),
		statusTracker: make(map[string]*ReconcileStatus),
		changeChan:    make(chan ChangeEvent, 100),
	}
}

// Start begins the reconciliation system.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}

	m.ctx, m.cancelFunc = context.WithCancel(ctx)
	m.running = true

	if err := m.setupChangeDetector(); err != nil {
		m.running = false
		m.mu.Unlock()
		return fmt.Errorf("failed to setup change detector: %w", err)
	}
	m.mu.Unlock()

	if err := m.changeDetector.Start(m.ctx, m.changeChan); err != nil {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		return fmt.Errorf("failed to start change detector: %w", err)
	}

	m.wg.Add(1)
	go m.processChangeEvents()

	for i := 0; i < m.config.WorkerCount; i++ {
		m.wg.Add(1)
		go m.worker(i)
	}

	if m.config.ResyncInterval > 0 {
		m.wg.Add(1)
		go m.resyncLoop()
	}

	// Seed the queue so playbooks that changed while the controller was
	// down get a pass immediately.
	m.requeueAll(SourceManual)

	logging.Info("ReconcileManager", "Started with %d workers", m.config.WorkerCount)
	return nil
}

// setupChangeDetector creates the appropriate change detector based on config.
func (m *Manager) setupChangeDetector() error {
	mode := m.config.Mode
	if mode == WatchModeAuto || mode == "" {
		mode = m.autoDetectMode()
	}

	switch mode {
	case WatchModeFilesystem:
		if m.config.FilesystemPath == "" {
			return fmt.Errorf("filesystem path required for filesystem mode")
		}
		m.changeDetector = NewFilesystemDetector(m.config.FilesystemPath, m.config.DebounceInterval)

	case WatchModeKubernetes:
		restConfig, err := GetRestConfig()
		if err != nil {
			return fmt.Errorf("failed to get Kubernetes config: %w", err)
		}

		detector, err := NewKubernetesDetector(restConfig, "")
		if err != nil {
			return fmt.Errorf("failed to create Kubernetes detector: %w", err)
		}
		m.changeDetector = detector

	default:
		return fmt.Errorf("unknown watch mode: %s", mode)
	}

	return nil
}

// autoDetectMode determines the watch mode based on environment, checking
// for Kubernetes cluster availability first.
func (m *Manager) autoDetectMode() WatchMode {
	if IsKubernetesAvailable() {
		logging.Info("ReconcileManager", "Auto-detected Kubernetes mode")
		return WatchModeKubernetes
	}

	logging.Info("ReconcileManager", "Auto-detected filesystem mode")
	return WatchModeFilesystem
}

// processChangeEvents converts change events to reconcile requests.
func (m *Manager) processChangeEvents() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return

		case event, ok := <-m.changeChan:
			if !ok {
				return
			}
			m.handleChangeEvent(event)
		}
	}
}

// handleChangeEvent maps a change event onto the owning playbook and queues
// a reconcile pass for it.
func (m *Manager) handleChangeEvent(event ChangeEvent) {
	logging.Debug("ReconcileManager", "Handling change event: %s %s/%s",
		event.Operation, event.Type, event.Name)

	playbook := m.resolvePlaybook(event)
	if playbook == "" {
		// Ownership could not be determined, for example an actor file
		// deleted in filesystem mode. Every playbook gets a pass so the
		// right one notices the missing actor.
		logging.Debug("ReconcileManager", "No owning playbook for %s %s, requeuing all",
			event.Type, event.Name)
		m.requeueAll(event.Source)
		return
	}

	m.updateStatus(playbook, StatePending, "")
	m.queue.Add(ReconcileRequest{Playbook: playbook, Attempt: 1})
}

// resolvePlaybook determines the playbook a change event belongs to.
func (m *Manager) resolvePlaybook(event ChangeEvent) string {
	if event.Type == ResourceTypePlaybook {
		return event.Name
	}
	if event.Playbook != "" {
		return event.Playbook
	}

	// Filesystem actor events carry no ownership; look the actor up.
	ctx, cancel := context.WithTimeout(m.ctx, 5*time.Second)
	defer cancel()

	actor, err := m.store.GetActor(ctx, event.Name, event.Namespace)
	if err != nil {
		return ""
	}
	return actor.Spec.Playbook
}

// requeueAll queues a reconcile pass for every known playbook.
func (m *Manager) requeueAll(source ChangeSource) {
	ctx, cancel := context.WithTimeout(m.ctx, 10*time.Second)
	defer cancel()

	playbooks, err := m.store.ListPlaybooks(ctx)
	if err != nil {
		logging.Warn("ReconcileManager", "Failed to list playbooks for %s requeue: %v", source, err)
		return
	}

	for _, pb := range playbooks {
		m.queue.Add(ReconcileRequest{Playbook: pb.Name, Attempt: 1})
	}
}

// resyncLoop periodically requeues every playbook so drift in the cluster
// is corrected even without a detected definition change.
func (m *Manager) resyncLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.ResyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			logging.Debug("ReconcileManager", "Periodic resync")
			m.requeueAll(SourceResync)
		}
	}
}

// worker processes reconciliation requests from the queue.
func (m *Manager) worker(id int) {
	defer m.wg.Done()

	logging.Debug("ReconcileManager", "Worker %d started", id)

	for {
		req, ok := m.queue.Get(m.ctx)
		if !ok {
			logging.Debug("ReconcileManager", "Worker %d shutting down", id)
			return
		}

		m.processRequest(req)
		m.queue.Done(req)
	}
}

// processRequest handles a single reconciliation request.
func (m *Manager) processRequest(req ReconcileRequest) {
	m.updateStatus(req.Playbook, StateReconciling, "")
	GetReconcilerMetrics().RecordReconcileAttempt(req.Playbook)

	logging.Debug("ReconcileManager", "Reconciling playbook %s (attempt %d)",
		req.Playbook, req.Attempt)

	// A timeout keeps a hung pass from blocking a worker forever.
	ctx, cancel := context.WithTimeout(m.ctx, m.config.ReconcileTimeout)
	defer cancel()

	result := m.reconciler.Reconcile(ctx, req)

	if ctx.Err() == context.DeadlineExceeded {
		result.Error = fmt.Errorf("reconciliation timed out after %v", m.config.ReconcileTimeout)
		result.Requeue = true
	}

	if result.Error != nil {
		m.handleReconcileError(req, result)
	} else if result.Requeue || result.RequeueAfter > 0 {
		m.handleRequeue(req, result)
		m.updateStatus(req.Playbook, StateSynced, "")
		GetReconcilerMetrics().RecordReconcileSuccess(req.Playbook)
	} else {
		m.handleSuccess(req)
	}
}

// handleReconcileError handles a failed reconciliation.
func (m *Manager) handleReconcileError(req ReconcileRequest, result ReconcileResult) {
	logging.Warn("ReconcileManager", "Reconciliation failed for playbook %s: %v",
		req.Playbook, result.Error)
	GetReconcilerMetrics().RecordReconcileFailure(req.Playbook)

	if !result.Requeue && result.RequeueAfter == 0 {
		// A terminal failure, for example a definition error the pass
		// already recorded in the playbook status. Retrying cannot help
		// until the definition changes.
		m.updateStatus(req.Playbook, StateFailed, result.Error.Error())
		return
	}

	if req.Attempt >= m.config.MaxRetries {
		logging.Error("ReconcileManager", result.Error,
			"Max retries exceeded for playbook %s", req.Playbook)
		m.updateStatus(req.Playbook, StateFailed, result.Error.Error())
		return
	}

	m.updateStatus(req.Playbook, StateError, result.Error.Error())

	backoff := result.RequeueAfter
	if backoff == 0 {
		backoff = m.calculateBackoff(req.Attempt)
	}

	req.Attempt++
	req.LastError = result.Error
	m.queue.AddAfter(req, backoff)

	logging.Debug("ReconcileManager", "Requeuing playbook %s after %v (attempt %d)",
		req.Playbook, backoff, req.Attempt)
}

// handleRequeue handles a successful reconciliation that needs requeueing,
// for example a pass waiting on a build job to finish.
func (m *Manager) handleRequeue(req ReconcileRequest, result ReconcileResult) {
	delay := result.RequeueAfter
	if delay == 0 {
		delay = m.config.InitialBackoff
	}

	// Progress was made, so the next pass starts a fresh attempt count.
	m.queue.AddAfter(ReconcileRequest{Playbook: req.Playbook, Attempt: 1}, delay)
	logging.Debug("ReconcileManager", "Requeuing playbook %s after %v", req.Playbook, delay)
}

// handleSuccess handles a successful reconciliation.
func (m *Manager) handleSuccess(req ReconcileRequest) {
	logging.Debug("ReconcileManager", "Successfully reconciled playbook %s", req.Playbook)
	m.updateStatus(req.Playbook, StateSynced, "")
	GetReconcilerMetrics().RecordReconcileSuccess(req.Playbook)
}

// calculateBackoff computes exponential backoff for a retry attempt.
func (m *Manager) calculateBackoff(attempt int) time.Duration {
	backoff := m.config.InitialBackoff * time.Duration(1<<uint(attempt-1))

	if backoff > m.config.MaxBackoff {
		backoff = m.config.MaxBackoff
	}

	return backoff
}

// updateStatus updates the reconciliation status for a playbook.
func (m *Manager) updateStatus(playbook string, state ReconcileState, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status, ok := m.statusTracker[playbook]
	if !ok {
		status = &ReconcileStatus{Playbook: playbook}
		m.statusTracker[playbook] = status
	}

	status.State = state
	status.LastError = errMsg

	switch state {
	case StateSynced:
		now := time.Now()
		status.LastReconcileTime = &now
		status.RetryCount = 0
	case StateError:
		status.RetryCount++
	}
}

// Stop gracefully shuts down the reconciliation manager.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.mu.Unlock()

	logging.Info("ReconcileManager", "Stopping reconciliation manager...")

	if m.cancelFunc != nil {
		m.cancelFunc()
	}

	if m.changeDetector != nil {
		if err := m.changeDetector.Stop(); err != nil {
			logging.Error("ReconcileManager", err, "Error stopping change detector")
		}
	}

	m.queue.Shutdown()
	m.wg.Wait()

	logging.Info("ReconcileManager", "Reconciliation manager stopped")
	return nil
}

// GetStatus returns the reconciliation status for a playbook.
func (m *Manager) GetStatus(playbook string) (*ReconcileStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, ok := m.statusTracker[playbook]
	return status, ok
}

// GetAllStatuses returns all reconciliation statuses.
func (m *Manager) GetAllStatuses() []ReconcileStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]ReconcileStatus, 0, len(m.statusTracker))
	for _, status := range m.statusTracker {
		statuses = append(statuses, *status)
	}
	return statuses
}

// TriggerReconcile manually triggers reconciliation for a playbook.
func (m *Manager) TriggerReconcile(playbook string) {
	m.handleChangeEvent(ChangeEvent{
		Type:      ResourceTypePlaybook,
		Name:      playbook,
		Playbook:  playbook,
		Operation: OperationUpdate,
		Timestamp: time.Now(),
		Source:    SourceManual,
	})
}

// IsRunning returns whether the manager is running.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// GetQueueLength returns the current queue length.
func (m *Manager) GetQueueLength() int {
	return m.queue.Len()
}

// GetWatchMode returns the current watch mode.
func (m *Manager) GetWatchMode() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.changeDetector == nil {
		return string(m.config.Mode)
	}

	switch m.changeDetector.GetSource() {
	case SourceKubernetes:
		return string(WatchModeKubernetes)
	case SourceFilesystem:
		return string(WatchModeFilesystem)
	default:
		return string(m.config.Mode)
	}
}
