package reconciler

import (
	"sync"
	"time"

	"stagehand/pkg/logging"
)

// ReconcilerMetrics tracks reconciliation counters for monitoring.
//
// Counters are kept per playbook so a single flapping playbook can be told
// apart from systemic failures.
type ReconcilerMetrics struct {
	mu sync.RWMutex

	// Per-playbook metrics
	playbookMetrics map[string]*playbookMetrics

	// Global counters for summary metrics
	totalReconcileAttempts   int64
	totalReconcileSuccesses  int64
	totalReconcileFailures   int64
	totalStatusSyncAttempts  int64
	totalStatusSyncSuccesses int64
	totalStatusSyncFailures  int64
}

// playbookMetrics holds reconciliation metrics for a single playbook.
type playbookMetrics struct {
	Playbook            string
	ReconcileAttempts   int64
	ReconcileSuccesses  int64
	ReconcileFailures   int64
	StatusSyncAttempts  int64
	StatusSyncSuccesses int64
	StatusSyncFailures  int64
	LastReconcileAt     time.Time
	LastSuccessAt       time.Time
	LastFailureAt       time.Time
	LastStatusSyncAt    time.Time
}

// NewReconcilerMetrics creates a new ReconcilerMetrics instance.
func NewReconcilerMetrics() *ReconcilerMetrics {
	return &ReconcilerMetrics{
		playbookMetrics: make(map[string]*playbookMetrics),
	}
}

func (m *ReconcilerMetrics) getOrCreate(playbook string) *playbookMetrics {
	if metrics, exists := m.playbookMetrics[playbook]; exists {
		return metrics
	}

	metrics := &playbookMetrics{Playbook: playbook}
	m.playbookMetrics[playbook] = metrics
	return metrics
}

// RecordReconcileAttempt records the start of a reconcile pass.
func (m *ReconcilerMetrics) RecordReconcileAttempt(playbook string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := m.getOrCreate(playbook)
	metrics.ReconcileAttempts++
	metrics.LastReconcileAt = time.Now()
	m.totalReconcileAttempts++
}

// RecordReconcileSuccess records a completed reconcile pass.
func (m *ReconcilerMetrics) RecordReconcileSuccess(playbook string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := m.getOrCreate(playbook)
	metrics.ReconcileSuccesses++
	metrics.LastSuccessAt = time.Now()
	m.totalReconcileSuccesses++
}

// RecordReconcileFailure records a failed reconcile pass.
func (m *ReconcilerMetrics) RecordReconcileFailure(playbook string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := m.getOrCreate(playbook)
	metrics.ReconcileFailures++
	metrics.LastFailureAt = time.Now()
	m.totalReconcileFailures++
}

// RecordStatusSyncAttempt records a status update attempt.
func (m *ReconcilerMetrics) RecordStatusSyncAttempt(playbook string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := m.getOrCreate(playbook)
	metrics.StatusSyncAttempts++
	metrics.LastStatusSyncAt = time.Now()
	m.totalStatusSyncAttempts++
}

// RecordStatusSyncSuccess records a successful status update.
func (m *ReconcilerMetrics) RecordStatusSyncSuccess(playbook string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := m.getOrCreate(playbook)
	metrics.StatusSyncSuccesses++
	m.totalStatusSyncSuccesses++
}

// RecordStatusSyncFailure records a failed status update.
//
// High failure rates usually point at API server trouble, RBAC gaps, or a
// CRD schema mismatch.
func (m *ReconcilerMetrics) RecordStatusSyncFailure(playbook string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := m.getOrCreate(playbook)
	metrics.StatusSyncFailures++
	m.totalStatusSyncFailures++

	logging.Warn("ReconcilerMetrics", "Status sync failure for playbook %s: %s (failures: %d)",
		playbook, reason, metrics.StatusSyncFailures)
}

// MetricsSummary provides a point-in-time summary of reconciliation metrics.
type MetricsSummary struct {
	TotalReconcileAttempts   int64               `json:"total_reconcile_attempts"`
	TotalReconcileSuccesses  int64               `json:"total_reconcile_successes"`
	TotalReconcileFailures   int64               `json:"total_reconcile_failures"`
	TotalStatusSyncAttempts  int64               `json:"total_status_sync_attempts"`
	TotalStatusSyncSuccesses int64               `json:"total_status_sync_successes"`
	TotalStatusSyncFailures  int64               `json:"total_status_sync_failures"`
	PerPlaybookMetrics       []PlaybookMetricView `json:"per_playbook_metrics"`
	ReconcileFailureRate     float64             `json:"reconcile_failure_rate"`
	StatusSyncFailureRate    float64             `json:"status_sync_failure_rate"`
}

// PlaybookMetricView is a read-only view of one playbook's metrics.
type PlaybookMetricView struct {
	Playbook            string    `json:"playbook"`
	ReconcileAttempts   int64     `json:"reconcile_attempts"`
	ReconcileSuccesses  int64     `json:"reconcile_successes"`
	ReconcileFailures   int64     `json:"reconcile_failures"`
	StatusSyncAttempts  int64     `json:"status_sync_attempts"`
	StatusSyncSuccesses int64     `json:"status_sync_successes"`
	StatusSyncFailures  int64     `json:"status_sync_failures"`
	LastReconcileAt     time.Time `json:"last_reconcile_at,omitempty"`
	LastSuccessAt       time.Time `json:"last_success_at,omitempty"`
	LastFailureAt       time.Time `json:"last_failure_at,omitempty"`
	LastStatusSyncAt    time.Time `json:"last_status_sync_at,omitempty"`
}

// Summary returns a snapshot of all counters.
func (m *ReconcilerMetrics) Summary() MetricsSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := MetricsSummary{
		TotalReconcileAttempts:   m.totalReconcileAttempts,
		TotalReconcileSuccesses:  m.totalReconcileSuccesses,
		TotalReconcileFailures:   m.totalReconcileFailures,
		TotalStatusSyncAttempts:  m.totalStatusSyncAttempts,
		TotalStatusSyncSuccesses: m.totalStatusSyncSuccesses,
		TotalStatusSyncFailures:  m.totalStatusSyncFailures,
	}

	for _, pm := range m.playbookMetrics {
		summary.PerPlaybookMetrics = append(summary.PerPlaybookMetrics, PlaybookMetricView{
			Playbook:            pm.Playbook,
			ReconcileAttempts:   pm.ReconcileAttempts,
			ReconcileSuccesses:  pm.ReconcileSuccesses,
			ReconcileFailures:   pm.ReconcileFailures,
			StatusSyncAttempts:  pm.StatusSyncAttempts,
			StatusSyncSuccesses: pm.StatusSyncSuccesses,
			StatusSyncFailures:  pm.StatusSyncFailures,
			LastReconcileAt:     pm.LastReconcileAt,
			LastSuccessAt:       pm.LastSuccessAt,
			LastFailureAt:       pm.LastFailureAt,
			LastStatusSyncAt:    pm.LastStatusSyncAt,
		})
	}

	if m.totalReconcileAttempts > 0 {
		summary.ReconcileFailureRate = float64(m.totalReconcileFailures) / float64(m.totalReconcileAttempts)
	}
	if m.totalStatusSyncAttempts > 0 {
		summary.StatusSyncFailureRate = float64(m.totalStatusSyncFailures) / float64(m.totalStatusSyncAttempts)
	}

	return summary
}

// Global metrics instance, initialized lazily via GetReconcilerMetrics().
var (
	globalReconcilerMetrics   *ReconcilerMetrics
	globalReconcilerMetricsMu sync.RWMutex
)

// GetReconcilerMetrics returns the global reconciler metrics instance,
// creating it on first access.
func GetReconcilerMetrics() *ReconcilerMetrics {
	globalReconcilerMetricsMu.RLock()
	if globalReconcilerMetrics != nil {
		defer globalReconcilerMetricsMu.RUnlock()
		return globalReconcilerMetrics
	}
	globalReconcilerMetricsMu.RUnlock()

	globalReconcilerMetricsMu.Lock()
	defer globalReconcilerMetricsMu.Unlock()

	if globalReconcilerMetrics == nil {
		globalReconcilerMetrics = NewReconcilerMetrics()
	}
	return globalReconcilerMetrics
}
