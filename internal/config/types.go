package config

import (
	"time"
)

// StagehandConfig is the top-level configuration structure for stagehand.
type StagehandConfig struct {
	Controller ControllerConfig `yaml:"controller"`
	Watch      WatchConfig      `yaml:"watch"`
}

// Watch modes decide where the desired state is read from.
const (
	// WatchModeAuto detects Kubernetes and falls back to the filesystem.
	WatchModeAuto = "auto"
	// WatchModeKubernetes forces the Kubernetes CRD backend.
	WatchModeKubernetes = "kubernetes"
	// WatchModeFilesystem forces the filesystem YAML backend.
	WatchModeFilesystem = "filesystem"
)

// ControllerConfig tunes the reconciliation loop.
type ControllerConfig struct {
	// Workers is the number of concurrent reconcile workers (default: 4).
	Workers int `yaml:"workers,omitempty"`

	// RetryBudget is the number of automatic retries an Actor gets before
	// it stays Failed until a manual retry request (default: 3).
	RetryBudget int `yaml:"retryBudget,omitempty"`

	// BackoffBase is the first requeue delay after a transient failure
	// (default: 1s). Doubles per consecutive failure.
	BackoffBase time.Duration `yaml:"backoffBase,omitempty"`

	// BackoffCap bounds the requeue delay (default: 5m).
	BackoffCap time.Duration `yaml:"backoffCap,omitempty"`

	// ReconcileTimeout bounds a single reconcile pass (default: 2m).
	ReconcileTimeout time.Duration `yaml:"reconcileTimeout,omitempty"`

	// JobDeadline bounds a single build or push job run. A job exceeding
	// it is failed by the cluster and consumes retry budget like any
	// other stage failure (default: 20m).
	JobDeadline time.Duration `yaml:"jobDeadline,omitempty"`

	// ResyncInterval triggers a periodic full pass per Playbook even
	// without change notifications (default: 5m).
	ResyncInterval time.Duration `yaml:"resyncInterval,omitempty"`

	// RestartOnSourceChange rebuilds an Actor's pipeline when its source
	// revision changes while it is already Running (default: true).
	RestartOnSourceChange *bool `yaml:"restartOnSourceChange,omitempty"`
}

// WatchConfig tunes how desired-state changes are detected.
type WatchConfig struct {
	// Mode selects the backend: auto, kubernetes or filesystem
	// (default: auto).
	Mode string `yaml:"mode,omitempty"`

	// Path is the base directory for filesystem mode (default: ".").
	Path string `yaml:"path,omitempty"`

	// Debounce coalesces bursts of filesystem notifications
	// (default: 500ms).
	Debounce time.Duration `yaml:"debounce,omitempty"`
}

// RestartOnSourceChange resolves the pointer field against its default.
func (c ControllerConfig) RestartOnSourceChangeEnabled() bool {
	if c.RestartOnSourceChange == nil {
		return true
	}
	return *c.RestartOnSourceChange
}
