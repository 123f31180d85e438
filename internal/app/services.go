package app

import (
	"fmt"

	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"

	"stagehand/internal/client"
	"stagehand/internal/config"
	"stagehand/internal/events"
	"stagehand/internal/reconciler"
	"stagehand/internal/resolver"
	"stagehand/internal/resources"
	"stagehand/internal/syncer"
	v1alpha1 "stagehand/pkg/apis/stagehand/v1alpha1"
	"stagehand/pkg/logging"
)

// Services holds the wired components of the running controller.
//
// Initialization order matters: the stage client is created once and shared
// (it decides Kubernetes versus filesystem mode), everything else hangs off
// it. The reconcile manager is started last, in Run.
type Services struct {
	// Client is the unified desired-state client, Kubernetes or filesystem.
	Client client.StageClient

	// Bus fans actor stage transitions out to subscribers.
	Bus *events.Bus

	// Tracker is the in-process syncer handing live patches to a transport.
	Tracker *syncer.Tracker

	// Manager drives change detection, queueing and the reconcile workers.
	Manager *reconciler.Manager
}

// InitializeServices wires all controller components from the loaded
// configuration. Nothing is started here; Run starts the manager and the
// sync transport.
func InitializeServices(cfg *Config) (*Services, error) {
	shCfg := cfg.StagehandConfig

	watchMode := shCfg.Watch.Mode
	if cfg.WatchMode != "" {
		watchMode = cfg.WatchMode
	}
	watchPath := shCfg.Watch.Path
	if cfg.WatchPath != "" {
		watchPath = cfg.WatchPath
	}

	stageClient, err := client.NewStageClientWithConfig(&client.StageClientConfig{
		FilesystemPath:      watchPath,
		ForceFilesystemMode: watchMode == config.WatchModeFilesystem,
		Debug:               cfg.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create stage client: %w", err)
	}

	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("failed to register client-go scheme: %w", err)
	}
	if err := v1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("failed to register stagehand scheme: %w", err)
	}

	bus := events.NewBus()
	generator := events.NewGenerator(stageClient)
	tracker := syncer.NewTracker()

	// Filesystem mode has no cluster to run stage objects on; the simulated
	// effector stands in so local playbooks still walk the pipeline.
	var effector reconciler.Effector
	if stageClient.IsKubernetesMode() {
		effector = resources.NewManager(stageClient, scheme, shCfg.Controller.JobDeadline)
	} else {
		effector = resources.NewLocalManager()
	}

	graphResolver := resolver.New(resolver.NewLocalFetcher(watchPath))

	playbookReconciler := reconciler.NewPlaybookReconciler(
		stageClient,
		graphResolver,
		effector,
		bus,
		generator,
		tracker,
		reconciler.PlaybookReconcilerConfig{
			RetryBudget:           shCfg.Controller.RetryBudget,
			BackoffBase:           shCfg.Controller.BackoffBase,
			BackoffCap:            shCfg.Controller.BackoffCap,
			RestartOnSourceChange: shCfg.Controller.RestartOnSourceChangeEnabled(),
		},
	)

	manager := reconciler.NewManager(reconciler.ManagerConfig{
		Mode:             reconciler.WatchMode(watchMode),
		FilesystemPath:   watchPath,
		WorkerCount:      shCfg.Controller.Workers,
		InitialBackoff:   shCfg.Controller.BackoffBase,
		MaxBackoff:       shCfg.Controller.BackoffCap,
		ReconcileTimeout: shCfg.Controller.ReconcileTimeout,
		ResyncInterval:   shCfg.Controller.ResyncInterval,
		DebounceInterval: shCfg.Watch.Debounce,
		Debug:            cfg.Debug,
	}, playbookReconciler, stageClient)

	if stageClient.IsKubernetesMode() {
		logging.Info("Bootstrap", "Running against the Kubernetes API")
	} else {
		logging.Info("Bootstrap", "Running against filesystem state at %s", watchPath)
	}

	return &Services{
		Client:  stageClient,
		Bus:     bus,
		Tracker: tracker,
		Manager: manager,
	}, nil
}
