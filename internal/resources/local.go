package resources

import (
	"context"
	"sync"

	v1alpha1 "stagehand/pkg/apis/stagehand/v1alpha1"
	"stagehand/pkg/logging"
)

// LocalManager simulates the cluster side of the pipeline for filesystem
// mode. Stage objects are in-memory records whose runs complete as soon as
// they are applied, so a playbook read from YAML walks the full pipeline
// without a cluster. It offers the same effector surface as Manager.
type LocalManager struct {
	mu         sync.Mutex
	namespaces map[string]*localNamespace
}

// localNamespace holds the simulated objects of one playbook namespace.
type localNamespace struct {
	playbook string
	actors   map[string]*localStageObjects
}

// localStageObjects tracks which stage objects exist for one actor and the
// revision each was applied for.
type localStageObjects struct {
	workspace bool
	buildRev  string
	pushRev   string
	deployRev string
}

// NewLocalManager returns an empty simulated effector.
func NewLocalManager() *LocalManager {
	return &LocalManager{namespaces: make(map[string]*localNamespace)}
}

// EnsureNamespace records the Playbook's namespace. Existing namespaces
// are left untouched.
func (l *LocalManager) EnsureNamespace(ctx context.Context, playbook *v1alpha1.Playbook) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.namespaces[playbook.Spec.Namespace]; ok {
		return nil
	}
	l.namespaces[playbook.Spec.Namespace] = &localNamespace{
		playbook: playbook.Name,
		actors:   make(map[string]*localStageObjects),
	}
	logging.Info("Resources", "Created simulated namespace %s for playbook %s", playbook.Spec.Namespace, playbook.Name)
	return nil
}

// DeleteNamespace drops the Playbook's namespace and everything in it.
func (l *LocalManager) DeleteNamespace(ctx context.Context, playbook *v1alpha1.Playbook) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.namespaces, playbook.Spec.Namespace)
	return nil
}

// DeleteNamespaceForPlaybook drops the namespaces of an already deleted
// Playbook, found by recorded owner since the spec is no longer available.
func (l *LocalManager) DeleteNamespaceForPlaybook(ctx context.Context, playbookName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for name, ns := range l.namespaces {
		if ns.playbook == playbookName {
			delete(l.namespaces, name)
			logging.Info("Resources", "Deleted simulated namespace %s of removed playbook %s", name, playbookName)
		}
	}
	return nil
}

// objects returns the actor's stage record, creating it on first use.
// Caller holds l.mu.
func (l *LocalManager) objects(namespace, actor string) *localStageObjects {
	ns, ok := l.namespaces[namespace]
	if !ok {
		ns = &localNamespace{actors: make(map[string]*localStageObjects)}
		l.namespaces[namespace] = ns
	}
	obj, ok := ns.actors[actor]
	if !ok {
		obj = &localStageObjects{}
		ns.actors[actor] = obj
	}
	return obj
}

// ApplyWorkspace records the actor's workspace volume.
func (l *LocalManager) ApplyWorkspace(ctx context.Context, actor *v1alpha1.Actor, namespace string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.objects(namespace, actor.Spec.Name).workspace = true
	return nil
}

// ApplyBuildJob records a build run for the revision; it completes
// immediately.
func (l *LocalManager) ApplyBuildJob(ctx context.Context, actor *v1alpha1.Actor, namespace, rev string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.objects(namespace, actor.Spec.Name).buildRev = rev
	logging.Debug("Resources", "Simulated build of %s at %s", actor.Spec.Name, rev)
	return nil
}

// ApplyPushJob records a push run for the revision.
func (l *LocalManager) ApplyPushJob(ctx context.Context, actor *v1alpha1.Actor, namespace, rev string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.objects(namespace, actor.Spec.Name).pushRev = rev
	logging.Debug("Resources", "Simulated push of %s at %s", actor.Spec.Name, rev)
	return nil
}

// ApplyDeployment records the actor's workload; it is ready immediately.
func (l *LocalManager) ApplyDeployment(ctx context.Context, actor *v1alpha1.Actor, namespace, rev string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.objects(namespace, actor.Spec.Name).deployRev = rev
	logging.Debug("Resources", "Simulated deployment of %s at %s", actor.Spec.Name, rev)
	return nil
}

// Observe reports the recorded objects. Every applied run is complete,
// which is what lets an actor advance one stage per pass locally.
func (l *LocalManager) Observe(ctx context.Context, actor *v1alpha1.Actor, namespace string) (Observation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ns, ok := l.namespaces[namespace]
	if !ok {
		return Observation{}, nil
	}
	obj, ok := ns.actors[actor.Spec.Name]
	if !ok {
		return Observation{}, nil
	}
	return Observation{
		BuildComplete:     obj.buildRev != "",
		PushComplete:      obj.pushRev != "",
		DeploymentStarted: obj.deployRev != "",
		DeploymentReady:   obj.deployRev != "",
	}, nil
}

// CleanupForStage mirrors Manager.CleanupForStage: each stage drops the
// records of the stage before the one just confirmed.
func (l *LocalManager) CleanupForStage(ctx context.Context, actor *v1alpha1.Actor, namespace string, stage v1alpha1.Stage) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ns, ok := l.namespaces[namespace]
	if !ok {
		return nil
	}
	obj, ok := ns.actors[actor.Spec.Name]
	if !ok {
		return nil
	}

	switch stage {
	case v1alpha1.StageDeploying:
		obj.buildRev = ""
	case v1alpha1.StageRunning:
		obj.pushRev = ""
	}
	return nil
}
