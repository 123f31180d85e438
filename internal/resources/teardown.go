package resources

import (
	"context"
	"fmt"

	batchv1 "k8s.io/api/batch/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	v1alpha1 "stagehand/pkg/apis/stagehand/v1alpha1"
	"stagehand/pkg/logging"
)

// CleanupForStage removes objects belonging to stages strictly before the
// given one, and only those whose successor stage is already confirmed
// started. Called after a stage transition is persisted, so there is never
// a window with neither the old nor the new stage's objects present.
func (m *Manager) CleanupForStage(ctx context.Context, actor *v1alpha1.Actor, namespace string, stage v1alpha1.Stage) error {
	switch stage {
	case v1alpha1.StageDeploying:
		// Push confirmed started the deployment request; the build job is
		// no longer needed.
		return m.deleteJob(ctx, BuildJobName(actor), namespace)
	case v1alpha1.StageRunning:
		// Deployment confirmed; the push job can go.
		return m.deleteJob(ctx, PushJobName(actor), namespace)
	}
	return nil
}

func (m *Manager) deleteJob(ctx context.Context, name, namespace string) error {
	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
	}
	policy := metav1.DeletePropagationBackground
	err := m.client.Delete(ctx, job, &client.DeleteOptions{PropagationPolicy: &policy})
	if client.IgnoreNotFound(err) != nil {
		return fmt.Errorf("deleting job %s/%s: %w", namespace, name, err)
	}
	if err == nil {
		logging.Debug("Resources", "Cleaned up job %s/%s", namespace, name)
	}
	return nil
}
