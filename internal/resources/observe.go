package resources

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/client"

	v1alpha1 "stagehand/pkg/apis/stagehand/v1alpha1"
)

// Observation is the cluster's reported condition of an Actor's stage
// objects at a point in time. All fields are level observations, not
// events; the workflow engine interprets them against the current stage.
type Observation struct {
	BuildComplete bool
	BuildFailed   string

	PushComplete bool
	PushFailed   string

	// DeploymentStarted is true once the deployment exists and has begun
	// rolling out, the condition gating teardown of earlier-stage objects.
	DeploymentStarted bool
	DeploymentReady   bool
	DeploymentFailed  string
}

// Observe reads the current condition of the Actor's build job, push job
// and deployment. Missing objects simply leave their fields zeroed, which
// the level-triggered engine treats as "not yet".
func (m *Manager) Observe(ctx context.Context, actor *v1alpha1.Actor, namespace string) (Observation, error) {
	var obs Observation

	complete, failed, err := m.observeJob(ctx, BuildJobName(actor), namespace)
	if err != nil {
		return obs, err
	}
	obs.BuildComplete = complete
	obs.BuildFailed = failed

	complete, failed, err = m.observeJob(ctx, PushJobName(actor), namespace)
	if err != nil {
		return obs, err
	}
	obs.PushComplete = complete
	obs.PushFailed = failed

	if err := m.observeDeployment(ctx, actor, namespace, &obs); err != nil {
		return obs, err
	}

	return obs, nil
}

func (m *Manager) observeJob(ctx context.Context, name, namespace string) (complete bool, failed string, err error) {
	job := &batchv1.Job{}
	key := client.ObjectKey{Name: name, Namespace: namespace}
	if err := m.client.Get(ctx, key, job); err != nil {
		if apierrors.IsNotFound(err) {
			return false, "", nil
		}
		return false, "", fmt.Errorf("observing job %s: %w", key, err)
	}

	for _, cond := range job.Status.Conditions {
		if cond.Status != corev1.ConditionTrue {
			continue
		}
		switch cond.Type {
		case batchv1.JobComplete:
			return true, "", nil
		case batchv1.JobFailed:
			msg := cond.Message
			if msg == "" {
				msg = string(cond.Reason)
			}
			if msg == "" {
				msg = "job failed"
			}
			return false, msg, nil
		}
	}
	return false, "", nil
}

func (m *Manager) observeDeployment(ctx context.Context, actor *v1alpha1.Actor, namespace string, obs *Observation) error {
	deployment := &appsv1.Deployment{}
	key := client.ObjectKey{Name: actor.Spec.Name, Namespace: namespace}
	if err := m.client.Get(ctx, key, deployment); err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("observing deployment %s: %w", key, err)
	}

	obs.DeploymentStarted = true

	for _, cond := range deployment.Status.Conditions {
		switch cond.Type {
		case appsv1.DeploymentAvailable:
			if cond.Status == corev1.ConditionTrue {
				obs.DeploymentReady = true
			}
		case appsv1.DeploymentProgressing:
			if cond.Status == corev1.ConditionFalse && cond.Reason == "ProgressDeadlineExceeded" {
				obs.DeploymentFailed = cond.Message
				if obs.DeploymentFailed == "" {
					obs.DeploymentFailed = "deployment progress deadline exceeded"
				}
			}
		}
	}
	return nil
}
