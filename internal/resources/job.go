package resources

import (
	"context"
	"fmt"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	v1alpha1 "stagehand/pkg/apis/stagehand/v1alpha1"
)

const (
	builderImage = "gcr.io/kaniko-project/executor:v1.23.2"
	pusherImage  = "gcr.io/go-containerregistry/crane:latest"

	// annotationRev pins a job to the source revision it was created for,
	// so a new revision yields a fresh run instead of reusing a stale one.
	annotationRev = "stagehand.dev/revision"
)

// BuildJobName returns the name of the Actor's build job.
func BuildJobName(actor *v1alpha1.Actor) string {
	return actor.Spec.Name + buildJobSuffix
}

// PushJobName returns the name of the Actor's push job.
func PushJobName(actor *v1alpha1.Actor) string {
	return actor.Spec.Name + pushJobSuffix
}

// ApplyBuildJob materializes the build job for the Actor's current resolved
// revision. An existing job for an older revision is replaced.
func (m *Manager) ApplyBuildJob(ctx context.Context, actor *v1alpha1.Actor, namespace, rev string) error {
	job := m.buildJob(actor, namespace, rev)
	return m.applyJob(ctx, job, rev)
}

// ApplyPushJob materializes the push job for the built image.
func (m *Manager) ApplyPushJob(ctx context.Context, actor *v1alpha1.Actor, namespace, rev string) error {
	job := m.pushJob(actor, namespace, rev)
	return m.applyJob(ctx, job, rev)
}

// applyJob creates the job, or replaces it when it was created for a
// different revision. Job pod templates are immutable, so replacement
// means delete-and-recreate rather than update.
func (m *Manager) applyJob(ctx context.Context, job *batchv1.Job, rev string) error {
	live := &batchv1.Job{}
	key := client.ObjectKeyFromObject(job)

	err := m.client.Get(ctx, key, live)
	switch {
	case err == nil:
		if live.Annotations[annotationRev] == rev {
			return nil
		}
		policy := metav1.DeletePropagationBackground
		if err := m.client.Delete(ctx, live, &client.DeleteOptions{PropagationPolicy: &policy}); err != nil {
			return fmt.Errorf("replacing job %s: %w", key, err)
		}
	case client.IgnoreNotFound(err) != nil:
		return fmt.Errorf("getting job %s: %w", key, err)
	}

	if err := m.client.Create(ctx, job); err != nil {
		return fmt.Errorf("creating job %s: %w", key, err)
	}
	return nil
}

// jobDeadlineSeconds converts the configured deadline for JobSpec.
// ActiveDeadlineSeconds turns a hung run into JobFailed/DeadlineExceeded,
// which the observer reports like any other job failure.
func (m *Manager) jobDeadlineSeconds() *int64 {
	seconds := int64(m.jobDeadline / time.Second)
	return &seconds
}

func (m *Manager) buildJob(actor *v1alpha1.Actor, namespace, rev string) *batchv1.Job {
	backoffLimit := int32(0)
	src := actor.Spec.Source

	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:            BuildJobName(actor),
			Namespace:       namespace,
			Labels:          labels(actor),
			Annotations:     map[string]string{annotationRev: rev},
			OwnerReferences: []metav1.OwnerReference{ownerReference(actor)},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:          &backoffLimit,
			ActiveDeadlineSeconds: m.jobDeadlineSeconds(),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels(actor)},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{{
						Name:  "builder",
						Image: builderImage,
						Args: []string{
							fmt.Sprintf("--context=%s#%s", src.Repo, rev),
							fmt.Sprintf("--context-sub-path=%s", src.Path),
							fmt.Sprintf("--destination=%s", actor.Spec.Image),
							"--no-push",
							"--tar-path=/workspace/image.tar",
						},
						VolumeMounts: []corev1.VolumeMount{{
							Name:      "workspace",
							MountPath: "/workspace",
						}},
					}},
					Volumes: []corev1.Volume{{
						Name: "workspace",
						VolumeSource: corev1.VolumeSource{
							PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
								ClaimName: WorkspaceName(actor),
							},
						},
					}},
				},
			},
		},
	}
}

func (m *Manager) pushJob(actor *v1alpha1.Actor, namespace, rev string) *batchv1.Job {
	backoffLimit := int32(0)

	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:            PushJobName(actor),
			Namespace:       namespace,
			Labels:          labels(actor),
			Annotations:     map[string]string{annotationRev: rev},
			OwnerReferences: []metav1.OwnerReference{ownerReference(actor)},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:          &backoffLimit,
			ActiveDeadlineSeconds: m.jobDeadlineSeconds(),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels(actor)},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{{
						Name:  "pusher",
						Image: pusherImage,
						Args: []string{
							"push",
							"/workspace/image.tar",
							actor.Spec.Image,
						},
						VolumeMounts: []corev1.VolumeMount{{
							Name:      "workspace",
							MountPath: "/workspace",
						}},
					}},
					Volumes: []corev1.Volume{{
						Name: "workspace",
						VolumeSource: corev1.VolumeSource{
							PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
								ClaimName: WorkspaceName(actor),
							},
						},
					}},
				},
			},
		},
	}
}
