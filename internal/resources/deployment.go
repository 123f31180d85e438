package resources

import (
	"context"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"sigs.k8s.io/controller-runtime/pkg/client"

	v1alpha1 "stagehand/pkg/apis/stagehand/v1alpha1"
)

// ApplyDeployment materializes the Actor's Deployment, plus a Service when
// the Actor exposes ports. Rev pins the pod template to the built revision
// so a new build rolls the workload.
func (m *Manager) ApplyDeployment(ctx context.Context, actor *v1alpha1.Actor, namespace, rev string) error {
	deployment := m.deployment(actor, namespace, rev)
	_, err := m.createOrUpdate(ctx, deployment, func(live client.Object) bool {
		d := live.(*appsv1.Deployment)
		if d.Annotations[annotationRev] == rev {
			return false
		}
		d.Labels = deployment.Labels
		if d.Annotations == nil {
			d.Annotations = map[string]string{}
		}
		d.Annotations[annotationRev] = rev
		d.Spec = deployment.Spec
		return true
	})
	if err != nil {
		return err
	}

	if len(actor.Spec.Ports) > 0 {
		return m.applyService(ctx, actor, namespace)
	}
	return nil
}

func (m *Manager) deployment(actor *v1alpha1.Actor, namespace, rev string) *appsv1.Deployment {
	replicas := int32(1)
	selector := map[string]string{LabelActor: actor.Spec.Name}

	ports := make([]corev1.ContainerPort, 0, len(actor.Spec.Ports))
	for _, p := range actor.Spec.Ports {
		ports = append(ports, corev1.ContainerPort{ContainerPort: p})
	}

	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:            actor.Spec.Name,
			Namespace:       namespace,
			Labels:          labels(actor),
			Annotations:     map[string]string{annotationRev: rev},
			OwnerReferences: []metav1.OwnerReference{ownerReference(actor)},
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: selector},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels:      labels(actor),
					Annotations: map[string]string{annotationRev: rev},
				},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{
						Name:  actor.Spec.Name,
						Image: actor.Spec.Image,
						Ports: ports,
					}},
				},
			},
		},
	}
}

// applyService exposes the Actor's declared ports inside the namespace.
func (m *Manager) applyService(ctx context.Context, actor *v1alpha1.Actor, namespace string) error {
	ports := make([]corev1.ServicePort, 0, len(actor.Spec.Ports))
	for _, p := range actor.Spec.Ports {
		ports = append(ports, corev1.ServicePort{
			Port:       p,
			TargetPort: intstr.FromInt32(p),
		})
	}

	service := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:            actor.Spec.Name,
			Namespace:       namespace,
			Labels:          labels(actor),
			OwnerReferences: []metav1.OwnerReference{ownerReference(actor)},
		},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{LabelActor: actor.Spec.Name},
			Ports:    ports,
		},
	}

	_, err := m.createOrUpdate(ctx, service, func(live client.Object) bool {
		s := live.(*corev1.Service)
		if servicePortsEqual(s.Spec.Ports, ports) {
			return false
		}
		// ClusterIP is immutable; only the mutable fields are copied.
		s.Spec.Ports = ports
		s.Spec.Selector = service.Spec.Selector
		s.Labels = service.Labels
		return true
	})
	return err
}

// servicePortsEqual compares the fields this manager sets. A changed port
// number with an unchanged count is still drift.
func servicePortsEqual(live, desired []corev1.ServicePort) bool {
	if len(live) != len(desired) {
		return false
	}
	for i := range desired {
		if live[i].Port != desired[i].Port || live[i].TargetPort != desired[i].TargetPort {
			return false
		}
	}
	return true
}
