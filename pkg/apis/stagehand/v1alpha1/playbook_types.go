package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// PlaybookSpec defines the desired state of Playbook
type PlaybookSpec struct {
	// Title is the human-readable title of the playbook.
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:MaxLength=100
	Title string `json:"title" yaml:"title"`

	// Description provides a human-readable description of the playbook's purpose.
	// +kubebuilder:validation:MaxLength=1000
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Namespace is the namespace for the playbook's managed resources and
	// Actor deployment instances. Created on first reconcile if missing.
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:Pattern="^[a-z0-9]([-a-z0-9]*[a-z0-9])?$"
	Namespace string `json:"namespace" yaml:"namespace"`

	// Sync enables global live-sync mode. When enabled, Actors whose source
	// changes are patched in place by the syncer instead of being rebuilt.
	// +kubebuilder:default=false
	Sync bool `json:"sync,omitempty" yaml:"sync,omitempty"`

	// Actors lists the names of the Actors that make up this playbook.
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:MinItems=1
	Actors []string `json:"actors" yaml:"actors"`
}

// PlaybookPhase is the derived overall phase of a Playbook. It is computed
// from the stages of the constituent Actors on every reconcile pass and is
// never stored independently of them.
type PlaybookPhase string

const (
	// PlaybookPhasePending means no Actor has started its pipeline yet.
	PlaybookPhasePending PlaybookPhase = "Pending"

	// PlaybookPhaseProgressing means at least one Actor is somewhere between
	// Pending and Running.
	PlaybookPhaseProgressing PlaybookPhase = "Progressing"

	// PlaybookPhaseRunning means every Actor has reached Running.
	PlaybookPhaseRunning PlaybookPhase = "Running"

	// PlaybookPhaseFailed means at least one Actor is terminally Failed.
	PlaybookPhaseFailed PlaybookPhase = "Failed"
)

// PlaybookStatus defines the observed state of Playbook
type PlaybookStatus struct {
	// Phase is the derived overall phase, computed from constituent Actors.
	Phase PlaybookPhase `json:"phase,omitempty" yaml:"phase,omitempty"`

	// ActorSummary maps each Actor name to its current pipeline stage.
	ActorSummary map[string]Stage `json:"actorSummary,omitempty" yaml:"actorSummary,omitempty"`

	// Conditions represent the latest available observations of the playbook's state.
	Conditions []metav1.Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

//+kubebuilder:object:root=true
//+kubebuilder:subresource:status
//+kubebuilder:resource:shortName=pb,scope=Cluster
//+kubebuilder:printcolumn:name="Title",type="string",JSONPath=".spec.title"
//+kubebuilder:printcolumn:name="Phase",type="string",JSONPath=".status.phase"
//+kubebuilder:printcolumn:name="Age",type="date",JSONPath=".metadata.creationTimestamp"

// Playbook is the Schema for the playbooks API
type Playbook struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   PlaybookSpec   `json:"spec,omitempty"`
	Status PlaybookStatus `json:"status,omitempty"`
}

//+kubebuilder:object:root=true

// PlaybookList contains a list of Playbook
type PlaybookList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Playbook `json:"items"`
}

func init() {
	SchemeBuilder.Register(&Playbook{}, &PlaybookList{})
}
