package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Stage identifies an Actor's position in the build/push/deploy pipeline.
//
// Exactly one stage is current for an Actor at any time. Transitions are
// monotonic forward except for the explicit retry path out of Failed and
// the Syncing round trip back to Running.
// +kubebuilder:validation:Enum=Pending;Resolving;Building;Pushing;Syncing;Deploying;Running;Failed
type Stage string

const (
	// StagePending means the Actor is waiting for its dependencies.
	StagePending Stage = "Pending"

	// StageResolving means the Actor's source reference is being resolved.
	StageResolving Stage = "Resolving"

	// StageBuilding means a build job for the Actor's image is in flight.
	StageBuilding Stage = "Building"

	// StagePushing means the built image is being pushed to the registry.
	StagePushing Stage = "Pushing"

	// StageSyncing means a live patch of the running workload is in flight.
	StageSyncing Stage = "Syncing"

	// StageDeploying means the deployment objects are rolling out.
	StageDeploying Stage = "Deploying"

	// StageRunning means the Actor's workload is up and ready.
	StageRunning Stage = "Running"

	// StageFailed is the absorbing error state. Re-entry to Pending is
	// possible while retry budget remains.
	StageFailed Stage = "Failed"
)

// Terminal reports whether the stage admits no further automatic transitions
// besides retry-from-Failed.
func (s Stage) Terminal() bool {
	return s == StageFailed
}

// SourceReference locates an Actor's source tree.
type SourceReference struct {
	// Repo is the repository URL.
	// +kubebuilder:validation:Required
	Repo string `json:"repo" yaml:"repo"`

	// Path is the path within the repository holding the Actor's sources.
	// Defaults to the repository root.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Ref is the branch or tag to build from. Defaults to the repository's
	// default branch when empty.
	Ref string `json:"ref,omitempty" yaml:"ref,omitempty"`

	// Rev is the resolved commit. Populated by the resolver; a change here
	// restarts the Actor's pipeline when restart-on-source-change is enabled.
	Rev string `json:"rev,omitempty" yaml:"rev,omitempty"`
}

// Revision returns the pinned revision, falling back to the symbolic ref.
func (s *SourceReference) Revision() string {
	if s.Rev != "" {
		return s.Rev
	}
	return s.Ref
}

// ActorSpec defines the desired state of Actor
type ActorSpec struct {
	// Playbook is the name of the owning Playbook. An Actor never outlives
	// its Playbook.
	// +kubebuilder:validation:Required
	Playbook string `json:"playbook" yaml:"playbook"`

	// Name is the Actor's name, unique within its Playbook.
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:Pattern="^[a-z0-9]([-a-z0-9]*[a-z0-9])?$"
	// +kubebuilder:validation:MaxLength=63
	Name string `json:"name" yaml:"name"`

	// Description provides a human-readable description of the Actor.
	// +kubebuilder:validation:MaxLength=500
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Source locates the Actor's source tree.
	// +kubebuilder:validation:Required
	Source SourceReference `json:"source" yaml:"source"`

	// Image is the image reference the build pipeline produces and the
	// deployment runs.
	Image string `json:"image,omitempty" yaml:"image,omitempty"`

	// Dependencies lists the names of sibling Actors this Actor explicitly
	// depends on. Further dependencies may be discovered by the resolver
	// from the Actor's manifest.
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`

	// Live enables per-Actor live-sync. A live Actor's Running workload is
	// patched in place on source changes instead of being rebuilt.
	// +kubebuilder:default=false
	Live bool `json:"live,omitempty" yaml:"live,omitempty"`

	// Ports lists the container ports to expose through a Service.
	Ports []int32 `json:"ports,omitempty" yaml:"ports,omitempty"`
}

// ActorStatus defines the observed state of Actor
type ActorStatus struct {
	// Stage is the Actor's current pipeline stage.
	Stage Stage `json:"stage,omitempty" yaml:"stage,omitempty"`

	// Revision increases monotonically on every stage transition. Consumers
	// of the event bus deduplicate by (actor, stage, revision); writers use
	// it for optimistic-concurrency updates.
	Revision int64 `json:"revision,omitempty" yaml:"revision,omitempty"`

	// RetryCount is the number of retries consumed out of the retry budget.
	RetryCount int `json:"retryCount,omitempty" yaml:"retryCount,omitempty"`

	// LastError holds the human-readable cause of the most recent failure.
	LastError string `json:"lastError,omitempty" yaml:"lastError,omitempty"`

	// ErrorHistory keeps earlier failure causes across retries.
	ErrorHistory []string `json:"errorHistory,omitempty" yaml:"errorHistory,omitempty"`

	// DiscoveredDependencies lists dependencies found by the resolver in
	// the Actor's manifest, beyond the explicitly declared ones.
	DiscoveredDependencies []string `json:"discoveredDependencies,omitempty" yaml:"discoveredDependencies,omitempty"`

	// ResolvedRev is the commit the pipeline last resolved and built from.
	ResolvedRev string `json:"resolvedRev,omitempty" yaml:"resolvedRev,omitempty"`

	// Conditions represent the latest available observations of the actor's state.
	Conditions []metav1.Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

//+kubebuilder:object:root=true
//+kubebuilder:subresource:status
//+kubebuilder:resource:shortName=act
//+kubebuilder:printcolumn:name="Playbook",type="string",JSONPath=".spec.playbook"
//+kubebuilder:printcolumn:name="Stage",type="string",JSONPath=".status.stage"
//+kubebuilder:printcolumn:name="Retries",type="integer",JSONPath=".status.retryCount"
//+kubebuilder:printcolumn:name="Age",type="date",JSONPath=".metadata.creationTimestamp"

// Actor is the Schema for the actors API
type Actor struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ActorSpec   `json:"spec,omitempty"`
	Status ActorStatus `json:"status,omitempty"`
}

//+kubebuilder:object:root=true

// ActorList contains a list of Actor
type ActorList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Actor `json:"items"`
}

func init() {
	SchemeBuilder.Register(&Actor{}, &ActorList{})
}
