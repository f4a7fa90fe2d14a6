package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Phase is the UpdateRequest lifecycle phase, per spec.md §4.3.
type Phase string

const (
	PhasePending   Phase = "Pending"
	PhaseCompleted Phase = "Completed"
	PhaseRejected  Phase = "Rejected"
	PhaseFailed    Phase = "Failed"
)

// IsTerminal reports whether phase accepts no further transitions except
// by deletion (spec.md invariant 4).
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseRejected || p == PhaseFailed
}

// TargetRef identifies the workload an UpdateRequest targets.
type TargetRef struct {
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
}

// UpdateRequestSpec is the immutable, desired-update portion of an
// UpdateRequest (spec.md §6).
type UpdateRequestSpec struct {
	TargetRef TargetRef `json:"targetRef"`

	// ContainerName identifies the slot for container workloads; empty for
	// HelmRelease targets, which have a single chart slot.
	ContainerName string `json:"containerName,omitempty"`

	CurrentImage string `json:"currentImage,omitempty"`
	NewImage     string `json:"newImage,omitempty"`

	CurrentVersion string `json:"currentVersion,omitempty"`
	NewVersion     string `json:"newVersion,omitempty"`

	// PolicyKind is the policy.Kind that admitted this proposal, recorded
	// for audit.
	PolicyKind string `json:"policy"`
}

// Slot returns the spec's slot identifier regardless of target kind.
func (s UpdateRequestSpec) Slot() string {
	if s.ContainerName != "" {
		return s.ContainerName
	}
	return "chart"
}

// New returns the proposed new image or chart version, whichever applies.
func (s UpdateRequestSpec) New() string {
	if s.NewImage != "" {
		return s.NewImage
	}
	return s.NewVersion
}

// Current returns the current image or chart version, whichever applies.
func (s UpdateRequestSpec) Current() string {
	if s.CurrentImage != "" {
		return s.CurrentImage
	}
	return s.CurrentVersion
}

// UpdateRequestStatus is the observed status of an UpdateRequest, per
// spec.md §6.
type UpdateRequestStatus struct {
	Phase Phase `json:"phase,omitempty"`

	CreatedAt   metav1.Time `json:"createdAt,omitempty"`
	LastUpdated metav1.Time `json:"lastUpdated,omitempty"`

	ApprovedBy *string      `json:"approvedBy,omitempty"`
	ApprovedAt *metav1.Time `json:"approvedAt,omitempty"`

	RejectedBy       *string      `json:"rejectedBy,omitempty"`
	RejectedAt       *metav1.Time `json:"rejectedAt,omitempty"`
	RejectionReason  string       `json:"rejectionReason,omitempty"`

	Message string `json:"message,omitempty"`
}

// +genclient
// +k8s:deepcopy-gen:interfaces=k8s.io/apimachinery/pkg/runtime.Object
// +kubebuilder:object:root=true
// +kubebuilder:resource:categories=headwind,path=updaterequests,shortName=urq
// +kubebuilder:subresource:status
// +kubebuilder:printcolumn:name="Target",type=string,JSONPath=`.spec.targetRef.name`
// +kubebuilder:printcolumn:name="Slot",type=string,JSONPath=`.spec.containerName`
// +kubebuilder:printcolumn:name="New",type=string,JSONPath=`.spec.newImage`
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`

// UpdateRequest is the persisted approval record for a single proposed
// image or chart-version update (spec.md §3, §4.3).
type UpdateRequest struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   UpdateRequestSpec   `json:"spec,omitempty"`
	Status UpdateRequestStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// UpdateRequestList contains a list of UpdateRequest.
type UpdateRequestList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []UpdateRequest `json:"items"`
}
