// Package target implements spec.md §9's "Design Notes" tagged variant:
// Target in {Container{container_name}, Chart}, with a small capability
// set (read_current, apply_new, enumerate_candidates) realized per
// workload kind. Four workload kinds (spec.md §3) share this one pipeline.
package target

import (
	"context"

	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Kind is a workload kind, per spec.md §3.
type Kind string

const (
	KindStateless       Kind = "Stateless"
	KindStatefulOrdered Kind = "StatefulOrdered"
	KindPerNodeSet      Kind = "PerNodeSet"
	KindHelmRelease     Kind = "HelmRelease"
)

// IsContainerKind reports whether kind is realized via the ContainerTarget
// capability (as opposed to ChartTarget).
func (k Kind) IsContainerKind() bool {
	return k == KindStateless || k == KindStatefulOrdered || k == KindPerNodeSet
}

func (k Kind) String() string { return string(k) }

// AllKinds is every workload Kind the dispatcher and pipeline discover
// (spec.md §3).
var AllKinds = []Kind{KindStateless, KindStatefulOrdered, KindPerNodeSet, KindHelmRelease}

// GVKFor maps a workload Kind to the GroupVersionKind of the orchestrator
// object it is realized as. Container kinds map onto the platform's native
// workload-controller resources; HelmRelease maps onto the chart-repository
// client's own custom resource (spec.md §9 Open Question (b): Headwind
// leaves registry/chart selection to that external client and only reads
// back chart_name/current_version here). Kept in this package, not
// internal/orchestrator, so orchestrator stays free of a dependency back
// onto target.
func GVKFor(k Kind) schema.GroupVersionKind {
	switch k {
	case KindStateless:
		return schema.GroupVersionKind{Group: "apps", Version: "v1", Kind: "Deployment"}
	case KindStatefulOrdered:
		return schema.GroupVersionKind{Group: "apps", Version: "v1", Kind: "StatefulSet"}
	case KindPerNodeSet:
		return schema.GroupVersionKind{Group: "apps", Version: "v1", Kind: "DaemonSet"}
	case KindHelmRelease:
		return schema.GroupVersionKind{Group: "helm.cattle.io", Version: "v1", Kind: "HelmRelease"}
	default:
		return schema.GroupVersionKind{}
	}
}

// Ref is the external reference to a managed workload (spec.md §3).
type Ref struct {
	Kind      Kind
	Namespace string
	Name      string
}

// Slot is one tracked container-name within a workload, or the single
// chart slot of a HelmRelease (GLOSSARY).
type Slot struct {
	Name    string
	Current string
}

// Target is the capability set spec.md §9 calls for: every workload kind
// implements it the same way regardless of how "slot" and "apply" map onto
// the underlying orchestrator object.
type Target interface {
	Ref() Ref

	// Annotations returns the workload's current annotation map (policy
	// config plus any previously managed state).
	Annotations(ctx context.Context) (map[string]string, error)

	// Slots returns the tracked slots and their current image/version.
	Slots(ctx context.Context) ([]Slot, error)

	// EnumerateCandidates returns the available tags/chart-versions for
	// slot, from the registry or chart-repository client (spec.md §4.4).
	EnumerateCandidates(ctx context.Context, slot string) ([]string, error)

	// Apply performs the compare-and-set mutation of spec.md §4.3: set
	// containers[slot].image = newValue for container targets, or
	// chart.spec.version = newValue for HelmRelease, retrying up to 3
	// times on resource-version conflict. It also writes the managed
	// headwind.sh/last-update and headwind.sh/update-history annotations,
	// tagging the appended history entry as a rollback when rollback is
	// true (spec.md §4.5, §4.6), and recording approvedBy on the entry.
	Apply(ctx context.Context, slot, newValue, approvedBy string, rollback bool) error
}
