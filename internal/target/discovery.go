package target

import (
	"context"
	"fmt"

	"github.com/headwind-sh/headwind/internal/annotations"
	"github.com/headwind-sh/headwind/internal/orchestrator"
)

// ListManaged returns every workload of kind that carries the
// headwind.sh/policy annotation (spec.md §5 "Workloads are discovered on
// controller start and on change notifications").
func ListManaged(ctx context.Context, orch *orchestrator.Client, kind Kind) ([]Ref, error) {
	list, err := orch.List(ctx, GVKFor(kind))
	if err != nil {
		return nil, err
	}

	var refs []Ref
	for i := range list.Items {
		item := &list.Items[i]
		anns := orchestrator.Annotations(item)
		if _, ok := anns[annotations.KeyPolicy]; !ok {
			continue
		}
		refs = append(refs, Ref{Kind: kind, Namespace: item.GetNamespace(), Name: item.GetName()})
	}
	return refs, nil
}

// ListAllManaged lists every managed workload across all four kinds.
func ListAllManaged(ctx context.Context, orch *orchestrator.Client) ([]Ref, error) {
	var all []Ref
	for _, k := range AllKinds {
		refs, err := ListManaged(ctx, orch, k)
		if err != nil {
			return nil, err
		}
		all = append(all, refs...)
	}
	return all, nil
}

// ResolveKind finds which managed Kind a (namespace, name) pair belongs to,
// by probing each kind's GVK in turn. Used by the rollback API, whose route
// (spec.md §6, `/api/v1/rollback/{ns}/{wl}/{container}`) does not carry the
// workload kind.
func ResolveKind(ctx context.Context, orch *orchestrator.Client, namespace, name string) (Kind, error) {
	for _, k := range AllKinds {
		_, err := orch.Get(ctx, GVKFor(k), namespace, name)
		if err == nil {
			return k, nil
		}
		if !orchestrator.IsNotFound(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("workload %s/%s not found among managed kinds", namespace, name)
}
