package target

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-containerregistry/pkg/authn"

	"github.com/headwind-sh/headwind/internal/annotations"
	"github.com/headwind-sh/headwind/internal/history"
	"github.com/headwind-sh/headwind/internal/orchestrator"
	"github.com/headwind-sh/headwind/internal/registry"
)

// ContainerTarget realizes Target for Stateless, StatefulOrdered and
// PerNodeSet workloads (spec.md §3) -- they differ only in which native
// workload-controller resource they wrap (Deployment-, StatefulSet-, and
// DaemonSet-shaped, respectively), and share every other code path.
type ContainerTarget struct {
	ref  Ref
	orch *orchestrator.Client
	reg  *registry.Client

	// Auth resolves the registry authenticator for an image repository,
	// e.g. from the workload's referenced pull-secret (spec.md §4.4). Nil
	// means anonymous access.
	Auth func(ctx context.Context, repository string) (authn.Authenticator, error)
}

func NewContainerTarget(ref Ref, orch *orchestrator.Client, reg *registry.Client) *ContainerTarget {
	return &ContainerTarget{ref: ref, orch: orch, reg: reg}
}

func (t *ContainerTarget) Ref() Ref { return t.ref }

func (t *ContainerTarget) Annotations(ctx context.Context) (map[string]string, error) {
	obj, err := t.orch.Get(ctx, GVKFor(t.ref.Kind), t.ref.Namespace, t.ref.Name)
	if err != nil {
		return nil, err
	}
	return orchestrator.Annotations(obj), nil
}

func (t *ContainerTarget) Slots(ctx context.Context) ([]Slot, error) {
	obj, err := t.orch.Get(ctx, GVKFor(t.ref.Kind), t.ref.Namespace, t.ref.Name)
	if err != nil {
		return nil, err
	}
	names, err := orchestrator.ContainerNames(obj)
	if err != nil {
		return nil, err
	}
	slots := make([]Slot, 0, len(names))
	for _, name := range names {
		image, _, err := orchestrator.ContainerImage(obj, name)
		if err != nil {
			return nil, err
		}
		slots = append(slots, Slot{Name: name, Current: image})
	}
	return slots, nil
}

// EnumerateCandidates lists every tag published for the slot's current
// image repository.
func (t *ContainerTarget) EnumerateCandidates(ctx context.Context, slot string) ([]string, error) {
	obj, err := t.orch.Get(ctx, GVKFor(t.ref.Kind), t.ref.Namespace, t.ref.Name)
	if err != nil {
		return nil, err
	}
	image, found, err := orchestrator.ContainerImage(obj, slot)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("slot %q not found on workload %s/%s", slot, t.ref.Namespace, t.ref.Name)
	}

	var auth authn.Authenticator
	if t.Auth != nil {
		auth, err = t.Auth(ctx, image)
		if err != nil {
			return nil, err
		}
	}

	return t.reg.ListTags(ctx, image, auth)
}

func (t *ContainerTarget) Apply(ctx context.Context, slot, newValue, approvedBy string, rollback bool) error {
	now := time.Now().UTC()

	obj, err := t.orch.Get(ctx, GVKFor(t.ref.Kind), t.ref.Namespace, t.ref.Name)
	if err != nil {
		return err
	}
	anns := orchestrator.Annotations(obj)
	existing, err := history.Decode(anns[annotations.KeyUpdateHistory])
	if err != nil {
		return fmt.Errorf("decoding existing update-history: %w", err)
	}

	updated := existing.Append(history.Entry{
		Slot:           slot,
		ImageOrVersion: newValue,
		Timestamp:      now,
		ApprovedBy:     approvedBy,
		Rollback:       rollback,
	})
	encoded, err := updated.Encode()
	if err != nil {
		return err
	}

	managed := map[string]string{
		annotations.KeyLastUpdate:    now.Format(time.RFC3339),
		annotations.KeyUpdateHistory: encoded,
	}

	return t.orch.ApplyContainerImage(ctx, GVKFor(t.ref.Kind), t.ref.Namespace, t.ref.Name, slot, newValue, managed)
}
