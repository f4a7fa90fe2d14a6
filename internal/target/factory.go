package target

import (
	"context"
	"fmt"

	"github.com/google/go-containerregistry/pkg/authn"

	"github.com/headwind-sh/headwind/internal/chartrepo"
	"github.com/headwind-sh/headwind/internal/orchestrator"
	"github.com/headwind-sh/headwind/internal/registry"
)

// Factory builds the right Target implementation for a Ref, reading
// whatever per-kind linkage (chart repo/name, registry credentials) the
// underlying object carries. One Factory is shared by the dispatcher and
// the update pipeline so both act on the same construction rules.
type Factory struct {
	Orch     *orchestrator.Client
	Registry *registry.Client
	Charts   *chartrepo.Client

	// ImageAuth resolves the registry authenticator for a container
	// target's image repository. Nil means anonymous access.
	ImageAuth func(ctx context.Context, repository string) (authn.Authenticator, error)

	// ChartAuth resolves chart-repository credentials for a HelmRelease
	// target, given its namespace/name (spec.md §4.4: "authentication is
	// taken from the referenced credential resource"). Nil means no auth.
	ChartAuth func(ctx context.Context, ref Ref) (chartrepo.Auth, error)
}

func NewFactory(orch *orchestrator.Client, reg *registry.Client, charts *chartrepo.Client) *Factory {
	return &Factory{Orch: orch, Registry: reg, Charts: charts}
}

// For builds the Target for ref, looking up chart linkage for HelmRelease
// refs by reading the object's spec.repo/spec.chart fields.
func (f *Factory) For(ctx context.Context, ref Ref) (Target, error) {
	if ref.Kind.IsContainerKind() {
		ct := NewContainerTarget(ref, f.Orch, f.Registry)
		ct.Auth = f.ImageAuth
		return ct, nil
	}
	if ref.Kind != KindHelmRelease {
		return nil, fmt.Errorf("unknown workload kind %q", ref.Kind)
	}

	obj, err := f.Orch.Get(ctx, GVKFor(ref.Kind), ref.Namespace, ref.Name)
	if err != nil {
		return nil, err
	}
	repoURL, chart, err := orchestrator.ChartSource(obj)
	if err != nil {
		return nil, err
	}

	tt := NewChartTarget(ref, f.Orch, f.Charts)
	tt.RepoURL = repoURL
	tt.ChartName = chart
	if f.ChartAuth != nil {
		auth, err := f.ChartAuth(ctx, ref)
		if err != nil {
			return nil, err
		}
		tt.Auth = auth
	}
	return tt, nil
}
