package target

import (
	"context"
	"fmt"
	"time"

	"github.com/headwind-sh/headwind/internal/annotations"
	"github.com/headwind-sh/headwind/internal/chartrepo"
	"github.com/headwind-sh/headwind/internal/history"
	"github.com/headwind-sh/headwind/internal/orchestrator"
)

// chartSlotName is the single tracked slot of a HelmRelease target
// (GLOSSARY: "the single chart slot of a HelmRelease").
const chartSlotName = "chart"

// ChartTarget realizes Target for HelmRelease workloads.
type ChartTarget struct {
	ref    Ref
	orch   *orchestrator.Client
	charts *chartrepo.Client

	// RepoURL and ChartName identify where candidate versions come from;
	// they are read off the HelmRelease object itself by callers before
	// constructing a ChartTarget (spec.md §4.4: "derived from the linked
	// chart repository resource").
	RepoURL   string
	ChartName string
	Auth      chartrepo.Auth
}

func NewChartTarget(ref Ref, orch *orchestrator.Client, charts *chartrepo.Client) *ChartTarget {
	return &ChartTarget{ref: ref, orch: orch, charts: charts}
}

func (t *ChartTarget) Ref() Ref { return t.ref }

func (t *ChartTarget) Annotations(ctx context.Context) (map[string]string, error) {
	obj, err := t.orch.Get(ctx, GVKFor(t.ref.Kind), t.ref.Namespace, t.ref.Name)
	if err != nil {
		return nil, err
	}
	return orchestrator.Annotations(obj), nil
}

func (t *ChartTarget) Slots(ctx context.Context) ([]Slot, error) {
	obj, err := t.orch.Get(ctx, GVKFor(t.ref.Kind), t.ref.Namespace, t.ref.Name)
	if err != nil {
		return nil, err
	}
	version, _, err := orchestrator.ChartVersion(obj)
	if err != nil {
		return nil, err
	}
	return []Slot{{Name: chartSlotName, Current: version}}, nil
}

func (t *ChartTarget) EnumerateCandidates(_ context.Context, slot string) ([]string, error) {
	if slot != chartSlotName {
		return nil, fmt.Errorf("helm release target has no slot %q", slot)
	}
	if t.RepoURL == "" || t.ChartName == "" {
		return nil, fmt.Errorf("helm release %s/%s has no linked chart repository", t.ref.Namespace, t.ref.Name)
	}
	return t.charts.ListVersions(t.RepoURL, t.ChartName, t.Auth)
}

func (t *ChartTarget) Apply(ctx context.Context, slot, newValue, approvedBy string, rollback bool) error {
	if slot != chartSlotName {
		return fmt.Errorf("helm release target has no slot %q", slot)
	}

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
		Slot:           chartSlotName,
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

	return t.orch.ApplyChartVersion(ctx, GVKFor(t.ref.Kind), t.ref.Namespace, t.ref.Name, newValue, managed)
}
