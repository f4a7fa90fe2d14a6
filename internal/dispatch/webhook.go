package dispatch

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/headwind-sh/headwind/internal/annotations"
	"github.com/headwind-sh/headwind/internal/policy"
	"github.com/headwind-sh/headwind/internal/registry"
	"github.com/headwind-sh/headwind/internal/target"
)

// ImageEvent is the `{name, tag, digest, repository}` shape the webhook
// intake server decodes and passes on (spec.md §4.4, §6).
type ImageEvent struct {
	Name       string
	Tag        string
	Digest     string
	Repository string
}

// WebhookSource matches incoming ImageEvents against every managed
// container-kind workload and submits a Proposal for each slot that
// tracks the event's image (spec.md §4.4: "For each tracked workload
// whose event_source ∈ {webhook, both} and whose tracked images include
// name (or tracked_images is empty), emit a Candidate Proposal with
// candidate = tag").
type WebhookSource struct {
	Factory *target.Factory
	Out     *Dispatcher
	Log     logr.Logger
}

func NewWebhookSource(factory *target.Factory, out *Dispatcher, log logr.Logger) *WebhookSource {
	return &WebhookSource{Factory: factory, Out: out, Log: log}
}

// Handle matches ev against every managed container workload's tracked
// slots. refs is the caller's already-discovered set of managed workloads
// (the webhook intake server lists these once per request, or the caller
// may cache/refresh it independently of the polling loop).
func (s *WebhookSource) Handle(ctx context.Context, ev ImageEvent, refs []target.Ref) {
	canonical, err := registry.CanonicalName(ev.Repository)
	if err != nil {
		s.Log.Error(err, "canonicalizing webhook event repository", "repository", ev.Repository)
		return
	}

	now := time.Now().UTC()
	for _, ref := range refs {
		if !ref.Kind.IsContainerKind() {
			continue
		}
		s.matchOne(ctx, ref, ev, canonical, now)
	}
}

func (s *WebhookSource) matchOne(ctx context.Context, ref target.Ref, ev ImageEvent, canonical string, now time.Time) {
	tgt, err := s.Factory.For(ctx, ref)
	if err != nil {
		s.Log.Error(err, "building target for webhook match", "ref", ref)
		return
	}

	anns, err := tgt.Annotations(ctx)
	if err != nil {
		s.Log.Error(err, "reading annotations for webhook match", "ref", ref)
		return
	}
	if annotations.Suspended(anns) {
		return
	}
	p := annotations.ParsePolicy(anns)
	if p.EventSource != policy.SourceWebhook && p.EventSource != policy.SourceBoth {
		return
	}
	if !annotations.TracksImage(p, canonical) && !annotations.TracksImage(p, ev.Name) {
		return
	}

	slots, err := tgt.Slots(ctx)
	if err != nil {
		s.Log.Error(err, "reading slots for webhook match", "ref", ref)
		return
	}

	for _, slot := range slots {
		repo, _, ok, err := registry.SplitImage(slot.Current)
		if err != nil || !ok {
			continue
		}
		if repo != canonical {
			continue
		}

		s.Out.Submit(Proposal{
			Ref:        ref,
			Slot:       slot.Name,
			Current:    slot.Current,
			Candidate:  ev.Tag,
			Origin:     OriginWebhook,
			ObservedAt: now,
		})
	}
}
