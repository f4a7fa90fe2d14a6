// Package dispatch implements the Event-Source Dispatcher (C4):
// demultiplexing webhook events and polling ticks into per-workload
// Candidate Proposals, honoring each workload's event_source filter and
// polling interval (spec.md §4.4). It is grounded on the teacher's
// internal/cmd/controller/imagescan package -- a semaphore-guarded
// quartz.Job scanning tracked images on a tick -- generalized here to
// scan every managed workload kind rather than a single ImageScan
// resource.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/headwind-sh/headwind/internal/target"
)

// Proposal is the Candidate Proposal of spec.md §3: an in-memory record of
// a possibly-newer version observed for a slot.
type Proposal struct {
	Ref        target.Ref
	Slot       string
	Current    string
	Candidate  string
	Origin     Origin
	ObservedAt time.Time
}

// Origin is where a Proposal came from (spec.md §3: "origin ∈ {webhook,
// polling}").
type Origin string

const (
	OriginWebhook Origin = "webhook"
	OriginPolling Origin = "polling"
)

func key(ref target.Ref, slot string) string {
	return string(ref.Kind) + "/" + ref.Namespace + "/" + ref.Name + "/" + slot
}

// Handler is what C5 (the update pipeline) implements to consume accepted
// proposals. Handle runs synchronously on the dispatcher's drain goroutine;
// long-running work belongs to the pipeline's own queue, not here.
type Handler interface {
	Handle(ctx context.Context, p Proposal)
}

// Dispatcher coalesces bursts of proposals for the same (workload, slot)
// key, per spec.md §4.4's backpressure rule: "if a proposal for (workload,
// slot) is already pending admission, newer proposals for the same key
// replace it rather than queue." A single drain goroutine hands coalesced
// proposals to Handler one at a time, preserving the per-slot arrival-order
// guarantee of spec.md §5.
type Dispatcher struct {
	mu      sync.Mutex
	pending map[string]Proposal
	signal  chan struct{}
	handler Handler
}

func New(handler Handler) *Dispatcher {
	return &Dispatcher{
		pending: make(map[string]Proposal),
		signal:  make(chan struct{}, 1),
		handler: handler,
	}
}

// Submit accepts a newly observed Proposal, replacing any still-pending
// proposal for the same (workload, slot) key (spec.md §4.4 backpressure).
// Proposals with candidate == current are dropped per spec.md invariant 5.
func (d *Dispatcher) Submit(p Proposal) {
	if p.Candidate == p.Current {
		return
	}
	d.mu.Lock()
	d.pending[key(p.Ref, p.Slot)] = p
	d.mu.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// Run drains coalesced proposals to Handler until ctx is canceled. It is
// the dispatcher's single consumer goroutine; callers run it once at
// startup.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.signal:
			d.drain(ctx)
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		d.mu.Lock()
		var (
			k    string
			p    Proposal
			some bool
		)
		for k, p = range d.pending {
			some = true
			break
		}
		if some {
			delete(d.pending, k)
		}
		d.mu.Unlock()

		if !some {
			return
		}
		d.handler.Handle(ctx, p)
	}
}
