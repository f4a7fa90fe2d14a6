package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/reugn/go-quartz/quartz"
	"golang.org/x/sync/semaphore"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/headwind-sh/headwind/internal/annotations"
	"github.com/headwind-sh/headwind/internal/metrics"
	"github.com/headwind-sh/headwind/internal/policy"
	"github.com/headwind-sh/headwind/internal/registry"
	"github.com/headwind-sh/headwind/internal/target"
)

// PollKey names the single recurring polling job in the quartz scheduler.
func PollKey() *quartz.JobKey {
	return quartz.NewJobKey("headwind-polling-tick")
}

var _ quartz.Job = &PollJob{}

// PollJob is the global polling tick of spec.md §4.4: on each tick it
// walks every managed workload, honors event_source and per-workload
// polling_interval_s overrides, and submits a Proposal for the greatest
// admissible candidate per slot. It is grounded on the teacher's
// TagScanJob (internal/cmd/controller/imagescan/tagscan_job.go): a
// semaphore prevents overlapping ticks the same way TagScanJob guards a
// single ImageScan resource.
type PollJob struct {
	sem     *semaphore.Weighted
	factory *target.Factory
	out     *Dispatcher

	mu         sync.Mutex
	lastPollAt map[string]time.Time
}

func NewPollJob(factory *target.Factory, out *Dispatcher) *PollJob {
	return &PollJob{
		sem:        semaphore.NewWeighted(1),
		factory:    factory,
		out:        out,
		lastPollAt: make(map[string]time.Time),
	}
}

func (j *PollJob) Description() string { return PollKey().String() }

func (j *PollJob) Execute(ctx context.Context) error {
	if !j.sem.TryAcquire(1) {
		return nil
	}
	defer j.sem.Release(1)

	logger := log.FromContext(ctx).WithName("dispatch-poll")
	metrics.PollingCyclesTotal.Inc()

	refs, err := target.ListAllManaged(ctx, j.factory.Orch)
	if err != nil {
		metrics.PollingErrorsTotal.Inc()
		logger.Error(err, "listing managed workloads")
		return nil
	}

	now := time.Now().UTC()
	for _, ref := range refs {
		j.pollOne(ctx, logger, ref, now)
	}
	return nil
}

func (j *PollJob) pollOne(ctx context.Context, logger logr.Logger, ref target.Ref, now time.Time) {
	tgt, err := j.factory.For(ctx, ref)
	if err != nil {
		metrics.PollingErrorsTotal.Inc()
		logger.Error(err, "building target", "ref", ref)
		return
	}

	anns, err := tgt.Annotations(ctx)
	if err != nil {
		metrics.PollingErrorsTotal.Inc()
		logger.Error(err, "reading annotations", "ref", ref)
		return
	}
	if annotations.Suspended(anns) {
		metrics.PollingResourcesFilteredTotal.Inc()
		return
	}
	p := annotations.ParsePolicy(anns)

	if p.EventSource == policy.SourceNone || p.EventSource == policy.SourceWebhook {
		metrics.PollingResourcesFilteredTotal.Inc()
		return
	}

	if p.PollingIntervalS > 0 {
		k := key(ref, "")
		j.mu.Lock()
		due := j.lastPollAt[k].Add(time.Duration(p.PollingIntervalS) * time.Second)
		if now.Before(due) {
			j.mu.Unlock()
			return
		}
		j.lastPollAt[k] = now
		j.mu.Unlock()
	}

	slots, err := tgt.Slots(ctx)
	if err != nil {
		metrics.PollingErrorsTotal.Inc()
		logger.Error(err, "reading slots", "ref", ref)
		return
	}

	for _, slot := range slots {
		if ref.Kind.IsContainerKind() {
			repo, _, ok, err := registry.SplitImage(slot.Current)
			if err != nil || !ok {
				continue
			}
			if !annotations.TracksImage(p, repo) {
				continue
			}
		}

		metrics.PollingImagesCheckedTotal.Inc()

		candidates, err := tgt.EnumerateCandidates(ctx, slot.Name)
		if err != nil {
			metrics.PollingErrorsTotal.Inc()
			logger.Error(err, "enumerating candidates", "ref", ref, "slot", slot.Name)
			continue
		}

		best, ok := policy.Pick(p, slot.Current, candidates)
		if !ok {
			continue
		}
		metrics.PollingNewTagsFoundTotal.Inc()

		j.out.Submit(Proposal{
			Ref:        ref,
			Slot:       slot.Name,
			Current:    slot.Current,
			Candidate:  best,
			Origin:     OriginPolling,
			ObservedAt: now,
		})
	}
}
