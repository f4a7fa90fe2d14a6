// Package health implements the Health Monitor & Rollback (C6): post-apply
// observation of a workload's pods and progress condition, triggering an
// automatic rollback to the penultimate history entry when any of spec.md
// §4.5's trigger conditions fire. Pod listing by label selector is
// grounded on the teacher's status-reporting code (e.g.
// internal/cmd/controller/grutil/status.go, gitjob/pkg/controller/job/jobs.go),
// which lists a workload's pods with a label-selector client.List and
// inspects Status.ContainerStatuses.
package health

import (
	"context"
	"fmt"
	"sort"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/labels"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/headwind-sh/headwind/internal/annotations"
	"github.com/headwind-sh/headwind/internal/history"
	"github.com/headwind-sh/headwind/internal/metrics"
	"github.com/headwind-sh/headwind/internal/orchestrator"
	"github.com/headwind-sh/headwind/internal/target"
)

// PollInterval is how often the monitor samples pod/condition state within
// the health window.
const PollInterval = 5 * time.Second

// Outcome is how a health watch concluded.
type Outcome int

const (
	// OutcomeHealthy means the window elapsed with no trigger condition
	// observed.
	OutcomeHealthy Outcome = iota
	// OutcomeRolledBack means a trigger fired and the revert-to-prior-entry
	// apply succeeded.
	OutcomeRolledBack
	// OutcomeRollbackFailed means a trigger fired but the revert apply
	// itself returned an error (spec.md §7 RollbackFailure).
	OutcomeRollbackFailed
	// OutcomeCanceled means ctx was canceled before the window elapsed; no
	// rollback was attempted and the update is neither complete nor failed.
	OutcomeCanceled
)

// Result is the outcome of a single Watch call.
type Result struct {
	Outcome Outcome
	Reason  string
	Err     error
}

// Monitor samples a workload's pods for rollback trigger conditions during
// its post-apply health window (spec.md §4.5).
type Monitor struct {
	Client client.Client
	Orch   *orchestrator.Client
}

func New(c client.Client, orch *orchestrator.Client) *Monitor {
	return &Monitor{Client: c, Orch: orch}
}

// Watch blocks, sampling ref's pods every PollInterval, until timeout
// elapses or a trigger condition fires, then (on trigger) reverts tgt's
// slot to the penultimate history entry. ctx cancellation ends the watch
// early with OutcomeCanceled and no rollback (spec.md §5: "Controller
// shutdown cancels all in-flight health monitors; URQs whose monitors were
// canceled remain Pending until the next reconcile resumes them").
func (m *Monitor) Watch(ctx context.Context, tgt target.Target, ref target.Ref, slot string, timeout time.Duration, healthCheckRetries uint32) Result {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	readyFailures := map[string]uint32{}

	for {
		if reason, triggered := m.observeOnce(ctx, ref, readyFailures, healthCheckRetries); triggered {
			result := m.rollback(ctx, tgt, ref, slot, reason)
			if result.Outcome == OutcomeRolledBack {
				metrics.RollbacksAutomaticTotal.WithLabelValues(string(ref.Kind)).Inc()
			}
			return result
		}
		if time.Now().After(deadline) {
			return Result{Outcome: OutcomeHealthy}
		}
		select {
		case <-ctx.Done():
			return Result{Outcome: OutcomeCanceled}
		case <-ticker.C:
		}
	}
}

func (m *Monitor) observeOnce(ctx context.Context, ref target.Ref, readyFailures map[string]uint32, healthCheckRetries uint32) (string, bool) {
	obj, err := m.Orch.Get(ctx, target.GVKFor(ref.Kind), ref.Namespace, ref.Name)
	if err != nil {
		return "", false
	}
	if orchestrator.ProgressDeadlineExceeded(obj) {
		return "ProgressDeadlineExceeded", true
	}

	selector, err := orchestrator.PodSelector(obj)
	if err != nil {
		return "", false
	}

	var pods corev1.PodList
	if err := m.Client.List(ctx, &pods, client.InNamespace(ref.Namespace), client.MatchingLabels(selector)); err != nil {
		return "", false
	}
	sort.Slice(pods.Items, func(i, j int) bool {
		return pods.Items[i].CreationTimestamp.Before(&pods.Items[j].CreationTimestamp)
	})

	for _, pod := range pods.Items {
		for _, cs := range pod.Status.ContainerStatuses {
			if cs.State.Waiting != nil {
				switch cs.State.Waiting.Reason {
				case "CrashLoopBackOff":
					return "CrashLoopBackOff", true
				case "ImagePullBackOff":
					return "ImagePullBackOff", true
				}
			}
			if cs.RestartCount > 5 {
				return fmt.Sprintf("restart count %d exceeds 5 on pod %s", cs.RestartCount, pod.Name), true
			}
			if !cs.Ready {
				readyFailures[pod.Name]++
				if readyFailures[pod.Name] > healthCheckRetries {
					return fmt.Sprintf("readiness probe failures exceed %d on pod %s", healthCheckRetries, pod.Name), true
				}
			}
		}
	}
	return "", false
}

// rollback reverts tgt's slot to the penultimate history entry (spec.md
// §9: "previous = penultimate history entry").
func (m *Monitor) rollback(ctx context.Context, tgt target.Target, ref target.Ref, slot, reason string) Result {
	anns, err := tgt.Annotations(ctx)
	if err != nil {
		metrics.RollbacksFailedTotal.WithLabelValues(string(ref.Kind)).Inc()
		return Result{Outcome: OutcomeRollbackFailed, Reason: reason, Err: err}
	}
	ledger, err := history.Decode(anns[annotations.KeyUpdateHistory])
	if err != nil {
		metrics.RollbacksFailedTotal.WithLabelValues(string(ref.Kind)).Inc()
		return Result{Outcome: OutcomeRollbackFailed, Reason: reason, Err: err}
	}
	prior, ok := ledger.Penultimate(slot)
	if !ok {
		err := fmt.Errorf("no penultimate history entry for slot %q, cannot roll back", slot)
		metrics.RollbacksFailedTotal.WithLabelValues(string(ref.Kind)).Inc()
		return Result{Outcome: OutcomeRollbackFailed, Reason: reason, Err: err}
	}

	if err := tgt.Apply(ctx, slot, prior.ImageOrVersion, "", true); err != nil {
		metrics.RollbacksFailedTotal.WithLabelValues(string(ref.Kind)).Inc()
		return Result{Outcome: OutcomeRollbackFailed, Reason: reason, Err: err}
	}

	metrics.RollbacksTotal.WithLabelValues(string(ref.Kind)).Inc()
	return Result{Outcome: OutcomeRolledBack, Reason: reason}
}

// Rollback performs an immediate manual rollback (API-triggered),
// bypassing the health window (spec.md §4.5: "Manual rollback... bypasses
// the health window and executes the same revert-to-prior-entry procedure
// immediately").
func (m *Monitor) Rollback(ctx context.Context, tgt target.Target, ref target.Ref, slot string) Result {
	result := m.rollback(ctx, tgt, ref, slot, "manual")
	if result.Outcome == OutcomeRolledBack {
		metrics.RollbacksManualTotal.WithLabelValues(string(ref.Kind)).Inc()
	}
	return result
}
