// Package pipeline implements the Update Pipeline (C5): the state machine
// coordinating candidate -> proposal -> approval record -> apply ->
// health-watch -> finalize/rollback of spec.md §4.3, enforcing the
// min-interval and at-most-one-in-flight invariants. It is grounded on the
// teacher's reconciler package shape (internal/cmd/controller/reconciler)
// for the controller-runtime wiring, generalized from a single CRD type to
// the four workload kinds of spec.md §3 via internal/target's Target
// abstraction.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/headwind-sh/headwind/internal/annotations"
	"github.com/headwind-sh/headwind/internal/dispatch"
	"github.com/headwind-sh/headwind/internal/health"
	"github.com/headwind-sh/headwind/internal/history"
	"github.com/headwind-sh/headwind/internal/metrics"
	"github.com/headwind-sh/headwind/internal/notify"
	"github.com/headwind-sh/headwind/internal/policy"
	"github.com/headwind-sh/headwind/internal/target"
	v1alpha1 "github.com/headwind-sh/headwind/pkg/apis/headwind.sh/v1alpha1"
)

var _ dispatch.Handler = (*Pipeline)(nil)

// Pipeline is the Update Pipeline (C5).
type Pipeline struct {
	Client   client.Client
	Factory  *target.Factory
	Health   *health.Monitor
	Notifier *notify.Notifier
	Inflight *InflightSet
	Log      logr.Logger
}

func New(c client.Client, factory *target.Factory, h *health.Monitor, n *notify.Notifier, log logr.Logger) *Pipeline {
	return &Pipeline{
		Client:   c,
		Factory:  factory,
		Health:   h,
		Notifier: n,
		Inflight: NewInflightSet(),
		Log:      log,
	}
}

// Handle implements dispatch.Handler, so a Pipeline can be wired directly
// as the dispatcher's sink.
func (p *Pipeline) Handle(ctx context.Context, prop dispatch.Proposal) {
	if err := p.Propose(ctx, prop); err != nil {
		p.Log.Error(err, "processing proposal", "ref", prop.Ref, "slot", prop.Slot)
	}
}

// Propose implements the `∅ → Pending` transition of spec.md §4.3:
// admits prop against the workload's policy, checks the in-flight and
// min-interval invariants, and creates the UpdateRequest. When
// require_approval=false it immediately self-approves.
func (p *Pipeline) Propose(ctx context.Context, prop dispatch.Proposal) error {
	if prop.Candidate == prop.Current {
		return nil
	}

	tgt, err := p.Factory.For(ctx, prop.Ref)
	if err != nil {
		return fmt.Errorf("building target for %s/%s: %w", prop.Ref.Namespace, prop.Ref.Name, err)
	}

	anns, err := tgt.Annotations(ctx)
	if err != nil {
		return fmt.Errorf("reading annotations: %w", err)
	}
	if annotations.Suspended(anns) {
		return nil
	}
	pol := annotations.ParsePolicy(anns)

	verdict := policy.Admit(pol, prop.Current, prop.Candidate)
	if !verdict.Accepted {
		p.Log.V(1).Info("proposal rejected by policy", "ref", prop.Ref, "slot", prop.Slot, "reason", verdict.Reason)
		return nil
	}

	kind := string(prop.Ref.Kind)
	if p.Inflight.Has(kind, prop.Ref.Namespace, prop.Ref.Name, prop.Slot) {
		return nil
	}

	ledger, err := history.Decode(anns[annotations.KeyUpdateHistory])
	if err != nil {
		return fmt.Errorf("decoding update history: %w", err)
	}
	now := time.Now().UTC()
	if !ledger.IntervalElapsed(prop.Slot, now, time.Duration(pol.MinUpdateIntervalS)*time.Second) {
		metrics.UpdatesSkippedIntervalTotal.WithLabelValues(kind).Inc()
		return nil
	}

	urq := p.newUpdateRequest(prop, pol)
	if err := p.Client.Create(ctx, urq); err != nil {
		return fmt.Errorf("creating update request: %w", err)
	}
	p.Inflight.Insert(kind, prop.Ref.Namespace, prop.Ref.Name, prop.Slot, urq.Name, v1alpha1.PhasePending)
	metrics.UpdatesPending.Inc()

	p.Notifier.Notify(ctx, notify.Event{
		Type:              notify.EventUpdateRequestCreated,
		Ref:               prop.Ref,
		Slot:              prop.Slot,
		From:              prop.Current,
		To:                prop.Candidate,
		Policy:            string(pol.Kind),
		RequiresApproval:  pol.RequireApproval,
		UpdateRequestName: urq.Name,
		Timestamp:         now,
	})

	if !pol.RequireApproval {
		_, err := p.approve(ctx, urq, string(prop.Origin))
		return err
	}
	return nil
}

func (p *Pipeline) newUpdateRequest(prop dispatch.Proposal, pol policy.Policy) *v1alpha1.UpdateRequest {
	spec := v1alpha1.UpdateRequestSpec{
		TargetRef: v1alpha1.TargetRef{
			Kind:      string(prop.Ref.Kind),
			Name:      prop.Ref.Name,
			Namespace: prop.Ref.Namespace,
		},
		PolicyKind: string(pol.Kind),
	}
	if prop.Ref.Kind == target.KindHelmRelease {
		spec.CurrentVersion = prop.Current
		spec.NewVersion = prop.Candidate
	} else {
		spec.ContainerName = prop.Slot
		spec.CurrentImage = prop.Current
		spec.NewImage = prop.Candidate
	}

	name := fmt.Sprintf("%s-%s-%d", prop.Ref.Name, prop.Slot, time.Now().UTC().UnixNano())
	return &v1alpha1.UpdateRequest{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: prop.Ref.Namespace,
		},
		Spec: spec,
		Status: v1alpha1.UpdateRequestStatus{
			Phase:     v1alpha1.PhasePending,
			CreatedAt: metav1.NewTime(time.Now().UTC()),
		},
	}
}

// Approve implements `Pending -> Pending (approved)` for an external
// approval call (spec.md §4.3). Repeated approval of an already-terminal
// URQ returns the existing status without side effect (spec.md §4.3
// "Approval idempotence").
func (p *Pipeline) Approve(ctx context.Context, namespace, name, approver string) (*v1alpha1.UpdateRequest, error) {
	urq := &v1alpha1.UpdateRequest{}
	if err := p.Client.Get(ctx, client.ObjectKey{Namespace: namespace, Name: name}, urq); err != nil {
		return nil, err
	}
	if urq.Status.Phase.IsTerminal() {
		return urq, nil
	}
	return p.approve(ctx, urq, approver)
}

func (p *Pipeline) approve(ctx context.Context, urq *v1alpha1.UpdateRequest, approver string) (*v1alpha1.UpdateRequest, error) {
	now := metav1.NewTime(time.Now().UTC())
	urq.Status.ApprovedBy = &approver
	urq.Status.ApprovedAt = &now
	urq.Status.LastUpdated = now
	if err := p.Client.Status().Update(ctx, urq); err != nil {
		return nil, fmt.Errorf("recording approval: %w", err)
	}

	metrics.UpdatesApprovedTotal.WithLabelValues(urq.Spec.TargetRef.Kind).Inc()
	p.Notifier.Notify(ctx, notify.Event{
		Type:              notify.EventUpdateApproved,
		Ref:               refFromTarget(urq.Spec.TargetRef),
		Slot:              urq.Spec.Slot(),
		Actor:             approver,
		UpdateRequestName: urq.Name,
		Timestamp:         now.Time,
	})

	p.applyAndWatch(ctx, urq, approver)
	return urq, nil
}

// Reject implements `Pending -> Rejected` (spec.md §4.3). Rejection of a
// non-Pending URQ returns an error.
func (p *Pipeline) Reject(ctx context.Context, namespace, name, rejector, reason string) (*v1alpha1.UpdateRequest, error) {
	urq := &v1alpha1.UpdateRequest{}
	if err := p.Client.Get(ctx, client.ObjectKey{Namespace: namespace, Name: name}, urq); err != nil {
		return nil, err
	}
	if urq.Status.Phase != v1alpha1.PhasePending {
		return nil, fmt.Errorf("update request %s/%s is not Pending (phase %s)", namespace, name, urq.Status.Phase)
	}

	now := metav1.NewTime(time.Now().UTC())
	urq.Status.Phase = v1alpha1.PhaseRejected
	urq.Status.RejectedBy = &rejector
	urq.Status.RejectedAt = &now
	urq.Status.RejectionReason = reason
	urq.Status.LastUpdated = now
	if err := p.Client.Status().Update(ctx, urq); err != nil {
		return nil, fmt.Errorf("recording rejection: %w", err)
	}

	ref := refFromTarget(urq.Spec.TargetRef)
	p.Inflight.Remove(ref.Kind.String(), ref.Namespace, ref.Name, urq.Spec.Slot())
	metrics.UpdatesPending.Dec()
	metrics.UpdatesRejectedTotal.WithLabelValues(urq.Spec.TargetRef.Kind).Inc()
	p.Notifier.Notify(ctx, notify.Event{
		Type:              notify.EventUpdateRejected,
		Ref:               ref,
		Slot:              urq.Spec.Slot(),
		Actor:             rejector,
		Cause:             reason,
		UpdateRequestName: urq.Name,
		Timestamp:         now.Time,
	})
	return urq, nil
}

// applyAndWatch performs the apply-semantics mutation of spec.md §4.3 and,
// if the workload has auto_rollback=true, starts the health watch;
// otherwise it finalizes as Completed immediately.
func (p *Pipeline) applyAndWatch(ctx context.Context, urq *v1alpha1.UpdateRequest, approver string) {
	ref := refFromTarget(urq.Spec.TargetRef)
	slot := urq.Spec.Slot()
	kind := ref.Kind.String()

	tgt, err := p.Factory.For(ctx, ref)
	if err != nil {
		p.fail(ctx, urq, ref, slot, fmt.Sprintf("building target: %v", err))
		return
	}

	if err := tgt.Apply(ctx, slot, urq.Spec.New(), approver, false); err != nil {
		p.fail(ctx, urq, ref, slot, fmt.Sprintf("apply failed: %v", err))
		return
	}
	metrics.UpdatesAppliedTotal.WithLabelValues(kind).Inc()

	anns, err := tgt.Annotations(ctx)
	pol := policy.Policy{}
	if err == nil {
		pol = annotations.ParsePolicy(anns)
	}

	if !pol.AutoRollback {
		p.complete(ctx, urq, ref, slot)
		return
	}

	timeout := time.Duration(pol.RollbackTimeoutS) * time.Second
	deadline := time.Now().Add(timeout)
	p.Inflight.SetHealthDeadline(kind, ref.Namespace, ref.Name, slot, deadline)

	go p.watchHealth(context.Background(), tgt, urq, ref, slot, timeout, pol.HealthCheckRetries)
}

func (p *Pipeline) watchHealth(ctx context.Context, tgt target.Target, urq *v1alpha1.UpdateRequest, ref target.Ref, slot string, timeout time.Duration, retries uint32) {
	result := p.Health.Watch(ctx, tgt, ref, slot, timeout, retries)
	switch result.Outcome {
	case health.OutcomeHealthy:
		p.complete(ctx, urq, ref, slot)
	case health.OutcomeRolledBack:
		p.Notifier.Notify(ctx, notify.Event{
			Type:              notify.EventRollbackTriggered,
			Ref:               ref,
			Slot:              slot,
			Cause:             result.Reason,
			UpdateRequestName: urq.Name,
			Timestamp:         time.Now().UTC(),
		})
		p.Notifier.Notify(ctx, notify.Event{
			Type:              notify.EventRollbackCompleted,
			Ref:               ref,
			Slot:              slot,
			Cause:             result.Reason,
			UpdateRequestName: urq.Name,
			Timestamp:         time.Now().UTC(),
		})
		p.fail(ctx, urq, ref, slot, fmt.Sprintf("rolled back: %s", result.Reason))
	case health.OutcomeRollbackFailed:
		p.Notifier.Notify(ctx, notify.Event{
			Type:              notify.EventRollbackFailed,
			Ref:               ref,
			Slot:              slot,
			Cause:             result.Reason,
			UpdateRequestName: urq.Name,
			Timestamp:         time.Now().UTC(),
		})
		p.fail(ctx, urq, ref, slot, fmt.Sprintf("rollback failed after %s: %v", result.Reason, result.Err))
	}
}

func (p *Pipeline) complete(ctx context.Context, urq *v1alpha1.UpdateRequest, ref target.Ref, slot string) {
	now := metav1.NewTime(time.Now().UTC())
	urq.Status.Phase = v1alpha1.PhaseCompleted
	urq.Status.LastUpdated = now
	if err := p.Client.Status().Update(ctx, urq); err != nil {
		p.Log.Error(err, "recording completion", "urq", urq.Name)
	}

	p.Inflight.Remove(ref.Kind.String(), ref.Namespace, ref.Name, slot)
	metrics.UpdatesPending.Dec()
	p.Notifier.Notify(ctx, notify.Event{
		Type:              notify.EventUpdateCompleted,
		Ref:               ref,
		Slot:              slot,
		To:                urq.Spec.New(),
		UpdateRequestName: urq.Name,
		Timestamp:         now.Time,
	})
}

func (p *Pipeline) fail(ctx context.Context, urq *v1alpha1.UpdateRequest, ref target.Ref, slot, message string) {
	now := metav1.NewTime(time.Now().UTC())
	urq.Status.Phase = v1alpha1.PhaseFailed
	urq.Status.Message = message
	urq.Status.LastUpdated = now
	if err := p.Client.Status().Update(ctx, urq); err != nil {
		p.Log.Error(err, "recording failure", "urq", urq.Name)
	}

	kind := ref.Kind.String()
	p.Inflight.Remove(kind, ref.Namespace, ref.Name, slot)
	metrics.UpdatesPending.Dec()
	metrics.UpdatesFailedTotal.WithLabelValues(kind).Inc()
	p.Notifier.Notify(ctx, notify.Event{
		Type:              notify.EventUpdateFailed,
		Ref:               ref,
		Slot:              slot,
		Cause:             message,
		UpdateRequestName: urq.Name,
		Timestamp:         now.Time,
	})
}

// Rehydrate reconstructs the Inflight Set from every non-terminal
// UpdateRequest, the source of truth across restarts (spec.md §5).
func (p *Pipeline) Rehydrate(ctx context.Context) error {
	var list v1alpha1.UpdateRequestList
	if err := p.Client.List(ctx, &list); err != nil {
		return fmt.Errorf("listing update requests: %w", err)
	}

	pending := 0
	for i := range list.Items {
		urq := &list.Items[i]
		if urq.Status.Phase.IsTerminal() {
			continue
		}
		ref := refFromTarget(urq.Spec.TargetRef)
		p.Inflight.Insert(string(ref.Kind), ref.Namespace, ref.Name, urq.Spec.Slot(), urq.Name, urq.Status.Phase)
		pending++

		// Best-effort resume: an approved-but-unfinished URQ lost its
		// apply/health goroutine across the restart (spec.md §9 Open
		// Question (a)). Re-enter the apply/health path rather than
		// leaving it stuck Pending forever.
		if urq.Status.ApprovedBy != nil {
			go p.applyAndWatch(ctx, urq, *urq.Status.ApprovedBy)
		}
	}
	metrics.UpdatesPending.Set(float64(pending))
	return nil
}

func refFromTarget(t v1alpha1.TargetRef) target.Ref {
	return target.Ref{Kind: target.Kind(t.Kind), Namespace: t.Namespace, Name: t.Name}
}

// IgnoreNotFound is a thin re-export so API handlers built against
// Pipeline do not need to import apierrors directly.
func IgnoreNotFound(err error) error {
	if apierrors.IsNotFound(err) {
		return nil
	}
	return err
}
