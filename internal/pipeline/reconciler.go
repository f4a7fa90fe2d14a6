package pipeline

import (
	"context"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/headwind-sh/headwind/internal/metrics"
	v1alpha1 "github.com/headwind-sh/headwind/pkg/apis/headwind.sh/v1alpha1"
)

// UpdateRequestReconciler is the controller-runtime-facing half of the
// pipeline: it exists as a safety net, not the hot path. Propose/Approve/
// Reject drive the state machine synchronously from the dispatcher and the
// approval API; this reconciler only observes reconcile latency and logs
// each UpdateRequest's phase. An UpdateRequest deleted out of band is
// logged and leaves the Inflight Set unchanged. The wiring is grounded on
// the teacher's ImageScanReconciler
// (internal/cmd/controller/reconciler/imagescan_controller.go).
type UpdateRequestReconciler struct {
	client.Client
	Pipeline *Pipeline
}

func (r *UpdateRequestReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&v1alpha1.UpdateRequest{}).
		Complete(r)
}

//+kubebuilder:rbac:groups=headwind.sh,resources=updaterequests,verbs=get;list;watch;create;update;patch;delete
//+kubebuilder:rbac:groups=headwind.sh,resources=updaterequests/status,verbs=get;update;patch

func (r *UpdateRequestReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	start := time.Now()
	kind := "unknown"
	defer func() {
		metrics.ReconcileDurationSeconds.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	logger := log.FromContext(ctx).WithName("updaterequest")

	urq := &v1alpha1.UpdateRequest{}
	err := r.Get(ctx, req.NamespacedName, urq)
	if apierrors.IsNotFound(err) {
		logger.V(4).Info("update request deleted", "name", req.Name)
		return ctrl.Result{}, nil
	}
	if err != nil {
		return ctrl.Result{}, client.IgnoreNotFound(err)
	}

	kind = urq.Spec.TargetRef.Kind
	logger.V(1).Info("reconciled update request", "phase", urq.Status.Phase)
	return ctrl.Result{}, nil
}
