package controller

import (
	"context"
	"fmt"
	"net/http"

	"github.com/reugn/go-quartz/quartz"

	"github.com/headwind-sh/headwind/internal/api"
	"github.com/headwind-sh/headwind/internal/chartrepo"
	command "github.com/headwind-sh/headwind/internal/cmd"
	"github.com/headwind-sh/headwind/internal/config"
	"github.com/headwind-sh/headwind/internal/dispatch"
	"github.com/headwind-sh/headwind/internal/health"
	"github.com/headwind-sh/headwind/internal/metrics"
	"github.com/headwind-sh/headwind/internal/notify"
	"github.com/headwind-sh/headwind/internal/orchestrator"
	"github.com/headwind-sh/headwind/internal/pipeline"
	"github.com/headwind-sh/headwind/internal/registry"
	"github.com/headwind-sh/headwind/internal/target"
	"github.com/headwind-sh/headwind/internal/webhook"
	v1alpha1 "github.com/headwind-sh/headwind/pkg/apis/headwind.sh/v1alpha1"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/client-go/rest"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/manager"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"
)

var scheme = runtime.NewScheme()

func init() {
	utilruntime.Must(corev1.AddToScheme(scheme))
	utilruntime.Must(appsv1.AddToScheme(scheme))
	utilruntime.Must(v1alpha1.AddToScheme(scheme))
	//+kubebuilder:scaffold:scheme
}

// leaderElectionRunnable wraps a function as a manager.Runnable gated on
// leader election, for the exactly-once-per-cluster components (the
// dispatcher's drain loop, the polling scheduler, and Inflight Set
// rehydration) that must not run concurrently from two replicas.
type leaderElectionRunnable struct {
	fn func(context.Context) error
}

func (r leaderElectionRunnable) Start(ctx context.Context) error { return r.fn(ctx) }
func (r leaderElectionRunnable) NeedLeaderElection() bool        { return true }

func start(
	ctx context.Context,
	systemNamespace string,
	restConfig *rest.Config,
	leaderElection bool,
	leaderOpts command.LeaderElectionOptions,
	bindAddresses BindAddresses,
	disableMetrics bool,
) error {
	setupLog.Info("starting headwind-controller", "disableMetrics", disableMetrics)

	var metricServerOptions metricsserver.Options
	if disableMetrics {
		metricServerOptions = metricsserver.Options{BindAddress: "0"}
	} else {
		metricServerOptions = metricsserver.Options{
			BindAddress:   bindAddresses.Metrics,
			ExtraHandlers: map[string]http.Handler{"/health": healthz.CheckHandler{Checker: healthz.Ping}},
		}
	}

	mgr, err := ctrl.NewManager(restConfig, ctrl.Options{
		Scheme:                 scheme,
		Metrics:                metricServerOptions,
		HealthProbeBindAddress: bindAddresses.HealthProbe,

		LeaderElection:          leaderElection,
		LeaderElectionID:        "headwind-controller-leader-election",
		LeaderElectionNamespace: systemNamespace,
		LeaseDuration:           leaderOpts.LeaseDuration,
		RenewDeadline:           leaderOpts.RenewDeadline,
		RetryPeriod:             leaderOpts.RetryPeriod,
	})
	if err != nil {
		setupLog.Error(err, "unable to start manager")
		return err
	}

	if !disableMetrics {
		metrics.RegisterMetrics()
	}

	cfg := config.Load()

	orch := orchestrator.New(mgr.GetClient())
	reg := registry.New()
	charts := chartrepo.New()
	factory := target.NewFactory(orch, reg, charts)
	monitor := health.New(mgr.GetClient(), orch)
	notifier := buildNotifier(cfg)
	pl := pipeline.New(mgr.GetClient(), factory, monitor, notifier, ctrl.Log.WithName("pipeline"))

	if err := (&pipeline.UpdateRequestReconciler{
		Client:   mgr.GetClient(),
		Pipeline: pl,
	}).SetupWithManager(mgr); err != nil {
		setupLog.Error(err, "unable to create controller", "controller", "UpdateRequest")
		return err
	}
	//+kubebuilder:scaffold:builder

	d := dispatch.New(pl)
	webhookSource := dispatch.NewWebhookSource(factory, d, ctrl.Log.WithName("webhook-source"))
	pollJob := dispatch.NewPollJob(factory, d)

	sched, err := quartz.NewStdScheduler()
	if err != nil {
		return fmt.Errorf("creating job scheduler: %w", err)
	}

	if err := mgr.Add(leaderElectionRunnable{fn: func(ctx context.Context) error {
		d.Run(ctx)
		return nil
	}}); err != nil {
		return err
	}

	if err := mgr.Add(leaderElectionRunnable{fn: func(ctx context.Context) error {
		return pl.Rehydrate(ctx)
	}}); err != nil {
		return err
	}

	if cfg.PollingEnabled {
		if err := mgr.Add(leaderElectionRunnable{fn: func(ctx context.Context) error {
			trigger := quartz.NewSimpleTrigger(cfg.PollingInterval)
			if err := sched.ScheduleJob(quartz.NewJobDetail(pollJob, dispatch.PollKey()), trigger); err != nil {
				return fmt.Errorf("scheduling polling job: %w", err)
			}
			sched.Start(ctx)
			<-ctx.Done()
			sched.Stop()
			return nil
		}}); err != nil {
			return err
		}
	}

	var webhookSecret []byte
	if cfg.WebhookSecret != "" {
		webhookSecret = []byte(cfg.WebhookSecret)
	}
	whSrv := webhook.New(orch, webhookSource, webhookSecret, ctrl.Log.WithName("webhook-intake"))
	if err := mgr.Add(manager.RunnableFunc(func(ctx context.Context) error {
		return webhook.Run(ctx, bindAddresses.Webhook, whSrv)
	})); err != nil {
		return err
	}

	apiSrv := api.New(mgr.GetClient(), orch, factory, pl, monitor, ctrl.Log.WithName("api"))
	if err := mgr.Add(manager.RunnableFunc(func(ctx context.Context) error {
		return api.Run(ctx, bindAddresses.API, apiSrv)
	})); err != nil {
		return err
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up health check")
		return err
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up ready check")
		return err
	}

	setupLog.Info("starting manager")
	if err := mgr.Start(ctx); err != nil {
		setupLog.Error(err, "problem running manager")
		return err
	}
	return nil
}

// buildNotifier wires every enabled sink (Slack, Teams, generic webhook) into a single
// Notifier, grounded on the teacher's gitjob Webhook constructor pattern
// of composing one struct's optional providers from config.
func buildNotifier(cfg config.Config) *notify.Notifier {
	var sinks []notify.Sink
	if cfg.SlackEnabled && cfg.SlackWebhookURL != "" {
		sinks = append(sinks, notify.NewSlackSink(cfg.SlackWebhookURL, cfg.SlackChannel, cfg.WebhookTimeout))
	}
	if cfg.TeamsEnabled && cfg.TeamsWebhookURL != "" {
		sinks = append(sinks, notify.NewTeamsSink(cfg.TeamsWebhookURL, cfg.WebhookTimeout))
	}
	if cfg.WebhookEnabled && cfg.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.WebhookURL, []byte(cfg.WebhookSecret), cfg.WebhookTimeout))
	}
	return notify.New(ctrl.Log.WithName("notify"), cfg.WebhookMaxRetries, sinks...)
}
