// Package metrics registers Headwind's Prometheus metric families
// (SPEC_FULL.md §6), following the teacher's promauto-based registration
// idiom (internal/metrics/metrics.go) without the per-object
// CollectorCollection machinery, since Headwind's metrics are
// event-driven counters incremented inline from the pipeline, dispatcher,
// health monitor and notifier rather than reconciled from object status.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const metricPrefix = "headwind"

var (
	UpdatesPending = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricPrefix,
		Name:      "updates_pending",
		Help:      "Number of UpdateRequests currently pending approval or apply.",
	})

	UpdatesApprovedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricPrefix,
		Name:      "updates_approved_total",
		Help:      "Total UpdateRequests approved.",
	}, []string{"kind"})

	UpdatesRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricPrefix,
		Name:      "updates_rejected_total",
		Help:      "Total UpdateRequests rejected.",
	}, []string{"kind"})

	UpdatesAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricPrefix,
		Name:      "updates_applied_total",
		Help:      "Total updates successfully applied.",
	}, []string{"kind"})

	UpdatesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricPrefix,
		Name:      "updates_failed_total",
		Help:      "Total UpdateRequests that ended in the Failed phase.",
	}, []string{"kind"})

	UpdatesSkippedIntervalTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricPrefix,
		Name:      "updates_skipped_interval_total",
		Help:      "Total proposals dropped because min_update_interval_s had not elapsed.",
	}, []string{"kind"})

	RollbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricPrefix,
		Name:      "rollbacks_total",
		Help:      "Total rollbacks executed, manual and automatic.",
	}, []string{"kind"})

	RollbacksManualTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricPrefix,
		Name:      "rollbacks_manual_total",
		Help:      "Total API-triggered manual rollbacks.",
	}, []string{"kind"})

	RollbacksAutomaticTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricPrefix,
		Name:      "rollbacks_automatic_total",
		Help:      "Total health-monitor-triggered automatic rollbacks.",
	}, []string{"kind"})

	RollbacksFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricPrefix,
		Name:      "rollbacks_failed_total",
		Help:      "Total rollback attempts that themselves failed to apply.",
	}, []string{"kind"})

	PollingCyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricPrefix,
		Name:      "polling_cycles_total",
		Help:      "Total polling ticks processed.",
	})

	PollingErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricPrefix,
		Name:      "polling_errors_total",
		Help:      "Total registry or chart-repository query errors observed during polling.",
	})

	PollingImagesCheckedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricPrefix,
		Name:      "polling_images_checked_total",
		Help:      "Total slots checked for new versions during polling.",
	})

	PollingNewTagsFoundTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricPrefix,
		Name:      "polling_new_tags_found_total",
		Help:      "Total admissible new tags or chart versions discovered during polling.",
	})

	PollingResourcesFilteredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricPrefix,
		Name:      "polling_resources_filtered_total",
		Help:      "Total workloads skipped by polling due to event_source filtering or the suspend annotation.",
	})

	NotificationsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricPrefix,
		Name:      "notifications_sent_total",
		Help:      "Total notifications delivered, by sink.",
	}, []string{"sink"})

	NotificationsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricPrefix,
		Name:      "notifications_failed_total",
		Help:      "Total notification deliveries that exhausted retries, by sink.",
	}, []string{"sink"})

	NotificationsSlackSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricPrefix,
		Name:      "notifications_slack_sent_total",
		Help:      "Total notifications delivered to the Slack sink.",
	})

	NotificationsTeamsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricPrefix,
		Name:      "notifications_teams_sent_total",
		Help:      "Total notifications delivered to the Teams sink.",
	})

	NotificationsWebhookSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricPrefix,
		Name:      "notifications_webhook_sent_total",
		Help:      "Total notifications delivered to the generic webhook sink.",
	})

	ReconcileDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricPrefix,
		Name:      "reconcile_duration_seconds",
		Help:      "Duration of a single reconcile of an UpdateRequest.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})
)

// allMetrics is every family above, collected for RegisterMetrics the
// same way the teacher's ObjCounter/ObjGauge/ObjHistogram constructors
// append to objMetrics.
var allMetrics = []prometheus.Collector{
	UpdatesPending,
	UpdatesApprovedTotal,
	UpdatesRejectedTotal,
	UpdatesAppliedTotal,
	UpdatesFailedTotal,
	UpdatesSkippedIntervalTotal,
	RollbacksTotal,
	RollbacksManualTotal,
	RollbacksAutomaticTotal,
	RollbacksFailedTotal,
	PollingCyclesTotal,
	PollingErrorsTotal,
	PollingImagesCheckedTotal,
	PollingNewTagsFoundTotal,
	PollingResourcesFilteredTotal,
	NotificationsSentTotal,
	NotificationsFailedTotal,
	NotificationsSlackSentTotal,
	NotificationsTeamsSentTotal,
	NotificationsWebhookSentTotal,
	ReconcileDurationSeconds,
}

// Registry is controller-runtime's default metrics registry, the same one
// the teacher's ObjCounter/ObjGauge helpers register into.
var Registry = metrics.Registry

// RegisterMetrics registers every Headwind metric family into Registry, the
// registry the controller-runtime metrics server actually serves at
// :9090/metrics. promauto only registers into prometheus.DefaultRegisterer,
// so without this call none of the families above are reachable, the same
// gap the teacher's own RegisterMetrics()/registerObjMetrics() closes for
// its collectors. Called once at startup, grounded on
// internal/cmd/controller/operator.go's call to metrics.RegisterMetrics().
func RegisterMetrics() {
	for _, m := range allMetrics {
		Registry.MustRegister(m)
	}
}
