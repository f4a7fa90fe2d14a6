// Package notify implements the Notifier (C7): translating pipeline state
// transitions into structured events delivered to external sinks (spec.md
// §4.7). Sink dispatch is grounded on the teacher's gitjob multi-provider
// webhook pattern (gitjob/pkg/webhook/webhook.go dispatches one incoming
// request across github/gitlab/bitbucket/gogs/azuredevops handlers);
// Headwind inverts the direction -- one outgoing event fans out across
// configured sinks -- but keeps the same "one small interface per
// provider" shape.
package notify

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/headwind-sh/headwind/internal/metrics"
	"github.com/headwind-sh/headwind/internal/target"
)

// EventType is one of the eight logical pipeline transitions spec.md §4.7
// names.
type EventType string

const (
	EventUpdateRequestCreated EventType = "update_request_created"
	EventUpdateApproved       EventType = "update_approved"
	EventUpdateRejected       EventType = "update_rejected"
	EventUpdateCompleted      EventType = "update_completed"
	EventUpdateFailed         EventType = "update_failed"
	EventRollbackTriggered    EventType = "rollback_triggered"
	EventRollbackCompleted    EventType = "rollback_completed"
	EventRollbackFailed       EventType = "rollback_failed"
)

// Event carries everything spec.md §4.7 requires: "workload identity,
// slot, from/to versions, actor (if any), and cause".
type Event struct {
	Type              EventType
	Ref               target.Ref
	Slot              string
	From              string
	To                string
	Actor             string
	Cause             string
	Policy            string
	RequiresApproval  bool
	UpdateRequestName string
	Timestamp         time.Time
}

// Sink is one notification destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

// Notifier fans an Event out to every configured Sink, with bounded
// exponential retry per sink (spec.md §4.7: "bounded retry (default 3,
// exponential)... delivery failure does not block pipeline progression").
type Notifier struct {
	Sinks      []Sink
	MaxRetries int
	Log        logr.Logger
}

func New(log logr.Logger, maxRetries int, sinks ...Sink) *Notifier {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Notifier{Sinks: sinks, MaxRetries: maxRetries, Log: log}
}

// Notify delivers ev to every sink asynchronously; a sink's failure is
// recorded in notifications_failed_total and logged, never returned to the
// caller, since pipeline progression must not block on notification
// delivery (spec.md §4.7, §7 "NotificationError... never blocks").
func (n *Notifier) Notify(ctx context.Context, ev Event) {
	for _, s := range n.Sinks {
		sink := s
		go n.deliver(ctx, sink, ev)
	}
}

func (n *Notifier) deliver(ctx context.Context, sink Sink, ev Event) {
	backoff := 500 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < n.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		if err := sink.Send(ctx, ev); err != nil {
			lastErr = err
			continue
		}
		metrics.NotificationsSentTotal.WithLabelValues(sink.Name()).Inc()
		observeSentBySink(sink.Name())
		return
	}
	metrics.NotificationsFailedTotal.WithLabelValues(sink.Name()).Inc()
	n.Log.Error(lastErr, "notification delivery exhausted retries", "sink", sink.Name(), "event", ev.Type)
}

func observeSentBySink(name string) {
	switch name {
	case "slack":
		metrics.NotificationsSlackSentTotal.Inc()
	case "teams":
		metrics.NotificationsTeamsSentTotal.Inc()
	case "webhook":
		metrics.NotificationsWebhookSentTotal.Inc()
	}
}
