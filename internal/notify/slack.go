package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SlackSink posts a simple incoming-webhook message to Slack.
type SlackSink struct {
	WebhookURL string
	Channel    string
	Client     *http.Client
}

func NewSlackSink(webhookURL, channel string, timeout time.Duration) *SlackSink {
	return &SlackSink{WebhookURL: webhookURL, Channel: channel, Client: &http.Client{Timeout: timeout}}
}

func (s *SlackSink) Name() string { return "slack" }

type slackMessage struct {
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
}

func (s *SlackSink) Send(ctx context.Context, ev Event) error {
	msg := slackMessage{
		Channel: s.Channel,
		Text:    formatMessage(ev),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("delivering slack notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack sink returned status %d", resp.StatusCode)
	}
	return nil
}

func formatMessage(ev Event) string {
	switch ev.Type {
	case EventUpdateRequestCreated:
		return fmt.Sprintf("Update proposed for %s/%s[%s]: %s -> %s", ev.Ref.Namespace, ev.Ref.Name, ev.Slot, ev.From, ev.To)
	case EventUpdateApproved:
		return fmt.Sprintf("Update approved for %s/%s[%s] by %s", ev.Ref.Namespace, ev.Ref.Name, ev.Slot, ev.Actor)
	case EventUpdateRejected:
		return fmt.Sprintf("Update rejected for %s/%s[%s] by %s: %s", ev.Ref.Namespace, ev.Ref.Name, ev.Slot, ev.Actor, ev.Cause)
	case EventUpdateCompleted:
		return fmt.Sprintf("Update completed for %s/%s[%s]: now %s", ev.Ref.Namespace, ev.Ref.Name, ev.Slot, ev.To)
	case EventUpdateFailed:
		return fmt.Sprintf("Update failed for %s/%s[%s]: %s", ev.Ref.Namespace, ev.Ref.Name, ev.Slot, ev.Cause)
	case EventRollbackTriggered:
		return fmt.Sprintf("Rollback triggered for %s/%s[%s]: %s", ev.Ref.Namespace, ev.Ref.Name, ev.Slot, ev.Cause)
	case EventRollbackCompleted:
		return fmt.Sprintf("Rollback completed for %s/%s[%s]: reverted to %s", ev.Ref.Namespace, ev.Ref.Name, ev.Slot, ev.To)
	case EventRollbackFailed:
		return fmt.Sprintf("Rollback failed for %s/%s[%s]: %s", ev.Ref.Namespace, ev.Ref.Name, ev.Slot, ev.Cause)
	default:
		return fmt.Sprintf("%s: %s/%s[%s]", ev.Type, ev.Ref.Namespace, ev.Ref.Name, ev.Slot)
	}
}
