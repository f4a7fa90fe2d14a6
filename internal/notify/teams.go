package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// TeamsSink posts a Microsoft Teams connector card to a configured
// incoming-webhook URL.
type TeamsSink struct {
	WebhookURL string
	Client     *http.Client
}

func NewTeamsSink(webhookURL string, timeout time.Duration) *TeamsSink {
	return &TeamsSink{WebhookURL: webhookURL, Client: &http.Client{Timeout: timeout}}
}

func (s *TeamsSink) Name() string { return "teams" }

type teamsCard struct {
	Type       string `json:"@type"`
	Context    string `json:"@context"`
	Summary    string `json:"summary"`
	ThemeColor string `json:"themeColor"`
	Text       string `json:"text"`
}

func (s *TeamsSink) Send(ctx context.Context, ev Event) error {
	card := teamsCard{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		Summary:    string(ev.Type),
		ThemeColor: themeColorFor(ev.Type),
		Text:       formatMessage(ev),
	}
	body, err := json.Marshal(card)
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
		return fmt.Errorf("delivering teams notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("teams sink returned status %d", resp.StatusCode)
	}
	return nil
}

func themeColorFor(t EventType) string {
	switch t {
	case EventUpdateFailed, EventRollbackFailed:
		return "D70000"
	case EventRollbackTriggered, EventRollbackCompleted:
		return "E8A33D"
	case EventUpdateCompleted:
		return "1E8E3E"
	default:
		return "4285F4"
	}
}
