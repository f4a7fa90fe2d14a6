package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookPayload is the generic webhook notification body, per spec.md §6.
type WebhookPayload struct {
	Event            string             `json:"event"`
	Timestamp        time.Time          `json:"timestamp"`
	Deployment       WebhookDeployment  `json:"deployment"`
	Policy           string             `json:"policy"`
	RequiresApproval bool               `json:"requiresApproval"`
	UpdateRequestName string           `json:"updateRequestName,omitempty"`
}

type WebhookDeployment struct {
	Name         string `json:"name"`
	Namespace    string `json:"namespace"`
	CurrentImage string `json:"currentImage"`
	NewImage     string `json:"newImage"`
	Container    string `json:"container"`
}

// WebhookSink posts the generic JSON payload of spec.md §6 to a configured
// URL, HMAC-signing the body when a secret is configured.
type WebhookSink struct {
	URL     string
	Secret  []byte
	Client  *http.Client
	Timeout time.Duration
}

func NewWebhookSink(url string, secret []byte, timeout time.Duration) *WebhookSink {
	return &WebhookSink{URL: url, Secret: secret, Client: &http.Client{Timeout: timeout}, Timeout: timeout}
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Send(ctx context.Context, ev Event) error {
	payload := WebhookPayload{
		Event:     string(ev.Type),
		Timestamp: ev.Timestamp,
		Deployment: WebhookDeployment{
			Name:         ev.Ref.Name,
			Namespace:    ev.Ref.Namespace,
			CurrentImage: ev.From,
			NewImage:     ev.To,
			Container:    ev.Slot,
		},
		Policy:            ev.Policy,
		RequiresApproval:  ev.RequiresApproval,
		UpdateRequestName: ev.UpdateRequestName,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if len(s.Secret) > 0 {
		req.Header.Set("X-Headwind-Signature", Sign(s.Secret, body))
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("delivering webhook notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook sink returned status %d", resp.StatusCode)
	}
	return nil
}
