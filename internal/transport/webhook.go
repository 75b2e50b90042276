package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/miradorstack/mirador-oracle/internal/utils"
)

const (
	titleLimit      = 256
	fieldValueLimit = 1024
	suppressNotify  = 1 << 12
)

// WebhookNotifier posts messages to a chat webhook, one request per message.
type WebhookNotifier struct {
	endpoint   string
	username   string
	embedLimit int
	httpClient *http.Client
}

// NewWebhookNotifier constructs a notifier targeting endpoint.
func NewWebhookNotifier(endpoint string, timeout time.Duration, embedLimit int) *WebhookNotifier {
	if embedLimit <= 0 {
		embedLimit = 4096
	}
	return &WebhookNotifier{
		endpoint:   strings.TrimSpace(endpoint),
		username:   "Oracle",
		embedLimit: embedLimit,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type webhookPayload struct {
	Content  string         `json:"content,omitempty"`
	Username string         `json:"username,omitempty"`
	Embeds   []webhookEmbed `json:"embeds,omitempty"`
	Flags    int            `json:"flags,omitempty"`
}

type webhookEmbed struct {
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Fields      []webhookField `json:"fields,omitempty"`
	Footer      *webhookFooter `json:"footer,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
}

type webhookField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type webhookFooter struct {
	Text string `json:"text"`
}

// Notify posts every message in order, stopping at the first failure.
func (n *WebhookNotifier) Notify(ctx context.Context, thread string, msgs ...OutgoingMessage) error {
	endpoint, username := n.target(thread)
	for i, m := range msgs {
		payload := n.render(m)
		payload.Username = username
		if err := n.postJSON(ctx, endpoint, payload); err != nil {
			return fmt.Errorf("deliver message %d/%d: %w", i+1, len(msgs), err)
		}
	}
	return nil
}

// target routes numeric thread identifiers natively and labels the rest.
func (n *WebhookNotifier) target(thread string) (string, string) {
	if thread == "" {
		return n.endpoint, n.username
	}
	if isNumeric(thread) {
		u, err := url.Parse(n.endpoint)
		if err == nil {
			q := u.Query()
			q.Set("thread_id", thread)
			u.RawQuery = q.Encode()
			return u.String(), n.username
		}
	}
	return n.endpoint, n.username + " | " + thread
}

func (n *WebhookNotifier) render(m OutgoingMessage) webhookPayload {
	p := webhookPayload{Content: m.Text}
	if m.Silent {
		p.Flags = suppressNotify
	}
	if s := m.Summary; s != nil {
		embed := webhookEmbed{
			Title:       utils.Truncate(s.Title, titleLimit),
			Description: utils.Truncate(s.Description, n.embedLimit),
			Color:       s.Tone.Color(),
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		}
		for _, f := range s.Fields {
			embed.Fields = append(embed.Fields, webhookField{
				Name:   utils.Truncate(f.Name, titleLimit),
				Value:  utils.Truncate(utils.FirstNonEmpty(f.Value, "-"), fieldValueLimit),
				Inline: f.Inline,
			})
		}
		if s.Footer != "" {
			embed.Footer = &webhookFooter{Text: s.Footer}
		}
		p.Embeds = []webhookEmbed{embed}
	}
	return p
}

func (n *WebhookNotifier) postJSON(ctx context.Context, endpoint string, payload any) error {
	if endpoint == "" {
		return fmt.Errorf("empty endpoint")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
