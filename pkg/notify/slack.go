package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Slack posts messages to a Slack incoming webhook.
type Slack struct {
	webhookURL string
	httpClient *http.Client
}

// NewSlack creates a Slack sink. An empty URL disables it.
func NewSlack(webhookURL string) *Slack {
	return &Slack{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *Slack) Name() string  { return "slack" }
func (s *Slack) Enabled() bool { return s.webhookURL != "" }

type slackPayload struct {
	Text        string            `json:"text,omitempty"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Color     string       `json:"color,omitempty"`
	Title     string       `json:"title,omitempty"`
	Text      string       `json:"text,omitempty"`
	Fields    []slackField `json:"fields,omitempty"`
	Timestamp int64        `json:"ts,omitempty"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func slackColor(sev Severity) string {
	switch sev {
	case SeverityGood:
		return "#36a64f"
	case SeverityWarn:
		return "#f39c12"
	case SeverityCritical:
		return "#e74c3c"
	default:
		return "#3498db"
	}
}

// Post implements Sink.
func (s *Slack) Post(msg Message) error {
	att := slackAttachment{
		Color:     slackColor(msg.Severity),
		Title:     msg.Title,
		Text:      msg.Text,
		Timestamp: time.Now().Unix(),
	}
	for _, f := range msg.Fields {
		att.Fields = append(att.Fields, slackField{Title: f.Title, Value: f.Value, Short: f.Short})
	}

	data, err := json.Marshal(slackPayload{Attachments: []slackAttachment{att}})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	resp, err := s.httpClient.Post(s.webhookURL, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}
	return nil
}
