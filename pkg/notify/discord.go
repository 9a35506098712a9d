package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Discord posts messages to a Discord webhook as embeds.
type Discord struct {
	webhookURL string
	httpClient *http.Client
}

// NewDiscord creates a Discord sink. An empty URL disables it.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *Discord) Name() string  { return "discord" }
func (d *Discord) Enabled() bool { return d.webhookURL != "" }

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color,omitempty"`
	Fields      []discordField `json:"fields,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

func discordColor(sev Severity) int {
	switch sev {
	case SeverityGood:
		return 0x36a64f
	case SeverityWarn:
		return 0xf39c12
	case SeverityCritical:
		return 0xe74c3c
	default:
		return 0x3498db
	}
}

// Post implements Sink.
func (d *Discord) Post(msg Message) error {
	embed := discordEmbed{
		Title:       msg.Title,
		Description: msg.Text,
		Color:       discordColor(msg.Severity),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	for _, f := range msg.Fields {
		embed.Fields = append(embed.Fields, discordField{Name: f.Title, Value: f.Value, Inline: f.Short})
	}

	data, err := json.Marshal(discordPayload{Embeds: []discordEmbed{embed}})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	resp, err := d.httpClient.Post(d.webhookURL, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	// Discord returns 204 on success.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord returned status %d", resp.StatusCode)
	}
	return nil
}
