package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/TheRookie24/ThermoCity/internal/domain"
	"github.com/TheRookie24/ThermoCity/internal/ports"
)

type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Text        string            `json:"text,omitempty"`
	Username    string            `json:"username,omitempty"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Fallback  string       `json:"fallback,omitempty"`
	Color     string       `json:"color,omitempty"`
	Title     string       `json:"title,omitempty"`
	Fields    []slackField `json:"fields,omitempty"`
	Timestamp int64        `json:"ts,omitempty"`
}

type slackField struct {
	Title string `json:"title,omitempty"`
	Value string `json:"value,omitempty"`
	Short bool   `json:"short,omitempty"`
}

// SlackNotifier posts opened events to an incoming webhook.
type SlackNotifier struct {
	webhookURL string
	channel    string
	client     *http.Client
}

func NewSlackNotifier(cfg SlackConfig) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		client:     &http.Client{Timeout: cfg.Timeout},
	}
}

func (s *SlackNotifier) Name() string { return "slack" }

var severityColors = map[domain.Severity]string{
	domain.SeverityLow:      "#439FE0",
	domain.SeverityMedium:   "#FFA500",
	domain.SeverityHigh:     "#FF4500",
	domain.SeverityCritical: "#FF0000",
}

func (s *SlackNotifier) NotifyOpened(ctx context.Context, ev *domain.AlertEvent) error {
	text := fmt.Sprintf("[%s] %s breached on segment %s (%s)", ev.Severity, ev.Metric, ev.SegmentID, ev.CityID)
	msg := slackMessage{
		Channel:  s.channel,
		Text:     text,
		Username: "ThermoCity",
		Attachments: []slackAttachment{{
			Fallback: text,
			Color:    severityColors[ev.Severity],
			Title:    "Alert " + ev.ID,
			Fields: []slackField{
				{Title: "Metric", Value: ev.Metric, Short: true},
				{Title: "Value", Value: fmt.Sprintf("%.3f", ev.Value), Short: true},
				{Title: "Rule", Value: ev.RuleID, Short: true},
				{Title: "Segment", Value: ev.SegmentID, Short: true},
			},
			Timestamp: ev.OpenedAt.Unix(),
		}},
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode slack message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned %s", resp.Status)
	}
	return nil
}

var _ ports.Notifier = (*SlackNotifier)(nil)
