// Package notifier provides notification services for the arbitrage detector.
package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tradewatch/cyclarb/pkg/types"
)

// SlackNotifier sends notifications to a Slack channel.
type SlackNotifier struct {
	apiToken   string
	channel    string
	apiURL     string
	httpClient *http.Client
	enabled    bool
}

// SlackConfig holds Slack configuration.
type SlackConfig struct {
	APIToken string
	Channel  string
	Enabled  bool
}

// slackMessage represents a Slack message payload.
type slackMessage struct {
	Channel string       `json:"channel"`
	Text    string       `json:"text,omitempty"`
	Blocks  []slackBlock `json:"blocks,omitempty"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewSlackNotifier creates a new Slack notifier.
func NewSlackNotifier(config *SlackConfig) *SlackNotifier {
	if config == nil || config.APIToken == "" || config.Channel == "" {
		return &SlackNotifier{enabled: false}
	}

	return &SlackNotifier{
		apiToken: config.APIToken,
		channel:  config.Channel,
		apiURL:   "https://slack.com/api/chat.postMessage",
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		enabled: config.Enabled,
	}
}

// IsEnabled returns whether the notifier is enabled.
func (s *SlackNotifier) IsEnabled() bool {
	return s.enabled
}

// NotifyOpportunity sends a notification about a cyclic arbitrage
// opportunity.
func (s *SlackNotifier) NotifyOpportunity(opp *types.Opportunity) error {
	if !s.enabled || opp == nil {
		return nil
	}

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{
				Type: "plain_text",
				Text: "🔔 Arbitrage Cycle Detected",
			},
		},
		{
			Type: "section",
			Text: &slackText{
				Type: "mrkdwn",
				Text: fmt.Sprintf("*Path:* %s", opp.PathString()),
			},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: fmt.Sprintf("*Profit:*\n%.4f%%", opp.ProfitPct*100)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Max Volume:*\n%.2f", opp.MaxVolume)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Confidence:*\n%d / 150", opp.Confidence)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Hops:*\n%d", len(opp.Path))},
			},
		},
		{
			Type: "context",
			Text: &slackText{
				Type: "mrkdwn",
				Text: fmt.Sprintf("Detected at %s", opp.DetectedAt.Format(time.RFC3339)),
			},
		},
	}

	return s.sendMessage(blocks, fmt.Sprintf("Arbitrage: %s (%.4f%%)",
		opp.PathString(), opp.ProfitPct*100))
}

// SendTestMessage sends a test message to verify the connection.
func (s *SlackNotifier) SendTestMessage() error {
	if !s.enabled {
		return fmt.Errorf("slack notifier is not enabled")
	}

	blocks := []slackBlock{
		{
			Type: "section",
			Text: &slackText{
				Type: "mrkdwn",
				Text: "🤖 *Cyclarb* connected and ready to send notifications!",
			},
		},
	}

	return s.sendMessage(blocks, "Cyclarb connected")
}

// sendMessage sends a message to Slack.
func (s *SlackNotifier) sendMessage(blocks []slackBlock, fallbackText string) error {
	msg := slackMessage{
		Channel: s.channel,
		Text:    fallbackText,
		Blocks:  blocks,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequest("POST", s.apiURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack API returned status %d", resp.StatusCode)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		Error string `json:"error,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&slackResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if !slackResp.OK {
		return fmt.Errorf("slack API error: %s", slackResp.Error)
	}

	return nil
}
