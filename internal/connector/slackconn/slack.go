// Package slackconn escalates blocked tickets into a Slack channel.
package slackconn

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"

	"github.com/waggle-io/waggle/internal/connector"
	"github.com/waggle-io/waggle/internal/workflow"
)

// Config holds Slack escalation configuration.
type Config struct {
	BotToken string `json:"bot_token"` // xoxb-... Bot User OAuth Token
	Channel  string `json:"channel"`   // channel ID to post escalations into
}

// Escalator posts escalations to a Slack channel.
type Escalator struct {
	api     *slack.Client
	channel string
	logger  *slog.Logger
}

// New creates a Slack escalator and verifies the token.
func New(cfg Config, logger *slog.Logger) (*Escalator, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("slack: bot_token is required")
	}
	if cfg.Channel == "" {
		return nil, fmt.Errorf("slack: channel is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	api := slack.New(cfg.BotToken)
	authResp, err := api.AuthTest()
	if err != nil {
		return nil, fmt.Errorf("slack: auth test: %w", err)
	}
	logger.Info("slack escalator authorized", "user", authResp.User, "team", authResp.Team)

	return &Escalator{api: api, channel: cfg.Channel, logger: logger}, nil
}

func (e *Escalator) Name() string { return "slack" }

// Escalate posts the attention request into the configured channel.
func (e *Escalator) Escalate(ctx context.Context, esc workflow.Escalation) error {
	text := connector.FormatText(esc)
	_, _, err := e.api.PostMessageContext(ctx, e.channel,
		slack.MsgOptionText(text, false),
	)
	if err != nil {
		return fmt.Errorf("slack: post escalation: %w", err)
	}
	return nil
}
