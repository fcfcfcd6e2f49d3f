// Package telegram escalates blocked tickets to a Telegram chat.
package telegram

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/waggle-io/waggle/internal/connector"
	"github.com/waggle-io/waggle/internal/workflow"
)

// Config holds Telegram escalation configuration.
type Config struct {
	Token  string `json:"token"`   // bot token from @BotFather
	ChatID int64  `json:"chat_id"` // target chat for escalations
}

// Escalator sends escalations to a Telegram chat.
type Escalator struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

// New creates a Telegram escalator.
func New(cfg Config, logger *slog.Logger) (*Escalator, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram: token is required")
	}
	if cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram: chat_id is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: init bot: %w", err)
	}
	logger.Info("telegram escalator authorized", "bot", bot.Self.UserName)

	return &Escalator{bot: bot, chatID: cfg.ChatID, logger: logger}, nil
}

func (e *Escalator) Name() string { return "telegram" }

// Escalate sends the attention request to the configured chat. The Telegram
// client has no context support; cancellation is checked up front only.
func (e *Escalator) Escalate(ctx context.Context, esc workflow.Escalation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(e.chatID, connector.FormatText(esc))
	if _, err := e.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram: send escalation: %w", err)
	}
	return nil
}
