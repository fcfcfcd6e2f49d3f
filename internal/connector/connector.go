// Package connector routes workflow escalations to external channels
// (Slack, Telegram, webhooks). Escalations are fire-and-forget: the core
// issues the attention request and never waits for a response.
package connector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/waggle-io/waggle/internal/workflow"
)

// Escalator delivers an escalation to one external channel.
type Escalator interface {
	// Name returns the channel type (e.g., "slack", "telegram").
	Name() string
	// Escalate delivers the attention request.
	Escalate(ctx context.Context, e workflow.Escalation) error
}

// Multi fans an escalation out to every configured channel. Per-channel
// failures are logged and do not fail the block operation, so Multi always
// reports success to the orchestrator.
type Multi struct {
	channels []Escalator
	logger   *slog.Logger
}

// NewMulti creates a fan-out escalator.
func NewMulti(logger *slog.Logger, channels ...Escalator) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multi{channels: channels, logger: logger}
}

// Escalate implements workflow.Escalator.
func (m *Multi) Escalate(ctx context.Context, e workflow.Escalation) error {
	for _, c := range m.channels {
		if err := c.Escalate(ctx, e); err != nil {
			m.logger.Error("escalation channel failed",
				"channel", c.Name(),
				"ticket", e.TicketID,
				"error", err,
			)
			continue
		}
		m.logger.Info("escalation delivered", "channel", c.Name(), "ticket", e.TicketID)
	}
	return nil
}

// FormatText renders an escalation as a plain-text attention request shared
// by the text-based channels.
func FormatText(e workflow.Escalation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticket blocked: %s\n", e.Title)
	fmt.Fprintf(&b, "Ticket ID: %s\n", e.TicketID)
	fmt.Fprintf(&b, "Reason: %s\n", e.Reason)
	fmt.Fprintf(&b, "Reported by: %s\n", e.ReportedBy)
	if e.AssignedTo != "" {
		fmt.Fprintf(&b, "Assigned to: %s\n", e.AssignedTo)
	}
	fmt.Fprintf(&b, "Attention requested: %s", e.Kind)
	return b.String()
}
