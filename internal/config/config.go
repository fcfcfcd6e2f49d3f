// Package config loads waggled configuration from a JSON file or from the
// environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/waggle-io/waggle/pkg/protocol"
)

// Config is the top-level waggled configuration.
type Config struct {
	Swarm         SwarmConfig          `json:"swarm"`
	Scheduler     SchedulerConfig      `json:"scheduler"`
	Connectors    ConnectorConfig      `json:"connectors"`
	API           APIConfig            `json:"api"`
	Subscriptions []SubscriptionConfig `json:"subscriptions,omitempty"`
}

// SwarmConfig holds deployment-level settings.
type SwarmConfig struct {
	ID      string `json:"id"`
	DataDir string `json:"data_dir"`
}

// SchedulerConfig holds deadline sweep settings.
type SchedulerConfig struct {
	SweepSchedule string `json:"sweep_schedule,omitempty"` // cron expression, default @every 10m
	HorizonDays   int    `json:"horizon_days,omitempty"`   // default 3
}

// ConnectorConfig holds settings for escalation channels.
type ConnectorConfig struct {
	Slack    *SlackConfig    `json:"slack,omitempty"`
	Telegram *TelegramConfig `json:"telegram,omitempty"`
	Webhook  *WebhookConfig  `json:"webhook,omitempty"`
}

// SlackConfig holds Slack escalation settings.
type SlackConfig struct {
	BotToken string `json:"bot_token"`
	Channel  string `json:"channel"`
}

// TelegramConfig holds Telegram escalation settings.
type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
}

// WebhookConfig holds webhook escalation settings.
type WebhookConfig struct {
	URL    string `json:"url"`
	Secret string `json:"secret,omitempty"`
}

// APIConfig holds REST API server settings.
type APIConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Key  string `json:"api_key"`
}

// SubscriptionConfig pre-registers a notification target at startup.
type SubscriptionConfig struct {
	Target string   `json:"target"`
	Kind   string   `json:"kind"` // "agent" or "human"
	Events []string `json:"events"`
}

// Load reads configuration from a JSON file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv builds a minimal configuration from WAGGLE_* environment
// variables, for running without a config file.
func LoadFromEnv() (*Config, error) {
	cfg := Config{
		Swarm: SwarmConfig{
			ID:      os.Getenv("WAGGLE_SWARM_ID"),
			DataDir: os.Getenv("WAGGLE_DATA_DIR"),
		},
		API: APIConfig{
			Host: os.Getenv("WAGGLE_API_HOST"),
			Key:  os.Getenv("WAGGLE_API_KEY"),
		},
	}
	if port := os.Getenv("WAGGLE_API_PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("config: WAGGLE_API_PORT: %w", err)
		}
		cfg.API.Port = n
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Swarm.ID == "" {
		c.Swarm.ID = "waggle"
	}
	if c.Swarm.DataDir == "" {
		c.Swarm.DataDir = "./data"
	}
	if c.API.Host == "" {
		c.API.Host = "127.0.0.1"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Scheduler.HorizonDays == 0 {
		c.Scheduler.HorizonDays = 3
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.API.Port < 1 || c.API.Port > 65535 {
		return fmt.Errorf("config: api.port %d out of range", c.API.Port)
	}
	if c.Scheduler.HorizonDays < 0 {
		return fmt.Errorf("config: scheduler.horizon_days must not be negative")
	}
	if s := c.Connectors.Slack; s != nil && (s.BotToken == "" || s.Channel == "") {
		return fmt.Errorf("config: connectors.slack requires bot_token and channel")
	}
	if t := c.Connectors.Telegram; t != nil && (t.Token == "" || t.ChatID == 0) {
		return fmt.Errorf("config: connectors.telegram requires token and chat_id")
	}
	if w := c.Connectors.Webhook; w != nil && w.URL == "" {
		return fmt.Errorf("config: connectors.webhook requires url")
	}
	for i, sub := range c.Subscriptions {
		if sub.Target == "" {
			return fmt.Errorf("config: subscriptions[%d]: target is required", i)
		}
		if sub.Kind != "agent" && sub.Kind != "human" {
			return fmt.Errorf("config: subscriptions[%d]: kind must be agent or human, got %q", i, sub.Kind)
		}
		if len(sub.Events) == 0 {
			return fmt.Errorf("config: subscriptions[%d]: at least one event type is required", i)
		}
		for _, e := range sub.Events {
			if !knownEventType(e) {
				return fmt.Errorf("config: subscriptions[%d]: unknown event type %q", i, e)
			}
		}
	}
	return nil
}

// EventTypes converts a subscription's event names to protocol types.
func (s SubscriptionConfig) EventTypes() []protocol.EventType {
	out := make([]protocol.EventType, len(s.Events))
	for i, e := range s.Events {
		out[i] = protocol.EventType(e)
	}
	return out
}

func knownEventType(s string) bool {
	switch protocol.EventType(s) {
	case protocol.EventTicketCreated,
		protocol.EventTicketStatusChanged,
		protocol.EventTicketAssigned,
		protocol.EventTicketBlocked,
		protocol.EventTicketCompleted,
		protocol.EventTicketMeetingScheduled,
		protocol.EventTicketDeadlineApproaching,
		protocol.EventTicketOverdue:
		return true
	}
	return false
}
