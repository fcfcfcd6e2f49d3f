package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "waggle.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `{}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Swarm.ID != "waggle" {
		t.Errorf("expected default swarm id, got %q", cfg.Swarm.ID)
	}
	if cfg.API.Port != 8080 || cfg.API.Host != "127.0.0.1" {
		t.Errorf("expected default api address, got %s:%d", cfg.API.Host, cfg.API.Port)
	}
	if cfg.Scheduler.HorizonDays != 3 {
		t.Errorf("expected default horizon 3, got %d", cfg.Scheduler.HorizonDays)
	}
}

func TestLoadFull(t *testing.T) {
	path := writeConfig(t, `{
		"swarm": {"id": "prod", "data_dir": "/var/lib/waggle"},
		"scheduler": {"sweep_schedule": "@every 5m", "horizon_days": 7},
		"connectors": {
			"slack": {"bot_token": "xoxb-test", "channel": "C123"},
			"webhook": {"url": "https://ops.example.com/hook", "secret": "whsec"}
		},
		"api": {"host": "0.0.0.0", "port": 9090, "api_key": "secret"},
		"subscriptions": [
			{"target": "agent-b", "kind": "agent", "events": ["ticket.blocked", "ticket.overdue"]},
			{"target": "ops", "kind": "human", "events": ["ticket.blocked"]}
		]
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Swarm.ID != "prod" || cfg.Scheduler.HorizonDays != 7 {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Connectors.Slack == nil || cfg.Connectors.Slack.Channel != "C123" {
		t.Errorf("slack config not parsed: %+v", cfg.Connectors.Slack)
	}
	if len(cfg.Subscriptions) != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", len(cfg.Subscriptions))
	}
	types := cfg.Subscriptions[0].EventTypes()
	if len(types) != 2 || string(types[0]) != "ticket.blocked" {
		t.Errorf("unexpected event types %v", types)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name string
		json string
		want string
	}{
		{"bad port", `{"api": {"port": 70000}}`, "out of range"},
		{"slack missing channel", `{"connectors": {"slack": {"bot_token": "x"}}}`, "slack"},
		{"telegram missing chat", `{"connectors": {"telegram": {"token": "x"}}}`, "telegram"},
		{"webhook missing url", `{"connectors": {"webhook": {"secret": "s"}}}`, "webhook"},
		{"bad subscription kind", `{"subscriptions": [{"target": "a", "kind": "robot", "events": ["ticket.created"]}]}`, "kind"},
		{"unknown event", `{"subscriptions": [{"target": "a", "kind": "agent", "events": ["ticket.exploded"]}]}`, "unknown event"},
		{"empty events", `{"subscriptions": [{"target": "a", "kind": "agent", "events": []}]}`, "at least one"},
	}
	for _, tc := range cases {
		path := writeConfig(t, tc.json)
		_, err := Load(path)
		if err == nil {
			t.Errorf("%s: expected error", tc.name)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: expected %q in error, got %v", tc.name, tc.want, err)
		}
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("WAGGLE_SWARM_ID", "staging")
	t.Setenv("WAGGLE_API_PORT", "9001")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("load from env: %v", err)
	}
	if cfg.Swarm.ID != "staging" || cfg.API.Port != 9001 {
		t.Errorf("unexpected config %+v", cfg)
	}

	t.Setenv("WAGGLE_API_PORT", "not-a-port")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected error for bad port")
	}
}
