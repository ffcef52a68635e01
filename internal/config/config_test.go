package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validJSON = `{
  "server": {"port": 8080, "api_key": "form-key", "admin_key": "admin-key"},
  "store": {"driver": "sqlite", "data_dir": "/tmp/tickets"},
  "tickets": {"id_scheme": "sequential", "id_prefix": "WA"},
  "notify": {
    "template": "compact",
    "telegram": {"token": "123456:ABC", "chat_id": -1001234},
    "slack": {"webhook_url": "https://hooks.slack.com/services/T/B/X"}
  },
  "ai": {"provider": "openai", "api_key": "sk-test", "model": "gpt-4o-mini", "timeout": "5s"},
  "connectors": {
    "greenapi": {"instance_id": "1101", "token": "gw-token", "webhook_token": "wh"},
    "x": {"bearer_token": "bt", "user_id": "42"}
  },
  "chatbot": {"enabled": false, "idle_timeout": "30m", "reply_delay": "2s"}
}`

const validYAML = `
server:
  port: 9090
  admin_key: admin-key
store:
  driver: postgres
  database_url: postgres://u:p@localhost:5432/tickets?sslmode=disable
connectors:
  telegram:
    token: "123:abc"
    allow_from: [100, 200]
chatbot:
  sweep_schedule: "*/10 * * * *"
  idle_timeout: 2h
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_JSON(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.json", validJSON))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 || cfg.Server.Host != "0.0.0.0" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Tickets.IDScheme != "sequential" || cfg.Tickets.IDPrefix != "WA" {
		t.Errorf("tickets = %+v", cfg.Tickets)
	}
	if cfg.Notify.Telegram.ChatID != -1001234 {
		t.Errorf("chat id = %d", cfg.Notify.Telegram.ChatID)
	}
	if cfg.AI.Timeout.D() != 5*time.Second {
		t.Errorf("ai timeout = %v", cfg.AI.Timeout.D())
	}
	if cfg.Chatbot.IsEnabled() {
		t.Error("chatbot should be disabled")
	}
	if cfg.Chatbot.IdleTimeout.D() != 30*time.Minute || cfg.Chatbot.ReplyDelay.D() != 2*time.Second {
		t.Errorf("chatbot = %+v", cfg.Chatbot)
	}
	if cfg.Connectors.X.PollSchedule != "@every 1m" {
		t.Errorf("x poll default = %q", cfg.Connectors.X.PollSchedule)
	}
	if cfg.Store.SQLitePath() != "/tmp/tickets/tickets.db" {
		t.Errorf("sqlite path = %q", cfg.Store.SQLitePath())
	}
}

func TestLoad_YAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.yaml", validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Store.Driver != "postgres" {
		t.Errorf("cfg = %+v", cfg)
	}
	if got := cfg.Connectors.Telegram.AllowFrom; len(got) != 2 || got[1] != 200 {
		t.Errorf("allow_from = %v", got)
	}
	if cfg.Chatbot.IdleTimeout.D() != 2*time.Hour {
		t.Errorf("idle = %v", cfg.Chatbot.IdleTimeout.D())
	}
	if !cfg.Chatbot.IsEnabled() {
		t.Error("chatbot should default to enabled")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.json", `{}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 3000 || cfg.Store.Driver != "sqlite" || cfg.Tickets.IDScheme != "random" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Notify.Template != "full" || cfg.Chatbot.SweepSchedule != "@every 5m" {
		t.Errorf("defaults not applied: %+v", cfg.Notify)
	}
	if cfg.Chatbot.ReplyDelay.D() != 1500*time.Millisecond {
		t.Errorf("reply delay = %v", cfg.Chatbot.ReplyDelay.D())
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/config.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	if _, err := Load(writeFile(t, "config.json", "{not json")); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	if _, err := Load(writeFile(t, "config.json", `{"chatbot":{"idle_timeout":"soon"}}`)); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Tickets.IDScheme = "uuid"
	cfg.AI.Provider = "anthropic"
	cfg.Notify.WhatsApp = &WhatsAppNotifyConfig{GroupID: "g@g.us"}
	cfg.Chatbot.SweepSchedule = "every five minutes"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	if !strings.HasPrefix(msg, "config validation failed:") {
		t.Errorf("unexpected prefix: %q", msg)
	}
	for _, want := range []string{
		"store.driver",
		"tickets.id_scheme",
		"ai.api_key",
		"notify.whatsapp requires connectors.greenapi",
		"chatbot.sweep_schedule",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("missing %q in:\n%s", want, msg)
		}
	}
}

func TestValidate_PostgresNeedsURL(t *testing.T) {
	cfg := &Config{Store: StoreConfig{Driver: "postgres"}}
	cfg.applyDefaults()
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "database_url") {
		t.Errorf("err = %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "4000")
	t.Setenv("ADMIN_KEY", "adm")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "-100")
	t.Setenv("TELEGRAM_CHATBOT", "true")
	t.Setenv("TELEGRAM_ALLOW_FROM", "1, 2")
	t.Setenv("GREEN_API_INSTANCE_ID", "1101")
	t.Setenv("GREEN_API_TOKEN", "tok")
	t.Setenv("GREEN_API_GROUP_ID", "120363@g.us")
	t.Setenv("OPENAI_API_KEY", "sk-1")
	t.Setenv("CHATBOT_IDLE_TIMEOUT", "45m")
	t.Setenv("CHATBOT_ENABLED", "false")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Server.Port != 4000 || cfg.Server.AdminKey != "adm" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Notify.Telegram == nil || cfg.Notify.Telegram.ChatID != -100 {
		t.Errorf("notify.telegram = %+v", cfg.Notify.Telegram)
	}
	if cfg.Connectors.Telegram == nil || len(cfg.Connectors.Telegram.AllowFrom) != 2 {
		t.Errorf("connectors.telegram = %+v", cfg.Connectors.Telegram)
	}
	if cfg.Notify.WhatsApp == nil || cfg.Connectors.GreenAPI.InstanceID != "1101" {
		t.Errorf("whatsapp not configured: %+v", cfg.Connectors.GreenAPI)
	}
	if cfg.AI.Provider != "openai" || cfg.AI.APIKey != "sk-1" {
		t.Errorf("ai = %+v", cfg.AI)
	}
	if cfg.Chatbot.IdleTimeout.D() != 45*time.Minute || cfg.Chatbot.IsEnabled() {
		t.Errorf("chatbot = %+v", cfg.Chatbot)
	}
}

func TestLoadFromEnv_DotEnv(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, ".env"), []byte("ADMIN_KEY=from-dotenv\nTICKET_ID_SCHEME=sequential\n"), 0o644)
	t.Chdir(dir)
	// Cleared here so godotenv can set them; t.Setenv restores afterwards.
	t.Setenv("ADMIN_KEY", "")
	os.Unsetenv("ADMIN_KEY")
	t.Setenv("TICKET_ID_SCHEME", "")
	os.Unsetenv("TICKET_ID_SCHEME")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Server.AdminKey != "from-dotenv" || cfg.Tickets.IDScheme != "sequential" {
		t.Errorf("dotenv not applied: %+v %+v", cfg.Server, cfg.Tickets)
	}
}

func TestLoadFromEnv_BadChatID(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "group")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected error for non-numeric chat id")
	}
}
