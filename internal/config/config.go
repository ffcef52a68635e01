// Package config loads service configuration from JSON/YAML files or the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config is the top-level service configuration.
type Config struct {
	Server     ServerConfig    `json:"server" yaml:"server"`
	Store      StoreConfig     `json:"store" yaml:"store"`
	Tickets    TicketsConfig   `json:"tickets" yaml:"tickets"`
	Notify     NotifyConfig    `json:"notify" yaml:"notify"`
	AI         AIConfig        `json:"ai" yaml:"ai"`
	Connectors ConnectorConfig `json:"connectors" yaml:"connectors"`
	Chatbot    ChatbotConfig   `json:"chatbot" yaml:"chatbot"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	APIKey   string `json:"api_key,omitempty" yaml:"api_key,omitempty"`     // protects POST /api/ticket
	AdminKey string `json:"admin_key,omitempty" yaml:"admin_key,omitempty"` // protects admin routes
	Timezone string `json:"timezone,omitempty" yaml:"timezone,omitempty"`   // for "today" and notification timestamps
}

// StoreConfig selects the ticket store.
type StoreConfig struct {
	Driver      string `json:"driver" yaml:"driver"` // "sqlite" (default) or "postgres"
	DataDir     string `json:"data_dir" yaml:"data_dir"`
	DatabaseURL string `json:"database_url,omitempty" yaml:"database_url,omitempty"`
}

// SQLitePath is the database file inside DataDir.
func (s StoreConfig) SQLitePath() string {
	return filepath.Join(s.DataDir, "tickets.db")
}

// TicketsConfig holds ticket id and validation settings.
type TicketsConfig struct {
	IDScheme        string `json:"id_scheme" yaml:"id_scheme"` // "random" (default) or "sequential"
	IDPrefix        string `json:"id_prefix,omitempty" yaml:"id_prefix,omitempty"`
	RequireCategory bool   `json:"require_category,omitempty" yaml:"require_category,omitempty"`
}

// NotifyConfig holds notification channel settings.
type NotifyConfig struct {
	Template string                `json:"template" yaml:"template"` // "full" (default) or "compact"
	Timeout  Duration              `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Telegram *TelegramNotifyConfig `json:"telegram,omitempty" yaml:"telegram,omitempty"`
	WhatsApp *WhatsAppNotifyConfig `json:"whatsapp,omitempty" yaml:"whatsapp,omitempty"`
	Slack    *SlackNotifyConfig    `json:"slack,omitempty" yaml:"slack,omitempty"`
}

// TelegramNotifyConfig posts tickets to a Telegram group.
type TelegramNotifyConfig struct {
	Token  string `json:"token" yaml:"token"`
	ChatID int64  `json:"chat_id" yaml:"chat_id"`
}

// WhatsAppNotifyConfig posts tickets to a WhatsApp group via connectors.greenapi.
type WhatsAppNotifyConfig struct {
	GroupID string `json:"group_id" yaml:"group_id"`
}

// SlackNotifyConfig posts tickets to Slack.
type SlackNotifyConfig struct {
	WebhookURL string `json:"webhook_url,omitempty" yaml:"webhook_url,omitempty"`
	BotToken   string `json:"bot_token,omitempty" yaml:"bot_token,omitempty"`
	Channel    string `json:"channel,omitempty" yaml:"channel,omitempty"`
}

// AIConfig holds summarizer settings. Empty Provider disables summaries.
type AIConfig struct {
	Provider      string   `json:"provider,omitempty" yaml:"provider,omitempty"` // "openai" or "anthropic"
	APIKey        string   `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL       string   `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model         string   `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout       Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	ApplyPriority bool     `json:"apply_priority,omitempty" yaml:"apply_priority,omitempty"`
}

// ConnectorConfig holds settings for the chat transports.
type ConnectorConfig struct {
	Telegram *TelegramConfig `json:"telegram,omitempty" yaml:"telegram,omitempty"`
	GreenAPI *GreenAPIConfig `json:"greenapi,omitempty" yaml:"greenapi,omitempty"`
	X        *XConfig        `json:"x,omitempty" yaml:"x,omitempty"`
}

// TelegramConfig runs the dialogue over a Telegram bot.
type TelegramConfig struct {
	Token     string  `json:"token" yaml:"token"`
	AllowFrom []int64 `json:"allow_from,omitempty" yaml:"allow_from,omitempty"`
}

// GreenAPIConfig holds WhatsApp gateway credentials.
type GreenAPIConfig struct {
	APIURL        string `json:"api_url,omitempty" yaml:"api_url,omitempty"`
	InstanceID    string `json:"instance_id" yaml:"instance_id"`
	Token         string `json:"token" yaml:"token"`
	WebhookToken  string `json:"webhook_token,omitempty" yaml:"webhook_token,omitempty"`
	WebhookSecret string `json:"webhook_secret,omitempty" yaml:"webhook_secret,omitempty"`
}

// XConfig holds X DM polling settings.
type XConfig struct {
	BearerToken  string `json:"bearer_token" yaml:"bearer_token"`
	UserID       string `json:"user_id" yaml:"user_id"`
	APIURL       string `json:"api_url,omitempty" yaml:"api_url,omitempty"`
	PollSchedule string `json:"poll_schedule,omitempty" yaml:"poll_schedule,omitempty"`
}

// ChatbotConfig holds dialogue settings.
type ChatbotConfig struct {
	Enabled       *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"` // default true
	IdleTimeout   Duration `json:"idle_timeout,omitempty" yaml:"idle_timeout,omitempty"`
	SweepSchedule string   `json:"sweep_schedule,omitempty" yaml:"sweep_schedule,omitempty"`
	ReplyDelay    Duration `json:"reply_delay,omitempty" yaml:"reply_delay,omitempty"` // negative disables pacing
}

// IsEnabled reports whether the chatbot answers messages at startup.
func (c ChatbotConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Duration is a time.Duration written as "90s", "1h" etc.
type Duration time.Duration

// D returns the value as time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

// Load reads configuration from a JSON or YAML file (by extension).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv builds a config from environment variables, reading .env first
// when present. Variables already set in the environment win over .env.
func LoadFromEnv() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:     os.Getenv("HOST"),
			Port:     getenvInt("PORT", 0),
			APIKey:   os.Getenv("API_KEY"),
			AdminKey: os.Getenv("ADMIN_KEY"),
			Timezone: os.Getenv("TIMEZONE"),
		},
		Store: StoreConfig{
			Driver:      os.Getenv("DB_DRIVER"),
			DataDir:     os.Getenv("DATA_DIR"),
			DatabaseURL: os.Getenv("DATABASE_URL"),
		},
		Tickets: TicketsConfig{
			IDScheme:        os.Getenv("TICKET_ID_SCHEME"),
			IDPrefix:        os.Getenv("TICKET_ID_PREFIX"),
			RequireCategory: getenvBool("REQUIRE_CATEGORY", false),
		},
		Notify: NotifyConfig{
			Template: os.Getenv("NOTIFY_TEMPLATE"),
		},
		AI: AIConfig{
			Provider:      os.Getenv("AI_PROVIDER"),
			Model:         os.Getenv("AI_MODEL"),
			ApplyPriority: getenvBool("AI_APPLY_PRIORITY", false),
		},
		Chatbot: ChatbotConfig{
			SweepSchedule: os.Getenv("CHATBOT_SWEEP_SCHEDULE"),
		},
	}

	var errs []string
	durations := map[string]*Duration{
		"CHATBOT_IDLE_TIMEOUT": &cfg.Chatbot.IdleTimeout,
		"CHATBOT_REPLY_DELAY":  &cfg.Chatbot.ReplyDelay,
		"AI_TIMEOUT":           &cfg.AI.Timeout,
		"NOTIFY_TIMEOUT":       &cfg.Notify.Timeout,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
			}
		}
	}
	if v := os.Getenv("CHATBOT_ENABLED"); v != "" {
		enabled := getenvBool("CHATBOT_ENABLED", true)
		cfg.Chatbot.Enabled = &enabled
	}

	// AI provider: explicit AI_PROVIDER wins, otherwise whichever key is set.
	switch {
	case cfg.AI.Provider == "anthropic" || (cfg.AI.Provider == "" && os.Getenv("ANTHROPIC_API_KEY") != ""):
		cfg.AI.Provider = "anthropic"
		cfg.AI.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	case cfg.AI.Provider == "openai" || (cfg.AI.Provider == "" && os.Getenv("OPENAI_API_KEY") != ""):
		cfg.AI.Provider = "openai"
		cfg.AI.APIKey = os.Getenv("OPENAI_API_KEY")
		cfg.AI.BaseURL = os.Getenv("OPENAI_BASE_URL")
	}

	// Telegram: one bot token serves group notifications and, optionally, the dialogue.
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		if chat := os.Getenv("TELEGRAM_CHAT_ID"); chat != "" {
			id, err := strconv.ParseInt(chat, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("TELEGRAM_CHAT_ID: invalid integer %q", chat))
			}
			cfg.Notify.Telegram = &TelegramNotifyConfig{Token: token, ChatID: id}
		}
		if getenvBool("TELEGRAM_CHATBOT", false) {
			cfg.Connectors.Telegram = &TelegramConfig{Token: token}
			if ids := os.Getenv("TELEGRAM_ALLOW_FROM"); ids != "" {
				parsed, err := parseInt64List(ids)
				if err != nil {
					errs = append(errs, fmt.Sprintf("TELEGRAM_ALLOW_FROM: %v", err))
				}
				cfg.Connectors.Telegram.AllowFrom = parsed
			}
		}
	}

	if id := os.Getenv("GREEN_API_INSTANCE_ID"); id != "" {
		cfg.Connectors.GreenAPI = &GreenAPIConfig{
			APIURL:        os.Getenv("GREEN_API_URL"),
			InstanceID:    id,
			Token:         os.Getenv("GREEN_API_TOKEN"),
			WebhookToken:  os.Getenv("GREEN_API_WEBHOOK_TOKEN"),
			WebhookSecret: os.Getenv("GREEN_API_WEBHOOK_SECRET"),
		}
		if group := os.Getenv("GREEN_API_GROUP_ID"); group != "" {
			cfg.Notify.WhatsApp = &WhatsAppNotifyConfig{GroupID: group}
		}
	}

	if hook, token := os.Getenv("SLACK_WEBHOOK_URL"), os.Getenv("SLACK_BOT_TOKEN"); hook != "" || token != "" {
		cfg.Notify.Slack = &SlackNotifyConfig{
			WebhookURL: hook,
			BotToken:   token,
			Channel:    os.Getenv("SLACK_CHANNEL"),
		}
	}

	if token := os.Getenv("X_BEARER_TOKEN"); token != "" {
		cfg.Connectors.X = &XConfig{
			BearerToken:  token,
			UserID:       os.Getenv("X_USER_ID"),
			APIURL:       os.Getenv("X_API_URL"),
			PollSchedule: os.Getenv("X_POLL_SCHEDULE"),
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config: environment:\n  - %s", strings.Join(errs, "\n  - "))
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.Timezone == "" {
		c.Server.Timezone = "Asia/Riyadh"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.DataDir == "" {
		c.Store.DataDir = "./data"
	}
	if c.Tickets.IDScheme == "" {
		c.Tickets.IDScheme = "random"
	}
	if c.Notify.Template == "" {
		c.Notify.Template = "full"
	}
	if c.Notify.Timeout == 0 {
		c.Notify.Timeout = Duration(15 * time.Second)
	}
	if c.AI.Timeout == 0 {
		c.AI.Timeout = Duration(20 * time.Second)
	}
	if c.Chatbot.IdleTimeout == 0 {
		c.Chatbot.IdleTimeout = Duration(time.Hour)
	}
	if c.Chatbot.SweepSchedule == "" {
		c.Chatbot.SweepSchedule = "@every 5m"
	}
	if c.Chatbot.ReplyDelay == 0 {
		c.Chatbot.ReplyDelay = Duration(1500 * time.Millisecond)
	}
	if c.Connectors.X != nil && c.Connectors.X.PollSchedule == "" {
		c.Connectors.X.PollSchedule = "@every 1m"
	}
}

// Validate checks for required fields and consistent settings.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	if c.Server.Timezone != "" {
		if _, err := time.LoadLocation(c.Server.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("server.timezone: %v", err))
		}
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.DataDir == "" {
			errs = append(errs, "store.data_dir is required for sqlite")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}

	if s := c.Tickets.IDScheme; s != "random" && s != "sequential" {
		errs = append(errs, fmt.Sprintf("tickets.id_scheme %q must be random or sequential", s))
	}

	if t := c.Notify.Template; t != "full" && t != "compact" {
		errs = append(errs, fmt.Sprintf("notify.template %q must be full or compact", t))
	}
	if tg := c.Notify.Telegram; tg != nil && (tg.Token == "" || tg.ChatID == 0) {
		errs = append(errs, "notify.telegram needs token and chat_id")
	}
	if wa := c.Notify.WhatsApp; wa != nil {
		if wa.GroupID == "" {
			errs = append(errs, "notify.whatsapp.group_id is required")
		}
		if c.Connectors.GreenAPI == nil {
			errs = append(errs, "notify.whatsapp requires connectors.greenapi")
		}
	}
	if sl := c.Notify.Slack; sl != nil && sl.WebhookURL == "" && (sl.BotToken == "" || sl.Channel == "") {
		errs = append(errs, "notify.slack needs webhook_url or bot_token with channel")
	}

	switch c.AI.Provider {
	case "":
	case "openai", "anthropic":
		if c.AI.APIKey == "" {
			errs = append(errs, fmt.Sprintf("ai.api_key is required for provider %s", c.AI.Provider))
		}
	default:
		errs = append(errs, fmt.Sprintf("ai.provider %q must be openai or anthropic", c.AI.Provider))
	}

	if tg := c.Connectors.Telegram; tg != nil && tg.Token == "" {
		errs = append(errs, "connectors.telegram.token is required")
	}
	if g := c.Connectors.GreenAPI; g != nil && (g.InstanceID == "" || g.Token == "") {
		errs = append(errs, "connectors.greenapi needs instance_id and token")
	}
	if x := c.Connectors.X; x != nil {
		if x.BearerToken == "" || x.UserID == "" {
			errs = append(errs, "connectors.x needs bearer_token and user_id")
		}
		if err := checkSchedule(x.PollSchedule); err != nil {
			errs = append(errs, fmt.Sprintf("connectors.x.poll_schedule: %v", err))
		}
	}

	if err := checkSchedule(c.Chatbot.SweepSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("chatbot.sweep_schedule: %v", err))
	}
	if c.Chatbot.IdleTimeout < 0 {
		errs = append(errs, "chatbot.idle_timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func checkSchedule(spec string) error {
	if spec == "" {
		return nil
	}
	_, err := cron.ParseStandard(spec)
	return err
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func parseInt64List(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	result := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", p)
		}
		result = append(result, n)
	}
	return result, nil
}
