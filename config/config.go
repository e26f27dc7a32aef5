package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var webhookSecretRe = regexp.MustCompile(`^[A-Za-z0-9_-]{16,256}$`)

// Config holds every setting of the publishing assistant.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	LLM      LLMConfig      `yaml:"llm"`
	Facebook FacebookConfig `yaml:"facebook"`
	Odoo     OdooConfig     `yaml:"odoo"`
	Flow     FlowConfig     `yaml:"flow"`
	Journal  JournalConfig  `yaml:"journal"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// TelegramConfig describes the bot and its single authorized operator.
type TelegramConfig struct {
	Token      string `yaml:"token"`
	OperatorID int64  `yaml:"operator_id"`
	Mode       string `yaml:"mode"` // poll | webhook
	WebhookURL string `yaml:"webhook_url"`
	// WebhookSecret is appended to WebhookURL as the last path segment.
	WebhookSecret string `yaml:"webhook_secret"`
}

// LLMConfig 生成模块的模型配置。
type LLMConfig struct {
	Provider        string `yaml:"provider"`
	Model           string `yaml:"model"`
	ImageModel      string `yaml:"image_model"`
	TranscribeModel string `yaml:"transcribe_model"`
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url"`
}

// Group is a Facebook group the page can cross-post into.
type Group struct {
	Name string `yaml:"name"`
	ID   string `yaml:"id"`
}

type FacebookConfig struct {
	PageID      string  `yaml:"page_id"`
	AccessToken string  `yaml:"access_token"`
	GraphURL    string  `yaml:"graph_url"`
	Groups      []Group `yaml:"groups"`
}

// Link is a labelled URL appended to every mailing.
type Link struct {
	Label string `yaml:"label"`
	URL   string `yaml:"url"`
}

// MailingList is an Odoo mailing.list the operator can target.
type MailingList struct {
	Name string `yaml:"name"`
	ID   int    `yaml:"id"`
}

type OdooConfig struct {
	URL             string        `yaml:"url"`
	DB              string        `yaml:"db"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	MailingLists    []MailingList `yaml:"mailing_lists"`
	Homepage        Link          `yaml:"homepage"`
	UnsubscribeText string        `yaml:"unsubscribe_text"`
	// Timeout bounds the wait for each XML-RPC response.
	Timeout time.Duration `yaml:"timeout"`
}

type FlowConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	MenuTimeout time.Duration `yaml:"menu_timeout"`
	Timezone    string        `yaml:"timezone"`
	Styles      []string      `yaml:"styles"`
}

type JournalConfig struct {
	Path string `yaml:"path"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// APIToken guards /api/deliveries; empty keeps the endpoint off.
	APIToken string `yaml:"api_token"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Error reports a missing or invalid setting. Sinks return it from their
// constructors so that a flow never starts half-configured.
type Error struct {
	Field string
	Msg   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Msg)
}

// IsConfigError reports whether err is a configuration failure.
func IsConfigError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{Mode: "poll"},
		LLM: LLMConfig{
			Provider:        "openai",
			Model:           "gpt-4o-mini",
			ImageModel:      "dall-e-3",
			TranscribeModel: "whisper-1",
		},
		Facebook: FacebookConfig{GraphURL: "https://graph.facebook.com/v19.0"},
		Odoo: OdooConfig{
			Timeout:         30 * time.Second,
			UnsubscribeText: "Vous recevez cet email car vous êtes inscrit à notre lettre d'information. Pour vous désabonner, cliquez sur le lien de désinscription.",
		},
		Flow: FlowConfig{
			Timeout:     10 * time.Minute,
			MenuTimeout: 10 * time.Minute,
			Timezone:    "Europe/Paris",
			Styles:      []string{"Réaliste", "Illustration", "Aquarelle", "Minimaliste", "Pop art"},
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads YAML config from disk on top of the defaults, then applies
// environment overrides. A missing file is not an error: the defaults plus
// environment are enough to run.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("TELEGRAM_BOT_TOKEN", &c.Telegram.Token)
	str("TELEGRAM_WEBHOOK_SECRET", &c.Telegram.WebhookSecret)
	str("OPENAI_API_KEY", &c.LLM.APIKey)
	str("SERVER_API_TOKEN", &c.Server.APIToken)
	str("FB_PAGE_ID", &c.Facebook.PageID)
	str("PAGE_ACCESS_TOKEN", &c.Facebook.AccessToken)
	str("ODOO_URL", &c.Odoo.URL)
	str("ODOO_DB", &c.Odoo.DB)
	str("ODOO_USERNAME", &c.Odoo.Username)
	str("ODOO_PASSWORD", &c.Odoo.Password)
	if v, ok := lookup("TELEGRAM_USER_ID"); ok && strings.TrimSpace(v) != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return &Error{Field: "TELEGRAM_USER_ID", Msg: "must be a numeric user id"}
		}
		c.Telegram.OperatorID = id
	}
	return nil
}

// Location resolves the flow timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Flow.Timezone)
	if err != nil {
		return nil, &Error{Field: "flow.timezone", Msg: err.Error()}
	}
	return loc, nil
}

// ValidateBot checks the settings the chat loop cannot run without.
func (c *Config) ValidateBot() error {
	if c.Telegram.Token == "" {
		return &Error{Field: "telegram.token", Msg: "missing (set TELEGRAM_BOT_TOKEN)"}
	}
	if c.Telegram.OperatorID == 0 {
		return &Error{Field: "telegram.operator_id", Msg: "missing (set TELEGRAM_USER_ID)"}
	}
	switch c.Telegram.Mode {
	case "", "poll":
	case "webhook":
		if c.Telegram.WebhookURL == "" {
			return &Error{Field: "telegram.webhook_url", Msg: "required in webhook mode"}
		}
		if !webhookSecretRe.MatchString(c.Telegram.WebhookSecret) {
			return &Error{Field: "telegram.webhook_secret", Msg: "required in webhook mode: 16 to 256 characters among A-Z a-z 0-9 _ - (set TELEGRAM_WEBHOOK_SECRET)"}
		}
		if c.Server.Addr == "" {
			return &Error{Field: "server.addr", Msg: "required in webhook mode"}
		}
	default:
		return &Error{Field: "telegram.mode", Msg: fmt.Sprintf("unknown mode %q", c.Telegram.Mode)}
	}
	if c.Flow.Timeout <= 0 {
		return &Error{Field: "flow.timeout", Msg: "must be positive"}
	}
	if len(c.Flow.Styles) == 0 {
		return &Error{Field: "flow.styles", Msg: "at least one illustration style is required"}
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
