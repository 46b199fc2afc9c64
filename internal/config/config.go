// Package config provides YAML-based configuration loading for tally.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Supported chat platforms.
const (
	PlatformTelegram = "telegram"
	PlatformDiscord  = "discord"
	PlatformSlack    = "slack"
	PlatformConsole  = "console"
)

// Supported storage backends and SQL drivers.
const (
	BackendSheets = "sheets"
	BackendSQL    = "sql"

	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Environment variables that override secrets from the config file.
const (
	EnvPassword      = "TALLY_PASSWORD"
	EnvTelegramToken = "TALLY_TELEGRAM_TOKEN"
	EnvDiscordToken  = "TALLY_DISCORD_TOKEN"
	EnvSlackAppToken = "TALLY_SLACK_APP_TOKEN"
	EnvSlackBotToken = "TALLY_SLACK_BOT_TOKEN"
)

// Config is the top-level tally configuration, loaded from tally.yaml.
type Config struct {
	Password  string          `yaml:"password"`
	Platform  string          `yaml:"platform"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Discord   DiscordConfig   `yaml:"discord"`
	Slack     SlackConfig     `yaml:"slack"`
	Console   ConsoleConfig   `yaml:"console"`
	Storage   StorageConfig   `yaml:"storage"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Digest    DigestConfig    `yaml:"digest"`
}

// TelegramConfig holds Telegram Bot API settings.
type TelegramConfig struct {
	Token string `yaml:"token"`
}

// DiscordConfig holds Discord bot settings.
type DiscordConfig struct {
	BotToken string `yaml:"bot_token"`
}

// SlackConfig holds Slack Socket Mode settings.
type SlackConfig struct {
	AppToken       string   `yaml:"app_token"`
	BotToken       string   `yaml:"bot_token"`
	DigestChannels []string `yaml:"digest_channels"` // channel IDs that receive the digest
}

// ConsoleConfig holds settings for the local terminal transport.
type ConsoleConfig struct {
	ChatID int64 `yaml:"chat_id"`
}

// StorageConfig selects and configures the report destination.
type StorageConfig struct {
	Backend string       `yaml:"backend"`
	Sheets  SheetsConfig `yaml:"sheets"`
	SQL     SQLConfig    `yaml:"sql"`
}

// SheetsConfig locates the Google spreadsheet that receives report rows.
type SheetsConfig struct {
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	CredentialsFile string `yaml:"credentials_file"`
	Sheet           string `yaml:"sheet"`
}

// SQLConfig holds connection settings for the SQL report table.
type SQLConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Path     string `yaml:"path"`  // sqlite file
	Sheet    string `yaml:"sheet"` // logical sheet name stored with each row
}

// DashboardConfig controls the HTTP status server. Port 0 disables it.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// DigestConfig controls the scheduled daily summary.
type DigestConfig struct {
	Enabled bool    `yaml:"enabled"`
	Cron    string  `yaml:"cron"`
	Chats   []int64 `yaml:"chats"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config. Secrets set in the
// environment take precedence over the file.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv(os.LookupEnv)
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides secrets from the environment.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	for env, dst := range map[string]*string{
		EnvPassword:      &c.Password,
		EnvTelegramToken: &c.Telegram.Token,
		EnvDiscordToken:  &c.Discord.BotToken,
		EnvSlackAppToken: &c.Slack.AppToken,
		EnvSlackBotToken: &c.Slack.BotToken,
	} {
		if v, ok := lookup(env); ok && v != "" {
			*dst = v
		}
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	c.Platform = strings.ToLower(strings.TrimSpace(c.Platform))
	if c.Console.ChatID == 0 {
		c.Console.ChatID = 1
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendSheets
	}
	if c.Storage.Sheets.Sheet == "" {
		c.Storage.Sheets.Sheet = "Report"
	}
	sql := &c.Storage.SQL
	if sql.Driver == "" {
		sql.Driver = DriverSQLite
	}
	if sql.Driver == DriverSQLite && sql.Path == "" {
		sql.Path = "tally.db"
	}
	if sql.Driver == DriverMySQL {
		if sql.Host == "" {
			sql.Host = "127.0.0.1"
		}
		if sql.Port == 0 {
			sql.Port = 3306
		}
		if sql.User == "" {
			sql.User = "root"
		}
	}
	if sql.Sheet == "" {
		sql.Sheet = c.Storage.Sheets.Sheet
	}
	if c.Digest.Cron == "" {
		c.Digest.Cron = "0 18 * * *"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Password == "" {
		errs = append(errs, "password is required")
	}
	switch c.Platform {
	case PlatformTelegram:
		if c.Telegram.Token == "" {
			errs = append(errs, "telegram.token is required")
		}
	case PlatformDiscord:
		if c.Discord.BotToken == "" {
			errs = append(errs, "discord.bot_token is required")
		}
	case PlatformSlack:
		if c.Slack.AppToken == "" {
			errs = append(errs, "slack.app_token is required")
		}
		if c.Slack.BotToken == "" {
			errs = append(errs, "slack.bot_token is required")
		}
	case PlatformConsole:
	case "":
		errs = append(errs, "platform is required")
	default:
		errs = append(errs, fmt.Sprintf("unsupported platform %q", c.Platform))
	}
	switch c.Storage.Backend {
	case BackendSheets:
		if c.Storage.Sheets.SpreadsheetID == "" {
			errs = append(errs, "storage.sheets.spreadsheet_id is required")
		}
		if c.Storage.Sheets.CredentialsFile == "" {
			errs = append(errs, "storage.sheets.credentials_file is required")
		}
	case BackendSQL:
		switch c.Storage.SQL.Driver {
		case DriverSQLite:
		case DriverMySQL:
			if c.Storage.SQL.Database == "" {
				errs = append(errs, "storage.sql.database is required for mysql")
			}
		default:
			errs = append(errs, fmt.Sprintf("unsupported storage.sql.driver %q", c.Storage.SQL.Driver))
		}
	default:
		errs = append(errs, fmt.Sprintf("unsupported storage.backend %q", c.Storage.Backend))
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		errs = append(errs, fmt.Sprintf("dashboard.port %d out of range", c.Dashboard.Port))
	}
	if c.Digest.Enabled {
		if _, err := cron.ParseStandard(c.Digest.Cron); err != nil {
			errs = append(errs, fmt.Sprintf("digest.cron: %v", err))
		}
		targets := len(c.Digest.Chats)
		if c.Platform == PlatformSlack {
			targets += len(c.Slack.DigestChannels)
		}
		if targets == 0 {
			errs = append(errs, "digest.chats must list at least one chat when digest is enabled")
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
