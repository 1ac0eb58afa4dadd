package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

func init() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found, falling back to system environment variables")
	}
}

// Config is the full process configuration. Every external connection is
// optional: a missing token just leaves that integration offline.
type Config struct {
	StoragePath string `env:"STORAGE_PATH" envDefault:"tsubaki.db"`
	BackupDir   string `env:"BACKUP_DIR" envDefault:"backups"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8787"`

	TwitchUsername      string   `env:"TWITCH_USERNAME"`
	TwitchToken         string   `env:"TWITCH_TOKEN"`
	TwitchChannels      []string `env:"TWITCH_CHANNELS" envSeparator:","`
	TwitchClientID      string   `env:"TWITCH_CLIENT_ID"`
	TwitchBroadcasterID string   `env:"TWITCH_BROADCASTER_ID"`

	DiscordToken     string `env:"DISCORD_TOKEN"`
	DiscordChannelID string `env:"DISCORD_CHANNEL_ID"`

	OBSHost     string `env:"OBS_HOST" envDefault:"localhost"`
	OBSPort     int    `env:"OBS_PORT" envDefault:"4455"`
	OBSPassword string `env:"OBS_PASSWORD"`

	VTSHost string `env:"VTS_HOST" envDefault:"localhost"`
	VTSPort int    `env:"VTS_PORT" envDefault:"8001"`

	LLMBaseURL string `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	LLMAPIKey  string `env:"LLM_API_KEY"`
	LLMModel   string `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`

	RateWindow       time.Duration `env:"RATE_WINDOW" envDefault:"30s"`
	RateMax          int           `env:"RATE_MAX" envDefault:"5"`
	ChatThrottle     time.Duration `env:"CHAT_THROTTLE" envDefault:"1s"`
	MessageRetention time.Duration `env:"MESSAGE_RETENTION" envDefault:"720h"`

	HighlightWindow    int     `env:"HIGHLIGHT_WINDOW" envDefault:"30"`
	HighlightThreshold float64 `env:"HIGHLIGHT_THRESHOLD" envDefault:"2.5"`
}

// New parses the environment into a Config.
func New() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// TwitchEnabled reports whether chat credentials are present.
func (c *Config) TwitchEnabled() bool {
	return c.TwitchUsername != "" && c.TwitchToken != "" && len(c.TwitchChannels) > 0
}

// EventSubEnabled reports whether redemption credentials are present.
func (c *Config) EventSubEnabled() bool {
	return c.TwitchClientID != "" && c.TwitchToken != "" && c.TwitchBroadcasterID != ""
}

// DiscordEnabled reports whether the Discord bridge is configured.
func (c *Config) DiscordEnabled() bool {
	return c.DiscordToken != ""
}

// LLMEnabled reports whether a generation backend is configured.
func (c *Config) LLMEnabled() bool {
	return c.LLMAPIKey != ""
}
