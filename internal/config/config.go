package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// TokenEnv overrides api.token so the secret can stay out of the file.
const TokenEnv = "CRMSYNC_TOKEN"

// Duration is a time.Duration written as "90s" or "5m" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is ~/.crmsync/config.toml.
type Config struct {
	DefaultSession string   `toml:"default_session"`
	API            API      `toml:"api"`
	Push           Push     `toml:"push"`
	Polling        Polling  `toml:"polling"`
	Messages       Messages `toml:"messages"`
	Calls          Calls    `toml:"calls"`
	Voice          Voice    `toml:"voice"`
	Log            Log      `toml:"log"`
}

type API struct {
	BaseURL string   `toml:"base_url"`
	Account string   `toml:"account"`
	Token   string   `toml:"token,omitempty"`
	Timeout Duration `toml:"timeout"`
}

type Push struct {
	URL          string   `toml:"url"`
	PingInterval Duration `toml:"ping_interval"`
	MaxBackoff   Duration `toml:"max_backoff"`
}

// Polling is the fallback cadence. Push is the primary channel, so these are long.
type Polling struct {
	ChatsInterval    Duration `toml:"chats_interval"`
	MessagesInterval Duration `toml:"messages_interval"`
	ActivityWindow   Duration `toml:"activity_window"`
	NewChatDebounce  Duration `toml:"new_chat_debounce"`
}

type Messages struct {
	Window int `toml:"window"`
}

type Calls struct {
	PageSize int `toml:"page_size"`
}

type Voice struct {
	CacheTTL Duration `toml:"cache_ttl"`
}

type Log struct {
	Level string `toml:"level"`
}

// Defaults returns the configuration used for anything the file leaves unset.
func Defaults() Config {
	return Config{
		API:  API{Timeout: Duration{15 * time.Second}},
		Push: Push{PingInterval: Duration{30 * time.Second}, MaxBackoff: Duration{30 * time.Second}},
		Polling: Polling{
			ChatsInterval:    Duration{3 * time.Minute},
			MessagesInterval: Duration{time.Minute},
			ActivityWindow:   Duration{5 * time.Minute},
			NewChatDebounce:  Duration{2 * time.Second},
		},
		Messages: Messages{Window: 50},
		Calls:    Calls{PageSize: 50},
		Voice:    Voice{CacheTTL: Duration{10 * time.Minute}},
		Log:      Log{Level: "info"},
	}
}

// Load reads config from path over Defaults and applies the token override.
// A missing file is an error; callers that tolerate it use LoadOrDefault.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return &cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		d := Defaults()
		d.applyEnv()
		return &d, nil
	}
	return cfg, err
}

func (c *Config) applyEnv() {
	if tok := os.Getenv(TokenEnv); tok != "" {
		c.API.Token = tok
	}
}

// Validate reports settings the daemon cannot run without.
func (c *Config) Validate() error {
	switch {
	case c.API.BaseURL == "":
		return errors.New("config: api.base_url is required")
	case c.API.Account == "":
		return errors.New("config: api.account is required")
	case c.API.Token == "":
		return fmt.Errorf("config: api.token is required (or set %s)", TokenEnv)
	case c.Messages.Window <= 0:
		return errors.New("config: messages.window must be positive")
	}
	return nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
