// Package config layers configuration from a yaml file, NOTEDECK_*
// environment variables, and command-line flags, in that order of
// increasing precedence.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// GraphConfig holds the Microsoft Graph OAuth credentials. Empty values
// disable syncing from OneNote.
type GraphConfig struct {
	TenantID     string `koanf:"tenant_id"`
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	RefreshToken string `koanf:"refresh_token"`
}

// LLMConfig points at the chat-completions endpoint used for card
// generation.
type LLMConfig struct {
	Endpoint string `koanf:"endpoint"`
	APIKey   string `koanf:"api_key"`
	Model    string `koanf:"model"`
}

// Config is the full runtime configuration.
type Config struct {
	Listen           string      `koanf:"listen" validate:"required"`
	DBPath           string      `koanf:"db" validate:"required"`
	DailyNewLimit    int         `koanf:"daily_new_limit" validate:"min=1"`
	DailyReviewLimit int         `koanf:"daily_review_limit" validate:"min=1"`
	NewCardOrder     string      `koanf:"new_card_order" validate:"oneof=insertion random"`
	PushURL          string      `koanf:"push_url"`
	Graph            GraphConfig `koanf:"graph"`
	LLM              LLMConfig   `koanf:"llm"`
}

// SyncEnabled reports whether Graph credentials are configured.
func (c *Config) SyncEnabled() bool {
	return c.Graph.ClientID != "" && c.Graph.RefreshToken != ""
}

// Load builds the configuration from flags, environment, and an optional
// yaml file, then validates it.
func Load(args []string) (*Config, error) {
	f := pflag.NewFlagSet("notedeck", pflag.ContinueOnError)
	f.String("config", "", "Path to a yaml config file")
	f.String("listen", ":8484", "Address for the HTTP server")
	f.String("db", "notedeck.db", "Path to the SQLite database file")
	f.Int("daily_new_limit", 20, "Maximum new cards per session")
	f.Int("daily_review_limit", 200, "Maximum due cards per session")
	f.String("new_card_order", "insertion", "New card ordering: insertion or random")
	f.String("push_url", "", "Remote endpoint to push deck snapshots to (empty disables pushes)")
	if err := f.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	k := koanf.New(".")

	if path, _ := f.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// NOTEDECK_GRAPH__CLIENT_ID maps to graph.client_id.
	if err := k.Load(env.Provider("NOTEDECK_", ".", func(key string) string {
		key = strings.ToLower(strings.TrimPrefix(key, "NOTEDECK_"))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, fmt.Errorf("loading flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// MustLoad is Load for main: it prints the error and exits.
func MustLoad(args []string) *Config {
	cfg, err := Load(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return cfg
}
