package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g.
// CHATSYNC_SERVER_WEBSOCKET_URL or CHATSYNC_STORE_PATH. Fields carry no
// envconfig alt names, so unprefixed variables such as PATH are never read.
const EnvPrefix = "CHATSYNC"

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Client    ClientConfig    `yaml:"client"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Store     StoreConfig     `yaml:"store"`
	API       APIConfig       `yaml:"api"`
	Logger    LoggerConfig    `yaml:"logger"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig locates the chat server's push and REST endpoints.
type ServerConfig struct {
	WebsocketURL string `yaml:"ws_url" split_words:"true"`
	APIURL       string `yaml:"api_url" split_words:"true"`
}

// ClientConfig tunes per-view behavior.
type ClientConfig struct {
	TypingTimeout  time.Duration `yaml:"typing_timeout" split_words:"true"`
	RequestTimeout time.Duration `yaml:"request_timeout" split_words:"true"`
	PageRateLimit  float64       `yaml:"page_rate_limit" split_words:"true"` // page fetches per second
	PageBurst      int           `yaml:"page_burst" split_words:"true"`
}

// ReconnectConfig bounds the push-channel backoff. A negative MaxAttempts
// disables reconnection entirely.
type ReconnectConfig struct {
	InitialInterval time.Duration `yaml:"initial_interval" split_words:"true"`
	MaxInterval     time.Duration `yaml:"max_interval" split_words:"true"`
	MaxAttempts     int           `yaml:"max_attempts" split_words:"true"`
}

// StoreConfig locates the identity database. Secret seals the stored token.
type StoreConfig struct {
	Path   string `yaml:"path" split_words:"true"`
	Secret string `yaml:"secret" split_words:"true"`
}

// APIConfig configures the local control API.
type APIConfig struct {
	Listen    string `yaml:"listen" split_words:"true"`
	AccessKey string `yaml:"access_key" split_words:"true"`
}

// LoggerConfig represents logger configuration
type LoggerConfig struct {
	Level      string `yaml:"level" split_words:"true"`
	Format     string `yaml:"format" split_words:"true"` // json or console
	OutputPath string `yaml:"output_path" split_words:"true"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" split_words:"true"`
	Namespace string `yaml:"namespace" split_words:"true"`
}

// Default returns the configuration used when neither a file nor the
// environment says otherwise. It points at a server on localhost.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			WebsocketURL: "ws://127.0.0.1:8000",
			APIURL:       "http://127.0.0.1:8000/api",
		},
		Client: ClientConfig{
			TypingTimeout:  5 * time.Second,
			RequestTimeout: 10 * time.Second,
			PageRateLimit:  4,
			PageBurst:      1,
		},
		Reconnect: ReconnectConfig{
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     30 * time.Second,
			MaxAttempts:     10,
		},
		Store: StoreConfig{
			Path: "chatsync.db",
		},
		API: APIConfig{
			Listen: "127.0.0.1:8090",
		},
		Logger: LoggerConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "chatsync",
		},
	}
}

// Load loads configuration from file and environment variables
// Environment variables take precedence over file configuration
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := loadFromFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// No default tags: unset variables leave file and default values alone.
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)

	return decoder.Decode(cfg)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	ws, err := url.Parse(c.Server.WebsocketURL)
	if err != nil || (ws.Scheme != "ws" && ws.Scheme != "wss") || ws.Host == "" {
		return fmt.Errorf("invalid websocket url: %q", c.Server.WebsocketURL)
	}

	api, err := url.Parse(c.Server.APIURL)
	if err != nil || (api.Scheme != "http" && api.Scheme != "https") || api.Host == "" {
		return fmt.Errorf("invalid api url: %q", c.Server.APIURL)
	}

	if c.Client.TypingTimeout <= 0 {
		return fmt.Errorf("typing timeout must be positive")
	}
	if c.Client.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.Client.PageRateLimit <= 0 || c.Client.PageBurst <= 0 {
		return fmt.Errorf("page rate limit and burst must be positive")
	}

	if c.Reconnect.InitialInterval <= 0 || c.Reconnect.MaxInterval < c.Reconnect.InitialInterval {
		return fmt.Errorf("invalid reconnect intervals: initial %s, max %s",
			c.Reconnect.InitialInterval, c.Reconnect.MaxInterval)
	}

	if c.Store.Path == "" {
		return fmt.Errorf("store path is required")
	}

	if c.API.Listen == "" {
		return fmt.Errorf("api listen address is required")
	}

	return nil
}
