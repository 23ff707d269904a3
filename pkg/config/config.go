package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Transport kinds selectable with transport.kind.
const (
	TransportText      = "text"
	TransportAgent     = "agent"
	TransportLangChain = "langchain"
)

// Config represents the application configuration
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Transport TransportConfig `mapstructure:"transport"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Ollama    OllamaConfig    `mapstructure:"ollama"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Chat      ChatConfig      `mapstructure:"chat"`
	ClipLib   ClipLibConfig   `mapstructure:"cliplib"`
	Render    RenderConfig    `mapstructure:"render"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	LogFile  string `mapstructure:"log_file"`
	Preserve bool   `mapstructure:"preserve"`
	Level    string `mapstructure:"level"`
}

type TransportConfig struct {
	Kind string `mapstructure:"kind"`
}

// ProxyConfig points at the proxy serving the raw text stream.
type ProxyConfig struct {
	URL string `mapstructure:"url"`
}

// AgentConfig holds the agent-runtime request settings
type AgentConfig struct {
	URL          string   `mapstructure:"url"`
	IndexID      string   `mapstructure:"index_id"`
	Version      string   `mapstructure:"version"`
	IncludeTypes []string `mapstructure:"include_types"`
	IncludeNames []string `mapstructure:"include_names"`
	ReplyNodes   []string `mapstructure:"reply_nodes"`
}

// OllamaConfig holds Ollama-specific configuration
type OllamaConfig struct {
	URL        string        `mapstructure:"url"`
	Model      string        `mapstructure:"model"`
	Timeout    time.Duration `mapstructure:"-"`
	TimeoutStr string        `mapstructure:"timeout"` // For parsing string duration
}

type StreamConfig struct {
	IdleTimeout    time.Duration `mapstructure:"-"`
	IdleTimeoutStr string        `mapstructure:"idle_timeout"`
}

type ChatConfig struct {
	WelcomeMessage string `mapstructure:"welcome_message"`
}

// ClipLibConfig holds clip recall index configuration
type ClipLibConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	EmbeddingModel string `mapstructure:"embedding_model"`
	Results        int    `mapstructure:"results"`
}

type RenderConfig struct {
	HighlightJSON bool `mapstructure:"highlight_json"`
}

// EnvPrefix prefixes every environment variable the config reads.
const EnvPrefix = "VIDCHAT"

var (
	// Global config instance
	cfg *Config
)

// Get returns the global config instance
func Get() *Config {
	if cfg == nil {
		panic("config not initialized")
	}
	return cfg
}

// Load loads configuration from file and environment
func Load(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}

		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome == "" {
			xdgConfigHome = filepath.Join(home, ".config")
		}

		viper.AddConfigPath("./.vidchat") // Check project directory first
		viper.AddConfigPath(filepath.Join(xdgConfigHome, ".vidchat"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("settings.yaml")
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	bindEnvironmentVariables()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	loaded := &Config{}
	if err := viper.Unmarshal(loaded); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// viper doesn't decode our string durations directly
	if err := processDurations(loaded); err != nil {
		return nil, fmt.Errorf("failed to process durations: %w", err)
	}

	if err := validate(loaded); err != nil {
		return nil, err
	}

	cfg = loaded
	return cfg, nil
}

// setDefaults sets all default configuration values
func setDefaults() {
	viper.SetDefault("logging.log_file", "./.vidchat/system.log")
	viper.SetDefault("logging.preserve", false)
	viper.SetDefault("logging.level", "info")

	viper.SetDefault("transport.kind", TransportAgent)
	viper.SetDefault("proxy.url", "http://localhost:5000")

	viper.SetDefault("agent.url", "http://localhost:2024")
	viper.SetDefault("agent.index_id", "")
	viper.SetDefault("agent.version", "v1")
	viper.SetDefault("agent.include_types", []string{"chat_model"})
	viper.SetDefault("agent.include_names", []string{
		"AzureChatOpenAI",
		"video-search",
		"download-video",
		"combine-clips",
		"remove-segment",
	})
	viper.SetDefault("agent.reply_nodes", []string{"reflect"})

	viper.SetDefault("ollama.url", "http://localhost:11434")
	viper.SetDefault("ollama.model", "qwen3:latest")
	viper.SetDefault("ollama.timeout", "90s")

	viper.SetDefault("stream.idle_timeout", "60s")

	viper.SetDefault("chat.welcome_message", "Hi! Ask me to find a moment in your videos.")

	viper.SetDefault("cliplib.enabled", true)
	viper.SetDefault("cliplib.embedding_model", "nomic-embed-text")
	viper.SetDefault("cliplib.results", 5)

	viper.SetDefault("render.highlight_json", false)
}

// bindEnvironmentVariables binds the unprefixed variables the proxy and
// agent deployments already export.
func bindEnvironmentVariables() {
	viper.BindEnv("proxy.url", "VIDCHAT_PROXY_URL", "PROXY_URL")
	viper.BindEnv("agent.url", "VIDCHAT_AGENT_URL", "LANGGRAPH_API_URL")
	viper.BindEnv("agent.index_id", "VIDCHAT_AGENT_INDEX_ID", "INDEX_ID")
	viper.BindEnv("ollama.url", "VIDCHAT_OLLAMA_URL", "OLLAMA_HOST")
}

// processDurations converts string durations to time.Duration
func processDurations(c *Config) error {
	if c.Ollama.TimeoutStr != "" {
		d, err := time.ParseDuration(c.Ollama.TimeoutStr)
		if err != nil {
			return fmt.Errorf("invalid ollama.timeout: %w", err)
		}
		c.Ollama.Timeout = d
	} else if c.Ollama.Timeout == 0 {
		c.Ollama.Timeout = 90 * time.Second
	}

	// An empty or zero idle timeout disables it
	if c.Stream.IdleTimeoutStr != "" {
		d, err := time.ParseDuration(c.Stream.IdleTimeoutStr)
		if err != nil {
			return fmt.Errorf("invalid stream.idle_timeout: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("invalid stream.idle_timeout: must not be negative")
		}
		c.Stream.IdleTimeout = d
	}

	return nil
}

func validate(c *Config) error {
	switch c.Transport.Kind {
	case TransportText, TransportAgent, TransportLangChain:
	default:
		return fmt.Errorf("invalid transport.kind %q: want %s, %s or %s",
			c.Transport.Kind, TransportText, TransportAgent, TransportLangChain)
	}
	if c.ClipLib.Results <= 0 {
		c.ClipLib.Results = 5
	}
	return nil
}

// GetConfigFileUsed returns the path to the config file being used
func GetConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

// Set replaces the global config, for callers that build one in code.
func Set(c *Config) {
	cfg = c
}
