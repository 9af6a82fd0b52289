package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/comigor/mentor-go/internal/history"
)

var (
	ErrMissingAPIKey      = errors.New("llm api key is required (set GOOGLE_API_KEY)")
	ErrInvalidTemperature = errors.New("llm temperature must be within [0,1]")
)

// Config holds the application configuration
type Config struct {
	LLM     LLMConfig     `mapstructure:"llm"`
	Mentor  MentorConfig  `mapstructure:"mentor"`
	Server  ServerConfig  `mapstructure:"server"`
	History HistoryConfig `mapstructure:"history"`
	Log     LogConfig     `mapstructure:"log"`
}

// LLMConfig holds the LLM configuration
type LLMConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
	// ModelsURL is the root of the native REST API used for model listing.
	ModelsURL string `mapstructure:"models_url"`
}

// MentorConfig holds the assistant persona and the scripted demo conversation.
type MentorConfig struct {
	SystemPrompt  string   `mapstructure:"system_prompt"`
	DemoSession   string   `mapstructure:"demo_session"`
	DemoQuestions []string `mapstructure:"demo_questions"`
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// HistoryConfig selects the session history backend ("memory" or "sqlite").
type HistoryConfig struct {
	Backend string `mapstructure:"backend"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const (
	DefaultBaseURL   = "https://generativelanguage.googleapis.com/v1beta/openai/"
	DefaultModelsURL = "https://generativelanguage.googleapis.com"
	DefaultModel     = "gemini-2.0-flash"

	DefaultSystemPrompt = "Você é o 'GeoAI Mentor', um assistente especializado em ajudar geocientistas a migrar para a área de Ciência de Dados. Seja amigável e didático."
	DefaultDemoSession  = "sessao_geocientista_01"
)

// DefaultDemoQuestions is the fixed pair of prompts sent by the demo command.
var DefaultDemoQuestions = []string{
	"Eu sou geofísico e quero migrar para a área de dados. Qual linguagem de programação devo aprender primeiro?",
	"E que tipo de projeto de portfólio eu poderia criar usando essa linguagem?",
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("llm.base_url", DefaultBaseURL)
	v.SetDefault("llm.models_url", DefaultModelsURL)
	v.SetDefault("llm.model", DefaultModel)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.timeout", time.Duration(0))
	v.SetDefault("mentor.system_prompt", DefaultSystemPrompt)
	v.SetDefault("mentor.demo_session", DefaultDemoSession)
	v.SetDefault("mentor.demo_questions", DefaultDemoQuestions)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", "8080")
	v.SetDefault("history.backend", "memory")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Init prepares v for Load: .env loading, defaults, env binding and config
// file lookup. configFile overrides the search path; CONFIG_PATH is honoured
// when it is empty.
func Init(v *viper.Viper, configFile string) error {
	// A missing .env is normal outside development.
	if err := gotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}

	SetDefaults(v)

	v.SetEnvPrefix("MENTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("llm.api_key", "MENTOR_LLM_API_KEY", "GOOGLE_API_KEY"); err != nil {
		return err
	}

	if configFile == "" {
		configFile = os.Getenv("CONFIG_PATH")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/mentor")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load reads configuration from a fresh viper instance.
func Load() (*Config, error) {
	v := viper.New()
	if err := Init(v, ""); err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper unmarshals and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks values that would otherwise fail late, at call time.
func (c Config) Validate() error {
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidTemperature, c.LLM.Temperature)
	}
	switch c.History.Backend {
	case "", "memory", "sqlite":
	default:
		return fmt.Errorf("history.backend: %w: %s", history.ErrUnknownBackend, c.History.Backend)
	}
	return nil
}

// RequireAPIKey is checked by commands that reach the provider.
func (c LLMConfig) RequireAPIKey() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}
