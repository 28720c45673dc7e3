// Package config assembles run configuration from defaults, an optional YAML
// file, a .env file and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/shpitdev/pds-validator/internal/classify"
	"github.com/shpitdev/pds-validator/internal/fetch"
)

type Search struct {
	APIKey   string `yaml:"api_key"`
	EngineID string `yaml:"engine_id"`
	BaseURL  string `yaml:"base_url"`
}

type Classifier struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`

	OpenAIAPIKey    string `yaml:"openai_api_key"`
	GeminiAPIKey    string `yaml:"gemini_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
}

type Fetch struct {
	Timeout     time.Duration `yaml:"timeout"`
	UserAgent   string        `yaml:"user_agent"`
	InsecureTLS bool          `yaml:"insecure_tls"`
}

type Pipeline struct {
	RowInterval    time.Duration `yaml:"row_interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type Config struct {
	OutputDir     string `yaml:"output_dir"`
	HistoryDB     string `yaml:"history_db"`
	SkipValidated bool   `yaml:"skip_validated"`
	MetricsAddr   string `yaml:"metrics_addr"`

	Search     Search     `yaml:"search"`
	Classifier Classifier `yaml:"classifier"`
	Fetch      Fetch      `yaml:"fetch"`
	Pipeline   Pipeline   `yaml:"pipeline"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		OutputDir: ".",
		Classifier: Classifier{
			Provider: classify.ProviderOpenAI,
		},
		Fetch: Fetch{
			Timeout:     fetch.DefaultTimeout,
			UserAgent:   fetch.DefaultUserAgent,
			InsecureTLS: true,
		},
		Pipeline: Pipeline{
			RowInterval: 500 * time.Millisecond,
		},
	}
}

// Load builds a Config. path may be empty, in which case PDSV_CONFIG is
// consulted. dotenvPath is loaded first (missing file is fine) so its values
// behave like real environment variables; real variables win over it.
// API keys are not validated here.
func Load(path, dotenvPath string) (Config, error) {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", dotenvPath, err)
		}
	}

	cfg := Default()

	if strings.TrimSpace(path) == "" {
		path = strings.TrimSpace(os.Getenv("PDSV_CONFIG"))
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config YAML %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	envString(&cfg.Search.APIKey, "GOOGLE_API_KEY")
	envString(&cfg.Search.EngineID, "CSE_ID")
	envString(&cfg.Search.BaseURL, "PDSV_SEARCH_BASE_URL")

	envString(&cfg.Classifier.OpenAIAPIKey, "OPENAI_API_KEY")
	envString(&cfg.Classifier.GeminiAPIKey, "GEMINI_API_KEY")
	envString(&cfg.Classifier.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envString(&cfg.Classifier.Provider, "PDSV_PROVIDER")
	envString(&cfg.Classifier.Model, "PDSV_MODEL")
	envString(&cfg.Classifier.BaseURL, "PDSV_MODEL_BASE_URL")

	envString(&cfg.OutputDir, "PDSV_OUTPUT_DIR")

	interval, err := envDuration("PDSV_ROW_INTERVAL", cfg.Pipeline.RowInterval)
	if err != nil {
		return err
	}
	cfg.Pipeline.RowInterval = interval

	insecure, err := envBool("PDSV_INSECURE_TLS", cfg.Fetch.InsecureTLS)
	if err != nil {
		return err
	}
	cfg.Fetch.InsecureTLS = insecure
	return nil
}

// Validate checks values that would make a run meaningless. Missing API keys
// are not an error; they fail per row.
func (c Config) Validate() error {
	if c.Pipeline.RowInterval < 0 {
		return fmt.Errorf("pipeline.row_interval must be >= 0, got %s", c.Pipeline.RowInterval)
	}
	if c.Fetch.Timeout < 0 {
		return fmt.Errorf("fetch.timeout must be >= 0, got %s", c.Fetch.Timeout)
	}
	switch strings.ToLower(strings.TrimSpace(c.Classifier.Provider)) {
	case "", classify.ProviderOpenAI, classify.ProviderGemini, classify.ProviderAnthropic:
	default:
		return fmt.Errorf("unknown classifier.provider %q", c.Classifier.Provider)
	}
	if c.SkipValidated && strings.TrimSpace(c.HistoryDB) == "" {
		return errors.New("skip_validated requires history_db")
	}
	return nil
}

// Backend returns the completion backend settings for the selected provider.
func (c Config) Backend() classify.BackendConfig {
	provider := strings.ToLower(strings.TrimSpace(c.Classifier.Provider))
	key := c.Classifier.OpenAIAPIKey
	switch provider {
	case classify.ProviderGemini:
		key = c.Classifier.GeminiAPIKey
	case classify.ProviderAnthropic:
		key = c.Classifier.AnthropicAPIKey
	}
	return classify.BackendConfig{
		Provider: provider,
		APIKey:   key,
		Model:    c.Classifier.Model,
		BaseURL:  c.Classifier.BaseURL,
	}
}

func envString(dst *string, varName string) {
	if v := strings.TrimSpace(os.Getenv(varName)); v != "" {
		*dst = v
	}
}

func envDuration(varName string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envBool(varName string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}
