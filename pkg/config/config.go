// Package config loads settings from defaults, an optional YAML file, the environment and flags, in that order
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sealor/pharmacy-agent/pkg/logging"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

var defaultModels = map[string]string{
	ProviderOpenAI:    "gpt-5",
	ProviderAnthropic: "claude-sonnet-4-5",
}

type Config struct {
	Provider        string        `yaml:"provider"`
	Model           string        `yaml:"model"`
	APIURL          string        `yaml:"api_url"`
	APIKey          string        `yaml:"-"`
	DBPath          string        `yaml:"db_path"`
	MaxRounds       int           `yaml:"max_rounds"`
	ModelTimeout    time.Duration `yaml:"model_timeout"`
	TurnTimeout     time.Duration `yaml:"turn_timeout"`
	MaxOutputTokens int64         `yaml:"max_output_tokens"`
	LogLevel        string        `yaml:"log_level"`
	HTTPAddr        string        `yaml:"http_addr"`
	SessionFile     string        `yaml:"session_file"`
	DebugHTTP       bool          `yaml:"debug_http"`
}

func Default() Config {
	return Config{
		Provider:        ProviderOpenAI,
		DBPath:          "pharmacy.db",
		MaxRounds:       8,
		ModelTimeout:    60 * time.Second,
		TurnTimeout:     3 * time.Minute,
		MaxOutputTokens: 2048,
		LogLevel:        "info",
		HTTPAddr:        ":8080",
	}
}

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(string) (string, bool)

func GetEnv(lookup LookupFunc, name, fallback string) string {
	value, ok := lookup(name)
	if ok {
		return value
	} else {
		return fallback
	}
}

// Load reads the optional YAML file at path over the defaults and then applies the environment.
func Load(path string, lookup LookupFunc) (Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, err
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
			return c, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := c.applyEnv(lookup); err != nil {
		return c, err
	}
	return c, nil
}

func (c *Config) applyEnv(lookup LookupFunc) error {
	c.Provider = GetEnv(lookup, "PHARMACY_PROVIDER", c.Provider)
	c.Model = GetEnv(lookup, "PHARMACY_MODEL", c.Model)
	c.APIURL = GetEnv(lookup, "OPENAI_URL", c.APIURL)
	c.APIURL = GetEnv(lookup, "PHARMACY_API_URL", c.APIURL)
	c.DBPath = GetEnv(lookup, "PHARMACY_DB_PATH", c.DBPath)
	c.LogLevel = GetEnv(lookup, "PHARMACY_LOG_LEVEL", c.LogLevel)
	c.HTTPAddr = GetEnv(lookup, "PHARMACY_HTTP_ADDR", c.HTTPAddr)
	c.SessionFile = GetEnv(lookup, "PHARMACY_SESSION_FILE", c.SessionFile)

	if v, ok := lookup("PHARMACY_MAX_ROUNDS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PHARMACY_MAX_ROUNDS: %w", err)
		}
		c.MaxRounds = n
	}
	if v, ok := lookup("PHARMACY_TURN_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PHARMACY_TURN_TIMEOUT: %w", err)
		}
		c.TurnTimeout = d
	}
	if v, ok := lookup("PHARMACY_MODEL_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PHARMACY_MODEL_TIMEOUT: %w", err)
		}
		c.ModelTimeout = d
	}
	return nil
}

// Complete fills what depends on the final provider: the API key and the default model.
func (c *Config) Complete(lookup LookupFunc) {
	if c.APIKey == "" {
		switch c.Provider {
		case ProviderOpenAI:
			c.APIKey = GetEnv(lookup, "OPENAI_API_KEY", "")
		case ProviderAnthropic:
			c.APIKey = GetEnv(lookup, "ANTHROPIC_API_KEY", "")
		}
	}
	if c.Model == "" {
		c.Model = defaultModels[c.Provider]
	}
}

func (c Config) Validate() error {
	var problems []string
	if _, ok := defaultModels[c.Provider]; !ok {
		problems = append(problems, fmt.Sprintf("unknown provider %q", c.Provider))
	}
	if strings.TrimSpace(c.Model) == "" {
		problems = append(problems, "model is empty")
	}
	if strings.TrimSpace(c.DBPath) == "" {
		problems = append(problems, "db_path is empty")
	}
	if c.MaxRounds <= 0 {
		problems = append(problems, "max_rounds must be positive")
	}
	if c.ModelTimeout <= 0 {
		problems = append(problems, "model_timeout must be positive")
	}
	if c.TurnTimeout <= 0 {
		problems = append(problems, "turn_timeout must be positive")
	}
	if c.MaxOutputTokens <= 0 {
		problems = append(problems, "max_output_tokens must be positive")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}
