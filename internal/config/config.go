// Package config holds the application settings of the intake tool: where
// the questionnaire comes from, where profiles are submitted, and where
// history is stored. The questionnaire document itself is not configuration.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server        ServerConfig
	Questionnaire QuestionnaireConfig
	Matching      MatchingConfig
	Storage       StorageConfig
	Log           LogConfig
	Export        ExportConfig
}

type ServerConfig struct {
	Port int
}

type QuestionnaireConfig struct {
	// Source is an http(s) URL or a path to a JSON or YAML document.
	Source string
}

type MatchingConfig struct {
	BaseURL string
	APIKey  string
	Timeout string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type ExportConfig struct {
	S3Bucket string
	S3Region string
	S3Prefix string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{Port: 4100},
		Questionnaire: QuestionnaireConfig{
			Source: "http://localhost:8001/api/questionnaire/config",
		},
		Matching: MatchingConfig{
			BaseURL: "http://localhost:8001/api",
			Timeout: "30s",
		},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Log:     LogConfig{Level: "info"},
		Export: ExportConfig{
			S3Region: "eu-west-3",
			S3Prefix: "submissions/",
		},
	}
}

// Load reads configuration from the JSON backend file, environment variables
// and the secrets file, in increasing order of precedence for each key.
//
// The backend is a JSON file at $XDG_CONFIG_HOME/intake/config.json; secrets
// live in $XDG_DATA_HOME/intake/secrets.json. Environment variables (INTAKE_*)
// override both.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), NewFileSecrets())
}

func loadWith(b ConfigBackend, secrets SecretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Matching.APIKey == "" {
		if key, err := secrets.Get(secretService, accountMatchingKey); err == nil && key != "" {
			cfg.Matching.APIKey = key
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port %d out of range", c.Server.Port)
	}
	if c.Questionnaire.Source == "" {
		return fmt.Errorf("missing required config: questionnaire.source. Set it via environment variable INTAKE_QUESTIONNAIRE_SOURCE")
	}
	u, err := url.Parse(c.Matching.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid config: matching.base_url %q is not an absolute URL", c.Matching.BaseURL)
	}
	if _, err := time.ParseDuration(c.Matching.Timeout); err != nil {
		return fmt.Errorf("invalid config: matching.timeout: %w", err)
	}
	return nil
}

// MatchingTimeout is the parsed matching.timeout.
func (c Config) MatchingTimeout() time.Duration {
	d, err := time.ParseDuration(c.Matching.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// SlogLevel maps log.level to a slog level; unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadDotEnv loads KEY=value pairs from the given files (default ".env") into
// the environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !isNotExist(err) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}
