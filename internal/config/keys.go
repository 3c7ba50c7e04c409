package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

// keySpec binds a dotted config key to its environment variable and to the
// Config field it sets. field returns a *string or an *int.
type keySpec struct {
	key    string
	env    string
	secret bool
	field  func(cfg *Config) any
}

var specs = []keySpec{
	{key: "server.port", env: "INTAKE_SERVER_PORT", field: func(c *Config) any { return &c.Server.Port }},
	{key: "questionnaire.source", env: "INTAKE_QUESTIONNAIRE_SOURCE", field: func(c *Config) any { return &c.Questionnaire.Source }},
	{key: "matching.base_url", env: "INTAKE_MATCHING_BASE_URL", field: func(c *Config) any { return &c.Matching.BaseURL }},
	{key: "matching.api_key", env: "INTAKE_MATCHING_API_KEY", secret: true, field: func(c *Config) any { return &c.Matching.APIKey }},
	{key: "matching.timeout", env: "INTAKE_MATCHING_TIMEOUT", field: func(c *Config) any { return &c.Matching.Timeout }},
	{key: "storage.data_dir", env: "INTAKE_STORAGE_DATA_DIR", field: func(c *Config) any { return &c.Storage.DataDir }},
	{key: "log.level", env: "INTAKE_LOG_LEVEL", field: func(c *Config) any { return &c.Log.Level }},
	{key: "export.s3_bucket", env: "INTAKE_EXPORT_S3_BUCKET", field: func(c *Config) any { return &c.Export.S3Bucket }},
	{key: "export.s3_region", env: "INTAKE_EXPORT_S3_REGION", field: func(c *Config) any { return &c.Export.S3Region }},
	{key: "export.s3_prefix", env: "INTAKE_EXPORT_S3_PREFIX", field: func(c *Config) any { return &c.Export.S3Prefix }},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

func (s keySpec) isInt() bool {
	var cfg Config
	_, ok := s.field(&cfg).(*int)
	return ok
}

// set parses raw into the field of cfg.
func (s keySpec) set(cfg *Config, raw string) error {
	switch p := s.field(cfg).(type) {
	case *string:
		*p = raw
	case *int:
		i, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %w", s.key, err)
		}
		*p = i
	}
	return nil
}

func (s keySpec) get(cfg Config) string {
	switch p := s.field(&cfg).(type) {
	case *string:
		return *p
	case *int:
		return strconv.Itoa(*p)
	}
	return ""
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch p := s.field(cfg).(type) {
		case *string:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				*p = v
			}
		case *int:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				*p = v
			}
		}
	}
	return nil
}

// applyEnvOverrides lets INTAKE_* variables win over the file. A value that
// does not parse is ignored with a warning.
func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		if err := s.set(cfg, raw); err != nil {
			slog.Warn("ignoring environment override", "env", s.env, "error", err)
		}
	}
}
