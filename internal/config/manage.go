package config

import (
	"fmt"
	"strconv"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
	Secret bool
}

// ShowAll returns every config key with its current value. Secret values are
// masked.
func ShowAll(cfg Config) []KeyInfo {
	out := make([]KeyInfo, 0, len(specs))
	for _, s := range specs {
		v := s.get(cfg)
		if s.secret {
			v = mask(v)
		}
		out = append(out, KeyInfo{Key: s.key, EnvVar: s.env, Value: v, Secret: s.secret})
	}
	return out
}

func mask(v string) string {
	switch {
	case v == "":
		return "(not set)"
	case len(v) <= 4:
		return "****"
	}
	return "****" + v[len(v)-4:]
}

// SetKey persists one key. Secrets go to the secrets file instead of the
// config file.
func SetKey(key, value string) error {
	return setKey(newFileBackend(configFilePath()), NewFileSecrets(), key, value)
}

func setKey(b ConfigBackend, secrets SecretStore, key, value string) error {
	s, ok := lookupSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if s.secret {
		return SetMatchingAPIKey(secrets, value)
	}
	if !s.isInt() {
		return b.SetString(key, value)
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer value for %s: %w", key, err)
	}
	return b.SetInt(key, i)
}

// ValidKeys returns the config key names in display order.
func ValidKeys() []string {
	keys := make([]string, len(specs))
	for i, s := range specs {
		keys[i] = s.key
	}
	return keys
}
