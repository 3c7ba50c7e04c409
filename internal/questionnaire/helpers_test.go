package questionnaire

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T) *Config {
	t.Helper()
	data, err := os.ReadFile("testdata/questionnaire.json")
	require.NoError(t, err)
	cfg, err := Parse(data)
	require.NoError(t, err)
	return cfg
}

func mustParse(t *testing.T, doc string) *Config {
	t.Helper()
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)
	return cfg
}

func section(t *testing.T, cfg *Config, id string) Section {
	t.Helper()
	for _, s := range cfg.Sections {
		if s.ID == id {
			return s
		}
	}
	t.Fatalf("section %q not found", id)
	return Section{}
}
