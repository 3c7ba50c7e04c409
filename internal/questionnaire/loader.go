package questionnaire

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultFetchTimeout = 15 * time.Second
	maxDocumentSize     = 5 << 20 // 5MB
)

// Source fetches the raw bytes of a questionnaire document.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	String() string
}

// HTTPSource fetches the document with a single GET request.
type HTTPSource struct {
	URL        string
	HTTPClient *http.Client
}

func NewHTTPSource(url string, httpClient *http.Client) *HTTPSource {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultFetchTimeout}
	}
	return &HTTPSource{URL: url, HTTPClient: httpClient}
}

func (s *HTTPSource) String() string { return s.URL }

func (s *HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return body, nil
}

// FileSource reads the document from disk. YAML files are converted to JSON
// so both formats go through the same decoder.
type FileSource struct {
	Path string
}

func (s *FileSource) String() string { return s.Path }

func (s *FileSource) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.Path, err)
	}
	switch strings.ToLower(filepath.Ext(s.Path)) {
	case ".yaml", ".yml":
		return yamlToJSON(data)
	default:
		return data, nil
	}
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("converting YAML: %w", err)
	}
	return out, nil
}

// SourceFor picks an HTTPSource for http(s) locations and a FileSource otherwise.
func SourceFor(location string, httpClient *http.Client) Source {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return NewHTTPSource(location, httpClient)
	}
	return &FileSource{Path: strings.TrimPrefix(location, "file://")}
}

// Loader turns a Source into a validated Config.
type Loader struct {
	source Source
	logger *slog.Logger
}

func NewLoader(source Source) *Loader {
	return &Loader{source: source, logger: slog.Default()}
}

// Load performs one fetch. Any failure is returned as a *ConfigError.
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	data, err := l.source.Fetch(ctx)
	if err != nil {
		return nil, &ConfigError{Source: l.source.String(), Reason: "fetch failed", Err: err}
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, &ConfigError{Source: l.source.String(), Reason: "invalid document", Err: err}
	}

	l.logger.Debug("questionnaire loaded",
		"source", l.source.String(),
		"sections", len(cfg.Sections),
		"questions", cfg.QuestionCount(),
	)
	return cfg, nil
}
