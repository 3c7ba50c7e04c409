package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kalambet/intake/internal/questionnaire"
)

// ConfigLoader is satisfied by *questionnaire.Loader.
type ConfigLoader interface {
	Load(ctx context.Context) (*questionnaire.Config, error)
}

// ConfigCache shares one loaded questionnaire between sessions. Concurrent
// misses are collapsed into a single fetch. A failed fetch is never cached.
type ConfigCache struct {
	loader ConfigLoader
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
	group  singleflight.Group

	mu       sync.RWMutex
	cfg      *questionnaire.Config
	loadedAt time.Time
}

// NewConfigCache keeps a loaded document for ttl. A ttl of zero keeps it
// until Invalidate is called.
func NewConfigCache(loader ConfigLoader, ttl time.Duration) *ConfigCache {
	return &ConfigCache{
		loader: loader,
		ttl:    ttl,
		now:    time.Now,
		logger: slog.Default(),
	}
}

// Get returns the cached document, loading it when absent or expired.
func (c *ConfigCache) Get(ctx context.Context) (*questionnaire.Config, error) {
	if cfg := c.cached(); cfg != nil {
		return cfg, nil
	}

	v, err, shared := c.group.Do("config", func() (any, error) {
		if cfg := c.cached(); cfg != nil {
			return cfg, nil
		}
		// The load is shared: one caller going away must not fail the others.
		cfg, err := c.loader.Load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cfg = cfg
		c.loadedAt = c.now()
		c.mu.Unlock()
		return cfg, nil
	})
	if err != nil {
		c.logger.Warn("loading questionnaire", "error", err)
		return nil, err
	}
	if shared {
		c.logger.Debug("questionnaire load shared between callers")
	}
	return v.(*questionnaire.Config), nil
}

func (c *ConfigCache) cached() *questionnaire.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cfg == nil {
		return nil
	}
	if c.ttl > 0 && c.now().Sub(c.loadedAt) >= c.ttl {
		return nil
	}
	return c.cfg
}

// Invalidate drops the cached document; the next Get reloads it.
func (c *ConfigCache) Invalidate() {
	c.mu.Lock()
	c.cfg = nil
	c.mu.Unlock()
}
