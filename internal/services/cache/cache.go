package cache

import (
	"context"
	"time"

	"github.com/gpt-vpn-tgbot-go/internal/config"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Service caches resolved Telegram file URLs by file id
type Service interface {
	Get(ctx context.Context, fileID string) (string, bool)
	Set(ctx context.Context, fileID, url string) error
	Clear(ctx context.Context) error
}

type entry struct {
	URL       string
	CreatedAt time.Time
}

// Cache implements Service on top of go-cache
type Cache struct {
	enabled bool
	cache   *cache.Cache
	logger  *logrus.Logger
	maxSize int
}

// NewCache creates a new cache service
func NewCache(cfg *config.FileCacheConfig, logger *logrus.Logger) Service {
	if !cfg.Enabled {
		return &Cache{enabled: false}
	}

	return &Cache{
		enabled: true,
		cache:   cache.New(cfg.TTL, cfg.TTL*2),
		logger:  logger,
		maxSize: cfg.MaxSize,
	}
}

// Get retrieves a cached url
func (c *Cache) Get(ctx context.Context, fileID string) (string, bool) {
	if !c.enabled {
		return "", false
	}

	val, found := c.cache.Get(fileID)
	if !found {
		return "", false
	}
	e := val.(*entry)
	c.logger.WithFields(logrus.Fields{
		"file_id": fileID,
		"age":     time.Since(e.CreatedAt),
	}).Debug("File url cache hit")
	return e.URL, true
}

// Set stores a resolved url
func (c *Cache) Set(ctx context.Context, fileID, url string) error {
	if !c.enabled {
		return nil
	}

	if c.maxSize > 0 && c.cache.ItemCount() >= c.maxSize {
		c.logger.Warn("File url cache size limit reached, clearing expired entries")
		c.cache.DeleteExpired()
		if c.cache.ItemCount() >= c.maxSize {
			c.cache.Flush()
		}
	}

	c.cache.SetDefault(fileID, &entry{URL: url, CreatedAt: time.Now()})
	return nil
}

// Clear removes all cached entries
func (c *Cache) Clear(ctx context.Context) error {
	if !c.enabled {
		return nil
	}

	c.cache.Flush()
	c.logger.Info("File url cache cleared")
	return nil
}
