package middleware

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gpt-vpn-tgbot-go/internal/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimiter interface for rate limiting
type RateLimiter interface {
	Allow(userID int64) bool
	Reset(userID int64)
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// UserRateLimiter implements per-user rate limiting
type UserRateLimiter struct {
	enabled  bool
	limiters map[int64]*userLimiter
	mu       sync.Mutex
	rpm      int
	burst    int
	idleTTL  time.Duration
	logger   *logrus.Logger
	metrics  *Metrics
	now      func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg *config.RateLimitConfig, metrics *Metrics, logger *logrus.Logger) *UserRateLimiter {
	if !cfg.Enabled {
		return &UserRateLimiter{enabled: false}
	}

	return &UserRateLimiter{
		enabled:  true,
		limiters: make(map[int64]*userLimiter),
		rpm:      cfg.RequestsPerMinute,
		burst:    cfg.Burst,
		idleTTL:  time.Hour,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Allow checks if a user is allowed to make a request
func (r *UserRateLimiter) Allow(userID int64) bool {
	if !r.enabled {
		return true
	}

	allowed := r.getLimiter(userID).Allow()
	if !allowed {
		r.metrics.RecordRateLimitExceeded()
		r.logger.WithField("user_id", userID).Warn("Rate limit exceeded")
	}
	return allowed
}

// Reset resets the rate limiter for a user
func (r *UserRateLimiter) Reset(userID int64) {
	if !r.enabled {
		return
	}

	r.mu.Lock()
	delete(r.limiters, userID)
	r.mu.Unlock()
}

func (r *UserRateLimiter) getLimiter(userID int64) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ul, ok := r.limiters[userID]; ok {
		ul.lastSeen = r.now()
		return ul.limiter
	}

	// Rate per second = RPM / 60
	rps := float64(r.rpm) / 60.0
	ul := &userLimiter{limiter: rate.NewLimiter(rate.Limit(rps), r.burst), lastSeen: r.now()}
	r.limiters[userID] = ul
	return ul.limiter
}

// Cleanup drops limiters that have been idle longer than the idle TTL
// and returns how many were removed.
func (r *UserRateLimiter) Cleanup() int {
	if !r.enabled {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	cutoff := r.now().Add(-r.idleTTL)
	for id, ul := range r.limiters {
		if ul.lastSeen.Before(cutoff) {
			delete(r.limiters, id)
			removed++
		}
	}
	return removed
}

// SecurityMiddleware provides input checks
type SecurityMiddleware struct {
	logger *logrus.Logger
}

// NewSecurityMiddleware creates security middleware
func NewSecurityMiddleware(logger *logrus.Logger) *SecurityMiddleware {
	return &SecurityMiddleware{
		logger: logger,
	}
}

// ValidateInput rejects prompts the provider or the chat platform cannot take
func (s *SecurityMiddleware) ValidateInput(text string) error {
	if !utf8.ValidString(text) {
		return fmt.Errorf("message is not valid UTF-8")
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("message is empty")
	}
	if n := utf8.RuneCountInString(text); n > 4096 {
		return fmt.Errorf("message too long: %d characters", n)
	}
	return nil
}
