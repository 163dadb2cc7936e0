package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/gpt-vpn-tgbot-go/internal/config"
	"github.com/gpt-vpn-tgbot-go/internal/middleware"
	"github.com/gpt-vpn-tgbot-go/internal/models"
	"github.com/sirupsen/logrus"
)

// User state keys
const (
	StateAwaitingBroadcast = "awaiting_broadcast"
)

// Storage interface defines per-user state operations
type Storage interface {
	// Purchase flow context. A missing session yields nil without error.
	GetPurchase(ctx context.Context, userID int64) (*models.PurchaseSession, error)
	SavePurchase(ctx context.Context, session *models.PurchaseSession, ttl time.Duration) error
	DeletePurchase(ctx context.Context, userID int64) error

	// Small string flags such as "awaiting broadcast text"
	GetUserState(ctx context.Context, userID int64, key string) (string, error)
	SetUserState(ctx context.Context, userID int64, key string, value string) error
	DeleteUserState(ctx context.Context, userID int64, key string) error

	Close() error
}

// Manager delegates to a storage backend and records operation metrics
type Manager struct {
	storage     Storage
	purchaseTTL time.Duration
	metrics     *middleware.Metrics
	logger      *logrus.Logger
}

// NewManager creates a new storage manager for the configured backend
func NewManager(cfg *config.StorageConfig, metrics *middleware.Metrics, logger *logrus.Logger) (*Manager, error) {
	var storage Storage

	switch cfg.Type {
	case "redis":
		redisStorage, err := NewRedisStorage(&cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		storage = redisStorage
	case "memory":
		storage = NewMemoryStorage(&cfg.Memory, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}

	return NewManagerWith(storage, cfg.PurchaseTTL, metrics, logger), nil
}

// NewManagerWith wraps an existing backend
func NewManagerWith(storage Storage, purchaseTTL time.Duration, metrics *middleware.Metrics, logger *logrus.Logger) *Manager {
	return &Manager{
		storage:     storage,
		purchaseTTL: purchaseTTL,
		metrics:     metrics,
		logger:      logger,
	}
}

func (m *Manager) observe(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.logger.WithError(err).WithField("operation", op).Error("Storage operation failed")
	}
	m.metrics.RecordStorageOperation(op, status, time.Since(start))
}

func (m *Manager) GetPurchase(ctx context.Context, userID int64) (*models.PurchaseSession, error) {
	start := time.Now()
	session, err := m.storage.GetPurchase(ctx, userID)
	m.observe("get_purchase", start, err)
	return session, err
}

func (m *Manager) SavePurchase(ctx context.Context, session *models.PurchaseSession) error {
	start := time.Now()
	err := m.storage.SavePurchase(ctx, session, m.purchaseTTL)
	m.observe("save_purchase", start, err)
	return err
}

func (m *Manager) DeletePurchase(ctx context.Context, userID int64) error {
	start := time.Now()
	err := m.storage.DeletePurchase(ctx, userID)
	m.observe("delete_purchase", start, err)
	return err
}

func (m *Manager) GetUserState(ctx context.Context, userID int64, key string) (string, error) {
	start := time.Now()
	value, err := m.storage.GetUserState(ctx, userID, key)
	m.observe("get_user_state", start, err)
	return value, err
}

func (m *Manager) SetUserState(ctx context.Context, userID int64, key string, value string) error {
	start := time.Now()
	err := m.storage.SetUserState(ctx, userID, key, value)
	m.observe("set_user_state", start, err)
	return err
}

func (m *Manager) DeleteUserState(ctx context.Context, userID int64, key string) error {
	start := time.Now()
	err := m.storage.DeleteUserState(ctx, userID, key)
	m.observe("delete_user_state", start, err)
	return err
}

// Close releases the backend
func (m *Manager) Close() error {
	return m.storage.Close()
}

func purchaseKey(userID int64) string {
	return fmt.Sprintf("purchase:%d", userID)
}

func userStateKey(userID int64, key string) string {
	return fmt.Sprintf("user_state:%d:%s", userID, key)
}
