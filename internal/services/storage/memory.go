package storage

import (
	"context"
	"time"

	"github.com/gpt-vpn-tgbot-go/internal/config"
	"github.com/gpt-vpn-tgbot-go/internal/models"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// MemoryStorage implements storage using in-memory cache
type MemoryStorage struct {
	purchases  *cache.Cache
	userStates *cache.Cache
	logger     *logrus.Logger
}

func NewMemoryStorage(cfg *config.MemoryConfig, logger *logrus.Logger) *MemoryStorage {
	return &MemoryStorage{
		purchases:  cache.New(cfg.DefaultExpiration, cfg.CleanupInterval),
		userStates: cache.New(userStateTTL, 10*time.Minute),
		logger:     logger,
	}
}

func (m *MemoryStorage) GetPurchase(ctx context.Context, userID int64) (*models.PurchaseSession, error) {
	if val, found := m.purchases.Get(purchaseKey(userID)); found {
		// copy so callers never mutate the stored value
		session := *val.(*models.PurchaseSession)
		if session.Pending != nil {
			pending := *session.Pending
			session.Pending = &pending
		}
		return &session, nil
	}
	return nil, nil
}

func (m *MemoryStorage) SavePurchase(ctx context.Context, session *models.PurchaseSession, ttl time.Duration) error {
	stored := *session
	if session.Pending != nil {
		pending := *session.Pending
		stored.Pending = &pending
	}
	if ttl <= 0 {
		ttl = cache.DefaultExpiration
	}
	m.purchases.Set(purchaseKey(session.UserID), &stored, ttl)
	return nil
}

func (m *MemoryStorage) DeletePurchase(ctx context.Context, userID int64) error {
	m.purchases.Delete(purchaseKey(userID))
	return nil
}

func (m *MemoryStorage) GetUserState(ctx context.Context, userID int64, key string) (string, error) {
	if val, found := m.userStates.Get(userStateKey(userID, key)); found {
		return val.(string), nil
	}
	return "", nil
}

func (m *MemoryStorage) SetUserState(ctx context.Context, userID int64, key string, value string) error {
	m.userStates.SetDefault(userStateKey(userID, key), value)
	return nil
}

func (m *MemoryStorage) DeleteUserState(ctx context.Context, userID int64, key string) error {
	m.userStates.Delete(userStateKey(userID, key))
	return nil
}

func (m *MemoryStorage) Close() error {
	m.purchases.Flush()
	m.userStates.Flush()
	return nil
}
