package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gpt-vpn-tgbot-go/internal/config"
	"github.com/gpt-vpn-tgbot-go/internal/models"
	"github.com/sirupsen/logrus"
)

// userStateTTL bounds how long a half-finished dialog flag survives
const userStateTTL = time.Hour

// RedisStorage implements storage using Redis
type RedisStorage struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisStorage(cfg *config.RedisConfig, logger *logrus.Logger) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStorageWithClient(client, logger), nil
}

// NewRedisStorageWithClient wraps an existing client
func NewRedisStorageWithClient(client *redis.Client, logger *logrus.Logger) *RedisStorage {
	return &RedisStorage{client: client, logger: logger}
}

func (r *RedisStorage) GetPurchase(ctx context.Context, userID int64) (*models.PurchaseSession, error) {
	data, err := r.client.Get(ctx, purchaseKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var session models.PurchaseSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("decode purchase session: %w", err)
	}
	return &session, nil
}

func (r *RedisStorage) SavePurchase(ctx context.Context, session *models.PurchaseSession, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, purchaseKey(session.UserID), data, ttl).Err()
}

func (r *RedisStorage) DeletePurchase(ctx context.Context, userID int64) error {
	return r.client.Del(ctx, purchaseKey(userID)).Err()
}

func (r *RedisStorage) GetUserState(ctx context.Context, userID int64, key string) (string, error) {
	value, err := r.client.Get(ctx, userStateKey(userID, key)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return value, err
}

func (r *RedisStorage) SetUserState(ctx context.Context, userID int64, key string, value string) error {
	return r.client.Set(ctx, userStateKey(userID, key), value, userStateTTL).Err()
}

func (r *RedisStorage) DeleteUserState(ctx context.Context, userID int64, key string) error {
	return r.client.Del(ctx, userStateKey(userID, key)).Err()
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}
