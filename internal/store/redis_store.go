package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/supportbot/chatwidget-go/internal/model"
	"go.uber.org/zap"
)

// RedisStore 以 JSON 字符串保存在 Redis 键 <prefix><customerID> 下
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisStore 创建 Redis 存储
func NewRedisStore(client *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, logger: logger}
}

func (s *RedisStore) key(customerID string) string {
	return s.prefix + customerID
}

// Load 读取历史消息
func (s *RedisStore) Load(ctx context.Context, customerID string) ([]model.Message, error) {
	data, err := s.client.Get(ctx, s.key(customerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取 Redis 历史记录失败: %w", err)
	}
	return decode(data)
}

// Save 保存历史消息
func (s *RedisStore) Save(ctx context.Context, customerID string, msgs []model.Message) error {
	data, err := encode(msgs)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(customerID), data, 0).Err(); err != nil {
		return fmt.Errorf("写入 Redis 历史记录失败: %w", err)
	}
	s.logger.Debug("历史记录已保存", zap.String("key", s.key(customerID)), zap.Int("count", len(msgs)))
	return nil
}

// Clear 删除历史消息
func (s *RedisStore) Clear(ctx context.Context, customerID string) error {
	if err := s.client.Del(ctx, s.key(customerID)).Err(); err != nil {
		return fmt.Errorf("删除 Redis 历史记录失败: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接
func (s *RedisStore) Close() error {
	return s.client.Close()
}
