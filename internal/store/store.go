// Package store 持久化访客的历史对话，记录按客户账号 ID 区分，跨页面加载保留。
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/supportbot/chatwidget-go/internal/config"
	"github.com/supportbot/chatwidget-go/internal/model"
	pkgredis "github.com/supportbot/chatwidget-go/pkg/redis"
	"go.uber.org/zap"
)

// ErrCorruptRecord 持久化记录无法解析
var ErrCorruptRecord = errors.New("corrupt history record")

// HistoryStore 历史对话存储。
// 单个挂件实例是唯一写入方，不做跨进程加锁。
// Load 和 Save 都会复制切片，调用方与存储不共享底层数组。
type HistoryStore interface {
	// Load 读取客户账号的历史消息，不存在时返回空
	Load(ctx context.Context, customerID string) ([]model.Message, error)

	// Save 覆盖保存客户账号的历史消息
	Save(ctx context.Context, customerID string, msgs []model.Message) error

	// Clear 删除客户账号的全部历史消息
	Clear(ctx context.Context, customerID string) error

	// Close 释放底层资源
	Close() error
}

// New 根据配置创建存储
func New(ctx context.Context, cfg config.StoreConfig, redisCfg config.RedisConfig, logger *zap.Logger) (HistoryStore, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemoryStore(logger), nil
	case "file", "":
		return NewFileStore(cfg.Dir, cfg.KeyPrefix, logger)
	case "redis":
		client, err := pkgredis.NewRedisClient(ctx, redisCfg)
		if err != nil {
			return nil, err
		}
		return NewRedisStore(client, cfg.KeyPrefix, logger), nil
	case "sqlite":
		return NewSQLiteStore(cfg.SQLitePath, logger)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

func encode(msgs []model.Message) ([]byte, error) {
	if msgs == nil {
		msgs = []model.Message{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return nil, fmt.Errorf("序列化历史记录失败: %w", err)
	}
	return data, nil
}

func decode(data []byte) ([]model.Message, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var msgs []model.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return msgs, nil
}
