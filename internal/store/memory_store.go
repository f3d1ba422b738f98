package store

import (
	"context"
	"sync"

	"github.com/supportbot/chatwidget-go/internal/model"
	"go.uber.org/zap"
)

// MemoryStore 内存存储（测试和单进程演示用）
type MemoryStore struct {
	records map[string][]model.Message
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewMemoryStore 创建内存存储
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		records: make(map[string][]model.Message),
		logger:  logger,
	}
}

// Load 读取历史消息
func (s *MemoryStore) Load(ctx context.Context, customerID string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.CloneMessages(s.records[customerID]), nil
}

// Save 保存历史消息
func (s *MemoryStore) Save(ctx context.Context, customerID string, msgs []model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[customerID] = model.CloneMessages(msgs)
	s.logger.Debug("历史记录已保存", zap.String("customerId", customerID), zap.Int("count", len(msgs)))
	return nil
}

// Clear 删除历史消息
func (s *MemoryStore) Clear(ctx context.Context, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, customerID)
	return nil
}

// Close 实现 HistoryStore
func (s *MemoryStore) Close() error {
	return nil
}
