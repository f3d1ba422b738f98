package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/supportbot/chatwidget-go/internal/model"
	"go.uber.org/zap"
)

// FileStore 每个客户账号一个 JSON 文件
type FileStore struct {
	dir    string
	prefix string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewFileStore 创建文件存储，目录不存在时自动创建
func NewFileStore(dir, prefix string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建历史记录目录失败: %w", err)
	}
	return &FileStore{dir: dir, prefix: prefix, logger: logger}, nil
}

func (s *FileStore) path(customerID string) string {
	return filepath.Join(s.dir, s.prefix+url.PathEscape(customerID)+".json")
}

// Load 读取历史消息
func (s *FileStore) Load(ctx context.Context, customerID string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(customerID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取历史记录失败: %w", err)
	}
	return decode(data)
}

// Save 先写临时文件再重命名，避免留下半截记录
func (s *FileStore) Save(ctx context.Context, customerID string, msgs []model.Message) error {
	data, err := encode(msgs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.path(customerID)
	tmp, err := os.CreateTemp(s.dir, ".history-*")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("写入历史记录失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("写入历史记录失败: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("保存历史记录失败: %w", err)
	}

	s.logger.Debug("历史记录已保存", zap.String("path", target), zap.Int("count", len(msgs)))
	return nil
}

// Clear 删除历史消息
func (s *FileStore) Clear(ctx context.Context, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(customerID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("删除历史记录失败: %w", err)
	}
	return nil
}

// Close 实现 HistoryStore
func (s *FileStore) Close() error {
	return nil
}
