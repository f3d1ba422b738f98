package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/supportbot/chatwidget-go/internal/model"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteStore 每个客户账号一行，消息以 JSON 保存
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore 打开（或创建）SQLite 数据库
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("创建数据库目录失败: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS chat_history (
		customer_id TEXT PRIMARY KEY,
		messages_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("创建数据表失败: %w", err)
	}
	return nil
}

// Load 读取历史消息
func (s *SQLiteStore) Load(ctx context.Context, customerID string) ([]model.Message, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT messages_json FROM chat_history WHERE customer_id = ?`, customerID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取历史记录失败: %w", err)
	}
	return decode([]byte(data))
}

// Save 保存历史消息
func (s *SQLiteStore) Save(ctx context.Context, customerID string, msgs []model.Message) error {
	data, err := encode(msgs)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chat_history (customer_id, messages_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(customer_id) DO UPDATE SET
			messages_json = excluded.messages_json,
			updated_at = excluded.updated_at`,
		customerID, string(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("写入历史记录失败: %w", err)
	}

	s.logger.Debug("历史记录已保存", zap.String("customerId", customerID), zap.Int("count", len(msgs)))
	return nil
}

// Clear 删除历史消息
func (s *SQLiteStore) Clear(ctx context.Context, customerID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_history WHERE customer_id = ?`, customerID); err != nil {
		return fmt.Errorf("删除历史记录失败: %w", err)
	}
	return nil
}

// Close 关闭数据库
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
