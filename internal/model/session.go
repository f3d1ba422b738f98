package model

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WidgetConn 网关上一个挂件实例的 WebSocket 连接
type WidgetConn struct {
	SessionID     string
	UserID        string
	AgentIDs      []string
	Conn          *websocket.Conn
	ClientIP      string
	LastHeartbeat time.Time
	MissedBeats   int
	mu            sync.Mutex // 保护心跳字段和连接写入
}

// UpdateHeartbeat 更新心跳时间
func (s *WidgetConn) UpdateHeartbeat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastHeartbeat = time.Now()
	s.MissedBeats = 0
}

// CheckHeartbeat 超过 timeout 未收到心跳则累加丢失次数，返回当前丢失次数
func (s *WidgetConn) CheckHeartbeat(now time.Time, timeout time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.LastHeartbeat) > timeout {
		s.MissedBeats++
	}
	return s.MissedBeats
}

// ShouldBeCleaned 判断是否应该清理
func (s *WidgetConn) ShouldBeCleaned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.MissedBeats >= 3
}

// WriteMessage 向 WebSocket 写入消息（线程安全）
func (s *WidgetConn) WriteMessage(message interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Conn.WriteJSON(message)
}

// Close 关闭底层连接
func (s *WidgetConn) Close() error {
	if s.Conn == nil {
		return nil
	}
	return s.Conn.Close()
}
