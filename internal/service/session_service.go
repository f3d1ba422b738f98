package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/supportbot/chatwidget-go/internal/model"
	"go.uber.org/zap"
)

var (
	ErrSessionOffline = fmt.Errorf("挂件连接不在线")
)

const (
	heartbeatInterval = 30 * time.Second
	heartbeatTimeout  = 60 * time.Second
)

// SessionService 网关连接管理服务
type SessionService struct {
	conns   map[string]*model.WidgetConn // sessionId -> conn
	mu      sync.RWMutex                 // 读写锁保护
	stop    chan struct{}
	once    sync.Once
	closing bool // CloseAll 之后新注册的连接立即关闭
	logger  *zap.Logger
}

// NewSessionService 创建连接管理服务并启动心跳检测
func NewSessionService(logger *zap.Logger) *SessionService {
	s := newSessionService(logger)
	go s.heartbeatChecker()
	return s
}

func newSessionService(logger *zap.Logger) *SessionService {
	return &SessionService{
		conns:  make(map[string]*model.WidgetConn),
		stop:   make(chan struct{}),
		logger: logger,
	}
}

// Register 注册挂件连接
func (s *SessionService) Register(conn *model.WidgetConn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		s.logger.Warn("服务关闭中，拒绝挂件连接", zap.String("sessionId", conn.SessionID))
		conn.Close()
		return
	}

	conn.UpdateHeartbeat()
	s.conns[conn.SessionID] = conn

	s.logger.Info("挂件连接注册成功",
		zap.String("sessionId", conn.SessionID),
		zap.String("userId", conn.UserID),
		zap.Strings("agentIds", conn.AgentIDs),
		zap.String("clientIp", conn.ClientIP))
}

// Get 获取连接
func (s *SessionService) Get(sessionID string) (*model.WidgetConn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, ok := s.conns[sessionID]
	return conn, ok
}

// Send 向指定连接推送事件
func (s *SessionService) Send(sessionID string, event model.Event) error {
	conn, ok := s.Get(sessionID)
	if !ok {
		s.logger.Warn("连接不在线，事件发送失败", zap.String("sessionId", sessionID), zap.String("type", event.Type))
		return ErrSessionOffline
	}

	if err := conn.WriteMessage(event); err != nil {
		s.logger.Error("事件发送失败",
			zap.String("sessionId", sessionID),
			zap.String("type", event.Type),
			zap.Error(err))
		// 异步清理无效连接
		go s.Remove(sessionID)
		return err
	}
	return nil
}

// UpdateHeartbeat 更新心跳时间
func (s *SessionService) UpdateHeartbeat(sessionID string) bool {
	conn, ok := s.Get(sessionID)
	if !ok {
		return false
	}

	conn.UpdateHeartbeat()
	s.logger.Debug("心跳已更新", zap.String("sessionId", sessionID))
	return true
}

// Remove 移除连接
func (s *SessionService) Remove(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conns[sessionID]; ok {
		delete(s.conns, sessionID)
		s.logger.Info("挂件连接已移除", zap.String("sessionId", sessionID))
	}
}

// GetOnlineCount 获取在线挂件数
func (s *SessionService) GetOnlineCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// CloseAll 关闭全部挂件连接，读循环随之退出并写入历史；返回关闭的连接数
func (s *SessionService) CloseAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closing = true
	n := len(s.conns)
	for sessionID, conn := range s.conns {
		conn.Close()
		delete(s.conns, sessionID)
	}
	s.logger.Info("已关闭全部挂件连接", zap.Int("count", n))
	return n
}

// Stop 停止心跳检测
func (s *SessionService) Stop() {
	s.once.Do(func() { close(s.stop) })
}

// heartbeatChecker 心跳检测器
func (s *SessionService) heartbeatChecker() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			s.sweep(now, heartbeatTimeout)
		case <-s.stop:
			return
		}
	}
}

// sweep 累计心跳丢失次数，关闭连续丢失三次的连接；返回被清理的 sessionId
func (s *SessionService) sweep(now time.Time, timeout time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for sessionID, conn := range s.conns {
		missed := conn.CheckHeartbeat(now, timeout)
		if missed == 0 {
			continue
		}

		if conn.ShouldBeCleaned() {
			s.logger.Info("清理无效连接",
				zap.String("sessionId", sessionID),
				zap.Int("missedBeats", missed))

			// 关闭连接使读循环退出，由读循环关闭挂件实例
			conn.Close()
			delete(s.conns, sessionID)
			removed = append(removed, sessionID)
		} else {
			s.logger.Warn("挂件心跳丢失",
				zap.String("sessionId", sessionID),
				zap.Int("missedBeats", missed))
		}
	}
	return removed
}
