// Package monitor 提供会话空闲倒计时。
package monitor

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout 默认空闲时长
const DefaultTimeout = 5 * time.Minute

// Inactivity 单次触发、可重启的空闲倒计时。
// 每次 Arm 都会开始新的一代倒计时，旧代的定时器即使已触发也不会回调。
type Inactivity struct {
	timeout time.Duration
	onIdle  func()
	logger  *zap.Logger

	mu        sync.Mutex
	timer     *time.Timer
	gen       uint64
	armed     bool
	cancelled bool
}

// NewInactivity 创建空闲倒计时；onIdle 在倒计时结束时于独立 goroutine 中调用
func NewInactivity(timeout time.Duration, onIdle func(), logger *zap.Logger) *Inactivity {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Inactivity{
		timeout: timeout,
		onIdle:  onIdle,
		logger:  logger,
	}
}

// Timeout 返回倒计时时长
func (m *Inactivity) Timeout() time.Duration {
	return m.timeout
}

// Arm 重新开始倒计时
func (m *Inactivity) Arm() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancelled {
		return
	}
	m.stopLocked()
	m.gen++
	gen := m.gen
	m.armed = true
	m.timer = time.AfterFunc(m.timeout, func() { m.fire(gen) })
	m.logger.Debug("空闲倒计时已启动", zap.Duration("timeout", m.timeout), zap.Uint64("gen", gen))
}

// Disarm 停止当前倒计时，之后仍可再次 Arm
func (m *Inactivity) Disarm() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.armed {
		m.logger.Debug("空闲倒计时已停止", zap.Uint64("gen", m.gen))
	}
	m.stopLocked()
}

// Cancel 永久停止倒计时，之后的 Arm 不再生效
func (m *Inactivity) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()
	m.cancelled = true
}

// Armed 是否有未结束的倒计时
func (m *Inactivity) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed
}

func (m *Inactivity) stopLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.armed = false
	m.gen++
}

func (m *Inactivity) fire(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || !m.armed || m.cancelled {
		m.mu.Unlock()
		return
	}
	m.armed = false
	m.timer = nil
	m.mu.Unlock()

	m.logger.Info("会话空闲超时", zap.Duration("timeout", m.timeout))
	if m.onIdle != nil {
		m.onIdle()
	}
}
