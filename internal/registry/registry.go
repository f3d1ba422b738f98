// Package registry 收集宿主页面声明的客服 ID，并保证挂件只初始化一次。
package registry

import (
	"errors"
	"sync"

	"github.com/supportbot/chatwidget-go/internal/config"
	"go.uber.org/zap"
)

// ErrRegistryFrozen 初始化开始后不再接受新的声明
var ErrRegistryFrozen = errors.New("agent registry is frozen")

// Registry 客服 ID 注册中心。
// 生命周期：收集阶段多次 Register，随后 Init 冻结集合并恰好执行一次初始化。
type Registry struct {
	ids    []string
	seen   map[string]struct{}
	frozen bool
	mu     sync.Mutex
	once   sync.Once
	err    error
	logger *zap.Logger
}

// NewRegistry 创建注册中心
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		seen:   make(map[string]struct{}),
		logger: logger,
	}
}

// Register 声明一个客服 ID；重复声明会被忽略
func (r *Registry) Register(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if agentID == "" {
		return &config.ConfigError{Field: "agentId", Reason: "missing required attribute"}
	}
	if r.frozen {
		return ErrRegistryFrozen
	}
	if _, exists := r.seen[agentID]; exists {
		return nil
	}

	r.seen[agentID] = struct{}{}
	r.ids = append(r.ids, agentID)
	r.logger.Info("客服已声明", zap.String("agentId", agentID))
	return nil
}

// Has 是否声明过该客服
func (r *Registry) Has(agentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.seen[agentID]
	return ok
}

// IDs 按声明顺序返回客服 ID
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

// Count 获取声明的客服数量
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

// Init 冻结注册中心并执行一次初始化；之后的调用直接返回第一次的结果
func (r *Registry) Init(initFn func(ids []string) error) error {
	r.once.Do(func() {
		r.mu.Lock()
		r.frozen = true
		ids := make([]string, len(r.ids))
		copy(ids, r.ids)
		r.mu.Unlock()

		r.logger.Info("挂件初始化", zap.Int("agents", len(ids)))
		r.err = initFn(ids)
	})
	return r.err
}
