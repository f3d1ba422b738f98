package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/supportbot/chatwidget-go/internal/config"
	"github.com/supportbot/chatwidget-go/internal/directory"
	"github.com/supportbot/chatwidget-go/internal/registry"
	"github.com/supportbot/chatwidget-go/internal/store"
	"github.com/supportbot/chatwidget-go/internal/widget"
	"go.uber.org/zap"
)

// WidgetService 按挂件声明启动挂件实例
type WidgetService struct {
	resolver  *directory.Resolver
	transport widget.Transport
	history   store.HistoryStore
	cfg       config.WidgetConfig
	logger    *zap.Logger
}

// NewWidgetService 创建挂件启动服务
func NewWidgetService(resolver *directory.Resolver, transport widget.Transport, history store.HistoryStore,
	cfg config.WidgetConfig, logger *zap.Logger) *WidgetService {
	return &WidgetService{
		resolver:  resolver,
		transport: transport,
		history:   history,
		cfg:       cfg,
		logger:    logger,
	}
}

// Boot 收集全部挂件声明的客服 ID，解析客服目录并创建挂件实例。
// 属性不完整或账号不一致的声明被跳过；没有任何有效声明时返回 ConfigError。
func (s *WidgetService) Boot(ctx context.Context, embeds []config.EmbedConfig, renderer widget.Renderer) (*widget.Widget, error) {
	valid := s.validEmbeds(embeds)
	if len(valid) == 0 {
		return nil, &config.ConfigError{Field: "embeds", Reason: "no valid widget declaration"}
	}
	userID, apiKey := valid[0].UserID, valid[0].APIKey

	reg := registry.NewRegistry(s.logger)
	for _, e := range valid {
		if reg.Has(e.AgentID) {
			s.logger.Debug("重复的客服声明", zap.String("agentId", e.AgentID))
			continue
		}
		if err := reg.Register(e.AgentID); err != nil {
			return nil, fmt.Errorf("声明客服失败: %w", err)
		}
	}
	s.logger.Info("挂件声明收集完成",
		zap.String("userId", userID),
		zap.Int("agents", reg.Count()),
		zap.Strings("agentIds", reg.IDs()))

	var w *widget.Widget
	err := reg.Init(func(ids []string) error {
		dir, err := s.resolver.Resolve(ctx, userID, ids)
		if err != nil {
			// 目录不可用时降级为默认部门，挂件照常加载
			s.logger.Warn("客服目录降级", zap.Error(err))
		}

		w, err = widget.New(ctx, widget.Options{
			UserID:            userID,
			APIKey:            apiKey,
			Greeting:          s.cfg.Greeting,
			DefaultPlatform:   s.cfg.DefaultPlatform,
			InactivityTimeout: s.cfg.InactivityTimeout,
		}, dir, s.transport, s.history, renderer, s.logger)
		return err
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (s *WidgetService) validEmbeds(embeds []config.EmbedConfig) []config.EmbedConfig {
	var valid []config.EmbedConfig
	for i, e := range embeds {
		if err := e.Validate(); err != nil {
			s.logger.Error("忽略无效的挂件声明", zap.Int("index", i), zap.Error(err))
			continue
		}
		if len(valid) > 0 && (e.UserID != valid[0].UserID || e.APIKey != valid[0].APIKey) {
			err := &config.ConfigError{Field: "userId", Reason: "declaration belongs to a different account"}
			s.logger.Error("忽略无效的挂件声明", zap.Int("index", i), zap.Error(err))
			continue
		}
		valid = append(valid, e)
	}
	return valid
}

// IsConfigError 是否为配置错误
func IsConfigError(err error) bool {
	var cfgErr *config.ConfigError
	return errors.As(err, &cfgErr)
}
