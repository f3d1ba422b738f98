package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/supportbot/chatwidget-go/internal/config"
	"github.com/supportbot/chatwidget-go/internal/directory"
	"github.com/supportbot/chatwidget-go/internal/model"
	"github.com/supportbot/chatwidget-go/internal/service"
	"go.uber.org/zap"
)

// APIHandler API 处理器
type APIHandler struct {
	sessionService *service.SessionService
	resolver       *directory.Resolver
	widgetCfg      config.WidgetConfig
	logger         *zap.Logger
}

// NewAPIHandler 创建 API 处理器
func NewAPIHandler(sessionService *service.SessionService, resolver *directory.Resolver,
	widgetCfg config.WidgetConfig, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		sessionService: sessionService,
		resolver:       resolver,
		widgetCfg:      widgetCfg,
		logger:         logger,
	}
}

// Health 健康检查
func (h *APIHandler) Health(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":         "UP",
		"service":        c.GetString("service_name"),
		"online_widgets": h.sessionService.GetOnlineCount(),
	})
}

// WidgetConfig 返回页面渲染挂件所需的静态配置
func (h *APIHandler) WidgetConfig(c *gin.Context) {
	c.JSON(200, gin.H{
		"success": true,
		"data": gin.H{
			"greeting":                 h.widgetCfg.Greeting,
			"languages":                model.SupportedLanguages,
			"defaultLanguage":          model.DefaultLanguage,
			"inactivityTimeoutSeconds": int(h.widgetCfg.InactivityTimeout.Seconds()),
		},
	})
}

// Departments 解析账号下已声明客服的部门列表
func (h *APIHandler) Departments(c *gin.Context) {
	userID := c.Query("uid")
	agentIDs := c.QueryArray("agentId")
	if userID == "" || len(agentIDs) == 0 {
		c.JSON(400, gin.H{"error": "uid and agentId are required"})
		return
	}

	dir, err := h.resolver.Resolve(c.Request.Context(), userID, agentIDs)
	degraded := err != nil
	if degraded {
		h.logger.Warn("部门查询降级", zap.String("userId", userID), zap.Error(err))
	}

	agents := make([]model.AgentInfo, 0, len(dir.Agents))
	for _, a := range dir.Agents {
		agents = append(agents, a.Info())
	}

	c.JSON(200, gin.H{
		"success": true,
		"data": gin.H{
			"departments": dir.Departments,
			"agents":      agents,
			"degraded":    degraded,
		},
	})
}
