package handler

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/supportbot/chatwidget-go/internal/config"
	"github.com/supportbot/chatwidget-go/internal/model"
	"github.com/supportbot/chatwidget-go/internal/service"
	"github.com/supportbot/chatwidget-go/internal/widget"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// 挂件嵌入在任意客户站点上
		return true
	},
}

// WebSocketHandler 挂件 WebSocket 处理器
type WebSocketHandler struct {
	sessionService *service.SessionService
	widgetService  *service.WidgetService
	embeds         []config.EmbedConfig
	wg             sync.WaitGroup // 连接及其后台命令
	logger         *zap.Logger
}

// NewWebSocketHandler 创建 WebSocket 处理器；embeds 为查询参数缺省时使用的挂件声明
func NewWebSocketHandler(sessionService *service.SessionService, widgetService *service.WidgetService,
	embeds []config.EmbedConfig, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		sessionService: sessionService,
		widgetService:  widgetService,
		embeds:         embeds,
		logger:         logger,
	}
}

// embedsFromQuery 将宿主页面属性转换为挂件声明，每个 agentId 一条
func embedsFromQuery(c *gin.Context) []config.EmbedConfig {
	userID := c.Query("uid")
	apiKey := c.Query("apiKey")
	agentIDs := c.QueryArray("agentId")
	if userID == "" && apiKey == "" && len(agentIDs) == 0 {
		return nil
	}
	if len(agentIDs) == 0 {
		return []config.EmbedConfig{{UserID: userID, APIKey: apiKey}}
	}

	embeds := make([]config.EmbedConfig, 0, len(agentIDs))
	for _, id := range agentIDs {
		embeds = append(embeds, config.EmbedConfig{UserID: userID, APIKey: apiKey, AgentID: id})
	}
	return embeds
}

// HandleWebSocket WebSocket 连接入口，每个连接对应一个挂件实例
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	h.wg.Add(1)
	defer h.wg.Done()

	embeds := embedsFromQuery(c)
	if embeds == nil {
		embeds = h.embeds
	}
	for _, e := range embeds {
		if err := e.Validate(); err != nil {
			h.logger.Warn("挂件声明不完整", zap.Error(err))
		}
	}

	// 升级为 WebSocket 连接
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket 升级失败", zap.Error(err))
		return
	}
	defer conn.Close()

	sessionID := uuid.New().String()
	agentIDs := make([]string, 0, len(embeds))
	for _, e := range embeds {
		agentIDs = append(agentIDs, e.AgentID)
	}
	wc := &model.WidgetConn{
		SessionID: sessionID,
		AgentIDs:  agentIDs,
		Conn:      conn,
		ClientIP:  c.ClientIP(),
	}
	if len(embeds) > 0 {
		wc.UserID = embeds[0].UserID
	}
	h.sessionService.Register(wc)
	defer h.sessionService.Remove(sessionID)

	log := h.logger.With(zap.String("sessionId", sessionID))
	renderer := newWSRenderer(sessionID, h.sessionService, log)
	defer renderer.shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := h.widgetService.Boot(ctx, embeds, renderer)
	if err != nil {
		if service.IsConfigError(err) {
			log.Warn("挂件声明无效，拒绝启动", zap.Error(err))
		} else {
			log.Error("挂件启动失败", zap.Error(err))
		}
		h.sessionService.Send(sessionID, model.Event{Type: model.EventError, Data: gin.H{"error": err.Error()}})
		return
	}
	defer func() {
		if err := w.Close(context.Background()); err != nil {
			log.Error("关闭挂件失败", zap.Error(err))
		}
	}()

	log.Info("WebSocket 连接建立", zap.String("userId", wc.UserID))

	// 消息循环
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error("WebSocket 读取错误", zap.Error(err))
			}
			break
		}

		cmd, err := model.ParseCommand(data)
		if err != nil {
			log.Warn("无法解析的命令", zap.Error(err))
			continue
		}
		h.handleCommand(ctx, sessionID, w, renderer, cmd)
	}

	// 先释放等待中的确认，再关闭挂件
	renderer.shutdown()
	log.Info("WebSocket 连接断开")
}

// handleCommand 分发页面命令
func (h *WebSocketHandler) handleCommand(ctx context.Context, sessionID string, w *widget.Widget, renderer *wsRenderer, cmd model.Command) {
	log := h.logger.With(zap.String("sessionId", sessionID), zap.String("type", cmd.Type))

	switch cmd.Type {
	case model.CommandToggle:
		h.report(log, w.Toggle())

	case model.CommandPreChat:
		h.report(log, w.SubmitPreChat(ctx, *cmd.Customer))

	case model.CommandSend:
		// 等待回复期间继续读取命令
		h.goTracked(func() { h.report(log, w.Send(ctx, cmd.Text)) })

	case model.CommandEndSession:
		// 确认结果由后续的 CONFIRM 命令交付；连接断开不中断工单创建
		h.goTracked(func() { h.report(log, w.EndSession(context.WithoutCancel(ctx))) })

	case model.CommandConfirm:
		if !renderer.resolveConfirm(cmd.Confirmed) {
			log.Warn("没有等待中的确认")
		}

	case model.CommandHeartbeat:
		h.sessionService.UpdateHeartbeat(sessionID)
		log.Debug("收到心跳")
	}
}

func (h *WebSocketHandler) goTracked(fn func()) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		fn()
	}()
}

// Wait 等待所有连接关闭挂件、后台命令结束，或 ctx 到期
func (h *WebSocketHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// report 记录命令结果；可预期的拒绝只记 debug 日志
func (h *WebSocketHandler) report(log *zap.Logger, err error) {
	var verr *widget.ValidationError
	switch {
	case err == nil:
	case errors.Is(err, widget.ErrWaiting), errors.Is(err, widget.ErrStaleResponse), errors.As(err, &verr):
		log.Debug("命令被拒绝", zap.Error(err))
	default:
		log.Warn("命令处理失败", zap.Error(err))
	}
}
