package handler

import (
	"sync"

	"github.com/supportbot/chatwidget-go/internal/model"
	"github.com/supportbot/chatwidget-go/internal/widget"
	"go.uber.org/zap"
)

// EventSender 向页面推送事件
type EventSender interface {
	Send(sessionID string, event model.Event) error
}

// wsRenderer 将挂件的展示指令转换为 WebSocket 事件
type wsRenderer struct {
	sessionID string
	sender    EventSender
	logger    *zap.Logger

	mu      sync.Mutex
	pending chan bool
	done    chan struct{}
	once    sync.Once
}

func newWSRenderer(sessionID string, sender EventSender, logger *zap.Logger) *wsRenderer {
	return &wsRenderer{
		sessionID: sessionID,
		sender:    sender,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

func (r *wsRenderer) emit(eventType string, data interface{}) {
	if err := r.sender.Send(r.sessionID, model.Event{Type: eventType, Data: data}); err != nil {
		r.logger.Debug("事件推送失败", zap.String("type", eventType), zap.Error(err))
	}
}

func (r *wsRenderer) ShowWindow(visible bool) {
	r.emit(model.EventWindow, map[string]bool{"visible": visible})
}

func (r *wsRenderer) ShowPreChat(form widget.PreChatForm) {
	r.emit(model.EventPreChatForm, form)
}

func (r *wsRenderer) ShowConversation() {
	r.emit(model.EventConversation, nil)
}

func (r *wsRenderer) AppendMessage(msg widget.RenderedMessage) {
	r.emit(model.EventMessage, msg)
}

func (r *wsRenderer) ClearMessages() {
	r.emit(model.EventClear, nil)
}

func (r *wsRenderer) SetTyping(visible bool) {
	r.emit(model.EventTyping, map[string]bool{"visible": visible})
}

func (r *wsRenderer) SetAgent(agent model.AgentInfo) {
	r.emit(model.EventAgent, agent)
}

func (r *wsRenderer) SetInputEnabled(enabled bool) {
	r.emit(model.EventInput, map[string]bool{"enabled": enabled})
}

// Confirm 推送确认请求并等待页面的 CONFIRM 命令；连接断开视为取消
func (r *wsRenderer) Confirm(prompt string) bool {
	ch := make(chan bool, 1)
	r.mu.Lock()
	r.pending = ch
	r.mu.Unlock()

	r.emit(model.EventConfirm, map[string]string{"prompt": prompt})

	select {
	case ok := <-ch:
		return ok
	case <-r.done:
		return false
	}
}

// resolveConfirm 交付页面的确认结果；没有等待中的确认时返回 false
func (r *wsRenderer) resolveConfirm(confirmed bool) bool {
	r.mu.Lock()
	ch := r.pending
	r.pending = nil
	r.mu.Unlock()

	if ch == nil {
		return false
	}
	ch <- confirmed
	return true
}

// shutdown 释放等待中的确认
func (r *wsRenderer) shutdown() {
	r.once.Do(func() { close(r.done) })
}
