// Package widget 实现客服挂件的会话状态机：预聊天校验、对话、客服绑定、空闲超时和工单转交。
package widget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/supportbot/chatwidget-go/internal/client"
	"github.com/supportbot/chatwidget-go/internal/config"
	"github.com/supportbot/chatwidget-go/internal/directory"
	"github.com/supportbot/chatwidget-go/internal/model"
	"github.com/supportbot/chatwidget-go/internal/monitor"
	"github.com/supportbot/chatwidget-go/internal/sanitize"
	"github.com/supportbot/chatwidget-go/internal/store"
	"go.uber.org/zap"
)

const (
	defaultGreeting = "Hey there! How can I assist you today?"
	defaultPlatform = "zoho desk"

	endSessionPrompt = "Are you sure you want to end this session? This will create a ticket if messages exist."
)

// State 挂件会话状态
type State int

const (
	StateUninitialized State = iota
	StatePreChat
	StateActive
	StateTerminating
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StatePreChat:
		return "prechat"
	case StateActive:
		return "active"
	case StateTerminating:
		return "terminating"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type teardownReason int

const (
	reasonExplicit teardownReason = iota
	reasonIdle
)

// Transport 对话与工单接口
type Transport interface {
	SendMessage(ctx context.Context, req client.ChatRequest) (*client.ChatReply, error)
	CreateTicket(ctx context.Context, req client.TicketRequest) (string, error)
}

// Options 挂件实例参数
type Options struct {
	UserID            string
	APIKey            string
	Greeting          string
	DefaultPlatform   string
	InactivityTimeout time.Duration
}

// Widget 一个挂件实例的会话状态机。
// 所有状态由 mu 保护；网络调用在锁外进行，完成后用 epoch 判断结果是否仍然有效。
type Widget struct {
	opts      Options
	dir       directory.Directory
	transport Transport
	history   store.HistoryStore
	renderer  Renderer
	monitor   *monitor.Inactivity
	logger    *zap.Logger

	baseCtx context.Context
	cancel  context.CancelFunc

	mu        sync.Mutex
	state     State
	visible   bool
	closed    bool
	waiting   bool
	epoch     uint64
	customer  model.CustomerInfo
	agent     model.AgentInfo
	live      []model.Message
	persisted []model.Message
}

// New 创建挂件实例并恢复该客户账号的历史记录
func New(ctx context.Context, opts Options, dir directory.Directory, transport Transport,
	history store.HistoryStore, renderer Renderer, logger *zap.Logger) (*Widget, error) {
	if opts.UserID == "" {
		return nil, &config.ConfigError{Field: "userId", Reason: "missing required attribute"}
	}
	if opts.APIKey == "" {
		return nil, &config.ConfigError{Field: "apiKey", Reason: "missing required attribute"}
	}
	if opts.Greeting == "" {
		opts.Greeting = defaultGreeting
	}
	if opts.DefaultPlatform == "" {
		opts.DefaultPlatform = defaultPlatform
	}
	if len(dir.Departments) == 0 {
		dir = directory.Fallback()
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	w := &Widget{
		opts:      opts,
		dir:       dir,
		transport: transport,
		history:   history,
		renderer:  renderer,
		logger:    logger.With(zap.String("userId", opts.UserID), zap.String("instance", uuid.NewString()[:8])),
		baseCtx:   baseCtx,
		cancel:    cancel,
	}
	w.monitor = monitor.NewInactivity(opts.InactivityTimeout, w.handleIdle, w.logger)

	persisted, err := history.Load(ctx, opts.UserID)
	if err != nil {
		// 损坏或不可读的记录按空历史处理
		w.logger.Warn("读取历史记录失败，按空记录处理", zap.Error(err))
		persisted = nil
	}
	w.persisted = persisted
	w.restoreIdentity()

	w.logger.Info("挂件实例已创建",
		zap.Int("persisted", len(w.persisted)),
		zap.Strings("departments", dir.Departments),
		zap.Bool("identityRestored", w.customer.Started()))
	return w, nil
}

// restoreIdentity 从持久化快照恢复访客和客服信息
func (w *Widget) restoreIdentity() {
	for _, m := range w.persisted {
		if m.CustomerName != "" && m.CustomerEmail != "" {
			w.customer = m.Customer()
			if w.customer.Language == "" {
				w.customer.Language = model.DefaultLanguage
			}
			break
		}
	}
	for i := len(w.persisted) - 1; i >= 0; i-- {
		m := w.persisted[i]
		if m.Role() == model.RoleAgent && m.AgentName != "" {
			w.agent = m.Agent()
			break
		}
	}
}

// Toggle 首次调用创建聊天窗口，之后切换显示/隐藏
func (w *Widget) Toggle() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	if w.state != StateUninitialized {
		w.visible = !w.visible
		w.renderer.ShowWindow(w.visible)
		return nil
	}

	w.visible = true
	w.renderer.ShowWindow(true)

	rec, ok := w.dir.AgentFor(w.customer.Department)
	if !w.customer.Started() || !ok {
		w.state = StatePreChat
		w.renderer.ShowPreChat(w.preChatForm())
		w.logger.Info("显示预聊天表单")
		return nil
	}

	// 访客身份已从历史记录恢复，直接进入对话
	if !w.agent.Bound() {
		w.agent = rec.Info()
	}
	w.state = StateActive
	w.renderer.ShowConversation()
	for _, m := range w.persisted {
		w.renderer.AppendMessage(render(m))
	}
	for _, m := range w.live {
		w.renderer.AppendMessage(render(m))
	}
	w.renderer.SetAgent(w.agent)
	w.renderer.SetInputEnabled(true)
	w.rearmLocked()

	w.logger.Info("已恢复会话", zap.String("department", w.customer.Department), zap.String("agent", w.agent.Name))
	return nil
}

// SubmitPreChat 提交预聊天表单，校验通过后进入对话
func (w *Widget) SubmitPreChat(ctx context.Context, info model.CustomerInfo) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.state != StatePreChat {
		return ErrInvalidState
	}

	info.Name = strings.TrimSpace(info.Name)
	info.Email = strings.TrimSpace(info.Email)
	info.Language = strings.TrimSpace(info.Language)
	info.Department = strings.TrimSpace(info.Department)

	rec, verr := w.validate(info)
	if verr != nil {
		w.notifyLocked(verr.Message)
		w.logger.Info("预聊天表单校验失败", zap.String("field", verr.Field))
		return verr
	}

	w.customer = info
	w.agent = rec.Info()
	w.state = StateActive

	w.renderer.ShowConversation()
	w.renderer.SetAgent(w.agent)

	greeting := model.NewAgentMessage(w.opts.Greeting, w.customer, w.agent)
	w.live = append(w.live, greeting)
	w.renderer.AppendMessage(render(greeting))
	w.renderer.SetInputEnabled(true)
	w.rearmLocked()

	w.logger.Info("会话已开始",
		zap.String("department", info.Department),
		zap.String("language", info.Language),
		zap.String("agent", w.agent.Name))
	return nil
}

func (w *Widget) validate(info model.CustomerInfo) (model.AgentRecord, *ValidationError) {
	switch {
	case info.Name == "" || info.Email == "" || info.Language == "" || info.Department == "":
		return model.AgentRecord{}, &ValidationError{Field: "required",
			Message: "Please provide all required fields: name, email, language, and department."}
	case !model.ValidEmail(info.Email):
		return model.AgentRecord{}, &ValidationError{Field: "email", Message: "Please enter a valid email address."}
	case !model.SupportedLanguage(info.Language):
		return model.AgentRecord{}, &ValidationError{Field: "language", Message: "Please select a supported language."}
	case !w.dir.HasDepartment(info.Department):
		return model.AgentRecord{}, &ValidationError{Field: "department", Message: "Please select a valid department."}
	}

	rec, ok := w.dir.AgentFor(info.Department)
	if !ok {
		return model.AgentRecord{}, &ValidationError{Field: "agent", Message: "Error: No agent available for this department."}
	}
	return rec, nil
}

// Send 发送访客消息并等待客服回复。
// 等待期间的再次发送直接返回 ErrWaiting，不追加消息也不发请求。
func (w *Widget) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.state != StateActive {
		w.mu.Unlock()
		return ErrInvalidState
	}
	if w.waiting {
		w.mu.Unlock()
		return ErrWaiting
	}
	if text == "" {
		w.mu.Unlock()
		return nil
	}

	msg := model.NewUserMessage(text, w.customer)
	w.live = append(w.live, msg)
	w.renderer.AppendMessage(render(msg))

	req := client.ChatRequest{
		UserID:        w.opts.UserID,
		Message:       text,
		Department:    w.customer.Department,
		APIKey:        w.opts.APIKey,
		History:       wireHistory(w.live[:len(w.live)-1]),
		CustomerEmail: w.customer.Email,
		CustomerName:  w.customer.Name,
		Language:      w.customer.Language,
	}

	w.waiting = true
	w.renderer.SetInputEnabled(false)
	w.renderer.SetTyping(true)
	epoch := w.epoch
	w.mu.Unlock()

	w.logger.Info("发送访客消息", zap.Int("history", len(req.History)))
	reply, err := w.transport.SendMessage(ctx, req)

	w.mu.Lock()
	defer w.mu.Unlock()

	if epoch != w.epoch {
		w.logger.Warn("会话已结束，丢弃迟到的回复", zap.Uint64("epoch", epoch), zap.Uint64("current", w.epoch))
		return ErrStaleResponse
	}

	w.renderer.SetTyping(false)
	if err != nil {
		w.logger.Error("客服回复失败", zap.Error(err))
		w.notifyLocked("Error: " + err.Error())
	} else {
		w.rebindLocked(reply)
		answer := model.NewAgentMessage(reply.Response, w.customer, w.agent)
		w.live = append(w.live, answer)
		w.renderer.AppendMessage(render(answer))
	}

	w.waiting = false
	w.renderer.SetInputEnabled(true)
	w.rearmLocked()
	return err
}

// rebindLocked 回复来自其他客服或头像变化时更新绑定
func (w *Widget) rebindLocked(reply *client.ChatReply) {
	switch {
	case reply.Agent != "" && reply.Agent != w.agent.Name:
		w.agent.Name = reply.Agent
		if reply.AvatarURL != "" {
			w.agent.AvatarURL = reply.AvatarURL
		}
		for _, a := range w.dir.Agents {
			if a.Name == reply.Agent {
				w.agent.ID = a.ID
				break
			}
		}
		w.logger.Info("回复客服已变更", zap.String("agent", w.agent.Name))
	case reply.AvatarURL != "" && reply.AvatarURL != w.agent.AvatarURL:
		w.agent.AvatarURL = reply.AvatarURL
	default:
		return
	}
	w.renderer.SetAgent(w.agent)
}

// EndSession 访客确认后结束会话：创建工单、清空全部历史并回到预聊天表单
func (w *Widget) EndSession(ctx context.Context) error {
	w.mu.Lock()
	if err := w.canTeardownLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	w.mu.Unlock()

	if !w.renderer.Confirm(endSessionPrompt) {
		w.logger.Info("访客取消结束会话")
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.canTeardownLocked(); err != nil {
		return err
	}

	w.logger.Info("访客结束会话", zap.Int("live", len(w.live)))
	return w.teardownLocked(ctx, reasonExplicit)
}

func (w *Widget) canTeardownLocked() error {
	switch {
	case w.closed:
		return ErrClosed
	case w.state == StateUninitialized:
		return ErrInvalidState
	case w.state == StateTerminating:
		return ErrTerminating
	}
	return nil
}

// handleIdle 空闲倒计时结束时由 monitor 调用
func (w *Widget) handleIdle() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.state != StateActive || len(w.live) == 0 {
		return
	}

	w.notifyLocked(fmt.Sprintf("Session inactive for %s. Ending session...", humanDuration(w.monitor.Timeout())))
	if err := w.teardownLocked(context.WithoutCancel(w.baseCtx), reasonIdle); err != nil {
		w.logger.Warn("空闲结束会话时出错", zap.Error(err))
	}
}

// teardownLocked 结束当前会话。进入和返回时都持有锁，创建工单期间临时释放。
// 调用方取消或 Close 都不能中断工单创建和历史写入。
func (w *Widget) teardownLocked(ctx context.Context, reason teardownReason) error {
	ctx = context.WithoutCancel(ctx)
	w.monitor.Disarm()
	w.epoch++
	w.state = StateTerminating
	w.waiting = false
	w.renderer.SetTyping(false)
	w.renderer.SetInputEnabled(false)

	var notices []string
	var ticketErr error
	if len(w.live) > 0 && w.customer.Identified() {
		req, ok := w.ticketRequestLocked()
		if !ok {
			ticketErr = ErrNoTicketAgent
			notices = append(notices, "Cannot create ticket: No agent available for this department.")
			w.logger.Error("无法创建工单，部门没有客服", zap.String("department", w.customer.Department))
		} else {
			w.mu.Unlock()
			ticketID, err := w.transport.CreateTicket(ctx, req)
			w.mu.Lock()

			ticketErr = err
			notices = append(notices, ticketNotice(ticketID, err))
			if err != nil {
				w.logger.Error("创建工单失败", zap.Error(err))
			} else {
				w.logger.Info("工单已创建", zap.String("ticketId", ticketID))
			}
		}
	}

	saveErr := w.flushLocked(ctx)

	if reason == reasonExplicit {
		if err := w.history.Clear(ctx, w.opts.UserID); err != nil {
			w.logger.Error("清除历史记录失败", zap.Error(err))
			saveErr = errors.Join(saveErr, err)
		}
		w.persisted = nil
		w.customer = model.CustomerInfo{}
		w.agent = model.AgentInfo{}
		if !w.closed {
			w.renderer.ClearMessages()
		}
	}

	if !w.closed {
		for _, n := range notices {
			w.notifyLocked(n)
		}
		w.state = StatePreChat
		w.renderer.ShowPreChat(w.preChatForm())
	}

	w.logger.Info("会话已结束", zap.Bool("explicit", reason == reasonExplicit), zap.Int("persisted", len(w.persisted)))
	return errors.Join(ticketErr, saveErr)
}

// flushLocked 将本次页面的消息追加到持久化历史并清空
func (w *Widget) flushLocked(ctx context.Context) error {
	if len(w.live) == 0 {
		return nil
	}

	merged := make([]model.Message, 0, len(w.persisted)+len(w.live))
	merged = append(merged, w.persisted...)
	merged = append(merged, w.live...)
	w.persisted = merged
	w.live = nil

	if err := w.history.Save(ctx, w.opts.UserID, w.persisted); err != nil {
		w.logger.Error("保存历史记录失败", zap.Error(err))
		return err
	}
	return nil
}

// Close 页面卸载或连接断开：停止倒计时，丢弃在途回复，把本次消息写入历史（不创建工单）
func (w *Widget) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.monitor.Cancel()
	w.epoch++
	w.cancel()

	// 正在结束的会话由 teardownLocked 负责写入
	if w.state == StateTerminating {
		return nil
	}

	w.logger.Info("挂件实例关闭", zap.Int("live", len(w.live)))
	return w.flushLocked(ctx)
}

func (w *Widget) rearmLocked() {
	if w.state == StateActive && len(w.live) > 0 {
		w.monitor.Arm()
		return
	}
	w.monitor.Disarm()
}

// notifyLocked 展示系统消息；系统消息只在本地展示，不进入会话记录
func (w *Widget) notifyLocked(text string) {
	w.renderer.AppendMessage(render(model.NewSystemMessage(text)))
}

func (w *Widget) preChatForm() PreChatForm {
	prefill := w.customer
	if prefill.Language == "" {
		prefill.Language = model.DefaultLanguage
	}
	if prefill.Department == "" && len(w.dir.Agents) > 0 {
		prefill.Department = w.dir.Agents[0].DepartmentLabel()
	}

	langs := make([]string, len(model.SupportedLanguages))
	copy(langs, model.SupportedLanguages)
	depts := make([]string, len(w.dir.Departments))
	copy(depts, w.dir.Departments)
	return PreChatForm{Departments: depts, Languages: langs, Prefill: prefill}
}

// State 当前状态
func (w *Widget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Waiting 是否有未回复的访客消息
func (w *Widget) Waiting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.waiting
}

// Customer 当前访客信息
func (w *Widget) Customer() model.CustomerInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.customer
}

// Agent 当前绑定的客服
func (w *Widget) Agent() model.AgentInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.agent
}

// LiveMessages 本次页面产生、尚未写入历史的消息（副本）
func (w *Widget) LiveMessages() []model.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return model.CloneMessages(w.live)
}

// PersistedMessages 持久化历史（副本）
func (w *Widget) PersistedMessages() []model.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return model.CloneMessages(w.persisted)
}

// Departments 可选部门；解析后不再变化，无需加锁
func (w *Widget) Departments() []string {
	out := make([]string, len(w.dir.Departments))
	copy(out, w.dir.Departments)
	return out
}

func render(m model.Message) RenderedMessage {
	return RenderedMessage{
		ID:        m.ID,
		Role:      m.Role(),
		HTML:      sanitize.Format(m.Text),
		AgentName: m.AgentName,
		AvatarURL: m.AvatarURL,
	}
}
