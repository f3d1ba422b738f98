package widget

import "github.com/supportbot/chatwidget-go/internal/model"

// PreChatForm 预聊天表单所需数据
type PreChatForm struct {
	Departments []string           `json:"departments"`
	Languages   []string           `json:"languages"`
	Prefill     model.CustomerInfo `json:"prefill"`
}

// RenderedMessage 已格式化、可直接展示的消息
type RenderedMessage struct {
	ID        string     `json:"id"`
	Role      model.Role `json:"role"`
	HTML      string     `json:"html"`
	AgentName string     `json:"agentName,omitempty"`
	AvatarURL string     `json:"avatarUrl,omitempty"`
}

// Renderer 由宿主实现的展示层。
// 除 Confirm 外的方法在挂件内部锁内调用，实现不得同步回调 Widget 的命令方法。
type Renderer interface {
	// ShowWindow 显示或隐藏聊天窗口
	ShowWindow(visible bool)

	// ShowPreChat 显示预聊天表单
	ShowPreChat(form PreChatForm)

	// ShowConversation 隐藏表单，显示对话区
	ShowConversation()

	// AppendMessage 追加一条消息
	AppendMessage(msg RenderedMessage)

	// ClearMessages 清空对话区
	ClearMessages()

	// SetTyping 显示或隐藏“正在输入”提示
	SetTyping(visible bool)

	// SetAgent 更新头部的客服信息
	SetAgent(agent model.AgentInfo)

	// SetInputEnabled 启用或禁用输入框和发送按钮
	SetInputEnabled(enabled bool)

	// Confirm 请访客确认操作，可阻塞直到得到答复
	Confirm(prompt string) bool
}
