// Package tui 在终端中渲染客服挂件，供运营人员测试账号下的客服配置。
package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/supportbot/chatwidget-go/internal/model"
	"github.com/supportbot/chatwidget-go/internal/widget"
)

const eventBuffer = 256

type windowMsg struct{ visible bool }

type preChatMsg struct{ form widget.PreChatForm }

type conversationMsg struct{}

type appendMsg struct{ msg widget.RenderedMessage }

type clearMsg struct{}

type typingMsg struct{ visible bool }

type agentMsg struct{ agent model.AgentInfo }

type inputMsg struct{ enabled bool }

type confirmMsg struct {
	prompt string
	reply  chan bool
}

// Renderer 将挂件的展示指令转换为 bubbletea 消息
type Renderer struct {
	events chan tea.Msg
	done   chan struct{}
	once   sync.Once
}

// NewRenderer 创建终端渲染器
func NewRenderer() *Renderer {
	return &Renderer{
		events: make(chan tea.Msg, eventBuffer),
		done:   make(chan struct{}),
	}
}

func (r *Renderer) push(msg tea.Msg) {
	select {
	case r.events <- msg:
	case <-r.done:
	}
}

func (r *Renderer) ShowWindow(visible bool)                  { r.push(windowMsg{visible}) }
func (r *Renderer) ShowPreChat(form widget.PreChatForm)      { r.push(preChatMsg{form}) }
func (r *Renderer) ShowConversation()                        { r.push(conversationMsg{}) }
func (r *Renderer) AppendMessage(msg widget.RenderedMessage) { r.push(appendMsg{msg}) }
func (r *Renderer) ClearMessages()                           { r.push(clearMsg{}) }
func (r *Renderer) SetTyping(visible bool)                   { r.push(typingMsg{visible}) }
func (r *Renderer) SetAgent(agent model.AgentInfo)           { r.push(agentMsg{agent}) }
func (r *Renderer) SetInputEnabled(enabled bool)             { r.push(inputMsg{enabled}) }

// Confirm 在终端中询问 y/n，界面退出视为取消
func (r *Renderer) Confirm(prompt string) bool {
	reply := make(chan bool, 1)
	r.push(confirmMsg{prompt: prompt, reply: reply})

	select {
	case ok := <-reply:
		return ok
	case <-r.done:
		return false
	}
}

// Shutdown 停止投递事件并取消等待中的确认
func (r *Renderer) Shutdown() {
	r.once.Do(func() { close(r.done) })
}

// waitEvent 等待下一条展示指令
func (r *Renderer) waitEvent() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-r.events:
			return msg
		case <-r.done:
			return nil
		}
	}
}
