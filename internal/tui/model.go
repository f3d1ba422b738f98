package tui

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/supportbot/chatwidget-go/internal/model"
	"github.com/supportbot/chatwidget-go/internal/widget"
	"go.uber.org/zap"
)

// Controller 终端界面驱动的挂件命令
type Controller interface {
	Toggle() error
	SubmitPreChat(ctx context.Context, info model.CustomerInfo) error
	Send(ctx context.Context, text string) error
	EndSession(ctx context.Context) error
}

type mode int

const (
	modeHidden mode = iota
	modeForm
	modeChat
)

const (
	fieldName = iota
	fieldEmail
	fieldLanguage
	fieldDepartment
	fieldCount
)

type commandDoneMsg struct {
	name string
	err  error
}

type uiTheme struct {
	header  lipgloss.Style
	panel   lipgloss.Style
	user    lipgloss.Style
	agent   lipgloss.Style
	system  lipgloss.Style
	label   lipgloss.Style
	footer  lipgloss.Style
	errText lipgloss.Style
	confirm lipgloss.Style
	bold    lipgloss.Style
	italic  lipgloss.Style
	link    lipgloss.Style
}

func newTheme() uiTheme {
	accent := lipgloss.Color("#01cdfe")
	muted := lipgloss.Color("#9ca3d8")
	return uiTheme{
		header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#f3f3ff")).
			Background(lipgloss.Color("#1b0f35")).
			Padding(0, 1),
		panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1),
		user:    lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1")).Bold(true),
		agent:   lipgloss.NewStyle().Foreground(accent).Bold(true),
		system:  lipgloss.NewStyle().Foreground(muted).Italic(true),
		label:   lipgloss.NewStyle().Foreground(muted).Width(12),
		footer:  lipgloss.NewStyle().Foreground(muted),
		errText: lipgloss.NewStyle().Foreground(lipgloss.Color("#ff71ce")),
		confirm: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff71ce")),
		bold:    lipgloss.NewStyle().Bold(true),
		italic:  lipgloss.NewStyle().Italic(true),
		link:    lipgloss.NewStyle().Underline(true).Foreground(accent),
	}
}

// Model 终端挂件界面
type Model struct {
	ctx      context.Context
	ctrl     Controller
	renderer *Renderer
	logger   *zap.Logger
	theme    uiTheme

	width  int
	height int

	visible      bool
	mode         mode
	form         widget.PreChatForm
	fields       []textinput.Model
	focus        int
	messages     []widget.RenderedMessage
	agent        model.AgentInfo
	typing       bool
	inputEnabled bool
	confirm      *confirmMsg
	status       string

	input    textinput.Model
	timeline viewport.Model
	spinner  spinner.Model
}

// NewModel 创建终端界面
func NewModel(ctx context.Context, ctrl Controller, renderer *Renderer, logger *zap.Logger) Model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 4000
	input.Placeholder = "Type your message..."

	fields := make([]textinput.Model, fieldCount)
	placeholders := []string{"Name", "Email", "Language", "Department"}
	for i := range fields {
		f := textinput.New()
		f.Placeholder = placeholders[i]
		f.CharLimit = 200
		fields[i] = f
	}

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1"))

	return Model{
		ctx:      ctx,
		ctrl:     ctrl,
		renderer: renderer,
		logger:   logger,
		theme:    newTheme(),
		fields:   fields,
		input:    input,
		timeline: viewport.New(0, 0),
		spinner:  sp,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.renderer.waitEvent(),
		m.run("toggle", func() error { return m.ctrl.Toggle() }),
	)
}

// run 在后台执行挂件命令，挂件的展示指令经由 Renderer 回到界面
func (m Model) run(name string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return commandDoneMsg{name: name, err: fn()}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case commandDoneMsg:
		m.status = m.describe(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	default:
		if m.apply(msg) {
			cmds = append(cmds, m.renderer.waitEvent())
		}
	}

	return m, tea.Batch(cmds...)
}

// apply 处理 Renderer 投递的展示指令
func (m *Model) apply(msg tea.Msg) bool {
	switch msg := msg.(type) {
	case windowMsg:
		m.visible = msg.visible
	case preChatMsg:
		m.mode = modeForm
		m.form = msg.form
		m.fillForm(msg.form.Prefill)
	case conversationMsg:
		m.mode = modeChat
		m.fields[m.focus].Blur()
		m.input.Focus()
	case appendMsg:
		m.messages = append(m.messages, msg.msg)
		m.refreshTimeline()
	case clearMsg:
		m.messages = nil
		m.refreshTimeline()
	case typingMsg:
		m.typing = msg.visible
	case agentMsg:
		m.agent = msg.agent
	case inputMsg:
		m.inputEnabled = msg.enabled
	case confirmMsg:
		c := msg
		m.confirm = &c
	default:
		return false
	}
	return true
}

func (m *Model) fillForm(prefill model.CustomerInfo) {
	values := []string{prefill.Name, prefill.Email, prefill.Language, prefill.Department}
	for i := range m.fields {
		m.fields[i].SetValue(values[i])
		m.fields[i].Blur()
	}
	m.focus = fieldName
	m.fields[m.focus].Focus()
	m.input.Blur()
}

func (m Model) describe(msg commandDoneMsg) string {
	var verr *widget.ValidationError
	switch {
	case msg.err == nil:
		return ""
	case errors.As(msg.err, &verr):
		// 校验失败已作为系统消息展示
		return ""
	case errors.Is(msg.err, widget.ErrWaiting):
		return "Waiting for the agent to reply..."
	case errors.Is(msg.err, widget.ErrStaleResponse):
		return ""
	}
	m.logger.Warn("命令处理失败", zap.String("command", msg.name), zap.Error(msg.err))
	return fmt.Sprintf("%s failed: %v", msg.name, msg.err)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}

	if m.confirm != nil {
		switch key {
		case "y", "Y", "enter":
			m.confirm.reply <- true
			m.confirm = nil
		case "n", "N", "esc":
			m.confirm.reply <- false
			m.confirm = nil
		}
		return m, nil
	}

	switch key {
	case "ctrl+t":
		return m, m.run("toggle", func() error { return m.ctrl.Toggle() })
	case "ctrl+e":
		return m, m.run("end session", func() error { return m.ctrl.EndSession(m.ctx) })
	}

	if !m.visible {
		return m, nil
	}

	switch m.mode {
	case modeForm:
		return m.handleFormKey(msg)
	case modeChat:
		return m.handleChatKey(msg)
	}
	return m, nil
}

func (m Model) handleFormKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "tab", "down":
		m.moveFocus(1)
		return m, nil
	case "shift+tab", "up":
		m.moveFocus(-1)
		return m, nil
	case "enter":
		if m.focus < fieldCount-1 {
			m.moveFocus(1)
			return m, nil
		}
		info := m.formValues()
		return m, m.run("start chat", func() error { return m.ctrl.SubmitPreChat(m.ctx, info) })
	}

	var cmd tea.Cmd
	m.fields[m.focus], cmd = m.fields[m.focus].Update(msg)
	return m, cmd
}

func (m Model) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if text == "" || !m.inputEnabled {
			return m, nil
		}
		m.input.SetValue("")
		return m, m.run("send", func() error { return m.ctrl.Send(m.ctx, text) })
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.timeline, cmd = m.timeline.Update(msg)
		return m, cmd
	}

	if !m.inputEnabled {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) moveFocus(delta int) {
	m.fields[m.focus].Blur()
	m.focus = (m.focus + delta + fieldCount) % fieldCount
	m.fields[m.focus].Focus()
}

func (m Model) formValues() model.CustomerInfo {
	return model.CustomerInfo{
		Name:       m.fields[fieldName].Value(),
		Email:      m.fields[fieldEmail].Value(),
		Language:   m.fields[fieldLanguage].Value(),
		Department: m.fields[fieldDepartment].Value(),
	}
}

func (m *Model) resize() {
	w := m.width - 4
	if w < 20 {
		w = 20
	}
	h := m.height - 8
	if h < 3 {
		h = 3
	}
	m.timeline.Width = w
	m.timeline.Height = h
	m.input.Width = w - 4
	m.refreshTimeline()
}

func (m *Model) refreshTimeline() {
	lines := make([]string, 0, len(m.messages))
	for _, msg := range m.messages {
		lines = append(lines, m.renderMessage(msg))
	}
	m.timeline.SetContent(strings.Join(lines, "\n\n"))
	m.timeline.GotoBottom()
}

func (m Model) renderMessage(msg widget.RenderedMessage) string {
	text := terminalText(msg.HTML, m.theme)
	switch msg.Role {
	case model.RoleUser:
		return m.theme.user.Render("You") + "\n" + text
	case model.RoleAgent:
		name := msg.AgentName
		if name == "" {
			name = "Agent"
		}
		return m.theme.agent.Render(name) + "\n" + text
	}
	return m.theme.system.Render(text)
}

func (m Model) View() string {
	if !m.visible {
		return m.theme.footer.Render("Chat hidden · ctrl+t open · ctrl+c quit") + "\n"
	}

	var b strings.Builder
	title := "Support chat"
	if m.agent.Bound() {
		title = "Chatting with " + m.agent.Name
	}
	b.WriteString(m.theme.header.Render(title))
	b.WriteString("\n")

	switch m.mode {
	case modeForm:
		b.WriteString(m.theme.panel.Render(m.formView()))
	case modeChat:
		b.WriteString(m.theme.panel.Render(m.timeline.View()))
		b.WriteString("\n")
		if m.typing {
			b.WriteString(m.spinner.View() + " agent is typing\n")
		}
		b.WriteString(m.input.View())
	}
	b.WriteString("\n")

	if m.confirm != nil {
		b.WriteString(m.theme.confirm.Render(m.confirm.prompt + " [y/n]"))
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString(m.theme.errText.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(m.theme.footer.Render("enter send · ctrl+e end session · ctrl+t hide · ctrl+c quit"))
	return b.String()
}

func (m Model) formView() string {
	labels := []string{"Name", "Email", "Language", "Department"}
	var b strings.Builder
	b.WriteString("Please introduce yourself before we start.\n\n")
	for i, f := range m.fields {
		b.WriteString(m.theme.label.Render(labels[i]))
		b.WriteString(f.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.theme.footer.Render("Languages: " + strings.Join(m.form.Languages, ", ")))
	b.WriteString("\n")
	b.WriteString(m.theme.footer.Render("Departments: " + strings.Join(m.form.Departments, ", ")))

	// 系统提示（如校验失败）在表单下方展示
	for _, msg := range m.messages {
		if msg.Role == model.RoleSystem {
			b.WriteString("\n")
			b.WriteString(m.theme.system.Render(terminalText(msg.HTML, m.theme)))
		}
	}
	return b.String()
}

var (
	strongTag = regexp.MustCompile(`<strong>(.*?)</strong>`)
	emTag     = regexp.MustCompile(`<em>(.*?)</em>`)
	anchorTag = regexp.MustCompile(`<a href="([^"]*)"[^>]*>(.*?)</a>`)
)

// terminalText 将格式化后的消息转换为终端样式文本
func terminalText(s string, theme uiTheme) string {
	s = strings.ReplaceAll(s, "<br>", "\n")
	s = strongTag.ReplaceAllStringFunc(s, func(m string) string {
		return theme.bold.Render(strongTag.FindStringSubmatch(m)[1])
	})
	s = emTag.ReplaceAllStringFunc(s, func(m string) string {
		return theme.italic.Render(emTag.FindStringSubmatch(m)[1])
	})
	s = anchorTag.ReplaceAllStringFunc(s, func(m string) string {
		parts := anchorTag.FindStringSubmatch(m)
		return theme.link.Render(parts[2]) + " (" + html.UnescapeString(parts[1]) + ")"
	})
	return html.UnescapeString(s)
}
