package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/supportbot/chatwidget-go/internal/model"
	"github.com/supportbot/chatwidget-go/internal/widget"
	"go.uber.org/zap"
)

type fakeController struct {
	mu       sync.Mutex
	toggles  int
	prechats []model.CustomerInfo
	sends    []string
	ends     int
	sendErr  error
}

func (f *fakeController) Toggle() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggles++
	return nil
}

func (f *fakeController) SubmitPreChat(ctx context.Context, info model.CustomerInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prechats = append(f.prechats, info)
	return nil
}

func (f *fakeController) Send(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, text)
	return f.sendErr
}

func (f *fakeController) EndSession(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ends++
	return nil
}

func newTestModel(t *testing.T) (Model, *fakeController, *Renderer) {
	t.Helper()
	ctrl := &fakeController{}
	r := NewRenderer()
	t.Cleanup(r.Shutdown)
	m := NewModel(context.Background(), ctrl, r, zap.NewNop())
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return next.(Model), ctrl, r
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "ctrl+e":
		return tea.KeyMsg{Type: tea.KeyCtrlE}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	for _, r := range text {
		m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func TestModelAppliesRendererEvents(t *testing.T) {
	m, _, _ := newTestModel(t)

	m, cmd := update(t, m, windowMsg{visible: true})
	if !m.visible || cmd == nil {
		t.Fatal("expected window visible and a follow-up wait command")
	}

	m, _ = update(t, m, preChatMsg{form: widget.PreChatForm{
		Departments: []string{"Sales"},
		Languages:   []string{"English"},
		Prefill:     model.CustomerInfo{Name: "Ana", Language: "English", Department: "Sales"},
	}})
	if m.mode != modeForm {
		t.Fatalf("expected form mode, got %d", m.mode)
	}
	if got := m.formValues(); got.Name != "Ana" || got.Department != "Sales" {
		t.Errorf("prefill not applied: %+v", got)
	}

	m, _ = update(t, m, conversationMsg{})
	m, _ = update(t, m, agentMsg{agent: model.AgentInfo{Name: "Sam"}})
	m, _ = update(t, m, appendMsg{msg: widget.RenderedMessage{Role: model.RoleAgent, AgentName: "Sam", HTML: "Hi <strong>there</strong>"}})
	m, _ = update(t, m, typingMsg{visible: true})

	if m.mode != modeChat || len(m.messages) != 1 || !m.typing {
		t.Fatalf("unexpected model state mode=%d messages=%d typing=%v", m.mode, len(m.messages), m.typing)
	}
	view := m.View()
	if !strings.Contains(view, "Chatting with Sam") || !strings.Contains(view, "there") {
		t.Errorf("view missing conversation:\n%s", view)
	}

	m, _ = update(t, m, clearMsg{})
	if len(m.messages) != 0 {
		t.Error("expected messages cleared")
	}
}

func TestModelFormSubmit(t *testing.T) {
	m, ctrl, _ := newTestModel(t)
	m, _ = update(t, m, windowMsg{visible: true})
	m, _ = update(t, m, preChatMsg{form: widget.PreChatForm{Prefill: model.CustomerInfo{Language: "English", Department: "Sales"}}})

	m = typeText(t, m, "Ana")
	m, _ = update(t, m, key("tab"))
	m = typeText(t, m, "ana@x.com")
	m, _ = update(t, m, key("enter"))
	m, _ = update(t, m, key("enter"))
	m, cmd := update(t, m, key("enter"))
	if cmd == nil {
		t.Fatal("expected submit command on last field")
	}

	done, ok := cmd().(commandDoneMsg)
	if !ok || done.err != nil {
		t.Fatalf("unexpected command result %+v", done)
	}
	want := model.CustomerInfo{Name: "Ana", Email: "ana@x.com", Language: "English", Department: "Sales"}
	if len(ctrl.prechats) != 1 || ctrl.prechats[0] != want {
		t.Errorf("submitted %+v, want %+v", ctrl.prechats, want)
	}
}

func TestModelSendRespectsInputState(t *testing.T) {
	m, ctrl, _ := newTestModel(t)
	m, _ = update(t, m, windowMsg{visible: true})
	m, _ = update(t, m, conversationMsg{})

	m = typeText(t, m, "hello")
	if m.input.Value() != "" {
		t.Fatal("typing must be ignored while input is disabled")
	}

	m, _ = update(t, m, inputMsg{enabled: true})
	m = typeText(t, m, "hello")
	m, cmd := update(t, m, key("enter"))
	if cmd == nil {
		t.Fatal("expected send command")
	}
	cmd()
	if len(ctrl.sends) != 1 || ctrl.sends[0] != "hello" {
		t.Errorf("unexpected sends %v", ctrl.sends)
	}
	if m.input.Value() != "" {
		t.Error("input must be cleared after send")
	}
}

func TestModelReportsCommandErrors(t *testing.T) {
	m, _, _ := newTestModel(t)

	m, _ = update(t, m, commandDoneMsg{name: "send", err: errors.New("boom")})
	if !strings.Contains(m.status, "boom") {
		t.Errorf("expected status to mention error, got %q", m.status)
	}
	m, _ = update(t, m, commandDoneMsg{name: "start chat", err: &widget.ValidationError{Field: "email", Message: "bad"}})
	if m.status != "" {
		t.Errorf("validation errors are shown as system messages, got status %q", m.status)
	}
}

func TestModelConfirmRoundTrip(t *testing.T) {
	m, ctrl, r := newTestModel(t)
	m, _ = update(t, m, windowMsg{visible: true})

	_, cmd := update(t, m, key("ctrl+e"))
	cmd()
	if ctrl.ends != 1 {
		t.Fatalf("expected EndSession to be invoked, got %d", ctrl.ends)
	}

	result := make(chan bool, 1)
	go func() { result <- r.Confirm("End session?") }()

	msg := r.waitEvent()()
	m, _ = update(t, m, msg)
	if m.confirm == nil || !strings.Contains(m.View(), "End session? [y/n]") {
		t.Fatal("expected confirmation prompt to be shown")
	}

	m, _ = update(t, m, key("n"))
	select {
	case ok := <-result:
		if ok {
			t.Error("expected declined confirmation")
		}
	case <-time.After(time.Second):
		t.Fatal("Confirm did not return")
	}
	if m.confirm != nil {
		t.Error("prompt must be dismissed")
	}
}

func TestRendererShutdownReleasesConfirm(t *testing.T) {
	r := NewRenderer()
	result := make(chan bool, 1)
	go func() { result <- r.Confirm("End session?") }()

	r.Shutdown()
	r.Shutdown()

	select {
	case ok := <-result:
		if ok {
			t.Error("shutdown must decline the confirmation")
		}
	case <-time.After(time.Second):
		t.Fatal("Confirm did not return after shutdown")
	}
	if msg := r.waitEvent()(); msg != nil {
		if _, ok := msg.(confirmMsg); !ok {
			t.Errorf("unexpected message after shutdown: %T", msg)
		}
	}
}

func TestTerminalText(t *testing.T) {
	theme := newTheme()
	got := terminalText(`a&lt;b&gt;<br><a href="https://x.com/?q=&quot;1&quot;" target="_blank" rel="noopener noreferrer">docs</a>`, theme)

	if !strings.Contains(got, "a<b>\n") {
		t.Errorf("entities or line breaks not converted: %q", got)
	}
	if !strings.Contains(got, `(https://x.com/?q="1")`) {
		t.Errorf("link target missing: %q", got)
	}
	if strings.Contains(got, "<a ") || strings.Contains(got, "<br>") {
		t.Errorf("html tags left in output: %q", got)
	}
}
