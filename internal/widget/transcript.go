package widget

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/supportbot/chatwidget-go/internal/client"
	"github.com/supportbot/chatwidget-go/internal/model"
)

// wireHistory 将会话消息转换为后端历史格式，agent 映射为 assistant，系统消息不发送
func wireHistory(msgs []model.Message) []client.HistoryTurn {
	turns := make([]client.HistoryTurn, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role() {
		case model.RoleUser:
			turns = append(turns, client.HistoryTurn{Role: "user", Content: m.Text})
		case model.RoleAgent:
			turns = append(turns, client.HistoryTurn{Role: "assistant", Content: m.Text})
		}
	}
	return turns
}

// Transcript 按时间顺序生成 "角色: 内容" 形式的会话记录
func Transcript(msgs []model.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role() {
		case model.RoleUser:
			lines = append(lines, "User: "+m.Text)
		case model.RoleAgent:
			name := m.AgentName
			if name == "" {
				name = "Agent"
			}
			lines = append(lines, name+": "+m.Text)
		}
	}
	return strings.Join(lines, "\n")
}

// ticketRequestLocked 使用访客所选部门的客服构造工单请求
func (w *Widget) ticketRequestLocked() (client.TicketRequest, bool) {
	rec, ok := w.dir.AgentFor(w.customer.Department)
	if !ok {
		return client.TicketRequest{}, false
	}

	platform := rec.HelpdeskPlatform
	if platform == "" {
		platform = w.opts.DefaultPlatform
	}
	var departmentID *string
	if rec.HelpdeskDepartmentID != "" {
		id := rec.HelpdeskDepartmentID
		departmentID = &id
	}
	agentName := w.agent.Name
	if agentName == "" {
		agentName = "Unknown Agent"
	}

	return client.TicketRequest{
		UserID:        w.opts.UserID,
		AgentID:       rec.ID,
		Message:       w.live[0].Text,
		Response:      Transcript(w.live),
		Platform:      platform,
		DepartmentID:  departmentID,
		CustomerEmail: w.customer.Email,
		CustomerName:  w.customer.Name,
		AgentName:     agentName,
	}, true
}

func ticketNotice(ticketID string, err error) string {
	if err == nil {
		return "Session ended. Ticket created: " + ticketID
	}
	var statusErr *client.StatusError
	if errors.As(err, &statusErr) {
		return "Failed to create ticket: " + statusErr.Detail
	}
	return "Error creating ticket: " + err.Error()
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Minute && d%time.Minute == 0:
		if n := int(d / time.Minute); n != 1 {
			return fmt.Sprintf("%d minutes", n)
		}
		return "1 minute"
	case d >= time.Second:
		return fmt.Sprintf("%d seconds", int(d/time.Second))
	}
	return d.String()
}
