package model

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Role 消息角色
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// Valid 是否为已知角色
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAgent, RoleSystem:
		return true
	}
	return false
}

// Message 对话中的一条消息。
// 用户和客服消息携带发送时的访客信息快照，客服消息另带客服信息快照，
// 使持久化记录在页面重载后无需关联当前状态即可自描述。
type Message struct {
	ID            string
	Text          string
	role          Role
	AvatarURL     string
	AgentName     string
	AgentID       string
	CustomerName  string
	CustomerEmail string
	Language      string
	Department    string
}

// NewUserMessage 创建访客消息
func NewUserMessage(text string, customer CustomerInfo) Message {
	m := Message{ID: uuid.NewString(), Text: text, role: RoleUser}
	m.snapshotCustomer(customer)
	return m
}

// NewAgentMessage 创建客服消息
func NewAgentMessage(text string, customer CustomerInfo, agent AgentInfo) Message {
	m := Message{
		ID:        uuid.NewString(),
		Text:      text,
		role:      RoleAgent,
		AvatarURL: agent.AvatarURL,
		AgentName: agent.Name,
		AgentID:   agent.ID,
	}
	m.snapshotCustomer(customer)
	return m
}

// NewSystemMessage 创建系统提示消息（仅本地展示）
func NewSystemMessage(text string) Message {
	return Message{ID: uuid.NewString(), Text: text, role: RoleSystem}
}

func (m *Message) snapshotCustomer(c CustomerInfo) {
	m.CustomerName = c.Name
	m.CustomerEmail = c.Email
	m.Language = c.Language
	m.Department = c.Department
}

// Role 返回消息角色；角色在创建后不可变
func (m Message) Role() Role {
	return m.role
}

// Agent 从快照还原客服信息
func (m Message) Agent() AgentInfo {
	return AgentInfo{ID: m.AgentID, Name: m.AgentName, AvatarURL: m.AvatarURL}
}

// Customer 从快照还原访客信息
func (m Message) Customer() CustomerInfo {
	return CustomerInfo{
		Name:       m.CustomerName,
		Email:      m.CustomerEmail,
		Language:   m.Language,
		Department: m.Department,
	}
}

type messageJSON struct {
	ID            string `json:"id,omitempty"`
	Text          string `json:"text"`
	Role          Role   `json:"role"`
	AvatarURL     string `json:"avatarUrl,omitempty"`
	AgentName     string `json:"agentName,omitempty"`
	AgentID       string `json:"agentId,omitempty"`
	CustomerName  string `json:"customerName,omitempty"`
	CustomerEmail string `json:"customerEmail,omitempty"`
	Language      string `json:"language,omitempty"`
	Department    string `json:"department,omitempty"`
}

// MarshalJSON 实现 json.Marshaler
func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(messageJSON{
		ID:            m.ID,
		Text:          m.Text,
		Role:          m.role,
		AvatarURL:     m.AvatarURL,
		AgentName:     m.AgentName,
		AgentID:       m.AgentID,
		CustomerName:  m.CustomerName,
		CustomerEmail: m.CustomerEmail,
		Language:      m.Language,
		Department:    m.Department,
	})
}

// UnmarshalJSON 实现 json.Unmarshaler
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !raw.Role.Valid() {
		return fmt.Errorf("unknown message role %q", raw.Role)
	}
	*m = Message{
		ID:            raw.ID,
		Text:          raw.Text,
		role:          raw.Role,
		AvatarURL:     raw.AvatarURL,
		AgentName:     raw.AgentName,
		AgentID:       raw.AgentID,
		CustomerName:  raw.CustomerName,
		CustomerEmail: raw.CustomerEmail,
		Language:      raw.Language,
		Department:    raw.Department,
	}
	return nil
}

// CloneMessages 复制消息切片，保证调用方与内部状态不共享底层数组
func CloneMessages(msgs []Message) []Message {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
