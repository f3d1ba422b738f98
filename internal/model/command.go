package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// 网关入站命令类型
const (
	CommandToggle     = "TOGGLE"
	CommandPreChat    = "PRECHAT"
	CommandSend       = "SEND"
	CommandEndSession = "END_SESSION"
	CommandConfirm    = "CONFIRM"
	CommandHeartbeat  = "HEARTBEAT"
)

// 网关出站事件类型
const (
	EventWindow       = "WINDOW"
	EventPreChatForm  = "PRECHAT_FORM"
	EventConversation = "CONVERSATION"
	EventMessage      = "MESSAGE"
	EventClear        = "CLEAR"
	EventTyping       = "TYPING"
	EventAgent        = "AGENT"
	EventInput        = "INPUT"
	EventConfirm      = "CONFIRM"
	EventError        = "ERROR"
)

// ErrMalformedCommand 无法识别的命令
var ErrMalformedCommand = errors.New("malformed command")

// Command 页面发往网关的命令
type Command struct {
	Type      string        `json:"type"`
	Text      string        `json:"text,omitempty"`
	Customer  *CustomerInfo `json:"customer,omitempty"`
	Confirmed bool          `json:"confirmed,omitempty"`
}

// Event 网关推送给页面的展示指令
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// ParseCommand 解析并校验一条入站命令
func ParseCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}

	switch cmd.Type {
	case CommandToggle, CommandEndSession, CommandConfirm, CommandHeartbeat:
	case CommandPreChat:
		if cmd.Customer == nil {
			return Command{}, fmt.Errorf("%w: PRECHAT requires customer", ErrMalformedCommand)
		}
	case CommandSend:
		if cmd.Text == "" {
			return Command{}, fmt.Errorf("%w: SEND requires text", ErrMalformedCommand)
		}
	case "":
		return Command{}, fmt.Errorf("%w: missing type", ErrMalformedCommand)
	default:
		return Command{}, fmt.Errorf("%w: unknown type %q", ErrMalformedCommand, cmd.Type)
	}
	return cmd, nil
}
