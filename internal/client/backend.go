package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/supportbot/chatwidget-go/internal/model"
	"go.uber.org/zap"
)

// ErrEmptyResponse 后端返回成功但回复内容为空
var ErrEmptyResponse = errors.New("received empty response")

// StatusError 后端返回非 2xx 状态码
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Server error %d: %s", e.StatusCode, e.Detail)
}

// BackendClient 客服后端客户端（客服目录、对话、工单）
type BackendClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewBackendClient 创建客服后端客户端
func NewBackendClient(baseURL string, timeout time.Duration, logger *zap.Logger) *BackendClient {
	return &BackendClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// HistoryTurn 发送给后端的历史轮次
type HistoryTurn struct {
	Role    string `json:"role"` // user, assistant
	Content string `json:"content"`
}

// ChatRequest 对话请求
type ChatRequest struct {
	UserID        string        `json:"user_id"`
	Message       string        `json:"message"`
	Department    string        `json:"department"`
	APIKey        string        `json:"api_key"`
	History       []HistoryTurn `json:"history"`
	CustomerEmail string        `json:"customer_email"`
	CustomerName  string        `json:"customer_name"`
	Language      string        `json:"language"`
}

// ChatReply 对话回复
type ChatReply struct {
	Response  string `json:"response"`
	Agent     string `json:"agent,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// TicketRequest 工单创建请求
type TicketRequest struct {
	UserID        string  `json:"user_id"`
	AgentID       string  `json:"agent_id"`
	Message       string  `json:"message"`
	Response      string  `json:"response"`
	Platform      string  `json:"platform"`
	DepartmentID  *string `json:"department_id"`
	CustomerEmail string  `json:"customer_email"`
	CustomerName  string  `json:"customer_name"`
	AgentName     string  `json:"agent_name"`
}

type ticketReply struct {
	TicketID json.RawMessage `json:"ticket_id"`
}

type agentsReply struct {
	Agents []model.AgentRecord `json:"agents"`
}

// ListAgents 获取账号下的全部客服
func (c *BackendClient) ListAgents(ctx context.Context, userID string) ([]model.AgentRecord, error) {
	apiURL := fmt.Sprintf("%s/list_agents?user_id=%s", c.baseURL, url.QueryEscape(userID))

	var reply agentsReply
	if err := c.do(ctx, http.MethodGet, apiURL, nil, &reply); err != nil {
		return nil, fmt.Errorf("获取客服列表失败: %w", err)
	}

	c.logger.Debug("客服列表已获取", zap.String("userId", userID), zap.Int("count", len(reply.Agents)))
	return reply.Agents, nil
}

// SendMessage 发送访客消息并返回客服回复；不重试
func (c *BackendClient) SendMessage(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	if req.History == nil {
		req.History = []HistoryTurn{}
	}

	var reply ChatReply
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/chat_widget", req, &reply); err != nil {
		return nil, err
	}
	if reply.Response == "" {
		return nil, ErrEmptyResponse
	}

	c.logger.Info("收到客服回复",
		zap.String("userId", req.UserID),
		zap.String("department", req.Department),
		zap.String("agent", reply.Agent))
	return &reply, nil
}

// CreateTicket 根据会话记录创建工单，返回工单号
func (c *BackendClient) CreateTicket(ctx context.Context, req TicketRequest) (string, error) {
	var reply ticketReply
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/create_ticket", req, &reply); err != nil {
		return "", err
	}

	id, err := decodeTicketID(reply.TicketID)
	if err != nil {
		return "", err
	}

	c.logger.Info("工单已创建",
		zap.String("userId", req.UserID),
		zap.String("agentId", req.AgentID),
		zap.String("ticketId", id))
	return id, nil
}

// ticket_id 可能是字符串或数字
func decodeTicketID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", errors.New("missing ticket_id in response")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("解析工单号失败: %w", err)
	}
	return n.String(), nil
}

func (c *BackendClient) do(ctx context.Context, method, apiURL string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("序列化请求失败: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("调用客服后端", zap.String("method", method), zap.String("url", apiURL))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Detail: errorDetail(data)}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	return nil
}

// errorDetail 优先取 JSON 中的 detail 字段，否则使用原始响应体
func errorDetail(body []byte) string {
	var payload struct {
		Detail interface{} `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != nil {
		if s, ok := payload.Detail.(string); ok {
			return s
		}
		if b, err := json.Marshal(payload.Detail); err == nil {
			return string(b)
		}
	}
	return strings.TrimSpace(string(body))
}
