// Package directory 将宿主页面声明的客服 ID 解析为客服记录和部门列表。
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/supportbot/chatwidget-go/internal/model"
	"go.uber.org/zap"
)

// ErrNoMatchingAgents 账号下没有任何已声明的客服
var ErrNoMatchingAgents = errors.New("no agents match the declared ids")

// DirectoryError 客服目录获取或匹配失败；挂件降级为默认部门继续加载
type DirectoryError struct {
	UserID string
	Err    error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("agent directory for %s: %v", e.UserID, e.Err)
}

func (e *DirectoryError) Unwrap() error { return e.Err }

// AgentLister 客服目录来源
type AgentLister interface {
	ListAgents(ctx context.Context, userID string) ([]model.AgentRecord, error)
}

// Directory 本次页面加载解析出的客服与部门，解析后不再变化
type Directory struct {
	Agents      []model.AgentRecord
	Departments []string
}

// Fallback 没有可用客服时的目录
func Fallback() Directory {
	return Directory{Departments: []string{model.DefaultDepartment}}
}

// AgentFor 返回部门下的第一个客服
func (d Directory) AgentFor(department string) (model.AgentRecord, bool) {
	for _, a := range d.Agents {
		if a.DepartmentLabel() == department {
			return a, true
		}
	}
	return model.AgentRecord{}, false
}

// HasDepartment 部门是否在解析结果中
func (d Directory) HasDepartment(department string) bool {
	for _, dept := range d.Departments {
		if dept == department {
			return true
		}
	}
	return false
}

// Resolver 客服目录解析器
type Resolver struct {
	lister AgentLister
	logger *zap.Logger
}

// NewResolver 创建客服目录解析器
func NewResolver(lister AgentLister, logger *zap.Logger) *Resolver {
	return &Resolver{lister: lister, logger: logger}
}

// Resolve 获取账号客服并过滤为已声明的 ID。
// 任何失败都降级为单一 General 部门，第二个返回值说明降级原因。
func (r *Resolver) Resolve(ctx context.Context, userID string, declared []string) (Directory, error) {
	all, err := r.lister.ListAgents(ctx, userID)
	if err != nil {
		dirErr := &DirectoryError{UserID: userID, Err: err}
		r.logger.Error("获取客服目录失败，使用默认部门", zap.String("userId", userID), zap.Error(err))
		return Fallback(), dirErr
	}

	allowed := make(map[string]struct{}, len(declared))
	for _, id := range declared {
		allowed[id] = struct{}{}
	}

	var agents []model.AgentRecord
	for _, a := range all {
		if _, ok := allowed[a.ID]; ok {
			agents = append(agents, a)
		}
	}

	if len(agents) == 0 {
		r.logger.Error("没有与声明匹配的客服",
			zap.String("userId", userID),
			zap.Strings("declared", declared),
			zap.Int("available", len(all)))
		return Fallback(), &DirectoryError{UserID: userID, Err: ErrNoMatchingAgents}
	}

	seen := make(map[string]struct{})
	var departments []string
	for _, a := range agents {
		dept := a.DepartmentLabel()
		if _, ok := seen[dept]; ok {
			continue
		}
		seen[dept] = struct{}{}
		departments = append(departments, dept)
	}

	r.logger.Info("客服目录已解析",
		zap.String("userId", userID),
		zap.Int("agents", len(agents)),
		zap.Strings("departments", departments))
	return Directory{Agents: agents, Departments: departments}, nil
}
