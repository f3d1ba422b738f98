package model

// DefaultDepartment 没有可用客服时的兜底部门
const DefaultDepartment = "General"

// AgentRecord 客服目录中的一条记录
type AgentRecord struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	AvatarURL            string `json:"avatar_url,omitempty"`
	Department           string `json:"department,omitempty"`
	HelpdeskPlatform     string `json:"helpdesk_platform,omitempty"`
	HelpdeskDepartmentID string `json:"helpdesk_department_id,omitempty"`
}

// DepartmentLabel 返回部门名称，未设置时归入 General
func (a AgentRecord) DepartmentLabel() string {
	if a.Department == "" {
		return DefaultDepartment
	}
	return a.Department
}

// Info 转换为会话中绑定的客服信息
func (a AgentRecord) Info() AgentInfo {
	return AgentInfo{ID: a.ID, Name: a.Name, AvatarURL: a.AvatarURL}
}

// AgentInfo 当前会话绑定的客服
type AgentInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Bound 是否已绑定客服
func (a AgentInfo) Bound() bool {
	return a.Name != ""
}
