package model

import "regexp"

// SupportedLanguages 挂件支持的十种对话语言
var SupportedLanguages = []string{
	"English", "Spanish", "French", "German", "Italian",
	"Portuguese", "Russian", "Chinese", "Japanese", "Korean",
}

// DefaultLanguage 未指定语言时使用
const DefaultLanguage = "English"

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// CustomerInfo 访客在预聊天表单中填写的身份信息
type CustomerInfo struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Language   string `json:"language"`
	Department string `json:"department"`
}

// Started 四个字段全部非空时会话才算开始
func (c CustomerInfo) Started() bool {
	return c.Name != "" && c.Email != "" && c.Language != "" && c.Department != ""
}

// Identified 姓名和邮箱已知（创建工单所需）
func (c CustomerInfo) Identified() bool {
	return c.Name != "" && c.Email != ""
}

// ValidEmail 检查邮箱是否满足 local@domain.tld 形式
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// SupportedLanguage 检查语言是否在支持列表中
func SupportedLanguage(lang string) bool {
	for _, l := range SupportedLanguages {
		if l == lang {
			return true
		}
	}
	return false
}
