// Package sanitize 将原始消息文本转换为受限的安全 HTML 子集。
package sanitize

import (
	"html"
	"regexp"
	"strings"
)

var (
	boldPattern   = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicPattern = regexp.MustCompile(`(^|[^\\](?:\\\\)*)[*_](.*?)[*_]`)
	linkPattern   = regexp.MustCompile(`\[([^\]]+)]\(([^)]+)\)`)

	angleEscaper = strings.NewReplacer("<", "&lt;", ">", "&gt;")
)

// Format 转义尖括号后依次处理粗体、斜体、链接和换行。
// 转义必须先于标签生成；粗体必须先于单星号斜体。
func Format(text string) string {
	if text == "" {
		return ""
	}

	text = angleEscaper.Replace(text)
	text = boldPattern.ReplaceAllString(text, "<strong>${1}</strong>")
	text = italicPattern.ReplaceAllString(text, "${1}<em>${2}</em>")
	text = linkPattern.ReplaceAllStringFunc(text, func(m string) string {
		parts := linkPattern.FindStringSubmatch(m)
		if !safeHref(parts[2]) {
			return m
		}
		href := strings.ReplaceAll(parts[2], `"`, "&quot;")
		return `<a href="` + href + `" target="_blank" rel="noopener noreferrer">` + parts[1] + `</a>`
	})
	return strings.ReplaceAll(text, "\n", "<br>")
}

// safeHref 只允许 http、https、mailto 和相对地址。
// 判断前先还原实体并去掉空白和控制字符，与浏览器解析 href 的方式一致。
func safeHref(href string) bool {
	s := strings.Map(func(r rune) rune {
		if r <= ' ' || r == 0x7f {
			return -1
		}
		return r
	}, html.UnescapeString(href))

	i := strings.IndexAny(s, ":/?#")
	if i < 0 || s[i] != ':' {
		return true
	}
	switch strings.ToLower(s[:i]) {
	case "http", "https", "mailto":
		return true
	}
	return false
}
