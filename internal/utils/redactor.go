package utils

import (
	"net/http"
	"sort"
	"strings"
)

// SensitiveKeywords 头部名称包含这些关键字时需要脱敏
var SensitiveKeywords = []string{
	"authorization",
	"apikey",
	"api-key",
	"token",
	"secret",
	"cookie",
}

// HeaderRedactor 头部脱敏器
type HeaderRedactor struct {
	sensitiveKeywords []string
}

// NewHeaderRedactor 创建头部脱敏器
func NewHeaderRedactor() *HeaderRedactor {
	return &HeaderRedactor{sensitiveKeywords: SensitiveKeywords}
}

// IsSensitiveHeader 检查头部是否为敏感头部
func (hr *HeaderRedactor) IsSensitiveHeader(name string) bool {
	nameLower := strings.ToLower(name)
	for _, keyword := range hr.sensitiveKeywords {
		if strings.Contains(nameLower, keyword) {
			return true
		}
	}
	return false
}

// RedactHeaderValue 脱敏单个头部值
func (hr *HeaderRedactor) RedactHeaderValue(name, value string) string {
	if !hr.IsSensitiveHeader(name) {
		return value
	}
	if strings.HasPrefix(value, "Bearer ") {
		return "Bearer ***"
	}
	// 长密钥保留首尾4位便于排查
	if len(value) > 12 {
		return value[:4] + "***" + value[len(value)-4:]
	}
	return "***"
}

// Redact 返回脱敏后的头部 (用于日志)
func (hr *HeaderRedactor) Redact(headers http.Header) map[string]string {
	result := make(map[string]string, len(headers))
	for name, values := range headers {
		if len(values) == 0 {
			continue
		}
		result[name] = hr.RedactHeaderValue(name, values[0])
	}
	return result
}

// RedactToString 脱敏并格式化为 "A: 1, B: 2", 按名称排序
func (hr *HeaderRedactor) RedactToString(headers http.Header) string {
	redacted := hr.Redact(headers)
	names := make([]string, 0, len(redacted))
	for name := range redacted {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+redacted[name])
	}
	return strings.Join(parts, ", ")
}
