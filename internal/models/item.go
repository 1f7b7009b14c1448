package models

import (
	"fmt"
	"net/http"
)

// ItemRecord 从单个物品页提取的物品记录
type ItemRecord struct {
	GameID      int64   `json:"game_id"`               // 物品ID (远端表主键)
	NameEnglish string  `json:"name_en"`               // 英文名称,保证非空
	IconURL     *string `json:"icon_url"`              // 图标URL,未找到时为nil
	Description *string `json:"description,omitempty"` // 描述,未找到时为nil
	SourceURL   string  `json:"source_url"`            // 来源页面URL
}

// UpsertPayload 发送给REST接口的精简投影
// 仅包含三个字段,description不会被发送
type UpsertPayload struct {
	GameID      int64   `json:"game_id"`
	NameEnglish string  `json:"name_en"`
	IconURL     *string `json:"icon_url"`
}

// Payload 返回记录的REST投影
func (r *ItemRecord) Payload() UpsertPayload {
	return UpsertPayload{
		GameID:      r.GameID,
		NameEnglish: r.NameEnglish,
		IconURL:     r.IconURL,
	}
}

// Page 一次GET请求的结果
type Page struct {
	URL         string // 请求的URL
	StatusCode  int    // HTTP状态码
	ContentType string // 响应Content-Type
	Body        string // 完整响应体(已解压并转为UTF-8)
}

// OK 是否为200响应
func (p *Page) OK() bool {
	return p != nil && p.StatusCode == http.StatusOK
}

// StatusError 同步接口返回非2xx状态码
type StatusError struct {
	StatusCode int
	Body       string
}

// Error 实现error接口
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("同步失败: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("同步失败: HTTP %d %s", e.StatusCode, e.Body)
}
