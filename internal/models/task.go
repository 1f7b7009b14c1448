package models

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// FetchMode 抓取模式
type FetchMode string

const (
	FetchModeStatic FetchMode = "static" // colly直接请求
	FetchModeRender FetchMode = "render" // go-rod浏览器渲染
)

// SinkKind 同步目标
type SinkKind string

const (
	SinkREST   SinkKind = "rest"   // 远端REST表
	SinkSQLite SinkKind = "sqlite" // 本地SQLite导出
)

// SiteConfig 目标站点配置
type SiteConfig struct {
	BaseURL       string   `mapstructure:"base_url"`        // 站点根地址
	LocalePrefix  string   `mapstructure:"locale_prefix"`   // 物品链接必须以此开头
	Categories    []string `mapstructure:"categories"`      // 分类页路径(按顺序抓取)
	Denylist      []string `mapstructure:"denylist"`        // 包含这些片段的路径为导航链接
	MinPathLength int      `mapstructure:"min_path_length"` // 短于此长度的路径被丢弃
}

// CrawlConfig 抓取调度配置
type CrawlConfig struct {
	MaxLinksPerCategory int           `mapstructure:"max_links_per_category"` // 每个分类最多访问的链接数
	RequestDelay        time.Duration `mapstructure:"request_delay"`          // 每次物品页请求前的等待
	Workers             int           `mapstructure:"workers"`                // 物品页并发数,1为严格串行
}

// FetchConfig 抓取器配置
type FetchConfig struct {
	Mode             FetchMode         `mapstructure:"mode"`
	Timeout          time.Duration     `mapstructure:"timeout"`           // 0表示不限制
	Headers          map[string]string `mapstructure:"headers"`           // 覆盖默认浏览器头部
	CloudflareBypass bool              `mapstructure:"cloudflare_bypass"` // 使用cloudflare-bp传输层
	Headless         bool              `mapstructure:"headless"`          // render模式下是否无头
}

// SyncConfig 同步配置
type SyncConfig struct {
	Sink        SinkKind      `mapstructure:"sink"`
	BaseURL     string        `mapstructure:"base_url"`     // REST服务根地址
	Table       string        `mapstructure:"table"`        // 集合(表)名
	ConflictKey string        `mapstructure:"conflict_key"` // 冲突合并的唯一列
	APIKey      string        `mapstructure:"api_key"`      // apikey与Bearer共用
	Delay       time.Duration `mapstructure:"delay"`        // 两次upsert之间的等待
	SQLitePath  string        `mapstructure:"sqlite_path"`
}

// Validate 验证站点配置
func (c *SiteConfig) Validate() error {
	if err := ValidateURL(c.BaseURL); err != nil {
		return fmt.Errorf("site.base_url: %w", err)
	}
	if !strings.HasPrefix(c.LocalePrefix, "/") {
		return fmt.Errorf("site.locale_prefix必须以/开头: %q", c.LocalePrefix)
	}
	if len(c.Categories) == 0 {
		return fmt.Errorf("site.categories不能为空")
	}
	if c.MinPathLength < 0 {
		return fmt.Errorf("site.min_path_length不能为负数")
	}
	return nil
}

// Validate 验证抓取配置
func (c *CrawlConfig) Validate() error {
	if c.MaxLinksPerCategory < 1 {
		return fmt.Errorf("每个分类的链接上限必须大于0")
	}
	if c.RequestDelay < 0 {
		return fmt.Errorf("请求间隔不能为负数")
	}
	if c.Workers < 1 || c.Workers > 16 {
		return fmt.Errorf("并发数必须在1-16之间")
	}
	return nil
}

// Validate 验证抓取器配置
func (c *FetchConfig) Validate() error {
	switch c.Mode {
	case FetchModeStatic, FetchModeRender:
	default:
		return fmt.Errorf("无效的抓取模式: %s (有效值: static, render)", c.Mode)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("超时时间不能为负数")
	}
	return nil
}

// Validate 验证同步配置
func (c *SyncConfig) Validate() error {
	if c.Delay < 0 {
		return fmt.Errorf("同步间隔不能为负数")
	}
	switch c.Sink {
	case SinkREST:
		if err := ValidateURL(c.BaseURL); err != nil {
			return fmt.Errorf("sync.base_url: %w", err)
		}
		if c.Table == "" || c.ConflictKey == "" {
			return fmt.Errorf("sync.table与sync.conflict_key不能为空")
		}
		if c.APIKey == "" {
			return fmt.Errorf("sync.api_key为空 (可通过环境变量 ITEMSYNC_SYNC_API_KEY 设置)")
		}
	case SinkSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sync.sqlite_path不能为空")
		}
	default:
		return fmt.Errorf("无效的同步目标: %s (有效值: rest, sqlite)", c.Sink)
	}
	return nil
}

// SyncFailure 单条同步失败
type SyncFailure struct {
	GameID     int64  `json:"game_id"`
	StatusCode int    `json:"status_code,omitempty"` // 传输层错误时为0
	Message    string `json:"message"`
}

// CategoryStats 单个分类页的统计
type CategoryStats struct {
	Path      string `json:"path"`
	Fetched   bool   `json:"fetched"`
	Links     int    `json:"links"`      // 扫描到的链接数(截断前)
	Retained  int    `json:"retained"`   // 截断后访问的链接数
	NewItems  int    `json:"new_items"`  // 新增的记录数
	Duplicate int    `json:"duplicates"` // 因ID重复被丢弃的记录数
}

// RunSummary 一次运行的汇总
type RunSummary struct {
	RunID        string          `json:"run_id"`
	StartedAt    time.Time       `json:"started_at"`
	Duration     float64         `json:"duration"` // 秒
	Categories   []CategoryStats `json:"categories"`
	PagesVisited int             `json:"pages_visited"`
	PagesFailed  int             `json:"pages_failed"` // 传输错误、非200或缺少ID
	Records      []ItemRecord    `json:"records"`
	Synced       int             `json:"synced"`
	Failures     []SyncFailure   `json:"failures"`
	DryRun       bool            `json:"dry_run"`
}

// IsSuccessStatus 判断是否为2xx
func IsSuccessStatus(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}
