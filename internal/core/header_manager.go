package core

import (
	"net/http"

	"github.com/RecoveryAshes/itemsync/internal/models"
	"github.com/RecoveryAshes/itemsync/internal/utils"
)

const (
	// DefaultUserAgent 默认User-Agent
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/120.0.0.0 Safari/537.36"
)

// HeaderManager 管理抓取请求的头部
// 实现 models.HeaderProvider 接口
type HeaderManager struct {
	// defaults 系统默认头部, 模拟桌面浏览器
	defaults http.Header

	// config 配置文件 fetch.headers
	config http.Header

	// cli 命令行 -H
	cli http.Header

	validator *utils.HeaderValidator
	redactor  *utils.HeaderRedactor
}

// NewHeaderManager 创建头部管理器
// 参数:
//   - configHeaders: 配置文件中的头部 (名称会被规范化)
//   - cliHeaders: 命令行传递的头部字符串列表
//
// 返回:
//   - *HeaderManager: 头部管理器实例
//   - error: 如果命令行参数解析失败
func NewHeaderManager(configHeaders map[string]string, cliHeaders []string) (*HeaderManager, error) {
	hm := &HeaderManager{
		defaults:  getDefaultHeaders(),
		config:    make(http.Header),
		cli:       make(http.Header),
		validator: utils.NewHeaderValidator(),
		redactor:  utils.NewHeaderRedactor(),
	}

	for name, value := range configHeaders {
		hm.config.Set(name, value)
	}

	if len(cliHeaders) > 0 {
		parsed, err := models.CliHeaders(cliHeaders).Parse()
		if err != nil {
			return nil, err
		}
		hm.cli = parsed
	}

	if len(hm.config) > 0 {
		utils.Debugf("加载%d个配置文件头部: %v", len(hm.config), hm.redactor.Redact(hm.config))
	}

	return hm, nil
}

// getDefaultHeaders 返回系统默认头部
func getDefaultHeaders() http.Header {
	return http.Header{
		"User-Agent":      []string{DefaultUserAgent},
		"Accept":          []string{"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
		"Accept-Language": []string{"en-US,en;q=0.9"},
		"Accept-Encoding": []string{"gzip, deflate, br"},
	}
}

// Validate 验证所有头部的合法性
// 验证顺序: 默认 → 配置 → 命令行
func (hm *HeaderManager) Validate() error {
	if err := hm.validator.Validate(hm.defaults); err != nil {
		utils.Errorf("默认头部验证失败: %v", err)
		return err
	}
	if err := hm.validator.Validate(hm.config); err != nil {
		utils.Errorf("配置文件头部验证失败: %v", err)
		return err
	}
	if err := hm.validator.Validate(hm.cli); err != nil {
		utils.Errorf("命令行头部验证失败: %v", err)
		return err
	}
	return nil
}

// GetMergedHeaders 按优先级合并头部 (default < config < cli)
func (hm *HeaderManager) GetMergedHeaders() http.Header {
	result := make(http.Header)
	for _, layer := range []http.Header{hm.defaults, hm.config, hm.cli} {
		for name, values := range layer {
			result[name] = values
		}
	}
	return result
}

// GetSafeHeaders 返回脱敏后的头部 (用于日志)
func (hm *HeaderManager) GetSafeHeaders() map[string]string {
	return hm.redactor.Redact(hm.GetMergedHeaders())
}

// GetHeaders 实现 HeaderProvider 接口
func (hm *HeaderManager) GetHeaders() (http.Header, error) {
	if err := hm.Validate(); err != nil {
		return nil, err
	}
	return hm.GetMergedHeaders(), nil
}
