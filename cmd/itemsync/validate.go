package main

import (
	"fmt"
	"net/url"

	"github.com/RecoveryAshes/itemsync/internal/models"
	"github.com/RecoveryAshes/itemsync/internal/utils"
)

// ValidateFlags 验证命令行标志, 零值表示未指定
func ValidateFlags(workers int, sink string) error {
	if workers < 0 || workers > 16 {
		return fmt.Errorf("并发数必须在1-16之间,当前值: %d", workers)
	}

	switch models.SinkKind(sink) {
	case "", models.SinkREST, models.SinkSQLite:
	default:
		return fmt.Errorf("无效的同步目标: %s (有效值: rest, sqlite)", sink)
	}
	return nil
}

// NormalizeURL 规范化URL, 没有协议时默认https
func NormalizeURL(urlStr string) (string, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return "", err
	}

	if parsed.Scheme == "" {
		parsed, err = url.Parse("https://" + urlStr)
		if err != nil {
			return "", err
		}
	}

	if err := models.ValidateURL(parsed.String()); err != nil {
		return "", err
	}
	return parsed.String(), nil
}

// collectProbeURLs 合并参数和URL文件中的地址
func collectProbeURLs(args []string, file string) ([]string, error) {
	urls := make([]string, 0, len(args))
	for _, arg := range args {
		u, err := NormalizeURL(arg)
		if err != nil {
			return nil, fmt.Errorf("无效的URL %q: %w", arg, err)
		}
		urls = append(urls, u)
	}

	if file != "" {
		fromFile, err := utils.ReadURLsFromFile(file)
		if err != nil {
			return nil, fmt.Errorf("读取URL文件失败: %w", err)
		}
		urls = append(urls, fromFile...)
	}
	return urls, nil
}
