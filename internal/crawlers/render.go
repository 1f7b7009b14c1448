package crawlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/RecoveryAshes/itemsync/internal/models"
	"github.com/RecoveryAshes/itemsync/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RenderFetcher 使用go-rod驱动的浏览器抓取渲染后的HTML
type RenderFetcher struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	headers  http.Header
	timeout  time.Duration
}

// NewRenderFetcher 启动浏览器并创建渲染抓取器
func NewRenderFetcher(config models.FetchConfig, headerProvider models.HeaderProvider) (*RenderFetcher, error) {
	headers, err := headerProvider.GetHeaders()
	if err != nil {
		return nil, fmt.Errorf("获取请求头部失败: %w", err)
	}

	l := launcher.New().Headless(config.Headless)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}

	utils.Debugf("浏览器已启动: %s (headless=%v)", controlURL, config.Headless)
	return &RenderFetcher{
		browser:  browser,
		launcher: l,
		headers:  headers,
		timeout:  config.Timeout,
	}, nil
}

// Fetch 打开新标签页, 记录主文档状态码, 等待加载后返回渲染后的HTML
func (rf *RenderFetcher) Fetch(ctx context.Context, url string) (*models.Page, error) {
	if err := models.ValidateURL(url); err != nil {
		return nil, fmt.Errorf("无效的URL [%s]: %w", url, err)
	}

	tab, err := rf.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("创建标签页失败: %w", err)
	}
	defer tab.Close()

	page := tab
	if rf.timeout > 0 {
		page = tab.Timeout(rf.timeout)
	}

	if err := rf.applyHeaders(page); err != nil {
		return nil, err
	}

	var status int
	var contentType string
	wait := page.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument {
			return false
		}
		status = e.Response.Status
		contentType = e.Response.MIMEType
		return true
	})

	if err := page.Navigate(url); err != nil {
		return nil, fmt.Errorf("请求失败 [%s]: %w", url, err)
	}
	wait()

	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("等待页面加载失败 [%s]: %w", url, err)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("读取页面HTML失败 [%s]: %w", url, err)
	}

	utils.Debugf("RENDER %s -> %d (%d 字节)", url, status, len(html))
	return &models.Page{
		URL:         url,
		StatusCode:  status,
		ContentType: contentType,
		Body:        html,
	}, nil
}

// applyHeaders User-Agent走浏览器覆盖, Accept-Encoding由浏览器自己协商
func (rf *RenderFetcher) applyHeaders(page *rod.Page) error {
	if ua := rf.headers.Get("User-Agent"); ua != "" {
		err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      ua,
			AcceptLanguage: rf.headers.Get("Accept-Language"),
		})
		if err != nil {
			return fmt.Errorf("设置User-Agent失败: %w", err)
		}
	}

	var dict []string
	for name, values := range rf.headers {
		if name == "User-Agent" || name == "Accept-Encoding" || len(values) == 0 {
			continue
		}
		dict = append(dict, name, values[0])
	}
	if len(dict) == 0 {
		return nil
	}
	if _, err := page.SetExtraHeaders(dict); err != nil {
		return fmt.Errorf("设置请求头部失败: %w", err)
	}
	return nil
}

// Close 关闭浏览器
func (rf *RenderFetcher) Close() {
	if rf.browser != nil {
		if err := rf.browser.Close(); err != nil {
			utils.Warnf("关闭浏览器失败: %v", err)
		}
	}
	if rf.launcher != nil {
		rf.launcher.Cleanup()
	}
	utils.Debugf("浏览器已关闭")
}
