package crawlers

import (
	"net/url"
	"strings"

	"github.com/RecoveryAshes/itemsync/internal/models"
	"github.com/RecoveryAshes/itemsync/internal/utils"
	"golang.org/x/net/html"
)

// LinkScanner 从分类页中扫描物品页链接
type LinkScanner struct {
	base          *url.URL
	localePrefix  string
	denylist      []string
	minPathLength int
}

// NewLinkScanner 根据站点配置创建链接扫描器
func NewLinkScanner(site models.SiteConfig) (*LinkScanner, error) {
	base, err := url.Parse(site.BaseURL)
	if err != nil {
		return nil, err
	}
	return &LinkScanner{
		base:          base,
		localePrefix:  site.LocalePrefix,
		denylist:      site.Denylist,
		minPathLength: site.MinPathLength,
	}, nil
}

// Scan 返回按文档顺序去重后的绝对URL
// 只保留以语言前缀开头的站内相对路径, 排除导航区块和过短的路径
func (ls *LinkScanner) Scan(htmlContent string) []string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		utils.Debugf("解析分类页HTML失败: %v", err)
		return nil
	}

	seen := make(map[string]bool)
	var links []string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				if path, ok := ls.accept(attr.Val); ok && !seen[path] {
					seen[path] = true
					links = append(links, ls.absolute(path))
				}
				break
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return links
}

// accept 判断href是否为物品页路径, 返回去掉片段后的路径
func (ls *LinkScanner) accept(href string) (string, bool) {
	path, _, _ := strings.Cut(strings.TrimSpace(href), "#")
	if !strings.HasPrefix(path, ls.localePrefix) {
		return "", false
	}
	if len(path) < ls.minPathLength {
		return "", false
	}
	for _, section := range ls.denylist {
		if section != "" && strings.Contains(path, section) {
			return "", false
		}
	}
	return path, true
}

func (ls *LinkScanner) absolute(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return strings.TrimRight(ls.base.String(), "/") + path
	}
	return ls.base.ResolveReference(ref).String()
}
