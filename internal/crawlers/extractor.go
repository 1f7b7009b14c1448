package crawlers

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/itemsync/internal/models"
	"github.com/RecoveryAshes/itemsync/internal/utils"
)

var (
	idPattern          = regexp.MustCompile(`(?i)id:[\s\v\p{Zs}]*(\d+)`)
	iconPattern        = regexp.MustCompile(`(?i)https://cdn\.tlidb\.com/UI/Textures/[^"'\s<>()]+?\.webp`)
	descriptionPattern = regexp.MustCompile(`(?i)\bAn [^<]*?\b(?:material|currency|item|resource)\b[^<]*`)
)

// ExtractID 返回第一个 "id: <数字>" 的值
func ExtractID(htmlContent string) (int64, bool) {
	m := idPattern.FindStringSubmatch(htmlContent)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ExtractIcon 返回第一个图标URL, 未找到时为nil
func ExtractIcon(htmlContent string) *string {
	m := iconPattern.FindString(htmlContent)
	if m == "" {
		return nil
	}
	return &m
}

// ExtractDescription 返回第一段以 "An " 开头且含类别名词的文本
func ExtractDescription(htmlContent string) *string {
	m := strings.TrimSpace(descriptionPattern.FindString(htmlContent))
	if m == "" {
		return nil
	}
	return &m
}

// ExtractName 按优先级解析英文名: h2 > title中第一个|之前 > URL末段
func ExtractName(htmlContent, pageURL string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err == nil {
		if name := collapse(doc.Find("h2").First().Text()); name != "" {
			return name
		}
		title, _, _ := strings.Cut(doc.Find("title").First().Text(), "|")
		if name := collapse(title); name != "" {
			return name
		}
	}
	return nameFromURL(pageURL)
}

func nameFromURL(pageURL string) string {
	path := pageURL
	if u, err := url.Parse(pageURL); err == nil {
		path = u.Path
	}
	path = strings.TrimRight(path, "/")
	slug := path[strings.LastIndex(path, "/")+1:]
	if unescaped, err := url.PathUnescape(slug); err == nil {
		slug = unescaped
	}
	if name := collapse(strings.ReplaceAll(slug, "_", " ")); name != "" {
		return name
	}
	return pageURL
}

// collapse 去除首尾空白并合并内部连续空白
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ParseItemPage 从物品页组装记录
// 非200或没有ID时返回nil, 其他字段缺失时置空
func ParseItemPage(page *models.Page) *models.ItemRecord {
	if !page.OK() {
		return nil
	}

	id, ok := ExtractID(page.Body)
	if !ok {
		utils.Debugf("页面中未找到物品ID: %s", page.URL)
		return nil
	}

	return &models.ItemRecord{
		GameID:      id,
		NameEnglish: ExtractName(page.Body, page.URL),
		IconURL:     ExtractIcon(page.Body),
		Description: ExtractDescription(page.Body),
		SourceURL:   page.URL,
	}
}
