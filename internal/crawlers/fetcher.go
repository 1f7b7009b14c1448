package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/RecoveryAshes/itemsync/internal/models"
	"github.com/RecoveryAshes/itemsync/internal/utils"
	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
)

const responseKey = "itemsync_response"

// Fetcher 获取单个页面
// 只有传输层失败返回error, 非2xx响应作为Page返回
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*models.Page, error)
}

// StaticFetcher 基于Colly的同步抓取器
type StaticFetcher struct {
	collector      *colly.Collector
	headerProvider models.HeaderProvider
}

// NewStaticFetcher 创建静态抓取器
func NewStaticFetcher(config models.FetchConfig, headerProvider models.HeaderProvider) (*StaticFetcher, error) {
	headers, err := headerProvider.GetHeaders()
	if err != nil {
		return nil, fmt.Errorf("获取请求头部失败: %w", err)
	}

	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(0),
		colly.IgnoreRobotsTxt(),
	)

	// 0表示不限制, colly默认10秒
	c.SetRequestTimeout(config.Timeout)

	var base http.RoundTripper = http.DefaultTransport.(*http.Transport).Clone()
	if config.CloudflareBypass {
		base = cloudflarebp.AddCloudFlareByPass(base)
		utils.Debugf("静态抓取器: 已启用cloudflare传输层")
	}
	// colly在OnResponse之前按声明的字符集转码, 必须先解压
	c.WithTransport(&decodingTransport{base: base})

	sf := &StaticFetcher{
		collector:      c,
		headerProvider: headerProvider,
	}

	c.OnRequest(func(r *colly.Request) {
		for name, values := range headers {
			if len(values) > 0 {
				r.Headers.Set(name, values[0])
			}
		}
	})

	c.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(responseKey, r)
	})

	utils.Debugf("静态抓取器: 超时=%v, 请求头部: %v", config.Timeout, utils.NewHeaderRedactor().RedactToString(headers))
	return sf, nil
}

// Fetch 执行GET请求并返回完整响应体
func (sf *StaticFetcher) Fetch(ctx context.Context, url string) (*models.Page, error) {
	if err := models.ValidateURL(url); err != nil {
		return nil, fmt.Errorf("无效的URL [%s]: %w", url, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reqCtx := colly.NewContext()
	if err := sf.collector.Request(http.MethodGet, url, nil, reqCtx, nil); err != nil {
		return nil, fmt.Errorf("请求失败 [%s]: %w", url, err)
	}

	resp, ok := reqCtx.GetAny(responseKey).(*colly.Response)
	if !ok {
		return nil, fmt.Errorf("请求失败 [%s]: 未收到响应", url)
	}

	page := &models.Page{
		URL:         url,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Headers.Get("Content-Type"),
		Body:        string(resp.Body),
	}
	utils.Debugf("GET %s -> %d (%d 字节)", url, page.StatusCode, len(page.Body))
	return page, nil
}

// decodingTransport 解压br和deflate响应, gzip仍由colly处理
type decodingTransport struct {
	base http.RoundTripper
}

// RoundTrip 实现 http.RoundTripper 接口
func (t *decodingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	res, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	encoding := strings.ToLower(strings.TrimSpace(res.Header.Get("Content-Encoding")))
	if encoding != "br" && encoding != "deflate" {
		return res, nil
	}

	raw, err := io.ReadAll(res.Body)
	res.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}
	decoded, _, err := decompressResponse(encoding, raw)
	if err != nil {
		return nil, err
	}

	res.Body = io.NopCloser(bytes.NewReader(decoded))
	res.Header.Del("Content-Encoding")
	res.Header.Del("Content-Length")
	res.ContentLength = int64(len(decoded))
	res.Uncompressed = true
	return res, nil
}

// decompressResponse 根据Content-Encoding解压响应体
// 支持 deflate 和 br, changed表示是否发生了解压
func decompressResponse(contentEncoding string, body []byte) ([]byte, bool, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "br":
		decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
		if err != nil {
			return nil, false, fmt.Errorf("brotli解压失败: %w", err)
		}
		return decompressed, true, nil

	case "deflate":
		// 多数服务器发送zlib封装的deflate, 少数发送裸deflate
		if zr, err := zlib.NewReader(bytes.NewReader(body)); err == nil {
			defer zr.Close()
			if decompressed, err := io.ReadAll(zr); err == nil {
				return decompressed, true, nil
			}
		}
		fr := flate.NewReader(bytes.NewReader(body))
		defer fr.Close()
		decompressed, err := io.ReadAll(fr)
		if err != nil {
			return nil, false, fmt.Errorf("deflate解压失败: %w", err)
		}
		return decompressed, true, nil
	}
	return body, false, nil
}

// NewFetcher 根据抓取模式创建抓取器
func NewFetcher(config models.FetchConfig, headerProvider models.HeaderProvider) (Fetcher, func(), error) {
	switch config.Mode {
	case models.FetchModeRender:
		rf, err := NewRenderFetcher(config, headerProvider)
		if err != nil {
			return nil, nil, err
		}
		return rf, rf.Close, nil
	default:
		sf, err := NewStaticFetcher(config, headerProvider)
		if err != nil {
			return nil, nil, err
		}
		return sf, func() {}, nil
	}
}

