package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/RecoveryAshes/itemsync/internal/crawlers"
	"github.com/RecoveryAshes/itemsync/internal/models"
	"github.com/RecoveryAshes/itemsync/internal/utils"
	"github.com/sourcegraph/conc/stream"
	"go.uber.org/ratelimit"
)

// Sink 接收收集到的记录
type Sink interface {
	Upsert(ctx context.Context, record *models.ItemRecord) error
}

// Pipeline 抓取 -> 提取 -> 同步
type Pipeline struct {
	site   models.SiteConfig
	crawl  models.CrawlConfig
	sync   models.SyncConfig
	dryRun bool

	fetcher crawlers.Fetcher
	scanner *crawlers.LinkScanner
	sink    Sink

	// ShowProgress 同步阶段显示进度条
	ShowProgress bool
}

// NewPipeline 创建管道
// dryRun为true时sink可以为nil
func NewPipeline(config *Config, fetcher crawlers.Fetcher, sink Sink, dryRun bool) (*Pipeline, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher不能为空")
	}
	if sink == nil && !dryRun {
		return nil, fmt.Errorf("sink不能为空")
	}

	scanner, err := crawlers.NewLinkScanner(config.Site)
	if err != nil {
		return nil, fmt.Errorf("解析站点地址失败: %w", err)
	}

	return &Pipeline{
		site:    config.Site,
		crawl:   config.Crawl,
		sync:    config.Sync,
		dryRun:  dryRun,
		fetcher: fetcher,
		scanner: scanner,
		sink:    sink,
	}, nil
}

// Run 执行一次完整运行
// ctx取消时返回已完成部分的汇总和ctx.Err()
func (p *Pipeline) Run(ctx context.Context) (*models.RunSummary, error) {
	summary := &models.RunSummary{
		RunID:     models.NewRunID(),
		StartedAt: time.Now(),
		Records:   make([]models.ItemRecord, 0),
		Failures:  make([]models.SyncFailure, 0),
		DryRun:    p.dryRun,
	}
	defer func() {
		summary.Duration = time.Since(summary.StartedAt).Seconds()
	}()

	utils.Infof("🚀 开始运行 %s: %d个分类", summary.RunID, len(p.site.Categories))

	if err := p.Collect(ctx, summary); err != nil {
		return summary, err
	}
	utils.Infof("收集完成: %d条记录 (访问%d页, 失败%d页)", len(summary.Records), summary.PagesVisited, summary.PagesFailed)

	if p.dryRun {
		utils.Info("dry-run: 跳过同步")
		return summary, nil
	}

	if err := p.Sync(ctx, summary); err != nil {
		return summary, err
	}
	utils.Infof("✅ 同步完成: 成功 %d/%d", summary.Synced, len(summary.Records))
	return summary, nil
}

// Collect 按顺序处理分类页, 把去重后的记录追加到summary.Records
func (p *Pipeline) Collect(ctx context.Context, summary *models.RunSummary) error {
	seen := make(map[int64]bool, len(summary.Records))
	for _, rec := range summary.Records {
		seen[rec.GameID] = true
	}

	for _, path := range p.site.Categories {
		if err := ctx.Err(); err != nil {
			return err
		}

		stats := models.CategoryStats{Path: path}
		links := p.scanCategory(ctx, path, &stats)

		handle := func(link string, page *models.Page, err error) {
			summary.PagesVisited++
			if err != nil {
				utils.Warnf("抓取物品页失败 [%s]: %v", link, err)
				summary.PagesFailed++
				return
			}
			rec := crawlers.ParseItemPage(page)
			if rec == nil {
				utils.Debugf("跳过 [%s]: 状态码 %d 或没有物品ID", link, page.StatusCode)
				summary.PagesFailed++
				return
			}
			if seen[rec.GameID] {
				utils.Debugf("重复的物品ID %d: %s", rec.GameID, link)
				stats.Duplicate++
				return
			}
			seen[rec.GameID] = true
			stats.NewItems++
			summary.Records = append(summary.Records, *rec)
			utils.Debugf("收集 %d %s", rec.GameID, rec.NameEnglish)
		}

		var err error
		if p.crawl.Workers > 1 {
			err = p.visitConcurrent(ctx, links, handle)
		} else {
			err = p.visitSequential(ctx, links, handle)
		}
		summary.Categories = append(summary.Categories, stats)
		utils.Infof("分类 %s: 链接 %d, 访问 %d, 新增 %d, 重复 %d", path, stats.Links, stats.Retained, stats.NewItems, stats.Duplicate)
		if err != nil {
			return err
		}
	}
	return nil
}

// scanCategory 抓取分类页并返回截断后的物品链接, 失败时返回空列表
func (p *Pipeline) scanCategory(ctx context.Context, path string, stats *models.CategoryStats) []string {
	categoryURL, err := p.resolve(path)
	if err != nil {
		utils.Warnf("无效的分类路径 %s: %v", path, err)
		return nil
	}

	page, err := p.fetcher.Fetch(ctx, categoryURL)
	if err != nil {
		utils.Warnf("抓取分类页失败 [%s]: %v", categoryURL, err)
		return nil
	}
	if !page.OK() {
		utils.Warnf("分类页返回状态码 %d: %s", page.StatusCode, categoryURL)
		return nil
	}

	stats.Fetched = true
	links := p.scanner.Scan(page.Body)
	stats.Links = len(links)
	if len(links) > p.crawl.MaxLinksPerCategory {
		links = links[:p.crawl.MaxLinksPerCategory]
	}
	stats.Retained = len(links)
	return links
}

func (p *Pipeline) resolve(path string) (string, error) {
	base, err := url.Parse(p.site.BaseURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

type pageHandler func(link string, page *models.Page, err error)

// visitSequential 每次请求前等待固定间隔
func (p *Pipeline) visitSequential(ctx context.Context, links []string, handle pageHandler) error {
	for _, link := range links {
		if err := utils.Sleep(ctx, p.crawl.RequestDelay); err != nil {
			return err
		}
		page, err := p.fetcher.Fetch(ctx, link)
		handle(link, page, err)
	}
	return nil
}

// visitConcurrent 并发抓取, 回调按链接顺序串行执行
func (p *Pipeline) visitConcurrent(ctx context.Context, links []string, handle pageHandler) error {
	limiter := ratelimit.NewUnlimited()
	if p.crawl.RequestDelay > 0 {
		limiter = ratelimit.New(1, ratelimit.Per(p.crawl.RequestDelay), ratelimit.WithoutSlack)
	}

	s := stream.New().WithMaxGoroutines(p.crawl.Workers)
	for _, link := range links {
		if ctx.Err() != nil {
			break
		}
		link := link
		s.Go(func() stream.Callback {
			limiter.Take()
			page, err := p.fetcher.Fetch(ctx, link)
			return func() { handle(link, page, err) }
		})
	}
	s.Wait()
	return ctx.Err()
}

// Sync 逐条同步, 单条失败只记录日志
func (p *Pipeline) Sync(ctx context.Context, summary *models.RunSummary) error {
	var bar interface{ Add(int) error }
	if p.ShowProgress && len(summary.Records) > 0 {
		bar = utils.NewProgressBar(len(summary.Records), "同步")
	}

	for i := range summary.Records {
		if i > 0 {
			if err := utils.Sleep(ctx, p.sync.Delay); err != nil {
				return err
			}
		}

		rec := &summary.Records[i]
		err := p.sink.Upsert(ctx, rec)

		var statusErr *models.StatusError
		switch {
		case err == nil:
			summary.Synced++
			utils.Debugf("已同步 %d %s", rec.GameID, rec.NameEnglish)
		case errors.As(err, &statusErr):
			utils.Warnf("同步 %d (%s) 失败: HTTP %d %s", rec.GameID, rec.NameEnglish, statusErr.StatusCode, statusErr.Body)
			summary.Failures = append(summary.Failures, models.SyncFailure{
				GameID:     rec.GameID,
				StatusCode: statusErr.StatusCode,
				Message:    statusErr.Error(),
			})
		default:
			utils.Error(err, fmt.Sprintf("同步 %d (%s) 失败", rec.GameID, rec.NameEnglish))
			summary.Failures = append(summary.Failures, models.SyncFailure{
				GameID:  rec.GameID,
				Message: err.Error(),
			})
		}

		if bar != nil {
			bar.Add(1)
		}
	}
	return nil
}

// Probe 抓取并解析给定的物品页, 不同步
// 每次请求前等待delay, 返回解析成功的记录和失败页数
func Probe(ctx context.Context, fetcher crawlers.Fetcher, urls []string, delay time.Duration) ([]models.ItemRecord, int) {
	records := make([]models.ItemRecord, 0, len(urls))
	failed := 0
	for _, link := range urls {
		if err := utils.Sleep(ctx, delay); err != nil {
			break
		}
		page, err := fetcher.Fetch(ctx, link)
		if err != nil {
			utils.Warnf("抓取失败 [%s]: %v", link, err)
			failed++
			continue
		}
		rec := crawlers.ParseItemPage(page)
		if rec == nil {
			utils.Warnf("未解析出记录 [%s]: 状态码 %d", link, page.StatusCode)
			failed++
			continue
		}
		records = append(records, *rec)
	}
	return records, failed
}
