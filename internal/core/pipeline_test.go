package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/RecoveryAshes/itemsync/internal/crawlers"
	"github.com/RecoveryAshes/itemsync/internal/models"
	"github.com/RecoveryAshes/itemsync/internal/storage"
	"github.com/RecoveryAshes/itemsync/internal/utils"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

const testBase = "https://tlidb.test"

// fakeFetcher 按URL返回预设页面
type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]*models.Page
	errs    map[string]error
	fetched []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*models.Page, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, url)
	f.mu.Unlock()

	if err := f.errs[url]; err != nil {
		return nil, err
	}
	if page, ok := f.pages[url]; ok {
		return page, nil
	}
	return &models.Page{URL: url, StatusCode: http.StatusNotFound, Body: "not found"}, nil
}

func (f *fakeFetcher) add(path string, status int, body string) {
	if f.pages == nil {
		f.pages = make(map[string]*models.Page)
	}
	f.pages[testBase+path] = &models.Page{URL: testBase + path, StatusCode: status, Body: body}
}

// fakeSink 记录upsert, 对指定ID返回错误
type fakeSink struct {
	upserted []int64
	errs     map[int64]error
}

func (s *fakeSink) Upsert(ctx context.Context, record *models.ItemRecord) error {
	s.upserted = append(s.upserted, record.GameID)
	return s.errs[record.GameID]
}

func itemPage(id int64, name string) string {
	return fmt.Sprintf(`<html><head><title>%s | TLIDB</title></head><body><h2>%s</h2><script>{id: %d}</script></body></html>`, name, name, id)
}

func categoryPage(paths ...string) string {
	var b strings.Builder
	b.WriteString(`<nav><a href="/en/Hero">Hero</a><a href="/en/Talent">Talent</a></nav>`)
	for _, p := range paths {
		fmt.Fprintf(&b, `<a href="%s">item</a>`, p)
	}
	return b.String()
}

func testConfig() *Config {
	return &Config{
		Site: models.SiteConfig{
			BaseURL:       testBase,
			LocalePrefix:  "/en/",
			Categories:    []string{"/en/Currency", "/en/Material"},
			Denylist:      []string{"Hero", "Talent"},
			MinPathLength: 6,
		},
		Crawl: models.CrawlConfig{MaxLinksPerCategory: 50, Workers: 1},
		Sync:  models.SyncConfig{Sink: models.SinkREST, Table: "tli_game_items", ConflictKey: "game_id"},
	}
}

// captureLogs 把全局日志重定向到缓冲区
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := utils.Logger
	utils.Logger = zerolog.New(&buf)
	t.Cleanup(func() { utils.Logger = prev })
	return &buf
}

func TestPipeline_Run(t *testing.T) {
	captureLogs(t)

	fetcher := &fakeFetcher{}
	fetcher.add("/en/Currency", 200, categoryPage("/en/Flame_Elementium", "/en/Ember", "/en/Broken_Page"))
	fetcher.add("/en/Material", 200, categoryPage("/en/Ember_Copy", "/en/Frost_Crystal"))
	fetcher.add("/en/Flame_Elementium", 200, itemPage(100300, "Flame Elementium"))
	fetcher.add("/en/Ember", 200, itemPage(100301, "Ember"))
	fetcher.add("/en/Ember_Copy", 200, itemPage(100301, "Ember Copy"))
	fetcher.add("/en/Frost_Crystal", 200, itemPage(100302, "Frost Crystal"))
	// /en/Broken_Page 返回404

	sink := &fakeSink{}
	p, err := NewPipeline(testConfig(), fetcher, sink, false)
	if err != nil {
		t.Fatalf("创建管道失败: %v", err)
	}

	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("运行失败: %v", err)
	}

	wantIDs := []int64{100300, 100301, 100302}
	if diff := cmp.Diff(wantIDs, sink.upserted); diff != "" {
		t.Errorf("同步的ID不一致 (-want +got):\n%s", diff)
	}
	if summary.Records[1].NameEnglish != "Ember" {
		t.Errorf("重复ID应保留第一条, 实际 %q", summary.Records[1].NameEnglish)
	}
	if summary.Synced != 3 || len(summary.Failures) != 0 {
		t.Errorf("期望同步3条, 实际 %d (失败 %d)", summary.Synced, len(summary.Failures))
	}
	if summary.PagesVisited != 5 || summary.PagesFailed != 1 {
		t.Errorf("期望访问5页失败1页, 实际 %d/%d", summary.PagesVisited, summary.PagesFailed)
	}

	wantStats := []models.CategoryStats{
		{Path: "/en/Currency", Fetched: true, Links: 3, Retained: 3, NewItems: 2},
		{Path: "/en/Material", Fetched: true, Links: 2, Retained: 2, NewItems: 1, Duplicate: 1},
	}
	if diff := cmp.Diff(wantStats, summary.Categories); diff != "" {
		t.Errorf("分类统计不一致 (-want +got):\n%s", diff)
	}
	if summary.RunID == "" {
		t.Error("RunID不能为空")
	}
}

func TestPipeline_CategoryFailures(t *testing.T) {
	captureLogs(t)

	fetcher := &fakeFetcher{errs: map[string]error{testBase + "/en/Currency": errors.New("connection refused")}}
	fetcher.add("/en/Material", 503, "busy")

	sink := &fakeSink{}
	p, err := NewPipeline(testConfig(), fetcher, sink, false)
	if err != nil {
		t.Fatalf("创建管道失败: %v", err)
	}

	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("分类失败不应中止运行: %v", err)
	}
	if len(summary.Records) != 0 || len(sink.upserted) != 0 {
		t.Errorf("期望没有记录, 实际 %d", len(summary.Records))
	}
	for _, c := range summary.Categories {
		if c.Fetched || c.Links != 0 {
			t.Errorf("分类 %s 应标记为失败: %+v", c.Path, c)
		}
	}
}

func TestPipeline_ItemFetchError(t *testing.T) {
	captureLogs(t)

	fetcher := &fakeFetcher{errs: map[string]error{testBase + "/en/Flame_Elementium": errors.New("timeout")}}
	fetcher.add("/en/Currency", 200, categoryPage("/en/Flame_Elementium", "/en/Ember"))
	fetcher.add("/en/Ember", 200, itemPage(2, "Ember"))

	cfg := testConfig()
	cfg.Site.Categories = []string{"/en/Currency"}
	p, _ := NewPipeline(cfg, fetcher, &fakeSink{}, false)

	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("运行失败: %v", err)
	}
	if len(summary.Records) != 1 || summary.Records[0].GameID != 2 {
		t.Errorf("期望仅保留Ember, 实际 %+v", summary.Records)
	}
	if summary.PagesFailed != 1 {
		t.Errorf("期望失败1页, 实际 %d", summary.PagesFailed)
	}
}

func TestPipeline_LinkCap(t *testing.T) {
	captureLogs(t)

	fetcher := &fakeFetcher{}
	var paths []string
	for i := 0; i < 5; i++ {
		path := fmt.Sprintf("/en/Item_%d", i)
		paths = append(paths, path)
		fetcher.add(path, 200, itemPage(int64(i+1), path))
	}
	fetcher.add("/en/Currency", 200, categoryPage(paths...))

	cfg := testConfig()
	cfg.Site.Categories = []string{"/en/Currency"}
	cfg.Crawl.MaxLinksPerCategory = 3

	p, _ := NewPipeline(cfg, fetcher, nil, true)
	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("运行失败: %v", err)
	}

	if summary.Categories[0].Links != 5 || summary.Categories[0].Retained != 3 {
		t.Errorf("期望链接5保留3, 实际 %+v", summary.Categories[0])
	}
	if len(summary.Records) != 3 {
		t.Errorf("期望3条记录, 实际 %d", len(summary.Records))
	}
	if !summary.DryRun || summary.Synced != 0 {
		t.Errorf("dry-run不应同步: %+v", summary)
	}
	for _, u := range fetcher.fetched {
		if strings.HasSuffix(u, "Item_3") || strings.HasSuffix(u, "Item_4") {
			t.Errorf("超出上限的链接不应被访问: %s", u)
		}
	}
}

func TestPipeline_SyncFailuresContinue(t *testing.T) {
	logs := captureLogs(t)

	fetcher := &fakeFetcher{}
	fetcher.add("/en/Currency", 200, categoryPage("/en/Item_A", "/en/Item_B", "/en/Item_C"))
	fetcher.add("/en/Item_A", 200, itemPage(1, "A"))
	fetcher.add("/en/Item_B", 200, itemPage(2, "B"))
	fetcher.add("/en/Item_C", 200, itemPage(3, "C"))

	cfg := testConfig()
	cfg.Site.Categories = []string{"/en/Currency"}

	sink := &fakeSink{errs: map[int64]error{
		1: &models.StatusError{StatusCode: http.StatusConflict, Body: "duplicate"},
		2: errors.New("connection reset"),
	}}
	p, _ := NewPipeline(cfg, fetcher, sink, false)

	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("运行失败: %v", err)
	}

	if diff := cmp.Diff([]int64{1, 2, 3}, sink.upserted); diff != "" {
		t.Errorf("失败后应继续同步 (-want +got):\n%s", diff)
	}
	if summary.Synced != 1 {
		t.Errorf("期望成功1条, 实际 %d", summary.Synced)
	}

	wantFailures := []models.SyncFailure{
		{GameID: 1, StatusCode: 409, Message: "同步失败: HTTP 409 duplicate"},
		{GameID: 2, Message: "connection reset"},
	}
	if diff := cmp.Diff(wantFailures, summary.Failures); diff != "" {
		t.Errorf("失败记录不一致 (-want +got):\n%s", diff)
	}

	out := logs.String()
	if !strings.Contains(out, `"level":"warn"`) || !strings.Contains(out, "HTTP 409") {
		t.Errorf("409应记录为警告:\n%s", out)
	}
	if !strings.Contains(out, `"level":"error"`) || !strings.Contains(out, "connection reset") {
		t.Errorf("传输错误应记录为错误:\n%s", out)
	}
}

func TestPipeline_Concurrent(t *testing.T) {
	captureLogs(t)

	fetcher := &fakeFetcher{}
	var paths []string
	for i := 0; i < 8; i++ {
		path := fmt.Sprintf("/en/Item_%d", i)
		paths = append(paths, path)
		// 相邻两页共享ID, 先出现的应被保留
		fetcher.add(path, 200, itemPage(int64(i/2+1), path))
	}
	fetcher.add("/en/Currency", 200, categoryPage(paths...))

	cfg := testConfig()
	cfg.Site.Categories = []string{"/en/Currency"}
	cfg.Crawl.Workers = 4

	p, _ := NewPipeline(cfg, fetcher, nil, true)
	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("运行失败: %v", err)
	}

	var got []string
	for _, rec := range summary.Records {
		got = append(got, rec.SourceURL)
	}
	want := []string{
		testBase + "/en/Item_0",
		testBase + "/en/Item_2",
		testBase + "/en/Item_4",
		testBase + "/en/Item_6",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("并发模式下去重结果应与串行一致 (-want +got):\n%s", diff)
	}
	if summary.Categories[0].Duplicate != 4 {
		t.Errorf("期望4条重复, 实际 %d", summary.Categories[0].Duplicate)
	}
}

func TestPipeline_Cancel(t *testing.T) {
	captureLogs(t)

	fetcher := &fakeFetcher{}
	fetcher.add("/en/Currency", 200, categoryPage("/en/Item_A", "/en/Item_B"))

	cfg := testConfig()
	cfg.Crawl.RequestDelay = time.Minute

	p, _ := NewPipeline(cfg, fetcher, &fakeSink{}, false)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("期望DeadlineExceeded, 实际 %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("取消后未及时返回")
	}
}

func TestNewPipeline(t *testing.T) {
	if _, err := NewPipeline(testConfig(), nil, &fakeSink{}, false); err == nil {
		t.Error("fetcher为空应返回错误")
	}
	if _, err := NewPipeline(testConfig(), &fakeFetcher{}, nil, false); err == nil {
		t.Error("非dry-run时sink为空应返回错误")
	}
	if _, err := NewPipeline(testConfig(), &fakeFetcher{}, nil, true); err != nil {
		t.Errorf("dry-run时sink可以为空: %v", err)
	}
}

func TestProbe(t *testing.T) {
	captureLogs(t)

	fetcher := &fakeFetcher{}
	fetcher.add("/en/Ember", 200, itemPage(2, "Ember"))

	delay := 30 * time.Millisecond
	start := time.Now()
	records, failed := Probe(context.Background(), fetcher, []string{testBase + "/en/Ember", testBase + "/en/Missing"}, delay)
	if len(records) != 1 || records[0].GameID != 2 || failed != 1 {
		t.Errorf("期望1条记录1个失败, 实际 %d/%d", len(records), failed)
	}
	if elapsed := time.Since(start); elapsed < 2*delay {
		t.Errorf("每次请求前应等待 %v, 总耗时 %v", delay, elapsed)
	}

	t.Run("取消后不再请求", func(t *testing.T) {
		fetcher := &fakeFetcher{}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		records, failed := Probe(ctx, fetcher, []string{testBase + "/en/Ember"}, time.Hour)
		if len(records) != 0 || failed != 0 || len(fetcher.fetched) != 0 {
			t.Errorf("期望没有请求, 实际请求 %v", fetcher.fetched)
		}
	})
}

// 端到端: 真实的StaticFetcher和RESTSink对接本地假服务
func TestPipeline_EndToEnd(t *testing.T) {
	captureLogs(t)

	origin := http.NewServeMux()
	origin.HandleFunc("/en/Currency", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, categoryPage("/en/Flame_Elementium", "/en/Ember", "/en/Frost_Crystal"))
	})
	origin.HandleFunc("/en/Flame_Elementium", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, itemPage(100300, "Flame Elementium"))
	})
	origin.HandleFunc("/en/Ember", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, itemPage(100301, "Ember"))
	})
	origin.HandleFunc("/en/Frost_Crystal", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	originSrv := httptest.NewServer(origin)
	defer originSrv.Close()

	var mu sync.Mutex
	var calls []string
	rest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.URL.Query().Get("on_conflict")+"|"+r.Header.Get("Prefer"))
		n := len(calls)
		mu.Unlock()
		if n == 2 {
			w.WriteHeader(http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer rest.Close()

	cfg := testConfig()
	cfg.Site.BaseURL = originSrv.URL
	cfg.Site.Categories = []string{"/en/Currency"}
	cfg.Sync.BaseURL = rest.URL
	cfg.Sync.APIKey = "k"

	headers, _ := NewHeaderManager(nil, nil)
	fetcher, err := crawlers.NewStaticFetcher(models.FetchConfig{Mode: models.FetchModeStatic}, headers)
	if err != nil {
		t.Fatalf("创建抓取器失败: %v", err)
	}
	sink := storage.NewRESTSink(cfg.Sync)
	defer sink.Close()

	p, err := NewPipeline(cfg, fetcher, sink, false)
	if err != nil {
		t.Fatalf("创建管道失败: %v", err)
	}
	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("运行失败: %v", err)
	}

	if len(summary.Records) != 2 || summary.PagesFailed != 1 {
		t.Errorf("期望2条记录1页失败, 实际 %d/%d", len(summary.Records), summary.PagesFailed)
	}
	if summary.Synced != 1 || len(summary.Failures) != 1 || summary.Failures[0].StatusCode != http.StatusConflict {
		t.Errorf("期望成功1条并记录409, 实际 %+v", summary)
	}
	for _, c := range calls {
		if c != "game_id|resolution=merge-duplicates" {
			t.Errorf("每次upsert都应携带冲突参数和合并头部, 实际 %q", c)
		}
	}
}
