package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/itemsync/internal/models"
	"github.com/jedib0t/go-pretty/v6/table"
	jsoniter "github.com/json-iterator/go"
	"github.com/schollz/progressbar/v3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Reporter 运行报告生成器
type Reporter struct {
	outputDir string
}

// NewReporter 创建报告生成器
func NewReporter(outputDir string) *Reporter {
	return &Reporter{outputDir: outputDir}
}

// WriteReport 写入 run_<id>.json, 返回文件路径
func (r *Reporter) WriteReport(report models.RunReport) (string, error) {
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}

	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = time.Now()
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化JSON失败: %w", err)
	}

	path := filepath.Join(r.outputDir, fmt.Sprintf("run_%s.json", report.Summary.RunID))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("写入报告文件失败: %w", err)
	}

	Debugf("保存报告: %s", path)
	return path, nil
}

// RenderSummary 以表格形式输出运行汇总
func RenderSummary(w io.Writer, summary *models.RunSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("运行汇总 " + summary.RunID)
	t.AppendHeader(table.Row{"分类", "链接", "访问", "新增", "重复"})
	for _, c := range summary.Categories {
		links := fmt.Sprint(c.Links)
		if !c.Fetched {
			links = "失败"
		}
		t.AppendRow(table.Row{c.Path, links, c.Retained, c.NewItems, c.Duplicate})
	}
	t.AppendSeparator()
	t.AppendRow(table.Row{"页面", summary.PagesVisited, "失败", summary.PagesFailed, ""})
	if summary.DryRun {
		t.AppendRow(table.Row{"记录", len(summary.Records), "同步", "dry-run", ""})
	} else {
		t.AppendRow(table.Row{"记录", len(summary.Records), "同步成功", summary.Synced, len(summary.Failures)})
	}
	t.AppendFooter(table.Row{"耗时", fmt.Sprintf("%.2fs", summary.Duration), "", "", ""})
	t.SetStyle(table.StyleRounded)
	t.Render()
}

// RenderItems 以表格形式输出物品记录
func RenderItems(w io.Writer, records []models.ItemRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"game_id", "name_en", "icon_url", "description"})
	for _, rec := range records {
		t.AppendRow(table.Row{rec.GameID, rec.NameEnglish, deref(rec.IconURL), deref(rec.Description)})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

// NewProgressBar 创建进度条
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
