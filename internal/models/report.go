package models

import "time"

// RunReport 写入磁盘的运行报告
type RunReport struct {
	Summary     RunSummary  `json:"summary"`
	GeneratedAt time.Time   `json:"generated_at"`
	Site        SiteConfig  `json:"site"`
	Crawl       CrawlConfig `json:"crawl"`
	FetchMode   FetchMode   `json:"fetch_mode"`
	Sink        SinkKind    `json:"sink"`
}
