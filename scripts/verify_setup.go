package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/RecoveryAshes/itemsync/internal/core"
	"github.com/RecoveryAshes/itemsync/internal/models"
	"github.com/go-rod/rod/lib/launcher"
)

func main() {
	fmt.Println("==============================================")
	fmt.Println("  itemsync 运行环境验证")
	fmt.Println("==============================================")
	fmt.Println()

	allOK := true

	fmt.Printf("✅ Go版本: %s\n", runtime.Version())
	fmt.Printf("✅ 操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	// 配置文件
	configPath := ""
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	config, err := core.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("❌ 配置加载失败: %v\n", err)
		os.Exit(1)
	}
	if config.File != "" {
		fmt.Printf("✅ 配置文件: %s\n", config.File)
	} else {
		fmt.Println("⚠️  未找到配置文件, 使用默认值")
	}

	if err := config.Validate(true); err != nil {
		fmt.Printf("❌ 抓取配置无效: %v\n", err)
		allOK = false
	} else {
		fmt.Printf("✅ 站点: %s (%d个分类)\n", config.Site.BaseURL, len(config.Site.Categories))
	}

	// render模式需要浏览器
	if path, found := launcher.LookPath(); found {
		fmt.Printf("✅ 浏览器: %s\n", path)
	} else if config.Fetch.Mode == models.FetchModeRender {
		fmt.Println("❌ 未找到浏览器 - fetch.mode: render 不可用")
		allOK = false
	} else {
		fmt.Println("⚠️  未找到浏览器 - 仅static模式可用")
	}

	// 同步目标
	if err := config.Sync.Validate(); err != nil {
		fmt.Printf("❌ 同步配置无效: %v\n", err)
		fmt.Println("   可以先用 --dry-run 只抓取不同步")
		allOK = false
	} else {
		fmt.Printf("✅ 同步目标: %s\n", config.Sync.Sink)
	}

	if config.Sync.Sink == models.SinkSQLite {
		dir := filepath.Dir(config.Sync.SQLitePath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			fmt.Printf("❌ 数据库目录不可写: %v\n", err)
			allOK = false
		}
	}

	fmt.Println()
	fmt.Println("==============================================")
	if allOK {
		fmt.Println("✅ 环境验证通过!")
		fmt.Println()
		fmt.Println("下一步:")
		fmt.Println("  1. 运行 'itemsync --dry-run' 检查抓取结果")
		fmt.Println("  2. 运行 'itemsync' 同步到远端表")
		os.Exit(0)
	} else {
		fmt.Println("❌ 环境验证失败,请解决上述问题。")
		os.Exit(1)
	}
}
