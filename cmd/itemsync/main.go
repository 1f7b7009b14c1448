package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/RecoveryAshes/itemsync/internal/core"
	"github.com/RecoveryAshes/itemsync/internal/crawlers"
	"github.com/RecoveryAshes/itemsync/internal/models"
	"github.com/RecoveryAshes/itemsync/internal/storage"
	"github.com/RecoveryAshes/itemsync/internal/utils"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string

	// HTTP头部参数
	headers        []string
	validateConfig bool

	// 运行参数
	dryRun   bool
	workers  int
	sinkKind string
	report   bool

	// probe
	probeFile string

	// remote
	remoteLimit int
)

// appConfig 在PersistentPreRunE中加载
var appConfig *core.Config

var rootCmd = &cobra.Command{
	Use:   "itemsync",
	Short: "物品数据库抓取与同步工具",
	Long: `itemsync - 抓取物品wiki的分类页和物品页, 提取物品ID、名称、图标,
并通过REST接口upsert到远端表 (或导出到本地SQLite)。

示例:
  # 使用 configs/config.yaml 运行, 密钥通过环境变量提供
  ITEMSYNC_SYNC_API_KEY=xxx itemsync

  # 只抓取不同步
  itemsync --dry-run

  # 自定义请求头部
  itemsync -H "User-Agent: MyBot/1.0" --dry-run

  # 检查单个物品页的解析结果
  itemsync probe https://tlidb.com/en/Flame_Elementium

  # 查看远端表
  itemsync remote --limit 20

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		level := logLevel
		if verbose && level == "" {
			level = "debug"
		}
		config.MergeCLIFlags(0, "", level)

		if err := utils.InitLogger(config.LogConfig()); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}
		if config.File != "" {
			utils.Debugf("使用配置文件: %s", config.File)
		}

		appConfig = config
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := ValidateFlags(workers, sinkKind); err != nil {
			return err
		}
		appConfig.MergeCLIFlags(workers, sinkKind, "")
		if report {
			appConfig.Output.Report = true
		}

		headerManager, err := core.NewHeaderManager(appConfig.Fetch.Headers, headers)
		if err != nil {
			return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
		}

		if validateConfig {
			return runValidateConfig(headerManager)
		}

		if err := appConfig.Validate(dryRun); err != nil {
			return fmt.Errorf("配置验证失败: %w", err)
		}
		if appConfig.Fetch.Mode == models.FetchModeRender && appConfig.Crawl.Workers > 1 {
			appConfig.Crawl.Workers = crawlers.RenderWorkerLimit(appConfig.Crawl.Workers)
		}

		fetcher, closeFetcher, err := crawlers.NewFetcher(appConfig.Fetch, headerManager)
		if err != nil {
			return fmt.Errorf("创建抓取器失败: %w", err)
		}
		defer closeFetcher()

		var sink storage.Sink
		if !dryRun {
			sink, err = storage.NewSink(appConfig.Sync)
			if err != nil {
				return fmt.Errorf("创建同步目标失败: %w", err)
			}
			defer sink.Close()
		}

		pipeline, err := core.NewPipeline(appConfig, fetcher, sink, dryRun)
		if err != nil {
			return err
		}
		pipeline.ShowProgress = true

		summary, runErr := pipeline.Run(ctx)

		fmt.Println()
		utils.RenderSummary(os.Stdout, summary)
		if dryRun && len(summary.Records) > 0 {
			utils.RenderItems(os.Stdout, summary.Records)
		}

		if appConfig.Output.Report {
			path, err := utils.NewReporter(appConfig.Output.Dir).WriteReport(models.RunReport{
				Summary:     *summary,
				GeneratedAt: time.Now(),
				Site:        appConfig.Site,
				Crawl:       appConfig.Crawl,
				FetchMode:   appConfig.Fetch.Mode,
				Sink:        appConfig.Sync.Sink,
			})
			if err != nil {
				utils.Error(err, "写入运行报告失败")
			} else {
				utils.Infof("运行报告: %s", path)
			}
		}

		if runErr != nil {
			if errors.Is(runErr, context.Canceled) {
				return fmt.Errorf("运行被中断")
			}
			return runErr
		}

		utils.Info("✨ 任务完成!")
		return nil
	},
}

// runValidateConfig 验证配置和头部后退出
func runValidateConfig(headerManager *core.HeaderManager) error {
	utils.Info("🔍 验证配置...")
	if err := headerManager.Validate(); err != nil {
		return fmt.Errorf("头部验证失败: %w", err)
	}
	if err := appConfig.Validate(dryRun); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}

	safeHeaders := headerManager.GetSafeHeaders()
	names := make([]string, 0, len(safeHeaders))
	for name := range safeHeaders {
		names = append(names, name)
	}
	sort.Strings(names)

	utils.Info("✅ 配置验证通过!")
	utils.Infof("当前有效的HTTP头部 (%d个):", len(safeHeaders))
	for _, name := range names {
		utils.Infof("  %s: %s", name, safeHeaders[name])
	}
	return nil
}

var probeCmd = &cobra.Command{
	Use:   "probe [url...]",
	Short: "抓取并解析物品页, 不同步",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		urls, err := collectProbeURLs(args, probeFile)
		if err != nil {
			return err
		}
		if len(urls) == 0 {
			return cmd.Help()
		}

		headerManager, err := core.NewHeaderManager(appConfig.Fetch.Headers, headers)
		if err != nil {
			return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
		}
		if err := appConfig.Fetch.Validate(); err != nil {
			return fmt.Errorf("配置验证失败: %w", err)
		}

		fetcher, closeFetcher, err := crawlers.NewFetcher(appConfig.Fetch, headerManager)
		if err != nil {
			return fmt.Errorf("创建抓取器失败: %w", err)
		}
		defer closeFetcher()

		records, failed := core.Probe(ctx, fetcher, urls, appConfig.Crawl.RequestDelay)
		utils.RenderItems(os.Stdout, records)
		utils.Infof("解析成功 %d, 失败 %d", len(records), failed)
		return nil
	},
}

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "列出同步目标中已有的物品",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := ValidateFlags(1, sinkKind); err != nil {
			return err
		}
		appConfig.MergeCLIFlags(0, sinkKind, "")
		if err := appConfig.Sync.Validate(); err != nil {
			return fmt.Errorf("配置验证失败: %w", err)
		}

		sink, err := storage.NewSink(appConfig.Sync)
		if err != nil {
			return fmt.Errorf("创建同步目标失败: %w", err)
		}
		defer sink.Close()

		records, err := sink.List(ctx, remoteLimit)
		if err != nil {
			return err
		}
		utils.RenderItems(os.Stdout, records)
		utils.Infof("共 %d 条", len(records))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("itemsync %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式 (等同 --log-level debug)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")
	rootCmd.PersistentFlags().StringVar(&sinkKind, "sink", "", "同步目标 (rest|sqlite), 覆盖配置文件")

	// 运行参数
	rootCmd.Flags().BoolVar(&validateConfig, "validate-config", false, "验证配置文件正确性")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "只抓取和提取, 不同步")
	rootCmd.Flags().IntVar(&workers, "workers", 0, "物品页并发数 (1-16), 覆盖配置文件")
	rootCmd.Flags().BoolVar(&report, "report", false, "写入JSON运行报告")

	probeCmd.Flags().StringVarP(&probeFile, "file", "f", "", "包含URL列表的文件路径")
	remoteCmd.Flags().IntVar(&remoteLimit, "limit", 50, "最多显示的条数 (0为全部)")

	rootCmd.AddCommand(probeCmd, remoteCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
