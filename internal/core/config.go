package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RecoveryAshes/itemsync/internal/models"
	"github.com/RecoveryAshes/itemsync/internal/utils"
	"github.com/spf13/viper"
)

// MaxConfigFileSize 配置文件最大大小 (1MB)
const MaxConfigFileSize = 1 * 1024 * 1024

// EnvPrefix 环境变量前缀, 如 ITEMSYNC_SYNC_API_KEY
const EnvPrefix = "ITEMSYNC"

// Config 应用程序配置
type Config struct {
	Site    models.SiteConfig  `mapstructure:"site"`
	Crawl   models.CrawlConfig `mapstructure:"crawl"`
	Fetch   models.FetchConfig `mapstructure:"fetch"`
	Sync    models.SyncConfig  `mapstructure:"sync"`
	Logging LoggingConfig      `mapstructure:"logging"`
	Output  OutputConfig       `mapstructure:"output"`

	// 来源文件, 未找到配置文件时为空
	File string `mapstructure:"-"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	Report bool   `mapstructure:"report"` // 是否写入JSON运行报告
	Dir    string `mapstructure:"dir"`
}

// LoadConfig 加载配置文件
// configPath为空时在 ./configs, ., ~/.itemsync 中搜索 config.yaml, 找不到则使用默认值
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		if err := checkFileSize(configPath); err != nil {
			return nil, err
		}
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".itemsync"))
		}
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &models.ConfigError{FilePath: configPath, Cause: err}
		}
		utils.Debugf("未找到配置文件, 使用默认配置")
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, &models.ConfigError{
			FilePath: v.ConfigFileUsed(),
			Cause:    fmt.Errorf("配置绑定失败: %w", err),
		}
	}
	config.File = v.ConfigFileUsed()

	// viper会把map键转为小写, 头部名称在使用时规范化
	if config.Fetch.Headers == nil {
		config.Fetch.Headers = make(map[string]string)
	}

	return &config, nil
}

func checkFileSize(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &models.ConfigError{FilePath: path, Cause: err}
	}
	if info.Size() > MaxConfigFileSize {
		return &models.ConfigError{
			FilePath: path,
			Cause:    fmt.Errorf("配置文件过大: %d 字节 (最大 %d 字节)", info.Size(), MaxConfigFileSize),
		}
	}
	return nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 站点
	v.SetDefault("site.base_url", "https://tlidb.com")
	v.SetDefault("site.locale_prefix", "/en/")
	v.SetDefault("site.categories", []string{"/en/Currency", "/en/Material"})
	v.SetDefault("site.denylist", DefaultDenylist)
	v.SetDefault("site.min_path_length", 6)

	// 抓取
	v.SetDefault("crawl.max_links_per_category", 50)
	v.SetDefault("crawl.request_delay", time.Second)
	v.SetDefault("crawl.workers", 1)

	v.SetDefault("fetch.mode", string(models.FetchModeStatic))
	v.SetDefault("fetch.timeout", time.Duration(0))
	v.SetDefault("fetch.cloudflare_bypass", false)
	v.SetDefault("fetch.headless", true)

	// 同步
	v.SetDefault("sync.sink", string(models.SinkREST))
	v.SetDefault("sync.base_url", "")
	v.SetDefault("sync.table", "tli_game_items")
	v.SetDefault("sync.conflict_key", "game_id")
	v.SetDefault("sync.api_key", "")
	v.SetDefault("sync.delay", 200*time.Millisecond)
	v.SetDefault("sync.sqlite_path", "output/items.db")

	// 日志
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	// 输出
	v.SetDefault("output.report", false)
	v.SetDefault("output.dir", "output")
}

// DefaultDenylist 分类页上的导航区块, 不是物品页
var DefaultDenylist = []string{
	"Hero",
	"Talent",
	"Skill",
	"Legendary_Gear",
	"Pactspirit",
	"Season",
	"Drop_Source",
	"Login",
	"Search",
}

// Validate 验证配置
// dryRun为true时不要求同步目标可用
func (c *Config) Validate(dryRun bool) error {
	if err := c.Site.Validate(); err != nil {
		return err
	}
	if err := c.Crawl.Validate(); err != nil {
		return err
	}
	if err := c.Fetch.Validate(); err != nil {
		return err
	}
	if dryRun {
		return nil
	}
	return c.Sync.Validate()
}

// LogConfig 转换为日志系统配置
func (c *Config) LogConfig() utils.LogConfig {
	lc := utils.DefaultLogConfig()
	if c.Logging.Level != "" {
		lc.Level = c.Logging.Level
	}
	if c.Logging.LogDir != "" {
		lc.LogDir = c.Logging.LogDir
	}
	if c.Logging.Rotation.MaxSize > 0 {
		lc.MaxSize = c.Logging.Rotation.MaxSize
	}
	if c.Logging.Rotation.MaxBackups > 0 {
		lc.MaxBackups = c.Logging.Rotation.MaxBackups
	}
	if c.Logging.Rotation.MaxAge > 0 {
		lc.MaxAge = c.Logging.Rotation.MaxAge
	}
	lc.Compress = c.Logging.Rotation.Compress
	return lc
}

// MergeCLIFlags 合并命令行参数到配置
// 命令行参数优先于配置文件, 零值表示未指定
func (c *Config) MergeCLIFlags(workers int, sink string, logLevel string) {
	if workers > 0 {
		c.Crawl.Workers = workers
	}
	if sink != "" {
		c.Sync.Sink = models.SinkKind(sink)
	}
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
}
