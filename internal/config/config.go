package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	SSH       SSHConfig       `mapstructure:"ssh"`
	Operation OperationConfig `mapstructure:"operation"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	// DeviceDefaults 按平台覆盖方言默认值（提示符、会话准备命令、错误提示、保存命令等）
	DeviceDefaults map[string]PlatformDefaultsConfig `mapstructure:"device_defaults"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// MaxConcurrent 同时进行的独立操作上限（每个操作各自占用一个会话）
	MaxConcurrent int `mapstructure:"max_concurrent"`
}

// SSHConfig SSH配置
type SSHConfig struct {
	Port int `mapstructure:"port"`
	// ConnectTimeout 由 ssh.timeout.dial_timeout + auth_timeout 合并而来
	ConnectTimeout    time.Duration `mapstructure:"-"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	SettleMS          int           `mapstructure:"settle_ms"`
	KeepAliveInterval time.Duration `mapstructure:"keep_alive_interval"`
	TransferTimeout   time.Duration `mapstructure:"transfer_timeout"`
	ChannelRetries    int           `mapstructure:"channel_retries"`
	// OutputEncoding 设备输出字符集：auto | gb18030 | gbk | big5 | windows-1252 | latin1
	OutputEncoding string `mapstructure:"output_encoding"`
}

// OperationConfig 单次操作的默认参数
type OperationConfig struct {
	PacingFactor      float64 `mapstructure:"pacing_factor"`
	DefaultFileSystem string  `mapstructure:"default_file_system"`
	// LogDir 操作日志文件（--log）目录
	LogDir string `mapstructure:"log_dir"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	// Timezone 操作日志文件名使用的时区
	Timezone string `mapstructure:"timezone"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

// SQLiteConfig SQLite配置，Path 为空表示不记录审计
type SQLiteConfig struct {
	Path            string        `mapstructure:"path"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// StorageConfig 下载文件归档配置
type StorageConfig struct {
	Minio MinioConfig `mapstructure:"minio"`
}

// MinioConfig 对象存储配置
type MinioConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Secure    bool   `mapstructure:"secure"`
	Prefix    string `mapstructure:"prefix"`
}

// PlatformDefaultsConfig 平台方言覆盖项，未设置的字段沿用插件默认值
type PlatformDefaultsConfig struct {
	PromptSuffixes  []string `mapstructure:"prompt_suffixes"`
	SessionPrep     []string `mapstructure:"session_prep"`
	ErrorHints      []string `mapstructure:"error_hints"`
	EnableCLI       string   `mapstructure:"enable_cli"`
	ConfigModeCLI   string   `mapstructure:"config_mode_cli"`
	ConfigExitCLI   string   `mapstructure:"config_exit_cli"`
	SaveCLI         string   `mapstructure:"save_cli"`
	ListCLI         string   `mapstructure:"list_cli"`
	ChecksumCLI     string   `mapstructure:"checksum_cli"`
	ChecksumPattern string   `mapstructure:"checksum_pattern"`
	FreePattern     string   `mapstructure:"free_pattern"`
	FileRowPattern  string   `mapstructure:"file_row_pattern"`
	BootTemplate    string   `mapstructure:"boot_template"`
	BootChange      *bool    `mapstructure:"boot_change"`
}

var globalConfig *Config

// Load 加载配置文件。configPath 为空时按默认路径搜索，找不到文件则仅使用默认值
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	v.SetEnvPrefix("FLASHOPS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 握手超时拆分为 dial/auth 两段，合并为 ConnectTimeout
	dialSec := v.GetInt("ssh.timeout.dial_timeout")
	authSec := v.GetInt("ssh.timeout.auth_timeout")
	config.SSH.ConnectTimeout = time.Duration(dialSec+authSec) * time.Second

	if config.Operation.PacingFactor <= 0 {
		config.Operation.PacingFactor = DefaultPacingFactor
	}

	globalConfig = &config
	return &config, nil
}

// DefaultPacingFactor 默认响应节奏因子
const DefaultPacingFactor = 0.1

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 18080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	// 大文件传输可能持续较久，写超时放宽
	v.SetDefault("server.write_timeout", 30*time.Minute)
	v.SetDefault("server.max_concurrent", 8)

	v.SetDefault("ssh.port", 22)
	v.SetDefault("ssh.timeout.dial_timeout", 5)
	v.SetDefault("ssh.timeout.auth_timeout", 10)
	v.SetDefault("ssh.read_timeout", 20*time.Second)
	v.SetDefault("ssh.settle_ms", 150)
	v.SetDefault("ssh.keep_alive_interval", 30*time.Second)
	v.SetDefault("ssh.transfer_timeout", 10*time.Minute)
	v.SetDefault("ssh.channel_retries", 4)
	v.SetDefault("ssh.output_encoding", "auto")

	v.SetDefault("operation.pacing_factor", DefaultPacingFactor)
	v.SetDefault("operation.default_file_system", "flash:")
	v.SetDefault("operation.log_dir", "./logs/operations")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "console")
	v.SetDefault("log.file_path", "./logs/flashops.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.timezone", "Local")

	v.SetDefault("storage.minio.enabled", false)
	v.SetDefault("storage.minio.port", 9000)
	v.SetDefault("storage.minio.bucket", "flash-archive")
	v.SetDefault("storage.minio.prefix", "downloads")
}

// Get 获取全局配置
func Get() *Config {
	return globalConfig
}

// GetServerAddr 获取服务器地址
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Location 返回日志时区，无法识别时使用本地时区
func (c *Config) Location() *time.Location {
	tz := strings.TrimSpace(c.Log.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Local
	}
	return loc
}
