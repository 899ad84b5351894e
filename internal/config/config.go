package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 控制台运行配置
type Config struct {
	// 远端 pgw API 地址，包含 /api/v1 前缀
	APIBase string `yaml:"api_base"`
	// 控制台监听地址，默认只监听本机
	Host string `yaml:"host"`
	// 控制台监听端口
	Port string `yaml:"port"`
	// 本地 SQLite 文件，仅保存登录令牌
	DBPath string `yaml:"db_path"`

	LogLevel         string `yaml:"log_level"`
	LogDir           string `yaml:"log_dir"`
	LogRetentionDays int    `yaml:"log_retention_days"`

	// 单次请求超时
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// 批量导入与批量删除共用的并发上限
	BulkConcurrency int `yaml:"bulk_concurrency"`
	// 本地令牌加密密钥
	TokenSecret string `yaml:"token_secret"`
	// 浏览器会话有效期
	SessionTTL time.Duration `yaml:"session_ttl"`
	// 允许跨域访问的来源，为空时只接受同源请求
	AllowedOrigins []string `yaml:"allowed_origins"`

	// 前端静态资源目录
	DistDir string `yaml:"dist_dir"`
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`

	// 配置文件路径（不从 yaml 中读取）
	File string `yaml:"-"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		APIBase:          "http://localhost:8082/api/v1",
		Host:             "127.0.0.1",
		Port:             "3000",
		DBPath:           "public/pgwdash.db",
		LogLevel:         "info",
		LogDir:           "public/logs",
		LogRetentionDays: 7,
		RequestTimeout:   15 * time.Second,
		BulkConcurrency:  8,
		TokenSecret:      "pgwdash-default-token-secret-please-change",
		SessionTTL:       24 * time.Hour,
		DistDir:          "dist",
	}
}

// Load 按 命令行 > 环境变量 > 配置文件 > 默认值 的优先级加载配置
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("pgwdash", flag.ContinueOnError)
	flags := registerFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()

	// 配置文件路径本身也遵循 命令行 > 环境变量
	cfg.File = os.Getenv("PGWDASH_CONFIG")
	if *flags.file != "" {
		cfg.File = *flags.file
	}
	if cfg.File != "" {
		if err := loadFromFile(cfg, cfg.File); err != nil {
			return nil, err
		}
	}

	loadFromEnv(cfg)
	applyFlags(cfg, fs, flags)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type flagValues struct {
	file            *string
	apiBase         *string
	host            *string
	port            *string
	dbPath          *string
	logLevel        *string
	logDir          *string
	requestTimeout  *time.Duration
	bulkConcurrency *int
	distDir         *string
	tlsCert         *string
	tlsKey          *string
}

func registerFlags(fs *flag.FlagSet) *flagValues {
	return &flagValues{
		file:            fs.String("config", "", "YAML 配置文件路径"),
		apiBase:         fs.String("api", "", "pgw API 地址 (例如 http://localhost:8082/api/v1)"),
		host:            fs.String("host", "", "HTTP 监听地址，默认 127.0.0.1"),
		port:            fs.String("port", "", "HTTP 服务端口，默认 3000"),
		dbPath:          fs.String("db-path", "", "本地 SQLite 文件路径"),
		logLevel:        fs.String("log-level", "", "日志级别 (DEBUG, INFO, WARN, ERROR)"),
		logDir:          fs.String("log-dir", "", "操作日志目录"),
		requestTimeout:  fs.Duration("timeout", 0, "单次 API 请求超时"),
		bulkConcurrency: fs.Int("bulk-concurrency", 0, "批量导入/删除并发数"),
		distDir:         fs.String("dist", "", "前端静态资源目录"),
		tlsCert:         fs.String("cert", "", "TLS 证书文件路径"),
		tlsKey:          fs.String("key", "", "TLS 私钥文件路径"),
	}
}

// applyFlags 只覆盖显式传入的参数
func applyFlags(cfg *Config, fs *flag.FlagSet, v *flagValues) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "api":
			cfg.APIBase = *v.apiBase
		case "host":
			cfg.Host = *v.host
		case "port":
			cfg.Port = *v.port
		case "db-path":
			cfg.DBPath = *v.dbPath
		case "log-level":
			cfg.LogLevel = *v.logLevel
		case "log-dir":
			cfg.LogDir = *v.logDir
		case "timeout":
			cfg.RequestTimeout = *v.requestTimeout
		case "bulk-concurrency":
			cfg.BulkConcurrency = *v.bulkConcurrency
		case "dist":
			cfg.DistDir = *v.distDir
		case "cert":
			cfg.TLSCert = *v.tlsCert
		case "key":
			cfg.TLSKey = *v.tlsKey
		}
	})
}

// loadFromEnv 从环境变量加载配置
func loadFromEnv(cfg *Config) {
	if value := os.Getenv("PGW_API_BASE"); value != "" {
		cfg.APIBase = value
	}
	if value := os.Getenv("HOST"); value != "" {
		cfg.Host = value
	}
	if value := os.Getenv("PORT"); value != "" {
		cfg.Port = value
	}
	if value := os.Getenv("DB_PATH"); value != "" {
		cfg.DBPath = value
	}
	// 兼容 LOG-LEVEL 写法
	if value := os.Getenv("LOG-LEVEL"); value != "" {
		cfg.LogLevel = value
	}
	if value := os.Getenv("LOG_LEVEL"); value != "" {
		cfg.LogLevel = value
	}
	if value := os.Getenv("LOG_DIR"); value != "" {
		cfg.LogDir = value
	}
	if value := os.Getenv("LOG_RETENTION_DAYS"); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			cfg.LogRetentionDays = intVal
		}
	}
	if value := os.Getenv("REQUEST_TIMEOUT"); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			cfg.RequestTimeout = d
		}
	}
	// 兼容旧的 IMPORT_CONCURRENCY
	for _, key := range []string{"IMPORT_CONCURRENCY", "BULK_CONCURRENCY"} {
		if value := os.Getenv(key); value != "" {
			if intVal, err := strconv.Atoi(value); err == nil {
				cfg.BulkConcurrency = intVal
			}
		}
	}
	if value := os.Getenv("SESSION_TTL"); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			cfg.SessionTTL = d
		}
	}
	if value := os.Getenv("CORS_ORIGINS"); value != "" {
		cfg.AllowedOrigins = nil
		for _, origin := range strings.Split(value, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}
	if value := os.Getenv("TOKEN_SECRET"); value != "" {
		cfg.TokenSecret = value
	}
	if value := os.Getenv("TLS_CERT"); value != "" {
		cfg.TLSCert = value
	}
	if value := os.Getenv("TLS_KEY"); value != "" {
		cfg.TLSKey = value
	}
}

// loadFromFile 从 YAML 文件加载配置
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("解析配置文件失败: %w", err)
	}
	return nil
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIBase) == "" {
		return errors.New("api_base 不能为空")
	}
	u, err := url.Parse(c.APIBase)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api_base 无效: %s", c.APIBase)
	}
	if strings.TrimSpace(c.Host) == "" {
		return errors.New("host 不能为空，监听全部网卡请显式设置为 0.0.0.0")
	}
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("port 无效: %s", c.Port)
	}
	if c.DBPath == "" {
		return errors.New("db_path 不能为空")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request_timeout 必须大于0")
	}
	if c.BulkConcurrency <= 0 {
		return errors.New("bulk_concurrency 必须大于0")
	}
	if c.SessionTTL <= 0 {
		return errors.New("session_ttl 必须大于0")
	}
	for _, origin := range c.AllowedOrigins {
		u, err := url.Parse(origin)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("allowed_origins 无效: %s", origin)
		}
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return errors.New("tls_cert 与 tls_key 必须同时设置")
	}
	return nil
}

// APIBaseURL 返回去掉末尾斜杠的 API 地址
func (c *Config) APIBaseURL() string {
	return strings.TrimRight(c.APIBase, "/")
}

// Addr 监听地址 host:port
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}
