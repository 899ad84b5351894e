package db

import (
	"fmt"
	"os"
	"strconv"
	"time"

	log "PGWDash/internal/log"
)

// DBConfig SQLite数据库配置结构
type DBConfig struct {
	Database     string        // SQLite数据库文件路径
	MaxOpenConns int           // 最大打开连接数
	MaxIdleConns int           // 最大空闲连接数
	MaxLifetime  time.Duration // 连接最大生命周期
	MaxIdleTime  time.Duration // 空闲连接最大生命周期
	LogLevel     string        // gorm 日志级别 (silent, error, warn, info)
	WALMode      bool          // 是否启用WAL模式
}

// DefaultDBConfig 返回默认配置，path 为空时使用 public/pgwdash.db
func DefaultDBConfig(path string) DBConfig {
	if path == "" {
		path = "public/pgwdash.db"
	}
	cfg := DBConfig{
		Database: path,
		// 只保存一行令牌，连接数不需要多
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		MaxLifetime:  0,
		MaxIdleTime:  5 * time.Minute,
		LogLevel:     "silent",
		WALMode:      true,
	}
	loadFromEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		log.Errorf("[DB] 数据库配置验证失败: %v，使用默认连接参数", err)
		cfg.MaxOpenConns, cfg.MaxIdleConns = 4, 2
	}
	return cfg
}

// loadFromEnv 从环境变量加载连接池相关配置
func loadFromEnv(config *DBConfig) {
	if value := os.Getenv("DB_MAX_OPEN_CONNS"); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			config.MaxOpenConns = intVal
		}
	}
	if value := os.Getenv("DB_MAX_IDLE_CONNS"); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			config.MaxIdleConns = intVal
		}
	}
	if value := os.Getenv("DB_MAX_IDLE_TIME"); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			config.MaxIdleTime = duration
		}
	}
	if value := os.Getenv("DB_LOG_LEVEL"); value != "" {
		config.LogLevel = value
	}
	if value := os.Getenv("DB_WAL_MODE"); value != "" {
		config.WALMode = value == "true"
	}
}

// Validate 验证配置的有效性
func (c *DBConfig) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("数据库文件路径不能为空")
	}
	if c.MaxOpenConns <= 0 {
		return fmt.Errorf("最大连接数必须大于0")
	}
	if c.MaxIdleConns <= 0 {
		return fmt.Errorf("最大空闲连接数必须大于0")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("最大空闲连接数不能超过最大连接数")
	}
	return nil
}

// BuildDSN 构建SQLite连接字符串
func (c *DBConfig) BuildDSN() string {
	dsn := c.Database + "?_foreign_keys=on&_busy_timeout=10000"
	if c.WALMode {
		dsn += "&_journal_mode=WAL"
	}
	return dsn
}

// PrintConfig 打印配置信息
func (c *DBConfig) PrintConfig() {
	log.Debugf("[DB] SQLite数据库配置:")
	log.Debugf("  数据库文件: %s", c.Database)
	log.Debugf("  最大连接数: %d", c.MaxOpenConns)
	log.Debugf("  最大空闲连接数: %d", c.MaxIdleConns)
	log.Debugf("  空闲超时: %v", c.MaxIdleTime)
	log.Debugf("  日志级别: %s", c.LogLevel)
	log.Debugf("  WAL模式: %v", c.WALMode)
}
