package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "PGWDash/internal/log"
	"PGWDash/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open 打开本地 SQLite 数据库并完成表结构迁移
func Open(cfg DBConfig) (*gorm.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ensureDir(filepath.Dir(cfg.Database)); err != nil {
		return nil, fmt.Errorf("创建数据库目录失败: %w", err)
	}
	cfg.PrintConfig()

	gdb, err := gorm.Open(sqlite.Open(cfg.BuildDSN()), &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层连接失败: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.MaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.MaxIdleTime)

	if err := gdb.AutoMigrate(&models.AuthToken{}, &models.ConsoleSession{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("初始化数据库表结构失败: %w", err)
	}

	log.Infof("[DB] 数据库初始化成功: %s", cfg.Database)
	return gdb, nil
}

// Close 关闭数据库连接
func Close(gdb *gorm.DB) error {
	if gdb == nil {
		return nil
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ensureDir 确保目录存在，如果不存在则创建
func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		log.Infof("[DB] 创建目录: %s", dir)
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// isLockError 判断是否为 SQLite 锁冲突
func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// WithRetry 遇到锁冲突时重试，最多 3 次
func WithRetry(gdb *gorm.DB, fn func(*gorm.DB) error) error {
	const maxRetries = 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = fn(gdb)
		if err == nil {
			return nil
		}
		if isLockError(err) && i < maxRetries-1 {
			time.Sleep(time.Duration(i+1) * baseDelay)
			continue
		}
		return err
	}
	return err
}

func gormLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "error":
		return logger.Error
	case "warn", "warning":
		return logger.Warn
	case "info", "debug":
		return logger.Info
	default:
		return logger.Silent
	}
}
