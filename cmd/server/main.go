package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"PGWDash/internal/auth"
	"PGWDash/internal/config"
	dbPkg "PGWDash/internal/db"
	log "PGWDash/internal/log"
	"PGWDash/internal/router"

	"github.com/gin-gonic/gin"
)

// Version 会在构建时通过 -ldflags "-X main.Version=xxx" 注入
var Version = "dev"

func main() {
	args := os.Args[1:]
	for _, a := range args {
		if a == "-v" || a == "-version" || a == "--version" {
			fmt.Printf("PGWDash %s\n", Version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
			return
		}
	}

	cfg, err := config.Load(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Errorf("加载配置失败: %v", err)
		os.Exit(1)
	}

	if err := log.SetLogLevel(cfg.LogLevel); err != nil {
		log.Errorf("设置日志级别失败: %v", err)
	}
	if log.GetLogLevel() != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 本地数据库只保存登录令牌
	gormDB, err := dbPkg.Open(dbPkg.DefaultDBConfig(cfg.DBPath))
	if err != nil {
		log.Errorf("数据库初始化失败: %v", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbPkg.Close(gormDB); err != nil {
			log.Errorf("关闭数据库连接失败: %v", err)
		}
	}()

	sealer, err := auth.NewSealer(cfg.TokenSecret)
	if err != nil {
		log.Errorf("初始化令牌加密失败: %v", err)
		os.Exit(1)
	}
	if cfg.TokenSecret == config.Default().TokenSecret {
		log.Warnf("正在使用默认 TOKEN_SECRET，生产环境请修改")
	}

	oplog := log.NewOperationLogger(cfg.LogDir, cfg.LogRetentionDays)
	defer oplog.Close()

	console := router.NewConsole(router.Options{
		APIBase:         cfg.APIBaseURL(),
		Timeout:         cfg.RequestTimeout,
		BulkConcurrency: cfg.BulkConcurrency,
		Store:           auth.NewGormTokenStore(gormDB, sealer),
		Sessions:        auth.NewSessions(gormDB, cfg.SessionTTL),
		AllowedOrigins:  cfg.AllowedOrigins,
		OpLog:           oplog,
		Version:         Version,
	})

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router.NewRootHandler(console.Engine, cfg.DistDir),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if ip := net.ParseIP(cfg.Host); (ip == nil || !ip.IsLoopback()) && cfg.Host != "localhost" {
		log.Warnf("监听地址 %s 不是本机回环地址，请确认访问来源可信", cfg.Host)
	}

	// 启动HTTP/HTTPS服务器
	go func() {
		if cfg.TLSCert != "" && cfg.TLSKey != "" {
			log.Infof("PGWDash[%s] 启动在 https://%s (TLS)", Version, cfg.Addr())
			if err := server.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey); err != http.ErrServerClosed {
				log.Errorf("HTTPS 服务器错误: %v", err)
			}
			return
		}

		log.Infof("PGWDash[%s] 启动在 http://%s", Version, cfg.Addr())
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Errorf("HTTP 服务器错误: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infof("正在关闭服务器...")

	// SSE 连接不会自己结束，先断开再关闭 HTTP 服务
	console.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("服务器关闭错误: %v", err)
	}

	log.Infof("服务器已关闭")
}
