package router

import (
	"net/http"
	"time"

	"PGWDash/internal/auth"
	"PGWDash/internal/cache"
	"PGWDash/internal/dashboard"
	"PGWDash/internal/events"
	"PGWDash/internal/group"
	log "PGWDash/internal/log"
	"PGWDash/internal/mapping"
	"PGWDash/internal/pgwapi"
	"PGWDash/internal/proxy"
	"PGWDash/internal/server"
	"PGWDash/internal/workflow"

	"github.com/gin-gonic/gin"
)

// Options 控制台组装参数
type Options struct {
	APIBase         string
	Timeout         time.Duration
	BulkConcurrency int
	Store           auth.TokenStore
	// 为空时会话只保存在内存中
	Sessions       *auth.Sessions
	AllowedOrigins []string
	OpLog          *log.OperationLogger
	// 为空时使用带系统代理检测的默认 Transport
	Transport http.RoundTripper
	Version   string
}

// Console 组装好的控制台：API 客户端、缓存、工作流、登录门禁与 HTTP 路由
type Console struct {
	Deps
	Client *pgwapi.Client
	Engine *gin.Engine
}

// NewConsole 按依赖顺序创建所有服务
func NewConsole(o Options) *Console {
	if o.Store == nil {
		o.Store = auth.NewMemoryTokenStore()
	}
	if o.Sessions == nil {
		o.Sessions = auth.NewSessions(nil, auth.DefaultSessionTTL)
	}

	c := cache.New()
	hub := events.NewHub()
	gate := auth.NewGate(o.Store, c, hub)
	client := pgwapi.New(pgwapi.Options{
		BaseURL:   o.APIBase,
		Timeout:   o.Timeout,
		Tokens:    gate,
		Transport: o.Transport,
	})
	gate.Bind(client)
	gate.UseSessions(o.Sessions)

	registry := workflow.NewRegistry(0)
	if o.OpLog != nil {
		registry.AddListener(workflow.JournalListener(o.OpLog))
	}
	hub.Attach(c, registry)

	d := Deps{
		Gate:           gate,
		Sessions:       o.Sessions,
		Cache:          c,
		Workflows:      registry,
		Hub:            hub,
		OpLog:          o.OpLog,
		Servers:        server.NewService(client, c, registry),
		Proxies:        proxy.NewService(client, c, registry, o.BulkConcurrency),
		Groups:         group.NewService(client, c, registry),
		Mappings:       mapping.NewService(client, c),
		Dashboard:      dashboard.NewService(client, c),
		AllowedOrigins: o.AllowedOrigins,
		Version:        o.Version,
		APIBase:        client.BaseURL(),
	}

	log.Infof("[Console] 已连接 pgw API: %s", client.BaseURL())
	return &Console{Deps: d, Client: client, Engine: SetupRouter(d)}
}

// Close 断开 SSE 客户端
func (c *Console) Close() {
	c.Hub.Close()
}
