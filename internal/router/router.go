package router

import (
	"net/http"
	"strings"

	"PGWDash/internal/api"
	"PGWDash/internal/auth"
	"PGWDash/internal/cache"
	"PGWDash/internal/dashboard"
	"PGWDash/internal/events"
	"PGWDash/internal/group"
	log "PGWDash/internal/log"
	"PGWDash/internal/mapping"
	"PGWDash/internal/middleware"
	"PGWDash/internal/proxy"
	"PGWDash/internal/server"
	"PGWDash/internal/workflow"

	"github.com/gin-gonic/gin"
)

// Deps 路由依赖的服务实例
type Deps struct {
	Gate      *auth.Gate
	Sessions  *auth.Sessions
	Cache     *cache.Cache
	Workflows *workflow.Registry
	Hub       *events.Hub
	OpLog     *log.OperationLogger

	Servers   *server.Service
	Proxies   *proxy.Service
	Groups    *group.Service
	Mappings  *mapping.Service
	Dashboard *dashboard.Service

	// 允许跨域携带凭据访问的来源，为空时只接受同源请求
	AllowedOrigins []string

	Version string
	APIBase string
}

// SetupRouter 创建并配置 /api 路由
func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	// 全局中间件
	r.Use(corsMiddleware(d.AllowedOrigins))

	// 健康检查
	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	setupAPIRoutes(r, d)
	return r
}

// setupAPIRoutes 公开路由与受保护路由
func setupAPIRoutes(r *gin.Engine, d Deps) {
	apiGroup := r.Group("/api")
	{
		api.SetupAuthRoutes(apiGroup, d.Gate, d.Sessions)
		api.SetupVersionRoutes(apiGroup, d.Version, d.APIBase)
	}

	protected := r.Group("/api")
	protected.Use(middleware.AuthMiddleware(d.Gate, d.Sessions))
	{
		api.SetupMeRoutes(protected, d.Gate, d.Sessions)
		api.SetupServerRoutes(protected, d.Servers, d.Mappings)
		api.SetupProxyRoutes(protected, d.Proxies, d.Mappings)
		api.SetupGroupRoutes(protected, d.Groups)
		api.SetupDashboardRoutes(protected, d.Dashboard, d.Mappings)
		api.SetupSystemRoutes(protected, d.Workflows, d.Cache, d.OpLog)
		if d.Hub != nil {
			protected.GET("/events", d.Hub.Handler())
		}
	}
}

// requestLogger 用项目日志输出请求摘要
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if sess, ok := middleware.CurrentSession(c); ok {
			log.Debugf("[HTTP] %s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), sess.Email)
			return
		}
		log.Debugf("[HTTP] %s %s -> %d", c.Request.Method, c.Request.URL.Path, c.Writer.Status())
	}
}

// corsMiddleware CORS中间件，只回显白名单内的 Origin
func corsMiddleware(allowed []string) gin.HandlerFunc {
	origins := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		origins[strings.TrimRight(o, "/")] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" || !origins[origin] {
			// 同源请求不需要 CORS 头；不在白名单内的预检直接拒绝
			if origin != "" && c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Next()
			return
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Vary", "Origin")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE")

		// 预检结果缓存 12 小时
		c.Header("Access-Control-Max-Age", "43200")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}
