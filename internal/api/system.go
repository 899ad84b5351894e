package api

import (
	"net/http"
	"runtime"
	"strconv"

	"PGWDash/internal/cache"
	log "PGWDash/internal/log"
	"PGWDash/internal/workflow"

	"github.com/gin-gonic/gin"
)

// VersionInfo 版本信息结构
type VersionInfo struct {
	Current   string `json:"current"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	APIBase   string `json:"apiBase"`
}

// SetupVersionRoutes 公开的版本信息
func SetupVersionRoutes(rg *gin.RouterGroup, version, apiBase string) {
	rg.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, VersionInfo{
			Current:   version,
			GoVersion: runtime.Version(),
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
			APIBase:   apiBase,
		})
	})
}

// SystemHandler 工作流、缓存状态与操作日志
type SystemHandler struct {
	workflows *workflow.Registry
	cache     *cache.Cache
	oplog     *log.OperationLogger
}

// SetupSystemRoutes 设置受保护的系统路由，oplog 为空时不注册日志接口
func SetupSystemRoutes(rg *gin.RouterGroup, workflows *workflow.Registry, c *cache.Cache, oplog *log.OperationLogger) {
	h := &SystemHandler{workflows: workflows, cache: c, oplog: oplog}

	rg.GET("/workflows/:id", h.HandleGetWorkflow)
	rg.GET("/cache", h.HandleCacheStatus)
	rg.POST("/cache/refresh", h.HandleCacheRefresh)
	if oplog != nil {
		rg.GET("/logs/:kind", h.HandleGetLogs)
	}
}

// HandleGetWorkflow 查询工作流快照
func (h *SystemHandler) HandleGetWorkflow(c *gin.Context) {
	wf, ok := h.workflows.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "工作流不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "workflow": wf.Snapshot().Redacted()})
}

// HandleCacheStatus 各缓存键的状态
func (h *SystemHandler) HandleCacheStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "keys": h.cache.Statuses()})
}

// HandleCacheRefresh 手动让缓存失效，keys 为空时全部失效
func (h *SystemHandler) HandleCacheRefresh(c *gin.Context) {
	var req struct {
		Keys []cache.Key `json:"keys"`
	}
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	if len(req.Keys) == 0 {
		req.Keys = []cache.Key{cache.KeyServers, cache.KeyProxies, cache.KeyGroups, cache.KeyMappings, cache.KeySummary, cache.KeyMe}
	}
	h.cache.Invalidate(req.Keys...)
	c.JSON(http.StatusOK, gin.H{"success": true, "invalidated": req.Keys})
}

// HandleGetLogs 最近的操作日志
func (h *SystemHandler) HandleGetLogs(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))
	if days <= 0 {
		days = 1
	}
	entries, err := h.oplog.ReadRecentLogs(c.Param("kind"), days, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "logs": entries})
}
