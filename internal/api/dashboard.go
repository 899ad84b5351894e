package api

import (
	"net/http"

	"PGWDash/internal/dashboard"
	"PGWDash/internal/mapping"

	"github.com/gin-gonic/gin"
)

// DashboardHandler 仪表盘相关的处理器
type DashboardHandler struct {
	dashboardService *dashboard.Service
	mappingService   *mapping.Service
}

// NewDashboardHandler 创建仪表盘处理器实例
func NewDashboardHandler(dashboardService *dashboard.Service, mappingService *mapping.Service) *DashboardHandler {
	return &DashboardHandler{
		dashboardService: dashboardService,
		mappingService:   mappingService,
	}
}

// SetupDashboardRoutes 设置仪表盘相关路由
func SetupDashboardRoutes(rg *gin.RouterGroup, dashboardService *dashboard.Service, mappingService *mapping.Service) {
	dashboardHandler := NewDashboardHandler(dashboardService, mappingService)

	rg.GET("/dashboard/summary", dashboardHandler.HandleGetSummary)
	rg.GET("/dashboard/stats", dashboardHandler.HandleGetStats)
	rg.GET("/mappings", dashboardHandler.HandleGetMappings)
}

// HandleGetSummary 后端汇总计数
func (h *DashboardHandler) HandleGetSummary(c *gin.Context) {
	summary, err := h.dashboardService.GetSummary(c.Request.Context())
	if readFailed(err, countOf(summary != nil)) {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, withStale(gin.H{"success": true, "summary": summary}, err))
}

// HandleGetStats 仪表盘统计，部分数据拉取失败时返回已有部分
func (h *DashboardHandler) HandleGetStats(c *gin.Context) {
	stats, err := h.dashboardService.GetStats(c.Request.Context())
	if readFailed(err, countOf(stats.Summary != nil || len(stats.Servers) > 0)) {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, withStale(gin.H{"success": true, "data": stats}, err))
}

// HandleGetMappings 全部端口映射
func (h *DashboardHandler) HandleGetMappings(c *gin.Context) {
	mappings, err := h.mappingService.GetMappings(c.Request.Context())
	if readFailed(err, len(mappings)) {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, withStale(gin.H{"success": true, "mappings": mappings}, err))
}

func countOf(present bool) int {
	if present {
		return 1
	}
	return 0
}
