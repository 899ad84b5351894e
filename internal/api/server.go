package api

import (
	"net/http"

	"PGWDash/internal/mapping"
	"PGWDash/internal/models"
	"PGWDash/internal/server"

	"github.com/gin-gonic/gin"
)

// ServerHandler 服务器处理器
type ServerHandler struct {
	serverService  *server.Service
	mappingService *mapping.Service
}

// NewServerHandler 创建服务器处理器
func NewServerHandler(serverService *server.Service, mappingService *mapping.Service) *ServerHandler {
	return &ServerHandler{serverService: serverService, mappingService: mappingService}
}

// SetupServerRoutes 设置服务器相关路由
func SetupServerRoutes(rg *gin.RouterGroup, serverService *server.Service, mappingService *mapping.Service) {
	h := NewServerHandler(serverService, mappingService)

	rg.GET("/servers", h.HandleGetServers)
	rg.POST("/servers", h.HandleCreateServer)
	rg.GET("/servers/:id", h.HandleGetServer)
	rg.PATCH("/servers/:id", h.HandleUpdateServer)
	rg.DELETE("/servers/:id", h.HandleDeleteServer)
	rg.GET("/servers/:id/mappings", h.HandleGetServerMappings)
}

func maskServers(servers []models.Server, reveal bool) []models.Server {
	if reveal {
		return servers
	}
	out := make([]models.Server, len(servers))
	for i, s := range servers {
		out[i] = s.Masked()
	}
	return out
}

// HandleGetServers 服务器列表。拉取失败但有旧数据时仍返回旧数据
func (h *ServerHandler) HandleGetServers(c *gin.Context) {
	servers, err := h.serverService.GetServers(c.Request.Context())
	if readFailed(err, len(servers)) {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, withStale(gin.H{"success": true, "servers": maskServers(servers, revealed(c))}, err))
}

// HandleGetServer 单个服务器
func (h *ServerHandler) HandleGetServer(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	s, err := h.serverService.GetServerByID(c.Request.Context(), id)
	if s == nil {
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "服务器不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "server": maskServers([]models.Server{*s}, revealed(c))[0]})
}

// HandleCreateServer 创建服务器
func (h *ServerHandler) HandleCreateServer(c *gin.Context) {
	var req server.CreateServerRequest
	if !bindJSON(c, &req) {
		return
	}
	wf, err := h.serverService.CreateServer(c.Request.Context(), req)
	writeWorkflow(c, wf, err)
}

// HandleUpdateServer 更新服务器
func (h *ServerHandler) HandleUpdateServer(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req server.UpdateServerRequest
	if !bindJSON(c, &req) {
		return
	}
	wf, err := h.serverService.UpdateServer(c.Request.Context(), id, req)
	writeWorkflow(c, wf, err)
}

// HandleDeleteServer 删除服务器
func (h *ServerHandler) HandleDeleteServer(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	wf, err := h.serverService.DeleteServer(c.Request.Context(), id)
	writeWorkflow(c, wf, err)
}

// HandleGetServerMappings 服务器的端口映射
func (h *ServerHandler) HandleGetServerMappings(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	mappings, err := h.mappingService.GetMappingsByServer(c.Request.Context(), id)
	if readFailed(err, len(mappings)) {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, withStale(gin.H{"success": true, "mappings": mappings}, err))
}
