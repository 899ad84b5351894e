package api

import (
	"net/http"

	"PGWDash/internal/group"

	"github.com/gin-gonic/gin"
)

// GroupHandler 分组处理器
type GroupHandler struct {
	groupService *group.Service
}

// NewGroupHandler 创建分组处理器
func NewGroupHandler(groupService *group.Service) *GroupHandler {
	return &GroupHandler{groupService: groupService}
}

// SetupGroupRoutes 设置分组相关路由
func SetupGroupRoutes(rg *gin.RouterGroup, groupService *group.Service) {
	groupHandler := NewGroupHandler(groupService)

	rg.GET("/groups", groupHandler.GetGroups)
	rg.POST("/groups", groupHandler.CreateGroup)
	rg.PUT("/groups/:id", groupHandler.UpdateGroup)
	rg.DELETE("/groups/:id", groupHandler.DeleteGroup)
}

// GetGroups 获取所有分组
func (h *GroupHandler) GetGroups(c *gin.Context) {
	groups, err := h.groupService.GetGroups(c.Request.Context())
	if readFailed(err, len(groups)) {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, withStale(gin.H{"success": true, "groups": groups}, err))
}

// CreateGroup 创建分组
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	var req group.CreateGroupRequest
	if !bindJSON(c, &req) {
		return
	}
	wf, err := h.groupService.CreateGroup(c.Request.Context(), req)
	writeWorkflow(c, wf, err)
}

// UpdateGroup 更新分组
func (h *GroupHandler) UpdateGroup(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req group.UpdateGroupRequest
	if !bindJSON(c, &req) {
		return
	}
	wf, err := h.groupService.UpdateGroup(c.Request.Context(), id, req)
	writeWorkflow(c, wf, err)
}

// DeleteGroup 删除分组
func (h *GroupHandler) DeleteGroup(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	wf, err := h.groupService.DeleteGroup(c.Request.Context(), id)
	writeWorkflow(c, wf, err)
}
