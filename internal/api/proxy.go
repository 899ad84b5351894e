package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"PGWDash/internal/mapping"
	"PGWDash/internal/models"
	"PGWDash/internal/proxy"

	"github.com/gin-gonic/gin"
)

// ProxyHandler 代理处理器
type ProxyHandler struct {
	proxyService   *proxy.Service
	mappingService *mapping.Service
}

// NewProxyHandler 创建代理处理器
func NewProxyHandler(proxyService *proxy.Service, mappingService *mapping.Service) *ProxyHandler {
	return &ProxyHandler{proxyService: proxyService, mappingService: mappingService}
}

// SetupProxyRoutes 设置代理相关路由
func SetupProxyRoutes(rg *gin.RouterGroup, proxyService *proxy.Service, mappingService *mapping.Service) {
	h := NewProxyHandler(proxyService, mappingService)

	rg.GET("/proxies", h.HandleGetProxies)
	rg.POST("/proxies", h.HandleCreateProxy)
	// 静态路径需要在 :id 之前注册
	rg.PUT("/proxies/bulk-move", h.HandleBulkMove)
	rg.POST("/proxies/bulk-delete", h.HandleBulkDelete)
	rg.POST("/proxies/import", h.HandleImport)
	rg.POST("/proxies/import/parse", h.HandleParseImport)
	rg.GET("/proxies/:id", h.HandleGetProxy)
	rg.PUT("/proxies/:id", h.HandleUpdateProxy)
	rg.DELETE("/proxies/:id", h.HandleDeleteProxy)
	rg.PUT("/proxies/:id/group", h.HandleMoveProxy)
	rg.GET("/proxies/:id/mappings", h.HandleGetProxyMappings)
}

func maskProxies(proxies []models.Proxy, reveal bool) []models.Proxy {
	if reveal {
		return proxies
	}
	out := make([]models.Proxy, len(proxies))
	for i, p := range proxies {
		out[i] = p.Masked()
	}
	return out
}

// HandleGetProxies 代理列表，密码默认隐藏
func (h *ProxyHandler) HandleGetProxies(c *gin.Context) {
	proxies, err := h.proxyService.GetProxies(c.Request.Context())
	if readFailed(err, len(proxies)) {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, withStale(gin.H{"success": true, "proxies": maskProxies(proxies, revealed(c))}, err))
}

// HandleGetProxy 单个代理
func (h *ProxyHandler) HandleGetProxy(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	p, err := h.proxyService.GetProxyByID(c.Request.Context(), id)
	if p == nil {
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "代理不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "proxy": maskProxies([]models.Proxy{*p}, revealed(c))[0]})
}

// HandleCreateProxy 创建代理
func (h *ProxyHandler) HandleCreateProxy(c *gin.Context) {
	var req proxy.CreateProxyRequest
	if !bindJSON(c, &req) {
		return
	}
	wf, err := h.proxyService.CreateProxy(c.Request.Context(), req)
	writeWorkflow(c, wf, err)
}

// HandleUpdateProxy 更新代理
func (h *ProxyHandler) HandleUpdateProxy(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req proxy.UpdateProxyRequest
	if !bindJSON(c, &req) {
		return
	}
	wf, err := h.proxyService.UpdateProxy(c.Request.Context(), id, req)
	writeWorkflow(c, wf, err)
}

// HandleDeleteProxy 删除单个代理
func (h *ProxyHandler) HandleDeleteProxy(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	wf, err := h.proxyService.DeleteProxy(c.Request.Context(), id)
	writeWorkflow(c, wf, err)
}

type moveRequest struct {
	GroupID json.RawMessage `json:"group_id"`
}

// HandleMoveProxy 修改单个代理的分组，group_id 为 null 表示移出分组
func (h *ProxyHandler) HandleMoveProxy(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req moveRequest
	if !bindJSON(c, &req) {
		return
	}
	target, err := parseTarget(req.GroupID)
	if err != nil {
		writeError(c, err)
		return
	}
	wf, err := h.proxyService.MoveToGroup(c.Request.Context(), id, target)
	writeWorkflow(c, wf, err)
}

type bulkMoveRequest struct {
	ProxyIDs []int64         `json:"proxy_ids"`
	GroupID  json.RawMessage `json:"group_id"`
}

// HandleBulkMove 批量移动分组
func (h *ProxyHandler) HandleBulkMove(c *gin.Context) {
	var req bulkMoveRequest
	if !bindJSON(c, &req) {
		return
	}
	target, err := parseTarget(req.GroupID)
	if err != nil {
		writeError(c, err)
		return
	}
	wf, err := h.proxyService.BulkMove(c.Request.Context(), req.ProxyIDs, target)
	writeWorkflow(c, wf, err)
}

type bulkDeleteRequest struct {
	ProxyIDs  []int64 `json:"proxy_ids"`
	Confirmed bool    `json:"confirmed"`
}

// HandleBulkDelete 批量删除。未确认时返回 428 和确认提示，不发任何删除请求。
// 响应中的 selection 为删除后仍处于选中状态的ID（即失败项）。
func (h *ProxyHandler) HandleBulkDelete(c *gin.Context) {
	var req bulkDeleteRequest
	if !bindJSON(c, &req) {
		return
	}
	sel := proxy.NewSelection(req.ProxyIDs...)
	var prompt *proxy.Prompt
	confirmer := proxy.ConfirmFunc(func(p proxy.Prompt) bool {
		prompt = &p
		return req.Confirmed
	})

	wf, err := h.proxyService.BulkDelete(c.Request.Context(), sel, confirmer)
	extra := gin.H{"selection": sel.IDs()}
	if prompt != nil && !req.Confirmed {
		extra["prompt"] = prompt
	}
	writeWorkflowWith(c, wf, err, extra)
}

type importRequest struct {
	Items []proxy.ImportDescriptor `json:"items"`
	// 文本格式，每行一个代理
	Text string `json:"text"`
}

// HandleImport 批量导入。items 与 text 可同时提供，text 中无法解析的行随响应返回
func (h *ProxyHandler) HandleImport(c *gin.Context) {
	var req importRequest
	if !bindJSON(c, &req) {
		return
	}
	items := req.Items
	var parseErrors []proxy.ParseError
	if strings.TrimSpace(req.Text) != "" {
		parsed, errs := proxy.ParseImportText(req.Text)
		items = append(items, parsed...)
		parseErrors = errs
	}

	wf, err := h.proxyService.Import(c.Request.Context(), items)
	extra := gin.H{}
	if len(parseErrors) > 0 {
		extra["parse_errors"] = parseErrors
	}
	writeWorkflowWith(c, wf, err, extra)
}

// HandleParseImport 只解析文本，供导入前预览
func (h *ProxyHandler) HandleParseImport(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if !bindJSON(c, &req) {
		return
	}
	items, errs := proxy.ParseImportText(req.Text)
	if items == nil {
		items = []proxy.ImportDescriptor{}
	}
	if errs == nil {
		errs = []proxy.ParseError{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "items": items, "errors": errs})
}

// HandleGetProxyMappings 使用该代理的端口映射
func (h *ProxyHandler) HandleGetProxyMappings(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	mappings, err := h.mappingService.GetMappingsByProxy(c.Request.Context(), id)
	if readFailed(err, len(mappings)) {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, withStale(gin.H{"success": true, "mappings": mappings}, err))
}
