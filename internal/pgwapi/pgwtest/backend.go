// Package pgwtest 提供内存版 pgw 后端，用于测试 API 客户端及上层服务
package pgwtest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"PGWDash/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	DefaultEmail    = "admin@x.com"
	DefaultPassword = "secret"
	DefaultToken    = "test-access-token"
)

type failure struct {
	status int
	msg    string
}

// Backend 内存后端
type Backend struct {
	srv *httptest.Server

	mu       sync.Mutex
	servers  map[int64]*models.Server
	proxies  map[int64]*models.Proxy
	groups   map[int64]*models.Group
	mappings []models.Mapping
	nextID   int64

	token     string
	expiresIn int64
	revoked   bool

	hits        map[string]int
	lastAuth    string
	failures    map[string]failure
	omitMoved   bool
	tagsAsBlob  bool
	proxyDelays time.Duration
}

// New 启动后端，测试结束时自动关闭。自带 Default 分组（ID 1）
func New(t testing.TB) *Backend {
	t.Helper()
	gin.SetMode(gin.TestMode)

	b := &Backend{
		servers:   make(map[int64]*models.Server),
		proxies:   make(map[int64]*models.Proxy),
		groups:    make(map[int64]*models.Group),
		token:     DefaultToken,
		expiresIn: 3600,
		hits:      make(map[string]int),
		failures:  make(map[string]failure),
		nextID:    1,
	}
	b.AddGroup(models.DefaultGroupName)

	r := gin.New()
	r.Use(b.record)
	v1 := r.Group("/api/v1")
	v1.POST("/auth/login", b.login)

	authed := v1.Group("")
	authed.Use(b.requireToken)
	authed.GET("/auth/me", b.me)
	authed.GET("/servers", b.listServers)
	authed.POST("/servers", b.createServer)
	authed.PATCH("/servers/:id", b.updateServer)
	authed.DELETE("/servers/:id", b.deleteServer)
	authed.GET("/proxies", b.listProxies)
	authed.POST("/proxies", b.createProxy)
	authed.PUT("/proxies/bulk-move", b.bulkMove)
	authed.PUT("/proxies/:id", b.updateProxy)
	authed.PUT("/proxies/:id/group", b.moveProxy)
	authed.DELETE("/proxies/:id", b.deleteProxy)
	authed.GET("/groups", b.listGroups)
	authed.POST("/groups", b.createGroup)
	authed.PUT("/groups/:id", b.updateGroup)
	authed.DELETE("/groups/:id", b.deleteGroup)
	authed.GET("/mappings", b.listMappings)
	authed.GET("/admin/summary", b.summary)

	b.srv = httptest.NewServer(r)
	t.Cleanup(b.srv.Close)
	return b
}

// URL API 基础地址
func (b *Backend) URL() string {
	return b.srv.URL + "/api/v1"
}

// Close 提前关闭，用于模拟网络不可达
func (b *Backend) Close() {
	b.srv.Close()
}

// Hits 某个路由被调用的次数，route 使用 gin 路由写法，例如 "/proxies/:id"
func (b *Backend) Hits(method, route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[method+" "+route]
}

// TotalHits 所有请求数
func (b *Backend) TotalHits() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, v := range b.hits {
		n += v
	}
	return n
}

// LastAuthorization 最近一次请求的 Authorization 头
func (b *Backend) LastAuthorization() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastAuth
}

// Fail 让路由的所有调用失败
func (b *Backend) Fail(method, route string, status int, msg string) {
	b.mu.Lock()
	b.failures[method+" "+route] = failure{status: status, msg: msg}
	b.mu.Unlock()
}

// FailID 只让带指定 :id 的调用失败
func (b *Backend) FailID(method, route string, id int64, status int, msg string) {
	b.mu.Lock()
	b.failures[fmt.Sprintf("%s %s#%d", method, route, id)] = failure{status: status, msg: msg}
	b.mu.Unlock()
}

// Revoke 使当前令牌失效，之后的受保护请求返回 401
func (b *Backend) Revoke() {
	b.mu.Lock()
	b.revoked = true
	b.mu.Unlock()
}

// SetExpiresIn 登录响应中的 expires_in，0 表示不返回
func (b *Backend) SetExpiresIn(seconds int64) {
	b.mu.Lock()
	b.expiresIn = seconds
	b.mu.Unlock()
}

// SetToken 登录返回的令牌
func (b *Backend) SetToken(token string) {
	b.mu.Lock()
	b.token = token
	b.mu.Unlock()
}

// OmitMovedCount 批量移动响应不返回 moved_count
func (b *Backend) OmitMovedCount() {
	b.mu.Lock()
	b.omitMoved = true
	b.mu.Unlock()
}

// TagsAsJSONString 服务器标签以 JSON 字符串形式返回
func (b *Backend) TagsAsJSONString() {
	b.mu.Lock()
	b.tagsAsBlob = true
	b.mu.Unlock()
}

// SlowProxyCreate 创建代理时的人为延迟
func (b *Backend) SlowProxyCreate(d time.Duration) {
	b.mu.Lock()
	b.proxyDelays = d
	b.mu.Unlock()
}

func (b *Backend) allocID() int64 {
	id := b.nextID
	b.nextID++
	return id
}

// AddServer 直接写入服务器
func (b *Backend) AddServer(name string, tags ...string) models.Server {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	s := &models.Server{ID: b.allocID(), Name: name, Tags: models.Tags(tags), Status: models.ServerStatusOffline, CreatedAt: now, UpdatedAt: now}
	if s.Tags == nil {
		s.Tags = models.Tags{}
	}
	b.servers[s.ID] = s
	return *s
}

// AddProxy 直接写入代理
func (b *Backend) AddProxy(p models.Proxy) models.Proxy {
	b.mu.Lock()
	defer b.mu.Unlock()
	p.ID = b.allocID()
	if p.Type == "" {
		p.Type = models.ProxyTypeSOCKS5
	}
	if p.Health == "" {
		p.Health = models.HealthUnknown
	}
	p.CreatedAt, p.UpdatedAt = time.Now(), time.Now()
	cp := p
	b.proxies[p.ID] = &cp
	return p
}

// AddGroup 直接写入分组
func (b *Backend) AddGroup(name string) models.Group {
	b.mu.Lock()
	defer b.mu.Unlock()
	g := &models.Group{ID: b.allocID(), Name: name, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	b.groups[g.ID] = g
	return *g
}

// AddMapping 直接写入映射
func (b *Backend) AddMapping(m models.Mapping) models.Mapping {
	b.mu.Lock()
	defer b.mu.Unlock()
	m.ID = b.allocID()
	b.mappings = append(b.mappings, m)
	return m
}

// Proxy 读取代理当前状态
func (b *Backend) Proxy(id int64) (models.Proxy, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.proxies[id]
	if !ok {
		return models.Proxy{}, false
	}
	return *p, true
}

// ProxyCount 代理总数
func (b *Backend) ProxyCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.proxies)
}

func (b *Backend) record(c *gin.Context) {
	route := strings.TrimPrefix(c.FullPath(), "/api/v1")
	key := c.Request.Method + " " + route

	b.mu.Lock()
	b.hits[key]++
	b.lastAuth = c.GetHeader("Authorization")
	f, ok := b.failures[key]
	if !ok {
		if id := c.Param("id"); id != "" {
			f, ok = b.failures[key+"#"+id]
		}
	}
	b.mu.Unlock()

	if ok {
		if f.msg == "" {
			c.AbortWithStatus(f.status)
		} else {
			c.AbortWithStatusJSON(f.status, gin.H{"error": f.msg})
		}
		return
	}
	c.Next()
}

func (b *Backend) requireToken(c *gin.Context) {
	b.mu.Lock()
	valid := !b.revoked && c.GetHeader("Authorization") == "Bearer "+b.token
	b.mu.Unlock()
	if !valid {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}
	c.Next()
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return 0, false
	}
	return id, true
}

func (b *Backend) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.Email != DefaultEmail || req.Password != DefaultPassword {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	b.mu.Lock()
	b.revoked = false
	resp := gin.H{"access_token": b.token}
	if b.expiresIn > 0 {
		resp["expires_in"] = b.expiresIn
	}
	b.mu.Unlock()
	c.JSON(http.StatusOK, resp)
}

func (b *Backend) me(c *gin.Context) {
	c.JSON(http.StatusOK, models.User{ID: 1, Email: DefaultEmail, Role: "admin"})
}

func (b *Backend) proxiesOfLocked(serverID *int64) []models.Proxy {
	var out []models.Proxy
	for _, p := range b.sortedProxiesLocked() {
		if models.SameGroup(p.ServerID, serverID) {
			out = append(out, p)
		}
	}
	return out
}

func (b *Backend) sortedProxiesLocked() []models.Proxy {
	out := make([]models.Proxy, 0, len(b.proxies))
	for _, p := range b.proxies {
		cp := *p
		if cp.GroupID != nil {
			if g, ok := b.groups[*cp.GroupID]; ok {
				gc := *g
				cp.Group = &gc
			}
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (b *Backend) listServers(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := []interface{}{}
	sentinel := models.Server{ID: models.SentinelServerID, Name: models.SentinelServerName, Tags: models.Tags{}, Status: models.ServerStatusOffline}
	sentinel.Proxies = b.proxiesOfLocked(nil)
	out = append(out, b.renderServer(sentinel))

	ids := make([]int64, 0, len(b.servers))
	for id := range b.servers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		s := *b.servers[id]
		sid := id
		s.Proxies = b.proxiesOfLocked(&sid)
		out = append(out, b.renderServer(s))
	}
	c.JSON(http.StatusOK, out)
}

// renderServer 可选地把标签编码成字符串，模拟后端字段漂移
func (b *Backend) renderServer(s models.Server) interface{} {
	if !b.tagsAsBlob {
		return s
	}
	tags, _ := s.Tags.MarshalJSON()
	return gin.H{
		"id": s.ID, "name": s.Name, "tags": string(tags), "wan_iface": s.WANIface, "lan_iface": s.LANIface,
		"status": s.Status, "last_seen_at": nil, "config_version": s.ConfigVersion,
		"created_at": s.CreatedAt, "updated_at": s.UpdatedAt, "proxies": s.Proxies,
	}
}

func (b *Backend) createServer(c *gin.Context) {
	var req struct {
		Name     string   `json:"name"`
		Tags     []string `json:"tags"`
		WANIface string   `json:"wan_iface"`
		LANIface string   `json:"lan_iface"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	s := b.AddServer(req.Name, req.Tags...)
	b.mu.Lock()
	b.servers[s.ID].WANIface = req.WANIface
	b.servers[s.ID].LANIface = req.LANIface
	s = *b.servers[s.ID]
	b.mu.Unlock()
	c.JSON(http.StatusCreated, s)
}

func (b *Backend) updateServer(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req struct {
		Name     *string   `json:"name"`
		Tags     *[]string `json:"tags"`
		WANIface *string   `json:"wan_iface"`
		LANIface *string   `json:"lan_iface"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s, exists := b.servers[id]
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Server not found"})
		return
	}
	if req.Name != nil {
		s.Name = *req.Name
	}
	if req.Tags != nil {
		s.Tags = models.Tags(*req.Tags)
	}
	if req.WANIface != nil {
		s.WANIface = *req.WANIface
	}
	if req.LANIface != nil {
		s.LANIface = *req.LANIface
	}
	s.ConfigVersion++
	s.UpdatedAt = time.Now()
	c.JSON(http.StatusOK, *s)
}

func (b *Backend) deleteServer(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.servers[id]; !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Server not found"})
		return
	}
	delete(b.servers, id)
	for _, p := range b.proxies {
		if p.ServerID != nil && *p.ServerID == id {
			p.ServerID = nil
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "Server deleted successfully"})
}

func (b *Backend) listProxies(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c.JSON(http.StatusOK, b.sortedProxiesLocked())
}

func (b *Backend) createProxy(c *gin.Context) {
	var req struct {
		ServerID *int64 `json:"server_id"`
		GroupID  *int64 `json:"group_id"`
		Label    string `json:"label"`
		Type     string `json:"type"`
		Host     string `json:"host"`
		Port     int    `json:"port"`
		Username string `json:"username"`
		Password string `json:"password"`
		Health   string `json:"health"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.Port < models.MinPort || req.Port > models.MaxPort {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid port"})
		return
	}
	b.mu.Lock()
	delay := b.proxyDelays
	b.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	p := b.AddProxy(models.Proxy{
		ServerID: req.ServerID, GroupID: req.GroupID, Label: req.Label, Type: models.ProxyType(req.Type),
		Host: req.Host, Port: req.Port, Username: req.Username, Password: req.Password, Health: models.HealthStatus(req.Health),
	})
	c.JSON(http.StatusCreated, p)
}

func (b *Backend) updateProxy(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req struct {
		Label    *string `json:"label"`
		Type     *string `json:"type"`
		Host     *string `json:"host"`
		Port     *int    `json:"port"`
		Username *string `json:"username"`
		Password *string `json:"password"`
		Health   *string `json:"health"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	p, exists := b.proxies[id]
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Proxy not found"})
		return
	}
	if req.Label != nil {
		p.Label = *req.Label
	}
	if req.Type != nil {
		p.Type = models.ProxyType(*req.Type)
	}
	if req.Host != nil {
		p.Host = *req.Host
	}
	if req.Port != nil {
		p.Port = *req.Port
	}
	if req.Username != nil {
		p.Username = *req.Username
	}
	if req.Password != nil {
		p.Password = *req.Password
	}
	if req.Health != nil {
		p.Health = models.HealthStatus(*req.Health)
	}
	p.UpdatedAt = time.Now()
	c.JSON(http.StatusOK, *p)
}

func (b *Backend) moveProxy(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req struct {
		GroupID *int64 `json:"group_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	p, exists := b.proxies[id]
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Proxy not found"})
		return
	}
	if req.GroupID != nil {
		if _, found := b.groups[*req.GroupID]; !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
			return
		}
	}
	p.GroupID = req.GroupID
	c.JSON(http.StatusOK, *p)
}

func (b *Backend) bulkMove(c *gin.Context) {
	var req struct {
		ProxyIDs []int64 `json:"proxy_ids"`
		GroupID  *int64  `json:"group_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.ProxyIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if req.GroupID != nil {
		if _, found := b.groups[*req.GroupID]; !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
			return
		}
	}
	moved := 0
	for _, id := range req.ProxyIDs {
		if p, exists := b.proxies[id]; exists {
			p.GroupID = req.GroupID
			moved++
		}
	}
	resp := gin.H{"message": "Proxies moved successfully"}
	if !b.omitMoved {
		resp["moved_count"] = moved
	}
	c.JSON(http.StatusOK, resp)
}

func (b *Backend) deleteProxy(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.proxies[id]; !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Proxy not found"})
		return
	}
	delete(b.proxies, id)
	c.JSON(http.StatusOK, gin.H{"message": "Proxy deleted successfully"})
}

func (b *Backend) listGroups(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Group, 0, len(b.groups))
	for _, g := range b.groups {
		cp := *g
		for _, p := range b.proxies {
			if p.GroupID != nil && *p.GroupID == g.ID {
				cp.Proxies = append(cp.Proxies, *p)
			}
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	c.JSON(http.StatusOK, out)
}

func (b *Backend) createGroup(c *gin.Context) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Color       string `json:"color"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	b.mu.Lock()
	for _, g := range b.groups {
		if strings.EqualFold(g.Name, req.Name) {
			b.mu.Unlock()
			c.JSON(http.StatusConflict, gin.H{"error": "Group name already exists"})
			return
		}
	}
	b.mu.Unlock()
	g := b.AddGroup(req.Name)
	b.mu.Lock()
	b.groups[g.ID].Description = req.Description
	b.groups[g.ID].Color = req.Color
	g = *b.groups[g.ID]
	b.mu.Unlock()
	c.JSON(http.StatusCreated, g)
}

func (b *Backend) updateGroup(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Color       string `json:"color"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	g, exists := b.groups[id]
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}
	g.Name, g.Description, g.Color = req.Name, req.Description, req.Color
	g.UpdatedAt = time.Now()
	c.JSON(http.StatusOK, *g)
}

func (b *Backend) deleteGroup(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.groups[id]; !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}
	delete(b.groups, id)
	for _, p := range b.proxies {
		if p.GroupID != nil && *p.GroupID == id {
			p.GroupID = nil
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "Group deleted successfully"})
}

func (b *Backend) listMappings(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Mapping, len(b.mappings))
	copy(out, b.mappings)
	c.JSON(http.StatusOK, out)
}

func (b *Backend) summary(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	active := 0
	for _, s := range b.servers {
		if s.Status == models.ServerStatusOnline {
			active++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"servers":        len(b.servers),
		"active_servers": active,
		"proxies":        len(b.proxies),
		"mappings":       len(b.mappings),
		"timestamp":      time.Now(),
	})
}
