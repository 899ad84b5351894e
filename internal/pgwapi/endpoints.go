package pgwapi

import (
	"context"
	"fmt"
	"net/http"

	"PGWDash/internal/models"
)

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse 登录响应，expires_in 单位为秒，0 表示未声明
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// CreateServerRequest 创建服务器
type CreateServerRequest struct {
	Name     string   `json:"name"`
	Tags     []string `json:"tags"`
	WANIface string   `json:"wan_iface"`
	LANIface string   `json:"lan_iface"`
}

// UpdateServerRequest 更新服务器，nil 字段不修改
type UpdateServerRequest struct {
	Name     *string   `json:"name,omitempty"`
	Tags     *[]string `json:"tags,omitempty"`
	WANIface *string   `json:"wan_iface,omitempty"`
	LANIface *string   `json:"lan_iface,omitempty"`
	Status   *string   `json:"status,omitempty"`
}

// CreateProxyRequest 创建代理。ServerID 为空时进入“未分配”
type CreateProxyRequest struct {
	ServerID *int64              `json:"server_id,omitempty"`
	GroupID  *int64              `json:"group_id,omitempty"`
	Label    string              `json:"label"`
	Type     models.ProxyType    `json:"type"`
	Host     string              `json:"host"`
	Port     int                 `json:"port"`
	Username string              `json:"username,omitempty"`
	Password string              `json:"password,omitempty"`
	Health   models.HealthStatus `json:"health,omitempty"`
}

// UpdateProxyRequest 更新代理，nil 字段不修改
type UpdateProxyRequest struct {
	Label    *string `json:"label,omitempty"`
	Type     *string `json:"type,omitempty"`
	Host     *string `json:"host,omitempty"`
	Port     *int    `json:"port,omitempty"`
	Username *string `json:"username,omitempty"`
	Password *string `json:"password,omitempty"`
	Health   *string `json:"health,omitempty"`
}

// MoveProxyRequest 修改代理分组，GroupID 为 nil 表示移出分组
type MoveProxyRequest struct {
	GroupID *int64 `json:"group_id"`
}

// BulkMoveRequest 批量移动
type BulkMoveRequest struct {
	ProxyIDs []int64 `json:"proxy_ids"`
	GroupID  *int64  `json:"group_id"`
}

// BulkMoveResponse 批量移动响应，MovedCount 为 nil 表示后端未返回
type BulkMoveResponse struct {
	Message    string `json:"message"`
	MovedCount *int   `json:"moved_count"`
}

// GroupRequest 创建/更新分组
type GroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color,omitempty"`
}

// Login 登录，不携带令牌
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.Send(ctx, http.MethodPost, "/auth/login", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Me 当前用户
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.Send(ctx, http.MethodGet, "/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListServers 服务器列表（内嵌代理）
func (c *Client) ListServers(ctx context.Context) ([]models.Server, error) {
	var servers []models.Server
	if err := c.Send(ctx, http.MethodGet, "/servers", nil, &servers); err != nil {
		return nil, err
	}
	return servers, nil
}

func (c *Client) CreateServer(ctx context.Context, req CreateServerRequest) (*models.Server, error) {
	var server models.Server
	if err := c.Send(ctx, http.MethodPost, "/servers", req, &server); err != nil {
		return nil, err
	}
	return &server, nil
}

func (c *Client) UpdateServer(ctx context.Context, id int64, req UpdateServerRequest) (*models.Server, error) {
	var server models.Server
	if err := c.Send(ctx, http.MethodPatch, fmt.Sprintf("/servers/%d", id), req, &server); err != nil {
		return nil, err
	}
	return &server, nil
}

func (c *Client) DeleteServer(ctx context.Context, id int64) error {
	return c.Send(ctx, http.MethodDelete, fmt.Sprintf("/servers/%d", id), nil, nil)
}

// ListProxies 代理列表
func (c *Client) ListProxies(ctx context.Context) ([]models.Proxy, error) {
	var proxies []models.Proxy
	if err := c.Send(ctx, http.MethodGet, "/proxies", nil, &proxies); err != nil {
		return nil, err
	}
	return proxies, nil
}

func (c *Client) CreateProxy(ctx context.Context, req CreateProxyRequest) (*models.Proxy, error) {
	var proxy models.Proxy
	if err := c.Send(ctx, http.MethodPost, "/proxies", req, &proxy); err != nil {
		return nil, err
	}
	return &proxy, nil
}

func (c *Client) UpdateProxy(ctx context.Context, id int64, req UpdateProxyRequest) (*models.Proxy, error) {
	var proxy models.Proxy
	if err := c.Send(ctx, http.MethodPut, fmt.Sprintf("/proxies/%d", id), req, &proxy); err != nil {
		return nil, err
	}
	return &proxy, nil
}

// SetProxyGroup 修改单个代理的分组
func (c *Client) SetProxyGroup(ctx context.Context, id int64, groupID *int64) (*models.Proxy, error) {
	var proxy models.Proxy
	path := fmt.Sprintf("/proxies/%d/group", id)
	if err := c.Send(ctx, http.MethodPut, path, MoveProxyRequest{GroupID: groupID}, &proxy); err != nil {
		return nil, err
	}
	return &proxy, nil
}

// BulkMoveProxies 一次请求批量移动
func (c *Client) BulkMoveProxies(ctx context.Context, req BulkMoveRequest) (*BulkMoveResponse, error) {
	var resp BulkMoveResponse
	if err := c.Send(ctx, http.MethodPut, "/proxies/bulk-move", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) DeleteProxy(ctx context.Context, id int64) error {
	return c.Send(ctx, http.MethodDelete, fmt.Sprintf("/proxies/%d", id), nil, nil)
}

// ListGroups 分组列表（内嵌代理，用于成员计数）
func (c *Client) ListGroups(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	if err := c.Send(ctx, http.MethodGet, "/groups", nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (c *Client) CreateGroup(ctx context.Context, req GroupRequest) (*models.Group, error) {
	var group models.Group
	if err := c.Send(ctx, http.MethodPost, "/groups", req, &group); err != nil {
		return nil, err
	}
	return &group, nil
}

func (c *Client) UpdateGroup(ctx context.Context, id int64, req GroupRequest) (*models.Group, error) {
	var group models.Group
	if err := c.Send(ctx, http.MethodPut, fmt.Sprintf("/groups/%d", id), req, &group); err != nil {
		return nil, err
	}
	return &group, nil
}

func (c *Client) DeleteGroup(ctx context.Context, id int64) error {
	return c.Send(ctx, http.MethodDelete, fmt.Sprintf("/groups/%d", id), nil, nil)
}

// ListMappings 映射列表
func (c *Client) ListMappings(ctx context.Context) ([]models.Mapping, error) {
	var mappings []models.Mapping
	if err := c.Send(ctx, http.MethodGet, "/mappings", nil, &mappings); err != nil {
		return nil, err
	}
	return mappings, nil
}

// Summary 汇总统计
func (c *Client) Summary(ctx context.Context) (*models.Summary, error) {
	var summary models.Summary
	if err := c.Send(ctx, http.MethodGet, "/admin/summary", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}
