package models

import (
	"fmt"
	"strings"
	"time"
)

// User 当前登录用户
type User struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Server 代理服务器节点
type Server struct {
	ID            int64        `json:"id"`
	Name          string       `json:"name"`
	Tags          Tags         `json:"tags"`
	WANIface      string       `json:"wan_iface"`
	LANIface      string       `json:"lan_iface"`
	LastSeenAt    NullTime     `json:"last_seen_at"`
	Status        ServerStatus `json:"status"`
	ConfigVersion int          `json:"config_version"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`

	// 关联，列表接口内嵌返回
	Proxies  []Proxy   `json:"proxies,omitempty"`
	Mappings []Mapping `json:"mappings,omitempty"`
}

// IsSentinel 是否为“未分配”哨兵服务器
func (s *Server) IsSentinel() bool {
	return s.ID == SentinelServerID
}

// OnlineWindow 最近心跳在该时间窗口内视为在线
const OnlineWindow = 5 * time.Minute

// Online 状态为 online，或最近一次心跳在 OnlineWindow 内
func (s *Server) Online(now time.Time) bool {
	if s.Status == ServerStatusOnline {
		return true
	}
	return s.LastSeenAt.Valid && s.LastSeenAt.Time.After(now.Add(-OnlineWindow))
}

// Proxy 上游代理
type Proxy struct {
	ID        int64        `json:"id"`
	ServerID  *int64       `json:"server_id"`
	GroupID   *int64       `json:"group_id"`
	Label     string       `json:"label"`
	Type      ProxyType    `json:"type"`
	Host      string       `json:"host"`
	Port      int          `json:"port"`
	Username  string       `json:"username"`
	Password  string       `json:"password"`
	Health    HealthStatus `json:"health"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`

	Group *Group `json:"group,omitempty"`
}

// PasswordMask 密码默认显示的掩码
const PasswordMask = "••••••••"

// Masked 返回隐藏密码后的副本
func (p Proxy) Masked() Proxy {
	if p.Password != "" {
		p.Password = PasswordMask
	}
	return p
}

// Redactor 带密码等敏感字段的值，对外输出前先取隐藏后的副本
type Redactor interface {
	Redacted() interface{}
}

// Redact 实现了 Redactor 的值返回隐藏后的副本，其余原样返回
func Redact(v interface{}) interface{} {
	if r, ok := v.(Redactor); ok {
		return r.Redacted()
	}
	return v
}

func (p *Proxy) Redacted() interface{} {
	if p == nil {
		return p
	}
	masked := p.Masked()
	return &masked
}

// Masked 返回内嵌代理密码已隐藏的副本
func (s Server) Masked() Server {
	if len(s.Proxies) == 0 {
		return s
	}
	proxies := make([]Proxy, len(s.Proxies))
	for i, p := range s.Proxies {
		proxies[i] = p.Masked()
	}
	s.Proxies = proxies
	return s
}

func (s *Server) Redacted() interface{} {
	if s == nil {
		return s
	}
	masked := s.Masked()
	return &masked
}

// Unassigned 是否未分配到任何真实服务器
func (p *Proxy) Unassigned() bool {
	return p.ServerID == nil || *p.ServerID == SentinelServerID
}

// CurrentGroupID 当前分组ID，未分组返回 nil
func (p *Proxy) CurrentGroupID() *int64 {
	if p.GroupID == nil || *p.GroupID == 0 {
		return nil
	}
	id := *p.GroupID
	return &id
}

// Address 返回 host:port
func (p *Proxy) Address() string {
	if strings.Contains(p.Host, ":") && !strings.HasPrefix(p.Host, "[") {
		return fmt.Sprintf("[%s]:%d", p.Host, p.Port)
	}
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// Group 代理分组
type Group struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Color       string    `json:"color,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Proxies []Proxy `json:"proxies,omitempty"`
}

// IsDefault 是否为默认分组
func (g *Group) IsDefault() bool {
	return strings.EqualFold(g.Name, DefaultGroupName)
}

// MemberCount 分组内代理数量
func (g *Group) MemberCount() int {
	return len(g.Proxies)
}

// Mapping 客户端到上游代理的映射规则
type Mapping struct {
	ID              int64     `json:"id"`
	ServerID        int64     `json:"server_id"`
	ClientCIDR      string    `json:"client_cidr"`
	DstPorts        PortSet   `json:"dst_ports"`
	UpstreamProxyID int64     `json:"upstream_proxy_id"`
	Enabled         bool      `json:"enabled"`
	Notes           string    `json:"notes"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Summary 汇总统计，由服务端计算
type Summary struct {
	Servers       int64     `json:"servers"`
	ActiveServers int64     `json:"active_servers"`
	Proxies       int64     `json:"proxies"`
	Mappings      int64     `json:"mappings"`
	Timestamp     time.Time `json:"timestamp"`
}

// ValidatePort 校验端口范围 [1, 65535]
func ValidatePort(port int) error {
	if port < MinPort || port > MaxPort {
		return fmt.Errorf("端口必须在 %d-%d 之间: %d", MinPort, MaxPort, port)
	}
	return nil
}

// Int64Ptr 返回指针
func Int64Ptr(v int64) *int64 {
	return &v
}

// SameGroup 比较两个可空分组ID，0 与 nil 视为“无分组”
func SameGroup(a, b *int64) bool {
	av, bv := int64(0), int64(0)
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	return av == bv
}
