package models

// ServerStatus 服务器在线状态
type ServerStatus string

const (
	ServerStatusOnline  ServerStatus = "online"
	ServerStatusOffline ServerStatus = "offline"
)

// ProxyType 上游代理协议
type ProxyType string

const (
	ProxyTypeHTTP   ProxyType = "http"
	ProxyTypeHTTPS  ProxyType = "https"
	ProxyTypeSOCKS4 ProxyType = "socks4"
	ProxyTypeSOCKS5 ProxyType = "socks5"
)

// ProxyTypes 所有合法的代理协议
var ProxyTypes = []ProxyType{ProxyTypeHTTP, ProxyTypeHTTPS, ProxyTypeSOCKS4, ProxyTypeSOCKS5}

// Valid 判断协议是否在允许范围内
func (t ProxyType) Valid() bool {
	switch t {
	case ProxyTypeHTTP, ProxyTypeHTTPS, ProxyTypeSOCKS4, ProxyTypeSOCKS5:
		return true
	}
	return false
}

// HealthStatus 代理健康状态
type HealthStatus string

const (
	HealthOK      HealthStatus = "ok"
	HealthFail    HealthStatus = "fail"
	HealthUnknown HealthStatus = "unknown"
)

// Valid 判断健康状态是否合法
func (h HealthStatus) Valid() bool {
	switch h {
	case HealthOK, HealthFail, HealthUnknown:
		return true
	}
	return false
}

const (
	// SentinelServerID 未分配代理所在的哨兵服务器，不可删除
	SentinelServerID int64 = 0
	// SentinelServerName 哨兵服务器显示名称
	SentinelServerName = "Unassigned"
	// DefaultGroupName 默认分组，不可删除
	DefaultGroupName = "Default"

	// MinPort / MaxPort 端口取值范围
	MinPort = 1
	MaxPort = 65535
)
