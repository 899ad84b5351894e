package proxy

import (
	"errors"
	"fmt"
	"strings"

	"PGWDash/internal/models"
)

var (
	// ErrEmptySelection 未选择任何代理
	ErrEmptySelection = errors.New("请先选择代理")
	// ErrNoTarget 批量移动未选择目标分组（“无分组”也是一种明确的选择）
	ErrNoTarget = errors.New("请选择目标分组")
	// ErrNotConfirmed 批量删除未经确认
	ErrNotConfirmed = errors.New("操作未确认")
	// ErrPartialFailure 批量操作部分失败，逐项结果见 BulkResult / ImportResult
	ErrPartialFailure = errors.New("部分操作失败")
	// ErrNothingToImport 导入列表为空
	ErrNothingToImport = errors.New("没有可导入的代理")
)

// CreateProxyRequest 创建代理请求
type CreateProxyRequest struct {
	ServerID *int64              `json:"server_id"`
	GroupID  *int64              `json:"group_id"`
	Label    string              `json:"label"`
	Type     models.ProxyType    `json:"type"`
	Host     string              `json:"host"`
	Port     int                 `json:"port"`
	Username string              `json:"username"`
	Password string              `json:"password"`
	Health   models.HealthStatus `json:"health"`
}

// UpdateProxyRequest 更新代理请求，nil 字段不修改
type UpdateProxyRequest struct {
	Label    *string              `json:"label"`
	Type     *models.ProxyType    `json:"type"`
	Host     *string              `json:"host"`
	Port     *int                 `json:"port"`
	Username *string              `json:"username"`
	Password *string              `json:"password"`
	Health   *models.HealthStatus `json:"health"`
}

// DefaultLabel 未指定标签时使用 host:port
func DefaultLabel(host string, port int) string {
	p := models.Proxy{Host: host, Port: port}
	return p.Address()
}

// applyDefaults 补全可选字段：类型 socks5，标签 host:port，健康状态 unknown
func (r *CreateProxyRequest) applyDefaults() {
	r.Host = strings.TrimSpace(r.Host)
	r.Label = strings.TrimSpace(r.Label)
	if r.Type == "" {
		r.Type = models.ProxyTypeSOCKS5
	}
	if r.Label == "" {
		r.Label = DefaultLabel(r.Host, r.Port)
	}
	if r.Health == "" {
		r.Health = models.HealthUnknown
	}
}

// validate 客户端校验，失败时不发请求
func (r *CreateProxyRequest) validate() error {
	if r.Host == "" {
		return errors.New("主机地址不能为空")
	}
	if err := models.ValidatePort(r.Port); err != nil {
		return err
	}
	if !r.Type.Valid() {
		return fmt.Errorf("不支持的代理类型: %s", r.Type)
	}
	if !r.Health.Valid() {
		return fmt.Errorf("无效的健康状态: %s", r.Health)
	}
	return nil
}

func (r *UpdateProxyRequest) validate() error {
	if r.Host != nil && strings.TrimSpace(*r.Host) == "" {
		return errors.New("主机地址不能为空")
	}
	if r.Port != nil {
		if err := models.ValidatePort(*r.Port); err != nil {
			return err
		}
	}
	if r.Type != nil && !r.Type.Valid() {
		return fmt.Errorf("不支持的代理类型: %s", *r.Type)
	}
	if r.Health != nil && !r.Health.Valid() {
		return fmt.Errorf("无效的健康状态: %s", *r.Health)
	}
	return nil
}

// ItemFailure 单项失败原因
type ItemFailure struct {
	ID     int64  `json:"id"`
	Reason string `json:"reason"`
}

// BulkResult 批量删除的逐项结果
type BulkResult struct {
	Requested int           `json:"requested"`
	Succeeded []int64       `json:"succeeded"`
	Failed    []ItemFailure `json:"failed"`
}

// SucceededCount 成功数量
func (r *BulkResult) SucceededCount() int { return len(r.Succeeded) }

// FailedCount 失败数量
func (r *BulkResult) FailedCount() int { return len(r.Failed) }

// MoveResult 单个代理移动结果，Skipped 表示目标与当前分组相同，未发请求
type MoveResult struct {
	ProxyID int64         `json:"proxy_id"`
	GroupID *int64        `json:"group_id"`
	Skipped bool          `json:"skipped"`
	Proxy   *models.Proxy `json:"proxy,omitempty"`
}

func (r *MoveResult) Redacted() interface{} {
	if r == nil || r.Proxy == nil {
		return r
	}
	cp := *r
	masked := r.Proxy.Masked()
	cp.Proxy = &masked
	return &cp
}

// BulkMoveResult 批量移动结果，Moved 优先取后端返回的数量
type BulkMoveResult struct {
	Requested int    `json:"requested"`
	Moved     int    `json:"moved"`
	GroupID   *int64 `json:"group_id"`
	Message   string `json:"message,omitempty"`
}

// Target 批量移动的目标。零值表示尚未选择
type Target struct {
	chosen  bool
	groupID *int64
}

// ToGroup 移动到指定分组
func ToGroup(id int64) Target {
	return Target{chosen: true, groupID: models.Int64Ptr(id)}
}

// NoGroup 移出分组
func NoGroup() Target {
	return Target{chosen: true}
}

// Chosen 是否已选择目标
func (t Target) Chosen() bool { return t.chosen }

// GroupID 目标分组，nil 表示无分组
func (t Target) GroupID() *int64 { return t.groupID }
