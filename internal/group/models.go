package group

import (
	"errors"
	"time"

	"PGWDash/internal/models"
)

var (
	// ErrDefaultGroup 默认分组不可删除
	ErrDefaultGroup = errors.New("默认分组不能删除")
	// ErrEmptyName 分组名为空
	ErrEmptyName = errors.New("分组名不能为空")
)

// Group 分组视图，附带成员数量
type Group struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Color       string    `json:"color,omitempty"`
	ProxyCount  int       `json:"proxy_count"`
	IsDefault   bool      `json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func fromModel(g models.Group) Group {
	return Group{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		Color:       g.Color,
		ProxyCount:  g.MemberCount(),
		IsDefault:   g.IsDefault(),
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

// CreateGroupRequest 创建分组请求
type CreateGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

// UpdateGroupRequest 更新分组请求
type UpdateGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
}
