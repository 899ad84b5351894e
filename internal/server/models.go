package server

import (
	"errors"
	"strings"
)

var (
	// ErrSentinelServer 哨兵服务器“未分配”不能删除
	ErrSentinelServer = errors.New("未分配服务器不能删除")
	// ErrEmptyName 服务器名称为空
	ErrEmptyName = errors.New("服务器名称不能为空")
)

// CreateServerRequest 创建服务器请求
type CreateServerRequest struct {
	Name     string   `json:"name"`
	Tags     []string `json:"tags"`
	WANIface string   `json:"wan_iface"`
	LANIface string   `json:"lan_iface"`
}

// UpdateServerRequest 更新服务器请求，nil 字段不修改
type UpdateServerRequest struct {
	Name     *string   `json:"name"`
	Tags     *[]string `json:"tags"`
	WANIface *string   `json:"wan_iface"`
	LANIface *string   `json:"lan_iface"`
}

// normalizeTags 去空白、去空串、去重，保留首次出现的顺序
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}
