package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Tags 服务器标签。后端可能返回 JSON 数组，也可能返回 JSON 编码后的字符串，
// 反序列化时统一成字符串切片，下游不再重复解析。
type Tags []string

// UnmarshalJSON 兼容 ["a","b"]、"[\"a\",\"b\"]"、"a,b"、"" 与 null
func (t *Tags) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = Tags{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		tags, err := ParseTags(s)
		if err != nil {
			return err
		}
		*t = tags
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("无法解析标签: %w", err)
	}
	*t = cleanTags(list)
	return nil
}

// MarshalJSON 始终输出数组
func (t Tags) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(t))
}

// ParseTags 解析字符串形式的标签
func ParseTags(s string) (Tags, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return Tags{}, nil
	}
	if strings.HasPrefix(s, "[") {
		var list []string
		if err := json.Unmarshal([]byte(s), &list); err != nil {
			return nil, fmt.Errorf("无法解析标签: %w", err)
		}
		return cleanTags(list), nil
	}
	return cleanTags(strings.Split(s, ",")), nil
}

func cleanTags(list []string) Tags {
	out := make(Tags, 0, len(list))
	for _, tag := range list {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

// Set 返回去重后的集合
func (t Tags) Set() map[string]struct{} {
	set := make(map[string]struct{}, len(t))
	for _, tag := range t {
		set[tag] = struct{}{}
	}
	return set
}

// Equal 按集合比较，忽略顺序与重复
func (t Tags) Equal(other Tags) bool {
	a, b := t.Set(), other.Set()
	if len(a) != len(b) {
		return false
	}
	for tag := range a {
		if _, ok := b[tag]; !ok {
			return false
		}
	}
	return true
}

// Sorted 返回去重排序后的副本
func (t Tags) Sorted() Tags {
	out := make(Tags, 0, len(t))
	for tag := range t.Set() {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// PortSet 目标端口集合，序列化为数组，语义上无序
type PortSet []int

// UnmarshalJSON 兼容 [80,443]、"[80,443]"、"80,443"、["80"] 与 null
func (p *PortSet) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = PortSet{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		ports, err := ParsePortSet(s)
		if err != nil {
			return err
		}
		*p = ports
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("无法解析端口列表: %w", err)
	}
	ports := make(PortSet, 0, len(raw))
	for _, item := range raw {
		port, err := parsePortValue(item)
		if err != nil {
			return err
		}
		ports = append(ports, port)
	}
	*p = ports
	return nil
}

// MarshalJSON 始终输出数组
func (p PortSet) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]int(p))
}

// ParsePortSet 解析字符串形式的端口列表
func ParsePortSet(s string) (PortSet, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return PortSet{}, nil
	}
	if strings.HasPrefix(s, "[") {
		var ports PortSet
		if err := ports.UnmarshalJSON([]byte(s)); err != nil {
			return nil, err
		}
		return ports, nil
	}
	ports := PortSet{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		port, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("无效的端口: %s", part)
		}
		ports = append(ports, port)
	}
	return ports, nil
}

func parsePortValue(raw json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("无效的端口: %s", string(raw))
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("无效的端口: %s", s)
	}
	return n, nil
}

// Contains 判断端口是否在集合中
func (p PortSet) Contains(port int) bool {
	for _, v := range p {
		if v == port {
			return true
		}
	}
	return false
}

// String 以逗号连接，便于展示
func (p PortSet) String() string {
	parts := make([]string, len(p))
	for i, v := range p {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}
