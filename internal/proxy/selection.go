package proxy

import (
	"fmt"
	"sort"
	"sync"
)

// Selection 当前选中的代理ID集合
type Selection struct {
	mu  sync.RWMutex
	ids map[int64]struct{}
}

// NewSelection 创建选择集
func NewSelection(ids ...int64) *Selection {
	s := &Selection{ids: make(map[int64]struct{}, len(ids))}
	s.Add(ids...)
	return s
}

func (s *Selection) Add(ids ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
}

func (s *Selection) Remove(ids ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.ids, id)
	}
}

// Toggle 切换选中状态，返回切换后是否选中
func (s *Selection) Toggle(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

func (s *Selection) Has(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

func (s *Selection) Clear() {
	s.mu.Lock()
	s.ids = make(map[int64]struct{})
	s.mu.Unlock()
}

func (s *Selection) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// IDs 升序返回
func (s *Selection) IDs() []int64 {
	s.mu.RLock()
	out := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Prompt 删除前展示给用户的确认信息
type Prompt struct {
	Count   int    `json:"count"`
	Message string `json:"message"`
}

// DeletePrompt 生成批量删除的确认提示
func DeletePrompt(count int) Prompt {
	return Prompt{
		Count:   count,
		Message: fmt.Sprintf("确定要删除选中的 %d 个代理吗？此操作不可撤销。", count),
	}
}

// Confirmer 在不可逆操作前征求确认
type Confirmer interface {
	Confirm(p Prompt) bool
}

// ConfirmFunc 函数形式的 Confirmer
type ConfirmFunc func(p Prompt) bool

func (f ConfirmFunc) Confirm(p Prompt) bool { return f(p) }
