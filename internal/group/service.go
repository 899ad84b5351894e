package group

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"PGWDash/internal/cache"
	log "PGWDash/internal/log"
	"PGWDash/internal/models"
	"PGWDash/internal/pgwapi"
	"PGWDash/internal/workflow"
)

// ErrRenameDefault 默认分组不能改名
var ErrRenameDefault = errors.New("默认分组不能重命名")

// 分组变更影响：分组列表、代理列表中的分组名、服务器内嵌代理
var affectedKeys = []cache.Key{cache.KeyGroups, cache.KeyProxies, cache.KeyServers}

type Service struct {
	client    *pgwapi.Client
	cache     *cache.Cache
	workflows *workflow.Registry
}

func NewService(client *pgwapi.Client, c *cache.Cache, wf *workflow.Registry) *Service {
	s := &Service{client: client, cache: c, workflows: wf}
	c.Register(cache.KeyGroups, func(ctx context.Context) (interface{}, error) {
		return client.ListGroups(ctx)
	})
	return s
}

// GetGroups 获取所有分组，按名称排序，默认分组在最前
func (s *Service) GetGroups(ctx context.Context) ([]Group, error) {
	list, err := cache.Get[[]models.Group](ctx, s.cache, cache.KeyGroups)
	groups := make([]Group, 0, len(list))
	for _, g := range list {
		groups = append(groups, fromModel(g))
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].IsDefault != groups[j].IsDefault {
			return groups[i].IsDefault
		}
		return strings.ToLower(groups[i].Name) < strings.ToLower(groups[j].Name)
	})
	return groups, err
}

// GetGroupByID 根据ID获取分组，找不到返回 nil
func (s *Service) GetGroupByID(ctx context.Context, id int64) (*Group, error) {
	groups, err := s.GetGroups(ctx)
	for i := range groups {
		if groups[i].ID == id {
			return &groups[i], nil
		}
	}
	return nil, err
}

// CreateGroup 创建分组
func (s *Service) CreateGroup(ctx context.Context, req CreateGroupRequest) (*workflow.Workflow, error) {
	return s.workflows.Start(ctx, "group.create", func(ctx context.Context) (interface{}, error) {
		name := strings.TrimSpace(req.Name)
		if name == "" {
			return nil, ErrEmptyName
		}
		created, err := s.client.CreateGroup(ctx, pgwapi.GroupRequest{
			Name:        name,
			Description: strings.TrimSpace(req.Description),
			Color:       req.Color,
		})
		if err != nil {
			return nil, err
		}
		s.cache.Invalidate(affectedKeys...)
		log.Infof("[Group] 已创建分组 %s(%d)", created.Name, created.ID)
		return fromModel(*created), nil
	})
}

// UpdateGroup 更新分组
func (s *Service) UpdateGroup(ctx context.Context, id int64, req UpdateGroupRequest) (*workflow.Workflow, error) {
	return s.workflows.Start(ctx, "group.update", func(ctx context.Context) (interface{}, error) {
		name := strings.TrimSpace(req.Name)
		if name == "" {
			return nil, ErrEmptyName
		}
		if existing, _ := s.lookup(id); existing != nil && existing.IsDefault() && !strings.EqualFold(name, models.DefaultGroupName) {
			return nil, ErrRenameDefault
		}
		updated, err := s.client.UpdateGroup(ctx, id, pgwapi.GroupRequest{
			Name:        name,
			Description: strings.TrimSpace(req.Description),
			Color:       req.Color,
		})
		if err != nil {
			return nil, err
		}
		s.cache.Invalidate(affectedKeys...)
		return fromModel(*updated), nil
	})
}

// DeleteGroup 删除分组。默认分组在发请求前就被拒绝。
func (s *Service) DeleteGroup(ctx context.Context, id int64) (*workflow.Workflow, error) {
	return s.workflows.Start(ctx, "group.delete", func(ctx context.Context) (interface{}, error) {
		existing, cached := s.lookup(id)
		if !cached {
			// 缓存中没有分组列表，先读取一次用于判断是否为默认分组；读取失败则不删除
			if _, err := s.cache.Read(ctx, cache.KeyGroups); err != nil {
				return nil, fmt.Errorf("无法确认分组 %d 是否为默认分组: %w", id, err)
			}
			existing, _ = s.lookup(id)
		}
		if existing != nil && existing.IsDefault() {
			return nil, ErrDefaultGroup
		}

		if err := s.client.DeleteGroup(ctx, id); err != nil {
			return nil, err
		}
		s.cache.Invalidate(affectedKeys...)
		log.Infof("[Group] 已删除分组 %d", id)
		return id, nil
	})
}

// lookup 只查看缓存，不触发拉取。cached 表示缓存中是否已有分组列表
func (s *Service) lookup(id int64) (group *models.Group, cached bool) {
	v, _, ok := s.cache.Peek(cache.KeyGroups)
	if !ok {
		return nil, false
	}
	list, ok := v.([]models.Group)
	if !ok {
		return nil, false
	}
	for i := range list {
		if list[i].ID == id {
			return &list[i], true
		}
	}
	return nil, true
}
