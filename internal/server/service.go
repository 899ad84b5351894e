package server

import (
	"context"
	"sort"
	"strings"

	"PGWDash/internal/cache"
	log "PGWDash/internal/log"
	"PGWDash/internal/models"
	"PGWDash/internal/pgwapi"
	"PGWDash/internal/workflow"
)

// 服务器变更影响服务器列表（级联到代理）和汇总统计
var affectedKeys = []cache.Key{cache.KeyServers, cache.KeySummary}

type Service struct {
	client    *pgwapi.Client
	cache     *cache.Cache
	workflows *workflow.Registry
}

func NewService(client *pgwapi.Client, c *cache.Cache, wf *workflow.Registry) *Service {
	c.Register(cache.KeyServers, func(ctx context.Context) (interface{}, error) {
		return client.ListServers(ctx)
	})
	return &Service{client: client, cache: c, workflows: wf}
}

// GetServers 服务器列表，哨兵服务器排在最前，其余按名称排序
func (s *Service) GetServers(ctx context.Context) ([]models.Server, error) {
	list, err := cache.Get[[]models.Server](ctx, s.cache, cache.KeyServers)
	servers := make([]models.Server, len(list))
	copy(servers, list)
	sort.SliceStable(servers, func(i, j int) bool {
		if servers[i].IsSentinel() != servers[j].IsSentinel() {
			return servers[i].IsSentinel()
		}
		return strings.ToLower(servers[i].Name) < strings.ToLower(servers[j].Name)
	})
	return servers, err
}

// GetServerByID 找不到返回 nil
func (s *Service) GetServerByID(ctx context.Context, id int64) (*models.Server, error) {
	servers, err := s.GetServers(ctx)
	for i := range servers {
		if servers[i].ID == id {
			return &servers[i], nil
		}
	}
	return nil, err
}

// CreateServer 创建服务器
func (s *Service) CreateServer(ctx context.Context, req CreateServerRequest) (*workflow.Workflow, error) {
	return s.workflows.Start(ctx, "server.create", func(ctx context.Context) (interface{}, error) {
		name := strings.TrimSpace(req.Name)
		if name == "" {
			return nil, ErrEmptyName
		}
		created, err := s.client.CreateServer(ctx, pgwapi.CreateServerRequest{
			Name:     name,
			Tags:     normalizeTags(req.Tags),
			WANIface: strings.TrimSpace(req.WANIface),
			LANIface: strings.TrimSpace(req.LANIface),
		})
		if err != nil {
			return nil, err
		}
		s.cache.Invalidate(affectedKeys...)
		log.Infof("[Server] 已创建服务器 %s(%d)", created.Name, created.ID)
		return created, nil
	})
}

// UpdateServer 更新服务器
func (s *Service) UpdateServer(ctx context.Context, id int64, req UpdateServerRequest) (*workflow.Workflow, error) {
	return s.workflows.Start(ctx, "server.update", func(ctx context.Context) (interface{}, error) {
		body := pgwapi.UpdateServerRequest{
			WANIface: req.WANIface,
			LANIface: req.LANIface,
		}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return nil, ErrEmptyName
			}
			body.Name = &name
		}
		if req.Tags != nil {
			tags := normalizeTags(*req.Tags)
			body.Tags = &tags
		}
		updated, err := s.client.UpdateServer(ctx, id, body)
		if err != nil {
			return nil, err
		}
		s.cache.Invalidate(affectedKeys...)
		return updated, nil
	})
}

// DeleteServer 删除服务器。哨兵服务器在发请求前就被拒绝。
func (s *Service) DeleteServer(ctx context.Context, id int64) (*workflow.Workflow, error) {
	return s.workflows.Start(ctx, "server.delete", func(ctx context.Context) (interface{}, error) {
		if id == models.SentinelServerID {
			return nil, ErrSentinelServer
		}
		if err := s.client.DeleteServer(ctx, id); err != nil {
			return nil, err
		}
		s.cache.Invalidate(affectedKeys...)
		log.Infof("[Server] 已删除服务器 %d", id)
		return id, nil
	})
}
