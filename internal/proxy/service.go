package proxy

import (
	"context"
	"strings"

	"PGWDash/internal/cache"
	log "PGWDash/internal/log"
	"PGWDash/internal/models"
	"PGWDash/internal/pgwapi"
	"PGWDash/internal/workflow"
)

// 代理内嵌在服务器与分组记录中，任何代理变更都要刷新这三个键
var affectedKeys = []cache.Key{cache.KeyProxies, cache.KeyServers, cache.KeyGroups}

// 增删代理还会改变汇总统计
var countKeys = []cache.Key{cache.KeyProxies, cache.KeyServers, cache.KeyGroups, cache.KeySummary}

type Service struct {
	client          *pgwapi.Client
	cache           *cache.Cache
	workflows       *workflow.Registry
	bulkConcurrency int
}

func NewService(client *pgwapi.Client, c *cache.Cache, wf *workflow.Registry, bulkConcurrency int) *Service {
	if bulkConcurrency <= 0 {
		bulkConcurrency = 8
	}
	c.Register(cache.KeyProxies, func(ctx context.Context) (interface{}, error) {
		return client.ListProxies(ctx)
	})
	return &Service{client: client, cache: c, workflows: wf, bulkConcurrency: bulkConcurrency}
}

// GetProxies 代理列表（原始数据，展示前由调用方决定是否隐藏密码）
func (s *Service) GetProxies(ctx context.Context) ([]models.Proxy, error) {
	return cache.Get[[]models.Proxy](ctx, s.cache, cache.KeyProxies)
}

// GetProxyByID 找不到返回 nil
func (s *Service) GetProxyByID(ctx context.Context, id int64) (*models.Proxy, error) {
	proxies, err := s.GetProxies(ctx)
	for i := range proxies {
		if proxies[i].ID == id {
			p := proxies[i]
			return &p, nil
		}
	}
	return nil, err
}

// CreateProxy 创建代理
func (s *Service) CreateProxy(ctx context.Context, req CreateProxyRequest) (*workflow.Workflow, error) {
	return s.workflows.Start(ctx, "proxy.create", func(ctx context.Context) (interface{}, error) {
		req.applyDefaults()
		if err := req.validate(); err != nil {
			return nil, err
		}
		created, err := s.client.CreateProxy(ctx, toAPICreate(req))
		if err != nil {
			return nil, err
		}
		s.cache.Invalidate(countKeys...)
		log.Infof("[Proxy] 已创建代理 %s(%d)", created.Label, created.ID)
		return created, nil
	})
}

func toAPICreate(req CreateProxyRequest) pgwapi.CreateProxyRequest {
	return pgwapi.CreateProxyRequest{
		ServerID: req.ServerID,
		GroupID:  req.GroupID,
		Label:    req.Label,
		Type:     req.Type,
		Host:     req.Host,
		Port:     req.Port,
		Username: req.Username,
		Password: req.Password,
		Health:   req.Health,
	}
}

// UpdateProxy 更新代理
func (s *Service) UpdateProxy(ctx context.Context, id int64, req UpdateProxyRequest) (*workflow.Workflow, error) {
	return s.workflows.Start(ctx, "proxy.update", func(ctx context.Context) (interface{}, error) {
		if err := req.validate(); err != nil {
			return nil, err
		}
		body := pgwapi.UpdateProxyRequest{
			Label:    trimmed(req.Label),
			Host:     trimmed(req.Host),
			Port:     req.Port,
			Username: req.Username,
			Password: req.Password,
		}
		if req.Type != nil {
			t := string(*req.Type)
			body.Type = &t
		}
		if req.Health != nil {
			h := string(*req.Health)
			body.Health = &h
		}
		updated, err := s.client.UpdateProxy(ctx, id, body)
		if err != nil {
			return nil, err
		}
		s.cache.Invalidate(affectedKeys...)
		return updated, nil
	})
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}

// DeleteProxy 删除单个代理
func (s *Service) DeleteProxy(ctx context.Context, id int64) (*workflow.Workflow, error) {
	return s.workflows.Start(ctx, "proxy.delete", func(ctx context.Context) (interface{}, error) {
		if err := s.client.DeleteProxy(ctx, id); err != nil {
			return nil, err
		}
		s.cache.Invalidate(countKeys...)
		log.Infof("[Proxy] 已删除代理 %d", id)
		return id, nil
	})
}

// MoveToGroup 修改单个代理的分组。目标与当前分组相同时直接成功，不发请求。
func (s *Service) MoveToGroup(ctx context.Context, id int64, target Target) (*workflow.Workflow, error) {
	return s.workflows.Start(ctx, "proxy.move", func(ctx context.Context) (interface{}, error) {
		if !target.Chosen() {
			return nil, ErrNoTarget
		}
		if current, known := s.currentGroup(id); known && models.SameGroup(current, target.GroupID()) {
			log.Debugf("[Proxy] 代理 %d 已在目标分组，跳过请求", id)
			return &MoveResult{ProxyID: id, GroupID: target.GroupID(), Skipped: true}, nil
		}

		moved, err := s.client.SetProxyGroup(ctx, id, target.GroupID())
		if err != nil {
			return nil, err
		}
		s.cache.Invalidate(affectedKeys...)
		return &MoveResult{ProxyID: id, GroupID: target.GroupID(), Proxy: moved}, nil
	})
}

// currentGroup 从缓存中查找代理当前分组，不触发拉取
func (s *Service) currentGroup(id int64) (*int64, bool) {
	if v, _, ok := s.cache.Peek(cache.KeyProxies); ok {
		if proxies, ok := v.([]models.Proxy); ok {
			for i := range proxies {
				if proxies[i].ID == id {
					return proxies[i].CurrentGroupID(), true
				}
			}
		}
	}
	if v, _, ok := s.cache.Peek(cache.KeyServers); ok {
		if servers, ok := v.([]models.Server); ok {
			for _, srv := range servers {
				for i := range srv.Proxies {
					if srv.Proxies[i].ID == id {
						return srv.Proxies[i].CurrentGroupID(), true
					}
				}
			}
		}
	}
	return nil, false
}
