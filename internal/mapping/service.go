package mapping

import (
	"context"
	"sort"

	"PGWDash/internal/cache"
	"PGWDash/internal/models"
	"PGWDash/internal/pgwapi"
)

// Service 映射规则只读服务
type Service struct {
	cache *cache.Cache
}

func NewService(client *pgwapi.Client, c *cache.Cache) *Service {
	c.Register(cache.KeyMappings, func(ctx context.Context) (interface{}, error) {
		return client.ListMappings(ctx)
	})
	return &Service{cache: c}
}

// GetMappings 所有映射，按服务器、ID 排序
func (s *Service) GetMappings(ctx context.Context) ([]models.Mapping, error) {
	list, err := cache.Get[[]models.Mapping](ctx, s.cache, cache.KeyMappings)
	out := make([]models.Mapping, len(list))
	copy(out, list)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ServerID != out[j].ServerID {
			return out[i].ServerID < out[j].ServerID
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

// GetMappingsByServer 某台服务器上的映射
func (s *Service) GetMappingsByServer(ctx context.Context, serverID int64) ([]models.Mapping, error) {
	all, err := s.GetMappings(ctx)
	out := make([]models.Mapping, 0)
	for _, m := range all {
		if m.ServerID == serverID {
			out = append(out, m)
		}
	}
	return out, err
}

// GetMappingsByProxy 使用某个上游代理的映射，删除代理前用于提示
func (s *Service) GetMappingsByProxy(ctx context.Context, proxyID int64) ([]models.Mapping, error) {
	all, err := s.GetMappings(ctx)
	out := make([]models.Mapping, 0)
	for _, m := range all {
		if m.UpstreamProxyID == proxyID {
			out = append(out, m)
		}
	}
	return out, err
}
